package models

// Requests for the prediction HTTP endpoints.

type PredictRequest struct {
	Level int `query:"level" json:"level" default:"1" validate:"gte=1,lte=20"`
}

type HistoryRequest struct {
	Limit int `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=10000"`
}

type AddRoundRequest struct {
	RoundID  string `json:"round_id" validate:"required,round_id"`
	RawValue *int   `json:"raw_value" validate:"required,gte=0,lte=9"`
	Time     string `json:"time" validate:"omitempty,round_time"`
}

type SessionRequest struct {
	ID string `param:"id" validate:"required,uuid"`
}

type SettleRequest struct {
	ID       string `param:"id" validate:"required,uuid"`
	RoundID  string `json:"round_id" validate:"omitempty,round_id"`
	RawValue *int   `json:"raw_value" validate:"required,gte=0,lte=9"`
}
