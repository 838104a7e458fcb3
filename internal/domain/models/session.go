package models

import "time"

// Session tracks level escalation for one consumer of predictions.
type Session struct {
	ID             string      `json:"id"`
	Level          int         `json:"level"`
	Wins           int         `json:"wins"`
	Losses         int         `json:"losses"`
	LastPrediction *Prediction `json:"last_prediction,omitempty"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Settlement is the outcome of settling a session's last prediction.
type Settlement struct {
	Session *Session `json:"session"`
	Won     bool     `json:"won"`
	Actual  Label    `json:"actual"`
}
