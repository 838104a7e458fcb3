package models

import "time"

// ConfidenceLabel buckets a confidence score.
type ConfidenceLabel string

const (
	ConfidenceUltra    ConfidenceLabel = "Ultra"
	ConfidenceHigh     ConfidenceLabel = "High"
	ConfidenceMedium   ConfidenceLabel = "Medium"
	ConfidenceLow      ConfidenceLabel = "Low"
	ConfidenceVolatile ConfidenceLabel = "Volatile"
)

// ComponentVote is one component's contribution to a prediction.
type ComponentVote struct {
	Label    Label   `json:"label"`
	Weight   float64 `json:"weight"`
	Inverted bool    `json:"inverted,omitempty"`
	Tag      string  `json:"tag"`
}

// Prediction is the recommendation for the round after the ledger tip.
type Prediction struct {
	RoundID         string                   `json:"round_id,omitempty"`
	Label           Label                    `json:"label"`
	AuxLabel        AuxLabel                 `json:"aux_label"`
	Reasoning       []string                 `json:"reasoning"`
	ConfidenceLabel ConfidenceLabel          `json:"confidence_label"`
	ConfidenceScore int                      `json:"confidence_score"`
	SkipRecommended bool                     `json:"skip_recommended"`
	ComponentVotes  map[string]ComponentVote `json:"component_votes"`
	ScoreHigh       float64                  `json:"score_high"`
	ScoreLow        float64                  `json:"score_low"`
	Level           int                      `json:"level"`
	Calibrating     bool                     `json:"calibrating,omitempty"`
	CreatedAt       time.Time                `json:"created_at"`
}

// ComponentState is the reliability state of one component.
type ComponentState struct {
	Score             float64 `json:"score"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
	CooldownRemaining int     `json:"cooldown_remaining"`
	Inverted          bool    `json:"inverted"`
}

// PendingPrediction records the raw component votes cast for a not-yet-resolved round.
type PendingPrediction struct {
	RoundID string
	Votes   map[string]Label
}
