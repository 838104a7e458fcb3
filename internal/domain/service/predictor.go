package service

import (
	"time"

	"RoundPull/internal/domain/models"
)

// Predictor is the ensemble engine as seen by use cases and handlers.
type Predictor interface {
	AddResult(roundID string, raw int, ts time.Time) bool
	PredictNext(level int) models.Prediction
	History() []models.Round
	Entries() []models.LedgerEntry
	ClearHistory()
	Tip() (models.Round, bool)
	Len() int
	ComponentStates() map[string]models.ComponentState
}
