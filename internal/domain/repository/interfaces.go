package repository

import (
	"context"
	"errors"

	"RoundPull/internal/domain/models"
)

// ErrNotFound is returned by stores when a key does not exist.
var ErrNotFound = errors.New("not found")

// FeedSource fetches the latest page of finished rounds, newest first.
type FeedSource interface {
	Fetch(ctx context.Context) ([]models.FeedEntry, error)
}

// LedgerStore persists the full ledger, oldest first.
type LedgerStore interface {
	Save(ctx context.Context, entries []models.LedgerEntry) error
	Load(ctx context.Context) ([]models.LedgerEntry, error)
}

type Publisher interface {
	PublishRound(ctx context.Context, r *models.Round) error
	PublishPrediction(ctx context.Context, p *models.Prediction) error
	Close() error
}

type Storage interface {
	Init(ctx context.Context) error // ensure tables, health checks
	StoreRound(ctx context.Context, r *models.Round) error
	StoreRounds(ctx context.Context, rounds []*models.Round) error
	StorePrediction(ctx context.Context, p *models.Prediction) error
	RecentRounds(ctx context.Context, limit int) ([]*models.Round, error)
	Health(ctx context.Context) error // ping
	Close() error
}

type SessionStore interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	Save(ctx context.Context, s *models.Session) error
	Delete(ctx context.Context, id string) error
}

type Metrics interface {
	RecordRound(result string)
	RecordPrediction(label, confidence string)
	RecordComponentScore(component string, score float64)
	RecordMessageSent(backend, kind string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
