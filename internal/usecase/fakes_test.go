package usecase

import (
	"context"
	"sync"
	"time"

	"RoundPull/internal/domain/models"
	drepo "RoundPull/internal/domain/repository"
)

type fakeMetrics struct {
	mu     sync.Mutex
	rounds map[string]int
	errs   []string
	sent   []string
}

func newFakeMetrics() *fakeMetrics { return &fakeMetrics{rounds: map[string]int{}} }

func (m *fakeMetrics) RecordRound(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds[result]++
}
func (m *fakeMetrics) RecordPrediction(string, string)      {}
func (m *fakeMetrics) RecordComponentScore(string, float64) {}
func (m *fakeMetrics) RecordMessageSent(backend, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, backend+"/"+kind)
}
func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, kind)
}
func (m *fakeMetrics) RecordLatency(string, float64) {}

type memLedger struct {
	mu      sync.Mutex
	entries []models.LedgerEntry
	saves   int
	err     error
}

func (l *memLedger) Save(_ context.Context, entries []models.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.entries = append([]models.LedgerEntry(nil), entries...)
	l.saves++
	return nil
}

func (l *memLedger) Load(context.Context) ([]models.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.LedgerEntry(nil), l.entries...), nil
}

type fakePublisher struct {
	rounds      []string
	predictions []string
	closed      bool
}

func (p *fakePublisher) PublishRound(_ context.Context, r *models.Round) error {
	p.rounds = append(p.rounds, r.RoundID.String())
	return nil
}

func (p *fakePublisher) PublishPrediction(_ context.Context, pred *models.Prediction) error {
	p.predictions = append(p.predictions, pred.RoundID)
	return nil
}

func (p *fakePublisher) Close() error {
	p.closed = true
	return nil
}

type fakeStorage struct {
	rounds      []*models.Round
	predictions []*models.Prediction
	err         error
}

func (s *fakeStorage) Init(context.Context) error { return nil }
func (s *fakeStorage) StoreRound(_ context.Context, r *models.Round) error {
	if s.err != nil {
		return s.err
	}
	s.rounds = append(s.rounds, r)
	return nil
}
func (s *fakeStorage) StoreRounds(ctx context.Context, rs []*models.Round) error {
	for _, r := range rs {
		if err := s.StoreRound(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
func (s *fakeStorage) StorePrediction(_ context.Context, p *models.Prediction) error {
	if s.err != nil {
		return s.err
	}
	s.predictions = append(s.predictions, p)
	return nil
}
func (s *fakeStorage) RecentRounds(_ context.Context, limit int) ([]*models.Round, error) {
	if len(s.rounds) > limit {
		return s.rounds[len(s.rounds)-limit:], nil
	}
	return s.rounds, nil
}
func (s *fakeStorage) Health(context.Context) error { return nil }
func (s *fakeStorage) Close() error                 { return nil }

type sinkFunc func(models.Prediction)

func (f sinkFunc) Broadcast(p models.Prediction) { f(p) }

// fixedPredictor always predicts label for the round after the last one added.
type fixedPredictor struct {
	label models.Label
	next  string
}

func (p *fixedPredictor) AddResult(string, int, time.Time) bool { return true }
func (p *fixedPredictor) PredictNext(level int) models.Prediction {
	return models.Prediction{RoundID: p.next, Label: p.label, Level: level}
}
func (p *fixedPredictor) History() []models.Round                           { return nil }
func (p *fixedPredictor) Entries() []models.LedgerEntry                     { return nil }
func (p *fixedPredictor) ClearHistory()                                     {}
func (p *fixedPredictor) Tip() (models.Round, bool)                         { return models.Round{}, false }
func (p *fixedPredictor) Len() int                                          { return 0 }
func (p *fixedPredictor) ComponentStates() map[string]models.ComponentState { return nil }

var (
	_ drepo.LedgerStore = (*memLedger)(nil)
	_ drepo.Publisher   = (*fakePublisher)(nil)
	_ drepo.Storage     = (*fakeStorage)(nil)
)
