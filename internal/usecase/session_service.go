package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"RoundPull/internal/domain/models"
	drepo "RoundPull/internal/domain/repository"
	"RoundPull/internal/domain/service"
	svcmetrics "RoundPull/internal/service/metrics"
	applogger "RoundPull/pkg/logger"
)

const DefaultMaxLevel = 5

var (
	ErrNoPrediction  = errors.New("session has no open prediction")
	ErrRoundMismatch = errors.New("settled round does not match the predicted round")
)

// SessionService tracks level escalation per consumer. A win resets the level to 1,
// a loss raises it by one and wraps back to 1 past maxLevel.
type SessionService struct {
	engine   service.Predictor
	store    drepo.SessionStore
	maxLevel int
	l        *applogger.Logger
	now      func() time.Time
	locks    sessionLocks
}

// sessionLocks serializes read-modify-write cycles per session id. Entries are
// reference counted and dropped when the last holder unlocks.
type sessionLocks struct {
	mu sync.Mutex
	m  map[string]*sessionLock
}

type sessionLock struct {
	sync.Mutex
	refs int
}

func (l *sessionLocks) lock(id string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*sessionLock)
	}
	e, ok := l.m[id]
	if !ok {
		e = &sessionLock{}
		l.m[id] = e
	}
	e.refs++
	l.mu.Unlock()

	e.Lock()
	return func() {
		e.Unlock()
		l.mu.Lock()
		if e.refs--; e.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}

func (l *sessionLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

// NewSessionService creates a new SessionService.
func NewSessionService(engine service.Predictor, store drepo.SessionStore, maxLevel int, l *applogger.Logger) *SessionService {
	if maxLevel <= 0 {
		maxLevel = DefaultMaxLevel
	}
	if l == nil {
		l = applogger.NewNop()
	}
	svcmetrics.Register()
	return &SessionService{engine: engine, store: store, maxLevel: maxLevel, l: l, now: time.Now}
}

// Open creates a session at level 1.
func (s *SessionService) Open(ctx context.Context) (*models.Session, error) {
	sess := &models.Session{
		ID:        uuid.NewString(),
		Level:     1,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	svcmetrics.SessionsOpened.Inc()
	s.l.Info("session opened", applogger.String("session_id", sess.ID))
	return sess, nil
}

func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	return s.store.Get(ctx, id)
}

// Predict asks the engine for the next round at the session's level and stores it for settlement.
func (s *SessionService) Predict(ctx context.Context, id string) (*models.Session, error) {
	defer s.locks.lock(id)()
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	pred := s.engine.PredictNext(sess.Level)
	sess.LastPrediction = &pred
	sess.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return sess, nil
}

// Settle resolves the open prediction against the actual raw value.
// roundID is optional; when given it must match the predicted round. Each prediction
// settles once; concurrent callers after the first get ErrNoPrediction.
func (s *SessionService) Settle(ctx context.Context, id, roundID string, raw int) (*models.Settlement, error) {
	if raw < 0 || raw > 9 {
		return nil, fmt.Errorf("raw value %d out of range", raw)
	}
	defer s.locks.lock(id)()
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.LastPrediction == nil {
		return nil, ErrNoPrediction
	}
	if roundID != "" && sess.LastPrediction.RoundID != "" {
		want, err1 := models.ParseRoundID(sess.LastPrediction.RoundID)
		got, err2 := models.ParseRoundID(roundID)
		if err1 != nil || err2 != nil || want.Cmp(got) != 0 {
			return nil, ErrRoundMismatch
		}
	}

	settledAt := sess.Level
	actual := models.LabelOf(raw)
	won := sess.LastPrediction.Label == actual
	if won {
		sess.Wins++
		sess.Level = 1
		svcmetrics.Settlements.WithLabelValues("win").Inc()
	} else {
		sess.Losses++
		sess.Level++
		if sess.Level > s.maxLevel {
			sess.Level = 1
		}
		svcmetrics.Settlements.WithLabelValues("loss").Inc()
	}
	svcmetrics.SettledLevel.Observe(float64(settledAt))

	sess.LastPrediction = nil
	sess.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	s.l.Debug("session settled",
		applogger.String("session_id", id),
		applogger.Bool("won", won),
		applogger.Int("level", sess.Level),
	)
	return &models.Settlement{Session: sess, Won: won, Actual: actual}, nil
}

// Reset puts the session back at level 1 and drops the open prediction.
func (s *SessionService) Reset(ctx context.Context, id string) (*models.Session, error) {
	defer s.locks.lock(id)()
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Level = 1
	sess.LastPrediction = nil
	sess.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return sess, nil
}

func (s *SessionService) Close(ctx context.Context, id string) error {
	defer s.locks.lock(id)()
	return s.store.Delete(ctx, id)
}
