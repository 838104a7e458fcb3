package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"RoundPull/internal/domain/models"
	drepo "RoundPull/internal/domain/repository"
	"RoundPull/internal/domain/service"
	applogger "RoundPull/pkg/logger"
)

const (
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
	BackendNone       = "none"
)

// PredictionSink receives every prediction made after an accepted round.
type PredictionSink interface {
	Broadcast(p models.Prediction)
}

// RoundProcessor feeds rounds into the engine, persists the ledger, routes rounds
// and predictions to the configured backend and fans predictions out to sinks.
// Backend and persistence failures are logged; in-memory state stays authoritative.
type RoundProcessor struct {
	engine  service.Predictor
	ledger  drepo.LedgerStore
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	backend string
	l       *applogger.Logger

	mu    sync.RWMutex
	sinks []PredictionSink
	last  *models.Prediction
}

// NewRoundProcessor creates a new RoundProcessor. pub and store may be nil when the backend does not use them.
func NewRoundProcessor(
	engine service.Predictor,
	ledger drepo.LedgerStore,
	pub drepo.Publisher,
	store drepo.Storage,
	metrics drepo.Metrics,
	backend string,
	l *applogger.Logger,
) *RoundProcessor {
	if l == nil {
		l = applogger.NewNop()
	}
	return &RoundProcessor{
		engine:  engine,
		ledger:  ledger,
		pub:     pub,
		store:   store,
		metrics: metrics,
		backend: backend,
		l:       l,
	}
}

// AddSink registers a prediction sink.
func (p *RoundProcessor) AddSink(s PredictionSink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = append(p.sinks, s)
}

// Engine exposes the predictor for read paths.
func (p *RoundProcessor) Engine() service.Predictor { return p.engine }

// Process adds one round. It returns false for a duplicate or malformed round.
func (p *RoundProcessor) Process(ctx context.Context, r *models.Round) (bool, error) {
	if r == nil {
		return false, fmt.Errorf("round is nil")
	}
	start := time.Now()

	if !p.engine.AddResult(r.RoundID.String(), r.RawValue, r.CaptureTime) {
		p.metrics.RecordRound("duplicate")
		return false, nil
	}
	p.metrics.RecordRound("accepted")

	p.persist(ctx)

	tip, _ := p.engine.Tip()
	p.l.Info("round accepted",
		applogger.String("round_id", tip.RoundID.String()),
		applogger.Int("raw", tip.RawValue),
		applogger.String("label", string(tip.Label)),
		applogger.Int("ledger", p.engine.Len()),
	)
	p.route(ctx, &tip)

	pred := p.engine.PredictNext(1)
	p.emit(ctx, pred)

	for name, st := range p.engine.ComponentStates() {
		p.metrics.RecordComponentScore(name, st.Score)
	}
	p.metrics.RecordLatency("process_round", time.Since(start).Seconds())
	return true, nil
}

// Add validates and processes a manually submitted round.
func (p *RoundProcessor) Add(ctx context.Context, roundID string, raw int, ts time.Time) (bool, error) {
	id, err := models.ParseRoundID(roundID)
	if err != nil {
		return false, err
	}
	if raw < 0 || raw > 9 {
		return false, fmt.Errorf("raw value %d out of range", raw)
	}
	return p.Process(ctx, &models.Round{RoundID: id, RawValue: raw, CaptureTime: ts})
}

// Predict returns a prediction at level without publishing it.
func (p *RoundProcessor) Predict(level int) models.Prediction {
	pred := p.engine.PredictNext(level)
	p.metrics.RecordPrediction(string(pred.Label), string(pred.ConfidenceLabel))
	return pred
}

// Latest returns the last broadcast prediction, if any.
func (p *RoundProcessor) Latest() (models.Prediction, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.last == nil {
		return models.Prediction{}, false
	}
	return *p.last, true
}

// Clear wipes engine state and the persisted ledger.
func (p *RoundProcessor) Clear(ctx context.Context) error {
	p.engine.ClearHistory()
	p.mu.Lock()
	p.last = nil
	p.mu.Unlock()
	if err := p.ledger.Save(ctx, nil); err != nil {
		p.metrics.RecordError("ledger_save")
		return fmt.Errorf("clear ledger: %w", err)
	}
	p.l.Info("history cleared")
	return nil
}

// Restore replays the persisted ledger through the engine. When the ledger store is empty and the
// ClickHouse backend is active, the most recent archived rounds are used instead.
// It returns the number of rounds accepted and the restored tip.
func (p *RoundProcessor) Restore(ctx context.Context, limit int) (int, *models.RoundID, error) {
	entries, err := p.ledger.Load(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("load ledger: %w", err)
	}

	n := 0
	source := "ledger"
	if len(entries) > 0 {
		// The ledger keeps only {roundId, rawValue}, so replayed rounds share the zero
		// capture time. Time based PRNG formulas score on live rounds only.
		for _, e := range entries {
			if p.engine.AddResult(e.RoundID, e.RawValue, time.Time{}) {
				n++
			}
		}
	} else if p.store != nil && p.backend == BackendClickHouse && limit > 0 {
		source = "clickhouse"
		rounds, err := p.store.RecentRounds(ctx, limit)
		if err != nil {
			return 0, nil, fmt.Errorf("load archive: %w", err)
		}
		for _, r := range rounds {
			if p.engine.AddResult(r.RoundID.String(), r.RawValue, r.CaptureTime) {
				n++
			}
		}
		if n > 0 {
			p.persist(ctx)
		}
	}

	tip, ok := p.engine.Tip()
	if !ok {
		p.l.Info("ledger empty, starting calibration")
		return n, nil, nil
	}
	p.l.Info("ledger restored",
		applogger.String("source", source),
		applogger.Int("rounds", n),
		applogger.String("tip", tip.RoundID.String()),
	)
	return n, &tip.RoundID, nil
}

func (p *RoundProcessor) persist(ctx context.Context) {
	start := time.Now()
	if err := p.ledger.Save(ctx, p.engine.Entries()); err != nil {
		p.metrics.RecordError("ledger_save")
		p.l.Error("ledger save failed", applogger.Error(err))
		return
	}
	p.metrics.RecordLatency("ledger_save", time.Since(start).Seconds())
}

func (p *RoundProcessor) route(ctx context.Context, r *models.Round) {
	var err error
	switch p.backend {
	case BackendKafka:
		err = p.pub.PublishRound(ctx, r)
	case BackendClickHouse:
		err = p.store.StoreRound(ctx, r)
	default:
		return
	}
	if err != nil {
		p.metrics.RecordError("route_round")
		p.l.Error("round routing failed",
			applogger.String("backend", p.backend),
			applogger.String("round_id", r.RoundID.String()),
			applogger.Error(err),
		)
		return
	}
	p.metrics.RecordMessageSent(p.backend, "round")
}

func (p *RoundProcessor) emit(ctx context.Context, pred models.Prediction) {
	p.metrics.RecordPrediction(string(pred.Label), string(pred.ConfidenceLabel))

	var err error
	switch p.backend {
	case BackendKafka:
		err = p.pub.PublishPrediction(ctx, &pred)
	case BackendClickHouse:
		err = p.store.StorePrediction(ctx, &pred)
	}
	if err != nil {
		p.metrics.RecordError("route_prediction")
		p.l.Error("prediction routing failed", applogger.String("backend", p.backend), applogger.Error(err))
	} else if p.backend == BackendKafka || p.backend == BackendClickHouse {
		p.metrics.RecordMessageSent(p.backend, "prediction")
	}

	p.mu.Lock()
	p.last = &pred
	sinks := append([]PredictionSink(nil), p.sinks...)
	p.mu.Unlock()
	for _, s := range sinks {
		s.Broadcast(pred)
	}

	p.l.Debug("prediction",
		applogger.String("round_id", pred.RoundID),
		applogger.String("label", string(pred.Label)),
		applogger.Int("confidence", pred.ConfidenceScore),
		applogger.Strings("reasoning", pred.Reasoning),
	)
}

// Close closes underlying resources if available.
func (p *RoundProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}
