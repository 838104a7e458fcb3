package ensemble

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"RoundPull/internal/domain/models"
	"RoundPull/internal/domain/service"
	"RoundPull/internal/services/features"
)

const (
	tagCalibrating = "calibrating"
	tagTieBreak    = "tie-break:contrarian"
)

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source used for rounds added without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRand sets the random source used only while calibrating.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) {
		if r != nil {
			e.rng = r
		}
	}
}

// WithComponents replaces the default component set. Order is the reasoning order.
func WithComponents(cs ...Component) Option {
	return func(e *Engine) { e.components = cs }
}

// Engine is the adaptive ensemble predictor. AddResult and PredictNext are serialized
// by an internal mutex, so a single engine may be shared between the poll loop and HTTP handlers.
type Engine struct {
	mu          sync.Mutex
	cfg         Config
	ledger      *Ledger
	patterns    *PatternBank
	transitions *TransitionMatrix
	tracker     *Tracker
	components  []Component
	pending     map[string]models.PendingPrediction
	now         func() time.Time
	rng         *rand.Rand
}

// NewEngine builds an engine with the default components unless WithComponents is given.
func NewEngine(cfg Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:         cfg,
		ledger:      NewLedger(cfg.Capacity),
		patterns:    NewPatternBank(),
		transitions: &TransitionMatrix{},
		tracker:     NewTracker(cfg.Reliability),
		pending:     make(map[string]models.PendingPrediction),
		now:         time.Now,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	e.components = DefaultComponents(cfg)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DefaultComponents returns the baseline component set for cfg.
func DefaultComponents(cfg Config) []Component {
	cs := []Component{
		NewStreakComponent(cfg.Streak),
		NewPatternComponent(cfg.Pattern),
		NewMarkovComponent(cfg.Markov),
		NewPeriodicityComponent(cfg.Periodicity),
	}
	if cfg.PRNG.Enabled {
		cs = append(cs, NewPRNGComponent(cfg.PRNG))
	}
	return cs
}

// AddResult ingests one round. It returns false without side effects for a duplicate
// or malformed round id or a raw value outside 0-9. A zero ts means now.
func (e *Engine) AddResult(roundID string, raw int, ts time.Time) bool {
	if raw < 0 || raw > 9 {
		return false
	}
	id, err := models.ParseRoundID(roundID)
	if err != nil {
		return false
	}
	key := id.String()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ledger.Has(key) {
		return false
	}
	if ts.IsZero() {
		ts = e.now()
	}

	label := models.LabelOf(raw)
	history := e.ledger.Labels()
	var inter time.Duration
	if last, ok := e.ledger.Last(); ok {
		inter = ts.Sub(last.CaptureTime)
		if inter < 0 {
			inter = 0
		}
		e.transitions.Observe(last.Label, label)
	}
	e.patterns.Observe(history, label)

	e.ledger.Append(models.Round{
		RoundID:      id,
		RawValue:     raw,
		Label:        label,
		AuxLabel:     models.AuxLabelOf(raw),
		CaptureTime:  ts,
		InterArrival: inter,
	})

	e.tracker.Tick()
	if p, ok := e.pending[key]; ok {
		for name, vote := range p.Votes {
			e.tracker.Record(name, vote == label)
		}
	}
	e.prunePending(id)

	snap := e.snapshot()
	for _, c := range e.components {
		if o, ok := c.(Observer); ok {
			o.Observe(snap)
		}
	}
	return true
}

// prunePending drops the consumed record and any left behind by skipped round ids.
func (e *Engine) prunePending(upTo models.RoundID) {
	for k := range e.pending {
		id, err := models.ParseRoundID(k)
		if err != nil || !id.After(upTo) {
			delete(e.pending, k)
		}
	}
}

func (e *Engine) snapshot() *Snapshot {
	labels := e.ledger.Labels()
	flip := features.FlipRate(labels, e.cfg.Streak.ChoppyWindow)
	s := &Snapshot{
		Records:     e.ledger.Records(),
		Labels:      labels,
		Patterns:    e.patterns,
		Transitions: e.transitions,
		FlipRate:    flip,
		Choppy:      flip > e.cfg.Streak.ChoppyRate,
	}
	if last, ok := e.ledger.Last(); ok {
		s.Next = last.RoundID.Next()
	}
	return s
}

// PredictNext recommends the outcome of the round after the ledger tip.
// level is the caller's escalation level and is echoed back; values below 1 count as 1.
func (e *Engine) PredictNext(level int) models.Prediction {
	if level < 1 {
		level = 1
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ledger.Len() < e.cfg.MinHistory {
		return e.calibrating(level)
	}

	snap := e.snapshot()
	last := snap.Last()
	p := models.Prediction{
		RoundID:        snap.Next.String(),
		AuxLabel:       last.AuxLabel,
		ComponentVotes: make(map[string]models.ComponentVote),
		Reasoning:      []string{},
		Level:          level,
		CreatedAt:      e.now(),
	}
	raw := make(map[string]models.Label)

	for _, c := range e.components {
		name := c.Name()
		v, ok := c.Vote(snap)
		if !ok {
			continue
		}
		if e.tracker.Cooling(name) {
			p.Reasoning = append(p.Reasoning, "cooldown:"+name)
			continue
		}
		raw[name] = v.Label
		label, weight, inverted := e.tracker.Apply(name, v)
		if label == models.High {
			p.ScoreHigh += weight
		} else {
			p.ScoreLow += weight
		}
		p.ComponentVotes[name] = models.ComponentVote{Label: label, Weight: weight, Inverted: inverted, Tag: v.Tag}
		if inverted {
			p.Reasoning = append(p.Reasoning, "inverted:"+name)
		}
		p.Reasoning = append(p.Reasoning, v.Tag)
	}

	if p.ScoreHigh >= p.ScoreLow {
		p.Label = models.High
	} else {
		p.Label = models.Low
	}
	if math.Abs(p.ScoreHigh-p.ScoreLow) < e.cfg.TieThreshold {
		p.Label = last.Label.Opposite()
		p.Reasoning = append(p.Reasoning, tagTieBreak)
	}

	p.ConfidenceScore = e.confidence(p.ScoreHigh, p.ScoreLow)
	p.ConfidenceLabel = e.bucket(p.ConfidenceScore, snap.Choppy)
	p.SkipRecommended = !e.cfg.NoSkip && p.ConfidenceScore < e.cfg.SkipBelow
	if e.cfg.CautionLevel > 0 && level >= e.cfg.CautionLevel {
		p.Reasoning = append(p.Reasoning, fmt.Sprintf("level:%d", level))
	}

	e.pending[p.RoundID] = models.PendingPrediction{RoundID: p.RoundID, Votes: raw}
	return p
}

func (e *Engine) calibrating(level int) models.Prediction {
	p := models.Prediction{
		Label:           models.Low,
		AuxLabel:        models.ColorRed,
		Reasoning:       []string{tagCalibrating},
		ConfidenceLabel: models.ConfidenceLow,
		ConfidenceScore: e.cfg.Confidence.Calibrating,
		SkipRecommended: !e.cfg.NoSkip,
		ComponentVotes:  map[string]models.ComponentVote{},
		Level:           level,
		Calibrating:     true,
		CreatedAt:       e.now(),
	}
	if e.rng.Intn(2) == 1 {
		p.Label = models.High
	}
	if e.rng.Intn(2) == 1 {
		p.AuxLabel = models.ColorGreen
	}
	if last, ok := e.ledger.Last(); ok {
		p.RoundID = last.RoundID.Next().String()
	}
	return p
}

func (e *Engine) confidence(high, low float64) int {
	sum := high + low
	if sum <= 0 {
		return e.cfg.Confidence.NoVotes
	}
	return int(math.Round(100 * math.Max(high, low) / sum))
}

func (e *Engine) bucket(score int, choppy bool) models.ConfidenceLabel {
	c := e.cfg.Confidence
	switch {
	case score >= c.Ultra:
		return models.ConfidenceUltra
	case score >= c.High:
		return models.ConfidenceHigh
	case score >= c.Medium:
		return models.ConfidenceMedium
	case choppy:
		return models.ConfidenceVolatile
	default:
		return models.ConfidenceLow
	}
}

// History returns a copy of the ledger, oldest first.
func (e *Engine) History() []models.Round {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Copy()
}

// Entries returns the persistable ledger, oldest first.
func (e *Engine) Entries() []models.LedgerEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Entries()
}

// Tip returns the most recent round.
func (e *Engine) Tip() (models.Round, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Last()
}

// Len returns the ledger length.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Len()
}

// ClearHistory resets the ledger, tables, reliability and pending state.
func (e *Engine) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ledger.Reset()
	e.patterns.Reset()
	e.transitions.Reset()
	e.tracker.Reset()
	e.pending = make(map[string]models.PendingPrediction)
	for _, c := range e.components {
		if r, ok := c.(Resetter); ok {
			r.Reset()
		}
	}
}

// ComponentStates returns the reliability state of every registered component.
func (e *Engine) ComponentStates() map[string]models.ComponentState {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]models.ComponentState, len(e.components))
	for _, c := range e.components {
		out[c.Name()] = e.tracker.State(c.Name())
	}
	return out
}

// PatternTable returns a copy of the n-gram table for length k.
func (e *Engine) PatternTable(k int) map[string]Cell {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.patterns.Table(k)
}

// Transitions returns the transition counts, indexed [from][to] with Low=0, High=1.
func (e *Engine) Transitions() [2][2]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transitions.Counts()
}

// Pending returns the pending record for a round id.
func (e *Engine) Pending(roundID string) (models.PendingPrediction, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.pending[roundID]
	return p, ok
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

var _ service.Predictor = (*Engine)(nil)
