package ensemble

import (
	"fmt"

	"RoundPull/internal/domain/models"
	"RoundPull/internal/services/features"
)

// Component names used as reliability keys.
const (
	NameStreak      = "streak"
	NamePattern     = "pattern"
	NameMarkov      = "markov"
	NamePeriodicity = "periodicity"
	NamePRNG        = "prng"
)

// Vote is a component's raw opinion before reliability scaling.
type Vote struct {
	Label  models.Label
	Weight float64
	Tag    string
}

// Snapshot is the read-only state handed to components. Slices alias engine state.
type Snapshot struct {
	Records     []models.Round
	Labels      []models.Label
	Patterns    *PatternBank
	Transitions *TransitionMatrix
	FlipRate    float64
	Choppy      bool
	Next        models.RoundID
}

// Last returns the latest record. Callers check len(Records) first.
func (s *Snapshot) Last() models.Round { return s.Records[len(s.Records)-1] }

// Component is one heuristic signal source. Returning false abstains.
type Component interface {
	Name() string
	Vote(s *Snapshot) (Vote, bool)
}

// Observer is implemented by components that recalibrate after every accepted round.
type Observer interface {
	Observe(s *Snapshot)
}

// Resetter is implemented by components with internal state cleared by ClearHistory.
type Resetter interface {
	Reset()
}

// StreakComponent follows or fades runs depending on their length and the regime.
type StreakComponent struct {
	cfg StreakConfig
}

func NewStreakComponent(cfg StreakConfig) *StreakComponent { return &StreakComponent{cfg: cfg} }

func (c *StreakComponent) Name() string { return NameStreak }

func (c *StreakComponent) Vote(s *Snapshot) (Vote, bool) {
	last, run := features.RunLength(s.Labels)
	if run == 0 {
		return Vote{}, false
	}
	switch {
	case run >= c.cfg.DragonRun:
		return Vote{Label: last, Weight: c.cfg.DragonWeight, Tag: fmt.Sprintf("dragon:%d", run)}, true
	case run >= c.cfg.IncubatorRun:
		return Vote{Label: last, Weight: c.cfg.IncubatorWeight, Tag: fmt.Sprintf("incubator:%d", run)}, true
	case run == c.cfg.BreakRun && s.Choppy:
		return Vote{Label: last.Opposite(), Weight: c.cfg.BreakWeight, Tag: fmt.Sprintf("break:%d", run)}, true
	default:
		return Vote{Label: last, Weight: c.cfg.TrendWeight, Tag: fmt.Sprintf("trend:%d", run)}, true
	}
}

// PatternComponent votes the majority continuation of the longest qualifying n-gram.
type PatternComponent struct {
	cfg PatternConfig
}

func NewPatternComponent(cfg PatternConfig) *PatternComponent { return &PatternComponent{cfg: cfg} }

func (c *PatternComponent) Name() string { return NamePattern }

func (c *PatternComponent) Vote(s *Snapshot) (Vote, bool) {
	for k := MaxPatternLen; k >= MinPatternLen; k-- {
		gram := features.Suffix(s.Labels, k)
		if gram == nil {
			continue
		}
		cell, ok := s.Patterns.Lookup(gram)
		if !ok || cell.Total() < c.cfg.MinSamples {
			continue
		}
		label, rate, ok := cell.Majority()
		if !ok {
			continue
		}
		return Vote{Label: label, Weight: c.cfg.Weight * rate, Tag: fmt.Sprintf("pattern:K%d", k)}, true
	}
	return Vote{}, false
}

// MarkovComponent votes the likelier successor of the last label.
type MarkovComponent struct {
	cfg MarkovConfig
}

func NewMarkovComponent(cfg MarkovConfig) *MarkovComponent { return &MarkovComponent{cfg: cfg} }

func (c *MarkovComponent) Name() string { return NameMarkov }

func (c *MarkovComponent) Vote(s *Snapshot) (Vote, bool) {
	if len(s.Labels) == 0 || s.Transitions.Total() < c.cfg.MinTransitions {
		return Vote{}, false
	}
	from := s.Labels[len(s.Labels)-1]
	pHigh := s.Transitions.Prob(from, models.High)
	pLow := s.Transitions.Prob(from, models.Low)
	switch {
	case pHigh > c.cfg.Threshold:
		return Vote{Label: models.High, Weight: c.cfg.Weight, Tag: fmt.Sprintf("markov:%.2f", pHigh)}, true
	case pLow > c.cfg.Threshold:
		return Vote{Label: models.Low, Weight: c.cfg.Weight, Tag: fmt.Sprintf("markov:%.2f", pLow)}, true
	}
	return Vote{}, false
}

// PeriodicityComponent detects 1-1 and 2-2 oscillation over a fixed window.
type PeriodicityComponent struct {
	cfg PeriodicityConfig
}

func NewPeriodicityComponent(cfg PeriodicityConfig) *PeriodicityComponent {
	return &PeriodicityComponent{cfg: cfg}
}

func (c *PeriodicityComponent) Name() string { return NamePeriodicity }

func (c *PeriodicityComponent) Vote(s *Snapshot) (Vote, bool) {
	if len(s.Labels) < c.cfg.Window {
		return Vote{}, false
	}
	last := s.Labels[len(s.Labels)-1]
	if features.Alternating(s.Labels, c.cfg.Window) {
		return Vote{Label: last.Opposite(), Weight: c.cfg.Weight, Tag: "zigzag"}, true
	}
	if features.DoubleAlternating(s.Labels, c.cfg.Window) {
		// the window ends on a complete block; continue it
		return Vote{Label: last, Weight: c.cfg.Weight, Tag: "double-zigzag"}, true
	}
	return Vote{}, false
}
