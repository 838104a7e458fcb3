package ensemble

import (
	"sort"

	"RoundPull/internal/domain/models"
)

// Tracker keeps per-component reliability: a bounded score plus the inverted and cooling states.
//
//	Active   -> Inverted after InvertAfter consecutive losses (vote flipped, weight boosted)
//	Inverted -> Cooling after CooldownAfter consecutive losses (no vote for Cooldown rounds)
//	Cooling  -> Active when the cooldown runs out, losses reset
//	any      -> Active on a correct vote
type Tracker struct {
	cfg    ReliabilityConfig
	states map[string]*models.ComponentState
}

func NewTracker(cfg ReliabilityConfig) *Tracker {
	return &Tracker{cfg: cfg, states: make(map[string]*models.ComponentState)}
}

func (t *Tracker) state(name string) *models.ComponentState {
	st, ok := t.states[name]
	if !ok {
		st = &models.ComponentState{Score: t.cfg.InitialScore}
		t.states[name] = st
	}
	return st
}

// State returns a copy of the named component's state.
func (t *Tracker) State(name string) models.ComponentState { return *t.state(name) }

// Cooling reports whether the component is sitting out.
func (t *Tracker) Cooling(name string) bool { return t.state(name).CooldownRemaining > 0 }

// Apply scales a raw vote by the component's score and applies inversion.
func (t *Tracker) Apply(name string, v Vote) (models.Label, float64, bool) {
	st := t.state(name)
	w := v.Weight * st.Score / 100
	if st.Inverted {
		return v.Label.Opposite(), w * t.cfg.InvertBoost, true
	}
	return v.Label, w, false
}

// Tick advances all cooldowns by one accepted round.
func (t *Tracker) Tick() {
	for _, st := range t.states {
		if st.CooldownRemaining == 0 {
			continue
		}
		st.CooldownRemaining--
		if st.CooldownRemaining == 0 {
			st.ConsecutiveLosses = 0
			st.Inverted = false
		}
	}
}

// Record judges a component's raw (pre-inversion) vote.
func (t *Tracker) Record(name string, correct bool) {
	st := t.state(name)
	if correct {
		st.Score = min(st.Score+t.cfg.Reward, t.cfg.MaxScore)
		st.ConsecutiveLosses = 0
		st.Inverted = false
		st.CooldownRemaining = 0
		return
	}
	st.Score = max(st.Score-t.cfg.Penalty, t.cfg.MinScore)
	st.ConsecutiveLosses++
	switch {
	case st.ConsecutiveLosses >= t.cfg.CooldownAfter:
		st.Inverted = false
		st.CooldownRemaining = t.cfg.Cooldown
		if st.CooldownRemaining == 0 {
			st.ConsecutiveLosses = 0
		}
	case st.ConsecutiveLosses == t.cfg.InvertAfter:
		st.Inverted = true
	}
}

// States returns copies of every tracked state.
func (t *Tracker) States() map[string]models.ComponentState {
	out := make(map[string]models.ComponentState, len(t.states))
	for name, st := range t.states {
		out[name] = *st
	}
	return out
}

// Names returns tracked component names in sorted order.
func (t *Tracker) Names() []string {
	names := make([]string, 0, len(t.states))
	for name := range t.states {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset returns every component to its initial state.
func (t *Tracker) Reset() { t.states = make(map[string]*models.ComponentState) }
