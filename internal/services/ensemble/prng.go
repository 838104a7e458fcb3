package ensemble

import (
	"fmt"
	"time"

	"RoundPull/internal/domain/models"
)

// prngInput is what a candidate formula may look at for one round.
type prngInput struct {
	id   models.RoundID
	prev int
	at   time.Time
}

type formula struct {
	name string
	fn   func(in prngInput) int
}

// candidateFormulas is the fixed hypothesis set. Every formula yields a digit 0-9.
var candidateFormulas = []formula{
	{"id-mod", func(in prngInput) int { return int(in.id.Mod(10)) }},
	{"id-plus-prev", func(in prngInput) int { return int((in.id.Mod(10) + int64(in.prev)) % 10) }},
	{"id-prev-mix", func(in prngInput) int { return int((7*in.id.Mod(10) + 3*int64(in.prev)) % 10) }},
	{"clock", func(in prngInput) int { return int(in.at.Unix() % 10) }},
	{"digit-sum", func(in prngInput) int { return in.id.DigitSum() % 10 }},
	{"prev-lcg", func(in prngInput) int { return (3*in.prev + 7) % 10 }},
}

// PRNGComponent backtests the candidate formulas after each round and votes the locked one.
type PRNGComponent struct {
	cfg    PRNGConfig
	locked *formula
	hits   int
}

func NewPRNGComponent(cfg PRNGConfig) *PRNGComponent { return &PRNGComponent{cfg: cfg} }

func (c *PRNGComponent) Name() string { return NamePRNG }

// Observe recalibrates against the trailing window. The previous lock never survives a round.
func (c *PRNGComponent) Observe(s *Snapshot) {
	c.locked, c.hits = nil, 0
	n := len(s.Records)
	if c.cfg.Window < 1 || n < c.cfg.Window+1 {
		return
	}
	bestHits := -1
	var best *formula
	for i := range candidateFormulas {
		f := &candidateFormulas[i]
		hits := 0
		for j := n - c.cfg.Window; j < n; j++ {
			in := prngInput{id: s.Records[j].RoundID, prev: s.Records[j-1].RawValue, at: s.Records[j].CaptureTime}
			if models.LabelOf(f.fn(in)) == s.Records[j].Label {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = f, hits
		}
	}
	if best != nil && float64(bestHits)/float64(c.cfg.Window) >= c.cfg.Threshold-1e-9 {
		c.locked, c.hits = best, bestHits
	}
}

func (c *PRNGComponent) Vote(s *Snapshot) (Vote, bool) {
	if c.locked == nil || len(s.Records) == 0 {
		return Vote{}, false
	}
	last := s.Last()
	in := prngInput{id: s.Next, prev: last.RawValue, at: last.CaptureTime.Add(last.InterArrival)}
	label := models.LabelOf(c.locked.fn(in))
	return Vote{
		Label:  label,
		Weight: c.cfg.Weight,
		Tag:    fmt.Sprintf("prng:%s:%d/%d", c.locked.name, c.hits, c.cfg.Window),
	}, true
}

// Locked returns the name of the locked formula, if any.
func (c *PRNGComponent) Locked() (string, bool) {
	if c.locked == nil {
		return "", false
	}
	return c.locked.name, true
}

func (c *PRNGComponent) Reset() { c.locked, c.hits = nil, 0 }
