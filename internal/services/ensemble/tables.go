package ensemble

import (
	"strings"

	"RoundPull/internal/domain/models"
)

const (
	MinPatternLen = 3
	MaxPatternLen = 7
)

// Cell counts what followed one n-gram.
type Cell struct {
	High int `json:"high"`
	Low  int `json:"low"`
}

// Total returns the number of observations.
func (c Cell) Total() int { return c.High + c.Low }

// Majority returns the strictly larger side and its rate.
func (c Cell) Majority() (models.Label, float64, bool) {
	total := c.Total()
	switch {
	case total == 0 || c.High == c.Low:
		return "", 0, false
	case c.High > c.Low:
		return models.High, float64(c.High) / float64(total), true
	default:
		return models.Low, float64(c.Low) / float64(total), true
	}
}

func (c *Cell) add(l models.Label) {
	if l == models.High {
		c.High++
	} else {
		c.Low++
	}
}

// PatternBank holds one n-gram table per length, indexed by length-MinPatternLen.
type PatternBank struct {
	tables [MaxPatternLen - MinPatternLen + 1]map[string]*Cell
}

func NewPatternBank() *PatternBank {
	b := &PatternBank{}
	b.Reset()
	return b
}

// Reset clears every table.
func (b *PatternBank) Reset() {
	for i := range b.tables {
		b.tables[i] = make(map[string]*Cell)
	}
}

// Observe records that next followed the history. history excludes next.
func (b *PatternBank) Observe(history []models.Label, next models.Label) {
	for k := MinPatternLen; k <= MaxPatternLen; k++ {
		if len(history) < k {
			return
		}
		key := patternKey(history[len(history)-k:])
		t := b.tables[k-MinPatternLen]
		c, ok := t[key]
		if !ok {
			c = &Cell{}
			t[key] = c
		}
		c.add(next)
	}
}

// Lookup returns the cell for the given n-gram.
func (b *PatternBank) Lookup(gram []models.Label) (Cell, bool) {
	k := len(gram)
	if k < MinPatternLen || k > MaxPatternLen {
		return Cell{}, false
	}
	c, ok := b.tables[k-MinPatternLen][patternKey(gram)]
	if !ok {
		return Cell{}, false
	}
	return *c, true
}

// Table returns a copy of the table for length k.
func (b *PatternBank) Table(k int) map[string]Cell {
	if k < MinPatternLen || k > MaxPatternLen {
		return nil
	}
	src := b.tables[k-MinPatternLen]
	out := make(map[string]Cell, len(src))
	for key, c := range src {
		out[key] = *c
	}
	return out
}

func patternKey(gram []models.Label) string {
	var sb strings.Builder
	sb.Grow(len(gram))
	for _, l := range gram {
		if l == models.High {
			sb.WriteByte('H')
		} else {
			sb.WriteByte('L')
		}
	}
	return sb.String()
}

// TransitionMatrix counts order-1 label transitions. Index 0 is Low, 1 is High.
type TransitionMatrix struct {
	counts [2][2]int
}

func labelIndex(l models.Label) int {
	if l == models.High {
		return 1
	}
	return 0
}

// Observe records a prev -> curr transition.
func (m *TransitionMatrix) Observe(prev, curr models.Label) {
	m.counts[labelIndex(prev)][labelIndex(curr)]++
}

// Count returns the number of from -> to transitions.
func (m *TransitionMatrix) Count(from, to models.Label) int {
	return m.counts[labelIndex(from)][labelIndex(to)]
}

// Total returns the number of transitions recorded.
func (m *TransitionMatrix) Total() int {
	return m.counts[0][0] + m.counts[0][1] + m.counts[1][0] + m.counts[1][1]
}

// Prob returns P(to | from), or 0 when from was never seen.
func (m *TransitionMatrix) Prob(from, to models.Label) float64 {
	row := m.counts[labelIndex(from)]
	n := row[0] + row[1]
	if n == 0 {
		return 0
	}
	return float64(row[labelIndex(to)]) / float64(n)
}

// Counts returns the raw matrix.
func (m *TransitionMatrix) Counts() [2][2]int { return m.counts }

// Reset zeroes all counters.
func (m *TransitionMatrix) Reset() { m.counts = [2][2]int{} }
