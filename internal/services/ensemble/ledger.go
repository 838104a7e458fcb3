package ensemble

import "RoundPull/internal/domain/models"

// Ledger is the ordered, deduplicated, capacity-bounded round history.
// It is not safe for concurrent use; the Engine serializes access.
type Ledger struct {
	capacity int
	records  []models.Round
	labels   []models.Label
	index    map[string]struct{}
}

// NewLedger creates an empty ledger holding at most capacity rounds.
func NewLedger(capacity int) *Ledger {
	if capacity < 1 {
		capacity = 1
	}
	return &Ledger{
		capacity: capacity,
		index:    make(map[string]struct{}),
	}
}

// Has reports whether a round with the canonical id key is present.
func (l *Ledger) Has(key string) bool {
	_, ok := l.index[key]
	return ok
}

// Append adds r and evicts the oldest record when over capacity.
// The evicted record, if any, is returned.
func (l *Ledger) Append(r models.Round) (models.Round, bool) {
	l.records = append(l.records, r)
	l.labels = append(l.labels, r.Label)
	l.index[r.RoundID.String()] = struct{}{}
	if len(l.records) <= l.capacity {
		return models.Round{}, false
	}
	old := l.records[0]
	l.records = l.records[1:]
	l.labels = l.labels[1:]
	delete(l.index, old.RoundID.String())
	return old, true
}

// Len returns the number of records held.
func (l *Ledger) Len() int { return len(l.records) }

// Cap returns the configured capacity.
func (l *Ledger) Cap() int { return l.capacity }

// Last returns the most recent record.
func (l *Ledger) Last() (models.Round, bool) {
	if len(l.records) == 0 {
		return models.Round{}, false
	}
	return l.records[len(l.records)-1], true
}

// Labels exposes the label sequence, oldest first. Callers must not mutate it.
func (l *Ledger) Labels() []models.Label { return l.labels }

// Records exposes the record sequence, oldest first. Callers must not mutate it.
func (l *Ledger) Records() []models.Round { return l.records }

// Copy returns a detached copy of the records.
func (l *Ledger) Copy() []models.Round {
	out := make([]models.Round, len(l.records))
	copy(out, l.records)
	return out
}

// Entries returns the persistable form of the ledger, oldest first.
func (l *Ledger) Entries() []models.LedgerEntry {
	out := make([]models.LedgerEntry, len(l.records))
	for i, r := range l.records {
		out[i] = models.LedgerEntry{RoundID: r.RoundID.String(), RawValue: r.RawValue}
	}
	return out
}

// Reset drops all records.
func (l *Ledger) Reset() {
	l.records = nil
	l.labels = nil
	l.index = make(map[string]struct{})
}
