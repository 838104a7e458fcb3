package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Label is the binary classification of a round's raw value.
type Label string

const (
	High Label = "High"
	Low  Label = "Low"
)

// Opposite returns the other label.
func (l Label) Opposite() Label {
	if l == High {
		return Low
	}
	return High
}

// Valid reports whether l is High or Low.
func (l Label) Valid() bool { return l == High || l == Low }

// AuxLabel is the parity-derived secondary label.
type AuxLabel string

const (
	ColorRed   AuxLabel = "Red"   // even raw values
	ColorGreen AuxLabel = "Green" // odd raw values
)

// LabelOf maps a raw value (0-9) to its label. 5 and above is High.
func LabelOf(raw int) Label {
	if raw >= 5 {
		return High
	}
	return Low
}

// AuxLabelOf maps a raw value to its parity color.
func AuxLabelOf(raw int) AuxLabel {
	if raw%2 == 0 {
		return ColorRed
	}
	return ColorGreen
}

// RoundID is an arbitrary-precision, non-negative round identifier.
// Feed identifiers overflow float64 and int64, so ordering and arithmetic go through decimal.
type RoundID struct {
	d decimal.Decimal
}

// ParseRoundID parses a base-10 digit string. Leading zeros are allowed and dropped.
func ParseRoundID(s string) (RoundID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return RoundID{}, fmt.Errorf("round id empty")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return RoundID{}, fmt.Errorf("round id %q: not a decimal integer", s)
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return RoundID{}, fmt.Errorf("round id %q: %w", s, err)
	}
	return RoundID{d: d}, nil
}

// MustRoundID is ParseRoundID for constants and tests.
func MustRoundID(s string) RoundID {
	id, err := ParseRoundID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the canonical decimal form, used as the dedupe key.
func (r RoundID) String() string { return r.d.String() }

// Cmp returns -1, 0 or 1.
func (r RoundID) Cmp(o RoundID) int { return r.d.Cmp(o.d) }

// After reports whether r is numerically greater than o.
func (r RoundID) After(o RoundID) bool { return r.d.GreaterThan(o.d) }

// Next returns r+1.
func (r RoundID) Next() RoundID { return RoundID{d: r.d.Add(decimal.NewFromInt(1))} }

// Mod returns r mod n for small positive n.
func (r RoundID) Mod(n int64) int64 {
	return r.d.Mod(decimal.NewFromInt(n)).IntPart()
}

// DigitSum returns the sum of the decimal digits.
func (r RoundID) DigitSum() int {
	sum := 0
	for _, c := range r.String() {
		sum += int(c - '0')
	}
	return sum
}

// Decimal exposes the underlying value.
func (r RoundID) Decimal() decimal.Decimal { return r.d }

func (r RoundID) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *RoundID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// tolerate bare numbers from older ledgers
		s = string(b)
	}
	id, err := ParseRoundID(s)
	if err != nil {
		return err
	}
	*r = id
	return nil
}

// Round is one accepted outcome record. Immutable once appended.
type Round struct {
	RoundID      RoundID       `json:"round_id"`
	RawValue     int           `json:"raw_value"`
	Label        Label         `json:"label"`
	AuxLabel     AuxLabel      `json:"aux_label"`
	CaptureTime  time.Time     `json:"capture_time"`
	InterArrival time.Duration `json:"inter_arrival"`
}

// LedgerEntry is the persisted form of a round.
type LedgerEntry struct {
	RoundID  string `json:"round_id"`
	RawValue int    `json:"raw_value"`
}
