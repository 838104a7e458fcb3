package ensemble

import (
	"math"
	"math/rand"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"RoundPull/internal/domain/models"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(cfg Config, opts ...Option) *Engine {
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithRand(rand.New(rand.NewSource(1))),
	}
	return NewEngine(cfg, append(base, opts...)...)
}

// feed adds raws with consecutive ids starting at start and returns the next id.
func feed(t *testing.T, e *Engine, start int, raws ...int) int {
	t.Helper()
	for i, r := range raws {
		id := strconv.Itoa(start + i)
		if !e.AddResult(id, r, time.Time{}) {
			t.Fatalf("AddResult(%s, %d) rejected", id, r)
		}
	}
	return start + len(raws)
}

type fixedComponent struct {
	name   string
	label  models.Label
	weight float64
}

func (c fixedComponent) Name() string { return c.name }

func (c fixedComponent) Vote(*Snapshot) (Vote, bool) {
	return Vote{Label: c.label, Weight: c.weight, Tag: c.name}, true
}

func hasTag(p models.Prediction, prefix string) bool {
	for _, r := range p.Reasoning {
		if strings.HasPrefix(r, prefix) {
			return true
		}
	}
	return false
}

func TestAddResultIdempotent(t *testing.T) {
	e := newTestEngine(DefaultConfig())
	feed(t, e, 1000, 1, 7, 3, 8, 8, 2, 6, 0, 9, 4, 5, 5, 1, 2, 7)

	before := e.Len()
	tables := make([]map[string]Cell, 0)
	for k := MinPatternLen; k <= MaxPatternLen; k++ {
		tables = append(tables, e.PatternTable(k))
	}
	trans := e.Transitions()

	if e.AddResult("1003", 9, time.Time{}) {
		t.Fatalf("duplicate round accepted")
	}
	if e.AddResult("0001003", 9, time.Time{}) {
		t.Fatalf("duplicate with leading zeros accepted")
	}
	if e.Len() != before {
		t.Fatalf("len changed: %d -> %d", before, e.Len())
	}
	for i, k := 0, MinPatternLen; k <= MaxPatternLen; i, k = i+1, k+1 {
		if !reflect.DeepEqual(tables[i], e.PatternTable(k)) {
			t.Fatalf("pattern table K=%d changed", k)
		}
	}
	if trans != e.Transitions() {
		t.Fatalf("transitions changed")
	}
}

func TestAddResultRejectsMalformed(t *testing.T) {
	e := newTestEngine(DefaultConfig())
	cases := []struct {
		id  string
		raw int
	}{
		{"", 1},
		{"12a", 1},
		{"-5", 1},
		{"1.5", 1},
		{"77", 10},
		{"78", -1},
	}
	for _, c := range cases {
		if e.AddResult(c.id, c.raw, time.Time{}) {
			t.Fatalf("AddResult(%q, %d) accepted", c.id, c.raw)
		}
	}
	if e.Len() != 0 {
		t.Fatalf("ledger mutated: %d", e.Len())
	}
}

func TestDerivedFields(t *testing.T) {
	e := newTestEngine(DefaultConfig())
	t0 := fixedNow
	e.AddResult("1", 4, t0)
	e.AddResult("2", 5, t0.Add(30*time.Second))
	h := e.History()
	if h[0].Label != models.Low || h[0].AuxLabel != models.ColorRed || h[0].InterArrival != 0 {
		t.Fatalf("unexpected first record %+v", h[0])
	}
	if h[1].Label != models.High || h[1].AuxLabel != models.ColorGreen {
		t.Fatalf("unexpected second record %+v", h[1])
	}
	if h[1].InterArrival != 30*time.Second {
		t.Fatalf("inter arrival = %v", h[1].InterArrival)
	}
}

func TestCalibratingBelowMinHistory(t *testing.T) {
	e := newTestEngine(DefaultConfig())
	feed(t, e, 1, 1, 2, 3)
	p := e.PredictNext(1)
	if !p.Calibrating || len(p.Reasoning) != 1 || p.Reasoning[0] != "calibrating" {
		t.Fatalf("expected calibrating result, got %+v", p)
	}
	if p.ConfidenceScore != 50 {
		t.Fatalf("placeholder confidence = %d", p.ConfidenceScore)
	}
	if !p.Label.Valid() {
		t.Fatalf("invalid label %q", p.Label)
	}
	if _, ok := e.Pending(p.RoundID); ok {
		t.Fatalf("calibrating result must not leave a pending record")
	}
}

func TestDragonRunRidesStreak(t *testing.T) {
	e := newTestEngine(DefaultConfig())
	// neutral seed L,H,L,L then six highs
	feed(t, e, 500, 2, 7, 3, 1, 5, 6, 7, 8, 9, 7)

	p := e.PredictNext(1)
	if p.Label != models.High {
		t.Fatalf("label = %s, want High (%+v)", p.Label, p)
	}
	if !hasTag(p, "dragon:") {
		t.Fatalf("missing dragon tag: %v", p.Reasoning)
	}
	if p.ConfidenceScore < 70 {
		t.Fatalf("confidence %d below High bucket", p.ConfidenceScore)
	}
	if p.ConfidenceLabel != models.ConfidenceUltra && p.ConfidenceLabel != models.ConfidenceHigh {
		t.Fatalf("confidence label = %s", p.ConfidenceLabel)
	}
	if p.RoundID != "510" {
		t.Fatalf("round id = %s", p.RoundID)
	}
}

func TestZigzagPredictsAlternation(t *testing.T) {
	e := newTestEngine(DefaultConfig())
	feed(t, e, 1, 2, 7, 2, 7, 2, 7, 2, 7, 2, 7)

	p := e.PredictNext(1)
	if !hasTag(p, "zigzag") {
		t.Fatalf("missing zigzag tag: %v", p.Reasoning)
	}
	if p.Label != models.Low {
		t.Fatalf("label = %s, want Low after High", p.Label)
	}
}

func TestDoubleZigzagContinuesBlock(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinHistory = 8
	e := newTestEngine(cfg, WithComponents(NewPeriodicityComponent(cfg.Periodicity)))
	feed(t, e, 1, 7, 7, 2, 2, 7, 7, 2, 2)

	p := e.PredictNext(1)
	v, ok := p.ComponentVotes[NamePeriodicity]
	if !ok || v.Tag != "double-zigzag" {
		t.Fatalf("expected double-zigzag vote, got %+v", p.ComponentVotes)
	}
	if v.Label != models.Low {
		t.Fatalf("vote = %s, want Low", v.Label)
	}
}

func TestUnreliableComponentInvertsThenCools(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinHistory = 1
	e := newTestEngine(cfg, WithComponents(fixedComponent{name: NameMarkov, label: models.High, weight: 25}))

	next := feed(t, e, 1, 2)
	for i := 0; i < 2; i++ {
		e.PredictNext(1)
		next = feed(t, e, next, 1)
	}
	st := e.ComponentStates()[NameMarkov]
	if !st.Inverted || st.ConsecutiveLosses != 2 || st.CooldownRemaining != 0 {
		t.Fatalf("after two losses: %+v", st)
	}

	p := e.PredictNext(1)
	v := p.ComponentVotes[NameMarkov]
	if !v.Inverted || v.Label != models.Low {
		t.Fatalf("inverted vote expected, got %+v", v)
	}
	if want := 25 * 0.70 * 1.2; math.Abs(v.Weight-want) > 1e-9 {
		t.Fatalf("weight = %v, want %v", v.Weight, want)
	}
	if !hasTag(p, "inverted:markov") {
		t.Fatalf("missing inverted tag: %v", p.Reasoning)
	}

	// third loss is judged on the raw High vote
	next = feed(t, e, next, 0)
	st = e.ComponentStates()[NameMarkov]
	if st.Inverted || st.CooldownRemaining != 5 {
		t.Fatalf("after third loss: %+v", st)
	}
	if st.Score != 55 {
		t.Fatalf("score = %v, want 55", st.Score)
	}

	for i := 0; i < 5; i++ {
		p := e.PredictNext(1)
		if _, ok := p.ComponentVotes[NameMarkov]; ok {
			t.Fatalf("cooling component voted on round %d", i)
		}
		if !hasTag(p, "cooldown:markov") {
			t.Fatalf("missing cooldown tag: %v", p.Reasoning)
		}
		next = feed(t, e, next, 0)
	}

	st = e.ComponentStates()[NameMarkov]
	if st.CooldownRemaining != 0 || st.ConsecutiveLosses != 0 || st.Inverted {
		t.Fatalf("expected active state, got %+v", st)
	}
	p = e.PredictNext(1)
	if v, ok := p.ComponentVotes[NameMarkov]; !ok || v.Inverted {
		t.Fatalf("expected plain vote after cooldown, got %+v", p.ComponentVotes)
	}
}

func TestCorrectVoteClearsLosses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinHistory = 1
	e := newTestEngine(cfg, WithComponents(fixedComponent{name: "fixed", label: models.High, weight: 10}))

	next := feed(t, e, 1, 2)
	for i := 0; i < 2; i++ {
		e.PredictNext(1)
		next = feed(t, e, next, 1)
	}
	if !e.ComponentStates()["fixed"].Inverted {
		t.Fatalf("expected inverted")
	}
	e.PredictNext(1)
	feed(t, e, next, 8)
	st := e.ComponentStates()["fixed"]
	if st.Inverted || st.ConsecutiveLosses != 0 || st.Score != 80 {
		t.Fatalf("unexpected state %+v", st)
	}
}

func TestPredictNextDeterministic(t *testing.T) {
	e := newTestEngine(DefaultConfig())
	r := rand.New(rand.NewSource(42))
	next := 10
	for i := 0; i < 60; i++ {
		next = feed(t, e, next, r.Intn(10))
	}
	a := e.PredictNext(2)
	b := e.PredictNext(2)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("predictions differ:\n%+v\n%+v", a, b)
	}
}

func TestBoundedEviction(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Capacity = 5
	e := newTestEngine(cfg)
	for i := 1; i <= 12; i++ {
		feed(t, e, i, i%10)
		if e.Len() > 5 {
			t.Fatalf("ledger length %d exceeds capacity", e.Len())
		}
	}
	h := e.History()
	if h[0].RoundID.String() != "8" || h[len(h)-1].RoundID.String() != "12" {
		t.Fatalf("unexpected window %s..%s", h[0].RoundID, h[len(h)-1].RoundID)
	}
}

func TestComponentBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PRNG.Enabled = true
	e := newTestEngine(cfg)
	r := rand.New(rand.NewSource(7))
	next := 1
	for i := 0; i < 400; i++ {
		e.PredictNext(1)
		next = feed(t, e, next, r.Intn(10))
		for name, st := range e.ComponentStates() {
			if st.Score < 50 || st.Score > 200 {
				t.Fatalf("%s score %v out of bounds", name, st.Score)
			}
			if st.CooldownRemaining < 0 {
				t.Fatalf("%s cooldown negative", name)
			}
		}
	}
}

func TestReplayReproducesTables(t *testing.T) {
	e := newTestEngine(DefaultConfig())
	r := rand.New(rand.NewSource(3))
	next := 20240101000
	for i := 0; i < 80; i++ {
		next = feed(t, e, next, r.Intn(10))
	}
	entries := e.Entries()
	want := make([]map[string]Cell, 0)
	for k := MinPatternLen; k <= MaxPatternLen; k++ {
		want = append(want, e.PatternTable(k))
	}
	wantTrans := e.Transitions()

	e.ClearHistory()
	if e.Len() != 0 || e.Transitions() != ([2][2]int{}) {
		t.Fatalf("clear left state behind")
	}
	for _, en := range entries {
		if !e.AddResult(en.RoundID, en.RawValue, time.Time{}) {
			t.Fatalf("replay rejected %s", en.RoundID)
		}
	}
	for i, k := 0, MinPatternLen; k <= MaxPatternLen; i, k = i+1, k+1 {
		if !reflect.DeepEqual(want[i], e.PatternTable(k)) {
			t.Fatalf("pattern table K=%d differs after replay", k)
		}
	}
	if wantTrans != e.Transitions() {
		t.Fatalf("transitions differ after replay")
	}
}

func TestTieBreakIsContrarian(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinHistory = 1
	e := newTestEngine(cfg, WithComponents(
		fixedComponent{name: "a", label: models.High, weight: 20},
		fixedComponent{name: "b", label: models.Low, weight: 18},
	))
	feed(t, e, 1, 7)

	p := e.PredictNext(1)
	if p.Label != models.Low {
		t.Fatalf("label = %s, want opposite of last High", p.Label)
	}
	if !hasTag(p, "tie-break") {
		t.Fatalf("missing tie-break tag: %v", p.Reasoning)
	}
	if p.ConfidenceScore != 53 {
		t.Fatalf("confidence = %d", p.ConfidenceScore)
	}
	if p.ConfidenceLabel != models.ConfidenceLow {
		t.Fatalf("bucket = %s", p.ConfidenceLabel)
	}
	if p.SkipRecommended {
		t.Fatalf("no-skip mode must never recommend skipping")
	}
}

func TestSkipRecommendedWhenSkipAllowed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinHistory = 1
	cfg.NoSkip = false
	e := newTestEngine(cfg, WithComponents(
		fixedComponent{name: "a", label: models.High, weight: 20},
		fixedComponent{name: "b", label: models.Low, weight: 18},
	))
	feed(t, e, 1, 7)
	if p := e.PredictNext(1); !p.SkipRecommended {
		t.Fatalf("expected skip at confidence %d", p.ConfidenceScore)
	}
}

func TestNoVotesConfidence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinHistory = 1
	e := newTestEngine(cfg, WithComponents())
	feed(t, e, 1, 3)
	p := e.PredictNext(5)
	if p.ConfidenceScore != 55 {
		t.Fatalf("confidence = %d, want 55", p.ConfidenceScore)
	}
	if p.Label != models.High {
		t.Fatalf("empty ensemble should fall back to contrarian High, got %s", p.Label)
	}
	if p.Level != 5 || !hasTag(p, "level:5") {
		t.Fatalf("level not echoed: %+v", p)
	}
}

func TestPendingConsumedOnce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinHistory = 1
	e := newTestEngine(cfg, WithComponents(fixedComponent{name: "x", label: models.High, weight: 10}))
	next := feed(t, e, 1, 7)
	p := e.PredictNext(1)
	e.PredictNext(1)
	if _, ok := e.Pending(p.RoundID); !ok {
		t.Fatalf("pending record missing")
	}
	feed(t, e, next, 8)
	if _, ok := e.Pending(p.RoundID); ok {
		t.Fatalf("pending record not consumed")
	}
	if st := e.ComponentStates()["x"]; st.Score != 110 {
		t.Fatalf("score = %v, want a single reward", st.Score)
	}
}

func TestPRNGLocksOnFormulaFeed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PRNG.Enabled = true
	e := newTestEngine(cfg)
	for id := 100; id < 120; id++ {
		feed(t, e, id, id%10)
	}
	p := e.PredictNext(1)
	v, ok := p.ComponentVotes[NamePRNG]
	if !ok {
		t.Fatalf("prng did not vote: %v", p.Reasoning)
	}
	if v.Label != models.Low || v.Weight != 60 {
		t.Fatalf("prng vote = %+v, want Low/60 for round 120", v)
	}
	if !strings.HasPrefix(v.Tag, "prng:id-mod") {
		t.Fatalf("tag = %s", v.Tag)
	}
}
