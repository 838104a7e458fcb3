package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordRound("accepted")
	r.RecordRound("accepted")
	r.RecordRound("duplicate")
	r.RecordPrediction("High", "Ultra")
	r.RecordComponentScore("streak", 120)
	r.RecordError("feed_fetch")

	if got := testutil.ToFloat64(r.rounds.WithLabelValues("accepted")); got != 2 {
		t.Fatalf("accepted = %v", got)
	}
	if got := testutil.ToFloat64(r.componentScore.WithLabelValues("streak")); got != 120 {
		t.Fatalf("score = %v", got)
	}
	if got := testutil.ToFloat64(r.errorsTotal.WithLabelValues("feed_fetch")); got != 1 {
		t.Fatalf("errors = %v", got)
	}

	// a second recorder on its own registry must not collide
	_ = New(prometheus.NewRegistry())
}
