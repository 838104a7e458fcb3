package usecase

import (
	"context"
	"errors"
	"testing"
)

func TestKafkaRoundsHandlerArchives(t *testing.T) {
	store := &fakeStorage{}
	m := newFakeMetrics()
	h := NewKafkaRoundsHandler("rounds", store, m, nil)
	if h.Topic() != "rounds" {
		t.Fatalf("topic = %s", h.Topic())
	}

	// label in the payload is wrong on purpose; it is recomputed from raw
	msg := []byte(`{"round_id":"20250101100010001","raw_value":6,"label":"Low"}`)
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(store.rounds) != 1 {
		t.Fatalf("stored %d rounds", len(store.rounds))
	}
	r := store.rounds[0]
	if r.RoundID.String() != "20250101100010001" || r.Label != "High" || r.AuxLabel != "Red" {
		t.Fatalf("stored = %+v", r)
	}
}

func TestKafkaRoundsHandlerRejects(t *testing.T) {
	store := &fakeStorage{}
	h := NewKafkaRoundsHandler("rounds", store, newFakeMetrics(), nil)
	for _, msg := range []string{`not json`, `{"round_id":"x1","raw_value":1}`, `{"round_id":"1","raw_value":12}`} {
		if err := h.Handle(context.Background(), []byte(msg)); err == nil {
			t.Fatalf("expected error for %s", msg)
		}
	}

	store.err = errors.New("clickhouse down")
	if err := h.Handle(context.Background(), []byte(`{"round_id":"1","raw_value":1}`)); !errors.Is(err, store.err) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestKafkaPredictionsHandler(t *testing.T) {
	store := &fakeStorage{}
	h := NewKafkaPredictionsHandler("predictions", store, newFakeMetrics())
	if err := h.Handle(context.Background(), []byte(`{"round_id":"9","label":"Low","confidence_score":61}`)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(store.predictions) != 1 || store.predictions[0].ConfidenceScore != 61 {
		t.Fatalf("stored = %+v", store.predictions)
	}
	if err := h.Handle(context.Background(), []byte(`{"round_id":"9","label":"Up"}`)); err == nil {
		t.Fatalf("expected invalid label error")
	}
}
