package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"RoundPull/internal/domain/models"
	drepo "RoundPull/internal/domain/repository"
	applogger "RoundPull/pkg/logger"
)

// KafkaRoundsHandler archives round events from the rounds topic into storage.
type KafkaRoundsHandler struct {
	topic   string
	store   drepo.Storage
	metrics drepo.Metrics
	l       *applogger.Logger
}

func NewKafkaRoundsHandler(topic string, store drepo.Storage, metrics drepo.Metrics, l *applogger.Logger) *KafkaRoundsHandler {
	if l == nil {
		l = applogger.NewNop()
	}
	return &KafkaRoundsHandler{topic: topic, store: store, metrics: metrics, l: l}
}

func (h *KafkaRoundsHandler) Topic() string { return h.topic }

func (h *KafkaRoundsHandler) Handle(ctx context.Context, data []byte) error {
	var r models.Round
	if err := json.Unmarshal(data, &r); err != nil {
		h.metrics.RecordError("kafka_decode_round")
		return fmt.Errorf("decode round: %w", err)
	}
	if r.RawValue < 0 || r.RawValue > 9 {
		h.metrics.RecordError("kafka_decode_round")
		return fmt.Errorf("round %s: raw value %d out of range", r.RoundID, r.RawValue)
	}
	// derived fields are recomputed so a producer cannot archive an inconsistent label
	r.Label = models.LabelOf(r.RawValue)
	r.AuxLabel = models.AuxLabelOf(r.RawValue)

	if err := h.store.StoreRound(ctx, &r); err != nil {
		h.metrics.RecordError("archive_round")
		return fmt.Errorf("archive round %s: %w", r.RoundID, err)
	}
	h.metrics.RecordMessageSent(BackendClickHouse, "round")
	return nil
}

// KafkaPredictionsHandler archives prediction events into storage.
type KafkaPredictionsHandler struct {
	topic   string
	store   drepo.Storage
	metrics drepo.Metrics
}

func NewKafkaPredictionsHandler(topic string, store drepo.Storage, metrics drepo.Metrics) *KafkaPredictionsHandler {
	return &KafkaPredictionsHandler{topic: topic, store: store, metrics: metrics}
}

func (h *KafkaPredictionsHandler) Topic() string { return h.topic }

func (h *KafkaPredictionsHandler) Handle(ctx context.Context, data []byte) error {
	var p models.Prediction
	if err := json.Unmarshal(data, &p); err != nil {
		h.metrics.RecordError("kafka_decode_prediction")
		return fmt.Errorf("decode prediction: %w", err)
	}
	if !p.Label.Valid() {
		h.metrics.RecordError("kafka_decode_prediction")
		return fmt.Errorf("prediction %s: invalid label %q", p.RoundID, p.Label)
	}
	if err := h.store.StorePrediction(ctx, &p); err != nil {
		h.metrics.RecordError("archive_prediction")
		return fmt.Errorf("archive prediction %s: %w", p.RoundID, err)
	}
	h.metrics.RecordMessageSent(BackendClickHouse, "prediction")
	return nil
}
