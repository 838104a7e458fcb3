package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "roundpull"

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	rounds         *prometheus.CounterVec
	predictions    *prometheus.CounterVec
	componentScore *prometheus.GaugeVec
	messagesSent   *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
}

// New creates a recorder registered on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		rounds: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rounds_total",
				Help:      "Rounds offered to the engine by result (accepted, duplicate)",
			},
			[]string{"result"},
		),
		predictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "predictions_total",
				Help:      "Predictions emitted by label and confidence bucket",
			},
			[]string{"label", "confidence"},
		),
		componentScore: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "component_score",
				Help:      "Reliability score of each ensemble component",
			},
			[]string{"component"},
		),
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_sent_total",
				Help:      "Messages written to a backend by kind",
			},
			[]string{"backend", "kind"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordRound counts a round offered to the engine.
func (r *Recorder) RecordRound(result string) {
	r.rounds.WithLabelValues(result).Inc()
}

// RecordPrediction counts an emitted prediction.
func (r *Recorder) RecordPrediction(label, confidence string) {
	r.predictions.WithLabelValues(label, confidence).Inc()
}

// RecordComponentScore sets the current reliability score of a component.
func (r *Recorder) RecordComponentScore(component string, score float64) {
	r.componentScore.WithLabelValues(component).Set(score)
}

// RecordMessageSent records a message sent to a backend.
func (r *Recorder) RecordMessageSent(backend, kind string) {
	r.messagesSent.WithLabelValues(backend, kind).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
