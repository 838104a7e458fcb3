package metrics

import (
    "sync"

    "github.com/prometheus/client_golang/prometheus"
)

var (
    once sync.Once

    SessionsOpened = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: "roundpull",
            Subsystem: "sessions",
            Name:      "opened_total",
            Help:      "Escalation sessions opened",
        },
    )

    Settlements = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "roundpull",
            Subsystem: "sessions",
            Name:      "settlements_total",
            Help:      "Session settlements by result",
        },
        []string{"result"},
    )

    SettledLevel = prometheus.NewHistogram(
        prometheus.HistogramOpts{
            Namespace: "roundpull",
            Subsystem: "sessions",
            Name:      "settled_level",
            Help:      "Level at which a session prediction was settled",
            Buckets:   prometheus.LinearBuckets(1, 1, 10),
        },
    )
)

// Register adds the session collectors to the default registry once.
func Register() {
    once.Do(func() {
        prometheus.MustRegister(SessionsOpened, Settlements, SettledLevel)
    })
}
