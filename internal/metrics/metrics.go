// Package metrics holds the Prometheus collectors for chat turns, engine loads
// and HTTP sessions.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "genai_chat"

var (
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "turns_total",
		Help:      "Chat turns processed, by prompt dialect and outcome",
	}, []string{"dialect", "outcome"})

	TokensGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_generated_total",
		Help:      "Tokens streamed back from the inference backend",
	}, []string{"backend"})

	GenerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "generation_duration_seconds",
		Help:      "Wall time of one Generate call",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"backend"})

	TokensPerSecond = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "tokens_per_second",
		Help:      "Generation throughput per turn",
		Buckets:   []float64{1, 2, 5, 10, 20, 40, 80, 160},
	})

	EngineLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "engine_loads_total",
		Help:      "Engine load attempts, by backend and outcome",
	}, []string{"backend", "outcome"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "active_sessions",
		Help:      "Chat sessions currently held by the HTTP server",
	})

	SessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "sessions_closed_total",
		Help:      "Chat sessions released, by reason",
	}, []string{"reason"})
)

// Outcome labels.
const (
	OutcomeOK        = "ok"
	OutcomeStopped   = "stopped"
	OutcomeCancelled = "cancelled"
	OutcomeError     = "error"
)

// Outcome classifies the result of a turn or load.
func Outcome(err error, stopped bool) string {
	switch {
	case err == nil && stopped:
		return OutcomeStopped
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	default:
		return OutcomeError
	}
}

// ObserveTurn records one finished chat turn.
func ObserveTurn(dialect, backend string, tokens int, took time.Duration, stopped bool, err error) {
	TurnsTotal.WithLabelValues(dialect, Outcome(err, stopped)).Inc()
	if tokens > 0 {
		TokensGenerated.WithLabelValues(backend).Add(float64(tokens))
	}
	if err == nil {
		GenerationDuration.WithLabelValues(backend).Observe(took.Seconds())
		if took > 0 && tokens > 0 {
			TokensPerSecond.Observe(float64(tokens) / took.Seconds())
		}
	}
}

func ObserveLoad(backend string, err error) {
	EngineLoads.WithLabelValues(backend, Outcome(err, false)).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
