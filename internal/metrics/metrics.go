// Package metrics holds the prometheus collectors shared by the game and
// generation code. They register on the default registry and are served by
// promhttp at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Clicks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escaperoom_clicks_total",
			Help: "Clicks registered, partitioned by outcome.",
		},
		[]string{"outcome"},
	)
	RoomsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escaperoom_rooms_started_total",
			Help: "Rooms started, partitioned by mode (classic/daily).",
		},
		[]string{"mode"},
	)
	RoomsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escaperoom_rooms_finished_total",
			Help: "Rooms finished, partitioned by result (escaped/game_over).",
		},
		[]string{"result"},
	)
	AIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "escaperoom_ai_request_duration_seconds",
			Help:    "Duration of text and image generation calls.",
			Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"provider", "kind", "model"},
	)
	AIRequestFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escaperoom_ai_request_failures_total",
			Help: "Failed generation calls, before any model fallback.",
		},
		[]string{"provider", "kind", "model"},
	)
)

// ObserveAI records one generation call.
func ObserveAI(provider, kind, model string, start time.Time, err error) {
	AIRequestDuration.WithLabelValues(provider, kind, model).Observe(time.Since(start).Seconds())
	if err != nil {
		AIRequestFailures.WithLabelValues(provider, kind, model).Inc()
	}
}
