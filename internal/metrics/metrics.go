// Package metrics exposes stream and assembly health counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reportstream_frames_total",
		Help: "SSE frames extracted from upstream streams.",
	})

	DecodeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reportstream_frame_decode_errors_total",
		Help: "Frames whose JSON payload failed to decode and were skipped.",
	})

	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reportstream_events_total",
		Help: "Decoded events applied to drafts, by event type.",
	}, []string{"type"})

	StreamsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reportstream_streams_total",
		Help: "Upstream stream exchanges, by outcome.",
	}, []string{"outcome"})

	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reportstream_active_streams",
		Help: "Streams currently being read from upstream.",
	})

	ReportsAssembled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reportstream_reports_assembled_total",
		Help: "Reports finalized into view models.",
	})

	ChartErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reportstream_chart_errors_total",
		Help: "Charts that failed resolution and rendered as errors.",
	})
)

// Stream outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeErrored   = "errored"
	OutcomeCanceled  = "canceled"
)

// Handler serves the Prometheus exposition endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
