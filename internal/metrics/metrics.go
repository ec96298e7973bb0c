package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the monitor's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	FramesRead       prometheus.Counter
	ReadErrors       prometheus.Counter
	Reconnects       prometheus.Counter
	Samples          prometheus.Counter
	SampleErrors     prometheus.Counter
	EventsCreated    prometheus.Counter
	EventsClosed     prometheus.Counter
	EvidenceOutcomes *prometheus.CounterVec
	Heartbeats       prometheus.Counter
	ConsecutiveErrs  prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FramesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_frames_read_total",
			Help: "Frames successfully read from the video stream",
		}),
		ReadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_stream_read_errors_total",
			Help: "Failed frame reads",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_stream_reconnects_total",
			Help: "Stream reconnection attempts",
		}),
		Samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_samples_total",
			Help: "Detection samples taken by the event engine",
		}),
		SampleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_sample_errors_total",
			Help: "Samples that failed in the detector or backend",
		}),
		EventsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_events_created_total",
			Help: "Events opened at the backend",
		}),
		EventsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_events_closed_total",
			Help: "Events closed by the debounce state machine",
		}),
		EvidenceOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_evidence_tasks_total",
			Help: "Evidence pipeline tasks by final outcome",
		}, []string{"outcome"}),
		Heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_heartbeats_total",
			Help: "Heartbeat messages sent to the backend",
		}),
		ConsecutiveErrs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_stream_consecutive_errors",
			Help: "Current consecutive stream read errors",
		}),
	}

	m.registry.MustRegister(
		m.FramesRead, m.ReadErrors, m.Reconnects,
		m.Samples, m.SampleErrors,
		m.EventsCreated, m.EventsClosed,
		m.EvidenceOutcomes, m.Heartbeats, m.ConsecutiveErrs,
	)
	return m
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
