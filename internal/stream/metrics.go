package stream

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects stream session counters. A nil *Metrics records nothing.
type Metrics struct {
	active   *prometheus.GaugeVec
	frames   *prometheus.CounterVec
	failures *prometheus.CounterVec
}

// NewMetrics creates and registers the stream collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "quillpress",
			Subsystem: "stream",
			Name:      "sessions_active",
			Help:      "Number of open event stream sessions.",
		}, []string{"stream"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quillpress",
			Subsystem: "stream",
			Name:      "frames_total",
			Help:      "Frames written to clients, by frame kind.",
		}, []string{"stream", "frame"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quillpress",
			Subsystem: "stream",
			Name:      "snapshot_failures_total",
			Help:      "Snapshot computations that returned an error.",
		}, []string{"stream"}),
	}
	reg.MustRegister(m.active, m.frames, m.failures)
	return m
}

func (m *Metrics) sessionOpened(stream string) {
	if m != nil {
		m.active.WithLabelValues(stream).Inc()
	}
}

func (m *Metrics) sessionClosed(stream string) {
	if m != nil {
		m.active.WithLabelValues(stream).Dec()
	}
}

func (m *Metrics) frame(stream, kind string) {
	if m != nil {
		m.frames.WithLabelValues(stream, kind).Inc()
	}
}

func (m *Metrics) failure(stream string) {
	if m != nil {
		m.failures.WithLabelValues(stream).Inc()
	}
}
