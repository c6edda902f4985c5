// Package observability provides optional Prometheus/OpenTelemetry
// instrumentation for a session.Engine. Nothing in btp/session depends on
// this package; a caller opts in by passing a Metrics as the engine's
// Recorder or by wrapping an Engine in TracedEngine, the way
// lcalzada-xor-wmap's internal/telemetry package is wired into its own
// request handlers, not hardcoded into business logic. The demo CLI does
// neither.
package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a session.Recorder backed by Prometheus collectors: counters
// for frames sent/received/dropped, a gauge for window usage.
type Metrics struct {
	FramesSent     *prometheus.CounterVec
	FramesReceived *prometheus.CounterVec
	FramesDropped  *prometheus.CounterVec
	WindowGauge    prometheus.Gauge

	once sync.Once
}

// NewMetrics constructs the collector set under the "btp" namespace.
func NewMetrics() *Metrics {
	return &Metrics{
		FramesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "btp", Name: "frames_sent_total", Help: "Total BTP frames written to the transport"},
			[]string{"kind"},
		),
		FramesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "btp", Name: "frames_received_total", Help: "Total BTP frames accepted from the transport"},
			[]string{"kind"},
		),
		FramesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: "btp", Name: "frames_dropped_total", Help: "Total inbound frames rejected before delivery"},
			[]string{"reason"},
		),
		WindowGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: "btp", Name: "window_in_flight", Help: "Unacked outbound frames currently in flight"},
		),
	}
}

// Register adds the collector set to reg. Idempotent: a second call is a
// no-op, matching the teacher's "register once, ignore duplicate errors"
// idiom.
func (m *Metrics) Register(reg prometheus.Registerer) {
	m.once.Do(func() {
		reg.MustRegister(m.FramesSent, m.FramesReceived, m.FramesDropped, m.WindowGauge)
	})
}

func (m *Metrics) FrameSent(kind string)     { m.FramesSent.WithLabelValues(kind).Inc() }
func (m *Metrics) FrameReceived(kind string) { m.FramesReceived.WithLabelValues(kind).Inc() }
func (m *Metrics) FrameDropped(reason string) {
	m.FramesDropped.WithLabelValues(reason).Inc()
}
func (m *Metrics) WindowInFlight(n int) { m.WindowGauge.Set(float64(n)) }
