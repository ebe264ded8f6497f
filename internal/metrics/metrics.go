package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/muurk/easyfire/internal/protocol"
	"github.com/muurk/easyfire/internal/runner"
	"github.com/muurk/easyfire/internal/sensor"
)

const namespace = "easyfire"

// NewRegistry creates a Prometheus registry with the Go and process collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler returns the exposition handler for reg
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// ProtocolMetrics counts read loop outcomes. It implements runner.Observer.
type ProtocolMetrics struct {
	FramesTotal          *prometheus.CounterVec // labels: kind, result=ok|checksum|decode
	DesyncsTotal         *prometheus.CounterVec // labels: state
	TransportErrorsTotal prometheus.Counter
	LastFrameTimestamp   *prometheus.GaugeVec // labels: kind
	FrameCounter         *prometheus.GaugeVec // labels: kind
}

var _ runner.Observer = (*ProtocolMetrics)(nil)

// NewProtocolMetrics registers and returns the protocol counters
func NewProtocolMetrics(reg prometheus.Registerer) *ProtocolMetrics {
	m := &ProtocolMetrics{
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames read from the controller by kind and result.",
		}, []string{"kind", "result"}),
		DesyncsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "desyncs_total",
			Help:      "Partial frames discarded by the reader, by reader state.",
		}, []string{"state"}),
		TransportErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transport_errors_total",
			Help:      "Byte source failures.",
		}),
		LastFrameTimestamp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_frame_timestamp_seconds",
			Help:      "Unix time of the last decoded frame by kind.",
		}, []string{"kind"}),
		FrameCounter: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "frame_counter",
			Help:      "Sequence counter byte of the last decoded frame by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.FramesTotal, m.DesyncsTotal, m.TransportErrorsTotal, m.LastFrameTimestamp, m.FrameCounter)
	return m
}

// FrameDecoded implements runner.Observer
func (m *ProtocolMetrics) FrameDecoded(frame *protocol.Frame, _ *protocol.Reading, snap *sensor.Snapshot) {
	kind := frame.Kind.String()
	m.FramesTotal.WithLabelValues(kind, "ok").Inc()
	m.FrameCounter.WithLabelValues(kind).Set(float64(frame.Counter))
	m.LastFrameTimestamp.WithLabelValues(kind).Set(float64(snap.Taken.UnixNano()) / 1e9)
}

// FrameRejected implements runner.Observer
func (m *ProtocolMetrics) FrameRejected(frame *protocol.Frame, err error) {
	result := "decode"
	if errors.Is(err, protocol.ErrChecksumMismatch) {
		result = "checksum"
	}
	m.FramesTotal.WithLabelValues(frame.Kind.String(), result).Inc()
}

// Desync implements runner.Observer
func (m *ProtocolMetrics) Desync(err *protocol.ProtocolError) {
	m.DesyncsTotal.WithLabelValues(err.State).Inc()
}

// TransportFailed implements runner.Observer
func (m *ProtocolMetrics) TransportFailed(error) {
	m.TransportErrorsTotal.Inc()
}
