// Package metrics holds the relay's Prometheus collectors.
//
// All methods are safe on a nil *Metrics so components can run without
// metrics in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Drop reasons for inbound frames and outbound sends.
const (
	DropMalformed      = "malformed"
	DropUnknownType    = "unknown_type"
	DropMissingField   = "missing_field"
	DropUnresolvable   = "unresolvable_target"
	DropServerOnlyType = "server_only_type"
	DropBackpressure   = "backpressure"
	DropClosed         = "closed"
)

const namespace = "quietrooms_node"

type Metrics struct {
	registry *prometheus.Registry

	framesRouted  *prometheus.CounterVec
	framesDropped *prometheus.CounterVec
	heartbeats    *prometheus.CounterVec
	connections   prometheus.Gauge
	joins         prometheus.Counter
	kicks         prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		framesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_routed_total",
			Help:      "Inbound frames accepted by the router, by type.",
		}, []string{"type"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Inbound frames or outbound sends that were dropped, by reason.",
		}, []string{"reason"}),
		heartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "Heartbeat reports sent to the control plane, by result.",
		}, []string{"result"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Currently open realtime connections.",
		}),
		joins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "joins_total",
			Help:      "Realtime connections registered into a room.",
		}),
		kicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backpressure_kicks_total",
			Help:      "Connections closed by the backpressure policy.",
		}),
	}
	m.registry.MustRegister(m.framesRouted, m.framesDropped, m.heartbeats, m.connections, m.joins, m.kicks)
	return m
}

// Handler exposes the collectors in Prometheus' text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) FrameRouted(frameType string) {
	if m == nil {
		return
	}
	m.framesRouted.WithLabelValues(frameType).Inc()
}

func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) SendsDropped(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.framesDropped.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) Heartbeat(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.heartbeats.WithLabelValues(result).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.connections.Inc()
	m.joins.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.connections.Dec()
}

func (m *Metrics) Kicked() {
	if m == nil {
		return
	}
	m.kicks.Inc()
}

// Counter readers, used by tests.

func (m *Metrics) RoutedCount(frameType string) float64 {
	return counterValue(m.framesRouted.WithLabelValues(frameType))
}

func (m *Metrics) DroppedCount(reason string) float64 {
	return counterValue(m.framesDropped.WithLabelValues(reason))
}

func (m *Metrics) HeartbeatCount(ok bool) float64 {
	result := "ok"
	if !ok {
		result = "error"
	}
	return counterValue(m.heartbeats.WithLabelValues(result))
}

func counterValue(c prometheus.Counter) float64 {
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		return 0
	}
	return pb.GetCounter().GetValue()
}
