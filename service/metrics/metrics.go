// Package metrics holds the gateway's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kitchen_gateway"

type Metrics struct {
	connections   *prometheus.GaugeVec
	handshakes    *prometheus.CounterVec
	dispatches    *prometheus.CounterVec
	deliveries    *prometheus.CounterVec
	evictions     prometheus.Counter
	inboundFrames *prometheus.CounterVec
	subscribes    *prometheus.CounterVec
	ingress       *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Live connections by variant and device class.",
		}, []string{"variant", "device"}),
		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshakes_total",
			Help:      "Connection attempts by outcome.",
		}, []string{"variant", "result"}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Dispatch calls by target kind.",
		}, []string{"target"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Per-connection deliveries by outcome.",
		}, []string{"result"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "liveness_evictions_total",
			Help:      "Connections evicted for not answering heartbeats.",
		}),
		inboundFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_frames_total",
			Help:      "Client frames by type.",
		}, []string{"type"}),
		subscribes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscribe_total",
			Help:      "Subscribe requests by outcome.",
		}, []string{"result"}),
		ingress: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingress_envelopes_total",
			Help:      "Dispatch envelopes received by source and outcome.",
		}, []string{"source", "result"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.connections, m.handshakes, m.dispatches, m.deliveries,
			m.evictions, m.inboundFrames, m.subscribes, m.ingress,
		)
	}
	return m
}

// NewRegistry returns a registry preloaded with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func (m *Metrics) ConnectionOpened(variant, device string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(variant, device).Inc()
}

func (m *Metrics) ConnectionClosed(variant, device string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(variant, device).Dec()
}

func (m *Metrics) Handshake(variant, result string) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(variant, result).Inc()
}

func (m *Metrics) Dispatched(target string, delivered, dropped int) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(target).Inc()
	m.deliveries.WithLabelValues("delivered").Add(float64(delivered))
	m.deliveries.WithLabelValues("dropped").Add(float64(dropped))
}

func (m *Metrics) Evicted() {
	if m == nil {
		return
	}
	m.evictions.Inc()
}

func (m *Metrics) InboundFrame(frameType string) {
	if m == nil {
		return
	}
	m.inboundFrames.WithLabelValues(frameType).Inc()
}

func (m *Metrics) Subscribe(result string) {
	if m == nil {
		return
	}
	m.subscribes.WithLabelValues(result).Inc()
}

func (m *Metrics) Ingress(source, result string) {
	if m == nil {
		return
	}
	m.ingress.WithLabelValues(source, result).Inc()
}
