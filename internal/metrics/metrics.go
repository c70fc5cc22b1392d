package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	ConnectionState     prometheus.Gauge
	ReconnectAttempts   *prometheus.CounterVec
	InvocationsTotal    *prometheus.CounterVec
	InvocationDuration  *prometheus.HistogramVec
	EventsReceived      *prometheus.CounterVec
	HandlerPanics       *prometheus.CounterVec
	MessagesSent        *prometheus.CounterVec
	StreamFallbacks     prometheus.Counter
	RestRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics builds collectors on a private registry so several clients (and
// tests) can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		ConnectionState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chat_hub_connection_state",
			Help: "Current hub connection state (0 disconnected, 1 connecting, 2 connected, 3 reconnecting)",
		}),
		ReconnectAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_hub_reconnect_attempts_total",
			Help: "Total number of hub reconnect attempts",
		}, []string{"kind"}),
		InvocationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_hub_invocations_total",
			Help: "Total number of hub method invocations",
		}, []string{"method", "status"}),
		InvocationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chat_hub_invocation_duration_seconds",
			Help:    "Time taken for hub invocations to complete",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		EventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_hub_events_received_total",
			Help: "Total number of server-push events received",
		}, []string{"event"}),
		HandlerPanics: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_hub_handler_panics_total",
			Help: "Total number of subscriber callbacks that panicked",
		}, []string{"event"}),
		MessagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total number of messages sent, by route and outcome",
		}, []string{"route", "status"}),
		StreamFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "chat_stream_fallbacks_total",
			Help: "Total number of streaming completions that fell back to the blocking endpoint",
		}),
		RestRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chat_rest_request_duration_seconds",
			Help:    "Time taken for REST conversation service calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		registry: reg,
	}
}

// Handler exposes the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
