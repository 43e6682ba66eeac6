package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"accountsd/channel"
)

// Metrics owns the service's prometheus registry. Each App gets its own so
// tests can build several apps without duplicate registration panics.
type Metrics struct {
	Registry     *prometheus.Registry
	HTTPRequests *prometheus.CounterVec
	Directives   *prometheus.CounterVec
	ChannelSends *prometheus.CounterVec
}

// NewMetrics registers every collector.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accountsd_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
		Directives: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accountsd_broker_directives_total",
				Help: "Total number of broker hook results, labeled by broker, hook and endpoint.",
			},
			[]string{"broker", "hook", "endpoint"},
		),
		ChannelSends: channel.NewSendCounter(),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.Directives,
		m.ChannelSends,
	)
	return m
}

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
