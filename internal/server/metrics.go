package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the coordinator's Prometheus instruments on a private
// registry, so each Server (and each test) has its own.
type Metrics struct {
	registry *prometheus.Registry

	heartbeats        prometheus.Counter
	commandsEnqueued  *prometheus.CounterVec
	commandsDelivered prometheus.Counter
	loginFailures     prometheus.Counter
	loginLockouts     prometheus.Counter
	proxyRequests     *prometheus.CounterVec
}

// NewMetrics registers every instrument. Node gauges read the registry at
// scrape time.
func NewMetrics(nodes *Registry) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		heartbeats: factory.NewCounter(prometheus.CounterOpts{
			Name: "ghost_heartbeats_total",
			Help: "Heartbeats accepted from nodes.",
		}),
		commandsEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ghost_commands_enqueued_total",
			Help: "Commands queued for nodes, by action.",
		}, []string{"action"}),
		commandsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "ghost_commands_delivered_total",
			Help: "Commands handed to nodes in heartbeat responses.",
		}),
		loginFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ghost_login_failures_total",
			Help: "Failed dashboard logins.",
		}),
		loginLockouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "ghost_login_lockouts_total",
			Help: "Source IPs locked out of the dashboard login.",
		}),
		proxyRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ghost_proxy_requests_total",
			Help: "Dashboard requests forwarded to nodes, by outcome.",
		}, []string{"outcome"}),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "ghost_nodes",
		Help:        "Known nodes by liveness.",
		ConstLabels: prometheus.Labels{"state": "online"},
	}, func() float64 {
		online, _ := nodes.Counts()
		return float64(online)
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "ghost_nodes",
		Help:        "Known nodes by liveness.",
		ConstLabels: prometheus.Labels{"state": "offline"},
	}, func() float64 {
		_, offline := nodes.Counts()
		return float64(offline)
	})

	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
