// Package metrics exposes filter activity as Prometheus collectors on a
// private registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haukened/rr-filter/internal/filter/domain"
)

const namespace = "rrfilter"

// Metrics holds all Prometheus metrics for the filter.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	connectionsTotal *prometheus.CounterVec
	activeConns      prometheus.Gauge
	blocklistEntries prometheus.Gauge
	cachedLeaves     prometheus.Gauge
	blockLogErrors   prometheus.Counter
	blockLogDropped  prometheus.Counter
	sysProxyErrors   *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a Metrics instance with all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Requests filtered, by action.",
		}, []string{"action"}),

		connectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "CONNECT targets classified, by intercept mode.",
		}, []string{"mode"}),

		activeConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Open client connections to the proxy.",
		}),

		blocklistEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "blocklist_entries",
			Help:      "Distinct entries in the loaded blocklist.",
		}),

		cachedLeaves: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cert_cache_size",
			Help:      "Leaf certificates held for intercepted hosts.",
		}),

		blockLogErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocklog_errors_total",
			Help:      "Failed writes to the blocked URL log.",
		}),

		blockLogDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocklog_dropped_total",
			Help:      "Blocked URLs not logged because the queue was full or closed.",
		}),

		sysProxyErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sysproxy_errors_total",
			Help:      "Failures changing the OS proxy settings, by operation.",
		}, []string{"op"}),

		registry: reg,
	}

	reg.MustRegister(
		m.requestsTotal,
		m.connectionsTotal,
		m.activeConns,
		m.blocklistEntries,
		m.cachedLeaves,
		m.blockLogErrors,
		m.blockLogDropped,
		m.sysProxyErrors,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RequestFiltered(action domain.FilterAction) {
	m.requestsTotal.WithLabelValues(action.String()).Inc()
}

func (m *Metrics) ConnectionClassified(mode domain.InterceptMode) {
	m.connectionsTotal.WithLabelValues(mode.String()).Inc()
}

func (m *Metrics) ConnectionOpened() { m.activeConns.Inc() }
func (m *Metrics) ConnectionClosed() { m.activeConns.Dec() }

func (m *Metrics) BlockLogWriteFailed() { m.blockLogErrors.Inc() }
func (m *Metrics) BlockLogDropped()     { m.blockLogDropped.Inc() }

// SysProxyError records a failed Set or Reset of the OS proxy settings.
func (m *Metrics) SysProxyError(op string) {
	m.sysProxyErrors.WithLabelValues(op).Inc()
}

// SetBlocklistEntries sets the blocklist size gauge.
func (m *Metrics) SetBlocklistEntries(n int) {
	m.blocklistEntries.Set(float64(n))
}

// SetCertCacheSize sets the leaf certificate cache gauge.
func (m *Metrics) SetCertCacheSize(n int) {
	m.cachedLeaves.Set(float64(n))
}
