package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "community"

// Refresh outcomes
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds the service collectors. A nil *Metrics is a valid no-op.
type Metrics struct {
	gatherer prometheus.Gatherer

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	directoryRefresh *prometheus.CounterVec
	directoryLatency prometheus.Histogram
	directoryEntries prometheus.Gauge
	verseCycleResets prometheus.Counter
	bulkItems        *prometheus.CounterVec
	roleChanges      prometheus.Counter
}

// New creates the collectors and registers them with reg
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		directoryRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directory_refresh_total",
			Help:      "User directory rebuilds by outcome.",
		}, []string{"result"}),
		directoryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "directory_refresh_duration_seconds",
			Help:      "Time spent rebuilding the user directory.",
			Buckets:   prometheus.DefBuckets,
		}),
		directoryEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "directory_entries",
			Help:      "Rows in the last published user directory.",
		}),
		verseCycleResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verse_cycle_resets_total",
			Help:      "Verse histories cleared after a user saw every verse.",
		}),
		bulkItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_items_total",
			Help:      "Items processed by bulk invitation and creation.",
		}, []string{"operation", "status"}),
		roleChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "role_changes_total",
			Help:      "Role transitions recorded.",
		}),
	}

	reg.MustRegister(
		m.httpRequests, m.httpDuration,
		m.directoryRefresh, m.directoryLatency, m.directoryEntries,
		m.verseCycleResets, m.bulkItems, m.roleChanges,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveRequest records one HTTP request
func (m *Metrics) ObserveRequest(method, path, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// ObserveDirectoryRefresh records one rebuild attempt
func (m *Metrics) ObserveDirectoryRefresh(entries int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.directoryLatency.Observe(elapsed.Seconds())
	if err != nil {
		m.directoryRefresh.WithLabelValues(ResultFailure).Inc()
		return
	}
	m.directoryRefresh.WithLabelValues(ResultSuccess).Inc()
	m.directoryEntries.Set(float64(entries))
}

// VerseCycleReset counts a cleared verse history
func (m *Metrics) VerseCycleReset() {
	if m == nil {
		return
	}
	m.verseCycleResets.Inc()
}

// BulkItem counts one processed item of a bulk operation
func (m *Metrics) BulkItem(operation, status string) {
	if m == nil {
		return
	}
	m.bulkItems.WithLabelValues(operation, status).Inc()
}

// RoleChanged counts one recorded role transition
func (m *Metrics) RoleChanged() {
	if m == nil {
		return
	}
	m.roleChanges.Inc()
}
