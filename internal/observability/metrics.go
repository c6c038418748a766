// Package observability holds the Prometheus metrics and OpenTelemetry
// tracers shared by the reconciler, history and API packages.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the reconciler. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	// Registry owns these metrics. The /metrics endpoint and the textfile
	// writer both read from it.
	Registry *prometheus.Registry

	autoMatchDuration  prometheus.Histogram
	movementsTotal     *prometheus.CounterVec
	sessionsSaved      *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	storeErrors        *prometheus.CounterVec
	historyCache       *prometheus.CounterVec
	hydrationDuration  prometheus.Histogram
	csvRows            *prometheus.CounterVec
}

// NewMetrics creates a dedicated registry and registers every metric in it.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		autoMatchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reconciler_automatch_duration_seconds",
				Help:    "Duration of auto-match passes.",
				Buckets: prometheus.DefBuckets,
			},
		),
		movementsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciler_movements_total",
				Help: "Bank movements by status after each auto-match pass.",
			},
			[]string{"status"},
		),
		sessionsSaved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciler_sessions_saved_total",
				Help: "Sessions persisted, by resulting status.",
			},
			[]string{"status"},
		),
		notificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciler_notifications_emitted_total",
				Help: "Net difference notifications, by outcome.",
			},
			[]string{"result"},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciler_store_errors_total",
				Help: "Failed store calls, by operation.",
			},
			[]string{"operation"},
		),
		historyCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciler_history_cache_total",
				Help: "Hydrated session cache lookups, by result.",
			},
			[]string{"result"},
		),
		hydrationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reconciler_hydration_duration_seconds",
				Help:    "Duration of session hydration from the store.",
				Buckets: prometheus.DefBuckets,
			},
		),
		csvRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconciler_csv_rows_total",
				Help: "Bank statement rows read, by result.",
			},
			[]string{"result"},
		),
	}
}

// RecordAutoMatch records a pass duration and the resulting status counts.
func (m *Metrics) RecordAutoMatch(d time.Duration, byStatus map[string]int) {
	if m == nil {
		return
	}
	m.autoMatchDuration.Observe(d.Seconds())
	for status, n := range byStatus {
		m.movementsTotal.WithLabelValues(status).Add(float64(n))
	}
}

// IncrSessionSaved counts a persisted session.
func (m *Metrics) IncrSessionSaved(status string) {
	if m == nil {
		return
	}
	m.sessionsSaved.WithLabelValues(status).Inc()
}

// IncrNotification counts a notification outcome: emitted, deduplicated or
// failed.
func (m *Metrics) IncrNotification(result string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(result).Inc()
}

// IncrStoreError counts a failed store operation.
func (m *Metrics) IncrStoreError(operation string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(operation).Inc()
}

// IncrCacheHit increments the history cache hit counter.
func (m *Metrics) IncrCacheHit() {
	if m == nil {
		return
	}
	m.historyCache.WithLabelValues("hit").Inc()
}

// IncrCacheMiss increments the history cache miss counter.
func (m *Metrics) IncrCacheMiss() {
	if m == nil {
		return
	}
	m.historyCache.WithLabelValues("miss").Inc()
}

// RecordHydration records the duration of a session hydration.
func (m *Metrics) RecordHydration(d time.Duration) {
	if m == nil {
		return
	}
	m.hydrationDuration.Observe(d.Seconds())
}

// RecordCSVRows counts kept and dropped statement rows.
func (m *Metrics) RecordCSVRows(kept, dropped int) {
	if m == nil {
		return
	}
	m.csvRows.WithLabelValues("kept").Add(float64(kept))
	m.csvRows.WithLabelValues("dropped").Add(float64(dropped))
}

// WriteTextfile writes the registry in the Prometheus text format, for the
// node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
