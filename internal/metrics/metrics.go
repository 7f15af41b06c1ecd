// Package metrics provides Prometheus metrics for the transit store.
package metrics

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StatsSource reports the pool statistics of a store handle. ok is false
// while the store has no open handle.
type StatsSource func() (stats sql.DBStats, ok bool)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Registry is the Prometheus registry for this metrics instance
	Registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Resource metrics
	QueriesTotal       *prometheus.CounterVec
	QueryDuration      *prometheus.HistogramVec
	MutationsTotal     *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec

	// Schema store metrics
	StoreOpensTotal     *prometheus.CounterVec
	StoreDriftTotal     *prometheus.CounterVec
	StoreReopenFailures *prometheus.CounterVec

	// Database pool metrics, labelled by family
	DBConnectionsOpen  *prometheus.GaugeVec
	DBConnectionsInUse *prometheus.GaugeVec
	DBConnectionsIdle  *prometheus.GaugeVec

	logger *slog.Logger

	// collectorStarted prevents spawning multiple collector goroutines
	collectorStarted atomic.Bool
	cancel           context.CancelFunc
	wg               sync.WaitGroup
}

// New creates and registers all application metrics with a new registry.
func New() *Metrics {
	return NewWithLogger(nil)
}

// NewWithLogger creates metrics with a logger for error reporting.
func NewWithLogger(logger *slog.Logger) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transitstore_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transitstore_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transitstore_queries_total",
			Help: "Resource queries by family, tag and outcome",
		}, []string{"family", "tag", "result"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transitstore_query_duration_seconds",
			Help:    "Time spent planning and executing resource queries",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"family"}),
		MutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transitstore_mutations_total",
			Help: "Insert, delete and update calls by family and outcome",
		}, []string{"family", "operation", "result"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transitstore_notifications_total",
			Help: "Change notifications published per authority",
		}, []string{"authority"}),
		StoreOpensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transitstore_store_opens_total",
			Help: "Store handle opens by family and lifecycle step (current, create, upgrade, reset)",
		}, []string{"family", "kind"}),
		StoreDriftTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transitstore_store_drift_total",
			Help: "Times the on-disk store changed underneath a cached handle",
		}, []string{"family"}),
		StoreReopenFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transitstore_store_reopen_failures_total",
			Help: "Failed reopen attempts that fell back to the cached handle",
		}, []string{"family"}),
		DBConnectionsOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transitstore_db_connections_open",
			Help: "Number of open database connections",
		}, []string{"family"}),
		DBConnectionsInUse: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transitstore_db_connections_in_use",
			Help: "Number of database connections currently in use",
		}, []string{"family"}),
		DBConnectionsIdle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "transitstore_db_connections_idle",
			Help: "Number of idle database connections",
		}, []string{"family"}),
		logger: logger,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.QueriesTotal,
		m.QueryDuration,
		m.MutationsTotal,
		m.NotificationsTotal,
		m.StoreOpensTotal,
		m.StoreDriftTotal,
		m.StoreReopenFailures,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
		m.DBConnectionsIdle,
	)

	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveQuery records one resource query. Safe on a nil receiver.
func (m *Metrics) ObserveQuery(family, tag string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(family, tag, result(err)).Inc()
	m.QueryDuration.WithLabelValues(family).Observe(d.Seconds())
}

// ObserveMutation records one insert, delete or update. Safe on a nil receiver.
func (m *Metrics) ObserveMutation(family, operation string, err error) {
	if m == nil {
		return
	}
	m.MutationsTotal.WithLabelValues(family, operation, result(err)).Inc()
}

// ObserveNotification records a published change. Safe on a nil receiver.
func (m *Metrics) ObserveNotification(authority string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(authority).Inc()
}

// ObserveStoreOpen records a lifecycle step of a store handle. Safe on a nil receiver.
func (m *Metrics) ObserveStoreOpen(family, kind string) {
	if m == nil {
		return
	}
	m.StoreOpensTotal.WithLabelValues(family, kind).Inc()
}

// ObserveDrift records a detected on-disk change. Safe on a nil receiver.
func (m *Metrics) ObserveDrift(family string, reopenErr error) {
	if m == nil {
		return
	}
	m.StoreDriftTotal.WithLabelValues(family).Inc()
	if reopenErr != nil {
		m.StoreReopenFailures.WithLabelValues(family).Inc()
	}
}

// StartDBStatsCollector starts a goroutine that periodically copies the pool
// statistics of every source into the DB gauges. It is idempotent; call
// Shutdown to stop it.
func (m *Metrics) StartDBStatsCollector(sources map[string]StatsSource, interval time.Duration) {
	if len(sources) == 0 {
		return
	}

	if !m.collectorStarted.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Add to WaitGroup BEFORE exposing cancel to avoid race with Shutdown
	m.wg.Add(1)
	m.cancel = cancel

	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				if m.logger != nil {
					m.logger.Error("panic in DB stats collector", "error", r)
				}
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.collect(sources)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Metrics) collect(sources map[string]StatsSource) {
	for family, source := range sources {
		stats, ok := source()
		if !ok {
			continue
		}
		m.DBConnectionsOpen.WithLabelValues(family).Set(float64(stats.OpenConnections))
		m.DBConnectionsInUse.WithLabelValues(family).Set(float64(stats.InUse))
		m.DBConnectionsIdle.WithLabelValues(family).Set(float64(stats.Idle))
	}
}

// Shutdown stops the DB stats collector goroutine and waits for it to exit.
// This method is safe to call multiple times.
func (m *Metrics) Shutdown() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
