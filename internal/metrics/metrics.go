package metrics

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "journalmate"

// Delivery legs reported by DeliveryFailures.
const (
	LegInApp = "in_app"
	LegLive  = "live"
	LegPush  = "push"
)

// Metrics holds Prometheus metrics for the notification scheduler. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Scheduled        *prometheus.CounterVec
	Cancelled        prometheus.Counter
	Dispatched       *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	DeliveryFailures *prometheus.CounterVec
	DBConnPoolStats  *prometheus.GaugeVec
}

// NewMetrics registers the scheduler metrics with reg. Passing nil uses
// the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Scheduled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "notifications_scheduled_total",
				Help:      "Total number of notifications scheduled",
			},
			[]string{"source_type"},
		),
		Cancelled: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "notifications_cancelled_total",
				Help:      "Total number of pending notifications cancelled",
			},
		),
		Dispatched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatcher",
				Name:      "notifications_total",
				Help:      "Due notifications handled by the dispatcher, by outcome",
			},
			[]string{"outcome"},
		),
		CycleDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "dispatcher",
				Name:      "cycle_duration_seconds",
				Help:      "Duration of a dispatch cycle in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		DeliveryFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "delivery",
				Name:      "failures_total",
				Help:      "Delivery failures by leg",
			},
			[]string{"leg"},
		),
		DBConnPoolStats: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connection_pool",
				Help:      "Database connection pool statistics",
			},
			[]string{"stat"},
		),
	}
}

// IncScheduled counts n newly scheduled rows for a source type.
func (m *Metrics) IncScheduled(sourceType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Scheduled.WithLabelValues(sourceType).Add(float64(n))
}

// IncCancelled counts n cancelled rows.
func (m *Metrics) IncCancelled(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Cancelled.Add(float64(n))
}

// IncDispatched counts one dispatcher outcome (sent, failed, deferred, skipped).
func (m *Metrics) IncDispatched(outcome string) {
	if m == nil {
		return
	}
	m.Dispatched.WithLabelValues(outcome).Inc()
}

// ObserveCycle records how long a dispatch cycle took.
func (m *Metrics) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.CycleDuration.Observe(d.Seconds())
}

// IncDeliveryFailure counts a failed delivery leg.
func (m *Metrics) IncDeliveryFailure(leg string) {
	if m == nil {
		return
	}
	m.DeliveryFailures.WithLabelValues(leg).Inc()
}

// RecordDBPoolStats records database connection pool statistics
func (m *Metrics) RecordDBPoolStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnPoolStats.WithLabelValues("open").Set(float64(stats.OpenConnections))
	m.DBConnPoolStats.WithLabelValues("in_use").Set(float64(stats.InUse))
	m.DBConnPoolStats.WithLabelValues("idle").Set(float64(stats.Idle))
	m.DBConnPoolStats.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
	m.DBConnPoolStats.WithLabelValues("wait_duration_ms").Set(float64(stats.WaitDuration.Milliseconds()))
}
