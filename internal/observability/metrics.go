package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for Omnily.
// Uses a custom registry — no global state.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// Wallet metrics.
	WalletTransactionsTotal   *prometheus.CounterVec
	WalletTransactionAmount   *prometheus.CounterVec
	WalletTransactionDuration *prometheus.HistogramVec
	WalletRejectionsTotal     *prometheus.CounterVec

	// Permission metrics.
	PermissionChecksTotal *prometheus.CounterVec

	// Stats cache metrics.
	StatsCacheTotal *prometheus.CounterVec

	// Scheduler metrics.
	SchedulerRunsTotal *prometheus.CounterVec

	// HTTP gateway metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// System metrics.
	ActiveRequests prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		WalletTransactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "omnily",
			Subsystem: "wallet",
			Name:      "transactions_total",
			Help:      "Total wallet transactions applied.",
		}, []string{"type", "status"}),

		WalletTransactionAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "omnily",
			Subsystem: "wallet",
			Name:      "transaction_amount_total",
			Help:      "Total amount moved through wallets, by transaction type.",
		}, []string{"type", "direction"}),

		WalletTransactionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "omnily",
			Subsystem: "wallet",
			Name:      "transaction_duration_seconds",
			Help:      "Wallet mutation duration including the row lock wait.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"type"}),

		WalletRejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "omnily",
			Subsystem: "wallet",
			Name:      "rejections_total",
			Help:      "Wallet mutations rejected before any write.",
		}, []string{"reason"}),

		PermissionChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "omnily",
			Subsystem: "permissions",
			Name:      "checks_total",
			Help:      "Total permission checks performed.",
		}, []string{"key", "result"}),

		StatsCacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "omnily",
			Subsystem: "cache",
			Name:      "stats_lookups_total",
			Help:      "Wallet stats cache lookups.",
		}, []string{"result"}),

		SchedulerRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "omnily",
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Scheduled job runs.",
		}, []string{"job", "status"}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "omnily",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "omnily",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "omnily",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),
	}

	// Register all collectors.
	reg.MustRegister(
		m.WalletTransactionsTotal,
		m.WalletTransactionAmount,
		m.WalletTransactionDuration,
		m.WalletRejectionsTotal,
		m.PermissionChecksTotal,
		m.StatsCacheTotal,
		m.SchedulerRunsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveRequests,
	)

	return m
}

// RecordPermissionCheck records one permission check outcome.
func (m *MetricsCollector) RecordPermissionCheck(key string, allowed bool) {
	if m == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	m.PermissionChecksTotal.WithLabelValues(key, result).Inc()
}

// RecordStatsCache records a stats cache hit or miss.
func (m *MetricsCollector) RecordStatsCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.StatsCacheTotal.WithLabelValues(result).Inc()
}

// RecordSchedulerRun records one scheduled job execution.
func (m *MetricsCollector) RecordSchedulerRun(job string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.SchedulerRunsTotal.WithLabelValues(job, status).Inc()
}
