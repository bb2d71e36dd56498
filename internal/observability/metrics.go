// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Snapshot metrics
	SnapshotRunsTotal  *prometheus.CounterVec
	SnapshotDuration   prometheus.Histogram
	SnapshotsTruncated prometheus.Counter
	PagesFetched       prometheus.Counter
	PageErrors         prometheus.Counter
	HoldersAccumulated prometheus.Counter

	// Row store metrics
	StoreCallsTotal   *prometheus.CounterVec
	StoreRetriesTotal *prometheus.CounterVec
	StoreErrorsTotal  *prometheus.CounterVec
	StoreCacheHits    prometheus.Counter
	StoreCacheMisses  prometheus.Counter

	// Registry metrics
	WalletOpsTotal  *prometheus.CounterVec
	BindingsCreated prometheus.Counter

	// Gateway metrics
	InteractionsTotal *prometheus.CounterVec
	GatewayReconnects prometheus.Counter

	// Health metrics
	LastSuccessfulSnapshot prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "holdersnap"
	}

	return &Metrics{
		// Snapshot metrics
		SnapshotRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "runs_total",
			Help:      "Total number of snapshot runs by status",
		}, []string{"status"}),
		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "duration_seconds",
			Help:      "Snapshot run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		SnapshotsTruncated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "truncated_total",
			Help:      "Total number of snapshot runs that stopped early",
		}),
		PagesFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "pages_fetched_total",
			Help:      "Total number of holder pages consumed",
		}),
		PageErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "page_errors_total",
			Help:      "Total number of failed page fetch attempts",
		}),
		HoldersAccumulated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "holders_accumulated_total",
			Help:      "Total number of holder records accumulated",
		}),

		// Row store metrics
		StoreCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "calls_total",
			Help:      "Total number of row store operations by type",
		}, []string{"operation"}),
		StoreRetriesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "retries_total",
			Help:      "Total number of row store retry attempts by operation",
		}, []string{"operation"}),
		StoreErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "errors_total",
			Help:      "Total number of failed row store operations",
		}, []string{"operation"}),
		StoreCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "cache_hits_total",
			Help:      "Total number of scope reads served from cache",
		}),
		StoreCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "cache_misses_total",
			Help:      "Total number of scope reads that hit the backend",
		}),

		// Registry metrics
		WalletOpsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "wallet_ops_total",
			Help:      "Total number of wallet registry actions by action and outcome",
		}, []string{"action", "outcome"}),
		BindingsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "bindings_created_total",
			Help:      "Total number of scope bindings created",
		}),

		// Gateway metrics
		InteractionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "interactions_total",
			Help:      "Total number of interactions received by kind",
		}, []string{"kind"}),
		GatewayReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "reconnects_total",
			Help:      "Total number of gateway reconnect attempts",
		}),

		// Health metrics
		LastSuccessfulSnapshot: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_snapshot_timestamp",
			Help:      "Unix timestamp of the last successful snapshot run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSnapshotRun records a completed snapshot run.
func RecordSnapshotRun(status string, durationSeconds float64) {
	DefaultMetrics.SnapshotRunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.SnapshotDuration.Observe(durationSeconds)
}

// RecordSnapshotTruncated increments the truncated runs counter.
func RecordSnapshotTruncated() {
	DefaultMetrics.SnapshotsTruncated.Inc()
}

// RecordPageFetched increments the consumed pages counter.
func RecordPageFetched() {
	DefaultMetrics.PagesFetched.Inc()
}

// RecordPageError increments the failed page attempts counter.
func RecordPageError() {
	DefaultMetrics.PageErrors.Inc()
}

// RecordHoldersAccumulated adds n to the accumulated holders counter.
func RecordHoldersAccumulated(n int) {
	DefaultMetrics.HoldersAccumulated.Add(float64(n))
}

// RecordStoreCall increments the store operations counter.
func RecordStoreCall(operation string) {
	DefaultMetrics.StoreCallsTotal.WithLabelValues(operation).Inc()
}

// RecordStoreRetry increments the store retries counter.
func RecordStoreRetry(operation string) {
	DefaultMetrics.StoreRetriesTotal.WithLabelValues(operation).Inc()
}

// RecordStoreError increments the store errors counter.
func RecordStoreError(operation string) {
	DefaultMetrics.StoreErrorsTotal.WithLabelValues(operation).Inc()
}

// RecordStoreCacheHit increments the cache hit counter.
func RecordStoreCacheHit() {
	DefaultMetrics.StoreCacheHits.Inc()
}

// RecordStoreCacheMiss increments the cache miss counter.
func RecordStoreCacheMiss() {
	DefaultMetrics.StoreCacheMisses.Inc()
}

// RecordWalletOp records a wallet registry action outcome.
func RecordWalletOp(action, outcome string) {
	DefaultMetrics.WalletOpsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordBindingCreated increments the bindings created counter.
func RecordBindingCreated() {
	DefaultMetrics.BindingsCreated.Inc()
}

// RecordInteraction increments the interactions counter.
func RecordInteraction(kind string) {
	DefaultMetrics.InteractionsTotal.WithLabelValues(kind).Inc()
}

// RecordGatewayReconnect increments the gateway reconnects counter.
func RecordGatewayReconnect() {
	DefaultMetrics.GatewayReconnects.Inc()
}

// MarkSnapshotSuccess sets the last successful snapshot timestamp.
func MarkSnapshotSuccess(unixSeconds float64) {
	DefaultMetrics.LastSuccessfulSnapshot.Set(unixSeconds)
}
