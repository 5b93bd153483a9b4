package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for PoolLedger.
type Metrics struct {
	// --- Engine ---
	OpsApplied     *prometheus.CounterVec
	OpsRejected    *prometheus.CounterVec
	OpDuration     *prometheus.HistogramVec
	EngineSequence prometheus.Gauge

	// --- Pool state ---
	PoolTotalDeposits prometheus.Gauge
	PoolCollectedFees prometheus.Gauge
	PoolTotalUsers    prometheus.Gauge

	// --- Gateway interactions ---
	GatewayCallDuration *prometheus.HistogramVec
	GatewayErrors       *prometheus.CounterVec

	// --- Streaming ---
	StreamDropped   prometheus.Counter
	StreamPublished *prometheus.CounterVec
	StreamErrors    prometheus.Counter

	// --- Persistence ---
	PersistRecordsWritten prometheus.Counter
	PersistBatchSize      prometheus.Histogram
	PersistBatchDur       prometheus.Histogram
	PersistErrors         *prometheus.CounterVec
	PersistRetry          prometheus.Counter
	PersistLastSequence   prometheus.Gauge

	// --- Snapshot & replay ---
	SnapshotTaken      prometheus.Counter
	SnapshotDuration   prometheus.Histogram
	SnapshotLastSeq    prometheus.Gauge
	ReplayRecordsTotal prometheus.Counter

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000005, 0.00001, 0.000025, 0.00005, 0.0001,
		0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01, 0.05,
	}

	gatewayBuckets := []float64{
		0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0,
	}

	return &Metrics{
		OpsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_ops_applied_total",
			Help: "Operations successfully applied",
		}, []string{"op"}),

		OpsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_ops_rejected_total",
			Help: "Operations rejected (validation, precondition, reentrancy)",
		}, []string{"op", "reason"}),

		OpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pool_op_duration_seconds",
			Help:    "Time to apply a single operation end to end",
			Buckets: gatewayBuckets,
		}, []string{"op"}),

		EngineSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pool_engine_sequence",
			Help: "Next record sequence the engine will assign",
		}),

		PoolTotalDeposits: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pool_total_deposits",
			Help: "Sum of all depositor claims",
		}),

		PoolCollectedFees: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pool_collected_fees",
			Help: "Retained withdrawal fees not yet swept",
		}),

		PoolTotalUsers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pool_total_users",
			Help: "Accounts that have ever deposited",
		}),

		GatewayCallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pool_gateway_call_duration_seconds",
			Help:    "Asset gateway call latency",
			Buckets: gatewayBuckets,
		}, []string{"call"}),

		GatewayErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_gateway_errors_total",
			Help: "Asset gateway call failures",
		}, []string{"call"}),

		StreamDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pool_stream_dropped_total",
			Help: "Records dropped due to full stream channel",
		}),

		StreamPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_stream_published_total",
			Help: "Records published to JetStream",
		}, []string{"record_type"}),

		StreamErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pool_stream_errors_total",
			Help: "JetStream publish failures (non-fatal)",
		}),

		PersistRecordsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pool_persist_records_written_total",
			Help: "Records written to Postgres",
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pool_persist_batch_size",
			Help:    "Records per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pool_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pool_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pool_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		SnapshotTaken: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pool_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "pool_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
		}),

		SnapshotLastSeq: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "pool_snapshot_last_sequence",
			Help: "Sequence of last snapshot",
		}),

		ReplayRecordsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "pool_replay_records_total",
			Help: "Records replayed on startup",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "pool_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pool_query_duration_seconds",
			Help:    "Query latency",
			Buckets: latencyBuckets,
		}, []string{"endpoint"}),
	}
}
