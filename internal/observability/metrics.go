package observability

import (
	"math/big"

	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the vault daemon.
type Metrics struct {
	// --- Vault core ---
	CommandsApplied  *prometheus.CounterVec
	CommandsRejected *prometheus.CounterVec
	CommandDuration  *prometheus.HistogramVec
	EventsEmitted    *prometheus.CounterVec
	Sequence         prometheus.Gauge

	// --- Vault state ---
	CachedTotalAssets prometheus.Gauge
	TotalSupply       prometheus.Gauge
	StrategyAllocated *prometheus.GaugeVec
	FeeSharesMinted   *prometheus.CounterVec
	LatestEpochID     prometheus.Gauge
	ReservedAssets    prometheus.Gauge

	// --- Latency ---
	IngestToApply       *prometheus.HistogramVec
	NATSPullLatency     *prometheus.HistogramVec
	PersistBatchDur     prometheus.Histogram
	ProjectionUpdateDur *prometheus.HistogramVec

	// --- Channel & Backpressure ---
	ChannelSize         *prometheus.GaugeVec
	ChannelCapacity     *prometheus.GaugeVec
	ChannelUtilization  *prometheus.GaugeVec
	ProjectionDrops     prometheus.Counter
	PublishDrops        prometheus.Counter
	PersistBackpressure prometheus.Counter

	// --- Outbound ---
	EventsPublished *prometheus.CounterVec
	PublishErrors   prometheus.Counter

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupTier2Errors      prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistBatchSize     prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistRetry         prometheus.Counter
	PersistLastSequence  prometheus.Gauge

	// --- Snapshot ---
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotSizeBytes prometheus.Gauge
	SnapshotLastSeq   prometheus.Gauge
	ReplayEventsTotal prometheus.Counter

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith registers all metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	latencyBuckets := []float64{
		0.00001, 0.000025, 0.00005, 0.0001, 0.00025,
		0.0005, 0.001, 0.002, 0.005, 0.01, 0.05, 0.1,
	}

	dbBuckets := []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25}

	return &Metrics{
		CommandsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_commands_applied_total",
			Help: "Commands successfully applied by the vault",
		}, []string{"command"}),

		CommandsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_commands_rejected_total",
			Help: "Commands rejected (duplicate, validation, adapter failure)",
		}, []string{"command", "reason"}),

		CommandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_command_duration_seconds",
			Help:    "Time to apply a single command",
			Buckets: latencyBuckets,
		}, []string{"command"}),

		EventsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_events_emitted_total",
			Help: "Events emitted by the vault",
		}, []string{"event_type"}),

		Sequence: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vault_sequence",
			Help: "Last assigned event sequence",
		}),

		CachedTotalAssets: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vault_cached_total_assets",
			Help: "Last reconciled total assets (asset base units)",
		}),

		TotalSupply: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vault_total_supply",
			Help: "Shares outstanding",
		}),

		StrategyAllocated: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vault_strategy_allocated",
			Help: "Recorded allocation per strategy",
		}, []string{"strategy"}),

		FeeSharesMinted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_fee_shares_minted_total",
			Help: "Fee shares minted by kind",
		}, []string{"kind"}),

		LatestEpochID: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vault_latest_epoch_id",
			Help: "Current (open) withdrawal epoch",
		}),

		ReservedAssets: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vault_reserved_assets",
			Help: "Assets reserved for processed, unclaimed epochs",
		}),

		IngestToApply: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_ingest_to_apply_seconds",
			Help:    "Broker receive to vault apply complete",
			Buckets: latencyBuckets,
		}, []string{"command"}),

		NATSPullLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_nats_pull_latency_seconds",
			Help:    "NATS pull request latency",
			Buckets: latencyBuckets,
		}, []string{"subject"}),

		PersistBatchDur: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: dbBuckets,
		}),

		ProjectionUpdateDur: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_projection_update_duration_seconds",
			Help:    "Projection table update duration",
			Buckets: dbBuckets,
		}, []string{"projection"}),

		ChannelSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vault_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vault_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vault_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		ProjectionDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "vault_projection_drops_total",
			Help: "Events dropped due to full projection channel",
		}),

		PublishDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "vault_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		PersistBackpressure: factory.NewCounter(prometheus.CounterOpts{
			Name: "vault_persist_backpressure_total",
			Help: "Times the vault blocked on the persist channel",
		}),

		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_events_published_total",
			Help: "Events published to the outbound stream",
		}, []string{"event_type"}),

		PublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "vault_publish_errors_total",
			Help: "Outbound publish failures",
		}),

		IdempotencyDuplicates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_idempotency_duplicates_total",
			Help: "Duplicate commands caught (lru/postgres)",
		}, []string{"command", "tier"}),

		DedupLRUSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vault_dedup_lru_size",
			Help: "Entries in the idempotency LRU",
		}),

		DedupTier2Errors: factory.NewCounter(prometheus.CounterOpts{
			Name: "vault_dedup_tier2_errors_total",
			Help: "Postgres dedup lookups that failed",
		}),

		PersistEventsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "vault_persist_events_written_total",
			Help: "Events written to the event log",
		}),

		PersistBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_persist_batch_size",
			Help:    "Events per persisted batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),

		PersistErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_persist_errors_total",
			Help: "Persistence errors by type",
		}, []string{"error_type"}),

		PersistRetry: factory.NewCounter(prometheus.CounterOpts{
			Name: "vault_persist_retry_total",
			Help: "Persistence batch retries",
		}),

		PersistLastSequence: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vault_persist_last_sequence",
			Help: "Last event sequence committed to Postgres",
		}),

		SnapshotTaken: factory.NewCounter(prometheus.CounterOpts{
			Name: "vault_snapshot_taken_total",
			Help: "Snapshots written",
		}),

		SnapshotDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vault_snapshot_duration_seconds",
			Help:    "Snapshot capture + write duration",
			Buckets: dbBuckets,
		}),

		SnapshotSizeBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vault_snapshot_size_bytes",
			Help: "Size of the last snapshot",
		}),

		SnapshotLastSeq: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vault_snapshot_last_sequence",
			Help: "Sequence covered by the last snapshot",
		}),

		ReplayEventsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "vault_replay_events_total",
			Help: "Events replayed into projections on startup",
		}),

		QueryRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_query_requests_total",
			Help: "Query API requests",
		}, []string{"endpoint"}),

		QueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vault_query_duration_seconds",
			Help:    "Query API latency",
			Buckets: dbBuckets,
		}, []string{"endpoint"}),

		QueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_query_errors_total",
			Help: "Query errors",
		}, []string{"endpoint", "code"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}

// AmountFloat converts an amount to float64 for gauges. Precision loss above
// 2^53 is acceptable for dashboards.
func AmountFloat(v sdkmath.Int) float64 {
	if v.IsNil() {
		return 0
	}
	f, _ := new(big.Float).SetInt(v.BigInt()).Float64()
	return f
}
