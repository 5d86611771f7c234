package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	GraphNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "codeintel_graph_nodes_total",
		Help: "Total number of nodes in the dependency graph.",
	})

	GraphEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "codeintel_graph_edges_total",
		Help: "Total number of edges in the dependency graph.",
	})

	GraphCycles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "codeintel_graph_cycles_total",
		Help: "Number of elementary dependency cycles in the current snapshot.",
	})

	SnapshotVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "codeintel_snapshot_version",
		Help: "Version of the currently published analysis snapshot.",
	})

	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "codeintel_analysis_seconds",
		Help:    "Time spent on high-level analysis tasks.",
		Buckets: prometheus.DefBuckets,
	}, []string{"task"})

	MalformedFactsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codeintel_malformed_facts_total",
		Help: "Total number of extraction units skipped because their facts were malformed.",
	})

	OverflowClampsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codeintel_overflow_clamps_total",
		Help: "Total number of complexity results with at least one clamped metric.",
	})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codeintel_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})

	ChangeAnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "codeintel_change_analyses_total",
		Help: "Total number of committed change analyses by invalidation scope.",
	}, []string{"scope"})

	DiscardedResultsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codeintel_discarded_results_total",
		Help: "Total number of analysis results dropped because the file changed again before commit.",
	})

	ThrottledRescansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codeintel_throttled_rescans_total",
		Help: "Total number of project-scope rescans downgraded by the rescan limiter.",
	})

	IndexEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "codeintel_index_entries",
		Help: "Number of entries in the embedding index.",
	})

	IndexPrunedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codeintel_index_pruned_total",
		Help: "Total number of embedding entries pruned for lacking a backing entity.",
	})

	WriteQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "codeintel_write_queue_depth",
		Help: "Current number of in-memory write requests waiting to be persisted.",
	})

	WriteQueueEnqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codeintel_write_queue_enqueued_total",
		Help: "Total number of write requests accepted into the in-memory queue.",
	})

	WriteQueueDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codeintel_write_queue_dropped_total",
		Help: "Total number of write requests dropped from in-memory enqueue due to backpressure.",
	})

	WriteQueueApplyErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codeintel_write_queue_apply_errors_total",
		Help: "Total number of write batch apply errors.",
	})

	WriteQueueProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "codeintel_write_queue_processed_total",
		Help: "Total number of write requests successfully applied.",
	})

	WriteQueueFlushLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "codeintel_write_queue_flush_seconds",
		Help:    "Latency for applying a write batch.",
		Buckets: prometheus.DefBuckets,
	})
)
