// Package metrics defines the Prometheus collectors of the engine. All
// collectors register with the default registry, which the HTTP server
// exposes on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// snapshotLoads counts snapshot loads by result.
	snapshotLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relgraph_snapshot_loads_total",
		Help: "Total snapshot loads by result",
	}, []string{"result"})

	// snapshotLoadDuration tracks snapshot load latency.
	snapshotLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relgraph_snapshot_load_duration_seconds",
		Help:    "Snapshot load duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
	})

	// snapshotSize reports the size of the active snapshot.
	snapshotSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relgraph_snapshot_size",
		Help: "Entities, edges and dropped edges of the active snapshot",
	}, []string{"kind"})

	// queryDuration tracks query latency by operation.
	queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relgraph_query_duration_seconds",
		Help:    "Query duration in seconds by operation",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 0.1ms to ~3s
	}, []string{"operation"})

	// queryPaths tracks the number of paths returned per query.
	queryPaths = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relgraph_query_paths",
		Help:    "Number of paths returned per query",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
	}, []string{"operation"})

	// queryTruncated counts queries stopped early by a traversal bound.
	queryTruncated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relgraph_query_truncated_total",
		Help: "Total queries truncated by node, edge or time bounds",
	}, []string{"operation"})

	// cacheLookups counts result cache lookups by outcome.
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relgraph_cache_lookups_total",
		Help: "Total result cache lookups by outcome",
	}, []string{"operation", "outcome"})

	// embeddingFailures counts failed query embeddings.
	embeddingFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relgraph_embedding_failures_total",
		Help: "Total query embedding failures (semantic scoring skipped)",
	})
)

// ObserveSnapshotLoad records one snapshot load.
func ObserveSnapshotLoad(elapsed time.Duration, err error) {
	if err != nil {
		snapshotLoads.WithLabelValues("error").Inc()
		return
	}
	snapshotLoads.WithLabelValues("success").Inc()
	snapshotLoadDuration.Observe(elapsed.Seconds())
}

// SetSnapshotSize reports the size of the index that became active.
func SetSnapshotSize(entities, edges, dropped int) {
	snapshotSize.WithLabelValues("entities").Set(float64(entities))
	snapshotSize.WithLabelValues("edges").Set(float64(edges))
	snapshotSize.WithLabelValues("dropped_edges").Set(float64(dropped))
}

// ObserveQuery records one query.
func ObserveQuery(operation string, elapsed time.Duration, paths int, truncated bool) {
	queryDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
	queryPaths.WithLabelValues(operation).Observe(float64(paths))
	if truncated {
		queryTruncated.WithLabelValues(operation).Inc()
	}
}

// ObserveCache records one cache lookup.
func ObserveCache(operation string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	cacheLookups.WithLabelValues(operation, outcome).Inc()
}

// ObserveEmbeddingFailure records a failed query embedding.
func ObserveEmbeddingFailure() {
	embeddingFailures.Inc()
}
