package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// StatementsTotal counts write statements by execution mode and query_type
	StatementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tqbatch_statements_total",
			Help: "Total number of write statements processed",
		},
		[]string{"mode", "query_type"},
	)

	// Flushes counts native batch executions
	Flushes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tqbatch_flushes_total",
			Help: "Total number of batches sent to the database",
		},
	)

	// BatchSize tracks the number of statements per flushed batch
	BatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tqbatch_batch_size",
			Help:    "Number of statements per flushed batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 11),
		},
	)

	// ExecLatency tracks database round-trip latency by mode
	ExecLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tqbatch_exec_latency_seconds",
			Help:    "Write execution latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	// Probes counts batching capability checks by result
	Probes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tqbatch_probes_total",
			Help: "Total number of batching capability checks",
		},
		[]string{"result"},
	)

	// RowCountMismatches counts failed row-count verifications by mode
	RowCountMismatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tqbatch_row_count_mismatches_total",
			Help: "Total number of unexpected affected row counts",
		},
		[]string{"mode"},
	)

	once sync.Once
)

// Init registers all metrics with Prometheus
func Init() {
	once.Do(func() {
		prometheus.MustRegister(StatementsTotal)
		prometheus.MustRegister(Flushes)
		prometheus.MustRegister(BatchSize)
		prometheus.MustRegister(ExecLatency)
		prometheus.MustRegister(Probes)
		prometheus.MustRegister(RowCountMismatches)
	})
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
