// Package metrics exposes Prometheus counters and histograms for the
// query gateway. Metrics are registered on the default registry at
// package init, so importing this package is enough to make them
// visible on the /metrics endpoint.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckmcp_queries_total",
			Help: "Total number of queries by outcome.",
		},
		[]string{"outcome"},
	)

	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "duckmcp_query_duration_seconds",
			Help:    "Query execution latency.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
	)

	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckmcp_tool_calls_total",
			Help: "Total number of MCP tool calls by tool name.",
		},
		[]string{"tool"},
	)

	importRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "duckmcp_import_rows_total",
			Help: "Total number of rows imported into tables.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		queriesTotal,
		queryDurationSeconds,
		toolCallsTotal,
		importRowsTotal,
	)
}

// ObserveQuery records one query execution with its outcome label
// ("ok", "blocked", "timeout", "error") and elapsed wall time.
func ObserveQuery(outcome string, elapsed time.Duration) {
	queriesTotal.WithLabelValues(outcome).Inc()
	queryDurationSeconds.Observe(elapsed.Seconds())
}

// ObserveToolCall records one MCP tool invocation.
func ObserveToolCall(tool string) {
	toolCallsTotal.WithLabelValues(tool).Inc()
}

// ObserveImportRows records rows added by a file import.
func ObserveImportRows(rows int64) {
	if rows > 0 {
		importRowsTotal.Add(float64(rows))
	}
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
