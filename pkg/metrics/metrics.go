package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Inventory metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "anvil_nodes_total",
			Help: "Total number of nodes by status",
		},
		[]string{"status"},
	)

	GraphsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "anvil_deployment_graphs_total",
			Help: "Total number of stored deployment graphs",
		},
	)

	TransactionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "anvil_transactions_total",
			Help: "Total number of transactions by status",
		},
		[]string{"status"},
	)

	// Graph engine metrics
	GraphBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "anvil_graph_build_duration_seconds",
			Help:    "Time taken to serialize a deployment graph in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	GraphBuildFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anvil_graph_build_failures_total",
			Help: "Total number of failed graph builds by error kind",
		},
		[]string{"kind"},
	)

	TasksRendered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anvil_tasks_rendered_total",
			Help: "Total number of task instances rendered by final type",
		},
		[]string{"type"},
	)

	LinksResolved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "anvil_links_resolved_total",
			Help: "Total number of dependency links resolved",
		},
	)

	// Dispatch metrics
	TransactionsDispatched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "anvil_transactions_dispatched_total",
			Help: "Total number of transactions handed to the execution layer",
		},
	)

	TransactionsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "anvil_transactions_failed_total",
			Help: "Total number of transactions that failed to build or dispatch",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(NodesTotal)
	prometheus.MustRegister(GraphsTotal)
	prometheus.MustRegister(TransactionsTotal)
	prometheus.MustRegister(GraphBuildDuration)
	prometheus.MustRegister(GraphBuildFailures)
	prometheus.MustRegister(TasksRendered)
	prometheus.MustRegister(LinksResolved)
	prometheus.MustRegister(TransactionsDispatched)
	prometheus.MustRegister(TransactionsFailed)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
