/*
Package metrics provides Prometheus metrics and health endpoints for Anvil.

All metrics are registered with the default registry at package init and
served by Handler. NewMux adds /health and /ready next to /metrics.

# Metrics

Inventory gauges, refreshed by Collector from the store:

	anvil_nodes_total{status}
	anvil_deployment_graphs_total
	anvil_transactions_total{status}

Graph engine:

	anvil_graph_build_duration_seconds       histogram
	anvil_graph_build_failures_total{kind}   task_version, invalid_data,
	                                         serializer_not_supported, cycle
	anvil_tasks_rendered_total{type}         final type, skipped included
	anvil_links_resolved_total

Dispatch:

	anvil_transactions_dispatched_total
	anvil_transactions_failed_total

# Usage

	timer := metrics.NewTimer()
	// ... build graph ...
	timer.ObserveDuration(metrics.GraphBuildDuration)

	collector := metrics.NewCollector(store, 15*time.Second)
	collector.Start()
	defer collector.Stop()

	http.ListenAndServe(":9100", metrics.NewMux())

# Health

The collector reports the store and itself as components. /ready answers
200 once the store has been read successfully; /health turns 503 as soon
as any component is unhealthy.
*/
package metrics
