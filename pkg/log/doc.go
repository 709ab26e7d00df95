/*
Package log provides structured logging for Anvil using zerolog.

The package wraps a single global zerolog.Logger. It is configured once by
the CLI through Init and then shared by every package; components derive
child loggers that carry their context as fields.

# Configuration

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stderr,
	})

JSON output is meant for collectors, console output for operators. Until
Init is called the global logger is the zero zerolog.Logger and discards
everything, which keeps library use and tests quiet.

# Context loggers

	lcmLog := log.WithComponent("lcm")
	lcmLog.Debug().Str("task_id", "netconfig").Msg("condition evaluated to false")

	txLog := log.WithTransactionID(tx.ID)
	txLog.Info().Int("nodes", len(tx.Graph)).Msg("transaction dispatched")

Available helpers: WithComponent, WithNodeID, WithTaskID, WithTransactionID
and WithGraph.

# Levels

	debug  per-task decisions of the graph engine (skips, merges, matches)
	info   transaction lifecycle
	warn   recoverable input problems (bad fault tolerance, bad pattern)
	error  failed operations
*/
package log
