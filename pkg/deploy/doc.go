/*
Package deploy turns stored deployment graphs into transactions and hands
them to the execution layer.

A transaction is one attempt to run a deployment graph on a set of nodes.
It records the graph it was built from, the per-node task graph produced by
the lcm package, the fault tolerance groups and the deployment data each
node is expected to have once the transaction succeeds.

# Architecture

	┌──────────────────────────────────────────────────────────┐
	│  Deployer.Deploy                                         │
	│    1. load graph, nodes, cluster attributes, node states │
	│    2. lcm.TransactionSerializer + lcm.CheckCycles        │
	│    3. store transaction (pending)                        │
	│    4. Dispatcher.Dispatch → status running               │
	└────────────────┬─────────────────────────────────────────┘
	                 │  execution layer reports back
	                 ▼
	┌──────────────────────────────────────────────────────────┐
	│  Deployer.Complete                                       │
	│    success: expected data → node states, status ready    │
	│    failure: status error                                 │
	└──────────────────────────────────────────────────────────┘

Node states close the loop for conditions: a task guarded by
changed("network_scheme") runs until a transaction carrying the new network
scheme completes, and is skipped afterwards.

# Core Components

  - Deployer: builds, records and dispatches transactions, and applies
    their outcome. Safe for concurrent use as long as the store is.
  - Dispatcher: hands a transaction to whatever runs it.
  - WriterDispatcher: writes one JSON Message per transaction to an
    io.Writer. Used by the CLI to feed agents through a file or a pipe.
  - Message: the agent payload, with the sync node keyed by "null".
  - NodeData: the per-node deployment data derived from a node record.

# Deployment Data

Expected data for a node is its attributes plus three identity keys:

	uid     node id
	roles   roles and pending roles
	fqdn    hostname, when set

Cluster attributes are layered underneath by lcm.StaticState. Current data
is the node state stored by the last successful transaction; a node that
never completed one has none, so changed() is true for every path present
in its expected data.

# Transaction Lifecycle

	            Deploy                 Dispatch ok
	(none) ──────────────▶ pending ──────────────────▶ running
	                          │                           │
	         build or dispatch│fails          Complete    │
	                          ▼          ┌────────────────┴──────────┐
	                        error ◀──────┘ failed          succeeded ▼
	                                                             ready

  - A transaction that fails to build is still stored, with status error
    and the build error, and returned along with the error.
  - DryRun stops after the pending record is stored.
  - Complete only accepts running transactions.
  - Node status follows the transaction: deploying while running, then
    ready or error.

# Usage

	deployer := deploy.NewDeployer(store, deploy.NewWriterDispatcher(os.Stdout, true), broker, lcm.Options{})

	tx, err := deployer.Deploy(ctx, deploy.DeployRequest{
		GraphName: "default",
		TaskIDs:   []string{"netconfig"},
	})
	if err != nil {
		// tx, when not nil, is recorded with status error
		return err
	}

	// later, when agents report the outcome
	_, err = deployer.Complete(ctx, tx.ID, true, "")

## Partial Deployments

	// two nodes only
	deployer.Deploy(ctx, deploy.DeployRequest{NodeIDs: []types.NodeID{"1", "2"}})

	// inspect the graph without running it
	tx, _ := deployer.Deploy(ctx, deploy.DeployRequest{DryRun: true})
	status, _ := deployer.GetTransactionStatus(tx.ID)
	fmt.Printf("%d of %d tasks executable\n", status.ExecutableTasks, status.TotalTasks)

Selecting a node that is not in the inventory fails the build with an
error wrapping storage.ErrNotFound.

## Custom Dispatchers

Any type with a Dispatch method can replace WriterDispatcher:

	type queueDispatcher struct{ q *Queue }

	func (d *queueDispatcher) Dispatch(ctx context.Context, tx *types.Transaction) error {
		return d.q.Send(ctx, deploy.NewMessage(tx))
	}

A Dispatch error marks the transaction as error. Dispatch must not keep a
reference to tx after it returns.

# Dispatch Format

WriterDispatcher writes one JSON Message per transaction. The sync node's
tasks are keyed by "null":

	{
	  "transaction_id": "3f0c…",
	  "graph_name": "default",
	  "tasks_graph": {
	    "null": [{"id": "deploy_start", "type": "skipped", "fail_on_error": false}],
	    "1": [{"id": "netconfig", "type": "puppet", "fail_on_error": true,
	           "requires": [{"name": "deploy_start", "node_id": null}]}]
	  },
	  "fault_tolerance_groups": []
	}

# Events

Published on the broker given to NewDeployer, when not nil:

	transaction.created      transaction stored as pending
	transaction.dispatched   Dispatch succeeded
	transaction.failed       build, dispatch or execution failed
	transaction.completed    Complete with success

Each event carries transaction_id, graph and status metadata.

# Monitoring

  - anvil_transactions_dispatched_total
  - anvil_transactions_failed_total
  - anvil_transactions_total{status}, from the metrics collector

Log fields: transaction_id on lifecycle messages, node_id on node status
updates. Failing to update a node's status is logged and does not fail the
transaction.

# Troubleshooting

## Transaction stuck in running

Nothing called Complete. From the CLI:

	anvil transaction complete <id>
	anvil transaction complete <id> --failed --message "puppet failed on node 3"

## Tasks run again on every deployment

Their condition compares against node state, which is only written by a
successful Complete. Check that transactions reach ready.

# See Also

  - pkg/lcm for graph building
  - pkg/storage for persistence of graphs, nodes, states and transactions
  - pkg/events for the broker
*/
package deploy
