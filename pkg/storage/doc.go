/*
Package storage provides BoltDB-backed persistence for Anvil's deployment data.

BoltStore implements Store on a single bbolt file. Every record is JSON
encoded and lives in its own bucket, keyed by its natural id:

	┌──────────────── <dataDir>/anvil.db ────────────────┐
	│                                                      │
	│  nodes          node id  -> types.Node               │
	│  graphs         name     -> types.DeploymentGraph    │
	│  states         node id  -> types.NodeState          │
	│  cluster        "attributes" -> map[string]any       │
	│  transactions   uuid     -> types.Transaction        │
	│                                                      │
	└──────────────────────────────────────────────────────┘

Node state is the deployment data applied by the last successful
transaction on a node. It is the "current" side of changed() conditions
and is replaced when a transaction completes. Deleting a node deletes its
state with it.

The sync node has an empty id and is never stored; bolt rejects empty keys.

# Usage

	store, err := storage.NewBoltStore("/var/lib/anvil")
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.CreateNode(&types.Node{ID: "1", Roles: []string{"controller"}}); err != nil {
		return err
	}

	graph, err := store.GetGraph("default")
	if errors.Is(err, storage.ErrNotFound) {
		// upload it first
	}

# Ordering

ListNodes sorts with types.SortNodeIDs, so numeric ids come in numeric
order. ListGraphs sorts by name and ListTransactions by creation time.

# Concurrency

bbolt holds an exclusive file lock while the store is open. A second
process opening the same data directory waits one second and then fails.
*/
package storage
