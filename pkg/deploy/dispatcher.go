package deploy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/cuemby/anvil/pkg/types"
)

// SyncNodeKey is the key the sync node's tasks are sent under
const SyncNodeKey = "null"

// Dispatcher hands a built transaction to the execution layer
type Dispatcher interface {
	Dispatch(ctx context.Context, tx *types.Transaction) error
}

// Message is the payload sent to execution agents
type Message struct {
	TransactionID        string                          `json:"transaction_id"`
	GraphName            string                          `json:"graph_name"`
	TasksGraph           map[string][]*types.ResolvedTask `json:"tasks_graph"`
	FaultToleranceGroups []types.FaultToleranceGroup     `json:"fault_tolerance_groups"`
}

// NewMessage builds the agent payload of a transaction
func NewMessage(tx *types.Transaction) *Message {
	graph := make(map[string][]*types.ResolvedTask, len(tx.Graph))
	for nodeID, tasks := range tx.Graph {
		key := string(nodeID)
		if nodeID.IsSync() {
			key = SyncNodeKey
		}
		graph[key] = tasks
	}
	groups := tx.FaultToleranceGroups
	if groups == nil {
		groups = []types.FaultToleranceGroup{}
	}
	return &Message{
		TransactionID:        tx.ID,
		GraphName:            tx.GraphName,
		TasksGraph:           graph,
		FaultToleranceGroups: groups,
	}
}

// WriterDispatcher writes each transaction as one JSON document
type WriterDispatcher struct {
	mu     sync.Mutex
	w      io.Writer
	indent bool
}

// NewWriterDispatcher creates a dispatcher writing to w
func NewWriterDispatcher(w io.Writer, indent bool) *WriterDispatcher {
	return &WriterDispatcher{w: w, indent: indent}
}

func (d *WriterDispatcher) Dispatch(ctx context.Context, tx *types.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	enc := json.NewEncoder(d.w)
	if d.indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(NewMessage(tx)); err != nil {
		return fmt.Errorf("failed to write transaction %s: %w", tx.ID, err)
	}
	return nil
}
