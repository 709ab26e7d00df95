package deploy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/anvil/pkg/events"
	"github.com/cuemby/anvil/pkg/expression"
	"github.com/cuemby/anvil/pkg/lcm"
	"github.com/cuemby/anvil/pkg/log"
	"github.com/cuemby/anvil/pkg/metrics"
	"github.com/cuemby/anvil/pkg/roles"
	"github.com/cuemby/anvil/pkg/storage"
	"github.com/cuemby/anvil/pkg/types"
)

// DefaultGraphName is used when a request names no graph
const DefaultGraphName = "default"

// Deployer builds transactions from stored graphs and hands them to the
// execution layer
type Deployer struct {
	store      storage.Store
	dispatcher Dispatcher
	broker     *events.Broker
	opts       lcm.Options
}

// NewDeployer creates a new deployer. The broker may be nil.
func NewDeployer(store storage.Store, dispatcher Dispatcher, broker *events.Broker, opts lcm.Options) *Deployer {
	return &Deployer{
		store:      store,
		dispatcher: dispatcher,
		broker:     broker,
		opts:       opts,
	}
}

// DeployRequest selects what to deploy
type DeployRequest struct {
	GraphName string
	// TaskIDs limits the run to these tasks; others are kept as skipped
	TaskIDs []string
	// NodeIDs limits the run to these nodes; empty means every node
	NodeIDs []types.NodeID
	// DryRun builds and records the transaction without dispatching it
	DryRun bool
}

// Deploy builds a transaction and dispatches it. A transaction that fails
// to build or dispatch is still recorded with status error and returned
// along with the error.
func (d *Deployer) Deploy(ctx context.Context, req DeployRequest) (*types.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.GraphName == "" {
		req.GraphName = DefaultGraphName
	}

	now := time.Now()
	tx := &types.Transaction{
		ID:        uuid.New().String(),
		GraphName: req.GraphName,
		Status:    types.TransactionPending,
		TaskIDs:   req.TaskIDs,
		CreatedAt: now,
		UpdatedAt: now,
	}
	logger := log.WithTransactionID(tx.ID)

	if err := d.build(tx, req); err != nil {
		return tx, d.fail(tx, fmt.Errorf("failed to build transaction: %w", err))
	}

	if err := d.store.CreateTransaction(tx); err != nil {
		return nil, fmt.Errorf("failed to store transaction: %w", err)
	}
	d.publish(events.EventTransactionCreated, tx, "transaction created")
	logger.Info().
		Str("graph", tx.GraphName).
		Int("nodes", len(tx.NodeIDs)).
		Int("tasks", tx.Graph.TaskCount()).
		Msg("Transaction created")

	if req.DryRun {
		return tx, nil
	}

	if err := d.dispatcher.Dispatch(ctx, tx); err != nil {
		return tx, d.fail(tx, fmt.Errorf("failed to dispatch transaction: %w", err))
	}

	tx.Status = types.TransactionRunning
	tx.UpdatedAt = time.Now()
	if err := d.store.UpdateTransaction(tx); err != nil {
		return tx, fmt.Errorf("failed to update transaction: %w", err)
	}
	d.setNodeStatus(tx.NodeIDs, types.NodeStatusDeploying)

	metrics.TransactionsDispatched.Inc()
	d.publish(events.EventTransactionDispatched, tx, "transaction dispatched")
	logger.Info().Msg("Transaction dispatched")
	return tx, nil
}

// build loads the graph, cluster and node data and serializes the graph
func (d *Deployer) build(tx *types.Transaction, req DeployRequest) error {
	graph, err := d.store.GetGraph(req.GraphName)
	if err != nil {
		return err
	}
	nodes, err := d.selectNodes(req.NodeIDs)
	if err != nil {
		return err
	}
	cluster, err := d.store.GetClusterAttributes()
	if err != nil {
		return fmt.Errorf("failed to load cluster attributes: %w", err)
	}
	if id := expression.Lookup(cluster, "cluster.id"); id != nil {
		tx.ClusterID = fmt.Sprint(id)
	}

	states := &lcm.StaticState{
		Cluster:  cluster,
		Expected: make(map[types.NodeID]map[string]interface{}, len(nodes)),
		Current:  make(map[types.NodeID]map[string]interface{}, len(nodes)),
	}
	for _, node := range nodes {
		tx.NodeIDs = append(tx.NodeIDs, node.ID)
		states.Expected[node.ID] = NodeData(node)

		state, err := d.store.GetNodeState(node.ID)
		switch {
		case err == nil:
			states.Current[node.ID] = state.Data
		case !errors.Is(err, storage.ErrNotFound):
			return fmt.Errorf("failed to load node state: %w", err)
		}
	}

	opts := d.opts
	opts.TaskIDs = req.TaskIDs
	ts, err := lcm.NewTransactionSerializer(lcm.NewContext(states), roles.NewNodeResolver(nodes), opts)
	if err != nil {
		return err
	}
	result, err := ts.Serialize(graph.Tasks)
	if err != nil {
		return err
	}
	if err := lcm.CheckCycles(result.Graph); err != nil {
		return err
	}

	tx.Graph = result.Graph
	tx.FaultToleranceGroups = result.FaultToleranceGroups
	tx.ExpectedStates = make(map[types.NodeID]map[string]interface{}, len(nodes))
	for _, node := range nodes {
		tx.ExpectedStates[node.ID] = states.ExpectedState(node.ID)
	}
	return nil
}

// NodeData is the per-node deployment data: node attributes plus identity
func NodeData(node *types.Node) map[string]interface{} {
	data := make(map[string]interface{}, len(node.Attributes)+4)
	for k, v := range node.Attributes {
		data[k] = v
	}
	data["uid"] = string(node.ID)
	roles := make([]interface{}, 0, len(node.Roles)+len(node.PendingRoles))
	for _, role := range node.AllRoles() {
		roles = append(roles, role)
	}
	data["roles"] = roles
	if node.Hostname != "" {
		data["fqdn"] = node.Hostname
	}
	return data
}

func (d *Deployer) selectNodes(ids []types.NodeID) ([]*types.Node, error) {
	nodes, err := d.store.ListNodes()
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	if len(ids) == 0 {
		return nodes, nil
	}

	byID := make(map[types.NodeID]*types.Node, len(nodes))
	for _, node := range nodes {
		byID[node.ID] = node
	}
	selected := make([]*types.Node, 0, len(ids))
	for _, id := range ids {
		node, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("node %s: %w", id, storage.ErrNotFound)
		}
		selected = append(selected, node)
	}
	return selected, nil
}

// fail records the transaction as failed and returns err
func (d *Deployer) fail(tx *types.Transaction, err error) error {
	tx.Status = types.TransactionError
	tx.Error = err.Error()
	tx.UpdatedAt = time.Now()
	logger := log.WithTransactionID(tx.ID)
	if storeErr := d.store.UpdateTransaction(tx); storeErr != nil {
		logger.Error().Err(storeErr).Msg("Failed to record failed transaction")
	}

	metrics.TransactionsFailed.Inc()
	d.publish(events.EventTransactionFailed, tx, err.Error())
	logger.Error().Err(err).Msg("Transaction failed")
	return err
}

// Complete records the outcome reported by the execution layer. On
// success the transaction's expected data becomes the nodes' current data;
// otherwise the transaction and its nodes are marked as error.
func (d *Deployer) Complete(ctx context.Context, txID string, success bool, message string) (*types.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tx, err := d.store.GetTransaction(txID)
	if err != nil {
		return nil, err
	}
	if tx.Status != types.TransactionRunning {
		return nil, fmt.Errorf("transaction %s is %s, not %s", tx.ID, tx.Status, types.TransactionRunning)
	}

	if !success {
		d.setNodeStatus(tx.NodeIDs, types.NodeStatusError)
		if message == "" {
			message = "execution failed"
		}
		d.fail(tx, errors.New(message))
		return tx, nil
	}

	now := time.Now()
	for _, nodeID := range tx.NodeIDs {
		data, ok := tx.ExpectedStates[nodeID]
		if !ok {
			continue
		}
		if err := d.store.PutNodeState(&types.NodeState{NodeID: nodeID, Data: data, UpdatedAt: now}); err != nil {
			return nil, fmt.Errorf("failed to store state of node %s: %w", nodeID, err)
		}
	}
	d.setNodeStatus(tx.NodeIDs, types.NodeStatusReady)

	tx.Status = types.TransactionReady
	tx.UpdatedAt = now
	if err := d.store.UpdateTransaction(tx); err != nil {
		return nil, fmt.Errorf("failed to update transaction: %w", err)
	}
	d.publish(events.EventTransactionCompleted, tx, "transaction completed")
	logger := log.WithTransactionID(tx.ID)
	logger.Info().Msg("Transaction completed")
	return tx, nil
}

func (d *Deployer) setNodeStatus(ids []types.NodeID, status types.NodeStatus) {
	for _, id := range ids {
		logger := log.WithNodeID(string(id))
		node, err := d.store.GetNode(id)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to load node")
			continue
		}
		node.Status = status
		if err := d.store.UpdateNode(node); err != nil {
			logger.Warn().Err(err).Msg("Failed to update node status")
		}
	}
}

func (d *Deployer) publish(eventType events.EventType, tx *types.Transaction, message string) {
	if d.broker == nil {
		return
	}
	d.broker.Publish(&events.Event{
		Type:    eventType,
		Message: message,
		Metadata: map[string]string{
			"transaction_id": tx.ID,
			"graph":          tx.GraphName,
			"status":         string(tx.Status),
		},
	})
}

// GetTransactionStatus summarizes a transaction
func (d *Deployer) GetTransactionStatus(txID string) (*TransactionStatus, error) {
	tx, err := d.store.GetTransaction(txID)
	if err != nil {
		return nil, err
	}

	status := &TransactionStatus{
		ID:        tx.ID,
		GraphName: tx.GraphName,
		Status:    string(tx.Status),
		Error:     tx.Error,
		Nodes:     len(tx.NodeIDs),
		Tasks:     make(map[string]int),
	}
	for _, tasks := range tx.Graph {
		for _, task := range tasks {
			status.Tasks[string(task.Type)]++
			status.TotalTasks++
			if task.Type != types.TaskTypeSkipped {
				status.ExecutableTasks++
			}
		}
	}
	return status, nil
}

// TransactionStatus represents the current status of a transaction
type TransactionStatus struct {
	ID              string
	GraphName       string
	Status          string
	Error           string
	Nodes           int
	TotalTasks      int
	ExecutableTasks int
	Tasks           map[string]int // Type -> Count
}
