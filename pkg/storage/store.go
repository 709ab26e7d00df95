package storage

import (
	"errors"

	"github.com/cuemby/anvil/pkg/types"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// Store defines the interface for cluster state storage
type Store interface {
	// Nodes
	CreateNode(node *types.Node) error
	GetNode(id types.NodeID) (*types.Node, error)
	ListNodes() ([]*types.Node, error)
	UpdateNode(node *types.Node) error
	DeleteNode(id types.NodeID) error

	// Deployment graphs
	PutGraph(graph *types.DeploymentGraph) error
	GetGraph(name string) (*types.DeploymentGraph, error)
	ListGraphs() ([]*types.DeploymentGraph, error)
	DeleteGraph(name string) error

	// Deployment data
	PutNodeState(state *types.NodeState) error
	GetNodeState(id types.NodeID) (*types.NodeState, error)
	PutClusterAttributes(attrs map[string]interface{}) error
	GetClusterAttributes() (map[string]interface{}, error)

	// Transactions
	CreateTransaction(tx *types.Transaction) error
	GetTransaction(id string) (*types.Transaction, error)
	ListTransactions() ([]*types.Transaction, error)
	UpdateTransaction(tx *types.Transaction) error

	// Utility
	Close() error
}
