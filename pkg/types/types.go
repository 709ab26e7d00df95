package types

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"
)

// NodeID identifies a cluster node. The empty value is the sync node.
type NodeID string

const (
	// SyncNodeID is the reserved node for actions not bound to any physical
	// node (stage tasks, cross-node barriers). It serializes as null.
	SyncNodeID NodeID = ""

	// MasterNodeID is the deployment master itself
	MasterNodeID NodeID = "master"
)

// IsSync reports whether id is the sync node
func (id NodeID) IsSync() bool {
	return id == SyncNodeID
}

func (id NodeID) String() string {
	if id.IsSync() {
		return "<sync>"
	}
	return string(id)
}

// MarshalJSON writes the sync node as null
func (id NodeID) MarshalJSON() ([]byte, error) {
	if id.IsSync() {
		return []byte("null"), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts null, strings and bare numbers
func (id *NodeID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = SyncNodeID
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = NodeID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = NodeID(n.String())
	return nil
}

// MarshalYAML writes the sync node as null
func (id NodeID) MarshalYAML() (interface{}, error) {
	if id.IsSync() {
		return nil, nil
	}
	return string(id), nil
}

// SortNodeIDs orders ids in place: sync first, then numeric ids by value,
// then everything else lexically.
func SortNodeIDs(ids []NodeID) {
	sort.Slice(ids, func(i, j int) bool {
		return lessNodeID(ids[i], ids[j])
	})
}

func lessNodeID(a, b NodeID) bool {
	if a.IsSync() || b.IsSync() {
		return a.IsSync() && !b.IsSync()
	}
	ai, aErr := strconv.Atoi(string(a))
	bi, bErr := strconv.Atoi(string(b))
	switch {
	case aErr == nil && bErr == nil:
		return ai < bi
	case aErr == nil:
		return true
	case bErr == nil:
		return false
	}
	return a < b
}

// Node represents a bare-metal or virtual node of the cluster
type Node struct {
	ID           NodeID                 `json:"id" yaml:"id"`
	Hostname     string                 `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	Roles        []string               `json:"roles,omitempty" yaml:"roles,omitempty"`
	PendingRoles []string               `json:"pending_roles,omitempty" yaml:"pending_roles,omitempty"`
	Status       NodeStatus             `json:"status,omitempty" yaml:"status,omitempty"`
	Attributes   map[string]interface{} `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	CreatedAt    time.Time              `json:"created_at" yaml:"-"`
}

// AllRoles returns assigned and pending roles
func (n *Node) AllRoles() []string {
	roles := make([]string, 0, len(n.Roles)+len(n.PendingRoles))
	roles = append(roles, n.Roles...)
	return append(roles, n.PendingRoles...)
}

// NodeStatus represents the provisioning state of a node
type NodeStatus string

const (
	NodeStatusDiscover     NodeStatus = "discover"
	NodeStatusProvisioning NodeStatus = "provisioning"
	NodeStatusProvisioned  NodeStatus = "provisioned"
	NodeStatusDeploying    NodeStatus = "deploying"
	NodeStatusReady        NodeStatus = "ready"
	NodeStatusError        NodeStatus = "error"
)

// NodeState is the deployment data last applied to a node. It is the
// "current" side of condition evaluation.
type NodeState struct {
	NodeID    NodeID                 `json:"node_id"`
	Data      map[string]interface{} `json:"data"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// DeploymentGraph is a named, versioned list of task definitions
type DeploymentGraph struct {
	Name      string            `json:"name" yaml:"name"`
	Tasks     []*TaskDefinition `json:"tasks" yaml:"tasks"`
	CreatedAt time.Time         `json:"created_at" yaml:"-"`
}

// Transaction is one attempt to run a deployment graph on the cluster
type Transaction struct {
	ID                   string                            `json:"id"`
	GraphName            string                            `json:"graph_name"`
	ClusterID            string                            `json:"cluster_id,omitempty"`
	Status               TransactionStatus                 `json:"status"`
	NodeIDs              []NodeID                          `json:"node_ids,omitempty"`
	TaskIDs              []string                          `json:"task_ids,omitempty"`
	Graph                Graph                             `json:"graph,omitempty"`
	FaultToleranceGroups []FaultToleranceGroup             `json:"fault_tolerance_groups,omitempty"`
	ExpectedStates       map[NodeID]map[string]interface{} `json:"expected_states,omitempty"`
	Error                string                            `json:"error,omitempty"`
	CreatedAt            time.Time                         `json:"created_at"`
	UpdatedAt            time.Time                         `json:"updated_at"`
}

// TransactionStatus represents the state of a transaction
type TransactionStatus string

const (
	TransactionPending TransactionStatus = "pending"
	TransactionRunning TransactionStatus = "running"
	TransactionReady   TransactionStatus = "ready"
	TransactionError   TransactionStatus = "error"
)
