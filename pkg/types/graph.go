package types

import "sort"

// Link is a fully resolved reference to a task on a concrete node
type Link struct {
	Name   string `json:"name" yaml:"name"`
	NodeID NodeID `json:"node_id" yaml:"node_id"`
}

// SortLinks orders links by node then task name
func SortLinks(links []Link) {
	sort.Slice(links, func(i, j int) bool {
		if links[i].NodeID != links[j].NodeID {
			return lessNodeID(links[i].NodeID, links[j].NodeID)
		}
		return links[i].Name < links[j].Name
	})
}

// Edges holds the unresolved dependency declarations of a rendered task.
// The graph engine consumes them while linking.
type Edges struct {
	Requires        []string
	RequiredFor     []string
	CrossDepends    []Dependency
	CrossDependedBy []Dependency
}

// ResolvedTask is one task rendered for one node
type ResolvedTask struct {
	ID          string                 `json:"id" yaml:"id"`
	Type        TaskType               `json:"type" yaml:"type"`
	Parameters  map[string]interface{} `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	FailOnError bool                   `json:"fail_on_error" yaml:"fail_on_error"`
	Requires    []Link                 `json:"requires,omitempty" yaml:"requires,omitempty"`
	RequiredFor []Link                 `json:"required_for,omitempty" yaml:"required_for,omitempty"`

	// Pending is non-nil until dependencies have been linked
	Pending *Edges `json:"-" yaml:"-"`
}

// Skip downgrades the task to a no-op that still holds its place in the graph
func (t *ResolvedTask) Skip() {
	t.Type = TaskTypeSkipped
	t.FailOnError = false
}

// Graph maps each node to the tasks it runs
type Graph map[NodeID][]*ResolvedTask

// NodeIDs returns the graph's nodes in stable order, sync first
func (g Graph) NodeIDs() []NodeID {
	ids := make([]NodeID, 0, len(g))
	for id := range g {
		ids = append(ids, id)
	}
	SortNodeIDs(ids)
	return ids
}

// Find returns the task with the given id on a node, or nil
func (g Graph) Find(nodeID NodeID, taskID string) *ResolvedTask {
	for _, task := range g[nodeID] {
		if task.ID == taskID {
			return task
		}
	}
	return nil
}

// TaskCount returns the number of task instances across all nodes
func (g Graph) TaskCount() int {
	count := 0
	for _, tasks := range g {
		count += len(tasks)
	}
	return count
}

// FaultToleranceGroup bounds how many nodes of a group may fail before the
// whole transaction is stopped
type FaultToleranceGroup struct {
	Name           string   `json:"name" yaml:"name"`
	NodeIDs        []NodeID `json:"node_ids" yaml:"node_ids"`
	FaultTolerance int      `json:"fault_tolerance" yaml:"fault_tolerance"`
}
