package lcm

import (
	"fmt"

	"github.com/cuemby/anvil/pkg/types"
)

// CheckCycles verifies that the linked graph is acyclic across all nodes.
// "a requires b" and "b required_for a" are the same edge.
func CheckCycles(graph types.Graph) error {
	deps := make(map[types.Link][]types.Link)
	var keys []types.Link
	for _, nodeID := range graph.NodeIDs() {
		for _, task := range graph[nodeID] {
			self := types.Link{Name: task.ID, NodeID: nodeID}
			keys = append(keys, self)
			deps[self] = append(deps[self], task.Requires...)
			for _, dependent := range task.RequiredFor {
				deps[dependent] = append(deps[dependent], self)
			}
		}
	}
	for key := range deps {
		types.SortLinks(deps[key])
	}

	visiting := make(map[types.Link]bool)
	visited := make(map[types.Link]bool)

	var visit func(link types.Link) error
	visit = func(link types.Link) error {
		visiting[link] = true
		for _, dep := range deps[link] {
			if visiting[dep] {
				return taskError(ErrCycleDetected, dep.Name, "on node %s, reached from %s on node %s",
					dep.NodeID, link.Name, link.NodeID)
			}
			if !visited[dep] {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		delete(visiting, link)
		visited[link] = true
		return nil
	}

	for _, key := range keys {
		if !visited[key] {
			if err := visit(key); err != nil {
				return fmt.Errorf("invalid deployment graph: %w", err)
			}
		}
	}
	return nil
}
