package roles

import (
	"sort"

	"github.com/cuemby/anvil/pkg/types"
)

// Resolver maps a role specifier to concrete node ids. Results are sorted
// with types.SortNodeIDs so graph construction is reproducible.
type Resolver interface {
	Resolve(spec types.RoleSpec, policy types.ResolvePolicy) []types.NodeID
}

// NodeResolver resolves roles against a snapshot of cluster nodes
type NodeResolver struct {
	byRole map[string][]types.NodeID
	roles  []string
	all    []types.NodeID
}

// NewNodeResolver indexes nodes by every assigned and pending role
func NewNodeResolver(nodes []*types.Node) *NodeResolver {
	r := &NodeResolver{
		byRole: make(map[string][]types.NodeID),
	}
	seen := make(map[types.NodeID]bool)
	for _, node := range nodes {
		if node == nil || node.ID.IsSync() {
			continue
		}
		if !seen[node.ID] {
			seen[node.ID] = true
			r.all = append(r.all, node.ID)
		}
		for _, role := range node.AllRoles() {
			r.byRole[role] = append(r.byRole[role], node.ID)
		}
	}
	types.SortNodeIDs(r.all)
	for role := range r.byRole {
		r.roles = append(r.roles, role)
	}
	sort.Strings(r.roles)
	return r
}

// Resolve returns the nodes selected by spec. Role names may be exact
// names, globs or /regex/ patterns. "self" has no meaning without a
// dependent task and resolves to nothing here.
func (r *NodeResolver) Resolve(spec types.RoleSpec, policy types.ResolvePolicy) []types.NodeID {
	var result []types.NodeID
	switch spec.Kind {
	case types.RoleSync:
		return []types.NodeID{types.SyncNodeID}
	case types.RoleMaster:
		return []types.NodeID{types.MasterNodeID}
	case types.RoleAll:
		result = append(result, r.all...)
	case types.RoleNames:
		set := make(map[types.NodeID]bool)
		for _, name := range spec.Names {
			matcher := NewMatcher(name)
			if IsExact(matcher) {
				for _, id := range r.byRole[name] {
					set[id] = true
				}
				continue
			}
			for _, role := range r.roles {
				if matcher.Match(role) {
					for _, id := range r.byRole[role] {
						set[id] = true
					}
				}
			}
		}
		for id := range set {
			result = append(result, id)
		}
		types.SortNodeIDs(result)
	default:
		return nil
	}
	return applyPolicy(result, policy)
}

// NullResolver resolves every role list to the same fixed nodes. It is
// used for dry runs against a synthetic cluster.
type NullResolver struct {
	NodeIDs []types.NodeID
}

// NewNullResolver creates a resolver over a fixed node list
func NewNullResolver(ids ...types.NodeID) *NullResolver {
	sorted := append([]types.NodeID(nil), ids...)
	types.SortNodeIDs(sorted)
	return &NullResolver{NodeIDs: sorted}
}

func (r *NullResolver) Resolve(spec types.RoleSpec, policy types.ResolvePolicy) []types.NodeID {
	switch spec.Kind {
	case types.RoleSync:
		return []types.NodeID{types.SyncNodeID}
	case types.RoleMaster:
		return []types.NodeID{types.MasterNodeID}
	case types.RoleAll, types.RoleNames:
		return applyPolicy(append([]types.NodeID(nil), r.NodeIDs...), policy)
	}
	return nil
}

// applyPolicy narrows a sorted node list. "any" takes the first node so the
// choice is stable between runs; other policies keep every node.
func applyPolicy(ids []types.NodeID, policy types.ResolvePolicy) []types.NodeID {
	if policy == types.PolicyAny && len(ids) > 1 {
		return ids[:1]
	}
	return ids
}
