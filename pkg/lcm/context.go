package lcm

import (
	"sync"

	"github.com/cuemby/anvil/pkg/expression"
	"github.com/cuemby/anvil/pkg/types"
)

// StateProvider supplies per-node deployment data. It is read-only and
// fully resolved before serialization starts; the engine does no I/O.
type StateProvider interface {
	// ExpectedState is the data the transaction is going to apply
	ExpectedState(nodeID types.NodeID) map[string]interface{}
	// CurrentState is the data applied by the last successful transaction
	CurrentState(nodeID types.NodeID) map[string]interface{}
}

// StaticState is an in-memory StateProvider. Cluster data is shared by
// every node and overlaid by per-node expected data.
type StaticState struct {
	Cluster  map[string]interface{}
	Expected map[types.NodeID]map[string]interface{}
	Current  map[types.NodeID]map[string]interface{}
}

func (s *StaticState) ExpectedState(nodeID types.NodeID) map[string]interface{} {
	data := make(map[string]interface{}, len(s.Cluster))
	for k, v := range s.Cluster {
		data[k] = v
	}
	for k, v := range s.Expected[nodeID] {
		data[k] = v
	}
	return data
}

func (s *StaticState) CurrentState(nodeID types.NodeID) map[string]interface{} {
	return s.Current[nodeID]
}

// Context gives serializers per-node access to deployment data, condition
// evaluation and parameter templating. Environments are built once per node.
type Context struct {
	states    StateProvider
	evaluator *expression.Evaluator

	mu   sync.Mutex
	envs map[types.NodeID]*expression.Env
}

// NewContext creates a context over states; nil means no data at all
func NewContext(states StateProvider) *Context {
	if states == nil {
		states = &StaticState{}
	}
	return &Context{
		states:    states,
		evaluator: expression.NewEvaluator(),
		envs:      make(map[types.NodeID]*expression.Env),
	}
}

// Env returns the evaluation environment of a node
func (c *Context) Env(nodeID types.NodeID) *expression.Env {
	c.mu.Lock()
	defer c.mu.Unlock()

	if env, ok := c.envs[nodeID]; ok {
		return env
	}
	data := c.states.ExpectedState(nodeID)
	env := &expression.Env{
		New:  data,
		Old:  c.states.CurrentState(nodeID),
		Vars: formatterVars(nodeID, data),
	}
	c.envs[nodeID] = env
	return env
}

// formatterVars are the variables available to task parameters (upper
// case) and conditions (lower case)
func formatterVars(nodeID types.NodeID, data map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"CLUSTER_ID":        expression.Lookup(data, "cluster.id"),
		"OPENSTACK_VERSION": expression.Lookup(data, "openstack_version"),
		"MASTER_IP":         expression.Lookup(data, "master_ip"),
		"CN_HOSTNAME":       expression.Lookup(data, "public_ssl.hostname"),
		"NODE_ID":           string(nodeID),
		"SETTINGS":          data,

		"settings": data,
		"cluster":  expression.Lookup(data, "cluster"),
		"node": map[string]interface{}{
			"id":    string(nodeID),
			"roles": expression.Lookup(data, "roles"),
		},
	}
}

// Evaluate decides whether a task runs on a node
func (c *Context) Evaluate(cond *types.Condition, nodeID types.NodeID) (bool, error) {
	if cond == nil {
		return true, nil
	}
	if cond.Literal != nil {
		return *cond.Literal, nil
	}
	if cond.Expression == "" {
		return true, nil
	}
	return c.evaluator.EvalBool(cond.Expression, c.Env(nodeID))
}

// Render formats task parameters for a node. If any value fails to render
// the parameters are returned as given, along with the error.
func (c *Context) Render(params map[string]interface{}, nodeID types.NodeID) (map[string]interface{}, error) {
	if len(params) == 0 {
		return params, nil
	}
	rendered, err := c.evaluator.Render(params, c.Env(nodeID))
	if err != nil {
		return params, err
	}
	out, ok := rendered.(map[string]interface{})
	if !ok {
		return params, nil
	}
	return out, nil
}
