package lcm

import (
	"github.com/cuemby/anvil/pkg/log"
	"github.com/cuemby/anvil/pkg/types"
)

// TaskSerializer renders one task definition for one node
type TaskSerializer interface {
	Serialize(nodeID types.NodeID) *types.ResolvedTask
}

// SerializerFactory picks the serializer matching a task's type
type SerializerFactory struct {
	ctx *Context
}

// NewSerializerFactory creates a factory rendering against ctx
func NewSerializerFactory(ctx *Context) *SerializerFactory {
	if ctx == nil {
		ctx = NewContext(nil)
	}
	return &SerializerFactory{ctx: ctx}
}

// Create returns the serializer for task. Structural and unknown types
// have none.
func (f *SerializerFactory) Create(task *types.TaskDefinition) (TaskSerializer, error) {
	switch {
	case task.Type.IsNoop():
		return &noopSerializer{task: task}, nil
	case task.Type.IsExecutable():
		return &defaultSerializer{task: task, ctx: f.ctx}, nil
	}
	return nil, taskError(ErrSerializerNotSupported, task.ID, "type %q", task.Type)
}

func pendingEdges(task *types.TaskDefinition) *types.Edges {
	return &types.Edges{
		Requires:        append([]string(nil), task.Requires...),
		RequiredFor:     append([]string(nil), task.RequiredFor...),
		CrossDepends:    append([]types.Dependency(nil), task.CrossDepends...),
		CrossDependedBy: append([]types.Dependency(nil), task.CrossDependedBy...),
	}
}

// noopSerializer keeps stage and skipped tasks in the graph as ordering
// points without any work attached
type noopSerializer struct {
	task *types.TaskDefinition
}

func (s *noopSerializer) Serialize(nodeID types.NodeID) *types.ResolvedTask {
	return &types.ResolvedTask{
		ID:          s.task.ID,
		Type:        types.TaskTypeSkipped,
		FailOnError: false,
		Pending:     pendingEdges(s.task),
	}
}

type defaultSerializer struct {
	task *types.TaskDefinition
	ctx  *Context
}

func (s *defaultSerializer) Serialize(nodeID types.NodeID) *types.ResolvedTask {
	logger := log.WithTaskID(s.task.ID).With().Str("node_id", nodeID.String()).Logger()

	failOnError := true
	if s.task.FailOnError != nil {
		failOnError = *s.task.FailOnError
	}

	params, err := s.ctx.Render(s.task.Parameters, nodeID)
	if err != nil {
		logger.Debug().Err(err).Msg("Parameters left unrendered")
	}

	resolved := &types.ResolvedTask{
		ID:          s.task.ID,
		Type:        s.task.Type,
		Parameters:  params,
		FailOnError: failOnError,
		Pending:     pendingEdges(s.task),
	}

	ok, err := s.ctx.Evaluate(s.task.Condition, nodeID)
	if err != nil {
		logger.Warn().Err(err).Str("condition", s.task.Condition.Expression).
			Msg("Failed to evaluate condition, skipping task")
		ok = false
	}
	if !ok {
		resolved.Skip()
	}
	return resolved
}
