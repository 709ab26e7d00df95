package lcm

import (
	"fmt"
	"strings"

	"github.com/coreos/go-semver/semver"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/anvil/pkg/log"
	"github.com/cuemby/anvil/pkg/metrics"
	"github.com/cuemby/anvil/pkg/roles"
	"github.com/cuemby/anvil/pkg/types"
)

// DefaultMinTaskVersion is the lowest task version allowed in graph-based
// deployments
const DefaultMinTaskVersion = "2.0.0"

// Options tunes a TransactionSerializer
type Options struct {
	// MinTaskVersion defaults to DefaultMinTaskVersion
	MinTaskVersion string

	// Concurrency bounds parallel rendering; 0 or 1 renders sequentially
	Concurrency int

	// TaskIDs restricts the transaction to these tasks. Others stay in the
	// graph as skipped. Nil selects everything.
	TaskIDs []string
}

// Result is a built transaction graph
type Result struct {
	Graph                types.Graph
	FaultToleranceGroups []types.FaultToleranceGroup
}

// TransactionSerializer builds per-node task graphs from task definitions.
// A serializer may be reused; every call to Serialize starts from scratch.
type TransactionSerializer struct {
	ctx        *Context
	resolver   roles.Resolver
	factory    *SerializerFactory
	minVersion *semver.Version
	opts       Options
	logger     zerolog.Logger
}

// NewTransactionSerializer creates a serializer resolving roles with resolver
func NewTransactionSerializer(ctx *Context, resolver roles.Resolver, opts Options) (*TransactionSerializer, error) {
	if resolver == nil {
		return nil, fmt.Errorf("role resolver is required")
	}
	if ctx == nil {
		ctx = NewContext(nil)
	}
	if opts.MinTaskVersion == "" {
		opts.MinTaskVersion = DefaultMinTaskVersion
	}
	minVersion, err := parseVersion(opts.MinTaskVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid minimum task version: %w", err)
	}

	return &TransactionSerializer{
		ctx:        ctx,
		resolver:   resolver,
		factory:    NewSerializerFactory(ctx),
		minVersion: minVersion,
		opts:       opts,
		logger:     log.WithComponent("lcm"),
	}, nil
}

// Serialize builds the graph with default options
func Serialize(ctx *Context, tasks []*types.TaskDefinition, resolver roles.Resolver) (types.Graph, error) {
	ts, err := NewTransactionSerializer(ctx, resolver, Options{})
	if err != nil {
		return nil, err
	}
	result, err := ts.Serialize(tasks)
	if err != nil {
		return nil, err
	}
	return result.Graph, nil
}

// Serialize runs placement, rendering and linking. Any error aborts the
// build and no partial graph is returned.
func (s *TransactionSerializer) Serialize(tasks []*types.TaskDefinition) (*Result, error) {
	timer := metrics.NewTimer()

	result, err := s.serialize(tasks)
	if err != nil {
		metrics.GraphBuildFailures.WithLabelValues(errorKind(err)).Inc()
		s.logger.Error().Err(err).Msg("Failed to build deployment graph")
		return nil, err
	}

	timer.ObserveDuration(metrics.GraphBuildDuration)
	s.logger.Debug().
		Int("nodes", len(result.Graph)).
		Int("tasks", result.Graph.TaskCount()).
		Dur("duration", timer.Duration()).
		Msg("Deployment graph built")
	return result, nil
}

func (s *TransactionSerializer) serialize(tasks []*types.TaskDefinition) (*Result, error) {
	placed, groups, err := s.place(tasks)
	if err != nil {
		return nil, err
	}

	b, err := s.render(placed)
	if err != nil {
		return nil, err
	}

	graph := s.link(b)
	return &Result{Graph: graph, FaultToleranceGroups: groups}, nil
}

// placement is one task scheduled onto one node
type placement struct {
	task       *types.TaskDefinition
	serializer TaskSerializer
	nodeID     types.NodeID
	selected   bool
}

// place resolves node sets: plain tasks first, then group children against
// their group's nodes. Serializers are created before any node resolution
// so malformed graphs fail fast.
func (s *TransactionSerializer) place(tasks []*types.TaskDefinition) ([]placement, []types.FaultToleranceGroup, error) {
	var plain, groups []*types.TaskDefinition
	for _, task := range tasks {
		if task.Type == types.TaskTypeGroup {
			groups = append(groups, task)
			continue
		}
		plain = append(plain, task)
	}

	selected := s.selection(groups)
	mapping := make(map[string]*types.TaskDefinition, len(plain))
	serializers := make(map[string]TaskSerializer, len(plain))
	var placed []placement

	for _, task := range plain {
		if task.Type != types.TaskTypeStage {
			if err := s.checkVersion(task); err != nil {
				return nil, nil, err
			}
		}
		serializer, err := s.factory.Create(task)
		if err != nil {
			return nil, nil, err
		}
		mapping[task.ID] = task
		serializers[task.ID] = serializer

		var nodeIDs []types.NodeID
		if task.Type == types.TaskTypeStage {
			nodeIDs = []types.NodeID{types.SyncNodeID}
		} else {
			nodeIDs = s.resolver.Resolve(task.RoleSpec(), types.PolicyAll)
		}
		for _, nodeID := range nodeIDs {
			placed = append(placed, placement{task: task, serializer: serializer, nodeID: nodeID, selected: selected(task.ID)})
		}
	}

	var ftGroups []types.FaultToleranceGroup
	for _, group := range groups {
		nodeIDs := s.resolver.Resolve(group.RoleSpec(), types.PolicyAll)
		for _, childID := range group.Tasks {
			child, ok := mapping[childID]
			if !ok {
				return nil, nil, taskError(ErrInvalidData, childID, "task cannot be resolved in group %s", group.ID)
			}
			for _, nodeID := range nodeIDs {
				placed = append(placed, placement{task: child, serializer: serializers[childID], nodeID: nodeID, selected: selected(childID)})
			}
		}
		if len(nodeIDs) > 0 {
			ftGroups = append(ftGroups, types.FaultToleranceGroup{
				Name:           group.ID,
				NodeIDs:        nodeIDs,
				FaultTolerance: FaultTolerance(group.FaultTolerance, len(nodeIDs)),
			})
		}
	}
	return placed, ftGroups, nil
}

// selection returns the predicate for Options.TaskIDs. Children of a
// selected group are selected too.
func (s *TransactionSerializer) selection(groups []*types.TaskDefinition) func(string) bool {
	if s.opts.TaskIDs == nil {
		return func(string) bool { return true }
	}
	ids := make(map[string]bool, len(s.opts.TaskIDs))
	for _, id := range s.opts.TaskIDs {
		ids[id] = true
	}
	for _, group := range groups {
		if !ids[group.ID] {
			continue
		}
		for _, child := range group.Tasks {
			ids[child] = true
		}
	}
	return func(id string) bool { return ids[id] }
}

func (s *TransactionSerializer) checkVersion(task *types.TaskDefinition) error {
	version, err := parseVersion(task.Version)
	if err != nil {
		return taskError(ErrInvalidData, task.ID, "invalid version %q", task.Version)
	}
	if version.LessThan(*s.minVersion) {
		return taskError(ErrTaskBaseDeploymentNotAllowed, task.ID,
			"version %s is lower than %s", version, s.minVersion)
	}
	return nil
}

// parseVersion accepts short versions like "2" or "2.1"; an empty version
// is the oldest possible one
func parseVersion(v string) (*semver.Version, error) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" {
		v = "0.0.0"
	}
	if n := strings.Count(v, "."); n < 2 && !strings.ContainsAny(v, "-+") {
		v += strings.Repeat(".0", 2-n)
	}
	return semver.NewVersion(v)
}

// builder accumulates rendered tasks per node in insertion order
type builder struct {
	nodes map[types.NodeID]*nodeTasks
}

type nodeTasks struct {
	order []string
	byID  map[string]*types.ResolvedTask
}

func newBuilder() *builder {
	return &builder{nodes: make(map[types.NodeID]*nodeTasks)}
}

func (b *builder) node(nodeID types.NodeID) *nodeTasks {
	nt, ok := b.nodes[nodeID]
	if !ok {
		nt = &nodeTasks{byID: make(map[string]*types.ResolvedTask)}
		b.nodes[nodeID] = nt
	}
	return nt
}

// merge stores task on a node. An existing task is only replaced when it
// was skipped and the new one is not.
func (b *builder) merge(nodeID types.NodeID, task *types.ResolvedTask) {
	nt := b.node(nodeID)
	existing, ok := nt.byID[task.ID]
	if !ok {
		nt.order = append(nt.order, task.ID)
		nt.byID[task.ID] = task
		return
	}
	if existing.Type == types.TaskTypeSkipped && task.Type != types.TaskTypeSkipped {
		nt.byID[task.ID] = task
	}
}

// render serializes every placement, in parallel when configured, then
// merges the results in placement order
func (s *TransactionSerializer) render(placed []placement) (*builder, error) {
	rendered := make([]*types.ResolvedTask, len(placed))
	renderOne := func(i int) {
		p := placed[i]
		task := p.serializer.Serialize(p.nodeID)
		if !p.selected {
			task.Skip()
		}
		rendered[i] = task
	}

	if s.opts.Concurrency > 1 {
		var g errgroup.Group
		g.SetLimit(s.opts.Concurrency)
		for i := range placed {
			i := i
			g.Go(func() error {
				renderOne(i)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := range placed {
			renderOne(i)
		}
	}

	b := newBuilder()
	b.node(types.SyncNodeID)
	for i, p := range placed {
		b.merge(p.nodeID, rendered[i])
	}
	return b, nil
}

// linker resolves dependency declarations against the finished node maps
type linker struct {
	b        *builder
	resolver roles.Resolver
	matchers map[string]roles.Matcher
}

func (l *linker) matcher(name string) roles.Matcher {
	m, ok := l.matchers[name]
	if !ok {
		m = roles.NewMatcher(name)
		l.matchers[name] = m
	}
	return m
}

// match adds every task on nodeID matching name, except the task itself
func (l *linker) match(links map[types.Link]struct{}, name string, nodeID types.NodeID, self types.Link) {
	nt, ok := l.b.nodes[nodeID]
	if !ok {
		return
	}
	m := l.matcher(name)
	if roles.IsExact(m) {
		if _, found := nt.byID[name]; found {
			l.add(links, types.Link{Name: name, NodeID: nodeID}, self)
		}
		return
	}
	for _, id := range nt.order {
		if m.Match(id) {
			l.add(links, types.Link{Name: id, NodeID: nodeID}, self)
		}
	}
}

func (l *linker) add(links map[types.Link]struct{}, link, self types.Link) {
	if link == self {
		return
	}
	links[link] = struct{}{}
}

// local resolves same-node references on the node itself and the sync node
func (l *linker) local(links map[types.Link]struct{}, names []string, self types.Link) {
	candidates := []types.NodeID{self.NodeID}
	if !self.NodeID.IsSync() {
		candidates = append(candidates, types.SyncNodeID)
	}
	for _, name := range names {
		for _, nodeID := range candidates {
			l.match(links, name, nodeID, self)
		}
	}
}

// cross resolves dependencies on the nodes selected by their role
func (l *linker) cross(links map[types.Link]struct{}, deps []types.Dependency, self types.Link) {
	for _, dep := range deps {
		var candidates []types.NodeID
		role := dep.EffectiveRole()
		switch role.Kind {
		case types.RoleSelf:
			candidates = []types.NodeID{self.NodeID}
		case types.RoleSync:
			candidates = []types.NodeID{types.SyncNodeID}
		default:
			candidates = l.resolver.Resolve(role, dep.EffectivePolicy())
		}
		for _, nodeID := range candidates {
			l.match(links, dep.Name, nodeID, self)
		}
	}
}

func sortedLinks(set map[types.Link]struct{}) []types.Link {
	if len(set) == 0 {
		return nil
	}
	links := make([]types.Link, 0, len(set))
	for link := range set {
		links = append(links, link)
	}
	types.SortLinks(links)
	return links
}

// link turns pending declarations into concrete links. It must only run
// once every placement has been merged.
func (s *TransactionSerializer) link(b *builder) types.Graph {
	l := &linker{b: b, resolver: s.resolver, matchers: make(map[string]roles.Matcher)}
	graph := make(types.Graph, len(b.nodes))
	total := 0

	for nodeID, nt := range b.nodes {
		tasks := make([]*types.ResolvedTask, 0, len(nt.order))
		for _, id := range nt.order {
			task := nt.byID[id]
			if pending := task.Pending; pending != nil {
				self := types.Link{Name: task.ID, NodeID: nodeID}

				requires := make(map[types.Link]struct{})
				l.local(requires, pending.Requires, self)
				l.cross(requires, pending.CrossDepends, self)

				requiredFor := make(map[types.Link]struct{})
				l.local(requiredFor, pending.RequiredFor, self)
				l.cross(requiredFor, pending.CrossDependedBy, self)

				task.Requires = sortedLinks(requires)
				task.RequiredFor = sortedLinks(requiredFor)
				task.Pending = nil
				total += len(task.Requires) + len(task.RequiredFor)
			}
			metrics.TasksRendered.WithLabelValues(string(task.Type)).Inc()
			tasks = append(tasks, task)
		}
		graph[nodeID] = tasks
	}

	metrics.LinksResolved.Add(float64(total))
	return graph
}
