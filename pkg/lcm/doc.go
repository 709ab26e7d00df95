/*
Package lcm builds deployment graphs: it turns a flat list of role-scoped
task definitions into per-node task instances with fully resolved ordering
links, ready for an executor that only follows edges.

The package knows nothing about storage, transport or agents. It reads task
definitions, a role resolver and per-node deployment data, and returns a
types.Graph. The deploy package wraps it into transactions.

# Architecture

A build runs three stages. Each stage only reads the output of the one
before it:

	┌──────────────────────────────────────────────────────────────┐
	│  1. Placement                                                │
	│     • plain tasks: version gate, serializer, node set        │
	│       (stage → sync node, others → Resolver)                 │
	│     • group tasks: children placed on the group's nodes      │
	└────────────────┬─────────────────────────────────────────────┘
	                 ▼
	┌──────────────────────────────────────────────────────────────┐
	│  2. Rendering                                                │
	│     • conditions and parameter templates per node            │
	│     • optional worker pool, results kept in placement order  │
	│     • merge: a skipped instance yields to a non-skipped one  │
	└────────────────┬─────────────────────────────────────────────┘
	                 ▼  (barrier)
	┌──────────────────────────────────────────────────────────────┐
	│  3. Linking                                                  │
	│     • requires / required_for on [node, sync]                │
	│     • cross_depends / cross_depended_by by role and policy   │
	│     • a task never links to itself                           │
	└──────────────────────────────────────────────────────────────┘

The sync node (types.SyncNodeID) is always a key of the returned graph.

# Core Components

  - TransactionSerializer: runs the three stages. Reusable; every
    Serialize call starts from an empty graph.
  - SerializerFactory: maps a task type to a TaskSerializer. Stage and
    skipped tasks get a no-op serializer, executable types get the
    default one, group and role types have none.
  - Context: per-node evaluation environment shared by conditions and
    templates. Environments are built once per node and cached.
  - StateProvider / StaticState: expected (new) and current (old)
    deployment data per node.
  - CheckCycles: post-build check over every node of a linked graph.
  - FaultTolerance: turns a group's fault_tolerance into a node count.

# Placement

Tasks are split into plain tasks and groups. Every plain task except a
stage must carry a version of at least Options.MinTaskVersion, default
DefaultMinTaskVersion. Short versions ("2", "2.1") are accepted and a
missing version counts as the oldest one.

	type       nodes
	stage      sync node only
	group      none itself; its children go to the group's nodes
	role       rejected, ErrSerializerNotSupported
	others     Resolver.Resolve(task.RoleSpec(), all)

A task's role specifier is "roles", falling back to the legacy "role" and
"groups" keys. A child listed by a group but not defined as a plain task
fails the build with ErrInvalidData.

# Rendering

Each (task, node) pair is serialized independently. The condition decides
whether the instance runs; a false or failing condition turns it into a
skipped task that keeps its edges. Parameters are rendered with HCL
templates against the node's environment:

	${CLUSTER_ID}          cluster.id
	${OPENSTACK_VERSION}   openstack_version
	${MASTER_IP}           master_ip
	${CN_HOSTNAME}         public_ssl.hostname
	${NODE_ID}             the node being rendered
	${SETTINGS.<path>}     any key of the node's deployment data

Conditions see the same data as settings, cluster and node, plus new and
old for changed() checks:

	condition: changed("network_scheme") && node.id != "1"

When a task reaches a node more than once (a plain task and a group, or two
groups) the instances are merged in placement order. The first one wins
unless it was skipped and a later one was not.

# Linking

Linking starts only after every placement is merged, so a dependency can
point at any task on any node.

  - requires and required_for look on the task's own node and then on
    the sync node.
  - cross_depends and cross_depended_by look on the nodes selected by the
    dependency's role: "self" is the task's node, null is the sync node,
    anything else goes through the Resolver with the dependency's policy
    ("all" by default, "any" for the first node only).
  - A name wrapped in slashes is a regular expression matched against
    task ids; anything else is an exact id.

Links to tasks that do not exist are dropped silently. Links are sorted
with types.SortLinks so the same input always produces the same graph.

# Usage

	ctx := lcm.NewContext(&lcm.StaticState{
		Cluster:  clusterAttrs,
		Expected: expected,
		Current:  current,
	})
	ts, err := lcm.NewTransactionSerializer(ctx, roles.NewNodeResolver(nodes), lcm.Options{
		Concurrency: 8,
	})
	if err != nil {
		return err
	}
	result, err := ts.Serialize(tasks)
	if err != nil {
		// errors.Is(err, lcm.ErrInvalidData), ...
		return err
	}
	if err := lcm.CheckCycles(result.Graph); err != nil {
		return err
	}

## Task Selection

Options.TaskIDs limits a transaction to some tasks. Everything else still
appears in the graph as skipped, so ordering through unselected tasks is
preserved. Selecting a group selects its children:

	ts, _ := lcm.NewTransactionSerializer(ctx, resolver, lcm.Options{
		TaskIDs: []string{"primary-controller"},
	})

## Fault Tolerance

Each group with at least one node yields a types.FaultToleranceGroup:

	fault_tolerance: 2      two nodes may fail
	fault_tolerance: -1     all but one may fail
	fault_tolerance: "30%"  30% of the group, rounded down

Invalid values are logged and allow no failures.

# Concurrency

With Options.Concurrency above one, rendering runs on an errgroup limited
to that many goroutines. Results are stored by placement index and merged
sequentially after the pool drains, so the output does not depend on
scheduling. Context is safe for concurrent use; TaskSerializer
implementations must be too.

# Errors

Version, invalid data and unsupported type failures abort the build and
wrap one of the package's sentinel errors in a *TaskError naming the task:

	var taskErr *lcm.TaskError
	if errors.As(err, &taskErr) {
		fmt.Printf("task %s: %v\n", taskErr.TaskID, taskErr.Kind)
	}

	ErrTaskBaseDeploymentNotAllowed   task version below the minimum
	ErrInvalidData                    bad version, unknown group child
	ErrSerializerNotSupported         role or unknown task type
	ErrCycleDetected                  returned by CheckCycles

Bad conditions and templates are never fatal. A condition that cannot be
evaluated skips the task on that node and is logged at warn level. When
any parameter fails to render, the task keeps its parameters exactly as
written and the failure is logged at debug level.

# Monitoring

Metrics (see the metrics package):

  - anvil_graph_build_duration_seconds: successful Serialize calls
  - anvil_graph_build_failures_total{kind}: task_version, invalid_data,
    serializer_not_supported, cycle or other
  - anvil_tasks_rendered_total{type}: instances by final type
  - anvil_links_resolved_total: requires plus required_for links

Log fields: component=lcm, task_id and node_id on per-instance decisions.

# Troubleshooting

## A task is missing from a node

Check that one of the node's roles (including pending roles) matches the
task's role specifier. Stage tasks only ever land on the sync node.

## A dependency is not linked

requires only looks on the same node and the sync node. Use cross_depends
with a role for tasks on other nodes. A regular expression must be wrapped
in slashes.

## Every task is skipped

The task was not in Options.TaskIDs, or its condition evaluated to false
or failed. Run with log level debug to see which.

# See Also

  - pkg/types for task definitions and the graph model
  - pkg/roles for role matching and resolve policies
  - pkg/expression for conditions and templates
  - pkg/deploy for transactions built on this package
*/
package lcm
