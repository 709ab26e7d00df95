package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/anvil/pkg/events"
	"github.com/cuemby/anvil/pkg/lcm"
	"github.com/cuemby/anvil/pkg/storage"
	"github.com/cuemby/anvil/pkg/types"
)

const testTasks = `
- id: deploy_start
  type: stage
- id: netconfig
  type: puppet
  version: 2.0.0
  roles: ['*']
  requires: [deploy_start]
- id: database
  type: shell
  version: 2.0.0
  roles: [controller]
  requires: [netconfig]
  parameters:
    cmd: "setup-db --cluster ${CLUSTER_ID}"
`

const testNodes = `
- id: "1"
  roles: [controller]
- id: "2"
  roles: [compute]
`

const testApply = `
kind: Node
metadata:
  name: "1"
spec:
  hostname: node-1.domain.tld
  roles: [controller]
  attributes:
    network_scheme: {mtu: 1500}
---
kind: ClusterAttributes
spec:
  cluster: {id: 7}
---
# empty documents are skipped
---
kind: DeploymentGraph
metadata:
  name: default
spec:
  tasks:
    - id: deploy_start
      type: stage
    - id: netconfig
      type: puppet
      version: 2.0.0
      roles: ['*']
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   []string
	}{
		{name: "empty", values: nil, want: nil},
		{name: "repeated", values: []string{"a", "b"}, want: []string{"a", "b"}},
		{name: "comma separated", values: []string{"a, b,,c "}, want: []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitList(tt.values))
		})
	}

	assert.Equal(t, []types.NodeID{"1", "2"}, parseNodeIDs([]string{"1,2"}))
}

func TestWriteOutput(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeOutput(&buf, "json", map[string]int{"a": 1}))
	assert.JSONEq(t, `{"a": 1}`, buf.String())

	buf.Reset()
	require.NoError(t, writeOutput(&buf, "yaml", map[string]int{"a": 1}))
	assert.Equal(t, "a: 1\n", buf.String())

	assert.Error(t, writeOutput(&buf, "xml", nil))
}

func TestDecodeResources(t *testing.T) {
	resources, err := decodeResources(strings.NewReader(testApply))
	require.NoError(t, err)
	require.Len(t, resources, 3)
	assert.Equal(t, "Node", resources[0].Kind)
	assert.Equal(t, "ClusterAttributes", resources[1].Kind)
	assert.Equal(t, "DeploymentGraph", resources[2].Kind)

	_, err = decodeResources(strings.NewReader("---\n"))
	assert.Error(t, err)
	_, err = decodeResources(strings.NewReader("kind: [unterminated"))
	assert.Error(t, err)
}

func TestApplyResources(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	resources, err := decodeResources(strings.NewReader(testApply))
	require.NoError(t, err)
	for _, resource := range resources {
		_, err := applyResource(store, broker, resource)
		require.NoError(t, err)
	}

	node, err := store.GetNode("1")
	require.NoError(t, err)
	assert.Equal(t, "node-1.domain.tld", node.Hostname)
	assert.Equal(t, types.NodeStatusDiscover, node.Status)
	assert.Equal(t, []string{"controller"}, node.Roles)
	assert.False(t, node.CreatedAt.IsZero())

	graph, err := store.GetGraph("default")
	require.NoError(t, err)
	require.Len(t, graph.Tasks, 2)
	assert.Equal(t, types.TaskTypeStage, graph.Tasks[0].Type)

	attrs, err := store.GetClusterAttributes()
	require.NoError(t, err)
	assert.Contains(t, attrs, "cluster")

	// Re-applying a node updates it in place
	msg, err := applyResource(store, broker, resources[0])
	require.NoError(t, err)
	assert.Equal(t, "Node updated: 1", msg)
	updated, err := store.GetNode("1")
	require.NoError(t, err)
	assert.True(t, node.CreatedAt.Equal(updated.CreatedAt))
}

func TestApplyResource_Invalid(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	tests := []struct {
		name     string
		document string
	}{
		{name: "unknown kind", document: "kind: Service\nmetadata: {name: web}"},
		{name: "node without name", document: "kind: Node\nspec: {roles: [controller]}"},
		{name: "graph without tasks", document: "kind: DeploymentGraph\nmetadata: {name: default}"},
		{name: "task without type", document: "kind: DeploymentGraph\nspec:\n  tasks: [{id: a}]"},
		{name: "empty task list", document: "kind: DeploymentGraph\nspec: {tasks: []}"},
		{name: "bad cluster spec", document: "kind: ClusterAttributes\nspec: [1, 2]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resources, err := decodeResources(strings.NewReader(tt.document))
			require.NoError(t, err)
			_, err = applyResource(store, broker, resources[0])
			assert.Error(t, err)
		})
	}
}

func TestSerializeFiles(t *testing.T) {
	tasks, err := types.LoadTasks([]byte(testTasks))
	require.NoError(t, err)
	nodes, err := loadNodes(writeFile(t, "nodes.yaml", testNodes))
	require.NoError(t, err)
	state, err := loadState(writeFile(t, "state.yaml", "cluster:\n  cluster: {id: 7}\n"))
	require.NoError(t, err)

	result, err := serializeFiles(tasks, nodes, state, lcm.Options{})
	require.NoError(t, err)
	assert.Equal(t, []types.NodeID{types.SyncNodeID, "1", "2"}, result.Graph.NodeIDs())

	database := result.Graph.Find("1", "database")
	require.NotNil(t, database)
	assert.Equal(t, "setup-db --cluster 7", database.Parameters["cmd"])
	assert.Equal(t, []types.Link{{Name: "netconfig", NodeID: "1"}}, database.Requires)

	netconfig := result.Graph.Find("2", "netconfig")
	require.NotNil(t, netconfig)
	assert.Equal(t, []types.Link{{Name: "deploy_start", NodeID: types.SyncNodeID}}, netconfig.Requires)
	assert.Nil(t, result.Graph.Find("2", "database"))

	selected, err := serializeFiles(tasks, nodes, state, lcm.Options{TaskIDs: []string{"database"}})
	require.NoError(t, err)
	assert.Equal(t, types.TaskTypeSkipped, selected.Graph.Find("1", "netconfig").Type)
	assert.Equal(t, types.TaskTypeShell, selected.Graph.Find("1", "database").Type)
}

func TestLoadNodes_Invalid(t *testing.T) {
	_, err := loadNodes(writeFile(t, "nodes.yaml", "- roles: [controller]\n"))
	assert.Error(t, err)

	_, err = loadNodes(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	state, err := loadState("")
	require.NoError(t, err)
	assert.Empty(t, state.Cluster)
}

func TestSerializeCommand(t *testing.T) {
	t.Setenv("ANVIL_DATA_DIR", t.TempDir())
	tasksFile := writeFile(t, "tasks.yaml", testTasks)
	nodesFile := writeFile(t, "nodes.yaml", testNodes)

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"serialize", "-f", tasksFile, "--nodes", nodesFile, "-o", "json"})
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	}()
	require.NoError(t, rootCmd.Execute())

	var payload struct {
		TasksGraph           map[string][]*types.ResolvedTask `json:"tasks_graph"`
		FaultToleranceGroups []types.FaultToleranceGroup     `json:"fault_tolerance_groups"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &payload))
	assert.Contains(t, payload.TasksGraph, "null")
	assert.Contains(t, payload.TasksGraph, "1")
	assert.Contains(t, payload.TasksGraph, "2")
	assert.NotNil(t, payload.FaultToleranceGroups)
}
