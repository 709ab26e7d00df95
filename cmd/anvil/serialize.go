package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/anvil/pkg/deploy"
	"github.com/cuemby/anvil/pkg/lcm"
	"github.com/cuemby/anvil/pkg/roles"
	"github.com/cuemby/anvil/pkg/types"
)

var serializeCmd = &cobra.Command{
	Use:   "serialize",
	Short: "Build a task graph from files without touching the store",
	Long: `Serialize a task list against a set of nodes and print the resulting
per-node graph in the same shape that is sent to execution agents.

Examples:
  anvil serialize -f tasks.yaml --nodes nodes.yaml
  anvil serialize -f tasks.yaml --nodes nodes.yaml --state state.yaml -o yaml
  anvil serialize -f tasks.yaml --nodes nodes.yaml --tasks netconfig,globals

The state file is optional:
  cluster:            # shared deployment data
    openstack_version: 2015.1.0-8.0
  current:            # data applied by the last deployment, per node id
    "1": {roles: [controller]}`,
	RunE: runSerialize,
}

func init() {
	serializeCmd.Flags().StringP("file", "f", "", "Task list (YAML or JSON, required)")
	serializeCmd.Flags().String("nodes", "", "Node list (YAML or JSON, required)")
	serializeCmd.Flags().String("state", "", "Cluster and applied node data")
	serializeCmd.Flags().StringSlice("tasks", nil, "Only run these task ids")
	serializeCmd.Flags().StringP("output", "o", "json", "Output format: json, yaml")
	serializeCmd.Flags().Bool("check-cycles", true, "Fail when the graph has a cycle")
	_ = serializeCmd.MarkFlagRequired("file")
	_ = serializeCmd.MarkFlagRequired("nodes")

	rootCmd.AddCommand(serializeCmd)
}

// stateFile is the optional deployment data of the serialize command
type stateFile struct {
	Cluster map[string]interface{}            `yaml:"cluster"`
	Current map[string]map[string]interface{} `yaml:"current"`
}

func runSerialize(cmd *cobra.Command, args []string) error {
	tasksFile, _ := cmd.Flags().GetString("file")
	nodesFile, _ := cmd.Flags().GetString("nodes")
	stateFilename, _ := cmd.Flags().GetString("state")
	taskIDs, _ := cmd.Flags().GetStringSlice("tasks")
	output, _ := cmd.Flags().GetString("output")
	checkCycles, _ := cmd.Flags().GetBool("check-cycles")

	data, err := os.ReadFile(tasksFile)
	if err != nil {
		return fmt.Errorf("failed to read tasks: %v", err)
	}
	tasks, err := types.LoadTasks(data)
	if err != nil {
		return err
	}

	nodes, err := loadNodes(nodesFile)
	if err != nil {
		return err
	}
	state, err := loadState(stateFilename)
	if err != nil {
		return err
	}

	opts := cfg.SerializerOptions()
	opts.TaskIDs = splitList(taskIDs)
	result, err := serializeFiles(tasks, nodes, state, opts)
	if err != nil {
		return err
	}
	if checkCycles {
		if err := lcm.CheckCycles(result.Graph); err != nil {
			return err
		}
	}

	msg := deploy.NewMessage(&types.Transaction{
		Graph:                result.Graph,
		FaultToleranceGroups: result.FaultToleranceGroups,
	})
	return writeOutput(cmd.OutOrStdout(), output, struct {
		TasksGraph           map[string][]*types.ResolvedTask `json:"tasks_graph" yaml:"tasks_graph"`
		FaultToleranceGroups []types.FaultToleranceGroup     `json:"fault_tolerance_groups" yaml:"fault_tolerance_groups"`
	}{msg.TasksGraph, msg.FaultToleranceGroups})
}

// serializeFiles builds the graph the way a deployment would, from
// in-memory nodes and state
func serializeFiles(tasks []*types.TaskDefinition, nodes []*types.Node, state *stateFile, opts lcm.Options) (*lcm.Result, error) {
	states := &lcm.StaticState{
		Cluster:  state.Cluster,
		Expected: make(map[types.NodeID]map[string]interface{}, len(nodes)),
		Current:  make(map[types.NodeID]map[string]interface{}, len(state.Current)),
	}
	for _, node := range nodes {
		states.Expected[node.ID] = deploy.NodeData(node)
	}
	for id, data := range state.Current {
		states.Current[types.NodeID(id)] = data
	}

	ts, err := lcm.NewTransactionSerializer(lcm.NewContext(states), roles.NewNodeResolver(nodes), opts)
	if err != nil {
		return nil, err
	}
	return ts.Serialize(tasks)
}

func loadNodes(path string) ([]*types.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read nodes: %v", err)
	}
	var nodes []*types.Node
	if err := yaml.Unmarshal(data, &nodes); err != nil {
		return nil, fmt.Errorf("failed to parse nodes: %v", err)
	}
	for i, node := range nodes {
		if node == nil || node.ID.IsSync() {
			return nil, fmt.Errorf("node #%d has no id", i)
		}
	}
	return nodes, nil
}

func loadState(path string) (*stateFile, error) {
	state := &stateFile{}
	if path == "" {
		return state, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read state: %v", err)
	}
	if err := yaml.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("failed to parse state: %v", err)
	}
	return state, nil
}
