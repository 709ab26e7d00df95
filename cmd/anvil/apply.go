package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/anvil/pkg/deploy"
	"github.com/cuemby/anvil/pkg/events"
	"github.com/cuemby/anvil/pkg/log"
	"github.com/cuemby/anvil/pkg/storage"
	"github.com/cuemby/anvil/pkg/types"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a configuration file",
	Long: `Apply nodes, deployment graphs and cluster attributes from a YAML file.
The file may hold several documents separated by "---".

Examples:
  # Register nodes and upload the default graph
  anvil apply -f cluster.yaml

Document kinds:
  Node               metadata.name is the node id; spec holds hostname,
                     roles, pending_roles, status and attributes
  DeploymentGraph    metadata.name is the graph name; spec.tasks is the
                     task list
  ClusterAttributes  spec is stored as cluster-wide deployment data`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(applyCmd)
}

// Resource is one document of an apply file
type Resource struct {
	APIVersion string           `yaml:"apiVersion"`
	Kind       string           `yaml:"kind"`
	Metadata   ResourceMetadata `yaml:"metadata"`
	Spec       yaml.Node        `yaml:"spec"`
}

type ResourceMetadata struct {
	Name   string            `yaml:"name"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}
	defer f.Close()

	resources, err := decodeResources(f)
	if err != nil {
		return err
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	broker, stop := startEventLog()
	defer stop()

	for _, resource := range resources {
		msg, err := applyResource(store, broker, resource)
		if err != nil {
			return fmt.Errorf("%s %s: %v", resource.Kind, resource.Metadata.Name, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", msg)
	}
	return nil
}

// decodeResources reads every document in r, skipping empty ones
func decodeResources(r io.Reader) ([]*Resource, error) {
	var resources []*Resource
	dec := yaml.NewDecoder(r)
	for {
		var resource Resource
		err := dec.Decode(&resource)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %v", err)
		}
		if resource.Kind == "" {
			continue
		}
		resources = append(resources, &resource)
	}
	if len(resources) == 0 {
		return nil, fmt.Errorf("no resources found")
	}
	return resources, nil
}

func applyResource(store storage.Store, broker *events.Broker, resource *Resource) (string, error) {
	switch resource.Kind {
	case "Node":
		return applyNode(store, broker, resource)
	case "DeploymentGraph":
		return applyGraph(store, broker, resource)
	case "ClusterAttributes":
		return applyClusterAttributes(store, resource)
	default:
		return "", fmt.Errorf("unsupported resource kind: %s", resource.Kind)
	}
}

func decodeSpec(resource *Resource, v interface{}) error {
	if resource.Spec.Kind == 0 {
		return nil
	}
	if err := resource.Spec.Decode(v); err != nil {
		return fmt.Errorf("invalid spec: %v", err)
	}
	return nil
}

func applyNode(store storage.Store, broker *events.Broker, resource *Resource) (string, error) {
	var node types.Node
	if err := decodeSpec(resource, &node); err != nil {
		return "", err
	}
	node.ID = types.NodeID(resource.Metadata.Name)
	if node.ID.IsSync() {
		return "", fmt.Errorf("node name is required")
	}
	if node.Status == "" {
		node.Status = types.NodeStatusDiscover
	}

	existing, err := store.GetNode(node.ID)
	switch {
	case err == nil:
		node.CreatedAt = existing.CreatedAt
		if err := store.UpdateNode(&node); err != nil {
			return "", err
		}
		return fmt.Sprintf("Node updated: %s", node.ID), nil
	case !errors.Is(err, storage.ErrNotFound):
		return "", err
	}

	node.CreatedAt = time.Now()
	if err := store.CreateNode(&node); err != nil {
		return "", err
	}
	broker.Publish(&events.Event{
		Type:     events.EventNodeAdded,
		Message:  "node added",
		Metadata: map[string]string{"node_id": string(node.ID)},
	})
	return fmt.Sprintf("Node created: %s (roles=%v)", node.ID, node.AllRoles()), nil
}

func applyGraph(store storage.Store, broker *events.Broker, resource *Resource) (string, error) {
	var spec struct {
		Tasks yaml.Node `yaml:"tasks"`
	}
	if err := decodeSpec(resource, &spec); err != nil {
		return "", err
	}
	if spec.Tasks.Kind == 0 {
		return "", fmt.Errorf("spec.tasks is required")
	}
	data, err := yaml.Marshal(&spec.Tasks)
	if err != nil {
		return "", err
	}
	name := resource.Metadata.Name
	if name == "" {
		name = deploy.DefaultGraphName
	}
	return uploadGraph(store, broker, name, data)
}

func uploadGraph(store storage.Store, broker *events.Broker, name string, data []byte) (string, error) {
	tasks, err := types.LoadTasks(data)
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return "", fmt.Errorf("graph %s has no tasks", name)
	}

	graph := &types.DeploymentGraph{Name: name, Tasks: tasks, CreatedAt: time.Now()}
	if err := store.PutGraph(graph); err != nil {
		return "", err
	}
	broker.Publish(&events.Event{
		Type:     events.EventGraphUploaded,
		Message:  "deployment graph uploaded",
		Metadata: map[string]string{"graph": name},
	})
	logger := log.WithGraph(name)
	logger.Debug().Int("tasks", len(tasks)).Msg("Graph stored")
	return fmt.Sprintf("Graph uploaded: %s (%d tasks)", name, len(tasks)), nil
}

func applyClusterAttributes(store storage.Store, resource *Resource) (string, error) {
	attrs := make(map[string]interface{})
	if err := decodeSpec(resource, &attrs); err != nil {
		return "", err
	}
	if err := store.PutClusterAttributes(attrs); err != nil {
		return "", err
	}
	return fmt.Sprintf("Cluster attributes stored (%d keys)", len(attrs)), nil
}
