package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/anvil/pkg/events"
	"github.com/cuemby/anvil/pkg/log"
	"github.com/cuemby/anvil/pkg/types"
)

// Node commands
var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Manage cluster nodes",
}

var nodeAddCmd = &cobra.Command{
	Use:   "add ID",
	Short: "Register a node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hostname, _ := cmd.Flags().GetString("hostname")
		roles, _ := cmd.Flags().GetStringSlice("roles")
		pending, _ := cmd.Flags().GetStringSlice("pending-roles")

		id := types.NodeID(args[0])
		if id.IsSync() || id == types.MasterNodeID {
			return fmt.Errorf("invalid node id: %q", args[0])
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		node := &types.Node{
			ID:           id,
			Hostname:     hostname,
			Roles:        splitList(roles),
			PendingRoles: splitList(pending),
			Status:       types.NodeStatusDiscover,
			CreatedAt:    time.Now(),
		}
		if err := store.CreateNode(node); err != nil {
			return fmt.Errorf("failed to add node: %v", err)
		}
		logger := log.WithNodeID(string(id))
		logger.Info().Strs("roles", node.AllRoles()).Msg("Node added")
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Node added: %s\n", id)
		return nil
	},
}

var nodeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		nodes, err := store.ListNodes()
		if err != nil {
			return fmt.Errorf("failed to list nodes: %v", err)
		}
		if len(nodes) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No nodes found")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tHOSTNAME\tSTATUS\tROLES\tPENDING")
		for _, node := range nodes {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				node.ID, node.Hostname, node.Status,
				strings.Join(node.Roles, ","), strings.Join(node.PendingRoles, ","))
		}
		return w.Flush()
	},
}

var nodeRemoveCmd = &cobra.Command{
	Use:     "rm ID",
	Aliases: []string{"remove"},
	Short:   "Remove a node and its applied state",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		id := types.NodeID(args[0])
		if _, err := store.GetNode(id); err != nil {
			return err
		}
		if err := store.DeleteNode(id); err != nil {
			return fmt.Errorf("failed to remove node: %v", err)
		}

		broker, stop := startEventLog()
		defer stop()
		broker.Publish(&events.Event{
			Type:     events.EventNodeRemoved,
			Message:  "node removed",
			Metadata: map[string]string{"node_id": string(id)},
		})
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Node removed: %s\n", id)
		return nil
	},
}

// Graph commands
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Manage deployment graphs",
}

var graphUploadCmd = &cobra.Command{
	Use:   "upload NAME",
	Short: "Upload a task list as a deployment graph",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		filename, _ := cmd.Flags().GetString("file")
		data, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("failed to read file: %v", err)
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		broker, stop := startEventLog()
		defer stop()

		msg, err := uploadGraph(store, broker, args[0], data)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %s\n", msg)
		return nil
	},
}

var graphListCmd = &cobra.Command{
	Use:   "list",
	Short: "List deployment graphs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		graphs, err := store.ListGraphs()
		if err != nil {
			return fmt.Errorf("failed to list graphs: %v", err)
		}
		if len(graphs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No graphs found")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tTASKS\tCREATED")
		for _, graph := range graphs {
			fmt.Fprintf(w, "%s\t%d\t%s\n", graph.Name, len(graph.Tasks), graph.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var graphShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Print a deployment graph's tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		graph, err := store.GetGraph(args[0])
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), output, graph.Tasks)
	},
}

var graphRemoveCmd = &cobra.Command{
	Use:     "rm NAME",
	Aliases: []string{"remove"},
	Short:   "Delete a deployment graph",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if _, err := store.GetGraph(args[0]); err != nil {
			return err
		}
		if err := store.DeleteGraph(args[0]); err != nil {
			return fmt.Errorf("failed to delete graph: %v", err)
		}

		broker, stop := startEventLog()
		defer stop()
		broker.Publish(&events.Event{
			Type:     events.EventGraphDeleted,
			Message:  "deployment graph deleted",
			Metadata: map[string]string{"graph": args[0]},
		})
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Graph deleted: %s\n", args[0])
		return nil
	},
}

func init() {
	nodeAddCmd.Flags().String("hostname", "", "Node FQDN")
	nodeAddCmd.Flags().StringSlice("roles", nil, "Assigned roles")
	nodeAddCmd.Flags().StringSlice("pending-roles", nil, "Roles being added by the next deployment")

	nodeCmd.AddCommand(nodeAddCmd)
	nodeCmd.AddCommand(nodeListCmd)
	nodeCmd.AddCommand(nodeRemoveCmd)

	graphUploadCmd.Flags().StringP("file", "f", "", "Task list (YAML or JSON)")
	_ = graphUploadCmd.MarkFlagRequired("file")
	graphShowCmd.Flags().StringP("output", "o", "yaml", "Output format: json, yaml")

	graphCmd.AddCommand(graphUploadCmd)
	graphCmd.AddCommand(graphListCmd)
	graphCmd.AddCommand(graphShowCmd)
	graphCmd.AddCommand(graphRemoveCmd)

	rootCmd.AddCommand(nodeCmd)
	rootCmd.AddCommand(graphCmd)
}

// startEventLog starts a broker whose events are written to the debug log.
// Events still queued when stop is called are dropped.
func startEventLog() (*events.Broker, func()) {
	broker := events.NewBroker()
	broker.Start()

	sub := broker.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		logger := log.WithComponent("events")
		for event := range sub {
			logger.Debug().
				Str("event_id", event.ID).
				Str("type", string(event.Type)).
				Interface("metadata", event.Metadata).
				Msg(event.Message)
		}
	}()

	return broker, func() {
		broker.Stop()
		broker.Unsubscribe(sub)
		<-done
	}
}
