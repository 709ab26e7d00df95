package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/anvil/pkg/deploy"
)

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Build and dispatch a deployment transaction",
	Long: `Deploy serializes a stored graph against the registered nodes, records
the transaction and writes the agent payload to stdout or --out.

Examples:
  anvil deploy
  anvil deploy --graph provision --nodes 1,2
  anvil deploy --tasks netconfig --dry-run`,
	RunE: runDeploy,
}

func init() {
	deployCmd.Flags().String("graph", deploy.DefaultGraphName, "Deployment graph name")
	deployCmd.Flags().StringSlice("tasks", nil, "Only run these task ids")
	deployCmd.Flags().StringSlice("nodes", nil, "Only deploy these node ids")
	deployCmd.Flags().Bool("dry-run", false, "Record the transaction without dispatching it")
	deployCmd.Flags().String("out", "", "Write the agent payload to this file instead of stdout")

	rootCmd.AddCommand(deployCmd)
}

func runDeploy(cmd *cobra.Command, args []string) error {
	graphName, _ := cmd.Flags().GetString("graph")
	taskIDs, _ := cmd.Flags().GetStringSlice("tasks")
	nodeIDs, _ := cmd.Flags().GetStringSlice("nodes")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	out, _ := cmd.Flags().GetString("out")

	var w io.Writer = cmd.OutOrStdout()
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create output: %v", err)
		}
		defer f.Close()
		w = f
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	broker, stop := startEventLog()
	defer stop()

	deployer := deploy.NewDeployer(store, deploy.NewWriterDispatcher(w, true), broker, cfg.SerializerOptions())
	tx, err := deployer.Deploy(context.Background(), deploy.DeployRequest{
		GraphName: graphName,
		TaskIDs:   splitList(taskIDs),
		NodeIDs:   parseNodeIDs(nodeIDs),
		DryRun:    dryRun,
	})
	if err != nil {
		if tx != nil {
			return fmt.Errorf("transaction %s failed: %v", tx.ID, err)
		}
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "✓ Transaction %s %s (%d nodes, %d tasks)\n",
		tx.ID, tx.Status, len(tx.NodeIDs), tx.Graph.TaskCount())
	return nil
}

// Transaction commands
var transactionCmd = &cobra.Command{
	Use:     "transaction",
	Aliases: []string{"tx"},
	Short:   "Inspect and complete deployment transactions",
}

var transactionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List transactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		txs, err := store.ListTransactions()
		if err != nil {
			return fmt.Errorf("failed to list transactions: %v", err)
		}
		if len(txs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No transactions found")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tGRAPH\tSTATUS\tNODES\tCREATED")
		for _, tx := range txs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				tx.ID, tx.GraphName, tx.Status, len(tx.NodeIDs), tx.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var transactionShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if output != "" {
			tx, err := store.GetTransaction(args[0])
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, tx)
		}

		status, err := deploy.NewDeployer(store, nil, nil, cfg.SerializerOptions()).GetTransactionStatus(args[0])
		if err != nil {
			return err
		}
		printStatus(cmd.OutOrStdout(), status)
		return nil
	},
}

var transactionCompleteCmd = &cobra.Command{
	Use:   "complete ID",
	Short: "Record the execution result of a running transaction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		failed, _ := cmd.Flags().GetBool("failed")
		message, _ := cmd.Flags().GetString("message")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		broker, stop := startEventLog()
		defer stop()

		deployer := deploy.NewDeployer(store, nil, broker, cfg.SerializerOptions())
		tx, err := deployer.Complete(context.Background(), args[0], !failed, message)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Transaction %s is %s\n", tx.ID, tx.Status)
		return nil
	},
}

func init() {
	transactionShowCmd.Flags().StringP("output", "o", "", "Print the full record: json, yaml")
	transactionCompleteCmd.Flags().Bool("failed", false, "Mark the transaction as failed")
	transactionCompleteCmd.Flags().String("message", "", "Failure message")

	transactionCmd.AddCommand(transactionListCmd)
	transactionCmd.AddCommand(transactionShowCmd)
	transactionCmd.AddCommand(transactionCompleteCmd)

	rootCmd.AddCommand(transactionCmd)
}

func printStatus(w io.Writer, status *deploy.TransactionStatus) {
	fmt.Fprintf(w, "Transaction: %s\n", status.ID)
	fmt.Fprintf(w, "  Graph:  %s\n", status.GraphName)
	fmt.Fprintf(w, "  Status: %s\n", status.Status)
	if status.Error != "" {
		fmt.Fprintf(w, "  Error:  %s\n", status.Error)
	}
	fmt.Fprintf(w, "  Nodes:  %d\n", status.Nodes)
	fmt.Fprintf(w, "  Tasks:  %d (%d executable)\n", status.TotalTasks, status.ExecutableTasks)

	taskTypes := make([]string, 0, len(status.Tasks))
	for taskType := range status.Tasks {
		taskTypes = append(taskTypes, taskType)
	}
	sort.Strings(taskTypes)
	for _, taskType := range taskTypes {
		fmt.Fprintf(w, "    %-10s %d\n", taskType, status.Tasks[taskType])
	}
}
