package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/anvil/pkg/config"
	"github.com/cuemby/anvil/pkg/log"
	"github.com/cuemby/anvil/pkg/metrics"
	"github.com/cuemby/anvil/pkg/storage"
	"github.com/cuemby/anvil/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// cfg is resolved once per invocation in PersistentPreRunE
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "anvil",
	Short: "Anvil - deployment task graph engine for bare-metal clouds",
	Long: `Anvil turns declarative deployment tasks into per-node execution
graphs for an OpenStack cluster. Tasks are placed on nodes by role,
rendered against each node's deployment data and linked across nodes
into a single dependency graph handed to execution agents.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Anvil version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (YAML)")
	flags.String("data-dir", "", "Data directory (overrides config)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.Bool("log-json", false, "Log as JSON")
}

// setup resolves configuration from file, env and flags, in rising priority
func setup(cmd *cobra.Command, args []string) error {
	log.Init(config.Default().LogConfig())
	config.LoadEnv()

	path, _ := cmd.Flags().GetString("config")
	loaded, err := config.Load(path)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("data-dir") {
		loaded.DataDir, _ = cmd.Flags().GetString("data-dir")
	}
	if cmd.Flags().Changed("log-level") {
		loaded.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("log-json") {
		loaded.LogJSON, _ = cmd.Flags().GetBool("log-json")
	}
	if err := loaded.Validate(); err != nil {
		return err
	}

	cfg = loaded
	log.Init(cfg.LogConfig())
	metrics.SetVersion(Version)
	return nil
}

func openStore() (storage.Store, error) {
	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %v", err)
	}
	return store, nil
}

// writeOutput encodes v as indented JSON or YAML
func writeOutput(w io.Writer, format string, v interface{}) error {
	switch format {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// parseNodeIDs turns "1,2, 3" into node ids; empty input selects nothing
func parseNodeIDs(values []string) []types.NodeID {
	var ids []types.NodeID
	for _, part := range splitList(values) {
		ids = append(ids, types.NodeID(part))
	}
	return ids
}

// splitList flattens repeated and comma separated flag values
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
