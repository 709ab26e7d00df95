package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/anvil/pkg/log"
	"github.com/cuemby/anvil/pkg/metrics"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Serve Prometheus metrics and health endpoints",
	Long: `Serve /metrics, /health and /ready until interrupted. Inventory gauges
are refreshed from the store every collect interval.

The store stays open while serving, so other commands using the same
data directory wait for it.`,
	RunE: runMetrics,
}

func init() {
	metricsCmd.Flags().String("addr", "", "Listen address (overrides config)")
	metricsCmd.Flags().Duration("interval", 0, "Collect interval (overrides config)")

	rootCmd.AddCommand(metricsCmd)
}

func runMetrics(cmd *cobra.Command, args []string) error {
	addr := cfg.MetricsAddr
	if cmd.Flags().Changed("addr") {
		addr, _ = cmd.Flags().GetString("addr")
	}
	interval := cfg.CollectInterval
	if cmd.Flags().Changed("interval") {
		interval, _ = cmd.Flags().GetDuration("interval")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	collector := metrics.NewCollector(store, interval)
	collector.Start()
	defer collector.Stop()

	server := &http.Server{
		Addr:              addr,
		Handler:           metrics.NewMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server error: %v", err)
		}
	}()

	logger := log.WithComponent("metrics")
	logger.Info().Str("addr", addr).Dur("interval", interval).Msg("Serving metrics")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
		logger.Info().Msg("Shutting down")
	case err := <-errCh:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown: %v", err)
	}
	return nil
}
