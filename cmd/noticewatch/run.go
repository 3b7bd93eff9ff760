package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scan every source once and exit",
	Long:  "One cron-style pass: load state, scan all orgs in parallel, save state. Exits non-zero only when state cannot be persisted.",
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, ok, err := setupPipeline(ctx, logger, false)
	if err != nil {
		logger.Error("failed to open state", "error", err)
		return err
	}
	if !ok {
		return nil
	}
	defer p.Close()

	if _, err := p.scheduler.RunOnce(ctx); err != nil {
		return err
	}
	return nil
}
