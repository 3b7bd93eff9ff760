package main

import (
	"context"
	"fmt"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/amishk599/noticewatch/internal/model"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Scan once without saving state",
	Long:  "Dry run: scans every source against a throw-away copy of the saved state. Alerts go to the log and nothing is persisted.",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)
	logger.Info("check mode: state will not be saved")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, ok, err := setupPipeline(ctx, logger, true)
	if err != nil {
		logger.Error("failed to open state", "error", err)
		return err
	}
	if !ok {
		return nil
	}
	defer p.Close()

	report, err := p.scheduler.RunOnce(ctx)
	if err != nil {
		return err
	}

	sort.Slice(report.Summaries, func(i, j int) bool {
		return report.Summaries[i].Org < report.Summaries[j].Org
	})

	fmt.Printf("\n%-30s %8s %8s %8s %6s %8s %10s\n", "Org", "Links", "Rejected", "Skipped", "New", "Changed", "Suppressed")
	fmt.Println(strings.Repeat("─", 84))
	for _, s := range report.Summaries {
		fmt.Printf("%-30s %8d %8d %8d %6d %8d %10d\n",
			s.Org, s.Candidates, s.Rejected, s.Skipped,
			s.Verdicts[model.VerdictNew], s.Verdicts[model.VerdictChanged], s.Verdicts[model.VerdictSuppressed])
	}
	fmt.Printf("\nTotal: %d orgs, %d alerts, %d failed\n", len(report.Summaries), report.Alerts(), report.Failed)
	return nil
}
