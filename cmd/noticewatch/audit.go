package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/amishk599/noticewatch/internal/audit"
	"github.com/amishk599/noticewatch/internal/classify"
	"github.com/amishk599/noticewatch/internal/config"
	"github.com/amishk599/noticewatch/internal/model"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Browse classifier decisions interactively (TUI)",
	Long:  "Shows the source picker, scans the chosen homepage, then launches the split-pane view of every harvested link next to what state already holds.",
	RunE:  runAuditCmd,
}

func init() {
	rootCmd.AddCommand(auditCmd)
}

func runAuditCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	sources, err := cfg.ResolveSources()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load sources: %v\n", err)
		os.Exit(1)
	}

	// Any log output corrupts the TUI, so the fetch chain logs nowhere.
	silentLogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runAudit(cmd.Context(), cfg, sources, silentLogger)
	return nil
}

func runAudit(ctx context.Context, cfg *config.Config, sources []model.Source, logger *slog.Logger) {
	snap, err := readSnapshot(ctx, cfg)
	if err != nil {
		fmt.Printf("Error loading state: %v\n", err)
		return
	}

	fetcher, renderer := setupFetchers(cfg, logger)
	cls := classify.NewClassifier(cfg.Classifier, nil)
	checker := &audit.Checker{Fetcher: fetcher, Classifier: cls}

	for {
		choice, err := audit.RunSourcePicker(sources)
		if err != nil {
			fmt.Printf("Picker error: %v\n", err)
			return
		}
		if choice < 0 {
			return
		}
		src := sources[choice]

		homepage := fetcher
		if src.Render {
			homepage = renderer
		}
		entries, err := audit.RunLoader(src.Org, cfg.Fetch.Timeout*4, func(ctx context.Context) ([]audit.Entry, error) {
			return audit.Scan(ctx, src, homepage, cls, snap[src.Org])
		})
		if err != nil {
			fmt.Printf("Error scanning %s: %v\n", src.URL, err)
			continue
		}

		wantQuit, err := audit.RunAuditTUI(src.Org, entries, checker)
		if err != nil {
			fmt.Printf("TUI error: %v\n", err)
		}
		if wantQuit {
			return
		}
	}
}
