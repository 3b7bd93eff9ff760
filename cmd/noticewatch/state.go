package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/amishk599/noticewatch/internal/config"
	"github.com/amishk599/noticewatch/internal/state"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect persisted state",
}

var stateShowCmd = &cobra.Command{
	Use:   "show [org]",
	Short: "Summarize state, or list one org's artifacts",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStateShow,
}

var stateExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the state snapshot as JSON",
	RunE:  runStateExport,
}

func init() {
	rootCmd.AddCommand(stateCmd)
	stateCmd.AddCommand(stateShowCmd, stateExportCmd)
}

func loadSnapshot(ctx context.Context) (state.Snapshot, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	return readSnapshot(ctx, cfg)
}

func readSnapshot(ctx context.Context, cfg *config.Config) (state.Snapshot, error) {
	repo, err := setupRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer repo.Close()
	return repo.Load(ctx)
}

func runStateShow(cmd *cobra.Command, args []string) error {
	snap, err := loadSnapshot(cmd.Context())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load state: %v\n", err)
		os.Exit(1)
	}

	if len(args) == 1 {
		org, ok := snap[args[0]]
		if !ok {
			return fmt.Errorf("org %q not found in state", args[0])
		}
		printOrg(org)
		return nil
	}

	t := newTable("Org", "Initialized", "PDFs", "Pages", "Last HTML Alert")
	for _, name := range snap.Orgs() {
		o := snap[name]
		t.Row(name, strconv.FormatBool(o.Initialized), strconv.Itoa(len(o.PDFs)), strconv.Itoa(len(o.Pages)), formatTime(o.LastHTMLAlertAt))
	}
	fmt.Println(t)
	fmt.Printf("\nTotal: %d orgs\n", len(snap))
	return nil
}

func printOrg(o *state.OrgState) {
	fmt.Printf("%s (initialized: %t, last HTML alert: %s)\n\n", o.Org, o.Initialized, formatTime(o.LastHTMLAlertAt))

	t := newTable("Kind", "URL", "Hash", "First Seen", "Last Alert")
	for _, u := range sortedKeys(o.PDFs) {
		p := o.PDFs[u]
		t.Row("pdf", u, shortHash(p.ContentHash), p.FirstSeenAt.Local().Format(time.DateTime), "")
	}
	for _, u := range sortedKeys(o.Pages) {
		p := o.Pages[u]
		t.Row("page", u, shortHash(p.ContentHash), p.FirstSeenAt.Local().Format(time.DateTime), formatTime(p.LastAlertAt))
	}
	fmt.Println(t)
}

func runStateExport(cmd *cobra.Command, args []string) error {
	snap, err := loadSnapshot(cmd.Context())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load state: %v\n", err)
		os.Exit(1)
	}
	data, err := state.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format(time.DateTime)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
