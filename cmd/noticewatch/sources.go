package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/amishk599/noticewatch/internal/poller"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List all configured sources",
	Long:  "Reads the config and the sources file and prints a table of every monitored page.",
	RunE:  runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

var (
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	tableBorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableBorderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		}).
		Headers(headers...)
}

func runSources(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	sources, err := cfg.ResolveSources()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load sources from %s: %v\n", cfg.SourcesFile, err)
		os.Exit(1)
	}

	t := newTable("Org", "URL", "Mode", "Render")
	for _, s := range sources {
		t.Row(s.Org, s.URL, string(s.EffectiveMode()), strconv.FormatBool(s.Render))
	}
	fmt.Println(t)

	orgs, _ := poller.GroupByOrg(sources)
	fmt.Printf("\nTotal: %d sources across %d orgs\n", len(sources), len(orgs))
	return nil
}
