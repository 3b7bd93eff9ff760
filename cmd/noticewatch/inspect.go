package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/spf13/cobra"

	"github.com/amishk599/noticewatch/internal/classify"
	"github.com/amishk599/noticewatch/internal/detect"
	"github.com/amishk599/noticewatch/internal/extract"
)

var (
	inspectRender   bool
	inspectMarkdown bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <url>",
	Short: "Fetch one URL and show what the classifier makes of it",
	Long:  "Fetches a single page through the configured fetch chain and prints its content hash, harvested links, page decision and notice date.",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectRender, "render", false, "fetch through the headless browser")
	inspectCmd.Flags().BoolVar(&inspectMarkdown, "markdown", false, "print a markdown preview of the page")
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if debug {
		logger = setupLogger(true)
	}

	fetcher, renderer := setupFetchers(cfg, logger)
	if inspectRender {
		fetcher = renderer
	}
	cls := classify.NewClassifier(cfg.Classifier, nil)

	target := args[0]
	res := fetcher.Fetch(cmd.Context(), target)
	fmt.Printf("URL:      %s\n", target)
	if res.URL != "" && res.URL != target {
		fmt.Printf("Final:    %s\n", res.URL)
	}
	fmt.Printf("Status:   %s\n", res.Status)
	if !res.OK() {
		return res.Failure()
	}
	fmt.Printf("Type:     %s\n", res.ContentType)
	fmt.Printf("Size:     %d bytes\n", len(res.Body))
	fmt.Printf("Hash:     %s\n", detect.Hash(res.Body))

	parsed, err := url.Parse(target)
	if err == nil && extract.IsPDF(parsed) {
		printDecision("PDF", cls.PDF(target))
		return nil
	}

	markup := string(res.Body)
	base := res.URL
	if base == "" {
		base = target
	}

	printDecision("Page", cls.Page(markup))
	printDecision("Issue", cls.Issue(markup))

	cands := extract.Links(markup, base, cfg.Classifier.PagePatterns)
	fmt.Printf("\nPDF links (%d)\n", len(cands.PDFs))
	for _, u := range cands.PDFs {
		fmt.Printf("  %s  %s\n", mark(cls.PDF(u)), u)
	}
	fmt.Printf("\nNotice pages (%d)\n", len(cands.Pages))
	for _, u := range cands.Pages {
		fmt.Printf("  %s  %s\n", mark(cls.PageURL(u)), u)
	}

	if inspectMarkdown {
		domain := ""
		if parsed != nil {
			domain = parsed.Host
		}
		converter := md.NewConverter(domain, true, nil)
		preview, err := converter.ConvertString(markup)
		if err != nil {
			return fmt.Errorf("converting to markdown: %w", err)
		}
		fmt.Printf("\n%s\n%s\n", strings.Repeat("─", 60), preview)
	}
	return nil
}

func printDecision(label string, d classify.Decision) {
	line := fmt.Sprintf("%-9s %s", label+":", decisionLabel(d))
	if d.Date != nil {
		line += fmt.Sprintf(" (dated %s)", d.Date.Format(time.DateOnly))
	}
	fmt.Println(line)
}

func decisionLabel(d classify.Decision) string {
	if d.Accept {
		return "accepted"
	}
	return "rejected: " + d.Reason
}

func mark(d classify.Decision) string {
	if d.Accept {
		return "✓"
	}
	return "✗ (" + d.Reason + ")"
}
