// Package poller scans one organization's sources and feeds every accepted
// artifact to the change detector.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/amishk599/noticewatch/internal/classify"
	"github.com/amishk599/noticewatch/internal/detect"
	"github.com/amishk599/noticewatch/internal/extract"
	"github.com/amishk599/noticewatch/internal/model"
)

// ErrNoHomepage is returned when none of an org's homepages could be fetched.
var ErrNoHomepage = errors.New("no homepage fetched")

// Summary counts what one Poll saw.
type Summary struct {
	Org        string
	Sources    int
	Homepages  int // homepages fetched successfully
	Candidates int // links harvested
	Rejected   int // candidates dropped by the classifier
	Skipped    int // fetch failures
	Verdicts   map[model.Verdict]int
}

// Alerts returns how many verdicts reached the notifier.
func (s Summary) Alerts() int {
	return s.Verdicts[model.VerdictNew] + s.Verdicts[model.VerdictChanged]
}

// OrgPoller owns the scan pipeline for a single organization:
// fetch homepage → extract links → classify → fetch artifact → detect.
type OrgPoller struct {
	Org        string
	sources    []model.Source
	fetcher    model.Fetcher
	renderer   model.Fetcher // for sources with Render set; nil falls back to fetcher
	classifier *classify.Classifier
	detector   *detect.Detector
	workers    int
	logger     *slog.Logger
}

// NewOrgPoller creates a poller for the sources of one org. workers bounds
// concurrent artifact fetches within the org.
func NewOrgPoller(
	org string,
	sources []model.Source,
	fetcher model.Fetcher,
	renderer model.Fetcher,
	classifier *classify.Classifier,
	detector *detect.Detector,
	workers int,
	logger *slog.Logger,
) *OrgPoller {
	if workers < 1 {
		workers = 1
	}
	if renderer == nil {
		renderer = fetcher
	}
	return &OrgPoller{
		Org:        org,
		sources:    sources,
		fetcher:    fetcher,
		renderer:   renderer,
		classifier: classifier,
		detector:   detector,
		workers:    workers,
		logger:     logger.With("org", org),
	}
}

// Sources returns the sources scanned by this poller.
func (p *OrgPoller) Sources() []model.Source {
	return p.sources
}

// Poll runs one scan over every source. Individual fetch failures and
// rejections are logged and counted, never returned. The org is marked
// initialized once at least one homepage was fetched and ctx is still live.
func (p *OrgPoller) Poll(ctx context.Context) (Summary, error) {
	sum := &tally{Summary: Summary{
		Org:      p.Org,
		Sources:  len(p.sources),
		Verdicts: make(map[model.Verdict]int),
	}}

	for _, src := range p.sources {
		if ctx.Err() != nil {
			break
		}
		p.scanSource(ctx, src, sum)
	}

	if sum.Homepages == 0 {
		return sum.Summary, fmt.Errorf("polling %s: %w", p.Org, ErrNoHomepage)
	}
	// An interrupted scan is not a complete baseline.
	if err := ctx.Err(); err != nil {
		return sum.Summary, fmt.Errorf("polling %s: %w", p.Org, err)
	}
	if err := p.detector.CompleteScan(p.Org); err != nil {
		return sum.Summary, fmt.Errorf("polling %s: completing scan: %w", p.Org, err)
	}

	p.logger.Info("polled org",
		"sources", sum.Sources,
		"candidates", sum.Candidates,
		"rejected", sum.Rejected,
		"skipped", sum.Skipped,
		"alerts", sum.Alerts(),
	)
	return sum.Summary, nil
}

func (p *OrgPoller) scanSource(ctx context.Context, src model.Source, sum *tally) {
	key, ok := extract.Canonicalize(src.URL, src.URL)
	if !ok {
		p.logger.Warn("skipping source with unusable url", "url", src.URL)
		sum.skip()
		return
	}

	fetcher := p.fetcher
	if src.Render {
		fetcher = p.renderer
	}
	res := fetcher.Fetch(ctx, key)
	if !res.OK() {
		p.logger.Warn("homepage fetch failed", "url", key, "status", res.Status, "error", res.Err)
		sum.skip()
		return
	}
	sum.homepage()

	switch src.EffectiveMode() {
	case model.ModeIndexHash:
		p.observe(sum, key, func() (model.Verdict, error) {
			return p.detector.ObserveIssue(ctx, p.Org, key, detect.Hash(res.Body))
		})

	case model.ModePeriodicalIssue:
		if d := p.classifier.Issue(string(res.Body)); !d.Accept {
			p.logger.Info("issue rejected", "url", key, "reason", d.Reason)
			sum.reject()
			return
		}
		p.observe(sum, key, func() (model.Verdict, error) {
			return p.detector.ObserveIssue(ctx, p.Org, key, detect.Hash(res.Body))
		})

	default:
		base := res.URL
		if base == "" {
			base = key
		}
		p.scanLinks(ctx, string(res.Body), base, sum)
	}
}

// scanLinks harvests candidates from a homepage and processes them with at
// most p.workers in flight.
func (p *OrgPoller) scanLinks(ctx context.Context, markup, base string, sum *tally) {
	cands := extract.Links(markup, base, p.classifier.Rules().PagePatterns)
	sum.candidates(len(cands.PDFs) + len(cands.Pages))

	var g errgroup.Group
	g.SetLimit(p.workers)

	for _, u := range cands.PDFs {
		g.Go(func() error {
			p.scanPDF(ctx, u, sum)
			return nil
		})
	}
	for _, u := range cands.Pages {
		g.Go(func() error {
			p.scanPage(ctx, u, sum)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *OrgPoller) scanPDF(ctx context.Context, pdfURL string, sum *tally) {
	if d := p.classifier.PDF(pdfURL); !d.Accept {
		p.logger.Debug("pdf rejected", "url", pdfURL, "reason", d.Reason)
		sum.reject()
		return
	}

	res := p.fetcher.Fetch(ctx, pdfURL)
	if !res.OK() {
		p.logger.Info("pdf fetch skipped", "url", pdfURL, "status", res.Status, "error", res.Err)
		sum.skip()
		return
	}

	p.observe(sum, pdfURL, func() (model.Verdict, error) {
		return p.detector.ObservePDF(ctx, p.Org, pdfURL, detect.Hash(res.Body))
	})
}

func (p *OrgPoller) scanPage(ctx context.Context, pageURL string, sum *tally) {
	if d := p.classifier.PageURL(pageURL); !d.Accept {
		p.logger.Debug("page rejected before fetch", "url", pageURL, "reason", d.Reason)
		sum.reject()
		return
	}

	res := p.fetcher.Fetch(ctx, pageURL)
	if !res.OK() {
		p.logger.Info("page fetch skipped", "url", pageURL, "status", res.Status, "error", res.Err)
		sum.skip()
		return
	}

	markup := string(res.Body)
	if d := p.classifier.Page(markup); !d.Accept {
		p.logger.Debug("page rejected", "url", pageURL, "reason", d.Reason)
		sum.reject()
		return
	}

	var linked string
	if pdfs := extract.PDFLinks(markup, pageURL); len(pdfs) > 0 {
		linked = pdfs[0]
	}

	p.observe(sum, pageURL, func() (model.Verdict, error) {
		return p.detector.ObservePage(ctx, p.Org, pageURL, detect.Hash(res.Body), linked)
	})
}

func (p *OrgPoller) observe(sum *tally, url string, fn func() (model.Verdict, error)) {
	v, err := fn()
	if err != nil {
		p.logger.Error("change detection failed", "url", url, "error", err)
		return
	}
	sum.verdict(v)
	if v.Alerts() || v == model.VerdictSuppressed {
		p.logger.Info("change detected", "url", url, "verdict", v)
	}
}

// tally is a Summary safe for concurrent artifact workers.
type tally struct {
	mu sync.Mutex
	Summary
}

func (t *tally) homepage() { t.mu.Lock(); t.Homepages++; t.mu.Unlock() }
func (t *tally) skip()     { t.mu.Lock(); t.Skipped++; t.mu.Unlock() }
func (t *tally) reject()   { t.mu.Lock(); t.Rejected++; t.mu.Unlock() }

func (t *tally) candidates(n int) {
	t.mu.Lock()
	t.Candidates += n
	t.mu.Unlock()
}

func (t *tally) verdict(v model.Verdict) {
	t.mu.Lock()
	t.Verdicts[v]++
	t.mu.Unlock()
}

// GroupByOrg splits sources by org, keeping first-seen org order and source
// order within each org.
func GroupByOrg(sources []model.Source) (orgs []string, byOrg map[string][]model.Source) {
	byOrg = make(map[string][]model.Source)
	for _, s := range sources {
		if _, ok := byOrg[s.Org]; !ok {
			orgs = append(orgs, s.Org)
		}
		byOrg[s.Org] = append(byOrg[s.Org], s)
	}
	return orgs, byOrg
}
