// Package audit is an interactive terminal view of what the classifier keeps
// and drops on a source homepage, next to what the state store already knows.
package audit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/amishk599/noticewatch/internal/classify"
	"github.com/amishk599/noticewatch/internal/detect"
	"github.com/amishk599/noticewatch/internal/extract"
	"github.com/amishk599/noticewatch/internal/model"
	"github.com/amishk599/noticewatch/internal/state"
)

// Entry is one harvested link and what the pipeline would do with it.
type Entry struct {
	URL      string
	Kind     model.ArtifactKind
	Decision classify.Decision
	PDF      *state.ObservedPDF  // prior record, PDFs only
	Page     *state.ObservedPage // prior record, pages only

	// Set by Checker once the artifact itself has been fetched.
	Checked bool
	Hash    string
	Size    int
}

func (e Entry) storedHash() string {
	switch {
	case e.PDF != nil:
		return e.PDF.ContentHash
	case e.Page != nil:
		return e.Page.ContentHash
	}
	return ""
}

// Outlook describes the verdict a scan would reach for a checked entry.
func (e Entry) Outlook() string {
	switch {
	case !e.Checked:
		return ""
	case !e.Decision.Accept:
		return "skipped"
	case !e.Seen():
		return string(model.VerdictNew)
	case e.storedHash() == e.Hash:
		return string(model.VerdictUnchanged)
	default:
		return string(model.VerdictChanged)
	}
}

// Seen reports whether the state store already tracks the entry.
func (e Entry) Seen() bool {
	return e.PDF != nil || e.Page != nil
}

// Entries classifies every candidate by URL alone. Page bodies are not fetched,
// so page entries reflect only the link-pattern and ignore checks. org may be nil.
func Entries(c extract.Candidates, cls *classify.Classifier, org *state.OrgState) []Entry {
	out := make([]Entry, 0, len(c.PDFs)+len(c.Pages))
	for _, u := range c.PDFs {
		e := Entry{URL: u, Kind: model.KindPDF, Decision: cls.PDF(u)}
		if org != nil {
			e.PDF = org.PDFs[u]
		}
		out = append(out, e)
	}
	for _, u := range c.Pages {
		e := Entry{URL: u, Kind: model.KindPage, Decision: cls.PageURL(u)}
		if org != nil {
			e.Page = org.Pages[u]
		}
		out = append(out, e)
	}
	sortEntries(out)
	return out
}

// Accepted returns the entries the classifier keeps, preserving order.
func Accepted(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Decision.Accept {
			out = append(out, e)
		}
	}
	return out
}

// Scan fetches src's homepage and classifies the links found on it.
func Scan(ctx context.Context, src model.Source, fetcher model.Fetcher, cls *classify.Classifier, org *state.OrgState) ([]Entry, error) {
	res := fetcher.Fetch(ctx, src.URL)
	if !res.OK() {
		return nil, fmt.Errorf("fetch %s: %w", src.URL, res.Failure())
	}
	base := res.URL
	if base == "" {
		base = src.URL
	}
	cands := extract.Links(string(res.Body), base, cls.Rules().PagePatterns)
	return Entries(cands, cls, org), nil
}

// Checker fetches a single artifact for the detail view.
type Checker struct {
	Fetcher    model.Fetcher
	Classifier *classify.Classifier
}

// Check downloads e and records its content hash. Pages are re-classified on
// their text, the same test a scan applies after fetching.
func (c Checker) Check(ctx context.Context, e Entry) (Entry, error) {
	res := c.Fetcher.Fetch(ctx, e.URL)
	if !res.OK() {
		return e, fmt.Errorf("fetch %s: %w", e.URL, res.Failure())
	}
	e.Checked = true
	e.Hash = detect.Hash(res.Body)
	e.Size = len(res.Body)
	if e.Kind == model.KindPage && e.Decision.Accept {
		e.Decision = c.Classifier.Page(string(res.Body))
	}
	return e, nil
}

// sortEntries puts tracked entries first, newest first, then the rest by URL.
func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		ti, oki := firstSeen(entries[i])
		tj, okj := firstSeen(entries[j])
		switch {
		case oki && okj:
			if !ti.Equal(tj) {
				return ti.After(tj)
			}
		case oki != okj:
			return oki
		}
		return entries[i].URL < entries[j].URL
	})
}

func firstSeen(e Entry) (time.Time, bool) {
	switch {
	case e.PDF != nil:
		return e.PDF.FirstSeenAt, true
	case e.Page != nil:
		return e.Page.FirstSeenAt, true
	}
	return time.Time{}, false
}
