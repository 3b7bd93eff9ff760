// Package detect decides whether an observed artifact is new, changed or
// unchanged relative to recorded state, and fires at most one alert for it.
package detect

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/amishk599/noticewatch/internal/model"
	"github.com/amishk599/noticewatch/internal/ratelimit"
	"github.com/amishk599/noticewatch/internal/state"
)

// DefaultHTMLAlertWindow bounds HTML-page and issue alerts to one per org.
const DefaultHTMLAlertWindow = 24 * time.Hour

// Policy holds the detector's tunables.
type Policy struct {
	HTMLAlertWindow time.Duration // zero disables the HTML rate limit
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() Policy {
	return Policy{HTMLAlertWindow: DefaultHTMLAlertWindow}
}

// Observation is one accepted artifact as fetched in this scan.
type Observation struct {
	Org       string
	URL       string // canonical absolute URL, the identity key
	Kind      model.ArtifactKind
	Hash      string // digest of the fetched bytes
	LinkedPDF string // pages only
}

// Detector compares observations against a state.Store.
type Detector struct {
	store    *state.Store
	notifier model.Notifier
	policy   Policy
	now      func() time.Time
	logger   *slog.Logger
}

// New builds a detector. A nil now uses time.Now.
func New(store *state.Store, notifier model.Notifier, policy Policy, now func() time.Time, logger *slog.Logger) *Detector {
	if now == nil {
		now = time.Now
	}
	return &Detector{
		store:    store,
		notifier: notifier,
		policy:   policy,
		now:      now,
		logger:   logger,
	}
}

// ObservePDF records a PDF observation. PDFs are never rate limited.
func (d *Detector) ObservePDF(ctx context.Context, org, url, hash string) (model.Verdict, error) {
	return d.Observe(ctx, Observation{Org: org, URL: url, Kind: model.KindPDF, Hash: hash})
}

// ObservePage records an HTML notice page observation.
func (d *Detector) ObservePage(ctx context.Context, org, url, hash, linkedPDF string) (model.Verdict, error) {
	return d.Observe(ctx, Observation{Org: org, URL: url, Kind: model.KindPage, Hash: hash, LinkedPDF: linkedPDF})
}

// ObserveIssue records a whole-listing observation for index-hash and
// periodical-issue sources.
func (d *Detector) ObserveIssue(ctx context.Context, org, url, hash string) (model.Verdict, error) {
	return d.Observe(ctx, Observation{Org: org, URL: url, Kind: model.KindIssue, Hash: hash})
}

// Observe applies the observation to the org's state under the org lock and
// returns the verdict. When the verdict alerts, the notifier is called after
// the state is updated; a notifier failure is logged and does not undo the
// update.
func (d *Detector) Observe(ctx context.Context, obs Observation) (model.Verdict, error) {
	if obs.Org == "" || obs.URL == "" || obs.Hash == "" {
		return "", fmt.Errorf("incomplete observation: org=%q url=%q", obs.Org, obs.URL)
	}

	var (
		verdict model.Verdict
		linked  string
	)
	now := d.now()
	err := d.store.Update(obs.Org, func(st *state.OrgState) error {
		if obs.Kind == model.KindPDF {
			verdict = d.applyPDF(st, obs, now)
		} else {
			verdict, linked = d.applyPage(st, obs, now)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("updating state for %s: %w", obs.Org, err)
	}

	d.logger.Debug("artifact observed",
		"org", obs.Org, "url", obs.URL, "kind", obs.Kind, "verdict", verdict)

	if verdict.Alerts() {
		alert := model.Alert{
			Org:       obs.Org,
			URL:       obs.URL,
			Category:  model.CategoryFor(obs.Kind, verdict),
			LinkedPDF: linked,
		}
		if err := d.notifier.Notify(ctx, alert); err != nil {
			d.logger.Error("notification failed",
				"org", obs.Org, "url", obs.URL, "category", alert.Category, "error", err)
		}
	}
	return verdict, nil
}

// CompleteScan marks org as initialized. Called once its first scan is done,
// regardless of individual artifact outcomes. Never reverts.
func (d *Detector) CompleteScan(org string) error {
	return d.store.Update(org, func(st *state.OrgState) error {
		st.Initialized = true
		return nil
	})
}

func (d *Detector) applyPDF(st *state.OrgState, obs Observation, now time.Time) model.Verdict {
	prior, seen := st.PDFs[obs.URL]
	verdict := compare(st.Initialized, seen, seen && prior.ContentHash == obs.Hash)
	if verdict == model.VerdictUnchanged {
		return verdict
	}
	st.PDFs[obs.URL] = &state.ObservedPDF{URL: obs.URL, ContentHash: obs.Hash, FirstSeenAt: now}
	return verdict
}

func (d *Detector) applyPage(st *state.OrgState, obs Observation, now time.Time) (model.Verdict, string) {
	prior, seen := st.Pages[obs.URL]
	verdict := compare(st.Initialized, seen, seen && prior.ContentHash == obs.Hash)
	if verdict == model.VerdictUnchanged {
		return verdict, prior.LinkedPDF
	}

	page := &state.ObservedPage{
		URL:         obs.URL,
		ContentHash: obs.Hash,
		FirstSeenAt: now,
		LinkedPDF:   obs.LinkedPDF,
	}
	if seen {
		page.LastAlertAt = prior.LastAlertAt
	}

	if verdict.Alerts() {
		if ratelimit.Allow(now, st.LastHTMLAlertAt, d.policy.HTMLAlertWindow) {
			page.LastAlertAt = state.Later(page.LastAlertAt, now)
			st.LastHTMLAlertAt = state.Later(st.LastHTMLAlertAt, now)
		} else {
			verdict = model.VerdictSuppressed
		}
	}
	st.Pages[obs.URL] = page
	return verdict, page.LinkedPDF
}

// compare is the verdict table shared by every artifact kind, before any
// rate limiting.
func compare(initialized, seen, sameHash bool) model.Verdict {
	switch {
	case seen && sameHash:
		return model.VerdictUnchanged
	case !initialized:
		return model.VerdictBaselined
	case !seen:
		return model.VerdictNew
	default:
		return model.VerdictChanged
	}
}
