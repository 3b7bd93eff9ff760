// Package state models everything previously observed per organization and
// persists it between runs.
package state

import (
	"context"
	"sort"
	"time"
)

// ObservedPDF is the last recorded content of one PDF artifact.
type ObservedPDF struct {
	URL         string    `json:"url"`
	ContentHash string    `json:"contentHash"`
	FirstSeenAt time.Time `json:"firstSeenAt"` // when the current hash was first seen
}

// ObservedPage is the last recorded content of one HTML notice or issue page.
type ObservedPage struct {
	URL         string     `json:"url"`
	ContentHash string     `json:"contentHash"`
	FirstSeenAt time.Time  `json:"firstSeenAt"`
	LastAlertAt *time.Time `json:"lastAlertAt,omitempty"`
	LinkedPDF   string     `json:"linkedPdf,omitempty"`
}

// OrgState is the per-organization record. Map keys are canonical absolute URLs.
type OrgState struct {
	Org             string                   `json:"org"`
	Initialized     bool                     `json:"initialized"`
	PDFs            map[string]*ObservedPDF  `json:"pdfs"`
	Pages           map[string]*ObservedPage `json:"pages"`
	LastHTMLAlertAt *time.Time               `json:"lastHtmlAlertAt,omitempty"`
}

// NewOrgState returns an empty, uninitialized record for org.
func NewOrgState(org string) *OrgState {
	return &OrgState{
		Org:   org,
		PDFs:  make(map[string]*ObservedPDF),
		Pages: make(map[string]*ObservedPage),
	}
}

// Clone returns a deep copy.
func (o *OrgState) Clone() *OrgState {
	c := &OrgState{
		Org:             o.Org,
		Initialized:     o.Initialized,
		PDFs:            make(map[string]*ObservedPDF, len(o.PDFs)),
		Pages:           make(map[string]*ObservedPage, len(o.Pages)),
		LastHTMLAlertAt: cloneTime(o.LastHTMLAlertAt),
	}
	for k, v := range o.PDFs {
		p := *v
		c.PDFs[k] = &p
	}
	for k, v := range o.Pages {
		p := *v
		p.LastAlertAt = cloneTime(v.LastAlertAt)
		c.Pages[k] = &p
	}
	return c
}

// normalize fills nil maps and the org name after decoding.
func (o *OrgState) normalize(org string) {
	if o.Org == "" {
		o.Org = org
	}
	if o.PDFs == nil {
		o.PDFs = make(map[string]*ObservedPDF)
	}
	if o.Pages == nil {
		o.Pages = make(map[string]*ObservedPage)
	}
}

// Snapshot is the full persisted state, keyed by org.
type Snapshot map[string]*OrgState

// Orgs returns the org keys in sorted order.
func (s Snapshot) Orgs() []string {
	orgs := make([]string, 0, len(s))
	for org := range s {
		orgs = append(orgs, org)
	}
	sort.Strings(orgs)
	return orgs
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	c := make(Snapshot, len(s))
	for org, st := range s {
		c[org] = st.Clone()
	}
	return c
}

func (s Snapshot) normalize() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	for org, st := range s {
		if st == nil {
			st = NewOrgState(org)
			s[org] = st
		}
		st.normalize(org)
	}
	return s
}

// Repository loads the snapshot once at start and persists it at the end of a run.
type Repository interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Close() error
}

// Later returns the later of an optional marker and t, so markers only move forward.
func Later(marker *time.Time, t time.Time) *time.Time {
	if marker != nil && marker.After(t) {
		return cloneTime(marker)
	}
	return &t
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
