package model

import (
	"context"
	"fmt"
	"strings"
)

// NoticeMode selects how a source's homepage is turned into artifacts.
type NoticeMode string

const (
	// ModeGeneric harvests PDF and notice-page links and classifies each one.
	ModeGeneric NoticeMode = "generic"
	// ModeIndexHash treats the whole homepage as one artifact and alerts on any
	// byte change. The classifier is bypassed.
	ModeIndexHash NoticeMode = "index_hash"
	// ModePeriodicalIssue is ModeIndexHash gated by the issue date printed on
	// the listing page.
	ModePeriodicalIssue NoticeMode = "periodical_issue"
)

// Source is one monitored page belonging to an organization.
type Source struct {
	Org    string     // unique, case-sensitive key into the state store
	URL    string     // homepage to scan
	Mode   NoticeMode // empty means ModeGeneric
	Render bool       // fetch the homepage through a headless browser
}

// EffectiveMode returns the source mode, defaulting to ModeGeneric.
func (s Source) EffectiveMode() NoticeMode {
	if s.Mode == "" {
		return ModeGeneric
	}
	return s.Mode
}

// ArtifactKind distinguishes the artifact classes tracked per org.
type ArtifactKind string

const (
	KindPDF   ArtifactKind = "pdf"
	KindPage  ArtifactKind = "page"
	KindIssue ArtifactKind = "issue"
)

// Verdict is the change detector's classification of one observation.
type Verdict string

const (
	VerdictBaselined  Verdict = "baselined"
	VerdictNew        Verdict = "new"
	VerdictChanged    Verdict = "changed"
	VerdictUnchanged  Verdict = "unchanged"
	VerdictSuppressed Verdict = "suppressed"
)

// Alerts reports whether the verdict should reach the notifier.
func (v Verdict) Alerts() bool {
	return v == VerdictNew || v == VerdictChanged
}

// Category tags an alert with the artifact class it reports.
type Category string

const (
	CategoryNewPDF      Category = "new_pdf"
	CategoryUpdatedPDF  Category = "updated_pdf"
	CategoryNewPage     Category = "new_page"
	CategoryUpdatedPage Category = "updated_page"
	CategoryNewIssue    Category = "new_issue"
)

// Headline returns the human-readable title for the category.
func (c Category) Headline() string {
	switch c {
	case CategoryNewPDF:
		return "📢 New Job PDF"
	case CategoryUpdatedPDF:
		return "📄 Official Notification PDF Released"
	case CategoryNewPage:
		return "🆕 New Recruitment Page"
	case CategoryUpdatedPage:
		return "🔄 Recruitment Page Updated"
	case CategoryNewIssue:
		return "📰 New Issue Published"
	default:
		return "🔔 Notice"
	}
}

// CategoryFor maps an artifact kind and an alerting verdict to a category.
func CategoryFor(kind ArtifactKind, v Verdict) Category {
	switch kind {
	case KindPDF:
		if v == VerdictChanged {
			return CategoryUpdatedPDF
		}
		return CategoryNewPDF
	case KindPage:
		if v == VerdictChanged {
			return CategoryUpdatedPage
		}
		return CategoryNewPage
	default:
		return CategoryNewIssue
	}
}

// Alert is one notification about a new or changed artifact.
type Alert struct {
	Org       string
	URL       string
	Category  Category
	LinkedPDF string // optional, for notice pages that link a PDF
}

// Message renders the alert as plain text. Org, URL and category are always present.
func (a Alert) Message() string {
	var b strings.Builder
	b.WriteString(a.Category.Headline())
	fmt.Fprintf(&b, "\n🏢 %s\n📄 %s", a.Org, a.URL)
	if a.LinkedPDF != "" {
		fmt.Fprintf(&b, "\n📎 %s", a.LinkedPDF)
	}
	return b.String()
}

// Fetcher retrieves the raw bytes behind a URL. Failures are reported through
// FetchResult.Status rather than a separate error.
type Fetcher interface {
	Fetch(ctx context.Context, url string) FetchResult
}

// Notifier delivers alerts. Delivery is best-effort; callers log and drop errors.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
	// Send delivers a free-form operator message, such as a configuration
	// diagnostic.
	Send(ctx context.Context, text string) error
}
