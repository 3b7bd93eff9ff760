package classify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/amishk599/noticewatch/internal/extract"
)

// Decision is the outcome of one classification. Rejections carry a reason.
type Decision struct {
	Accept bool
	Reason string
	Date   *time.Time // notice date found in the text, if any
}

func accept() Decision { return Decision{Accept: true} }

func reject(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Classifier applies Rules. It holds no mutable state.
type Classifier struct {
	rules Rules
	now   func() time.Time
}

// NewClassifier returns a classifier using rules. now may be nil.
func NewClassifier(rules Rules, now func() time.Time) *Classifier {
	if now == nil {
		now = time.Now
	}
	return &Classifier{rules: rules, now: now}
}

// Rules returns the rule set the classifier was built with.
func (c *Classifier) Rules() Rules {
	return c.rules
}

// PDF decides relevance from the PDF's filename. A deny term rejects the file
// even when allow terms are also present.
func (c *Classifier) PDF(pdfURL string) Decision {
	name := extract.Filename(pdfURL)
	if name == "" {
		return reject("empty filename")
	}
	if term, ok := containsAny(name, c.rules.PDFDeny); ok {
		return reject("deny term %q", term)
	}
	if _, ok := containsAny(name, c.rules.PDFAllow); !ok {
		return reject("no job keyword in %q", name)
	}
	if c.rules.RecentYears > 0 && !c.recentPDF(pdfURL) {
		return reject("no recent year in %q", name)
	}
	return accept()
}

// recentPDF accepts URLs naming one of the last RecentYears years or marked
// new/latest/current.
func (c *Classifier) recentPDF(pdfURL string) bool {
	lower := strings.ToLower(pdfURL)
	year := c.now().Year()
	for i := 0; i < c.rules.RecentYears; i++ {
		if strings.Contains(lower, strconv.Itoa(year-i)) {
			return true
		}
	}
	_, ok := containsAny(lower, []string{"new", "latest", "current"})
	return ok
}

// PageURL runs before a candidate page is fetched and drops links to account,
// legal and navigation pages.
func (c *Classifier) PageURL(pageURL string) Decision {
	if term, ok := containsAny(strings.ToLower(pageURL), c.rules.PageIgnore); ok {
		return reject("ignored url term %q", term)
	}
	return accept()
}

// Page decides relevance of a fetched notice page from its text: at least
// MinRequiredTerms distinct required terms, and no stale notice date.
func (c *Classifier) Page(markup string) Decision {
	text := NormalizeText(markup, c.rules.TextCap)

	hits := distinctHits(text, c.rules.RequiredTerms)
	if hits < c.rules.MinRequiredTerms {
		return reject("only %d of %d required terms", hits, c.rules.MinRequiredTerms)
	}
	return c.fresh(text, c.rules.Staleness)
}

// Issue decides freshness of a periodical listing page from its issue date.
func (c *Classifier) Issue(markup string) Decision {
	return c.fresh(NormalizeText(markup, c.rules.TextCap), c.rules.IssueStaleness)
}

// fresh rejects text whose first date is older than window. No date means fresh.
func (c *Classifier) fresh(text string, window time.Duration) Decision {
	now := c.now()
	d, ok := ExtractDate(text, now.Location())
	if !ok {
		return accept()
	}
	if AgeDays(d, now) > int(window/(24*time.Hour)) {
		return Decision{Reason: fmt.Sprintf("stale notice dated %s", d.Format("2006-01-02")), Date: &d}
	}
	return Decision{Accept: true, Date: &d}
}

func containsAny(s string, terms []string) (string, bool) {
	for _, t := range terms {
		if t != "" && strings.Contains(s, strings.ToLower(t)) {
			return t, true
		}
	}
	return "", false
}

func distinctHits(text string, terms []string) int {
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		t = strings.ToLower(t)
		if t == "" || seen[t] {
			continue
		}
		if strings.Contains(text, t) {
			seen[t] = true
		}
	}
	return len(seen)
}
