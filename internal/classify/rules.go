// Package classify decides whether fetched documents and pages are job notices.
package classify

import "time"

// Rules is the immutable keyword and threshold set used by a Classifier.
type Rules struct {
	PDFAllow         []string      // filename must contain one of these
	PDFDeny          []string      // filename containing any of these is rejected first
	PagePatterns     []string      // link tokens marking candidate notice pages
	PageIgnore       []string      // URL tokens excluded before fetching
	RequiredTerms    []string      // page text terms counted for relevance
	MinRequiredTerms int           // distinct RequiredTerms needed
	TextCap          int           // max runes of normalized text inspected
	Staleness        time.Duration // max age of a notice date
	IssueStaleness   time.Duration // max age of a periodical issue date
	RecentYears      int           // >0 enables the year heuristic on PDF URLs
}

// DefaultRules returns the stock keyword lists and thresholds.
func DefaultRules() Rules {
	return Rules{
		PDFAllow: []string{
			"recruitment", "advertisement", "engagement", "notification",
			"vacancy", "walkin", "appointment", "advt",
		},
		PDFDeny:          []string{"result", "answer", "merit", "score", "selection"},
		PagePatterns:     []string{"recruit", "vacancy", "notification", "advertisement"},
		PageIgnore:       []string{"login", "register", "dashboard", "captcha", "privacy", "terms", "contact", "sitemap"},
		RequiredTerms:    []string{"vacancy", "recruitment", "apply", "posts", "eligibility"},
		MinRequiredTerms: 2,
		TextCap:          6000,
		Staleness:        45 * 24 * time.Hour,
		IssueStaleness:   14 * 24 * time.Hour,
	}
}
