// Package extract harvests candidate notice links from raw page markup.
package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Candidates holds the resolved links found on one page, in document order.
type Candidates struct {
	PDFs  []string
	Pages []string
}

// Links scans markup for PDF links and for HTML links whose URL contains any of
// pagePatterns (case-insensitive). Every link is resolved against baseURL and
// de-duplicated. Malformed markup or an unusable base yields empty results.
func Links(markup, baseURL string, pagePatterns []string) Candidates {
	var out Candidates

	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return out
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return out
	}

	self := canonical(base)
	seen := make(map[string]bool)

	doc.Find("[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs, ok := resolve(base, href)
		if !ok || seen[abs.String()] {
			return
		}
		key := abs.String()

		if IsPDF(abs) {
			seen[key] = true
			out.PDFs = append(out.PDFs, key)
			return
		}
		if key == self || !matchesAny(href, pagePatterns) {
			return
		}
		seen[key] = true
		out.Pages = append(out.Pages, key)
	})

	return out
}

// PDFLinks returns only the resolved PDF links found in markup.
func PDFLinks(markup, baseURL string) []string {
	return Links(markup, baseURL, nil).PDFs
}

// Canonicalize resolves href against baseURL and returns the artifact key:
// absolute, lower-cased scheme and host, dot segments removed, fragment dropped.
func Canonicalize(baseURL, href string) (string, bool) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", false
	}
	abs, ok := resolve(base, href)
	if !ok {
		return "", false
	}
	return abs.String(), true
}

// IsPDF reports whether the link ends in .pdf, ignoring case. Both the path
// and the query are checked, so download.php?file=advt.pdf counts.
func IsPDF(u *url.URL) bool {
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf") ||
		strings.HasSuffix(strings.ToLower(u.RawQuery), ".pdf")
}

// Filename returns the lower-cased last path segment of rawURL with its query
// kept, so a file named only in the query still reaches the keyword rules.
func Filename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	p := strings.TrimSuffix(u.Path, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	if u.RawQuery != "" {
		q, err := url.QueryUnescape(u.RawQuery)
		if err != nil {
			q = u.RawQuery
		}
		p += "?" + q
	}
	return strings.ToLower(p)
}

func resolve(base *url.URL, href string) (*url.URL, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil, false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil, false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return nil, false
	}
	abs.Host = strings.ToLower(abs.Host)
	abs.Fragment = ""
	abs.RawFragment = ""
	if abs.Path == "" {
		abs.Path = "/"
	}
	return abs, true
}

func canonical(u *url.URL) string {
	c := *u
	c.Host = strings.ToLower(c.Host)
	c.Fragment = ""
	c.RawFragment = ""
	if c.Path == "" {
		c.Path = "/"
	}
	return c.String()
}

func matchesAny(s string, patterns []string) bool {
	lower := strings.ToLower(s)
	for _, p := range patterns {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
