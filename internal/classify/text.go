package classify

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// NormalizeText strips markup, collapses whitespace, lower-cases, and keeps at
// most limit runes (limit <= 0 keeps everything).
func NormalizeText(markup string, limit int) string {
	text := markup
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup)); err == nil {
		doc.Find("script, style, noscript, template").Remove()
		text = doc.Text()
	}
	text = strings.ToLower(strings.Join(strings.Fields(text), " "))

	if limit > 0 {
		runes := 0
		for i := range text {
			if runes == limit {
				return text[:i]
			}
			runes++
		}
	}
	return text
}

var dateRegex = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?[\s\-./,]*` +
	`(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sept?(?:ember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)` +
	`\.?[\s\-./,]*(\d{4})\b`)

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// ExtractDate returns the first valid day/month-name/year date in text
// ("12 March 2025", "3rd-Feb-2026", "01 sept. 2025").
func ExtractDate(text string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	for _, m := range dateRegex.FindAllStringSubmatch(strings.ToLower(text), -1) {
		day, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		month := months[m[2][:3]]
		year, err := strconv.Atoi(m[3])
		if err != nil {
			continue
		}
		d := time.Date(year, month, day, 0, 0, 0, 0, loc)
		// time.Date normalizes 31 Feb into March; treat that as not a date.
		if day < 1 || d.Day() != day || d.Month() != month {
			continue
		}
		return d, true
	}
	return time.Time{}, false
}

// AgeDays counts whole calendar days from d to now in now's location.
// Dates in the future have a negative age.
func AgeDays(d, now time.Time) int {
	loc := now.Location()
	y, m, day := now.Date()
	today := time.Date(y, m, day, 0, 0, 0, 0, loc)
	dy, dm, dd := d.In(loc).Date()
	then := time.Date(dy, dm, dd, 0, 0, 0, 0, loc)
	return int(math.Round(today.Sub(then).Hours() / 24))
}
