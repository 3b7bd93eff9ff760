package classify

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func newTestClassifier(mutate ...func(*Rules)) *Classifier {
	rules := DefaultRules()
	for _, m := range mutate {
		m(&rules)
	}
	return NewClassifier(rules, func() time.Time { return fixedNow })
}

func TestPDF(t *testing.T) {
	c := newTestClassifier()
	tests := []struct {
		url  string
		want bool
	}{
		{"https://xyz.example/notification_2025.pdf", true},
		{"https://xyz.example/files/Walkin-Interview.PDF", true},
		{"https://xyz.example/advt_no_4.pdf", true},
		{"https://xyz.example/annual_report.pdf", false},
		{"https://xyz.example/result_notification.pdf", false},
		{"https://xyz.example/recruitment_merit_list.pdf", false},
		{"https://xyz.example/answer-key-advt-3.pdf", false},
		{"https://xyz.example/", false},
		{"https://xyz.example/download.php?file=advt_12_2025.pdf", true},
		{"https://xyz.example/download.php?file=result_2025.pdf", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, c.PDF(tt.url).Accept)
		})
	}
}

func TestPDF_DenyBeatsAllow(t *testing.T) {
	c := newTestClassifier()
	d := c.PDF("https://xyz.example/recruitment_selection_list.pdf")
	assert.False(t, d.Accept)
	assert.Contains(t, d.Reason, "selection")
}

func TestPDF_DenyMatchesFilenameOnly(t *testing.T) {
	c := newTestClassifier()
	d := c.PDF("https://results.xyz.example/score/vacancy_notice.pdf")
	assert.True(t, d.Accept, d.Reason)
}

func TestPDF_RecentYears(t *testing.T) {
	c := newTestClassifier(func(r *Rules) { r.RecentYears = 2 })

	assert.True(t, c.PDF("https://psc.example/advt_2026_01.pdf").Accept)
	assert.True(t, c.PDF("https://psc.example/2025/advt_07.pdf").Accept)
	assert.True(t, c.PDF("https://psc.example/latest_advt.pdf").Accept)
	assert.False(t, c.PDF("https://psc.example/advt_2019.pdf").Accept)
}

func TestPageURL(t *testing.T) {
	c := newTestClassifier()
	assert.True(t, c.PageURL("https://xyz.example/recruitment/2026").Accept)
	for _, u := range []string{
		"https://xyz.example/recruitment/Login.aspx",
		"https://xyz.example/recruitment/register",
		"https://xyz.example/vacancy-privacy-policy",
		"https://xyz.example/contact-recruitment-cell",
	} {
		assert.False(t, c.PageURL(u).Accept, u)
	}
}

func page(body string) string {
	return "<html><head><title>Notice</title><script>var apply = 'vacancy posts';</script></head><body>" + body + "</body></html>"
}

func TestPage_RequiresTwoDistinctTerms(t *testing.T) {
	c := newTestClassifier()

	d := c.Page(page("<p>Vacancy vacancy VACANCY</p>"))
	assert.False(t, d.Accept, "repeated single term must not count twice")

	d = c.Page(page("<p>Vacancy for 12 posts. Apply online.</p>"))
	assert.True(t, d.Accept, d.Reason)
}

func TestPage_ScriptTextIgnored(t *testing.T) {
	c := newTestClassifier()
	d := c.Page(page("<p>Welcome to our office.</p>"))
	assert.False(t, d.Accept)
}

func TestPage_Freshness(t *testing.T) {
	c := newTestClassifier()
	dated := func(daysAgo int) string {
		d := fixedNow.AddDate(0, 0, -daysAgo).Format("02 January 2006")
		return page(fmt.Sprintf("<p>Recruitment of 5 posts. Apply before date. Issued on %s.</p>", d))
	}

	d := c.Page(dated(46))
	assert.False(t, d.Accept)
	require.NotNil(t, d.Date)
	assert.Contains(t, d.Reason, "stale")

	d = c.Page(dated(44))
	assert.True(t, d.Accept, d.Reason)
	require.NotNil(t, d.Date)

	d = c.Page(dated(45))
	assert.True(t, d.Accept, "the boundary day is still fresh")

	d = c.Page(page("<p>Recruitment of 5 posts. Apply online.</p>"))
	assert.True(t, d.Accept, "no date means fresh")
	assert.Nil(t, d.Date)
}

func TestPage_TextCapBoundsInspection(t *testing.T) {
	c := newTestClassifier(func(r *Rules) { r.TextCap = 40 })
	filler := "<p>" + repeat("lorem ", 20) + "</p>"
	d := c.Page(page(filler + "<p>vacancy posts</p>"))
	assert.False(t, d.Accept, "terms beyond the cap are not seen")
}

func TestIssue(t *testing.T) {
	c := newTestClassifier()

	fresh := page("<h1>Employment News</h1><p>Issue dated 10 Oct 2026</p>")
	assert.True(t, c.Issue(fresh).Accept)

	stale := page("<h1>Employment News</h1><p>Issue dated 20 Sep 2026</p>")
	assert.False(t, c.Issue(stale).Accept)

	undated := page("<h1>Employment News</h1>")
	assert.True(t, c.Issue(undated).Accept)
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
