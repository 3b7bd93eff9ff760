package detect

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/noticewatch/internal/model"
	"github.com/amishk599/noticewatch/internal/state"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []model.Alert
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, a model.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return n.err
}

func (n *recordingNotifier) Send(context.Context, string) error { return nil }

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newDetector(snap state.Snapshot) (*Detector, *state.Store, *recordingNotifier, *clock) {
	store := state.NewStore(snap)
	n := &recordingNotifier{}
	c := &clock{t: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, n, DefaultPolicy(), c.now, logger), store, n, c
}

func initialized(org string) state.Snapshot {
	st := state.NewOrgState(org)
	st.Initialized = true
	return state.Snapshot{org: st}
}

func TestBaselineSuppressesEverything(t *testing.T) {
	ctx := context.Background()
	d, store, n, _ := newDetector(nil)

	for i, url := range []string{"https://a.example/1.pdf", "https://a.example/2.pdf"} {
		v, err := d.ObservePDF(ctx, "ACME", url, Hash([]byte{byte(i)}))
		require.NoError(t, err)
		assert.Equal(t, model.VerdictBaselined, v)
	}
	v, err := d.ObservePage(ctx, "ACME", "https://a.example/careers/walkin", "h", "")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictBaselined, v)

	require.NoError(t, d.CompleteScan("ACME"))

	assert.Zero(t, n.count())
	st, ok := store.Get("ACME")
	require.True(t, ok)
	assert.True(t, st.Initialized)
	assert.Len(t, st.PDFs, 2)
	assert.Len(t, st.Pages, 1)
	assert.Nil(t, st.LastHTMLAlertAt)
}

func TestNewPDFAlerts(t *testing.T) {
	d, store, n, c := newDetector(initialized("ACME"))

	v, err := d.ObservePDF(context.Background(), "ACME", "https://a.example/advt.pdf", "h1")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictNew, v)

	require.Equal(t, 1, n.count())
	assert.Equal(t, model.CategoryNewPDF, n.alerts[0].Category)
	assert.Equal(t, "ACME", n.alerts[0].Org)

	st, _ := store.Get("ACME")
	assert.Equal(t, c.t, st.PDFs["https://a.example/advt.pdf"].FirstSeenAt)
}

func TestIdempotentRescan(t *testing.T) {
	ctx := context.Background()
	d, _, n, c := newDetector(initialized("ACME"))

	_, err := d.ObservePDF(ctx, "ACME", "https://a.example/advt.pdf", "h1")
	require.NoError(t, err)
	_, err = d.ObservePage(ctx, "ACME", "https://a.example/careers/vacancy", "p1", "")
	require.NoError(t, err)
	first := n.count()

	c.advance(48 * time.Hour)
	v1, err := d.ObservePDF(ctx, "ACME", "https://a.example/advt.pdf", "h1")
	require.NoError(t, err)
	v2, err := d.ObservePage(ctx, "ACME", "https://a.example/careers/vacancy", "p1", "")
	require.NoError(t, err)

	assert.Equal(t, model.VerdictUnchanged, v1)
	assert.Equal(t, model.VerdictUnchanged, v2)
	assert.Equal(t, first, n.count())
}

func TestHashChangeAlertsOnce(t *testing.T) {
	ctx := context.Background()
	d, store, n, c := newDetector(initialized("ACME"))
	url := "https://a.example/notification.pdf"

	_, err := d.ObservePDF(ctx, "ACME", url, "h1")
	require.NoError(t, err)

	c.advance(time.Hour)
	v, err := d.ObservePDF(ctx, "ACME", url, "h2")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictChanged, v)

	v, err = d.ObservePDF(ctx, "ACME", url, "h2")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictUnchanged, v)

	require.Equal(t, 2, n.count())
	assert.Equal(t, model.CategoryUpdatedPDF, n.alerts[1].Category)

	st, _ := store.Get("ACME")
	assert.Equal(t, "h2", st.PDFs[url].ContentHash)
	assert.Equal(t, c.t, st.PDFs[url].FirstSeenAt)
}

func TestPDFsAreNotRateLimited(t *testing.T) {
	ctx := context.Background()
	d, _, n, _ := newDetector(initialized("ACME"))

	for _, url := range []string{"https://a.example/1.pdf", "https://a.example/2.pdf", "https://a.example/3.pdf"} {
		v, err := d.ObservePDF(ctx, "ACME", url, "h")
		require.NoError(t, err)
		assert.Equal(t, model.VerdictNew, v)
	}
	assert.Equal(t, 3, n.count())
}

func TestHTMLRateLimit(t *testing.T) {
	ctx := context.Background()
	d, store, n, c := newDetector(initialized("ACME"))

	v, err := d.ObservePage(ctx, "ACME", "https://a.example/careers/one", "p1", "")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictNew, v)
	firstAlert := c.t

	c.advance(3 * time.Hour)
	v, err = d.ObservePage(ctx, "ACME", "https://a.example/careers/two", "p2", "")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictSuppressed, v)

	// The suppressed page is recorded so it is not re-detected later.
	st, _ := store.Get("ACME")
	require.Contains(t, st.Pages, "https://a.example/careers/two")
	assert.Nil(t, st.Pages["https://a.example/careers/two"].LastAlertAt)
	assert.Equal(t, firstAlert, *st.LastHTMLAlertAt)

	c.advance(22 * time.Hour)
	v, err = d.ObservePage(ctx, "ACME", "https://a.example/careers/three", "p3", "")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictNew, v)

	v, err = d.ObservePage(ctx, "ACME", "https://a.example/careers/two", "p2", "")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictUnchanged, v)

	assert.Equal(t, 2, n.count())
	st, _ = store.Get("ACME")
	assert.Equal(t, c.t, *st.LastHTMLAlertAt)
	assert.Equal(t, c.t, *st.Pages["https://a.example/careers/three"].LastAlertAt)
}

func TestRateLimitIsPerOrg(t *testing.T) {
	ctx := context.Background()
	snap := initialized("ACME")
	snap["Globex"] = &state.OrgState{Org: "Globex", Initialized: true}
	d, _, n, _ := newDetector(snap)

	_, err := d.ObservePage(ctx, "ACME", "https://a.example/careers/one", "p1", "")
	require.NoError(t, err)
	v, err := d.ObservePage(ctx, "Globex", "https://g.example/careers/one", "p1", "")
	require.NoError(t, err)

	assert.Equal(t, model.VerdictNew, v)
	assert.Equal(t, 2, n.count())
}

func TestIssuesShareHTMLWindow(t *testing.T) {
	ctx := context.Background()
	d, _, n, _ := newDetector(initialized("Gazette"))

	_, err := d.ObserveIssue(ctx, "Gazette", "https://g.example/", "i1")
	require.NoError(t, err)
	v, err := d.ObservePage(ctx, "Gazette", "https://g.example/careers/x", "p1", "")
	require.NoError(t, err)

	assert.Equal(t, model.VerdictSuppressed, v)
	require.Equal(t, 1, n.count())
	assert.Equal(t, model.CategoryNewIssue, n.alerts[0].Category)
}

func TestLinkedPDFInAlert(t *testing.T) {
	d, store, n, _ := newDetector(initialized("ACME"))

	_, err := d.ObservePage(context.Background(), "ACME", "https://a.example/careers/walkin", "p1", "https://a.example/walkin.pdf")
	require.NoError(t, err)

	require.Equal(t, 1, n.count())
	assert.Equal(t, "https://a.example/walkin.pdf", n.alerts[0].LinkedPDF)
	st, _ := store.Get("ACME")
	assert.Equal(t, "https://a.example/walkin.pdf", st.Pages["https://a.example/careers/walkin"].LinkedPDF)
}

func TestNotifierFailureStillUpdatesState(t *testing.T) {
	ctx := context.Background()
	d, store, n, _ := newDetector(initialized("ACME"))
	n.err = errors.New("telegram down")

	v, err := d.ObservePDF(ctx, "ACME", "https://a.example/advt.pdf", "h1")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictNew, v)

	st, _ := store.Get("ACME")
	assert.Contains(t, st.PDFs, "https://a.example/advt.pdf")

	v, err = d.ObservePDF(ctx, "ACME", "https://a.example/advt.pdf", "h1")
	require.NoError(t, err)
	assert.Equal(t, model.VerdictUnchanged, v)
}

func TestCompleteScanNeverReverts(t *testing.T) {
	d, store, _, _ := newDetector(initialized("ACME"))
	require.NoError(t, d.CompleteScan("ACME"))
	st, _ := store.Get("ACME")
	assert.True(t, st.Initialized)
}

func TestIncompleteObservationRejected(t *testing.T) {
	d, _, _, _ := newDetector(nil)
	_, err := d.ObservePDF(context.Background(), "ACME", "https://a.example/x.pdf", "")
	assert.Error(t, err)
}

func TestConcurrentObservationsSameOrg(t *testing.T) {
	ctx := context.Background()
	d, store, n, _ := newDetector(initialized("ACME"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			url := "https://a.example/" + string(rune('a'+i)) + ".pdf"
			_, _ = d.ObservePDF(ctx, "ACME", url, "h")
		}(i)
	}
	wg.Wait()

	st, _ := store.Get("ACME")
	assert.Len(t, st.PDFs, 20)
	assert.Equal(t, 20, n.count())
}

func TestEndToEndPDFLifecycle(t *testing.T) {
	ctx := context.Background()
	d, _, n, c := newDetector(nil)
	org := "XYZ Board"
	url := "https://xyz.example/notification_2025.pdf"

	// First run: baseline.
	v, err := d.ObservePDF(ctx, org, url, Hash([]byte("v1")))
	require.NoError(t, err)
	assert.Equal(t, model.VerdictBaselined, v)
	require.NoError(t, d.CompleteScan(org))

	// Second run: same bytes.
	c.advance(time.Hour)
	v, err = d.ObservePDF(ctx, org, url, Hash([]byte("v1")))
	require.NoError(t, err)
	assert.Equal(t, model.VerdictUnchanged, v)

	// Third run: new bytes.
	c.advance(time.Hour)
	v, err = d.ObservePDF(ctx, org, url, Hash([]byte("v2")))
	require.NoError(t, err)
	assert.Equal(t, model.VerdictChanged, v)

	require.Equal(t, 1, n.count())
	alert := n.alerts[0]
	assert.Equal(t, url, alert.URL)
	assert.Equal(t, org, alert.Org)
	assert.Contains(t, alert.Message(), "Official Notification PDF Released")
}

func TestHashIsDeterministic(t *testing.T) {
	assert.Equal(t, Hash([]byte("abc")), Hash([]byte("abc")))
	assert.NotEqual(t, Hash([]byte("abc")), Hash([]byte("abd")))
	assert.Len(t, Hash(nil), 64)
}
