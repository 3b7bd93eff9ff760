package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/noticewatch/internal/model"
)

var longPage = "<html><body>" + strings.Repeat("Recruitment notice for posts. ", 20) + "</body></html>"

func newFetcher(opts Options) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.MinBytes == 0 {
		opts.MinBytes = DefaultMinBytes
	}
	return NewHTTPFetcher(nil, opts)
}

func TestHTTPFetcher_OK(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(longPage))
	}))
	defer srv.Close()

	res := newFetcher(Options{UserAgent: "test-agent"}).Fetch(context.Background(), srv.URL+"/careers")
	require.True(t, res.OK(), "expected OK, got %v", res.Failure())
	assert.Equal(t, longPage, string(res.Body))
	assert.Equal(t, "test-agent", gotUA)
}

func TestHTTPFetcher_TooShort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tiny"))
	}))
	defer srv.Close()

	res := newFetcher(Options{}).Fetch(context.Background(), srv.URL)
	require.Equal(t, model.FetchTooShort, res.Status)
	assert.Nil(t, res.Body)
}

func TestHTTPFetcher_HTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	res := newFetcher(Options{}).Fetch(context.Background(), srv.URL)
	require.Equal(t, model.FetchHTTPStatus, res.Status)
	var httpErr *model.HTTPError
	require.ErrorAs(t, res.Err, &httpErr)
	assert.Equal(t, 429, httpErr.StatusCode)
	assert.Equal(t, 7*time.Second, httpErr.RetryAfter)
	assert.True(t, res.Transient(), "429 is transient")
}

func TestHTTPFetcher_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	res := newFetcher(Options{Timeout: 50 * time.Millisecond}).Fetch(context.Background(), srv.URL)
	assert.Equal(t, model.FetchTimedOut, res.Status, "err %v", res.Err)
}

func TestHTTPFetcher_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	res := newFetcher(Options{}).Fetch(context.Background(), url)
	assert.Equal(t, model.FetchNetworkError, res.Status)
}

func TestHTTPFetcher_TruncatesAtMaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte(strings.Repeat("x", 5000)))
	}))
	defer srv.Close()

	res := newFetcher(Options{MaxBytes: 1000}).Fetch(context.Background(), srv.URL)
	require.True(t, res.OK(), "expected OK, got %v", res.Failure())
	assert.Len(t, res.Body, 1000)
}

func TestHTTPFetcher_DecodesLegacyCharset(t *testing.T) {
	// "café" in ISO-8859-1.
	page := append([]byte("<html><body>"+strings.Repeat("vacancy ", 30)+"caf"), 0xe9)
	page = append(page, []byte("</body></html>")...)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write(page)
	}))
	defer srv.Close()

	res := newFetcher(Options{}).Fetch(context.Background(), srv.URL)
	require.True(t, res.OK(), "expected OK, got %v", res.Failure())
	assert.Contains(t, string(res.Body), "café")
}

func TestParseRetryAfter(t *testing.T) {
	assert.Zero(t, parseRetryAfter(""))
	assert.Equal(t, 120*time.Second, parseRetryAfter("120"))
	assert.Zero(t, parseRetryAfter("soon"))
}
