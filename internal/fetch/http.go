// Package fetch retrieves homepages, notice pages and PDFs, reporting every
// outcome as a model.FetchResult.
package fetch

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/amishk599/noticewatch/internal/model"
)

const (
	DefaultTimeout   = 20 * time.Second
	DefaultUserAgent = "Mozilla/5.0 (compatible; noticewatch/1.0)"
	DefaultMinBytes  = 200
	DefaultMaxBytes  = 20 << 20
)

// Options configures an HTTPFetcher.
type Options struct {
	Timeout            time.Duration // hard wall-clock budget per call
	UserAgent          string
	MinBytes           int   // bodies shorter than this are FetchTooShort
	MaxBytes           int64 // bodies are truncated at this size
	InsecureSkipVerify bool
}

// DefaultOptions returns the built-in fetch settings.
func DefaultOptions() Options {
	return Options{
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
		MinBytes:  DefaultMinBytes,
		MaxBytes:  DefaultMaxBytes,
	}
}

// HTTPFetcher fetches URLs over plain HTTP(S).
type HTTPFetcher struct {
	client *http.Client
	opts   Options
}

// NewHTTPFetcher builds a fetcher. A nil client gets a fresh one honouring
// opts.InsecureSkipVerify.
func NewHTTPFetcher(client *http.Client, opts Options) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in per config
		}
		client = &http.Client{Transport: transport}
	}
	return &HTTPFetcher{client: client, opts: opts}
}

// Fetch GETs rawURL within the configured timeout. HTML bodies are decoded
// to UTF-8; other bodies are returned as received.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) model.FetchResult {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return model.FetchResult{URL: rawURL, Status: model.FetchNetworkError, Err: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return failure(rawURL, err)
	}
	defer resp.Body.Close()

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return model.FetchResult{
			URL:    finalURL,
			Status: model.FetchHTTPStatus,
			Err: &model.HTTPError{
				URL:        rawURL,
				StatusCode: resp.StatusCode,
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			},
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBytes))
	if err != nil {
		return failure(rawURL, fmt.Errorf("reading body: %w", err))
	}

	contentType := resp.Header.Get("Content-Type")
	if isHTML(contentType) {
		body = decodeHTML(body, contentType)
	}

	return Check(model.FetchResult{
		URL:         finalURL,
		Status:      model.FetchOK,
		Body:        body,
		ContentType: contentType,
	}, f.opts.MinBytes)
}

// Check downgrades an OK result whose body is shorter than minBytes.
func Check(res model.FetchResult, minBytes int) model.FetchResult {
	if res.OK() && len(res.Body) < minBytes {
		return model.FetchResult{
			URL:         res.URL,
			Status:      model.FetchTooShort,
			ContentType: res.ContentType,
			Err:         fmt.Errorf("%d bytes, want at least %d", len(res.Body), minBytes),
		}
	}
	return res
}

// failure classifies a transport error as a timeout or a network error.
func failure(rawURL string, err error) model.FetchResult {
	status := model.FetchNetworkError
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		status = model.FetchTimedOut
	}
	return model.FetchResult{URL: rawURL, Status: status, Err: err}
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// decodeHTML converts body to UTF-8 using the header charset, the meta tag
// or content sniffing. On any decoding error the raw body is kept.
func decodeHTML(body []byte, contentType string) []byte {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return body
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return body
	}
	return decoded
}

// parseRetryAfter parses the Retry-After header value into a duration.
// Supports the seconds form and the HTTP-date form. Returns zero if absent
// or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
