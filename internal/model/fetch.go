package model

import (
	"errors"
	"fmt"
	"time"
)

// FetchStatus explains the outcome of a fetch so skip reasons stay observable.
type FetchStatus int

const (
	FetchOK FetchStatus = iota
	FetchTimedOut
	FetchNetworkError
	FetchTooShort
	FetchHTTPStatus
	FetchBlocked
)

func (s FetchStatus) String() string {
	switch s {
	case FetchOK:
		return "ok"
	case FetchTimedOut:
		return "timed_out"
	case FetchNetworkError:
		return "network_error"
	case FetchTooShort:
		return "too_short"
	case FetchHTTPStatus:
		return "http_status"
	case FetchBlocked:
		return "blocked"
	default:
		return fmt.Sprintf("fetch_status(%d)", int(s))
	}
}

// FetchResult is the outcome of a single Fetch call.
type FetchResult struct {
	URL         string // final URL after redirects
	Status      FetchStatus
	Body        []byte // set only when Status is FetchOK
	ContentType string
	Err         error // underlying cause for non-OK statuses
}

// OK reports whether the fetch produced usable content.
func (r FetchResult) OK() bool {
	return r.Status == FetchOK
}

// Transient reports whether a retry could plausibly succeed.
func (r FetchResult) Transient() bool {
	switch r.Status {
	case FetchTimedOut, FetchNetworkError:
		return true
	case FetchHTTPStatus:
		var he *HTTPError
		if errors.As(r.Err, &he) {
			return he.Temporary()
		}
	}
	return false
}

// Failure wraps a non-OK result as an error for logging.
func (r FetchResult) Failure() error {
	if r.OK() {
		return nil
	}
	if r.Err != nil {
		return fmt.Errorf("%s: %w", r.Status, r.Err)
	}
	return fmt.Errorf("%s", r.Status)
}

// HTTPError records a non-2xx response so retry logic can inspect it.
type HTTPError struct {
	URL        string
	StatusCode int
	RetryAfter time.Duration // zero when the server sent no Retry-After
	Err        error
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("HTTP %d", e.StatusCode)
	if e.URL != "" {
		msg += " from " + e.URL
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *HTTPError) Unwrap() error { return e.Err }

// Temporary reports whether the status is worth retrying: throttling or a
// server-side failure.
func (e *HTTPError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
