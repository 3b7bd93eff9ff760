package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/noticewatch/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockFetcher calls a function on each invocation, tracking call count.
type mockFetcher struct {
	calls int
	fn    func(attempt int) model.FetchResult
}

func (m *mockFetcher) Fetch(_ context.Context, _ string) model.FetchResult {
	m.calls++
	return m.fn(m.calls)
}

func ok() model.FetchResult {
	return model.FetchResult{Status: model.FetchOK, Body: []byte("<html>notice</html>")}
}

func httpStatus(code int) model.FetchResult {
	return model.FetchResult{
		Status: model.FetchHTTPStatus,
		Err:    &model.HTTPError{StatusCode: code, Err: errors.New("upstream")},
	}
}

func TestRetry_SucceedsOnFirstAttempt(t *testing.T) {
	mock := &mockFetcher{fn: func(_ int) model.FetchResult { return ok() }}

	rf := NewRetryFetcher(mock, 1, 10*time.Millisecond, discardLogger())
	res := rf.Fetch(context.Background(), "https://a.example/")
	require.True(t, res.OK(), "unexpected failure: %v", res.Failure())
	assert.Equal(t, 1, mock.calls)
}

func TestRetry_RetriesTimeout_SucceedsOnSecondAttempt(t *testing.T) {
	mock := &mockFetcher{fn: func(attempt int) model.FetchResult {
		if attempt == 1 {
			return model.FetchResult{Status: model.FetchTimedOut, Err: errors.New("deadline")}
		}
		return ok()
	}}

	rf := NewRetryFetcher(mock, 1, 10*time.Millisecond, discardLogger())
	res := rf.Fetch(context.Background(), "https://a.example/")
	require.True(t, res.OK(), "unexpected failure: %v", res.Failure())
	assert.Equal(t, 2, mock.calls)
}

func TestRetry_RetriesOn5xx(t *testing.T) {
	mock := &mockFetcher{fn: func(attempt int) model.FetchResult {
		if attempt == 1 {
			return httpStatus(503)
		}
		return ok()
	}}

	rf := NewRetryFetcher(mock, 1, 10*time.Millisecond, discardLogger())
	res := rf.Fetch(context.Background(), "https://a.example/")
	assert.True(t, res.OK(), "unexpected failure: %v", res.Failure())
}

func TestRetry_DoesNotRetryOn4xx(t *testing.T) {
	mock := &mockFetcher{fn: func(_ int) model.FetchResult { return httpStatus(404) }}

	rf := NewRetryFetcher(mock, 1, 10*time.Millisecond, discardLogger())
	res := rf.Fetch(context.Background(), "https://a.example/")

	var httpErr *model.HTTPError
	require.ErrorAs(t, res.Err, &httpErr)
	assert.Equal(t, 404, httpErr.StatusCode)
	assert.Equal(t, 1, mock.calls, "no retry")
}

func TestRetry_DoesNotRetryTooShort(t *testing.T) {
	mock := &mockFetcher{fn: func(_ int) model.FetchResult {
		return model.FetchResult{Status: model.FetchTooShort}
	}}

	rf := NewRetryFetcher(mock, 1, 10*time.Millisecond, discardLogger())
	rf.Fetch(context.Background(), "https://a.example/")
	assert.Equal(t, 1, mock.calls)
}

func TestRetry_GivesUpAfterMaxRetries(t *testing.T) {
	mock := &mockFetcher{fn: func(_ int) model.FetchResult {
		return model.FetchResult{Status: model.FetchNetworkError, Err: errors.New("connection refused")}
	}}

	rf := NewRetryFetcher(mock, 2, 10*time.Millisecond, discardLogger())
	res := rf.Fetch(context.Background(), "https://a.example/")
	assert.False(t, res.OK())
	// 1 initial + 2 retries = 3
	assert.Equal(t, 3, mock.calls)
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	mock := &mockFetcher{fn: func(_ int) model.FetchResult { return httpStatus(500) }}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rf := NewRetryFetcher(mock, 2, time.Second, discardLogger())
	res := rf.Fetch(ctx, "https://a.example/")
	assert.False(t, res.OK())
	assert.Equal(t, 1, mock.calls, "one call before cancellation")
}

func TestRetry_HonoursRetryAfter(t *testing.T) {
	rf := NewRetryFetcher(nil, 1, time.Hour, discardLogger())
	err := &model.HTTPError{StatusCode: 429, RetryAfter: 3 * time.Second}
	assert.Equal(t, 3*time.Second, rf.backoffDelay(1, err))
}

func TestRetry_BackoffJitterBounds(t *testing.T) {
	rf := NewRetryFetcher(nil, 2, time.Second, discardLogger())
	for i := 0; i < 20; i++ {
		d := rf.backoffDelay(2, nil)
		require.GreaterOrEqual(t, d, 1400*time.Millisecond)
		require.LessOrEqual(t, d, 2600*time.Millisecond)
	}
}
