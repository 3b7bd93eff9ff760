// Package retry re-attempts fetches that failed for transient reasons.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/amishk599/noticewatch/internal/model"
)

// RetryFetcher is a decorator that retries transient failures with exponential
// backoff and jitter before giving up on a URL.
type RetryFetcher struct {
	inner      model.Fetcher
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// NewRetryFetcher wraps a Fetcher with retry logic.
// maxRetries is the number of additional attempts after the first failure.
// baseDelay is the delay before the first retry, doubled on each later one.
func NewRetryFetcher(inner model.Fetcher, maxRetries int, baseDelay time.Duration, logger *slog.Logger) *RetryFetcher {
	return &RetryFetcher{
		inner:      inner,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		logger:     logger,
	}
}

// Fetch fetches rawURL, retrying while the result is transient and ctx is live.
func (f *RetryFetcher) Fetch(ctx context.Context, rawURL string) model.FetchResult {
	res := f.inner.Fetch(ctx, rawURL)

	for attempt := 1; attempt <= f.maxRetries; attempt++ {
		if !isRetryable(ctx, res) {
			return res
		}
		delay := f.backoffDelay(attempt, res.Err)

		f.logger.Warn("retrying after transient fetch failure",
			"url", rawURL,
			"attempt", attempt,
			"max_retries", f.maxRetries,
			"delay", delay,
			"status", res.Status,
			"error", res.Err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return model.FetchResult{
				URL:    rawURL,
				Status: res.Status,
				Err:    fmt.Errorf("retry cancelled: %w", errors.Join(ctx.Err(), res.Err)),
			}
		case <-timer.C:
		}

		res = f.inner.Fetch(ctx, rawURL)
	}

	return res
}

// backoffDelay computes the delay for a given attempt with ±30% jitter.
// A Retry-After from an HTTP 429 takes precedence.
func (f *RetryFetcher) backoffDelay(attempt int, err error) time.Duration {
	var httpErr *model.HTTPError
	if errors.As(err, &httpErr) && httpErr.RetryAfter > 0 {
		return httpErr.RetryAfter
	}

	delay := f.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}

	jitter := float64(delay) * 0.3
	return time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)
}

// isRetryable reports whether res is worth another attempt. Nothing is retried
// once the caller's context is done.
func isRetryable(ctx context.Context, res model.FetchResult) bool {
	if res.OK() || ctx.Err() != nil {
		return false
	}
	if errors.Is(res.Err, context.Canceled) {
		return false
	}
	return res.Transient()
}
