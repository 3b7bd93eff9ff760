// Package ratelimit bounds how often alerts fire and how often hosts are hit.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/amishk599/noticewatch/internal/model"
)

// Allow reports whether an alert may fire at now given the previous alert
// time for the same key. A nil last always allows. The window is half-open:
// an alert exactly window after the last one is allowed.
func Allow(now time.Time, last *time.Time, window time.Duration) bool {
	if last == nil || window <= 0 {
		return true
	}
	return now.Sub(*last) >= window
}

// HostRateLimiter enforces a minimum delay between requests to the same host.
type HostRateLimiter struct {
	mu       sync.Mutex
	next     map[string]time.Time // key: host, value: earliest next slot
	minDelay time.Duration
}

// NewHostRateLimiter creates a limiter that spaces requests to one host by minDelay.
func NewHostRateLimiter(minDelay time.Duration) *HostRateLimiter {
	return &HostRateLimiter{
		next:     make(map[string]time.Time),
		minDelay: minDelay,
	}
}

// Wait blocks until host's next slot. Each caller reserves its slot before
// sleeping, so concurrent callers for one host are spaced out rather than
// woken together. Returns an error if ctx ends first.
func (r *HostRateLimiter) Wait(ctx context.Context, host string) error {
	if r.minDelay <= 0 {
		return nil
	}

	r.mu.Lock()
	now := time.Now()
	slot, ok := r.next[host]
	if !ok || !slot.After(now) {
		slot = now
	}
	r.next[host] = slot.Add(r.minDelay)
	r.mu.Unlock()

	wait := slot.Sub(now)
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limiter wait for %s: %w", host, ctx.Err())
	case <-timer.C:
		return nil
	}
}

// RateLimitedFetcher is a decorator that applies per-host spacing before
// delegating to the wrapped Fetcher. Fetchers sharing a limiter share slots.
type RateLimitedFetcher struct {
	inner   model.Fetcher
	limiter *HostRateLimiter
}

// NewRateLimitedFetcher wraps inner with per-host rate limiting.
func NewRateLimitedFetcher(inner model.Fetcher, limiter *HostRateLimiter) *RateLimitedFetcher {
	return &RateLimitedFetcher{inner: inner, limiter: limiter}
}

// Fetch waits for rawURL's host, then delegates.
func (f *RateLimitedFetcher) Fetch(ctx context.Context, rawURL string) model.FetchResult {
	if err := f.limiter.Wait(ctx, hostOf(rawURL)); err != nil {
		status := model.FetchNetworkError
		if errors.Is(err, context.DeadlineExceeded) {
			status = model.FetchTimedOut
		}
		return model.FetchResult{URL: rawURL, Status: status, Err: err}
	}
	return f.inner.Fetch(ctx, rawURL)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.ToLower(u.Host)
}
