package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amishk599/noticewatch/internal/model"
)

func TestAllow(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	window := 24 * time.Hour
	recent := now.Add(-23 * time.Hour)
	edge := now.Add(-24 * time.Hour)
	old := now.Add(-25 * time.Hour)

	tests := []struct {
		name string
		last *time.Time
		want bool
	}{
		{"never alerted", nil, true},
		{"inside window", &recent, false},
		{"exactly window ago", &edge, true},
		{"outside window", &old, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Allow(now, tt.last, window))
		})
	}
}

func TestAllow_ZeroWindowDisablesLimit(t *testing.T) {
	now := time.Now()
	assert.True(t, Allow(now, &now, 0))
}

func TestWait_SameHost_EnforcesMinDelay(t *testing.T) {
	limiter := NewHostRateLimiter(100 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx, "psc.example"))

	start := time.Now()
	require.NoError(t, limiter.Wait(ctx, "psc.example"))

	// Allow 20ms for timer jitter.
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestWait_DifferentHosts_NoCrossBlocking(t *testing.T) {
	limiter := NewHostRateLimiter(200 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, limiter.Wait(ctx, "a.example"))

	start := time.Now()
	require.NoError(t, limiter.Wait(ctx, "b.example"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestWait_ContextCancellation(t *testing.T) {
	limiter := NewHostRateLimiter(5 * time.Second)

	require.NoError(t, limiter.Wait(context.Background(), "a.example"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, limiter.Wait(ctx, "a.example"))
}

type recordingFetcher struct {
	calls []string
}

func (f *recordingFetcher) Fetch(_ context.Context, url string) model.FetchResult {
	f.calls = append(f.calls, url)
	return model.FetchResult{URL: url, Status: model.FetchOK, Body: []byte("ok")}
}

func TestRateLimitedFetcher_SpacesSameHost(t *testing.T) {
	inner := &recordingFetcher{}
	fetcher := NewRateLimitedFetcher(inner, NewHostRateLimiter(100*time.Millisecond))
	ctx := context.Background()

	res := fetcher.Fetch(ctx, "https://psc.example/jobs")
	require.True(t, res.OK(), "first fetch: %v", res.Failure())

	start := time.Now()
	res = fetcher.Fetch(ctx, "https://PSC.example/notice.pdf")
	require.True(t, res.OK(), "second fetch: %v", res.Failure())
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Len(t, inner.calls, 2)
}

func TestRateLimitedFetcher_CancelledContextSkipsInner(t *testing.T) {
	inner := &recordingFetcher{}
	fetcher := NewRateLimitedFetcher(inner, NewHostRateLimiter(5*time.Second))

	fetcher.Fetch(context.Background(), "https://a.example/")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := fetcher.Fetch(ctx, "https://a.example/next")

	assert.False(t, res.OK())
	assert.Equal(t, model.FetchNetworkError, res.Status)
	assert.Len(t, inner.calls, 1)
}
