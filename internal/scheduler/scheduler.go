// Package scheduler runs scan passes over every org and persists the result.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/amishk599/noticewatch/internal/poller"
	"github.com/amishk599/noticewatch/internal/state"
)

// Poller scans one org. Satisfied by *poller.OrgPoller.
type Poller interface {
	Poll(ctx context.Context) (poller.Summary, error)
}

// Options configures a Scheduler.
type Options struct {
	Workers  int           // orgs scanned in parallel
	Deadline time.Duration // cap on one pass; zero means none
	Interval time.Duration // pause between passes in Run
}

// Report describes one completed pass.
type Report struct {
	RunID     string
	Started   time.Time
	Duration  time.Duration
	Summaries []poller.Summary
	Failed    int // orgs whose Poll returned an error
}

// Alerts totals alerting verdicts across orgs.
func (r Report) Alerts() int {
	n := 0
	for _, s := range r.Summaries {
		n += s.Alerts()
	}
	return n
}

// Scheduler owns the pass loop: scan every org in a bounded pool, then save
// the store through the repository.
type Scheduler struct {
	pollers []Poller
	store   *state.Store
	repo    state.Repository
	opts    Options
	logger  *slog.Logger
}

// NewScheduler creates a scheduler. The store must have been loaded from repo.
func NewScheduler(pollers []Poller, store *state.Store, repo state.Repository, opts Options, logger *slog.Logger) *Scheduler {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Scheduler{
		pollers: pollers,
		store:   store,
		repo:    repo,
		opts:    opts,
		logger:  logger,
	}
}

// RunOnce scans every org once and saves the snapshot. One org's failure
// never stops the others. The only returned error is a persistence failure,
// in which case the previously saved snapshot is left as it was.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	runID := uuid.NewString()
	logger := s.logger.With("run_id", runID)
	report := Report{RunID: runID, Started: time.Now()}

	scanCtx := ctx
	if s.opts.Deadline > 0 {
		var cancel context.CancelFunc
		scanCtx, cancel = context.WithTimeout(ctx, s.opts.Deadline)
		defer cancel()
	}

	logger.Info("scan started", "orgs", len(s.pollers), "workers", s.opts.Workers)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.opts.Workers)
	for _, p := range s.pollers {
		g.Go(func() error {
			sum, err := p.Poll(scanCtx)
			mu.Lock()
			defer mu.Unlock()
			report.Summaries = append(report.Summaries, sum)
			if err != nil {
				report.Failed++
				level := slog.LevelError
				if errors.Is(err, poller.ErrNoHomepage) {
					level = slog.LevelWarn
				}
				logger.Log(ctx, level, "org scan failed", "org", sum.Org, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if errors.Is(scanCtx.Err(), context.DeadlineExceeded) {
		logger.Warn("scan deadline reached, saving partial results", "deadline", s.opts.Deadline)
	}

	// Save with the parent context so a scan that hit its deadline still persists.
	if err := s.repo.Save(ctx, s.store.Snapshot()); err != nil {
		logger.Error("saving state failed", "error", err)
		return report, fmt.Errorf("saving state: %w", err)
	}

	report.Duration = time.Since(report.Started)
	logger.Info("scan complete",
		"orgs", len(s.pollers),
		"failed", report.Failed,
		"alerts", report.Alerts(),
		"duration", report.Duration.Round(time.Millisecond).String(),
	)
	return report, nil
}

// Run starts the daemon loop. It runs one immediate pass, then one pass per
// interval. It returns nil when ctx is cancelled (graceful shutdown) and an
// error if state cannot be saved.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting scheduler",
		"interval", s.opts.Interval.String(),
		"orgs", len(s.pollers),
	)

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				s.logger.Info("shutting down scheduler")
				return nil
			}
			return err
		}

		timer := time.NewTimer(s.opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("shutting down scheduler")
			return nil
		case <-timer.C:
		}
	}
}
