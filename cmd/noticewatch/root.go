package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/amishk599/noticewatch/internal/classify"
	"github.com/amishk599/noticewatch/internal/config"
	"github.com/amishk599/noticewatch/internal/detect"
	"github.com/amishk599/noticewatch/internal/fetch"
	"github.com/amishk599/noticewatch/internal/model"
	"github.com/amishk599/noticewatch/internal/notifier"
	"github.com/amishk599/noticewatch/internal/poller"
	"github.com/amishk599/noticewatch/internal/ratelimit"
	"github.com/amishk599/noticewatch/internal/retry"
	"github.com/amishk599/noticewatch/internal/scheduler"
	"github.com/amishk599/noticewatch/internal/state"
)

// sourcesDiagnostic is sent when the source list cannot be used.
const sourcesDiagnostic = "❌ Sources file empty or invalid"

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "noticewatch",
	Short: "Recruitment notice watcher",
	Long:  "noticewatch scans organization career pages for new or changed job notices and alerts you once per change.",
	// Default to `run` so a cron entry can invoke the binary directly.
	RunE:         runRun,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: NOTICEWATCH_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > NOTICEWATCH_CONFIG env var > "./config.yaml".
// A missing ./config.yaml falls back to the built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	explicit := true
	if path == "" {
		if env := os.Getenv("NOTICEWATCH_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
			explicit = false
		}
	}
	cfg, err := config.Load(path)
	if err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func newHTTPClient(cfg *config.Config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Fetch.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for misconfigured government hosts
	}
	return &http.Client{Transport: transport}
}

// buildNotifier is swapped out by tests to observe diagnostics.
var buildNotifier = setupNotifier

// setupNotifier builds every configured notifier. Telegram credentials fall
// back to TELEGRAM_BOT_TOKEN / TELEGRAM_CHAT_ID; when either is missing the
// telegram notifier is skipped.
func setupNotifier(cfg *config.Config, logger *slog.Logger) model.Notifier {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	n := cfg.Notification

	var out notifier.Multi
	if n.Has("log") {
		out = append(out, notifier.NewLogNotifier(logger))
	}
	if n.Has("slack") {
		logger.Info("using slack notifier")
		out = append(out, notifier.NewSlackNotifier(n.WebhookURL, httpClient, logger))
	}
	if n.Has("telegram") {
		token := firstNonEmpty(n.TelegramToken, os.Getenv("TELEGRAM_BOT_TOKEN"))
		chatID := firstNonEmpty(n.TelegramChatID, os.Getenv("TELEGRAM_CHAT_ID"))
		if token == "" || chatID == "" {
			logger.Warn("telegram notifier disabled: bot token or chat id missing")
			out = append(out, notifier.NopNotifier{})
		} else {
			logger.Info("using telegram notifier")
			out = append(out, notifier.NewTelegramNotifier(n.TelegramAPI, token, chatID, n.Prefix, httpClient, logger))
		}
	}

	if len(out) == 1 {
		return out[0]
	}
	return out
}

// setupRepository opens the configured persistence backend.
func setupRepository(ctx context.Context, cfg *config.Config) (state.Repository, error) {
	switch cfg.State.Backend {
	case "sqlite":
		repo, err := state.NewSQLiteRepository(cfg.State.Path)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "postgres":
		repo, err := state.NewPostgresRepository(ctx, cfg.State.DSN)
		if err != nil {
			return nil, err
		}
		return repo, nil
	case "none":
		return state.NewNopRepository(), nil
	default:
		return state.NewFileRepository(cfg.State.Path), nil
	}
}

// setupFetchers builds the plain fetcher chain and the browser renderer:
// http → robots gate → per-host delay → retry.
func setupFetchers(cfg *config.Config, logger *slog.Logger) (fetcher, renderer model.Fetcher) {
	httpClient := newHTTPClient(cfg)

	var f model.Fetcher = fetch.NewHTTPFetcher(httpClient, cfg.Fetch.Options)
	if cfg.Fetch.RespectRobots {
		f = fetch.NewRobotsFetcher(f, httpClient, cfg.Fetch.UserAgent)
	}
	limiter := ratelimit.NewHostRateLimiter(cfg.Fetch.HostDelay)
	f = ratelimit.NewRateLimitedFetcher(f, limiter)
	f = retry.NewRetryFetcher(f, cfg.Fetch.MaxRetries, cfg.Fetch.RetryBackoff, logger)

	var r model.Fetcher = fetch.NewBrowserFetcher(cfg.Fetch.Timeout, cfg.Fetch.MinBytes)
	r = ratelimit.NewRateLimitedFetcher(r, limiter)
	r = retry.NewRetryFetcher(r, cfg.Fetch.MaxRetries, cfg.Fetch.RetryBackoff, logger)
	return f, r
}

// buildPollers groups sources by org and creates one poller per org.
func buildPollers(cfg *config.Config, sources []model.Source, det *detect.Detector, logger *slog.Logger) []scheduler.Poller {
	fetcher, renderer := setupFetchers(cfg, logger)
	cls := classify.NewClassifier(cfg.Classifier, nil)

	orgs, byOrg := poller.GroupByOrg(sources)
	pollers := make([]scheduler.Poller, 0, len(orgs))
	for _, org := range orgs {
		p := poller.NewOrgPoller(org, byOrg[org], fetcher, renderer, cls, det, cfg.Run.ArtifactWorkers, logger)
		pollers = append(pollers, p)
		logger.Debug("registered org", "org", org, "sources", len(byOrg[org]))
	}
	return pollers
}

// pipeline is everything a scan pass needs.
type pipeline struct {
	cfg       *config.Config
	logger    *slog.Logger
	notifier  model.Notifier
	repo      state.Repository
	scheduler *scheduler.Scheduler
}

func (p *pipeline) Close() {
	if err := p.repo.Close(); err != nil {
		p.logger.Error("closing state backend", "error", err)
	}
}

// setupPipeline loads config, sources and state. ok is false when a
// configuration problem was reported and the command should exit cleanly.
// A non-nil error means the state backend is unusable.
//
// dryRun keeps state in memory only and routes alerts to the log.
func setupPipeline(ctx context.Context, logger *slog.Logger, dryRun bool) (p *pipeline, ok bool, err error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		sendDiagnostic(ctx, buildNotifier(config.Default(), logger), "❌ Configuration invalid: "+err.Error(), logger)
		return nil, false, nil
	}

	n := buildNotifier(cfg, logger)
	if dryRun {
		n = notifier.NewLogNotifier(logger)
	}

	sources, err := cfg.ResolveSources()
	if err != nil {
		logger.Error("failed to load sources", "file", cfg.SourcesFile, "error", err)
		sendDiagnostic(ctx, n, sourcesDiagnostic, logger)
		return nil, false, nil
	}

	logger.Info("config loaded",
		"sources", len(sources),
		"backend", cfg.State.Backend,
		"workers", cfg.Run.Workers,
		"html_window", cfg.Detector.HTMLAlertWindow.String(),
		"staleness", cfg.Classifier.Staleness.String(),
	)

	repo, err := setupRepository(ctx, cfg)
	if err != nil {
		return nil, false, fmt.Errorf("opening state backend: %w", err)
	}
	snap, err := repo.Load(ctx)
	if err != nil {
		_ = repo.Close()
		return nil, false, fmt.Errorf("loading state: %w", err)
	}
	if dryRun {
		_ = repo.Close()
		repo = state.NewNopRepository()
	}

	store := state.NewStore(snap)
	det := detect.New(store, n, cfg.Detector, nil, logger)
	pollers := buildPollers(cfg, sources, det, logger)

	sched := scheduler.NewScheduler(pollers, store, repo, scheduler.Options{
		Workers:  cfg.Run.Workers,
		Deadline: cfg.Run.Deadline,
		Interval: cfg.Run.Interval,
	}, logger)

	return &pipeline{cfg: cfg, logger: logger, notifier: n, repo: repo, scheduler: sched}, true, nil
}

func sendDiagnostic(ctx context.Context, n model.Notifier, text string, logger *slog.Logger) {
	if err := n.Send(ctx, text); err != nil {
		logger.Error("sending diagnostic failed", "error", err)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
