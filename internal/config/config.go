// Package config loads noticewatch settings and the monitored source list.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/amishk599/noticewatch/internal/classify"
	"github.com/amishk599/noticewatch/internal/detect"
	"github.com/amishk599/noticewatch/internal/fetch"
	"github.com/amishk599/noticewatch/internal/model"
)

// Config is the root configuration.
type Config struct {
	SourcesFile  string // resolved relative to the config file
	Sources      []model.Source
	Classifier   classify.Rules
	Detector     detect.Policy
	Fetch        FetchConfig
	Run          RunConfig
	State        StateConfig
	Notification NotificationConfig
}

// FetchConfig controls how URLs are retrieved.
type FetchConfig struct {
	fetch.Options
	MaxRetries    int
	RetryBackoff  time.Duration
	HostDelay     time.Duration // minimum gap between requests to one host
	RespectRobots bool
}

// RunConfig controls parallelism and pacing of scan passes.
type RunConfig struct {
	Workers         int           // orgs scanned in parallel
	ArtifactWorkers int           // artifact fetches in flight per org
	Deadline        time.Duration // cap on one pass
	Interval        time.Duration // daemon pause between passes
}

// StateConfig selects the persistence backend.
type StateConfig struct {
	Backend string `yaml:"backend"` // "file", "sqlite", "postgres" or "none"
	Path    string `yaml:"path"`    // file and sqlite backends
	DSN     string `yaml:"dsn"`     // postgres backend
}

// NotificationConfig controls which notifiers are used and their settings.
type NotificationConfig struct {
	Types          []string `yaml:"types"`       // any of "log", "slack", "telegram"
	WebhookURL     string   `yaml:"webhook_url"` // slack
	TelegramToken  string   `yaml:"telegram_bot_token"`
	TelegramChatID string   `yaml:"telegram_chat_id"`
	TelegramAPI    string   `yaml:"telegram_api"`
	Prefix         string   `yaml:"prefix"` // prepended to telegram messages
}

// Has reports whether the notifier type is enabled.
func (n NotificationConfig) Has(kind string) bool {
	for _, t := range n.Types {
		if strings.EqualFold(t, kind) {
			return true
		}
	}
	return false
}

// rawConfig is used for YAML unmarshaling (snake_case fields and durations as strings).
type rawConfig struct {
	SourcesFile  string              `yaml:"sources_file"`
	Sources      []rawSource         `yaml:"sources"`
	Classifier   rawClassifierConfig `yaml:"classifier"`
	Alerts       rawAlertConfig      `yaml:"alerts"`
	Fetch        rawFetchConfig      `yaml:"fetch"`
	Run          rawRunConfig        `yaml:"run"`
	State        StateConfig         `yaml:"state"`
	Notification NotificationConfig  `yaml:"notification"`
}

type rawClassifierConfig struct {
	PDFAllow           []string `yaml:"pdf_allow"`
	PDFDeny            []string `yaml:"pdf_deny"`
	PagePatterns       []string `yaml:"page_patterns"`
	PageIgnore         []string `yaml:"page_ignore"`
	RequiredTerms      []string `yaml:"required_terms"`
	MinRequiredTerms   int      `yaml:"min_required_terms"`
	TextCap            int      `yaml:"text_cap"`
	StalenessDays      int      `yaml:"staleness_days"`
	IssueStalenessDays int      `yaml:"issue_staleness_days"`
	PDFRecentYears     int      `yaml:"pdf_recent_years"`
}

type rawAlertConfig struct {
	HTMLWindow string `yaml:"html_window"`
}

type rawFetchConfig struct {
	Timeout            string `yaml:"timeout"`
	UserAgent          string `yaml:"user_agent"`
	MinBytes           int    `yaml:"min_bytes"`
	MaxBytes           int64  `yaml:"max_bytes"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	MaxRetries         *int   `yaml:"max_retries"`
	RetryBackoff       string `yaml:"retry_backoff"`
	HostDelay          string `yaml:"host_delay"`
	RespectRobots      bool   `yaml:"respect_robots"`
}

type rawRunConfig struct {
	Workers         int    `yaml:"workers"`
	ArtifactWorkers int    `yaml:"artifact_workers"`
	Deadline        string `yaml:"deadline"`
	Interval        string `yaml:"interval"`
}

// Default returns the built-in configuration with no sources.
func Default() *Config {
	return &Config{
		SourcesFile: "sources_jobs.json",
		Classifier:  classify.DefaultRules(),
		Detector:    detect.DefaultPolicy(),
		Fetch: FetchConfig{
			Options:      fetch.DefaultOptions(),
			MaxRetries:   1,
			RetryBackoff: 2 * time.Second,
			HostDelay:    500 * time.Millisecond,
		},
		Run: RunConfig{
			Workers:         4,
			ArtifactWorkers: 2,
			Deadline:        30 * time.Minute,
			Interval:        time.Hour,
		},
		State:        StateConfig{Backend: "file", Path: "state.json"},
		Notification: NotificationConfig{Types: []string{"log", "telegram"}},
	}
}

// Load reads and parses the YAML config file at path over the defaults,
// validates it, and returns Config. Environment variables in the file are
// expanded. Relative file paths inside the config resolve against its directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, nil
}

// Parse builds a Config from YAML bytes over the defaults.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := Default()
	if raw.SourcesFile != "" {
		cfg.SourcesFile = raw.SourcesFile
	}
	if len(raw.Sources) > 0 {
		sources, err := validateSources(raw.Sources)
		if err != nil {
			return nil, fmt.Errorf("config sources: %w", err)
		}
		cfg.Sources = sources
	}

	applyClassifier(&cfg.Classifier, raw.Classifier)

	var err error
	if cfg.Detector.HTMLAlertWindow, err = duration("alerts.html_window", raw.Alerts.HTMLWindow, cfg.Detector.HTMLAlertWindow); err != nil {
		return nil, err
	}

	f := raw.Fetch
	if cfg.Fetch.Timeout, err = duration("fetch.timeout", f.Timeout, cfg.Fetch.Timeout); err != nil {
		return nil, err
	}
	if cfg.Fetch.RetryBackoff, err = duration("fetch.retry_backoff", f.RetryBackoff, cfg.Fetch.RetryBackoff); err != nil {
		return nil, err
	}
	if cfg.Fetch.HostDelay, err = duration("fetch.host_delay", f.HostDelay, cfg.Fetch.HostDelay); err != nil {
		return nil, err
	}
	if f.UserAgent != "" {
		cfg.Fetch.UserAgent = f.UserAgent
	}
	if f.MinBytes > 0 {
		cfg.Fetch.MinBytes = f.MinBytes
	}
	if f.MaxBytes > 0 {
		cfg.Fetch.MaxBytes = f.MaxBytes
	}
	if f.MaxRetries != nil {
		cfg.Fetch.MaxRetries = *f.MaxRetries
	}
	cfg.Fetch.InsecureSkipVerify = f.InsecureSkipVerify
	cfg.Fetch.RespectRobots = f.RespectRobots

	r := raw.Run
	if r.Workers > 0 {
		cfg.Run.Workers = r.Workers
	}
	if r.ArtifactWorkers > 0 {
		cfg.Run.ArtifactWorkers = r.ArtifactWorkers
	}
	if cfg.Run.Deadline, err = duration("run.deadline", r.Deadline, cfg.Run.Deadline); err != nil {
		return nil, err
	}
	if cfg.Run.Interval, err = duration("run.interval", r.Interval, cfg.Run.Interval); err != nil {
		return nil, err
	}

	if raw.State.Backend != "" {
		cfg.State.Backend = strings.ToLower(raw.State.Backend)
	}
	if raw.State.Path != "" {
		cfg.State.Path = raw.State.Path
	}
	cfg.State.DSN = raw.State.DSN

	n := raw.Notification
	if len(n.Types) == 0 {
		n.Types = cfg.Notification.Types
	}
	cfg.Notification = n

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyClassifier(rules *classify.Rules, raw rawClassifierConfig) {
	if raw.PDFAllow != nil {
		rules.PDFAllow = raw.PDFAllow
	}
	if raw.PDFDeny != nil {
		rules.PDFDeny = raw.PDFDeny
	}
	if raw.PagePatterns != nil {
		rules.PagePatterns = raw.PagePatterns
	}
	if raw.PageIgnore != nil {
		rules.PageIgnore = raw.PageIgnore
	}
	if raw.RequiredTerms != nil {
		rules.RequiredTerms = raw.RequiredTerms
	}
	if raw.MinRequiredTerms > 0 {
		rules.MinRequiredTerms = raw.MinRequiredTerms
	}
	if raw.TextCap > 0 {
		rules.TextCap = raw.TextCap
	}
	if raw.StalenessDays > 0 {
		rules.Staleness = time.Duration(raw.StalenessDays) * 24 * time.Hour
	}
	if raw.IssueStalenessDays > 0 {
		rules.IssueStaleness = time.Duration(raw.IssueStalenessDays) * 24 * time.Hour
	}
	rules.RecentYears = raw.PDFRecentYears
}

func (c *Config) resolvePaths(dir string) {
	if c.SourcesFile != "" && !filepath.IsAbs(c.SourcesFile) {
		c.SourcesFile = filepath.Join(dir, c.SourcesFile)
	}
	if c.State.Path != "" && !filepath.IsAbs(c.State.Path) {
		c.State.Path = filepath.Join(dir, c.State.Path)
	}
}

func duration(field, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, value, err)
	}
	return d, nil
}

func validate(cfg *Config) error {
	if cfg.Run.Interval <= 0 {
		return fmt.Errorf("run.interval must be positive, got %v", cfg.Run.Interval)
	}
	if cfg.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be positive, got %v", cfg.Fetch.Timeout)
	}
	if cfg.Fetch.MaxRetries < 0 || cfg.Fetch.MaxRetries > 3 {
		return fmt.Errorf("fetch.max_retries must be between 0 and 3, got %d", cfg.Fetch.MaxRetries)
	}
	if cfg.Detector.HTMLAlertWindow < 0 {
		return fmt.Errorf("alerts.html_window must not be negative, got %v", cfg.Detector.HTMLAlertWindow)
	}
	if cfg.Classifier.MinRequiredTerms > len(cfg.Classifier.RequiredTerms) {
		return fmt.Errorf("classifier.min_required_terms (%d) exceeds the %d required terms",
			cfg.Classifier.MinRequiredTerms, len(cfg.Classifier.RequiredTerms))
	}

	switch cfg.State.Backend {
	case "file", "sqlite":
		if cfg.State.Path == "" {
			return fmt.Errorf("state.path is required for the %s backend", cfg.State.Backend)
		}
	case "postgres":
		if cfg.State.DSN == "" {
			return fmt.Errorf("state.dsn is required for the postgres backend")
		}
	case "none":
	default:
		return fmt.Errorf("state.backend must be file, sqlite, postgres or none, got %q", cfg.State.Backend)
	}

	for _, t := range cfg.Notification.Types {
		switch strings.ToLower(t) {
		case "log", "telegram":
		case "slack":
			if !strings.HasPrefix(cfg.Notification.WebhookURL, "https://hooks.slack.com/") {
				return fmt.Errorf("notification.webhook_url must start with https://hooks.slack.com/")
			}
		default:
			return fmt.Errorf("notification.types: unknown notifier %q", t)
		}
	}
	return nil
}
