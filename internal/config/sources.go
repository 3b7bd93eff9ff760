package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/amishk599/noticewatch/internal/model"
)

var (
	// ErrNoSources means neither the sources file nor the config lists any source.
	ErrNoSources = errors.New("no sources configured")
	// ErrInvalidSources means the source list could not be read or failed validation.
	ErrInvalidSources = errors.New("invalid sources")
)

// rawSource is one entry of the sources file. The file is a JSON array
// (YAML is accepted too): [{"org": "...", "url": "..."}].
type rawSource struct {
	Org    string `yaml:"org" validate:"required"`
	URL    string `yaml:"url" validate:"required,http_url"`
	Mode   string `yaml:"mode" validate:"omitempty,oneof=generic index_hash periodical_issue"`
	Render bool   `yaml:"render"`
}

var sourceValidator = validator.New()

// LoadSources reads the source list at path. An empty list is ErrNoSources;
// an unreadable or malformed one wraps ErrInvalidSources.
func LoadSources(path string) ([]model.Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSources, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoSources)
	}

	var raw []rawSource
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSources, path, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoSources)
	}
	return validateSources(raw)
}

// ResolveSources merges the inline sources with the sources file. A missing
// sources file is fine when inline sources exist.
func (c *Config) ResolveSources() ([]model.Source, error) {
	sources := append([]model.Source(nil), c.Sources...)

	if c.SourcesFile != "" {
		fromFile, err := LoadSources(c.SourcesFile)
		switch {
		case err == nil:
			sources = append(sources, fromFile...)
		case len(sources) > 0 && errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}

	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	return dedupe(sources), nil
}

func validateSources(raw []rawSource) ([]model.Source, error) {
	sources := make([]model.Source, 0, len(raw))
	for i, r := range raw {
		if err := sourceValidator.Struct(r); err != nil {
			return nil, fmt.Errorf("%w: entry %d (%q): %v", ErrInvalidSources, i, r.Org, err)
		}
		sources = append(sources, model.Source{
			Org:    r.Org,
			URL:    r.URL,
			Mode:   model.NoticeMode(r.Mode),
			Render: r.Render,
		})
	}
	return sources, nil
}

// dedupe drops repeated (org, url) pairs, keeping the first.
func dedupe(sources []model.Source) []model.Source {
	type key struct{ org, url string }
	seen := make(map[key]bool, len(sources))
	out := sources[:0]
	for _, s := range sources {
		k := key{s.Org, s.URL}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}
