// Package config loads pipeline settings from a TOML file with environment
// and command-line overrides layered on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the pipeline configuration.
type Config struct {
	Data     DataConfig     `toml:"data"`
	HTTP     HTTPConfig     `toml:"http"`
	Upstream UpstreamConfig `toml:"upstream"`
	Meta     MetaConfig     `toml:"meta"`
	Tensor   TensorConfig   `toml:"tensor"`
	Log      LogConfig      `toml:"log"`
}

// DataConfig locates the persisted layout.
type DataConfig struct {
	Dir string `toml:"dir" env:"HS_DATA_DIR"` // Root of dbf_map.json, archetypes.json, replays.db, replays/
}

// HTTPConfig contains fetcher settings.
type HTTPConfig struct {
	RateLimit string `toml:"rate_limit" env:"HS_RATE_LIMIT"` // Minimum interval between requests (e.g., "1s")
	Timeout   string `toml:"timeout"`                        // Per-request timeout (e.g., "30s")
	UserAgent string `toml:"user_agent"`                     // Overrides the browser-like default
	APIKey    string `toml:"-" env:"HS_API_KEY"`             // Optional; never written to disk
}

// UpstreamConfig contains the upstream endpoints.
type UpstreamConfig struct {
	ArchetypesURL string `toml:"archetypes_url"`
	CardsURL      string `toml:"cards_url"`
	ReplayBaseURL string `toml:"replay_base_url"`
	DeckSourceURL string `toml:"deck_source_url"`
	DiscoveryURL  string `toml:"discovery_url"` // Template with {archetype_id}; empty disables catalog discovery
}

// MetaConfig contains meta-deck settings.
type MetaConfig struct {
	MinSignature int `toml:"min_signature"`
}

// TensorConfig contains the tensor schema parameters.
type TensorConfig struct {
	SeqLen     int `toml:"seq_len"`
	FeatureDim int `toml:"feature_dim"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level  string `toml:"level" env:"LOG_LEVEL"`
	Pretty bool   `toml:"pretty" env:"LOG_PRETTY"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			Dir: "data",
		},
		HTTP: HTTPConfig{
			RateLimit: "1s",
			Timeout:   "30s",
		},
		Upstream: UpstreamConfig{
			ArchetypesURL: "https://hsreplay.net/api/v1/archetypes/",
			CardsURL:      "https://api.hearthstonejson.com/v1/latest/enUS/cards.json",
			ReplayBaseURL: "https://hsreplay.net",
			DeckSourceURL: "https://www.hearthstonetopdecks.com/decks/",
		},
		Meta: MetaConfig{
			MinSignature: 3,
		},
		Tensor: TensorConfig{
			SeqLen:     24,
			FeatureDim: 11,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns ~/.hs-pipeline/config.toml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".hs-pipeline", "config.toml"), nil
}

// Load reads the configuration at path, falling back to defaults when the
// file does not exist, and then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// defaults
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Data.Dir) == "" {
		return fmt.Errorf("data dir must not be empty")
	}

	rl, err := time.ParseDuration(c.HTTP.RateLimit)
	if err != nil {
		return fmt.Errorf("invalid rate limit %q: %w", c.HTTP.RateLimit, err)
	}
	if rl < 0 {
		return fmt.Errorf("rate limit must be non-negative, got %v", rl)
	}

	timeout, err := time.ParseDuration(c.HTTP.Timeout)
	if err != nil {
		return fmt.Errorf("invalid timeout %q: %w", c.HTTP.Timeout, err)
	}
	if timeout < MinTimeout {
		return fmt.Errorf("timeout must be at least %v, got %v", MinTimeout, timeout)
	}

	if c.Meta.MinSignature < 1 {
		return fmt.Errorf("min_signature must be positive, got %d", c.Meta.MinSignature)
	}
	if c.Tensor.SeqLen < 1 {
		return fmt.Errorf("seq_len must be positive, got %d", c.Tensor.SeqLen)
	}
	if c.Tensor.FeatureDim < 1 {
		return fmt.Errorf("feature_dim must be positive, got %d", c.Tensor.FeatureDim)
	}
	if c.Upstream.DiscoveryURL != "" && !strings.Contains(c.Upstream.DiscoveryURL, "{archetype_id}") {
		return fmt.Errorf("discovery_url must contain {archetype_id}")
	}

	return nil
}

// MinTimeout is the lower bound for the per-request HTTP timeout.
const MinTimeout = 15 * time.Second

// RateLimitDuration returns the parsed rate limit. Call Validate first.
func (c *Config) RateLimitDuration() time.Duration {
	d, _ := time.ParseDuration(c.HTTP.RateLimit)
	return d
}

// TimeoutDuration returns the parsed request timeout. Call Validate first.
func (c *Config) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.HTTP.Timeout)
	return d
}

// Path joins name onto the data directory.
func (c *Config) Path(name ...string) string {
	return filepath.Join(append([]string{c.Data.Dir}, name...)...)
}
