package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"gopkg.in/yaml.v3"

	"gamefinder/internal/core/domain"
)

// Escape from Tarkov on Twitch.
const defaultGameID = "491931"

var defaultKeywords = []string{
	"tarkov", "escape from tarkov", "eft", "battle state", "bsg", "raid", "pmc", "scav",
	"labs", "customs", "factory", "shoreline", "interchange", "reserve", "woods",
	"flea market", "tarkov wipe", "tarkov event", "tarkov gameplay", "tarkov highlights",
}

// Config holds every tunable of a run. It is built once at startup and never
// mutated afterwards.
type Config struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	GameID   string   `yaml:"game_id"`
	Keywords []string `yaml:"keywords"`

	ConcurrencyLimit  int           `yaml:"concurrency_limit"`
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	BackoffFactor     float64       `yaml:"backoff_factor"`
	MaxJitter         time.Duration `yaml:"max_jitter"`
	RequestsPerSecond float64       `yaml:"requests_per_second"` // 0 disables client-side pacing
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	FlushBatchSize    int           `yaml:"flush_batch_size"` // completed units per players flush

	APIBaseURL string `yaml:"api_base_url"`
	TokenURL   string `yaml:"token_url"`

	InputPath      string `yaml:"input_path"`
	UsernameColumn string `yaml:"username_column"`
	PlayersPath    string `yaml:"players_path"`
	LinksPath      string `yaml:"links_path"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		GameID:           defaultGameID,
		Keywords:         append([]string(nil), defaultKeywords...),
		ConcurrencyLimit: 100,
		MaxAttempts:      5,
		BaseDelay:        time.Second,
		BackoffFactor:    2,
		MaxJitter:        100 * time.Millisecond,
		RequestTimeout:   60 * time.Second,
		FlushBatchSize:   25,
		APIBaseURL:       "https://api.twitch.tv/helix",
		TokenURL:         "https://id.twitch.tv/oauth2/token",
		InputPath:        "resources/FoundNamesOnTwitch.csv",
		UsernameColumn:   "FoundName",
		PlayersPath:      "results/HasPlayedTarkov.csv",
		LinksPath:        "results/ClipAndVideoURLs.csv",
	}
}

// LoadFile overlays the YAML file at path onto cfg.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode YAML config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg. Unset variables keep the
// current value.
func ApplyEnv(cfg *Config) {
	cfg.ClientID = env.Str("TWITCH_CLIENT_ID", cfg.ClientID)
	cfg.ClientSecret = env.Str("TWITCH_CLIENT_SECRET", cfg.ClientSecret)
	cfg.GameID = env.Str("GAMEFINDER_GAME_ID", cfg.GameID)
	cfg.ConcurrencyLimit = env.Int("GAMEFINDER_CONCURRENCY", cfg.ConcurrencyLimit)
	cfg.MaxAttempts = env.Int("GAMEFINDER_MAX_ATTEMPTS", cfg.MaxAttempts)
	cfg.BaseDelay = env.Duration("GAMEFINDER_BASE_DELAY", cfg.BaseDelay)
	cfg.RequestsPerSecond = env.Float("GAMEFINDER_RPS", cfg.RequestsPerSecond)
	cfg.FlushBatchSize = env.Int("GAMEFINDER_FLUSH_BATCH", cfg.FlushBatchSize)
	if kw := env.Str("GAMEFINDER_KEYWORDS", ""); kw != "" {
		cfg.Keywords = SplitList(kw)
	}
}

// FromEnv returns Default overlaid with the environment.
func FromEnv() Config {
	cfg := Default()
	ApplyEnv(&cfg)
	return cfg
}

// Validate reports the first problem that would make a run impossible.
func (c Config) Validate() error {
	switch {
	case c.ClientID == "" || c.ClientSecret == "":
		return fmt.Errorf("%w: TWITCH_CLIENT_ID and TWITCH_CLIENT_SECRET must be set", domain.ErrConfig)
	case c.GameID == "":
		return fmt.Errorf("%w: game_id must not be empty", domain.ErrConfig)
	case c.ConcurrencyLimit < 1:
		return fmt.Errorf("%w: concurrency_limit must be at least 1, got %d", domain.ErrConfig, c.ConcurrencyLimit)
	case c.MaxAttempts < 1:
		return fmt.Errorf("%w: max_attempts must be at least 1, got %d", domain.ErrConfig, c.MaxAttempts)
	case c.BaseDelay < 0 || c.MaxJitter < 0:
		return fmt.Errorf("%w: delays must not be negative", domain.ErrConfig)
	case c.BackoffFactor < 1:
		return fmt.Errorf("%w: backoff_factor must be at least 1, got %g", domain.ErrConfig, c.BackoffFactor)
	case c.RequestsPerSecond < 0:
		return fmt.Errorf("%w: requests_per_second must not be negative", domain.ErrConfig)
	case c.FlushBatchSize < 1:
		return fmt.Errorf("%w: flush_batch_size must be at least 1, got %d", domain.ErrConfig, c.FlushBatchSize)
	case c.UsernameColumn == "":
		return fmt.Errorf("%w: username_column must not be empty", domain.ErrConfig)
	}
	return nil
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
