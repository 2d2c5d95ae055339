// Package config loads sift settings from an optional YAML file, SIFT_*
// environment variables and a .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrMissingToken is returned by RequireToken when no bot token is set.
var ErrMissingToken = errors.New("config: telegram token is not set")

// PlaceholderAPIKey is the sample key shipped in example env files. It is
// treated as no key at all.
const PlaceholderAPIKey = "YOUR_OPENAI_API_KEY_HERE"

const redacted = "[redacted]"

type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	AI       AIConfig       `mapstructure:"ai"`
	Search   SearchConfig   `mapstructure:"search"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Summary  SummaryConfig  `mapstructure:"summary"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
	Sources  []SourceConfig `mapstructure:"sources"`

	settings map[string]any
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
	Debug bool   `mapstructure:"debug"`
}

type AIConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxInputChars int           `mapstructure:"max_input_chars"`
	MaxTokens     int           `mapstructure:"max_tokens"`
	Temperature   float32       `mapstructure:"temperature"`
}

type SearchConfig struct {
	MaxLinks  int           `mapstructure:"max_links"`
	PerSource int           `mapstructure:"per_source"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type FetchConfig struct {
	Timeout           time.Duration `mapstructure:"timeout"`
	Fingerprint       string        `mapstructure:"fingerprint"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	// Jitter adds up to this fraction of the request interval as random delay.
	Jitter        float64       `mapstructure:"jitter"`
	Proxies       []string      `mapstructure:"proxies"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
}

type CacheConfig struct {
	TTL                 time.Duration `mapstructure:"ttl"`
	RetentionMultiplier int           `mapstructure:"retention_multiplier"`
}

type SummaryConfig struct {
	MaxSentences int `mapstructure:"max_sentences"`
}

type SweepConfig struct {
	Schedule    string `mapstructure:"schedule"`
	Concurrency int    `mapstructure:"concurrency"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type MetricsConfig struct {
	// Addr is the listen address of the metrics server; empty disables it.
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SourceConfig is an extra global custom source.
type SourceConfig struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.debug", false)

	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "gpt-3.5-turbo")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.timeout", "30s")
	v.SetDefault("ai.max_input_chars", 12000)
	v.SetDefault("ai.max_tokens", 150)
	v.SetDefault("ai.temperature", 0.5)

	v.SetDefault("search.max_links", 5)
	v.SetDefault("search.per_source", 5)
	v.SetDefault("search.user_agent", "Mozilla/5.0")
	v.SetDefault("search.timeout", "15s")

	v.SetDefault("fetch.timeout", "15s")
	v.SetDefault("fetch.fingerprint", "go")
	v.SetDefault("fetch.requests_per_second", 0)
	v.SetDefault("fetch.jitter", 0.0)
	v.SetDefault("fetch.proxies", []string{})
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("fetch.probe_timeout", "5s")

	v.SetDefault("cache.ttl", "60m")
	v.SetDefault("cache.retention_multiplier", 24)

	v.SetDefault("summary.max_sentences", 3)

	v.SetDefault("sweep.schedule", "@every 24h")
	v.SetDefault("sweep.concurrency", 4)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "sift.db")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration. path names a YAML file that must exist; an empty
// path looks for an optional ./sift.yaml. A .env file in the working
// directory is loaded first without overriding the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SIFT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("telegram.token", "SIFT_TELEGRAM_TOKEN", "API_TOKEN"); err != nil {
		return nil, fmt.Errorf("config: bind env: %w", err)
	}
	if err := v.BindEnv("ai.api_key", "SIFT_AI_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("config: bind env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		v.SetConfigName("sift")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: read sift.yaml: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.settings = v.AllSettings()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("config: cache.ttl must be positive, got %s", c.Cache.TTL)
	}
	return nil
}

// RequireToken returns ErrMissingToken unless a bot token is configured.
func (c *Config) RequireToken() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return ErrMissingToken
	}
	return nil
}

// AIEnabled reports whether a real AI key is configured.
func (c *Config) AIEnabled() bool {
	key := strings.TrimSpace(c.AI.APIKey)
	return key != "" && key != PlaceholderAPIKey
}

// LogLevel parses log.level.
func (c *Config) LogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return l, nil
}

// YAML renders the effective settings with secrets redacted.
func (c *Config) YAML() ([]byte, error) {
	settings := c.settings
	if settings == nil {
		settings = map[string]any{}
	}
	out := redact(settings, map[string]bool{"api_key": true, "token": true, "dsn": c.Storage.Driver == "postgres"})
	b, err := yaml.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("config: encode yaml: %w", err)
	}
	return b, nil
}

func redact(m map[string]any, secret map[string]bool) map[string]any {
	out := make(map[string]any, len(m))
	for k, val := range m {
		switch val := val.(type) {
		case map[string]any:
			out[k] = redact(val, secret)
		default:
			if s, ok := val.(string); ok && secret[k] && s != "" {
				out[k] = redacted
				continue
			}
			out[k] = val
		}
	}
	return out
}
