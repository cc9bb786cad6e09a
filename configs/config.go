package configs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process-wide configuration. It is loaded once at startup and
// never mutated afterwards.
type Config struct {
	Server   Server   `mapstructure:"server"`
	Upstream Upstream `mapstructure:"upstream"`
	Retry    Retry    `mapstructure:"retry"`
	Batch    Batch    `mapstructure:"batch"`
	CORS     CORS     `mapstructure:"cors"`
	Log      Log      `mapstructure:"log"`
	Cache    Cache    `mapstructure:"cache"`
}

// Server HTTP listener settings
type Server struct {
	Port string `mapstructure:"port"`
}

// Upstream remote moderation API settings
type Upstream struct {
	APIKey          string  `mapstructure:"api_key"`
	URL             string  `mapstructure:"url"`
	TimeoutSeconds  float64 `mapstructure:"timeout_s"`  // per attempt
	DeadlineSeconds float64 `mapstructure:"deadline_s"` // whole logical call, all attempts
}

// Timeout returns the per-attempt timeout.
func (u Upstream) Timeout() time.Duration {
	return seconds(u.TimeoutSeconds)
}

// Deadline returns the budget of one logical moderation call.
func (u Upstream) Deadline() time.Duration {
	return seconds(u.DeadlineSeconds)
}

// Retry backoff policy settings
type Retry struct {
	MaxAttempts   int `mapstructure:"max_attempts"`
	BaseDelayMS   int `mapstructure:"base_delay_ms"`
	MaxDelayMS    int `mapstructure:"max_delay_ms"`
	JitterPercent int `mapstructure:"jitter_percent"`
}

func (r Retry) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMS) * time.Millisecond
}

func (r Retry) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMS) * time.Millisecond
}

// Batch fan-out settings
type Batch struct {
	MaxSize     int `mapstructure:"max_size"`
	Concurrency int `mapstructure:"concurrency"`
}

// CORS policy; each field is a comma-separated list
type CORS struct {
	AllowOrigins string `mapstructure:"allow_origins"`
	AllowHeaders string `mapstructure:"allow_headers"`
	AllowMethods string `mapstructure:"allow_methods"`
}

func (c CORS) Origins() []string { return splitList(c.AllowOrigins) }
func (c CORS) Headers() []string { return splitList(c.AllowHeaders) }
func (c CORS) Methods() []string { return splitList(c.AllowMethods) }

// Log logger settings
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Cache result cache settings. RedisURL selects the redis backend.
type Cache struct {
	Enabled                bool   `mapstructure:"enabled"`
	TTLSeconds             int    `mapstructure:"ttl_s"`
	MaxEntries             int    `mapstructure:"max_entries"`
	RedisURL               string `mapstructure:"redis_url"`
	MonitorIntervalSeconds int    `mapstructure:"monitor_interval_s"` // 0 disables
}

func (c Cache) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

func (c Cache) MonitorInterval() time.Duration {
	return time.Duration(c.MonitorIntervalSeconds) * time.Second
}

// ConfigError reports a setting the gateway cannot serve requests without.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

// ErrMissingAPIKey is returned by Ready when ALINIA_API_KEY is unset.
var ErrMissingAPIKey = &ConfigError{Key: "ALINIA_API_KEY", Reason: "missing environment variable"}

// env var name for every config key
var envBindings = map[string]string{
	"server.port":              "PORT",
	"upstream.api_key":         "ALINIA_API_KEY",
	"upstream.url":             "ALINIA_API_URL",
	"upstream.timeout_s":       "HTTP_TIMEOUT_S",
	"upstream.deadline_s":      "REQUEST_DEADLINE_S",
	"retry.max_attempts":       "RETRY_MAX_ATTEMPTS",
	"retry.base_delay_ms":      "RETRY_BASE_DELAY_MS",
	"retry.max_delay_ms":       "RETRY_MAX_DELAY_MS",
	"retry.jitter_percent":     "RETRY_JITTER_PERCENT",
	"batch.max_size":           "MAX_BATCH_SIZE",
	"batch.concurrency":        "BATCH_CONCURRENCY",
	"cors.allow_origins":       "CORS_ALLOW_ORIGINS",
	"cors.allow_headers":       "CORS_ALLOW_HEADERS",
	"cors.allow_methods":       "CORS_ALLOW_METHODS",
	"log.level":                "LOG_LEVEL",
	"log.format":               "LOG_FORMAT",
	"cache.enabled":            "CACHE_ENABLED",
	"cache.ttl_s":              "CACHE_TTL_S",
	"cache.max_entries":        "CACHE_MAX_ENTRIES",
	"cache.redis_url":          "REDIS_URL",
	"cache.monitor_interval_s": "CACHE_MONITOR_INTERVAL_S",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("upstream.api_key", "")
	v.SetDefault("upstream.url", "https://api.alinia.ai/moderations/")
	v.SetDefault("upstream.timeout_s", 15)
	v.SetDefault("upstream.deadline_s", 45)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay_ms", 800)
	v.SetDefault("retry.max_delay_ms", 5000)
	v.SetDefault("retry.jitter_percent", 0)
	v.SetDefault("batch.max_size", 100)
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("cors.allow_headers", "*")
	v.SetDefault("cors.allow_methods", "*")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl_s", 300)
	v.SetDefault("cache.max_entries", 1000)
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.monitor_interval_s", 60)
}

// Load reads defaults, then an optional config.yaml, then the environment.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	config.Upstream.APIKey = strings.TrimSpace(config.Upstream.APIKey)
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns the built-in defaults without reading files or the environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Sprintf("configs: invalid defaults: %v", err))
	}
	return &config
}

// Validate rejects values the gateway cannot run with. A missing API key is
// not one of them; see Ready.
func (c *Config) Validate() error {
	switch {
	case c.Upstream.URL == "":
		return &ConfigError{Key: "ALINIA_API_URL", Reason: "must not be empty"}
	case c.Upstream.TimeoutSeconds <= 0:
		return &ConfigError{Key: "HTTP_TIMEOUT_S", Reason: "must be positive"}
	case c.Upstream.DeadlineSeconds <= 0:
		return &ConfigError{Key: "REQUEST_DEADLINE_S", Reason: "must be positive"}
	case c.Retry.MaxAttempts < 1:
		return &ConfigError{Key: "RETRY_MAX_ATTEMPTS", Reason: "must be at least 1"}
	case c.Retry.BaseDelayMS <= 0:
		return &ConfigError{Key: "RETRY_BASE_DELAY_MS", Reason: "must be positive"}
	case c.Retry.MaxDelayMS < 0:
		return &ConfigError{Key: "RETRY_MAX_DELAY_MS", Reason: "must not be negative"}
	case c.Retry.JitterPercent < 0 || c.Retry.JitterPercent > 100:
		return &ConfigError{Key: "RETRY_JITTER_PERCENT", Reason: "must be within 0..100"}
	case c.Batch.MaxSize < 1:
		return &ConfigError{Key: "MAX_BATCH_SIZE", Reason: "must be at least 1"}
	case c.Batch.Concurrency < 1:
		return &ConfigError{Key: "BATCH_CONCURRENCY", Reason: "must be at least 1"}
	case c.Cache.Enabled && c.Cache.TTLSeconds <= 0:
		return &ConfigError{Key: "CACHE_TTL_S", Reason: "must be positive when the cache is enabled"}
	case c.Cache.Enabled && c.Cache.RedisURL == "" && c.Cache.MaxEntries < 1:
		return &ConfigError{Key: "CACHE_MAX_ENTRIES", Reason: "must be at least 1"}
	case c.Cache.MonitorIntervalSeconds < 0:
		return &ConfigError{Key: "CACHE_MONITOR_INTERVAL_S", Reason: "must not be negative"}
	case !validOrigins(c.CORS.Origins()):
		return &ConfigError{Key: "CORS_ALLOW_ORIGINS", Reason: "each origin must be * or start with http:// or https://"}
	}
	return nil
}

func validOrigins(origins []string) bool {
	for _, o := range origins {
		if o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return false
		}
	}
	return true
}

// Ready reports whether the gateway can call the upstream API.
func (c *Config) Ready() error {
	if c.Upstream.APIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
