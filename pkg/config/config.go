// Package config loads and validates router configuration.
//
// Configuration is env-first: every knob has a default, environment variables
// override defaults, and an optional router.yaml overrides both. Initialize
// is the single entry point and returns a Config ready for use.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/holdersav20001/enterprise-tool-router/pkg/errs"
)

// Config is the complete, validated router configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	LLM       LLMConfig       `yaml:"llm"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Breaker   BreakerConfig   `yaml:"breaker"`
	Cache     CacheConfig     `yaml:"cache"`
	History   HistoryConfig   `yaml:"history"`
	Validator ValidatorConfig `yaml:"validator"`
}

// HTTPConfig holds the inbound adapter settings.
type HTTPConfig struct {
	Port string `yaml:"port"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN returns the pgx-compatible connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig holds the short-term cache backend settings.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// LLMConfig selects and tunes the model provider.
type LLMConfig struct {
	Provider            string        `yaml:"provider"` // openrouter | openai | anthropic | mock
	Model               string        `yaml:"model"`
	APIKey              string        `yaml:"-"`
	Timeout             time.Duration `yaml:"timeout"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold"`
}

// RateLimitConfig tunes per-principal admission control.
type RateLimitConfig struct {
	MaxRequests   int           `yaml:"max_requests"`
	Window        time.Duration `yaml:"window"`
}

// BreakerConfig tunes the LLM circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	Window           time.Duration `yaml:"window"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
}

// CacheConfig tunes the short-term plan cache.
type CacheConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	MaxValueBytes int           `yaml:"max_value_bytes"`
}

// HistoryConfig tunes the long-retention query history store.
type HistoryConfig struct {
	RetentionDays   int           `yaml:"retention_days"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// ValidatorConfig tunes the SQL safety validator policy.
type ValidatorConfig struct {
	DefaultLimit    int      `yaml:"default_limit"`
	AllowedTables   []string `yaml:"allowed_tables"`
	BlockedKeywords []string `yaml:"blocked_keywords"`
}

// Initialize loads defaults, applies environment overrides and the optional
// YAML file, then validates the result.
func Initialize(configPath string) (*Config, error) {
	cfg := defaults()

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
			}
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		HTTP: HTTPConfig{Port: "8080"},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "etr_db",
			User:            "etr_user",
			Password:        "etr_password",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Redis: RedisConfig{URL: "redis://127.0.0.1:6379/0"},
		LLM: LLMConfig{
			Provider:            "mock",
			Timeout:             30 * time.Second,
			ConfidenceThreshold: 0.7,
		},
		RateLimit: RateLimitConfig{MaxRequests: 100, Window: 60 * time.Second},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			Window:           60 * time.Second,
			RecoveryTimeout:  30 * time.Second,
		},
		Cache:   CacheConfig{TTL: 30 * time.Minute, MaxValueBytes: 1 << 20},
		History: HistoryConfig{RetentionDays: 30, CleanupInterval: time.Hour},
		Validator: ValidatorConfig{
			DefaultLimit: 200,
			AllowedTables: []string{
				"sales_fact", "job_runs", "audit_log",
			},
			BlockedKeywords: []string{
				"INSERT", "UPDATE", "DELETE", "CREATE", "DROP", "ALTER",
				"TRUNCATE", "GRANT", "REVOKE", "COPY",
			},
		},
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.HTTP.Port, "HTTP_PORT")

	setString(&cfg.Database.Host, "DB_HOST")
	setInt(&cfg.Database.Port, "DB_PORT")
	setString(&cfg.Database.Name, "DB_NAME")
	setString(&cfg.Database.User, "DB_USER")
	setString(&cfg.Database.Password, "DB_PASSWORD")
	setString(&cfg.Database.SSLMode, "DB_SSLMODE")
	setInt(&cfg.Database.MaxOpenConns, "DB_MAX_OPEN_CONNS")

	setString(&cfg.Redis.URL, "REDIS_URL")

	setString(&cfg.LLM.Provider, "LLM_PROVIDER")
	setString(&cfg.LLM.Model, "LLM_MODEL")
	setSeconds(&cfg.LLM.Timeout, "LLM_TIMEOUT_SECONDS")
	setFloat(&cfg.LLM.ConfidenceThreshold, "LLM_CONFIDENCE_THRESHOLD")

	switch strings.ToLower(cfg.LLM.Provider) {
	case "openrouter":
		cfg.LLM.APIKey = os.Getenv("OPENROUTER_API_KEY")
		setString(&cfg.LLM.Model, "OPENROUTER_MODEL")
	case "openai":
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		setString(&cfg.LLM.Model, "OPENAI_MODEL")
	case "anthropic":
		cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		setString(&cfg.LLM.Model, "ANTHROPIC_MODEL")
	}

	setInt(&cfg.RateLimit.MaxRequests, "RATE_LIMIT_MAX_REQUESTS")
	setSeconds(&cfg.RateLimit.Window, "RATE_LIMIT_WINDOW_SECONDS")

	setInt(&cfg.Breaker.FailureThreshold, "BREAKER_FAILURE_THRESHOLD")
	setSeconds(&cfg.Breaker.Window, "BREAKER_WINDOW_SECONDS")
	setSeconds(&cfg.Breaker.RecoveryTimeout, "BREAKER_RECOVERY_SECONDS")

	setSeconds(&cfg.Cache.TTL, "CACHE_TTL_SECONDS")
	setInt(&cfg.Cache.MaxValueBytes, "CACHE_MAX_VALUE_BYTES")

	setInt(&cfg.History.RetentionDays, "HISTORY_RETENTION_DAYS")
	setDuration(&cfg.History.CleanupInterval, "CLEANUP_INTERVAL")

	setInt(&cfg.Validator.DefaultLimit, "VALIDATOR_DEFAULT_LIMIT")
	setCSV(&cfg.Validator.AllowedTables, "VALIDATOR_ALLOWED_TABLES")
	setCSV(&cfg.Validator.BlockedKeywords, "VALIDATOR_BLOCKED_KEYWORDS")
}

func (c *Config) validate() error {
	switch strings.ToLower(c.LLM.Provider) {
	case "mock":
	case "openrouter", "openai", "anthropic":
		if c.LLM.APIKey == "" {
			return errs.NewConfigurationError(
				fmt.Sprintf("provider %q requires an API key", c.LLM.Provider))
		}
	default:
		return errs.NewConfigurationError(
			fmt.Sprintf("unknown LLM provider %q", c.LLM.Provider))
	}

	if c.LLM.ConfidenceThreshold < 0 || c.LLM.ConfidenceThreshold > 1 {
		return errs.NewConfigurationError("confidence threshold must be in [0,1]")
	}
	if c.RateLimit.MaxRequests <= 0 || c.RateLimit.Window <= 0 {
		return errs.NewConfigurationError("rate limit requires positive max_requests and window")
	}
	if c.Breaker.FailureThreshold <= 0 {
		return errs.NewConfigurationError("breaker failure threshold must be positive")
	}
	if c.History.RetentionDays <= 0 {
		return errs.NewConfigurationError("history retention must be positive")
	}
	if len(c.Validator.AllowedTables) == 0 {
		return errs.NewConfigurationError("validator allowlist must not be empty")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setSeconds(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Second
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setCSV(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
