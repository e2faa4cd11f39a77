// Package config loads service configuration from a YAML file, with secrets
// taken from the environment (optionally seeded by a .env file).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

type Config struct {
	Server struct {
		Port                   int      `yaml:"port"`
		CORSAllowedOrigins     []string `yaml:"cors_allowed_origins"`
		ShutdownTimeoutSeconds int      `yaml:"shutdown_timeout_seconds"`
	} `yaml:"server"`
	Upstream struct {
		BaseURL      string `yaml:"base_url"`
		TimeoutMs    int    `yaml:"timeout_ms"`
		APIKeyHeader string `yaml:"api_key_header"`
		APIKey       string `yaml:"-"`
	} `yaml:"upstream"`
	Cache struct {
		Backend                string `yaml:"backend"`
		TTLSeconds             int    `yaml:"ttl_seconds"`
		MaxEntries             int    `yaml:"max_entries"`
		CleanupIntervalSeconds int    `yaml:"cleanup_interval_seconds"`
		Redis                  struct {
			Addr      string `yaml:"addr"`
			DB        int    `yaml:"db"`
			KeyPrefix string `yaml:"key_prefix"`
			Password  string `yaml:"-"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Storage struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"storage"`
	Auth struct {
		TokenTTLMinutes    int    `yaml:"token_ttl_minutes"`
		RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
		RateLimitBurst     int    `yaml:"rate_limit_burst"`
		JWTSecret          string `yaml:"-"`
	} `yaml:"auth"`
	PasswordReset struct {
		OTPTTLMinutes int `yaml:"otp_ttl_minutes"`
		MaxAttempts   int `yaml:"max_attempts"`
	} `yaml:"password_reset"`
	Mail struct {
		SMTPHost string `yaml:"smtp_host"`
		SMTPPort int    `yaml:"smtp_port"`
		Username string `yaml:"username"`
		From     string `yaml:"from"`
		Password string `yaml:"-"`
	} `yaml:"mail"`
	Alerts struct {
		Enabled  bool   `yaml:"enabled"`
		Schedule string `yaml:"schedule"`
	} `yaml:"alerts"`
	Logging struct {
		Level    string `yaml:"level"`
		Encoding string `yaml:"encoding"`
	} `yaml:"logging"`
}

// Load reads the YAML file at path (a missing file yields defaults), then
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := Default()
	if err := cfg.readFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every field at its default value.
func Default() *Config {
	cfg := &Config{}
	cfg.Alerts.Enabled = true
	cfg.applyDefaults()
	return cfg
}

func (c *Config) readFile(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Upstream.APIKey = getEnv("COINGECKO_API_KEY", c.Upstream.APIKey)
	c.Mail.Password = getEnv("SMTP_PASSWORD", c.Mail.Password)
	c.Cache.Redis.Password = getEnv("REDIS_PASSWORD", c.Cache.Redis.Password)
	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
	c.Server.Port = getEnvAsInt("PORT", c.Server.Port)
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if len(c.Server.CORSAllowedOrigins) == 0 {
		c.Server.CORSAllowedOrigins = []string{"*"}
	}
	if c.Server.ShutdownTimeoutSeconds == 0 {
		c.Server.ShutdownTimeoutSeconds = 10
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = "https://api.coingecko.com/api/v3"
	}
	if c.Upstream.TimeoutMs == 0 {
		c.Upstream.TimeoutMs = 10000
	}
	if c.Upstream.APIKeyHeader == "" {
		c.Upstream.APIKeyHeader = "x-cg-demo-api-key"
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = CacheBackendMemory
	}
	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = 60
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 10000
	}
	if c.Cache.CleanupIntervalSeconds == 0 {
		c.Cache.CleanupIntervalSeconds = 120
	}
	if c.Cache.Redis.Addr == "" {
		c.Cache.Redis.Addr = "localhost:6379"
	}
	if c.Cache.Redis.KeyPrefix == "" {
		c.Cache.Redis.KeyPrefix = "cheeseball:cache:"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "cheeseball.db"
	}
	if c.Auth.TokenTTLMinutes == 0 {
		c.Auth.TokenTTLMinutes = 30
	}
	if c.Auth.RateLimitPerMinute == 0 {
		c.Auth.RateLimitPerMinute = 20
	}
	if c.Auth.RateLimitBurst == 0 {
		c.Auth.RateLimitBurst = 5
	}
	if c.PasswordReset.OTPTTLMinutes == 0 {
		c.PasswordReset.OTPTTLMinutes = 10
	}
	if c.PasswordReset.MaxAttempts == 0 {
		c.PasswordReset.MaxAttempts = 5
	}
	if c.Mail.SMTPPort == 0 {
		c.Mail.SMTPPort = 465
	}
	if c.Alerts.Schedule == "" {
		c.Alerts.Schedule = "@every 30s"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Encoding == "" {
		c.Logging.Encoding = "json"
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Cache.TTLSeconds <= 0 {
		return fmt.Errorf("cache.ttl_seconds must be positive, got %d", c.Cache.TTLSeconds)
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must not be negative, got %d", c.Cache.MaxEntries)
	}
	switch c.Cache.Backend {
	case CacheBackendMemory, CacheBackendRedis:
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Upstream.TimeoutMs <= 0 {
		return fmt.Errorf("upstream.timeout_ms must be positive, got %d", c.Upstream.TimeoutMs)
	}
	return nil
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.TimeoutMs) * time.Millisecond
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLMinutes) * time.Minute
}

func (c *Config) OTPTTL() time.Duration {
	return time.Duration(c.PasswordReset.OTPTTLMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
