package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the CodeLens server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	LLM      LLMConfig
	Auth     AuthConfig
	Analysis AnalysisConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// LLMConfig configures the HTTP client for the external LLM service.
type LLMConfig struct {
	BaseURL string
	Timeout time.Duration
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

// AnalysisConfig tunes the background lifecycle engine.
type AnalysisConfig struct {
	MaxConcurrent  int
	StatusCacheTTL time.Duration
	RatePerMinute  int
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("CODELENS_PORT", 8080),
			Env:  envString("CODELENS_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		LLM: LLMConfig{
			BaseURL: envString("LLM_SERVICE_URL", "http://localhost:8000"),
			Timeout: envDurationSecs("LLM_TIMEOUT_SECS", 45*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("CODELENS_JWT_SECRET"),
			Issuer:    envString("CODELENS_JWT_ISSUER", "codelens"),
			TokenTTL:  envDuration("CODELENS_TOKEN_TTL", 24*time.Hour),
		},
		Analysis: AnalysisConfig{
			MaxConcurrent:  envInt("ANALYSIS_MAX_CONCURRENT", 32),
			StatusCacheTTL: envDuration("ANALYSIS_STATUS_CACHE_TTL", 30*time.Minute),
			RatePerMinute:  envInt("SUBMIT_RATE_PER_MINUTE", 60),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !strings.HasPrefix(c.LLM.BaseURL, "http://") && !strings.HasPrefix(c.LLM.BaseURL, "https://") {
		return fmt.Errorf("LLM_SERVICE_URL must start with http:// or https://, got %q", c.LLM.BaseURL)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT_SECS must be positive")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("CODELENS_JWT_SECRET is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("CODELENS_JWT_SECRET must be at least 32 characters")
	}

	if c.Analysis.MaxConcurrent <= 0 {
		return fmt.Errorf("ANALYSIS_MAX_CONCURRENT must be positive")
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
