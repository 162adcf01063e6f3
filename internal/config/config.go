/**
 * @description
 * Configuration loader for the Stockscope backend.
 * Reads environment variables (optionally from a .env file), applies defaults and validates them.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files
 *
 * @notes
 * - A missing OPENAI_API_KEY is not an error: the analysis pipeline falls back to the offline stub.
 * - Load() returns a Config that is passed by pointer into every constructor; there are no globals.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	DB       DBConfig
	Redis    RedisConfig
	Prompts  PromptsConfig
	Model    ModelConfig
	Analysis AnalysisConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port string
	Env  string // "development", "staging", "production" or "test"
}

// DBConfig holds the relational store settings.
// URL is either a postgres:// DSN or a path to a SQLite file.
type DBConfig struct {
	URL string
}

// RedisConfig holds Redis settings. An empty URL disables the run feed.
type RedisConfig struct {
	URL string
}

// PromptsConfig points at the directory of prompt definition files
type PromptsConfig struct {
	Dir string
}

// ModelConfig holds the completion provider settings
type ModelConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// AnalysisConfig tunes the per-run pipeline
type AnalysisConfig struct {
	Concurrency int
	RecentRuns  int
}

// Load reads .env file and populates the Config struct
func Load() (*Config, error) {
	// Attempt to load .env, but don't crash if it fails (containers inject env vars directly)
	_ = godotenv.Load()

	timeout, err := getEnvAsDuration("MODEL_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("GO_ENV", "development"),
		},
		DB: DBConfig{
			URL: getEnv("DATABASE_URL", "data/results.db"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Prompts: PromptsConfig{
			Dir: getEnv("PROMPTS_DIR", "prompts"),
		},
		Model: ModelConfig{
			APIKey:  sanitizeCredential(getEnv("OPENAI_API_KEY", "")),
			BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1/chat/completions"),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Timeout: timeout,
		},
		Analysis: AnalysisConfig{
			Concurrency: getEnvAsInt("ANALYSIS_CONCURRENCY", 4),
			RecentRuns:  getEnvAsInt("RECENT_RUNS", 10),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks for required variables
func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.DB.URL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Model.Timeout <= 0 {
		return fmt.Errorf("MODEL_TIMEOUT must be positive, got %s", cfg.Model.Timeout)
	}
	if cfg.Analysis.Concurrency < 1 {
		return fmt.Errorf("ANALYSIS_CONCURRENCY must be at least 1, got %d", cfg.Analysis.Concurrency)
	}
	if cfg.Analysis.RecentRuns < 0 {
		return fmt.Errorf("RECENT_RUNS must not be negative, got %d", cfg.Analysis.RecentRuns)
	}
	return nil
}

// UseStubModel reports whether the offline stub replaces the real completion client
func (c *Config) UseStubModel() bool {
	return c.Model.APIKey == ""
}

// IsPostgres reports whether DB.URL addresses a PostgreSQL server
func (c *Config) IsPostgres() bool {
	url := strings.ToLower(c.DB.URL)
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

// Helper to get env var with default
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func sanitizeCredential(value string) string {
	trimmed := strings.TrimSpace(value)
	return strings.Trim(trimmed, "\"")
}

// Helper to get env var as int
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, valueStr, err)
	}
	return d, nil
}
