// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Model artifacts (both required, loaded once at startup)
	ModelPath    string
	EncodersPath string

	// Storage
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory audit if not set)
	RedisURL    string // redis://host:6379/0 (required when HistoryBackend is "redis")

	// Customer history
	HistoryBackend string // "none", "memory", "redis", "postgres"
	HistoryRecord  bool   // feed scored transactions back into the history backend
	HistoryTTL     time.Duration

	// Scoring
	HighRiskThreshold   float64
	MediumRiskThreshold float64
	UnknownCategoryCode float64
	RiskLabelLocale     string // "tr" or "en"
	StrictStatusCodes   bool   // map error kinds to 4xx/5xx instead of always 200

	// HTTP hardening
	CORSOrigins    []string // CORS_ALLOWED_ORIGINS, comma-separated
	RateLimitRPM   int      // per client IP; 0 disables rate limiting
	RateLimitBurst int
	MaxBodyBytes   int64

	// Observability
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort                = "5001"
	DefaultEnv                 = "development"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
	DefaultModelPath           = "models/final_fraud_model.json"
	DefaultEncodersPath        = "models/encoders_dict.json"
	DefaultHistoryBackend      = HistoryNone
	DefaultHistoryTTL          = 30 * 24 * time.Hour
	DefaultHighRiskThreshold   = 0.70
	DefaultMediumRiskThreshold = 0.40
	DefaultUnknownCategoryCode = 0
	DefaultRiskLabelLocale     = "tr"
	DefaultRateLimitRPM        = 600
	DefaultRateLimitBurst      = 50
	DefaultMaxBodyBytes        = 1 << 20 // 1MB
)

// History backends
const (
	HistoryNone     = "none"
	HistoryMemory   = "memory"
	HistoryRedis    = "redis"
	HistoryPostgres = "postgres"
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:           getEnv("LOG_FORMAT", DefaultLogFormat),
		ModelPath:           getEnv("MODEL_PATH", DefaultModelPath),
		EncodersPath:        getEnv("ENCODERS_PATH", DefaultEncodersPath),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		HistoryBackend:      strings.ToLower(getEnv("HISTORY_BACKEND", DefaultHistoryBackend)),
		HistoryRecord:       getEnvBool("HISTORY_RECORD", false),
		HistoryTTL:          getEnvDuration("HISTORY_TTL", DefaultHistoryTTL),
		HighRiskThreshold:   getEnvFloat("HIGH_RISK_THRESHOLD", DefaultHighRiskThreshold),
		MediumRiskThreshold: getEnvFloat("MEDIUM_RISK_THRESHOLD", DefaultMediumRiskThreshold),
		UnknownCategoryCode: getEnvFloat("UNKNOWN_CATEGORY_CODE", DefaultUnknownCategoryCode),
		RiskLabelLocale:     strings.ToLower(getEnv("RISK_LABEL_LOCALE", DefaultRiskLabelLocale)),
		StrictStatusCodes:   getEnvBool("STRICT_STATUS_CODES", false),
		CORSOrigins:         splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		RateLimitRPM:        getEnvInt("RATE_LIMIT_RPM", DefaultRateLimitRPM),
		RateLimitBurst:      getEnvInt("RATE_LIMIT_BURST", DefaultRateLimitBurst),
		MaxBodyBytes:        int64(getEnvInt("MAX_BODY_BYTES", DefaultMaxBodyBytes)),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("MODEL_PATH is required")
	}
	if c.EncodersPath == "" {
		return fmt.Errorf("ENCODERS_PATH is required")
	}

	if !(0 <= c.MediumRiskThreshold && c.MediumRiskThreshold <= c.HighRiskThreshold && c.HighRiskThreshold <= 1) {
		return fmt.Errorf("risk thresholds must satisfy 0 <= MEDIUM_RISK_THRESHOLD (%v) <= HIGH_RISK_THRESHOLD (%v) <= 1",
			c.MediumRiskThreshold, c.HighRiskThreshold)
	}

	if math.IsNaN(c.UnknownCategoryCode) || math.IsInf(c.UnknownCategoryCode, 0) {
		return fmt.Errorf("UNKNOWN_CATEGORY_CODE must be a finite number (got %v)", c.UnknownCategoryCode)
	}

	switch c.RiskLabelLocale {
	case "tr", "en":
	default:
		return fmt.Errorf("RISK_LABEL_LOCALE must be one of tr, en (got %q)", c.RiskLabelLocale)
	}

	switch c.HistoryBackend {
	case HistoryNone, HistoryMemory:
	case HistoryRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when HISTORY_BACKEND=redis")
		}
	case HistoryPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when HISTORY_BACKEND=postgres")
		}
	default:
		return fmt.Errorf("HISTORY_BACKEND must be one of none, memory, redis, postgres (got %q)", c.HistoryBackend)
	}

	if c.RateLimitRPM < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPM and RATE_LIMIT_BURST must not be negative")
	}
	if c.RateLimitRPM > 0 && c.RateLimitBurst == 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
