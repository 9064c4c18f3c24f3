// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Tracing
	OTLPEndpoint string // OTLP gRPC endpoint (optional, tracing disabled if not set)

	// Fusion weights and status thresholds
	RuleWeight float64
	MLWeight   float64
	WarnFloor  float64
	PassFloor  float64

	// Circuit breaker
	BreakerFailureThreshold int
	BreakerTimeout          time.Duration

	// Rule set
	WashTradeWindow time.Duration
	BaseCreditLimit float64

	// Retraining
	MinTrainingSamples int
	AccuracyFloor      float64
	AccuracyAlert      float64

	// Rate limiting
	RateLimitPerMinute int
	RateLimitBurst     int

	// Security
	AdminSecret string // Admin API secret (optional, admin endpoints open if not set)
}

// Defaults for a development deployment.
const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultRuleWeight     = 0.70
	DefaultMLWeight       = 0.30
	DefaultWarnFloor      = 60.0
	DefaultPassFloor      = 80.0
	DefaultBreakerThresh  = 5
	DefaultBreakerTimeout = 300 * time.Second
	DefaultWashWindow     = 24 * time.Hour
	DefaultCreditLimit    = 100000.0
	DefaultMinSamples     = 100
	DefaultAccuracyFloor  = 0.70
	DefaultAccuracyAlert  = 0.75
	DefaultRateLimit      = 120
	DefaultRateBurst      = 20
)

// Load reads configuration from environment variables.
// It loads a .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                    getEnv("PORT", DefaultPort),
		Env:                     getEnv("ENV", DefaultEnv),
		LogLevel:                getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:             os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		OTLPEndpoint:            os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RuleWeight:              getEnvFloat("RULE_WEIGHT", DefaultRuleWeight),
		MLWeight:                getEnvFloat("ML_WEIGHT", DefaultMLWeight),
		WarnFloor:               getEnvFloat("WARN_FLOOR", DefaultWarnFloor),
		PassFloor:               getEnvFloat("PASS_FLOOR", DefaultPassFloor),
		BreakerFailureThreshold: int(getEnvInt64("BREAKER_FAILURE_THRESHOLD", DefaultBreakerThresh)),
		BreakerTimeout:          time.Duration(getEnvInt64("BREAKER_TIMEOUT_SECONDS", 300)) * time.Second,
		WashTradeWindow:         time.Duration(getEnvInt64("WASH_TRADE_WINDOW_HOURS", 24)) * time.Hour,
		BaseCreditLimit:         getEnvFloat("BASE_CREDIT_LIMIT", DefaultCreditLimit),
		MinTrainingSamples:      int(getEnvInt64("MIN_TRAINING_SAMPLES", DefaultMinSamples)),
		AccuracyFloor:           getEnvFloat("ACCURACY_FLOOR", DefaultAccuracyFloor),
		AccuracyAlert:           getEnvFloat("ACCURACY_ALERT", DefaultAccuracyAlert),
		RateLimitPerMinute:      int(getEnvInt64("RATE_LIMIT_PER_MINUTE", DefaultRateLimit)),
		RateLimitBurst:          int(getEnvInt64("RATE_LIMIT_BURST", DefaultRateBurst)),
		AdminSecret:             os.Getenv("ADMIN_SECRET"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if math.Abs(c.RuleWeight+c.MLWeight-1.0) > 1e-9 {
		return fmt.Errorf("RULE_WEIGHT and ML_WEIGHT must sum to 1.0, got %.4f", c.RuleWeight+c.MLWeight)
	}
	if c.WarnFloor >= c.PassFloor {
		return fmt.Errorf("WARN_FLOOR (%.1f) must be below PASS_FLOOR (%.1f)", c.WarnFloor, c.PassFloor)
	}
	if c.BreakerFailureThreshold <= 0 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be positive")
	}
	if c.BreakerTimeout <= 0 {
		return fmt.Errorf("BREAKER_TIMEOUT_SECONDS must be positive")
	}
	if c.MinTrainingSamples <= 0 {
		return fmt.Errorf("MIN_TRAINING_SAMPLES must be positive")
	}
	if c.AccuracyFloor < 0 || c.AccuracyFloor > 1 || c.AccuracyAlert < 0 || c.AccuracyAlert > 1 {
		return fmt.Errorf("accuracy thresholds must lie in [0, 1]")
	}
	if c.RateLimitPerMinute <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit settings must be positive")
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

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
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
