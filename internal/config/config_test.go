package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultRuleWeight, cfg.RuleWeight)
	assert.Equal(t, DefaultMLWeight, cfg.MLWeight)
	assert.Equal(t, DefaultWarnFloor, cfg.WarnFloor)
	assert.Equal(t, DefaultPassFloor, cfg.PassFloor)
	assert.Equal(t, DefaultBreakerThresh, cfg.BreakerFailureThreshold)
	assert.Equal(t, DefaultBreakerTimeout, cfg.BreakerTimeout)
	assert.Equal(t, DefaultWashWindow, cfg.WashTradeWindow)
	assert.Equal(t, DefaultMinSamples, cfg.MinTrainingSamples)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimitPerMinute)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "RULE_WEIGHT", "0.6")
	setEnv(t, "ML_WEIGHT", "0.4")
	setEnv(t, "BREAKER_TIMEOUT_SECONDS", "60")
	setEnv(t, "WASH_TRADE_WINDOW_HOURS", "48")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 0.6, cfg.RuleWeight)
	assert.Equal(t, 0.4, cfg.MLWeight)
	assert.Equal(t, 60*time.Second, cfg.BreakerTimeout)
	assert.Equal(t, 48*time.Hour, cfg.WashTradeWindow)
}

func TestLoad_WeightsMustSumToOne(t *testing.T) {
	setEnv(t, "RULE_WEIGHT", "0.8")
	setEnv(t, "ML_WEIGHT", "0.3")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "must sum to 1.0")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			RuleWeight:              0.7,
			MLWeight:                0.3,
			WarnFloor:               60,
			PassFloor:               80,
			BreakerFailureThreshold: 5,
			BreakerTimeout:          300 * time.Second,
			MinTrainingSamples:      100,
			AccuracyFloor:           0.7,
			AccuracyAlert:           0.75,
			RateLimitPerMinute:      120,
			RateLimitBurst:          20,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
		{
			name:    "weights do not sum to one",
			mutate:  func(c *Config) { c.MLWeight = 0.4 },
			wantErr: "must sum to 1.0",
		},
		{
			name:    "warn floor above pass floor",
			mutate:  func(c *Config) { c.WarnFloor = 90 },
			wantErr: "WARN_FLOOR",
		},
		{
			name:    "zero breaker threshold",
			mutate:  func(c *Config) { c.BreakerFailureThreshold = 0 },
			wantErr: "BREAKER_FAILURE_THRESHOLD",
		},
		{
			name:    "negative breaker timeout",
			mutate:  func(c *Config) { c.BreakerTimeout = -time.Second },
			wantErr: "BREAKER_TIMEOUT_SECONDS",
		},
		{
			name:    "accuracy floor out of range",
			mutate:  func(c *Config) { c.AccuracyFloor = 1.5 },
			wantErr: "accuracy thresholds",
		},
		{
			name:    "zero rate limit",
			mutate:  func(c *Config) { c.RateLimitPerMinute = 0 },
			wantErr: "rate limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnvFloat(t *testing.T) {
	setEnv(t, "TEST_FLOAT", "0.42")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, 0.42, getEnvFloat("TEST_FLOAT", 0))
	assert.Equal(t, 0.9, getEnvFloat("NONEXISTENT_VAR", 0.9))
	assert.Equal(t, 0.9, getEnvFloat("TEST_INVALID", 0.9)) // Falls back on parse error
}
