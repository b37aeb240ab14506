package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/choisimo/proxy-rotator/internal/domain"
	"github.com/joho/godotenv"
)

// Environment variable names recognized at startup. Each falls back to the
// value from the config file, then to the built-in default.
const (
	EnvPort                = "PORT"
	EnvStrategy            = "STRATEGY"
	EnvMaxFailures         = "MAX_FAILURES"
	EnvCooldownMinutes     = "COOLDOWN_MINUTES"
	EnvPreferredCountry    = "PREFERRED_COUNTRY"
	EnvHealthCheckInterval = "HEALTH_CHECK_INTERVAL"
	EnvHealthCheckTimeout  = "HEALTH_CHECK_TIMEOUT"
	EnvPersistencePath     = "PERSISTENCE_PATH"
	EnvLogLevel            = "LOG_LEVEL"
	EnvLogFormat           = "LOG_FORMAT"
	EnvLogOutput           = "LOG_OUTPUT"
	EnvLogFile             = "LOG_FILE"
	EnvRateLimitEnabled    = "RATE_LIMIT_ENABLED"
	EnvRateLimitRPS        = "RATE_LIMIT_RPS"
	EnvRateLimitBurst      = "RATE_LIMIT_BURST"
)

// LoadConfig loads configuration with priority: env vars > config file > defaults
func LoadConfig() (*Config, error) {
	// A missing .env file is fine; explicit env vars still apply
	_ = godotenv.Load()

	config := DefaultConfig()

	if configFile := getEnv("CONFIG_FILE", "config.yaml"); configFile != "" {
		if _, err := os.Stat(configFile); err == nil {
			fileConfig, err := LoadFromFile(configFile)
			if err != nil {
				return nil, err
			}
			config = fileConfig
		}
	}

	applyEnvironment(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// applyEnvironment overrides config values from environment variables
func applyEnvironment(config *Config) {
	if port := getEnv(EnvPort, ""); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 && p <= 65535 {
			config.Server.Port = p
		}
	}

	// Pool policy
	if strategy := getEnv(EnvStrategy, ""); strategy != "" {
		config.Pool.Strategy = domain.RotationStrategy(strategy)
	}
	if v := getEnv(EnvMaxFailures, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Pool.MaxFailures = n
		}
	}
	if v := getEnv(EnvCooldownMinutes, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Pool.CooldownMinutes = n
		}
	}
	if v := getEnv(EnvPreferredCountry, ""); v != "" {
		config.Pool.PreferredCountry = v
	}
	if v := getEnv(EnvHealthCheckInterval, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Pool.HealthCheckInterval = n
		}
	}
	if v := getEnv(EnvHealthCheckTimeout, ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Pool.HealthCheckTimeout = n
		}
	}
	if v := getEnv(EnvPersistencePath, ""); v != "" {
		config.Pool.PersistencePath = v
	}

	// Logging
	if level := getEnv(EnvLogLevel, ""); level != "" {
		config.Logging.Level = level
	}
	if format := getEnv(EnvLogFormat, ""); format != "" {
		config.Logging.Format = format
	}
	if output := getEnv(EnvLogOutput, ""); output != "" {
		config.Logging.Output = output
	}
	if file := getEnv(EnvLogFile, ""); file != "" {
		config.Logging.File = file
	}

	// Rate limiting
	if enabled := getEnv(EnvRateLimitEnabled, ""); enabled != "" {
		config.RateLimit.Enabled = strings.ToLower(enabled) == "true"
	}
	if rps := getEnv(EnvRateLimitRPS, ""); rps != "" {
		if r, err := strconv.ParseFloat(rps, 64); err == nil && r > 0 {
			config.RateLimit.RequestsPerSecond = r
		}
	}
	if burst := getEnv(EnvRateLimitBurst, ""); burst != "" {
		if b, err := strconv.Atoi(burst); err == nil && b > 0 {
			config.RateLimit.BurstSize = b
		}
	}
}

// getEnv gets environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
