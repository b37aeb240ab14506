package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/choisimo/proxy-rotator/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, domain.StrategyRoundRobin, cfg.Pool.Strategy)
	assert.Equal(t, 5, cfg.Pool.MaxFailures)
	assert.Equal(t, 30, cfg.Pool.CooldownMinutes)
	assert.Equal(t, 300, cfg.Pool.HealthCheckInterval)
	assert.Equal(t, 10, cfg.Pool.HealthCheckTimeout)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
pool:
  strategy: weighted
  max_failures: 3
  cooldown_minutes: 15
  preferred_country: KR
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, domain.StrategyWeighted, cfg.Pool.Strategy)
	assert.Equal(t, 3, cfg.Pool.MaxFailures)
	assert.Equal(t, 15, cfg.Pool.CooldownMinutes)
	assert.Equal(t, "KR", cfg.Pool.PreferredCountry)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unset fields keep their defaults
	assert.Equal(t, 300, cfg.Pool.HealthCheckInterval)
}

func TestLoadFromFileMissing(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadFromFileInvalidYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\n  - ["), 0644))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestApplyEnvironmentOverrides(t *testing.T) {
	t.Setenv(EnvPort, "9191")
	t.Setenv(EnvStrategy, "geographic")
	t.Setenv(EnvMaxFailures, "7")
	t.Setenv(EnvCooldownMinutes, "45")
	t.Setenv(EnvPreferredCountry, "JP")
	t.Setenv(EnvHealthCheckInterval, "60")
	t.Setenv(EnvHealthCheckTimeout, "5")
	t.Setenv(EnvPersistencePath, "/tmp/pool.json")
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvRateLimitEnabled, "true")
	t.Setenv(EnvRateLimitRPS, "50")
	t.Setenv(EnvRateLimitBurst, "75")

	cfg := DefaultConfig()
	applyEnvironment(cfg)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, domain.StrategyGeographic, cfg.Pool.Strategy)
	assert.Equal(t, 7, cfg.Pool.MaxFailures)
	assert.Equal(t, 45, cfg.Pool.CooldownMinutes)
	assert.Equal(t, "JP", cfg.Pool.PreferredCountry)
	assert.Equal(t, 60, cfg.Pool.HealthCheckInterval)
	assert.Equal(t, 5, cfg.Pool.HealthCheckTimeout)
	assert.Equal(t, "/tmp/pool.json", cfg.Pool.PersistencePath)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 50.0, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 75, cfg.RateLimit.BurstSize)
}

func TestApplyEnvironmentIgnoresMalformedValues(t *testing.T) {
	t.Setenv(EnvPort, "not-a-port")
	t.Setenv(EnvMaxFailures, "many")

	cfg := DefaultConfig()
	applyEnvironment(cfg)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Pool.MaxFailures)
}

func TestLoadConfigRejectsInvalidStrategy(t *testing.T) {
	t.Setenv(EnvStrategy, "fastest")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerSecond = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Pool.Strategy = "fastest"
	assert.Error(t, cfg.Validate())
}
