package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/choisimo/proxy-rotator/internal/domain"
	"github.com/choisimo/proxy-rotator/internal/errors"
	"github.com/choisimo/proxy-rotator/pkg/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	return log
}

// newTestPool builds a pool without background supervisors so tests control
// timing explicitly.
func newTestPool(t *testing.T, cfg domain.PoolConfig) *Pool {
	t.Helper()
	cfg.CooldownMinutes = 0
	cfg.HealthCheckInterval = 0
	pool, err := NewPool(cfg, newTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func addTestProxy(t *testing.T, pool *Pool, id, address string) *domain.ProxyEndpoint {
	t.Helper()
	proxy := &domain.ProxyEndpoint{ID: id, Address: address, Protocol: "http"}
	require.NoError(t, pool.AddProxy(proxy))
	return proxy
}

func TestNewPoolRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := NewPool(domain.PoolConfig{Strategy: "fastest"}, newTestLogger(t))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeValidation, errors.GetErrorCode(err))
}

func TestAddProxy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		proxy   *domain.ProxyEndpoint
		wantErr bool
	}{
		{
			name:  "valid http proxy",
			proxy: &domain.ProxyEndpoint{Address: "http://10.0.0.1:8080", Protocol: "http"},
		},
		{
			name:  "protocol defaults to http",
			proxy: &domain.ProxyEndpoint{Address: "http://10.0.0.2:8080"},
		},
		{
			name:  "protocol is case-insensitive",
			proxy: &domain.ProxyEndpoint{Address: "http://10.0.0.3:8080", Protocol: "SOCKS5"},
		},
		{
			name:    "missing address",
			proxy:   &domain.ProxyEndpoint{Protocol: "http"},
			wantErr: true,
		},
		{
			name:    "unknown protocol",
			proxy:   &domain.ProxyEndpoint{Address: "http://10.0.0.4:8080", Protocol: "ftp"},
			wantErr: true,
		},
		{
			name:    "nil proxy",
			proxy:   nil,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pool := newTestPool(t, domain.PoolConfig{Strategy: domain.StrategyRoundRobin})

			err := pool.AddProxy(tt.proxy)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.ErrCodeValidation, errors.GetErrorCode(err))
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, tt.proxy.ID)
			assert.True(t, tt.proxy.Enabled)
			assert.Equal(t, domain.HealthUnknown, tt.proxy.HealthStatus)
		})
	}
}

func TestAddProxyForcesEnabled(t *testing.T) {
	t.Parallel()
	pool := newTestPool(t, domain.PoolConfig{Strategy: domain.StrategyRoundRobin})

	proxy := &domain.ProxyEndpoint{
		Address:    "http://10.0.0.1:8080",
		Protocol:   "http",
		Enabled:    false,
		DisabledAt: time.Now(),
	}
	require.NoError(t, pool.AddProxy(proxy))

	got, err := pool.GetProxy(proxy.ID)
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.True(t, got.DisabledAt.IsZero())
}

func TestRemoveProxy(t *testing.T) {
	t.Parallel()
	pool := newTestPool(t, domain.PoolConfig{Strategy: domain.StrategyRoundRobin})
	addTestProxy(t, pool, "p1", "http://10.0.0.1:8080")

	require.NoError(t, pool.RemoveProxy("p1"))
	assert.Empty(t, pool.ListProxies())

	err := pool.RemoveProxy("p1")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotFound, errors.GetErrorCode(err))
}

func TestListProxiesInsertionOrder(t *testing.T) {
	t.Parallel()
	pool := newTestPool(t, domain.PoolConfig{Strategy: domain.StrategyRoundRobin})
	addTestProxy(t, pool, "p1", "http://10.0.0.1:8080")
	addTestProxy(t, pool, "p2", "http://10.0.0.2:8080")
	addTestProxy(t, pool, "p3", "http://10.0.0.3:8080")

	proxies := pool.ListProxies()
	require.Len(t, proxies, 3)
	assert.Equal(t, "p1", proxies[0].ID)
	assert.Equal(t, "p2", proxies[1].ID)
	assert.Equal(t, "p3", proxies[2].ID)
}

func TestGetNextProxyEmptyPool(t *testing.T) {
	t.Parallel()
	pool := newTestPool(t, domain.PoolConfig{Strategy: domain.StrategyRoundRobin})

	_, err := pool.GetNextProxy()
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNoProxies, errors.GetErrorCode(err))
}

func TestGetNextProxyAllDisabled(t *testing.T) {
	t.Parallel()
	pool := newTestPool(t, domain.PoolConfig{Strategy: domain.StrategyRoundRobin, MaxFailures: 1})
	addTestProxy(t, pool, "p1", "http://10.0.0.1:8080")
	pool.RecordFailure("p1", "connect refused")

	_, err := pool.GetNextProxy()
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNoProxies, errors.GetErrorCode(err))
}

func TestGetNextProxyRoundRobinCycles(t *testing.T) {
	t.Parallel()
	pool := newTestPool(t, domain.PoolConfig{Strategy: domain.StrategyRoundRobin})
	addTestProxy(t, pool, "p1", "http://10.0.0.1:8080")
	addTestProxy(t, pool, "p2", "http://10.0.0.2:8080")
	addTestProxy(t, pool, "p3", "http://10.0.0.3:8080")

	var got []string
	for i := 0; i < 6; i++ {
		proxy, err := pool.GetNextProxy()
		require.NoError(t, err)
		got = append(got, proxy.ID)
	}
	assert.Equal(t, []string{"p1", "p2", "p3", "p1", "p2", "p3"}, got)
}

func TestGetNextProxyRoundRobinSkipsDisabled(t *testing.T) {
	t.Parallel()
	pool := newTestPool(t, domain.PoolConfig{Strategy: domain.StrategyRoundRobin, MaxFailures: 1})
	addTestProxy(t, pool, "p1", "http://10.0.0.1:8080")
	addTestProxy(t, pool, "p2", "http://10.0.0.2:8080")
	addTestProxy(t, pool, "p3", "http://10.0.0.3:8080")
	pool.RecordFailure("p2", "timeout")

	for i := 0; i < 4; i++ {
		proxy, err := pool.GetNextProxy()
		require.NoError(t, err)
		assert.NotEqual(t, "p2", proxy.ID)
	}
}

func TestGetNextProxyStampsUsage(t *testing.T) {
	t.Parallel()
	pool := newTestPool(t, domain.PoolConfig{Strategy: domain.StrategyRoundRobin})
	addTestProxy(t, pool, "p1", "http://10.0.0.1:8080")

	_, err := pool.GetNextProxy()
	require.NoError(t, err)

	got, err := pool.GetProxy("p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.UsageCount)
	assert.False(t, got.LastUsed.IsZero())
}

func TestRecordFailureAutoDisableBoundary(t *testing.T) {
	t.Parallel()
	pool := newTestPool(t, domain.PoolConfig{Strategy: domain.StrategyRoundRobin, MaxFailures: 5})
	addTestProxy(t, pool, "p1", "http://10.0.0.1:8080")

	for i := 0; i < 4; i++ {
		pool.RecordFailure("p1", "timeout")
	}
	got, err := pool.GetProxy("p1")
	require.NoError(t, err)
	assert.True(t, got.Enabled, "below threshold must stay enabled")
	assert.True(t, got.DisabledAt.IsZero())

	pool.RecordFailure("p1", "timeout")
	got, err = pool.GetProxy("p1")
	require.NoError(t, err)
	assert.False(t, got.Enabled, "reaching threshold must disable")
	assert.False(t, got.DisabledAt.IsZero())
}

func TestRecordFailureThresholdDisabledByZero(t *testing.T) {
	t.Parallel()
	pool := newTestPool(t, domain.PoolConfig{Strategy: domain.StrategyRoundRobin, MaxFailures: 0})
	addTestProxy(t, pool, "p1", "http://10.0.0.1:8080")

	for i := 0; i < 20; i++ {
		pool.RecordFailure("p1", "timeout")
	}
	got, err := pool.GetProxy("p1")
	require.NoError(t, err)
	assert.True(t, got.Enabled)
}

func TestRecordSuccessLatencyRunningAverage(t *testing.T) {
	t.Parallel()
	pool := newTestPool(t, domain.PoolConfig{Strategy: domain.StrategyRoundRobin})
	addTestProxy(t, pool, "p1", "http://10.0.0.1:8080")

	pool.RecordSuccess("p1", 100)
	pool.RecordSuccess("p1", 200)
	pool.RecordSuccess("p1", 300)

	got, err := pool.GetProxy("p1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.SuccessCount)
	assert.Equal(t, int64(200), got.AvgLatencyMs)
}

func TestRecordOnUnknownProxyIsNoop(t *testing.T) {
	t.Parallel()
	pool := newTestPool(t, domain.PoolConfig{Strategy: domain.StrategyRoundRobin})

	// Late reports after removal must not panic or error
	pool.RecordSuccess("ghost", 100)
	pool.RecordFailure("ghost", "timeout")
	pool.RecordCaptcha("ghost", "recaptcha")
}

func TestRecordCaptchaNeverDisables(t *testing.T) {
	t.Parallel()
	pool := newTestPool(t, domain.PoolConfig{Strategy: domain.StrategyRoundRobin, MaxFailures: 1})
	addTestProxy(t, pool, "p1", "http://10.0.0.1:8080")

	for i := 0; i < 10; i++ {
		pool.RecordCaptcha("p1", "recaptcha")
	}
	got, err := pool.GetProxy("p1")
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.Equal(t, int64(10), got.CaptchaCount)
}

func TestResetStats(t *testing.T) {
	t.Parallel()
	pool := newTestPool(t, domain.PoolConfig{Strategy: domain.StrategyRoundRobin})
	addTestProxy(t, pool, "p1", "http://10.0.0.1:8080")
	pool.RecordSuccess("p1", 100)
	pool.RecordFailure("p1", "timeout")
	pool.RecordCaptcha("p1", "recaptcha")

	pool.ResetStats()

	got, err := pool.GetProxy("p1")
	require.NoError(t, err)
	assert.Zero(t, got.UsageCount)
	assert.Zero(t, got.SuccessCount)
	assert.Zero(t, got.FailCount)
	assert.Zero(t, got.CaptchaCount)
	assert.Zero(t, got.AvgLatencyMs)
}

func TestResetProxyStatsReenables(t *testing.T) {
	t.Parallel()
	pool := newTestPool(t, domain.PoolConfig{Strategy: domain.StrategyRoundRobin, MaxFailures: 1})
	addTestProxy(t, pool, "p1", "http://10.0.0.1:8080")
	pool.RecordFailure("p1", "timeout")

	require.NoError(t, pool.ResetProxyStats("p1"))

	got, err := pool.GetProxy("p1")
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.True(t, got.DisabledAt.IsZero())
	assert.Zero(t, got.FailCount)

	err = pool.ResetProxyStats("missing")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotFound, errors.GetErrorCode(err))
}

func TestUpdateProxyPatch(t *testing.T) {
	t.Parallel()
	pool := newTestPool(t, domain.PoolConfig{Strategy: domain.StrategyRoundRobin})
	addTestProxy(t, pool, "p1", "http://10.0.0.1:8080")

	country := "KR"
	enabled := false
	got, err := pool.UpdateProxy("p1", domain.ProxyPatch{Country: &country, Enabled: &enabled})
	require.NoError(t, err)
	assert.Equal(t, "KR", got.Country)
	assert.False(t, got.Enabled)
	assert.False(t, got.DisabledAt.IsZero())

	// Re-enable clears disabledAt
	enabled = true
	got, err = pool.UpdateProxy("p1", domain.ProxyPatch{Enabled: &enabled})
	require.NoError(t, err)
	assert.True(t, got.Enabled)
	assert.True(t, got.DisabledAt.IsZero())
}

func TestUpdateProxyResultShortcuts(t *testing.T) {
	t.Parallel()
	pool := newTestPool(t, domain.PoolConfig{Strategy: domain.StrategyRoundRobin, MaxFailures: 1})
	addTestProxy(t, pool, "p1", "http://10.0.0.1:8080")

	success := true
	latency := int64(150)
	got, err := pool.UpdateProxy("p1", domain.ProxyPatch{Success: &success, LatencyMs: &latency})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.SuccessCount)
	assert.Equal(t, int64(150), got.AvgLatencyMs)

	// Failure shortcut goes through the regular threshold path
	failure := true
	got, err = pool.UpdateProxy("p1", domain.ProxyPatch{Failure: &failure})
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.FailCount)
	assert.False(t, got.Enabled)
}

func TestUpdateProxyValidation(t *testing.T) {
	t.Parallel()
	pool := newTestPool(t, domain.PoolConfig{Strategy: domain.StrategyRoundRobin})
	addTestProxy(t, pool, "p1", "http://10.0.0.1:8080")

	empty := ""
	_, err := pool.UpdateProxy("p1", domain.ProxyPatch{Address: &empty})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeValidation, errors.GetErrorCode(err))

	bad := "gopher"
	_, err = pool.UpdateProxy("p1", domain.ProxyPatch{Protocol: &bad})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeValidation, errors.GetErrorCode(err))

	_, err = pool.UpdateProxy("missing", domain.ProxyPatch{})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotFound, errors.GetErrorCode(err))
}

func TestUpdateConfig(t *testing.T) {
	t.Parallel()
	pool := newTestPool(t, domain.PoolConfig{Strategy: domain.StrategyRoundRobin})

	err := pool.UpdateConfig(domain.PoolConfig{Strategy: "fastest"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeValidation, errors.GetErrorCode(err))

	require.NoError(t, pool.UpdateConfig(domain.PoolConfig{
		Strategy:    domain.StrategyWeighted,
		MaxFailures: 3,
	}))
	assert.Equal(t, domain.StrategyWeighted, pool.Config().Strategy)
	assert.Equal(t, 3, pool.Config().MaxFailures)
}

func TestStats(t *testing.T) {
	t.Parallel()
	pool := newTestPool(t, domain.PoolConfig{Strategy: domain.StrategyRoundRobin, MaxFailures: 1})
	addTestProxy(t, pool, "p1", "http://10.0.0.1:8080")
	addTestProxy(t, pool, "p2", "http://10.0.0.2:8080")
	pool.RecordSuccess("p1", 100)
	pool.RecordFailure("p2", "timeout")

	stats := pool.Stats()
	assert.Equal(t, 2, stats["totalProxies"])
	assert.Equal(t, 1, stats["enabledProxies"])
	assert.Equal(t, 1, stats["disabledProxies"])
	assert.Equal(t, int64(1), stats["totalSuccess"])
	assert.Equal(t, int64(1), stats["totalFail"])
	assert.Equal(t, "50.00%", stats["successRate"])
}

func TestConcurrentSelectionAndRecording(t *testing.T) {
	t.Parallel()
	pool := newTestPool(t, domain.PoolConfig{Strategy: domain.StrategyRoundRobin})
	addTestProxy(t, pool, "p1", "http://10.0.0.1:8080")
	addTestProxy(t, pool, "p2", "http://10.0.0.2:8080")

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				proxy, err := pool.GetNextProxy()
				if err != nil {
					continue
				}
				if j%2 == 0 {
					pool.RecordSuccess(proxy.ID, 50)
				} else {
					pool.RecordFailure(proxy.ID, "timeout")
				}
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	var totalUsage int64
	for _, proxy := range pool.ListProxies() {
		totalUsage += proxy.UsageCount
	}
	assert.Equal(t, int64(800), totalUsage)
}
