package service

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/choisimo/proxy-rotator/internal/domain"
	"github.com/choisimo/proxy-rotator/internal/errors"
	"github.com/choisimo/proxy-rotator/pkg/logger"
)

// Pool is the concurrency-safe proxy registry. It owns the proxy map, the
// rotation order and cursor, and the current policy; every read takes the
// read lock and every mutation the write lock. No lock is ever held across
// network or disk I/O.
type Pool struct {
	mu      sync.RWMutex
	proxies map[string]*domain.ProxyEndpoint
	order   []string // insertion order, drives the round-robin cursor
	index   int
	config  domain.PoolConfig

	logger *logger.Logger
	saver  *autoSaver

	// Cooldown supervisor state
	cooldownTick    time.Duration
	stopCooldown    chan struct{}
	cooldownRunning bool
	cooldownWG      sync.WaitGroup

	// Health check supervisor state
	stopHealthCheck    chan struct{}
	healthCheckRunning bool
	healthCheckWG      sync.WaitGroup
}

// Compile-time check that Pool satisfies the domain contract
var _ domain.ProxyPool = (*Pool)(nil)

// NewPool creates a pool with the given policy and starts the background
// supervisors for any interval configured above zero.
func NewPool(config domain.PoolConfig, log *logger.Logger) (*Pool, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeValidation, "pool", "invalid pool config")
	}

	p := &Pool{
		proxies:         make(map[string]*domain.ProxyEndpoint),
		order:           make([]string, 0),
		config:          config,
		logger:          log.PoolLogger(),
		cooldownTick:    time.Minute,
		stopCooldown:    make(chan struct{}),
		stopHealthCheck: make(chan struct{}),
	}
	p.saver = newAutoSaver(p, log.PersistenceLogger())
	p.saver.start()

	if config.CooldownMinutes > 0 {
		p.StartCooldownChecker()
	}
	if config.HealthCheckInterval > 0 {
		p.StartHealthChecker()
	}

	return p, nil
}

// Close stops the background supervisors and the auto-save worker
func (p *Pool) Close() {
	p.StopCooldownChecker()
	p.StopHealthChecker()
	p.saver.stop()
}

// AddProxy validates and registers a proxy. The proxy is stored enabled with
// an unknown health status regardless of the submitted flags.
func (p *Pool) AddProxy(proxy *domain.ProxyEndpoint) error {
	if proxy == nil {
		return errors.NewValidationError("pool", "proxy cannot be nil")
	}
	if proxy.Address == "" {
		return errors.NewValidationError("pool", "proxy address is required")
	}
	if _, err := url.Parse(proxy.Address); err != nil {
		return errors.WrapError(err, errors.ErrCodeValidation, "pool", "invalid proxy address format")
	}

	protocol := domain.NormalizeProtocol(proxy.Protocol)
	if !domain.ValidProtocols[protocol] {
		return errors.NewValidationError("pool",
			fmt.Sprintf("invalid protocol: %s, must be one of: http, https, socks4, socks5", proxy.Protocol))
	}

	p.mu.Lock()
	if proxy.ID == "" {
		proxy.ID = "proxy_" + uuid.NewString()[:8]
	}
	proxy.Protocol = protocol
	proxy.CreatedAt = time.Now()
	proxy.Enabled = true
	proxy.DisabledAt = time.Time{}
	proxy.HealthStatus = domain.HealthUnknown

	p.proxies[proxy.ID] = proxy
	p.order = append(p.order, proxy.ID)
	p.autoSaveLocked()
	p.mu.Unlock()

	p.logger.WithFields(map[string]interface{}{
		"proxy_id": proxy.ID,
		"address":  proxy.Address,
		"protocol": proxy.Protocol,
		"country":  proxy.Country,
	}).Info("Proxy added")

	return nil
}

// RemoveProxy deletes a proxy from the map and the rotation order
func (p *Pool) RemoveProxy(id string) error {
	p.mu.Lock()
	if _, ok := p.proxies[id]; !ok {
		p.mu.Unlock()
		return errors.NewProxyNotFoundError(id)
	}

	delete(p.proxies, id)
	for i, oid := range p.order {
		if oid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	p.autoSaveLocked()
	p.mu.Unlock()

	p.logger.WithField("proxy_id", id).Info("Proxy removed")
	return nil
}

// GetProxy returns a snapshot of a single proxy
func (p *Pool) GetProxy(id string) (domain.ProxyEndpoint, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	proxy, ok := p.proxies[id]
	if !ok {
		return domain.ProxyEndpoint{}, errors.NewProxyNotFoundError(id)
	}
	return *proxy, nil
}

// ListProxies returns snapshots of all proxies in insertion order
func (p *Pool) ListProxies() []domain.ProxyEndpoint {
	p.mu.RLock()
	defer p.mu.RUnlock()

	proxies := make([]domain.ProxyEndpoint, 0, len(p.proxies))
	for _, id := range p.order {
		if proxy, ok := p.proxies[id]; ok {
			proxies = append(proxies, *proxy)
		}
	}
	return proxies
}

// UpdateProxy applies a partial update. Connection-field changes are
// validated before anything is mutated; the result shortcuts reuse the
// regular recording paths so threshold handling stays in one place.
func (p *Pool) UpdateProxy(id string, patch domain.ProxyPatch) (domain.ProxyEndpoint, error) {
	if patch.Address != nil {
		if *patch.Address == "" {
			return domain.ProxyEndpoint{}, errors.NewValidationError("pool", "proxy address cannot be empty")
		}
		if _, err := url.Parse(*patch.Address); err != nil {
			return domain.ProxyEndpoint{}, errors.WrapError(err, errors.ErrCodeValidation, "pool", "invalid proxy address format")
		}
	}
	var protocol string
	if patch.Protocol != nil {
		protocol = domain.NormalizeProtocol(*patch.Protocol)
		if !domain.ValidProtocols[protocol] {
			return domain.ProxyEndpoint{}, errors.NewValidationError("pool",
				fmt.Sprintf("invalid protocol: %s, must be one of: http, https, socks4, socks5", *patch.Protocol))
		}
	}

	p.mu.Lock()
	proxy, ok := p.proxies[id]
	if !ok {
		p.mu.Unlock()
		return domain.ProxyEndpoint{}, errors.NewProxyNotFoundError(id)
	}

	if patch.Address != nil {
		proxy.Address = *patch.Address
	}
	if patch.Protocol != nil {
		proxy.Protocol = protocol
	}
	if patch.Username != nil {
		proxy.Username = *patch.Username
	}
	if patch.Password != nil {
		proxy.Password = *patch.Password
	}
	if patch.Country != nil {
		proxy.Country = *patch.Country
	}
	if patch.City != nil {
		proxy.City = *patch.City
	}
	if patch.Enabled != nil {
		if *patch.Enabled {
			proxy.Enabled = true
			proxy.DisabledAt = time.Time{}
		} else if proxy.Enabled {
			proxy.Enabled = false
			proxy.DisabledAt = time.Now()
		}
	}
	p.autoSaveLocked()
	p.mu.Unlock()

	// Result shortcuts after the structural update so a combined PATCH
	// observes the new connection fields.
	if patch.Success != nil && *patch.Success {
		var latency int64
		if patch.LatencyMs != nil {
			latency = *patch.LatencyMs
		}
		p.RecordSuccess(id, latency)
	}
	if patch.Failure != nil && *patch.Failure {
		p.RecordFailure(id, "reported via update")
	}

	return p.GetProxy(id)
}

// GetNextProxy selects the next proxy according to the configured strategy
// and stamps its usage statistics. The write lock is held for the whole
// read-modify-write so concurrent selections never tear the cursor.
func (p *Pool) GetNextProxy() (domain.ProxyEndpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	enabled := p.enabledProxiesLocked()
	if len(enabled) == 0 {
		return domain.ProxyEndpoint{}, errors.NewNoProxiesError()
	}

	var selected *domain.ProxyEndpoint
	switch p.config.Strategy {
	case domain.StrategyRandom:
		selected = p.selectRandom(enabled)
	case domain.StrategyLeastUsed:
		selected = p.selectLeastUsed(enabled)
	case domain.StrategyWeighted:
		selected = p.selectWeighted(enabled)
	case domain.StrategyGeographic:
		selected = p.selectGeographic(enabled)
	default:
		// Unknown or empty strategy deliberately falls back to round-robin
		selected = p.selectRoundRobin(enabled)
	}

	if selected == nil {
		return domain.ProxyEndpoint{}, errors.NewNoProxiesError()
	}

	selected.UsageCount++
	selected.LastUsed = time.Now()

	p.logger.WithFields(map[string]interface{}{
		"proxy_id":    selected.ID,
		"address":     selected.Address,
		"strategy":    string(p.config.Strategy),
		"usage_count": selected.UsageCount,
	}).Debug("Proxy selected")

	return *selected, nil
}

// enabledProxiesLocked returns the enabled subset. Caller must hold the lock.
func (p *Pool) enabledProxiesLocked() []*domain.ProxyEndpoint {
	var enabled []*domain.ProxyEndpoint
	for _, proxy := range p.proxies {
		if proxy.Enabled {
			enabled = append(enabled, proxy)
		}
	}
	return enabled
}

// RecordSuccess records a successful use of a proxy. Unknown ids are ignored
// so late reports after removal are harmless.
func (p *Pool) RecordSuccess(id string, latencyMs int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	proxy, ok := p.proxies[id]
	if !ok {
		return
	}

	proxy.SuccessCount++
	total := proxy.SuccessCount + proxy.FailCount
	if total > 0 {
		proxy.AvgLatencyMs = (proxy.AvgLatencyMs*(total-1) + latencyMs) / total
	}

	p.logger.WithFields(map[string]interface{}{
		"proxy_id":   id,
		"success":    proxy.SuccessCount,
		"fail":       proxy.FailCount,
		"latency_ms": latencyMs,
	}).Debug("Success recorded")
}

// RecordFailure records a failed use of a proxy. Crossing the configured
// failure threshold is the sole auto-disable trigger.
func (p *Pool) RecordFailure(id string, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	proxy, ok := p.proxies[id]
	if !ok {
		return
	}

	proxy.FailCount++
	p.logger.WithFields(map[string]interface{}{
		"proxy_id": id,
		"success":  proxy.SuccessCount,
		"fail":     proxy.FailCount,
		"reason":   reason,
	}).Debug("Failure recorded")

	if p.config.MaxFailures > 0 && proxy.FailCount >= int64(p.config.MaxFailures) && proxy.Enabled {
		proxy.Enabled = false
		proxy.DisabledAt = time.Now()
		p.logger.WithFields(map[string]interface{}{
			"proxy_id":         id,
			"fail_count":       proxy.FailCount,
			"cooldown_minutes": p.config.CooldownMinutes,
		}).Warn("Proxy auto-disabled due to repeated failures")
	}
}

// RecordCaptcha records a captcha hit. It only feeds the weighted-strategy
// penalty and never disables a proxy by itself.
func (p *Pool) RecordCaptcha(id string, captchaType string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	proxy, ok := p.proxies[id]
	if !ok {
		return
	}

	proxy.CaptchaCount++
	p.logger.WithFields(map[string]interface{}{
		"proxy_id":     id,
		"captcha_type": captchaType,
		"count":        proxy.CaptchaCount,
	}).Debug("Captcha recorded")
}

// ResetStats zeroes the counters of every proxy
func (p *Pool) ResetStats() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, proxy := range p.proxies {
		proxy.UsageCount = 0
		proxy.SuccessCount = 0
		proxy.FailCount = 0
		proxy.CaptchaCount = 0
		proxy.AvgLatencyMs = 0
	}

	p.logger.Info("Statistics reset for all proxies")
}

// ResetProxyStats zeroes one proxy's counters and force-re-enables it. This
// is a manual override distinct from cooldown-based re-enable.
func (p *Pool) ResetProxyStats(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	proxy, ok := p.proxies[id]
	if !ok {
		return errors.NewProxyNotFoundError(id)
	}

	proxy.UsageCount = 0
	proxy.SuccessCount = 0
	proxy.FailCount = 0
	proxy.CaptchaCount = 0
	proxy.AvgLatencyMs = 0
	if !proxy.Enabled {
		proxy.Enabled = true
		proxy.DisabledAt = time.Time{}
	}

	p.logger.WithField("proxy_id", id).Info("Statistics reset for proxy")
	return nil
}

// Config returns the current rotation policy
func (p *Pool) Config() domain.PoolConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config
}

// UpdateConfig validates and atomically swaps the policy. Supervisors are
// restarted only when their interval actually changed, which also allows
// disabling one by setting its interval to zero.
func (p *Pool) UpdateConfig(cfg domain.PoolConfig) error {
	if err := cfg.Validate(); err != nil {
		return errors.WrapError(err, errors.ErrCodeValidation, "pool", "invalid pool config")
	}

	p.mu.Lock()
	oldCooldown := p.config.CooldownMinutes
	oldInterval := p.config.HealthCheckInterval
	p.config = cfg
	p.autoSaveLocked()
	p.mu.Unlock()

	p.logger.WithFields(map[string]interface{}{
		"strategy":              string(cfg.Strategy),
		"max_failures":          cfg.MaxFailures,
		"cooldown_minutes":      cfg.CooldownMinutes,
		"health_check_interval": cfg.HealthCheckInterval,
	}).Info("Pool config updated")

	if cfg.CooldownMinutes != oldCooldown {
		p.StopCooldownChecker()
		if cfg.CooldownMinutes > 0 {
			p.StartCooldownChecker()
		}
	}
	if cfg.HealthCheckInterval != oldInterval {
		p.StopHealthChecker()
		if cfg.HealthCheckInterval > 0 {
			p.StartHealthChecker()
		}
	}

	return nil
}

// Stats returns an aggregate summary of the pool
func (p *Pool) Stats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var totalUsage, totalSuccess, totalFail, totalCaptcha int64
	enabledCount := 0
	disabledCount := 0
	healthyCount := 0
	unhealthyCount := 0

	for _, proxy := range p.proxies {
		totalUsage += proxy.UsageCount
		totalSuccess += proxy.SuccessCount
		totalFail += proxy.FailCount
		totalCaptcha += proxy.CaptchaCount
		if proxy.Enabled {
			enabledCount++
		} else {
			disabledCount++
		}
		switch proxy.HealthStatus {
		case domain.HealthHealthy:
			healthyCount++
		case domain.HealthUnhealthy:
			unhealthyCount++
		}
	}

	successRate := float64(0)
	if totalSuccess+totalFail > 0 {
		successRate = float64(totalSuccess) / float64(totalSuccess+totalFail) * 100
	}
	captchaRate := float64(0)
	if totalUsage > 0 {
		captchaRate = float64(totalCaptcha) / float64(totalUsage) * 100
	}

	return map[string]interface{}{
		"totalProxies":     len(p.proxies),
		"enabledProxies":   enabledCount,
		"disabledProxies":  disabledCount,
		"healthyProxies":   healthyCount,
		"unhealthyProxies": unhealthyCount,
		"totalUsage":       totalUsage,
		"totalSuccess":     totalSuccess,
		"totalFail":        totalFail,
		"totalCaptcha":     totalCaptcha,
		"successRate":      fmt.Sprintf("%.2f%%", successRate),
		"captchaRate":      fmt.Sprintf("%.2f%%", captchaRate),
		"strategy":         p.config.Strategy,
		"currentIndex":     p.index,
		"cooldownMinutes":  p.config.CooldownMinutes,
		"maxFailures":      p.config.MaxFailures,
	}
}
