package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// HealthStatus represents the reachability state of a proxy as observed by
// the health checker. It is orthogonal to the enabled flag and never gates
// selection.
type HealthStatus string

const (
	// HealthUnknown means the proxy has not been probed yet
	HealthUnknown HealthStatus = "unknown"
	// HealthHealthy means the last TCP probe succeeded
	HealthHealthy HealthStatus = "healthy"
	// HealthUnhealthy means the last TCP probe failed
	HealthUnhealthy HealthStatus = "unhealthy"
)

// RotationStrategy identifies the algorithm used to pick the next proxy
type RotationStrategy string

const (
	// StrategyRoundRobin walks the insertion order with a persistent cursor
	StrategyRoundRobin RotationStrategy = "round_robin"
	// StrategyRandom picks uniformly at random among enabled proxies
	StrategyRandom RotationStrategy = "random"
	// StrategyLeastUsed picks the proxy with the lowest usage count
	StrategyLeastUsed RotationStrategy = "least_used"
	// StrategyWeighted picks proportionally to success rate with a captcha penalty
	StrategyWeighted RotationStrategy = "weighted"
	// StrategyGeographic prefers proxies in the configured country
	StrategyGeographic RotationStrategy = "geographic"
)

// ValidStrategies is the allow-list used for config validation
var ValidStrategies = map[RotationStrategy]bool{
	StrategyRoundRobin: true,
	StrategyRandom:     true,
	StrategyLeastUsed:  true,
	StrategyWeighted:   true,
	StrategyGeographic: true,
}

// ValidProtocols lists the proxy protocols accepted by AddProxy
var ValidProtocols = map[string]bool{
	"http":   true,
	"https":  true,
	"socks4": true,
	"socks5": true,
}

// ProxyEndpoint represents a single outbound proxy with its connection
// information and rolling statistics. All mutation happens through the pool
// under its lock; callers treat returned endpoints as read-only snapshots.
type ProxyEndpoint struct {
	ID              string       `json:"id"`
	Address         string       `json:"address"`  // e.g. "http://proxy.example.com:8080"
	Protocol        string       `json:"protocol"` // http, https, socks4, socks5
	Username        string       `json:"username,omitempty"`
	Password        string       `json:"password,omitempty"`
	Country         string       `json:"country,omitempty"`
	City            string       `json:"city,omitempty"`
	Enabled         bool         `json:"enabled"`
	UsageCount      int64        `json:"usageCount"`
	LastUsed        time.Time    `json:"lastUsed,omitempty"`
	SuccessCount    int64        `json:"successCount"`
	FailCount       int64        `json:"failCount"`
	CaptchaCount    int64        `json:"captchaCount"`
	AvgLatencyMs    int64        `json:"avgLatencyMs"`
	CreatedAt       time.Time    `json:"createdAt"`
	DisabledAt      time.Time    `json:"disabledAt,omitempty"`
	LastHealthCheck time.Time    `json:"lastHealthCheck,omitempty"`
	HealthStatus    HealthStatus `json:"healthStatus,omitempty"`
}

// ProxyURL returns the endpoint address as a URL, embedding the credentials
// as userinfo when both username and password are set.
func (p *ProxyEndpoint) ProxyURL() (*url.URL, error) {
	u, err := url.Parse(p.Address)
	if err != nil {
		return nil, err
	}
	if p.Username != "" && p.Password != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u, nil
}

// SuccessRate returns the success percentage over recorded results.
// A proxy with no history reports 100 so fresh proxies are not penalized.
func (p *ProxyEndpoint) SuccessRate() float64 {
	total := p.SuccessCount + p.FailCount
	if total == 0 {
		return 100.0
	}
	return float64(p.SuccessCount) / float64(total) * 100
}

// PoolConfig is the rotation policy applied by the pool. It is swapped
// wholesale on update so readers never observe a half-applied config.
type PoolConfig struct {
	Strategy            RotationStrategy `json:"strategy" yaml:"strategy"`
	MaxFailures         int              `json:"maxFailures" yaml:"max_failures"`         // auto-disable after N failures, 0 disables
	CooldownMinutes     int              `json:"cooldownMinutes" yaml:"cooldown_minutes"` // re-enable after cooldown, 0 disables
	PreferredCountry    string           `json:"preferredCountry,omitempty" yaml:"preferred_country"`
	HealthCheckInterval int              `json:"healthCheckInterval" yaml:"health_check_interval"` // seconds between sweeps
	HealthCheckTimeout  int              `json:"healthCheckTimeout" yaml:"health_check_timeout"`   // seconds per probe
	PersistencePath     string           `json:"persistencePath,omitempty" yaml:"persistence_path"`
}

// Validate checks the config against the allowed strategy set and the
// non-negativity constraints. An empty strategy is accepted and treated as
// round_robin at selection time.
func (c *PoolConfig) Validate() error {
	if c.Strategy != "" && !ValidStrategies[c.Strategy] {
		return fmt.Errorf("invalid strategy: %s, must be one of: round_robin, random, least_used, weighted, geographic", c.Strategy)
	}
	if c.MaxFailures < 0 {
		return fmt.Errorf("maxFailures must be non-negative")
	}
	if c.CooldownMinutes < 0 {
		return fmt.Errorf("cooldownMinutes must be non-negative")
	}
	if c.HealthCheckInterval < 0 {
		return fmt.Errorf("healthCheckInterval must be non-negative")
	}
	if c.HealthCheckTimeout < 0 {
		return fmt.Errorf("healthCheckTimeout must be non-negative")
	}
	return nil
}

// PoolSnapshot is the serialized pool state written to disk for crash
// recovery. It is a single-process recovery format, not a replication one.
type PoolSnapshot struct {
	Proxies map[string]*ProxyEndpoint `json:"proxies"`
	Order   []string                  `json:"order"`
	Index   int                       `json:"index"`
	Config  PoolConfig                `json:"config"`
	SavedAt time.Time                 `json:"savedAt"`
}

// ProxyPatch is a structured partial update for a proxy. Nil fields are left
// untouched. The result-recording shortcuts let a single PATCH both adjust
// connection fields and report an outcome.
type ProxyPatch struct {
	Enabled  *bool   `json:"enabled,omitempty"`
	Address  *string `json:"address,omitempty"`
	Protocol *string `json:"protocol,omitempty"`
	Username *string `json:"username,omitempty"`
	Password *string `json:"password,omitempty"`
	Country  *string `json:"country,omitempty"`
	City     *string `json:"city,omitempty"`

	// Result-recording shortcuts
	Success   *bool  `json:"success,omitempty"`
	Failure   *bool  `json:"failure,omitempty"`
	LatencyMs *int64 `json:"latency_ms,omitempty"`
}

// Empty reports whether the patch carries no changes at all
func (p *ProxyPatch) Empty() bool {
	return p.Enabled == nil && p.Address == nil && p.Protocol == nil &&
		p.Username == nil && p.Password == nil && p.Country == nil &&
		p.City == nil && p.Success == nil && p.Failure == nil && p.LatencyMs == nil
}

// NormalizeProtocol lowercases a protocol name, defaulting empty to http
func NormalizeProtocol(protocol string) string {
	if protocol == "" {
		return "http"
	}
	return strings.ToLower(protocol)
}

// ProxyPool is the behavioural contract of the rotation pool. Handlers depend
// on this interface so the pool can be swapped for a test double.
type ProxyPool interface {
	// AddProxy validates and registers a proxy, forcing it enabled
	AddProxy(proxy *ProxyEndpoint) error
	// RemoveProxy deletes a proxy and its rotation-order slot
	RemoveProxy(id string) error
	// GetProxy returns a snapshot of a single proxy
	GetProxy(id string) (ProxyEndpoint, error)
	// ListProxies returns snapshots of all proxies in insertion order
	ListProxies() []ProxyEndpoint
	// UpdateProxy applies a partial update and returns the new state
	UpdateProxy(id string, patch ProxyPatch) (ProxyEndpoint, error)
	// GetNextProxy selects the next proxy per the configured strategy
	GetNextProxy() (ProxyEndpoint, error)
	// RecordSuccess records a successful use and updates the latency average
	RecordSuccess(id string, latencyMs int64)
	// RecordFailure records a failed use, auto-disabling past the threshold
	RecordFailure(id string, reason string)
	// RecordCaptcha records a captcha hit for weighted scoring
	RecordCaptcha(id string, captchaType string)
	// ResetStats zeroes the counters of every proxy
	ResetStats()
	// ResetProxyStats zeroes one proxy's counters and force-re-enables it
	ResetProxyStats(id string) error
	// Config returns the current rotation policy
	Config() PoolConfig
	// UpdateConfig validates and atomically swaps the rotation policy
	UpdateConfig(cfg PoolConfig) error
	// Stats returns an aggregate summary of the pool
	Stats() map[string]interface{}
	// RunHealthCheckNow triggers an asynchronous probe sweep
	RunHealthCheckNow()
	// SaveToFile writes a snapshot of the pool to the given path
	SaveToFile(path string) error
	// LoadFromFile restores pool state from a snapshot file
	LoadFromFile(path string) error
}
