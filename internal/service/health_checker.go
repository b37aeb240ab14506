package service

import (
	"net"
	"sync"
	"time"

	"github.com/choisimo/proxy-rotator/internal/domain"
)

const (
	defaultHealthCheckInterval = 300 * time.Second
	defaultHealthCheckTimeout  = 10 * time.Second
)

// StartHealthChecker starts the periodic probe sweep. Starting while already
// running is a no-op.
func (p *Pool) StartHealthChecker() {
	p.mu.Lock()
	if p.healthCheckRunning {
		p.mu.Unlock()
		return
	}
	p.healthCheckRunning = true
	interval := time.Duration(p.config.HealthCheckInterval) * time.Second
	if interval <= 0 {
		interval = defaultHealthCheckInterval
	}
	stop := p.stopHealthCheck
	p.mu.Unlock()

	log := p.logger.HealthCheckLogger()
	log.Infof("Health checker started (interval=%s)", interval)

	p.healthCheckWG.Add(1)
	go func() {
		defer p.healthCheckWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.runHealthChecks()
			case <-stop:
				log.Info("Health checker stopped")
				return
			}
		}
	}()
}

// StopHealthChecker stops the periodic sweep. In-flight probes run to their
// own dial timeout; only the loop is cancelled.
func (p *Pool) StopHealthChecker() {
	p.mu.Lock()
	if !p.healthCheckRunning {
		p.mu.Unlock()
		return
	}
	close(p.stopHealthCheck)
	p.healthCheckRunning = false
	p.stopHealthCheck = make(chan struct{})
	p.mu.Unlock()

	p.healthCheckWG.Wait()
}

// RunHealthCheckNow triggers a probe sweep asynchronously without waiting
// for the next tick
func (p *Pool) RunHealthCheckNow() {
	go p.runHealthChecks()
}

// runHealthChecks snapshots the enabled set under the read lock, releases
// it, then probes every proxy concurrently and writes each result back
// under the lock. The WaitGroup join bounds tick overlap.
func (p *Pool) runHealthChecks() {
	type probeTarget struct {
		id   string
		host string
	}

	// Snapshot ids and hosts under the read lock; the dials happen with the
	// lock released.
	p.mu.RLock()
	targets := make([]probeTarget, 0)
	for _, proxy := range p.proxies {
		if !proxy.Enabled {
			continue
		}
		host := ""
		if proxyURL, err := proxy.ProxyURL(); err == nil {
			host = proxyURL.Host
		}
		targets = append(targets, probeTarget{id: proxy.ID, host: host})
	}
	timeout := time.Duration(p.config.HealthCheckTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultHealthCheckTimeout
	}
	p.mu.RUnlock()

	log := p.logger.HealthCheckLogger()

	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(t probeTarget) {
			defer wg.Done()
			healthy := p.probeHost(t.id, t.host, timeout)

			p.mu.Lock()
			if proxy, ok := p.proxies[t.id]; ok {
				proxy.LastHealthCheck = time.Now()
				if healthy {
					proxy.HealthStatus = domain.HealthHealthy
				} else {
					proxy.HealthStatus = domain.HealthUnhealthy
				}
			}
			p.mu.Unlock()
		}(target)
	}
	wg.Wait()

	log.WithField("checked", len(targets)).Debug("Health check sweep completed")
}

// probeHost attempts a TCP dial to the proxy host. A dial failure is
// recorded as unhealthy and never propagated.
func (p *Pool) probeHost(id, host string, timeout time.Duration) bool {
	if host == "" {
		return false
	}

	conn, err := net.DialTimeout("tcp", host, timeout)
	if err != nil {
		p.logger.HealthCheckLogger().WithFields(map[string]interface{}{
			"proxy_id": id,
			"host":     host,
			"error":    err.Error(),
		}).Debug("Health probe failed")
		return false
	}
	conn.Close()
	return true
}
