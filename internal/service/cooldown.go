package service

import (
	"time"
)

// StartCooldownChecker starts the background task that re-enables disabled
// proxies once their cooldown has elapsed. Starting while already running is
// a no-op. The tick rate is fixed at one minute; cooldownMinutes only gates
// the comparison, not the poll rate.
func (p *Pool) StartCooldownChecker() {
	p.mu.Lock()
	if p.cooldownRunning {
		p.mu.Unlock()
		return
	}
	p.cooldownRunning = true
	tick := p.cooldownTick
	cooldown := p.config.CooldownMinutes
	stop := p.stopCooldown
	p.mu.Unlock()

	log := p.logger.CooldownLogger()
	log.Infof("Cooldown checker started (cooldown=%d minutes)", cooldown)

	p.cooldownWG.Add(1)
	go func() {
		defer p.cooldownWG.Done()
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.reenableExpired()
			case <-stop:
				log.Info("Cooldown checker stopped")
				return
			}
		}
	}()
}

// StopCooldownChecker stops the cooldown task. Safe to call when not
// running; the stop channel is recreated so a later start works again.
func (p *Pool) StopCooldownChecker() {
	p.mu.Lock()
	if !p.cooldownRunning {
		p.mu.Unlock()
		return
	}
	close(p.stopCooldown)
	p.cooldownRunning = false
	p.stopCooldown = make(chan struct{})
	p.mu.Unlock()

	p.cooldownWG.Wait()
}

// reenableExpired re-enables every disabled proxy whose cooldown has
// elapsed, resetting its failure count for a fresh start.
func (p *Pool) reenableExpired() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.config.CooldownMinutes <= 0 {
		return
	}

	cooldown := time.Duration(p.config.CooldownMinutes) * time.Minute
	now := time.Now()

	for id, proxy := range p.proxies {
		if !proxy.Enabled && !proxy.DisabledAt.IsZero() && now.Sub(proxy.DisabledAt) >= cooldown {
			proxy.Enabled = true
			proxy.FailCount = 0
			proxy.DisabledAt = time.Time{}
			p.logger.WithFields(map[string]interface{}{
				"proxy_id": id,
				"address":  proxy.Address,
			}).Info("Proxy re-enabled after cooldown")
		}
	}
}
