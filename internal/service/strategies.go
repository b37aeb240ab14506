package service

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/choisimo/proxy-rotator/internal/domain"
)

// Weighted-selection tuning. minWeight keeps every proxy selectable; the
// captcha penalty floors at 0.1 so a captcha-ridden proxy is throttled, not
// starved.
const (
	minWeight           = 10.0
	neutralSuccessRate  = 50.0
	captchaPenaltyRate  = 0.7
	captchaPenaltyFloor = 0.1
	weightScale         = 1000
)

// selectRoundRobin walks the insertion order starting at the cursor,
// skipping disabled or removed ids. The scan is bounded by the order length
// so drift between order and the enabled set can never loop forever.
// Caller must hold the write lock.
func (p *Pool) selectRoundRobin(enabled []*domain.ProxyEndpoint) *domain.ProxyEndpoint {
	if len(enabled) == 0 {
		return nil
	}
	if p.index >= len(p.order) {
		p.index = 0
	}

	for attempts := 0; attempts < len(p.order); attempts++ {
		if p.index >= len(p.order) {
			p.index = 0
		}
		id := p.order[p.index]
		p.index++
		if proxy, ok := p.proxies[id]; ok && proxy.Enabled {
			return proxy
		}
	}

	// Order exhausted without a hit; fall back to the first enabled proxy
	return enabled[0]
}

// selectRandom picks uniformly at random among the enabled subset
func (p *Pool) selectRandom(enabled []*domain.ProxyEndpoint) *domain.ProxyEndpoint {
	if len(enabled) == 0 {
		return nil
	}
	return enabled[secureRandomInt(len(enabled))]
}

// selectLeastUsed picks the proxy with the lowest usage count. Ties are
// broken arbitrarily since the subset derives from map iteration.
func (p *Pool) selectLeastUsed(enabled []*domain.ProxyEndpoint) *domain.ProxyEndpoint {
	if len(enabled) == 0 {
		return nil
	}
	min := enabled[0]
	for _, proxy := range enabled[1:] {
		if proxy.UsageCount < min.UsageCount {
			min = proxy
		}
	}
	return min
}

// selectWeighted draws a proxy proportionally to its score: success rate
// with a floor so new proxies keep exploration probability, scaled down by
// a captcha penalty.
func (p *Pool) selectWeighted(enabled []*domain.ProxyEndpoint) *domain.ProxyEndpoint {
	if len(enabled) == 0 {
		return nil
	}

	weights := make([]float64, len(enabled))
	totalWeight := 0.0
	for i, proxy := range enabled {
		weights[i] = proxyWeight(proxy)
		totalWeight += weights[i]
	}

	if totalWeight <= 0 {
		return enabled[secureRandomInt(len(enabled))]
	}

	// Scale by 1000 for sub-integer precision on the secure draw
	randN, err := rand.Int(rand.Reader, big.NewInt(int64(totalWeight*weightScale)))
	if err != nil {
		return enabled[secureRandomInt(len(enabled))]
	}
	randVal := float64(randN.Int64()) / weightScale

	cumulative := 0.0
	for i, weight := range weights {
		cumulative += weight
		if randVal < cumulative {
			return enabled[i]
		}
	}

	// Precision loss can leave the draw past the last cumulative step
	return enabled[len(enabled)-1]
}

// proxyWeight computes the weighted-selection score for one proxy
func proxyWeight(proxy *domain.ProxyEndpoint) float64 {
	total := proxy.SuccessCount + proxy.FailCount
	var baseWeight float64
	if total == 0 {
		// No history yet: neutral success assumption plus exploration bonus
		baseWeight = neutralSuccessRate + minWeight
	} else {
		rate := float64(proxy.SuccessCount) / float64(total) * 100
		baseWeight = rate + minWeight
	}

	captchaRate := float64(proxy.CaptchaCount) / float64(proxy.UsageCount+1)
	captchaPenalty := 1.0 - (captchaRate * captchaPenaltyRate)
	if captchaPenalty < captchaPenaltyFloor {
		captchaPenalty = captchaPenaltyFloor
	}

	weight := baseWeight * captchaPenalty
	if weight < minWeight {
		weight = minWeight
	}
	return weight
}

// selectGeographic restricts the draw to proxies matching the preferred
// country when one is configured, falling back to round-robin otherwise.
func (p *Pool) selectGeographic(enabled []*domain.ProxyEndpoint) *domain.ProxyEndpoint {
	if len(enabled) == 0 {
		return nil
	}
	if p.config.PreferredCountry != "" {
		var matching []*domain.ProxyEndpoint
		for _, proxy := range enabled {
			if strings.EqualFold(proxy.Country, p.config.PreferredCountry) {
				matching = append(matching, proxy)
			}
		}
		if len(matching) > 0 {
			return matching[secureRandomInt(len(matching))]
		}
	}
	return p.selectRoundRobin(enabled)
}

// secureRandomInt returns a crypto-secure random value in [0, max)
func secureRandomInt(max int) int {
	if max <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		// crypto/rand read failure is effectively unreachable
		return int(time.Now().UnixNano()) % max
	}
	return int(n.Int64())
}
