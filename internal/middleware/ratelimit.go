package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/choisimo/proxy-rotator/pkg/logger"
)

// clientLimiter holds the token bucket for a single client IP
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies per-client token-bucket rate limiting to the admin
// API. Clients are keyed by IP; stale entries are evicted periodically.
type RateLimiter struct {
	requestsPerSec float64
	burstSize      int
	clients        map[string]*clientLimiter
	mutex          sync.Mutex
	logger         *logger.Logger
	stopCleanup    chan struct{}
}

// NewRateLimiter creates a rate limiter and starts its cleanup routine
func NewRateLimiter(requestsPerSec float64, burstSize int, log *logger.Logger) *RateLimiter {
	rl := &RateLimiter{
		requestsPerSec: requestsPerSec,
		burstSize:      burstSize,
		clients:        make(map[string]*clientLimiter),
		logger:         log,
		stopCleanup:    make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Middleware returns the rate limiting middleware
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := rl.clientIP(r)
			limiter := rl.limiterFor(clientIP)

			if !limiter.Allow() {
				rl.logger.WithFields(map[string]interface{}{
					"client_ip": clientIP,
					"path":      r.URL.Path,
				}).Warn("Request rate limited")

				w.Header().Set("X-RateLimit-Limit", strconv.FormatFloat(rl.requestsPerSec, 'f', 0, 64))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", "1")

				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// limiterFor gets or creates the limiter for a client IP
func (rl *RateLimiter) limiterFor(clientIP string) *rate.Limiter {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	client, exists := rl.clients[clientIP]
	if !exists {
		client = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(rl.requestsPerSec), rl.burstSize),
		}
		rl.clients[clientIP] = client
	}
	client.lastSeen = time.Now()
	return client.limiter
}

// clientIP extracts the client IP address, preferring forwarded headers
func (rl *RateLimiter) clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ips := strings.Split(xff, ","); len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanup evicts clients idle for more than three minutes
func (rl *RateLimiter) cleanup() {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	cutoff := time.Now().Add(-3 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastSeen.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

// Stop terminates the cleanup routine
func (rl *RateLimiter) Stop() {
	close(rl.stopCleanup)
}
