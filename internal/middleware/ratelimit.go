package middleware

import (
	"encoding/json"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"sync"
	"time"
)

// RateLimiter is a per-client token bucket. Each bucket holds
// RequestsPerMinute tokens and refills proportionally over a minute.
type RateLimiter struct {
	mu              sync.Mutex
	requestsPerMin  int
	clients         map[string]*clientBucket
	trusted         []netip.Prefix
	cleanupInterval time.Duration
	lockoutDuration time.Duration
	maxViolations   int
	now             func() time.Time
	stop            chan struct{}
	stopOnce        sync.Once
}

type clientBucket struct {
	mu          sync.Mutex
	tokens      int
	lastRefill  time.Time
	lastSeen    time.Time
	violations  int
	lockedUntil time.Time
}

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	RequestsPerMinute int
	TrustedProxies    []netip.Prefix
	CleanupInterval   time.Duration
	LockoutDuration   time.Duration // zero disables lockout
	MaxViolations     int
}

// NewRateLimiter creates a limiter and starts its cleanup goroutine.
// Call Close to stop it.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 60
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	if config.MaxViolations == 0 {
		config.MaxViolations = 10
	}

	rl := &RateLimiter{
		requestsPerMin:  config.RequestsPerMinute,
		clients:         make(map[string]*clientBucket),
		trusted:         config.TrustedProxies,
		cleanupInterval: config.CleanupInterval,
		lockoutDuration: config.LockoutDuration,
		maxViolations:   config.MaxViolations,
		now:             func() time.Time { return time.Now().UTC() },
		stop:            make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Close stops the background cleanup.
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// Middleware returns an HTTP middleware that rejects clients over their
// budget with 429 and a JSON body.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := ClientIP(r, rl.trusted)
			allowed, remaining, reset := rl.Allow(clientIP)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if !allowed {
				retryAfter := int(reset.Sub(rl.now()).Seconds())
				if retryAfter < 1 {
					retryAfter = 1
				}
				log.Printf("Rate limit exceeded for IP: %s on %s", clientIP, r.URL.Path)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error":       "too many requests",
					"retry_after": retryAfter,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Allow consumes one token for clientIP.
// Returns: (allowed, remaining tokens, reset time)
func (rl *RateLimiter) Allow(clientIP string) (bool, int, time.Time) {
	now := rl.now()

	rl.mu.Lock()
	bucket, exists := rl.clients[clientIP]
	if !exists {
		bucket = &clientBucket{tokens: rl.requestsPerMin, lastRefill: now}
		rl.clients[clientIP] = bucket
	}
	rl.mu.Unlock()

	bucket.mu.Lock()
	defer bucket.mu.Unlock()
	bucket.lastSeen = now

	if !bucket.lockedUntil.IsZero() {
		if now.Before(bucket.lockedUntil) {
			return false, 0, bucket.lockedUntil
		}
		bucket.lockedUntil = time.Time{}
		bucket.violations = 0
	}

	elapsed := now.Sub(bucket.lastRefill)
	if elapsed >= time.Minute {
		bucket.tokens = rl.requestsPerMin
		bucket.lastRefill = now
	} else if add := int(float64(rl.requestsPerMin) * elapsed.Seconds() / 60); add > 0 {
		bucket.tokens = min(bucket.tokens+add, rl.requestsPerMin)
		bucket.lastRefill = now
	}

	if bucket.tokens > 0 {
		bucket.tokens--
		return true, bucket.tokens, bucket.lastRefill.Add(time.Minute)
	}

	bucket.violations++
	if rl.lockoutDuration > 0 && bucket.violations >= rl.maxViolations {
		bucket.lockedUntil = now.Add(rl.lockoutDuration)
		log.Printf("Client %s locked out until %v after %d violations",
			clientIP, bucket.lockedUntil, bucket.violations)
		return false, 0, bucket.lockedUntil
	}
	return false, 0, bucket.lastRefill.Add(time.Minute)
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stop:
			return
		}
	}
}

// cleanup drops buckets idle for ten minutes that are not locked out.
func (rl *RateLimiter) cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for ip, bucket := range rl.clients {
		bucket.mu.Lock()
		idle := now.Sub(bucket.lastSeen) > 10*time.Minute
		locked := now.Before(bucket.lockedUntil)
		bucket.mu.Unlock()

		if idle && !locked {
			delete(rl.clients, ip)
			removed++
		}
	}
	return removed
}
