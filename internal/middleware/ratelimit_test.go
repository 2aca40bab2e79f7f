package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func withClock(rl *RateLimiter, c *fakeClock) { rl.now = c.Now }

func TestRateLimit_AllowsRequestsUnderLimit(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 10})
	defer limiter.Close()

	for i := 0; i < 10; i++ {
		allowed, remaining, _ := limiter.Allow("192.168.1.1")
		if !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if remaining != 10-i-1 {
			t.Errorf("request %d: expected %d remaining, got %d", i+1, 10-i-1, remaining)
		}
	}
}

func TestRateLimit_BlocksRequestsOverLimit(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 5})
	defer limiter.Close()
	withClock(limiter, newClock())

	for i := 0; i < 5; i++ {
		if allowed, _, _ := limiter.Allow("192.168.1.2"); !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	allowed, remaining, _ := limiter.Allow("192.168.1.2")
	if allowed || remaining != 0 {
		t.Fatalf("expected block with 0 remaining, got allowed=%v remaining=%d", allowed, remaining)
	}
}

func TestRateLimit_RefillsOverTime(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 6})
	defer limiter.Close()
	clock := newClock()
	withClock(limiter, clock)

	for i := 0; i < 6; i++ {
		limiter.Allow("10.0.0.1")
	}
	if allowed, _, _ := limiter.Allow("10.0.0.1"); allowed {
		t.Fatal("expected bucket to be empty")
	}

	// 6 per minute is one token every 10s
	clock.Advance(10 * time.Second)
	if allowed, _, _ := limiter.Allow("10.0.0.1"); !allowed {
		t.Fatal("expected one token after 10s")
	}

	clock.Advance(time.Minute)
	allowed, remaining, _ := limiter.Allow("10.0.0.1")
	if !allowed || remaining != 5 {
		t.Fatalf("expected full refill, got allowed=%v remaining=%d", allowed, remaining)
	}
}

func TestRateLimit_SeparateClients(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 1})
	defer limiter.Close()
	withClock(limiter, newClock())

	limiter.Allow("1.1.1.1")
	if allowed, _, _ := limiter.Allow("1.1.1.1"); allowed {
		t.Fatal("first client should be blocked")
	}
	if allowed, _, _ := limiter.Allow("2.2.2.2"); !allowed {
		t.Fatal("second client should have its own bucket")
	}
}

func TestRateLimit_Lockout(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: 1,
		LockoutDuration:   5 * time.Minute,
		MaxViolations:     2,
	})
	defer limiter.Close()
	clock := newClock()
	withClock(limiter, clock)

	limiter.Allow("3.3.3.3")
	limiter.Allow("3.3.3.3")
	_, _, reset := limiter.Allow("3.3.3.3")
	if !reset.Equal(clock.Now().Add(5 * time.Minute)) {
		t.Fatalf("expected lockout until %v, got %v", clock.Now().Add(5*time.Minute), reset)
	}

	// a refill would normally allow this, but the client is locked out
	clock.Advance(2 * time.Minute)
	if allowed, _, _ := limiter.Allow("3.3.3.3"); allowed {
		t.Fatal("expected locked-out client to be blocked")
	}

	clock.Advance(4 * time.Minute)
	if allowed, _, _ := limiter.Allow("3.3.3.3"); !allowed {
		t.Fatal("expected lockout to expire")
	}
}

func TestRateLimit_Cleanup(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 5})
	defer limiter.Close()
	clock := newClock()
	withClock(limiter, clock)

	limiter.Allow("4.4.4.4")
	clock.Advance(5 * time.Minute)
	limiter.Allow("5.5.5.5")
	clock.Advance(6 * time.Minute)

	if n := limiter.cleanup(); n != 1 {
		t.Fatalf("expected 1 stale bucket removed, got %d", n)
	}
	if _, ok := limiter.clients["5.5.5.5"]; !ok {
		t.Fatal("recent client should be kept")
	}
}

func TestRateLimit_Middleware(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 2})
	defer limiter.Close()
	withClock(limiter, newClock())

	h := limiter.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
		req.RemoteAddr = "192.0.2.10:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "2" {
			t.Fatalf("missing rate limit header")
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.RemoteAddr = "192.0.2.10:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected JSON body, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "too many requests") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestRateLimit_MiddlewareIgnoresSpoofedHeaders(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 1})
	defer limiter.Close()
	withClock(limiter, newClock())

	h := limiter.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i, xff := range []string{"198.51.100.1", "198.51.100.2"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "203.0.113.9:5555"
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if i == 1 && rec.Code != http.StatusTooManyRequests {
			t.Fatalf("rotating X-Forwarded-For from an untrusted peer should not reset the budget")
		}
	}
}

func TestRateLimit_MiddlewareTrustedProxy(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: 1,
		TrustedProxies:    []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")},
	})
	defer limiter.Close()
	withClock(limiter, newClock())

	h := limiter.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for _, xff := range []string{"198.51.100.1", "198.51.100.2"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.1.2.3:80"
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("client %s behind trusted proxy should have its own bucket, got %d", xff, rec.Code)
		}
	}
}
