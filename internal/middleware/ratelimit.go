package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/brandloom/storefront/internal/errors"
	internalhttputil "github.com/brandloom/storefront/internal/httputil"
	"github.com/brandloom/storefront/internal/logging"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter limits requests per caller: API key, user, or client IP.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	perMin   int
	burst    int
	logger   *logging.Logger
	now      func() time.Time
}

// NewRateLimiter creates a limiter allowing perMinute requests with burst.
func NewRateLimiter(perMinute, burst int, logger *logging.Logger) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 300
	}
	if burst <= 0 {
		burst = perMinute / 5
		if burst == 0 {
			burst = 1
		}
	}
	if logger == nil {
		logger = logging.NewDefault("ratelimit")
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Every(time.Minute / time.Duration(perMinute)),
		perMin:   perMinute,
		burst:    burst,
		logger:   logger,
		now:      time.Now,
	}
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = entry
	}
	entry.lastSeen = rl.now()
	return entry.limiter
}

// Handler returns the rate limiting middleware handler. It must run after
// authentication so callers are keyed by identity.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := callerKey(r)
		if !rl.getLimiter(key).Allow() {
			rl.reject(w, r, key)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Exhausted reports whether key has no requests left, without using one.
func (rl *RateLimiter) Exhausted(key string) bool {
	return rl.getLimiter(key).Tokens() < 1
}

// Charge uses one request from key's bucket.
func (rl *RateLimiter) Charge(key string) {
	rl.getLimiter(key).Allow()
}

func (rl *RateLimiter) reject(w http.ResponseWriter, r *http.Request, key string) {
	rl.logger.LogSecurityEvent(r.Context(), "rate_limit_exceeded", map[string]interface{}{
		"key":    key,
		"path":   r.URL.Path,
		"method": r.Method,
	})
	w.Header().Set("Retry-After", "60")
	internalhttputil.WriteError(w, r, errors.RateLimitExceeded(rl.perMin, "1m"))
}

func callerKey(r *http.Request) string {
	if p := PrincipalFrom(r.Context()); p != nil {
		if p.IsAPIKey() {
			return "key:" + p.KeyID
		}
		return "user:" + p.UserID
	}
	return clientKey(r)
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// Cleanup drops limiters idle for longer than idle.
func (rl *RateLimiter) Cleanup(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-idle)
	removed := 0
	for key, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, key)
			removed++
		}
	}
	return removed
}
