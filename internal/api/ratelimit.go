package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	throttleCleanupEvery   = 5 * time.Minute
	throttleStaleThreshold = 10 * time.Minute
)

// throttler applies a per-IP token bucket. Stale buckets are reaped inline
// during allow calls rather than by a background goroutine.
type throttler struct {
	mu          sync.Mutex
	buckets     map[string]*bucket
	limit       rate.Limit
	burst       int
	lastCleanup time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// newThrottler creates a throttler refilling r tokens per second with the
// given burst allowance per IP.
func newThrottler(r float64, burst int) *throttler {
	return &throttler{
		buckets:     make(map[string]*bucket),
		limit:       rate.Limit(r),
		burst:       burst,
		lastCleanup: time.Now(),
	}
}

func (t *throttler) allow(ip string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if now.Sub(t.lastCleanup) > throttleCleanupEvery {
		for k, b := range t.buckets {
			if now.Sub(b.lastSeen) > throttleStaleThreshold {
				delete(t.buckets, k)
			}
		}
		t.lastCleanup = now
	}

	b, ok := t.buckets[ip]
	if !ok {
		limiter := rate.NewLimiter(t.limit, t.burst)
		t.buckets[ip] = &bucket{limiter: limiter, lastSeen: now}
		limiter.Allow()
		return true
	}

	b.lastSeen = now
	return b.limiter.Allow()
}

// rateLimitMiddleware rejects requests from IPs that exhausted their tokens.
func rateLimitMiddleware(t *throttler, trustProxy bool, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, trustProxy)
			if !t.allow(ip) {
				logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
				w.Header().Set("Retry-After", "1")
				WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the client IP. Proxy headers are honored only when
// trustProxy is set, and their values are validated with net.ParseIP so
// arbitrary strings cannot become throttle keys.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
				return ip.String()
			}
		}
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			raw := xff
			if first, _, ok := strings.Cut(xff, ","); ok {
				raw = first
			}
			if ip := net.ParseIP(strings.TrimSpace(raw)); ip != nil {
				return ip.String()
			}
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
