package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vantigo/vantigo/internal/log"
)

func TestThrottlerExhaustsBurst(t *testing.T) {
	th := newThrottler(1.0, 3)

	for i := 0; i < 3; i++ {
		if !th.allow("10.0.0.1") {
			t.Fatalf("request %d denied within burst", i+1)
		}
	}
	if th.allow("10.0.0.1") {
		t.Error("request allowed after burst exhausted")
	}

	// A different IP has its own bucket.
	if !th.allow("10.0.0.2") {
		t.Error("fresh IP denied")
	}
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	th := newThrottler(1.0, 1)
	handler := rateLimitMiddleware(th, false, log.NewNop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("second request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

func TestClientIPProxyHeaders(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		realIP     string
		forwarded  string
		remoteAddr string
		want       string
	}{
		{"direct", false, "", "", "192.0.2.1:5000", "192.0.2.1"},
		{"proxy headers ignored when untrusted", false, "203.0.113.9", "", "192.0.2.1:5000", "192.0.2.1"},
		{"x-real-ip", true, "203.0.113.9", "", "192.0.2.1:5000", "203.0.113.9"},
		{"x-forwarded-for first hop", true, "", "203.0.113.9, 198.51.100.2", "192.0.2.1:5000", "203.0.113.9"},
		{"garbage header falls through", true, "not-an-ip", "", "192.0.2.1:5000", "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := clientIP(req, tt.trustProxy); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
