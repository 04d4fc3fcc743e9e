package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brandloom/storefront/internal/logging"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestRateLimiterPerCaller(t *testing.T) {
	rl := NewRateLimiter(60, 2, logging.NewDiscard())
	h := rl.Handler(okHandler())

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("10.0.0.1:1234"); code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, code)
		}
	}
	if code := send("10.0.0.1:5555"); code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", code)
	}
	if code := send("10.0.0.2:1234"); code != http.StatusOK {
		t.Fatalf("other caller status = %d", code)
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(60, 1, logging.NewDiscard())
	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.getLimiter("a")

	now = now.Add(time.Hour)
	rl.getLimiter("b")

	if removed := rl.Cleanup(10 * time.Minute); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, ok := rl.limiters["b"]; !ok {
		t.Fatalf("recent limiter should be kept")
	}
}

func TestTracingMiddlewareSetsHeader(t *testing.T) {
	var traceID string
	h := NewTracingMiddleware(logging.NewDiscard()).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = logging.GetTraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceHeader, "abc-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if traceID != "abc-123" || rr.Header().Get(TraceHeader) != "abc-123" {
		t.Fatalf("trace id not propagated: ctx=%q header=%q", traceID, rr.Header().Get(TraceHeader))
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Header().Get(TraceHeader) == "" {
		t.Fatalf("expected generated trace id")
	}
}

func TestRecovery(t *testing.T) {
	h := Recovery(logging.NewDiscard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
}

func TestCORS(t *testing.T) {
	h := NewCORSMiddleware([]string{"https://shop.example.com", "*.brands.example.com"}).Handler(okHandler())

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"https://shop.example.com", true},
		{"https://acme.brands.example.com", true},
		{"https://evilshop.example.com", false},
		{"https://brands.example.com.evil.io", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", tt.origin)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		got := rr.Header().Get("Access-Control-Allow-Origin") == tt.origin
		if got != tt.allowed {
			t.Fatalf("origin %s allowed = %v, want %v", tt.origin, got, tt.allowed)
		}
	}

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rr.Code)
	}
}

func TestRequireHeaderToken(t *testing.T) {
	h := RequireHeaderToken("X-Api-Key", "tok", logging.NewDiscard())(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Api-Key", "tok")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d", rr.Code)
	}

	empty := RequireHeaderToken("X-Api-Key", "", logging.NewDiscard())(okHandler())
	rr = httptest.NewRecorder()
	empty.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unconfigured token status = %d", rr.Code)
	}
}
