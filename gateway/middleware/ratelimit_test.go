package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, req *http.Request) int {
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res.Code
}

func TestRateLimiterBlocksAfterBurst(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"tx": {RequestsPerMinute: 60, Burst: 1},
	}, nil)
	handler := limiter.Middleware("tx")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/tx", nil)
	if code := serve(handler, req); code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", code)
	}
	if code := serve(handler, req); code != http.StatusTooManyRequests {
		t.Fatalf("expected second request to be rate limited, got %d", code)
	}
}

func TestRateLimiterRefills(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := NewRateLimiter(map[string]RateLimit{
		"tx": {RequestsPerMinute: 60, Burst: 1},
	}, nil)
	limiter.clockNow = func() time.Time { return now }
	handler := limiter.Middleware("tx")(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/v1/tx", nil)
	if code := serve(handler, req); code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", code)
	}
	if code := serve(handler, req); code != http.StatusTooManyRequests {
		t.Fatalf("expected limit, got %d", code)
	}
	now = now.Add(time.Second)
	if code := serve(handler, req); code != http.StatusOK {
		t.Fatalf("expected refill after one second, got %d", code)
	}
}

func TestRateLimiterSeparatesClientsAndRoutes(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{
		"tx":    {RequestsPerMinute: 60, Burst: 1},
		"reads": {RequestsPerMinute: 60, Burst: 1},
	}, nil)
	tx := limiter.Middleware("tx")(okHandler())
	reads := limiter.Middleware("reads")(okHandler())

	a := httptest.NewRequest(http.MethodPost, "/v1/tx", nil)
	a.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	b := httptest.NewRequest(http.MethodPost, "/v1/tx", nil)
	b.Header.Set("X-Real-IP", "10.0.0.9")

	if code := serve(tx, a); code != http.StatusOK {
		t.Fatalf("client a: got %d", code)
	}
	if code := serve(tx, b); code != http.StatusOK {
		t.Fatalf("client b should have its own bucket, got %d", code)
	}
	if code := serve(reads, a); code != http.StatusOK {
		t.Fatalf("reads should have their own bucket, got %d", code)
	}
	if code := serve(tx, a); code != http.StatusTooManyRequests {
		t.Fatalf("client a should be limited on tx, got %d", code)
	}
}

func TestRateLimiterIgnoresUnknownKeys(t *testing.T) {
	limiter := NewRateLimiter(nil, nil)
	handler := limiter.Middleware("missing")(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for i := 0; i < 5; i++ {
		if code := serve(handler, req); code != http.StatusOK {
			t.Fatalf("unexpected %d", code)
		}
	}
}
