package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(t *testing.T, h http.Handler, path, remote string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitRejectsAfterBurst(t *testing.T) {
	h := RateLimit(0.5, 2, okHandler())

	for i := 0; i < 2; i++ {
		if rec := requestFrom(t, h, "/v1/global/k", "10.0.0.1:5000"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
	}
	rec := requestFrom(t, h, "/v1/global/k", "10.0.0.1:5001")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Errorf("Retry-After = %q, want 2", got)
	}

	// Another client has its own bucket.
	if rec := requestFrom(t, h, "/v1/global/k", "10.0.0.2:5000"); rec.Code != http.StatusOK {
		t.Errorf("second client status %d", rec.Code)
	}
}

func TestRateLimitExemptsHealth(t *testing.T) {
	h := RateLimit(0.1, 1, okHandler())
	requestFrom(t, h, "/v1/entries", "10.0.0.1:1")
	for i := 0; i < 5; i++ {
		if rec := requestFrom(t, h, "/v1/health", "10.0.0.1:1"); rec.Code != http.StatusOK {
			t.Fatalf("health status %d", rec.Code)
		}
	}
}

func TestRateLimitDisabled(t *testing.T) {
	next := okHandler()
	if h := RateLimit(0, 5, next); h == nil {
		t.Fatal("nil handler")
	}
	h := RateLimit(0, 0, next)
	for i := 0; i < 50; i++ {
		if rec := requestFrom(t, h, "/v1/entries", "10.0.0.1:1"); rec.Code != http.StatusOK {
			t.Fatalf("request %d limited with rate 0", i)
		}
	}
}

func TestClientLimiterSweepsIdleBuckets(t *testing.T) {
	l := newClientLimiter(1, 1)
	start := time.Now()
	l.reserve("a", start)
	l.reserve("b", start)
	l.reserve("c", start.Add(2*idleBucketTTL))
	if len(l.buckets) != 1 {
		t.Errorf("buckets = %d, want only the fresh one", len(l.buckets))
	}
	if wait := l.reserve("c", start.Add(2*idleBucketTTL)); wait <= 0 {
		t.Error("second immediate request should wait")
	}
}
