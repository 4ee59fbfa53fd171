package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAllowRejectsAfterBucketFull(t *testing.T) {
	l := New()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	b := Bucket{MaxRequests: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		if !l.Allow("k", b) {
			t.Fatalf("request %d rejected", i+1)
		}
	}
	if l.Allow("k", b) {
		t.Fatal("fourth request should be rejected")
	}
	if !l.Allow("other", b) {
		t.Fatal("keys must be independent")
	}

	now = now.Add(61 * time.Second)
	if !l.Allow("k", b) {
		t.Fatal("window should have slid")
	}
}

func TestMiddlewareWrites429(t *testing.T) {
	l := NewWithBuckets(map[string]Bucket{"auth": {MaxRequests: 2, Window: 30 * time.Second}})
	h := l.Middleware("auth")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	// Same IP, different source ports share a bucket.
	do("198.51.100.1:1000")
	do("198.51.100.1:1001")
	rec := do("198.51.100.1:1002")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "30" {
		t.Fatalf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	if want := `{"error":"Rate limited","retry_after_seconds":30}`; rec.Body.String() != want {
		t.Fatalf("body = %s", rec.Body)
	}
	if rec := do("198.51.100.2:1000"); rec.Code != http.StatusNoContent {
		t.Fatalf("other ip status = %d", rec.Code)
	}
}

func TestSweepDropsIdleKeys(t *testing.T) {
	l := New()
	now := time.Now()
	l.now = func() time.Time { return now }
	l.Allow("scan:1.2.3.4", DefaultBuckets["scan"])

	now = now.Add(2 * time.Minute)
	l.sweep()
	if len(l.hits) != 0 {
		t.Fatalf("hits = %v, want empty", l.hits)
	}
}

func TestAllowRequestSharesBudgetWithMiddleware(t *testing.T) {
	l := NewWithBuckets(map[string]Bucket{"scan": {MaxRequests: 2, Window: time.Minute}})
	r := httptest.NewRequest(http.MethodGet, "/ws/scan", nil)
	r.RemoteAddr = "203.0.113.9:5555"

	if l.Check(httptest.NewRecorder(), r, "scan") {
		t.Fatal("first request rejected")
	}
	if ok, _ := l.AllowRequest(r, "scan"); !ok {
		t.Fatal("second hit rejected")
	}
	ok, retry := l.AllowRequest(r, "scan")
	if ok || retry != time.Minute {
		t.Fatalf("third hit = %v, %v; want rejected with 1m retry", ok, retry)
	}
}
