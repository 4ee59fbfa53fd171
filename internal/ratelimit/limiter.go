package ratelimit

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Bucket defines rate limit parameters.
type Bucket struct {
	MaxRequests int
	Window      time.Duration
}

// DefaultBuckets are the per-IP limits for each route group.
var DefaultBuckets = map[string]Bucket{
	"scan":  {MaxRequests: 60, Window: time.Minute},
	"batch": {MaxRequests: 10, Window: time.Minute},
	"auth":  {MaxRequests: 10, Window: time.Minute},
	"api":   {MaxRequests: 120, Window: time.Minute},
}

var fallbackBucket = Bucket{MaxRequests: 60, Window: time.Minute}

// Limiter is an in-memory sliding-window rate limiter per key.
type Limiter struct {
	mu      sync.Mutex
	hits    map[string][]time.Time
	buckets map[string]Bucket
	now     func() time.Time
}

// New creates a limiter using DefaultBuckets.
func New() *Limiter {
	return NewWithBuckets(DefaultBuckets)
}

// NewWithBuckets creates a limiter with custom buckets.
func NewWithBuckets(buckets map[string]Bucket) *Limiter {
	return &Limiter{hits: make(map[string][]time.Time), buckets: buckets, now: time.Now}
}

// Allow checks if a request identified by key is within the rate limit for the
// given bucket. Returns true if allowed.
func (l *Limiter) Allow(key string, bucket Bucket) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	pruned := prune(l.hits[key], now.Add(-bucket.Window))

	if len(pruned) >= bucket.MaxRequests {
		l.hits[key] = pruned
		return false
	}

	l.hits[key] = append(pruned, now)
	return true
}

// AllowRequest charges one hit against the named bucket for the client IP of
// r. Messages on a long-lived connection call it with the upgrade request so
// they share the IP's budget with plain HTTP calls. On rejection it returns
// the bucket window as the retry delay.
func (l *Limiter) AllowRequest(r *http.Request, bucketName string) (bool, time.Duration) {
	bucket, ok := l.buckets[bucketName]
	if !ok {
		bucket = fallbackBucket
	}
	if l.Allow(bucketName+":"+clientIP(r), bucket) {
		return true, 0
	}
	return false, bucket.Window
}

// Check writes a 429 JSON response if the client IP is over the named
// bucket's limit. Returns true if the request was rejected.
func (l *Limiter) Check(w http.ResponseWriter, r *http.Request, bucketName string) bool {
	allowed, window := l.AllowRequest(r, bucketName)
	if allowed {
		return false
	}

	retry := strconv.Itoa(int(window.Seconds()))
	w.Header().Set("Retry-After", retry)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"Rate limited","retry_after_seconds":` + retry + `}`))
	return true
}

// Middleware applies the named bucket to every request it wraps.
func (l *Limiter) Middleware(bucketName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.Check(w, r, bucketName) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CleanupLoop drops idle keys every interval so the map does not grow unbounded.
func (l *Limiter) CleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	var longest time.Duration
	for _, b := range l.buckets {
		if b.Window > longest {
			longest = b.Window
		}
	}
	if fallbackBucket.Window > longest {
		longest = fallbackBucket.Window
	}
	cutoff := l.now().Add(-longest)
	for key, times := range l.hits {
		if kept := prune(times, cutoff); len(kept) == 0 {
			delete(l.hits, key)
		} else {
			l.hits[key] = kept
		}
	}
}

func prune(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}

// clientIP relies on chi's RealIP middleware having rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
