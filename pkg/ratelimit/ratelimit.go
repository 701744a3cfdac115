package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// Limiter is a fixed-window request counter keyed by client IP.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	max     int           // requests per window
	per     time.Duration // window size
}

type bucket struct {
	ts     time.Time // window start
	tokens int       // remaining requests
}

// New creates a limiter allowing max requests per window and IP.
func New(max int, per time.Duration) *Limiter {
	return &Limiter{buckets: map[string]*bucket{}, max: max, per: per}
}

// Allow consumes one request for key, reporting whether it fits in the
// current window.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.buckets[key]
	if b == nil || time.Since(b.ts) > l.per {
		l.sweep()
		b = &bucket{ts: time.Now(), tokens: l.max}
		l.buckets[key] = b
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// sweep drops expired buckets so the map doesn't grow with every IP ever
// seen. Caller holds l.mu.
func (l *Limiter) sweep() {
	for k, b := range l.buckets {
		if time.Since(b.ts) > l.per {
			delete(l.buckets, k)
		}
	}
}

// Middleware enforces the limit before calling the next handler.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ip, _, err := net.SplitHostPort(req.RemoteAddr)
		if err != nil {
			ip = req.RemoteAddr
		}
		if !l.Allow(ip) {
			http.Error(w, "rate limit", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, req)
	})
}
