package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(r *http.Request) string

// ByClientIP counts requests per client address.
func ByClientIP(r *http.Request) string { return "ip:" + ClientIP(r) }

// ByUserOrIP counts authenticated requests per user and the rest per address.
func ByUserOrIP(r *http.Request) string {
	if id := UserIDFromContext(r.Context()); id != "" {
		return "user:" + id
	}
	return ByClientIP(r)
}

type window struct {
	count int
	until time.Time
}

// Limiter is a fixed-window request counter.
type Limiter struct {
	limit int
	per   time.Duration
	key   KeyFunc
	now   func() time.Time

	mu        sync.Mutex
	windows   map[string]*window
	lastSweep time.Time
}

// NewLimiter allows limit requests per key in every window of length per.
// A non-positive limit admits everything.
func NewLimiter(limit int, per time.Duration, key KeyFunc) *Limiter {
	if key == nil {
		key = ByClientIP
	}
	return &Limiter{limit: limit, per: per, key: key, now: time.Now, windows: map[string]*window{}}
}

// Allow counts one request for key and reports the wait when it is over the
// limit.
func (l *Limiter) Allow(key string) (bool, time.Duration) {
	if l.limit <= 0 {
		return true, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastSweep) > l.per {
		for k, w := range l.windows {
			if now.After(w.until) {
				delete(l.windows, k)
			}
		}
		l.lastSweep = now
	}
	w, ok := l.windows[key]
	if !ok || now.After(w.until) {
		w = &window{until: now.Add(l.per)}
		l.windows[key] = w
	}
	if w.count >= l.limit {
		return false, w.until.Sub(now)
	}
	w.count++
	return true, 0
}

// Middleware rejects over-limit requests with 429 and Retry-After. onError
// writes the body when set.
func (l *Limiter) Middleware(onError ErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l.limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := l.Allow(l.key(r))
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				if onError != nil {
					onError(w, r, http.StatusTooManyRequests, "rate_limited")
					return
				}
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit limits per client IP with an empty 429 body.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	return NewLimiter(limit, per, ByClientIP).Middleware(nil)
}
