// Package ratelimit throttles requests per client IP with a token bucket
// per client. A bucket holds RequestsPerMinute tokens and refills at the
// same rate, so a client that has been idle for a minute can burst again.
package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const staleAfter = 10 * time.Minute

type Config struct {
	RequestsPerMinute int
	CleanupInterval   time.Duration
	// Methods limits throttling to these HTTP methods; empty means all.
	Methods []string
}

// DefaultConfig throttles uploads and predictions, leaving reads unlimited.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		CleanupInterval:   5 * time.Minute,
		Methods:           []string{http.MethodPost},
	}
}

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// Limiter tracks one bucket per client and forgets clients idle for more
// than ten minutes.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	perSec   rate.Limit
	burst    int
	interval time.Duration
	now      func() time.Time
	rejected atomic.Int64
	stop     chan struct{}
	stopOnce sync.Once
}

// NewLimiter starts the idle-client sweep; Stop ends it.
func NewLimiter(config Config) *Limiter {
	defaults := DefaultConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = defaults.RequestsPerMinute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}

	rl := &Limiter{
		buckets:  map[string]*bucket{},
		perSec:   rate.Limit(float64(config.RequestsPerMinute) / 60),
		burst:    config.RequestsPerMinute,
		interval: config.CleanupInterval,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

func (rl *Limiter) bucketFor(clientIP string, at time.Time) *bucket {
	b, ok := rl.buckets[clientIP]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.perSec, rl.burst)}
		rl.buckets[clientIP] = b
	}
	b.seen = at
	return b
}

// Allow takes a token from clientIP's bucket. Rejected requests take
// nothing, so a client retrying in a loop still recovers at the refill rate.
func (rl *Limiter) Allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	at := rl.now()
	if rl.bucketFor(clientIP, at).limiter.AllowN(at, 1) {
		return true
	}
	rl.rejected.Add(1)
	return false
}

// retryAfter is the whole number of seconds until clientIP has a token.
func (rl *Limiter) retryAfter(clientIP string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[clientIP]
	if !ok {
		return 0
	}
	missing := 1 - b.limiter.TokensAt(rl.now())
	if missing <= 0 {
		return 1
	}
	secs := math.Ceil(missing/float64(rl.perSec) - 1e-9)
	return max(int(secs), 1)
}

func (rl *Limiter) sweep() {
	ticker := time.NewTicker(rl.interval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.cleanupStaleEntries()
		}
	}
}

func (rl *Limiter) cleanupStaleEntries() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-staleAfter)
	removed := 0
	for ip, b := range rl.buckets {
		if b.seen.Before(cutoff) {
			delete(rl.buckets, ip)
			removed++
		}
	}
	return removed
}

func (rl *Limiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

func (rl *Limiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

type Metrics struct {
	TotalHits   int64
	ClientCount int64
}

// GetMetrics reports rejected requests so far and clients being tracked.
func (rl *Limiter) GetMetrics() Metrics {
	return Metrics{
		TotalHits:   rl.rejected.Load(),
		ClientCount: int64(rl.ActiveClients()),
	}
}

// Middleware throttles requests whose method is in methods (all methods when
// empty). onLimit writes the rejection; nil writes a plain 429. Either way
// Retry-After is set first.
func (rl *Limiter) Middleware(extractIP func(*http.Request) string, methods []string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	limited := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		limited[m] = struct{}{}
	}
	applies := func(method string) bool {
		if len(limited) == 0 {
			return true
		}
		_, ok := limited[method]
		return ok
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !applies(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			ip := extractIP(r)
			if rl.Allow(ip) {
				next.ServeHTTP(w, r)
				return
			}

			slog.WarnContext(r.Context(), "Rate limit exceeded",
				"component", "rate_limit",
				"client_ip", ip,
				"method", r.Method,
				"path", r.URL.Path)
			w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter(ip)))
			if onLimit == nil {
				http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				return
			}
			onLimit(w, r)
		})
	}
}
