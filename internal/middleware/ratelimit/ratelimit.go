// Package ratelimit caps requests per client IP in fixed one-minute windows.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	applog "penny/internal/log"
)

const window = time.Minute

type Config struct {
	RequestsPerMinute int
	CleanupInterval   time.Duration
	// IdleAfter is how long a client may stay silent before it is forgotten.
	IdleAfter time.Duration
	// ExemptPrefixes are path prefixes never limited, such as health probes.
	ExemptPrefixes []string
	Logger         *applog.Logger
}

func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		CleanupInterval:   5 * time.Minute,
		IdleAfter:         10 * time.Minute,
		ExemptPrefixes:    []string{"/healthz", "/readyz", "/static/"},
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = def.RequestsPerMinute
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = def.CleanupInterval
	}
	if c.IdleAfter <= 0 {
		c.IdleAfter = def.IdleAfter
	}
	if c.ExemptPrefixes == nil {
		c.ExemptPrefixes = def.ExemptPrefixes
	}
	if c.Logger == nil {
		c.Logger = applog.New(applog.DefaultConfig())
	}
	c.Logger = c.Logger.WithComponent(applog.ComponentRateLimit)
	return c
}

// bucket counts one client's requests in its current window.
type bucket struct {
	start time.Time
	seen  time.Time
	count int
}

// Limiter tracks a bucket per client. A background sweep forgets idle
// clients until Stop is called.
type Limiter struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	rejected atomic.Int64
	done     chan struct{}
	stop     sync.Once
}

func NewLimiter(cfg Config) *Limiter {
	l := &Limiter{
		cfg:     cfg.withDefaults(),
		now:     time.Now,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// Allow counts a request from ip and reports whether it fits the window.
func (l *Limiter) Allow(ip string) bool {
	ok, _ := l.take(ip)
	return ok
}

// take is Allow that also returns how long until the client's window resets.
func (l *Limiter) take(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b := l.buckets[ip]
	if b == nil || now.Sub(b.start) >= window {
		b = &bucket{start: now}
		l.buckets[ip] = b
	}
	b.seen = now
	b.count++
	if b.count <= l.cfg.RequestsPerMinute {
		return true, 0
	}
	l.rejected.Add(1)
	return false, b.start.Add(window).Sub(now)
}

func (l *Limiter) exempt(path string) bool {
	for _, p := range l.cfg.ExemptPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func (l *Limiter) sweepLoop() {
	t := time.NewTicker(l.cfg.CleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-t.C:
			if n := l.sweep(); n > 0 {
				l.cfg.Logger.Debug("Forgot idle clients", "count", n)
			}
		}
	}
}

// sweep drops clients idle longer than IdleAfter and returns how many went.
func (l *Limiter) sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.cfg.IdleAfter)
	n := 0
	for ip, b := range l.buckets {
		if b.seen.Before(cutoff) {
			delete(l.buckets, ip)
			n++
		}
	}
	return n
}

func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Stop ends the sweep goroutine. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stop.Do(func() { close(l.done) })
}

type Metrics struct {
	TotalHits   int64 // rejected requests
	ClientCount int64
}

func (l *Limiter) GetMetrics() Metrics {
	return Metrics{
		TotalHits:   l.rejected.Load(),
		ClientCount: int64(l.ActiveClients()),
	}
}

// Middleware rejects over-limit requests with 429 and a Retry-After header.
// onLimit writes the body; nil means a plain text message.
func (l *Limiter) Middleware(clientIP func(*http.Request) string, onLimit func(http.ResponseWriter, *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l.exempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			ip := clientIP(r)
			ok, wait := l.take(ip)
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			l.cfg.Logger.WarnContext(r.Context(), "Rate limit exceeded",
				applog.FieldClientIP, ip, applog.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			if onLimit != nil {
				onLimit(w, r)
				return
			}
			http.Error(w, "Too many requests. Please slow down and try again in a minute.", http.StatusTooManyRequests)
		})
	}
}
