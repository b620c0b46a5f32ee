// Package trace tags every request with an id, hands handlers a logger
// carrying it, and logs each request's start and end.
package trace

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	applog "penny/internal/log"
)

// HeaderRequestID carries the id in both directions. An incoming UUID is
// kept so ids line up with an upstream proxy.
const HeaderRequestID = "X-Request-ID"

type requestIDKey struct{}

type Metrics struct {
	TotalRequests       int64
	FailedRequests      int64 // 5xx responses
	AverageResponseTime int64 // microseconds
}

// Middleware is the outermost handler wrapper.
type Middleware struct {
	logger   *applog.Logger
	clientIP func(*http.Request) string
	quiet    map[string]bool

	total    atomic.Int64
	failed   atomic.Int64
	busyUsec atomic.Int64
}

// NewMiddleware logs through logger. Requests to quietPaths, such as health
// probes, are logged at debug level unless they fail.
func NewMiddleware(logger *applog.Logger, clientIP func(*http.Request) string, quietPaths ...string) *Middleware {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	if clientIP == nil {
		clientIP = func(r *http.Request) string { return r.RemoteAddr }
	}
	m := &Middleware{logger: logger, clientIP: clientIP, quiet: make(map[string]bool, len(quietPaths))}
	for _, p := range quietPaths {
		m.quiet[p] = true
	}
	return m
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := requestID(r)
		w.Header().Set(HeaderRequestID, id)

		reqLogger := m.logger.With(
			applog.FieldRequestID, id,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
		)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		ctx = applog.NewContext(ctx, reqLogger)
		r = r.WithContext(ctx)

		traceLog := reqLogger.WithComponent(applog.ComponentTrace)
		quiet := m.quiet[r.URL.Path]
		started := applog.NewFields().
			WithRequestMeta(r.URL.RawQuery, r.UserAgent(), r.Referer()).
			WithClientIP(m.clientIP(r))
		traceLog.Log(ctx, pick(quiet, slog.LevelDebug, slog.LevelInfo), "HTTP request started", started.ToSlice()...)

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		elapsed := time.Since(start)
		m.total.Add(1)
		m.busyUsec.Add(elapsed.Microseconds())
		if rw.status >= 500 {
			m.failed.Add(1)
		}
		done := applog.NewFields().WithHTTPResponse(rw.status, elapsed.Milliseconds())
		traceLog.Log(ctx, completionLevel(rw.status, quiet), "HTTP request completed", done.ToSlice()...)
	})
}

func completionLevel(status int, quiet bool) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	}
	return pick(quiet, slog.LevelDebug, slog.LevelInfo)
}

func pick(cond bool, a, b slog.Level) slog.Level {
	if cond {
		return a
	}
	return b
}

func requestID(r *http.Request) string {
	if in := r.Header.Get(HeaderRequestID); in != "" {
		if u, err := uuid.Parse(in); err == nil {
			return u.String()
		}
	}
	return uuid.NewString()
}

// statusRecorder remembers the first status written.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status, s.wroteHeader = code, true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}

// GetRequestID returns the id Middleware stored in ctx, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (m *Middleware) GetMetrics() Metrics {
	total := m.total.Load()
	var avg int64
	if total > 0 {
		avg = m.busyUsec.Load() / total
	}
	return Metrics{TotalRequests: total, FailedRequests: m.failed.Load(), AverageResponseTime: avg}
}
