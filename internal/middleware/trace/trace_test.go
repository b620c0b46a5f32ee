package trace

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	applog "penny/internal/log"
)

func bufferLogger(buf *bytes.Buffer) *applog.Logger {
	return applog.New(applog.Config{
		Component: applog.ComponentHTTP,
		Handler:   slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequestID(t *testing.T) {
	m := NewMiddleware(bufferLogger(&bytes.Buffer{}), nil)
	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
	if _, err := uuid.Parse(seen); err != nil {
		t.Fatalf("request id %q is not a UUID", seen)
	}
	if rec.Header().Get(HeaderRequestID) != seen {
		t.Fatalf("response header %q, context id %q", rec.Header().Get(HeaderRequestID), seen)
	}

	upstream := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, upstream)
	serve(h, req)
	if seen != upstream {
		t.Errorf("upstream id %q not kept, got %q", upstream, seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "<script>")
	serve(h, req)
	if seen == "<script>" {
		t.Error("malformed upstream id must be replaced")
	}
}

func TestHandlersGetRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	h := NewMiddleware(bufferLogger(&buf), nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).Info("inside handler")
	}))
	rec := serve(h, httptest.NewRequest(http.MethodPost, "/chat", nil))

	id := rec.Header().Get(HeaderRequestID)
	if !hasLine(buf.String(), "inside handler", "component=http", "request_id="+id, "path=/chat", "method=POST") {
		t.Errorf("handler line lacks request attributes:\n%s", buf.String())
	}
}

func TestCompletionLevels(t *testing.T) {
	var buf bytes.Buffer
	m := NewMiddleware(bufferLogger(&buf), func(*http.Request) string { return "10.0.0.9" }, "/healthz")
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/goals":
			http.NotFound(w, r)
		case "/boom":
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))

	serve(h, httptest.NewRequest(http.MethodGet, "/goals?id=x", nil))
	serve(h, httptest.NewRequest(http.MethodGet, "/boom", nil))
	serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	out := buf.String()
	for _, want := range [][]string{
		{"level=WARN", `msg="HTTP request completed"`, "component=trace", "status_code=404"},
		{"level=INFO", `msg="HTTP request started"`, "client_ip=10.0.0.9", `query="id=x"`},
		{"level=ERROR", `msg="HTTP request completed"`, "path=/boom"},
		{"level=DEBUG", `msg="HTTP request completed"`, "path=/healthz"},
	} {
		if !hasLine(out, want...) {
			t.Errorf("no line with %q in:\n%s", want, out)
		}
	}

	got := m.GetMetrics()
	if got.TotalRequests != 3 || got.FailedRequests != 1 || got.AverageResponseTime < 0 {
		t.Fatalf("metrics = %+v, want 3 total and 1 failed", got)
	}
}

func hasLine(out string, parts ...string) bool {
	for _, line := range strings.Split(out, "\n") {
		ok := true
		for _, p := range parts {
			if !strings.Contains(line, p) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func TestStatusRecorderKeepsFirstStatus(t *testing.T) {
	rw := &statusRecorder{ResponseWriter: httptest.NewRecorder(), status: http.StatusOK}
	_, _ = rw.Write([]byte("body"))
	rw.WriteHeader(http.StatusInternalServerError)
	if rw.status != http.StatusOK {
		t.Fatalf("status after implicit 200 = %d", rw.status)
	}
}
