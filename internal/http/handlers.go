package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	applog "penny/internal/log"
)

type probeReport struct {
	Status    string         `json:"status"`
	Timestamp string         `json:"timestamp"`
	Uptime    string         `json:"uptime,omitempty"`
	Checks    map[string]any `json:"checks,omitempty"`
}

func writeProbe(w http.ResponseWriter, code int, rep probeReport) {
	rep.Timestamp = time.Now().UTC().Format(time.RFC3339)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(rep)
}

// handleHealth answers as long as the process serves requests.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeProbe(w, http.StatusOK, probeReport{Status: "ok", Uptime: s.uptime().Round(time.Second).String()})
}

// handleReady fails while templates are missing or the store is unreachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), storeTimeout)
	defer cancel()

	ready := true
	verdict := func(ok bool, failure string) string {
		if ok {
			return "ok"
		}
		ready = false
		return failure
	}

	checks := map[string]any{
		"templates":    verdict(s.templates != nil, "templates not loaded"),
		"export":       map[string]any{"publishing": s.publishing},
		"sessions":     map[string]any{"active": s.sessions.Len()},
		"rate_limiter": map[string]any{"active_clients": s.limiter.ActiveClients()},
	}
	switch {
	case s.store == nil:
		checks["store"] = verdict(false, "not configured")
	default:
		err := s.store.Ping(ctx)
		if err != nil {
			applog.FromContext(ctx).WarnContext(ctx, "Store unreachable", applog.FieldError, err)
			checks["store"] = verdict(false, err.Error())
		} else {
			checks["store"] = verdict(true, "")
		}
	}

	if ready {
		writeProbe(w, http.StatusOK, probeReport{Status: "ready", Checks: checks})
		return
	}
	writeProbe(w, http.StatusServiceUnavailable, probeReport{Status: "not_ready", Checks: checks})
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	sec, limits, reqs := s.detector.GetMetrics(), s.limiter.GetMetrics(), s.tracer.GetMetrics()
	graphStats := s.graphs.Stats()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total number of HTTP requests", reqs.TotalRequests)
	metric("http_requests_failed_total", "counter", "HTTP requests answered with 5xx", reqs.FailedRequests)
	metric("http_response_time_avg_us", "gauge", "Average response time in microseconds", reqs.AverageResponseTime)
	metric("chat_turns_total", "counter", "Chat messages answered", s.chatTurns.Load())
	metric("budget_saves_total", "counter", "Budgets saved", s.budgetSaves.Load())
	metric("goal_changes_total", "counter", "Goals created, edited, deleted or contributed to", s.goalChanges.Load())
	metric("graph_cache_hits_total", "counter", "Breakdown cache hits", graphStats.Hits)
	metric("graph_cache_misses_total", "counter", "Breakdown cache misses", graphStats.Misses)
	metric("graph_cache_evictions_total", "counter", "Breakdowns evicted for capacity", graphStats.Evictions)
	metric("sessions_active", "gauge", "Live sessions", s.sessions.Len())
	metric("rate_limit_hits_total", "counter", "Requests rejected by the rate limiter", limits.TotalHits)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", limits.ClientCount)
	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", sec.SuspiciousRequests)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", int64(s.uptime().Seconds()))
}

// handleIndex shows the welcome page, or sends logged-in users to the chat.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	st, isNew := s.sessions.Load(r)
	if st.LoggedIn() {
		redirect(w, r, "/chat")
		return
	}
	if isNew {
		s.sessions.Save(w, st)
	}
	data := struct {
		navData
		Personas []string
	}{navData: s.nav(r.Context(), st, "Welcome", "home")}
	for _, p := range s.assistant.Catalog().Names() {
		data.Personas = append(data.Personas, string(p))
	}
	s.render(w, r, http.StatusOK, "welcome.html", "", data)
}
