// Package security resolves client addresses, flags probing requests and sets
// response hardening headers.
package security

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync/atomic"

	applog "penny/internal/log"
)

const maxURLLength = 2048

// probeFragments are matched against the lowercased path and query.
var probeFragments = []string{
	"../", "..\\", ".env", ".git", ".ssh",
	"wp-admin", "wp-login", "phpmyadmin", "admin.php", "config.php",
	"etc/passwd", "cmd.exe",
	"eval(", "javascript:", "<script", "union select",
}

var scannerAgents = []string{"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab"}

var probeMethods = map[string]bool{"TRACE": true, "TRACK": true, "DEBUG": true, "CONNECT": true}

// defaultProxies are the peers whose forwarding headers are believed.
var defaultProxies = []netip.Prefix{
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::1/128"),
}

type DetectionMetrics struct {
	SuspiciousRequests int64
	InvalidIPAttempts  int64 // unparseable peer or forwarding header values
}

// Detector flags probing requests and resolves the client address behind
// local proxies.
type Detector struct {
	proxies    []netip.Prefix
	suspicious atomic.Int64
	invalidIP  atomic.Int64
}

func NewDetector() *Detector {
	return &Detector{proxies: defaultProxies}
}

// Inspect returns a short reason when the request looks like probing, or "".
func (d *Detector) Inspect(r *http.Request) string {
	reason := inspect(r)
	if reason != "" {
		d.suspicious.Add(1)
	}
	return reason
}

func inspect(r *http.Request) string {
	path := strings.ToLower(r.URL.Path)
	query := strings.ToLower(r.URL.RawQuery)
	for _, frag := range probeFragments {
		switch {
		case strings.Contains(path, frag):
			return "path:" + frag
		case strings.Contains(query, frag):
			return "query:" + frag
		}
	}

	ua := strings.ToLower(r.UserAgent())
	for _, agent := range scannerAgents {
		if strings.Contains(ua, agent) {
			return "agent:" + agent
		}
	}

	switch {
	case probeMethods[r.Method]:
		return "method:" + r.Method
	case len(r.URL.String()) > maxURLLength:
		return "url_length"
	case strings.Count(r.Header.Get("X-Forwarded-For"), ",") > 5:
		return "forwarded_hops"
	}
	return ""
}

// ExtractClientIP returns the caller's address. X-Forwarded-For and then
// X-Real-IP are honoured only when the direct peer is a trusted proxy.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(peer)
	if err != nil {
		d.invalidIP.Add(1)
		return peer
	}
	if !d.trusted(addr.Unmap()) {
		return peer
	}

	first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
	for _, candidate := range []string{first, r.Header.Get("X-Real-IP")} {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if _, err := netip.ParseAddr(candidate); err == nil {
			return candidate
		}
		d.invalidIP.Add(1)
	}
	return peer
}

func (d *Detector) trusted(addr netip.Addr) bool {
	for _, p := range d.proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{
		SuspiciousRequests: d.suspicious.Load(),
		InvalidIPAttempts:  d.invalidIP.Load(),
	}
}

// Middleware logs suspicious requests with the request's logger. When block
// is true they are answered with 404 instead of reaching the application.
func (d *Detector) Middleware(block bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reason := d.Inspect(r)
			if reason == "" {
				next.ServeHTTP(w, r)
				return
			}
			applog.FromContext(r.Context()).WithComponent(applog.ComponentSecurity).WarnContext(r.Context(),
				"Suspicious request",
				"reason", reason,
				applog.FieldClientIP, d.ExtractClientIP(r),
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path,
				"blocked", block)
			if block {
				http.NotFound(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
