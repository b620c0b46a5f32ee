package security

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HeadersConfig lists the response headers Penny sends on every page.
// Empty values are not sent.
type HeadersConfig struct {
	// CSP directives, joined with "; ".
	CSP []string

	// HSTS is only sent over TLS.
	HSTSMaxAge            time.Duration
	HSTSIncludeSubdomains bool
	HSTSPreload           bool

	FrameOptions       string
	ContentTypeOptions string
	ReferrerPolicy     string
	PermissionsPolicy  string
	OpenerPolicy       string
	EmbedderPolicy     string
	ResourcePolicy     string
}

// DefaultHeadersConfig allows htmx from unpkg and inline styles for the
// progress bars; everything else is same-origin.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		CSP: []string{
			"default-src 'self'",
			"script-src 'self' https://unpkg.com",
			"style-src 'self' 'unsafe-inline'",
			"img-src 'self' data:",
			"connect-src 'self'",
			"object-src 'none'",
			"frame-ancestors 'none'",
			"base-uri 'self'",
			"form-action 'self'",
		},
		HSTSMaxAge:            365 * 24 * time.Hour,
		HSTSIncludeSubdomains: true,
		FrameOptions:          "DENY",
		ContentTypeOptions:    "nosniff",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		PermissionsPolicy:     "geolocation=(), microphone=(), camera=(), payment=()",
		OpenerPolicy:          "same-origin",
		ResourcePolicy:        "same-origin",
	}
}

// HeadersMiddleware copies a fixed header set onto each response.
type HeadersMiddleware struct {
	static http.Header
	hsts   string
}

func NewHeadersMiddleware(cfg HeadersConfig) *HeadersMiddleware {
	h := http.Header{}
	for name, value := range map[string]string{
		"Content-Security-Policy":      strings.Join(cfg.CSP, "; "),
		"X-Content-Type-Options":       cfg.ContentTypeOptions,
		"X-Frame-Options":              cfg.FrameOptions,
		"Referrer-Policy":              cfg.ReferrerPolicy,
		"Permissions-Policy":           cfg.PermissionsPolicy,
		"Cross-Origin-Opener-Policy":   cfg.OpenerPolicy,
		"Cross-Origin-Embedder-Policy": cfg.EmbedderPolicy,
		"Cross-Origin-Resource-Policy": cfg.ResourcePolicy,
	} {
		if value != "" {
			h.Set(name, value)
		}
	}
	return &HeadersMiddleware{static: h, hsts: hstsValue(cfg)}
}

func hstsValue(cfg HeadersConfig) string {
	secs := int64(cfg.HSTSMaxAge / time.Second)
	if secs <= 0 {
		return ""
	}
	parts := []string{"max-age=" + strconv.FormatInt(secs, 10)}
	if cfg.HSTSIncludeSubdomains {
		parts = append(parts, "includeSubDomains")
	}
	if cfg.HSTSPreload {
		parts = append(parts, "preload")
	}
	return strings.Join(parts, "; ")
}

func (m *HeadersMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dst := w.Header()
		for name, values := range m.static {
			dst[name] = values
		}
		if r.TLS != nil && m.hsts != "" {
			dst.Set("Strict-Transport-Security", m.hsts)
		}
		next.ServeHTTP(w, r)
	})
}

// StaticAssetMiddleware marks responses cacheable for maxAge seconds.
func StaticAssetMiddleware(maxAge int) func(http.Handler) http.Handler {
	cacheControl := "public, max-age=" + strconv.Itoa(maxAge)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxAge > 0 {
				w.Header().Set("Cache-Control", cacheControl)
			}
			next.ServeHTTP(w, r)
		})
	}
}
