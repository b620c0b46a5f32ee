package http

import (
	"context"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"penny/internal/assistant"
	"penny/internal/cache"
	applog "penny/internal/log"
	"penny/internal/middleware/ratelimit"
	"penny/internal/middleware/security"
	"penny/internal/middleware/trace"
	"penny/internal/render"
	"penny/internal/session"
	"penny/internal/store"
	appweb "penny/web"
)

const (
	// storeTimeout bounds every store call made while serving a page.
	storeTimeout = 5 * time.Second

	graphCacheSize = 500
	graphCacheTTL  = 10 * time.Minute
)

// Options carries the server's collaborators. Store and Assistant are required.
type Options struct {
	Addr      string
	Store     store.Store
	Assistant *assistant.Assistant
	// Sessions defaults to 1000 sessions idling out after 12 hours.
	Sessions *session.Manager
	Markdown *render.Markdown
	Logger   *applog.Logger

	RateLimitPerMinute int
	// Publishing reports whether changes are announced to the export queue.
	Publishing bool
}

// Server is the web front end.
type Server struct {
	http.Server
	templates  *template.Template
	store      store.Store
	assistant  *assistant.Assistant
	sessions   *session.Manager
	markdown   *render.Markdown
	logger     *applog.Logger
	events     *applog.StructuredLogger
	publishing bool

	caches *cache.Manager
	graphs *cache.LRUCache[graphView]
	loads  singleflight.Group
	// bumped per user on budget save; a load only caches if it still matches
	graphGenMu sync.Mutex
	graphGen   map[string]uint64

	detector *security.Detector
	limiter  *ratelimit.Limiter
	tracer   *trace.Middleware

	started      time.Time
	chatTurns    atomic.Int64
	budgetSaves  atomic.Int64
	goalChanges  atomic.Int64
	shutdownOnce sync.Once
}

// NewServer configures routes, templates and middleware. Templates that fail
// to parse are logged; pages then answer 500 while health checks keep working.
func NewServer(opts Options) *Server {
	if opts.Sessions == nil {
		opts.Sessions = session.NewManager(1000, 12*time.Hour, false)
	}
	if opts.Markdown == nil {
		opts.Markdown = render.NewMarkdown()
	}
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.Assistant == nil {
		opts.Assistant = assistant.New(nil, nil, assistant.Config{})
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			// generation calls can take a while
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		store:      opts.Store,
		assistant:  opts.Assistant,
		sessions:   opts.Sessions,
		markdown:   opts.Markdown,
		logger:     opts.Logger.WithComponent(applog.ComponentHTTP),
		publishing: opts.Publishing,
		caches:     cache.NewManager(opts.Logger),
		graphs:     cache.NewLRUCache[graphView](graphCacheSize, graphCacheTTL),
		graphGen:   make(map[string]uint64),
		detector:   security.NewDetector(),
		started:    time.Now(),
	}
	s.events = applog.NewStructuredLogger(s.logger)
	s.limiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute, Logger: s.logger})
	s.tracer = trace.NewMiddleware(s.logger, s.detector.ExtractClientIP, "/healthz", "/readyz")

	s.caches.Register("sessions", s.sessions.Cleaner())
	s.caches.Register("graphs", s.graphs)
	s.caches.StartCleanup(5 * time.Minute)

	t, err := template.New("").Funcs(s.templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Error("Failed parsing templates", applog.FieldError, err,
			"error_type", applog.ErrorTypeConfiguration)
	} else {
		s.templates = t
	}

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/signup", s.handleSignup)
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/logout", s.handleLogout)

	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/chat/reset", s.handleChatReset)
	mux.HandleFunc("/api/chat", s.handleChatAPI)

	mux.HandleFunc("/budget", s.requireLogin(s.handleBudget))

	mux.HandleFunc("/goals", s.requireLogin(s.handleGoals))
	mux.HandleFunc("/goals/edit", s.requireLogin(s.handleGoalEdit))
	mux.HandleFunc("/goals/cancel", s.requireLogin(s.handleGoalCancel))
	mux.HandleFunc("/goals/update", s.requireLogin(s.handleGoalUpdate))
	mux.HandleFunc("/goals/delete", s.requireLogin(s.handleGoalDelete))
	mux.HandleFunc("/goals/contribute", s.requireLogin(s.handleGoalContribute))
	mux.HandleFunc("/goals/analyze", s.requireLogin(s.handleGoalAnalyze))

	mux.HandleFunc("/graphs", s.requireLogin(s.handleGraphs))

	s.Handler = s.middleware(mux)
	return s
}

// middleware wraps the mux. Tracing is outermost so every inner layer logs
// with the request id.
func (s *Server) middleware(next http.Handler) http.Handler {
	h := s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimit)(next)
	h = s.detector.Middleware(false)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	return s.tracer.Middleware(h)
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	ErrorResponse(http.StatusTooManyRequests, "Too many requests. Please wait a minute and try again.").
		TriggerErrorNotification("Slow down a little, Penny needs a breather.").
		Write(w)
}

// Shutdown stops background cleanup and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// ListenAndServe is http.Server.ListenAndServe with ErrServerClosed treated as success.
func (s *Server) ListenAndServe() error {
	if err := s.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) templateFuncs() template.FuncMap {
	return template.FuncMap{
		"money":    formatMoney,
		"amount":   formatAmount,
		"markdown": s.markdown.HTML,
		"pct": func(d decimal.Decimal) int {
			return percent(d)
		},
		"date": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("2 Jan 2006")
		},
		"isoDate": func(t time.Time) string {
			return t.Format(dateLayout)
		},
		"lower": strings.ToLower,
	}
}

// render executes the page template, or only its partial for htmx requests.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, page, partial string, data any) {
	s.respond(w, r, NewHTMXResponse().Status(status), page, partial, data)
}

// respond is render with a caller-prepared builder, for responses that also
// carry htmx triggers.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, page, partial string, data any) {
	if s.templates == nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded",
			applog.FieldPath, r.URL.Path,
			"error_type", applog.ErrorTypeConfiguration)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	name := page
	if partial != "" && isHTMX(r) {
		name = partial
	}

	var buf strings.Builder
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			applog.FieldError, err,
			"template", name)
		http.Error(w, "could not render page", http.StatusInternalServerError)
		return
	}
	b.BodyHTML(buf.String()).Write(w)
}

// redirect sends htmx requests an HX-Redirect and everything else a 303.
func redirect(w http.ResponseWriter, r *http.Request, url string) {
	if isHTMX(r) {
		NewHTMXResponse().Redirect(url).Write(w)
		return
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// storeContext bounds a store call by storeTimeout.
func storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, storeTimeout)
}

// requireLogin redirects anonymous sessions to the login page.
func (s *Server) requireLogin(next func(http.ResponseWriter, *http.Request, *session.State)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, _ := s.sessions.Load(r)
		if !st.LoggedIn() {
			redirect(w, r, "/login")
			return
		}
		s.sessions.Refresh(w, st.ID)
		ctx := applog.NewContext(r.Context(), applog.FromContext(r.Context()).With(applog.FieldUserID, st.UserID))
		next(w, r.WithContext(ctx), st)
	}
}

// logRequestError is the single place handlers report unexpected failures.
func (s *Server) logRequestError(r *http.Request, msg string, err error, component, op string) {
	s.events.LogError(r.Context(), msg, err, component, op, nil)
}

// navData is embedded in every page's data.
type navData struct {
	Title    string
	Active   string
	LoggedIn bool
	UserName string
}

func (s *Server) nav(ctx context.Context, st *session.State, title, active string) navData {
	n := navData{Title: title, Active: active, LoggedIn: st.LoggedIn(), UserName: st.Name}
	if st.LoggedIn() {
		ctx, cancel := storeContext(ctx)
		defer cancel()
		if u, err := s.store.UserByID(ctx, st.UserID); err == nil {
			n.UserName = u.DisplayName()
		}
	}
	return n
}

// uptime is used by health and metrics.
func (s *Server) uptime() time.Duration {
	return time.Since(s.started)
}
