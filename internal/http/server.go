package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"accounting/internal/cache"
	"accounting/internal/identity"
	"accounting/internal/ledger"
	"accounting/internal/livequery"
	"accounting/internal/log"
	"accounting/internal/middleware/ratelimit"
	"accounting/internal/middleware/security"
	"accounting/internal/middleware/trace"
	"accounting/internal/store"
	appweb "accounting/web"
)

const (
	defaultKeepAlive = 25 * time.Second
	staticMaxAge     = 3600
)

// Options wires the server to its collaborators.
type Options struct {
	Addr string

	Ledger   *ledger.Service
	Hub      *livequery.Hub
	Identity *identity.Provider
	// Pinger backs the readiness probe; nil means always ready.
	Pinger store.Pinger
	// Caches reports hit/miss counters on /metrics.
	Caches *cache.Manager

	CookieSecure       bool
	RateLimitPerMinute int
	// KeepAlive is the interval of SSE comment pings.
	KeepAlive time.Duration
	// Location is used when printing timestamps in exports; nil means local.
	Location *time.Location

	Logger *log.Logger
}

// Server serves the ledger pages, the snapshot stream and the probes.
type Server struct {
	http.Server
	templates *template.Template

	ledger   *ledger.Service
	hub      *livequery.Hub
	identity *identity.Provider
	pinger   store.Pinger
	caches   *cache.Manager

	cookieSecure bool
	keepAlive    time.Duration
	location     *time.Location

	logger           *log.Logger
	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	// baseCtx is the parent of every request context; cancelling it ends
	// open event streams so Shutdown can drain.
	baseCtx    context.Context
	cancelBase context.CancelFunc

	metrics      appMetrics
	shutdownOnce sync.Once
}

type appMetrics struct {
	recordsCreated int64
	recordsDeleted int64
	activeStreams  int64
	uptime         time.Time
}

// NewServer configures routes, templates and middleware.
func NewServer(opts Options) (*Server, error) {
	if opts.Ledger == nil || opts.Hub == nil || opts.Identity == nil {
		return nil, errors.New("http: ledger, hub and identity are required")
	}

	logger := log.OrDefault(opts.Logger).WithComponent(log.ComponentHTTP)

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	keepAlive := opts.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	detector := security.NewDetector(logger)
	baseCtx, cancel := context.WithCancel(context.Background())

	s := &Server{
		templates:        t,
		ledger:           opts.Ledger,
		hub:              opts.Hub,
		identity:         opts.Identity,
		pinger:           opts.Pinger,
		caches:           opts.Caches,
		cookieSecure:     opts.CookieSecure,
		keepAlive:        keepAlive,
		location:         loc,
		logger:           logger,
		securityDetector: detector,
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
		}),
		traceMiddleware: trace.NewMiddleware(logger, detector.ExtractClientIP),
		baseCtx:         baseCtx,
		cancelBase:      cancel,
		metrics:         appMetrics{uptime: time.Now()},
	}

	mux := http.NewServeMux()
	if err := s.routes(mux); err != nil {
		cancel()
		s.rateLimiter.Stop()
		return nil, err
	}

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}
	return s, nil
}

func (s *Server) routes(mux *http.ServeMux) error {
	sub, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return fmt.Errorf("mount static assets: %w", err)
	}
	static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
	mux.Handle("GET /static/", security.StaticAssetMiddleware(staticMaxAge)(static))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.HandleFunc("POST /logout", s.handleLogout)

	mux.HandleFunc("GET /accounting", s.handleAccounting)
	mux.HandleFunc("GET /accounting/stream", s.requireUser(s.handleStream))
	mux.HandleFunc("POST /accounting/records", s.handleCreateRecord)
	mux.HandleFunc("POST /accounting/records/{id}/delete", s.requireUser(s.handleDeleteRecord))
	mux.HandleFunc("GET /accounting/export.xlsx", s.requireUser(s.handleExport))
	return nil
}

// middleware wraps the mux: tracing outermost so every request is logged,
// then detection, headers, rate limiting and session resolution.
func (s *Server) middleware(next http.Handler) http.Handler {
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limit := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.onRateLimited)

	h := s.withIdentity(next)
	h = limit(h)
	h = headers.Middleware(h)
	h = s.securityDetector.Middleware(h)
	h = s.traceMiddleware.Middleware(h)
	return h
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.reqLogger(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "請求過於頻繁，請稍後再試").
		Header("Retry-After", "60").
		Write(w)
}

// Shutdown ends open event streams, stops background loops and drains the
// HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cancelBase()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// render executes a template into memory first so a failing template
// produces a clean 500 instead of a truncated page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logError(r.Context(), "Template execution failed", err, log.OpRender,
			log.LogFields{"template": name})
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// reqLogger is the http logger enriched with the request id of ctx.
func (s *Server) reqLogger(ctx context.Context) *log.Logger {
	return log.FromContextOr(ctx, s.logger)
}

// logError reports a failed request step with the request id attached.
func (s *Server) logError(ctx context.Context, msg string, err error, op string, fields log.LogFields) {
	log.NewStructuredLogger(s.reqLogger(ctx)).LogError(ctx, msg, err, log.ComponentHTTP, op, fields)
}

func (s *Server) recordCreated() { atomic.AddInt64(&s.metrics.recordsCreated, 1) }
func (s *Server) recordDeleted() { atomic.AddInt64(&s.metrics.recordsDeleted, 1) }
