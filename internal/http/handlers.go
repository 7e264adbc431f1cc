package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"accounting/internal/identity"
	"accounting/internal/log"
)

const (
	msgRegistered   = "註冊成功！請登入"
	msgUnknownError = "未知錯誤"
	msgBadRequest   = "請求格式錯誤"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.metrics.uptime).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.pinger != nil {
		if err := s.pinger.Ping(ctx); err != nil {
			checks["store"] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
	} else {
		checks["store"] = "not_configured"
	}

	checks["live_queries"] = map[string]any{
		"subscriptions": s.hub.Count(),
		"status":        "ok",
	}
	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.GetMetrics().ClientCount,
		"status":         "ok",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.traceMiddleware.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()
	hubMetrics := s.hub.GetMetrics()

	w.WriteHeader(http.StatusOK)

	counter := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", name, help, name, name, v)
	}
	gauge := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %d\n\n", name, help, name, name, v)
	}

	counter("http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests)
	counter("http_server_errors_total", "Responses with a 5xx status", traceMetrics.ServerErrors)
	gauge("http_response_time_avg_microseconds", "Average response time", traceMetrics.AverageResponseTime)
	counter("records_created_total", "Records created through this instance", atomic.LoadInt64(&s.metrics.recordsCreated))
	counter("records_deleted_total", "Record deletions requested through this instance", atomic.LoadInt64(&s.metrics.recordsDeleted))
	gauge("live_subscriptions", "Open standing queries", int64(hubMetrics.Subscriptions))
	counter("snapshots_sent_total", "Snapshots pushed to live views", hubMetrics.SnapshotsSent)
	counter("snapshot_query_failures_total", "Snapshot queries that failed", hubMetrics.QueryFailures)
	gauge("event_streams_active", "Open event streams", atomic.LoadInt64(&s.metrics.activeStreams))
	counter("rate_limit_rejected_total", "Requests rejected by the rate limiter", rateLimitMetrics.Rejected)
	gauge("active_rate_limit_clients", "Currently tracked rate limit clients", int64(rateLimitMetrics.ClientCount))
	counter("suspicious_requests_total", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)

	if s.caches != nil {
		fmt.Fprintf(w, "# HELP cache_entries Current cache entries\n# TYPE cache_entries gauge\n")
		for _, st := range s.caches.Stats() {
			fmt.Fprintf(w, "cache_entries{cache=%q} %d\n", st.Name, st.Size)
		}
		fmt.Fprintf(w, "\n# HELP cache_hits_total Cache hits\n# TYPE cache_hits_total counter\n")
		for _, st := range s.caches.Stats() {
			fmt.Fprintf(w, "cache_hits_total{cache=%q} %d\n", st.Name, st.Hits)
		}
		fmt.Fprintf(w, "\n# HELP cache_misses_total Cache misses\n# TYPE cache_misses_total counter\n")
		for _, st := range s.caches.Stats() {
			fmt.Fprintf(w, "cache_misses_total{cache=%q} %d\n", st.Name, st.Misses)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n# TYPE uptime_seconds gauge\nuptime_seconds %.0f\n",
		time.Since(s.metrics.uptime).Seconds())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "index.html", nil)
}

type loginPage struct {
	Register bool
	Email    string
	Message  string
	Success  bool
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if identity.UserFrom(r.Context()) != nil {
		http.Redirect(w, r, "/accounting", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "login.html", loginPage{
		Register: r.URL.Query().Get("mode") == "register",
	})
}

// handleLogin creates an account (mode=register) or signs in. A successful
// sign-in sets the session cookie and moves on to the ledger page.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		s.render(w, r, http.StatusBadRequest, "login.html", loginPage{Message: msgBadRequest})
		return
	}

	email := p.Get("email")
	password := p.GetRaw("password")

	if p.Get("mode") == "register" {
		if _, err := s.identity.CreateAccount(r.Context(), email, password); err != nil {
			s.render(w, r, http.StatusUnprocessableEntity, "login.html", loginPage{
				Register: true,
				Email:    email,
				Message:  s.identityMessage(r, err, log.OpSignUp),
			})
			return
		}
		s.render(w, r, http.StatusOK, "login.html", loginPage{
			Email:   email,
			Message: msgRegistered,
			Success: true,
		})
		return
	}

	sess, err := s.identity.SignIn(r.Context(), email, password)
	if err != nil {
		s.render(w, r, http.StatusUnauthorized, "login.html", loginPage{
			Email:   email,
			Message: s.identityMessage(r, err, log.OpSignIn),
		})
		return
	}

	s.setSessionCookie(w, sess)
	http.Redirect(w, r, "/accounting", http.StatusSeeOther)
}

// identityMessage shows provider rejections verbatim and hides anything
// else behind a generic message.
func (s *Server) identityMessage(r *http.Request, err error, op string) string {
	for _, known := range []error{
		identity.ErrInvalidEmail,
		identity.ErrWeakPassword,
		identity.ErrLongPassword,
		identity.ErrEmailInUse,
		identity.ErrInvalidCredentials,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	s.logError(r.Context(), "Identity operation failed", err, op, nil)
	return msgUnknownError
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		_ = s.identity.SignOut(r.Context(), c.Value)
	}
	s.clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
