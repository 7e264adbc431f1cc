package http

import (
	"errors"
	"net/http"
	"time"

	"accounting/internal/identity"
	"accounting/internal/log"
)

// SessionCookie holds the signed session token.
const SessionCookie = "accounting_session"

// withIdentity resolves the session cookie into the request's user. An
// invalid or expired cookie is cleared and the request continues signed out.
func (s *Server) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(SessionCookie)
		if err != nil || c.Value == "" {
			next.ServeHTTP(w, r)
			return
		}

		user, err := s.identity.Resolve(r.Context(), c.Value)
		switch {
		case errors.Is(err, identity.ErrInvalidSession), errors.Is(err, identity.ErrSessionExpired):
			s.clearSessionCookie(w)
			next.ServeHTTP(w, r)
			return
		case err != nil:
			// Store trouble: keep the cookie, serve this request signed out.
			s.reqLogger(r.Context()).WarnContext(r.Context(), "Session resolution failed",
				log.FieldError, err)
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(identity.WithUser(r.Context(), user)))
	})
}

// requireUser answers 401 for requests without a signed-in user.
func (s *Server) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if identity.UserFrom(r.Context()) == nil {
			UnauthorizedError("請先登入").Write(w)
			return
		}
		next(w, r)
	}
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sess identity.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		MaxAge:   int(time.Until(sess.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
