package trace

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"accounting/internal/log"
)

func TestMiddleware_RequestID(t *testing.T) {
	m := NewMiddleware(log.Discard(), nil)

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.HasPrefix(seen, "req_") {
		t.Fatalf("request id = %q", seen)
	}
	if rec.Header().Get(HeaderRequestID) != seen {
		t.Fatalf("header %q != context %q", rec.Header().Get(HeaderRequestID), seen)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "upstream-1")
	h.ServeHTTP(rec, req)
	if seen != "upstream-1" {
		t.Fatalf("incoming request id not reused: %q", seen)
	}

	if got := m.GetMetrics().TotalRequests; got != 2 {
		t.Fatalf("TotalRequests = %d, want 2", got)
	}
}

func TestMiddleware_PreservesFlusher(t *testing.T) {
	m := NewMiddleware(log.Discard(), nil)

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Flusher); !ok {
			t.Error("wrapped writer lost http.Flusher")
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
