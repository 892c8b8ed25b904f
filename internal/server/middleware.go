package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vqa/internal/guard"
	"github.com/desertthunder/vqa/internal/models"
	"github.com/desertthunder/vqa/internal/session"
	"github.com/desertthunder/vqa/internal/web"
)

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// Flush lets event streams pass through the recorder.
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Logging logs one line per request with its status and duration.
func Logging(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			kv := []any{"method", r.Method, "path", r.URL.Path, "status", status, "duration", time.Since(start)}
			switch {
			case status >= 500:
				logger.Error("request", kv...)
			case status >= 400:
				logger.Warn("request", kv...)
			default:
				logger.Debug("request", kv...)
			}
		})
	}
}

// Recover turns a panicking handler into a 500 response.
func Recover(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					logger.Error("handler panicked", "path", r.URL.Path, "panic", v)
					http.Error(w, "Internal server error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// isAPI reports whether r targets a JSON endpoint rather than a page.
func isAPI(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") || web.WantsJSON(r)
}

// RequireRoles admits requests whose session holds one of roles. An empty set admits any
// authenticated session.
//
// Pages answer a missing session with 303 See Other to the login view carrying the requested
// path in ?from=, and API routes answer with 401. While the session is resolving the response
// is 202 with Retry-After and an empty body. A role outside the set gets 403.
func RequireRoles(sessions Sessions, roles ...models.Role) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := sessions.Snapshot()
			d := guard.Decide(state, roles, r.URL.Path)

			switch d.Action {
			case guard.Placeholder:
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusAccepted)
			case guard.Redirect:
				if isAPI(r) {
					web.WriteJSON(w, http.StatusUnauthorized, errorBody("Not authenticated"))
					return
				}
				http.Redirect(w, r, d.LoginURL(), http.StatusSeeOther)
			case guard.Forbidden:
				if isAPI(r) {
					web.WriteJSON(w, http.StatusForbidden, errorBody("Not enough permissions"))
					return
				}
				p := web.NewPage("Forbidden", r.URL.Path, state.User)
				p.Landing = session.LandingRoute(state.Role)
				web.Render(w, http.StatusForbidden, "forbidden.html", p)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// errorBody builds an error payload in the backend's {"detail": ...} shape.
func errorBody(detail string) map[string]string {
	return map[string]string{"detail": detail}
}
