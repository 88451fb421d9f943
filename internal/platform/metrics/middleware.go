package metrics

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// unmatchedRoute labels requests chi did not route, such as 404s.
const unmatchedRoute = "unmatched"

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// RequestMiddleware counts control requests per method and chi route pattern,
// and error responses (status >= 400) per route and status code. Mount it with
// r.Use on a chi router; the pattern is read after the handler ran, once chi
// has resolved it.
func RequestMiddleware(m *Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			route := routePattern(r)
			m.IncRequests(r.Method, route)
			if sw.status >= 400 {
				m.IncErrors(route, sw.status)
			}
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return unmatchedRoute
}

func statusLabel(code int) string {
	return strconv.Itoa(code)
}
