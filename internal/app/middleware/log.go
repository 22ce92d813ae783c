package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/xid"

	"settlement/internal/app/logger"
)

// RequestID tags every request with an xid and binds a request-scoped logger
// into the context.
func RequestID(l logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := xid.New().String()
			w.Header().Set("X-Request-Id", id)

			rl := l.With().Str("request_id", id).Logger()
			r = r.WithContext(rl.WithContext(r.Context()))
			next.ServeHTTP(w, r)
		})
	}
}

// Log writes one line per request with status and duration.
func Log(l logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			rl := logger.Ctx(r.Context())
			rl.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("Request handled")
		})
	}
}
