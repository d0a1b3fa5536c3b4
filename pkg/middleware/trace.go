package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/pkg/tracing"
)

// Trace opens a root span per request. Trees of requests slower than slow
// are logged at Warn, the rest at Debug. Install inside RequestID so the
// trace id matches the request id.
func Trace(slow time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.Start(r.Context(), r.Method+" "+r.URL.Path)
			next.ServeHTTP(w, r.WithContext(ctx))
			span.End()

			level := slog.LevelDebug
			if span.Duration >= slow {
				level = slog.LevelWarn
			}
			span.Log(ctx, slog.Default(), level)
		})
	}
}
