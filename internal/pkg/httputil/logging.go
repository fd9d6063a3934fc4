package httputil

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/bissquit/uptime-garden/internal/pkg/ctxlog"
	"github.com/go-chi/chi/v5/middleware"
)

// RequestLoggerMiddleware stores a logger tagged with the chi request ID in
// the request context and writes one access log line per request. Server
// errors are logged at error level, client errors at warn, and probe
// endpoints only at debug.
func RequestLoggerMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			logger := base.With("request_id", middleware.GetReqID(r.Context()))
			ctx := ctxlog.WithLogger(r.Context(), logger)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			logger.Log(ctx, accessLogLevel(r.URL.Path, ww.Status()), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}

func accessLogLevel(path string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	case path == "/healthz" || path == "/readyz":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
