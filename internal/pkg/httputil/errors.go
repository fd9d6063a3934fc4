package httputil

import (
	"context"
	"errors"
	"net/http"

	"github.com/bissquit/uptime-garden/internal/pkg/ctxlog"
)

// ErrorMapping maps a sentinel error to an HTTP status.
type ErrorMapping struct {
	Error   error
	Status  int
	Message string // if empty, uses err.Error()
}

// HandleError writes the response for err. Handler mappings are tried first,
// in order. Context errors mean the client went away or the request timed
// out. Everything else is logged and hidden behind a 500.
func HandleError(ctx context.Context, w http.ResponseWriter, err error, mappings []ErrorMapping) {
	for _, m := range mappings {
		if errors.Is(err, m.Error) {
			msg := m.Message
			if msg == "" {
				msg = err.Error()
			}
			Error(w, m.Status, msg)
			return
		}
	}

	logger := ctxlog.FromContext(ctx)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("request timed out", "error", err)
		Error(w, http.StatusGatewayTimeout, "request timed out")
	case errors.Is(err, context.Canceled):
		logger.Debug("request cancelled", "error", err)
		// nginx's "client closed request"; nobody reads the body
		w.WriteHeader(499)
	default:
		logger.Error("internal error", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
