// Package httputil holds the HTTP plumbing shared by all handlers: JSON
// envelopes, error mapping, pagination and middleware.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// Every JSON body is either {"data": ...} or {"error": {...}}.
type dataEnvelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// FieldError describes one failed validation rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// JSON writes v as the body without an envelope.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// Text writes a plain text body.
func Text(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(text)); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// Success writes data inside the data envelope.
func Success(w http.ResponseWriter, status int, data any) {
	JSON(w, status, dataEnvelope{Data: data})
}

// Error writes message inside the error envelope.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, errorEnvelope{Error: errorBody{Message: message}})
}

// ValidationError writes a 400 response. Validator errors are reported per
// field; any other error is reported as its message.
func ValidationError(w http.ResponseWriter, err error) {
	var details any = err.Error()

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]FieldError, 0, len(verrs))
		for _, e := range verrs {
			fields = append(fields, FieldError{Field: e.Field(), Message: e.Tag()})
		}
		details = fields
	}

	JSON(w, http.StatusBadRequest, errorEnvelope{Error: errorBody{
		Message: "validation error",
		Details: details,
	}})
}
