// This file implements a small builder for JSON responses and the mapping
// from domain errors to HTTP status codes.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"fincon/internal/auth"
	"fincon/internal/core"
	applog "fincon/internal/log"
	"fincon/internal/services"
)

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewResponse creates a builder with a 200 status and no body.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets the value to encode as the body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	data, err := json.Marshal(b.body)
	if err != nil {
		slog.Error("Failed to encode response", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(data, '\n'))
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse creates a JSON error response.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewResponse().Status(statusCode).JSON(errorBody{Error: message})
}

func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func UnauthorizedError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, message).Header("WWW-Authenticate", "Bearer")
}

func UnprocessableEntityError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

func InternalServerError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// statusFor maps domain errors onto status codes. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrDeleteAccount):
		return http.StatusInternalServerError
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrEmailInUse):
		return http.StatusConflict
	case errors.Is(err, auth.ErrUnknownAccount):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrInvalidType),
		errors.Is(err, core.ErrNegativeAmount):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err and writes it as a JSON error. Messages of 5xx
// errors are replaced unless they are account deletion reports, which
// callers need in order to know how far deletion got.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()

	logger := applog.FromContext(r.Context())
	if status >= 500 {
		logger.ErrorContext(r.Context(), "Request failed", applog.FieldError, err, applog.FieldPath, r.URL.Path)
		if !errors.Is(err, services.ErrDeleteAccount) {
			msg = "internal error"
		}
	} else {
		logger.DebugContext(r.Context(), "Request rejected", applog.FieldError, err, applog.FieldStatusCode, status)
	}

	resp := ErrorResponse(status, msg)
	if status == http.StatusUnauthorized {
		resp.Header("WWW-Authenticate", "Bearer")
	}
	resp.Write(w)
}
