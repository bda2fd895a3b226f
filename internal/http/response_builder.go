// This file implements the Builder Pattern for JSON responses. Every body
// uses the same envelope: success, an optional message and the payload.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"fintrack/internal/core"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	// Kind is the machine-readable error class on failures.
	Kind core.ErrorKind `json:"kind,omitempty"`
	// Count carries blocking references or failed entries.
	Count int `json:"count,omitempty"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	envelope   Envelope
}

// NewJSONResponse creates a successful response builder with 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
		envelope:   Envelope{Success: true},
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Message sets the human-readable message.
func (b *JSONResponseBuilder) Message(msg string) *JSONResponseBuilder {
	b.envelope.Message = msg
	return b
}

// Data sets the payload.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.envelope.Data = v
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if err := json.NewEncoder(w).Encode(b.envelope); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind core.ErrorKind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict:
		return http.StatusConflict
	case core.KindPartialBatch:
		return http.StatusMultiStatus
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse builds the failure response for err. Upstream failures keep
// their generic message; the cause is only logged.
func ErrorResponse(err error) *JSONResponseBuilder {
	kind := core.KindOf(err)
	b := NewJSONResponse().Status(statusFor(kind))
	b.envelope.Success = false
	b.envelope.Kind = kind

	var e *core.Error
	if errors.As(err, &e) {
		b.envelope.Message = e.Message
		b.envelope.Count = e.Count
	} else {
		b.envelope.Message = "internal error"
	}
	return b
}

// MethodNotAllowedError creates a 405 Method Not Allowed error response.
func MethodNotAllowedError(allowedMethods string) *JSONResponseBuilder {
	b := NewJSONResponse().
		Status(http.StatusMethodNotAllowed).
		Header("Allow", allowedMethods).
		Message("method not allowed")
	b.envelope.Success = false
	return b
}

// UnauthorizedError creates a 401 response for requests without a caller.
func UnauthorizedError(message string) *JSONResponseBuilder {
	b := NewJSONResponse().Status(http.StatusUnauthorized).Message(message)
	b.envelope.Success = false
	return b
}

// TooManyRequestsError creates a 429 response for rate limited callers.
func TooManyRequestsError() *JSONResponseBuilder {
	b := NewJSONResponse().
		Status(http.StatusTooManyRequests).
		Header("Retry-After", "60").
		Message("rate limit exceeded, please try again later")
	b.envelope.Success = false
	return b
}
