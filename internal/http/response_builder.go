// Package http serves the balancio JSON API.
//
// This file implements the Builder Pattern for constructing JSON responses
// and the single mapping from service errors to status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"balancio/internal/auth"
	"balancio/internal/core"
	"balancio/internal/ledger"
	"balancio/internal/services"
)

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	payload    any
	raw        []byte
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets the value encoded as the response body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.payload = v
	return b
}

// Body sets a raw body. The caller sets Content-Type.
func (b *ResponseBuilder) Body(content []byte) *ResponseBuilder {
	b.raw = content
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if b.raw != nil {
		w.WriteHeader(b.statusCode)
		_, _ = w.Write(b.raw)
		return
	}
	if b.payload == nil || b.statusCode == http.StatusNoContent {
		w.WriteHeader(b.statusCode)
		return
	}

	body, err := json.Marshal(b.payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to encode response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(body)
	_, _ = w.Write([]byte("\n"))
}

// APIError is the body of every error response.
type APIError struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, message string, details ...string) *ResponseBuilder {
	return NewResponse().Status(statusCode).JSON(APIError{Error: message, Details: details})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string, details ...string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message, details...)
}

// UnprocessableEntityError creates a 422 Unprocessable Entity error response.
func UnprocessableEntityError(message string, details ...string) *ResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message, details...)
}

// InternalServerError creates a 500 Internal Server Error response.
func InternalServerError() *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal server error")
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// statusFor maps a service error to its response status. Unknown errors are
// internal.
func statusFor(err error) int {
	var rerr *requestError
	switch {
	case errors.As(err, &rerr):
		return rerr.status
	case core.IsValidationError(err), errors.Is(err, auth.ErrWeakPassword):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrNotFound), errors.Is(err, auth.ErrUnknownProvider), errors.Is(err, auth.ErrUnknownFlow):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrConflict), errors.Is(err, services.ErrCategoryInUse), errors.Is(err, services.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenRevoked), errors.Is(err, auth.ErrNoEmail):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrFlowTimeout):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ErrorFrom builds the response for err. Internal errors never leak their
// message.
func ErrorFrom(err error) *ResponseBuilder {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		return InternalServerError()
	}
	var rerr *requestError
	if errors.As(err, &rerr) {
		return ErrorResponse(status, rerr.msg, rerr.details...)
	}
	return ErrorResponse(status, err.Error())
}
