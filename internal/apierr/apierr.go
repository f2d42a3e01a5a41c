// SPDX-License-Identifier: MIT

// Package apierr defines the error vocabulary shared by the HTTP surface,
// the session endpoint and the domain registries. Every failure a client
// can observe is one of three kinds: bad request, forbidden, not found.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error carries the HTTP status a domain failure renders as.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// New builds an Error with an explicit status.
func New(status int, message string) *Error {
	return &Error{Status: status, Message: message}
}

// BadRequest builds a 400 error.
func BadRequest(message string) *Error {
	return New(http.StatusBadRequest, message)
}

// BadRequestf builds a 400 error with a formatted message.
func BadRequestf(format string, args ...any) *Error {
	return New(http.StatusBadRequest, fmt.Sprintf(format, args...))
}

// Forbidden builds a 403 error.
func Forbidden(message string) *Error {
	return New(http.StatusForbidden, message)
}

// NotFound builds a 404 error.
func NotFound(message string) *Error {
	return New(http.StatusNotFound, message)
}

// NotFoundf builds a 404 error with a formatted message.
func NotFoundf(format string, args ...any) *Error {
	return New(http.StatusNotFound, fmt.Sprintf(format, args...))
}

// StatusOf resolves the HTTP status for err. Errors outside the apierr
// vocabulary map to 500.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return http.StatusInternalServerError
}

// MessageOf resolves the client-facing message for err. Errors outside the
// vocabulary collapse to a generic message so internals never leak.
func MessageOf(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return "internal error"
}
