// Package apierr maps the engine's internal error taxonomy onto HTTP
// status codes, following a writeError/writeJSON shape, centralized so
// every gin handler shares one mapping instead of hand-picking a status
// per call site.
package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind classifies an error by the HTTP status family it maps to.
type Kind int

const (
	KindClient Kind = iota
	KindConflict
	KindServer
)

// Error carries a Kind alongside a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Client builds a 400-class error.
func Client(format string, args ...interface{}) *Error {
	return &Error{Kind: KindClient, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a 409 error.
func Conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Server wraps a lower-level error as a 500.
func Server(cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindServer, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// StatusCode returns the HTTP status for err, defaulting to 500 for
// anything that isn't an *Error.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case KindClient:
			return http.StatusBadRequest
		case KindConflict:
			return http.StatusConflict
		case KindServer:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

// Write sends the standard {"ok":false,"error":message} body.
func Write(c *gin.Context, err error) {
	c.JSON(StatusCode(err), gin.H{"ok": false, "error": err.Error()})
}

// OK writes the standard {"ok":true} body.
func OK(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
