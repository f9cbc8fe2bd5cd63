// Package errdef provides the classified error model shared by the
// resilience toolkit. Every remote call wrapped by the toolkit is expected
// to fail with (or be convertible to) an *errdef.Error so that retry
// eligibility and offline handling can be decided uniformly.
package errdef

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies a failed remote operation.
type Kind string

const (
	// KindNetwork indicates a connection-level failure (refused, DNS, reset).
	KindNetwork Kind = "network"
	// KindTimeout indicates the operation timed out.
	KindTimeout Kind = "timeout"
	// KindRateLimited indicates the server rejected the request with 429.
	KindRateLimited Kind = "rate_limited"
	// KindClient indicates a non-retryable client error (4xx).
	KindClient Kind = "client_error"
	// KindServer indicates a server-side error (5xx).
	KindServer Kind = "server_error"
	// KindCanceled indicates the caller abandoned the operation.
	KindCanceled Kind = "canceled"
	// KindUnknown is used for errors the toolkit cannot classify.
	KindUnknown Kind = "unknown"
)

var retryableKinds = map[Kind]bool{
	KindNetwork:     true,
	KindTimeout:     true,
	KindRateLimited: true,
	KindServer:      true,
}

// Retryable reports whether the kind indicates a transient failure.
func (k Kind) Retryable() bool {
	return retryableKinds[k]
}

// Error is the structured error produced by remote operations.
type Error struct {
	// Kind classifies the failure.
	Kind Kind
	// StatusCode is the HTTP status code (0 for connection-level errors).
	StatusCode int
	// Message describes the error.
	Message string
	// RetryAfter is the server-supplied wait hint, if any (e.g. from a
	// Retry-After header on 429 responses).
	RetryAfter time.Duration
	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether this error may be retried.
func (e *Error) Retryable() bool { return e.Kind.Retryable() }

// Network creates a connection-level error.
func Network(cause error) *Error {
	return &Error{Kind: KindNetwork, Message: messageOf(cause), Cause: cause}
}

// Timeout creates a timeout error.
func Timeout(cause error) *Error {
	return &Error{Kind: KindTimeout, Message: messageOf(cause), Cause: cause}
}

// RateLimited creates a 429 error with the server-supplied wait hint.
func RateLimited(retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindRateLimited,
		StatusCode: http.StatusTooManyRequests,
		Message:    "too many requests",
		RetryAfter: retryAfter,
	}
}

// ClientError creates a non-retryable 4xx error.
func ClientError(status int, message string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{Kind: KindClient, StatusCode: status, Message: message}
}

// ServerError creates a retryable 5xx error.
func ServerError(status int, message string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{Kind: KindServer, StatusCode: status, Message: message}
}

// FromStatus maps an HTTP status code to a classified error.
// 429 becomes rate_limited, other 4xx client_error, 5xx server_error.
func FromStatus(status int, message string) *Error {
	switch {
	case status == http.StatusTooManyRequests:
		e := RateLimited(0)
		if message != "" {
			e.Message = message
		}
		return e
	case status >= 400 && status < 500:
		return ClientError(status, message)
	case status >= 500:
		return ServerError(status, message)
	default:
		return &Error{Kind: KindUnknown, StatusCode: status, Message: message}
	}
}

// Classify returns the Kind of err, unwrapping as needed.
// Context cancellation classifies as canceled, context deadline as timeout.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is a transient failure worth retrying.
// Unknown errors are not retried.
func IsRetryable(err error) bool {
	return Classify(err).Retryable()
}

// IsConnectivity reports whether err indicates the backend is unreachable
// (as opposed to reachable but failing).
func IsConnectivity(err error) bool {
	return Classify(err) == KindNetwork
}

// RetryAfterHint returns the server-supplied wait hint attached to err,
// if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var e *Error
	if errors.As(err, &e) && e.RetryAfter > 0 {
		return e.RetryAfter, true
	}
	return 0, false
}

func messageOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
