// Package apierr implements the service's stable error taxonomy: a fixed
// set of codes, each carrying severity, retryability and an optional
// retry-after hint, independent of the Go error types that produced them.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Code is one of the fixed taxonomy values from the design. Callers
// outside this package should treat it as opaque and compare by value.
type Code string

const (
	CodeValidation Code = "VALIDATION_ERROR"
	CodeNotFound   Code = "NOT_FOUND"
	CodeConflict   Code = "CONFLICT"
	CodeOverloaded Code = "SERVICE_OVERLOADED"
	CodeDependency Code = "DEPENDENCY_FAILURE"
	CodeRuntime    Code = "RUNTIME_ERROR"
)

// Severity labels how alarming an error is for on-call purposes.
type Severity string

const (
	SeverityClient Severity = "client"
	SeverityServer Severity = "server"
)

// Error is the uniform error envelope returned by every HTTP handler in
// this service and logged with the same fields it serializes.
type Error struct {
	Code          Code
	Message       string
	Severity      Severity
	Retryable     bool
	RetryAfter    *int // seconds
	CorrelationID string
	Tags          map[string]interface{}
	cause         error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus maps a taxonomy code to the status code the handler should
// write. 207 (partial) is decided by the orchestrator's aggregate status,
// not by this mapping, so it is not represented here.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeOverloaded:
		return http.StatusServiceUnavailable
	case CodeDependency:
		return http.StatusServiceUnavailable
	case CodeRuntime:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Body is the wire shape of the uniform error response described in the
// design's external-interfaces section.
type Body struct {
	Code       Code                   `json:"code"`
	Message    string                 `json:"message"`
	RetryAfter *int                   `json:"retryAfter"`
	Timestamp  string                 `json:"timestamp"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// ToBody renders e as the JSON body the handler writes.
func (e *Error) ToBody(now time.Time) Body {
	details := e.Tags
	if e.CorrelationID != "" {
		if details == nil {
			details = map[string]interface{}{}
		}
		details["correlationId"] = e.CorrelationID
	}
	return Body{
		Code:       e.Code,
		Message:    e.Message,
		RetryAfter: e.RetryAfter,
		Timestamp:  now.UTC().Format(time.RFC3339),
		Details:    details,
	}
}

// New builds an Error of the given code and severity/retryable defaults
// for that code.
func New(code Code, message string) *Error {
	e := &Error{Code: code, Message: message, Tags: map[string]interface{}{}}
	switch code {
	case CodeValidation, CodeNotFound, CodeConflict:
		e.Severity = SeverityClient
		e.Retryable = false
	case CodeOverloaded, CodeDependency:
		e.Severity = SeverityServer
		e.Retryable = true
	case CodeRuntime:
		e.Severity = SeverityServer
		e.Retryable = false
	}
	return e
}

// Wrap attaches cause as the wrapped error, preserved for %w-style
// unwrapping and logging, without changing the message presented to the
// caller.
func (e *Error) Wrap(cause error) *Error {
	e.cause = cause
	return e
}

// WithTag attaches a contextual tag (e.g. pool utilization, reason) and
// returns e for chaining.
func (e *Error) WithTag(key string, value interface{}) *Error {
	if e.Tags == nil {
		e.Tags = map[string]interface{}{}
	}
	e.Tags[key] = value
	return e
}

// WithRetryAfter sets the retry-after hint in seconds.
func (e *Error) WithRetryAfter(seconds int) *Error {
	e.RetryAfter = &seconds
	return e
}

// WithCorrelationID attaches the request correlation id used to line up
// a 5xx body with structured logs.
func (e *Error) WithCorrelationID(id string) *Error {
	e.CorrelationID = id
	return e
}

// Overloaded builds a SERVICE_OVERLOADED error with a retry-after hint,
// the shape every saturation signal (breaker open, gate timeout, pool
// exhaustion) converges on before reaching the caller.
func Overloaded(reason string, retryAfterSeconds int) *Error {
	return New(CodeOverloaded, "service is overloaded, retry later").
		WithRetryAfter(retryAfterSeconds).
		WithTag("reason", reason)
}

// As extracts an *Error from err via errors.As, for handlers that need to
// branch on the taxonomy without knowing the originating package.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
