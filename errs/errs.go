// Package errs provides structured error types shared across the observatory.
package errs

import (
	"strconv"
	"strings"
)

// Code identifies a failure category in the telemetry subsystem.
type Code string

const (
	// CodeConnection indicates the data feed failed to open or closed unexpectedly.
	CodeConnection Code = "connection"
	// CodeProtocol indicates a feed frame that could not be parsed or recognised.
	CodeProtocol Code = "protocol"
	// CodeFeedUnavailable indicates the REST status endpoint could not be reached.
	CodeFeedUnavailable Code = "feed_unavailable"
	// CodeAction indicates a user-triggered REST action failed.
	CodeAction Code = "action"
)

// Recoverable reports whether the code describes a non-fatal condition.
// Every code in this subsystem is recoverable; the client degrades to
// simulated data rather than stopping.
func (c Code) Recoverable() bool { return true }

// E captures structured error information produced across the observatory stack.
type E struct {
	Code     Code
	Endpoint string
	HTTP     int
	Message  string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the given failure category.
func New(code Code, opts ...Option) *E {
	e := &E{
		Code:     code,
		Endpoint: "",
		HTTP:     0,
		Message:  "",
		cause:    nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithEndpoint records the endpoint involved in the failure.
func WithEndpoint(endpoint string) Option {
	trimmed := strings.TrimSpace(endpoint)
	return func(e *E) {
		e.Endpoint = trimmed
	}
}

// WithHTTP records the associated HTTP status code.
func WithHTTP(status int) Option {
	return func(e *E) {
		e.HTTP = status
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.Endpoint != "" {
		parts = append(parts, "endpoint="+e.Endpoint)
	}
	if e.HTTP > 0 {
		parts = append(parts, "http="+strconv.Itoa(e.HTTP))
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// Connection wraps a transport failure on the data feed.
func Connection(endpoint string, cause error) *E {
	return New(CodeConnection, WithEndpoint(endpoint), WithCause(cause))
}

// Protocol wraps an unparseable or unrecognised feed frame.
func Protocol(msg string, cause error) *E {
	return New(CodeProtocol, WithMessage(msg), WithCause(cause))
}
