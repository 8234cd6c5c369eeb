// Package errs provides structured error types and helpers shared across arbscan.
package errs

import (
	"errors"
	"strconv"
	"strings"
)

// Code identifies an error category in the scanner taxonomy.
type Code string

const (
	// CodeTransientStream indicates a recoverable stream failure (disconnect, timeout, reset).
	CodeTransientStream Code = "transient_stream"
	// CodeVenueRejected indicates the venue refused a subscription or request outright.
	CodeVenueRejected Code = "venue_rejected"
	// CodeInvalidMessage indicates a venue payload that could not be decoded.
	CodeInvalidMessage Code = "invalid_message"
	// CodeCacheUnavailable indicates the market cache backend cannot be reached.
	CodeCacheUnavailable Code = "cache_unavailable"
	// CodeFinderFailed indicates an arbitrage finder pass aborted.
	CodeFinderFailed Code = "finder_failed"
	// CodeInvalidConfig indicates unusable configuration detected at startup.
	CodeInvalidConfig Code = "invalid_config"
	// CodeRateLimited indicates that the request exceeded rate limits.
	CodeRateLimited Code = "rate_limited"
	// CodeNetwork indicates a network transport failure.
	CodeNetwork Code = "network"
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
)

// E captures structured error information produced across the scanner.
type E struct {
	Venue   string
	Code    Code
	HTTP    int
	RawCode string
	RawMsg  string
	Message string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the venue and error code.
func New(venue string, code Code, opts ...Option) *E {
	e := &E{
		Venue:   strings.TrimSpace(venue),
		Code:    code,
		HTTP:    0,
		RawCode: "",
		RawMsg:  "",
		Message: "",
		cause:   nil,
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

// WithHTTP records the associated HTTP status code.
func WithHTTP(status int) Option {
	return func(e *E) {
		e.HTTP = status
	}
}

// WithRawCode captures the raw venue error code.
func WithRawCode(code string) Option {
	trimmed := strings.TrimSpace(code)
	return func(e *E) {
		e.RawCode = trimmed
	}
}

// WithRawMessage captures the raw venue error message.
func WithRawMessage(msg string) Option {
	return func(e *E) {
		e.RawMsg = msg
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

	venue := strings.TrimSpace(e.Venue)
	if venue == "" {
		venue = "unknown"
	}
	parts = append(parts, "venue="+venue)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.HTTP > 0 {
		parts = append(parts, "http="+strconv.Itoa(e.HTTP))
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.RawCode != "" {
		parts = append(parts, "raw_code="+strconv.Quote(e.RawCode))
	}
	if e.RawMsg != "" {
		parts = append(parts, "raw_msg="+strconv.Quote(e.RawMsg))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// CodeOf extracts the scanner error code from err, or the empty code when err
// carries no envelope.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) && e != nil {
		return e.Code
	}
	return ""
}

// Transient reports whether err describes a recoverable condition that a
// supervised stream should retry after backoff. Errors without an envelope are
// treated as transient so that unexpected transport failures keep retrying.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	switch CodeOf(err) {
	case CodeVenueRejected, CodeInvalidConfig, CodeInvalid:
		return false
	default:
		return true
	}
}

// Permanent reports whether err should terminate the failing stream without retry.
func Permanent(err error) bool {
	if err == nil {
		return false
	}
	return !Transient(err)
}
