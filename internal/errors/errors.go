// Package errors provides custom error types for the chat backend client.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	ErrEmptyMessage    = errors.New("message cannot be empty")
	ErrStreamActive    = errors.New("a stream is already active")
	ErrBusy            = errors.New("a send is already in progress")
	ErrNoResponseBody  = errors.New("response has no body")
	ErrStreamStalled   = errors.New("stream stalled")
	ErrInvalidResponse = errors.New("invalid response format")
	ErrNoConversation  = errors.New("no conversation selected")
	ErrNothingToRetry  = errors.New("no user message to regenerate from")
)

// APIError represents a failed REST or stream request
type APIError struct {
	StatusCode int
	Status     string
	Endpoint   string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("API error [%s] at %s: %s", e.Status, e.Endpoint, e.Message)
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("API error [%d] at %s: %s", e.StatusCode, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("API error at %s: %s", e.Endpoint, e.Message)
}

// NewAPIError creates a new APIError
func NewAPIError(statusCode int, endpoint, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Endpoint:   endpoint,
		Message:    message,
	}
}

// NewAPIErrorWithBody creates an APIError that keeps the response body for diagnostics
func NewAPIErrorWithBody(statusCode int, status, endpoint, message, body string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Status:     status,
		Endpoint:   endpoint,
		Message:    message,
		Body:       body,
	}
}

// NetworkError wraps a transport failure
type NetworkError struct {
	Operation string
	Endpoint  string
	Err       error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s at %s: %v", e.Operation, e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new NetworkError
func NewNetworkError(operation, endpoint string, err error) *NetworkError {
	return &NetworkError{Operation: operation, Endpoint: endpoint, Err: err}
}

// StreamError is an explicit error event sent by the server mid-stream.
// Its message is shown to the user verbatim.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return e.Message
}

// NewStreamError creates a new StreamError
func NewStreamError(message string) *StreamError {
	if message == "" {
		message = "stream failed"
	}
	return &StreamError{Message: message}
}

// TimeoutError represents a request or stream timeout
type TimeoutError struct {
	Message string
}

func (e *TimeoutError) Error() string {
	if e.Message == "" {
		return "request timed out"
	}
	return fmt.Sprintf("request timed out: %s", e.Message)
}

// Is matches ErrStreamStalled so callers can test for stalls without the concrete type
func (e *TimeoutError) Is(target error) bool {
	return target == ErrStreamStalled
}

// NewTimeoutError creates a new TimeoutError
func NewTimeoutError(message string) *TimeoutError {
	return &TimeoutError{Message: message}
}

// ParseError represents a response parsing error
type ParseError struct {
	Message string
	Path    string
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("parse error at %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("parse error: %s", e.Message)
}

// Is allows comparison with ErrInvalidResponse
func (e *ParseError) Is(target error) bool {
	if target == ErrInvalidResponse {
		return true
	}
	_, ok := target.(*ParseError)
	return ok
}

// NewParseError creates a new ParseError
func NewParseError(message, path string) *ParseError {
	return &ParseError{Message: message, Path: path}
}

// IsAborted reports whether err is a user cancellation. Aborts are never
// reported to the user.
func IsAborted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStreamStalled) {
		return false
	}
	return errors.Is(err, context.Canceled)
}

// IsStreamError reports whether err came from a server error event
func IsStreamError(err error) bool {
	var se *StreamError
	return errors.As(err, &se)
}

// StatusCode extracts the HTTP status from an APIError, or 0
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
