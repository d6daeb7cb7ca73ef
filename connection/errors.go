package connection

import (
	"errors"
	"fmt"
	"time"
)

// TransportError is a network or I/O failure before any response was obtained.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ThrottlingError is returned for HTTP 429. Callers are expected to back off and retry on their own.
type ThrottlingError struct {
	retryAfter    time.Duration
	hasRetryAfter bool
}

// RetryAfter returns the server suggested wait. The second value is false when the
// Retry-After header was missing or not an integer number of seconds.
func (e *ThrottlingError) RetryAfter() (time.Duration, bool) {
	return e.retryAfter, e.hasRetryAfter
}

func (e *ThrottlingError) Error() string {
	if e.hasRetryAfter {
		return fmt.Sprintf("HTTP 429: throttled, retry after %s", e.retryAfter)
	}
	return "HTTP 429: throttled"
}

// RequestError is an HTTP 4xx response other than 429.
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// ServerError is an HTTP 5xx response.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// ClassificationError means the response did not have the shape the call expected.
type ClassificationError struct {
	StatusCode int
	Reason     string
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("unexpected response (HTTP %d): %s", e.StatusCode, e.Reason)
}

// ParseError means a successful response body could not be decoded or parsed.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse response: %s", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// RetryAfter extracts the retry hint of a throttling failure anywhere in err's chain.
func RetryAfter(err error) (time.Duration, bool) {
	var throttled *ThrottlingError
	if !errors.As(err, &throttled) {
		return 0, false
	}
	return throttled.RetryAfter()
}
