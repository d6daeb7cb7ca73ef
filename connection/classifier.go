package connection

import (
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const maxBodyExcerpt = 1024

// maxRetryAfterSeconds is the largest Retry-After value representable as a time.Duration.
const maxRetryAfterSeconds = math.MaxInt64 / int64(time.Second)

// Expectation describes the response shape a call requires.
type Expectation int

const (
	// ExpectSuccess accepts any 2xx status.
	ExpectSuccess Expectation = iota
	// ExpectAccepted requires 202 Accepted with a Location (monitor URL) header.
	ExpectAccepted
)

// Classify inspects a completed response and returns nil or exactly one typed failure.
// The body is only read on failure paths, to capture an excerpt.
func Classify(resp *http.Response, expect Expectation) error {
	code := resp.StatusCode
	switch {
	case code == http.StatusTooManyRequests:
		return newThrottlingError(resp.Header)
	case code >= 400 && code < 500:
		return &RequestError{StatusCode: code, Body: bodyExcerpt(resp)}
	case code >= 500 && code < 600:
		return &ServerError{StatusCode: code, Body: bodyExcerpt(resp)}
	case code < 200 || code >= 300:
		return &ClassificationError{StatusCode: code, Reason: "unexpected status " + http.StatusText(code)}
	}

	if expect == ExpectAccepted {
		if code != http.StatusAccepted {
			return &ClassificationError{StatusCode: code, Reason: "expected 202 Accepted"}
		}
		if resp.Header.Get("Location") == "" {
			return &ClassificationError{StatusCode: code, Reason: "missing Location header"}
		}
	}

	return nil
}

func newThrottlingError(header http.Header) *ThrottlingError {
	value := strings.TrimSpace(header.Get("Retry-After"))
	if value == "" {
		return &ThrottlingError{}
	}
	seconds, err := strconv.ParseInt(value, 10, 64)
	if err != nil || seconds < 0 || seconds > maxRetryAfterSeconds {
		return &ThrottlingError{}
	}
	return &ThrottlingError{retryAfter: time.Duration(seconds) * time.Second, hasRetryAfter: true}
}

func bodyExcerpt(resp *http.Response) string {
	if resp.Body == nil {
		return ""
	}
	body, err := DecodeBody(resp)
	if err != nil {
		return ""
	}
	excerpt, _ := io.ReadAll(io.LimitReader(body, maxBodyExcerpt))
	return string(excerpt)
}
