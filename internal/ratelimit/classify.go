package ratelimit

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
)

// Class is the outcome of one HTTP exchange as seen by the retry loop.
type Class int

const (
	// Success is any 2xx or 3xx response.
	Success Class = iota
	// Transient failures are retried with backoff: network errors, 5xx,
	// and secondary rate limits.
	Transient
	// Quota means the primary rate limit is exhausted; the caller waits for
	// the reset without counting a failed attempt.
	Quota
	// Permanent failures are returned immediately.
	Permanent
)

func (c Class) String() string {
	switch c {
	case Success:
		return "success"
	case Transient:
		return "transient"
	case Quota:
		return "quota"
	case Permanent:
		return "permanent"
	}
	return fmt.Sprintf("class(%d)", int(c))
}

var secondaryLimitMarker = []byte("secondary rate limit")

// Classify maps a response (or transport error) to a Class.
func Classify(resp *Response, err error) Class {
	if err != nil {
		return Transient
	}
	switch code := resp.StatusCode; {
	case code < 400:
		return Success
	case code >= 500:
		return Transient
	case code == http.StatusTooManyRequests || code == http.StatusForbidden:
		if resp.Header.Get(HeaderRemaining) == "0" {
			return Quota
		}
		if _, ok := retryAfter(resp.Header); ok || bytes.Contains(bytes.ToLower(resp.Body), secondaryLimitMarker) {
			return Transient
		}
		if code == http.StatusTooManyRequests {
			return Transient
		}
		return Permanent
	default:
		return Permanent
	}
}

// ErrWaitTooLong is returned when a rate wait would exceed Transport.MaxWait.
var ErrWaitTooLong = errors.New("rate limit wait exceeds the configured maximum")

// Error is a failed exchange that the retry loop gave up on.
type Error struct {
	Kind       Class
	Method     string
	URL        string
	StatusCode int    // 0 for network errors
	Body       []byte // response body, if any
	Attempts   int
	Err        error // underlying network error, if any
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %s failure after %d attempt(s): %v", e.Method, e.URL, e.Kind, e.Attempts, e.Err)
	case e.Kind == Permanent:
		return fmt.Sprintf("%s %s: API error: %s (status %d)", e.Method, e.URL, bytes.TrimSpace(e.Body), e.StatusCode)
	default:
		return fmt.Sprintf("%s %s: %s failure after %d attempt(s) (status %d)", e.Method, e.URL, e.Kind, e.Attempts, e.StatusCode)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// IsPermanent reports whether err is a permanent request failure.
func IsPermanent(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == Permanent
}
