package ratelimit

import (
	"net/http"
	"strconv"
	"time"
)

// Header names GitHub uses to report the primary rate limit.
const (
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// Budget is the last known quota state. Known stays false until a response
// carried rate-limit headers.
type Budget struct {
	Remaining int
	Limit     int
	Reset     time.Time
	Known     bool
}

// Update reads rate-limit headers into b. Headers that are missing or
// malformed leave the matching field untouched. It reports whether any
// header was applied.
func (b *Budget) Update(h http.Header) bool {
	applied := false
	if n, ok := headerInt(h, HeaderRemaining); ok {
		b.Remaining = n
		applied = true
	}
	if n, ok := headerInt(h, HeaderLimit); ok {
		b.Limit = n
		applied = true
	}
	if n, ok := headerInt(h, HeaderReset); ok {
		b.Reset = time.Unix(int64(n), 0)
		applied = true
	}
	if applied {
		b.Known = true
	}
	return applied
}

// WaitNeeded returns how long to wait before the next call, or 0 when the
// budget allows calling now. A budget at or below threshold with a reset in
// the future must wait for the reset.
func (b Budget) WaitNeeded(threshold int, now time.Time) time.Duration {
	if !b.Known || b.Remaining > threshold {
		return 0
	}
	if !b.Reset.After(now) {
		return 0
	}
	return b.Reset.Sub(now)
}

func headerInt(h http.Header, name string) (int, bool) {
	v := h.Get(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(h http.Header) (time.Duration, bool) {
	n, ok := headerInt(h, HeaderRetryAfter)
	if !ok || n < 0 {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}
