// Package ratelimit wraps outbound GitHub API calls with quota tracking,
// pacing and bounded retries.
//
// A Transport owns exactly one Budget. Before each call it waits (on its
// Clock) while the budget is at or below Threshold and the reset lies in
// the future; after each call it refreshes the budget from the
// X-RateLimit-* headers. Failures are classified into a Class and handled
// by an explicit retry loop with a bounded attempt counter.
package ratelimit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/steveyegge/bbmigrate/internal/debug"
	"github.com/steveyegge/bbmigrate/internal/telemetry"
)

// Defaults used by NewTransport.
const (
	DefaultThreshold     = 10
	DefaultMaxAttempts   = 5
	DefaultMaxWait       = time.Hour
	DefaultMaxQuotaWaits = 3
	DefaultQuotaFallback = time.Minute

	maxResponseSize = 50 * 1024 * 1024
)

// Doer sends an HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Request is a replayable HTTP request.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// WaitReason says why the transport suspended the caller.
type WaitReason string

const (
	WaitQuota WaitReason = "quota"
	WaitRetry WaitReason = "retry"
	WaitPace  WaitReason = "pace"
)

// WaitEvent describes one suspension.
type WaitEvent struct {
	Reason   WaitReason
	Duration time.Duration
	Attempt  int
	URL      string
}

// Transport is the rate-governed HTTP transport.
type Transport struct {
	client Doer
	clock  Clock

	// Threshold is the remaining-call count at or below which calls wait
	// for the quota reset.
	Threshold int
	// MaxWait bounds any single wait; 0 means unbounded.
	MaxWait time.Duration
	// MinInterval is the minimum spacing between consecutive calls.
	MinInterval time.Duration
	// MaxAttempts bounds attempts for transient failures (first call included).
	MaxAttempts int
	// MaxQuotaWaits bounds consecutive quota responses for one request.
	MaxQuotaWaits int
	// NewBackOff returns the delay policy for one request's transient retries.
	NewBackOff func() backoff.BackOff
	// OnWait, if set, is called before every suspension.
	OnWait func(WaitEvent)

	budget   Budget
	lastCall time.Time

	requests metric.Int64Counter
	waits    metric.Int64Counter
}

// NewTransport creates a Transport with default limits. A nil clock uses
// the real clock.
func NewTransport(client Doer, clock Clock) *Transport {
	if clock == nil {
		clock = RealClock()
	}
	m := telemetry.Meter(telemetry.ScopeName + "/ratelimit")
	requests, _ := m.Int64Counter("bbmigrate.http.requests",
		metric.WithDescription("GitHub API requests by outcome class"),
	)
	waits, _ := m.Int64Counter("bbmigrate.rate.waits",
		metric.WithDescription("Suspensions imposed by the rate-governed transport"),
	)
	return &Transport{
		client:        client,
		clock:         clock,
		Threshold:     DefaultThreshold,
		MaxWait:       DefaultMaxWait,
		MaxAttempts:   DefaultMaxAttempts,
		MaxQuotaWaits: DefaultMaxQuotaWaits,
		NewBackOff:    defaultBackOff,
		requests:      requests,
		waits:         waits,
	}
}

func defaultBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = time.Minute
	// The attempt counter bounds retries, not elapsed time.
	bo.MaxElapsedTime = 0
	return bo
}

// Budget returns a copy of the current quota state.
func (t *Transport) Budget() Budget { return t.budget }

// SetBudget replaces the quota state, e.g. from a /rate_limit probe.
func (t *Transport) SetBudget(b Budget) { t.budget = b }

// Do sends req, waiting and retrying as the budget and failure class
// require. Non-2xx/3xx results are returned as *Error.
func (t *Transport) Do(ctx context.Context, req *Request) (*Response, error) {
	bo := t.NewBackOff()
	bo.Reset()

	attempts := 0
	quotaWaits := 0
	for {
		if err := t.preCall(ctx, req.URL); err != nil {
			return nil, err
		}

		attempts++
		resp, callErr := t.send(ctx, req)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if resp != nil {
			t.budget.Update(resp.Header)
		}

		class := Classify(resp, callErr)
		t.requests.Add(ctx, 1, metric.WithAttributes(
			attribute.String("method", req.Method),
			attribute.String("class", class.String()),
		))

		switch class {
		case Success:
			return resp, nil

		case Permanent:
			return nil, t.fail(req, Permanent, resp, attempts, nil)

		case Quota:
			// Quota waits do not consume an attempt.
			attempts--
			quotaWaits++
			if quotaWaits > t.MaxQuotaWaits {
				return nil, t.fail(req, Quota, resp, quotaWaits, nil)
			}
			d := t.quotaDelay(resp)
			debug.Logf("rate limit exhausted on %s %s, waiting %s\n", req.Method, req.URL, d)
			if err := t.wait(ctx, WaitEvent{Reason: WaitQuota, Duration: d, Attempt: quotaWaits, URL: req.URL}); err != nil {
				return nil, err
			}

		case Transient:
			if attempts >= t.MaxAttempts {
				return nil, t.fail(req, Transient, resp, attempts, callErr)
			}
			d, ok := t.retryDelay(resp, bo)
			if !ok {
				return nil, t.fail(req, Transient, resp, attempts, callErr)
			}
			debug.Logf("transient failure on %s %s (attempt %d/%d), retrying in %s\n",
				req.Method, req.URL, attempts, t.MaxAttempts, d)
			if err := t.wait(ctx, WaitEvent{Reason: WaitRetry, Duration: d, Attempt: attempts, URL: req.URL}); err != nil {
				return nil, err
			}
		}
	}
}

// preCall enforces the quota threshold and the pacing interval.
func (t *Transport) preCall(ctx context.Context, url string) error {
	now := t.clock.Now()
	if d := t.budget.WaitNeeded(t.Threshold, now); d > 0 {
		if err := t.wait(ctx, WaitEvent{Reason: WaitQuota, Duration: d, URL: url}); err != nil {
			return err
		}
		// The reset has passed; the next response refreshes the numbers.
		t.budget.Remaining = t.budget.Limit
		now = t.clock.Now()
	}
	if t.MinInterval > 0 && !t.lastCall.IsZero() {
		if d := t.lastCall.Add(t.MinInterval).Sub(now); d > 0 {
			if err := t.wait(ctx, WaitEvent{Reason: WaitPace, Duration: d, URL: url}); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Transport) wait(ctx context.Context, ev WaitEvent) error {
	if t.MaxWait > 0 && ev.Duration > t.MaxWait {
		return fmt.Errorf("%w: %s wait of %s (max %s)", ErrWaitTooLong, ev.Reason, ev.Duration, t.MaxWait)
	}
	if ev.Reason != WaitPace {
		t.waits.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(ev.Reason))))
	}
	if t.OnWait != nil {
		t.OnWait(ev)
	}
	return t.clock.Sleep(ctx, ev.Duration)
}

func (t *Transport) quotaDelay(resp *Response) time.Duration {
	if d, ok := retryAfter(resp.Header); ok {
		return d
	}
	if d := t.budget.Reset.Sub(t.clock.Now()); d > 0 {
		// Reset has one-second granularity.
		return d + time.Second
	}
	return DefaultQuotaFallback
}

func (t *Transport) retryDelay(resp *Response, bo backoff.BackOff) (time.Duration, bool) {
	if resp != nil {
		if d, ok := retryAfter(resp.Header); ok {
			return d, true
		}
	}
	d := bo.NextBackOff()
	if d == backoff.Stop {
		return 0, false
	}
	return d, true
}

func (t *Transport) send(ctx context.Context, req *Request) (*Response, error) {
	t.lastCall = t.clock.Now()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}

func (t *Transport) fail(req *Request, kind Class, resp *Response, attempts int, err error) *Error {
	e := &Error{Kind: kind, Method: req.Method, URL: req.URL, Attempts: attempts, Err: err}
	if resp != nil {
		e.StatusCode = resp.StatusCode
		e.Body = resp.Body
	}
	return e
}
