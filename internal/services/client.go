package services

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	"github.com/desertthunder/spotsync/internal/shared"
	"golang.org/x/time/rate"
)

// RetryPolicy bounds how long a [Client] waits out throttling and transient failures.
type RetryPolicy struct {
	MaxRateLimitRetries int           // retries after a 429 before giving up
	MaxTransientRetries int           // retries after a 5xx or network error
	BaseDelay           time.Duration // first backoff step when no Retry-After is given
	MaxDelay            time.Duration // ceiling for computed backoff
}

// DefaultRetryPolicy returns three rate-limit retries, two transient retries and a one second base delay.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRateLimitRetries: 3,
		MaxTransientRetries: 2,
		BaseDelay:           time.Second,
		MaxDelay:            30 * time.Second,
	}
}

// RetryPolicyFromConfig converts the api section of the config file.
func RetryPolicyFromConfig(cfg shared.APIConfig) RetryPolicy {
	return RetryPolicy{
		MaxRateLimitRetries: cfg.MaxRateLimitRetries,
		MaxTransientRetries: cfg.MaxTransientRetries,
		BaseDelay:           time.Duration(cfg.BaseDelayMS) * time.Millisecond,
		MaxDelay:            time.Duration(cfg.MaxDelayMS) * time.Millisecond,
	}
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if d <= 0 || (p.MaxDelay > 0 && d > p.MaxDelay) {
		return p.MaxDelay
	}
	return d
}

// APIError is a non-2xx provider response that is not retried (or ran out of retries).
//
// It unwraps to one of the shared sentinels, so callers test it with [errors.Is]:
// 401 -> [shared.ErrTokenExpired], 403 -> [shared.ErrPermissionDenied],
// 404 -> [shared.ErrNotFound], 429 -> [shared.ErrRateLimitExceeded],
// 5xx -> [shared.ErrTransientProvider], anything else -> [shared.ErrAPIRequest].
type APIError struct {
	Status   int
	Endpoint string
	Message  string
	kind     error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("%v: %s returned %d: %s", e.kind, e.Endpoint, e.Status, msg)
}

func (e *APIError) Unwrap() error { return e.kind }

// newAPIError builds an [APIError] from a provider error body ({"error": {"status", "message"}}).
func newAPIError(req Request, resp *Response, kind error) *APIError {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.Unmarshal(resp.Body, &body)

	return &APIError{
		Status:   resp.StatusCode,
		Endpoint: req.endpoint(),
		Message:  body.Error.Message,
		kind:     kind,
	}
}

func kindForStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return shared.ErrTokenExpired
	case status == http.StatusForbidden:
		return shared.ErrPermissionDenied
	case status == http.StatusNotFound:
		return shared.ErrNotFound
	case status == http.StatusTooManyRequests:
		return shared.ErrRateLimitExceeded
	case status >= 500:
		return shared.ErrTransientProvider
	default:
		return shared.ErrAPIRequest
	}
}

// ClientOption configures a [Client].
type ClientOption func(*Client)

// WithRetryPolicy replaces the [DefaultRetryPolicy].
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) { c.policy = p }
}

// WithLimiter paces outgoing requests. The default limiter never blocks.
func WithLimiter(l *rate.Limiter) ClientOption {
	return func(c *Client) { c.limiter = l }
}

// WithLogger sets the logger receiving debug request traces and backoff warnings.
func WithLogger(l *log.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithSleep replaces the backoff sleep, mainly so tests do not wait in real time.
func WithSleep(sleep func(context.Context, time.Duration) error) ClientOption {
	return func(c *Client) { c.sleep = sleep }
}

// Client sends [Request]s through a [Transport] applying pacing, bounded
// retries and typed errors. It is safe for sequential use by one operation.
type Client struct {
	transport Transport
	policy    RetryPolicy
	limiter   *rate.Limiter
	logger    *log.Logger
	sleep     func(context.Context, time.Duration) error
}

// NewClient creates a new [Client] over t.
func NewClient(t Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport: t,
		policy:    DefaultRetryPolicy(),
		limiter:   rate.NewLimiter(rate.Inf, 1),
		logger:    shared.NewLogger(nil),
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do sends req and returns the first 2xx response.
//
// A 429 is retried for any method after Retry-After (or backoff) until
// MaxRateLimitRetries is spent. A 5xx or network error is retried up to
// MaxTransientRetries, but only for idempotent requests: a POST that fails
// ambiguously is surfaced at once so the caller never creates duplicates.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	var throttled, transient int

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := c.transport.Do(ctx, req)
		elapsed := time.Since(start)

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				c.trace(req, elapsed, "cancelled")
				return nil, ctxErr
			}
			c.trace(req, elapsed, "network error", "error", err)
			if errors.Is(err, shared.ErrAuth) {
				return nil, err
			}

			failure := errors.Mark(errors.Wrapf(err, "%s", req.endpoint()), shared.ErrTransientProvider)
			if !req.Idempotent() || transient >= c.policy.MaxTransientRetries {
				return nil, failure
			}
			if err := c.wait(ctx, req, c.policy.backoff(transient), "network error"); err != nil {
				return nil, err
			}
			transient++
			continue
		}

		c.trace(req, elapsed, strconv.Itoa(resp.StatusCode))

		switch status := resp.StatusCode; {
		case status >= 200 && status < 300:
			return resp, nil

		case status == http.StatusTooManyRequests:
			if throttled >= c.policy.MaxRateLimitRetries {
				apiErr := newAPIError(req, resp, shared.ErrRateLimitExceeded)
				apiErr.Message = fmt.Sprintf("still throttled after %d retries", throttled)
				return nil, apiErr
			}
			delay, ok := retryAfter(resp.Header)
			if !ok {
				delay = c.policy.backoff(throttled)
			}
			if err := c.wait(ctx, req, delay, "rate limited"); err != nil {
				return nil, err
			}
			throttled++

		case status >= 500:
			apiErr := newAPIError(req, resp, shared.ErrTransientProvider)
			if !req.Idempotent() || transient >= c.policy.MaxTransientRetries {
				return nil, apiErr
			}
			if err := c.wait(ctx, req, c.policy.backoff(transient), "server error"); err != nil {
				return nil, err
			}
			transient++

		default:
			return nil, newAPIError(req, resp, kindForStatus(status))
		}
	}
}

// JSON sends req and decodes a 2xx body into out. A nil out discards the body.
func (c *Client) JSON(ctx context.Context, req Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return errors.Wrapf(shared.ErrAPIRequest, "%s: decoding response: %v", req.endpoint(), err)
	}
	return nil
}

func (c *Client) wait(ctx context.Context, req Request, d time.Duration, reason string) error {
	c.logger.Warn("backing off", "reason", reason, "endpoint", req.endpoint(), "delay", d)
	return c.sleep(ctx, d)
}

func (c *Client) trace(req Request, elapsed time.Duration, outcome string, kv ...any) {
	fields := append([]any{"method", req.Method, "endpoint", req.Path, "elapsed", elapsed, "outcome", outcome}, kv...)
	c.logger.Debug("spotify request", fields...)
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(h http.Header) (time.Duration, bool) {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Page is the provider's paging object.
type Page[T any] struct {
	Items  []T     `json:"items"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
	Next   *string `json:"next"`
}

// Paginate lazily walks a paged endpoint, fetching the next page only once the
// previous one has been consumed. It follows "next" until the provider returns
// null. The first error is yielded once and ends the sequence.
func Paginate[T any](ctx context.Context, c *Client, req Request) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		for {
			var page Page[T]
			if err := c.JSON(ctx, req, &page); err != nil {
				yield(zero, err)
				return
			}

			for _, item := range page.Items {
				if !yield(item, nil) {
					return
				}
			}

			if page.Next == nil || *page.Next == "" {
				return
			}
			req = Request{Method: http.MethodGet, Path: *page.Next}
		}
	}
}
