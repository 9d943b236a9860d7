package adapter

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/m-mizutani/culprit/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

const (
	defaultMaxRetries  = 3
	defaultBaseBackoff = 2 * time.Second
	defaultMaxBackoff  = 32 * time.Second
)

// RetryTransport retries idempotent requests (GET and HEAD) on network errors, 429 and 5xx
// responses with exponential backoff. Other methods pass through untouched.
type RetryTransport struct {
	base        http.RoundTripper
	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

type RetryOption func(*RetryTransport)

func WithMaxRetries(n int) RetryOption {
	return func(t *RetryTransport) {
		t.maxRetries = n
	}
}

func WithBackoff(base, maxWait time.Duration) RetryOption {
	return func(t *RetryTransport) {
		t.baseBackoff = base
		t.maxBackoff = maxWait
	}
}

func NewRetryTransport(base http.RoundTripper, opts ...RetryOption) *RetryTransport {
	if base == nil {
		base = http.DefaultTransport
	}

	t := &RetryTransport{
		base:        base,
		maxRetries:  defaultMaxRetries,
		baseBackoff: defaultBaseBackoff,
		maxBackoff:  defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// retryableStatus carries a 429 or 5xx response through backoff. The body stays open so that
// the last response can be returned as is.
type retryableStatus struct {
	resp *http.Response
}

func (e *retryableStatus) Error() string {
	return "retryable status " + strconv.Itoa(e.resp.StatusCode)
}

// retryAfterBackOff prefers the server's Retry-After hint over the exponential schedule.
type retryAfterBackOff struct {
	backoff.BackOff
	hint    time.Duration
	maxWait time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop || b.hint < 0 {
		return next
	}
	wait := min(b.hint, b.maxWait)
	b.hint = -1
	return wait
}

func newExponentialBackOff(base, maxWait time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = maxWait
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return t.base.RoundTrip(req)
	}

	ctx := req.Context()
	schedule := &retryAfterBackOff{
		BackOff: newExponentialBackOff(t.baseBackoff, t.maxBackoff),
		hint:    -1,
		maxWait: t.maxBackoff,
	}

	attempt := 0
	operation := func() (*http.Response, error) {
		attempt++
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			return resp, nil
		}

		if sec, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && sec >= 0 {
			schedule.hint = time.Duration(sec) * time.Second
		}
		return nil, &retryableStatus{resp: resp}
	}

	notify := func(err error, wait time.Duration) {
		var rs *retryableStatus
		status := 0
		if errors.As(err, &rs) {
			status = rs.resp.StatusCode
			_, _ = io.Copy(io.Discard, rs.resp.Body)
			rs.resp.Body.Close()
		}
		logging.From(ctx).Debug("retrying request",
			"url", req.URL.String(),
			"attempt", attempt,
			"wait", wait,
			"status", status,
			"error", err,
		)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(schedule, uint64(max(t.maxRetries, 0))), ctx)
	resp, err := backoff.RetryNotifyWithData(operation, policy, notify)

	var rs *retryableStatus
	switch {
	case errors.As(err, &rs):
		// retries exhausted, hand the last response to the caller
		return rs.resp, nil
	case err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()):
		return nil, goerr.Wrap(err, "request canceled while waiting to retry", goerr.V("url", req.URL.String()))
	}
	return resp, err
}
