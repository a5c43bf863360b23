package syncer

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tildaslashalef/linkmark/internal/api"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = time.Second
	maxRetryDelay     = 30 * time.Second
)

// Policy controls the retry behavior of remote calls
type Policy struct {
	MaxRetries  int
	BaseDelay   time.Duration
	ShouldRetry func(error) bool
	OnRetry     func(attempt int, err error)
}

// DefaultPolicy returns the retry policy used for sync operations:
// up to 3 retries with exponential backoff starting at 1s, capped at 30s,
// with 10% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:  defaultMaxRetries,
		BaseDelay:   defaultBaseDelay,
		ShouldRetry: ShouldRetry,
	}
}

// ShouldRetry is the default transient-error classifier. Authentication,
// client-side and conflict errors are final; network, timeout, server and
// rate-limit errors are retried. Unclassified errors default to retry.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if IsCancel(err) {
		return false
	}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return true
		case apiErr.StatusCode >= 500:
			return true
		case apiErr.StatusCode >= 400:
			return false
		case apiErr.StatusCode >= 200:
			// a failure envelope under a 2xx status is an application-level
			// rejection, not a transient fault
			return false
		}
	}

	var rateErr *api.RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{"unauthorized", "forbidden", "not found", "bad request"} {
		if strings.Contains(msg, s) {
			return false
		}
	}

	return true
}

// Retry executes fn with exponential backoff under the given policy,
// checking the cancellation token before every attempt. Cancellation and
// non-retryable errors stop the loop immediately.
func Retry[T any](ctx context.Context, tok *Token, p Policy, fn func() (T, error)) (T, error) {
	if p.ShouldRetry == nil {
		p.ShouldRetry = ShouldRetry
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.1
	b.MaxInterval = maxRetryDelay
	b.MaxElapsedTime = 0

	var policy backoff.BackOff = backoff.WithMaxRetries(b, uint64(p.MaxRetries))
	policy = backoff.WithContext(policy, ctx)

	attempt := 0
	operation := func() (T, error) {
		var zero T
		if tok != nil {
			if err := tok.Check(); err != nil {
				return zero, backoff.Permanent(err)
			}
		}
		out, err := fn()
		if err != nil && !p.ShouldRetry(err) {
			return zero, backoff.Permanent(err)
		}
		return out, err
	}

	notify := func(err error, _ time.Duration) {
		attempt++
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
	}

	return backoff.RetryNotifyWithData(operation, policy, notify)
}
