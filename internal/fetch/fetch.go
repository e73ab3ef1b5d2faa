// Package fetch wraps every provider-facing call with the pipeline's retry,
// backoff and pagination policy.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrEmpty marks a call that succeeded but produced no usable result.
// It is always considered retryable.
var ErrEmpty = errors.New("empty result")

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

type rateLimitedError struct {
	err error
}

func (e *rateLimitedError) Error() string { return e.err.Error() }
func (e *rateLimitedError) Unwrap() error { return e.err }

// Transient marks err as a transient provider failure so Do retries it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// RateLimited marks err as a provider rate-limit rejection so Do retries it.
func RateLimited(err error) error {
	if err == nil {
		return nil
	}
	return &rateLimitedError{err: err}
}

// IsRetryable reports whether err belongs to the closed set of retryable
// error kinds: transient failures, rate limits and empty results.
func IsRetryable(err error) bool {
	var te *transientError
	var re *rateLimitedError
	return errors.As(err, &te) || errors.As(err, &re) || errors.Is(err, ErrEmpty)
}

// Fallback delays for policies that never configured them. Without these a
// zero-value Policy would burn its whole retry budget with no sleep at all.
const (
	defaultInitialDelay = 2 * time.Second
	defaultMaxDelay     = 30 * time.Second
)

// Policy configures retry behavior for one call site.
type Policy struct {
	// MaxRetries bounds retries; total attempts never exceed MaxRetries+1.
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// RetryEmpty treats a successful but empty result (per the call site's
	// empty predicate) as a retryable failure.
	RetryEmpty bool
	// Rand supplies backoff jitter. Seed it in tests for deterministic
	// delays; nil uses the shared source.
	Rand *rand.Rand
	// Timer overrides how delays are waited out; nil uses real time.
	Timer backoff.Timer
}

// normalized fills in the delay defaults so an unconfigured policy still
// backs off between attempts.
func (p Policy) normalized() Policy {
	if p.InitialDelay <= 0 {
		p.InitialDelay = defaultInitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	return p
}

// expBackoff implements backoff.BackOff with the schedule
// min(MaxDelay, InitialDelay * 2^(attempt-1) + jitter), jitter uniform in
// [0s, 1s).
type expBackoff struct {
	policy  Policy
	attempt int
}

func (b *expBackoff) NextBackOff() time.Duration {
	base := b.policy.InitialDelay
	for i := 0; i < b.attempt; i++ {
		base *= 2
		if base >= b.policy.MaxDelay {
			base = b.policy.MaxDelay
			break
		}
	}
	b.attempt++

	d := base + b.jitter()
	if d > b.policy.MaxDelay {
		d = b.policy.MaxDelay
	}
	return d
}

func (b *expBackoff) Reset() {
	b.attempt = 0
}

func (b *expBackoff) jitter() time.Duration {
	f := rand.Float64
	if b.policy.Rand != nil {
		f = b.policy.Rand.Float64
	}
	return time.Duration(f() * float64(time.Second))
}

type options[T any] struct {
	empty    func(T) bool
	fallback *T
	notify   backoff.Notify
}

// Option customizes a single Do invocation.
type Option[T any] func(*options[T])

// WithEmpty installs the predicate that decides whether a successful result
// counts as empty. Only consulted when the policy sets RetryEmpty.
func WithEmpty[T any](fn func(T) bool) Option[T] {
	return func(o *options[T]) {
		o.empty = fn
	}
}

// WithFallback returns v instead of the last error once the retry budget is
// spent.
func WithFallback[T any](v T) Option[T] {
	return func(o *options[T]) {
		o.fallback = &v
	}
}

// WithNotify reports each retryable failure and the delay before the next
// attempt.
func WithNotify[T any](fn backoff.Notify) Option[T] {
	return func(o *options[T]) {
		o.notify = fn
	}
}

// Do invokes call until it returns a usable result, a non-retryable error
// surfaces, or the retry budget is spent. Non-retryable errors propagate
// immediately.
func Do[T any](ctx context.Context, p Policy, call func(ctx context.Context) (T, error), opts ...Option[T]) (T, error) {
	var o options[T]
	for _, opt := range opts {
		opt(&o)
	}

	var result T
	operation := func() error {
		v, err := call(ctx)
		if err != nil {
			if IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		if p.RetryEmpty && o.empty != nil && o.empty(v) {
			return fmt.Errorf("%w", ErrEmpty)
		}

		result = v
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(&expBackoff{policy: p.normalized()}, uint64(p.MaxRetries)), ctx)

	if err := backoff.RetryNotifyWithTimer(operation, b, o.notify, p.Timer); err != nil {
		if o.fallback != nil {
			return *o.fallback, nil
		}

		var zero T
		return zero, err
	}

	return result, nil
}

// Page is one slice of a paginated provider response. An empty Next token
// signals exhaustion.
type Page[T any] struct {
	Items []T
	Next  string
}

// Paginate accumulates pages until target items are collected (target <= 0
// means until exhaustion) or the provider stops returning a continuation
// token. A retryable failure mid-pagination resumes from the last known
// token rather than restarting the accumulation.
func Paginate[T any](ctx context.Context, p Policy, target int, fn func(ctx context.Context, token string) (Page[T], error)) ([]T, error) {
	var items []T
	var token string

	for {
		page, err := Do(ctx, p, func(ctx context.Context) (Page[T], error) {
			return fn(ctx, token)
		})
		if err != nil {
			return items, err
		}

		items = append(items, page.Items...)

		if target > 0 && len(items) >= target {
			return items[:target], nil
		}
		if page.Next == "" {
			return items, nil
		}

		token = page.Next
	}
}
