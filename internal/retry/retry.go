// Copyright (c) 2026 lpsprint
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package retry executes operations against flaky upstreams with bounded
// exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/lpsprint/sprint/internal/log"
	"github.com/lpsprint/sprint/internal/metrics"
)

// Policy holds the backoff knobs. Zero values are replaced by DefaultPolicy
// fields. Policies are immutable and safely shared by value.
type Policy struct {
	MaxRetries int           // retries after the initial attempt
	BaseDelay  time.Duration // first backoff delay, doubled each retry
	MaxDelay   time.Duration // cap applied to the exponential delay before jitter
}

// DefaultPolicy returns the service-wide retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   10 * time.Second,
	}
}

// Single derives a one-attempt policy, used for liveness probes where the
// caller owns the retry cadence.
func (p Policy) Single() Policy {
	p.MaxRetries = 0
	return p
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	return p
}

// newBackOff builds the jittered exponential schedule: delay n is
// min(MaxDelay, BaseDelay*2^n) scaled by a uniform factor in [0.75, 1.25].
func (p Policy) newBackOff() backoff.BackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.BaseDelay),
		backoff.WithMaxInterval(p.MaxDelay),
		backoff.WithMultiplier(2.0),
		backoff.WithRandomizationFactor(0.25),
		backoff.WithMaxElapsedTime(0),
	)
}

// ExhaustedError aggregates a failed execution: how many attempts ran and
// the last error observed. Unwrap exposes the last error for errors.Is/As.
type ExhaustedError struct {
	Operation string
	Attempts  int
	Err       error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: %s failed after %d attempts: %v", e.Operation, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Classifier decides whether an error is worth retrying.
type Classifier func(error) bool

// DefaultClassifier treats errors that declare themselves transient (a
// Transient() bool method, e.g. *solana.RPCError) and network timeouts as
// retryable. Everything else is terminal.
func DefaultClassifier(err error) bool {
	var t interface{ Transient() bool }
	if errors.As(err, &t) {
		return t.Transient()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

type options struct {
	classify Classifier
}

// Option adjusts a single execution.
type Option func(*options)

// WithClassifier overrides the transient-vs-terminal decision for this call.
func WithClassifier(fn Classifier) Option {
	return func(o *options) { o.classify = fn }
}

// Do runs fn under the policy: transient failures back off and retry,
// terminal failures return immediately, and an exhausted budget returns an
// *ExhaustedError wrapping the last failure. Cancelling ctx interrupts a
// pending backoff sleep.
func Do[T any](ctx context.Context, policy Policy, operation string, fn func(context.Context) (T, error), opts ...Option) (T, error) {
	o := options{classify: DefaultClassifier}
	for _, opt := range opts {
		opt(&o)
	}
	policy = policy.withDefaults()
	logger := log.WithComponent("retry")

	attempts := 0
	terminal := false
	op := func() (T, error) {
		attempts++
		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		if !o.classify(err) {
			terminal = true
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	notify := func(err error, delay time.Duration) {
		logger.Warn().
			Str("event", "retry.backoff").
			Str("operation", operation).
			Int("attempt", attempts).
			Dur("delay", delay).
			Err(err).
			Msg("transient failure, backing off")
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(policy.newBackOff(), uint64(policy.MaxRetries)), ctx)

	res, err := backoff.RetryNotifyWithData(op, bo, notify)
	metrics.ObserveRetryAttempts(operation, attempts)
	if err == nil {
		return res, nil
	}

	if terminal {
		logger.Debug().
			Str("event", "retry.terminal").
			Str("operation", operation).
			Int("attempt", attempts).
			Err(err).
			Msg("terminal failure, not retrying")
		return res, err
	}

	if ctx.Err() == nil {
		metrics.IncRetriesExhausted(operation)
	}
	agg := &ExhaustedError{Operation: operation, Attempts: attempts, Err: err}
	logger.Error().
		Str("event", "retry.exhausted").
		Str("operation", operation).
		Int("attempts", attempts).
		Err(err).
		Msg("giving up")
	return res, agg
}

// Run is Do for operations without a result value.
func Run(ctx context.Context, policy Policy, operation string, fn func(context.Context) error, opts ...Option) error {
	_, err := Do(ctx, policy, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, opts...)
	return err
}
