package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/metrics"
	"github.com/rl1809/cart-checkout/pkg/retry"
)

// StorePolicy bounds every store call with a timeout. Reads that fail
// transiently are retried; writes never are.
type StorePolicy struct {
	Timeout     time.Duration
	ReadRetries int
	RetryDelay  time.Duration
}

func DefaultStorePolicy() StorePolicy {
	return StorePolicy{
		Timeout:     3 * time.Second,
		ReadRetries: 3,
		RetryDelay:  50 * time.Millisecond,
	}
}

// OrderRecorder is told about every order a checkout writes.
type OrderRecorder interface {
	RecordOrder(order domain.Order)
}

type options struct {
	log      zerolog.Logger
	metrics  *metrics.Metrics
	policy   StorePolicy
	recorder OrderRecorder
}

type Option func(*options)

func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithStorePolicy(p StorePolicy) Option {
	return func(o *options) { o.policy = p }
}

func WithOrderRecorder(r OrderRecorder) Option {
	return func(o *options) { o.recorder = r }
}

func newOptions(opts []Option) options {
	o := options{
		log:     zerolog.Nop(),
		metrics: metrics.Nop(),
		policy:  DefaultStorePolicy(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// write runs a single store mutation under the timeout.
func (o options) write(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, o.policy.Timeout)
	defer cancel()
	return fn(ctx)
}

// read runs fn under the timeout, retrying transient failures.
func read[T any](ctx context.Context, o options, fn func(context.Context) (T, error)) (T, error) {
	return retry.DoWithResult(ctx, retry.Config{
		MaxAttempts: o.policy.ReadRetries,
		Backoff:     retry.ExponentialBackoff(o.policy.RetryDelay),
		ShouldRetry: domain.IsTransient,
	}, func() (T, error) {
		callCtx, cancel := context.WithTimeout(ctx, o.policy.Timeout)
		defer cancel()
		return fn(callCtx)
	})
}

func validateIDs(cartID string, productIDs ...string) error {
	if cartID == "" {
		return domain.ErrInvalidCartID
	}
	for _, id := range productIDs {
		if id == "" {
			return domain.ErrInvalidProductID
		}
	}
	return nil
}
