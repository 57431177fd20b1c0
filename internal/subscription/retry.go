package subscription

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoffStep = time.Second
)

// RetryPolicy линейный повтор: пауза перед попыткой n+1 равна n*Step.
type RetryPolicy struct {
	MaxAttempts int
	Step        time.Duration
}

// DefaultRetryPolicy 3 попытки с шагом 1s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, Step: DefaultBackoffStep}
}

// linearBackOff реализует backoff.BackOff с паузой attempt*step.
type linearBackOff struct {
	step    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.step
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

// Do выполняет op до MaxAttempts раз. Ошибки, обернутые backoff.Permanent, не повторяются.
// Возвращает число выполненных попыток и последнюю ошибку.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context, attempt int) error, notify func(err error, attempt int, wait time.Duration)) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempts := 0
	operation := func() error {
		attempts++
		return op(ctx, attempts)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{step: p.Step}, uint64(maxAttempts-1)),
		ctx,
	)

	err := backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		if notify != nil {
			notify(err, attempts, wait)
		}
	})
	return attempts, err
}
