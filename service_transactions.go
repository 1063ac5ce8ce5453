package gallerykit

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"
)

// RetryPolicy controls how transactions are retried on transient store errors.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy retries three times starting at 100ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    2 * time.Second,
	}
}

// backoff returns the wait before the given retry (0-based), with 10-15% jitter.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseDelay << uint(attempt)
	if p.MaxDelay > 0 && (d > p.MaxDelay || d <= 0) {
		d = p.MaxDelay
	}
	jitter := time.Duration(float64(d) * 0.1 * (0.5 + rand.Float64()))
	return d + jitter
}

// transaction runs fn in a store transaction, retrying transient failures.
// fn may run more than once, so it must derive every write from what it reads.
func (s *Service) transaction(ctx context.Context, name string, fn func(ctx context.Context, tx Store) error) error {
	attempts := s.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		start := time.Now()
		err = s.store.WithinTx(ctx, fn)
		s.metrics.observeTransaction(name, time.Since(start), err)
		if err == nil || !isTransientTransactionError(err) || attempt == attempts-1 {
			break
		}

		wait := s.retry.backoff(attempt)
		s.logger.WithError(err).
			WithField("tx", name).
			WithField("attempt", attempt+1).
			Warnf("transient transaction failure, retrying in %s", wait)
		s.metrics.transactionRetried(name)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

var transientErrors = []string{
	"deadlock",
	"could not serialize access",
	"serialization failure",
	"lock wait timeout",
	"connection refused",
	"connection reset",
	"broken pipe",
	"bad connection",
	"temporary failure",
	"try again",
	"resource temporarily unavailable",
}

// isTransientTransactionError reports whether retrying the transaction may succeed.
// Classified gallery errors and context cancellation are never transient.
func isTransientTransactionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var gErr *Error
	if errors.As(err, &gErr) && !errors.Is(gErr.Err, ErrDependency) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, t := range transientErrors {
		if strings.Contains(msg, t) {
			return true
		}
	}
	return false
}
