package repositories

import (
	"context"
	"errors"

	"library/internal/retry"
)

// RetryingStore re-runs a whole transaction when it loses an optimistic
// concurrency race. Each attempt starts from a fresh transaction.
type RetryingStore struct {
	Store
	options []retry.Option
}

// NewRetryingStore wraps store so that Transaction retries on
// ErrConcurrencyConflict.
func NewRetryingStore(store Store, options ...retry.Option) *RetryingStore {
	return &RetryingStore{Store: store, options: options}
}

// Transaction runs fn through the wrapped store, retrying conflicts.
func (s *RetryingStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return retry.Do(ctx, func(ctx context.Context) error {
		return s.Store.Transaction(ctx, fn)
	}, IsConflict, s.options...)
}

// IsConflict reports whether err is a lost optimistic concurrency race.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
