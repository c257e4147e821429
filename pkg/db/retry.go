package db

import (
	"context"
	"time"

	pkgerrors "github.com/angelmondragon/packfinderz-fulfillment/pkg/errors"
	"gorm.io/gorm"
)

const retryBaseWait = 50 * time.Millisecond

// RetryTx runs fn in a fresh transaction up to attempts times while the
// failure is a serialization failure or a lost compare-and-set.
func RetryTx(ctx context.Context, runner TxRunner, attempts int, fn func(tx *gorm.DB) error) error {
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		err = runner.WithTx(ctx, fn)
		if err == nil || !IsRetryable(err) {
			return TranslateTxError(err)
		}
		if attempt == attempts-1 {
			break
		}

		wait := time.Duration(attempt+1) * retryBaseWait
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return TranslateTxError(err)
}

// IsRetryable reports whether a unit of work failed only because of contention.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsSerializationFailure(err) {
		return true
	}
	return pkgerrors.Is(err, pkgerrors.CodeConcurrencyConflict)
}

// TranslateTxError maps raw contention failures to CONCURRENCY_CONFLICT and
// leaves typed errors untouched.
func TranslateTxError(err error) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	if IsSerializationFailure(err) {
		return pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, err, "concurrent update detected")
	}
	return err
}
