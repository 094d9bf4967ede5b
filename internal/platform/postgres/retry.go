// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package postgres

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// Retry policy for transient connection failures.
const (
	// retryAttempts caps how often one operation is re-run.
	retryAttempts = 3

	// retryBaseBackoff is the first wait; later waits double it.
	retryBaseBackoff = 100 * time.Millisecond
)

/*
Retry runs operation up to three times with exponential backoff while the
failure looks connection-shaped. Query-level errors return immediately.

Crawl writes ride inside hours-long runs where the pool recycles
connections; a dropped socket should cost one retry, not a failed chapter.

Parameters:
  - ctx: Cancels the backoff wait between attempts.
  - operation: The store call to re-run. Must be safe to repeat.

Returns:
  - error: nil, the first permanent error, or the last transient one.
*/
func Retry(ctx context.Context, operation func() error) error {
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			backoff := retryBaseBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err = operation()
		if err == nil || !isTransient(err) {
			return err
		}
	}

	return err
}

// isTransient classifies failures worth retrying.
func isTransient(err error) bool {
	// SQLSTATE class 08 covers connection exceptions raised server-side.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerrcode.IsConnectionException(pgErr.Code)
	}

	// pgconn marks errors raised before any data hit the wire.
	if pgconn.SafeToRetry(err) {
		return true
	}

	// Dial failures and resets surface as net errors.
	var netErr net.Error
	return errors.As(err, &netErr)
}
