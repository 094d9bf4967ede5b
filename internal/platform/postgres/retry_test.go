// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package postgres_test

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/novira/internal/platform/postgres"
)

/*
TestRetry_Success verifies a clean operation runs exactly once.
*/
func TestRetry_Success(t *testing.T) {
	calls := 0
	err := postgres.Retry(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

/*
TestRetry_PermanentError verifies query-level failures are not retried.
*/
func TestRetry_PermanentError(t *testing.T) {
	calls := 0
	permanent := errors.New("syntax error at or near SELECT")
	err := postgres.Retry(context.Background(), func() error {
		calls++
		return permanent
	})
	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

/*
TestRetry_TransientError verifies connection-shaped failures burn the full
attempt budget, and that a recovery inside the budget succeeds.
*/
func TestRetry_TransientError(t *testing.T) {
	transient := &net.OpError{Op: "read", Err: errors.New("connection reset by peer")}

	// 1. Never recovering consumes all three attempts.
	calls := 0
	err := postgres.Retry(context.Background(), func() error {
		calls++
		return transient
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	// 2. Recovering on the second attempt returns nil.
	calls = 0
	err = postgres.Retry(context.Background(), func() error {
		calls++
		if calls == 1 {
			return transient
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

/*
TestRetry_ContextCancelled verifies cancellation wins over the backoff wait.
*/
func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	transient := &net.OpError{Op: "dial", Err: errors.New("connection refused")}

	calls := 0
	err := postgres.Retry(ctx, func() error {
		calls++
		cancel()
		return transient
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
