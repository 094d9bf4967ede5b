// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package ledger

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisLedger implements [Ledger] on the shared Redis client.
type RedisLedger struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisLedger creates a Redis-backed Ledger.
func NewRedisLedger(client *redis.Client, logger *slog.Logger) *RedisLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLedger{client: client, logger: logger}
}

/*
IsSuccess reports whether a chapter URL is already in the success set.

Parameters:
  - context: context.Context
  - siteName: string
  - bookID: string
  - url: string

Returns:
  - bool: false on store errors, so the chapter is downloaded again
*/
func (store *RedisLedger) IsSuccess(context context.Context, siteName string, bookID string, url string) bool {

	// Membership check against the success set
	persisted, err := store.client.SIsMember(context, SuccessKey(siteName, bookID), url).Result()

	// Degrade to "not downloaded" when the store is unreachable
	if err != nil {
		store.logger.Warn("ledger_check_failed",
			slog.String("site", siteName),
			slog.String("book_id", bookID),
			slog.Any("error", err),
		)
		return false
	}

	return persisted
}

/*
MarkSuccess records a chapter URL as persisted.

Description: Adds the URL to the success set, drops it from the failure set
and refreshes the success set's retention window, all in one atomic batch.

Parameters:
  - context: context.Context
  - siteName: string
  - bookID: string
  - url: string
*/
func (store *RedisLedger) MarkSuccess(context context.Context, siteName string, bookID string, url string) {

	successKey := SuccessKey(siteName, bookID)

	// Promote the URL and refresh retention in one round trip
	_, err := store.client.TxPipelined(context, func(pipe redis.Pipeliner) error {
		pipe.SAdd(context, successKey, url)
		pipe.SRem(context, FailedKey(siteName, bookID), url)
		pipe.Expire(context, successKey, SuccessTTL)
		return nil
	})

	if err != nil {
		store.logger.Warn("ledger_mark_success_failed",
			slog.String("site", siteName),
			slog.String("book_id", bookID),
			slog.Any("error", err),
		)
	}
}

/*
MarkFailure records a chapter URL as failed.

Parameters:
  - context: context.Context
  - siteName: string
  - bookID: string
  - url: string
*/
func (store *RedisLedger) MarkFailure(context context.Context, siteName string, bookID string, url string) {

	failedKey := FailedKey(siteName, bookID)

	// Record the failure and refresh retention in one round trip
	_, err := store.client.TxPipelined(context, func(pipe redis.Pipeliner) error {
		pipe.SAdd(context, failedKey, url)
		pipe.Expire(context, failedKey, FailedTTL)
		return nil
	})

	if err != nil {
		store.logger.Warn("ledger_mark_failure_failed",
			slog.String("site", siteName),
			slog.String("book_id", bookID),
			slog.Any("error", err),
		)
	}
}

/*
Stats returns the success and failure set sizes for one book.

Parameters:
  - context: context.Context
  - siteName: string
  - bookID: string

Returns:
  - int64: URLs recorded as persisted
  - int64: URLs recorded as failed
*/
func (store *RedisLedger) Stats(context context.Context, siteName string, bookID string) (int64, int64) {

	successCount, err := store.client.SCard(context, SuccessKey(siteName, bookID)).Result()
	if err != nil {
		store.logger.Warn("ledger_stats_failed",
			slog.String("site", siteName),
			slog.String("book_id", bookID),
			slog.Any("error", err),
		)
		return 0, 0
	}

	failedCount, err := store.client.SCard(context, FailedKey(siteName, bookID)).Result()
	if err != nil {
		store.logger.Warn("ledger_stats_failed",
			slog.String("site", siteName),
			slog.String("book_id", bookID),
			slog.Any("error", err),
		)
		return 0, 0
	}

	return successCount, failedCount
}

/*
ClearFailures empties the failure set so every failed chapter becomes
eligible for a fresh attempt.

Parameters:
  - context: context.Context
  - siteName: string
  - bookID: string
*/
func (store *RedisLedger) ClearFailures(context context.Context, siteName string, bookID string) {

	failedKey := FailedKey(siteName, bookID)

	// Count first so the log line reports how many retries were unlocked
	count, err := store.client.SCard(context, failedKey).Result()
	if err != nil {
		store.logger.Warn("ledger_clear_failed",
			slog.String("site", siteName),
			slog.String("book_id", bookID),
			slog.Any("error", err),
		)
		return
	}
	if count == 0 {
		return
	}

	if err := store.client.Del(context, failedKey).Err(); err != nil {
		store.logger.Warn("ledger_clear_failed",
			slog.String("site", siteName),
			slog.String("book_id", bookID),
			slog.Any("error", err),
		)
		return
	}

	store.logger.Info("ledger_failures_cleared",
		slog.String("site", siteName),
		slog.String("book_id", bookID),
		slog.Int64("cleared", count),
	)
}
