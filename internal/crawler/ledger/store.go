// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package ledger records per-book chapter download outcomes in a shared store.

Each site and book pair owns two URL sets: one for chapters that were fully
persisted, one for chapters that failed. Crawl runs consult the success set
to skip finished work, so interrupted or repeated runs converge on the
remaining chapters instead of downloading everything again. The failure set
bounds how long failed URLs stay visible for retry accounting.

The sets are shared across processes. Concurrent crawlers coordinate through
the store's native set operations, which are atomic per member.

# Degradation

The ledger is an optimization, never a gatekeeper. No operation returns an
error: store failures are logged as warnings and answered pessimistically
("not downloaded", zero counts), and the crawl proceeds without skip support.
*/
package ledger

import (
	"context"
	"fmt"
	"time"
)

// # Retention

const (
	// SuccessTTL is how long a book's success set survives after its last
	// write. Long (30 days) so resumed crawls of ongoing serials still skip
	// previously persisted chapters.
	SuccessTTL = 30 * 24 * time.Hour

	// FailedTTL is how long a book's failure set survives after its last
	// write. Short (7 days) so stale failures age out on their own.
	FailedTTL = 7 * 24 * time.Hour
)

// # Key Layout

// SuccessKey returns the shared set key "success:{site_name}:{book_id}"
// holding chapter URLs already persisted. The site name is the config's
// site.name, verbatim.
func SuccessKey(siteName string, bookID string) string {
	return fmt.Sprintf("success:%s:%s", siteName, bookID)
}

// FailedKey returns the shared set key "failed:{site_name}:{book_id}"
// holding chapter URLs whose last attempt failed.
func FailedKey(siteName string, bookID string) string {
	return fmt.Sprintf("failed:%s:%s", siteName, bookID)
}

// # Ledger Contract

// Ledger tracks chapter download outcomes for one site and book at a time.
// Implementations must be safe for concurrent use and must never surface
// store errors to callers.
type Ledger interface {

	/*
		IsSuccess reports whether a chapter URL is already recorded as
		persisted.

		Description: Store errors answer false, so the caller downloads the
		chapter again rather than wrongly skipping it.

		Parameters:
		  - context: context.Context
		  - siteName: string
		  - bookID: string
		  - url: string

		Returns:
		  - bool: true when the URL is in the success set
	*/
	IsSuccess(context context.Context, siteName string, bookID string, url string) bool

	/*
		MarkSuccess records a chapter URL as persisted.

		Description: Adds the URL to the success set, removes it from the
		failure set and refreshes the success set's retention window.

		Parameters:
		  - context: context.Context
		  - siteName: string
		  - bookID: string
		  - url: string
	*/
	MarkSuccess(context context.Context, siteName string, bookID string, url string)

	/*
		MarkFailure records a chapter URL as failed and refreshes the
		failure set's retention window.

		Parameters:
		  - context: context.Context
		  - siteName: string
		  - bookID: string
		  - url: string
	*/
	MarkFailure(context context.Context, siteName string, bookID string, url string)

	/*
		Stats returns the current success and failure set sizes.

		Parameters:
		  - context: context.Context
		  - siteName: string
		  - bookID: string

		Returns:
		  - int64: URLs recorded as persisted (0 on store errors)
		  - int64: URLs recorded as failed (0 on store errors)
	*/
	Stats(context context.Context, siteName string, bookID string) (int64, int64)

	/*
		ClearFailures empties the failure set so every failed chapter
		becomes eligible for a fresh attempt.

		Parameters:
		  - context: context.Context
		  - siteName: string
		  - bookID: string
	*/
	ClearFailures(context context.Context, siteName string, bookID string)
}

// # Noop Implementation

// Noop is a [Ledger] that records nothing and reports nothing as persisted.
// It stands in when no shared store is configured, degrading crawls to
// always re-download.
type Noop struct{}

// IsSuccess implements [Ledger].
func (Noop) IsSuccess(context.Context, string, string, string) bool { return false }

// MarkSuccess implements [Ledger].
func (Noop) MarkSuccess(context.Context, string, string, string) {}

// MarkFailure implements [Ledger].
func (Noop) MarkFailure(context.Context, string, string, string) {}

// Stats implements [Ledger].
func (Noop) Stats(context.Context, string, string) (int64, int64) { return 0, 0 }

// ClearFailures implements [Ledger].
func (Noop) ClearFailures(context.Context, string, string) {}
