// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, rate limits, and cross-cutting keys that are shared
between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Rate Limiting: Burst capacities and IP tracking TTLs.
  - Crawling: House defaults for site configs that omit tuning fields.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "novira-api"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second
)

// # Rate Limiting

const (
	// DefaultRateLimitRPS is the requests per second allowed per IP.
	DefaultRateLimitRPS = 100.0

	// DefaultRateLimitBurst is the maximum burst allowed for the rate limiter.
	DefaultRateLimitBurst = 150

	// RateLimitCleanupInterval is how often old IP entries are removed from memory.
	RateLimitCleanupInterval = 1 * time.Minute

	// RateLimitClientTTL is how long a client must be idle before its entry is deleted.
	RateLimitClientTTL = 3 * time.Minute
)

// # Crawling Defaults

// Site configs may omit tuning fields; these are the fallbacks applied by the
// config layer's fault-tolerant accessors.
const (
	// DefaultFetchTimeoutSecs is the per-request socket timeout.
	DefaultFetchTimeoutSecs = 30

	// DefaultRequestDelaySecs is the pause after each persisted chapter.
	DefaultRequestDelaySecs = 0.3

	// DefaultMaxRetries bounds fetch attempts per URL.
	DefaultMaxRetries = 20

	// DefaultTaskWorkers is the chapter worker count when a task omits it.
	DefaultTaskWorkers = 5

	// DefaultListMaxPages caps chapter-list pagination when the config
	// sets no manual maximum.
	DefaultListMaxPages = 100

	// DefaultContentMaxPages caps sub-page pagination within one chapter.
	DefaultContentMaxPages = 5
)

// # HTTP Headers

const (
	// HeaderXRequestID carries the correlation ID across service boundaries.
	HeaderXRequestID = "X-Request-ID"

	// HeaderOrigin is the CORS origin header sent by browsers.
	HeaderOrigin = "Origin"

	// HeaderXRealIP and HeaderXForwardedFor identify the client behind proxies.
	HeaderXRealIP       = "X-Real-IP"
	HeaderXForwardedFor = "X-Forwarded-For"
)

// # JSON Field Identifiers

const (
	FieldData    = "data"
	FieldMeta    = "meta"
	FieldError   = "error"
	FieldCode    = "code"
	FieldDetails = "details"
	FieldItems   = "items"
	FieldTotal   = "total"
	FieldMessage = "message"
	FieldStatus  = "status"
	FieldApp     = "app"
	FieldVersion = "version"
	FieldChecks  = "checks"
)

// # Database Schemas

const (
	SchemaCore    = "core"
	SchemaCrawler = "crawler"
)
