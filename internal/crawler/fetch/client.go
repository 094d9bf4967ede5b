// Copyright (c) 2026 Novira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package fetch implements the HTTP page fetcher used by the crawl engine.

It wraps net/http with the behaviours legacy novel sites require: permissive
TLS, per-site header sets, a flat retry loop, optional per-attempt proxies,
and charset decoding for non-UTF-8 responses.

# Failure Model

[Client.Get] never returns an error: a page either decodes to a string or,
after the attempt budget is spent, reports ok=false. Workers treat a false
result as a per-chapter failure, not a crash.
*/
package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/taibuivan/novira/internal/platform/constants"
)

// defaultUserAgent is applied when a site config carries no header set.
const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36"

// # Proxy Supply

// ProxyProvider supplies an outbound proxy for each fetch attempt.
// Implementations must be safe for concurrent use.
type ProxyProvider interface {
	// Next returns the proxy for the upcoming request. A nil URL with a
	// nil error means dial directly.
	Next(context context.Context) (*url.URL, error)
}

// NopProxy is a [ProxyProvider] that always dials directly. Pool management
// lives outside this process; tasks that enable proxying without a pool
// configured fall through to direct connections.
type NopProxy struct{}

// Next implements [ProxyProvider].
func (NopProxy) Next(context.Context) (*url.URL, error) { return nil, nil }

// # Client

// Options configures a [Client]. Zero values fall back to house defaults.
type Options struct {
	Headers    map[string]string
	Timeout    time.Duration
	Encoding   string // charset override (e.g. "gbk"); empty means auto-detect
	MaxRetries int
	Proxy      ProxyProvider
	Logger     *slog.Logger
}

// Client fetches pages for one site. It is safe for concurrent use by the
// engine's worker pool.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	encoding   string
	maxRetries int
	logger     *slog.Logger
}

// NewClient constructs a [Client] from options.
//
// The underlying transport skips TLS verification: the target sites run
// legacy certificate setups that standard verification refuses.
func NewClient(options Options) *Client {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeout := options.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultFetchTimeoutSecs * time.Second
	}

	maxRetries := options.MaxRetries
	if maxRetries <= 0 {
		maxRetries = constants.DefaultMaxRetries
	}

	headers := options.Headers
	if len(headers) == 0 {
		headers = map[string]string{"User-Agent": defaultUserAgent}
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
	if options.Proxy != nil {
		provider := options.Proxy
		transport.Proxy = func(request *http.Request) (*url.URL, error) {
			proxyURL, err := provider.Next(request.Context())
			if err != nil {
				logger.Warn("proxy_unavailable", slog.Any("error", err))
				return nil, nil
			}
			return proxyURL, nil
		}
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		headers:    headers,
		encoding:   options.Encoding,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// # Fetching

/*
Get fetches a page, retrying up to the attempt budget.

Each attempt runs under the client's own timeout; callers cannot cancel an
in-flight request. Non-2xx statuses, transport errors, and timeouts all
count as failed attempts.

Parameters:
  - rawURL: string (Absolute page URL)

Returns:
  - string: The decoded HTML
  - bool: false when every attempt failed
*/
func (client *Client) Get(rawURL string) (string, bool) {
	for attempt := 1; attempt <= client.maxRetries; attempt++ {
		page, err := client.fetchOnce(rawURL)
		if err == nil {
			return page, true
		}

		client.logger.Warn("fetch_attempt_failed",
			slog.String("url", rawURL),
			slog.Int("attempt", attempt),
			slog.Any("error", err))
	}

	client.logger.Error("fetch_exhausted",
		slog.String("url", rawURL),
		slog.Int("attempts", client.maxRetries))
	return "", false
}

// fetchOnce performs a single GET attempt.
func (client *Client) fetchOnce(rawURL string) (string, error) {
	request, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	for key, value := range client.headers {
		request.Header.Set(key, value)
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return "", err
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, response.Body)
		return "", fmt.Errorf("http status %d", response.StatusCode)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	return client.decode(body, response.Header.Get("Content-Type")), nil
}

// decode converts a response body to UTF-8, honouring the configured
// charset override and falling back to sniffing headers and content.
func (client *Client) decode(body []byte, contentType string) string {
	var enc encoding.Encoding

	if client.encoding != "" {
		named, err := htmlindex.Get(client.encoding)
		if err != nil {
			client.logger.Warn("unknown_charset_override",
				slog.String("encoding", client.encoding))
		} else {
			enc = named
		}
	}

	if enc == nil {
		enc, _, _ = charset.DetermineEncoding(body, contentType)
	}

	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}
