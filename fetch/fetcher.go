// Package fetch retrieves raw filter list content from network sources.
// Every fetch is validated by safeurl first; a rejected URL is never
// contacted and the validation error is surfaced to the caller unchanged.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/listforge/listforge/safeurl"
)

// DefaultTimeout bounds a fetch when the caller does not set one.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent identifies the compiler to upstream list servers.
const DefaultUserAgent = "listforge/1.0 (+https://github.com/listforge/listforge)"

// FetchError reports a failed fetch: a timeout, a non-success HTTP status,
// or an empty response body.
type FetchError struct {
	URL        string
	StatusCode int
	Timeout    bool
	Reason     string
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Reason, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Reason)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Options control a single fetch.
type Options struct {
	// Timeout bounds the whole request. Zero means DefaultTimeout.
	Timeout time.Duration
	// UserAgent overrides the default User-Agent header.
	UserAgent string
	// AllowEmptyResponse accepts a 2xx response with an empty body.
	AllowEmptyResponse bool
	// Headers are extra request headers.
	Headers map[string]string
}

// Fetcher fetches source content over HTTP with SSRF validation.
type Fetcher struct {
	client *http.Client
	logger *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient replaces the underlying HTTP client, e.g. to install a proxy or
// a custom transport.
func WithClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// New creates a Fetcher. A nil logger falls back to slog.Default().
func New(logger *slog.Logger, opts ...Option) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fetcher{
		client: &http.Client{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CanHandle reports whether target is a fetchable network location. Only
// http and https URLs qualify; filesystem paths and file:// URLs do not.
func CanHandle(target string) bool {
	low := strings.ToLower(target)
	return strings.HasPrefix(low, "http://") || strings.HasPrefix(low, "https://")
}

// Fetch retrieves the content at url. The URL is validated by safeurl before
// any connection is opened; a validation failure is returned as-is without
// wrapping so callers can key off its stable message.
func (f *Fetcher) Fetch(ctx context.Context, url string, opts Options) (string, error) {
	if err := safeurl.Validate(url); err != nil {
		return "", err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &FetchError{URL: url, Reason: "build request", Err: err}
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &FetchError{
				URL:     url,
				Timeout: true,
				Reason:  fmt.Sprintf("timed out after %s", timeout),
			}
		}
		return "", &FetchError{URL: url, Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return "", &FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Reason:     fmt.Sprintf("unexpected HTTP status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &FetchError{
				URL:     url,
				Timeout: true,
				Reason:  fmt.Sprintf("timed out after %s", timeout),
			}
		}
		return "", &FetchError{URL: url, Reason: "read body", Err: err}
	}

	if len(body) == 0 && !opts.AllowEmptyResponse {
		return "", &FetchError{URL: url, Reason: "empty response body"}
	}

	return string(body), nil
}
