// Package fetch downloads remote card assets over HTTP.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single download.
const DefaultTimeout = 30 * time.Second

// UserAgent is sent with every request.
const UserAgent = "cardforge/1 (+asset-fetch)"

// HTTPFetcher fetches asset bytes with a shared resty client. It satisfies
// charx.Fetcher.
type HTTPFetcher struct {
	client   *resty.Client
	maxBytes int64
	log      zerolog.Logger
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithMaxBytes rejects responses whose body exceeds n bytes. 0 disables the cap.
func WithMaxBytes(n int64) Option {
	return func(f *HTTPFetcher) { f.maxBytes = n }
}

// WithLogger sets the logger used for per-request debug lines.
func WithLogger(l zerolog.Logger) Option {
	return func(f *HTTPFetcher) { f.log = l }
}

// WithTransport replaces the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *HTTPFetcher) { f.client.SetTransport(rt) }
}

// New creates an HTTPFetcher. A non-positive timeout means DefaultTimeout.
func New(timeout time.Duration, opts ...Option) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := resty.New().
		SetHeader("User-Agent", UserAgent).
		SetHeader("Accept", "image/*, audio/*, video/*, */*").
		SetTimeout(timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))

	f := &HTTPFetcher{client: c, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads url. Non-200 responses and oversize bodies are errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	resp, err := f.client.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode())
	}

	body := resp.Body()
	if f.maxBytes > 0 && int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("body %d bytes exceeds %d", len(body), f.maxBytes)
	}

	f.log.Debug().
		Str("url", url).
		Int("bytes", len(body)).
		Dur("elapsed", time.Since(start)).
		Msg("asset fetched")
	return body, nil
}
