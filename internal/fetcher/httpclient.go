package fetcher

import (
	"time"

	"resty.dev/v3"
)

const (
	// DefaultTimeout bounds every upstream call so a hung feed cannot stall a batch.
	DefaultTimeout = 10 * time.Second

	userAgent = "quoteaggregator/1.0"
)

// NewHTTPClient creates the HTTP client shared by the feed clients.
//
// Feeds are called with retries disabled: a failed instrument is a hole in
// the batch, and the cache covers for it. Responses are never served from an
// intermediate cache.
func NewHTTPClient(baseURL string, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent).
		SetHeader("Cache-Control", "no-cache, no-store").
		SetHeader("Pragma", "no-cache")

	return client
}
