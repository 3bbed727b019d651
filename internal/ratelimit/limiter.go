package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"quoteaggregator/internal/fetcher"
)

// Limiter manages outbound rate limits for the upstream feeds.
// Feeds without a configured limit are not throttled.
type Limiter struct {
	limiters map[fetcher.FeedID]*rate.Limiter
	mu       sync.RWMutex
}

// New creates a limiter with no limits configured.
func New() *Limiter {
	return &Limiter{
		limiters: make(map[fetcher.FeedID]*rate.Limiter),
	}
}

// SetLimit throttles feed to perSecond requests with the given burst.
// A non-positive rate removes the limit.
func (l *Limiter) SetLimit(feed fetcher.FeedID, perSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if perSecond <= 0 {
		delete(l.limiters, feed)
		return
	}
	if burst < 1 {
		burst = 1
	}
	l.limiters[feed] = rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Wait blocks until the rate limiter permits a request to feed.
// It returns an error if the context is canceled before the request can proceed.
func (l *Limiter) Wait(ctx context.Context, feed fetcher.FeedID) error {
	if l == nil {
		return nil
	}

	l.mu.RLock()
	limiter, exists := l.limiters[feed]
	l.mu.RUnlock()

	if !exists {
		return nil
	}

	return limiter.Wait(ctx)
}

// Allow reports whether a request to feed may happen now.
func (l *Limiter) Allow(feed fetcher.FeedID) bool {
	if l == nil {
		return true
	}

	l.mu.RLock()
	limiter, exists := l.limiters[feed]
	l.mu.RUnlock()

	if !exists {
		return true
	}

	return limiter.Allow()
}
