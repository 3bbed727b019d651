// Package cache keeps the last good batch of quotes per feed.
//
// An entry is written only when a batch produced at least one quote, so a
// total upstream failure never clobbers what was previously served. Entries
// never expire on their own; freshness is decided by the reader against a
// TTL, and a stale entry stays available as a fallback.
package cache

import (
	"sync"
	"time"

	"quoteaggregator/internal/fetcher"
)

// Entry is the last good batch for one feed.
type Entry struct {
	Quotes   []fetcher.Quote
	CachedAt time.Time
}

// Age returns how long ago the entry was written.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CachedAt)
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// Cache is a feed-keyed store of quote batches, safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[fetcher.FeedID]Entry
	now     func() time.Time
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[fetcher.FeedID]Entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a copy of the entry for feed, if any.
func (c *Cache) Get(feed fetcher.FeedID) (Entry, bool) {
	c.mu.RLock()
	e, ok := c.entries[feed]
	c.mu.RUnlock()

	if !ok {
		return Entry{}, false
	}
	return Entry{Quotes: copyQuotes(e.Quotes), CachedAt: e.CachedAt}, true
}

// Put replaces the entry for feed with quotes, stamped with the current
// time. An empty batch is ignored and reported as false.
func (c *Cache) Put(feed fetcher.FeedID, quotes []fetcher.Quote) bool {
	if len(quotes) == 0 {
		return false
	}

	e := Entry{Quotes: copyQuotes(quotes), CachedAt: c.now()}

	c.mu.Lock()
	c.entries[feed] = e
	c.mu.Unlock()
	return true
}

// IsFresh reports whether feed has an entry younger than ttl.
func (c *Cache) IsFresh(feed fetcher.FeedID, ttl time.Duration) bool {
	c.mu.RLock()
	e, ok := c.entries[feed]
	c.mu.RUnlock()

	return ok && e.Age(c.now()) < ttl
}

// Now returns the cache's notion of the current time.
func (c *Cache) Now() time.Time {
	return c.now()
}

func copyQuotes(quotes []fetcher.Quote) []fetcher.Quote {
	out := make([]fetcher.Quote, len(quotes))
	copy(out, quotes)
	return out
}
