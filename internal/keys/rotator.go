// Package keys holds the per-feed API credentials and hands them out in
// round-robin order so load is spread evenly across upstream accounts.
package keys

import (
	"sync"

	"quoteaggregator/internal/fetcher"
)

// Rotator returns credentials for each feed in round-robin order.
// The zero value is not usable; construct it with NewRotator.
type Rotator struct {
	mu   sync.Mutex
	sets map[fetcher.FeedID][]fetcher.Credential
	next map[fetcher.FeedID]int
}

// NewRotator creates a rotator over the given credential sets. Empty sets
// are kept so the feed is reported as unconfigured rather than unknown.
func NewRotator(sets map[fetcher.FeedID][]fetcher.Credential) *Rotator {
	r := &Rotator{
		sets: make(map[fetcher.FeedID][]fetcher.Credential, len(sets)),
		next: make(map[fetcher.FeedID]int, len(sets)),
	}
	for feed, creds := range sets {
		r.sets[feed] = append([]fetcher.Credential(nil), creds...)
	}
	return r
}

// Next returns the next credential for feed and advances the feed's index
// by one, wrapping at the end of the set. It returns false when the feed
// has no credentials, which callers treat as "feed unconfigured".
func (r *Rotator) Next(feed fetcher.FeedID) (fetcher.Credential, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	creds := r.sets[feed]
	if len(creds) == 0 {
		return fetcher.Credential{}, false
	}
	i := r.next[feed]
	r.next[feed] = (i + 1) % len(creds)
	return creds[i], true
}

// Size returns the number of credentials configured for feed.
func (r *Rotator) Size(feed fetcher.FeedID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sets[feed])
}

// Configured reports whether feed has at least one credential.
func (r *Rotator) Configured(feed fetcher.FeedID) bool {
	return r.Size(feed) > 0
}
