package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"quoteaggregator/internal/fetcher"
)

// StubClient is a function-backed implementation of fetcher.Client for tests
type StubClient struct {
	FeedID       fetcher.FeedID
	FetchOneFunc func(ctx context.Context, instrument string, cred fetcher.Credential) (fetcher.Quote, error)

	calls atomic.Int64
	mu    sync.Mutex
	creds []fetcher.Credential
}

// Feed implements the fetcher.Client interface
func (s *StubClient) Feed() fetcher.FeedID {
	return s.FeedID
}

// FetchOne implements the fetcher.Client interface
func (s *StubClient) FetchOne(ctx context.Context, instrument string, cred fetcher.Credential) (fetcher.Quote, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.creds = append(s.creds, cred)
	s.mu.Unlock()

	if s.FetchOneFunc != nil {
		return s.FetchOneFunc(ctx, instrument, cred)
	}
	return NewQuote(s.FeedID, instrument, "1"), nil
}

// Calls returns how many times FetchOne was invoked
func (s *StubClient) Calls() int {
	return int(s.calls.Load())
}

// Credentials returns the credentials FetchOne was invoked with, in call order
func (s *StubClient) Credentials() []fetcher.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]fetcher.Credential(nil), s.creds...)
}

// NewStubClient creates a client that answers every instrument from prices
// and fails with err for instruments missing from the map
func NewStubClient(feed fetcher.FeedID, prices map[string]string, err error) *StubClient {
	return &StubClient{
		FeedID: feed,
		FetchOneFunc: func(ctx context.Context, instrument string, cred fetcher.Credential) (fetcher.Quote, error) {
			price, ok := prices[instrument]
			if !ok {
				return fetcher.Quote{}, err
			}
			return NewQuote(feed, instrument, price), nil
		},
	}
}

// NewQuote builds a quote with a fixed observation time
func NewQuote(feed fetcher.FeedID, instrument, price string) fetcher.Quote {
	return fetcher.Quote{
		Instrument: instrument,
		Name:       instrument,
		Price:      decimal.RequireFromString(price),
		ObservedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Source:     string(feed),
		Feed:       feed,
	}
}

// Clock is a manually advanced time source
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock frozen at t
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the current fake time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
