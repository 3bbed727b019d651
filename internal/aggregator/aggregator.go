// Package aggregator serves the merged quote list across all feeds.
//
// Each feed is resolved on its own: a fresh cache entry is served without
// touching the network, otherwise a live batch is fetched and cached, and
// when the batch comes back empty the last good entry is served regardless
// of its age. A failing feed therefore never hides a healthy one, and the
// read only fails when no feed has anything to contribute.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sourcegraph/conc/iter"
	"golang.org/x/sync/singleflight"

	"quoteaggregator/internal/cache"
	"quoteaggregator/internal/fetcher"
	"quoteaggregator/internal/metrics"
)

var (
	// ErrNoQuotes is returned when every feed contributed zero quotes.
	ErrNoQuotes = errors.New("no quotes available")
	// ErrUnsupportedInstrument is returned for selectors outside the allowlist.
	ErrUnsupportedInstrument = errors.New("unsupported instrument")
	// ErrUnknownFeed is returned for feeds the service was not configured with.
	ErrUnknownFeed = errors.New("unknown feed")
)

// State describes how a feed's contribution to a read was obtained.
type State string

const (
	// StateFresh means the feed was served from a cache entry younger than its TTL
	StateFresh State = "fresh"
	// StateLive means the feed was fetched upstream during this read
	StateLive State = "live"
	// StateStale means the live fetch came back empty and an older entry was served
	StateStale State = "stale"
	// StateEmpty means the feed contributed nothing
	StateEmpty State = "empty"
)

// FeedConfig configures one feed of the aggregate.
type FeedConfig struct {
	ID          fetcher.FeedID
	Instruments []string
	TTL         time.Duration
	// Aliases maps extra selector names onto instruments, e.g. BRENT -> BRENT_CRUDE_USD
	Aliases map[string]string
}

// FeedStatus reports one feed's part of a Result.
type FeedStatus struct {
	Feed  fetcher.FeedID
	State State
	Count int
}

// Result is a merged read. Quotes keep the configured feed order.
type Result struct {
	Quotes []fetcher.Quote
	Feeds  []FeedStatus
}

// BatchFetcher is the upstream side of the service.
type BatchFetcher interface {
	FetchBatch(ctx context.Context, feed fetcher.FeedID, instruments []string) []fetcher.Quote
	FetchOne(ctx context.Context, feed fetcher.FeedID, instrument string) (fetcher.Quote, error)
}

type target struct {
	feed       fetcher.FeedID
	instrument string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithMetrics records per-feed resolutions on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// Service answers quote reads from the cache and the upstream feeds.
type Service struct {
	feeds     []FeedConfig
	fetcher   BatchFetcher
	cache     *cache.Cache
	selectors map[string]target
	group     singleflight.Group
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New creates a service over feeds, in the order they should be merged.
func New(feeds []FeedConfig, f BatchFetcher, c *cache.Cache, opts ...Option) *Service {
	s := &Service{
		feeds:     feeds,
		fetcher:   f,
		cache:     c,
		selectors: make(map[string]target),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, fc := range feeds {
		for _, inst := range fc.Instruments {
			s.addSelector(inst, target{feed: fc.ID, instrument: inst})
		}
	}
	// Aliases never shadow a real instrument code
	for _, fc := range feeds {
		for alias, inst := range fc.Aliases {
			s.addSelector(alias, target{feed: fc.ID, instrument: inst})
		}
	}
	return s
}

func (s *Service) addSelector(name string, t target) {
	key := strings.ToUpper(strings.TrimSpace(name))
	if _, taken := s.selectors[key]; taken {
		return
	}
	s.selectors[key] = t
}

// AllQuotes resolves every feed concurrently and merges the quotes.
// With refresh set, fresh cache entries are ignored and every feed is
// fetched live. It returns ErrNoQuotes, alongside an empty Result.Quotes,
// when no feed produced anything.
func (s *Service) AllQuotes(ctx context.Context, refresh bool) (Result, error) {
	parts := iter.Map(s.feeds, func(fc *FeedConfig) feedResult {
		return s.resolve(ctx, *fc, refresh)
	})
	return merge(parts)
}

// FeedQuotes applies the same policy as AllQuotes to a single feed.
func (s *Service) FeedQuotes(ctx context.Context, feed fetcher.FeedID, refresh bool) (Result, error) {
	for _, fc := range s.feeds {
		if fc.ID == feed {
			return merge([]feedResult{s.resolve(ctx, fc, refresh)})
		}
	}
	return Result{Quotes: []fetcher.Quote{}}, fmt.Errorf("%w: %s", ErrUnknownFeed, feed)
}

// Quote fetches one instrument live, bypassing the cache. The selector is
// matched case-insensitively against the configured instruments and their
// aliases; anything else fails with ErrUnsupportedInstrument before any
// credential is drawn or request made.
func (s *Service) Quote(ctx context.Context, selector string) (fetcher.Quote, error) {
	t, ok := s.selectors[strings.ToUpper(strings.TrimSpace(selector))]
	if !ok {
		return fetcher.Quote{}, fmt.Errorf("%w: %q", ErrUnsupportedInstrument, selector)
	}

	q, err := s.fetcher.FetchOne(ctx, t.feed, t.instrument)
	if err != nil {
		return fetcher.Quote{}, fmt.Errorf("fetch %s: %w", t.instrument, err)
	}
	return q, nil
}

type feedResult struct {
	quotes []fetcher.Quote
	status FeedStatus
}

func (s *Service) resolve(ctx context.Context, fc FeedConfig, refresh bool) feedResult {
	if !refresh && s.cache.IsFresh(fc.ID, fc.TTL) {
		if e, ok := s.cache.Get(fc.ID); ok {
			return s.resolved(fc.ID, StateFresh, e.Quotes)
		}
	}

	var quotes []fetcher.Quote
	if refresh {
		quotes = s.fetchAndStore(ctx, fc)
	} else {
		// Concurrent misses share one batch; it must outlive whichever caller started it.
		shared := context.WithoutCancel(ctx)
		v, _, _ := s.group.Do(string(fc.ID), func() (any, error) {
			return s.fetchAndStore(shared, fc), nil
		})
		quotes = v.([]fetcher.Quote)
	}

	if len(quotes) > 0 {
		return s.resolved(fc.ID, StateLive, quotes)
	}

	if e, ok := s.cache.Get(fc.ID); ok {
		s.logger.Warn("live fetch returned nothing, serving stale quotes",
			"feed", string(fc.ID),
			"age", e.Age(s.cache.Now()).Round(time.Millisecond).String(),
			"quotes", len(e.Quotes))
		return s.resolved(fc.ID, StateStale, e.Quotes)
	}

	s.logger.Warn("no quotes available for feed", "feed", string(fc.ID))
	return s.resolved(fc.ID, StateEmpty, nil)
}

func (s *Service) fetchAndStore(ctx context.Context, fc FeedConfig) []fetcher.Quote {
	quotes := s.fetcher.FetchBatch(ctx, fc.ID, fc.Instruments)
	s.cache.Put(fc.ID, quotes)
	return quotes
}

func (s *Service) resolved(feed fetcher.FeedID, state State, quotes []fetcher.Quote) feedResult {
	s.metrics.Resolved(string(feed), string(state))
	return feedResult{
		quotes: quotes,
		status: FeedStatus{Feed: feed, State: state, Count: len(quotes)},
	}
}

func merge(parts []feedResult) (Result, error) {
	res := Result{
		Quotes: []fetcher.Quote{},
		Feeds:  make([]FeedStatus, 0, len(parts)),
	}
	for _, p := range parts {
		res.Quotes = append(res.Quotes, p.quotes...)
		res.Feeds = append(res.Feeds, p.status)
	}
	if len(res.Quotes) == 0 {
		return res, ErrNoQuotes
	}
	return res, nil
}
