package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc"

	"quoteaggregator/internal/fetcher"
	"quoteaggregator/internal/keys"
	"quoteaggregator/internal/metrics"
	"quoteaggregator/internal/ratelimit"
)

var (
	// ErrFeedUnconfigured is returned when a feed has no credentials.
	ErrFeedUnconfigured = errors.New("feed has no credentials configured")
	// ErrUnknownFeed is returned when no client is registered for a feed.
	ErrUnknownFeed = errors.New("no client registered for feed")
)

// Coordinator fans a batch of instruments out to a feed client and
// collects the quotes that came back
type Coordinator struct {
	rotator *keys.Rotator
	clients map[fetcher.FeedID]fetcher.Client
	stagger map[fetcher.FeedID]time.Duration
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithStagger delays the i-th request of a feed's batch by i*d.
func WithStagger(feed fetcher.FeedID, d time.Duration) Option {
	return func(c *Coordinator) {
		c.stagger[feed] = d
	}
}

// WithLimiter makes every upstream call wait on l first.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Coordinator) {
		c.limiter = l
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithMetrics records upstream calls on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// New creates a new Coordinator over the given feed clients
func New(rotator *keys.Rotator, clients []fetcher.Client, opts ...Option) *Coordinator {
	c := &Coordinator{
		rotator: rotator,
		clients: make(map[fetcher.FeedID]fetcher.Client, len(clients)),
		stagger: make(map[fetcher.FeedID]time.Duration),
		logger:  slog.Default(),
	}
	for _, client := range clients {
		c.clients[client.Feed()] = client
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchBatch fetches every instrument of feed concurrently and returns the
// quotes that succeeded and passed validation, in completion order.
//
// One credential is drawn per batch and shared by all of its requests.
// Failures are logged and dropped; a feed without credentials yields an
// empty batch and no upstream traffic. FetchBatch never fails as a whole.
func (c *Coordinator) FetchBatch(ctx context.Context, feed fetcher.FeedID, instruments []string) []fetcher.Quote {
	client, ok := c.clients[feed]
	if !ok {
		c.logger.Error("no client registered", "feed", string(feed))
		return nil
	}
	if len(instruments) == 0 {
		return nil
	}

	cred, ok := c.rotator.Next(feed)
	if !ok {
		c.logger.Warn("feed unconfigured, skipping batch", "feed", string(feed))
		c.metrics.Unconfigured(string(feed))
		return nil
	}

	c.logger.Debug("starting batch",
		"feed", string(feed),
		"instruments", len(instruments),
		"key", keys.Mask(cred.Key))
	c.metrics.BatchStarted(string(feed))

	// Buffered so workers never block on send
	results := make(chan fetcher.Result, len(instruments))
	stagger := c.stagger[feed]

	var wg conc.WaitGroup
	for i, instrument := range instruments {
		delay := time.Duration(i) * stagger
		wg.Go(func() {
			results <- c.fetch(ctx, client, cred, instrument, delay)
		})
	}
	wg.Wait()
	close(results)

	quotes := make([]fetcher.Quote, 0, len(instruments))
	for result := range results {
		if !result.OK() {
			c.logger.Debug("dropping instrument from batch",
				"feed", string(feed),
				"instrument", result.Instrument,
				"error", result.Err.Error())
			continue
		}
		quotes = append(quotes, result.Quote)
	}

	c.logger.Info("batch complete",
		"feed", string(feed),
		"requested", len(instruments),
		"succeeded", len(quotes))

	return quotes
}

// FetchOne fetches a single instrument with its own rotated credential and
// returns the failure instead of absorbing it.
func (c *Coordinator) FetchOne(ctx context.Context, feed fetcher.FeedID, instrument string) (fetcher.Quote, error) {
	client, ok := c.clients[feed]
	if !ok {
		return fetcher.Quote{}, fmt.Errorf("%s: %w", feed, ErrUnknownFeed)
	}

	cred, ok := c.rotator.Next(feed)
	if !ok {
		c.logger.Warn("feed unconfigured", "feed", string(feed), "instrument", instrument)
		c.metrics.Unconfigured(string(feed))
		return fetcher.Quote{}, fmt.Errorf("%s: %w", feed, ErrFeedUnconfigured)
	}

	r := c.fetch(ctx, client, cred, instrument, 0)
	return r.Quote, r.Err
}

func (c *Coordinator) fetch(ctx context.Context, client fetcher.Client, cred fetcher.Credential, instrument string, delay time.Duration) fetcher.Result {
	feed := client.Feed()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return fetcher.Result{Instrument: instrument, Err: ctx.Err()}
		case <-timer.C:
		}
	}

	if !c.limiter.Allow(feed) {
		c.logger.Debug("rate limited, waiting for a token", "feed", string(feed), "instrument", instrument)
		if err := c.limiter.Wait(ctx, feed); err != nil {
			return fetcher.Result{Instrument: instrument, Err: fmt.Errorf("rate limit wait: %w", err)}
		}
	}

	start := time.Now()
	q, err := client.FetchOne(ctx, instrument, cred)
	if err == nil {
		if verr := q.Validate(); verr != nil {
			err = fetcher.NewValidationError(verr.Error()).For(feed, instrument)
		}
	}

	outcome := "ok"
	if err != nil {
		outcome = string(fetcher.TypeOf(err))
	}
	c.metrics.ObserveUpstream(string(feed), outcome, time.Since(start))

	if err != nil {
		return fetcher.Result{Instrument: instrument, Err: err}
	}
	return fetcher.Result{Instrument: instrument, Quote: q}
}
