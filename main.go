package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"quoteaggregator/internal/aggregator"
	"quoteaggregator/internal/apro"
	"quoteaggregator/internal/cache"
	"quoteaggregator/internal/config"
	"quoteaggregator/internal/coordinator"
	"quoteaggregator/internal/fetcher"
	"quoteaggregator/internal/httpapi"
	"quoteaggregator/internal/keys"
	"quoteaggregator/internal/metrics"
	"quoteaggregator/internal/oilprice"
	"quoteaggregator/internal/ratelimit"
)

func main() {
	if err := config.LoadDotEnv(".env.local", ".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load environment files: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg, os.Stderr)
	slog.SetDefault(logger)

	// Create context with cancellation for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, os.Stdout); err != nil {
		logger.Error("exiting", "error", err.Error())
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// app is the fully wired service.
type app struct {
	service  *aggregator.Service
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

func newApp(cfg *config.Config, logger *slog.Logger) *app {
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	oilCreds := cfg.OilPriceCredentials()
	aproCreds := cfg.APROCredentials()
	rotator := keys.NewRotator(map[fetcher.FeedID][]fetcher.Credential{
		fetcher.FeedOilPrice: oilCreds,
		fetcher.FeedAPRO:     aproCreds,
	})
	for _, feed := range []fetcher.FeedID{fetcher.FeedOilPrice, fetcher.FeedAPRO} {
		if !rotator.Configured(feed) {
			logger.Warn("feed has no credentials and will contribute no quotes", "feed", string(feed))
			continue
		}
		logger.Info("credentials loaded", "feed", string(feed), "keys", rotator.Size(feed))
	}
	for _, c := range oilCreds {
		logger.Debug("commodity key configured", "key", keys.Mask(c.Key))
	}
	for _, c := range aproCreds {
		logger.Debug("oracle key configured", "key", keys.Mask(c.Key), "secret", keys.Mask(c.Secret))
	}

	limiter := ratelimit.New()
	limiter.SetLimit(fetcher.FeedOilPrice, cfg.OilPriceRateLimit, 1)
	limiter.SetLimit(fetcher.FeedAPRO, cfg.APRORateLimit, 1)

	clients := []fetcher.Client{
		oilprice.NewClient(cfg.OilPriceBaseURL, cfg.HTTPTimeout, logger),
		apro.NewClient(cfg.APROBaseURL, cfg.HTTPTimeout, logger),
	}

	coord := coordinator.New(rotator, clients,
		coordinator.WithStagger(fetcher.FeedAPRO, cfg.APROStagger),
		coordinator.WithLimiter(limiter),
		coordinator.WithLogger(logger),
		coordinator.WithMetrics(m),
	)

	feeds := []aggregator.FeedConfig{
		{
			ID:          fetcher.FeedOilPrice,
			Instruments: cfg.OilPriceCodes,
			TTL:         cfg.OilPriceCacheTTL,
			Aliases:     commodityAliases(cfg.OilPriceCodes),
		},
		{
			ID:          fetcher.FeedAPRO,
			Instruments: cfg.APROCurrencies,
			TTL:         cfg.APROCacheTTL,
		},
	}

	svc := aggregator.New(feeds, coord, cache.New(),
		aggregator.WithLogger(logger),
		aggregator.WithMetrics(m),
	)

	return &app{service: svc, registry: registry, metrics: m}
}

// commodityAliases lets callers select a code by its display name.
func commodityAliases(codes []string) map[string]string {
	aliases := make(map[string]string)
	for _, code := range codes {
		name := oilprice.DisplayName(code)
		if name == code {
			continue
		}
		if _, taken := aliases[name]; !taken {
			aliases[name] = code
		}
	}
	return aliases
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) error {
	a := newApp(cfg, logger)

	if cfg.Once {
		return printOnce(ctx, a.service, cfg.HTTPTimeout, out)
	}

	router := httpapi.NewRouter(a.service,
		httpapi.WithLogger(logger),
		httpapi.WithMetrics(a.metrics, a.registry),
	)
	return httpapi.NewServer(cfg.ListenAddr, router, logger).Run(ctx, cfg.ShutdownTimeout)
}

// printOnce fetches every feed live and prints one line per quote.
func printOnce(ctx context.Context, svc *aggregator.Service, timeout time.Duration, out io.Writer) error {
	// Stagger and rate limits add to the per-request timeout
	fetchCtx, cancel := context.WithTimeout(ctx, 3*timeout)
	defer cancel()

	fmt.Fprintln(out, "Fetching quotes from all feeds...")
	fmt.Fprintln(out, "================================================")

	res, err := svc.AllQuotes(fetchCtx, true)
	for _, q := range res.Quotes {
		line := fmt.Sprintf("%s: $%s (%s)", q.Name, q.Price.StringFixed(2), q.Source)
		if change := q.Change(); change != "" {
			line += " " + change
		}
		fmt.Fprintln(out, line)
	}
	for _, fs := range res.Feeds {
		if fs.State == aggregator.StateEmpty {
			fmt.Fprintf(out, "%s: ERROR - no quotes\n", fs.Feed)
		}
	}

	fmt.Fprintln(out, "================================================")
	if errors.Is(err, aggregator.ErrNoQuotes) {
		return err
	}
	fmt.Fprintln(out, "All fetches completed!")
	return nil
}
