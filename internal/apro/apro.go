// Package apro fetches crypto prices from the APRO AI oracle.
//
// The oracle is authenticated with a static key/secret header pair. It does
// not timestamp its answers, so quotes carry the capture time. Depending on
// the endpoint version the price is either top level or nested under
// "data", which is why the body is read with gjson instead of a fixed
// struct.
package apro

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"resty.dev/v3"

	"quoteaggregator/internal/fetcher"
)

const (
	// Source labels every quote produced by this feed.
	Source = "APRO Oracle"

	// DefaultBaseURL is the production oracle host.
	DefaultBaseURL = "https://api-ai-oracle.apro.com"

	pricePath = "/v2/ticker/currency/price"
)

// DefaultCurrencies is the allowlist of symbols the oracle is queried for.
var DefaultCurrencies = []string{"BTC", "BNB", "ETH"}

// pricePaths are tried in order; the first one present wins.
var pricePaths = []string{"price", "data.price"}

// Client fetches crypto prices from the APRO oracle
type Client struct {
	client *resty.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewClient creates a new oracle client
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client: fetcher.NewHTTPClient(baseURL, timeout),
		logger: logger.With("feed", string(fetcher.FeedAPRO)),
		now:    time.Now,
	}
}

// Feed implements fetcher.Client
func (c *Client) Feed() fetcher.FeedID {
	return fetcher.FeedAPRO
}

// FetchOne retrieves the median USD price for one currency symbol
func (c *Client) FetchOne(ctx context.Context, symbol string, cred fetcher.Credential) (fetcher.Quote, error) {
	q, err := c.fetchOne(ctx, strings.ToUpper(symbol), cred)
	if err != nil {
		c.logger.Warn("oracle price fetch failed",
			"instrument", symbol,
			"error", err.Error())
		return fetcher.Quote{}, err
	}
	return q, nil
}

func (c *Client) fetchOne(ctx context.Context, symbol string, cred fetcher.Credential) (fetcher.Quote, error) {
	if cred.Key == "" || cred.Secret == "" {
		return fetcher.Quote{}, fetcher.NewClientError(0, "API key and secret are both required").For(fetcher.FeedAPRO, symbol)
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("X-API-KEY", cred.Key).
		SetHeader("X-API-SECRET", cred.Secret).
		SetQueryParams(map[string]string{
			"name":      symbol,
			"quotation": "usd",
			"type":      "median",
		}).
		Get(pricePath)

	if err != nil {
		return fetcher.Quote{}, fetcher.ClassifyTransportError(err).For(fetcher.FeedAPRO, symbol)
	}

	if !resp.IsSuccess() {
		return fetcher.Quote{}, fetcher.ClassifyHTTPError(resp.StatusCode()).For(fetcher.FeedAPRO, symbol)
	}

	body := resp.String()
	if !gjson.Valid(body) {
		return fetcher.Quote{}, fetcher.NewValidationError("response is not valid JSON").For(fetcher.FeedAPRO, symbol)
	}

	price, err := extractPrice(body)
	if err != nil {
		return fetcher.Quote{}, err.For(fetcher.FeedAPRO, symbol)
	}

	return fetcher.Quote{
		Instrument: symbol,
		Name:       symbol,
		Price:      price,
		ObservedAt: c.now().UTC(),
		Source:     Source,
		Feed:       fetcher.FeedAPRO,
	}, nil
}

func extractPrice(body string) (decimal.Decimal, *fetcher.FetchError) {
	for _, path := range pricePaths {
		res := gjson.Get(body, path)
		if !res.Exists() || res.Type == gjson.Null {
			continue
		}
		if res.Type != gjson.Number && res.Type != gjson.String {
			return decimal.Decimal{}, fetcher.NewValidationError("price at " + path + " is not numeric")
		}
		price, err := decimal.NewFromString(strings.TrimSpace(res.String()))
		if err != nil {
			return decimal.Decimal{}, fetcher.NewValidationError("failed to parse price at " + path + ": " + err.Error())
		}
		return price, nil
	}
	return decimal.Decimal{}, fetcher.NewValidationError("price not found in response")
}
