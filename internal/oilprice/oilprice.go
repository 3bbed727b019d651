package oilprice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"resty.dev/v3"

	"quoteaggregator/internal/fetcher"
)

const (
	// Source labels every quote produced by this feed.
	Source = "Oil Price API"

	// DefaultBaseURL is the production API host.
	DefaultBaseURL = "https://api.oilpriceapi.com"

	latestPath = "/v1/prices/latest"
)

// DefaultCodes are the commodity codes fetched when none are configured.
var DefaultCodes = []string{"BRENT_CRUDE_USD", "WTI_USD"}

// LatestPriceResponse represents the oilpriceapi.com latest-price response
type LatestPriceResponse struct {
	Status string `json:"status"`
	Data   *struct {
		Price     decimal.NullDecimal `json:"price"`
		Formatted string              `json:"formatted"`
		Currency  string              `json:"currency"`
		Code      string              `json:"code"`
		CreatedAt string              `json:"created_at"`
		Type      string              `json:"type"`
		Source    string              `json:"source"`
		Changes   struct {
			Day *struct {
				Amount        decimal.NullDecimal `json:"amount"`
				Percent       decimal.NullDecimal `json:"percent"`
				PreviousPrice decimal.NullDecimal `json:"previous_price"`
			} `json:"24h"`
		} `json:"changes"`
	} `json:"data"`
}

// Client fetches commodity prices from oilpriceapi.com
type Client struct {
	client *resty.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewClient creates a new commodity price client
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client: fetcher.NewHTTPClient(baseURL, timeout),
		logger: logger.With("feed", string(fetcher.FeedOilPrice)),
		now:    time.Now,
	}
}

// Feed implements fetcher.Client
func (c *Client) Feed() fetcher.FeedID {
	return fetcher.FeedOilPrice
}

// FetchOne retrieves the latest price for one commodity code
func (c *Client) FetchOne(ctx context.Context, code string, cred fetcher.Credential) (fetcher.Quote, error) {
	q, err := c.fetchOne(ctx, code, cred)
	if err != nil {
		c.logger.Warn("commodity price fetch failed",
			"instrument", code,
			"error", err.Error())
		return fetcher.Quote{}, err
	}
	return q, nil
}

func (c *Client) fetchOne(ctx context.Context, code string, cred fetcher.Credential) (fetcher.Quote, error) {
	if cred.Key == "" {
		return fetcher.Quote{}, fetcher.NewClientError(0, "no API key supplied").For(fetcher.FeedOilPrice, code)
	}

	var result LatestPriceResponse

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Token "+cred.Key).
		SetHeader("Content-Type", "application/json").
		SetQueryParam("by_code", code).
		SetResult(&result).
		Get(latestPath)

	if err != nil {
		// A response arrived but its body could not be decoded
		if resp != nil && resp.StatusCode() > 0 {
			if !resp.IsSuccess() {
				return fetcher.Quote{}, fetcher.ClassifyHTTPError(resp.StatusCode()).For(fetcher.FeedOilPrice, code)
			}
			return fetcher.Quote{}, fetcher.NewValidationError("failed to decode response: " + err.Error()).For(fetcher.FeedOilPrice, code)
		}
		return fetcher.Quote{}, fetcher.ClassifyTransportError(err).For(fetcher.FeedOilPrice, code)
	}

	if !resp.IsSuccess() {
		return fetcher.Quote{}, fetcher.ClassifyHTTPError(resp.StatusCode()).For(fetcher.FeedOilPrice, code)
	}

	if result.Status != "success" || result.Data == nil {
		return fetcher.Quote{}, fetcher.NewValidationError(fmt.Sprintf("non-success status %q", result.Status)).For(fetcher.FeedOilPrice, code)
	}

	if !result.Data.Price.Valid {
		return fetcher.Quote{}, fetcher.NewValidationError("price not found in response").For(fetcher.FeedOilPrice, code)
	}

	observed := c.now().UTC()
	if ts, err := time.Parse(time.RFC3339, result.Data.CreatedAt); err == nil {
		observed = ts.UTC()
	}

	// The upstream echoes the code; fall back to the requested one when it does not.
	upstreamCode := result.Data.Code
	if upstreamCode == "" {
		upstreamCode = code
	}

	q := fetcher.Quote{
		Instrument: code,
		Name:       DisplayName(upstreamCode),
		Price:      result.Data.Price.Decimal,
		ObservedAt: observed,
		Source:     Source,
		Feed:       fetcher.FeedOilPrice,
	}
	if day := result.Data.Changes.Day; day != nil {
		q.ChangePercent = day.Percent
	}

	return q, nil
}

// DisplayName maps a commodity code to its canonical display name by
// substring: BRENT_CRUDE_USD is "BRENT", WTI_USD is "WTI". Other codes are
// shown as-is.
func DisplayName(code string) string {
	upper := strings.ToUpper(code)
	switch {
	case strings.Contains(upper, "BRENT"):
		return "BRENT"
	case strings.Contains(upper, "WTI"):
		return "WTI"
	default:
		return upper
	}
}

