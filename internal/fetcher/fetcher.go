package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// FeedID identifies one upstream price provider.
type FeedID string

const (
	// FeedOilPrice is the commodity feed (oilpriceapi.com).
	FeedOilPrice FeedID = "oilprice"
	// FeedAPRO is the crypto oracle feed (APRO AI oracle).
	FeedAPRO FeedID = "apro"
)

// Credential authenticates one request against a feed. Feeds that use a
// single bearer-style token only populate Key.
type Credential struct {
	Key    string
	Secret string
}

// Quote is one normalized price observation.
type Quote struct {
	Instrument    string
	Name          string
	Price         decimal.Decimal
	ChangePercent decimal.NullDecimal
	ObservedAt    time.Time
	Source        string
	Feed          FeedID
}

// Validate reports whether the quote may be cached and served.
func (q Quote) Validate() error {
	if q.Instrument == "" {
		return errors.New("quote has no instrument")
	}
	if q.Price.IsNegative() {
		return fmt.Errorf("quote for %s has negative price %s", q.Instrument, q.Price)
	}
	return nil
}

// Change renders ChangePercent as a signed percentage with two decimals,
// e.g. "+1.25%". It returns "" when the upstream supplied no change.
func (q Quote) Change() string {
	if !q.ChangePercent.Valid {
		return ""
	}
	p := q.ChangePercent.Decimal
	sign := ""
	if !p.IsNegative() {
		sign = "+"
	}
	return sign + p.StringFixed(2) + "%"
}

//go:generate mockgen -destination=../testutil/mock_client.go -package=testutil quoteaggregator/internal/fetcher Client

// Client is implemented by every upstream feed. A Client performs exactly
// one outbound request per FetchOne call and never retries.
type Client interface {
	// Feed returns the identifier of the upstream this client talks to.
	Feed() FeedID

	// FetchOne retrieves the current quote for a single instrument using
	// the given credential. Failures are returned as *FetchError.
	FetchOne(ctx context.Context, instrument string, cred Credential) (Quote, error)
}
