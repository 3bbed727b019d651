package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"quoteaggregator/internal/aggregator"
	"quoteaggregator/internal/fetcher"
)

// QuoteService is the read side the handlers serve from.
type QuoteService interface {
	AllQuotes(ctx context.Context, refresh bool) (aggregator.Result, error)
	FeedQuotes(ctx context.Context, feed fetcher.FeedID, refresh bool) (aggregator.Result, error)
	Quote(ctx context.Context, selector string) (fetcher.Quote, error)
}

type handlers struct {
	svc QuoteService
}

// oracle serves every feed merged, or a single instrument when one is
// selected with ?instrument= (or ?currency=).
func (h *handlers) oracle(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	selector := strings.TrimSpace(query.Get("instrument"))
	if selector == "" {
		selector = strings.TrimSpace(query.Get("currency"))
	}

	if selector != "" {
		q, err := h.svc.Quote(r.Context(), selector)
		switch {
		case errors.Is(err, aggregator.ErrUnsupportedInstrument):
			writeError(w, http.StatusBadRequest, "unsupported instrument: "+selector)
		case err != nil:
			loggerFrom(r.Context()).Warn("single quote failed", "instrument", selector, "error", err.Error())
			writeError(w, http.StatusBadGateway, "failed to fetch "+selector)
		default:
			writeQuotes(w, []fetcher.Quote{q})
		}
		return
	}

	res, err := h.svc.AllQuotes(r.Context(), refreshRequested(r))
	h.writeResult(w, r, res, err)
}

// commodities serves the oil feed alone.
func (h *handlers) commodities(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.FeedQuotes(r.Context(), fetcher.FeedOilPrice, refreshRequested(r))
	h.writeResult(w, r, res, err)
}

func (h *handlers) writeResult(w http.ResponseWriter, r *http.Request, res aggregator.Result, err error) {
	if err != nil {
		loggerFrom(r.Context()).Error("no quotes to serve", "error", err.Error())
		writeError(w, http.StatusBadGateway, "no quotes available from any upstream")
		return
	}

	attrs := make([]any, 0, 2*len(res.Feeds))
	for _, fs := range res.Feeds {
		attrs = append(attrs, string(fs.Feed), string(fs.State))
	}
	loggerFrom(r.Context()).Debug("serving quotes", attrs...)

	writeQuotes(w, res.Quotes)
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func refreshRequested(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("refresh"))
	return err == nil && v
}
