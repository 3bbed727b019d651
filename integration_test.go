package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quoteaggregator/internal/config"
	"quoteaggregator/internal/httpapi"
)

type upstreams struct {
	oil       *httptest.Server
	oracle    *httptest.Server
	oilHits   atomic.Int64
	aproHits  atomic.Int64
	oilDown   atomic.Bool
	mu        sync.Mutex
	oilTokens []string
}

func newUpstreams(t *testing.T) *upstreams {
	t.Helper()
	u := &upstreams{}

	u.oil = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.oilHits.Add(1)
		u.mu.Lock()
		u.oilTokens = append(u.oilTokens, r.Header.Get("Authorization"))
		u.mu.Unlock()

		if u.oilDown.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		code := r.URL.Query().Get("by_code")
		price := "78.10"
		if code == "BRENT_CRUDE_USD" {
			price = "82.47"
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","data":{"price":` + price + `,"code":"` + code +
			`","created_at":"2025-01-15T10:30:00Z","changes":{"24h":{"percent":-0.5}}}}`))
	}))
	t.Cleanup(u.oil.Close)

	u.oracle = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.aproHits.Add(1)
		if r.Header.Get("X-API-KEY") != "apro-key" || r.Header.Get("X-API-SECRET") != "apro-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("name") {
		case "BTC":
			w.Write([]byte(`{"price": 64000.5}`))
		case "ETH":
			w.Write([]byte(`{"data": {"price": "3100.25"}}`))
		default:
			w.Write([]byte(`{"data": {}}`))
		}
	}))
	t.Cleanup(u.oracle.Close)

	return u
}

func testConfig(u *upstreams) *config.Config {
	return &config.Config{
		ListenAddr:       "127.0.0.1:0",
		HTTPTimeout:      2 * time.Second,
		ShutdownTimeout:  time.Second,
		LogLevel:         "error",
		LogFormat:        "text",
		OilPriceAPIKey:   "oil-key-1",
		OilPriceAPIKey2:  "oil-key-2",
		OilPriceBaseURL:  u.oil.URL,
		OilPriceCodes:    []string{"BRENT_CRUDE_USD", "WTI_USD"},
		OilPriceCacheTTL: time.Minute,
		APROAPIKey:       "apro-key",
		APROAPISecret:    "apro-secret",
		APROBaseURL:      u.oracle.URL,
		APROCurrencies:   []string{"BTC", "BNB", "ETH"},
		APROCacheTTL:     time.Minute,
		APROStagger:      10 * time.Millisecond,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type oracleResponse struct {
	Success bool `json:"success"`
	Data    []struct {
		Name       string      `json:"name"`
		Instrument string      `json:"instrument"`
		Price      json.Number `json:"price"`
		Timestamp  int64       `json:"timestamp"`
		Source     string      `json:"source"`
		Change     string      `json:"change"`
	} `json:"data"`
	Error string `json:"error"`
}

func fetchJSON(t *testing.T, url string) (int, oracleResponse) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body oracleResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

// TestIntegration_FullStack runs the real feed clients against stub upstreams
func TestIntegration_FullStack(t *testing.T) {
	u := newUpstreams(t)
	cfg := testConfig(u)

	a := newApp(cfg, quietLogger())
	router := httpapi.NewRouter(a.service, httpapi.WithLogger(quietLogger()), httpapi.WithMetrics(a.metrics, a.registry))
	server := httptest.NewServer(router)
	defer server.Close()

	// Cold read: BNB has no price upstream and is dropped
	status, body := fetchJSON(t, server.URL+"/api/oracle")
	require.Equal(t, http.StatusOK, status)
	require.True(t, body.Success)
	require.Len(t, body.Data, 4)

	byInstrument := make(map[string]string)
	for _, q := range body.Data {
		byInstrument[q.Instrument] = q.Name + " " + q.Price.String() + " " + q.Change
	}
	assert.Equal(t, map[string]string{
		"BRENT_CRUDE_USD": "BRENT 82.47 -0.50%",
		"WTI_USD":         "WTI 78.1 -0.50%",
		"BTC":             "BTC 64000.5 ",
		"ETH":             "ETH 3100.25 ",
	}, byInstrument)
	assert.Equal(t, int64(2), u.oilHits.Load())
	assert.Equal(t, int64(3), u.aproHits.Load())

	// Warm read is served from cache
	status, again := fetchJSON(t, server.URL+"/api/oracle")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, body, again)
	assert.Equal(t, int64(2), u.oilHits.Load())
	assert.Equal(t, int64(3), u.aproHits.Load())

	// Commodity-only endpoint shares the cache
	status, oil := fetchJSON(t, server.URL+"/api/oilprice")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, oil.Data, 2)
	assert.Equal(t, int64(2), u.oilHits.Load())

	// Single instrument selection goes live
	status, single := fetchJSON(t, server.URL+"/api/oracle?currency=eth")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, single.Data, 1)
	assert.Equal(t, "3100.25", single.Data[0].Price.String())
	assert.Equal(t, int64(4), u.aproHits.Load())

	status, brent := fetchJSON(t, server.URL+"/api/oracle?instrument=brent")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "BRENT_CRUDE_USD", brent.Data[0].Instrument)

	status, _ = fetchJSON(t, server.URL+"/api/oracle?instrument=DOGE")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = fetchJSON(t, server.URL+"/api/oracle?instrument=BNB")
	assert.Equal(t, http.StatusBadGateway, status)

	// Upstream outage on refresh falls back to the cached commodity quotes
	u.oilDown.Store(true)
	status, stale := fetchJSON(t, server.URL+"/api/oilprice?refresh=true")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, oil, stale)

	// Metrics reflect the traffic
	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	metricsBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(metricsBody), `quoteaggregator_feed_resolutions_total{feed="oilprice",state="stale"} 1`)
	assert.Contains(t, string(metricsBody), `quoteaggregator_upstream_requests_total{feed="apro",outcome="validation"}`)
}

func TestIntegration_KeyRotationAcrossBatches(t *testing.T) {
	u := newUpstreams(t)
	a := newApp(testConfig(u), quietLogger())

	for range 3 {
		_, err := a.service.FeedQuotes(context.Background(), "oilprice", true)
		require.NoError(t, err)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	require.Len(t, u.oilTokens, 6)
	want := []string{"Token oil-key-1", "Token oil-key-2", "Token oil-key-1"}
	for batch, token := range want {
		assert.Equal(t, token, u.oilTokens[2*batch], "batch %d", batch)
		assert.Equal(t, token, u.oilTokens[2*batch+1], "batch %d", batch)
	}
}

func TestIntegration_UnconfiguredFeedIsSkipped(t *testing.T) {
	u := newUpstreams(t)
	cfg := testConfig(u)
	cfg.APROAPISecret = ""

	var logs bytes.Buffer
	a := newApp(cfg, slog.New(slog.NewTextHandler(&logs, nil)))
	assert.Contains(t, logs.String(), "feed has no credentials and will contribute no quotes")
	assert.Contains(t, logs.String(), "feed=apro")

	res, err := a.service.AllQuotes(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, res.Quotes, 2)
	assert.Zero(t, u.aproHits.Load())
}

func TestPrintOnce(t *testing.T) {
	u := newUpstreams(t)
	cfg := testConfig(u)
	cfg.Once = true

	var out bytes.Buffer
	err := run(context.Background(), cfg, quietLogger(), &out)
	require.NoError(t, err)

	output := out.String()
	assert.Contains(t, output, "BRENT: $82.47 (Oil Price API) -0.50%")
	assert.Contains(t, output, "WTI: $78.10 (Oil Price API) -0.50%")
	assert.Contains(t, output, "BTC: $64000.50 (APRO Oracle)")
	assert.Contains(t, output, "ETH: $3100.25 (APRO Oracle)")
	assert.Contains(t, output, "All fetches completed!")
}

func TestPrintOnce_AllFeedsDown(t *testing.T) {
	u := newUpstreams(t)
	cfg := testConfig(u)
	cfg.Once = true
	cfg.APROAPIKey = ""
	u.oilDown.Store(true)

	var out bytes.Buffer
	err := run(context.Background(), cfg, quietLogger(), &out)
	require.Error(t, err)
	assert.True(t, strings.Contains(out.String(), "oilprice: ERROR - no quotes"))
}

func TestCommodityAliases(t *testing.T) {
	got := commodityAliases([]string{"BRENT_CRUDE_USD", "WTI_USD", "NATURAL_GAS_USD"})
	assert.Equal(t, map[string]string{"BRENT": "BRENT_CRUDE_USD", "WTI": "WTI_USD"}, got)
}
