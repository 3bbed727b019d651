package oilprice

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quoteaggregator/internal/fetcher"
)

const brentBody = `{
	"status": "success",
	"data": {
		"price": 82.47,
		"formatted": "$82.47",
		"currency": "USD",
		"code": "BRENT_CRUDE_USD",
		"created_at": "2025-01-15T10:30:00.000Z",
		"type": "spot_price",
		"source": "oilprice.ice_brent",
		"changes": {
			"24h": {"amount": 1.02, "percent": 1.2523, "previous_price": 81.45}
		}
	}
}`

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func TestNewClient(t *testing.T) {
	c := NewClient("", 0, nil)
	if c == nil {
		t.Fatal("NewClient() returned nil")
	}
	if c.client == nil {
		t.Error("client is nil")
	}
	if c.Feed() != fetcher.FeedOilPrice {
		t.Errorf("Feed() = %q, want %q", c.Feed(), fetcher.FeedOilPrice)
	}
}

func TestClient_FetchOne_Success(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != latestPath {
			t.Errorf("path = %q, want %q", r.URL.Path, latestPath)
		}
		if got := r.URL.Query().Get("by_code"); got != "BRENT_CRUDE_USD" {
			t.Errorf("by_code = %q, want BRENT_CRUDE_USD", got)
		}
		if got := r.Header.Get("Authorization"); got != "Token test_key" {
			t.Errorf("Authorization = %q, want %q", got, "Token test_key")
		}
		if got := r.Header.Get("Cache-Control"); got == "" {
			t.Error("Cache-Control header not set")
		}
		writeJSON(w, http.StatusOK, brentBody)
	})

	c := NewClient(server.URL, time.Second, nil)
	q, err := c.FetchOne(context.Background(), "BRENT_CRUDE_USD", fetcher.Credential{Key: "test_key"})
	if err != nil {
		t.Fatalf("FetchOne() returned unexpected error: %v", err)
	}

	if q.Name != "BRENT" {
		t.Errorf("Name = %q, want BRENT", q.Name)
	}
	if q.Instrument != "BRENT_CRUDE_USD" {
		t.Errorf("Instrument = %q, want BRENT_CRUDE_USD", q.Instrument)
	}
	if q.Price.String() != "82.47" {
		t.Errorf("Price = %s, want 82.47", q.Price)
	}
	if q.Change() != "+1.25%" {
		t.Errorf("Change() = %q, want +1.25%%", q.Change())
	}
	want := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)
	if !q.ObservedAt.Equal(want) {
		t.Errorf("ObservedAt = %v, want %v", q.ObservedAt, want)
	}
	if q.Source != Source || q.Feed != fetcher.FeedOilPrice {
		t.Errorf("Source/Feed = %q/%q", q.Source, q.Feed)
	}
}

func TestClient_FetchOne_WithoutChangesOrTimestamp(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"status":"success","data":{"price":71.3,"code":"WTI_USD"}}`)
	})

	captured := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	c := NewClient(server.URL, time.Second, nil)
	c.now = func() time.Time { return captured }

	q, err := c.FetchOne(context.Background(), "WTI_USD", fetcher.Credential{Key: "k"})
	if err != nil {
		t.Fatalf("FetchOne() returned unexpected error: %v", err)
	}
	if q.Name != "WTI" {
		t.Errorf("Name = %q, want WTI", q.Name)
	}
	if q.ChangePercent.Valid {
		t.Errorf("ChangePercent should be absent, got %s", q.ChangePercent.Decimal)
	}
	if !q.ObservedAt.Equal(captured) {
		t.Errorf("ObservedAt = %v, want capture time %v", q.ObservedAt, captured)
	}
}

func TestClient_FetchOne_HTTPError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantType fetcher.ErrorType
	}{
		{"unauthorized", http.StatusUnauthorized, fetcher.ErrorTypeClient},
		{"rate limited", http.StatusTooManyRequests, fetcher.ErrorTypeRateLimit},
		{"server error", http.StatusInternalServerError, fetcher.ErrorTypeServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			c := NewClient(server.URL, time.Second, nil)
			_, err := c.FetchOne(context.Background(), "WTI_USD", fetcher.Credential{Key: "k"})
			if err == nil {
				t.Fatal("FetchOne() expected error, got nil")
			}

			var fe *fetcher.FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("error %T is not *fetcher.FetchError", err)
			}
			if fe.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", fe.Type, tt.wantType)
			}
			if fe.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", fe.StatusCode, tt.status)
			}
			if fe.Feed != fetcher.FeedOilPrice || fe.Instrument != "WTI_USD" {
				t.Errorf("error context = %q/%q", fe.Feed, fe.Instrument)
			}
		})
	}
}

func TestClient_FetchOne_NonSuccessStatus(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"status":"error","error":"invalid code"}`)
	})

	c := NewClient(server.URL, time.Second, nil)
	_, err := c.FetchOne(context.Background(), "NOPE", fetcher.Credential{Key: "k"})
	if err == nil {
		t.Fatal("FetchOne() expected error, got nil")
	}
	if got := fetcher.TypeOf(err); got != fetcher.ErrorTypeValidation {
		t.Errorf("TypeOf() = %q, want %q", got, fetcher.ErrorTypeValidation)
	}
}

func TestClient_FetchOne_UnparseablePayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{not json`},
		{"non numeric price", `{"status":"success","data":{"price":"abc","code":"WTI_USD"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, tt.body)
			})

			c := NewClient(server.URL, time.Second, nil)
			_, err := c.FetchOne(context.Background(), "WTI_USD", fetcher.Credential{Key: "k"})
			if err == nil {
				t.Fatal("FetchOne() expected error for unparseable payload, got nil")
			}

			var fe *fetcher.FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("error %T is not *fetcher.FetchError", err)
			}
			if fe.Type != fetcher.ErrorTypeValidation {
				t.Errorf("Type = %q, want %q", fe.Type, fetcher.ErrorTypeValidation)
			}
			if fe.Retryable {
				t.Error("a payload that cannot be decoded should not be retryable")
			}
		})
	}
}

func TestClient_FetchOne_MissingPrice(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"status":"success","data":{"code":"WTI_USD"}}`)
	})

	c := NewClient(server.URL, time.Second, nil)
	_, err := c.FetchOne(context.Background(), "WTI_USD", fetcher.Credential{Key: "k"})
	if err == nil {
		t.Fatal("FetchOne() expected error for missing price, got nil")
	}

	expectedErrMsg := "oilprice WTI_USD validation error: price not found in response"
	if err.Error() != expectedErrMsg {
		t.Errorf("FetchOne() error = %q, want %q", err.Error(), expectedErrMsg)
	}
}

func TestClient_FetchOne_NoCredential(t *testing.T) {
	called := false
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		writeJSON(w, http.StatusOK, brentBody)
	})

	c := NewClient(server.URL, time.Second, nil)
	_, err := c.FetchOne(context.Background(), "BRENT_CRUDE_USD", fetcher.Credential{})
	if err == nil {
		t.Fatal("FetchOne() expected error without credential, got nil")
	}
	if called {
		t.Error("upstream was called without a credential")
	}
}

func TestClient_FetchOne_ContextCancellation(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	c := NewClient(server.URL, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.FetchOne(ctx, "WTI_USD", fetcher.Credential{Key: "k"})
	if err == nil {
		t.Error("FetchOne() expected error for cancelled context, got nil")
	}
}

func TestClient_FetchOne_Timeout(t *testing.T) {
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	c := NewClient(server.URL, 50*time.Millisecond, nil)

	start := time.Now()
	_, err := c.FetchOne(context.Background(), "WTI_USD", fetcher.Credential{Key: "k"})
	if err == nil {
		t.Fatal("FetchOne() expected timeout error, got nil")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("FetchOne() took %v, transport timeout not applied", elapsed)
	}
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"BRENT_CRUDE_USD", "BRENT"},
		{"brent_crude_usd", "BRENT"},
		{"WTI_USD", "WTI"},
		{"NATURAL_GAS_USD", "NATURAL_GAS_USD"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := DisplayName(tt.code); got != tt.want {
				t.Errorf("DisplayName(%q) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}
