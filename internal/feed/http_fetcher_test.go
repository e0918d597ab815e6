package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradesentry/internal/domain"
)

func TestHTTPFetcherParsesQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"symbol": "BTCUSDT",
			"lastPrice": "64250.10",
			"volume": "12345.6",
			"bidPrice": "64249.90",
			"askPrice": "64250.30",
			"highPrice": "65000.00",
			"lowPrice": "63000.00",
			"priceChangePercent": "-1.25"
		}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL)
	sample, err := f.Fetch(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", sample.Instrument)
	assert.Equal(t, 64250.10, sample.Price)
	assert.Equal(t, 12345.6, sample.Volume)
	assert.Equal(t, 64249.90, sample.Bid)
	assert.Equal(t, 64250.30, sample.Ask)
	assert.Equal(t, 65000.00, sample.High24h)
	assert.Equal(t, 63000.00, sample.Low24h)
	assert.InDelta(t, -0.0125, sample.Change24h, 1e-12)
	assert.InDelta(t, 0.40, sample.Spread(), 1e-9)
	assert.False(t, sample.Timestamp.IsZero())
}

func TestHTTPFetcherRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL)
	_, err := f.Fetch(context.Background(), "BTCUSDT")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestHTTPFetcherUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "symbol not listed", http.StatusBadRequest)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL)
	_, err := f.Fetch(context.Background(), "NOPEUSDT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
	assert.Contains(t, err.Error(), "symbol not listed")
}

func TestHTTPFetcherMissingPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"symbol": "BTCUSDT"}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL)
	_, err := f.Fetch(context.Background(), "BTCUSDT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse price")
}

func TestHTTPFetcherMalformedOptionalFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"lastPrice": "100.5", "volume": "n/a", "bidPrice": ""}`))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.URL)
	sample, err := f.Fetch(context.Background(), "BTCUSDT")
	require.NoError(t, err, "only the price is mandatory")
	assert.Equal(t, 100.5, sample.Price)
	assert.Zero(t, sample.Volume)
	assert.Zero(t, sample.Bid)
	assert.Zero(t, sample.Spread())
}

func TestHTTPFetcherContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewHTTPFetcher(srv.URL)
	_, err := f.Fetch(ctx, "BTCUSDT")
	assert.ErrorIs(t, err, context.Canceled)
}
