// Package feed fetches market quotes from the exchange's public REST API.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/tradesentry/internal/domain"
)

// quoteResponse is the JSON shape of the exchange's ticker endpoint.
type quoteResponse struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
	Volume    string `json:"volume"`
	BidPrice  string `json:"bidPrice"`
	AskPrice  string `json:"askPrice"`
	HighPrice string `json:"highPrice"`
	LowPrice  string `json:"lowPrice"`
	// PriceChangePercent is quoted as a percentage, e.g. "-1.25".
	PriceChangePercent string `json:"priceChangePercent"`
}

// HTTPFetcher implements domain.SampleFetcher against a ticker REST endpoint.
type HTTPFetcher struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPFetcher creates a fetcher for the given ticker endpoint, e.g.
// "https://api.exchange.example/api/v3/ticker/24hr".
func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Fetch retrieves the current quote for one instrument.
func (f *HTTPFetcher) Fetch(ctx context.Context, instrument string) (domain.MarketSample, error) {
	u := f.baseURL + "?symbol=" + url.QueryEscape(instrument)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.MarketSample{}, fmt.Errorf("feed: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return domain.MarketSample{}, fmt.Errorf("feed: fetch %s: %w", instrument, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return domain.MarketSample{}, fmt.Errorf("feed: fetch %s: %w", instrument, domain.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.MarketSample{}, fmt.Errorf("feed: fetch %s: unexpected status %d: %s",
			instrument, resp.StatusCode, string(body))
	}

	var quote quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return domain.MarketSample{}, fmt.Errorf("feed: decode quote %s: %w", instrument, err)
	}

	return toSample(instrument, quote)
}

// toSample converts the string-valued quote into a MarketSample. The price is
// mandatory; the remaining fields default to zero when absent or malformed.
func toSample(instrument string, q quoteResponse) (domain.MarketSample, error) {
	price, err := strconv.ParseFloat(q.LastPrice, 64)
	if err != nil {
		return domain.MarketSample{}, fmt.Errorf("feed: parse price %q for %s: %w", q.LastPrice, instrument, err)
	}

	s := domain.MarketSample{
		Instrument: instrument,
		Timestamp:  time.Now().UTC(),
		Price:      price,
	}
	s.Volume, _ = strconv.ParseFloat(q.Volume, 64)
	s.Bid, _ = strconv.ParseFloat(q.BidPrice, 64)
	s.Ask, _ = strconv.ParseFloat(q.AskPrice, 64)
	s.High24h, _ = strconv.ParseFloat(q.HighPrice, 64)
	s.Low24h, _ = strconv.ParseFloat(q.LowPrice, 64)
	if pct, err := strconv.ParseFloat(q.PriceChangePercent, 64); err == nil {
		s.Change24h = pct / 100
	}

	return s, nil
}

// Compile-time interface check.
var _ domain.SampleFetcher = (*HTTPFetcher)(nil)
