// Package domain defines the shared types and interfaces of the monitoring
// core: market samples, performance metrics, alerts, and the boundary
// contracts (fetchers, sinks, caches, stores) that external collaborators
// implement.
package domain

import (
	"context"
	"time"
)

// MarketSample is a single observation of one instrument's market state,
// produced by the collector at each tick. A sample is immutable once created.
type MarketSample struct {
	Instrument string    `json:"instrument"`
	Timestamp  time.Time `json:"timestamp"`
	Price      float64   `json:"price"`
	Volume     float64   `json:"volume"`
	Bid        float64   `json:"bid"`
	Ask        float64   `json:"ask"`
	High24h    float64   `json:"high_24h"`
	Low24h     float64   `json:"low_24h"`
	Change24h  float64   `json:"change_24h"`
}

// Spread returns the current bid-ask spread, or 0 when either side is missing.
func (s MarketSample) Spread() float64 {
	if s.Bid <= 0 || s.Ask <= 0 {
		return 0
	}
	return s.Ask - s.Bid
}

// SampleFetcher retrieves the current market state for one instrument. An
// exchange-data collaborator implements this; fetch errors are per-instrument
// and never abort the collector's tick.
type SampleFetcher interface {
	Fetch(ctx context.Context, instrument string) (MarketSample, error)
}

// SampleSink is the abstract append sink the collector flushes sample batches
// to. A persistence collaborator implements this.
type SampleSink interface {
	Flush(ctx context.Context, samples []MarketSample) error
}

// FetcherFunc adapts a plain function to the SampleFetcher interface.
type FetcherFunc func(ctx context.Context, instrument string) (MarketSample, error)

// Fetch implements SampleFetcher.
func (f FetcherFunc) Fetch(ctx context.Context, instrument string) (MarketSample, error) {
	return f(ctx, instrument)
}
