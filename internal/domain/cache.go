package domain

import (
	"context"
	"time"
)

// SampleCache mirrors the latest sample per instrument into shared storage so
// out-of-process consumers (dashboards, other bots) can read current market
// state without touching the collector.
type SampleCache interface {
	SetLatest(ctx context.Context, sample MarketSample) error
	// Latest returns ErrNotFound when no sample has been written yet.
	Latest(ctx context.Context, instrument string) (MarketSample, error)
}

// EquityFeed reads the portfolio equity published by the strategy
// collaborator. It returns ErrNotFound until the first value is published.
type EquityFeed interface {
	LatestEquity(ctx context.Context) (float64, time.Time, error)
}

// AlertBus publishes dispatched alerts to a shared stream for out-of-process
// consumers.
type AlertBus interface {
	Publish(ctx context.Context, alert Alert) error
}
