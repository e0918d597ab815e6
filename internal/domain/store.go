package domain

import (
	"context"
	"time"
)

// SampleStore is the persistence surface for market samples. It extends the
// append-only SampleSink with the query and retention operations the archiver
// needs.
type SampleStore interface {
	SampleSink
	// HistorySince returns samples for one instrument newer than since, in
	// ascending timestamp order.
	HistorySince(ctx context.Context, instrument string, since time.Time) ([]MarketSample, error)
	// ListBefore returns all samples older than the given time (for archiving).
	ListBefore(ctx context.Context, before time.Time) ([]MarketSample, error)
	// DeleteBefore deletes samples older than the given time and returns the
	// number deleted.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AlertStore persists dispatched alerts for audit and later review.
type AlertStore interface {
	Insert(ctx context.Context, alert Alert) error
}
