package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tradesentry/internal/domain"
)

// SampleCache implements domain.SampleCache using Redis hashes. Each
// instrument's latest sample is stored at key "sample:{instrument}" so
// out-of-process consumers can read current market state.
type SampleCache struct {
	rdb *redis.Client
}

// NewSampleCache creates a SampleCache backed by the given Client.
func NewSampleCache(c *Client) *SampleCache {
	return &SampleCache{rdb: c.Underlying()}
}

func sampleKey(instrument string) string {
	return "sample:" + instrument
}

func f64(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// SetLatest stores the latest sample for an instrument.
func (sc *SampleCache) SetLatest(ctx context.Context, sample domain.MarketSample) error {
	fields := map[string]interface{}{
		"price":      f64(sample.Price),
		"volume":     f64(sample.Volume),
		"bid":        f64(sample.Bid),
		"ask":        f64(sample.Ask),
		"high_24h":   f64(sample.High24h),
		"low_24h":    f64(sample.Low24h),
		"change_24h": f64(sample.Change24h),
		"ts":         strconv.FormatInt(sample.Timestamp.UnixNano(), 10),
	}
	if err := sc.rdb.HSet(ctx, sampleKey(sample.Instrument), fields).Err(); err != nil {
		return fmt.Errorf("redis: set sample %s: %w", sample.Instrument, err)
	}
	return nil
}

// Latest retrieves the latest sample for an instrument. It returns
// domain.ErrNotFound when no sample has been written yet.
func (sc *SampleCache) Latest(ctx context.Context, instrument string) (domain.MarketSample, error) {
	vals, err := sc.rdb.HGetAll(ctx, sampleKey(instrument)).Result()
	if err != nil {
		return domain.MarketSample{}, fmt.Errorf("redis: get sample %s: %w", instrument, err)
	}
	if len(vals) == 0 {
		return domain.MarketSample{}, domain.ErrNotFound
	}

	sample := domain.MarketSample{Instrument: instrument}
	for field, dst := range map[string]*float64{
		"price":      &sample.Price,
		"volume":     &sample.Volume,
		"bid":        &sample.Bid,
		"ask":        &sample.Ask,
		"high_24h":   &sample.High24h,
		"low_24h":    &sample.Low24h,
		"change_24h": &sample.Change24h,
	} {
		raw, ok := vals[field]
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.MarketSample{}, fmt.Errorf("redis: parse %s for %s: %w", field, instrument, err)
		}
		*dst = v
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return domain.MarketSample{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return domain.MarketSample{}, fmt.Errorf("redis: parse ts for %s: %w", instrument, err)
	}
	sample.Timestamp = time.Unix(0, tsNano).UTC()

	return sample, nil
}

// Compile-time interface check.
var _ domain.SampleCache = (*SampleCache)(nil)
