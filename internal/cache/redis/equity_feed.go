package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tradesentry/internal/domain"
)

// equityKey is the shared hash where the strategy process publishes portfolio
// equity, with fields "value" and "ts" (Unix nanosecond timestamp).
const equityKey = "portfolio:equity"

// EquityFeed implements domain.EquityFeed by reading the equity hash that the
// strategy collaborator maintains.
type EquityFeed struct {
	rdb *redis.Client
}

// NewEquityFeed creates an EquityFeed backed by the given Client.
func NewEquityFeed(c *Client) *EquityFeed {
	return &EquityFeed{rdb: c.Underlying()}
}

// LatestEquity returns the most recently published equity value and its
// timestamp. It returns domain.ErrNotFound until the first value appears.
func (ef *EquityFeed) LatestEquity(ctx context.Context) (float64, time.Time, error) {
	vals, err := ef.rdb.HGetAll(ctx, equityKey).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get equity: %w", err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	valueStr, ok := vals["value"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse equity value: %w", err)
	}

	ts := time.Time{}
	if tsStr, ok := vals["ts"]; ok {
		tsNano, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil {
			return 0, time.Time{}, fmt.Errorf("redis: parse equity ts: %w", err)
		}
		ts = time.Unix(0, tsNano).UTC()
	}

	return value, ts, nil
}

// PublishEquity writes an equity value into the shared hash. The watcher never
// calls this; it exists for tooling and integration tests.
func (ef *EquityFeed) PublishEquity(ctx context.Context, value float64, ts time.Time) error {
	fields := map[string]interface{}{
		"value": strconv.FormatFloat(value, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := ef.rdb.HSet(ctx, equityKey, fields).Err(); err != nil {
		return fmt.Errorf("redis: publish equity: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.EquityFeed = (*EquityFeed)(nil)
