package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tradesentry/internal/domain"
)

const (
	// alertStream is the Redis stream where dispatched alerts are published.
	alertStream = "alerts"
	// alertStreamMaxLen caps the stream length, enforced via XADD MAXLEN ~.
	alertStreamMaxLen int64 = 10000
)

// AlertBus implements domain.AlertBus using a capped Redis stream, giving
// out-of-process consumers a durable, ordered alert feed.
type AlertBus struct {
	rdb *redis.Client
}

// NewAlertBus creates an AlertBus backed by the given Client.
func NewAlertBus(c *Client) *AlertBus {
	return &AlertBus{rdb: c.Underlying()}
}

// Publish appends the alert to the stream as a JSON payload.
func (ab *AlertBus) Publish(ctx context.Context, alert domain.Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("redis: marshal alert %s: %w", alert.ID, err)
	}

	args := &redis.XAddArgs{
		Stream: alertStream,
		MaxLen: alertStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"payload": payload,
		},
	}
	if err := ab.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: publish alert %s: %w", alert.ID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.AlertBus = (*AlertBus)(nil)
