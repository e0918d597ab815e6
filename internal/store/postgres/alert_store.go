package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradesentry/internal/domain"
)

// AlertStore implements domain.AlertStore using PostgreSQL.
type AlertStore struct {
	pool *pgxpool.Pool
}

// NewAlertStore creates a new AlertStore backed by the given connection pool.
func NewAlertStore(pool *pgxpool.Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

var _ domain.AlertStore = (*AlertStore)(nil)

// Insert persists one dispatched alert. The Data payload is stored as JSONB.
func (s *AlertStore) Insert(ctx context.Context, alert domain.Alert) error {
	var data []byte
	if alert.Data != nil {
		var err error
		data, err = json.Marshal(alert.Data)
		if err != nil {
			return fmt.Errorf("postgres: marshal alert data: %w", err)
		}
	}

	const query = `
		INSERT INTO alerts (
			id, timestamp, level, type, title, message, priority, data
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		) ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		alert.ID, alert.Timestamp, string(alert.Level), string(alert.Type),
		alert.Title, alert.Message, alert.Priority, data,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert alert: %w", err)
	}
	return nil
}
