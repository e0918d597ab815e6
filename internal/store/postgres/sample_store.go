package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradesentry/internal/domain"
)

// SampleStore implements domain.SampleStore using PostgreSQL.
type SampleStore struct {
	pool *pgxpool.Pool
}

// NewSampleStore creates a new SampleStore backed by the given connection pool.
func NewSampleStore(pool *pgxpool.Pool) *SampleStore {
	return &SampleStore{pool: pool}
}

var _ domain.SampleStore = (*SampleStore)(nil)

const sampleSelectCols = `instrument, timestamp, price, volume, bid, ask,
	high_24h, low_24h, change_24h`

func scanSampleRows(rows pgx.Rows) ([]domain.MarketSample, error) {
	var samples []domain.MarketSample
	for rows.Next() {
		var s domain.MarketSample
		if err := rows.Scan(
			&s.Instrument, &s.Timestamp, &s.Price, &s.Volume,
			&s.Bid, &s.Ask, &s.High24h, &s.Low24h, &s.Change24h,
		); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// Flush inserts a batch of samples using pgx Batch. Duplicate samples (same
// instrument and timestamp) are silently skipped via ON CONFLICT DO NOTHING.
func (s *SampleStore) Flush(ctx context.Context, samples []domain.MarketSample) error {
	if len(samples) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO market_samples (
			instrument, timestamp, price, volume,
			bid, ask, high_24h, low_24h, change_24h
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9
		) ON CONFLICT (instrument, timestamp) DO NOTHING`

	for _, m := range samples {
		batch.Queue(query,
			m.Instrument, m.Timestamp, m.Price, m.Volume,
			m.Bid, m.Ask, m.High24h, m.Low24h, m.Change24h,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range samples {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert sample batch item %d: %w", i, err)
		}
	}
	return nil
}

// HistorySince returns samples for one instrument newer than since, oldest
// first.
func (s *SampleStore) HistorySince(ctx context.Context, instrument string, since time.Time) ([]domain.MarketSample, error) {
	query := `SELECT ` + sampleSelectCols + `
		FROM market_samples
		WHERE instrument = $1 AND timestamp > $2
		ORDER BY timestamp ASC`

	rows, err := s.pool.Query(ctx, query, instrument, since)
	if err != nil {
		return nil, fmt.Errorf("postgres: history since: %w", err)
	}
	defer rows.Close()

	samples, err := scanSampleRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan history: %w", err)
	}
	return samples, nil
}

// ListBefore returns all samples with timestamp strictly before the given time
// (for archiving).
func (s *SampleStore) ListBefore(ctx context.Context, before time.Time) ([]domain.MarketSample, error) {
	query := `SELECT ` + sampleSelectCols + `
		FROM market_samples WHERE timestamp < $1 ORDER BY timestamp ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list samples before: %w", err)
	}
	defer rows.Close()
	return scanSampleRows(rows)
}

// DeleteBefore deletes all samples with timestamp before the given time.
// Returns the number deleted.
func (s *SampleStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM market_samples WHERE timestamp < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete samples before: %w", err)
	}
	return tag.RowsAffected(), nil
}
