package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/tradesentry/internal/domain"
)

// SampleArchiver implements domain.Archiver by moving aged market samples from
// the primary store into object storage as newline-delimited JSON. Samples are
// deleted from the store only after the upload succeeds, so a failed upload
// leaves the database intact and the next run retries the same rows.
type SampleArchiver struct {
	writer domain.BlobWriter
	store  domain.SampleStore
	logger *slog.Logger
}

// NewSampleArchiver creates a SampleArchiver writing through the given blob
// writer.
func NewSampleArchiver(writer domain.BlobWriter, store domain.SampleStore, logger *slog.Logger) *SampleArchiver {
	return &SampleArchiver{
		writer: writer,
		store:  store,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveSamples uploads all samples older than the cutoff as one JSONL file
// at samples/YYYY-MM-DD/archive-<unix>.jsonl, then deletes them from the
// store. It returns the number of samples archived.
func (a *SampleArchiver) ArchiveSamples(ctx context.Context, before time.Time) (int64, error) {
	samples, err := a.store.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive samples query: %w", err)
	}
	if len(samples) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(samples)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive samples marshal: %w", err)
	}

	path := archivePath(before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive samples upload: %w", err)
	}

	deleted, err := a.store.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(samples)), fmt.Errorf("s3blob: archive samples delete: %w", err)
	}

	a.logger.InfoContext(ctx, "samples archived",
		slog.String("path", path),
		slog.Int("archived", len(samples)),
		slog.Int64("deleted", deleted),
	)
	return int64(len(samples)), nil
}

// archivePath builds the S3 key for an archive file, partitioned by the day
// of the cutoff time:
//
//	samples/2026-09-01/archive-1756684800.jsonl
func archivePath(before time.Time) string {
	return fmt.Sprintf("samples/%s/archive-%d.jsonl", before.Format("2006-01-02"), before.Unix())
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*SampleArchiver)(nil)
