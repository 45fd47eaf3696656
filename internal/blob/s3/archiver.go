package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"ladderbot/internal/domain"
)

// archiveBatchSize bounds how many closed positions one archive pass reads.
const archiveBatchSize = 1000

// Archiver periodically copies closed positions older than the retention
// window into object storage as JSONL. Records are never deleted from the
// primary store here; pruning is a separate, explicit operation run after
// the archive has been verified.
type Archiver struct {
	writer    domain.BlobWriter
	positions domain.PositionStore
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// NewArchiver creates an archiver that runs every interval and archives
// positions closed more than retention ago.
func NewArchiver(writer domain.BlobWriter, positions domain.PositionStore, retention, interval time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:    writer,
		positions: positions,
		retention: retention,
		interval:  interval,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// Run executes archive passes on the configured interval until ctx is
// cancelled. Failed passes are logged and retried on the next tick.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			count, err := a.ArchiveOnce(ctx)
			if err != nil {
				a.logger.Error("archive pass failed", slog.String("error", err.Error()))
				continue
			}
			if count > 0 {
				a.logger.Info("positions archived", slog.Int("count", count))
			}
		}
	}
}

// ArchiveOnce performs a single archive pass and returns the number of
// positions uploaded.
func (a *Archiver) ArchiveOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-a.retention)

	positions, err := a.positions.ListClosedBefore(ctx, cutoff, archiveBatchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(positions) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(positions)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	key := archiveKey(cutoff)
	if err := a.writer.Put(ctx, key, "application/x-ndjson", buf); err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	return len(positions), nil
}

// archiveKey renders the object key for an archive batch, partitioned by
// month of the cutoff.
func archiveKey(cutoff time.Time) string {
	return fmt.Sprintf("archive/positions/%s/%d.jsonl", cutoff.Format("2006-01"), time.Now().UnixNano())
}

// marshalJSONL serializes each record as one JSON object per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
