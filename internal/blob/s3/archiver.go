package s3blob

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/zmartlabs/zmart-sync/internal/domain"
	"github.com/zmartlabs/zmart-sync/internal/metrics"
)

// Archiver moves event-audit rows past the retention period out of the
// primary store: batches are uploaded to object storage as gzip JSONL, and
// the rows are pruned only after every batch has landed.
type Archiver struct {
	writer    *Writer
	events    domain.EventStore
	retention time.Duration
	batchSize int
	logger    *slog.Logger

	cron *cron.Cron
}

// NewArchiver creates an Archiver. retention is how long rows stay in the
// primary store; batchSize bounds each archive object.
func NewArchiver(writer *Writer, events domain.EventStore, retention time.Duration, batchSize int, logger *slog.Logger) *Archiver {
	if batchSize <= 0 {
		batchSize = 10_000
	}
	return &Archiver{
		writer:    writer,
		events:    events,
		retention: retention,
		batchSize: batchSize,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// Start schedules archival runs on the given cron expression and returns
// immediately. The run context is detached from Start's caller; Stop ends
// the schedule and waits for an in-flight run.
func (a *Archiver) Start(spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if _, err := a.ArchiveOnce(ctx); err != nil {
			a.logger.Error("archive run failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("s3blob: invalid archive schedule %q: %w", spec, err)
	}
	c.Start()
	a.cron = c
	a.logger.Info("archiver scheduled", slog.String("schedule", spec))
	return nil
}

// Stop halts the schedule and blocks until any running job finishes.
func (a *Archiver) Stop() {
	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
}

// ArchiveOnce archives every event record older than the retention cutoff
// and returns how many rows were moved. Rows are deleted only after all
// batches have been uploaded, so a failed run leaves the primary store
// intact and the next run re-archives the same window (object keys are
// deterministic per batch, an overwrite is harmless).
func (a *Archiver) ArchiveOnce(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-a.retention)

	var (
		archived int64
		offset   int
	)
	for {
		// Nothing is deleted until every batch has landed, so paging is
		// done by over-fetching and slicing past what was already
		// uploaded.
		recs, err := a.events.ListBefore(ctx, cutoff, offset+a.batchSize)
		if err != nil {
			return archived, fmt.Errorf("s3blob: list events before %s: %w", cutoff.Format(time.RFC3339), err)
		}
		if offset >= len(recs) {
			break
		}
		recs = recs[offset:]

		buf, err := gzipJSONL(recs)
		if err != nil {
			return archived, fmt.Errorf("s3blob: encode archive batch: %w", err)
		}
		key := archiveKey(cutoff, offset)
		if err := a.writer.Put(ctx, key, bytes.NewReader(buf), "application/gzip"); err != nil {
			return archived, err
		}

		archived += int64(len(recs))
		offset += len(recs)
		a.logger.Info("archive batch uploaded",
			slog.String("key", key),
			slog.Int("records", len(recs)),
		)
		if len(recs) < a.batchSize {
			break
		}
	}

	if archived == 0 {
		a.logger.Debug("nothing to archive",
			slog.String("cutoff", cutoff.Format(time.RFC3339)),
		)
		return 0, nil
	}

	deleted, err := a.events.DeleteBefore(ctx, cutoff)
	if err != nil {
		return archived, fmt.Errorf("s3blob: prune archived events: %w", err)
	}
	metrics.ArchivedEvents.Add(float64(archived))
	a.logger.Info("archive run complete",
		slog.Int64("archived", archived),
		slog.Int64("pruned", deleted),
		slog.String("cutoff", cutoff.Format(time.RFC3339)),
	)
	return archived, nil
}

// archiveKey builds the object key for one batch, partitioned by cutoff
// day so re-runs of the same window overwrite rather than accumulate.
func archiveKey(cutoff time.Time, offset int) string {
	return fmt.Sprintf("archive/events/%s/%08d.jsonl.gz", cutoff.Format("2006-01-02"), offset)
}

// archiveRow is the JSONL line layout for one event record.
type archiveRow struct {
	TxSignature string          `json:"txSignature"`
	EventType   string          `json:"eventType"`
	Payload     json.RawMessage `json:"payload"`
	Slot        uint64          `json:"slot"`
	BlockTime   time.Time       `json:"blockTime"`
	ProcessedAt time.Time       `json:"processedAt"`
}

// gzipJSONL serialises records as gzip-compressed newline-delimited JSON.
func gzipJSONL(recs []domain.EventRecord) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	enc := json.NewEncoder(zw)
	enc.SetEscapeHTML(false)

	for i, rec := range recs {
		row := archiveRow{
			TxSignature: rec.TxSignature,
			EventType:   string(rec.EventType),
			Payload:     json.RawMessage(rec.Payload),
			Slot:        rec.Slot,
			BlockTime:   rec.BlockTime,
			ProcessedAt: rec.ProcessedAt,
		}
		if err := enc.Encode(row); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}
