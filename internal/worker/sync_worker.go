package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"txinsight/internal/amqp"
	"txinsight/internal/core"
	"txinsight/internal/sheets"
	"txinsight/internal/storage"
)

// DefaultBatchSize bounds one pending sweep.
const DefaultBatchSize = 10

// BatchStore is the slice of the record store the worker needs.
type BatchStore interface {
	GetPendingSyncBatches(ctx context.Context, limit int) ([]storage.PendingBatch, error)
	BatchRecords(ctx context.Context, batchID string) ([]core.EnrichedTransaction, error)
	IsBatchSynced(ctx context.Context, batchID string) (bool, error)
	MarkBatchSynced(ctx context.Context, batchID string) error
}

// SyncWorker mirrors committed batches from SQLite to a spreadsheet. The
// AMQP consumer and the pending sweep share one worker; mu serialises their
// check-append-mark sequences.
type SyncWorker struct {
	store     BatchStore
	sheets    sheets.RecordAppender
	batchSize int

	mu sync.Mutex
}

func NewSyncWorker(store BatchStore, appender sheets.RecordAppender, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &SyncWorker{
		store:     store,
		sheets:    appender,
		batchSize: batchSize,
	}
}

// HandleBatchMessage processes a single batch.ingested message from AMQP.
// Batches already mirrored are acknowledged without appending again.
func (w *SyncWorker) HandleBatchMessage(ctx context.Context, msg *amqp.BatchIngestedMessage) error {
	slog.InfoContext(ctx, "Processing batch message",
		"batch_id", msg.BatchID,
		"row_count", msg.RowCount)

	err := w.syncBatch(ctx, msg.BatchID)
	if errors.Is(err, storage.ErrBatchNotFound) {
		// Nothing to mirror; a redelivery would never succeed.
		slog.WarnContext(ctx, "Batch not found, dropping message", "batch_id", msg.BatchID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("sync batch: %w", err)
	}
	return nil
}

// ProcessPendingBatches mirrors any batches that haven't been synced yet.
// This is a backup mechanism in case AMQP messages are lost.
func (w *SyncWorker) ProcessPendingBatches(ctx context.Context) error {
	pending, err := w.store.GetPendingSyncBatches(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending batches: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending batches", "count", len(pending))

	var failed int
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.syncBatch(ctx, p.BatchID); err != nil {
			failed++
			slog.ErrorContext(ctx, "Failed to sync pending batch",
				"batch_id", p.BatchID,
				"error", err)
		}
	}

	slog.InfoContext(ctx, "Pending batch sweep completed",
		"processed", len(pending)-failed,
		"failed", failed)
	return nil
}

// StartupSyncCheck drains the pending queue once when the worker starts.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	slog.InfoContext(ctx, "Performing startup sync check")
	return w.ProcessPendingBatches(ctx)
}

// syncBatch mirrors batchID unless it is already synced.
func (w *SyncWorker) syncBatch(ctx context.Context, batchID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	synced, err := w.store.IsBatchSynced(ctx, batchID)
	if err != nil {
		return fmt.Errorf("check batch sync state: %w", err)
	}
	if synced {
		slog.DebugContext(ctx, "Batch already synced", "batch_id", batchID)
		return nil
	}

	records, err := w.store.BatchRecords(ctx, batchID)
	if err != nil {
		return fmt.Errorf("load batch records: %w", err)
	}

	ref := ""
	if len(records) > 0 {
		ref, err = w.sheets.AppendRecords(ctx, batchID, records)
		if err != nil {
			return fmt.Errorf("append records: %w", err)
		}
	}

	if err := w.store.MarkBatchSynced(ctx, batchID); err != nil {
		return fmt.Errorf("mark batch synced: %w", err)
	}

	slog.InfoContext(ctx, "Batch synced to sheets",
		"batch_id", batchID,
		"rows", len(records),
		"ref", ref)
	return nil
}
