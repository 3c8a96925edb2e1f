// Package ingest turns an uploaded transaction file into enriched, persisted
// records: fingerprint check, parse, schema validation, enrichment, atomic
// storage and summary.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"txinsight/internal/core"
	"txinsight/internal/scoring"
)

// DefaultPreviewRows is how many enriched rows an accepted result echoes.
const DefaultPreviewRows = 20

type (
	// Store persists a batch atomically: every record and the fingerprint
	// commit together or not at all. InsertBatch must return an error
	// wrapping core.ErrFingerprintExists when the fingerprint is taken.
	Store interface {
		FingerprintStore
		InsertBatch(ctx context.Context, batch core.Batch) error
	}

	// BatchPublisher announces committed batches to downstream consumers.
	BatchPublisher interface {
		PublishBatchIngested(ctx context.Context, batchID string, rowCount int) error
	}

	// Upload is one raw batch as received.
	Upload struct {
		Filename string
		Data     []byte
	}

	// Result describes an accepted batch.
	Result struct {
		BatchID     string
		Fingerprint Fingerprint
		Summary     core.BatchSummary
		Preview     []core.EnrichedTransaction
		DroppedRows int
	}

	Option func(*Pipeline)
)

// Pipeline runs the ingestion state machine. It holds no per-batch state and
// is safe for concurrent use.
type Pipeline struct {
	store       Store
	guard       *Guard
	engine      *Engine
	publisher   BatchPublisher
	previewRows int
	newID       func() string
}

func WithPublisher(p BatchPublisher) Option {
	return func(pl *Pipeline) { pl.publisher = p }
}

func WithPreviewRows(n int) Option {
	return func(pl *Pipeline) {
		if n >= 0 {
			pl.previewRows = n
		}
	}
}

func WithWorkers(n int) Option {
	return func(pl *Pipeline) { pl.engine.workers = max(n, 1) }
}

func NewPipeline(store Store, models scoring.Models, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:       store,
		guard:       NewGuard(store),
		engine:      NewEngine(models, DefaultWorkers),
		previewRows: DefaultPreviewRows,
		newID:       func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest processes one upload. Errors match ErrDuplicateBatch, ErrParse,
// ErrSchema or ErrStorage; on any error nothing has been persisted.
func (p *Pipeline) Ingest(ctx context.Context, up Upload) (Result, error) {
	fp := Compute(up.Data)

	seen, err := p.guard.IsSeen(ctx, fp)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if seen {
		return Result{}, fmt.Errorf("%w: fingerprint %s", ErrDuplicateBatch, fp)
	}

	table, err := ParseCSV(up.Data)
	if err != nil {
		return Result{}, err
	}
	valid, err := Validate(table)
	if err != nil {
		return Result{}, err
	}

	records, err := p.engine.EnrichAll(ctx, valid.Records)
	if err != nil {
		return Result{}, fmt.Errorf("%w: enrich: %w", ErrStorage, err)
	}

	batch := core.Batch{ID: p.newID(), Fingerprint: fp.String(), Records: records}
	if err := p.store.InsertBatch(ctx, batch); err != nil {
		if errors.Is(err, core.ErrFingerprintExists) {
			return Result{}, fmt.Errorf("%w: fingerprint %s", ErrDuplicateBatch, fp)
		}
		return Result{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	// Summaries are computed over exactly what was committed.
	res := Result{
		BatchID:     batch.ID,
		Fingerprint: fp,
		Summary:     core.Summarize(batch.Records),
		Preview:     batch.Records[:min(p.previewRows, len(batch.Records))],
		DroppedRows: valid.Dropped,
	}

	slog.InfoContext(ctx, "Batch ingested",
		"batch_id", res.BatchID,
		"filename", up.Filename,
		"rows", res.Summary.TotalTransactions,
		"dropped_rows", res.DroppedRows,
		"anomalies", res.Summary.AnomaliesDetected)

	p.publish(ctx, res)
	return res, nil
}

// publish is best effort: the batch is already durable.
func (p *Pipeline) publish(ctx context.Context, res Result) {
	if p.publisher == nil {
		slog.DebugContext(ctx, "No batch publisher configured, skipping batch event")
		return
	}
	if err := p.publisher.PublishBatchIngested(ctx, res.BatchID, res.Summary.TotalTransactions); err != nil {
		slog.ErrorContext(ctx, "Failed to publish batch event",
			"batch_id", res.BatchID, "error", err)
	}
}
