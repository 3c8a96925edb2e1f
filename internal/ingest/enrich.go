package ingest

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"txinsight/internal/core"
	"txinsight/internal/scoring"
)

// DefaultWorkers bounds per-batch enrichment parallelism when no limit is
// configured.
const DefaultWorkers = 8

// Engine labels transactions with the category and anomaly models. Rows are
// independent, so a batch is scored in parallel.
type Engine struct {
	categorizer scoring.Categorizer
	detector    scoring.AnomalyDetector
	workers     int
}

func NewEngine(models scoring.Models, workers int) *Engine {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Engine{
		categorizer: models.Categorizer,
		detector:    models.Detector,
		workers:     workers,
	}
}

// Enrich scores one transaction. The category model sees description and
// amount; the anomaly model sees the amount only.
func (e *Engine) Enrich(ctx context.Context, t core.Transaction) (core.EnrichedTransaction, error) {
	category, err := e.categorizer.Categorize(ctx, scoring.CategoryInput{
		Description: t.Description,
		Amount:      t.Amount,
	})
	if err != nil {
		return core.EnrichedTransaction{}, fmt.Errorf("categorize: %w", err)
	}
	anomaly, err := scoring.IsAnomaly(ctx, e.detector, t.Amount)
	if err != nil {
		return core.EnrichedTransaction{}, fmt.Errorf("score anomaly: %w", err)
	}
	return core.EnrichedTransaction{
		Transaction:       t,
		PredictedCategory: category,
		IsAnomaly:         anomaly,
	}, nil
}

// EnrichAll scores rows preserving their order. The first failure cancels
// the remaining work and is returned; no partial result is produced.
func (e *Engine) EnrichAll(ctx context.Context, rows []core.Transaction) ([]core.EnrichedTransaction, error) {
	out := make([]core.EnrichedTransaction, len(rows))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range rows {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := e.Enrich(ctx, rows[i])
			if err != nil {
				return fmt.Errorf("row %d: %w", i+1, err)
			}
			out[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
