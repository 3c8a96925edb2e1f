// Package scoring defines the model contracts the enrichment pipeline and the
// forecast endpoints consume. Implementations are loaded once at process
// start and never mutated afterwards, so every method must be safe for
// concurrent use.
package scoring

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// OutlierSentinel is the raw anomaly-detector decision that means "outlier".
// Every other decision code means "inlier".
const OutlierSentinel = -1

// Inlier is the raw decision code a detector returns for normal amounts.
const Inlier = 1

var (
	ErrModelNotLoaded = errors.New("model not loaded")

	// ErrInvalidSeries is wrapped by forecasters when the input series
	// itself is unusable, as opposed to a model failure.
	ErrInvalidSeries = errors.New("invalid series")
)

type (
	// CategoryInput is the full input of the category model.
	CategoryInput struct {
		Description string
		Amount      decimal.Decimal
	}

	// Categorizer maps a transaction to one label of its closed label set,
	// including the fallback bucket.
	Categorizer interface {
		Categorize(ctx context.Context, in CategoryInput) (string, error)
	}

	// AnomalyDetector returns a raw decision code for an amount; the amount
	// is the only input the detector sees.
	AnomalyDetector interface {
		Decide(ctx context.Context, amount decimal.Decimal) (int, error)
	}

	// Forecaster predicts the next periods of a monthly series. Keys are
	// "YYYY-MM".
	Forecaster interface {
		Forecast(ctx context.Context, series map[string]decimal.Decimal, periods int) (map[string]decimal.Decimal, error)
	}

	// Models bundles the loaded model handles handed to every consumer.
	Models struct {
		Categorizer Categorizer
		Detector    AnomalyDetector
		Forecaster  Forecaster
	}
)

// IsOutlier maps a raw detector decision to the anomaly flag.
func IsOutlier(decision int) bool {
	return decision == OutlierSentinel
}

// IsAnomaly runs the detector and applies the sentinel mapping.
func IsAnomaly(ctx context.Context, d AnomalyDetector, amount decimal.Decimal) (bool, error) {
	decision, err := d.Decide(ctx, amount)
	if err != nil {
		return false, err
	}
	return IsOutlier(decision), nil
}

// Validate reports whether every model handle is present.
func (m Models) Validate() error {
	if m.Categorizer == nil || m.Detector == nil || m.Forecaster == nil {
		return ErrModelNotLoaded
	}
	return nil
}
