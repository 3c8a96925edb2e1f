package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"txinsight/internal/core"
	"txinsight/internal/scoring"
)

const (
	// DefaultForecastPeriods is the horizon of ad-hoc monthly forecasts.
	DefaultForecastPeriods = 6
	// StoredForecastPeriods is the horizon of forecasts over stored data.
	StoredForecastPeriods = 3
)

var ErrNoHistory = errors.New("no monthly spending history")

// Forecast is a forecast laid out as parallel, chronologically sorted
// slices.
type Forecast struct {
	Dates       []string
	Predictions []decimal.Decimal
}

// SpendingHistory supplies the stored monthly spending series.
type SpendingHistory interface {
	MonthlySpending(ctx context.Context) (core.MonthlyTotals, error)
}

// PredictionService exposes the loaded models to single-record requests.
type PredictionService struct {
	models  scoring.Models
	history SpendingHistory
	periods int
}

func NewPredictionService(models scoring.Models, history SpendingHistory, periods int) *PredictionService {
	if periods <= 0 {
		periods = DefaultForecastPeriods
	}
	return &PredictionService{models: models, history: history, periods: periods}
}

// Category predicts the category of a single transaction.
func (s *PredictionService) Category(ctx context.Context, description string, amount decimal.Decimal) (string, error) {
	label, err := s.models.Categorizer.Categorize(ctx, scoring.CategoryInput{Description: description, Amount: amount})
	if err != nil {
		return "", fmt.Errorf("categorize: %w", err)
	}
	return label, nil
}

// Anomaly reports whether an amount is anomalous.
func (s *PredictionService) Anomaly(ctx context.Context, amount decimal.Decimal) (bool, error) {
	anomaly, err := scoring.IsAnomaly(ctx, s.models.Detector, amount)
	if err != nil {
		return false, fmt.Errorf("score anomaly: %w", err)
	}
	return anomaly, nil
}

// ForecastMonthly extends a caller-supplied monthly series by the configured
// number of periods.
func (s *PredictionService) ForecastMonthly(ctx context.Context, series map[string]decimal.Decimal) (map[string]decimal.Decimal, error) {
	out, err := s.models.Forecaster.Forecast(ctx, series, s.periods)
	if err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}
	return out, nil
}

// ForecastStored forecasts the next StoredForecastPeriods months from the
// monthly spending of every stored record.
func (s *PredictionService) ForecastStored(ctx context.Context) (Forecast, error) {
	history, err := s.history.MonthlySpending(ctx)
	if err != nil {
		return Forecast{}, err
	}
	if len(history) == 0 {
		return Forecast{}, ErrNoHistory
	}

	out, err := s.models.Forecaster.Forecast(ctx, history, StoredForecastPeriods)
	if err != nil {
		return Forecast{}, fmt.Errorf("forecast: %w", err)
	}

	f := Forecast{Dates: make([]string, 0, len(out))}
	for month := range out {
		f.Dates = append(f.Dates, month)
	}
	sort.Strings(f.Dates)
	for _, month := range f.Dates {
		f.Predictions = append(f.Predictions, out[month])
	}
	return f, nil
}
