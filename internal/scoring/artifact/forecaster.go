package artifact

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"txinsight/internal/scoring"
)

const monthLayout = "2006-01"

var (
	ErrEmptySeries    = fmt.Errorf("%w: empty monthly series", scoring.ErrInvalidSeries)
	ErrInvalidPeriods = errors.New("periods must be positive")
)

// trendForecaster fits a least-squares line through the monthly series,
// using the month offset from the first observation as x, and extends it.
type trendForecaster struct{}

var _ scoring.Forecaster = trendForecaster{}

func newTrendForecaster() trendForecaster { return trendForecaster{} }

func (trendForecaster) Forecast(_ context.Context, series map[string]decimal.Decimal, periods int) (map[string]decimal.Decimal, error) {
	if periods <= 0 {
		return nil, ErrInvalidPeriods
	}
	if len(series) == 0 {
		return nil, ErrEmptySeries
	}

	type point struct {
		month time.Time
		y     float64
	}
	points := make([]point, 0, len(series))
	for key, v := range series {
		m, err := ParseMonth(key)
		if err != nil {
			return nil, err
		}
		points = append(points, point{month: m, y: v.InexactFloat64()})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].month.Before(points[j].month) })

	first := points[0].month
	var sumX, sumY, sumXY, sumXX float64
	for _, p := range points {
		x := float64(monthsBetween(first, p.month))
		sumX += x
		sumY += p.y
		sumXY += x * p.y
		sumXX += x * x
	}
	n := float64(len(points))
	slope := 0.0
	if denom := n*sumXX - sumX*sumX; denom != 0 {
		slope = (n*sumXY - sumX*sumY) / denom
	}
	intercept := (sumY - slope*sumX) / n

	last := points[len(points)-1].month
	out := make(map[string]decimal.Decimal, periods)
	for i := 1; i <= periods; i++ {
		m := last.AddDate(0, i, 0)
		x := float64(monthsBetween(first, m))
		out[m.Format(monthLayout)] = decimal.NewFromFloat(intercept + slope*x).Round(2)
	}
	return out, nil
}

// ParseMonth accepts "YYYY-MM" or a full "YYYY-MM-DD" date and returns the
// first day of that month.
func ParseMonth(key string) (time.Time, error) {
	for _, layout := range []string{monthLayout, "2006-01-02"} {
		if t, err := time.Parse(layout, key); err == nil {
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid month %q", scoring.ErrInvalidSeries, key)
}

func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}
