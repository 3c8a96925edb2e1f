package artifact

import (
	"context"

	"github.com/shopspring/decimal"

	"txinsight/internal/scoring"
)

// boundsDetector flags amounts outside the fitted inlier interval.
type boundsDetector struct {
	lower, upper decimal.Decimal
}

var _ scoring.AnomalyDetector = (*boundsDetector)(nil)

func newBoundsDetector(m AnomalyModel) *boundsDetector {
	return &boundsDetector{lower: decimal.NewFromFloat(m.Lower), upper: decimal.NewFromFloat(m.Upper)}
}

func (d *boundsDetector) Decide(_ context.Context, amount decimal.Decimal) (int, error) {
	if amount.LessThan(d.lower) || amount.GreaterThan(d.upper) {
		return scoring.OutlierSentinel, nil
	}
	return scoring.Inlier, nil
}
