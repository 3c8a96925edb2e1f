package core

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/shopspring/decimal"
)

// CategoryTotal is the summed amount of one predicted category.
type CategoryTotal struct {
	Name   string
	Amount decimal.Decimal
}

// CategoryTotals keeps the descending-by-total order and renders as an
// ordered JSON object.
type CategoryTotals []CategoryTotal

// AnomalyCounts always carries both buckets, zero when absent.
type AnomalyCounts struct {
	Normal  int `json:"normal"`
	Anomaly int `json:"anomaly"`
}

// BatchSummary is the aggregated view over a set of enriched transactions.
type BatchSummary struct {
	TotalTransactions int            `json:"total_transactions"`
	AnomaliesDetected int            `json:"anomalies_detected"`
	CategoryTotals    CategoryTotals `json:"category_summary"`
	AnomalyCounts     AnomalyCounts  `json:"anomaly_summary"`
	MonthlyTotals     MonthlyTotals  `json:"monthly_spending"`
}

// MonthlyTotals maps "YYYY-MM" to the summed positive amount of that month.
type MonthlyTotals map[string]decimal.Decimal

// Summarize aggregates records. Category totals include every row, sorted
// descending with ties in first-seen order. Monthly totals include only
// rows with a strictly positive amount; months without any are absent.
func Summarize(records []EnrichedTransaction) BatchSummary {
	s := BatchSummary{
		TotalTransactions: len(records),
		CategoryTotals:    CategoryTotals{},
		MonthlyTotals:     make(MonthlyTotals),
	}

	index := make(map[string]int)
	for _, r := range records {
		if r.IsAnomaly {
			s.AnomalyCounts.Anomaly++
		} else {
			s.AnomalyCounts.Normal++
		}

		if i, ok := index[r.PredictedCategory]; ok {
			s.CategoryTotals[i].Amount = s.CategoryTotals[i].Amount.Add(r.Amount)
		} else {
			index[r.PredictedCategory] = len(s.CategoryTotals)
			s.CategoryTotals = append(s.CategoryTotals, CategoryTotal{Name: r.PredictedCategory, Amount: r.Amount})
		}

		if r.Amount.IsPositive() {
			key := r.Date.MonthKey()
			s.MonthlyTotals[key] = s.MonthlyTotals[key].Add(r.Amount)
		}
	}
	s.AnomaliesDetected = s.AnomalyCounts.Anomaly

	sort.SliceStable(s.CategoryTotals, func(i, j int) bool {
		return s.CategoryTotals[i].Amount.GreaterThan(s.CategoryTotals[j].Amount)
	})

	return s
}

// Get returns the total for name and whether the category is present.
func (c CategoryTotals) Get(name string) (decimal.Decimal, bool) {
	for _, ct := range c {
		if ct.Name == name {
			return ct.Amount, true
		}
	}
	return decimal.Zero, false
}

// Sum adds up every category total.
func (c CategoryTotals) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, ct := range c {
		sum = sum.Add(ct.Amount)
	}
	return sum
}

// MarshalJSON writes {"name": amount, ...} preserving slice order.
func (c CategoryTotals) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ct := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(ct.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(ct.Amount.String())
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Months returns the keys in chronological order.
func (m MonthlyTotals) Months() []string {
	months := make([]string, 0, len(m))
	for k := range m {
		months = append(months, k)
	}
	sort.Strings(months)
	return months
}

// MarshalJSON writes amounts as JSON numbers in chronological key order.
func (m MonthlyTotals) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.Months() {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(`"` + k + `":`)
		buf.WriteString(m[k].String())
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
