package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical calendar-date layout used for storage and JSON.
const DateLayout = "2006-01-02"

type (
	// Date is a calendar date with no time-of-day component, always UTC midnight.
	Date struct {
		time.Time
	}

	// Transaction is one validated row of an uploaded batch.
	Transaction struct {
		Date            Date
		Description     string
		Amount          decimal.Decimal // signed; negative values are outflows
		TransactionType string          // e.g. debit, credit
		AccountName     string
	}

	// EnrichedTransaction is a Transaction plus its model-derived labels.
	// It is never mutated after enrichment.
	EnrichedTransaction struct {
		Transaction
		PredictedCategory string
		IsAnomaly         bool
	}

	// Batch is the unit of atomic persistence: every record plus the
	// fingerprint of the raw upload they were parsed from.
	Batch struct {
		ID          string
		Fingerprint string
		Records     []EnrichedTransaction
	}

	// Filter narrows a query over stored transactions. Zero values mean
	// "no constraint".
	Filter struct {
		StartDate Date
		EndDate   Date
		Category  string
		Account   string
		Anomaly   *bool
	}
)

var (
	ErrEmptyFingerprint = errors.New("empty fingerprint")
	ErrEmptyBatchID     = errors.New("empty batch id")
	ErrMissingDate      = errors.New("record has no date")
	ErrInvalidDateRange = errors.New("start date after end date")

	// ErrFingerprintExists is returned by record stores when a batch with the
	// same fingerprint has already been committed.
	ErrFingerprintExists = errors.New("fingerprint already recorded")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MonthKey returns the "YYYY-MM" bucket the date falls in.
func (d Date) MonthKey() string {
	return d.Format("2006-01")
}

// IsEmpty returns true if the date is zero (for optional filter bounds)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (b Batch) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return ErrEmptyBatchID
	}
	if strings.TrimSpace(b.Fingerprint) == "" {
		return ErrEmptyFingerprint
	}
	for i, r := range b.Records {
		if r.Date.IsZero() {
			return fmt.Errorf("record %d: %w", i+1, ErrMissingDate)
		}
	}
	return nil
}

func (f Filter) Validate() error {
	if !f.StartDate.IsEmpty() && !f.EndDate.IsEmpty() && f.StartDate.After(f.EndDate.Time) {
		return ErrInvalidDateRange
	}
	return nil
}

// Match reports whether r satisfies every constraint in f. Date bounds are
// inclusive.
func (f Filter) Match(r EnrichedTransaction) bool {
	if !f.StartDate.IsEmpty() && r.Date.Before(f.StartDate.Time) {
		return false
	}
	if !f.EndDate.IsEmpty() && r.Date.After(f.EndDate.Time) {
		return false
	}
	if f.Category != "" && r.PredictedCategory != f.Category {
		return false
	}
	if f.Account != "" && r.AccountName != f.Account {
		return false
	}
	if f.Anomaly != nil && r.IsAnomaly != *f.Anomaly {
		return false
	}
	return true
}
