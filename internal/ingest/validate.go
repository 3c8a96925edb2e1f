package ingest

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"txinsight/internal/core"
)

const (
	FieldDate            = "date"
	FieldDescription     = "description"
	FieldAmount          = "amount"
	FieldTransactionType = "transaction_type"
	FieldAccountName     = "account_name"
)

// RequiredFields is the column set every batch header must carry, after
// normalization.
var RequiredFields = []string{FieldDate, FieldDescription, FieldAmount, FieldTransactionType, FieldAccountName}

// dateLayouts are tried in order; time of day is discarded.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
	"1/2/2006",
	"02-Jan-2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

var (
	errEmptyAmount = errors.New("empty amount")
	errEmptyDate   = errors.New("empty date")
	errZeroDate    = errors.New("date out of range")
)

// ValidationResult holds the rows that survived validation and how many
// were dropped for an unparsable date.
type ValidationResult struct {
	Records []core.Transaction
	Dropped int
}

// Validate checks t against the required schema and converts every row with
// a parsable date into a Transaction. A missing required column rejects the
// whole table with a *SchemaError. Rows whose date cannot be parsed are
// dropped silently; an unparsable amount on a kept row is a *ParseError.
func Validate(t Table) (ValidationResult, error) {
	index := make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		name := NormalizeHeader(h)
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}

	var missing []string
	for _, f := range RequiredFields {
		if _, ok := index[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return ValidationResult{}, &SchemaError{Missing: missing}
	}

	get := func(row Row, field string) string {
		i := index[field]
		if i >= len(row.Fields) {
			return ""
		}
		return strings.TrimSpace(row.Fields[i])
	}

	res := ValidationResult{Records: make([]core.Transaction, 0, len(t.Rows))}
	for _, row := range t.Rows {
		date, err := ParseTransactionDate(get(row, FieldDate))
		if err != nil {
			res.Dropped++
			continue
		}
		amount, err := ParseAmount(get(row, FieldAmount))
		if err != nil {
			return ValidationResult{}, &ParseError{Line: row.Line, Err: err}
		}
		res.Records = append(res.Records, core.Transaction{
			Date:            date,
			Description:     get(row, FieldDescription),
			Amount:          amount,
			TransactionType: get(row, FieldTransactionType),
			AccountName:     get(row, FieldAccountName),
		})
	}
	return res, nil
}

// NormalizeHeader trims and lowercases a column name and joins internal
// whitespace runs with underscores, so "Transaction Type" becomes
// "transaction_type". A leading byte-order mark is removed.
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.Join(strings.Fields(strings.ToLower(h)), "_")
}

// ParseTransactionDate accepts the common layouts bank exports use and
// returns the calendar date. 0001-01-01 is the zero Date, which cannot be
// stored or rendered, so it is refused like any unparsable value.
func ParseTransactionDate(s string) (core.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return core.Date{}, errEmptyDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d := core.DateOf(t)
			if d.IsZero() {
				return core.Date{}, fmt.Errorf("%w: %q", errZeroDate, s)
			}
			return d, nil
		}
	}
	return core.Date{}, fmt.Errorf("unrecognized date %q", s)
}

// ParseAmount parses a signed decimal amount, tolerating a leading currency
// symbol and thousands separators.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	sign := ""
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		sign, s = s[:1], strings.TrimSpace(s[1:])
		if sign == "+" {
			sign = ""
		}
	}
	for _, symbol := range []string{"$", "€", "£"} {
		s = strings.TrimPrefix(s, symbol)
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Decimal{}, errEmptyAmount
	}
	d, err := decimal.NewFromString(sign + s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q", sign+s)
	}
	return d, nil
}
