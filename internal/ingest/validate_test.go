package ingest

import (
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"txinsight/internal/core"
)

func TestNormalizeHeader(t *testing.T) {
	tests := map[string]string{
		"Transaction Type":    "transaction_type",
		"  ACCOUNT   name ":   "account_name",
		"date":                "date",
		"\ufeffDate":          "date",
		"Predicted\tCategory": "predicted_category",
	}
	for in, want := range tests {
		if got := NormalizeHeader(in); got != want {
			t.Errorf("NormalizeHeader(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseTransactionDate(t *testing.T) {
	want := core.NewDate(2024, 1, 5)
	valid := []string{
		"2024-01-05",
		"2024/01/05",
		"2024-01-05 13:45:00",
		"2024-01-05T23:59:59Z",
		"01/05/2024",
		"1/5/2024",
		"05-Jan-2024",
		"Jan 5, 2024",
		"January 5, 2024",
	}
	for _, s := range valid {
		got, err := ParseTransactionDate(s)
		if err != nil {
			t.Errorf("ParseTransactionDate(%q) error: %v", s, err)
			continue
		}
		if !got.Equal(want.Time) {
			t.Errorf("ParseTransactionDate(%q) = %s, want %s", s, got, want)
		}
	}
	for _, s := range []string{"", "not a date", "2024-13-01", "32/01/2024", "0001-01-01", "01/01/0001", "Jan 1, 0001"} {
		if _, err := ParseTransactionDate(s); err == nil {
			t.Errorf("ParseTransactionDate(%q) expected error", s)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"-4.50", "-4.5"},
		{"2000.00", "2000"},
		{"$1,234.56", "1234.56"},
		{"-$12", "-12"},
		{"+7", "7"},
		{" €3.10 ", "3.1"},
		{"£0", "0"},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if err != nil {
			t.Errorf("ParseAmount(%q) error: %v", tt.in, err)
			continue
		}
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("ParseAmount(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
	for _, s := range []string{"", "abc", "$", "1.2.3"} {
		if _, err := ParseAmount(s); err == nil {
			t.Errorf("ParseAmount(%q) expected error", s)
		}
	}
}

func TestValidateMissingAccountName(t *testing.T) {
	table, err := ParseCSV([]byte("date,description,amount,transaction_type\n2024-01-05,Coffee,-4.50,debit\n"))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	_, err = Validate(table)
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected *SchemaError, got %v", err)
	}
	if !reflect.DeepEqual(schemaErr.Missing, []string{"account_name"}) {
		t.Errorf("Missing = %v, want [account_name]", schemaErr.Missing)
	}
	if !errors.Is(err, ErrSchema) {
		t.Error("schema error should match ErrSchema")
	}
}

func TestValidateMissingSeveralSorted(t *testing.T) {
	_, err := Validate(Table{Header: []string{"description", "date"}})
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected *SchemaError, got %v", err)
	}
	want := []string{"account_name", "amount", "transaction_type"}
	if !reflect.DeepEqual(schemaErr.Missing, want) {
		t.Errorf("Missing = %v, want %v", schemaErr.Missing, want)
	}
}

func TestValidateNormalizesHeadersAndDropsBadDates(t *testing.T) {
	raw := "Date, Description ,Amount,Transaction Type,Account Name,Extra\n" +
		"2024-01-05,Coffee,-4.50,debit,Checking,x\n" +
		"yesterday,Lunch,-12.00,debit,Checking,x\n" +
		"2024-01-20,  Paycheck ,\"2,000.00\",credit,Checking,x\n"
	table, err := ParseCSV([]byte(raw))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	res, err := Validate(table)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", res.Dropped)
	}
	if len(res.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(res.Records))
	}
	second := res.Records[1]
	if second.Description != "Paycheck" || !second.Amount.Equal(decimal.NewFromInt(2000)) ||
		second.TransactionType != "credit" || second.AccountName != "Checking" {
		t.Errorf("unexpected record: %+v", second)
	}
}

func TestValidateBadAmountNamesLine(t *testing.T) {
	raw := "date,description,amount,transaction_type,account_name\n" +
		"2024-01-05,Coffee,-4.50,debit,Checking\n" +
		"2024-01-06,Tea,lots,debit,Checking\n"
	table, err := ParseCSV([]byte(raw))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	_, err = Validate(table)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if parseErr.Line != 3 {
		t.Errorf("Line = %d, want 3", parseErr.Line)
	}
	if !errors.Is(err, ErrParse) {
		t.Error("parse error should match ErrParse")
	}
}

func TestValidateDropsZeroDate(t *testing.T) {
	table, err := ParseCSV([]byte("date,description,amount,transaction_type,account_name\n" +
		"0001-01-01,Coffee,-3.50,debit,Checking\n" +
		"2024-01-05,Bagel,-2.00,debit,Checking\n"))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	res, err := Validate(table)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.Dropped != 1 || len(res.Records) != 1 || res.Records[0].Description != "Bagel" {
		t.Errorf("got %+v, want the 0001-01-01 row dropped", res)
	}
}

func TestValidateShortRowDropsOnMissingDate(t *testing.T) {
	table := Table{
		Header: RequiredFields,
		Rows:   []Row{{Line: 2, Fields: []string{}}},
	}
	res, err := Validate(table)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if res.Dropped != 1 || len(res.Records) != 0 {
		t.Errorf("got %+v, want one dropped row", res)
	}
}

func TestParseCSVErrors(t *testing.T) {
	if _, err := ParseCSV(nil); !errors.Is(err, ErrParse) {
		t.Errorf("empty input: got %v", err)
	}
	_, err := ParseCSV([]byte("a,b\n\"unterminated,1\n"))
	var parseErr *ParseError
	if !errors.As(err, &parseErr) || parseErr.Line == 0 {
		t.Errorf("bad quote: got %v", err)
	}
}
