package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
)

var errEmptyInput = errors.New("file has no header row")

// Table is a parsed upload before schema validation.
type Table struct {
	Header []string
	Rows   []Row
}

// Row is one data record with the CSV line it started on.
type Row struct {
	Line   int
	Fields []string
}

// ParseCSV reads raw as comma-separated text with a header row. Rows may be
// shorter or longer than the header; validation decides what that means.
func ParseCSV(raw []byte) (Table, error) {
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return Table{}, &ParseError{Err: errEmptyInput}
	}
	if err != nil {
		return Table{}, csvParseError(err)
	}

	var t Table
	t.Header = header
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, csvParseError(err)
		}
		line, _ := r.FieldPos(0)
		t.Rows = append(t.Rows, Row{Line: line, Fields: record})
	}
	return t, nil
}

func csvParseError(err error) error {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return &ParseError{Line: perr.Line, Err: perr.Err}
	}
	return &ParseError{Err: err}
}
