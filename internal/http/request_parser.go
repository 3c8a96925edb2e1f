// Package http provides HTTP server and handler implementations.
//
// This file implements parsing and validation of query strings, JSON bodies
// and multipart uploads.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"txinsight/internal/core"
	"txinsight/internal/services"
)

const (
	maxJSONBodyBytes = 1 << 20
	uploadFormField  = "file"
)

var (
	errNotCSV      = errors.New("invalid file type, please upload a CSV file")
	errMissingFile = errors.New("missing multipart field \"file\"")

	// ErrUploadTooLarge is returned by ReadUpload when the request body
	// exceeds the configured limit.
	ErrUploadTooLarge = errors.New("upload too large")
)

// ParseFilter reads start_date, end_date, category, account and anomaly from
// query. Empty values mean no constraint.
func ParseFilter(query url.Values) (core.Filter, error) {
	var f core.Filter

	if v := strings.TrimSpace(query.Get("start_date")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return core.Filter{}, fmt.Errorf("invalid start_date %q: want YYYY-MM-DD", v)
		}
		f.StartDate = d
	}
	if v := strings.TrimSpace(query.Get("end_date")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return core.Filter{}, fmt.Errorf("invalid end_date %q: want YYYY-MM-DD", v)
		}
		f.EndDate = d
	}

	f.Category = sanitizeInput(query.Get("category"))
	f.Account = sanitizeInput(query.Get("account"))

	if v := strings.TrimSpace(query.Get("anomaly")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return core.Filter{}, fmt.Errorf("invalid anomaly %q: want true or false", v)
		}
		f.Anomaly = &b
	}

	if err := f.Validate(); err != nil {
		return core.Filter{}, err
	}
	return f, nil
}

// ParsePagination reads limit and offset. Absent values are 0, which the
// report service treats as "default limit" and "from the start".
func ParsePagination(query url.Values) (limit, offset int, err error) {
	if v := strings.TrimSpace(query.Get("limit")); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid limit %q", v)
		}
		if limit < 1 || limit > services.MaxPageLimit {
			return 0, 0, fmt.Errorf("invalid limit %d: must be between 1 and %d", limit, services.MaxPageLimit)
		}
	}
	if v := strings.TrimSpace(query.Get("offset")); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid offset %q", v)
		}
		if offset < 0 {
			return 0, 0, fmt.Errorf("invalid offset %d: must not be negative", offset)
		}
	}
	return limit, offset, nil
}

// DecodeJSON decodes a bounded JSON body into dst, rejecting trailing data.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		case errors.Is(err, io.EOF):
			return errors.New("request body is empty")
		default:
			return fmt.Errorf("invalid JSON body: %v", err)
		}
	}
	if dec.More() {
		return errors.New("request body must hold a single JSON object")
	}
	return nil
}

// TransactionInput is the body of the single-record prediction endpoints.
type TransactionInput struct {
	Description string           `json:"description"`
	Amount      *decimal.Decimal `json:"amount"`
}

func (in *TransactionInput) validate() error {
	in.Description = sanitizeInput(in.Description)
	if in.Amount == nil {
		return errors.New("amount is required")
	}
	return nil
}

// ForecastRequest is the body of POST /forecast/monthly.
type ForecastRequest struct {
	MonthlySpending map[string]decimal.Decimal `json:"monthly_spending"`
}

// ReadUpload extracts the CSV file from a multipart request, enforcing the
// .csv extension and maxBytes.
func ReadUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (filename string, data []byte, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		if tooLarge := uploadSizeError(err); tooLarge != nil {
			return "", nil, tooLarge
		}
		return "", nil, errMissingFile
	}
	defer file.Close()

	filename = filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(filename), ".csv") {
		return filename, nil, errNotCSV
	}

	data, err = io.ReadAll(file)
	if err != nil {
		if tooLarge := uploadSizeError(err); tooLarge != nil {
			return filename, nil, tooLarge
		}
		return filename, nil, fmt.Errorf("read upload: %w", err)
	}
	return filename, data, nil
}

func uploadSizeError(err error) error {
	var maxErr *http.MaxBytesError
	if !errors.As(err, &maxErr) {
		return nil
	}
	return fmt.Errorf("%w: upload exceeds %d bytes", ErrUploadTooLarge, maxErr.Limit)
}

// sanitizeInput removes control characters except tab and newlines and trims
// whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
