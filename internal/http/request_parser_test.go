package http

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"txinsight/internal/core"
)

func TestParseFilter(t *testing.T) {
	yes := true

	tests := []struct {
		name    string
		query   url.Values
		want    core.Filter
		wantErr bool
	}{
		{
			name:  "empty query",
			query: url.Values{},
			want:  core.Filter{},
		},
		{
			name: "all fields",
			query: url.Values{
				"start_date": {"2024-01-01"},
				"end_date":   {"2024-03-31"},
				"category":   {" Groceries "},
				"account":    {"Checking"},
				"anomaly":    {"true"},
			},
			want: core.Filter{
				StartDate: core.NewDate(2024, 1, 1),
				EndDate:   core.NewDate(2024, 3, 31),
				Category:  "Groceries",
				Account:   "Checking",
				Anomaly:   &yes,
			},
		},
		{
			name:    "bad start date",
			query:   url.Values{"start_date": {"01/02/2024"}},
			wantErr: true,
		},
		{
			name:    "bad anomaly flag",
			query:   url.Values{"anomaly": {"maybe"}},
			wantErr: true,
		},
		{
			name:    "inverted range",
			query:   url.Values{"start_date": {"2024-05-01"}, "end_date": {"2024-04-01"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFilter(tt.query)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFilter() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !got.StartDate.Equal(tt.want.StartDate.Time) || !got.EndDate.Equal(tt.want.EndDate.Time) {
				t.Errorf("dates = %v..%v, want %v..%v", got.StartDate, got.EndDate, tt.want.StartDate, tt.want.EndDate)
			}
			if got.Category != tt.want.Category || got.Account != tt.want.Account {
				t.Errorf("category/account = %q/%q, want %q/%q", got.Category, got.Account, tt.want.Category, tt.want.Account)
			}
			if (got.Anomaly == nil) != (tt.want.Anomaly == nil) {
				t.Fatalf("Anomaly = %v, want %v", got.Anomaly, tt.want.Anomaly)
			}
			if got.Anomaly != nil && *got.Anomaly != *tt.want.Anomaly {
				t.Errorf("Anomaly = %v, want %v", *got.Anomaly, *tt.want.Anomaly)
			}
		})
	}
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name       string
		query      url.Values
		wantLimit  int
		wantOffset int
		wantErr    bool
	}{
		{name: "defaults", query: url.Values{}, wantLimit: 0, wantOffset: 0},
		{name: "explicit", query: url.Values{"limit": {"25"}, "offset": {"50"}}, wantLimit: 25, wantOffset: 50},
		{name: "max limit", query: url.Values{"limit": {"1000"}}, wantLimit: 1000},
		{name: "zero limit", query: url.Values{"limit": {"0"}}, wantErr: true},
		{name: "limit too large", query: url.Values{"limit": {"1001"}}, wantErr: true},
		{name: "negative offset", query: url.Values{"offset": {"-1"}}, wantErr: true},
		{name: "non numeric", query: url.Values{"limit": {"ten"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit, offset, err := ParsePagination(tt.query)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePagination() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && (limit != tt.wantLimit || offset != tt.wantOffset) {
				t.Errorf("got %d/%d, want %d/%d", limit, offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "valid", body: `{"description":"coffee","amount":3.5}`},
		{name: "empty", body: ``, wantErr: "empty"},
		{name: "malformed", body: `{"amount":`, wantErr: "invalid JSON"},
		{name: "trailing object", body: `{"amount":1}{"amount":2}`, wantErr: "single JSON object"},
		{name: "too large", body: `{"description":"` + strings.Repeat("x", maxJSONBodyBytes) + `"}`, wantErr: "exceeds"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/predict/category", strings.NewReader(tt.body))
			var in TransactionInput
			err := DecodeJSON(httptest.NewRecorder(), req, &in)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("DecodeJSON() error = %v", err)
				}
				if in.Amount == nil || in.Amount.String() != "3.5" {
					t.Errorf("Amount = %v, want 3.5", in.Amount)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("DecodeJSON() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestTransactionInputValidate(t *testing.T) {
	in := TransactionInput{Description: "  rent\x00 "}
	if err := in.validate(); err == nil {
		t.Fatal("missing amount must be rejected")
	}
	if in.Description != "rent" {
		t.Errorf("Description = %q, want sanitized %q", in.Description, "rent")
	}
}

func multipartRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/transactions/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestReadUpload(t *testing.T) {
	content := []byte("Date,Description,Amount\n")

	tests := []struct {
		name     string
		req      func(t *testing.T) *http.Request
		maxBytes int64
		wantErr  error
		wantName string
	}{
		{
			name:     "csv file",
			req:      func(t *testing.T) *http.Request { return multipartRequest(t, "file", "jan.csv", content) },
			maxBytes: 1 << 20,
			wantName: "jan.csv",
		},
		{
			name:     "upper case extension",
			req:      func(t *testing.T) *http.Request { return multipartRequest(t, "file", "JAN.CSV", content) },
			maxBytes: 1 << 20,
			wantName: "JAN.CSV",
		},
		{
			name:     "directory components stripped",
			req:      func(t *testing.T) *http.Request { return multipartRequest(t, "file", "../../x/feb.csv", content) },
			maxBytes: 1 << 20,
			wantName: "feb.csv",
		},
		{
			name:     "wrong extension",
			req:      func(t *testing.T) *http.Request { return multipartRequest(t, "file", "jan.xlsx", content) },
			maxBytes: 1 << 20,
			wantErr:  errNotCSV,
		},
		{
			name:     "wrong field",
			req:      func(t *testing.T) *http.Request { return multipartRequest(t, "upload", "jan.csv", content) },
			maxBytes: 1 << 20,
			wantErr:  errMissingFile,
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/transactions/upload", strings.NewReader("a,b"))
			},
			maxBytes: 1 << 20,
			wantErr:  errMissingFile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, data, err := ReadUpload(httptest.NewRecorder(), tt.req(t), tt.maxBytes)
			if err != tt.wantErr {
				t.Fatalf("ReadUpload() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			if name != tt.wantName {
				t.Errorf("filename = %q, want %q", name, tt.wantName)
			}
			if !bytes.Equal(data, content) {
				t.Errorf("data = %q", data)
			}
		})
	}
}

func TestReadUploadTooLarge(t *testing.T) {
	req := multipartRequest(t, "file", "big.csv", bytes.Repeat([]byte("x"), 4096))
	_, _, err := ReadUpload(httptest.NewRecorder(), req, 512)
	if !errors.Is(err, ErrUploadTooLarge) || !strings.Contains(err.Error(), "exceeds 512 bytes") {
		t.Fatalf("ReadUpload() error = %v, want ErrUploadTooLarge", err)
	}
}
