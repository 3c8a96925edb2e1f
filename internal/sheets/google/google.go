package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"txinsight/internal/core"
	ports "txinsight/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const (
	defaultSheetName = "Transactions"
	// maxRowsPerAppend keeps a single Values.Append request well under the
	// API payload limit.
	maxRowsPerAppend = 500
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

// Ensure interface conformance
var _ ports.RecordAppender = (*Client)(nil)

// New creates a Sheets client for spreadsheetID using service account
// credentials from the environment. An empty sheetName means
// "Transactions".
func New(ctx context.Context, spreadsheetID, sheetName string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newWithService(svc, spreadsheetID, sheetName), nil
}

// NewFromEnv reads GOOGLE_SPREADSHEET_ID and GOOGLE_SHEET_NAME.
func NewFromEnv(ctx context.Context) (*Client, error) {
	return New(ctx, os.Getenv("GOOGLE_SPREADSHEET_ID"), os.Getenv("GOOGLE_SHEET_NAME"))
}

func newWithService(svc *gsheet.Service, spreadsheetID, sheetName string) *Client {
	sheetName = strings.TrimSpace(sheetName)
	if sheetName == "" {
		sheetName = defaultSheetName
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}
}

// newSheetsService initializes a Sheets Service. OAuth user credentials win
// when an OAuth client is configured; otherwise a service account is read from
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	if oauthConfigured() {
		return newOAuthSheetsService(ctx)
	}

	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		data, err := os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = data
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created", "credentials_size", len(credentialsJSON))
	return service, nil
}

func newOAuthSheetsService(ctx context.Context) (*gsheet.Service, error) {
	cfg, err := OAuthConfigFromEnv()
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken()
	if err != nil {
		return nil, err
	}

	service, err := gsheet.NewService(ctx, goption.WithTokenSource(cfg.TokenSource(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created", "credentials", "oauth")
	return service, nil
}

// EnsureHeader writes the header row when the first row of the sheet is
// empty.
func (c *Client) EnsureHeader(ctx context.Context) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	rng := fmt.Sprintf("%s!A1:H1", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s: %w", rng, err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}

	header := make([]any, len(ports.Header))
	for i, h := range ports.Header {
		header[i] = h
	}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{header}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write header to %s: %w", c.sheetName, err)
	}
	return nil
}

// AppendRecords appends one row per record below the existing data and
// returns the range covered by the last append.
func (c *Client) AppendRecords(ctx context.Context, batchID string, records []core.EnrichedTransaction) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if len(records) == 0 {
		return "", nil
	}

	rows := toRows(batchID, records)
	rng := fmt.Sprintf("%s!A:H", c.sheetName)
	var ref string
	for start := 0; start < len(rows); start += maxRowsPerAppend {
		chunk := rows[start:min(start+maxRowsPerAppend, len(rows))]
		resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: chunk}).
			ValueInputOption("USER_ENTERED").
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("append rows %d-%d to %s: %w", start+1, start+len(chunk), c.sheetName, err)
		}
		if resp.Updates != nil {
			ref = resp.Updates.UpdatedRange
		}
	}

	slog.InfoContext(ctx, "Batch mirrored to Google Sheets",
		"batch_id", batchID,
		"rows", len(rows),
		"sheets_ref", ref)
	return ref, nil
}

func toRows(batchID string, records []core.EnrichedTransaction) [][]any {
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = []any{
			r.Date.String(),
			r.Description,
			r.Amount.StringFixed(2),
			r.TransactionType,
			r.AccountName,
			r.PredictedCategory,
			strings.ToUpper(fmt.Sprint(r.IsAnomaly)),
			batchID,
		}
	}
	return rows
}
