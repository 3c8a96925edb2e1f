//go:build integration

package google

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"txinsight/internal/core"
)

// Integration tests require real Google Sheets credentials
// Run with: go test -tags=integration ./internal/sheets/google

func TestIntegration_AppendRecords(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	if os.Getenv("GOOGLE_SPREADSHEET_ID") == "" {
		t.Skip("GOOGLE_SPREADSHEET_ID not set, skipping integration test")
	}
	if os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON") == "" && os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE") == "" &&
		os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		t.Skip("service account credentials not configured, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := NewFromEnv(ctx)
	if err != nil {
		t.Fatalf("NewFromEnv: %v", err)
	}
	if err := client.EnsureHeader(ctx); err != nil {
		t.Fatalf("EnsureHeader: %v", err)
	}

	rec := core.EnrichedTransaction{
		Transaction: core.Transaction{
			Date:            core.DateOf(time.Now()),
			Description:     "integration test " + time.Now().Format(time.RFC3339),
			Amount:          decimal.RequireFromString("-1.23"),
			TransactionType: "debit",
			AccountName:     "Test",
		},
		PredictedCategory: "Other",
	}
	ref, err := client.AppendRecords(ctx, "integration", []core.EnrichedTransaction{rec})
	if err != nil {
		t.Fatalf("AppendRecords: %v", err)
	}
	if ref == "" {
		t.Error("expected a row reference")
	}
}
