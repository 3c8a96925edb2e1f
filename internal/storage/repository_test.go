package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"txinsight/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func record(date core.Date, desc, amount, category, account string, anomaly bool) core.EnrichedTransaction {
	return core.EnrichedTransaction{
		Transaction: core.Transaction{
			Date:            date,
			Description:     desc,
			Amount:          decimal.RequireFromString(amount),
			TransactionType: "debit",
			AccountName:     account,
		},
		PredictedCategory: category,
		IsAnomaly:         anomaly,
	}
}

func seed(t *testing.T, repo *SQLiteRepository) {
	t.Helper()
	batch := core.Batch{
		ID:          "batch-1",
		Fingerprint: "fp-1",
		Records: []core.EnrichedTransaction{
			record(core.NewDate(2024, 1, 5), "Coffee", "-4.50", "Food", "Checking", false),
			record(core.NewDate(2024, 1, 20), "Paycheck", "2000.00", "Income", "Checking", false),
			record(core.NewDate(2024, 2, 3), "Rent", "-1500", "Housing", "Savings", true),
			record(core.NewDate(2024, 1, 20), "Bagel", "-3.25", "Food", "Card", false),
		},
	}
	if err := repo.InsertBatch(context.Background(), batch); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
}

func TestInsertBatchRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()

	seen, err := repo.HasFingerprint(ctx, "fp-1")
	if err != nil || !seen {
		t.Fatalf("HasFingerprint = %v, %v", seen, err)
	}

	got, err := repo.BatchRecords(ctx, "batch-1")
	if err != nil {
		t.Fatalf("BatchRecords: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d records, want 4", len(got))
	}
	first := got[0]
	if first.Description != "Coffee" || !first.Amount.Equal(decimal.RequireFromString("-4.5")) ||
		first.Date.String() != "2024-01-05" || first.PredictedCategory != "Food" || first.IsAnomaly {
		t.Errorf("unexpected first record: %+v", first)
	}
	if !got[2].IsAnomaly {
		t.Error("anomaly flag lost")
	}
}

func TestInsertBatchDuplicateFingerprint(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()

	err := repo.InsertBatch(ctx, core.Batch{
		ID:          "batch-2",
		Fingerprint: "fp-1",
		Records:     []core.EnrichedTransaction{record(core.NewDate(2024, 3, 1), "x", "1", "Other", "A", false)},
	})
	if !errors.Is(err, ErrFingerprintExists) {
		t.Fatalf("got %v, want ErrFingerprintExists", err)
	}
	all, err := repo.QueryAll(ctx, core.Filter{})
	if err != nil {
		t.Fatalf("QueryAll: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("duplicate batch leaked rows: have %d", len(all))
	}
}

func TestInsertBatchRollsBackOnFailure(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ctx, cancel := context.WithCancel(ctx)
	cancel()
	err := repo.InsertBatch(ctx, core.Batch{
		ID:          "batch-x",
		Fingerprint: "fp-x",
		Records:     []core.EnrichedTransaction{record(core.NewDate(2024, 3, 1), "x", "1", "Other", "A", false)},
	})
	if err == nil {
		t.Fatal("expected error on cancelled context")
	}

	seen, err := repo.HasFingerprint(context.Background(), "fp-x")
	if err != nil || seen {
		t.Fatalf("fingerprint persisted after failure: %v %v", seen, err)
	}
	all, _ := repo.QueryAll(context.Background(), core.Filter{})
	if len(all) != 0 {
		t.Errorf("rows persisted after failure: %d", len(all))
	}
}

func TestInsertBatchEmptyRecordsStillRecordsFingerprint(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	if err := repo.InsertBatch(ctx, core.Batch{ID: "empty", Fingerprint: "fp-empty"}); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	if seen, _ := repo.HasFingerprint(ctx, "fp-empty"); !seen {
		t.Error("fingerprint not recorded for empty batch")
	}
}

func TestInsertBatchRejectsInvalidBatch(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.InsertBatch(context.Background(), core.Batch{ID: "b"})
	if !errors.Is(err, core.ErrEmptyFingerprint) {
		t.Fatalf("got %v, want ErrEmptyFingerprint", err)
	}
}

func TestInsertBatchUndatedRecordLeavesStoreReadable(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()

	err := repo.InsertBatch(ctx, core.Batch{
		ID:          "batch-2",
		Fingerprint: "fp-2",
		Records: []core.EnrichedTransaction{
			record(core.Date{}, "Coffee", "-3.50", "Food", "Checking", false),
			record(core.NewDate(2024, 3, 1), "Bagel", "-2.00", "Food", "Checking", false),
		},
	})
	if !errors.Is(err, core.ErrMissingDate) {
		t.Fatalf("InsertBatch = %v, want ErrMissingDate", err)
	}
	if seen, _ := repo.HasFingerprint(ctx, "fp-2"); seen {
		t.Error("rejected batch must not record its fingerprint")
	}

	all, err := repo.QueryAll(ctx, core.Filter{})
	if err != nil {
		t.Fatalf("QueryAll after rejected batch: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("QueryAll returned %d rows, want the 4 seeded", len(all))
	}
	for _, r := range all {
		if r.Date.String() == "" {
			t.Errorf("stored record %q lost its date", r.Description)
		}
	}
}

func TestInsertBatchConcurrentDuplicates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	const n = 6
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = repo.InsertBatch(ctx, core.Batch{
				ID:          fmt.Sprintf("batch-%d", i),
				Fingerprint: "same",
				Records:     []core.EnrichedTransaction{record(core.NewDate(2024, 1, 1), "x", "1", "Other", "A", false)},
			})
		}()
	}
	wg.Wait()

	ok, dup := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrFingerprintExists):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != n-1 {
		t.Errorf("ok=%d dup=%d", ok, dup)
	}
}

func TestQueryFiltersAndOrdering(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()
	yes, no := true, false

	tests := []struct {
		name   string
		filter core.Filter
		want   []string
	}{
		{"all newest first", core.Filter{}, []string{"Rent", "Paycheck", "Bagel", "Coffee"}},
		{"date range inclusive", core.Filter{StartDate: core.NewDate(2024, 1, 5), EndDate: core.NewDate(2024, 1, 20)}, []string{"Paycheck", "Bagel", "Coffee"}},
		{"category", core.Filter{Category: "Food"}, []string{"Bagel", "Coffee"}},
		{"account", core.Filter{Account: "Checking"}, []string{"Paycheck", "Coffee"}},
		{"anomalies", core.Filter{Anomaly: &yes}, []string{"Rent"}},
		{"normal in february", core.Filter{StartDate: core.NewDate(2024, 2, 1), Anomaly: &no}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, total, err := repo.Query(ctx, tt.filter, 100, 0)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			var names []string
			for _, r := range got {
				names = append(names, r.Description)
			}
			if !reflect.DeepEqual(names, tt.want) {
				t.Errorf("got %v, want %v", names, tt.want)
			}
			if total != len(tt.want) {
				t.Errorf("total = %d, want %d", total, len(tt.want))
			}
		})
	}
}

func TestQueryPagination(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)

	page, total, err := repo.Query(context.Background(), core.Filter{}, 2, 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if total != 4 {
		t.Errorf("total = %d, want 4", total)
	}
	if len(page) != 2 || page[0].Description != "Paycheck" || page[1].Description != "Bagel" {
		t.Errorf("unexpected page: %+v", page)
	}
}

func TestDistinctValues(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	empty, err := repo.DistinctValues(ctx, "predicted_category")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Fatalf("empty store: %v, %v", empty, err)
	}

	seed(t, repo)
	got, err := repo.DistinctValues(ctx, "predicted_category")
	if err != nil {
		t.Fatalf("DistinctValues: %v", err)
	}
	if want := []string{"Food", "Housing", "Income"}; !reflect.DeepEqual(got, want) {
		t.Errorf("categories = %v, want %v", got, want)
	}
	got, _ = repo.DistinctValues(ctx, "account_name")
	if want := []string{"Card", "Checking", "Savings"}; !reflect.DeepEqual(got, want) {
		t.Errorf("accounts = %v, want %v", got, want)
	}
	if _, err := repo.DistinctValues(ctx, "description; DROP TABLE transactions"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
}

func TestSyncBookkeeping(t *testing.T) {
	repo := newTestRepo(t)
	seed(t, repo)
	ctx := context.Background()

	pending, err := repo.GetPendingSyncBatches(ctx, 10)
	if err != nil {
		t.Fatalf("GetPendingSyncBatches: %v", err)
	}
	if len(pending) != 1 || pending[0].BatchID != "batch-1" || pending[0].RowCount != 4 || pending[0].UploadedAt.IsZero() {
		t.Fatalf("unexpected pending: %+v", pending)
	}

	if err := repo.MarkBatchSynced(ctx, "batch-1"); err != nil {
		t.Fatalf("MarkBatchSynced: %v", err)
	}
	synced, err := repo.IsBatchSynced(ctx, "batch-1")
	if err != nil || !synced {
		t.Errorf("IsBatchSynced = %v, %v", synced, err)
	}
	pending, _ = repo.GetPendingSyncBatches(ctx, 10)
	if len(pending) != 0 {
		t.Errorf("still pending: %+v", pending)
	}

	if err := repo.MarkBatchSynced(ctx, "nope"); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("MarkBatchSynced(nope) = %v", err)
	}
	if _, err := repo.BatchRecords(ctx, "nope"); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("BatchRecords(nope) = %v", err)
	}
}

func TestSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	defer repo.Close()

	version, dirty, err := SchemaVersion(path)
	if err != nil {
		t.Fatalf("SchemaVersion: %v", err)
	}
	if version != 1 || dirty {
		t.Errorf("version=%d dirty=%v", version, dirty)
	}
}
