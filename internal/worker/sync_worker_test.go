package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"txinsight/internal/amqp"
	"txinsight/internal/core"
	"txinsight/internal/sheets/memory"
	"txinsight/internal/storage"
)

type fakeBatchStore struct {
	mu        sync.Mutex
	order     []string
	records   map[string][]core.EnrichedTransaction
	synced    map[string]bool
	markErr   error
	recordErr error
	// onPending runs after GetPendingSyncBatches has built its result.
	onPending func()
}

func newFakeBatchStore() *fakeBatchStore {
	return &fakeBatchStore{
		records: map[string][]core.EnrichedTransaction{},
		synced:  map[string]bool{},
	}
}

func (f *fakeBatchStore) add(batchID string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	recs := make([]core.EnrichedTransaction, n)
	for i := range n {
		recs[i] = core.EnrichedTransaction{
			Transaction: core.Transaction{
				Date:        core.NewDate(2024, 1, i+1),
				Description: fmt.Sprintf("row %d", i),
				Amount:      decimal.NewFromInt(int64(-10 * (i + 1))),
			},
			PredictedCategory: "Food",
		}
	}
	f.order = append(f.order, batchID)
	f.records[batchID] = recs
}

func (f *fakeBatchStore) GetPendingSyncBatches(_ context.Context, limit int) ([]storage.PendingBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.PendingBatch
	for _, id := range f.order {
		if f.synced[id] {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, storage.PendingBatch{BatchID: id, RowCount: len(f.records[id])})
	}
	if f.onPending != nil {
		defer f.onPending()
	}
	return out, nil
}

func (f *fakeBatchStore) BatchRecords(_ context.Context, batchID string) ([]core.EnrichedTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return nil, f.recordErr
	}
	recs, ok := f.records[batchID]
	if !ok {
		return nil, storage.ErrBatchNotFound
	}
	return recs, nil
}

func (f *fakeBatchStore) IsBatchSynced(_ context.Context, batchID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[batchID]; !ok {
		return false, fmt.Errorf("%w: %s", storage.ErrBatchNotFound, batchID)
	}
	return f.synced[batchID], nil
}

func (f *fakeBatchStore) MarkBatchSynced(_ context.Context, batchID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.synced[batchID] = true
	return nil
}

func TestHandleBatchMessage(t *testing.T) {
	store := newFakeBatchStore()
	store.add("b1", 3)
	sheet := memory.New()
	w := NewSyncWorker(store, sheet, 0)

	msg := amqp.NewBatchIngestedMessage("b1", 3)
	if err := w.HandleBatchMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleBatchMessage: %v", err)
	}
	if got := sheet.BatchRows("b1"); got != 3 {
		t.Errorf("rows appended = %d, want 3", got)
	}
	if !store.synced["b1"] {
		t.Error("batch not marked synced")
	}

	// Redelivery must not append twice.
	if err := w.HandleBatchMessage(context.Background(), msg); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if got := sheet.BatchRows("b1"); got != 3 {
		t.Errorf("rows after redelivery = %d, want 3", got)
	}
}

func TestHandleBatchMessage_UnknownBatch(t *testing.T) {
	sheet := memory.New()
	w := NewSyncWorker(newFakeBatchStore(), sheet, 0)

	if err := w.HandleBatchMessage(context.Background(), amqp.NewBatchIngestedMessage("missing", 1)); err != nil {
		t.Fatalf("unknown batch should be dropped, got %v", err)
	}
	if len(sheet.Rows()) != 0 {
		t.Error("nothing should be appended")
	}
}

func TestHandleBatchMessage_AppendFailure(t *testing.T) {
	store := newFakeBatchStore()
	store.add("b1", 2)
	sheet := memory.New()
	boom := errors.New("quota exceeded")
	sheet.FailWith(boom)
	w := NewSyncWorker(store, sheet, 0)

	err := w.HandleBatchMessage(context.Background(), amqp.NewBatchIngestedMessage("b1", 2))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapping %v", err, boom)
	}
	if store.synced["b1"] {
		t.Error("failed append must leave the batch pending")
	}
}

func TestHandleBatchMessage_EmptyBatch(t *testing.T) {
	store := newFakeBatchStore()
	store.add("empty", 0)
	sheet := memory.New()
	sheet.FailWith(errors.New("should not be called"))
	w := NewSyncWorker(store, sheet, 0)

	if err := w.HandleBatchMessage(context.Background(), amqp.NewBatchIngestedMessage("empty", 0)); err != nil {
		t.Fatalf("HandleBatchMessage: %v", err)
	}
	if !store.synced["empty"] {
		t.Error("empty batch should still be marked synced")
	}
}

// gatedAppender counts appends and holds the first one until release closes.
type gatedAppender struct {
	mu      sync.Mutex
	appends int
	entered chan struct{}
	release chan struct{}
}

func (g *gatedAppender) AppendRecords(_ context.Context, batchID string, records []core.EnrichedTransaction) (string, error) {
	g.mu.Lock()
	g.appends++
	first := g.appends == 1
	g.mu.Unlock()
	if first {
		close(g.entered)
		<-g.release
	}
	return "mem:" + batchID, nil
}

func TestConsumerAndSweepMirrorBatchOnce(t *testing.T) {
	store := newFakeBatchStore()
	store.add("b1", 2)
	sheet := &gatedAppender{entered: make(chan struct{}), release: make(chan struct{})}
	w := NewSyncWorker(store, sheet, 0)
	ctx := context.Background()

	consumed := make(chan error, 1)
	go func() {
		consumed <- w.HandleBatchMessage(ctx, amqp.NewBatchIngestedMessage("b1", 2))
	}()
	<-sheet.entered

	// The sweep lists b1 as pending while the consumer is mid-append.
	store.onPending = func() { close(sheet.release) }
	if err := w.ProcessPendingBatches(ctx); err != nil {
		t.Fatalf("ProcessPendingBatches: %v", err)
	}
	if err := <-consumed; err != nil {
		t.Fatalf("HandleBatchMessage: %v", err)
	}

	if sheet.appends != 1 {
		t.Errorf("batch appended %d times, want 1", sheet.appends)
	}
	if !store.synced["b1"] {
		t.Error("batch not marked synced")
	}
}

func TestProcessPendingBatches(t *testing.T) {
	tests := []struct {
		name       string
		batches    []int
		batchSize  int
		wantSynced int
		wantRows   int
	}{
		{name: "nothing pending", batches: nil, batchSize: 5},
		{name: "all within limit", batches: []int{2, 1, 4}, batchSize: 5, wantSynced: 3, wantRows: 7},
		{name: "bounded by batch size", batches: []int{1, 1, 1}, batchSize: 2, wantSynced: 2, wantRows: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeBatchStore()
			for i, n := range tt.batches {
				store.add(fmt.Sprintf("b%d", i), n)
			}
			sheet := memory.New()
			w := NewSyncWorker(store, sheet, tt.batchSize)

			if err := w.ProcessPendingBatches(context.Background()); err != nil {
				t.Fatalf("ProcessPendingBatches: %v", err)
			}

			synced := 0
			for _, ok := range store.synced {
				if ok {
					synced++
				}
			}
			if synced != tt.wantSynced {
				t.Errorf("synced = %d, want %d", synced, tt.wantSynced)
			}
			if got := len(sheet.Rows()); got != tt.wantRows {
				t.Errorf("rows = %d, want %d", got, tt.wantRows)
			}
		})
	}
}

func TestProcessPendingBatches_ContinuesAfterFailure(t *testing.T) {
	store := newFakeBatchStore()
	store.add("b1", 1)
	store.add("b2", 1)
	store.markErr = errors.New("disk full")
	w := NewSyncWorker(store, memory.New(), 10)

	// Individual failures are logged, not returned.
	if err := w.ProcessPendingBatches(context.Background()); err != nil {
		t.Fatalf("ProcessPendingBatches: %v", err)
	}
	if len(store.synced) != 0 {
		t.Errorf("synced = %v, want none", store.synced)
	}
}

func TestProcessPendingBatches_CancelledContext(t *testing.T) {
	store := newFakeBatchStore()
	store.add("b1", 1)
	sheet := memory.New()
	w := NewSyncWorker(store, sheet, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := w.ProcessPendingBatches(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(sheet.Rows()) != 0 {
		t.Error("no rows should be appended after cancellation")
	}
}

func TestStartupSyncCheck(t *testing.T) {
	store := newFakeBatchStore()
	store.add("b1", 2)
	sheet := memory.New()
	w := NewSyncWorker(store, sheet, 10)

	if err := w.StartupSyncCheck(context.Background()); err != nil {
		t.Fatalf("StartupSyncCheck: %v", err)
	}
	if sheet.BatchRows("b1") != 2 {
		t.Errorf("rows = %d, want 2", sheet.BatchRows("b1"))
	}
}
