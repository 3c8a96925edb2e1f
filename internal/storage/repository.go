package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"txinsight/internal/core"
)

const busyTimeoutMillis = 5000

var (
	// ErrFingerprintExists is returned by InsertBatch when the batch's
	// fingerprint has already been committed.
	ErrFingerprintExists = core.ErrFingerprintExists

	ErrBatchNotFound = errors.New("batch not found")
	ErrUnknownField  = errors.New("unknown field")
)

// distinctFields are the columns DistinctValues may be asked about.
var distinctFields = map[string]bool{
	"predicted_category": true,
	"account_name":       true,
	"transaction_type":   true,
}

// PendingBatch is a committed batch not yet mirrored downstream.
type PendingBatch struct {
	BatchID    string
	RowCount   int
	UploadedAt time.Time
}

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite: writers queue on the pool

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func dsn(dbPath string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", dbPath, busyTimeoutMillis)
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// HasFingerprint reports whether a batch with this fingerprint was committed.
func (r *SQLiteRepository) HasFingerprint(ctx context.Context, fingerprint string) (bool, error) {
	n, err := r.queries.CountFileHash(ctx, fingerprint)
	if err != nil {
		return false, fmt.Errorf("count file hash: %w", err)
	}
	return n > 0, nil
}

// InsertBatch writes the fingerprint row and every record in one
// transaction. The unique index on file_hash decides concurrent duplicates.
func (r *SQLiteRepository) InsertBatch(ctx context.Context, batch core.Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)
	err = qtx.CreateUploadedFile(ctx, CreateUploadedFileParams{
		FileHash:   batch.Fingerprint,
		BatchID:    batch.ID,
		RowCount:   int64(len(batch.Records)),
		UploadedAt: formatTime(time.Now()),
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("record fingerprint: %w", ErrFingerprintExists)
		}
		return fmt.Errorf("record fingerprint: %w", err)
	}

	for i, rec := range batch.Records {
		if err := qtx.InsertTransaction(ctx, toInsertParams(batch.ID, rec)); err != nil {
			return fmt.Errorf("insert transaction %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("commit batch: %w", ErrFingerprintExists)
		}
		return fmt.Errorf("commit batch: %w", err)
	}

	slog.InfoContext(ctx, "Batch saved to SQLite",
		"batch_id", batch.ID,
		"rows", len(batch.Records))

	return nil
}

// Query returns one page of records matching f, newest first, and the total
// number of matches.
func (r *SQLiteRepository) Query(ctx context.Context, f core.Filter, limit, offset int) ([]core.EnrichedTransaction, int, error) {
	where, args := whereClause(f)

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	q := selectTransactions + where + " ORDER BY date DESC, id ASC LIMIT ? OFFSET ?"
	records, err := r.query(ctx, q, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// QueryAll returns every record matching f, newest first.
func (r *SQLiteRepository) QueryAll(ctx context.Context, f core.Filter) ([]core.EnrichedTransaction, error) {
	where, args := whereClause(f)
	return r.query(ctx, selectTransactions+where+" ORDER BY date DESC, id ASC", args...)
}

// DistinctValues lists the distinct non-empty values of a categorical column,
// sorted.
func (r *SQLiteRepository) DistinctValues(ctx context.Context, field string) ([]string, error) {
	if !distinctFields[field] {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT DISTINCT "+field+" FROM transactions WHERE "+field+" <> '' ORDER BY "+field)
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", field, err)
	}
	defer rows.Close()

	values := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", field, err)
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// GetPendingSyncBatches returns up to limit batches not yet marked synced,
// oldest first.
func (r *SQLiteRepository) GetPendingSyncBatches(ctx context.Context, limit int) ([]PendingBatch, error) {
	files, err := r.queries.GetPendingSyncBatches(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending sync batches: %w", err)
	}

	batches := make([]PendingBatch, len(files))
	for i, f := range files {
		batches[i] = PendingBatch{
			BatchID:    f.BatchID,
			RowCount:   int(f.RowCount),
			UploadedAt: parseTime(f.UploadedAt),
		}
	}
	return batches, nil
}

// BatchRecords returns the records of one batch in insertion order.
func (r *SQLiteRepository) BatchRecords(ctx context.Context, batchID string) ([]core.EnrichedTransaction, error) {
	if _, err := r.queries.GetUploadedFile(ctx, batchID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
		}
		return nil, fmt.Errorf("get uploaded file: %w", err)
	}
	rows, err := r.queries.ListBatchTransactions(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch transactions: %w", err)
	}
	return toRecords(rows)
}

// IsBatchSynced reports whether the batch has already been mirrored.
func (r *SQLiteRepository) IsBatchSynced(ctx context.Context, batchID string) (bool, error) {
	f, err := r.queries.GetUploadedFile(ctx, batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
		}
		return false, fmt.Errorf("get uploaded file: %w", err)
	}
	return f.SyncedAt.Valid, nil
}

// MarkBatchSynced records that the batch has been mirrored downstream.
func (r *SQLiteRepository) MarkBatchSynced(ctx context.Context, batchID string) error {
	n, err := r.queries.MarkBatchSynced(ctx, MarkBatchSyncedParams{
		SyncedAt: formatTime(time.Now()),
		BatchID:  batchID,
	})
	if err != nil {
		return fmt.Errorf("mark batch synced: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrBatchNotFound, batchID)
	}

	slog.InfoContext(ctx, "Batch marked as synced", "batch_id", batchID)
	return nil
}

const selectTransactions = `SELECT id, batch_id, date, description, amount, transaction_type,
       account_name, predicted_category, is_anomaly
FROM transactions`

func (r *SQLiteRepository) query(ctx context.Context, q string, args ...any) ([]core.EnrichedTransaction, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	items, err := scanTransactions(rows)
	if err != nil {
		return nil, fmt.Errorf("scan transactions: %w", err)
	}
	return toRecords(items)
}

func whereClause(f core.Filter) (string, []any) {
	var conds []string
	var args []any
	if !f.StartDate.IsEmpty() {
		conds = append(conds, "date >= ?")
		args = append(args, f.StartDate.String())
	}
	if !f.EndDate.IsEmpty() {
		conds = append(conds, "date <= ?")
		args = append(args, f.EndDate.String())
	}
	if f.Category != "" {
		conds = append(conds, "predicted_category = ?")
		args = append(args, f.Category)
	}
	if f.Account != "" {
		conds = append(conds, "account_name = ?")
		args = append(args, f.Account)
	}
	if f.Anomaly != nil {
		conds = append(conds, "is_anomaly = ?")
		args = append(args, boolToInt(*f.Anomaly))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func toInsertParams(batchID string, rec core.EnrichedTransaction) InsertTransactionParams {
	return InsertTransactionParams{
		BatchID:           batchID,
		Date:              rec.Date.String(),
		Description:       rec.Description,
		Amount:            rec.Amount.String(),
		TransactionType:   rec.TransactionType,
		AccountName:       rec.AccountName,
		PredictedCategory: rec.PredictedCategory,
		IsAnomaly:         boolToInt(rec.IsAnomaly),
	}
}

func toRecords(rows []Transaction) ([]core.EnrichedTransaction, error) {
	records := make([]core.EnrichedTransaction, len(rows))
	for i, row := range rows {
		date, err := core.ParseDate(row.Date)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: parse date: %w", row.ID, err)
		}
		amount, err := decimal.NewFromString(row.Amount)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: parse amount: %w", row.ID, err)
		}
		records[i] = core.EnrichedTransaction{
			Transaction: core.Transaction{
				Date:            date,
				Description:     row.Description,
				Amount:          amount,
				TransactionType: row.TransactionType,
				AccountName:     row.AccountName,
			},
			PredictedCategory: row.PredictedCategory,
			IsAnomaly:         row.IsAnomaly != 0,
		}
	}
	return records, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return strings.Contains(err.Error(), "UNIQUE")
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
