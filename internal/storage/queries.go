package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{
		db: tx,
	}
}

const createUploadedFile = `-- name: CreateUploadedFile :exec
INSERT INTO uploaded_files (file_hash, batch_id, row_count, uploaded_at)
VALUES (?, ?, ?, ?)
`

type CreateUploadedFileParams struct {
	FileHash   string
	BatchID    string
	RowCount   int64
	UploadedAt string
}

func (q *Queries) CreateUploadedFile(ctx context.Context, arg CreateUploadedFileParams) error {
	_, err := q.db.ExecContext(ctx, createUploadedFile,
		arg.FileHash,
		arg.BatchID,
		arg.RowCount,
		arg.UploadedAt,
	)
	return err
}

const insertTransaction = `-- name: InsertTransaction :exec
INSERT INTO transactions (
    batch_id, date, description, amount, transaction_type,
    account_name, predicted_category, is_anomaly
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

type InsertTransactionParams struct {
	BatchID           string
	Date              string
	Description       string
	Amount            string
	TransactionType   string
	AccountName       string
	PredictedCategory string
	IsAnomaly         int64
}

func (q *Queries) InsertTransaction(ctx context.Context, arg InsertTransactionParams) error {
	_, err := q.db.ExecContext(ctx, insertTransaction,
		arg.BatchID,
		arg.Date,
		arg.Description,
		arg.Amount,
		arg.TransactionType,
		arg.AccountName,
		arg.PredictedCategory,
		arg.IsAnomaly,
	)
	return err
}

const countFileHash = `-- name: CountFileHash :one
SELECT COUNT(*) FROM uploaded_files WHERE file_hash = ?
`

func (q *Queries) CountFileHash(ctx context.Context, fileHash string) (int64, error) {
	row := q.db.QueryRowContext(ctx, countFileHash, fileHash)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const getUploadedFile = `-- name: GetUploadedFile :one
SELECT id, file_hash, batch_id, row_count, uploaded_at, synced_at
FROM uploaded_files
WHERE batch_id = ?
`

func (q *Queries) GetUploadedFile(ctx context.Context, batchID string) (UploadedFile, error) {
	row := q.db.QueryRowContext(ctx, getUploadedFile, batchID)
	var i UploadedFile
	err := row.Scan(
		&i.ID,
		&i.FileHash,
		&i.BatchID,
		&i.RowCount,
		&i.UploadedAt,
		&i.SyncedAt,
	)
	return i, err
}

const getPendingSyncBatches = `-- name: GetPendingSyncBatches :many
SELECT id, file_hash, batch_id, row_count, uploaded_at, synced_at
FROM uploaded_files
WHERE synced_at IS NULL
ORDER BY id ASC
LIMIT ?
`

func (q *Queries) GetPendingSyncBatches(ctx context.Context, limit int64) ([]UploadedFile, error) {
	rows, err := q.db.QueryContext(ctx, getPendingSyncBatches, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []UploadedFile
	for rows.Next() {
		var i UploadedFile
		if err := rows.Scan(
			&i.ID,
			&i.FileHash,
			&i.BatchID,
			&i.RowCount,
			&i.UploadedAt,
			&i.SyncedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markBatchSynced = `-- name: MarkBatchSynced :execrows
UPDATE uploaded_files SET synced_at = ? WHERE batch_id = ?
`

type MarkBatchSyncedParams struct {
	SyncedAt string
	BatchID  string
}

func (q *Queries) MarkBatchSynced(ctx context.Context, arg MarkBatchSyncedParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, markBatchSynced, arg.SyncedAt, arg.BatchID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listBatchTransactions = `-- name: ListBatchTransactions :many
SELECT id, batch_id, date, description, amount, transaction_type,
       account_name, predicted_category, is_anomaly
FROM transactions
WHERE batch_id = ?
ORDER BY id ASC
`

func (q *Queries) ListBatchTransactions(ctx context.Context, batchID string) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, listBatchTransactions, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]Transaction, error) {
	var items []Transaction
	for rows.Next() {
		var i Transaction
		if err := rows.Scan(
			&i.ID,
			&i.BatchID,
			&i.Date,
			&i.Description,
			&i.Amount,
			&i.TransactionType,
			&i.AccountName,
			&i.PredictedCategory,
			&i.IsAnomaly,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
