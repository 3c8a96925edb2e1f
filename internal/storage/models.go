package storage

import (
	"database/sql"
)

type UploadedFile struct {
	ID         int64
	FileHash   string
	BatchID    string
	RowCount   int64
	UploadedAt string
	SyncedAt   sql.NullString
}

type Transaction struct {
	ID                int64
	BatchID           string
	Date              string
	Description       string
	Amount            string
	TransactionType   string
	AccountName       string
	PredictedCategory string
	IsAnomaly         int64
}
