package sheets

import (
	"context"

	"txinsight/internal/core"
)

// Ports for outbound adapters.
type (
	// RecordAppender mirrors the enriched records of one committed batch to
	// an external sheet. Appending the same batch twice appends twice;
	// callers track which batches are already mirrored.
	RecordAppender interface {
		AppendRecords(ctx context.Context, batchID string, records []core.EnrichedTransaction) (rowRef string, err error)
	}
)

// Header is the column layout of mirrored rows.
var Header = []string{
	"Date", "Description", "Amount", "Transaction Type",
	"Account", "Category", "Anomaly", "Batch",
}
