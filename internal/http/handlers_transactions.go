package http

import (
	"bytes"
	"errors"
	"net/http"

	"txinsight/internal/core"
	"txinsight/internal/ingest"
	applog "txinsight/internal/log"
	"txinsight/internal/services"
)

const exportFilename = "transactions_export.csv"

// uploadResponse is the body of an accepted upload.
type uploadResponse struct {
	BatchID string `json:"batch_id"`
	core.BatchSummary
	DroppedRows int              `json:"dropped_rows"`
	Preview     []TransactionDTO `json:"preview"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	filename, data, err := ReadUpload(w, r, s.maxUploadBytes)
	if err != nil {
		s.appMetrics.recordRejected("request")
		if errors.Is(err, ErrUploadTooLarge) {
			PayloadTooLargeError(err.Error()).Write(w)
			return
		}
		BadRequestError(err.Error()).Write(w)
		return
	}

	res, err := s.pipeline.Ingest(r.Context(), ingest.Upload{Filename: filename, Data: data})
	if err != nil {
		s.writeIngestError(w, r, filename, err)
		return
	}

	s.reports.Invalidate()
	s.appMetrics.recordAccepted(res.Summary.TotalTransactions)
	s.structured.LogBatchIngested(r.Context(), res.BatchID, res.Fingerprint.String(),
		res.Summary.TotalTransactions, res.DroppedRows, res.Summary.AnomaliesDetected)

	NewResponse().JSON(uploadResponse{
		BatchID:      res.BatchID,
		BatchSummary: res.Summary,
		DroppedRows:  res.DroppedRows,
		Preview:      toDTOs(res.Preview),
	}).Write(w)
}

// writeIngestError maps a pipeline rejection to its status code.
func (s *Server) writeIngestError(w http.ResponseWriter, r *http.Request, filename string, err error) {
	kind := ingest.RejectionKind(err)
	s.appMetrics.recordRejected(kind)

	fields := applog.NewFields().WithOperation(applog.OpIngest)
	fields[applog.FieldFilename] = filename
	fields[applog.FieldRejection] = kind

	var schemaErr *ingest.SchemaError
	switch {
	case errors.Is(err, ingest.ErrDuplicateBatch):
		s.logger.InfoContext(r.Context(), "Duplicate batch rejected", fields.ToSlice()...)
		ErrorResponse(http.StatusConflict, "duplicate_batch", "this file has already been uploaded").Write(w)
	case errors.As(err, &schemaErr):
		s.logger.InfoContext(r.Context(), "Batch rejected", fields.WithError(err).ToSlice()...)
		NewResponse().Status(http.StatusBadRequest).JSON(APIError{
			Error:   "schema_error",
			Detail:  err.Error(),
			Missing: schemaErr.Missing,
		}).Write(w)
	case errors.Is(err, ingest.ErrParse):
		s.logger.InfoContext(r.Context(), "Batch rejected", fields.WithError(err).ToSlice()...)
		ErrorResponse(http.StatusBadRequest, "parse_error", err.Error()).Write(w)
	default:
		s.structured.LogError(r.Context(), "Batch ingestion failed", err,
			applog.ComponentIngest, applog.OpPersist, fields.WithErrorType(applog.ErrorTypeDatabase))
		InternalServerError("failed to store batch").Write(w)
	}
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	f, err := ParseFilter(query)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	limit, offset, err := ParsePagination(query)
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	page, err := s.reports.List(r.Context(), f, limit, offset)
	if err != nil {
		if errors.Is(err, services.ErrInvalidPagination) {
			BadRequestError(err.Error()).Write(w)
			return
		}
		s.structured.LogError(r.Context(), "Failed to list transactions", err,
			applog.ComponentReport, applog.OpQuery, applog.NewFields())
		InternalServerError("failed to list transactions").Write(w)
		return
	}

	NewResponse().JSON(struct {
		Total int              `json:"total"`
		Data  []TransactionDTO `json:"data"`
	}{Total: page.Total, Data: toDTOs(page.Data)}).Write(w)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	// Buffered so a failed query still gets a JSON error instead of a
	// truncated attachment.
	var buf bytes.Buffer
	if err := s.reports.Export(r.Context(), f, &buf); err != nil {
		s.structured.LogError(r.Context(), "Failed to export transactions", err,
			applog.ComponentReport, applog.OpExport, applog.NewFields())
		InternalServerError("failed to export transactions").Write(w)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+exportFilename)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleFilterValues(w http.ResponseWriter, r *http.Request) {
	values, err := s.reports.FilterValues(r.Context())
	if err != nil {
		s.structured.LogError(r.Context(), "Failed to load filter values", err,
			applog.ComponentReport, applog.OpQuery, applog.NewFields())
		InternalServerError("failed to load filter values").Write(w)
		return
	}
	NewResponse().JSON(values).Write(w)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	summary, err := s.reports.Summarize(r.Context(), f)
	if err != nil {
		s.structured.LogError(r.Context(), "Failed to summarize transactions", err,
			applog.ComponentReport, applog.OpQuery, applog.NewFields())
		InternalServerError("failed to summarize transactions").Write(w)
		return
	}
	NewResponse().JSON(summary).Write(w)
}
