package log

import (
	"context"
	"log/slog"
	"net/http"
)

// StructuredLogger writes the fixed-shape records shared by the HTTP layer
// and the ingestion path, so dashboards can rely on their field names.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

func (sl *StructuredLogger) emit(ctx context.Context, level slog.Level, component, msg string, fields LogFields) {
	sl.logger.WithComponent(component).Log(ctx, level, msg, fields.ToSlice()...)
}

// LogHTTPStart records an inbound request before it reaches the handler.
func (sl *StructuredLogger) LogHTTPStart(ctx context.Context, r *http.Request, clientIP string) {
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent"), r.Header.Get("Referer")).
		WithClientIP(clientIP)
	sl.emit(ctx, slog.LevelInfo, ComponentHTTP, "HTTP request started", fields)
}

// LogHTTPEnd records the outcome of a request. Client errors log at warn and
// server errors at error.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	switch {
	case statusCode >= http.StatusInternalServerError:
		level = slog.LevelError
	case statusCode >= http.StatusBadRequest:
		level = slog.LevelWarn
	}
	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", "").
		WithHTTPResponse(statusCode, durationMs, statusCode < http.StatusBadRequest).
		WithClientIP(clientIP)
	sl.emit(ctx, level, ComponentHTTP, "HTTP request completed", fields)
}

// LogBatchIngested records an accepted upload.
func (sl *StructuredLogger) LogBatchIngested(ctx context.Context, batchID, fingerprint string, rows, dropped, anomalies int) {
	fields := NewFields().
		WithBatch(batchID, fingerprint, rows).
		WithOperation(OpIngest)
	fields[FieldDroppedRows] = dropped
	fields[FieldAnomalies] = anomalies
	sl.emit(ctx, slog.LevelInfo, ComponentIngest, "Batch ingested", fields)
}

// LogError records err for operation under component. fields may be nil.
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	sl.emit(ctx, slog.LevelError, component, msg, fields.WithError(err).WithOperation(operation))
}
