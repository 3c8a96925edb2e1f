package log

import "sort"

// Attribute keys shared by every component.
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldQuery       = "query"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldUserAgent   = "user_agent"
	FieldReferer     = "referer"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldErrorType   = "error_type"
	FieldOperation   = "operation"
	FieldBatchID     = "batch_id"
	FieldFingerprint = "fingerprint"
	FieldRowCount    = "row_count"
	FieldDroppedRows = "dropped_rows"
	FieldAnomalies   = "anomalies"
	FieldFilename    = "filename"
	FieldSizeBytes   = "size_bytes"
	FieldSheetsRef   = "sheets_ref"
	FieldRejection   = "rejection"
)

// Component names.
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentIngest    = "ingest"
	ComponentScoring   = "scoring"
	ComponentReport    = "report"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentCache     = "cache"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentTrace     = "trace"
)

// Operation names.
const (
	OpIngest   = "ingest"
	OpEnrich   = "enrich"
	OpPersist  = "persist"
	OpQuery    = "query"
	OpExport   = "export"
	OpForecast = "forecast"
	OpPredict  = "predict"
	OpAppend   = "append"
	OpSync     = "sync"
	OpValidate = "validate"
	OpParse    = "parse"
	OpMigrate  = "migrate"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// Error categories for the error_type attribute.
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeTimeout       = "timeout_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeConflict      = "conflict_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields collects attributes for one record. The With methods mutate and
// return the receiver so calls chain.
type LogFields map[string]any

func NewFields() LogFields {
	return LogFields{}
}

func (f LogFields) set(key string, value any) LogFields {
	f[key] = value
	return f
}

func (f LogFields) setString(key, value string) LogFields {
	if value != "" {
		f[key] = value
	}
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields { return f.setString(FieldClientIP, ip) }

func (f LogFields) WithOperation(op string) LogFields { return f.setString(FieldOperation, op) }

func (f LogFields) WithErrorType(kind string) LogFields { return f.setString(FieldErrorType, kind) }

// WithError records err's message; a nil error leaves f unchanged.
func (f LogFields) WithError(err error) LogFields {
	if err == nil {
		return f
	}
	return f.set(FieldError, err.Error())
}

// WithBatch records batch identity. The row count is always kept, even when
// zero, since empty batches are valid.
func (f LogFields) WithBatch(batchID, fingerprint string, rows int) LogFields {
	return f.setString(FieldBatchID, batchID).
		setString(FieldFingerprint, fingerprint).
		set(FieldRowCount, rows)
}

// WithHTTPRequest records request line attributes; empty headers are omitted.
func (f LogFields) WithHTTPRequest(method, path, query, userAgent, referer string) LogFields {
	return f.set(FieldMethod, method).
		set(FieldPath, path).
		setString(FieldQuery, query).
		setString(FieldUserAgent, userAgent).
		setString(FieldReferer, referer)
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	return f.set(FieldStatusCode, statusCode).
		set(FieldDuration, durationMs).
		set(FieldSuccess, success)
}

// ToSlice flattens f into slog key/value pairs ordered by key, so the same
// fields always render in the same order.
func (f LogFields) ToSlice() []any {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, 0, len(f)*2)
	for _, k := range keys {
		out = append(out, k, f[k])
	}
	return out
}
