package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// Rejection classes. Every error returned by Pipeline.Ingest matches exactly
// one of them with errors.Is.
var (
	ErrDuplicateBatch = errors.New("duplicate batch")
	ErrParse          = errors.New("parse error")
	ErrSchema         = errors.New("schema error")
	ErrStorage        = errors.New("storage error")
)

// ParseError reports input that could not be read as a table. Line is the
// 1-based CSV line, or 0 when the failure is not tied to a line.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error on line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("parse error: %v", e.Err)
}

func (e *ParseError) Unwrap() []error { return []error{ErrParse, e.Err} }

// SchemaError lists the required fields absent from a batch header.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return "missing required columns: " + strings.Join(e.Missing, ", ")
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// RejectionKind returns a stable name for the rejection class of err, for
// use in transport responses and logs.
func RejectionKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDuplicateBatch):
		return "duplicate"
	case errors.Is(err, ErrSchema):
		return "schema"
	case errors.Is(err, ErrParse):
		return "parse"
	default:
		return "storage"
	}
}
