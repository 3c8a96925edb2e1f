// Package memory is an in-process RecordAppender used when no spreadsheet is
// configured and in tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"txinsight/internal/core"
	ports "txinsight/internal/sheets"
)

type Row struct {
	BatchID string
	Record  core.EnrichedTransaction
}

type Store struct {
	mu       sync.Mutex
	rows     []Row
	appended int
	maxRows  int
	err      error
}

var _ ports.RecordAppender = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// NewWithLimit keeps only the most recent maxRows rows. Range references
// keep counting across evictions.
func NewWithLimit(maxRows int) *Store {
	return &Store{maxRows: maxRows}
}

// FailWith makes every following append return err; nil restores success.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// AppendRecords stores the rows and returns a synthetic range reference.
func (s *Store) AppendRecords(_ context.Context, batchID string, records []core.EnrichedTransaction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	first := s.appended + 1
	for _, r := range records {
		s.rows = append(s.rows, Row{BatchID: batchID, Record: r})
	}
	s.appended += len(records)
	if s.maxRows > 0 && len(s.rows) > s.maxRows {
		s.rows = append([]Row(nil), s.rows[len(s.rows)-s.maxRows:]...)
	}
	return fmt.Sprintf("mem:%d-%d", first, s.appended), nil
}

// Rows returns a copy of every appended row in order.
func (s *Store) Rows() []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Row(nil), s.rows...)
}

// BatchRows returns how many rows were appended for batchID.
func (s *Store) BatchRows(batchID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		if r.BatchID == batchID {
			n++
		}
	}
	return n
}
