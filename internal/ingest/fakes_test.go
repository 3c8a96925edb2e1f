package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"txinsight/internal/core"
	"txinsight/internal/scoring"
)

// memStore is an in-memory Store with the same uniqueness and atomicity
// guarantees as the SQLite repository.
type memStore struct {
	mu           sync.Mutex
	fingerprints map[string]bool
	records      []core.EnrichedTransaction
	insertErr    error
	hasErr       error
	// blind makes HasFingerprint always report absent, so only the insert
	// path can detect a duplicate.
	blind   bool
	publish []string
}

func newMemStore() *memStore {
	return &memStore{fingerprints: map[string]bool{}}
}

func (s *memStore) HasFingerprint(_ context.Context, fp string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasErr != nil {
		return false, s.hasErr
	}
	if s.blind {
		return false, nil
	}
	return s.fingerprints[fp], nil
}

func (s *memStore) InsertBatch(_ context.Context, b core.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	if s.fingerprints[b.Fingerprint] {
		return core.ErrFingerprintExists
	}
	s.fingerprints[b.Fingerprint] = true
	s.records = append(s.records, b.Records...)
	return nil
}

func (s *memStore) counts() (rows, fingerprints int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), len(s.fingerprints)
}

func (s *memStore) PublishBatchIngested(_ context.Context, batchID string, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish = append(s.publish, batchID)
	return nil
}

// keywordModel labels by substring and flags amounts above a threshold.
type keywordModel struct {
	labels    map[string]string
	threshold decimal.Decimal
	failOn    string
}

var errScorer = errors.New("scorer failed")

func (m keywordModel) Categorize(_ context.Context, in scoring.CategoryInput) (string, error) {
	if m.failOn != "" && strings.Contains(in.Description, m.failOn) {
		return "", errScorer
	}
	for kw, label := range m.labels {
		if strings.Contains(strings.ToLower(in.Description), kw) {
			return label, nil
		}
	}
	return "Other", nil
}

func (m keywordModel) Decide(_ context.Context, amount decimal.Decimal) (int, error) {
	if amount.Abs().GreaterThan(m.threshold) {
		return scoring.OutlierSentinel, nil
	}
	return scoring.Inlier, nil
}

func (m keywordModel) Forecast(context.Context, map[string]decimal.Decimal, int) (map[string]decimal.Decimal, error) {
	return nil, nil
}

func testModels() scoring.Models {
	m := keywordModel{
		labels:    map[string]string{"coffee": "Food", "paycheck": "Income", "rent": "Housing"},
		threshold: decimal.NewFromInt(10000),
	}
	return scoring.Models{Categorizer: m, Detector: m, Forecaster: m}
}
