package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"txinsight/internal/cache"
	"txinsight/internal/core"
)

const (
	DefaultPageLimit = 100
	MaxPageLimit     = 1000
)

var ErrInvalidPagination = errors.New("invalid pagination")

// ExportHeader is the fixed column order of exported CSV files.
var ExportHeader = []string{
	"date", "description", "amount", "transaction_type",
	"account_name", "predicted_category", "is_anomaly",
}

// RecordQuerier is the read side of the record store.
type RecordQuerier interface {
	Query(ctx context.Context, f core.Filter, limit, offset int) ([]core.EnrichedTransaction, int, error)
	QueryAll(ctx context.Context, f core.Filter) ([]core.EnrichedTransaction, error)
	DistinctValues(ctx context.Context, field string) ([]string, error)
}

type (
	// Page is one slice of a filtered listing plus the total match count.
	Page struct {
		Total int
		Data  []core.EnrichedTransaction
	}

	// FilterValues are the choices a client can filter listings by.
	FilterValues struct {
		Categories []string `json:"categories"`
		Accounts   []string `json:"accounts"`
	}
)

// ReportService answers read queries over committed transactions. Summaries
// and filter values are cached until Invalidate is called.
type ReportService struct {
	store        RecordQuerier
	summaries    *cache.LRUCache[core.BatchSummary]
	filterValues *cache.LRUCache[FilterValues]
}

func NewReportService(store RecordQuerier, manager *cache.Manager, ttl time.Duration) *ReportService {
	s := &ReportService{
		store:        store,
		summaries:    cache.NewLRUCache[core.BatchSummary](64, ttl),
		filterValues: cache.NewLRUCache[FilterValues](1, ttl),
	}
	if manager != nil {
		manager.Register(s.summaries)
		manager.Register(s.filterValues)
	}
	return s
}

// Invalidate drops cached reads; call it after a batch commits.
func (s *ReportService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.summaries.Purge()
	s.filterValues.Purge()
}

func (s *ReportService) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// remember runs store only if no Invalidate happened since gen was read.
func (s *ReportService) remember(gen uint64, store func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.generation {
		store()
	}
}

// List returns one page of matching records, newest first. A zero limit
// means DefaultPageLimit.
func (s *ReportService) List(ctx context.Context, f core.Filter, limit, offset int) (Page, error) {
	if limit == 0 {
		limit = DefaultPageLimit
	}
	if limit < 0 || limit > MaxPageLimit {
		return Page{}, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidPagination, MaxPageLimit)
	}
	if offset < 0 {
		return Page{}, fmt.Errorf("%w: offset must not be negative", ErrInvalidPagination)
	}
	if err := f.Validate(); err != nil {
		return Page{}, err
	}

	data, total, err := s.store.Query(ctx, f, limit, offset)
	if err != nil {
		return Page{}, fmt.Errorf("query transactions: %w", err)
	}
	return Page{Total: total, Data: data}, nil
}

// Summarize aggregates every record matching f.
func (s *ReportService) Summarize(ctx context.Context, f core.Filter) (core.BatchSummary, error) {
	if err := f.Validate(); err != nil {
		return core.BatchSummary{}, err
	}
	key := filterKey(f)
	if summary, ok := s.summaries.Get(key); ok {
		return summary, nil
	}

	gen := s.currentGeneration()
	records, err := s.store.QueryAll(ctx, f)
	if err != nil {
		return core.BatchSummary{}, fmt.Errorf("query transactions: %w", err)
	}
	summary := core.Summarize(records)
	s.remember(gen, func() { s.summaries.Set(key, summary) })
	return summary, nil
}

// MonthlySpending returns the positive monthly totals over all stored
// records.
func (s *ReportService) MonthlySpending(ctx context.Context) (core.MonthlyTotals, error) {
	summary, err := s.Summarize(ctx, core.Filter{})
	if err != nil {
		return nil, err
	}
	return summary.MonthlyTotals, nil
}

// Export writes every record matching f as CSV, newest first.
func (s *ReportService) Export(ctx context.Context, f core.Filter, w io.Writer) error {
	if err := f.Validate(); err != nil {
		return err
	}
	records, err := s.store.QueryAll(ctx, f)
	if err != nil {
		return fmt.Errorf("query transactions: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.Date.String(),
			r.Description,
			FormatAmount(r.Amount),
			r.TransactionType,
			r.AccountName,
			r.PredictedCategory,
			formatBool(r.IsAnomaly),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}

	slog.InfoContext(ctx, "Transactions exported", "rows", len(records))
	return nil
}

// FilterValues lists the distinct categories and accounts in the store.
func (s *ReportService) FilterValues(ctx context.Context) (FilterValues, error) {
	if v, ok := s.filterValues.Get("all"); ok {
		return v, nil
	}
	gen := s.currentGeneration()
	categories, err := s.store.DistinctValues(ctx, "predicted_category")
	if err != nil {
		return FilterValues{}, fmt.Errorf("list categories: %w", err)
	}
	accounts, err := s.store.DistinctValues(ctx, "account_name")
	if err != nil {
		return FilterValues{}, fmt.Errorf("list accounts: %w", err)
	}
	v := FilterValues{Categories: categories, Accounts: accounts}
	s.remember(gen, func() { s.filterValues.Set("all", v) })
	return v, nil
}

// FormatAmount renders an amount with at least two decimal places.
func FormatAmount(d decimal.Decimal) string {
	if d.Exponent() < -2 {
		return d.String()
	}
	return d.StringFixed(2)
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func filterKey(f core.Filter) string {
	anomaly := "*"
	if f.Anomaly != nil {
		anomaly = strconv.FormatBool(*f.Anomaly)
	}
	return fmt.Sprintf("%s|%s|%q|%q|%s", f.StartDate, f.EndDate, f.Category, f.Account, anomaly)
}
