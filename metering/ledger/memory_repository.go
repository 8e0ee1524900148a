// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Repository for development and tests.
// It enforces the same reserve semantics as the PostgreSQL implementation
// under a single mutex.
type MemoryRepository struct {
	mu        sync.Mutex
	records   []UsageRecord
	rollups   map[time.Time]*DailyTotal
	budgets   map[time.Time]float64
	appendErr error
}

// NewMemoryRepository creates an empty in-memory ledger.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		rollups: make(map[time.Time]*DailyTotal),
		budgets: make(map[time.Time]float64),
	}
}

// FailAppends makes subsequent Append calls return err. Pass nil to clear.
// Test hook for exercising retry paths.
func (m *MemoryRepository) FailAppends(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendErr = err
}

func (m *MemoryRepository) Append(ctx context.Context, record *UsageRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.appendErr != nil {
		return m.appendErr
	}

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	record.CreatedAt = time.Now().UTC()
	m.records = append(m.records, *record)

	day := DayStart(record.Timestamp)
	rollup, ok := m.rollups[day]
	if !ok {
		rollup = &DailyTotal{Day: day}
		m.rollups[day] = rollup
	}
	rollup.Requests++
	rollup.Cost += record.Cost
	rollup.CostWithoutCache += record.CostWithoutCache
	return nil
}

func (m *MemoryRepository) QueryRange(ctx context.Context, opts QueryOptions) ([]UsageRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []UsageRecord
	for _, record := range m.records {
		if opts.UserID != "" && record.UserID != opts.UserID {
			continue
		}
		if opts.FeatureKey != "" && record.FeatureKey != opts.FeatureKey {
			continue
		}
		if !opts.From.IsZero() && record.Timestamp.Before(opts.From) {
			continue
		}
		if !opts.To.IsZero() && !record.Timestamp.Before(opts.To) {
			continue
		}
		matched = append(matched, record)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.Before(matched[j].Timestamp)
	})

	total := len(matched)
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return nil, total, nil
	}
	matched = matched[offset:]

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (m *MemoryRepository) CountInWindow(ctx context.Context, userID string, from, to time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, record := range m.records {
		if record.UserID != userID {
			continue
		}
		if record.Timestamp.Before(from) || !record.Timestamp.Before(to) {
			continue
		}
		count++
	}
	return count, nil
}

func (m *MemoryRepository) WindowTotals(ctx context.Context, from, to time.Time, successOnly bool) (*WindowTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	totals := &WindowTotals{}
	for _, record := range m.records {
		if record.Timestamp.Before(from) || !record.Timestamp.Before(to) {
			continue
		}
		if successOnly && !record.Success {
			continue
		}
		totals.Requests++
		if record.CacheHit() {
			totals.CacheHits++
		}
		totals.InputTokens += int64(record.InputTokens)
		totals.OutputTokens += int64(record.OutputTokens)
		totals.CacheReadTokens += int64(record.CacheReadTokens)
		totals.Cost += record.Cost
		totals.CostWithoutCache += record.CostWithoutCache
		totals.TotalResponseTimeMs += record.ResponseTimeMs
	}
	return totals, nil
}

func (m *MemoryRepository) DailyTotals(ctx context.Context, from, to time.Time) ([]DailyTotal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fromDay := DayStart(from)
	toDay := DayStart(to)

	var totals []DailyTotal
	for day, rollup := range m.rollups {
		if day.Before(fromDay) || !day.Before(toDay) {
			continue
		}
		totals = append(totals, *rollup)
	}
	sort.Slice(totals, func(i, j int) bool {
		return totals[i].Day.Before(totals[j].Day)
	})
	return totals, nil
}

func (m *MemoryRepository) MonthlySpend(ctx context.Context, monthStart time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.budgets[MonthStart(monthStart)], nil
}

func (m *MemoryRepository) ReserveBudget(ctx context.Context, monthStart time.Time, amount, limit float64) (bool, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	month := MonthStart(monthStart)
	current := m.budgets[month]
	if limit > 0 && current+amount > limit {
		return false, current, nil
	}
	m.budgets[month] = current + amount
	return true, current + amount, nil
}

func (m *MemoryRepository) SettleBudget(ctx context.Context, monthStart time.Time, delta float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	month := MonthStart(monthStart)
	next := m.budgets[month] + delta
	if next < 0 {
		next = 0
	}
	m.budgets[month] = next
	return nil
}

func (m *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}
