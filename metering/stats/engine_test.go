// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package stats

import (
	"context"
	"testing"
	"time"

	"rentstack/platform/metering/governance"
	"rentstack/platform/metering/ledger"
)

func newEngineFixture(t *testing.T, budget float64) (*Engine, *ledger.MemoryRepository, time.Time) {
	t.Helper()
	ctx := context.Background()

	store := governance.NewMemoryStore()
	settings := governance.DefaultSettings()
	settings.MonthlyBudget = budget
	if err := store.UpdateSettings(ctx, settings); err != nil {
		t.Fatalf("UpdateSettings failed: %v", err)
	}

	repo := ledger.NewMemoryRepository()
	engine := NewEngine(repo, governance.NewSnapshot(store, time.Minute))
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	engine.now = func() time.Time { return now }
	return engine, repo, now
}

func appendUsage(t *testing.T, repo *ledger.MemoryRepository, ts time.Time, cost, baseline float64, cacheRead int, success bool) {
	t.Helper()
	record := &ledger.UsageRecord{
		Timestamp:        ts,
		UserID:           "user-1",
		FeatureKey:       "listing_description",
		ModelID:          "claude-sonnet-4",
		InputTokens:      1000,
		OutputTokens:     200,
		CacheReadTokens:  cacheRead,
		Cost:             cost,
		CostWithoutCache: baseline,
		Success:          success,
		ResponseTimeMs:   800,
	}
	if err := repo.Append(context.Background(), record); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
}

func TestMonthlyOverviewComputesBudgetPercent(t *testing.T) {
	engine, repo, now := newEngineFixture(t, 100)
	ctx := context.Background()

	appendUsage(t, repo, now.Add(-time.Hour), 20, 25, 500, true)
	appendUsage(t, repo, now.Add(-2*time.Hour), 5, 5, 0, true)
	// prior month usage is excluded
	appendUsage(t, repo, now.AddDate(0, -1, 0), 50, 50, 0, true)

	overview, err := engine.MonthlyOverview(ctx)
	if err != nil {
		t.Fatalf("MonthlyOverview failed: %v", err)
	}
	if overview.Requests != 2 {
		t.Errorf("expected 2 requests this month, got %d", overview.Requests)
	}
	if overview.Cost != 25 {
		t.Errorf("expected cost 25, got %v", overview.Cost)
	}
	if overview.PercentOfBudget != 25 {
		t.Errorf("expected 25%% of budget, got %d", overview.PercentOfBudget)
	}
	if overview.Savings != 5 {
		t.Errorf("expected savings 5, got %v", overview.Savings)
	}
	if overview.SavingsPercent != 17 { // 5/30 = 16.7 rounds to 17
		t.Errorf("expected savings percent 17, got %d", overview.SavingsPercent)
	}
	if overview.Tokens != 2400 {
		t.Errorf("expected 2400 tokens, got %d", overview.Tokens)
	}
}

func TestMonthlyOverviewPercentIsMonotone(t *testing.T) {
	engine, repo, now := newEngineFixture(t, 100)
	ctx := context.Background()

	previous := 0
	for i := 0; i < 10; i++ {
		appendUsage(t, repo, now.Add(time.Duration(-i)*time.Minute), 7, 7, 0, true)
		overview, err := engine.MonthlyOverview(ctx)
		if err != nil {
			t.Fatalf("MonthlyOverview failed: %v", err)
		}
		if overview.PercentOfBudget < previous {
			t.Fatalf("percent of budget decreased: %d -> %d", previous, overview.PercentOfBudget)
		}
		previous = overview.PercentOfBudget
	}
	if previous != 70 {
		t.Errorf("expected 70%% after 10 requests at 7, got %d", previous)
	}
}

func TestMonthlyOverviewEmptyWindowIsZero(t *testing.T) {
	engine, _, _ := newEngineFixture(t, 100)

	overview, err := engine.MonthlyOverview(context.Background())
	if err != nil {
		t.Fatalf("MonthlyOverview failed: %v", err)
	}
	if overview.Requests != 0 || overview.Cost != 0 || overview.PercentOfBudget != 0 || overview.SavingsPercent != 0 {
		t.Errorf("expected zero overview, got %+v", overview)
	}
}

func TestMonthlyOverviewUnlimitedBudget(t *testing.T) {
	engine, repo, now := newEngineFixture(t, 0)
	appendUsage(t, repo, now.Add(-time.Hour), 10, 10, 0, true)

	overview, err := engine.MonthlyOverview(context.Background())
	if err != nil {
		t.Fatalf("MonthlyOverview failed: %v", err)
	}
	if overview.PercentOfBudget != 0 {
		t.Errorf("expected 0%% with no budget limit, got %d", overview.PercentOfBudget)
	}
}

func TestDailySeriesSparseAndDense(t *testing.T) {
	engine, repo, now := newEngineFixture(t, 100)
	ctx := context.Background()

	appendUsage(t, repo, now.AddDate(0, 0, -1), 2, 2, 0, true)
	appendUsage(t, repo, now.AddDate(0, 0, -3), 4, 4, 0, true)

	sparse, err := engine.DailySeries(ctx, 7, false)
	if err != nil {
		t.Fatalf("DailySeries failed: %v", err)
	}
	if len(sparse) != 2 {
		t.Fatalf("expected 2 sparse points, got %d", len(sparse))
	}
	if !sparse[0].Date.Before(sparse[1].Date) {
		t.Error("expected ascending date order")
	}

	dense, err := engine.DailySeries(ctx, 7, true)
	if err != nil {
		t.Fatalf("DailySeries failed: %v", err)
	}
	if len(dense) != 7 {
		t.Fatalf("expected 7 dense points, got %d", len(dense))
	}
	nonZero := 0
	for _, point := range dense {
		if point.Requests > 0 {
			nonZero++
		}
	}
	if nonZero != 2 {
		t.Errorf("expected 2 non-zero dense points, got %d", nonZero)
	}
}

func TestCacheEfficiencySuccessOnly(t *testing.T) {
	engine, repo, now := newEngineFixture(t, 100)
	ctx := context.Background()

	appendUsage(t, repo, now.Add(-time.Hour), 6, 10, 8000, true)
	appendUsage(t, repo, now.Add(-2*time.Hour), 4, 4, 0, true)
	// failed invocation excluded from the efficiency window
	appendUsage(t, repo, now.Add(-3*time.Hour), 0, 0, 0, false)

	efficiency, err := engine.CacheEfficiency(ctx, 30)
	if err != nil {
		t.Fatalf("CacheEfficiency failed: %v", err)
	}
	if efficiency.CacheHitRate != 50 {
		t.Errorf("expected 50%% hit rate, got %d", efficiency.CacheHitRate)
	}
	if efficiency.Savings != 4 {
		t.Errorf("expected savings 4, got %v", efficiency.Savings)
	}
	if efficiency.SavingsPercent != 29 { // 4/14 = 28.6 rounds to 29
		t.Errorf("expected savings percent 29, got %d", efficiency.SavingsPercent)
	}
	if efficiency.AvgResponseTimeMs != 800 {
		t.Errorf("expected avg response 800ms, got %d", efficiency.AvgResponseTimeMs)
	}
	if efficiency.TotalCacheReadTokens != 8000 {
		t.Errorf("expected 8000 cache read tokens, got %d", efficiency.TotalCacheReadTokens)
	}
}

func TestCacheEfficiencyEmptyWindowIsZero(t *testing.T) {
	engine, _, _ := newEngineFixture(t, 100)

	efficiency, err := engine.CacheEfficiency(context.Background(), 30)
	if err != nil {
		t.Fatalf("CacheEfficiency failed: %v", err)
	}
	if efficiency.CacheHitRate != 0 || efficiency.AvgResponseTimeMs != 0 || efficiency.SavingsPercent != 0 {
		t.Errorf("expected zero efficiency, got %+v", efficiency)
	}
}
