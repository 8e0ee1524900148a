// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package stats

import (
	"context"
	"math"
	"time"

	"rentstack/platform/metering/governance"
	"rentstack/platform/metering/ledger"
)

// Engine computes the reporting views.
type Engine struct {
	repo     ledger.Repository
	snapshot *governance.Snapshot
	now      func() time.Time
}

// NewEngine creates a stats engine over the ledger and governance snapshot.
func NewEngine(repo ledger.Repository, snapshot *governance.Snapshot) *Engine {
	return &Engine{repo: repo, snapshot: snapshot, now: time.Now}
}

// MonthlyOverview summarizes the current calendar month against the budget.
func (e *Engine) MonthlyOverview(ctx context.Context) (*MonthlyOverview, error) {
	now := e.now().UTC()
	monthStart := ledger.MonthStart(now)
	monthEnd := monthStart.AddDate(0, 1, 0)

	totals, err := e.repo.WindowTotals(ctx, monthStart, monthEnd, false)
	if err != nil {
		return nil, err
	}

	overview := &MonthlyOverview{
		Requests: totals.Requests,
		Tokens:   totals.InputTokens + totals.OutputTokens,
		Cost:     totals.Cost,
		Savings:  totals.CostWithoutCache - totals.Cost,
	}
	overview.SavingsPercent = percentOf(overview.Savings, totals.CostWithoutCache)

	view, err := e.snapshot.Get(ctx)
	if view == nil {
		return nil, err
	}
	overview.BudgetLimit = view.Settings.MonthlyBudget
	if overview.BudgetLimit > 0 {
		overview.PercentOfBudget = percentOf(totals.Cost, overview.BudgetLimit)
	}
	return overview, nil
}

// DailySeries returns per-day cost points for the trailing days. Sparse by
// default; dense zero-fills days without usage.
func (e *Engine) DailySeries(ctx context.Context, days int, dense bool) ([]DayPoint, error) {
	if days <= 0 {
		days = 30
	}
	now := e.now().UTC()
	to := ledger.DayStart(now).AddDate(0, 0, 1)
	from := to.AddDate(0, 0, -days)

	totals, err := e.repo.DailyTotals(ctx, from, to)
	if err != nil {
		return nil, err
	}

	if !dense {
		points := make([]DayPoint, 0, len(totals))
		for _, t := range totals {
			points = append(points, DayPoint{
				Date:             t.Day,
				Cost:             t.Cost,
				CostWithoutCache: t.CostWithoutCache,
				Requests:         t.Requests,
			})
		}
		return points, nil
	}

	byDay := make(map[time.Time]ledger.DailyTotal, len(totals))
	for _, t := range totals {
		byDay[t.Day] = t
	}
	points := make([]DayPoint, 0, days)
	for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
		point := DayPoint{Date: day}
		if t, ok := byDay[day]; ok {
			point.Cost = t.Cost
			point.CostWithoutCache = t.CostWithoutCache
			point.Requests = t.Requests
		}
		points = append(points, point)
	}
	return points, nil
}

// CacheEfficiency reports cache performance over the trailing days,
// counting successful invocations only.
func (e *Engine) CacheEfficiency(ctx context.Context, days int) (*CacheEfficiency, error) {
	if days <= 0 {
		days = 30
	}
	now := e.now().UTC()
	from := now.AddDate(0, 0, -days)

	totals, err := e.repo.WindowTotals(ctx, from, now, true)
	if err != nil {
		return nil, err
	}

	efficiency := &CacheEfficiency{
		TotalCacheReadTokens: totals.CacheReadTokens,
		TotalInputTokens:     totals.InputTokens,
		Savings:              totals.CostWithoutCache - totals.Cost,
	}
	if totals.Requests > 0 {
		efficiency.CacheHitRate = percentOf(float64(totals.CacheHits), float64(totals.Requests))
		efficiency.AvgResponseTimeMs = totals.TotalResponseTimeMs / int64(totals.Requests)
	}
	efficiency.SavingsPercent = percentOf(efficiency.Savings, totals.CostWithoutCache)
	return efficiency, nil
}

// percentOf returns part/whole as a display percent rounded to the nearest
// integer, 0 when whole is zero.
func percentOf(part, whole float64) int {
	if whole == 0 {
		return 0
	}
	return int(math.Round(part / whole * 100))
}
