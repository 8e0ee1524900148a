// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package stats

import "time"

// MonthlyOverview summarizes the current calendar month.
type MonthlyOverview struct {
	Requests        int     `json:"requests"`
	Tokens          int64   `json:"tokens"`
	Cost            float64 `json:"cost"`
	PercentOfBudget int     `json:"percent_of_budget"`
	Savings         float64 `json:"savings"`
	SavingsPercent  int     `json:"savings_percent"`
	BudgetLimit     float64 `json:"budget_limit"`
}

// DayPoint is one day in the daily cost series.
type DayPoint struct {
	Date             time.Time `json:"date"`
	Cost             float64   `json:"cost"`
	CostWithoutCache float64   `json:"cost_without_cache"`
	Requests         int       `json:"requests"`
}

// CacheEfficiency reports how much prompt caching is saving over a window
// of successful invocations.
type CacheEfficiency struct {
	CacheHitRate         int     `json:"cache_hit_rate"`
	AvgResponseTimeMs    int64   `json:"avg_response_time_ms"`
	TotalCacheReadTokens int64   `json:"total_cache_read_tokens"`
	TotalInputTokens     int64   `json:"total_input_tokens"`
	Savings              float64 `json:"savings"`
	SavingsPercent       int     `json:"savings_percent"`
}
