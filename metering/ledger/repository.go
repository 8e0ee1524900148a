// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package ledger

import (
	"context"
	"time"
)

// Repository defines the interface for ledger persistence.
type Repository interface {
	// Append writes one usage record and its rollups in a single
	// transaction, assigning an id when the record carries none.
	Append(ctx context.Context, record *UsageRecord) error

	// QueryRange returns records matching opts ordered by timestamp
	// ascending, plus the total match count for pagination.
	QueryRange(ctx context.Context, opts QueryOptions) ([]UsageRecord, int, error)

	// CountInWindow counts a user's records with timestamp in [from, to).
	CountInWindow(ctx context.Context, userID string, from, to time.Time) (int, error)

	// WindowTotals aggregates records with timestamp in [from, to).
	// With successOnly set, failed invocations are excluded.
	WindowTotals(ctx context.Context, from, to time.Time, successOnly bool) (*WindowTotals, error)

	// DailyTotals returns per-day rollups for days in [from, to),
	// ordered by day ascending. Days with no records are omitted.
	DailyTotals(ctx context.Context, from, to time.Time) ([]DailyTotal, error)

	// MonthlySpend returns the reserved spend counter for the month.
	MonthlySpend(ctx context.Context, monthStart time.Time) (float64, error)

	// ReserveBudget atomically adds amount to the month's spend counter
	// if the result stays within limit (limit <= 0 means unlimited).
	// Returns whether the reservation was taken and the counter value
	// after the attempt. Two racing callers can never both push the
	// counter past the limit.
	ReserveBudget(ctx context.Context, monthStart time.Time, amount, limit float64) (bool, float64, error)

	// SettleBudget reconciles a prior reservation with the actual cost.
	// delta is actual minus reserved and may be negative.
	SettleBudget(ctx context.Context, monthStart time.Time, delta float64) error

	// Ping checks storage connectivity.
	Ping(ctx context.Context) error
}

// MonthStart returns the first instant of t's calendar month in UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// DayStart truncates t to the start of its UTC calendar day.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
