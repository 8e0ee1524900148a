// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPostgresAppendCommitsRecordAndRollup(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)
	ctx := context.Background()
	ts := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO usage_records").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO usage_rollup_daily").
		WithArgs(DayStart(ts), 0.0138, 0.0166).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	record := &UsageRecord{
		Timestamp:        ts,
		UserID:           "user-1",
		FeatureKey:       "listing_description",
		ModelID:          "claude-sonnet-4",
		InputTokens:      1000,
		OutputTokens:     500,
		CacheReadTokens:  2000,
		Cost:             0.0138,
		CostWithoutCache: 0.0166,
		Success:          true,
		ResponseTimeMs:   920,
	}
	if err := repo.Append(ctx, record); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if record.ID == "" {
		t.Error("expected Append to assign an id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresAppendRollsBackOnInsertFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO usage_records").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	record := &UsageRecord{
		Timestamp:        time.Now(),
		UserID:           "user-1",
		FeatureKey:       "listing_description",
		ModelID:          "claude-sonnet-4",
		Cost:             0.01,
		CostWithoutCache: 0.01,
		Success:          true,
	}
	err = repo.Append(context.Background(), record)
	if !errors.Is(err, ErrWriteFailed) {
		t.Errorf("expected ErrWriteFailed, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresReserveBudgetGranted(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)
	month := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO budget_months").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("UPDATE budget_months").
		WithArgs(month, 2.5, 100.0).
		WillReturnRows(sqlmock.NewRows([]string{"reserved"}).AddRow(42.5))

	granted, total, err := repo.ReserveBudget(context.Background(), month, 2.5, 100.0)
	if err != nil {
		t.Fatalf("ReserveBudget failed: %v", err)
	}
	if !granted || total != 42.5 {
		t.Errorf("expected granted at 42.5, got granted=%v total=%v", granted, total)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresReserveBudgetDeniedAtLimit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)
	month := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO budget_months").
		WillReturnResult(sqlmock.NewResult(0, 0))
	// conditional update matches no row once the limit would be crossed
	mock.ExpectQuery("UPDATE budget_months").
		WillReturnRows(sqlmock.NewRows([]string{"reserved"}))
	mock.ExpectQuery("SELECT reserved FROM budget_months").
		WithArgs(month).
		WillReturnRows(sqlmock.NewRows([]string{"reserved"}).AddRow(99.5))

	granted, total, err := repo.ReserveBudget(context.Background(), month, 2.5, 100.0)
	if err != nil {
		t.Fatalf("ReserveBudget failed: %v", err)
	}
	if granted {
		t.Error("expected reservation to be denied at the limit")
	}
	if total != 99.5 {
		t.Errorf("expected current reserved 99.5, got %v", total)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresMonthlySpendMissingMonthIsZero(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)
	month := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT reserved FROM budget_months").
		WithArgs(month).
		WillReturnRows(sqlmock.NewRows([]string{"reserved"}))

	spend, err := repo.MonthlySpend(context.Background(), month)
	if err != nil {
		t.Fatalf("MonthlySpend failed: %v", err)
	}
	if spend != 0 {
		t.Errorf("expected zero spend for missing month, got %v", spend)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresWindowTotalsScan(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	rows := sqlmock.NewRows([]string{
		"count", "cache_hits", "input", "output", "cache_read",
		"cost", "cost_without_cache", "response_time",
	}).AddRow(120, 45, 250000, 60000, 90000, 3.4520, 4.1200, 98000)

	mock.ExpectQuery("SELECT").
		WithArgs(from, to).
		WillReturnRows(rows)

	totals, err := repo.WindowTotals(context.Background(), from, to, false)
	if err != nil {
		t.Fatalf("WindowTotals failed: %v", err)
	}
	if totals.Requests != 120 || totals.CacheHits != 45 {
		t.Errorf("unexpected counts: %+v", totals)
	}
	if totals.Cost != 3.4520 || totals.CostWithoutCache != 4.1200 {
		t.Errorf("unexpected costs: %+v", totals)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
