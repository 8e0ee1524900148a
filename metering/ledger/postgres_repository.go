// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL ledger repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate creates the ledger tables if they do not exist.
func Migrate(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS usage_records (
			id UUID PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			user_id TEXT NOT NULL,
			feature_key TEXT NOT NULL,
			model_id TEXT NOT NULL,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			cache_write_tokens INTEGER NOT NULL DEFAULT 0,
			cache_read_tokens INTEGER NOT NULL DEFAULT 0,
			cost NUMERIC(12,4) NOT NULL DEFAULT 0,
			cost_without_cache NUMERIC(12,4) NOT NULL DEFAULT 0,
			success BOOLEAN NOT NULL DEFAULT true,
			response_time_ms BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_records_user_ts
			ON usage_records (user_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_records_ts
			ON usage_records (timestamp)`,
		`CREATE TABLE IF NOT EXISTS usage_rollup_daily (
			day DATE PRIMARY KEY,
			requests BIGINT NOT NULL DEFAULT 0,
			cost NUMERIC(14,4) NOT NULL DEFAULT 0,
			cost_without_cache NUMERIC(14,4) NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS budget_months (
			month_start DATE PRIMARY KEY,
			reserved NUMERIC(14,4) NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("ledger migration failed: %w", err)
		}
	}
	return nil
}

// Append writes the record and its daily rollup in one transaction.
func (r *PostgresRepository) Append(ctx context.Context, record *UsageRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO usage_records (
			id, timestamp, user_id, feature_key, model_id,
			input_tokens, output_tokens, cache_write_tokens, cache_read_tokens,
			cost, cost_without_cache, success, response_time_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		record.ID, record.Timestamp.UTC(), record.UserID, record.FeatureKey, record.ModelID,
		record.InputTokens, record.OutputTokens, record.CacheWriteTokens, record.CacheReadTokens,
		record.Cost, record.CostWithoutCache, record.Success, record.ResponseTimeMs,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO usage_rollup_daily (day, requests, cost, cost_without_cache, updated_at)
		VALUES ($1, 1, $2, $3, now())
		ON CONFLICT (day) DO UPDATE SET
			requests = usage_rollup_daily.requests + 1,
			cost = usage_rollup_daily.cost + EXCLUDED.cost,
			cost_without_cache = usage_rollup_daily.cost_without_cache + EXCLUDED.cost_without_cache,
			updated_at = now()
	`, DayStart(record.Timestamp), record.Cost, record.CostWithoutCache)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

// QueryRange returns records matching opts ordered by timestamp ascending.
func (r *PostgresRepository) QueryRange(ctx context.Context, opts QueryOptions) ([]UsageRecord, int, error) {
	var conditions []string
	var args []interface{}
	argIndex := 1

	if opts.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIndex))
		args = append(args, opts.UserID)
		argIndex++
	}
	if opts.FeatureKey != "" {
		conditions = append(conditions, fmt.Sprintf("feature_key = $%d", argIndex))
		args = append(args, opts.FeatureKey)
		argIndex++
	}
	if !opts.From.IsZero() {
		conditions = append(conditions, fmt.Sprintf("timestamp >= $%d", argIndex))
		args = append(args, opts.From.UTC())
		argIndex++
	}
	if !opts.To.IsZero() {
		conditions = append(conditions, fmt.Sprintf("timestamp < $%d", argIndex))
		args = append(args, opts.To.UTC())
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM usage_records %s", whereClause)
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count usage records: %w", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT id, timestamp, user_id, feature_key, model_id,
			   input_tokens, output_tokens, cache_write_tokens, cache_read_tokens,
			   cost, cost_without_cache, success, response_time_ms, created_at
		FROM usage_records
		%s
		ORDER BY timestamp ASC
		LIMIT $%d OFFSET $%d
	`, whereClause, argIndex, argIndex+1)

	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query usage records: %w", err)
	}
	defer rows.Close()

	var records []UsageRecord
	for rows.Next() {
		var record UsageRecord
		if err := rows.Scan(
			&record.ID, &record.Timestamp, &record.UserID, &record.FeatureKey, &record.ModelID,
			&record.InputTokens, &record.OutputTokens, &record.CacheWriteTokens, &record.CacheReadTokens,
			&record.Cost, &record.CostWithoutCache, &record.Success, &record.ResponseTimeMs, &record.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan usage record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate usage records: %w", err)
	}

	return records, total, nil
}

// CountInWindow counts a user's records in [from, to).
func (r *PostgresRepository) CountInWindow(ctx context.Context, userID string, from, to time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM usage_records
		WHERE user_id = $1 AND timestamp >= $2 AND timestamp < $3
	`, userID, from.UTC(), to.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count window: %w", err)
	}
	return count, nil
}

// WindowTotals aggregates records in [from, to).
func (r *PostgresRepository) WindowTotals(ctx context.Context, from, to time.Time, successOnly bool) (*WindowTotals, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE cache_read_tokens > 0),
			COALESCE(SUM(input_tokens), 0),
			COALESCE(SUM(output_tokens), 0),
			COALESCE(SUM(cache_read_tokens), 0),
			COALESCE(SUM(cost), 0),
			COALESCE(SUM(cost_without_cache), 0),
			COALESCE(SUM(response_time_ms), 0)
		FROM usage_records
		WHERE timestamp >= $1 AND timestamp < $2
	`
	if successOnly {
		query += " AND success"
	}

	totals := &WindowTotals{}
	err := r.db.QueryRowContext(ctx, query, from.UTC(), to.UTC()).Scan(
		&totals.Requests, &totals.CacheHits,
		&totals.InputTokens, &totals.OutputTokens, &totals.CacheReadTokens,
		&totals.Cost, &totals.CostWithoutCache, &totals.TotalResponseTimeMs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate window: %w", err)
	}
	return totals, nil
}

// DailyTotals reads the per-day rollup for days in [from, to).
func (r *PostgresRepository) DailyTotals(ctx context.Context, from, to time.Time) ([]DailyTotal, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT day, requests, cost, cost_without_cache
		FROM usage_rollup_daily
		WHERE day >= $1 AND day < $2
		ORDER BY day ASC
	`, DayStart(from), DayStart(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily rollups: %w", err)
	}
	defer rows.Close()

	var totals []DailyTotal
	for rows.Next() {
		var t DailyTotal
		if err := rows.Scan(&t.Day, &t.Requests, &t.Cost, &t.CostWithoutCache); err != nil {
			return nil, fmt.Errorf("failed to scan daily rollup: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily rollups: %w", err)
	}
	return totals, nil
}

// MonthlySpend reads the month's reserved spend counter.
func (r *PostgresRepository) MonthlySpend(ctx context.Context, monthStart time.Time) (float64, error) {
	var reserved float64
	err := r.db.QueryRowContext(ctx,
		`SELECT reserved FROM budget_months WHERE month_start = $1`,
		MonthStart(monthStart),
	).Scan(&reserved)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read monthly spend: %w", err)
	}
	return reserved, nil
}

// ReserveBudget takes the reservation with a single conditional update.
// The WHERE clause is evaluated under the row lock, so two racing callers
// serialize and at most one can cross the limit boundary.
func (r *PostgresRepository) ReserveBudget(ctx context.Context, monthStart time.Time, amount, limit float64) (bool, float64, error) {
	month := MonthStart(monthStart)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budget_months (month_start, reserved) VALUES ($1, 0)
		ON CONFLICT (month_start) DO NOTHING
	`, month)
	if err != nil {
		return false, 0, fmt.Errorf("failed to init budget month: %w", err)
	}

	var newTotal float64
	err = r.db.QueryRowContext(ctx, `
		UPDATE budget_months
		SET reserved = reserved + $2, updated_at = now()
		WHERE month_start = $1 AND ($3 <= 0 OR reserved + $2 <= $3)
		RETURNING reserved
	`, month, amount, limit).Scan(&newTotal)
	if err == sql.ErrNoRows {
		current, rerr := r.MonthlySpend(ctx, month)
		if rerr != nil {
			return false, 0, rerr
		}
		return false, current, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to reserve budget: %w", err)
	}
	return true, newTotal, nil
}

// SettleBudget reconciles the reservation with the actual cost.
func (r *PostgresRepository) SettleBudget(ctx context.Context, monthStart time.Time, delta float64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budget_months (month_start, reserved) VALUES ($1, $2)
		ON CONFLICT (month_start) DO UPDATE SET
			reserved = GREATEST(budget_months.reserved + EXCLUDED.reserved, 0),
			updated_at = now()
	`, MonthStart(monthStart), delta)
	if err != nil {
		return fmt.Errorf("failed to settle budget: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
