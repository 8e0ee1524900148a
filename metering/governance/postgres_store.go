// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package governance

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL governance store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the governance tables if they do not exist.
func Migrate(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS metering_settings (
			id SMALLINT PRIMARY KEY CHECK (id = 1),
			is_enabled BOOLEAN NOT NULL DEFAULT true,
			default_model TEXT NOT NULL,
			monthly_budget NUMERIC(14,4) NOT NULL DEFAULT 0,
			budget_warning_threshold_pct INTEGER NOT NULL DEFAULT 80,
			enable_prompt_caching BOOLEAN NOT NULL DEFAULT true,
			enable_batch_processing BOOLEAN NOT NULL DEFAULT false,
			rate_limit_per_user_hour INTEGER NOT NULL DEFAULT 20,
			rate_limit_per_user_day INTEGER NOT NULL DEFAULT 200,
			allowed_features TEXT[] NOT NULL DEFAULT '{}',
			api_status TEXT NOT NULL DEFAULT 'unknown',
			last_api_check TIMESTAMPTZ,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS feature_configs (
			feature_key TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			is_enabled BOOLEAN NOT NULL DEFAULT true,
			preferred_model TEXT,
			max_tokens INTEGER NOT NULL DEFAULT 1024,
			requires_tier TEXT NOT NULL DEFAULT 'free',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("governance migration failed: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) GetSettings(ctx context.Context) (*Settings, error) {
	settings := &Settings{}
	var lastCheck sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT is_enabled, default_model, monthly_budget, budget_warning_threshold_pct,
			   enable_prompt_caching, enable_batch_processing,
			   rate_limit_per_user_hour, rate_limit_per_user_day,
			   allowed_features, api_status, last_api_check, updated_at
		FROM metering_settings WHERE id = 1
	`).Scan(
		&settings.IsEnabled, &settings.DefaultModel, &settings.MonthlyBudget,
		&settings.BudgetWarningThresholdPct, &settings.EnablePromptCaching,
		&settings.EnableBatchProcessing, &settings.RateLimitPerUserHour,
		&settings.RateLimitPerUserDay, pq.Array(&settings.AllowedFeatures),
		&settings.APIStatus, &lastCheck, &settings.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		defaults := DefaultSettings()
		if err := s.UpdateSettings(ctx, defaults); err != nil {
			return nil, err
		}
		return defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	if lastCheck.Valid {
		settings.LastAPICheck = lastCheck.Time
	}
	return settings, nil
}

func (s *PostgresStore) UpdateSettings(ctx context.Context, settings *Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	allowed := settings.AllowedFeatures
	if allowed == nil {
		allowed = []string{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metering_settings (
			id, is_enabled, default_model, monthly_budget, budget_warning_threshold_pct,
			enable_prompt_caching, enable_batch_processing,
			rate_limit_per_user_hour, rate_limit_per_user_day,
			allowed_features, updated_at
		) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (id) DO UPDATE SET
			is_enabled = EXCLUDED.is_enabled,
			default_model = EXCLUDED.default_model,
			monthly_budget = EXCLUDED.monthly_budget,
			budget_warning_threshold_pct = EXCLUDED.budget_warning_threshold_pct,
			enable_prompt_caching = EXCLUDED.enable_prompt_caching,
			enable_batch_processing = EXCLUDED.enable_batch_processing,
			rate_limit_per_user_hour = EXCLUDED.rate_limit_per_user_hour,
			rate_limit_per_user_day = EXCLUDED.rate_limit_per_user_day,
			allowed_features = EXCLUDED.allowed_features,
			updated_at = now()
	`,
		settings.IsEnabled, settings.DefaultModel, settings.MonthlyBudget,
		settings.BudgetWarningThresholdPct, settings.EnablePromptCaching,
		settings.EnableBatchProcessing, settings.RateLimitPerUserHour,
		settings.RateLimitPerUserDay, pq.Array(allowed),
	)
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetAPIStatus(ctx context.Context, status string, checkedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE metering_settings
		SET api_status = $1, last_api_check = $2
		WHERE id = 1
	`, status, checkedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to update api status: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFeatures(ctx context.Context) ([]FeatureConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT feature_key, display_name, is_enabled, preferred_model,
			   max_tokens, requires_tier, updated_at
		FROM feature_configs
		ORDER BY feature_key ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list features: %w", err)
	}
	defer rows.Close()

	var features []FeatureConfig
	for rows.Next() {
		feature, err := scanFeature(rows.Scan)
		if err != nil {
			return nil, err
		}
		features = append(features, *feature)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate features: %w", err)
	}
	return features, nil
}

func (s *PostgresStore) GetFeature(ctx context.Context, key string) (*FeatureConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT feature_key, display_name, is_enabled, preferred_model,
			   max_tokens, requires_tier, updated_at
		FROM feature_configs
		WHERE feature_key = $1
	`, key)

	feature, err := scanFeature(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrFeatureNotFound
	}
	if err != nil {
		return nil, err
	}
	return feature, nil
}

func (s *PostgresStore) UpsertFeature(ctx context.Context, feature *FeatureConfig) error {
	if err := feature.Validate(); err != nil {
		return err
	}
	preferred := sql.NullString{String: feature.PreferredModel, Valid: feature.PreferredModel != ""}
	tier := feature.RequiresTier
	if tier == "" {
		tier = TierFree
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feature_configs (
			feature_key, display_name, is_enabled, preferred_model,
			max_tokens, requires_tier, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (feature_key) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			is_enabled = EXCLUDED.is_enabled,
			preferred_model = EXCLUDED.preferred_model,
			max_tokens = EXCLUDED.max_tokens,
			requires_tier = EXCLUDED.requires_tier,
			updated_at = now()
	`, feature.FeatureKey, feature.DisplayName, feature.IsEnabled, preferred,
		feature.MaxTokens, tier)
	if err != nil {
		return fmt.Errorf("failed to upsert feature: %w", err)
	}
	return nil
}

func (s *PostgresStore) SeedDefaults(ctx context.Context) error {
	for _, feature := range DefaultFeatures() {
		preferred := sql.NullString{String: feature.PreferredModel, Valid: feature.PreferredModel != ""}
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO feature_configs (
				feature_key, display_name, is_enabled, preferred_model,
				max_tokens, requires_tier, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, now())
			ON CONFLICT (feature_key) DO NOTHING
		`, feature.FeatureKey, feature.DisplayName, feature.IsEnabled, preferred,
			feature.MaxTokens, feature.RequiresTier)
		if err != nil {
			return fmt.Errorf("failed to seed feature %s: %w", feature.FeatureKey, err)
		}
	}
	return nil
}

func scanFeature(scan func(dest ...interface{}) error) (*FeatureConfig, error) {
	feature := &FeatureConfig{}
	var preferred sql.NullString
	err := scan(
		&feature.FeatureKey, &feature.DisplayName, &feature.IsEnabled,
		&preferred, &feature.MaxTokens, &feature.RequiresTier, &feature.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if preferred.Valid {
		feature.PreferredModel = preferred.String
	}
	return feature, nil
}
