// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package governance

import (
	"context"
	"time"
)

// Store persists governance settings and feature configs.
type Store interface {
	// GetSettings returns the singleton settings row, creating it from
	// DefaultSettings on first access.
	GetSettings(ctx context.Context) (*Settings, error)

	// UpdateSettings overwrites the admin-writable settings fields.
	// Last writer wins.
	UpdateSettings(ctx context.Context, settings *Settings) error

	// SetAPIStatus records the outcome of a provider health probe.
	SetAPIStatus(ctx context.Context, status string, checkedAt time.Time) error

	// ListFeatures returns all feature configs ordered by key.
	ListFeatures(ctx context.Context) ([]FeatureConfig, error)

	// GetFeature returns one feature config or ErrFeatureNotFound.
	GetFeature(ctx context.Context, key string) (*FeatureConfig, error)

	// UpsertFeature creates or replaces a feature config.
	UpsertFeature(ctx context.Context, feature *FeatureConfig) error

	// SeedDefaults inserts the default feature catalog, leaving existing
	// rows untouched.
	SeedDefaults(ctx context.Context) error
}
