// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package governance

import (
	"errors"
	"time"
)

var (
	// ErrInvalidSettings is returned when a settings write fails validation
	ErrInvalidSettings = errors.New("invalid governance settings")

	// ErrFeatureNotFound is returned for lookups of unknown feature keys
	ErrFeatureNotFound = errors.New("feature not found")
)

// Subscription tiers in ascending order of entitlement.
const (
	TierFree       = "free"
	TierBasic      = "basic"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

var tierRank = map[string]int{
	TierFree:       0,
	TierBasic:      1,
	TierPro:        2,
	TierEnterprise: 3,
}

// TierSatisfies reports whether the caller's tier meets the required tier.
// An empty caller tier is treated as free; unknown tiers satisfy nothing.
func TierSatisfies(have, need string) bool {
	if have == "" {
		have = TierFree
	}
	if need == "" {
		need = TierFree
	}
	haveRank, ok := tierRank[have]
	if !ok {
		return false
	}
	needRank, ok := tierRank[need]
	if !ok {
		return false
	}
	return haveRank >= needRank
}

// Settings is the singleton global configuration row. Last writer wins.
type Settings struct {
	IsEnabled                 bool      `json:"is_enabled"`
	DefaultModel              string    `json:"default_model"`
	MonthlyBudget             float64   `json:"monthly_budget"`
	BudgetWarningThresholdPct int       `json:"budget_warning_threshold_pct"`
	EnablePromptCaching       bool      `json:"enable_prompt_caching"`
	EnableBatchProcessing     bool      `json:"enable_batch_processing"`
	RateLimitPerUserHour      int       `json:"rate_limit_per_user_hour"`
	RateLimitPerUserDay       int       `json:"rate_limit_per_user_day"`
	AllowedFeatures           []string  `json:"allowed_features"`
	APIStatus                 string    `json:"api_status"`
	LastAPICheck              time.Time `json:"last_api_check,omitempty"`
	UpdatedAt                 time.Time `json:"updated_at,omitempty"`
}

// Validate checks admin-writable fields before persisting.
func (s *Settings) Validate() error {
	if s.DefaultModel == "" {
		return ErrInvalidSettings
	}
	if s.MonthlyBudget < 0 {
		return ErrInvalidSettings
	}
	if s.BudgetWarningThresholdPct <= 0 || s.BudgetWarningThresholdPct > 100 {
		return ErrInvalidSettings
	}
	if s.RateLimitPerUserHour <= 0 || s.RateLimitPerUserDay <= 0 {
		return ErrInvalidSettings
	}
	return nil
}

// FeatureAllowed reports whether the feature key passes the coarse global
// allow-list. An empty list allows every feature.
func (s *Settings) FeatureAllowed(key string) bool {
	if len(s.AllowedFeatures) == 0 {
		return true
	}
	for _, allowed := range s.AllowedFeatures {
		if allowed == key {
			return true
		}
	}
	return false
}

// FeatureConfig configures one AI-backed product feature.
type FeatureConfig struct {
	FeatureKey     string    `json:"feature_key"`
	DisplayName    string    `json:"display_name"`
	IsEnabled      bool      `json:"is_enabled"`
	PreferredModel string    `json:"preferred_model,omitempty"`
	MaxTokens      int       `json:"max_tokens"`
	RequiresTier   string    `json:"requires_tier"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}

// Validate checks a feature config before persisting.
func (f *FeatureConfig) Validate() error {
	if f.FeatureKey == "" {
		return ErrInvalidSettings
	}
	if f.MaxTokens <= 0 {
		return ErrInvalidSettings
	}
	if f.RequiresTier != "" {
		if _, ok := tierRank[f.RequiresTier]; !ok {
			return ErrInvalidSettings
		}
	}
	return nil
}

// DefaultSettings returns the configuration used before any admin write.
func DefaultSettings() *Settings {
	return &Settings{
		IsEnabled:                 true,
		DefaultModel:              "claude-sonnet-4",
		MonthlyBudget:             100.0,
		BudgetWarningThresholdPct: 80,
		EnablePromptCaching:       true,
		EnableBatchProcessing:     false,
		RateLimitPerUserHour:      20,
		RateLimitPerUserDay:       200,
		APIStatus:                 "unknown",
	}
}

// DefaultFeatures returns the seeded feature catalog.
func DefaultFeatures() []FeatureConfig {
	return []FeatureConfig{
		{
			FeatureKey:   "listing_description",
			DisplayName:  "Listing Description Generator",
			IsEnabled:    true,
			MaxTokens:    1024,
			RequiresTier: TierFree,
		},
		{
			FeatureKey:   "lease_summary",
			DisplayName:  "Lease Document Summarizer",
			IsEnabled:    true,
			MaxTokens:    2048,
			RequiresTier: TierBasic,
		},
		{
			FeatureKey:   "maintenance_triage",
			DisplayName:  "Maintenance Request Triage",
			IsEnabled:    true,
			MaxTokens:    512,
			RequiresTier: TierBasic,
		},
		{
			FeatureKey:   "tenant_screening",
			DisplayName:  "Tenant Application Screening",
			IsEnabled:    true,
			MaxTokens:    2048,
			RequiresTier: TierPro,
		},
		{
			FeatureKey:     "market_analysis",
			DisplayName:    "Rental Market Analysis",
			IsEnabled:      true,
			PreferredModel: "claude-opus-4",
			MaxTokens:      4096,
			RequiresTier:   TierEnterprise,
		},
	}
}
