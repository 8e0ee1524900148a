// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package governance

import (
	"errors"
	"testing"
)

func TestTierSatisfies(t *testing.T) {
	tests := []struct {
		have, need string
		want       bool
	}{
		{TierFree, TierFree, true},
		{TierBasic, TierFree, true},
		{TierPro, TierBasic, true},
		{TierEnterprise, TierPro, true},
		{TierFree, TierBasic, false},
		{TierBasic, TierPro, false},
		{TierPro, TierEnterprise, false},
		{"", TierFree, true},         // missing tier defaults to free
		{"", TierBasic, false},
		{TierPro, "", true},          // no requirement means free
		{"platinum", TierFree, false}, // unknown tiers satisfy nothing
	}
	for _, tt := range tests {
		if got := TierSatisfies(tt.have, tt.need); got != tt.want {
			t.Errorf("TierSatisfies(%q, %q) = %v, want %v", tt.have, tt.need, got, tt.want)
		}
	}
}

func TestSettingsValidate(t *testing.T) {
	valid := DefaultSettings()
	if err := valid.Validate(); err != nil {
		t.Errorf("expected defaults to validate, got %v", err)
	}

	cases := map[string]func(*Settings){
		"empty model":       func(s *Settings) { s.DefaultModel = "" },
		"negative budget":   func(s *Settings) { s.MonthlyBudget = -1 },
		"zero threshold":    func(s *Settings) { s.BudgetWarningThresholdPct = 0 },
		"threshold > 100":   func(s *Settings) { s.BudgetWarningThresholdPct = 101 },
		"zero hourly limit": func(s *Settings) { s.RateLimitPerUserHour = 0 },
		"zero daily limit":  func(s *Settings) { s.RateLimitPerUserDay = 0 },
	}
	for name, mutate := range cases {
		s := DefaultSettings()
		mutate(s)
		if err := s.Validate(); !errors.Is(err, ErrInvalidSettings) {
			t.Errorf("%s: expected ErrInvalidSettings, got %v", name, err)
		}
	}
}

func TestFeatureConfigValidate(t *testing.T) {
	valid := &FeatureConfig{FeatureKey: "listing_description", MaxTokens: 1024, RequiresTier: TierFree}
	if err := valid.Validate(); err != nil {
		t.Errorf("expected valid config to pass, got %v", err)
	}

	invalid := []*FeatureConfig{
		{FeatureKey: "", MaxTokens: 1024},
		{FeatureKey: "x", MaxTokens: 0},
		{FeatureKey: "x", MaxTokens: 1024, RequiresTier: "platinum"},
	}
	for i, f := range invalid {
		if err := f.Validate(); !errors.Is(err, ErrInvalidSettings) {
			t.Errorf("case %d: expected ErrInvalidSettings, got %v", i, err)
		}
	}
}

func TestFeatureAllowed(t *testing.T) {
	s := DefaultSettings()
	if !s.FeatureAllowed("anything") {
		t.Error("empty allow-list should allow every feature")
	}

	s.AllowedFeatures = []string{"listing_description", "lease_summary"}
	if !s.FeatureAllowed("lease_summary") {
		t.Error("listed feature should be allowed")
	}
	if s.FeatureAllowed("tenant_screening") {
		t.Error("unlisted feature should be denied")
	}
}
