// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package governance

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	settings *Settings
	features map[string]FeatureConfig
}

// NewMemoryStore creates an empty in-memory governance store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		features: make(map[string]FeatureConfig),
	}
}

func (m *MemoryStore) GetSettings(ctx context.Context) (*Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		m.settings = DefaultSettings()
		m.settings.UpdatedAt = time.Now().UTC()
	}
	copied := *m.settings
	return &copied, nil
}

func (m *MemoryStore) UpdateSettings(ctx context.Context, settings *Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *settings
	copied.UpdatedAt = time.Now().UTC()
	if m.settings != nil {
		copied.APIStatus = m.settings.APIStatus
		copied.LastAPICheck = m.settings.LastAPICheck
	}
	if copied.APIStatus == "" {
		copied.APIStatus = "unknown"
	}
	m.settings = &copied
	return nil
}

func (m *MemoryStore) SetAPIStatus(ctx context.Context, status string, checkedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		m.settings = DefaultSettings()
	}
	m.settings.APIStatus = status
	m.settings.LastAPICheck = checkedAt.UTC()
	return nil
}

func (m *MemoryStore) ListFeatures(ctx context.Context) ([]FeatureConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	features := make([]FeatureConfig, 0, len(m.features))
	for _, feature := range m.features {
		features = append(features, feature)
	}
	sort.Slice(features, func(i, j int) bool {
		return features[i].FeatureKey < features[j].FeatureKey
	})
	return features, nil
}

func (m *MemoryStore) GetFeature(ctx context.Context, key string) (*FeatureConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	feature, ok := m.features[key]
	if !ok {
		return nil, ErrFeatureNotFound
	}
	return &feature, nil
}

func (m *MemoryStore) UpsertFeature(ctx context.Context, feature *FeatureConfig) error {
	if err := feature.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *feature
	if copied.RequiresTier == "" {
		copied.RequiresTier = TierFree
	}
	copied.UpdatedAt = time.Now().UTC()
	m.features[copied.FeatureKey] = copied
	return nil
}

func (m *MemoryStore) SeedDefaults(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, feature := range DefaultFeatures() {
		if _, exists := m.features[feature.FeatureKey]; exists {
			continue
		}
		feature.UpdatedAt = time.Now().UTC()
		m.features[feature.FeatureKey] = feature
	}
	return nil
}
