// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package governance

import (
	"context"
	"sync"
	"time"
)

// DefaultRefreshInterval bounds how stale a cached snapshot may be.
const DefaultRefreshInterval = 30 * time.Second

// View is an immutable read of settings plus the feature map, taken at
// FetchedAt. Callers must not mutate it.
type View struct {
	Settings  *Settings
	Features  map[string]FeatureConfig
	FetchedAt time.Time
}

// Feature returns the feature config for key, or nil when absent.
func (v *View) Feature(key string) *FeatureConfig {
	feature, ok := v.Features[key]
	if !ok {
		return nil
	}
	return &feature
}

// Snapshot caches governance reads for the invocation hot path. The cache
// refreshes when older than the interval and on explicit Invalidate after
// admin writes, so enforcement never sees config older than the interval.
type Snapshot struct {
	store    Store
	interval time.Duration

	mu      sync.Mutex
	current *View
}

// NewSnapshot creates a snapshot cache over store. A non-positive interval
// falls back to DefaultRefreshInterval.
func NewSnapshot(store Store, interval time.Duration) *Snapshot {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Snapshot{store: store, interval: interval}
}

// Get returns the cached view, refreshing it first when stale. When a
// refresh fails but a previous view exists, the stale view is returned with
// the error so callers can choose fail-open behavior.
func (s *Snapshot) Get(ctx context.Context) (*View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && time.Since(s.current.FetchedAt) < s.interval {
		return s.current, nil
	}

	view, err := s.load(ctx)
	if err != nil {
		if s.current != nil {
			return s.current, err
		}
		return nil, err
	}
	s.current = view
	return view, nil
}

// Refresh forces a reload regardless of age.
func (s *Snapshot) Refresh(ctx context.Context) error {
	view, err := s.load(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.current = view
	s.mu.Unlock()
	return nil
}

// Invalidate drops the cached view so the next Get reloads. Called after
// admin writes.
func (s *Snapshot) Invalidate() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

func (s *Snapshot) load(ctx context.Context) (*View, error) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	features, err := s.store.ListFeatures(ctx)
	if err != nil {
		return nil, err
	}

	featureMap := make(map[string]FeatureConfig, len(features))
	for _, feature := range features {
		featureMap[feature.FeatureKey] = feature
	}
	return &View{
		Settings:  settings,
		Features:  featureMap,
		FetchedAt: time.Now(),
	}, nil
}
