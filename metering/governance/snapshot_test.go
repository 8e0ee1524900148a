// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package governance

import (
	"context"
	"errors"
	"testing"
	"time"
)

// countingStore wraps a Store and counts settings reads.
type countingStore struct {
	Store
	settingsReads int
	failReads     bool
}

func (c *countingStore) GetSettings(ctx context.Context) (*Settings, error) {
	if c.failReads {
		return nil, errors.New("store unavailable")
	}
	c.settingsReads++
	return c.Store.GetSettings(ctx)
}

func TestSnapshotCachesWithinInterval(t *testing.T) {
	store := &countingStore{Store: NewMemoryStore()}
	snapshot := NewSnapshot(store, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		view, err := snapshot.Get(ctx)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if view.Settings == nil {
			t.Fatal("expected settings in view")
		}
	}
	if store.settingsReads != 1 {
		t.Errorf("expected 1 store read within interval, got %d", store.settingsReads)
	}
}

func TestSnapshotInvalidateForcesReload(t *testing.T) {
	mem := NewMemoryStore()
	store := &countingStore{Store: mem}
	snapshot := NewSnapshot(store, time.Minute)
	ctx := context.Background()

	if _, err := snapshot.Get(ctx); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	updated := DefaultSettings()
	updated.IsEnabled = false
	if err := mem.UpdateSettings(ctx, updated); err != nil {
		t.Fatalf("UpdateSettings failed: %v", err)
	}

	// still cached: the write is not visible yet
	view, err := snapshot.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !view.Settings.IsEnabled {
		t.Error("expected cached view before invalidation")
	}

	snapshot.Invalidate()
	view, err = snapshot.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if view.Settings.IsEnabled {
		t.Error("expected reload after invalidation to see the write")
	}
}

func TestSnapshotServesStaleViewOnRefreshError(t *testing.T) {
	store := &countingStore{Store: NewMemoryStore()}
	snapshot := NewSnapshot(store, time.Minute)
	ctx := context.Background()

	if _, err := snapshot.Get(ctx); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	store.failReads = true
	snapshot.Invalidate()

	view, err := snapshot.Get(ctx)
	if err == nil {
		t.Error("expected error surfaced from failed reload")
	}
	if view != nil {
		t.Error("expected no view when cache was invalidated and reload failed")
	}
}

func TestSnapshotRefreshErrorKeepsOldView(t *testing.T) {
	store := &countingStore{Store: NewMemoryStore()}
	// interval of 1ns so every Get is stale
	snapshot := NewSnapshot(store, time.Nanosecond)
	ctx := context.Background()

	first, err := snapshot.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	store.failReads = true
	time.Sleep(time.Millisecond)

	view, err := snapshot.Get(ctx)
	if err == nil {
		t.Error("expected refresh error to be surfaced")
	}
	if view == nil || view.FetchedAt != first.FetchedAt {
		t.Error("expected the stale view to be served alongside the error")
	}
}

func TestViewFeatureLookup(t *testing.T) {
	mem := NewMemoryStore()
	ctx := context.Background()
	if err := mem.SeedDefaults(ctx); err != nil {
		t.Fatalf("SeedDefaults failed: %v", err)
	}

	snapshot := NewSnapshot(mem, 0)
	view, err := snapshot.Get(ctx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if view.Feature("listing_description") == nil {
		t.Error("expected seeded feature in view")
	}
	if view.Feature("missing") != nil {
		t.Error("expected nil for unknown feature")
	}
}
