// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package cost

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLookupExactMatch(t *testing.T) {
	c := NewCatalog()

	entry, ok := c.Lookup("claude-sonnet-4")
	if !ok {
		t.Fatal("expected pricing for claude-sonnet-4")
	}
	if entry.InputPerMTok != 3.00 || entry.OutputPerMTok != 15.00 {
		t.Errorf("unexpected rates: %+v", entry)
	}
	if entry.CacheReadPerMTok >= entry.InputPerMTok {
		t.Errorf("cache read rate %v should be below input rate %v", entry.CacheReadPerMTok, entry.InputPerMTok)
	}
}

func TestLookupNormalizesDateSuffix(t *testing.T) {
	c := NewCatalog()

	dated, ok := c.Lookup("claude-sonnet-4-20250514")
	if !ok {
		t.Fatal("expected date-suffixed model id to resolve")
	}
	base, _ := c.Lookup("claude-sonnet-4")
	if dated != base {
		t.Errorf("dated lookup %+v != base lookup %+v", dated, base)
	}

	if _, ok := c.Lookup("claude-sonnet-4-1234"); ok {
		t.Error("short numeric suffix should not be treated as a date")
	}
}

func TestLookupUnknownModel(t *testing.T) {
	c := NewCatalog()
	if _, ok := c.Lookup("gpt-oss-unpriced"); ok {
		t.Error("expected unknown model to miss")
	}
}

func TestSetEntryOverride(t *testing.T) {
	c := NewCatalog()
	c.SetEntry("claude-sonnet-4", PricingEntry{InputPerMTok: 1, OutputPerMTok: 2})

	entry, _ := c.Lookup("claude-sonnet-4")
	if entry.InputPerMTok != 1 {
		t.Errorf("override not applied: %+v", entry)
	}

	// Defaults must be untouched.
	orig, _ := DefaultCatalog.Lookup("claude-sonnet-4")
	if orig.InputPerMTok != 3.00 {
		t.Errorf("DefaultCatalog mutated: %+v", orig)
	}
}

func TestLoadCatalogFromEnv(t *testing.T) {
	t.Setenv("METERING_PRICING_CONFIG", `{"models":{"tier-a":{"input_per_mtok":0.0028,"output_per_mtok":0.0138,"cache_write_per_mtok":0.0035,"cache_read_per_mtok":0.00028}}}`)

	c := LoadCatalogFromEnv()

	entry, ok := c.Lookup("tier-a")
	if !ok {
		t.Fatal("expected tier-a from env override")
	}
	if entry.CacheReadPerMTok != 0.00028 {
		t.Errorf("unexpected cache read rate: %v", entry.CacheReadPerMTok)
	}

	// Defaults still merged in.
	if _, ok := c.Lookup("claude-sonnet-4"); !ok {
		t.Error("defaults missing after env merge")
	}
}

func TestLoadCatalogFromEnvMalformed(t *testing.T) {
	t.Setenv("METERING_PRICING_CONFIG", "{not json")

	c := LoadCatalogFromEnv()
	if _, ok := c.Lookup("claude-sonnet-4"); !ok {
		t.Error("malformed env config should fall back to defaults")
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pricing.json")
	data := `{"models":{"claude-sonnet-4":{"input_per_mtok":2.5,"output_per_mtok":12.5,"cache_write_per_mtok":3.1,"cache_read_per_mtok":0.25}}}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := LoadCatalogFromFile(path)
	if err != nil {
		t.Fatalf("LoadCatalogFromFile failed: %v", err)
	}
	entry, _ := c.Lookup("claude-sonnet-4")
	if entry.InputPerMTok != 2.5 {
		t.Errorf("file override not applied: %+v", entry)
	}

	if _, err := LoadCatalogFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
