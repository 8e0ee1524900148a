// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package cost

import (
	"encoding/json"
	"os"
	"strings"
	"sync"
)

// PricingEntry contains per-million-token rates for a model, in USD.
type PricingEntry struct {
	InputPerMTok      float64 `json:"input_per_mtok"`
	OutputPerMTok     float64 `json:"output_per_mtok"`
	CacheWritePerMTok float64 `json:"cache_write_per_mtok"`
	CacheReadPerMTok  float64 `json:"cache_read_per_mtok"`
}

// Catalog holds pricing information for all known models.
// Entries are read-only at runtime; changes arrive via config, not data.
type Catalog struct {
	Models map[string]PricingEntry `json:"models"`
	mu     sync.RWMutex
}

// DefaultCatalog contains default pricing for the models the platform
// dispatches to. Rates are USD per million tokens (as of mid 2025).
var DefaultCatalog = &Catalog{
	Models: map[string]PricingEntry{
		"claude-opus-4": {
			InputPerMTok: 15.00, OutputPerMTok: 75.00,
			CacheWritePerMTok: 18.75, CacheReadPerMTok: 1.50,
		},
		"claude-sonnet-4": {
			InputPerMTok: 3.00, OutputPerMTok: 15.00,
			CacheWritePerMTok: 3.75, CacheReadPerMTok: 0.30,
		},
		"claude-3-5-sonnet": {
			InputPerMTok: 3.00, OutputPerMTok: 15.00,
			CacheWritePerMTok: 3.75, CacheReadPerMTok: 0.30,
		},
		"claude-3-5-haiku": {
			InputPerMTok: 0.80, OutputPerMTok: 4.00,
			CacheWritePerMTok: 1.00, CacheReadPerMTok: 0.08,
		},
		"claude-3-haiku": {
			InputPerMTok: 0.25, OutputPerMTok: 1.25,
			CacheWritePerMTok: 0.30, CacheReadPerMTok: 0.03,
		},
	},
}

// NewCatalog creates a new catalog seeded with the defaults.
func NewCatalog() *Catalog {
	return &Catalog{Models: copyModels(DefaultCatalog.Models)}
}

// LoadCatalogFromEnv loads custom pricing from the METERING_PRICING_CONFIG
// env var (JSON, merged over the defaults).
func LoadCatalogFromEnv() *Catalog {
	catalog := NewCatalog()

	pricingJSON := os.Getenv("METERING_PRICING_CONFIG")
	if pricingJSON != "" {
		var custom Catalog
		if err := json.Unmarshal([]byte(pricingJSON), &custom); err == nil {
			for model, entry := range custom.Models {
				catalog.Models[model] = entry
			}
		}
	}

	return catalog
}

// LoadCatalogFromFile loads pricing overrides from a JSON file,
// merged over the defaults.
func LoadCatalogFromFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	catalog := NewCatalog()
	var custom Catalog
	if err := json.Unmarshal(data, &custom); err != nil {
		return nil, err
	}
	for model, entry := range custom.Models {
		catalog.Models[model] = entry
	}

	return catalog, nil
}

// Lookup returns the pricing entry for a model, normalizing the name first.
func (c *Catalog) Lookup(modelID string) (PricingEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.Models[modelID]
	if !ok {
		entry, ok = c.Models[c.normalize(modelID)]
	}
	return entry, ok
}

// SetEntry sets pricing for a model.
func (c *Catalog) SetEntry(modelID string, entry PricingEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Models == nil {
		c.Models = make(map[string]PricingEntry)
	}
	c.Models[modelID] = entry
}

// ListModels returns all model ids with a pricing entry.
func (c *Catalog) ListModels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	models := make([]string, 0, len(c.Models))
	for model := range c.Models {
		models = append(models, model)
	}
	return models
}

// normalize strips a trailing date suffix from a model id,
// e.g. "claude-sonnet-4-20250514" -> "claude-sonnet-4".
// Caller must hold at least a read lock.
func (c *Catalog) normalize(modelID string) string {
	parts := strings.Split(modelID, "-")
	if len(parts) < 2 {
		return modelID
	}
	last := parts[len(parts)-1]
	if len(last) >= 8 && isAllDigits(last) {
		return strings.Join(parts[:len(parts)-1], "-")
	}
	return modelID
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func copyModels(src map[string]PricingEntry) map[string]PricingEntry {
	dst := make(map[string]PricingEntry, len(src))
	for model, entry := range src {
		dst[model] = entry
	}
	return dst
}
