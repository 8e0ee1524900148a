// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package ledger

import (
	"time"
)

// UsageRecord represents a single completed AI invocation.
// Immutable once written: failed dispatches are recorded too, with zero
// cost components, so failure rates are derivable from the ledger alone.
type UsageRecord struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	UserID           string    `json:"user_id"`
	FeatureKey       string    `json:"feature_key"`
	ModelID          string    `json:"model_id"`
	InputTokens      int       `json:"input_tokens"`
	OutputTokens     int       `json:"output_tokens"`
	CacheWriteTokens int       `json:"cache_write_tokens"`
	CacheReadTokens  int       `json:"cache_read_tokens"`
	Cost             float64   `json:"cost"`
	CostWithoutCache float64   `json:"cost_without_cache"`
	Success          bool      `json:"success"`
	ResponseTimeMs   int64     `json:"response_time_ms"`
	CreatedAt        time.Time `json:"created_at,omitempty"`
}

// TotalTokens returns input plus output tokens.
func (r *UsageRecord) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// CacheHit reports whether any part of the request was served from cache.
func (r *UsageRecord) CacheHit() bool {
	return r.CacheReadTokens > 0
}

// Validate checks the ledger's write invariants.
func (r *UsageRecord) Validate() error {
	if r.UserID == "" || r.FeatureKey == "" || r.ModelID == "" {
		return ErrInvalidRecord
	}
	if r.InputTokens < 0 || r.OutputTokens < 0 || r.CacheWriteTokens < 0 || r.CacheReadTokens < 0 {
		return ErrInvalidRecord
	}
	if r.Cost < 0 || r.CostWithoutCache < r.Cost {
		return ErrInvalidRecord
	}
	return nil
}

// QueryOptions filters range queries over the ledger.
type QueryOptions struct {
	UserID     string    `json:"user_id,omitempty"`
	FeatureKey string    `json:"feature_key,omitempty"`
	From       time.Time `json:"from,omitempty"`
	To         time.Time `json:"to,omitempty"`
	Limit      int       `json:"limit,omitempty"`
	Offset     int       `json:"offset,omitempty"`
}

// DailyTotal is one day's rollup of cost and request volume.
type DailyTotal struct {
	Day              time.Time `json:"day"`
	Requests         int       `json:"requests"`
	Cost             float64   `json:"cost"`
	CostWithoutCache float64   `json:"cost_without_cache"`
}

// WindowTotals aggregates a time window of usage records.
type WindowTotals struct {
	Requests            int     `json:"requests"`
	CacheHits           int     `json:"cache_hits"`
	InputTokens         int64   `json:"input_tokens"`
	OutputTokens        int64   `json:"output_tokens"`
	CacheReadTokens     int64   `json:"cache_read_tokens"`
	Cost                float64 `json:"cost"`
	CostWithoutCache    float64 `json:"cost_without_cache"`
	TotalResponseTimeMs int64   `json:"total_response_time_ms"`
}
