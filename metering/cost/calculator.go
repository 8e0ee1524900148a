// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package cost

import "math"

// precision is the ledger's minimum currency unit: 4 decimal places.
const precision = 1e4

// Breakdown is the result of a cost computation for one invocation.
type Breakdown struct {
	// Cost is the actual cost with cache-write and cache-read tokens
	// billed at their discounted rates.
	Cost float64 `json:"cost"`

	// CostWithoutCache re-bills every cached token at the full input
	// rate, establishing the no-cache baseline used to report savings.
	// Invariant: CostWithoutCache >= Cost, equal when no cache tokens.
	CostWithoutCache float64 `json:"cost_without_cache"`
}

// Savings returns the absolute amount saved by prompt caching.
func (b Breakdown) Savings() float64 {
	return b.CostWithoutCache - b.Cost
}

// ComputeCost prices a single invocation under the catalog's rates.
//
// cost     = (in*inRate + out*outRate + cw*cwRate + cr*crRate) / 1e6
// baseline = ((in+cw+cr)*inRate + out*outRate) / 1e6
//
// Both are rounded half-up to the ledger precision. When cachingEnabled is
// false the cache token counts must be zero and cost equals the baseline.
func (c *Catalog) ComputeCost(modelID string, inputTokens, outputTokens, cacheWriteTokens, cacheReadTokens int, cachingEnabled bool) (Breakdown, error) {
	if inputTokens < 0 || outputTokens < 0 || cacheWriteTokens < 0 || cacheReadTokens < 0 {
		return Breakdown{}, ErrInvalidInput
	}
	if !cachingEnabled && (cacheWriteTokens != 0 || cacheReadTokens != 0) {
		return Breakdown{}, ErrInvalidInput
	}

	entry, ok := c.Lookup(modelID)
	if !ok {
		return Breakdown{}, ErrUnknownModel
	}

	actual := float64(inputTokens)*entry.InputPerMTok +
		float64(outputTokens)*entry.OutputPerMTok +
		float64(cacheWriteTokens)*entry.CacheWritePerMTok +
		float64(cacheReadTokens)*entry.CacheReadPerMTok

	baseline := float64(inputTokens+cacheWriteTokens+cacheReadTokens)*entry.InputPerMTok +
		float64(outputTokens)*entry.OutputPerMTok

	return Breakdown{
		Cost:             roundHalfUp(actual / 1_000_000),
		CostWithoutCache: roundHalfUp(baseline / 1_000_000),
	}, nil
}

// EstimateCost prices a request before execution, for budget admission.
// Estimated input tokens are billed at the input rate and the output bound
// at the output rate; the estimate is reconciled against the actual cost
// once the invocation completes.
func (c *Catalog) EstimateCost(modelID string, estimatedInputTokens, maxOutputTokens int) (float64, error) {
	breakdown, err := c.ComputeCost(modelID, estimatedInputTokens, maxOutputTokens, 0, 0, true)
	if err != nil {
		return 0, err
	}
	return breakdown.Cost, nil
}

// roundHalfUp rounds to the ledger's currency precision, halves away
// from zero so 0.00005 becomes 0.0001.
func roundHalfUp(v float64) float64 {
	return math.Floor(v*precision+0.5) / precision
}
