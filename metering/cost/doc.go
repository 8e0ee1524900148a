// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

// Package cost provides the model pricing catalog and the cache-aware cost
// calculator for AI usage metering. Pricing is expressed in USD per million
// tokens with separate rates for input, output, cache-write and cache-read
// tokens. The calculator is a pure function: it produces both the actual cost
// of an invocation and the hypothetical cost the same invocation would have
// had without prompt caching, which is the baseline used to report savings.
package cost
