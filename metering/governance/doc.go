// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

// Package governance holds the admin-controlled switchboard for AI usage:
// global settings (master switch, default model, monthly budget, rate limits)
// and per-feature configuration (enablement, preferred model, tier gating).
// Reads on the invocation hot path go through a cached Snapshot that refreshes
// on a bounded interval and on explicit invalidation after admin writes.
package governance
