// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

// Package ledger provides the append-only store of completed AI invocation
// records. Append is the only mutation in the steady-state path; records are
// never updated or deleted by normal operation. Each append transactionally
// maintains a per-day rollup used by the aggregation views, and a single
// monthly budget counter row supports atomic reserve semantics so that
// concurrent invocations cannot race past the configured monthly budget.
package ledger
