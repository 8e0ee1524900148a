// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

// Package quota decides whether an AI invocation may proceed. Checks run in a
// fixed order and short-circuit on the first failure: global kill switch,
// feature enablement, subscription tier, hourly and daily rate windows, then
// the monthly budget. Rate windows are advisory and fail open when Redis is
// unreachable; the budget check is hard and reserves the estimated cost
// atomically so concurrent invocations cannot race past the limit.
package quota
