// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package ledger

import "errors"

var (
	// ErrInvalidRecord is returned for records violating write invariants
	ErrInvalidRecord = errors.New("invalid usage record")

	// ErrWriteFailed wraps storage failures on append; callers retry with
	// backoff and escalate rather than dropping the accounting record
	ErrWriteFailed = errors.New("ledger write failed")
)
