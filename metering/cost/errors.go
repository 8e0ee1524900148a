// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package cost

import "errors"

var (
	// ErrUnknownModel is returned when no pricing entry exists for a model
	ErrUnknownModel = errors.New("unknown model")

	// ErrInvalidInput is returned for negative token counts, or for cache
	// token counts supplied while caching is disabled
	ErrInvalidInput = errors.New("invalid input")
)
