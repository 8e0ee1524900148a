// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package llm

import (
	"context"
)

// Provider is the unified interface for LLM providers. Implementations must
// be safe for concurrent use.
type Provider interface {
	// Name returns the unique identifier for this provider instance.
	// This is used for routing, logging, and metrics.
	Name() string

	// Complete generates a completion for the given request.
	// The context should be used for cancellation and timeout; the
	// response carries token usage even when truncated.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// HealthCheck verifies the provider is operational with a minimal
	// probe request. It should complete within a short timeout.
	HealthCheck(ctx context.Context) (*HealthCheckResult, error)
}
