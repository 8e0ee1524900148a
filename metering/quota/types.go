// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package quota

// DenyReason identifies which check rejected an invocation.
type DenyReason string

const (
	DenyGloballyDisabled DenyReason = "globally_disabled"
	DenyFeatureDisabled  DenyReason = "feature_disabled"
	DenyTierInsufficient DenyReason = "tier_insufficient"
	DenyRateLimited      DenyReason = "rate_limited"
	DenyBudgetExhausted  DenyReason = "budget_exhausted"
)

// WarnCode annotates an allowed decision with an advisory condition.
type WarnCode string

// WarnBudgetNearLimit is set when monthly spend has crossed the configured
// warning threshold but the budget is not yet exhausted.
const WarnBudgetNearLimit WarnCode = "budget_near_limit"

// Rate window names carried on rate-limited denials.
const (
	WindowHour = "hour"
	WindowDay  = "day"
)

// Decision is the outcome of a quota check. When Allowed, ReservedCost has
// been taken from the monthly budget and must be settled after completion.
type Decision struct {
	Allowed      bool       `json:"allowed"`
	Reason       DenyReason `json:"reason,omitempty"`
	Window       string     `json:"window,omitempty"`
	Warning      WarnCode   `json:"warning,omitempty"`
	BudgetUsed   float64    `json:"budget_used"`
	BudgetLimit  float64    `json:"budget_limit"`
	ReservedCost float64    `json:"reserved_cost,omitempty"`
}

func deny(reason DenyReason) *Decision {
	return &Decision{Allowed: false, Reason: reason}
}
