// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package quota

import (
	"context"
	"fmt"
	"time"

	"rentstack/platform/metering/cost"
	"rentstack/platform/metering/governance"
	"rentstack/platform/metering/ledger"
	"rentstack/platform/shared/logger"
)

// Enforcer applies the quota checks for one invocation attempt.
type Enforcer struct {
	snapshot *governance.Snapshot
	repo     ledger.Repository
	catalog  *cost.Catalog
	counter  WindowCounter
	log      *logger.Logger
	now      func() time.Time
}

// NewEnforcer creates an enforcer. counter may be nil, in which case rate
// windows are counted from the ledger.
func NewEnforcer(snapshot *governance.Snapshot, repo ledger.Repository, catalog *cost.Catalog, counter WindowCounter) *Enforcer {
	if counter == nil {
		counter = NewLedgerCounter(repo)
	}
	return &Enforcer{
		snapshot: snapshot,
		repo:     repo,
		catalog:  catalog,
		counter:  counter,
		log:      logger.New("quota"),
		now:      time.Now,
	}
}

// Authorize runs the checks in order, short-circuiting on the first denial.
// On success the returned decision carries the budget reservation, which the
// caller settles to the actual cost after completion.
func (e *Enforcer) Authorize(ctx context.Context, userID, tier, featureKey string, estimatedTokens int) (*Decision, error) {
	view, err := e.snapshot.Get(ctx)
	if view == nil {
		return nil, fmt.Errorf("governance unavailable: %w", err)
	}
	if err != nil {
		// stale view: enforcement continues on the last known config
		e.log.Warn(userID, "", "serving stale governance view", map[string]interface{}{
			"error": err.Error(),
		})
	}
	settings := view.Settings

	if !settings.IsEnabled {
		return e.denied(DenyGloballyDisabled, ""), nil
	}

	feature := view.Feature(featureKey)
	if feature == nil || !feature.IsEnabled || !settings.FeatureAllowed(featureKey) {
		return e.denied(DenyFeatureDisabled, ""), nil
	}

	if !governance.TierSatisfies(tier, feature.RequiresTier) {
		return e.denied(DenyTierInsufficient, ""), nil
	}

	if denied := e.checkWindow(ctx, userID, WindowHour, time.Hour, settings.RateLimitPerUserHour); denied != nil {
		return denied, nil
	}
	if denied := e.checkWindow(ctx, userID, WindowDay, 24*time.Hour, settings.RateLimitPerUserDay); denied != nil {
		return denied, nil
	}

	model := feature.PreferredModel
	if model == "" {
		model = settings.DefaultModel
	}
	estimate, err := e.catalog.EstimateCost(model, estimatedTokens, feature.MaxTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate cost: %w", err)
	}

	month := ledger.MonthStart(e.now())
	granted, reserved, err := e.repo.ReserveBudget(ctx, month, estimate, settings.MonthlyBudget)
	if err != nil {
		// the budget is a hard limit: without the counter we cannot
		// admit the request
		return nil, fmt.Errorf("budget reservation failed: %w", err)
	}
	if !granted {
		decision := e.denied(DenyBudgetExhausted, "")
		decision.BudgetUsed = reserved
		decision.BudgetLimit = settings.MonthlyBudget
		return decision, nil
	}

	decision := &Decision{
		Allowed:      true,
		BudgetUsed:   reserved,
		BudgetLimit:  settings.MonthlyBudget,
		ReservedCost: estimate,
	}
	if settings.MonthlyBudget > 0 {
		pct := reserved / settings.MonthlyBudget * 100
		if pct >= float64(settings.BudgetWarningThresholdPct) && pct < 100 {
			decision.Warning = WarnBudgetNearLimit
		}
	}
	return decision, nil
}

// Release returns an unused reservation to the budget. Dispatch paths settle
// through the orchestrator instead; this exists for paths that never write a
// ledger record.
func (e *Enforcer) Release(ctx context.Context, reserved float64) error {
	if reserved <= 0 {
		return nil
	}
	return e.repo.SettleBudget(ctx, ledger.MonthStart(e.now()), -reserved)
}

func (e *Enforcer) checkWindow(ctx context.Context, userID, window string, size time.Duration, limit int) *Decision {
	allowed, err := e.counter.Allow(ctx, userID, window, size, limit)
	if err != nil {
		// rate windows are advisory: fail open on counter errors
		e.log.Warn(userID, "", "rate window check failed, failing open", map[string]interface{}{
			"window": window,
			"error":  err.Error(),
		})
		return nil
	}
	if allowed {
		return nil
	}
	decision := e.denied(DenyRateLimited, window)
	return decision
}

func (e *Enforcer) denied(reason DenyReason, window string) *Decision {
	decision := deny(reason)
	decision.Window = window
	denialsTotal.WithLabelValues(string(reason)).Inc()
	return decision
}
