// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package metering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rentstack/platform/metering/cost"
	"rentstack/platform/metering/governance"
	"rentstack/platform/metering/ledger"
	"rentstack/platform/metering/llm"
	"rentstack/platform/metering/quota"
	"rentstack/platform/shared/logger"
)

var (
	// ErrInvalidInvoke is returned for requests missing required fields
	ErrInvalidInvoke = errors.New("invalid invoke request")

	// ErrProviderNotConfigured is returned when no LLM provider is wired
	ErrProviderNotConfigured = errors.New("llm provider not configured")
)

const (
	// appendAttempts bounds the ledger write retry loop
	appendAttempts = 3

	// appendBackoff is the initial retry delay, doubled per attempt
	appendBackoff = 100 * time.Millisecond
)

// Service orchestrates one AI invocation end to end: authorize, dispatch,
// account, settle.
type Service struct {
	snapshot *governance.Snapshot
	store    governance.Store
	repo     ledger.Repository
	enforcer *quota.Enforcer
	catalog  *cost.Catalog
	provider llm.Provider
	log      *logger.Logger
	now      func() time.Time
	sleep    func(time.Duration)
}

// NewService wires the invocation orchestrator. provider may be nil in
// degraded deployments; Invoke then fails before dispatch.
func NewService(snapshot *governance.Snapshot, store governance.Store, repo ledger.Repository,
	enforcer *quota.Enforcer, catalog *cost.Catalog, provider llm.Provider) *Service {
	return &Service{
		snapshot: snapshot,
		store:    store,
		repo:     repo,
		enforcer: enforcer,
		catalog:  catalog,
		provider: provider,
		log:      logger.New("metering"),
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// InvokeRequest is one AI invocation attempt on behalf of a user.
type InvokeRequest struct {
	UserID       string `json:"user_id"`
	Tier         string `json:"tier"`
	FeatureKey   string `json:"feature_key"`
	Prompt       string `json:"prompt"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	Model        string `json:"model,omitempty"`
}

// InvokeResult is the outcome of an invocation. Rejected results carry the
// quota denial; successful results carry the content and its cost accounting.
type InvokeResult struct {
	Rejected       bool             `json:"rejected"`
	Reason         quota.DenyReason `json:"reason,omitempty"`
	Window         string           `json:"window,omitempty"`
	Warning        quota.WarnCode   `json:"warning,omitempty"`
	Content        string           `json:"content,omitempty"`
	Model          string           `json:"model,omitempty"`
	Usage          llm.TokenUsage   `json:"usage"`
	Cost           float64          `json:"cost"`
	Savings        float64          `json:"savings"`
	SavingsPercent int              `json:"savings_percent"`
	ResponseTimeMs int64            `json:"response_time_ms"`
}

// Invoke runs the full invocation lifecycle. A quota denial returns a
// rejected result with no ledger write and no provider call. After dispatch
// a usage record is always appended, with zero cost components on failure.
func (s *Service) Invoke(ctx context.Context, req InvokeRequest) (*InvokeResult, error) {
	if req.UserID == "" || req.FeatureKey == "" || req.Prompt == "" {
		return nil, ErrInvalidInvoke
	}
	if s.provider == nil {
		return nil, ErrProviderNotConfigured
	}

	estimated := estimateTokens(req.Prompt) + estimateTokens(req.SystemPrompt)
	decision, err := s.enforcer.Authorize(ctx, req.UserID, req.Tier, req.FeatureKey, estimated)
	if err != nil {
		return nil, fmt.Errorf("authorization failed: %w", err)
	}
	if !decision.Allowed {
		promInvocationsTotal.WithLabelValues("rejected").Inc()
		return &InvokeResult{
			Rejected: true,
			Reason:   decision.Reason,
			Window:   decision.Window,
		}, nil
	}

	view, err := s.snapshot.Get(ctx)
	if view == nil {
		// authorized but the config vanished; return the reservation
		if relErr := s.enforcer.Release(context.WithoutCancel(ctx), decision.ReservedCost); relErr != nil {
			s.log.Error(req.UserID, "", "failed to release reservation", map[string]interface{}{
				"error": relErr.Error(),
			})
		}
		return nil, fmt.Errorf("governance unavailable: %w", err)
	}
	settings := view.Settings
	feature := view.Feature(req.FeatureKey)

	model := req.Model
	if model == "" && feature != nil {
		model = feature.PreferredModel
	}
	if model == "" {
		model = settings.DefaultModel
	}
	maxTokens := 0
	if feature != nil {
		maxTokens = feature.MaxTokens
	}

	start := s.now()
	resp, provErr := s.provider.Complete(ctx, llm.CompletionRequest{
		Prompt:        req.Prompt,
		SystemPrompt:  req.SystemPrompt,
		Model:         model,
		MaxTokens:     maxTokens,
		EnableCaching: settings.EnablePromptCaching,
	})
	responseTime := s.now().Sub(start).Milliseconds()

	record := &ledger.UsageRecord{
		Timestamp:      start.UTC(),
		UserID:         req.UserID,
		FeatureKey:     req.FeatureKey,
		ModelID:        model,
		Success:        provErr == nil,
		ResponseTimeMs: responseTime,
	}

	result := &InvokeResult{
		Model:          model,
		Warning:        decision.Warning,
		ResponseTimeMs: responseTime,
	}

	if provErr == nil {
		promProviderCalls.WithLabelValues(s.provider.Name(), "success").Inc()
		if resp.Model != "" {
			record.ModelID = resp.Model
			result.Model = resp.Model
		}
		record.InputTokens = resp.Usage.InputTokens
		record.OutputTokens = resp.Usage.OutputTokens
		record.CacheWriteTokens = resp.Usage.CacheWriteTokens
		record.CacheReadTokens = resp.Usage.CacheReadTokens

		breakdown, costErr := s.catalog.ComputeCost(record.ModelID,
			record.InputTokens, record.OutputTokens,
			record.CacheWriteTokens, record.CacheReadTokens,
			settings.EnablePromptCaching)
		if costErr != nil {
			// unknown model pricing: account the record at zero rather
			// than losing it
			s.log.Warn(req.UserID, "", "cost computation failed", map[string]interface{}{
				"model": record.ModelID,
				"error": costErr.Error(),
			})
		} else {
			record.Cost = breakdown.Cost
			record.CostWithoutCache = breakdown.CostWithoutCache
		}

		result.Content = resp.Content
		result.Usage = resp.Usage
		result.Cost = record.Cost
		result.Savings = breakdown.Savings()
		if record.CostWithoutCache > 0 {
			result.SavingsPercent = int(result.Savings/record.CostWithoutCache*100 + 0.5)
		}
	} else {
		promProviderCalls.WithLabelValues(s.provider.Name(), "error").Inc()
	}

	// the append and the settlement run detached from the request context:
	// a caller disconnect mid-dispatch must not drop the record or strand
	// the reservation
	acctCtx := context.WithoutCancel(ctx)
	s.appendWithRetry(acctCtx, record)

	// settle the reservation to the actual cost
	delta := record.Cost - decision.ReservedCost
	if err := s.repo.SettleBudget(acctCtx, ledger.MonthStart(start), delta); err != nil {
		s.log.Error(req.UserID, "", "failed to settle budget reservation", map[string]interface{}{
			"delta": delta,
			"error": err.Error(),
		})
	}

	if provErr != nil {
		promInvocationsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("provider dispatch failed: %w", provErr)
	}
	promInvocationsTotal.WithLabelValues("completed").Inc()
	return result, nil
}

// CheckAPIStatus probes the provider and persists the outcome on the
// governance settings. Admin-triggered.
func (s *Service) CheckAPIStatus(ctx context.Context) (*llm.HealthCheckResult, error) {
	if s.provider == nil {
		return nil, ErrProviderNotConfigured
	}

	result, err := s.provider.HealthCheck(ctx)
	status := llm.HealthStatusUnknown
	if result != nil {
		status = result.Status
	}
	if storeErr := s.store.SetAPIStatus(ctx, string(status), s.now()); storeErr != nil {
		s.log.Error("", "", "failed to persist api status", map[string]interface{}{
			"status": string(status),
			"error":  storeErr.Error(),
		})
	}
	s.snapshot.Invalidate()

	if result == nil && err != nil {
		return nil, err
	}
	return result, nil
}

// appendWithRetry writes the usage record, retrying with exponential backoff.
// Accounting records are never silently dropped: exhausting the retries
// raises the alert counter and logs at ERROR.
func (s *Service) appendWithRetry(ctx context.Context, record *ledger.UsageRecord) {
	delay := appendBackoff
	var lastErr error
	for attempt := 1; attempt <= appendAttempts; attempt++ {
		lastErr = s.repo.Append(ctx, record)
		if lastErr == nil {
			return
		}
		if errors.Is(lastErr, ledger.ErrInvalidRecord) {
			break
		}
		if attempt < appendAttempts {
			s.sleep(delay)
			delay *= 2
		}
	}

	promLedgerWriteFailures.Inc()
	s.log.Error(record.UserID, record.ID, "usage record write failed after retries", map[string]interface{}{
		"feature_key": record.FeatureKey,
		"model_id":    record.ModelID,
		"cost":        record.Cost,
		"error":       lastErr.Error(),
	})
}

// estimateTokens approximates token count from text length. Four characters
// per token tracks Claude tokenization closely enough for admission control.
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return len(s)/4 + 1
}
