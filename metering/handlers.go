// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package metering

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"rentstack/platform/metering/cost"
	"rentstack/platform/metering/governance"
	"rentstack/platform/metering/ledger"
	"rentstack/platform/metering/quota"
	"rentstack/platform/metering/stats"
)

// Handler provides the HTTP handlers for the metering APIs
type Handler struct {
	service  *Service
	engine   *stats.Engine
	store    governance.Store
	snapshot *governance.Snapshot
	catalog  *cost.Catalog
	repo     ledger.Repository
}

// NewHandler creates a new metering handler
func NewHandler(service *Service, engine *stats.Engine, store governance.Store,
	snapshot *governance.Snapshot, catalog *cost.Catalog, repo ledger.Repository) *Handler {
	return &Handler{
		service:  service,
		engine:   engine,
		store:    store,
		snapshot: snapshot,
		catalog:  catalog,
		repo:     repo,
	}
}

// RegisterRoutes registers all metering routes with a gorilla/mux router
func (h *Handler) RegisterRoutes(r *mux.Router) {
	// Invocation endpoint
	r.HandleFunc("/api/v1/invoke", h.Invoke).Methods("POST", "OPTIONS")

	// Admin endpoints
	r.HandleFunc("/api/v1/settings", h.GetSettings).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/v1/settings", h.UpdateSettings).Methods("PUT", "OPTIONS")
	r.HandleFunc("/api/v1/settings/api-check", h.CheckAPIStatus).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/v1/features", h.ListFeatures).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/v1/features/{key}", h.UpdateFeature).Methods("PUT", "OPTIONS")

	// Usage reporting endpoints
	r.HandleFunc("/api/v1/usage/overview", h.GetOverview).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/v1/usage/daily", h.GetDailySeries).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/v1/usage/cache-efficiency", h.GetCacheEfficiency).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/v1/usage/records", h.ListUsageRecords).Methods("GET", "OPTIONS")

	// Pricing endpoint
	r.HandleFunc("/api/v1/pricing", h.GetPricing).Methods("GET", "OPTIONS")

	// Health check
	r.HandleFunc("/health", h.Health).Methods("GET")
}

// Invoke handles POST /api/v1/invoke
func (h *Handler) Invoke(w http.ResponseWriter, r *http.Request) {
	h.setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	start := time.Now()
	defer func() {
		promRequestDuration.WithLabelValues("invoke").Observe(float64(time.Since(start).Milliseconds()))
	}()

	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		h.writeError(w, "X-User-ID header is required", http.StatusBadRequest)
		return
	}

	var req InvokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.UserID = userID
	req.Tier = r.Header.Get("X-Subscription-Tier")

	result, err := h.service.Invoke(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInvoke):
			h.writeError(w, "user_id, feature_key and prompt are required", http.StatusBadRequest)
		case errors.Is(err, ErrProviderNotConfigured):
			h.writeError(w, "LLM provider is not configured", http.StatusServiceUnavailable)
		default:
			h.writeError(w, err.Error(), http.StatusBadGateway)
		}
		return
	}

	if result.Rejected {
		h.writeJSON(w, denialStatus(result.Reason), result)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// GetSettings handles GET /api/v1/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	h.setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	settings, err := h.store.GetSettings(r.Context())
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, settings)
}

// UpdateSettings handles PUT /api/v1/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	h.setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	var settings governance.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		h.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.store.UpdateSettings(r.Context(), &settings); err != nil {
		if errors.Is(err, governance.ErrInvalidSettings) {
			h.writeError(w, "Settings failed validation", http.StatusBadRequest)
			return
		}
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.snapshot.Invalidate()

	updated, err := h.store.GetSettings(r.Context())
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

// CheckAPIStatus handles POST /api/v1/settings/api-check
func (h *Handler) CheckAPIStatus(w http.ResponseWriter, r *http.Request) {
	h.setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	result, err := h.service.CheckAPIStatus(r.Context())
	if err != nil && result == nil {
		if errors.Is(err, ErrProviderNotConfigured) {
			h.writeError(w, "LLM provider is not configured", http.StatusServiceUnavailable)
			return
		}
		h.writeError(w, err.Error(), http.StatusBadGateway)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// ListFeatures handles GET /api/v1/features
func (h *Handler) ListFeatures(w http.ResponseWriter, r *http.Request) {
	h.setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	features, err := h.store.ListFeatures(r.Context())
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"features": features,
		"count":    len(features),
	})
}

// UpdateFeature handles PUT /api/v1/features/{key}
func (h *Handler) UpdateFeature(w http.ResponseWriter, r *http.Request) {
	h.setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	key := mux.Vars(r)["key"]

	var feature governance.FeatureConfig
	if err := json.NewDecoder(r.Body).Decode(&feature); err != nil {
		h.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	feature.FeatureKey = key

	if err := h.store.UpsertFeature(r.Context(), &feature); err != nil {
		if errors.Is(err, governance.ErrInvalidSettings) {
			h.writeError(w, "Feature config failed validation", http.StatusBadRequest)
			return
		}
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.snapshot.Invalidate()

	updated, err := h.store.GetFeature(r.Context(), key)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

// GetOverview handles GET /api/v1/usage/overview
func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	h.setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	overview, err := h.engine.MonthlyOverview(r.Context())
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, overview)
}

// GetDailySeries handles GET /api/v1/usage/daily?days=N&dense=
func (h *Handler) GetDailySeries(w http.ResponseWriter, r *http.Request) {
	h.setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	days := parseIntParam(r, "days", 30)
	dense := r.URL.Query().Get("dense") == "true"

	points, err := h.engine.DailySeries(r.Context(), days, dense)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"days":   days,
		"series": points,
	})
}

// GetCacheEfficiency handles GET /api/v1/usage/cache-efficiency?days=N
func (h *Handler) GetCacheEfficiency(w http.ResponseWriter, r *http.Request) {
	h.setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	days := parseIntParam(r, "days", 30)
	efficiency, err := h.engine.CacheEfficiency(r.Context(), days)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, efficiency)
}

// ListUsageRecords handles GET /api/v1/usage/records
func (h *Handler) ListUsageRecords(w http.ResponseWriter, r *http.Request) {
	h.setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	opts := ledger.QueryOptions{
		UserID:     r.URL.Query().Get("user_id"),
		FeatureKey: r.URL.Query().Get("feature_key"),
		Limit:      parseIntParam(r, "limit", 100),
		Offset:     parseIntParam(r, "offset", 0),
	}
	if from := r.URL.Query().Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			h.writeError(w, "Invalid 'from' timestamp, want RFC3339", http.StatusBadRequest)
			return
		}
		opts.From = t
	}
	if to := r.URL.Query().Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			h.writeError(w, "Invalid 'to' timestamp, want RFC3339", http.StatusBadRequest)
			return
		}
		opts.To = t
	}

	records, total, err := h.repo.QueryRange(r.Context(), opts)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []ledger.UsageRecord{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"total":   total,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}

// GetPricing handles GET /api/v1/pricing
func (h *Handler) GetPricing(w http.ResponseWriter, r *http.Request) {
	h.setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	models := h.catalog.ListModels()
	pricing := make(map[string]cost.PricingEntry, len(models))
	for _, model := range models {
		if entry, ok := h.catalog.Lookup(model); ok {
			pricing[model] = entry
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"models": pricing,
		"count":  len(pricing),
	})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := h.repo.Ping(r.Context()); err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, map[string]string{
		"status":  status,
		"service": "metering",
	})
}

// denialStatus maps quota denial reasons onto HTTP status codes
func denialStatus(reason quota.DenyReason) int {
	switch reason {
	case quota.DenyRateLimited:
		return http.StatusTooManyRequests
	case quota.DenyBudgetExhausted:
		return http.StatusPaymentRequired
	default:
		return http.StatusForbidden
	}
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

// setCORSHeaders sets CORS headers on all responses (not just OPTIONS)
func (h *Handler) setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-User-ID, X-Subscription-Tier, Authorization")
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   http.StatusText(status),
		"message": message,
	})
}
