// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

// Package main is the entry point for the RentStack AI metering service.
//
// The metering service governs every AI-backed feature of the platform:
// - Authorizes invocations against admin settings, tiers, and quotas
// - Dispatches prompts to the LLM provider with prompt caching
// - Accounts cost and cache savings in the append-only usage ledger
// - Serves the admin configuration and usage reporting API
//
// Usage:
//
//	./metering
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8090)
//	DATABASE_URL - PostgreSQL connection string (in-memory dev mode when unset)
//	REDIS_URL - Redis URL for rate windows (optional)
//	ANTHROPIC_API_KEY - Anthropic API key
//	PRICING_CONFIG_FILE - JSON model pricing overrides (optional)
//	CONFIG_FILE - YAML config file (optional)
package main

import (
	"log"

	"rentstack/platform/metering"
)

func main() {
	if err := metering.Run(); err != nil {
		log.Fatalf("metering service failed: %v", err)
	}
}
