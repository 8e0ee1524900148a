// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

// Package metering is the AI usage metering service: it authorizes AI
// invocations against governance settings and quotas, dispatches them to the
// LLM provider, accounts their cost (including prompt-cache savings) in the
// usage ledger, and serves the admin and reporting HTTP API.
package metering
