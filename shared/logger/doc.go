// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

/*
Package logger provides structured JSON logging with per-user context
for RentStack services.

# Overview

The logger package provides structured logging that outputs JSON to stdout,
making logs easily consumable by CloudWatch, ELK stack, or other log
aggregation systems.

Each log entry includes:
  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (metering, billing, etc.)
  - Instance ID and container name (for distributed tracing)
  - User ID (for per-user attribution)
  - Request ID (for request correlation)
  - Custom fields

# Usage

Create a logger for your component:

	log := logger.New("metering")

Log messages with user and request context:

	log.Info("user-123", "req-456", "Processing invocation", map[string]interface{}{
	    "feature_key": "listing_description",
	    "model":       "claude-sonnet-4",
	})

Log errors with status codes:

	log.ErrorWithCode("user-123", "req-456", "Invocation failed", 502, err, map[string]interface{}{
	    "endpoint": "/api/v1/invoke",
	})

Log with duration tracking:

	start := time.Now()
	// ... do work ...
	log.InfoWithDuration("user-123", "req-456", "Invocation completed",
	    float64(time.Since(start).Milliseconds()), nil)

# Output Format

Log entries are output as single-line JSON:

	{"timestamp":"2025-01-15T10:30:00.123456789Z","level":"INFO",
	 "component":"metering","instance_id":"i-abc123","container":"metering-xyz",
	 "user_id":"user-123","request_id":"req-456",
	 "message":"Processing invocation","fields":{"feature_key":"listing_description"}}

# Environment Variables

The logger reads these environment variables:

  - INSTANCE_ID: Deployment instance identifier
  - HOSTNAME: Container hostname (auto-detected)

# Thread Safety

Logger instances are safe for concurrent use from multiple goroutines.
*/
package logger
