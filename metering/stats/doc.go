// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

// Package stats derives the reporting views from the usage ledger: the
// monthly overview, the daily cost series, and cache efficiency. All reads
// are lock-free and side-effect free; empty windows produce zero values
// rather than errors.
package stats
