// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package metering

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics
var (
	promInvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentstack_metering_invocations_total",
			Help: "Total number of AI invocations by outcome",
		},
		[]string{"status"},
	)
	promProviderCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentstack_metering_provider_calls_total",
			Help: "Total number of LLM provider calls",
		},
		[]string{"provider", "status"},
	)
	promLedgerWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rentstack_metering_ledger_write_failures_total",
			Help: "Usage records that could not be written after retries",
		},
	)
	promRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rentstack_metering_request_duration_milliseconds",
			Help:    "Request duration in milliseconds",
			Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000, 30000},
		},
		[]string{"endpoint"},
	)
)

func init() {
	prometheus.MustRegister(promInvocationsTotal)
	prometheus.MustRegister(promProviderCalls)
	prometheus.MustRegister(promLedgerWriteFailures)
	prometheus.MustRegister(promRequestDuration)
}
