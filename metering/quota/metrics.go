// Copyright 2025 RentStack
// SPDX-License-Identifier: BUSL-1.1

package quota

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics
var denialsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rentstack_metering_quota_denials_total",
		Help: "Total number of denied AI invocations by reason",
	},
	[]string{"reason"},
)

func init() {
	prometheus.MustRegister(denialsTotal)
}
