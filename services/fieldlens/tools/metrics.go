// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Tool Invocations
// =============================================================================

var (
	// invocationsTotal counts invocations by tool and outcome.
	// Labels: tool, outcome (ok, validation, not_found, ambiguous, auth, rate_limit, transient, ...)
	invocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldlens",
		Subsystem: "tools",
		Name:      "invocations_total",
		Help:      "Tool invocations by tool and outcome",
	}, []string{"tool", "outcome"})

	// invocationDuration measures end-to-end tool latency.
	// Labels: tool
	invocationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fieldlens",
		Subsystem: "tools",
		Name:      "duration_seconds",
		Help:      "Tool invocation latency",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"tool"})
)

func recordInvocation(tool, outcome string, durationSec float64) {
	invocationsTotal.WithLabelValues(tool, outcome).Inc()
	invocationDuration.WithLabelValues(tool).Observe(durationSec)
}
