// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for the API Gateway
// =============================================================================

var (
	// requestsTotal counts completed attempts by API module and outcome.
	// Labels: module (jpm, settings, accounting), outcome (ok, auth, rate_limit, transient, upstream)
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldlens",
		Subsystem: "gateway",
		Name:      "requests_total",
		Help:      "Upstream request attempts by API module and outcome",
	}, []string{"module", "outcome"})

	// requestDuration measures single-attempt latency.
	// Labels: module
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fieldlens",
		Subsystem: "gateway",
		Name:      "request_duration_seconds",
		Help:      "Upstream attempt latency",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"module"})

	// retriesTotal counts retries by reason.
	// Labels: reason (network, timeout, server)
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldlens",
		Subsystem: "gateway",
		Name:      "retries_total",
		Help:      "Retries of transient upstream failures by reason",
	}, []string{"reason"})

	// tokenRefreshesTotal counts token exchanges by outcome.
	// Labels: outcome (ok, error)
	tokenRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldlens",
		Subsystem: "gateway",
		Name:      "token_refreshes_total",
		Help:      "OAuth token exchanges by outcome",
	}, []string{"outcome"})

	// truncationsTotal counts paginated fetches that hit the record cap.
	// Labels: resource
	truncationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldlens",
		Subsystem: "gateway",
		Name:      "truncations_total",
		Help:      "Paginated fetches stopped at the record cap",
	}, []string{"resource"})
)

func recordAttempt(module, outcome string, durationSec float64) {
	requestsTotal.WithLabelValues(module, outcome).Inc()
	requestDuration.WithLabelValues(module).Observe(durationSec)
}

func recordRetry(reason string) {
	retriesTotal.WithLabelValues(reason).Inc()
}

func recordTokenRefresh(err error) {
	if err != nil {
		tokenRefreshesTotal.WithLabelValues("error").Inc()
		return
	}
	tokenRefreshesTotal.WithLabelValues("ok").Inc()
}

func recordTruncation(resource string) {
	truncationsTotal.WithLabelValues(resource).Inc()
}
