// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	quotaRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldlens",
		Subsystem: "quota",
		Name:      "rejections_total",
		Help:      "Tool invocations rejected by the local quota",
	}, []string{"window"})

	ledgerWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldlens",
		Subsystem: "audit",
		Name:      "ledger_writes_total",
		Help:      "Audit ledger writes by result",
	}, []string{"result"})
)
