// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analytics

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
	"github.com/AleutianAI/FieldLens/services/fieldlens/scrub"
)

// StatusCount is the number of jobs in one status.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// JobSummary aggregates a set of jobs.
type JobSummary struct {
	Total    int           `json:"total_jobs"`
	ByStatus []StatusCount `json:"by_status"`
	Billed   int           `json:"billed_jobs"`
	NoCharge int           `json:"no_charge_jobs"`

	// NoChargePct is NoCharge / Total * 100.
	NoChargePct float64 `json:"no_charge_pct"`

	// Revenue is the sum of every job total. No-charge jobs with a non-zero
	// total are included as reported and flagged in Anomalies.
	Revenue decimal.Decimal `json:"revenue"`

	// RevenuePerBilled is Revenue / Billed, or zero with no billed jobs.
	RevenuePerBilled decimal.Decimal `json:"revenue_per_billed_job"`

	Anomalies []apierr.DataIntegrityError `json:"anomalies,omitempty"`
}

// SummarizeJobs computes status counts, revenue and no-charge figures.
//
// Description:
//
//	Status counts are ordered by count descending, then status name.
//	A job with an empty status is counted as "Unknown".
func SummarizeJobs(jobs []scrub.Job) JobSummary {
	s := JobSummary{Revenue: decimal.Zero, RevenuePerBilled: decimal.Zero}
	counts := make(map[string]int)
	for _, j := range jobs {
		s.Total++
		status := j.Status()
		if status == "" {
			status = "Unknown"
		}
		counts[status]++
		s.Revenue = s.Revenue.Add(j.Total())
		if j.NoCharge() {
			s.NoCharge++
			if !j.Total().IsZero() {
				s.Anomalies = append(s.Anomalies, NoChargeAnomaly(j))
			}
		}
	}
	s.Billed = s.Total - s.NoCharge
	s.NoChargePct = pct(s.NoCharge, s.Total)
	s.RevenuePerBilled = divN(s.Revenue, s.Billed)

	for status, n := range counts {
		s.ByStatus = append(s.ByStatus, StatusCount{Status: status, Count: n})
	}
	sort.Slice(s.ByStatus, func(i, k int) bool {
		a, b := s.ByStatus[i], s.ByStatus[k]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Status < b.Status
	})
	sortAnomalies(s.Anomalies)
	return s
}

// NoChargeAnomaly describes a no-charge job that reports revenue.
func NoChargeAnomaly(j scrub.Job) apierr.DataIntegrityError {
	return apierr.DataIntegrityError{
		Kind:     apierr.AnomalyNoChargeRevenue,
		RecordID: j.ID(),
		Detail:   "job is marked no-charge but reports a non-zero total of " + Currency(j.Total()),
	}
}

func sortAnomalies(as []apierr.DataIntegrityError) {
	sort.Slice(as, func(i, k int) bool {
		if as[i].Kind != as[k].Kind {
			return as[i].Kind < as[k].Kind
		}
		return as[i].RecordID < as[k].RecordID
	})
}
