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

// TechnicianJobs is the result of one per-technician fetch branch.
//
// Jobs are attributed to TechnicianID because the branch queried with
// technicianId, regardless of the technician field embedded in each job.
type TechnicianJobs struct {
	TechnicianID int64
	Name         string
	Jobs         []scrub.Job

	// Incomplete is set when the branch failed or timed out. Jobs is then
	// empty and the technician is excluded from rows and totals.
	Incomplete bool
}

// Rollup is one technician's row in a leaderboard.
type Rollup struct {
	TechnicianID int64           `json:"technician_id"`
	Name         string          `json:"name"`
	Jobs         int             `json:"jobs"`
	Billed       int             `json:"billed"`
	NoCharge     int             `json:"no_charge"`
	Revenue      decimal.Decimal `json:"revenue"`
	PerBilled    decimal.Decimal `json:"revenue_per_billed_job"`
}

// Leaderboard ranks technicians by revenue.
type Leaderboard struct {
	Rows []Rollup `json:"rows"`

	// Idle lists technicians whose branch succeeded with no jobs.
	Idle []string `json:"idle,omitempty"`

	// Incomplete lists technicians whose branch failed.
	Incomplete []string `json:"incomplete,omitempty"`

	TotalJobs      int             `json:"total_jobs"`
	TotalBilled    int             `json:"total_billed"`
	TotalNoCharge  int             `json:"total_no_charge"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	TotalPerBilled decimal.Decimal `json:"total_revenue_per_billed_job"`

	Anomalies []apierr.DataIntegrityError `json:"anomalies,omitempty"`
}

// BuildLeaderboard ranks per-technician branches.
//
// Description:
//
//	Each row is SummarizeJobs over the branch's jobs, so a technician's row
//	always equals that technician's single-technician revenue report. Rows
//	are sorted by revenue descending, then job count descending, then
//	technician id ascending.
//
// Inputs:
//   - branches: One entry per technician, in any order.
//
// Outputs:
//   - Leaderboard: Zero-valued when branches is empty.
func BuildLeaderboard(branches []TechnicianJobs) Leaderboard {
	lb := Leaderboard{TotalRevenue: decimal.Zero, TotalPerBilled: decimal.Zero}
	for _, b := range branches {
		if b.Incomplete {
			lb.Incomplete = append(lb.Incomplete, b.Name)
			continue
		}
		if len(b.Jobs) == 0 {
			lb.Idle = append(lb.Idle, b.Name)
			continue
		}
		s := SummarizeJobs(b.Jobs)
		lb.Rows = append(lb.Rows, Rollup{
			TechnicianID: b.TechnicianID,
			Name:         b.Name,
			Jobs:         s.Total,
			Billed:       s.Billed,
			NoCharge:     s.NoCharge,
			Revenue:      s.Revenue,
			PerBilled:    s.RevenuePerBilled,
		})
		lb.TotalJobs += s.Total
		lb.TotalBilled += s.Billed
		lb.TotalNoCharge += s.NoCharge
		lb.TotalRevenue = lb.TotalRevenue.Add(s.Revenue)
		lb.Anomalies = append(lb.Anomalies, s.Anomalies...)
	}
	lb.TotalPerBilled = divN(lb.TotalRevenue, lb.TotalBilled)

	sort.Slice(lb.Rows, func(i, k int) bool {
		a, b := lb.Rows[i], lb.Rows[k]
		if c := a.Revenue.Cmp(b.Revenue); c != 0 {
			return c > 0
		}
		if a.Jobs != b.Jobs {
			return a.Jobs > b.Jobs
		}
		return a.TechnicianID < b.TechnicianID
	})
	sort.Strings(lb.Idle)
	sort.Strings(lb.Incomplete)
	sortAnomalies(lb.Anomalies)
	return lb
}
