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

// MixRow is one job type in a technician's job mix.
type MixRow struct {
	JobTypeID int64           `json:"job_type_id"`
	Name      string          `json:"name"`
	Jobs      int             `json:"jobs"`
	Billed    int             `json:"billed"`
	NoCharge  int             `json:"no_charge"`
	Revenue   decimal.Decimal `json:"revenue"`
	Avg       decimal.Decimal `json:"avg_per_billed_job"`
	PctJobs   float64         `json:"pct_jobs"`
	PctRev    float64         `json:"pct_revenue"`
}

// JobMix is a single technician's breakdown by job type.
type JobMix struct {
	Rows []MixRow `json:"rows"`

	TotalJobs     int             `json:"total_jobs"`
	TotalBilled   int             `json:"total_billed"`
	TotalNoCharge int             `json:"total_no_charge"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	AvgPerBilled  decimal.Decimal `json:"avg_per_billed_job"`

	// TopByVolume and TopByRevenue are nil when Rows is empty.
	TopByVolume  *MixRow `json:"top_by_volume,omitempty"`
	TopByRevenue *MixRow `json:"top_by_revenue,omitempty"`

	Anomalies []apierr.DataIntegrityError `json:"anomalies,omitempty"`
}

// BuildJobMix groups jobs by job type.
//
// Description:
//
//	Revenue follows SummarizeJobs: every job total counts, and no-charge
//	jobs reporting a total are flagged in Anomalies. Totals cover every
//	job, including jobs without a job type, which are not given a row.
//	Rows are sorted by job count descending, then revenue descending, then
//	job type id.
func BuildJobMix(jobs []scrub.Job, types Names) JobMix {
	summary := SummarizeJobs(jobs)
	mix := JobMix{
		TotalJobs:     summary.Total,
		TotalBilled:   summary.Billed,
		TotalNoCharge: summary.NoCharge,
		TotalRevenue:  summary.Revenue,
		AvgPerBilled:  summary.RevenuePerBilled,
		Anomalies:     summary.Anomalies,
	}

	byType := make(map[int64]*MixRow)
	for _, j := range jobs {
		tid, ok := j.JobTypeID()
		if !ok {
			continue
		}
		r := byType[tid]
		if r == nil {
			r = &MixRow{JobTypeID: tid, Name: nameOr(types, tid, "ID "+itoa(tid)), Revenue: decimal.Zero}
			byType[tid] = r
		}
		r.Jobs++
		if j.NoCharge() {
			r.NoCharge++
		} else {
			r.Billed++
		}
		r.Revenue = r.Revenue.Add(j.Total())
	}

	for _, r := range byType {
		r.Avg = divN(r.Revenue, r.Billed)
		r.PctJobs = pct(r.Jobs, mix.TotalJobs)
		if mix.TotalRevenue.IsPositive() {
			r.PctRev = pctDec(r.Revenue, mix.TotalRevenue)
		}
		mix.Rows = append(mix.Rows, *r)
	}
	sort.Slice(mix.Rows, func(i, k int) bool {
		a, b := mix.Rows[i], mix.Rows[k]
		if a.Jobs != b.Jobs {
			return a.Jobs > b.Jobs
		}
		if c := a.Revenue.Cmp(b.Revenue); c != 0 {
			return c > 0
		}
		return a.JobTypeID < b.JobTypeID
	})

	if len(mix.Rows) > 0 {
		vol, rev := mix.Rows[0], mix.Rows[0]
		for _, r := range mix.Rows[1:] {
			if r.Revenue.GreaterThan(rev.Revenue) {
				rev = r
			}
		}
		mix.TopByVolume, mix.TopByRevenue = &vol, &rev
	}
	return mix
}

// MatrixCell is one technician's figures for one job type.
type MatrixCell struct {
	Jobs    int             `json:"jobs"`
	Billed  int             `json:"billed"`
	Revenue decimal.Decimal `json:"revenue"`
	Avg     decimal.Decimal `json:"avg_per_billed_job"`

	// Variance is (Avg - company avg) / company avg * 100. HasVariance is
	// false when the cell or the company has no billed jobs.
	Variance    float64 `json:"variance_pct"`
	HasVariance bool    `json:"has_variance"`
}

// MatrixRow is one job type across technicians.
type MatrixRow struct {
	JobTypeID int64  `json:"job_type_id"`
	Name      string `json:"name"`

	CompanyJobs   int             `json:"company_jobs"`
	CompanyBilled int             `json:"company_billed"`
	CompanyAvg    decimal.Decimal `json:"company_avg"`

	// Cells is keyed by technician id. Technicians without jobs of this
	// type have no entry.
	Cells map[int64]MatrixCell `json:"cells"`
}

// MatrixTechnician is a column of the matrix.
type MatrixTechnician struct {
	TechnicianID int64           `json:"technician_id"`
	Name         string          `json:"name"`
	Revenue      decimal.Decimal `json:"revenue"`
}

// Matrix is the technician by job type comparison.
type Matrix struct {
	Technicians []MatrixTechnician `json:"technicians"`
	Rows        []MatrixRow        `json:"rows"`
	Incomplete  []string           `json:"incomplete,omitempty"`

	Anomalies []apierr.DataIntegrityError `json:"anomalies,omitempty"`
}

// BuildMatrix cross-tabulates per-technician branches by job type.
//
// Inputs:
//   - branches: Per-technician fetch results. Incomplete branches are listed
//     and otherwise ignored.
//   - types: Job type names.
//   - onlyType: When non-zero, restricts the matrix to that job type id.
//
// Outputs:
//   - Matrix: Technicians sorted by revenue descending then id; rows sorted
//     by company job count descending then id. Revenue is the sum of job
//     totals as in SummarizeJobs, so with no type filter a technician's
//     column matches the leaderboard. Jobs without a job type get no row.
func BuildMatrix(branches []TechnicianJobs, types Names, onlyType int64) Matrix {
	var m Matrix
	rows := make(map[int64]*MatrixRow)
	techRevenue := make(map[int64]decimal.Decimal)
	techNames := make(map[int64]string)

	for _, b := range branches {
		if b.Incomplete {
			m.Incomplete = append(m.Incomplete, b.Name)
			continue
		}
		rev, matched := decimal.Zero, false
		for _, j := range b.Jobs {
			tid, ok := j.JobTypeID()
			if onlyType != 0 && (!ok || tid != onlyType) {
				continue
			}
			rev, matched = rev.Add(j.Total()), true
			if j.NoCharge() && !j.Total().IsZero() {
				m.Anomalies = append(m.Anomalies, NoChargeAnomaly(j))
			}
			if !ok {
				continue
			}
			r := rows[tid]
			if r == nil {
				r = &MatrixRow{
					JobTypeID: tid,
					Name:      nameOr(types, tid, "ID "+itoa(tid)),
					Cells:     make(map[int64]MatrixCell),
				}
				rows[tid] = r
			}
			c, seen := r.Cells[b.TechnicianID]
			if !seen {
				c.Revenue = decimal.Zero
			}
			c.Jobs++
			if !j.NoCharge() {
				c.Billed++
			}
			c.Revenue = c.Revenue.Add(j.Total())
			r.Cells[b.TechnicianID] = c
		}
		if matched {
			techRevenue[b.TechnicianID] = rev
			techNames[b.TechnicianID] = b.Name
		}
	}

	for _, r := range rows {
		coRev := decimal.Zero
		for _, c := range r.Cells {
			r.CompanyJobs += c.Jobs
			r.CompanyBilled += c.Billed
			coRev = coRev.Add(c.Revenue)
		}
		r.CompanyAvg = divN(coRev, r.CompanyBilled)
		for tid, c := range r.Cells {
			c.Avg = divN(c.Revenue, c.Billed)
			if c.Billed > 0 && r.CompanyAvg.IsPositive() {
				c.Variance = pctDec(c.Avg.Sub(r.CompanyAvg), r.CompanyAvg)
				c.HasVariance = true
			}
			r.Cells[tid] = c
		}
		m.Rows = append(m.Rows, *r)
	}
	sort.Slice(m.Rows, func(i, k int) bool {
		if m.Rows[i].CompanyJobs != m.Rows[k].CompanyJobs {
			return m.Rows[i].CompanyJobs > m.Rows[k].CompanyJobs
		}
		return m.Rows[i].JobTypeID < m.Rows[k].JobTypeID
	})

	for tid, rev := range techRevenue {
		m.Technicians = append(m.Technicians, MatrixTechnician{TechnicianID: tid, Name: techNames[tid], Revenue: rev})
	}
	sort.Slice(m.Technicians, func(i, k int) bool {
		a, b := m.Technicians[i], m.Technicians[k]
		if c := a.Revenue.Cmp(b.Revenue); c != 0 {
			return c > 0
		}
		return a.TechnicianID < b.TechnicianID
	})
	sort.Strings(m.Incomplete)
	sortAnomalies(m.Anomalies)
	return m
}
