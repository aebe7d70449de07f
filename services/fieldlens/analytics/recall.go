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
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
	"github.com/AleutianAI/FieldLens/services/fieldlens/scrub"
)

// Attribution selects who a recall is charged to.
type Attribution string

const (
	// AttributeOriginal charges a recall to the original job's technician
	// or group, measuring who caused the rework.
	AttributeOriginal Attribution = "original"

	// AttributeRecall charges a recall to the recall job itself, measuring
	// who did the rework.
	AttributeRecall Attribution = "recall"
)

// ParseAttribution maps a configuration value, defaulting to original.
func ParseAttribution(v string) Attribution {
	if Attribution(strings.ToLower(strings.TrimSpace(v))) == AttributeRecall {
		return AttributeRecall
	}
	return AttributeOriginal
}

// Classification markers matched case-insensitively against names.
const (
	GoBackMarker  = "GO BACK"
	SetTestMarker = "SET TEST"
)

// AverageCompletedRevenue is the revenue of Completed jobs divided by their
// count. It prices a recall visit.
func AverageCompletedRevenue(jobs []scrub.Job) decimal.Decimal {
	total, n := decimal.Zero, 0
	for _, j := range jobs {
		if j.Status() == scrub.JobStatusCompleted {
			total = total.Add(j.Total())
			n++
		}
	}
	return divN(total, n)
}

// DaysBetween returns whole days between a and b, absolute and truncated.
// ok is false when either is the zero time.
func DaysBetween(a, b time.Time) (int, bool) {
	if a.IsZero() || b.IsZero() {
		return 0, false
	}
	d := b.Sub(a)
	if d < 0 {
		d = -d
	}
	return int(d / (24 * time.Hour)), true
}

func orphanAnomaly(recall scrub.Job) apierr.DataIntegrityError {
	return apierr.DataIntegrityError{
		Kind:     apierr.AnomalyOrphanRecall,
		RecordID: recall.ID(),
		Detail:   "original job is outside the fetched window",
	}
}

func indexJobs(jobs []scrub.Job) map[int64]scrub.Job {
	out := make(map[int64]scrub.Job, len(jobs))
	for _, j := range jobs {
		out[j.ID()] = j
	}
	return out
}

// recallRoot is the job a recall ultimately traces back to.
type recallRoot struct {
	ID int64

	// Job is nil when ID is outside the fetched window.
	Job *scrub.Job
}

// rootOf follows recallForId links from j to the earliest job in byID.
// A cycle of recalls resolves to its lowest job id.
func rootOf(j scrub.Job, byID map[int64]scrub.Job) recallRoot {
	path := []int64{j.ID()}
	pos := map[int64]int{j.ID(): 0}
	cur := j
	for {
		orig, ok := cur.RecallForID()
		if !ok {
			c := cur
			return recallRoot{ID: c.ID(), Job: &c}
		}
		if i, seen := pos[orig]; seen {
			root := path[i]
			for _, id := range path[i:] {
				root = min(root, id)
			}
			r := byID[root]
			return recallRoot{ID: root, Job: &r}
		}
		next, found := byID[orig]
		if !found {
			return recallRoot{ID: orig}
		}
		pos[orig] = len(path)
		path = append(path, orig)
		cur = next
	}
}

func sortByCompletion(jobs []scrub.Job) {
	sort.Slice(jobs, func(i, k int) bool {
		a, b := jobs[i].CompletedOn(), jobs[k].CompletedOn()
		if !a.Equal(b) {
			return a.Before(b)
		}
		return jobs[i].ID() < jobs[k].ID()
	})
}

// RecallListOptions filters BuildRecallList.
type RecallListOptions struct {
	// TechnicianID keeps recalls performed by that technician when non-zero.
	TechnicianID int64

	// BusinessUnitIDs keeps recalls in any of these units when non-empty.
	BusinessUnitIDs map[int64]bool
}

// RecallEntry is one recall with its original job when available.
type RecallEntry struct {
	Recall   scrub.Job  `json:"-"`
	Original *scrub.Job `json:"-"`

	// OriginalID is the recallForId of Recall.
	OriginalID int64 `json:"original_id"`

	// DaysLater is the days from the original's completion to the recall's.
	DaysLater int  `json:"days_later"`
	HasDays   bool `json:"has_days"`
}

// Orphaned reports whether the original job is outside the fetched window.
func (e RecallEntry) Orphaned() bool { return e.Original == nil }

// RecallList is the recall listing.
type RecallList struct {
	Entries   []RecallEntry               `json:"entries"`
	Orphans   int                         `json:"orphans"`
	Anomalies []apierr.DataIntegrityError `json:"anomalies,omitempty"`
}

// BuildRecallList lists recall jobs sorted by completion time.
//
// Description:
//
//	A recall is any job with a recallForId. Recalls whose original is not
//	in jobs are kept, marked orphaned and reported as anomalies.
func BuildRecallList(jobs []scrub.Job, opts RecallListOptions) RecallList {
	byID := indexJobs(jobs)
	var recalls []scrub.Job
	for _, j := range jobs {
		if !j.IsRecall() {
			continue
		}
		if opts.TechnicianID != 0 {
			if tid, ok := j.TechnicianID(); !ok || tid != opts.TechnicianID {
				continue
			}
		}
		if len(opts.BusinessUnitIDs) > 0 {
			if bu, ok := j.BusinessUnitID(); !ok || !opts.BusinessUnitIDs[bu] {
				continue
			}
		}
		recalls = append(recalls, j)
	}
	sortByCompletion(recalls)

	var out RecallList
	for _, r := range recalls {
		origID, _ := r.RecallForID()
		e := RecallEntry{Recall: r, OriginalID: origID}
		if orig, ok := byID[origID]; ok {
			o := orig
			e.Original = &o
			e.DaysLater, e.HasDays = DaysBetween(orig.CompletedOn(), r.CompletedOn())
		} else {
			out.Orphans++
			out.Anomalies = append(out.Anomalies, orphanAnomaly(r))
		}
		out.Entries = append(out.Entries, e)
	}
	sortAnomalies(out.Anomalies)
	return out
}

// ChainOptions filters BuildChains.
type ChainOptions struct {
	// MinLength is the minimum number of visits (original plus recalls).
	// Values below 2 are treated as 2.
	MinLength int

	// TechnicianID keeps chains attributed to that technician when non-zero.
	TechnicianID int64

	Attribution Attribution
}

// Chain is an original job and every recall tracing back to it, directly or
// through an earlier recall.
type Chain struct {
	OriginalID int64       `json:"original_id"`
	Original   *scrub.Job  `json:"-"`
	Recalls    []scrub.Job `json:"-"`

	// Length is the number of recalls.
	Length int `json:"length"`

	// TruckRolls is Length + 1.
	TruckRolls int `json:"truck_rolls"`

	// OpportunityCost is Length times the period's average completed revenue.
	OpportunityCost decimal.Decimal `json:"opportunity_cost"`

	// SpanDays covers the original and every recall completion.
	SpanDays int  `json:"span_days"`
	HasSpan  bool `json:"has_span"`

	// TechnicianID is the attributed technician. Zero when unknown, which
	// happens for orphaned chains under original attribution.
	TechnicianID int64 `json:"technician_id"`
}

// Orphaned reports whether the original job is outside the fetched window.
func (c Chain) Orphaned() bool { return c.Original == nil }

// Chains is the callback chain report.
type Chains struct {
	Chains          []Chain                     `json:"chains"`
	AvgRevenue      decimal.Decimal             `json:"avg_revenue_per_completed_job"`
	TotalTruckRolls int                         `json:"total_truck_rolls"`
	TotalCost       decimal.Decimal             `json:"total_opportunity_cost"`
	Orphans         int                         `json:"orphans"`
	Anomalies       []apierr.DataIntegrityError `json:"anomalies,omitempty"`
}

// BuildChains groups recalls into chains rooted at their original job.
//
// Description:
//
//	Each recall is followed through recallForId links to the earliest job
//	in the window, so a recall of a recall joins its root's chain. A chain
//	whose root is outside the window is orphaned. A chain qualifies when 1 + Length is
//	at least MinLength. Under original attribution a chain belongs to the
//	original job's technician; under recall attribution to the technician
//	of its latest recall. Chains are sorted by Length descending, then
//	original id.
func BuildChains(jobs []scrub.Job, opts ChainOptions) Chains {
	minLen := opts.MinLength
	if minLen < 2 {
		minLen = 2
	}
	byID := indexJobs(jobs)
	avg := AverageCompletedRevenue(jobs)

	grouped := make(map[int64][]scrub.Job)
	roots := make(map[int64]recallRoot)
	for _, j := range jobs {
		if !j.IsRecall() {
			continue
		}
		root := rootOf(j, byID)
		if root.ID == j.ID() {
			continue
		}
		grouped[root.ID] = append(grouped[root.ID], j)
		roots[root.ID] = root
	}

	out := Chains{AvgRevenue: avg, TotalCost: decimal.Zero}
	for origID, recalls := range grouped {
		sortByCompletion(recalls)
		c := Chain{OriginalID: origID, Original: roots[origID].Job, Recalls: recalls, Length: len(recalls)}

		if opts.Attribution == AttributeRecall {
			c.TechnicianID, _ = recalls[len(recalls)-1].TechnicianID()
		} else if c.Original != nil {
			c.TechnicianID, _ = c.Original.TechnicianID()
		}
		if opts.TechnicianID != 0 && c.TechnicianID != opts.TechnicianID {
			continue
		}
		if 1+c.Length < minLen {
			continue
		}

		c.TruckRolls = c.Length + 1
		c.OpportunityCost = avg.Mul(decimal.NewFromInt(int64(c.Length)))
		c.SpanDays, c.HasSpan = chainSpan(c)

		if c.Original == nil {
			out.Orphans++
			for _, r := range recalls {
				if direct, _ := r.RecallForID(); direct == origID {
					out.Anomalies = append(out.Anomalies, orphanAnomaly(r))
				}
			}
		}
		out.Chains = append(out.Chains, c)
		out.TotalTruckRolls += c.TruckRolls
		out.TotalCost = out.TotalCost.Add(c.OpportunityCost)
	}

	sort.Slice(out.Chains, func(i, k int) bool {
		if out.Chains[i].Length != out.Chains[k].Length {
			return out.Chains[i].Length > out.Chains[k].Length
		}
		return out.Chains[i].OriginalID < out.Chains[k].OriginalID
	})
	sortAnomalies(out.Anomalies)
	return out
}

func chainSpan(c Chain) (int, bool) {
	var dates []time.Time
	if c.Original != nil && !c.Original.CompletedOn().IsZero() {
		dates = append(dates, c.Original.CompletedOn())
	}
	for _, r := range c.Recalls {
		if !r.CompletedOn().IsZero() {
			dates = append(dates, r.CompletedOn())
		}
	}
	if len(dates) < 2 {
		return 0, false
	}
	sort.Slice(dates, func(i, k int) bool { return dates[i].Before(dates[k]) })
	return DaysBetween(dates[0], dates[len(dates)-1])
}

// RecallGroup is one row of the recall summary.
type RecallGroup struct {
	Group           string          `json:"group"`
	Recalls         int             `json:"recalls"`
	Completed       int             `json:"completed"`
	RatePct         float64         `json:"rate_pct"`
	AvgDays         int             `json:"avg_days_to_recall"`
	HasDays         bool            `json:"has_days"`
	OpportunityCost decimal.Decimal `json:"opportunity_cost"`
}

// GoBackBreakdown classifies every job whose type name contains GO BACK.
type GoBackBreakdown struct {
	// TrueRecalls have a recallForId.
	TrueRecalls int `json:"true_recalls"`

	// SetTests have no recallForId and carry a SET TEST tag.
	SetTests int `json:"set_tests"`

	// Other is every remaining GO BACK job.
	Other int `json:"other"`
	Total int `json:"total"`

	// RecallPct is TrueRecalls over completed jobs.
	RecallPct float64 `json:"recall_pct"`
}

// RecallSummary is the grouped recall report.
type RecallSummary struct {
	Rows           []RecallGroup   `json:"rows"`
	TotalRecalls   int             `json:"total_recalls"`
	TotalCompleted int             `json:"total_completed"`
	AvgRevenue     decimal.Decimal `json:"avg_revenue_per_completed_job"`
	TotalCost      decimal.Decimal `json:"total_opportunity_cost"`
	GoBack         GoBackBreakdown `json:"go_back"`

	// ExactGoBackJobs counts jobs whose type name is exactly GO BACK. It is
	// reported when there are no recalls.
	ExactGoBackJobs int `json:"exact_go_back_jobs"`

	Orphans   int                         `json:"orphans"`
	Anomalies []apierr.DataIntegrityError `json:"anomalies,omitempty"`
}

// BuildRecallSummary computes recall rates per group.
//
// Description:
//
//	The denominator of each group is its Completed jobs. Under original
//	attribution a recall counts toward the group of the earliest job its
//	recallForId links lead to, and recalls whose root is outside the window
//	count toward UnknownGroup; under recall attribution a
//	recall counts toward its own group. Rows are sorted by completed
//	count descending, then group name.
//
// Inputs:
//   - jobs: Every job in the window.
//   - dim: The grouping dimension.
//   - types, tags: Names used for GO BACK and SET TEST classification.
//   - attribution: Who a recall is charged to.
func BuildRecallSummary(jobs []scrub.Job, dim Dimension, types, tags Names, attribution Attribution) RecallSummary {
	byID := indexJobs(jobs)
	avg := AverageCompletedRevenue(jobs)
	out := RecallSummary{AvgRevenue: avg, TotalCost: decimal.Zero}

	completed := make(map[string]int)
	recalls := make(map[string]int)
	days := make(map[string][]int)

	for _, j := range jobs {
		if j.Status() == scrub.JobStatusCompleted {
			completed[dim.Group(j)]++
			out.TotalCompleted++
		}
		if !j.IsRecall() {
			continue
		}
		out.TotalRecalls++
		origID, _ := j.RecallForID()
		orig, found := byID[origID]
		if !found {
			out.Orphans++
			out.Anomalies = append(out.Anomalies, orphanAnomaly(j))
		}

		group := UnknownGroup
		if attribution == AttributeRecall {
			group = dim.Group(j)
		} else if root := rootOf(j, byID); root.Job != nil {
			group = dim.Group(*root.Job)
		}
		recalls[group]++
		if found {
			if d, ok := DaysBetween(orig.CompletedOn(), j.CompletedOn()); ok {
				days[group] = append(days[group], d)
			}
		}
	}

	groups := make(map[string]bool)
	for g := range completed {
		groups[g] = true
	}
	for g := range recalls {
		groups[g] = true
	}
	for g := range groups {
		row := RecallGroup{Group: g, Recalls: recalls[g], Completed: completed[g]}
		row.RatePct = pct(row.Recalls, row.Completed)
		if ds := days[g]; len(ds) > 0 {
			sum := 0
			for _, d := range ds {
				sum += d
			}
			row.AvgDays, row.HasDays = sum/len(ds), true
		}
		row.OpportunityCost = avg.Mul(decimal.NewFromInt(int64(row.Recalls)))
		out.TotalCost = out.TotalCost.Add(row.OpportunityCost)
		out.Rows = append(out.Rows, row)
	}
	sort.Slice(out.Rows, func(i, k int) bool {
		a, b := out.Rows[i], out.Rows[k]
		if a.Completed != b.Completed {
			return a.Completed > b.Completed
		}
		return a.Group < b.Group
	})

	out.GoBack = ClassifyGoBacks(jobs, types, tags)
	out.GoBack.RecallPct = pct(out.GoBack.TrueRecalls, out.TotalCompleted)
	for _, j := range jobs {
		if tid, ok := j.JobTypeID(); ok {
			if nameEquals(types, tid, GoBackMarker) {
				out.ExactGoBackJobs++
			}
		}
	}
	sortAnomalies(out.Anomalies)
	return out
}

// ClassifyGoBacks splits GO BACK jobs into true recalls, set tests and
// other. RecallPct is left zero.
func ClassifyGoBacks(jobs []scrub.Job, types, tags Names) GoBackBreakdown {
	var b GoBackBreakdown
	for _, j := range jobs {
		tid, ok := j.JobTypeID()
		if !ok || !nameContains(types, tid, GoBackMarker) {
			continue
		}
		b.Total++
		switch {
		case j.IsRecall():
			b.TrueRecalls++
		case hasTagContaining(j, tags, SetTestMarker):
			b.SetTests++
		default:
			b.Other++
		}
	}
	return b
}

func nameContains(names Names, id int64, marker string) bool {
	if names == nil {
		return false
	}
	n, ok := names.Name(id)
	return ok && strings.Contains(strings.ToUpper(n), marker)
}

func nameEquals(names Names, id int64, marker string) bool {
	if names == nil {
		return false
	}
	n, ok := names.Name(id)
	return ok && strings.EqualFold(strings.TrimSpace(n), marker)
}

func hasTagContaining(j scrub.Job, tags Names, marker string) bool {
	for _, id := range j.TagTypeIDs() {
		if nameContains(tags, id, marker) {
			return true
		}
	}
	return false
}
