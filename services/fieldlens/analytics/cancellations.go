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
	"time"

	"github.com/AleutianAI/FieldLens/services/fieldlens/scrub"
)

// DefaultLateWindow is the notice below which a cancellation is late.
const DefaultLateWindow = 24 * time.Hour

// Unassigned labels jobs without a technician.
const Unassigned = "Unassigned"

// CancellationOptions filters and tunes BuildCancellations.
type CancellationOptions struct {
	// LateWindow is inclusive: a gap exactly equal to it is late.
	// Zero uses DefaultLateWindow.
	LateWindow time.Duration

	// TechnicianID, when non-zero, keeps only that technician's cancellations.
	TechnicianID int64

	// LateOnly keeps only late cancellations.
	LateOnly bool
}

// Cancellation is one canceled job.
type Cancellation struct {
	Job        scrub.Job `json:"-"`
	JobNumber  string    `json:"job_number"`
	JobType    string    `json:"job_type"`
	Technician string    `json:"technician"`
	Tags       []string  `json:"tags,omitempty"`

	CanceledAt time.Time `json:"canceled_at"`

	// ScheduledStart is the earliest appointment start for the job, or zero.
	ScheduledStart time.Time `json:"scheduled_start"`

	// Notice is ScheduledStart - CanceledAt. HasNotice is false when either
	// timestamp is missing. A negative notice means canceled after start.
	Notice    time.Duration `json:"notice_ns"`
	HasNotice bool          `json:"has_notice"`
	Late      bool          `json:"late"`
}

// TechnicianCancels is a per-technician cancellation count.
type TechnicianCancels struct {
	Technician string `json:"technician"`
	Total      int    `json:"total"`
	Late       int    `json:"late"`
}

// Cancellations aggregates canceled jobs against all jobs in the window.
type Cancellations struct {
	Items []Cancellation `json:"items"`

	TotalJobs   int     `json:"total_jobs"`
	Canceled    int     `json:"canceled"`
	LateCount   int     `json:"late"`
	CancelRate  float64 `json:"cancel_rate_pct"`
	LateRate    float64 `json:"late_rate_pct"`
	AvgNoticeHr float64 `json:"avg_notice_hours"`
	HasNotice   bool    `json:"has_notice"`

	ByTechnician []TechnicianCancels `json:"by_technician"`
}

// IsLate classifies a notice against window. Exactly window is late;
// anything negative (canceled after the scheduled start) is late.
func IsLate(notice, window time.Duration) bool {
	return notice <= window
}

// BuildCancellations finds canceled jobs and measures their notice.
//
// Description:
//
//	The notice of a canceled job is its earliest appointment start minus
//	its cancellation time (the job's completedOn). Cancel rate is against
//	every job in the window. Items are sorted by cancellation time, then
//	job id. Per-technician rows are sorted by total descending, then name.
//
// Inputs:
//   - jobs: Every job in the window, any status.
//   - appts: Appointments in the window, used only for start times.
//   - techs, types, tags: Display names.
//   - opts: Filters.
func BuildCancellations(jobs []scrub.Job, appts []scrub.Appointment, techs, types, tags Names, opts CancellationOptions) Cancellations {
	window := opts.LateWindow
	if window == 0 {
		window = DefaultLateWindow
	}
	earliest := EarliestStarts(appts)

	out := Cancellations{TotalJobs: len(jobs)}
	var noticeSum time.Duration
	var noticeN int
	byTech := make(map[string]*TechnicianCancels)

	for _, j := range jobs {
		if j.Status() != scrub.JobStatusCanceled {
			continue
		}
		techID, hasTech := j.TechnicianID()
		if opts.TechnicianID != 0 && (!hasTech || techID != opts.TechnicianID) {
			continue
		}
		c := Cancellation{
			Job:        j,
			JobNumber:  j.Number(),
			JobType:    Placeholder,
			Technician: Unassigned,
			CanceledAt: j.CompletedOn(),
		}
		if tid, ok := j.JobTypeID(); ok {
			c.JobType = nameOr(types, tid, Placeholder)
		}
		if hasTech {
			c.Technician = nameOr(techs, techID, Unassigned)
		}
		c.Tags = tagNames(j, tags)
		if start, ok := earliest[j.ID()]; ok {
			c.ScheduledStart = start
			if !c.CanceledAt.IsZero() {
				c.Notice = start.Sub(c.CanceledAt)
				c.HasNotice = true
				c.Late = IsLate(c.Notice, window)
			}
		}
		if opts.LateOnly && !c.Late {
			continue
		}

		out.Items = append(out.Items, c)
		if c.Late {
			out.LateCount++
		}
		if c.HasNotice {
			noticeSum += c.Notice
			noticeN++
		}
		tc := byTech[c.Technician]
		if tc == nil {
			tc = &TechnicianCancels{Technician: c.Technician}
			byTech[c.Technician] = tc
		}
		tc.Total++
		if c.Late {
			tc.Late++
		}
	}

	out.Canceled = len(out.Items)
	out.CancelRate = pct(out.Canceled, out.TotalJobs)
	out.LateRate = pct(out.LateCount, out.Canceled)
	if noticeN > 0 {
		out.HasNotice = true
		out.AvgNoticeHr = (noticeSum / time.Duration(noticeN)).Hours()
	}

	sort.Slice(out.Items, func(i, k int) bool {
		a, b := out.Items[i], out.Items[k]
		if !a.CanceledAt.Equal(b.CanceledAt) {
			return a.CanceledAt.Before(b.CanceledAt)
		}
		return a.Job.ID() < b.Job.ID()
	})
	for _, tc := range byTech {
		out.ByTechnician = append(out.ByTechnician, *tc)
	}
	sort.Slice(out.ByTechnician, func(i, k int) bool {
		a, b := out.ByTechnician[i], out.ByTechnician[k]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		return a.Technician < b.Technician
	})
	return out
}

// EarliestStarts maps job id to the earliest scheduled start among its
// appointments. Appointments without a job or start are ignored.
func EarliestStarts(appts []scrub.Appointment) map[int64]time.Time {
	out := make(map[int64]time.Time)
	for _, a := range appts {
		jid, ok := a.JobID()
		if !ok || a.Start().IsZero() {
			continue
		}
		if cur, seen := out[jid]; !seen || a.Start().Before(cur) {
			out[jid] = a.Start()
		}
	}
	return out
}

// tagNames returns the names of a job's known tags, in the job's order.
func tagNames(j scrub.Job, tags Names) []string {
	var out []string
	for _, id := range j.TagTypeIDs() {
		if tags == nil {
			break
		}
		if n, ok := tags.Name(id); ok {
			out = append(out, n)
		}
	}
	return out
}
