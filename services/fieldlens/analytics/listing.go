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

	"github.com/shopspring/decimal"

	"github.com/AleutianAI/FieldLens/services/fieldlens/scrub"
)

// DefaultSearchLimit caps the summaries shown by SearchSummaries.
const DefaultSearchLimit = 50

// AssignedTechnician is a technician on a job's appointments.
type AssignedTechnician struct {
	TechnicianID int64  `json:"technician_id"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	Original     bool   `json:"original"`
}

// Label renders "Name (Role)", with " (Original)" for the original
// technician.
func (a AssignedTechnician) Label() string {
	s := a.Name + " (" + a.Role + ")"
	if a.Original {
		s += " (Original)"
	}
	return s
}

// TypedJob is one job in a job-type listing.
type TypedJob struct {
	Job         scrub.Job            `json:"-"`
	JobType     string               `json:"job_type"`
	Technicians []AssignedTechnician `json:"technicians"`
}

// TechnicianCount is the number of listed jobs a technician worked.
type TechnicianCount struct {
	Name string `json:"name"`
	Jobs int    `json:"jobs"`
}

// TypeListing is the job-type listing.
type TypeListing struct {
	Items         []TypedJob        `json:"items"`
	TotalJobs     int               `json:"total_jobs"`
	TotalRevenue  decimal.Decimal   `json:"total_revenue"`
	NoChargeCount int               `json:"no_charge_count"`
	ByTechnician  []TechnicianCount `json:"technician_summary"`
}

// TypeListingOptions filters JobsByType.
type TypeListingOptions struct {
	// TypeIDs keeps jobs of any of these types. Empty keeps every type.
	TypeIDs map[int64]bool

	// Status keeps jobs in that status, case-insensitively, when non-empty.
	Status string

	// TechnicianID keeps jobs where that technician is the primary or any
	// assigned technician.
	TechnicianID int64
}

// AssignedTechnicians maps job id to the technicians on its appointments,
// deduplicated by technician and role, in appointment order.
func AssignedTechnicians(appts []scrub.Appointment, techs Names) map[int64][]AssignedTechnician {
	type key struct {
		id   int64
		role string
	}
	sorted, _ := activeAppointments(appts)
	seen := make(map[int64]map[key]bool)
	out := make(map[int64][]AssignedTechnician)
	for _, a := range sorted {
		jid, ok := a.JobID()
		if !ok {
			continue
		}
		if seen[jid] == nil {
			seen[jid] = make(map[key]bool)
		}
		for _, as := range a.Assigned() {
			k := key{as.TechnicianID(), as.Role()}
			if seen[jid][k] {
				continue
			}
			seen[jid][k] = true
			out[jid] = append(out[jid], AssignedTechnician{
				TechnicianID: as.TechnicianID(),
				Name:         nameOr(techs, as.TechnicianID(), "Tech "+itoa(as.TechnicianID())),
				Role:         as.Role(),
				Original:     as.IsOriginal(),
			})
		}
	}
	return out
}

// JobsByType lists jobs of the selected types with their technicians.
//
// Description:
//
//	Technicians come from appointment assignments. The job's own technician
//	is inserted first as primary when no appointment lists it. Items are
//	sorted by completion time, then job id. The technician summary counts
//	each technician once per job and is sorted by jobs descending, then
//	name.
func JobsByType(jobs []scrub.Job, appts []scrub.Appointment, techs, types Names, opts TypeListingOptions) TypeListing {
	assigned := AssignedTechnicians(appts, techs)
	out := TypeListing{TotalRevenue: decimal.Zero}
	counts := make(map[string]int)

	sorted := append([]scrub.Job(nil), jobs...)
	sortByCompletion(sorted)
	for _, j := range sorted {
		tid, ok := j.JobTypeID()
		if len(opts.TypeIDs) > 0 && (!ok || !opts.TypeIDs[tid]) {
			continue
		}
		if opts.Status != "" && !strings.EqualFold(j.Status(), opts.Status) {
			continue
		}
		list := withPrimary(j, assigned[j.ID()], techs)
		if opts.TechnicianID != 0 && !listsTechnician(list, opts.TechnicianID) {
			continue
		}

		item := TypedJob{Job: j, JobType: Placeholder, Technicians: list}
		if ok {
			item.JobType = nameOr(types, tid, Placeholder)
		}
		out.Items = append(out.Items, item)
		out.TotalJobs++
		out.TotalRevenue = out.TotalRevenue.Add(j.Total())
		if j.NoCharge() {
			out.NoChargeCount++
		}
		once := make(map[int64]bool)
		for _, a := range list {
			if !once[a.TechnicianID] {
				once[a.TechnicianID] = true
				counts[a.Name]++
			}
		}
	}

	for name, n := range counts {
		out.ByTechnician = append(out.ByTechnician, TechnicianCount{Name: name, Jobs: n})
	}
	sort.Slice(out.ByTechnician, func(i, k int) bool {
		a, b := out.ByTechnician[i], out.ByTechnician[k]
		if a.Jobs != b.Jobs {
			return a.Jobs > b.Jobs
		}
		return a.Name < b.Name
	})
	return out
}

func withPrimary(j scrub.Job, list []AssignedTechnician, techs Names) []AssignedTechnician {
	tid, ok := j.TechnicianID()
	if !ok || listsTechnician(list, tid) {
		return list
	}
	primary := AssignedTechnician{
		TechnicianID: tid,
		Name:         nameOr(techs, tid, "Tech "+itoa(tid)),
		Role:         scrub.RolePrimary,
	}
	return append([]AssignedTechnician{primary}, list...)
}

func listsTechnician(list []AssignedTechnician, id int64) bool {
	for _, a := range list {
		if a.TechnicianID == id {
			return true
		}
	}
	return false
}

// TaggedJob is one job in a tag listing.
type TaggedJob struct {
	Job        scrub.Job `json:"-"`
	JobType    string    `json:"job_type"`
	Technician string    `json:"technician"`

	// Matched are the requested tags on the job; Others are the rest.
	Matched []string `json:"matched"`
	Others  []string `json:"others,omitempty"`
}

// TagListing is the tag listing.
type TagListing struct {
	Items []TaggedJob `json:"items"`
	Total int         `json:"total"`
}

// JobsByTag lists jobs carrying any of tagIDs, sorted by completion time.
// A non-zero technicianID keeps only that technician's jobs.
func JobsByTag(jobs []scrub.Job, tagIDs []int64, technicianID int64, techs, types, tags Names) TagListing {
	want := make(map[int64]bool, len(tagIDs))
	for _, id := range tagIDs {
		want[id] = true
	}
	sorted := append([]scrub.Job(nil), jobs...)
	sortByCompletion(sorted)

	var out TagListing
	for _, j := range sorted {
		if technicianID != 0 {
			if tid, ok := j.TechnicianID(); !ok || tid != technicianID {
				continue
			}
		}
		item := TaggedJob{Job: j, JobType: Placeholder, Technician: Unassigned}
		for _, id := range j.TagTypeIDs() {
			name := nameOr(tags, id, "Tag "+itoa(id))
			if want[id] {
				item.Matched = append(item.Matched, name)
			} else {
				item.Others = append(item.Others, name)
			}
		}
		if len(item.Matched) == 0 {
			continue
		}
		if tid, ok := j.JobTypeID(); ok {
			item.JobType = nameOr(types, tid, Placeholder)
		}
		if tid, ok := j.TechnicianID(); ok {
			item.Technician = nameOr(techs, tid, Unassigned)
		}
		out.Items = append(out.Items, item)
	}
	out.Total = len(out.Items)
	return out
}

// SearchOptions filters SearchSummaries.
type SearchOptions struct {
	Text         string
	TechnicianID int64
	TypeIDs      map[int64]bool

	// Limit caps Matches. Zero uses DefaultSearchLimit.
	Limit int
}

// SummarySearch holds matching summaries. Total counts every match; Matches
// holds at most the limit.
type SummarySearch struct {
	Matches []scrub.SensitiveSummary `json:"matches"`
	Total   int                      `json:"total"`
	Warning string                   `json:"warning"`
}

// SearchSummaries matches summary text case-insensitively.
//
// Description:
//
//	Matches are sorted by completion time, then job id. The result always
//	carries scrub.SummaryWarning.
func SearchSummaries(summaries []scrub.SensitiveSummary, opts SearchOptions) SummarySearch {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	var matches []scrub.SensitiveSummary
	for _, s := range summaries {
		j := s.Job()
		if opts.TechnicianID != 0 {
			if tid, ok := j.TechnicianID(); !ok || tid != opts.TechnicianID {
				continue
			}
		}
		if len(opts.TypeIDs) > 0 {
			if tid, ok := j.JobTypeID(); !ok || !opts.TypeIDs[tid] {
				continue
			}
		}
		if s.Empty() || !s.Contains(opts.Text) {
			continue
		}
		matches = append(matches, s)
	}
	sort.Slice(matches, func(i, k int) bool {
		a, b := matches[i].Job(), matches[k].Job()
		if !a.CompletedOn().Equal(b.CompletedOn()) {
			return a.CompletedOn().Before(b.CompletedOn())
		}
		return a.ID() < b.ID()
	})
	out := SummarySearch{Total: len(matches), Warning: scrub.SummaryWarning}
	if len(matches) > limit {
		matches = matches[:limit]
	}
	out.Matches = matches
	return out
}
