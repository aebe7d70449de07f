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
	"encoding/json"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/FieldLens/services/fieldlens/scrub"
	st "github.com/AleutianAI/FieldLens/services/fieldlens/scrub/scrubtest"
)

// ordered returns in unchanged, or a reversed copy when rev is set.
func ordered[T any](rev bool, in []T) []T {
	if !rev {
		return in
	}
	out := slices.Clone(in)
	slices.Reverse(out)
	return out
}

func jobIDs(jobs []scrub.Job) []int64 {
	ids := make([]int64, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID())
	}
	return ids
}

func mixedJobs() []scrub.Job {
	return st.Jobs(
		st.JobFields{ID: 1, TechnicianID: 42, JobTypeID: 11, Total: "100", CompletedOn: "2024-12-10T10:00:00Z"},
		st.JobFields{ID: 2, TechnicianID: 42, JobTypeID: 11, Total: "150", CompletedOn: "2025-01-10T10:00:00Z"},
		st.JobFields{ID: 3, TechnicianID: 43, JobTypeID: 11, Total: "0", NoCharge: true, CompletedOn: "2025-01-12T10:00:00Z"},
		st.JobFields{ID: 4, TechnicianID: 43, JobTypeID: 12, Total: "150", CompletedOn: "2024-12-11T10:00:00Z"},
		st.JobFields{ID: 5, TechnicianID: 44, JobTypeID: 13, Total: "150", CompletedOn: "2024-12-11T10:00:00Z"},
		st.JobFields{ID: 6, Total: "75", CompletedOn: "2024-12-11T10:00:00Z"},
	)
}

func techBranches(rev bool) []TechnicianJobs {
	byTech := map[int64][]scrub.Job{}
	for _, j := range mixedJobs() {
		if tid, ok := j.TechnicianID(); ok {
			byTech[tid] = append(byTech[tid], j)
		}
	}
	return ordered(rev, []TechnicianJobs{
		{TechnicianID: 42, Name: "Alice", Jobs: ordered(rev, byTech[42])},
		{TechnicianID: 43, Name: "Bob", Jobs: ordered(rev, byTech[43])},
		{TechnicianID: 44, Name: "Carla", Jobs: ordered(rev, byTech[44])},
		{TechnicianID: 45, Name: "Dee"},
		{TechnicianID: 46, Name: "Eve", Incomplete: true},
	})
}

func cancelFixture() ([]scrub.Job, []scrub.Appointment) {
	jobs := st.Jobs(
		st.JobFields{ID: 1, Status: scrub.JobStatusCanceled, CompletedOn: "2025-03-03T10:00:00Z", TechnicianID: 42, JobTypeID: 11},
		st.JobFields{ID: 2, Status: scrub.JobStatusCanceled, CompletedOn: "2025-03-03T10:00:00Z", TechnicianID: 43},
		st.JobFields{ID: 3, Status: scrub.JobStatusCanceled, CompletedOn: "2025-03-05T10:00:00Z", TechnicianID: 43, TagTypeIDs: []int64{6, 5}},
		st.JobFields{ID: 4, CompletedOn: "2025-03-03T10:00:00Z"},
	)
	appts := []scrub.Appointment{
		st.Appointment(st.AppointmentFields{ID: 10, JobID: 1, Start: "2025-03-04T10:00:00Z"}),
		st.Appointment(st.AppointmentFields{ID: 11, JobID: 2, Start: "2025-03-06T10:00:00Z"}),
		st.Appointment(st.AppointmentFields{ID: 12, JobID: 2, Start: "2025-03-04T10:00:01Z"}),
		st.Appointment(st.AppointmentFields{ID: 13, JobID: 3, Start: "2025-03-05T09:00:00Z"}),
	}
	return jobs, appts
}

func discountFixture() ([]scrub.Invoice, []scrub.Job) {
	jobs := st.Jobs(
		st.JobFields{ID: 10, TechnicianID: 42, JobTypeID: 11},
		st.JobFields{ID: 11, TechnicianID: 43},
	)
	invoices := []scrub.Invoice{
		st.Invoice(st.InvoiceFields{ID: 1, InvoiceDate: "2025-03-04T00:00:00Z", SubTotal: "500", Total: "450", JobID: 10,
			Items: []st.ItemFields{{Price: "-30", Total: "-30", SkuName: "Member"}, {Price: "-20", Total: "-20", SkuName: "Coupon"}}}),
		st.Invoice(st.InvoiceFields{ID: 2, InvoiceDate: "2025-03-04T00:00:00Z", SubTotal: "200", Total: "180", JobID: 11,
			Items: []st.ItemFields{{Price: "-20", Total: "-20", SkuName: "Coupon"}}}),
		st.Invoice(st.InvoiceFields{ID: 3, InvoiceDate: "2025-03-01T00:00:00Z", SubTotal: "100", Total: "80", JobID: 999,
			Items: []st.ItemFields{{Price: "-20", Total: "-20", SkuName: "Goodwill"}}}),
	}
	return invoices, jobs
}

func hoursBranches(rev bool) []TechnicianAppointments {
	return ordered(rev, []TechnicianAppointments{
		{TechnicianID: 42, Name: "Alice", Appointments: ordered(rev, scheduleAppointments())},
		{TechnicianID: 43, Name: "Bob", Appointments: ordered(rev, []scrub.Appointment{
			st.Appointment(st.AppointmentFields{ID: 9, Start: "2025-03-03T08:00:00Z", End: "2025-03-03T12:30:00Z"}),
			st.Appointment(st.AppointmentFields{ID: 8, Start: "2025-03-04T08:00:00Z", End: "2025-03-04T08:00:00Z"}),
		})},
		{TechnicianID: 44, Name: "Carla"},
		{TechnicianID: 45, Name: "Dee", Incomplete: true},
	})
}

func TestTransforms_InputOrderIndependent(t *testing.T) {
	start, end := utc("2024-12-01T00:00:00Z"), utc("2025-02-01T00:00:00Z")

	tests := []struct {
		name  string
		build func(rev bool) any
	}{
		{"leaderboard", func(rev bool) any {
			return BuildLeaderboard(techBranches(rev))
		}},
		{"matrix", func(rev bool) any {
			return BuildMatrix(techBranches(rev), typeNames, 0)
		}},
		{"job mix", func(rev bool) any {
			return BuildJobMix(ordered(rev, mixedJobs()), typeNames)
		}},
		{"chains", func(rev bool) any {
			jobs := append(chainJobs(), st.Jobs(
				st.JobFields{ID: 7, TechnicianID: 44, RecallForID: 3, CompletedOn: "2025-03-25T10:00:00Z"},
			)...)
			c := BuildChains(ordered(rev, jobs), ChainOptions{})
			recalls := [][]int64{}
			for _, ch := range c.Chains {
				recalls = append(recalls, jobIDs(ch.Recalls))
			}
			return []any{c, recalls}
		}},
		{"recall list", func(rev bool) any {
			l := BuildRecallList(ordered(rev, chainJobs()), RecallListOptions{})
			ids := []int64{}
			for _, e := range l.Entries {
				ids = append(ids, e.Recall.ID())
			}
			return []any{l, ids}
		}},
		{"recall summary", func(rev bool) any {
			return BuildRecallSummary(ordered(rev, goBackJobs()), ByTechnician(techNames), typeNames, tagSet, AttributeOriginal)
		}},
		{"cancellations", func(rev bool) any {
			jobs, appts := cancelFixture()
			c := BuildCancellations(ordered(rev, jobs), ordered(rev, appts), techNames, typeNames, tagSet, CancellationOptions{})
			ids := []int64{}
			for _, it := range c.Items {
				ids = append(ids, it.Job.ID())
			}
			return []any{c, ids}
		}},
		{"discounts", func(rev bool) any {
			invoices, jobs := discountFixture()
			return BuildDiscounts(ordered(rev, invoices), ordered(rev, jobs), techNames, typeNames, DiscountOptions{})
		}},
		{"trend", func(rev bool) any {
			return BuildTrend(ordered(rev, mixedJobs()), ByJobType(typeNames), start, end, time.UTC)
		}},
		{"hours comparison", func(rev bool) any {
			return BuildHoursComparison(hoursBranches(rev))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forward, err := json.Marshal(tt.build(false))
			require.NoError(t, err)
			backward, err := json.Marshal(tt.build(true))
			require.NoError(t, err)
			assert.JSONEq(t, string(forward), string(backward))
		})
	}
}

func TestTransforms_EmptyInput(t *testing.T) {
	start, end := utc("2025-03-01T00:00:00Z"), utc("2025-03-08T00:00:00Z")

	t.Run("leaderboard", func(t *testing.T) {
		lb := BuildLeaderboard(nil)
		assert.Empty(t, lb.Rows)
		assert.Zero(t, lb.TotalJobs)
		assert.True(t, lb.TotalRevenue.IsZero())
		assert.True(t, lb.TotalPerBilled.IsZero())
	})
	t.Run("matrix", func(t *testing.T) {
		m := BuildMatrix(nil, typeNames, 0)
		assert.Empty(t, m.Rows)
		assert.Empty(t, m.Technicians)
		assert.Empty(t, m.Anomalies)
	})
	t.Run("job mix", func(t *testing.T) {
		mix := BuildJobMix(nil, typeNames)
		assert.Empty(t, mix.Rows)
		assert.Zero(t, mix.TotalJobs)
		assert.True(t, mix.TotalRevenue.IsZero())
		assert.Nil(t, mix.TopByRevenue)
	})
	t.Run("chains", func(t *testing.T) {
		c := BuildChains(nil, ChainOptions{})
		assert.Empty(t, c.Chains)
		assert.Zero(t, c.TotalTruckRolls)
		assert.True(t, c.TotalCost.IsZero())
		assert.True(t, c.AvgRevenue.IsZero())
	})
	t.Run("recall list", func(t *testing.T) {
		l := BuildRecallList(nil, RecallListOptions{})
		assert.Empty(t, l.Entries)
		assert.Zero(t, l.Orphans)
	})
	t.Run("cancellations", func(t *testing.T) {
		c := BuildCancellations(nil, nil, techNames, typeNames, tagSet, CancellationOptions{})
		assert.Empty(t, c.Items)
		assert.Zero(t, c.Canceled)
		assert.Zero(t, c.CancelRate)
		assert.False(t, c.HasNotice)
		assert.Empty(t, c.ByTechnician)
	})
	t.Run("discounts", func(t *testing.T) {
		d := BuildDiscounts(nil, nil, techNames, typeNames, DiscountOptions{})
		assert.Empty(t, d.Items)
		assert.Zero(t, d.Invoices)
		assert.Zero(t, d.DiscountRate)
		assert.True(t, d.TotalDiscount.IsZero())
		assert.True(t, d.AvgDiscount.IsZero())
	})
	t.Run("trend", func(t *testing.T) {
		tr := BuildTrend(nil, ByJobType(typeNames), start, end, time.UTC)
		assert.Empty(t, tr.Rows)
		assert.Zero(t, tr.Total.Jobs)
		assert.True(t, tr.Total.Revenue.IsZero())
		assert.False(t, tr.Total.HasChange)
	})
	t.Run("hours comparison", func(t *testing.T) {
		h := BuildHoursComparison(nil)
		assert.Empty(t, h.Rows)
		assert.Zero(t, h.TotalHours)
		assert.Empty(t, h.Idle)
	})
	t.Run("schedule", func(t *testing.T) {
		s := BuildSchedule(nil, time.UTC)
		assert.Empty(t, s.Days)
		assert.Zero(t, s.Total)
	})
}
