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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/FieldLens/services/fieldlens/scrub"
	st "github.com/AleutianAI/FieldLens/services/fieldlens/scrub/scrubtest"
)

func utc(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestMonthsBetween(t *testing.T) {
	months, cross := MonthsBetween(utc("2025-03-01T00:00:00Z"), utc("2025-03-08T00:00:00Z"), time.UTC)
	assert.False(t, cross)
	require.Len(t, months, 1)
	assert.Equal(t, "Mar", months[0].Label)

	months, cross = MonthsBetween(utc("2024-11-15T00:00:00Z"), utc("2025-02-01T00:00:00Z"), time.UTC)
	assert.True(t, cross)
	labels := []string{}
	for _, m := range months {
		labels = append(labels, m.Label)
	}
	assert.Equal(t, []string{"Nov 24", "Dec 24", "Jan 25"}, labels)

	months, _ = MonthsBetween(utc("2025-03-01T00:00:00Z"), utc("2025-03-01T00:00:00Z"), time.UTC)
	assert.Empty(t, months)
}

func TestBuildTrend(t *testing.T) {
	jobs := st.Jobs(
		st.JobFields{ID: 1, JobTypeID: 11, Total: "100", CompletedOn: "2024-12-10T10:00:00Z"},
		st.JobFields{ID: 2, JobTypeID: 11, Total: "150", CompletedOn: "2025-01-10T10:00:00Z"},
		st.JobFields{ID: 3, JobTypeID: 11, Total: "0", NoCharge: true, CompletedOn: "2025-01-12T10:00:00Z"},
		st.JobFields{ID: 4, JobTypeID: 12, Total: "1000", CompletedOn: "2024-12-11T10:00:00Z"},
		st.JobFields{ID: 5, Total: "75", CompletedOn: "2024-12-11T10:00:00Z"},
	)
	tr := BuildTrend(jobs, ByJobType(typeNames), utc("2024-12-01T00:00:00Z"), utc("2025-02-01T00:00:00Z"), time.UTC)

	assert.True(t, tr.CrossYear)
	require.Len(t, tr.Months, 2)
	assert.Equal(t, 1, tr.Ungrouped)
	require.Len(t, tr.Rows, 2)

	assert.Equal(t, int64(12), tr.Rows[0].ID, "sorted by revenue")
	assert.False(t, tr.Rows[0].HasChange, "one month with billed jobs")

	svc := tr.Rows[1]
	assert.Equal(t, "Service", svc.Name)
	assert.Equal(t, 3, svc.Jobs)
	assert.Equal(t, 2, svc.Billed)
	assertDec(t, "125", svc.Avg)
	assertDec(t, "150", svc.Months[1].Avg)
	assert.Equal(t, 2, svc.Months[1].Jobs)
	assert.True(t, svc.HasChange)
	assert.InDelta(t, 50.0, svc.Change, 0.001)

	assertDec(t, "550", tr.Total.Months[0].Avg)
	assert.InDelta(t, -72.727, tr.Total.Change, 0.01)
}

func scheduleAppointments() []scrub.Appointment {
	return []scrub.Appointment{
		st.Appointment(st.AppointmentFields{ID: 3, TechnicianID: 42, Start: "2025-03-04T09:00:00Z", End: "2025-03-04T10:00:00Z"}),
		st.Appointment(st.AppointmentFields{ID: 1, TechnicianID: 42, JobID: 100, Start: "2025-03-03T14:00:00Z", End: "2025-03-03T16:30:00Z"}),
		st.Appointment(st.AppointmentFields{ID: 2, TechnicianID: 42, Start: "2025-03-03T17:00:00Z", End: "2025-03-03T18:00:00Z"}),
		st.Appointment(st.AppointmentFields{ID: 4, TechnicianID: 42, Start: "2025-03-04T12:00:00Z", End: "2025-03-04T13:00:00Z", Status: scrub.AppointmentStatusCanceled}),
	}
}

func TestBuildSchedule(t *testing.T) {
	s := BuildSchedule(scheduleAppointments(), time.UTC)

	require.Len(t, s.Days, 2)
	assert.Equal(t, "Mon Mar 3", s.Days[0].Label)
	assert.Equal(t, "3h 30m", Hours(s.Days[0].Hours))
	require.Len(t, s.Days[0].Entries, 2)
	assert.Equal(t, int64(100), s.Days[0].Entries[0].JobID)
	assert.Equal(t, time.Hour, s.Days[1].Hours)

	assert.Equal(t, 3, s.Appointments)
	assert.Equal(t, 1, s.Canceled)
	assert.Equal(t, 270*time.Minute, s.Total)
	assert.Equal(t, utc("2025-03-03T14:00:00Z"), s.FirstStart)
	assert.Equal(t, utc("2025-03-04T10:00:00Z"), s.LastEnd)
}

func TestBuildSchedule_GroupsDaysInLocation(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	appts := []scrub.Appointment{
		st.Appointment(st.AppointmentFields{ID: 1, Start: "2025-03-03T20:00:00Z", End: "2025-03-03T21:00:00Z"}),
		st.Appointment(st.AppointmentFields{ID: 2, Start: "2025-03-04T03:00:00Z", End: "2025-03-04T04:00:00Z"}),
	}
	s := BuildSchedule(appts, loc)
	require.Len(t, s.Days, 1)
	assert.Equal(t, "2025-03-03", s.Days[0].Date)
}

func TestBuildHoursComparison(t *testing.T) {
	h := BuildHoursComparison([]TechnicianAppointments{
		{TechnicianID: 42, Name: "Alice", Appointments: scheduleAppointments()},
		{TechnicianID: 43, Name: "Bob", Appointments: []scrub.Appointment{
			st.Appointment(st.AppointmentFields{ID: 9, TechnicianID: 43, Start: "2025-03-03T08:00:00Z", End: "2025-03-03T16:00:00Z"}),
		}},
		{TechnicianID: 44, Name: "Carla"},
		{TechnicianID: 45, Name: "Dee", Incomplete: true},
	})

	require.Len(t, h.Rows, 2)
	assert.Equal(t, "Bob", h.Rows[0].Name)
	assert.Equal(t, 8*time.Hour, h.Rows[0].Hours)
	assert.Equal(t, 3, h.Rows[1].Appointments)
	assert.Equal(t, 4, h.TotalAppointments)
	assert.Equal(t, 750*time.Minute, h.TotalHours)
	assert.Equal(t, []string{"Carla"}, h.Idle)
	assert.Equal(t, []string{"Dee"}, h.Incomplete)
}

func TestJobsByType(t *testing.T) {
	jobs := st.Jobs(
		st.JobFields{ID: 1, TechnicianID: 42, JobTypeID: 12, Total: "0", NoCharge: true, CompletedOn: "2025-03-01T10:00:00Z"},
		st.JobFields{ID: 2, TechnicianID: 43, JobTypeID: 12, Total: "120", CompletedOn: "2025-03-02T10:00:00Z"},
		st.JobFields{ID: 3, TechnicianID: 42, JobTypeID: 11, Total: "500", CompletedOn: "2025-03-03T10:00:00Z"},
	)
	appts := []scrub.Appointment{
		st.Appointment(st.AppointmentFields{ID: 10, JobID: 1, TechnicianID: 42, Start: "2025-03-01T08:00:00Z",
			Assigned: []st.AssignmentFields{{TechnicianID: 42, IsOriginal: true}, {TechnicianID: 44}}}),
		st.Appointment(st.AppointmentFields{ID: 11, JobID: 1, TechnicianID: 42, Start: "2025-03-01T09:00:00Z",
			Assigned: []st.AssignmentFields{{TechnicianID: 44}}}),
		st.Appointment(st.AppointmentFields{ID: 12, JobID: 2, TechnicianID: 44, Start: "2025-03-02T08:00:00Z",
			Assigned: []st.AssignmentFields{{TechnicianID: 44}}}),
	}
	types := map[int64]bool{12: true}

	l := JobsByType(jobs, appts, techNames, typeNames, TypeListingOptions{TypeIDs: types})
	require.Len(t, l.Items, 2)
	assert.Equal(t, 2, l.TotalJobs)
	assertDec(t, "120", l.TotalRevenue)
	assert.Equal(t, 1, l.NoChargeCount)

	first := l.Items[0].Technicians
	require.Len(t, first, 2, "deduplicated by technician and role")
	assert.Equal(t, "Alice (Primary) (Original)", first[0].Label())
	assert.Equal(t, "Carla (Added)", first[1].Label())

	second := l.Items[1].Technicians
	require.Len(t, second, 2)
	assert.Equal(t, "Bob", second[0].Name, "job technician inserted first")
	assert.Equal(t, scrub.RolePrimary, second[0].Role)

	assert.Equal(t, []TechnicianCount{{"Carla", 2}, {"Alice", 1}, {"Bob", 1}}, l.ByTechnician)

	assigned := JobsByType(jobs, appts, techNames, typeNames, TypeListingOptions{TypeIDs: types, TechnicianID: 43})
	require.Len(t, assigned.Items, 1)
	assert.Equal(t, int64(2), assigned.Items[0].Job.ID())

	status := JobsByType(jobs, appts, techNames, typeNames, TypeListingOptions{Status: "canceled"})
	assert.Empty(t, status.Items)
}

func TestJobsByTag(t *testing.T) {
	jobs := st.Jobs(
		st.JobFields{ID: 1, TechnicianID: 42, TagTypeIDs: []int64{5, 6}, CompletedOn: "2025-03-01T10:00:00Z"},
		st.JobFields{ID: 2, TechnicianID: 42, TagTypeIDs: []int64{6}},
		st.JobFields{ID: 3, TechnicianID: 43, TagTypeIDs: []int64{5}, CompletedOn: "2025-03-02T10:00:00Z"},
	)
	l := JobsByTag(jobs, []int64{5}, 0, techNames, typeNames, tagSet)
	require.Equal(t, 2, l.Total)
	assert.Equal(t, []string{"SET TEST - Comfort"}, l.Items[0].Matched)
	assert.Equal(t, []string{"Member"}, l.Items[0].Others)
	assert.Equal(t, "Alice", l.Items[0].Technician)

	bob := JobsByTag(jobs, []int64{5}, 43, techNames, typeNames, tagSet)
	require.Len(t, bob.Items, 1)
	assert.Equal(t, int64(3), bob.Items[0].Job.ID())
}

func TestSearchSummaries(t *testing.T) {
	var summaries []scrub.SensitiveSummary
	base := utc("2025-03-01T00:00:00Z")
	for i := 1; i <= 60; i++ {
		summaries = append(summaries, st.Summary(st.JobFields{
			ID:           int64(i),
			TechnicianID: 42 + int64(i%2),
			Summary:      "Replaced CAPACITOR on condenser",
			CompletedOn:  base.Add(time.Duration(61-i) * time.Hour).Format(time.RFC3339),
		}))
	}
	summaries = append(summaries, st.Summary(st.JobFields{ID: 99, Summary: "Filter swap"}))

	s := SearchSummaries(summaries, SearchOptions{Text: "capacitor"})
	assert.Equal(t, 60, s.Total)
	require.Len(t, s.Matches, DefaultSearchLimit)
	assert.Equal(t, int64(60), s.Matches[0].Job().ID(), "sorted by completion")
	assert.Equal(t, scrub.SummaryWarning, s.Warning)

	odd := SearchSummaries(summaries, SearchOptions{Text: "capacitor", TechnicianID: 43, Limit: 5})
	assert.Equal(t, 30, odd.Total)
	assert.Len(t, odd.Matches, 5)

	none := SearchSummaries(summaries, SearchOptions{Text: "compressor"})
	assert.Zero(t, none.Total)
}
