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

// ScheduleEntry is one scheduled appointment. Times are scheduled, never
// actual clock-in or clock-out.
type ScheduleEntry struct {
	AppointmentID int64         `json:"appointment_id"`
	JobID         int64         `json:"job_id,omitempty"`
	Start         time.Time     `json:"start"`
	End           time.Time     `json:"end"`
	Duration      time.Duration `json:"duration_ns"`
}

// ScheduleDay groups the entries of one calendar day.
type ScheduleDay struct {
	Date    string          `json:"date"`
	Label   string          `json:"label"`
	Hours   time.Duration   `json:"hours_ns"`
	Entries []ScheduleEntry `json:"entries"`
}

// Schedule is one technician's scheduled time.
type Schedule struct {
	Days         []ScheduleDay `json:"days"`
	Appointments int           `json:"appointments"`
	Total        time.Duration `json:"total_ns"`
	FirstStart   time.Time     `json:"first_start"`
	LastEnd      time.Time     `json:"last_end"`

	// Canceled counts appointments excluded for being canceled.
	Canceled int `json:"canceled"`
}

// activeAppointments drops canceled and start-less appointments and sorts
// the rest by start, then id.
func activeAppointments(appts []scrub.Appointment) ([]scrub.Appointment, int) {
	var out []scrub.Appointment
	canceled := 0
	for _, a := range appts {
		if a.Canceled() {
			canceled++
			continue
		}
		if a.Start().IsZero() {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, k int) bool {
		if !out[i].Start().Equal(out[k].Start()) {
			return out[i].Start().Before(out[k].Start())
		}
		return out[i].ID() < out[k].ID()
	})
	return out, canceled
}

// BuildSchedule groups non-canceled appointments by day in loc.
func BuildSchedule(appts []scrub.Appointment, loc *time.Location) Schedule {
	loc = orUTC(loc)
	active, canceled := activeAppointments(appts)
	out := Schedule{Canceled: canceled}

	var day *ScheduleDay
	for _, a := range active {
		local := a.Start().In(loc)
		date := local.Format("2006-01-02")
		if day == nil || day.Date != date {
			out.Days = append(out.Days, ScheduleDay{Date: date, Label: local.Format("Mon Jan 2")})
			day = &out.Days[len(out.Days)-1]
		}
		e := ScheduleEntry{AppointmentID: a.ID(), Start: a.Start(), End: a.End(), Duration: a.Duration()}
		e.JobID, _ = a.JobID()
		day.Entries = append(day.Entries, e)
		day.Hours += e.Duration

		out.Appointments++
		out.Total += e.Duration
		if out.FirstStart.IsZero() {
			out.FirstStart = a.Start()
		}
		if a.End().After(out.LastEnd) {
			out.LastEnd = a.End()
		}
	}
	return out
}

// TechnicianAppointments is the result of one per-technician appointment
// fetch branch.
type TechnicianAppointments struct {
	TechnicianID int64
	Name         string
	Appointments []scrub.Appointment
	Incomplete   bool
}

// TechnicianHours is one row of an hours comparison.
type TechnicianHours struct {
	TechnicianID int64         `json:"technician_id"`
	Name         string        `json:"name"`
	Appointments int           `json:"appointments"`
	Hours        time.Duration `json:"hours_ns"`
	FirstStart   time.Time     `json:"first_start"`
	LastEnd      time.Time     `json:"last_end"`
}

// HoursComparison ranks technicians by scheduled hours.
type HoursComparison struct {
	Rows              []TechnicianHours `json:"rows"`
	Idle              []string          `json:"idle,omitempty"`
	Incomplete        []string          `json:"incomplete,omitempty"`
	TotalAppointments int               `json:"total_appointments"`
	TotalHours        time.Duration     `json:"total_hours_ns"`
}

// BuildHoursComparison totals scheduled hours per technician branch.
//
// Description:
//
//	Canceled appointments are excluded. Rows are sorted by hours
//	descending, then name, then technician id. Failed branches are listed
//	in Incomplete and excluded from totals.
func BuildHoursComparison(branches []TechnicianAppointments) HoursComparison {
	var out HoursComparison
	for _, b := range branches {
		if b.Incomplete {
			out.Incomplete = append(out.Incomplete, b.Name)
			continue
		}
		s := BuildSchedule(b.Appointments, time.UTC)
		if s.Appointments == 0 {
			out.Idle = append(out.Idle, b.Name)
			continue
		}
		out.Rows = append(out.Rows, TechnicianHours{
			TechnicianID: b.TechnicianID,
			Name:         b.Name,
			Appointments: s.Appointments,
			Hours:        s.Total,
			FirstStart:   s.FirstStart,
			LastEnd:      s.LastEnd,
		})
		out.TotalAppointments += s.Appointments
		out.TotalHours += s.Total
	}
	sort.Slice(out.Rows, func(i, k int) bool {
		a, b := out.Rows[i], out.Rows[k]
		if a.Hours != b.Hours {
			return a.Hours > b.Hours
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.TechnicianID < b.TechnicianID
	})
	sort.Strings(out.Idle)
	sort.Strings(out.Incomplete)
	return out
}
