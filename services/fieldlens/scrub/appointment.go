// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scrub

import (
	"encoding/json"
	"time"

	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
)

// AppointmentStatusCanceled is the upstream status of a canceled appointment.
const AppointmentStatusCanceled = "Canceled"

// Assignment roles.
const (
	RolePrimary = "Primary"
	RoleAdded   = "Added"
)

type rawAssignment struct {
	TechnicianID int64  `json:"technicianId"`
	Role         string `json:"role"`
	IsOriginal   bool   `json:"isOriginal"`
}

// rawAppointment is the appointment allow-list. Special instructions,
// customer and location references are not declared.
type rawAppointment struct {
	ID                  int64           `json:"id"`
	AppointmentNumber   string          `json:"appointmentNumber"`
	JobID               *int64          `json:"jobId"`
	TechnicianID        *int64          `json:"technicianId"`
	AssignedTechnicians []rawAssignment `json:"assignedTechnicians"`
	Start               *string         `json:"start"`
	End                 *string         `json:"end"`
	ArrivalWindowStart  *string         `json:"arrivalWindowStart"`
	Status              string          `json:"status"`
	Active              *bool           `json:"active"`
}

// Assignment is one technician assigned to an appointment.
type Assignment struct {
	technicianID int64
	role         string
	isOriginal   bool
}

func (a Assignment) TechnicianID() int64 { return a.technicianID }
func (a Assignment) Role() string        { return a.role }
func (a Assignment) IsOriginal() bool    { return a.isOriginal }

// Appointment is a scrubbed appointment. Start and End are scheduled
// times, never actual clock-in or clock-out.
type Appointment struct {
	id                 int64
	number             string
	jobID              optionalID
	technicianID       optionalID
	assigned           []Assignment
	start              time.Time
	end                time.Time
	arrivalWindowStart time.Time
	status             string
	active             bool
}

// ScrubAppointment projects a raw appointment onto the appointment
// allow-list.
//
// Description:
//
//	Assignment roles default to Primary when the assigned technician is the
//	appointment's own technicianId and Added otherwise. Assignments without
//	a technician id are dropped.
func ScrubAppointment(raw json.RawMessage) (Appointment, error) {
	var r rawAppointment
	if err := decode("appointment", raw, &r); err != nil {
		return Appointment{}, err
	}
	if r.ID == 0 {
		return Appointment{}, malformedNoID("appointment")
	}
	a := Appointment{
		id:                 r.ID,
		number:             r.AppointmentNumber,
		jobID:              newOptionalID(r.JobID),
		technicianID:       newOptionalID(r.TechnicianID),
		start:              parseTime(r.Start),
		end:                parseTime(r.End),
		arrivalWindowStart: parseTime(r.ArrivalWindowStart),
		status:             r.Status,
		active:             r.Active == nil || *r.Active,
	}
	primary, hasPrimary := a.technicianID.get()
	for _, as := range r.AssignedTechnicians {
		if as.TechnicianID == 0 {
			continue
		}
		role := as.Role
		if role == "" {
			role = RoleAdded
			if hasPrimary && as.TechnicianID == primary {
				role = RolePrimary
			}
		}
		a.assigned = append(a.assigned, Assignment{
			technicianID: as.TechnicianID,
			role:         role,
			isOriginal:   as.IsOriginal,
		})
	}
	return a, nil
}

// ScrubAppointments scrubs a batch of raw appointments, preserving order.
// Records that fail to scrub are skipped and returned as anomalies.
func ScrubAppointments(raws []json.RawMessage) ([]Appointment, []apierr.DataIntegrityError) {
	return scrubAll(raws, ScrubAppointment)
}

func (a Appointment) ID() int64                   { return a.id }
func (a Appointment) Number() string              { return a.number }
func (a Appointment) JobID() (int64, bool)        { return a.jobID.get() }
func (a Appointment) TechnicianID() (int64, bool) { return a.technicianID.get() }

// Assigned returns a copy of the appointment's assignments.
func (a Appointment) Assigned() []Assignment { return append([]Assignment(nil), a.assigned...) }

func (a Appointment) Start() time.Time              { return a.start }
func (a Appointment) End() time.Time                { return a.end }
func (a Appointment) ArrivalWindowStart() time.Time { return a.arrivalWindowStart }
func (a Appointment) Status() string                { return a.status }
func (a Appointment) Active() bool                  { return a.active }

// Canceled reports whether the appointment was canceled.
func (a Appointment) Canceled() bool { return a.status == AppointmentStatusCanceled }

// Duration returns the scheduled length. Missing or inverted bounds yield 0.
func (a Appointment) Duration() time.Duration {
	if a.start.IsZero() || a.end.IsZero() || a.end.Before(a.start) {
		return 0
	}
	return a.end.Sub(a.start)
}
