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

	"github.com/shopspring/decimal"

	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
)

// Job status values reported by the upstream API.
const (
	JobStatusCompleted = "Completed"
	JobStatusCanceled  = "Canceled"
)

// rawJob is the job allow-list. Fields not declared here are never decoded.
type rawJob struct {
	ID                 int64            `json:"id"`
	JobNumber          string           `json:"jobNumber"`
	JobStatus          string           `json:"jobStatus"`
	CompletedOn        *string          `json:"completedOn"`
	BusinessUnitID     *int64           `json:"businessUnitId"`
	JobTypeID          *int64           `json:"jobTypeId"`
	TechnicianID       *int64           `json:"technicianId"`
	Total              *decimal.Decimal `json:"total"`
	CreatedOn          *string          `json:"createdOn"`
	AppointmentCount   int              `json:"appointmentCount"`
	NoCharge           bool             `json:"noCharge"`
	RecallForID        *int64           `json:"recallForId"`
	InvoiceID          *int64           `json:"invoiceId"`
	TagTypeIDs         []int64          `json:"tagTypeIds"`
	FirstAppointmentID *int64           `json:"firstAppointmentId"`
}

// Job is a scrubbed job record.
//
// Thread Safety: Immutable; safe for concurrent reads.
type Job struct {
	id                 int64
	number             string
	status             string
	completedOn        time.Time
	createdOn          time.Time
	businessUnitID     optionalID
	jobTypeID          optionalID
	technicianID       optionalID
	recallForID        optionalID
	invoiceID          optionalID
	firstAppointmentID optionalID
	total              decimal.Decimal
	noCharge           bool
	appointmentCount   int
	tagTypeIDs         []int64
}

// ScrubJob projects a raw job onto the job allow-list.
//
// Inputs:
//   - raw: One record from jpm/jobs.
//
// Outputs:
//   - Job: The scrubbed job.
//   - error: Wraps ErrMalformed when the record does not decode or has no id.
func ScrubJob(raw json.RawMessage) (Job, error) {
	var r rawJob
	if err := decode("job", raw, &r); err != nil {
		return Job{}, err
	}
	if r.ID == 0 {
		return Job{}, malformedNoID("job")
	}
	j := Job{
		id:                 r.ID,
		number:             r.JobNumber,
		status:             r.JobStatus,
		completedOn:        parseTime(r.CompletedOn),
		createdOn:          parseTime(r.CreatedOn),
		businessUnitID:     newOptionalID(r.BusinessUnitID),
		jobTypeID:          newOptionalID(r.JobTypeID),
		technicianID:       newOptionalID(r.TechnicianID),
		recallForID:        newOptionalID(r.RecallForID),
		invoiceID:          newOptionalID(r.InvoiceID),
		firstAppointmentID: newOptionalID(r.FirstAppointmentID),
		noCharge:           r.NoCharge,
		appointmentCount:   r.AppointmentCount,
		tagTypeIDs:         append([]int64(nil), r.TagTypeIDs...),
	}
	if r.Total != nil {
		j.total = *r.Total
	}
	return j, nil
}

// ScrubJobs scrubs a batch of raw jobs, preserving order.
// Records that fail to scrub are skipped and returned as anomalies.
func ScrubJobs(raws []json.RawMessage) ([]Job, []apierr.DataIntegrityError) {
	return scrubAll(raws, ScrubJob)
}

func (j Job) ID() int64 { return j.id }

// Number returns the job number, falling back to the id.
func (j Job) Number() string {
	if j.number != "" {
		return j.number
	}
	return formatID(j.id)
}

func (j Job) Status() string { return j.status }

// CompletedOn returns the completion timestamp in UTC, or the zero time.
func (j Job) CompletedOn() time.Time { return j.completedOn }

// CreatedOn returns the creation timestamp in UTC, or the zero time.
func (j Job) CreatedOn() time.Time { return j.createdOn }

func (j Job) BusinessUnitID() (int64, bool)     { return j.businessUnitID.get() }
func (j Job) JobTypeID() (int64, bool)          { return j.jobTypeID.get() }
func (j Job) TechnicianID() (int64, bool)       { return j.technicianID.get() }
func (j Job) RecallForID() (int64, bool)        { return j.recallForID.get() }
func (j Job) InvoiceID() (int64, bool)          { return j.invoiceID.get() }
func (j Job) FirstAppointmentID() (int64, bool) { return j.firstAppointmentID.get() }

// IsRecall reports whether the job was booked as a recall of another job.
func (j Job) IsRecall() bool { return j.recallForID.ok }

// Total returns the job revenue. A null upstream total is zero.
func (j Job) Total() decimal.Decimal { return j.total }

func (j Job) NoCharge() bool        { return j.noCharge }
func (j Job) AppointmentCount() int { return j.appointmentCount }

// TagTypeIDs returns a copy of the job's tag ids.
func (j Job) TagTypeIDs() []int64 { return append([]int64(nil), j.tagTypeIDs...) }

// HasTag reports whether the job carries tag id.
func (j Job) HasTag(id int64) bool {
	for _, t := range j.tagTypeIDs {
		if t == id {
			return true
		}
	}
	return false
}
