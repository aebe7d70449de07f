// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scrubtest builds scrubbed records for tests.
//
// Builders marshal their fields to upstream-shaped JSON and pass it through
// the real scrub functions, so fixtures are subject to the same allow-list
// as production records. Builders panic on malformed input.
package scrubtest

import (
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/FieldLens/services/fieldlens/scrub"
)

// JobFields describes an upstream job. Zero values are omitted from the JSON.
// Status defaults to Completed.
type JobFields struct {
	ID                 int64
	Number             string
	Status             string
	CompletedOn        string
	CreatedOn          string
	TechnicianID       int64
	JobTypeID          int64
	BusinessUnitID     int64
	RecallForID        int64
	InvoiceID          int64
	FirstAppointmentID int64
	Total              string
	NoCharge           bool
	TagTypeIDs         []int64
	Summary            string
	Extra              map[string]any
}

// Raw returns the upstream JSON for f.
func (f JobFields) Raw() json.RawMessage {
	m := map[string]any{"id": f.ID}
	status := f.Status
	if status == "" {
		status = scrub.JobStatusCompleted
	}
	m["jobStatus"] = status
	putString(m, "jobNumber", f.Number)
	putString(m, "completedOn", f.CompletedOn)
	putString(m, "createdOn", f.CreatedOn)
	putID(m, "technicianId", f.TechnicianID)
	putID(m, "jobTypeId", f.JobTypeID)
	putID(m, "businessUnitId", f.BusinessUnitID)
	putID(m, "recallForId", f.RecallForID)
	putID(m, "invoiceId", f.InvoiceID)
	putID(m, "firstAppointmentId", f.FirstAppointmentID)
	if f.Total != "" {
		m["total"] = json.Number(f.Total)
	}
	m["noCharge"] = f.NoCharge
	if len(f.TagTypeIDs) > 0 {
		m["tagTypeIds"] = f.TagTypeIDs
	}
	putString(m, "summary", f.Summary)
	for k, v := range f.Extra {
		m[k] = v
	}
	return marshal(m)
}

// Job scrubs f.
func Job(f JobFields) scrub.Job {
	return must(scrub.ScrubJob(f.Raw()))
}

// Jobs scrubs each of fs.
func Jobs(fs ...JobFields) []scrub.Job {
	out := make([]scrub.Job, 0, len(fs))
	for _, f := range fs {
		out = append(out, Job(f))
	}
	return out
}

// Summary scrubs f keeping its summary text.
func Summary(f JobFields) scrub.SensitiveSummary {
	return must(scrub.ScrubJobSummary(f.Raw()))
}

// TechnicianRaw returns the upstream JSON of an active technician.
func TechnicianRaw(id int64, name string) json.RawMessage {
	return marshal(map[string]any{"id": id, "name": name, "active": true})
}

// Technician scrubs an active technician.
func Technician(id int64, name string) scrub.Technician {
	return must(scrub.ScrubTechnician(TechnicianRaw(id, name)))
}

// ReferenceRaw returns the upstream JSON of an active reference record.
func ReferenceRaw(id int64, name string) json.RawMessage {
	return marshal(map[string]any{"id": id, "name": name, "active": true})
}

// Reference scrubs a reference record.
func Reference(id int64, name string) scrub.Reference {
	return must(scrub.ScrubReference(ReferenceRaw(id, name)))
}

// AssignmentFields describes one assigned technician.
type AssignmentFields struct {
	TechnicianID int64
	Role         string
	IsOriginal   bool
}

// AppointmentFields describes an upstream appointment.
type AppointmentFields struct {
	ID           int64
	JobID        int64
	TechnicianID int64
	Start        string
	End          string
	Status       string
	Assigned     []AssignmentFields
	Extra        map[string]any
}

// Raw returns the upstream JSON for f.
func (f AppointmentFields) Raw() json.RawMessage {
	m := map[string]any{"id": f.ID, "active": true}
	putID(m, "jobId", f.JobID)
	putID(m, "technicianId", f.TechnicianID)
	putString(m, "start", f.Start)
	putString(m, "end", f.End)
	status := f.Status
	if status == "" {
		status = "Done"
	}
	m["status"] = status
	if len(f.Assigned) > 0 {
		var as []map[string]any
		for _, a := range f.Assigned {
			e := map[string]any{"technicianId": a.TechnicianID, "isOriginal": a.IsOriginal}
			putString(e, "role", a.Role)
			as = append(as, e)
		}
		m["assignedTechnicians"] = as
	}
	for k, v := range f.Extra {
		m[k] = v
	}
	return marshal(m)
}

// Appointment scrubs f.
func Appointment(f AppointmentFields) scrub.Appointment {
	return must(scrub.ScrubAppointment(f.Raw()))
}

// ItemFields describes one invoice line. Amounts are decimal strings.
type ItemFields struct {
	Price   string
	Total   string
	SkuName string
	Type    string
}

// InvoiceFields describes an upstream invoice.
type InvoiceFields struct {
	ID             int64
	InvoiceDate    string
	SubTotal       string
	Total          string
	JobID          int64
	JobNumber      string
	JobType        string
	BusinessUnitID int64
	BusinessUnit   string
	Items          []ItemFields
	Extra          map[string]any
}

// Raw returns the upstream JSON for f.
func (f InvoiceFields) Raw() json.RawMessage {
	m := map[string]any{"id": f.ID}
	putString(m, "invoiceDate", f.InvoiceDate)
	if f.SubTotal != "" {
		m["subTotal"] = json.Number(f.SubTotal)
	}
	if f.Total != "" {
		m["total"] = json.Number(f.Total)
	}
	if f.JobID != 0 {
		m["job"] = map[string]any{"id": f.JobID, "number": f.JobNumber, "type": f.JobType}
	}
	if f.BusinessUnitID != 0 {
		m["businessUnit"] = map[string]any{"id": f.BusinessUnitID, "name": f.BusinessUnit}
	}
	var items []map[string]any
	for _, it := range f.Items {
		e := map[string]any{"skuName": it.SkuName, "type": it.Type}
		if it.Price != "" {
			e["price"] = json.Number(it.Price)
		}
		if it.Total != "" {
			e["total"] = json.Number(it.Total)
		}
		items = append(items, e)
	}
	if items != nil {
		m["items"] = items
	}
	for k, v := range f.Extra {
		m[k] = v
	}
	return marshal(m)
}

// Invoice scrubs f.
func Invoice(f InvoiceFields) scrub.Invoice {
	return must(scrub.ScrubInvoice(f.Raw()))
}

func putString(m map[string]any, k, v string) {
	if v != "" {
		m[k] = v
	}
}

func putID(m map[string]any, k string, v int64) {
	if v != 0 {
		m[k] = v
	}
}

func marshal(m map[string]any) json.RawMessage {
	b, err := json.Marshal(m)
	if err != nil {
		panic(fmt.Sprintf("scrubtest: marshal: %v", err))
	}
	return b
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(fmt.Sprintf("scrubtest: %v", err))
	}
	return v
}
