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
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
)

// piiMarkers appear only in fields outside every allow-list.
var piiMarkers = []string{
	"Jane Customer",
	"jane@example.com",
	"555-867-5309",
	"742 Evergreen Terrace",
	"gate code 4471",
	"Springfield",
	"tech-home@example.com",
	"hunter2",
}

const adversarialJob = `{
	"id": 1001,
	"jobNumber": "J-1001",
	"jobStatus": "Completed",
	"completedOn": "2025-03-04T18:30:00.1234567Z",
	"createdOn": "2025-03-01T09:00:00Z",
	"businessUnitId": 7,
	"jobTypeId": 11,
	"technicianId": 42,
	"total": "1234.50",
	"appointmentCount": 2,
	"noCharge": false,
	"recallForId": 900,
	"invoiceId": 5001,
	"tagTypeIds": [3, 4],
	"firstAppointmentId": 7001,
	"customerId": 555,
	"customer": {"name": "Jane Customer", "email": "jane@example.com", "phone": "555-867-5309"},
	"location": {"address": {"street": "742 Evergreen Terrace", "city": "Springfield"}},
	"summary": "Call Jane Customer at 555-867-5309, gate code 4471",
	"customFields": [{"name": "Notes", "value": "742 Evergreen Terrace"}]
}`

func requireNoPII(t *testing.T, v any) {
	t.Helper()
	dump := fmt.Sprintf("%+v %#v", v, v)
	for _, m := range piiMarkers {
		assert.NotContains(t, dump, m)
	}
}

func TestScrubJob_AllowList(t *testing.T) {
	j, err := ScrubJob(json.RawMessage(adversarialJob))
	require.NoError(t, err)

	assert.Equal(t, int64(1001), j.ID())
	assert.Equal(t, "J-1001", j.Number())
	assert.Equal(t, JobStatusCompleted, j.Status())
	assert.Equal(t, time.Date(2025, 3, 4, 18, 30, 0, 123456700, time.UTC), j.CompletedOn())
	assert.Equal(t, "1234.5", j.Total().String())
	assert.Equal(t, 2, j.AppointmentCount())
	assert.Equal(t, []int64{3, 4}, j.TagTypeIDs())
	assert.True(t, j.HasTag(4))
	assert.False(t, j.HasTag(5))
	assert.True(t, j.IsRecall())

	tech, ok := j.TechnicianID()
	assert.True(t, ok)
	assert.Equal(t, int64(42), tech)
	orig, _ := j.RecallForID()
	assert.Equal(t, int64(900), orig)

	requireNoPII(t, j)
}

func TestScrubJob_NullsAndFallbacks(t *testing.T) {
	j, err := ScrubJob(json.RawMessage(`{"id": 5, "jobStatus": "Canceled", "total": null,
		"technicianId": null, "completedOn": "not a date", "recallForId": 0, "jobTypeId": 3}`))
	require.NoError(t, err)

	assert.True(t, j.Total().IsZero())
	_, ok := j.TechnicianID()
	assert.False(t, ok)
	assert.True(t, j.CompletedOn().IsZero())
	assert.False(t, j.IsRecall(), "zero recallForId is not a recall")
	assert.Equal(t, "5", j.Number())

	j, err = ScrubJob(json.RawMessage(`{"id": 6, "total": 99.99, "completedOn": "2025-03-04T10:00:00"}`))
	require.NoError(t, err)
	assert.Equal(t, "99.99", j.Total().String())
	assert.Equal(t, time.UTC, j.CompletedOn().Location())
}

func TestScrubJob_Malformed(t *testing.T) {
	_, err := ScrubJob(json.RawMessage(`{"id": "abc"}`))
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ScrubJob(json.RawMessage(`{"jobNumber": "J-1"}`))
	assert.ErrorIs(t, err, ErrMalformed)

}

func TestScrubJobs_SkipsMalformedRecords(t *testing.T) {
	jobs, rejected := ScrubJobs([]json.RawMessage{
		json.RawMessage(`{"id": 1}`),
		json.RawMessage(`[]`),
		json.RawMessage(`{"id": 3, "total": "lots", "customer": {"name": "Jane Doe"}}`),
		json.RawMessage(`{"id": 4}`),
	})
	require.Len(t, jobs, 2)
	assert.Equal(t, int64(1), jobs[0].ID())
	assert.Equal(t, int64(4), jobs[1].ID())

	require.Len(t, rejected, 2)
	assert.Equal(t, apierr.AnomalyMalformedRecord, rejected[0].Kind)
	assert.Zero(t, rejected[0].RecordID)
	assert.Contains(t, rejected[0].Detail, "record 1")
	assert.Equal(t, int64(3), rejected[1].RecordID)
	assert.NotContains(t, rejected[1].Detail, "Jane")

	none, rejected := ScrubJobs(nil)
	assert.Empty(t, none)
	assert.Empty(t, rejected)
}

func TestTagSliceIsCopied(t *testing.T) {
	j, err := ScrubJob(json.RawMessage(`{"id": 1, "tagTypeIds": [1, 2]}`))
	require.NoError(t, err)
	tags := j.TagTypeIDs()
	tags[0] = 99
	assert.Equal(t, []int64{1, 2}, j.TagTypeIDs())
}

func TestScrubTechnician(t *testing.T) {
	raw := `{"id": 42, "name": " Danny R ", "active": true, "businessUnitId": 7,
		"email": "tech-home@example.com", "phoneNumber": "555-867-5309",
		"loginName": "danny", "password": "hunter2",
		"home": {"street": "742 Evergreen Terrace", "city": "Springfield"}}`
	tech, err := ScrubTechnician(json.RawMessage(raw))
	require.NoError(t, err)
	assert.Equal(t, "Danny R", tech.Name())
	assert.True(t, tech.Active())
	bu, ok := tech.BusinessUnitID()
	assert.True(t, ok)
	assert.Equal(t, int64(7), bu)
	requireNoPII(t, tech)

	tech, err = ScrubTechnician(json.RawMessage(`{"id": 8, "name": "", "active": false}`))
	require.NoError(t, err)
	assert.Equal(t, "Tech 8", tech.Name())
	assert.False(t, tech.Active())
}

func TestScrubAppointment(t *testing.T) {
	raw := `{"id": 7001, "appointmentNumber": "A-1", "jobId": 1001, "technicianId": 42,
		"start": "2025-03-04T14:00:00Z", "end": "2025-03-04T16:30:00Z",
		"arrivalWindowStart": "2025-03-04T13:30:00Z", "status": "Done", "active": true,
		"specialInstructions": "gate code 4471, ask for Jane Customer",
		"customerId": 555, "locationId": 556,
		"assignedTechnicians": [
			{"technicianId": 42, "isOriginal": true},
			{"technicianId": 43, "isOriginal": false, "name": "Jane Customer"},
			{"technicianId": 0}
		]}`
	a, err := ScrubAppointment(json.RawMessage(raw))
	require.NoError(t, err)

	assert.Equal(t, 150*time.Minute, a.Duration())
	assert.False(t, a.Canceled())
	jobID, _ := a.JobID()
	assert.Equal(t, int64(1001), jobID)

	as := a.Assigned()
	require.Len(t, as, 2)
	assert.Equal(t, RolePrimary, as[0].Role())
	assert.True(t, as[0].IsOriginal())
	assert.Equal(t, RoleAdded, as[1].Role())
	assert.Equal(t, int64(43), as[1].TechnicianID())

	requireNoPII(t, a)
}

func TestAppointmentDuration_MissingOrInverted(t *testing.T) {
	a, err := ScrubAppointment(json.RawMessage(`{"id": 1, "start": "2025-03-04T14:00:00Z"}`))
	require.NoError(t, err)
	assert.Zero(t, a.Duration())

	a, err = ScrubAppointment(json.RawMessage(`{"id": 1, "start": "2025-03-04T14:00:00Z", "end": "2025-03-04T13:00:00Z"}`))
	require.NoError(t, err)
	assert.Zero(t, a.Duration())
}

func TestScrubInvoice(t *testing.T) {
	raw := `{"id": 5001, "invoiceDate": "2025-03-04T00:00:00Z", "subTotal": "500.00", "total": 450,
		"job": {"id": 1001, "number": "J-1001", "type": "Service"},
		"businessUnit": {"id": 7, "name": "HVAC"},
		"customer": {"id": 555, "name": "Jane Customer"},
		"customerAddress": {"street": "742 Evergreen Terrace"},
		"summary": "Call jane@example.com",
		"items": [
			{"price": 500, "total": 500, "skuName": "Tune-up", "type": "Service", "description": "Jane Customer unit"},
			{"price": -50, "total": -40, "skuName": "Member Discount", "type": "Discount"},
			{"price": 10, "total": -5, "skuName": "Credit", "type": "Material"}
		]}`
	inv, err := ScrubInvoice(json.RawMessage(raw))
	require.NoError(t, err)

	assert.Equal(t, "500", inv.SubTotal().String())
	assert.Equal(t, "450", inv.Total().String())
	jobID, ok := inv.JobID()
	require.True(t, ok)
	assert.Equal(t, int64(1001), jobID)
	assert.Equal(t, "HVAC", inv.BusinessUnitName())

	items := inv.Items()
	require.Len(t, items, 3)
	assert.False(t, items[0].IsDiscount())
	assert.True(t, items[0].DiscountAmount().IsZero())
	assert.Equal(t, "50", items[1].DiscountAmount().String(), "abs(min(price, total))")
	assert.Equal(t, "5", items[2].DiscountAmount().String())

	requireNoPII(t, inv)
}

func TestScrubReference(t *testing.T) {
	r, err := ScrubReference(json.RawMessage(`{"id": 11, "name": "GO BACK - Service", "active": true, "color": "#fff"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(11), r.ID())
	assert.Equal(t, "GO BACK - Service", r.Name())

	refs, rejected := ScrubReferences([]json.RawMessage{json.RawMessage(`{"name": "x"}`)})
	assert.Empty(t, refs)
	require.Len(t, rejected, 1)
	assert.Equal(t, apierr.AnomalyMalformedRecord, rejected[0].Kind)
}

func TestScrubJobSummary(t *testing.T) {
	s, err := ScrubJobSummary(json.RawMessage(adversarialJob))
	require.NoError(t, err)

	assert.Equal(t, SensitivityPII, s.Sensitivity())
	assert.Equal(t, []PIIKind{PIIPhone}, s.Detected())
	assert.True(t, s.Contains("GATE CODE"))
	assert.True(t, strings.HasPrefix(s.String(), SummaryWarning))
	assert.Contains(t, s.Quoted(), "[pii]")

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"warning"`)
	assert.Contains(t, string(b), `"sensitivity":"pii"`)

	// The embedded job stays scrubbed.
	requireNoPII(t, s.Job())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		text  string
		want  Sensitivity
		kinds []PIIKind
	}{
		{"Replaced capacitor, system cooling", SensitivityPublic, nil},
		{"Email owner at jane@example.com", SensitivityPII, []PIIKind{PIIEmail}},
		{"Call (555) 867-5309 before arrival", SensitivityPII, []PIIKind{PIIPhone}},
		{"Unit at 742 Evergreen Terrace", SensitivityPII, []PIIKind{PIIAddress}},
		{"1200 N Main St, jane@example.com", SensitivityPII, []PIIKind{PIIEmail, PIIAddress}},
	}
	for _, tt := range tests {
		got, kinds := Classify(tt.text)
		assert.Equal(t, tt.want, got, "Classify(%q)", tt.text)
		assert.Equal(t, tt.kinds, kinds, "Classify(%q) kinds", tt.text)
	}
	assert.Equal(t, "unknown", Sensitivity(9).String())
}
