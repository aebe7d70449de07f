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
	"strings"

	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
)

// rawTechnician is the technician allow-list. Contact, login, home address
// and payroll fields are absent and therefore never decoded.
type rawTechnician struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Active         *bool  `json:"active"`
	BusinessUnitID *int64 `json:"businessUnitId"`
}

// Technician is a scrubbed technician record.
type Technician struct {
	id             int64
	name           string
	active         bool
	businessUnitID optionalID
}

// ScrubTechnician projects a raw technician onto the technician allow-list.
// A missing active flag is read as active, since the list endpoint is
// queried with active=true.
func ScrubTechnician(raw json.RawMessage) (Technician, error) {
	var r rawTechnician
	if err := decode("technician", raw, &r); err != nil {
		return Technician{}, err
	}
	if r.ID == 0 {
		return Technician{}, malformedNoID("technician")
	}
	t := Technician{
		id:             r.ID,
		name:           strings.TrimSpace(r.Name),
		active:         r.Active == nil || *r.Active,
		businessUnitID: newOptionalID(r.BusinessUnitID),
	}
	return t, nil
}

// ScrubTechnicians scrubs a batch of raw technicians, preserving order.
// Records that fail to scrub are skipped and returned as anomalies.
func ScrubTechnicians(raws []json.RawMessage) ([]Technician, []apierr.DataIntegrityError) {
	return scrubAll(raws, ScrubTechnician)
}

func (t Technician) ID() int64 { return t.id }

// Name returns the display name, or "Tech <id>" when the upstream name is
// blank.
func (t Technician) Name() string {
	if t.name == "" {
		return "Tech " + formatID(t.id)
	}
	return t.name
}

func (t Technician) Active() bool                  { return t.active }
func (t Technician) BusinessUnitID() (int64, bool) { return t.businessUnitID.get() }
