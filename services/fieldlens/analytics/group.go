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
	"github.com/AleutianAI/FieldLens/services/fieldlens/scrub"
)

// UnknownGroup labels jobs whose group cannot be named.
const UnknownGroup = "Unknown"

// Dimension selects a reference id of a job and the names for it.
type Dimension struct {
	// Label is the column heading, e.g. "Technician".
	Label string

	ID    func(scrub.Job) (int64, bool)
	Names Names
}

// Group returns the display name of j's group, or UnknownGroup.
func (d Dimension) Group(j scrub.Job) string {
	id, ok := d.ID(j)
	if !ok {
		return UnknownGroup
	}
	return nameOr(d.Names, id, UnknownGroup)
}

// ByTechnician groups jobs by their embedded technician.
func ByTechnician(techs Names) Dimension {
	return Dimension{Label: "Technician", ID: scrub.Job.TechnicianID, Names: techs}
}

// ByBusinessUnit groups jobs by business unit.
func ByBusinessUnit(units Names) Dimension {
	return Dimension{Label: "Business Unit", ID: scrub.Job.BusinessUnitID, Names: units}
}

// ByJobType groups jobs by job type.
func ByJobType(types Names) Dimension {
	return Dimension{Label: "Job Type", ID: scrub.Job.JobTypeID, Names: types}
}
