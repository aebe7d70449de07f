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

type rawReference struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active *bool  `json:"active"`
}

// Reference is a scrubbed id and name pair: a job type, tag type or
// business unit.
type Reference struct {
	id     int64
	name   string
	active bool
}

// ScrubReference projects a raw reference record onto {id, name, active}.
func ScrubReference(raw json.RawMessage) (Reference, error) {
	var r rawReference
	if err := decode("reference", raw, &r); err != nil {
		return Reference{}, err
	}
	if r.ID == 0 {
		return Reference{}, malformedNoID("reference")
	}
	return Reference{
		id:     r.ID,
		name:   strings.TrimSpace(r.Name),
		active: r.Active == nil || *r.Active,
	}, nil
}

// ScrubReferences scrubs a batch of raw references, preserving order.
// Records that fail to scrub are skipped and returned as anomalies.
func ScrubReferences(raws []json.RawMessage) ([]Reference, []apierr.DataIntegrityError) {
	return scrubAll(raws, ScrubReference)
}

func (r Reference) ID() int64    { return r.id }
func (r Reference) Name() string { return r.name }
func (r Reference) Active() bool { return r.active }
