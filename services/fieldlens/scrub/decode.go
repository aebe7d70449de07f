// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package scrub projects raw upstream records onto per-kind allow-lists.
//
// Each entity kind has exactly one Scrub function. The function decodes the
// raw JSON into an unexported struct that declares only the allowed fields,
// so every other field (customer, location, contact, summary, notes) is
// dropped by the decoder and never reaches memory owned by a scrubbed value.
// The scrubbed types have unexported fields and can only be built here.
//
// The single exception is ScrubJobSummary, which keeps the free-text summary
// inside a SensitiveSummary that always renders with a warning.
package scrub

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
)

// ErrMalformed indicates a record that could not be decoded or lacks an id.
var ErrMalformed = errors.New("scrub: malformed record")

// timeLayouts are tried in order. Layouts without a zone are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTime reads an upstream timestamp. Absent or unparseable values yield
// the zero time.
func parseTime(s *string) time.Time {
	if s == nil {
		return time.Time{}
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// decode unmarshals raw into dst, wrapping failures with ErrMalformed.
func decode(kind string, raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, kind, err)
	}
	return nil
}

func malformedNoID(kind string) error {
	return fmt.Errorf("%w: %s: missing id", ErrMalformed, kind)
}

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

// optionalID is an id that may be null or absent upstream. Zero is treated as
// absent, matching how the upstream API reports unset references.
type optionalID struct {
	v  int64
	ok bool
}

func newOptionalID(p *int64) optionalID {
	if p == nil || *p == 0 {
		return optionalID{}
	}
	return optionalID{v: *p, ok: true}
}

func (o optionalID) get() (int64, bool) { return o.v, o.ok }

// scrubAll applies fn to every raw record in order. Records fn rejects are
// left out and reported as malformed_record anomalies.
func scrubAll[T any](raws []json.RawMessage, fn func(json.RawMessage) (T, error)) ([]T, []apierr.DataIntegrityError) {
	out := make([]T, 0, len(raws))
	var rejected []apierr.DataIntegrityError
	for i, raw := range raws {
		v, err := fn(raw)
		if err != nil {
			rejected = append(rejected, apierr.DataIntegrityError{
				Kind:     apierr.AnomalyMalformedRecord,
				RecordID: peekID(raw),
				Detail:   fmt.Sprintf("record %d: %v", i, err),
			})
			continue
		}
		out = append(out, v)
	}
	return out, rejected
}

// peekID returns the record's numeric id, or zero when there is none.
func peekID(raw json.RawMessage) int64 {
	var probe struct {
		ID json.Number `json:"id"`
	}
	if json.Unmarshal(raw, &probe) != nil {
		return 0
	}
	id, _ := probe.ID.Int64()
	return id
}
