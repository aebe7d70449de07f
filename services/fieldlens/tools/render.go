// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AleutianAI/FieldLens/services/fieldlens/analytics"
	"github.com/AleutianAI/FieldLens/services/fieldlens/query"
	"github.com/AleutianAI/FieldLens/services/fieldlens/scrub"
)

const (
	noCompletedJobs = "No completed jobs found in this date range."
	noJobs          = "No jobs found in this date range."
)

// listRule separates the sections of job listings.
var listRule = rule(60)

// rule is a horizontal separator n box-drawing characters wide.
func rule(n int) string { return strings.Repeat("─", n) }

// width counts runes, matching how fmt pads strings.
func width(s string) int { return utf8.RuneCountInString(s) }

// nameWidth is the widest of names, heading and floor.
func nameWidth(floor int, heading string, names ...string) int {
	w := max(floor, width(heading))
	for _, n := range names {
		w = max(w, width(n))
	}
	return w
}

func pct1(f float64) string { return fmt.Sprintf("%.1f%%", f) }

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// orPlaceholder returns s, or the placeholder when s is empty.
func orPlaceholder(s string) string {
	if s == "" {
		return analytics.Placeholder
	}
	return s
}

// table is a fixed-width text table with a separator under the header.
type table struct {
	b   *strings.Builder
	sep string
}

func newTable(b *strings.Builder, header string) *table {
	t := &table{b: b, sep: rule(width(header))}
	t.line(t.sep)
	t.line(header)
	t.line(t.sep)
	return t
}

func (t *table) line(s string) {
	t.b.WriteString(s)
	t.b.WriteByte('\n')
}

func (t *table) rule() { t.line(t.sep) }

// finish trims the final newline of a builder.
func finish(b *strings.Builder) string { return strings.TrimRight(b.String(), "\n") }

// sampleSize bounds the name lists offered after an unknown name.
const sampleSize = 20

// sample returns the first sampleSize names.
func sample(names []string) []string {
	if len(names) > sampleSize {
		return names[:sampleSize]
	}
	return names
}

// UnknownNamesOutput is the structured output of a failed reference lookup.
type UnknownNamesOutput struct {
	Unknown   []string `json:"unknown"`
	Available []string `json:"available"`
}

// unknownNames reports reference names that matched nothing.
func unknownNames(text string, unknown, available []string) *Result {
	return &Result{
		Success:    false,
		Output:     UnknownNamesOutput{Unknown: unknown, Available: available},
		OutputText: text,
		Error:      text,
		ErrorKind:  KindNotFound,
	}
}

// lookup names the references of a job. Nil sets render as the placeholder.
type lookup struct {
	loc   *time.Location
	techs *query.NameSet
	types *query.NameSet
	units *query.NameSet
	tags  *query.NameSet
}

func nameIn(set *query.NameSet, id int64, ok bool) string {
	if !ok || set == nil {
		return analytics.Placeholder
	}
	return set.NameOr(id, analytics.Placeholder)
}

func (l lookup) line(j scrub.Job) JobLine {
	jl := jobLine(j, l.loc, l.units)
	id, ok := j.JobTypeID()
	jl.JobType = nameIn(l.types, id, ok)
	return jl
}

func (l lookup) technician(j scrub.Job) string {
	id, ok := j.TechnicianID()
	return nameIn(l.techs, id, ok)
}

// tagNames lists the known tag names of j.
func (l lookup) tagNames(j scrub.Job) []string {
	if l.tags == nil {
		return nil
	}
	var out []string
	for _, id := range j.TagTypeIDs() {
		if n, ok := l.tags.Name(id); ok {
			out = append(out, n)
		}
	}
	return out
}

// noChargeSuffix marks no-charge jobs in a job line.
func noChargeSuffix(j JobLine) string {
	if j.NoCharge {
		return "  |  No-Charge"
	}
	return ""
}
