// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
)

const (
	// MaxNameLength bounds name filters.
	MaxNameLength = 100

	// MaxListLength bounds comma-separated lists.
	MaxListLength = 200

	// MinSearchLength is the shortest accepted search text.
	MinSearchLength = 2
)

var namePattern = regexp.MustCompile(`^[A-Za-z\s\-]+$`)

// Name validates a required name filter: trimmed, letters, spaces and hyphens,
// at most MaxNameLength characters.
func Name(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", apierr.Invalid(field, "cannot be empty")
	}
	return checkName(field, v)
}

// OptionalName is Name for filters that may be absent. Empty input returns "".
func OptionalName(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", nil
	}
	return checkName(field, v)
}

func checkName(field, v string) (string, error) {
	if len(v) > MaxNameLength {
		return "", apierr.Invalid(field, fmt.Sprintf("must be at most %d characters", MaxNameLength))
	}
	if !namePattern.MatchString(v) {
		return "", apierr.Invalid(field, "may only contain letters, spaces, and hyphens")
	}
	return v, nil
}

// List splits a required comma-separated list, trimming entries and dropping
// empty ones.
func List(field, v string) ([]string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, apierr.Invalid(field, "cannot be empty; provide one or more names")
	}
	if len(v) > MaxListLength {
		return nil, apierr.Invalid(field, fmt.Sprintf("must be at most %d characters", MaxListLength))
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, apierr.Invalid(field, "cannot be empty; provide one or more names")
	}
	return out, nil
}

// SearchText validates free-text search input.
func SearchText(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if len(v) < MinSearchLength {
		return "", apierr.Invalid(field, fmt.Sprintf("must be at least %d characters", MinSearchLength))
	}
	if len(v) > MaxNameLength {
		return "", apierr.Invalid(field, fmt.Sprintf("must be at most %d characters", MaxNameLength))
	}
	return v, nil
}

// Status filters jobs by lifecycle state.
type Status string

const (
	StatusAll       Status = "All"
	StatusCompleted Status = "Completed"
	StatusCanceled  Status = "Canceled"
)

// Matches reports whether a job status passes the filter.
func (s Status) Matches(jobStatus string) bool {
	return s == StatusAll || string(s) == jobStatus
}

// ParseStatus accepts Completed, Canceled, or All. Empty means All.
func ParseStatus(v string) (Status, error) {
	switch strings.TrimSpace(v) {
	case "", "All":
		return StatusAll, nil
	case "Completed":
		return StatusCompleted, nil
	case "Canceled":
		return StatusCanceled, nil
	}
	return "", apierr.Invalid("status", "must be one of: Completed, Canceled, All")
}

// GroupBy selects the grouping dimension of a summary report.
type GroupBy string

const (
	GroupTechnician   GroupBy = "technician"
	GroupBusinessUnit GroupBy = "business_unit"
	GroupJobType      GroupBy = "job_type"
)

// ParseGroupBy accepts one of allowed. Empty returns def.
func ParseGroupBy(v string, def GroupBy, allowed ...GroupBy) (GroupBy, error) {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return def, nil
	}
	names := make([]string, 0, len(allowed))
	for _, g := range allowed {
		if string(g) == v {
			return g, nil
		}
		names = append(names, string(g))
	}
	return "", apierr.Invalid("group_by", "must be one of: "+strings.Join(names, ", "))
}

// ChainLength validates min_chain_length. Zero means the default of 2.
func ChainLength(v int) (int, error) {
	if v == 0 {
		return 2, nil
	}
	if v < 2 || v > 10 {
		return 0, apierr.Invalid("min_chain_length", "must be between 2 and 10")
	}
	return v, nil
}

// MinAmount validates a non-negative currency threshold.
func MinAmount(field string, v float64) (decimal.Decimal, error) {
	if v < 0 {
		return decimal.Zero, apierr.Invalid(field, "must be zero or greater")
	}
	return decimal.NewFromFloat(v).Round(2), nil
}
