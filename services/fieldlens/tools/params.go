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
	"strconv"
	"strings"

	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
)

// =============================================================================
// Parameter Parsing
// =============================================================================

// parseStringParam extracts a string from a parameter value.
//
// Thread Safety: Safe for concurrent use.
func parseStringParam(value any) (string, bool) {
	if s, ok := value.(string); ok {
		return s, true
	}
	return "", false
}

// parseIntParam extracts an integer from a parameter value.
//
// Handles int, int64, float64 (from JSON unmarshaling) and numeric strings
// (from the command line).
//
// Thread Safety: Safe for concurrent use.
func parseIntParam(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		return n, err == nil
	default:
		return 0, false
	}
}

// parseFloatParam extracts a float64 from a parameter value.
//
// Thread Safety: Safe for concurrent use.
func parseFloatParam(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// parseBoolParam extracts a boolean from a parameter value.
//
// Thread Safety: Safe for concurrent use.
func parseBoolParam(value any) (bool, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return b, err == nil
	default:
		return false, false
	}
}

// parseStringArray extracts a comma-separated list from a parameter value.
//
// Handles a plain string, []string, and []any (from JSON unmarshaling).
//
// Thread Safety: Safe for concurrent use.
func parseStringArray(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []string:
		return strings.Join(v, ","), true
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return "", false
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, ","), true
	default:
		return "", false
	}
}

// args reads typed values out of a parameter map, keeping the first type
// error.
type args struct {
	m   map[string]any
	err error
}

func newArgs(m map[string]any) *args { return &args{m: m} }

func (a *args) fail(key, constraint string) {
	if a.err == nil {
		a.err = apierr.Invalid(key, constraint)
	}
}

func (a *args) str(key string) string {
	v, ok := a.m[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := parseStringParam(v)
	if !ok {
		a.fail(key, "must be a string")
	}
	return s
}

func (a *args) list(key string) string {
	v, ok := a.m[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := parseStringArray(v)
	if !ok {
		a.fail(key, "must be a comma-separated string")
	}
	return s
}

func (a *args) integer(key string, def int) int {
	v, ok := a.m[key]
	if !ok || v == nil {
		return def
	}
	n, ok := parseIntParam(v)
	if !ok {
		a.fail(key, "must be an integer")
		return def
	}
	return n
}

func (a *args) float(key string, def float64) float64 {
	v, ok := a.m[key]
	if !ok || v == nil {
		return def
	}
	f, ok := parseFloatParam(v)
	if !ok {
		a.fail(key, "must be a number")
		return def
	}
	return f
}

func (a *args) boolean(key string, def bool) bool {
	v, ok := a.m[key]
	if !ok || v == nil {
		return def
	}
	b, ok := parseBoolParam(v)
	if !ok {
		a.fail(key, "must be true or false")
		return def
	}
	return b
}

// Err returns the first type error.
func (a *args) Err() error { return a.err }

// dateParams are the start_date and end_date definitions shared by every
// report.
func dateParams(extra map[string]ParamDef) map[string]ParamDef {
	out := map[string]ParamDef{
		"start_date": {
			Type:        ParamTypeString,
			Description: "First day of the range, YYYY-MM-DD. Alone it selects that single day.",
		},
		"end_date": {
			Type:        ParamTypeString,
			Description: "Last day of the range (inclusive), YYYY-MM-DD. Alone it selects the 7 days ending on it. With neither date, last Monday to Sunday week.",
		},
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// DateParams are the optional start_date and end_date of a report.
type DateParams struct {
	StartDate string
	EndDate   string
}

func (d DateParams) put(m map[string]any) map[string]any {
	if d.StartDate != "" {
		m["start_date"] = d.StartDate
	}
	if d.EndDate != "" {
		m["end_date"] = d.EndDate
	}
	return m
}

func readDates(a *args) DateParams {
	return DateParams{StartDate: a.str("start_date"), EndDate: a.str("end_date")}
}
