// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools exposes the FieldLens reports as named tools.
//
// Every tool takes named parameters, validates them with package query,
// fetches scrubbed records through package records, computes with package
// analytics, and returns a Result carrying both a plain-text report and a
// structured output. Failures are Results too; the plain-language message
// never carries identifiers or credentials.
package tools

import (
	"context"
	"time"

	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
)

// ToolCategory groups tools for listings.
type ToolCategory string

const (
	CategoryDirectory  ToolCategory = "directory"
	CategoryJobs       ToolCategory = "jobs"
	CategoryRevenue    ToolCategory = "revenue"
	CategoryScheduling ToolCategory = "scheduling"
	CategoryQuality    ToolCategory = "quality"
)

// ParamType is the JSON type of a tool parameter.
type ParamType string

const (
	ParamTypeString ParamType = "string"
	ParamTypeInt    ParamType = "integer"
	ParamTypeFloat  ParamType = "number"
	ParamTypeBool   ParamType = "boolean"
)

// ParamDef describes one tool parameter.
type ParamDef struct {
	Type        ParamType `json:"type"`
	Description string    `json:"description"`
	Required    bool      `json:"required"`
	Default     any       `json:"default,omitempty"`
	Enum        []any     `json:"enum,omitempty"`
}

// WhenToUse guides callers choosing between similar tools.
type WhenToUse struct {
	Keywords  []string `json:"keywords,omitempty"`
	UseWhen   string   `json:"use_when,omitempty"`
	AvoidWhen string   `json:"avoid_when,omitempty"`
}

// ToolDefinition is the self-description of a tool.
type ToolDefinition struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Parameters  map[string]ParamDef `json:"parameters"`
	Category    ToolCategory        `json:"category"`

	// Timeout bounds one invocation, fan-out included.
	Timeout time.Duration `json:"timeout_ns"`

	WhenToUse WhenToUse `json:"when_to_use"`
}

// TypedParams is a tool's parameter set.
type TypedParams interface {
	ToolName() string
	ToMap() map[string]any
}

// MapParams carries untyped parameters, e.g. decoded from a JSON request.
type MapParams struct {
	Tool   string
	Params map[string]any
}

// ToolName returns the tool the parameters are for.
func (m MapParams) ToolName() string { return m.Tool }

// ToMap returns the parameters. A nil map is returned as empty.
func (m MapParams) ToMap() map[string]any {
	if m.Params == nil {
		return map[string]any{}
	}
	return m.Params
}

// Result is the outcome of one tool invocation.
type Result struct {
	Success bool `json:"success"`

	// Output is the structured report.
	Output any `json:"output,omitempty"`

	// OutputText is the plain-text report.
	OutputText string `json:"output_text,omitempty"`

	// Error is a plain-language failure message.
	Error string `json:"error,omitempty"`

	// ErrorKind is a low-cardinality failure label, e.g. "validation".
	ErrorKind string `json:"error_kind,omitempty"`

	// RetryAfter is set for rate-limited failures.
	RetryAfter time.Duration `json:"retry_after_ns,omitempty"`

	Warnings []string `json:"warnings,omitempty"`

	// Truncated is set when any fetch stopped at the record cap.
	Truncated bool `json:"truncated"`

	// Incomplete names technicians whose fan-out branch failed.
	Incomplete []string `json:"incomplete,omitempty"`

	Anomalies []apierr.DataIntegrityError `json:"anomalies,omitempty"`

	Duration time.Duration `json:"duration_ns"`
}

// Tool is one named report.
//
// Thread Safety: Implementations are safe for concurrent use.
type Tool interface {
	Name() string
	Category() ToolCategory
	Definition() ToolDefinition
	Execute(ctx context.Context, params TypedParams) (*Result, error)
}

const (
	// defaultTimeout bounds single-fetch reports.
	defaultTimeout = 60 * time.Second

	// fanOutTimeout bounds reports that fetch per technician.
	fanOutTimeout = 180 * time.Second
)
