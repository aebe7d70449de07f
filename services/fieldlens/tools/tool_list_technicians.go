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
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/FieldLens/services/fieldlens/query"
)

var listTechniciansTracer = otel.Tracer("tools.list_technicians")

// ListTechniciansParams contains the validated input for list_technicians.
type ListTechniciansParams struct {
	// NameFilter keeps technicians whose name contains it. Optional.
	NameFilter string
}

// ToolName returns the tool name for TypedParams interface.
func (p ListTechniciansParams) ToolName() string { return "list_technicians" }

// ToMap converts typed parameters to the map consumed by Tool.Execute().
func (p ListTechniciansParams) ToMap() map[string]any {
	m := map[string]any{}
	if p.NameFilter != "" {
		m["name_filter"] = p.NameFilter
	}
	return m
}

// TechnicianEntry is one active technician.
type TechnicianEntry struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ListTechniciansOutput contains the structured result.
type ListTechniciansOutput struct {
	Filter      string            `json:"filter,omitempty"`
	Technicians []TechnicianEntry `json:"technicians"`
}

type listTechniciansTool struct {
	env *Env
}

// NewListTechniciansTool creates the list_technicians tool.
func NewListTechniciansTool(env *Env) Tool {
	return &listTechniciansTool{env: env}
}

func (t *listTechniciansTool) Name() string           { return "list_technicians" }
func (t *listTechniciansTool) Category() ToolCategory { return CategoryDirectory }

func (t *listTechniciansTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "list_technicians",
		Description: "List active technicians, optionally filtered by a name fragment.",
		Parameters: map[string]ParamDef{
			"name_filter": {
				Type:        ParamTypeString,
				Description: "Case-insensitive name fragment, e.g. 'smith'",
			},
		},
		Category: CategoryDirectory,
		Timeout:  defaultTimeout,
		WhenToUse: WhenToUse{
			Keywords: []string{"technicians", "who", "staff", "names", "roster"},
			UseWhen:  "The caller needs the exact spelling of a technician's name or the list of active technicians.",
		},
	}
}

func (t *listTechniciansTool) parseParams(m map[string]any) (ListTechniciansParams, error) {
	a := newArgs(m)
	raw := a.str("name_filter")
	if err := a.Err(); err != nil {
		return ListTechniciansParams{}, err
	}
	filter, err := query.OptionalName("name_filter", raw)
	if err != nil {
		return ListTechniciansParams{}, err
	}
	return ListTechniciansParams{NameFilter: filter}, nil
}

// Execute runs the list_technicians tool.
func (t *listTechniciansTool) Execute(ctx context.Context, params TypedParams) (*Result, error) {
	p, err := t.parseParams(params.ToMap())
	if err != nil {
		return failure(err), nil
	}

	ctx, span := listTechniciansTracer.Start(ctx, "listTechniciansTool.Execute",
		trace.WithAttributes(
			attribute.String("tool", "list_technicians"),
			attribute.Bool("filtered", p.NameFilter != ""),
		),
	)
	defer span.End()

	c := t.env.collect()
	r, err := t.env.roster(ctx, c)
	if err != nil {
		return failed(span, err)
	}

	out := ListTechniciansOutput{Filter: p.NameFilter, Technicians: []TechnicianEntry{}}
	needle := strings.ToLower(p.NameFilter)
	for _, tech := range r.techs {
		if needle == "" || strings.Contains(strings.ToLower(tech.Name()), needle) {
			out.Technicians = append(out.Technicians, TechnicianEntry{ID: tech.ID(), Name: tech.Name()})
		}
	}
	sort.Slice(out.Technicians, func(i, k int) bool {
		a, b := out.Technicians[i], out.Technicians[k]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})

	span.SetAttributes(attribute.Int("technicians", len(out.Technicians)))
	return succeeded(span, c.result(out, formatTechnicianList(out)))
}

func formatTechnicianList(out ListTechniciansOutput) string {
	if len(out.Technicians) == 0 {
		if out.Filter != "" {
			return fmt.Sprintf("No active technicians found matching %q.", out.Filter)
		}
		return "No active technicians found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Active technicians (%d found):\n", len(out.Technicians))
	for _, tech := range out.Technicians {
		fmt.Fprintf(&b, "  • %s\n", tech.Name)
	}
	return finish(&b)
}
