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
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/FieldLens/services/fieldlens/analytics"
)

var technicianScheduleTracer = otel.Tracer("tools.get_technician_schedule")

// TechnicianScheduleParams contains the validated input for get_technician_schedule.
type TechnicianScheduleParams struct {
	DateParams
	TechnicianName string
}

// ToolName returns the tool name for TypedParams interface.
func (p TechnicianScheduleParams) ToolName() string { return "get_technician_schedule" }

// ToMap converts typed parameters to the map consumed by Tool.Execute().
func (p TechnicianScheduleParams) ToMap() map[string]any {
	return p.put(map[string]any{"technician_name": p.TechnicianName})
}

// ScheduleOutput contains the structured result.
type ScheduleOutput struct {
	Technician string `json:"technician"`
	Range      string `json:"range"`
	Timezone   string `json:"timezone"`
	analytics.Schedule
}

type technicianScheduleTool struct {
	env *Env
}

// NewTechnicianScheduleTool creates the get_technician_schedule tool.
func NewTechnicianScheduleTool(env *Env) Tool {
	return &technicianScheduleTool{env: env}
}

func (t *technicianScheduleTool) Name() string           { return "get_technician_schedule" }
func (t *technicianScheduleTool) Category() ToolCategory { return CategoryScheduling }

func (t *technicianScheduleTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "get_technician_schedule",
		Description: "One technician's scheduled appointments grouped by day, with daily and total scheduled hours.",
		Parameters: dateParams(map[string]ParamDef{
			"technician_name": technicianNameParam,
		}),
		Category: CategoryScheduling,
		Timeout:  defaultTimeout,
		WhenToUse: WhenToUse{
			Keywords:  []string{"schedule", "appointments", "hours", "when", "calendar"},
			UseWhen:   "The caller asks when a technician was booked or how many hours were scheduled.",
			AvoidWhen: "The caller asks about actual clock-in or payroll time, which is not available.",
		},
	}
}

// Execute runs the get_technician_schedule tool.
func (t *technicianScheduleTool) Execute(ctx context.Context, params TypedParams) (*Result, error) {
	_, name, rng, err := parseTechnicianRange(t.env, params.ToMap())
	if err != nil {
		return failure(err), nil
	}

	ctx, span := technicianScheduleTracer.Start(ctx, "technicianScheduleTool.Execute",
		trace.WithAttributes(
			attribute.String("tool", "get_technician_schedule"),
			attribute.Int("range_days", rng.Days()+1),
		),
	)
	defer span.End()

	c := t.env.collect()
	r, err := t.env.roster(ctx, c)
	if err != nil {
		return failed(span, err)
	}
	tech, miss := r.resolve(name)
	if miss != nil {
		return unmatched(span, miss)
	}
	appts, f, err := t.env.Source.Appointments(ctx, rng, tech.ID)
	if err != nil {
		return failed(span, err)
	}
	c.fetched(f)

	loc := t.env.loc()
	out := ScheduleOutput{
		Technician: tech.Name,
		Range:      rng.Label(),
		Timezone:   loc.String(),
		Schedule:   analytics.BuildSchedule(appts, loc),
	}
	span.SetAttributes(attribute.Int("appointments", out.Appointments))
	return succeeded(span, c.result(out, formatSchedule(out, loc)))
}

func formatSchedule(out ScheduleOutput, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Schedule for %s  |  %s\n", out.Technician, out.Range)
	b.WriteString(rule(50) + "\n")
	fmt.Fprintf(&b, "Appointments:       %d\n", out.Appointments)
	fmt.Fprintf(&b, "Total scheduled:    %s\n", analytics.Hours(out.Total))
	if out.Appointments == 0 {
		b.WriteString("\nNo appointments found in this date range.\n")
		return finish(&b)
	}

	for _, day := range out.Days {
		fmt.Fprintf(&b, "\n  %s  (%s)\n", day.Label, analytics.Hours(day.Hours))
		for _, e := range day.Entries {
			fmt.Fprintf(&b, "    %s → %s  (%s)\n",
				analytics.ClockTime(e.Start, loc), analytics.ClockTime(e.End, loc), analytics.Hours(e.Duration))
		}
	}
	fmt.Fprintf(&b, "\n(Times are %s — scheduled, not actual clock-in/out)\n", out.Timezone)
	return finish(&b)
}
