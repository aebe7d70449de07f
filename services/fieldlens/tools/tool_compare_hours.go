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
	"github.com/AleutianAI/FieldLens/services/fieldlens/records"
)

var compareHoursTracer = otel.Tracer("tools.compare_technician_hours")

// HoursOutput contains the structured result.
type HoursOutput struct {
	Range    string `json:"range"`
	Timezone string `json:"timezone"`
	analytics.HoursComparison
}

type compareHoursTool struct {
	env *Env
}

// NewCompareHoursTool creates the compare_technician_hours tool.
func NewCompareHoursTool(env *Env) Tool {
	return &compareHoursTool{env: env}
}

func (t *compareHoursTool) Name() string           { return "compare_technician_hours" }
func (t *compareHoursTool) Category() ToolCategory { return CategoryScheduling }

func (t *compareHoursTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "compare_technician_hours",
		Description: "Rank every active technician by scheduled appointment hours.",
		Parameters:  dateParams(nil),
		Category:    CategoryScheduling,
		Timeout:     fanOutTimeout,
		WhenToUse: WhenToUse{
			Keywords: []string{"hours", "utilization", "busiest", "workload", "compare schedules"},
			UseWhen:  "The caller wants scheduled hours side by side for every technician.",
		},
	}
}

// Execute runs the compare_technician_hours tool.
func (t *compareHoursTool) Execute(ctx context.Context, params TypedParams) (*Result, error) {
	a := newArgs(params.ToMap())
	d := readDates(a)
	if err := a.Err(); err != nil {
		return failure(err), nil
	}
	rng, err := t.env.dates(d)
	if err != nil {
		return failure(err), nil
	}

	ctx, span := compareHoursTracer.Start(ctx, "compareHoursTool.Execute",
		trace.WithAttributes(
			attribute.String("tool", "compare_technician_hours"),
			attribute.Int("range_days", rng.Days()+1),
		),
	)
	defer span.End()

	c := t.env.collect()
	r, err := t.env.roster(ctx, c)
	if err != nil {
		return failed(span, err)
	}
	branches, meta := t.env.Source.AppointmentsByTechnician(ctx, rng, records.Branches(r.techs))
	c.fanned(records.ResourceAppointments, meta)
	if err := ctx.Err(); err != nil {
		return failed(span, err)
	}

	loc := t.env.loc()
	out := HoursOutput{Range: rng.Label(), Timezone: loc.String(), HoursComparison: analytics.BuildHoursComparison(branches)}
	span.SetAttributes(attribute.Int("branches", len(branches)), attribute.Int("rows", len(out.Rows)))
	return succeeded(span, c.result(out, formatHours(out, loc)))
}

func firstStart(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return analytics.Placeholder
	}
	return t.In(loc).Format("Jan 2 3:04 PM")
}

func formatHours(out HoursOutput, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Technician Hours Comparison  |  %s\n", out.Range)
	if len(out.Rows) == 0 {
		b.WriteString(rule(55) + "\n")
		b.WriteString("No appointments found in this date range.")
		return b.String()
	}

	names := make([]string, 0, len(out.Rows))
	for _, row := range out.Rows {
		names = append(names, row.Name)
	}
	nw := nameWidth(12, "Technician", names...)
	tab := newTable(&b, fmt.Sprintf("%-*s  %5s  %11s  %17s", nw, "Technician", "Appts", "Sched Hours", "First Start"))
	for _, row := range out.Rows {
		tab.line(fmt.Sprintf("%-*s  %5d  %11s  %17s", nw, row.Name, row.Appointments,
			analytics.Hours(row.Hours), firstStart(row.FirstStart, loc)))
	}
	tab.rule()
	tab.line(fmt.Sprintf("%-*s  %5d  %11s", nw, "TOTAL", out.TotalAppointments, analytics.Hours(out.TotalHours)))

	if len(out.Idle) > 0 {
		fmt.Fprintf(&b, "\n(No appointments in this range: %s)\n", strings.Join(out.Idle, ", "))
	}
	fmt.Fprintf(&b, "\n(Scheduled appointment hours in %s — not actual clock-in/out)\n", out.Timezone)
	return finish(&b)
}
