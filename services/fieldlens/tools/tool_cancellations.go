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
	"github.com/AleutianAI/FieldLens/services/fieldlens/query"
	"github.com/AleutianAI/FieldLens/services/fieldlens/scrub"
)

var cancellationsTracer = otel.Tracer("tools.get_cancellations")

// appointmentLookahead extends the appointment window past the range end so
// that jobs canceled in range keep their later scheduled start.
const appointmentLookahead = 30

// CancellationsParams contains the validated input for get_cancellations.
type CancellationsParams struct {
	DateParams
	TechnicianName string
	LateOnly       bool
}

// ToolName returns the tool name for TypedParams interface.
func (p CancellationsParams) ToolName() string { return "get_cancellations" }

// ToMap converts typed parameters to the map consumed by Tool.Execute().
func (p CancellationsParams) ToMap() map[string]any {
	m := map[string]any{"late_only": p.LateOnly}
	if p.TechnicianName != "" {
		m["technician_name"] = p.TechnicianName
	}
	return p.put(m)
}

// CancellationsOutput contains the structured result.
type CancellationsOutput struct {
	Range      string        `json:"range"`
	Technician string        `json:"technician,omitempty"`
	LateOnly   bool          `json:"late_only"`
	LateWindow time.Duration `json:"late_window_ns"`
	analytics.Cancellations
}

type cancellationsTool struct {
	env *Env
}

// NewCancellationsTool creates the get_cancellations tool.
func NewCancellationsTool(env *Env) Tool {
	return &cancellationsTool{env: env}
}

func (t *cancellationsTool) Name() string           { return "get_cancellations" }
func (t *cancellationsTool) Category() ToolCategory { return CategoryQuality }

func (t *cancellationsTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "get_cancellations",
		Description: "List canceled jobs with how much notice was given before the scheduled appointment, flagging late cancellations.",
		Parameters: dateParams(map[string]ParamDef{
			"technician_name": optionalTechnicianParam,
			"late_only": {
				Type:        ParamTypeBool,
				Description: "Only list cancellations inside the late window",
				Default:     false,
			},
		}),
		Category: CategoryQuality,
		Timeout:  defaultTimeout,
		WhenToUse: WhenToUse{
			Keywords: []string{"cancel", "canceled", "cancellations", "late cancel", "no show"},
			UseWhen:  "The caller asks about canceled jobs or last-minute cancellations.",
		},
	}
}

func (t *cancellationsTool) parseParams(m map[string]any) (CancellationsParams, query.DateRange, error) {
	a := newArgs(m)
	p := CancellationsParams{
		DateParams:     readDates(a),
		TechnicianName: a.str("technician_name"),
		LateOnly:       a.boolean("late_only", false),
	}
	if err := a.Err(); err != nil {
		return p, query.DateRange{}, err
	}
	name, err := query.OptionalName("technician_name", p.TechnicianName)
	if err != nil {
		return p, query.DateRange{}, err
	}
	p.TechnicianName = name
	rng, err := t.env.dates(p.DateParams)
	return p, rng, err
}

func (t *cancellationsTool) lateWindow() time.Duration {
	if t.env.LateWindow > 0 {
		return t.env.LateWindow
	}
	return analytics.DefaultLateWindow
}

// Execute runs the get_cancellations tool.
func (t *cancellationsTool) Execute(ctx context.Context, params TypedParams) (*Result, error) {
	p, rng, err := t.parseParams(params.ToMap())
	if err != nil {
		return failure(err), nil
	}

	ctx, span := cancellationsTracer.Start(ctx, "cancellationsTool.Execute",
		trace.WithAttributes(
			attribute.String("tool", "get_cancellations"),
			attribute.Bool("late_only", p.LateOnly),
			attribute.Bool("technician_filter", p.TechnicianName != ""),
			attribute.Int("range_days", rng.Days()+1),
		),
	)
	defer span.End()

	scheduled := query.DateRange{Start: rng.Start, End: rng.End.AddDate(0, 0, appointmentLookahead)}
	var (
		c     = t.env.collect()
		r     *roster
		types *query.NameSet
		tags  *query.NameSet
		jobs  []scrub.Job
		appts []scrub.Appointment
	)
	err = parallel(ctx,
		t.env.rosterInto(c, &r),
		namesInto(c, t.env.Source.JobTypes, &types),
		namesInto(c, t.env.Source.TagTypes, &tags),
		t.env.jobsInto(c, rng, 0, &jobs),
		t.env.appointmentsInto(c, scheduled, 0, &appts),
	)
	if err != nil {
		return failed(span, err)
	}
	tech, miss := r.resolveOptional(p.TechnicianName)
	if miss != nil {
		return unmatched(span, miss)
	}

	window := t.lateWindow()
	out := CancellationsOutput{
		Range:      rng.Label(),
		Technician: tech.Name,
		LateOnly:   p.LateOnly,
		LateWindow: window,
		Cancellations: analytics.BuildCancellations(jobs, appts, r.names, types, tags, analytics.CancellationOptions{
			LateWindow:   window,
			TechnicianID: tech.ID,
			LateOnly:     p.LateOnly,
		}),
	}
	span.SetAttributes(attribute.Int("canceled", out.Canceled), attribute.Int("late", out.LateCount))
	return succeeded(span, c.result(out, formatCancellations(out, t.env.loc())))
}

// notice renders how long before the appointment a job was canceled.
func notice(n analytics.Cancellation) string {
	h := n.Notice.Hours()
	switch {
	case n.Notice < 0:
		return "canceled after scheduled time"
	case n.Late && h < 1:
		return fmt.Sprintf("%.0f min before appointment (LATE)", n.Notice.Minutes())
	case n.Late:
		return fmt.Sprintf("%.1f hours before appointment (LATE)", h)
	case h <= 24:
		return fmt.Sprintf("%.1f hours before appointment", h)
	default:
		return fmt.Sprintf("%.1f days before appointment", h/24)
	}
}

func formatCancellations(out CancellationsOutput, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Cancellations  |  %s\n", out.Range)
	b.WriteString(rule(55) + "\n")
	if len(out.Items) == 0 {
		qualifier := ""
		if out.LateOnly {
			qualifier = " late"
		}
		fmt.Fprintf(&b, "No%s cancellations found in this date range.", qualifier)
		return b.String()
	}

	for _, item := range out.Items {
		line := fmt.Sprintf("Job #%s  |  %s  |  Canceled: %s", item.JobNumber, item.JobType, analytics.DateOf(item.CanceledAt, loc))
		if !item.ScheduledStart.IsZero() {
			line += "  |  Scheduled: " + analytics.DateOf(item.ScheduledStart, loc)
		}
		b.WriteString(line + "\n")
		fmt.Fprintf(&b, "  Tech: %s\n", item.Technician)
		if item.HasNotice {
			fmt.Fprintf(&b, "  Notice: %s\n", notice(item))
		}
		if len(item.Tags) > 0 {
			fmt.Fprintf(&b, "  Tags: %s\n", strings.Join(item.Tags, ", "))
		}
		b.WriteString("\n")
	}

	b.WriteString("Summary:\n")
	fmt.Fprintf(&b, "  Total cancellations: %d of %d jobs (%.1f%%)\n", out.Canceled, out.TotalJobs, out.CancelRate)
	fmt.Fprintf(&b, "  Late cancels (<%s): %d (%.1f%% of cancels)\n", analytics.Hours(out.LateWindow), out.LateCount, out.LateRate)
	if out.HasNotice {
		fmt.Fprintf(&b, "  Avg notice: %.1f hours\n", out.AvgNoticeHr)
	}
	if len(out.ByTechnician) > 0 {
		b.WriteString("\n  By technician:\n")
		for _, tc := range out.ByTechnician {
			fmt.Fprintf(&b, "    %s: %d cancels (%d late)\n", tc.Technician, tc.Total, tc.Late)
		}
	}
	return finish(&b)
}
