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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/FieldLens/services/fieldlens/analytics"
)

var technicianRevenueTracer = otel.Tracer("tools.get_technician_revenue")

// TechnicianRevenueParams contains the validated input for get_technician_revenue.
type TechnicianRevenueParams struct {
	DateParams
	TechnicianName string
}

// ToolName returns the tool name for TypedParams interface.
func (p TechnicianRevenueParams) ToolName() string { return "get_technician_revenue" }

// ToMap converts typed parameters to the map consumed by Tool.Execute().
func (p TechnicianRevenueParams) ToMap() map[string]any {
	return p.put(map[string]any{"technician_name": p.TechnicianName})
}

// RevenueReportOutput is the revenue report of a technician or the business.
type RevenueReportOutput struct {
	// Technician is empty for the business-wide report.
	Technician string               `json:"technician,omitempty"`
	Range      string               `json:"range"`
	Summary    analytics.JobSummary `json:"summary"`
}

type technicianRevenueTool struct {
	env *Env
}

// NewTechnicianRevenueTool creates the get_technician_revenue tool.
func NewTechnicianRevenueTool(env *Env) Tool {
	return &technicianRevenueTool{env: env}
}

func (t *technicianRevenueTool) Name() string           { return "get_technician_revenue" }
func (t *technicianRevenueTool) Category() ToolCategory { return CategoryRevenue }

func (t *technicianRevenueTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "get_technician_revenue",
		Description: "Total revenue, billed and no-charge jobs, and revenue per billed job for one technician.",
		Parameters: dateParams(map[string]ParamDef{
			"technician_name": technicianNameParam,
		}),
		Category: CategoryRevenue,
		Timeout:  defaultTimeout,
		WhenToUse: WhenToUse{
			Keywords:  []string{"revenue", "sales", "how much", "earned", "$ per job"},
			UseWhen:   "The caller asks how much revenue a specific technician produced.",
			AvoidWhen: "The caller wants every technician ranked; use compare_technicians.",
		},
	}
}

// Execute runs the get_technician_revenue tool.
func (t *technicianRevenueTool) Execute(ctx context.Context, params TypedParams) (*Result, error) {
	_, name, rng, err := parseTechnicianRange(t.env, params.ToMap())
	if err != nil {
		return failure(err), nil
	}

	ctx, span := technicianRevenueTracer.Start(ctx, "technicianRevenueTool.Execute",
		trace.WithAttributes(
			attribute.String("tool", "get_technician_revenue"),
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
	jobs, f, err := t.env.Source.Jobs(ctx, rng, tech.ID)
	if err != nil {
		return failed(span, err)
	}
	c.fetched(f)

	out := RevenueReportOutput{Technician: tech.Name, Range: rng.Label(), Summary: analytics.SummarizeJobs(jobs)}
	c.flag(out.Summary.Anomalies...)
	return succeeded(span, c.result(out, formatRevenueReport(out)))
}

func formatRevenueReport(out RevenueReportOutput) string {
	s := out.Summary
	var b strings.Builder
	if out.Technician != "" {
		fmt.Fprintf(&b, "Revenue for %s  |  %s\n", out.Technician, out.Range)
		b.WriteString(rule(45) + "\n")
		fmt.Fprintf(&b, "Total revenue:    %s\n", analytics.Currency(s.Revenue))
		fmt.Fprintf(&b, "Total jobs:       %d\n", s.Total)
		fmt.Fprintf(&b, "  Billed:         %d   (%s)\n", s.Billed, analytics.Currency(s.Revenue))
		fmt.Fprintf(&b, "  No-charge:      %d\n", s.NoCharge)
		if s.Billed > 0 {
			fmt.Fprintf(&b, "Revenue per job:  %s\n", analytics.Currency(s.RevenuePerBilled))
		}
	} else {
		fmt.Fprintf(&b, "Business Revenue Summary  |  %s\n", out.Range)
		b.WriteString(rule(45) + "\n")
		fmt.Fprintf(&b, "Total revenue:   %s\n", analytics.Currency(s.Revenue))
		fmt.Fprintf(&b, "Total jobs:      %d\n", s.Total)
		fmt.Fprintf(&b, "  Billed:        %d\n", s.Billed)
		fmt.Fprintf(&b, "  No-charge:     %d\n", s.NoCharge)
		if s.Billed > 0 {
			fmt.Fprintf(&b, "Revenue per job: %s\n", analytics.Currency(s.RevenuePerBilled))
		}
	}
	if s.Total == 0 {
		b.WriteString("\n" + noCompletedJobs + "\n")
	}
	return finish(&b)
}
