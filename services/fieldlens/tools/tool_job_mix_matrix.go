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
	"github.com/AleutianAI/FieldLens/services/fieldlens/query"
	"github.com/AleutianAI/FieldLens/services/fieldlens/records"
)

var jobMixMatrixTracer = otel.Tracer("tools.compare_technician_job_mix")

const (
	// matrixColumn is the width of a technician column.
	matrixColumn = 14

	// matrixHeading truncates technician names in column headings.
	matrixHeading = 12
)

// JobMixMatrixParams contains the validated input for compare_technician_job_mix.
type JobMixMatrixParams struct {
	DateParams

	// JobType restricts the matrix to one job type. Optional.
	JobType string
}

// ToolName returns the tool name for TypedParams interface.
func (p JobMixMatrixParams) ToolName() string { return "compare_technician_job_mix" }

// ToMap converts typed parameters to the map consumed by Tool.Execute().
func (p JobMixMatrixParams) ToMap() map[string]any {
	m := map[string]any{}
	if p.JobType != "" {
		m["job_type"] = p.JobType
	}
	return p.put(m)
}

// MatrixOutput contains the structured result.
type MatrixOutput struct {
	Range   string `json:"range"`
	JobType string `json:"job_type,omitempty"`
	analytics.Matrix
}

type jobMixMatrixTool struct {
	env *Env
}

// NewJobMixMatrixTool creates the compare_technician_job_mix tool.
func NewJobMixMatrixTool(env *Env) Tool {
	return &jobMixMatrixTool{env: env}
}

func (t *jobMixMatrixTool) Name() string           { return "compare_technician_job_mix" }
func (t *jobMixMatrixTool) Category() ToolCategory { return CategoryRevenue }

func (t *jobMixMatrixTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "compare_technician_job_mix",
		Description: "Technician by job type matrix of job counts and average billed revenue, with each technician's variance from the company average.",
		Parameters: dateParams(map[string]ParamDef{
			"job_type": {
				Type:        ParamTypeString,
				Description: "Optional exact job type name to compare technicians within one type",
			},
		}),
		Category: CategoryRevenue,
		Timeout:  fanOutTimeout,
		WhenToUse: WhenToUse{
			Keywords: []string{"matrix", "who does which jobs", "compare job mix", "above average"},
			UseWhen:  "The caller wants to see which technicians handle which job types and how their revenue per job compares.",
		},
	}
}

func (t *jobMixMatrixTool) parseParams(m map[string]any) (JobMixMatrixParams, query.DateRange, error) {
	a := newArgs(m)
	p := JobMixMatrixParams{DateParams: readDates(a), JobType: a.str("job_type")}
	if err := a.Err(); err != nil {
		return p, query.DateRange{}, err
	}
	if p.JobType = strings.TrimSpace(p.JobType); p.JobType != "" {
		jt, err := query.SearchText("job_type", p.JobType)
		if err != nil {
			return p, query.DateRange{}, err
		}
		p.JobType = jt
	}
	rng, err := t.env.dates(p.DateParams)
	return p, rng, err
}

// Execute runs the compare_technician_job_mix tool.
//
// Description:
//
//	Jobs are fetched per technician, as in compare_technicians, so a
//	technician's cells add up to their own job mix report.
func (t *jobMixMatrixTool) Execute(ctx context.Context, params TypedParams) (*Result, error) {
	p, rng, err := t.parseParams(params.ToMap())
	if err != nil {
		return failure(err), nil
	}

	ctx, span := jobMixMatrixTracer.Start(ctx, "jobMixMatrixTool.Execute",
		trace.WithAttributes(
			attribute.String("tool", "compare_technician_job_mix"),
			attribute.Bool("job_type_filter", p.JobType != ""),
			attribute.Int("range_days", rng.Days()+1),
		),
	)
	defer span.End()

	var (
		c     = t.env.collect()
		r     *roster
		types *query.NameSet
	)
	if err := parallel(ctx, t.env.rosterInto(c, &r), namesInto(c, t.env.Source.JobTypes, &types)); err != nil {
		return failed(span, err)
	}

	var only query.Candidate
	if p.JobType != "" {
		found, unknown := types.Resolve([]string{p.JobType})
		if len(unknown) > 0 {
			available := sample(types.Names())
			text := fmt.Sprintf("Unknown job type: %q.\nAvailable job types (sample): %s", p.JobType, strings.Join(available, ", "))
			return unmatched(span, unknownNames(text, unknown, available))
		}
		only = found[0]
	}

	branches, meta := t.env.Source.JobsByTechnician(ctx, rng, records.Branches(r.techs))
	c.fanned(records.ResourceJobs, meta)
	if err := ctx.Err(); err != nil {
		return failed(span, err)
	}

	out := MatrixOutput{Range: rng.Label(), JobType: only.Name, Matrix: analytics.BuildMatrix(branches, types, only.ID)}
	c.flag(out.Anomalies...)
	span.SetAttributes(attribute.Int("rows", len(out.Rows)), attribute.Int("technicians", len(out.Technicians)))
	return succeeded(span, c.result(out, formatMatrix(out)))
}

func matrixCell(c analytics.MatrixCell) string {
	switch {
	case c.Billed == 0:
		return fmt.Sprintf("%d", c.Jobs)
	case c.HasVariance:
		sign := ""
		if c.Variance >= 0 {
			sign = "+"
		}
		return fmt.Sprintf("%d/%s(%s%.0f%%)", c.Jobs, analytics.CurrencyShort(c.Avg), sign, c.Variance)
	default:
		return fmt.Sprintf("%d/%s", c.Jobs, analytics.CurrencyShort(c.Avg))
	}
}

func formatMatrix(out MatrixOutput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Technician Job Mix Comparison  |  %s\n", out.Range)
	if len(out.Rows) == 0 {
		b.WriteString(rule(55) + "\n")
		b.WriteString(noJobs)
		return b.String()
	}

	names := make([]string, 0, len(out.Rows))
	for _, row := range out.Rows {
		names = append(names, row.Name)
	}
	tw := nameWidth(10, "Job Type", names...)

	headings := make([]string, 0, len(out.Technicians))
	for _, tech := range out.Technicians {
		name := []rune(tech.Name)
		if len(name) > matrixHeading {
			name = name[:matrixHeading]
		}
		headings = append(headings, fmt.Sprintf("%*s", matrixColumn, string(name)))
	}
	tab := newTable(&b, fmt.Sprintf("%-*s  %*s  %s", tw, "Job Type", matrixColumn, "Co. Avg", strings.Join(headings, "  ")))

	for _, row := range out.Rows {
		co := fmt.Sprintf("%d", row.CompanyJobs)
		if row.CompanyBilled > 0 {
			co = fmt.Sprintf("%d/%s", row.CompanyJobs, analytics.CurrencyShort(row.CompanyAvg))
		}
		cells := make([]string, 0, len(out.Technicians))
		for _, tech := range out.Technicians {
			v := analytics.Placeholder
			if cell, ok := row.Cells[tech.TechnicianID]; ok {
				v = matrixCell(cell)
			}
			cells = append(cells, fmt.Sprintf("%*s", matrixColumn, v))
		}
		tab.line(fmt.Sprintf("%-*s  %*s  %s", tw, row.Name, matrixColumn, co, strings.Join(cells, "  ")))
	}
	tab.rule()
	b.WriteString("(cells: jobs/$avg per billed job(variance from company avg))\n")
	return finish(&b)
}
