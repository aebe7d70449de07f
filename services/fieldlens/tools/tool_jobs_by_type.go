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

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/FieldLens/services/fieldlens/analytics"
	"github.com/AleutianAI/FieldLens/services/fieldlens/query"
	"github.com/AleutianAI/FieldLens/services/fieldlens/scrub"
)

var jobsByTypeTracer = otel.Tracer("tools.get_jobs_by_type")

// JobsByTypeParams contains the validated input for get_jobs_by_type.
type JobsByTypeParams struct {
	DateParams

	// JobTypes is a comma-separated list of exact job type names.
	JobTypes string

	TechnicianName string

	// Status is Completed, Canceled, or All.
	Status string
}

// ToolName returns the tool name for TypedParams interface.
func (p JobsByTypeParams) ToolName() string { return "get_jobs_by_type" }

// ToMap converts typed parameters to the map consumed by Tool.Execute().
func (p JobsByTypeParams) ToMap() map[string]any {
	m := map[string]any{"job_types": p.JobTypes}
	if p.TechnicianName != "" {
		m["technician_name"] = p.TechnicianName
	}
	if p.Status != "" {
		m["status"] = p.Status
	}
	return p.put(m)
}

// JobLine is one job in a listing.
type JobLine struct {
	JobID        int64           `json:"job_id"`
	JobNumber    string          `json:"job_number"`
	Date         string          `json:"date"`
	Total        decimal.Decimal `json:"total"`
	NoCharge     bool            `json:"no_charge"`
	BusinessUnit string          `json:"business_unit,omitempty"`
	JobType      string          `json:"job_type,omitempty"`

	// RelatedJobID is the original job of a recall.
	RelatedJobID int64 `json:"related_job_id,omitempty"`
}

func jobLine(j scrub.Job, loc *time.Location, units *query.NameSet) JobLine {
	l := JobLine{
		JobID:        j.ID(),
		JobNumber:    j.Number(),
		Date:         analytics.DateOf(j.CompletedOn(), loc),
		Total:        j.Total(),
		NoCharge:     j.NoCharge(),
		BusinessUnit: analytics.Placeholder,
	}
	if id, ok := j.BusinessUnitID(); ok && units != nil {
		l.BusinessUnit = units.NameOr(id, analytics.Placeholder)
	}
	if id, ok := j.RecallForID(); ok {
		l.RelatedJobID = id
	}
	return l
}

// TypedJobLine is one job with its assigned technicians.
type TypedJobLine struct {
	JobLine
	Technicians []analytics.AssignedTechnician `json:"technicians"`
}

// JobsByTypeOutput contains the structured result.
type JobsByTypeOutput struct {
	Range        string                      `json:"range"`
	JobTypes     []string                    `json:"job_types"`
	Technician   string                      `json:"technician,omitempty"`
	Status       string                      `json:"status"`
	Jobs         []TypedJobLine              `json:"jobs"`
	TotalJobs    int                         `json:"total_jobs"`
	TotalRevenue decimal.Decimal             `json:"total_revenue"`
	NoCharge     int                         `json:"no_charge_count"`
	ByTechnician []analytics.TechnicianCount `json:"technician_summary"`
}

type jobsByTypeTool struct {
	env *Env
}

// NewJobsByTypeTool creates the get_jobs_by_type tool.
func NewJobsByTypeTool(env *Env) Tool {
	return &jobsByTypeTool{env: env}
}

func (t *jobsByTypeTool) Name() string           { return "get_jobs_by_type" }
func (t *jobsByTypeTool) Category() ToolCategory { return CategoryJobs }

func (t *jobsByTypeTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "get_jobs_by_type",
		Description: "List individual jobs of the given job types with every technician assigned to each job.",
		Parameters: dateParams(map[string]ParamDef{
			"job_types": {
				Type:        ParamTypeString,
				Description: "Comma-separated exact job type names, e.g. 'Tune-Up, No Cool'",
				Required:    true,
			},
			"technician_name": optionalTechnicianParam,
			"status": {
				Type:        ParamTypeString,
				Description: "Job status filter",
				Default:     string(query.StatusAll),
				Enum:        []any{string(query.StatusCompleted), string(query.StatusCanceled), string(query.StatusAll)},
			},
		}),
		Category: CategoryJobs,
		Timeout:  defaultTimeout,
		WhenToUse: WhenToUse{
			Keywords: []string{"job type", "which jobs", "list jobs", "ride-along", "who was on"},
			UseWhen:  "The caller wants job-level detail for specific job types, including helper technicians.",
		},
	}
}

func (t *jobsByTypeTool) parseParams(m map[string]any) (JobsByTypeParams, []string, query.Status, query.DateRange, error) {
	a := newArgs(m)
	p := JobsByTypeParams{
		DateParams:     readDates(a),
		JobTypes:       a.list("job_types"),
		TechnicianName: a.str("technician_name"),
		Status:         a.str("status"),
	}
	if err := a.Err(); err != nil {
		return p, nil, "", query.DateRange{}, err
	}
	types, err := query.List("job_types", p.JobTypes)
	if err != nil {
		return p, nil, "", query.DateRange{}, err
	}
	if p.TechnicianName, err = query.OptionalName("technician_name", p.TechnicianName); err != nil {
		return p, nil, "", query.DateRange{}, err
	}
	status, err := query.ParseStatus(p.Status)
	if err != nil {
		return p, nil, "", query.DateRange{}, err
	}
	rng, err := t.env.dates(p.DateParams)
	return p, types, status, rng, err
}

// Execute runs the get_jobs_by_type tool.
func (t *jobsByTypeTool) Execute(ctx context.Context, params TypedParams) (*Result, error) {
	p, wanted, status, rng, err := t.parseParams(params.ToMap())
	if err != nil {
		return failure(err), nil
	}

	ctx, span := jobsByTypeTracer.Start(ctx, "jobsByTypeTool.Execute",
		trace.WithAttributes(
			attribute.String("tool", "get_jobs_by_type"),
			attribute.Int("job_types", len(wanted)),
			attribute.String("status", string(status)),
			attribute.Bool("technician_filter", p.TechnicianName != ""),
		),
	)
	defer span.End()

	var (
		c     = t.env.collect()
		r     *roster
		types *query.NameSet
		units *query.NameSet
		jobs  []scrub.Job
		appts []scrub.Appointment
	)
	err = parallel(ctx,
		t.env.rosterInto(c, &r),
		namesInto(c, t.env.Source.JobTypes, &types),
		namesInto(c, t.env.Source.BusinessUnits, &units),
		t.env.jobsInto(c, rng, 0, &jobs),
		t.env.appointmentsInto(c, rng, 0, &appts),
	)
	if err != nil {
		return failed(span, err)
	}

	found, unknown := types.Resolve(wanted)
	if len(unknown) > 0 {
		available := sample(types.Names())
		text := fmt.Sprintf("Unknown job type(s): %s.\nAvailable job types (sample): %s",
			strings.Join(unknown, ", "), strings.Join(available, ", "))
		return unmatched(span, unknownNames(text, unknown, available))
	}
	tech, miss := r.resolveOptional(p.TechnicianName)
	if miss != nil {
		return unmatched(span, miss)
	}

	opts := analytics.TypeListingOptions{TypeIDs: make(map[int64]bool, len(found)), TechnicianID: tech.ID}
	if status != query.StatusAll {
		opts.Status = string(status)
	}
	out := JobsByTypeOutput{Range: rng.Label(), Technician: tech.Name, Status: string(status), Jobs: []TypedJobLine{}}
	for _, f := range found {
		opts.TypeIDs[f.ID] = true
		out.JobTypes = append(out.JobTypes, f.Name)
	}

	listing := analytics.JobsByType(jobs, appts, r.names, types, opts)
	for _, item := range listing.Items {
		line := TypedJobLine{JobLine: jobLine(item.Job, t.env.loc(), units), Technicians: item.Technicians}
		line.JobType = item.JobType
		out.Jobs = append(out.Jobs, line)
	}
	out.TotalJobs = listing.TotalJobs
	out.TotalRevenue = listing.TotalRevenue
	out.NoCharge = listing.NoChargeCount
	out.ByTechnician = listing.ByTechnician

	span.SetAttributes(attribute.Int("jobs", out.TotalJobs))
	return succeeded(span, c.result(out, formatJobsByType(out)))
}

func formatJobsByType(out JobsByTypeOutput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Jobs  |  %s\n", strings.Join(out.JobTypes, ", "), out.Range)
	b.WriteString(rule(50) + "\n")
	if len(out.Jobs) == 0 {
		b.WriteString("No matching jobs found in this date range.")
		return b.String()
	}

	for _, j := range out.Jobs {
		fmt.Fprintf(&b, "Job #%s  |  %s  |  %s  |  %s\n", j.JobNumber, j.Date, analytics.Currency(j.Total), j.BusinessUnit)
		if len(j.Technicians) == 0 {
			b.WriteString("  Technicians: " + analytics.Placeholder + "\n")
		} else {
			labels := make([]string, 0, len(j.Technicians))
			for _, at := range j.Technicians {
				labels = append(labels, at.Label())
			}
			b.WriteString("  Technicians: " + strings.Join(labels, ", ") + "\n")
		}
		if j.RelatedJobID != 0 {
			fmt.Fprintf(&b, "  Related job: %d\n", j.RelatedJobID)
		}
		b.WriteString("\n")
	}

	b.WriteString("Summary:\n")
	fmt.Fprintf(&b, "  total_jobs: %d\n", out.TotalJobs)
	fmt.Fprintf(&b, "  total_revenue: %s\n", analytics.Currency(out.TotalRevenue))
	fmt.Fprintf(&b, "  no_charge_count: %d\n", out.NoCharge)
	if len(out.ByTechnician) > 0 {
		parts := make([]string, 0, len(out.ByTechnician))
		for _, tc := range out.ByTechnician {
			parts = append(parts, fmt.Sprintf("%s: %d", tc.Name, tc.Jobs))
		}
		b.WriteString("  technician_summary: " + strings.Join(parts, "  |  ") + "\n")
	}
	return finish(&b)
}
