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

var discountsTracer = otel.Tracer("tools.get_technician_discounts")

// DiscountsParams contains the validated input for get_technician_discounts.
type DiscountsParams struct {
	DateParams
	TechnicianName    string
	MinDiscountAmount float64
}

// ToolName returns the tool name for TypedParams interface.
func (p DiscountsParams) ToolName() string { return "get_technician_discounts" }

// ToMap converts typed parameters to the map consumed by Tool.Execute().
func (p DiscountsParams) ToMap() map[string]any {
	m := map[string]any{"min_discount_amount": p.MinDiscountAmount}
	if p.TechnicianName != "" {
		m["technician_name"] = p.TechnicianName
	}
	return p.put(m)
}

// DiscountsOutput contains the structured result.
type DiscountsOutput struct {
	Range      string `json:"range"`
	Technician string `json:"technician,omitempty"`
	analytics.Discounts
}

type discountsTool struct {
	env *Env
}

// NewDiscountsTool creates the get_technician_discounts tool.
func NewDiscountsTool(env *Env) Tool {
	return &discountsTool{env: env}
}

func (t *discountsTool) Name() string           { return "get_technician_discounts" }
func (t *discountsTool) Category() ToolCategory { return CategoryQuality }

func (t *discountsTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        "get_technician_discounts",
		Description: "List invoices carrying discount lines with gross, discount, and net amounts, and totals per technician.",
		Parameters: dateParams(map[string]ParamDef{
			"technician_name": optionalTechnicianParam,
			"min_discount_amount": {
				Type:        ParamTypeFloat,
				Description: "Only list invoices whose total discount is at least this many dollars",
				Default:     0,
			},
		}),
		Category: CategoryQuality,
		Timeout:  defaultTimeout,
		WhenToUse: WhenToUse{
			Keywords: []string{"discount", "coupon", "price reduction", "gave away"},
			UseWhen:  "The caller asks who is discounting and by how much.",
		},
	}
}

func (t *discountsTool) parseParams(m map[string]any) (DiscountsParams, query.DateRange, error) {
	a := newArgs(m)
	p := DiscountsParams{
		DateParams:        readDates(a),
		TechnicianName:    a.str("technician_name"),
		MinDiscountAmount: a.float("min_discount_amount", 0),
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

// Execute runs the get_technician_discounts tool.
func (t *discountsTool) Execute(ctx context.Context, params TypedParams) (*Result, error) {
	p, rng, err := t.parseParams(params.ToMap())
	if err != nil {
		return failure(err), nil
	}
	minDiscount, err := query.MinAmount("min_discount_amount", p.MinDiscountAmount)
	if err != nil {
		return failure(err), nil
	}

	ctx, span := discountsTracer.Start(ctx, "discountsTool.Execute",
		trace.WithAttributes(
			attribute.String("tool", "get_technician_discounts"),
			attribute.Bool("technician_filter", p.TechnicianName != ""),
			attribute.Int("range_days", rng.Days()+1),
		),
	)
	defer span.End()

	var (
		c        = t.env.collect()
		r        *roster
		types    *query.NameSet
		jobs     []scrub.Job
		invoices []scrub.Invoice
	)
	err = parallel(ctx,
		t.env.rosterInto(c, &r),
		namesInto(c, t.env.Source.JobTypes, &types),
		t.env.jobsInto(c, rng, 0, &jobs),
		func(ctx context.Context) error {
			v, f, err := t.env.Source.Invoices(ctx, rng)
			if err != nil {
				return err
			}
			c.fetched(f)
			invoices = v
			return nil
		},
	)
	if err != nil {
		return failed(span, err)
	}
	tech, miss := r.resolveOptional(p.TechnicianName)
	if miss != nil {
		return unmatched(span, miss)
	}

	out := DiscountsOutput{
		Range:      rng.Label(),
		Technician: tech.Name,
		Discounts: analytics.BuildDiscounts(invoices, jobs, r.names, types, analytics.DiscountOptions{
			TechnicianID: tech.ID,
			MinDiscount:  minDiscount,
		}),
	}
	c.flag(out.Anomalies...)
	span.SetAttributes(attribute.Int("invoices", out.Invoices), attribute.Int("discounted", out.Discounted))
	return succeeded(span, c.result(out, formatDiscounts(out, t.env.loc())))
}

func formatDiscounts(out DiscountsOutput, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Discount Report  |  %s\n", out.Range)
	b.WriteString(rule(55) + "\n")
	if len(out.Items) == 0 {
		b.WriteString("No discounted invoices found in this date range.")
		return b.String()
	}

	for _, d := range out.Items {
		fmt.Fprintf(&b, "Job #%s  |  %s  |  %s  |  %s\n",
			orPlaceholder(d.JobNumber), analytics.DateOf(d.Date, loc), orPlaceholder(d.JobType), orPlaceholder(d.BusinessUnit))
		fmt.Fprintf(&b, "  Gross: %s  |  Discount: %s (%.1f%%)  |  Net: %s\n",
			analytics.Currency(d.Gross), analytics.Currency(d.Discount), d.DiscountPct, analytics.Currency(d.Net))
		fmt.Fprintf(&b, "  Tech: %s\n", d.Technician)
		if len(d.Reasons) > 0 {
			fmt.Fprintf(&b, "  Reason: %s\n", strings.Join(d.Reasons, ", "))
		}
		b.WriteString("\n")
	}

	b.WriteString("Summary:\n")
	fmt.Fprintf(&b, "  %d of %d invoices discounted (%.1f%%)\n", out.Discounted, out.Invoices, out.DiscountRate)
	fmt.Fprintf(&b, "  Total discounted: %s\n", analytics.Currency(out.TotalDiscount))
	fmt.Fprintf(&b, "  Gross revenue: %s  |  Net revenue: %s\n", analytics.Currency(out.TotalGross), analytics.Currency(out.TotalNet))
	fmt.Fprintf(&b, "  Revenue impact: %.1f%%\n", out.RevenueImpact)
	fmt.Fprintf(&b, "  Avg discount: %s per discounted job\n", analytics.Currency(out.AvgDiscount))
	if len(out.ByTechnician) > 0 {
		b.WriteString("\n  By technician:\n")
		for _, td := range out.ByTechnician {
			fmt.Fprintf(&b, "    %s: %d %s, %s total\n", td.Technician, td.Count, plural(td.Count, "discount", "discounts"), analytics.Currency(td.Total))
		}
	}
	return finish(&b)
}
