// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
	"github.com/AleutianAI/FieldLens/services/fieldlens/scrub"
)

// DiscountOptions filters BuildDiscounts.
type DiscountOptions struct {
	// TechnicianID, when non-zero, keeps only invoices whose job belongs to
	// that technician. It is applied before invoices are counted.
	TechnicianID int64

	// MinDiscount drops invoices whose total discount is below it.
	MinDiscount decimal.Decimal
}

// DiscountedInvoice is one invoice carrying at least one discount line.
type DiscountedInvoice struct {
	InvoiceID    int64           `json:"invoice_id"`
	JobNumber    string          `json:"job_number"`
	JobType      string          `json:"job_type"`
	BusinessUnit string          `json:"business_unit"`
	Technician   string          `json:"technician"`
	Date         time.Time       `json:"date"`
	Gross        decimal.Decimal `json:"gross"`
	Discount     decimal.Decimal `json:"discount"`
	Net          decimal.Decimal `json:"net"`
	DiscountPct  float64         `json:"discount_pct"`

	// Reasons are the distinct SKU names of the discount lines, sorted.
	Reasons []string `json:"reasons"`
}

// TechnicianDiscounts is a per-technician discount total.
type TechnicianDiscounts struct {
	Technician string          `json:"technician"`
	Count      int             `json:"count"`
	Total      decimal.Decimal `json:"total"`
}

// Discounts summarizes discounted invoices.
type Discounts struct {
	Items []DiscountedInvoice `json:"items"`

	// Invoices is the number of invoices that passed the technician filter.
	Invoices      int                   `json:"invoices"`
	Discounted    int                   `json:"discounted"`
	DiscountRate  float64               `json:"discount_rate_pct"`
	TotalDiscount decimal.Decimal       `json:"total_discount"`
	TotalGross    decimal.Decimal       `json:"total_gross"`
	TotalNet      decimal.Decimal       `json:"total_net"`
	RevenueImpact float64               `json:"revenue_impact_pct"`
	AvgDiscount   decimal.Decimal       `json:"avg_discount"`
	ByTechnician  []TechnicianDiscounts `json:"by_technician"`

	Anomalies []apierr.DataIntegrityError `json:"anomalies,omitempty"`
}

// BuildDiscounts extracts discount lines from invoices.
//
// Description:
//
//	A line is a discount when its price or total is negative; its amount
//	is abs(min(price, total)). The technician comes from the invoice's job
//	among jobs; an invoice whose job is not among jobs is Unassigned and
//	reported as a missing_job anomaly. Gross is the invoice subTotal and
//	net its total. Items are sorted by invoice date, then invoice id.
func BuildDiscounts(invoices []scrub.Invoice, jobs []scrub.Job, techs, types Names, opts DiscountOptions) Discounts {
	jobByID := make(map[int64]scrub.Job, len(jobs))
	for _, j := range jobs {
		jobByID[j.ID()] = j
	}

	out := Discounts{
		TotalDiscount: decimal.Zero,
		TotalGross:    decimal.Zero,
		TotalNet:      decimal.Zero,
		AvgDiscount:   decimal.Zero,
	}
	byTech := make(map[string]*TechnicianDiscounts)

	for _, inv := range invoices {
		var (
			job     scrub.Job
			found   bool
			techID  int64
			hasTech bool
		)
		if jid, ok := inv.JobID(); ok {
			job, found = jobByID[jid]
		}
		if found {
			techID, hasTech = job.TechnicianID()
		}
		if opts.TechnicianID != 0 && (!hasTech || techID != opts.TechnicianID) {
			continue
		}
		out.Invoices++

		total := decimal.Zero
		reasons := make(map[string]bool)
		for _, it := range inv.Items() {
			if !it.IsDiscount() {
				continue
			}
			total = total.Add(it.DiscountAmount())
			reason := it.SkuName()
			if reason == "" {
				reason = "Unknown"
			}
			reasons[reason] = true
		}
		if len(reasons) == 0 || total.LessThan(opts.MinDiscount) {
			continue
		}

		d := DiscountedInvoice{
			InvoiceID:    inv.ID(),
			JobNumber:    inv.JobNumber(),
			JobType:      inv.JobType(),
			BusinessUnit: inv.BusinessUnitName(),
			Technician:   Unassigned,
			Date:         inv.InvoiceDate(),
			Gross:        inv.SubTotal(),
			Discount:     total,
			Net:          inv.Total(),
		}
		if d.JobNumber == "" {
			d.JobNumber = Placeholder
		}
		if d.JobType == "" {
			d.JobType = Placeholder
		}
		if d.BusinessUnit == "" {
			d.BusinessUnit = Placeholder
		}
		if found {
			if tid, ok := job.JobTypeID(); ok {
				d.JobType = nameOr(types, tid, d.JobType)
			}
		} else {
			out.Anomalies = append(out.Anomalies, apierr.DataIntegrityError{
				Kind:     apierr.AnomalyMissingJob,
				RecordID: inv.ID(),
				Detail:   "invoice job is outside the fetched job window; technician unknown",
			})
		}
		if hasTech {
			d.Technician = nameOr(techs, techID, Unassigned)
		}
		if d.Gross.IsPositive() {
			d.DiscountPct = pctDec(d.Discount, d.Gross)
		}
		for r := range reasons {
			d.Reasons = append(d.Reasons, r)
		}
		sort.Strings(d.Reasons)

		out.Items = append(out.Items, d)
		out.TotalDiscount = out.TotalDiscount.Add(d.Discount)
		out.TotalGross = out.TotalGross.Add(d.Gross)
		out.TotalNet = out.TotalNet.Add(d.Net)

		td := byTech[d.Technician]
		if td == nil {
			td = &TechnicianDiscounts{Technician: d.Technician, Total: decimal.Zero}
			byTech[d.Technician] = td
		}
		td.Count++
		td.Total = td.Total.Add(d.Discount)
	}

	out.Discounted = len(out.Items)
	out.DiscountRate = pct(out.Discounted, out.Invoices)
	if out.TotalGross.IsPositive() {
		out.RevenueImpact = pctDec(out.TotalDiscount, out.TotalGross)
	}
	out.AvgDiscount = divN(out.TotalDiscount, out.Discounted)

	sort.Slice(out.Items, func(i, k int) bool {
		a, b := out.Items[i], out.Items[k]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.InvoiceID < b.InvoiceID
	})
	for _, td := range byTech {
		out.ByTechnician = append(out.ByTechnician, *td)
	}
	sort.Slice(out.ByTechnician, func(i, k int) bool {
		a, b := out.ByTechnician[i], out.ByTechnician[k]
		if c := a.Total.Cmp(b.Total); c != 0 {
			return c > 0
		}
		return a.Technician < b.Technician
	})
	sortAnomalies(out.Anomalies)
	return out
}
