// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package scrub

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
)

type rawInvoiceJob struct {
	ID     int64  `json:"id"`
	Number string `json:"number"`
	Type   string `json:"type"`
}

type rawNamedRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// rawInvoiceItem omits description and memo fields, which are free text.
type rawInvoiceItem struct {
	Price   *decimal.Decimal `json:"price"`
	Total   *decimal.Decimal `json:"total"`
	SkuName string           `json:"skuName"`
	Type    string           `json:"type"`
}

// rawInvoice is the invoice allow-list. Customer, location, address and
// summary fields are not declared.
type rawInvoice struct {
	ID           int64            `json:"id"`
	InvoiceDate  *string          `json:"invoiceDate"`
	SubTotal     *decimal.Decimal `json:"subTotal"`
	Total        *decimal.Decimal `json:"total"`
	Job          *rawInvoiceJob   `json:"job"`
	BusinessUnit *rawNamedRef     `json:"businessUnit"`
	Items        []rawInvoiceItem `json:"items"`
}

// InvoiceItem is one scrubbed invoice line.
type InvoiceItem struct {
	price   decimal.Decimal
	total   decimal.Decimal
	skuName string
	kind    string
}

func (i InvoiceItem) Price() decimal.Decimal { return i.price }
func (i InvoiceItem) Total() decimal.Decimal { return i.total }
func (i InvoiceItem) SkuName() string        { return i.skuName }
func (i InvoiceItem) Type() string           { return i.kind }

// IsDiscount reports whether the line is a discount or credit.
func (i InvoiceItem) IsDiscount() bool {
	return i.price.IsNegative() || i.total.IsNegative()
}

// DiscountAmount returns abs(min(price, total)) for discount lines and zero
// otherwise.
func (i InvoiceItem) DiscountAmount() decimal.Decimal {
	if !i.IsDiscount() {
		return decimal.Zero
	}
	return decimal.Min(i.price, i.total).Abs()
}

// Invoice is a scrubbed invoice.
type Invoice struct {
	id               int64
	invoiceDate      time.Time
	subTotal         decimal.Decimal
	total            decimal.Decimal
	jobID            optionalID
	jobNumber        string
	jobType          string
	businessUnitID   optionalID
	businessUnitName string
	items            []InvoiceItem
}

// ScrubInvoice projects a raw invoice onto the invoice allow-list.
func ScrubInvoice(raw json.RawMessage) (Invoice, error) {
	var r rawInvoice
	if err := decode("invoice", raw, &r); err != nil {
		return Invoice{}, err
	}
	if r.ID == 0 {
		return Invoice{}, malformedNoID("invoice")
	}
	inv := Invoice{
		id:          r.ID,
		invoiceDate: parseTime(r.InvoiceDate),
		subTotal:    decOrZero(r.SubTotal),
		total:       decOrZero(r.Total),
	}
	if r.Job != nil {
		inv.jobID = newOptionalID(&r.Job.ID)
		inv.jobNumber = r.Job.Number
		inv.jobType = r.Job.Type
	}
	if r.BusinessUnit != nil {
		inv.businessUnitID = newOptionalID(&r.BusinessUnit.ID)
		inv.businessUnitName = r.BusinessUnit.Name
	}
	for _, it := range r.Items {
		inv.items = append(inv.items, InvoiceItem{
			price:   decOrZero(it.Price),
			total:   decOrZero(it.Total),
			skuName: it.SkuName,
			kind:    it.Type,
		})
	}
	return inv, nil
}

// ScrubInvoices scrubs a batch of raw invoices, preserving order.
// Records that fail to scrub are skipped and returned as anomalies.
func ScrubInvoices(raws []json.RawMessage) ([]Invoice, []apierr.DataIntegrityError) {
	return scrubAll(raws, ScrubInvoice)
}

func decOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func (v Invoice) ID() int64                     { return v.id }
func (v Invoice) InvoiceDate() time.Time        { return v.invoiceDate }
func (v Invoice) SubTotal() decimal.Decimal     { return v.subTotal }
func (v Invoice) Total() decimal.Decimal        { return v.total }
func (v Invoice) JobID() (int64, bool)          { return v.jobID.get() }
func (v Invoice) JobNumber() string             { return v.jobNumber }
func (v Invoice) JobType() string               { return v.jobType }
func (v Invoice) BusinessUnitID() (int64, bool) { return v.businessUnitID.get() }
func (v Invoice) BusinessUnitName() string      { return v.businessUnitName }

// Items returns a copy of the invoice lines.
func (v Invoice) Items() []InvoiceItem { return append([]InvoiceItem(nil), v.items...) }
