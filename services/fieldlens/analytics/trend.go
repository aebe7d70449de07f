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

	"github.com/AleutianAI/FieldLens/services/fieldlens/scrub"
)

// Month is one calendar bucket of a trend.
type Month struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`

	// Label is "Jan", or "Jan 25" when the trend crosses a year boundary.
	Label string `json:"label"`
}

// MonthCell is one group's figures in one month. Avg covers billed jobs
// only.
type MonthCell struct {
	Jobs    int             `json:"jobs"`
	Billed  int             `json:"billed"`
	Revenue decimal.Decimal `json:"revenue"`
	Avg     decimal.Decimal `json:"avg_per_billed_job"`
}

// TrendRow is one group across every month. Revenue and Avg cover billed
// jobs only.
type TrendRow struct {
	ID      int64           `json:"id"`
	Name    string          `json:"name"`
	Jobs    int             `json:"jobs"`
	Billed  int             `json:"billed"`
	Revenue decimal.Decimal `json:"revenue"`
	Avg     decimal.Decimal `json:"avg_per_billed_job"`
	Months  []MonthCell     `json:"months"`

	// Change is the percent change of the monthly average from the first
	// to the last month that has billed jobs. HasChange is false with fewer
	// than two such months or a zero first average.
	Change    float64 `json:"change_pct"`
	HasChange bool    `json:"has_change"`
}

// Trend is monthly revenue per group.
type Trend struct {
	Months    []Month    `json:"months"`
	CrossYear bool       `json:"cross_year"`
	Rows      []TrendRow `json:"rows"`
	Total     TrendRow   `json:"total"`

	// Ungrouped counts jobs skipped for lacking a group id.
	Ungrouped int `json:"ungrouped"`
}

// MonthsBetween lists the calendar months touched by [start, end) in loc.
func MonthsBetween(start, end time.Time, loc *time.Location) ([]Month, bool) {
	loc = orUTC(loc)
	if !end.After(start) {
		return nil, false
	}
	first := start.In(loc)
	last := end.Add(-time.Nanosecond).In(loc)
	cross := first.Year() != last.Year()

	var out []Month
	cur := time.Date(first.Year(), first.Month(), 1, 0, 0, 0, 0, loc)
	stop := time.Date(last.Year(), last.Month(), 1, 0, 0, 0, 0, loc)
	for !cur.After(stop) {
		label := cur.Format("Jan")
		if cross {
			label = cur.Format("Jan 06")
		}
		out = append(out, Month{Year: cur.Year(), Month: cur.Month(), Label: label})
		cur = cur.AddDate(0, 1, 0)
	}
	return out, cross
}

// BuildTrend buckets jobs by completion month and group.
//
// Description:
//
//	Jobs without a group id or completion time are skipped. Rows are sorted
//	by total revenue descending, then name. Total aggregates every row.
//
// Inputs:
//   - jobs: Completed jobs in the window.
//   - dim: ByJobType or ByBusinessUnit.
//   - start, end: The half-open window.
//   - loc: Business timezone used to assign months.
func BuildTrend(jobs []scrub.Job, dim Dimension, start, end time.Time, loc *time.Location) Trend {
	loc = orUTC(loc)
	months, cross := MonthsBetween(start, end, loc)
	out := Trend{Months: months, CrossYear: cross}
	index := make(map[[2]int]int, len(months))
	for i, m := range months {
		index[[2]int{m.Year, int(m.Month)}] = i
	}

	rows := make(map[int64]*TrendRow)
	out.Total = newTrendRow(0, "TOTAL", len(months))
	for _, j := range jobs {
		id, ok := dim.ID(j)
		if !ok {
			out.Ungrouped++
			continue
		}
		done := j.CompletedOn()
		if done.IsZero() {
			continue
		}
		local := done.In(loc)
		mi, ok := index[[2]int{local.Year(), int(local.Month())}]
		if !ok {
			continue
		}
		r := rows[id]
		if r == nil {
			nr := newTrendRow(id, nameOr(dim.Names, id, UnknownGroup+" "+itoa(id)), len(months))
			r = &nr
			rows[id] = r
		}
		r.add(mi, j)
		out.Total.add(mi, j)
	}

	for _, r := range rows {
		r.finish()
		out.Rows = append(out.Rows, *r)
	}
	out.Total.finish()
	sort.Slice(out.Rows, func(i, k int) bool {
		a, b := out.Rows[i], out.Rows[k]
		if c := a.Revenue.Cmp(b.Revenue); c != 0 {
			return c > 0
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return out
}

func newTrendRow(id int64, name string, months int) TrendRow {
	r := TrendRow{ID: id, Name: name, Revenue: decimal.Zero, Avg: decimal.Zero, Months: make([]MonthCell, months)}
	for i := range r.Months {
		r.Months[i] = MonthCell{Revenue: decimal.Zero, Avg: decimal.Zero}
	}
	return r
}

func (r *TrendRow) add(month int, j scrub.Job) {
	c := &r.Months[month]
	r.Jobs++
	c.Jobs++
	r.Revenue = r.Revenue.Add(j.Total())
	c.Revenue = c.Revenue.Add(j.Total())
	if !j.NoCharge() {
		r.Billed++
		c.Billed++
	}
}

func (r *TrendRow) finish() {
	r.Avg = divN(r.Revenue, r.Billed)
	var first, last *MonthCell
	for i := range r.Months {
		c := &r.Months[i]
		c.Avg = divN(c.Revenue, c.Billed)
		if c.Billed == 0 {
			continue
		}
		if first == nil {
			first = c
		}
		last = c
	}
	if first != nil && first != last && !first.Avg.IsZero() {
		r.Change = pctDec(last.Avg.Sub(first.Avg), first.Avg)
		r.HasChange = true
	}
}
