// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package query normalizes tool input into canonical queries.
//
// Every function either returns a canonical value or an
// *apierr.ValidationError naming the field and the failed constraint. Nothing
// here touches the network.
package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
)

// DateLayout is the only accepted date input format.
const DateLayout = "2006-01-02"

// DefaultMaxRangeDays is used when a Normalizer has no explicit limit.
const DefaultMaxRangeDays = 90

// DateRange is an inclusive range of calendar days in the business timezone.
//
// Start and End are midnight of their day in Location. The matching
// timestamp window is [Start, End+1day).
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Days returns end minus start in whole days. A single-day range is 0.
func (r DateRange) Days() int {
	return daysBetween(r.Start, r.End)
}

// Window returns the half-open timestamp window [from, to).
func (r DateRange) Window() (from, to time.Time) {
	return r.Start, r.End.AddDate(0, 0, 1)
}

// Contains reports whether t falls inside the window.
func (r DateRange) Contains(t time.Time) bool {
	from, to := r.Window()
	return !t.Before(from) && t.Before(to)
}

// SingleDay reports whether the range covers one day.
func (r DateRange) SingleDay() bool {
	return r.Start.Equal(r.End)
}

// Label renders the range for report headers, e.g. "March 3, 2025" or
// "Mar 3 – Mar 9, 2025".
func (r DateRange) Label() string {
	if r.SingleDay() {
		return r.Start.Format("January 2, 2006")
	}
	return fmt.Sprintf("%s – %s", r.Start.Format("Jan 2"), r.End.Format("Jan 2, 2006"))
}

// Normalizer applies the query rules with a fixed timezone and range limit.
//
// Thread Safety: Safe for concurrent use; immutable after construction.
type Normalizer struct {
	loc          *time.Location
	maxRangeDays int
	now          func() time.Time
}

// NewNormalizer creates a normalizer.
//
// Inputs:
//   - loc: Business timezone. nil means UTC.
//   - maxRangeDays: Largest accepted end-start span. <= 0 uses DefaultMaxRangeDays.
//   - now: Clock for the default range. nil uses time.Now.
func NewNormalizer(loc *time.Location, maxRangeDays int, now func() time.Time) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	if maxRangeDays <= 0 {
		maxRangeDays = DefaultMaxRangeDays
	}
	if now == nil {
		now = time.Now
	}
	return &Normalizer{loc: loc, maxRangeDays: maxRangeDays, now: now}
}

// Location returns the business timezone.
func (n *Normalizer) Location() *time.Location { return n.loc }

// MaxRangeDays returns the configured range limit.
func (n *Normalizer) MaxRangeDays() int { return n.maxRangeDays }

// Today returns midnight of the current day in the business timezone.
func (n *Normalizer) Today() time.Time {
	t := n.now().In(n.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, n.loc)
}

// DateRange resolves optional start and end strings into a range.
//
// Description:
//
//	Neither given: the most recently completed Monday to Sunday week.
//	Only start: that single day. Only end: the seven days ending on end.
//	Both: that range, rejected if start is after end. Any resolved range
//	whose span exceeds the limit is rejected, never truncated.
//
// Inputs:
//   - start, end: YYYY-MM-DD strings. Empty means absent.
//
// Outputs:
//   - DateRange: The resolved range.
//   - error: *apierr.ValidationError.
func (n *Normalizer) DateRange(start, end string) (DateRange, error) {
	s, err := n.parseDate("start_date", start)
	if err != nil {
		return DateRange{}, err
	}
	e, err := n.parseDate("end_date", end)
	if err != nil {
		return DateRange{}, err
	}

	var r DateRange
	switch {
	case s.IsZero() && e.IsZero():
		today := n.Today()
		sinceMonday := (int(today.Weekday()) + 6) % 7
		monday := today.AddDate(0, 0, -(sinceMonday + 7))
		r = DateRange{Start: monday, End: monday.AddDate(0, 0, 6)}
	case e.IsZero():
		r = DateRange{Start: s, End: s}
	case s.IsZero():
		r = DateRange{Start: e.AddDate(0, 0, -6), End: e}
	default:
		if s.After(e) {
			return DateRange{}, apierr.Invalid("start_date", "must be on or before end_date")
		}
		r = DateRange{Start: s, End: e}
	}

	if d := r.Days(); d > n.maxRangeDays {
		return DateRange{}, apierr.Invalid("date_range",
			fmt.Sprintf("too large (%d days); maximum is %d days", d, n.maxRangeDays))
	}
	return r, nil
}

func (n *Normalizer) parseDate(field, v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(DateLayout, v, n.loc)
	if err != nil {
		return time.Time{}, apierr.Invalid(field, fmt.Sprintf("invalid date %q; use YYYY-MM-DD", v))
	}
	return t, nil
}

// daysBetween counts calendar days using the date components so DST
// transitions do not shift the result.
func daysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}
