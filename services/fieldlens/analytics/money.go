// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analytics computes reports over scrubbed records.
//
// Every function is a pure transform: no I/O, no clock, no shared state.
// Results do not depend on input order; any ordering in a result comes from
// an explicit sort with a deterministic tie-break. Empty input yields a
// zero-valued result, never an error. Money is decimal throughout;
// percentages are float64 and only used for display.
package analytics

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// Names resolves reference ids to display names.
//
// *query.NameSet satisfies this interface.
type Names interface {
	Name(id int64) (string, bool)
}

// nameOr looks id up in names, returning fallback for unknown ids or a nil
// lookup.
func nameOr(names Names, id int64, fallback string) string {
	if names != nil {
		if n, ok := names.Name(id); ok && n != "" {
			return n
		}
	}
	return fallback
}

var hundred = decimal.NewFromInt(100)

// div returns a/b, or zero when b is zero.
func div(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.DivRound(b, 8)
}

// divN divides a by a count.
func divN(a decimal.Decimal, n int) decimal.Decimal {
	return div(a, decimal.NewFromInt(int64(n)))
}

// pct returns n/d*100, or 0 when d is zero.
func pct(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d) * 100
}

// pctDec returns a/b*100 for money values, or 0 when b is zero.
func pctDec(a, b decimal.Decimal) float64 {
	if b.IsZero() {
		return 0
	}
	return a.Mul(hundred).DivRound(b, 8).InexactFloat64()
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
