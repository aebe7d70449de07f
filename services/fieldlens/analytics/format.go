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
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Placeholder is rendered for absent values.
const Placeholder = "—"

// Currency renders d as "$1,234.56". Negative amounts render as "-$5.00".
func Currency(d decimal.Decimal) string {
	return formatMoney(d, 2)
}

// CurrencyShort renders d rounded to whole dollars, e.g. "$1,235".
func CurrencyShort(d decimal.Decimal) string {
	return formatMoney(d, 0)
}

func formatMoney(d decimal.Decimal, places int32) string {
	s := d.StringFixed(places)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	var b strings.Builder
	b.WriteString(sign)
	b.WriteByte('$')
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}

// Hours renders a duration as "7h 30m", "7h" or "30m", rounded to the
// nearest minute.
func Hours(d time.Duration) string {
	totalMin := int64(math.Round(d.Minutes()))
	h, m := totalMin/60, totalMin%60
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh %dm", h, m)
	}
}

// ClockTime renders t as "3:04 PM UTC" in loc. The zero time renders as
// Placeholder.
func ClockTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return Placeholder
	}
	return t.In(orUTC(loc)).Format("3:04 PM MST")
}

// DateOf renders the calendar date of t in loc, or Placeholder.
func DateOf(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return Placeholder
	}
	return t.In(orUTC(loc)).Format("2006-01-02")
}

// Signed renders a percentage change with an arrow, e.g. "↑ +12%".
func Signed(pct float64) string {
	if pct >= 0 {
		return fmt.Sprintf("↑ +%.0f%%", pct)
	}
	return fmt.Sprintf("↓ %.0f%%", pct)
}

func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
