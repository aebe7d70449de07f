// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package query

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
)

// wednesday is 2025-03-12, a Wednesday.
func fixedNow() time.Time { return time.Date(2025, 3, 12, 15, 30, 0, 0, time.UTC) }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestDateRange_Defaults(t *testing.T) {
	n := NewNormalizer(time.UTC, 90, fixedNow)

	r, err := n.DateRange("", "")
	require.NoError(t, err)
	assert.Equal(t, day(2025, 3, 3), r.Start, "Monday of the previous full week")
	assert.Equal(t, day(2025, 3, 9), r.End, "Sunday of the previous full week")

	r, err = n.DateRange("2025-02-14", "")
	require.NoError(t, err)
	assert.True(t, r.SingleDay())
	assert.Equal(t, day(2025, 2, 14), r.End)

	r, err = n.DateRange("", "2025-02-14")
	require.NoError(t, err)
	assert.Equal(t, day(2025, 2, 8), r.Start)
	assert.Equal(t, day(2025, 2, 14), r.End)
	assert.Equal(t, 6, r.Days())
}

func TestDateRange_DefaultOnMondayAndSunday(t *testing.T) {
	monday := func() time.Time { return time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC) }
	r, err := NewNormalizer(time.UTC, 90, monday).DateRange("", "")
	require.NoError(t, err)
	assert.Equal(t, day(2025, 3, 3), r.Start)

	sunday := func() time.Time { return time.Date(2025, 3, 16, 8, 0, 0, 0, time.UTC) }
	r, err = NewNormalizer(time.UTC, 90, sunday).DateRange("", "")
	require.NoError(t, err)
	assert.Equal(t, day(2025, 3, 3), r.Start)
	assert.Equal(t, day(2025, 3, 9), r.End)
}

func TestDateRange_MaxSpan(t *testing.T) {
	n := NewNormalizer(time.UTC, 90, fixedNow)

	r, err := n.DateRange("2025-01-01", "2025-04-01")
	require.NoError(t, err, "exactly 90 days is accepted")
	assert.Equal(t, 90, r.Days())

	_, err = n.DateRange("2025-01-01", "2025-04-02")
	var ve *apierr.ValidationError
	require.ErrorAs(t, err, &ve, "91 days is rejected")
	assert.Equal(t, "date_range", ve.Field)
	assert.Contains(t, ve.Constraint, "91 days")
}

func TestDateRange_Rejections(t *testing.T) {
	n := NewNormalizer(time.UTC, 90, fixedNow)
	tests := []struct {
		name, start, end, field string
	}{
		{"bad start", "03/01/2025", "", "start_date"},
		{"bad end", "", "2025-13-01", "end_date"},
		{"reversed", "2025-03-10", "2025-03-01", "start_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.DateRange(tt.start, tt.end)
			var ve *apierr.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestDateRange_WindowInBusinessTimezone(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	n := NewNormalizer(chicago, 90, fixedNow)

	r, err := n.DateRange("2025-03-09", "2025-03-09")
	require.NoError(t, err)
	from, to := r.Window()
	assert.Equal(t, "2025-03-09T06:00:00Z", from.UTC().Format(time.RFC3339))
	assert.Equal(t, "2025-03-10T05:00:00Z", to.UTC().Format(time.RFC3339), "DST starts that day")
	assert.True(t, r.Contains(time.Date(2025, 3, 10, 4, 59, 0, 0, time.UTC)))
	assert.False(t, r.Contains(to))
	assert.Equal(t, 0, r.Days())
}

func TestDateRange_Label(t *testing.T) {
	assert.Equal(t, "March 3, 2025", DateRange{Start: day(2025, 3, 3), End: day(2025, 3, 3)}.Label())
	assert.Equal(t, "Mar 3 – Mar 9, 2025", DateRange{Start: day(2025, 3, 3), End: day(2025, 3, 9)}.Label())
}

func TestName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"  Danny  ", "Danny", false},
		{"Mary-Jane Watson", "Mary-Jane Watson", false},
		{"", "", true},
		{"Robert'); DROP TABLE", "", true},
		{"Agent 47", "", true},
		{strings.Repeat("a", 101), "", true},
	}
	for _, tt := range tests {
		got, err := Name("technician_name", tt.in)
		if tt.wantErr {
			assert.Error(t, err, "Name(%q)", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	got, err := OptionalName("technician_name", "   ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestList(t *testing.T) {
	got, err := List("job_types", " Service , Maintenance,, Install ")
	require.NoError(t, err)
	assert.Equal(t, []string{"Service", "Maintenance", "Install"}, got)

	_, err = List("job_types", " , ")
	assert.Error(t, err)
	_, err = List("job_types", strings.Repeat("x,", 101))
	assert.Error(t, err)
}

func TestSearchText(t *testing.T) {
	_, err := SearchText("search_text", " a ")
	assert.Error(t, err)
	got, err := SearchText("search_text", " leak ")
	require.NoError(t, err)
	assert.Equal(t, "leak", got)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("")
	require.NoError(t, err)
	assert.Equal(t, StatusAll, s)
	assert.True(t, s.Matches("Canceled"))

	s, err = ParseStatus("Completed")
	require.NoError(t, err)
	assert.True(t, s.Matches("Completed"))
	assert.False(t, s.Matches("Canceled"))

	_, err = ParseStatus("done")
	assert.Error(t, err)
}

func TestParseGroupBy(t *testing.T) {
	g, err := ParseGroupBy("", GroupTechnician, GroupTechnician, GroupBusinessUnit, GroupJobType)
	require.NoError(t, err)
	assert.Equal(t, GroupTechnician, g)

	g, err = ParseGroupBy("Business_Unit", GroupJobType, GroupJobType, GroupBusinessUnit)
	require.NoError(t, err)
	assert.Equal(t, GroupBusinessUnit, g)

	_, err = ParseGroupBy("technician", GroupJobType, GroupJobType, GroupBusinessUnit)
	var ve *apierr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "group_by", ve.Field)
}

func TestChainLengthAndMinAmount(t *testing.T) {
	n, err := ChainLength(0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = ChainLength(1)
	assert.Error(t, err)
	_, err = ChainLength(11)
	assert.Error(t, err)

	d, err := MinAmount("min_discount_amount", 25.5)
	require.NoError(t, err)
	assert.Equal(t, "25.5", d.String())
	_, err = MinAmount("min_discount_amount", -1)
	assert.Error(t, err)
}

func TestResolveTechnician(t *testing.T) {
	techs := []Candidate{
		{ID: 3, Name: "Danny R"},
		{ID: 7, Name: "Danny K"},
		{ID: 9, Name: "Maria Lopez"},
	}

	res := ResolveTechnician("danny", techs)
	assert.False(t, res.Found())
	require.True(t, res.IsAmbiguous())
	assert.Equal(t, []Candidate{{ID: 7, Name: "Danny K"}, {ID: 3, Name: "Danny R"}}, res.Ambiguous)

	res = ResolveTechnician("LOPEZ", techs)
	require.True(t, res.Found())
	assert.Equal(t, int64(9), res.Match.ID)

	res = ResolveTechnician("Mria", techs)
	assert.False(t, res.Found())
	assert.False(t, res.IsAmbiguous())
	assert.Equal(t, []string{"Danny K", "Danny R", "Maria Lopez"}, res.Suggestions)
	assert.Contains(t, res.DidYouMean, "Maria Lopez")
}

func TestResolveTechnician_SuggestionsCapped(t *testing.T) {
	var techs []Candidate
	for i, n := range strings.Split("Al Bo Cy Di Ed Fa Gu Hi Io Jo Ka Lu", " ") {
		techs = append(techs, Candidate{ID: int64(i), Name: n})
	}
	res := ResolveTechnician("Zed", techs)
	assert.Len(t, res.Suggestions, 10)
	assert.Equal(t, "Al", res.Suggestions[0])
}

func TestNameSet(t *testing.T) {
	set := NewNameSet([]Candidate{
		{ID: 1, Name: "Service"},
		{ID: 2, Name: "Maintenance"},
		{ID: 3, Name: "GO BACK - Service"},
	})

	found, unknown := set.Resolve([]string{"service", "SERVICE", "Install"})
	assert.Equal(t, []Candidate{{ID: 1, Name: "Service"}}, found)
	assert.Equal(t, []string{"Install"}, unknown)

	assert.Equal(t, "Maintenance", set.NameOr(2, "?"))
	assert.Equal(t, "?", set.NameOr(99, "?"))
	assert.Equal(t, []string{"GO BACK - Service", "Maintenance", "Service"}, set.Names())
	assert.Len(t, set.ResolveContains("service"), 2)
}
