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
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/FieldLens/services/fieldlens/apierr"
	"github.com/AleutianAI/FieldLens/services/fieldlens/scrub"
	st "github.com/AleutianAI/FieldLens/services/fieldlens/scrub/scrubtest"
)

type names map[int64]string

func (n names) Name(id int64) (string, bool) {
	v, ok := n[id]
	return v, ok
}

var (
	techNames = names{42: "Alice", 43: "Bob", 44: "Carla"}
	typeNames = names{11: "Service", 12: "GO BACK - Warranty", 13: "Go Back"}
	tagSet    = names{5: "SET TEST - Comfort", 6: "Member"}
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got.String())
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "$1,234.56", Currency(dec("1234.56")))
	assert.Equal(t, "$0.00", Currency(decimal.Zero))
	assert.Equal(t, "-$5.00", Currency(dec("-5")))
	assert.Equal(t, "$1,234,568", CurrencyShort(dec("1234567.5")))
	assert.Equal(t, "7h 30m", Hours(450*time.Minute))
	assert.Equal(t, "7h", Hours(7*time.Hour))
	assert.Equal(t, "30m", Hours(30*time.Minute))
	assert.Equal(t, "3:04 PM UTC", ClockTime(time.Date(2025, 3, 4, 15, 4, 0, 0, time.UTC), nil))
	assert.Equal(t, Placeholder, ClockTime(time.Time{}, time.UTC))
	assert.Equal(t, "↑ +12%", Signed(12))
	assert.Equal(t, "↓ -8%", Signed(-8))
}

func TestSummarizeJobs(t *testing.T) {
	jobs := st.Jobs(
		st.JobFields{ID: 1, Total: "100"},
		st.JobFields{ID: 2, Total: "300"},
		st.JobFields{ID: 3, Total: "0", NoCharge: true},
		st.JobFields{ID: 4, Total: "50", NoCharge: true},
		st.JobFields{ID: 5, Status: "Canceled"},
	)
	s := SummarizeJobs(jobs)

	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 3, s.Billed)
	assert.Equal(t, 2, s.NoCharge)
	assert.InDelta(t, 40.0, s.NoChargePct, 0.001)
	assertDec(t, "450", s.Revenue)
	assertDec(t, "150", s.RevenuePerBilled)
	assert.Equal(t, []StatusCount{{"Completed", 4}, {"Canceled", 1}}, s.ByStatus)

	require.Len(t, s.Anomalies, 1)
	assert.Equal(t, apierr.AnomalyNoChargeRevenue, s.Anomalies[0].Kind)
	assert.Equal(t, int64(4), s.Anomalies[0].RecordID)
}

func TestSummarizeJobs_Empty(t *testing.T) {
	s := SummarizeJobs(nil)
	assert.Zero(t, s.Total)
	assert.True(t, s.RevenuePerBilled.IsZero())
}

func TestLeaderboard_RowEqualsSingleTechnicianRevenue(t *testing.T) {
	alice := st.Jobs(
		st.JobFields{ID: 1, TechnicianID: 42, Total: "250.50"},
		st.JobFields{ID: 2, TechnicianID: 42, Total: "100"},
	)
	bob := st.Jobs(
		st.JobFields{ID: 3, TechnicianID: 43, Total: "900"},
		// Reassigned job: the branch owns it, not the embedded technician.
		st.JobFields{ID: 4, TechnicianID: 44, Total: "0", NoCharge: true},
	)
	lb := BuildLeaderboard([]TechnicianJobs{
		{TechnicianID: 42, Name: "Alice", Jobs: alice},
		{TechnicianID: 44, Name: "Carla"},
		{TechnicianID: 43, Name: "Bob", Jobs: bob},
		{TechnicianID: 45, Name: "Dee", Incomplete: true},
	})

	require.Len(t, lb.Rows, 2)
	assert.Equal(t, "Bob", lb.Rows[0].Name)
	assert.Equal(t, 2, lb.Rows[0].Jobs)
	assert.Equal(t, 1, lb.Rows[0].NoCharge)

	single := SummarizeJobs(alice)
	assert.True(t, single.Revenue.Equal(lb.Rows[1].Revenue))
	assert.True(t, single.RevenuePerBilled.Equal(lb.Rows[1].PerBilled))

	assert.Equal(t, []string{"Carla"}, lb.Idle)
	assert.Equal(t, []string{"Dee"}, lb.Incomplete)
	assert.Equal(t, 4, lb.TotalJobs)
	assertDec(t, "1250.5", lb.TotalRevenue)
}

func TestBuildJobMix(t *testing.T) {
	jobs := st.Jobs(
		st.JobFields{ID: 1, JobTypeID: 11, Total: "100"},
		st.JobFields{ID: 2, JobTypeID: 11, Total: "200"},
		st.JobFields{ID: 3, JobTypeID: 11, Total: "0", NoCharge: true},
		st.JobFields{ID: 4, JobTypeID: 12, Total: "700"},
		st.JobFields{ID: 5, Total: "50"},
	)
	mix := BuildJobMix(jobs, typeNames)

	require.Len(t, mix.Rows, 2)
	svc := mix.Rows[0]
	assert.Equal(t, "Service", svc.Name)
	assert.Equal(t, 3, svc.Jobs)
	assert.Equal(t, 2, svc.Billed)
	assertDec(t, "150", svc.Avg)
	assert.InDelta(t, 60.0, svc.PctJobs, 0.001)
	assert.InDelta(t, 28.571, svc.PctRev, 0.01)

	assert.Equal(t, 5, mix.TotalJobs)
	assertDec(t, "1050", mix.TotalRevenue)
	assert.Equal(t, int64(11), mix.TopByVolume.JobTypeID)
	assert.Equal(t, int64(12), mix.TopByRevenue.JobTypeID)

	empty := BuildJobMix(nil, typeNames)
	assert.Nil(t, empty.TopByVolume)
}

func TestBuildMatrix_Variance(t *testing.T) {
	branches := []TechnicianJobs{
		{TechnicianID: 42, Name: "Alice", Jobs: st.Jobs(
			st.JobFields{ID: 1, JobTypeID: 11, Total: "100"},
			st.JobFields{ID: 2, JobTypeID: 11, Total: "100"},
		)},
		{TechnicianID: 43, Name: "Bob", Jobs: st.Jobs(
			st.JobFields{ID: 3, JobTypeID: 11, Total: "400"},
			st.JobFields{ID: 4, JobTypeID: 12, Total: "80"},
		)},
		{TechnicianID: 44, Name: "Carla", Incomplete: true},
	}

	m := BuildMatrix(branches, typeNames, 0)
	require.Len(t, m.Rows, 2)
	row := m.Rows[0]
	assert.Equal(t, int64(11), row.JobTypeID)
	assert.Equal(t, 3, row.CompanyJobs)
	assertDec(t, "200", row.CompanyAvg)
	assert.InDelta(t, -50.0, row.Cells[42].Variance, 0.001)
	assert.InDelta(t, 100.0, row.Cells[43].Variance, 0.001)
	assert.True(t, row.Cells[43].HasVariance)
	_, has := m.Rows[1].Cells[42]
	assert.False(t, has)

	require.Len(t, m.Technicians, 2)
	assert.Equal(t, "Bob", m.Technicians[0].Name)
	assert.Equal(t, []string{"Carla"}, m.Incomplete)

	only := BuildMatrix(branches, typeNames, 12)
	require.Len(t, only.Rows, 1)
	assert.Equal(t, int64(12), only.Rows[0].JobTypeID)
}

func TestBuildMatrix_TechnicianRevenueMatchesLeaderboard(t *testing.T) {
	branches := []TechnicianJobs{
		{TechnicianID: 42, Name: "Alice", Jobs: st.Jobs(
			st.JobFields{ID: 1, JobTypeID: 11, Total: "100"},
			st.JobFields{ID: 2, JobTypeID: 11, Total: "40", NoCharge: true},
			st.JobFields{ID: 3, Total: "60"},
		)},
		{TechnicianID: 43, Name: "Bob", Jobs: st.Jobs(
			st.JobFields{ID: 4, JobTypeID: 12, Total: "150"},
		)},
	}

	m := BuildMatrix(branches, typeNames, 0)
	lb := BuildLeaderboard(branches)
	require.Len(t, m.Technicians, 2)
	require.Len(t, lb.Rows, 2)
	for i := range lb.Rows {
		assert.Equal(t, lb.Rows[i].TechnicianID, m.Technicians[i].TechnicianID)
		assertDec(t, lb.Rows[i].Revenue.String(), m.Technicians[i].Revenue)
	}
	assertDec(t, "200", m.Technicians[0].Revenue)

	require.Len(t, m.Anomalies, 1)
	assert.Equal(t, apierr.AnomalyNoChargeRevenue, m.Anomalies[0].Kind)
	assert.Equal(t, int64(2), m.Anomalies[0].RecordID)

	cell := m.Rows[0].Cells[42]
	assert.Equal(t, 2, cell.Jobs)
	assert.Equal(t, 1, cell.Billed)
	assertDec(t, "140", cell.Revenue)

	mix := BuildJobMix(branches[0].Jobs, typeNames)
	assertDec(t, "140", mix.Rows[0].Revenue)
	require.Len(t, mix.Anomalies, 1)
}

func TestCancellations_LateBoundary(t *testing.T) {
	jobs := st.Jobs(
		st.JobFields{ID: 1, Status: scrub.JobStatusCanceled, CompletedOn: "2025-03-03T10:00:00Z", TechnicianID: 42, JobTypeID: 11},
		st.JobFields{ID: 2, Status: scrub.JobStatusCanceled, CompletedOn: "2025-03-03T10:00:00Z", TechnicianID: 42},
		st.JobFields{ID: 3, Status: scrub.JobStatusCanceled, CompletedOn: "2025-03-05T10:00:00Z", TechnicianID: 43, TagTypeIDs: []int64{6}},
		st.JobFields{ID: 4, CompletedOn: "2025-03-03T10:00:00Z"},
	)
	appts := []scrub.Appointment{
		st.Appointment(st.AppointmentFields{ID: 10, JobID: 1, Start: "2025-03-04T10:00:00Z", End: "2025-03-04T11:00:00Z"}),
		st.Appointment(st.AppointmentFields{ID: 11, JobID: 2, Start: "2025-03-04T10:00:01Z", End: "2025-03-04T11:00:00Z"}),
		st.Appointment(st.AppointmentFields{ID: 12, JobID: 2, Start: "2025-03-06T10:00:00Z"}),
		st.Appointment(st.AppointmentFields{ID: 13, JobID: 3, Start: "2025-03-05T09:00:00Z"}),
	}

	c := BuildCancellations(jobs, appts, techNames, typeNames, tagSet, CancellationOptions{})
	require.Len(t, c.Items, 3)
	assert.Equal(t, 4, c.TotalJobs)
	assert.Equal(t, 3, c.Canceled)
	assert.InDelta(t, 75.0, c.CancelRate, 0.001)

	byID := map[int64]Cancellation{}
	for _, it := range c.Items {
		byID[it.Job.ID()] = it
	}
	assert.True(t, byID[1].Late, "exactly 24h notice is late")
	assert.Equal(t, 24*time.Hour, byID[1].Notice)
	assert.False(t, byID[2].Late, "24h and one second is not late")
	assert.True(t, byID[3].Late, "canceled after the scheduled start")
	assert.Negative(t, int64(byID[3].Notice))
	assert.Equal(t, []string{"Member"}, byID[3].Tags)
	assert.Equal(t, "Service", byID[1].JobType)

	assert.Equal(t, 2, c.LateCount)
	assert.Equal(t, []TechnicianCancels{{"Alice", 2, 1}, {"Bob", 1, 1}}, c.ByTechnician)

	late := BuildCancellations(jobs, appts, techNames, typeNames, tagSet, CancellationOptions{LateOnly: true, TechnicianID: 42})
	require.Len(t, late.Items, 1)
	assert.Equal(t, int64(1), late.Items[0].Job.ID())
}

func TestBuildDiscounts(t *testing.T) {
	jobs := st.Jobs(
		st.JobFields{ID: 10, TechnicianID: 42, JobTypeID: 11},
		st.JobFields{ID: 11, TechnicianID: 43},
	)
	invoices := []scrub.Invoice{
		st.Invoice(st.InvoiceFields{ID: 1, InvoiceDate: "2025-03-04T00:00:00Z", SubTotal: "500", Total: "450",
			JobID: 10, JobNumber: "J-10", BusinessUnitID: 7, BusinessUnit: "HVAC",
			Items: []st.ItemFields{
				{Price: "500", Total: "500", SkuName: "Tune-up", Type: "Service"},
				{Price: "-50", Total: "-50", SkuName: "Member Discount", Type: "Discount"},
			}}),
		st.Invoice(st.InvoiceFields{ID: 2, InvoiceDate: "2025-03-05T00:00:00Z", SubTotal: "200", Total: "200",
			JobID: 11, Items: []st.ItemFields{{Price: "200", Total: "200", SkuName: "Repair"}}}),
		st.Invoice(st.InvoiceFields{ID: 3, InvoiceDate: "2025-03-01T00:00:00Z", SubTotal: "100", Total: "80",
			JobID: 999, Items: []st.ItemFields{{Price: "-20", Total: "-20", SkuName: "Goodwill"}}}),
	}

	d := BuildDiscounts(invoices, jobs, techNames, typeNames, DiscountOptions{})
	require.Len(t, d.Items, 2)
	assert.Equal(t, 3, d.Invoices)
	assert.Equal(t, int64(3), d.Items[0].InvoiceID, "sorted by invoice date")
	assert.Equal(t, Unassigned, d.Items[0].Technician)
	assertDec(t, "70", d.TotalDiscount)
	assertDec(t, "600", d.TotalGross)
	assertDec(t, "35", d.AvgDiscount)
	assert.InDelta(t, 10.0, d.Items[1].DiscountPct, 0.001)
	assert.Equal(t, "Service", d.Items[1].JobType)
	assert.Equal(t, []string{"Member Discount"}, d.Items[1].Reasons)
	require.Len(t, d.Anomalies, 1)
	assert.Equal(t, apierr.AnomalyMissingJob, d.Anomalies[0].Kind)

	big := BuildDiscounts(invoices, jobs, techNames, typeNames, DiscountOptions{MinDiscount: dec("30")})
	require.Len(t, big.Items, 1)
	assert.Equal(t, "Alice", big.Items[0].Technician)

	alice := BuildDiscounts(invoices, jobs, techNames, typeNames, DiscountOptions{TechnicianID: 42})
	assert.Equal(t, 1, alice.Invoices)
	assert.Equal(t, 1, alice.Discounted)
	assert.InDelta(t, 100.0, alice.DiscountRate, 0.001)
}
