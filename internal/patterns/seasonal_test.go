package patterns

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ontology/internal/customers"
)

func syntheticHistory() []MonthlySnapshot {
	var out []MonthlySnapshot
	for m := time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC); m.Before(time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)); m = m.AddDate(0, 1, 0) {
		s := MonthlySnapshot{Month: m, MRR: 1000, NewCustomers: 1}
		switch m.Month() {
		case time.December:
			s.MRR = 2000
		case time.June:
			s.MRR = 700
		case time.January:
			s.NewCustomers = 5
		case time.March:
			s.NewCustomers = 3
		case time.September:
			s.NewCustomers = 4
		case time.February:
			s.Churned = 2
		case time.August:
			s.Churned = 1
		}
		out = append(out, s)
	}
	return out
}

func TestAnalyzeSeasonality(t *testing.T) {
	history := syntheticHistory()
	require.Len(t, history, 24)

	res := AnalyzeSeasonality(history, DefaultSeasonalConfig())
	report, ok := res.Value()
	require.True(t, ok)

	assert.Equal(t, 24, report.DataPoints)
	assert.Len(t, report.MonthlyIndex, 12)
	assert.Equal(t, []time.Month{time.December}, report.PeakMonths)
	assert.Equal(t, []time.Month{time.June}, report.TroughMonths)
	assert.Equal(t, []int{4}, report.PeakQuarters)
	assert.True(t, report.YearEndEffect)
	assert.InDelta(t, 0.4035, report.YearEndVsMidYear, 1e-3)
	assert.Equal(t, []time.Month{time.January, time.September, time.March}, report.BestAcquisitionMonths)
	assert.Equal(t, []time.Month{time.February, time.August}, report.WorstChurnMonths)
	assert.InDelta(t, 0.75, report.Confidence, 1e-12)
	assert.NotEmpty(t, report.Insights)

	rows := report.ToPatterns(uuid.New(), now)
	require.Len(t, rows, 4)
	assert.Equal(t, "Seasonal peak: December", rows[0].Name)
	assert.Equal(t, "Seasonal trough: June", rows[1].Name)
	assert.Equal(t, "Year-end effect", rows[3].Name)
	for _, r := range rows {
		assert.Equal(t, TypeSeasonal, r.Type)
		assert.Equal(t, 24, r.SampleSize)
	}
}

func TestAnalyzeSeasonalityFlatYear(t *testing.T) {
	var history []MonthlySnapshot
	for i := 0; i < 12; i++ {
		history = append(history, MonthlySnapshot{Month: time.Date(2024, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC), MRR: 500})
	}
	report, ok := AnalyzeSeasonality(history, DefaultSeasonalConfig()).Value()
	require.True(t, ok)
	assert.Empty(t, report.PeakMonths)
	assert.Empty(t, report.TroughMonths)
	assert.False(t, report.YearEndEffect)
	assert.Zero(t, report.Amplitude)
	assert.Empty(t, report.ToPatterns(uuid.New(), now))
}

func TestAnalyzeSeasonalityInsufficient(t *testing.T) {
	res := AnalyzeSeasonality(syntheticHistory()[:11], DefaultSeasonalConfig())
	assert.False(t, res.OK())
	assert.Equal(t, 12, res.Insufficiency().Required)
	assert.Equal(t, 11, res.Insufficiency().Available)
}

func TestBuildMonthlySnapshots(t *testing.T) {
	snapNow := time.Date(2025, 5, 15, 0, 0, 0, 0, time.UTC)
	a := customer("a", 100, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC))
	b := customer("b", 200, time.Date(2025, 2, 5, 0, 0, 0, 0, time.UTC))
	churnedAt := time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC)
	b.Status = customers.StatusChurned
	b.ChurnedAt = &churnedAt
	events := []customers.ExpansionEvent{
		{CustomerID: a.ID, MRRDelta: 40, OccurredAt: time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)},
	}

	snaps := BuildMonthlySnapshots([]customers.Customer{a, b}, events, 12, snapNow)
	require.Len(t, snaps, 5)

	mrr := make([]float64, len(snaps))
	for i, s := range snaps {
		mrr[i] = s.MRR
	}
	assert.Equal(t, []float64{60, 260, 300, 100, 100}, mrr)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), snaps[0].Month)
	assert.Equal(t, 1, snaps[0].NewCustomers)
	assert.Equal(t, 1, snaps[1].NewCustomers)
	assert.Equal(t, 1, snaps[3].Churned)
	assert.Equal(t, 2, snaps[2].Customers)
	assert.Equal(t, 1, snaps[3].Customers)

	assert.Nil(t, BuildMonthlySnapshots(nil, nil, 12, snapNow))
}
