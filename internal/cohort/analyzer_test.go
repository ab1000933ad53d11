package cohort

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ontology/internal/customers"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func ts(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func churnedOn(t time.Time) *time.Time { return &t }

func TestAnalyzeOffsetZeroIsBaseline(t *testing.T) {
	members := []customers.Customer{
		{MRR: 100, Status: customers.StatusActive, CreatedAt: ts(2025, 1, 3)},
		// churned inside the acquisition month still counts at offset 0
		{MRR: 50, Status: customers.StatusChurned, CreatedAt: ts(2025, 1, 5), ChurnedAt: churnedOn(ts(2025, 1, 20))},
		{MRR: 50, Status: customers.StatusChurned, CreatedAt: ts(2025, 1, 10), ChurnedAt: churnedOn(ts(2025, 3, 10))},
	}

	result := Analyze(members, now, DefaultConfig())
	require.Len(t, result.Curves, 1)
	curve := result.Curves[0]

	assert.Equal(t, "2025-01", curve.CohortMonth)
	require.Len(t, curve.Retention, 6) // offsets 0..5
	assert.Equal(t, 1.0, curve.Retention[0])
	assert.Equal(t, 1.0, curve.RevenueRetention[0])
	assert.InDelta(t, 2.0/3.0, curve.Retention[1], 1e-9)
	assert.InDelta(t, 2.0/3.0, curve.Retention[2], 1e-9)
	assert.InDelta(t, 1.0/3.0, curve.Retention[3], 1e-9)
	assert.InDelta(t, 0.5, curve.RevenueRetention[3], 1e-9)
}

func TestAnalyzeCapsOffsetsAndLookback(t *testing.T) {
	members := []customers.Customer{
		{MRR: 10, Status: customers.StatusActive, CreatedAt: ts(2023, 9, 1)},
		{MRR: 10, Status: customers.StatusActive, CreatedAt: ts(2022, 1, 1)}, // outside 24 months
	}

	result := Analyze(members, now, Config{LookbackMonths: 24, MaxMonthsToTrack: 12})
	require.Len(t, result.Curves, 1)
	assert.Len(t, result.Curves[0].Retention, 13)
	assert.Len(t, result.Rows, 13)
	for _, row := range result.Rows {
		assert.Equal(t, 1.0, row.RetentionRate)
	}
}

func TestAnalyzeRatesStayInUnitInterval(t *testing.T) {
	var members []customers.Customer
	for i := 0; i < 30; i++ {
		c := customers.Customer{
			MRR:       float64(10 * (i + 1)),
			Status:    customers.StatusActive,
			CreatedAt: ts(2024, time.Month(1+i%12), 1+i%27),
		}
		if i%4 == 0 {
			c.Status = customers.StatusChurned
			c.ChurnedAt = churnedOn(c.CreatedAt.AddDate(0, 2+i%5, 0))
		}
		members = append(members, c)
	}

	result := Analyze(members, now, DefaultConfig())
	for _, row := range result.Rows {
		assert.GreaterOrEqual(t, row.RetentionRate, 0.0)
		assert.LessOrEqual(t, row.RetentionRate, 1.0)
		assert.GreaterOrEqual(t, row.RevenueRetentionRate, 0.0)
		assert.LessOrEqual(t, row.RevenueRetentionRate, 1.0)
		if row.MonthOffset == 0 {
			assert.Equal(t, 1.0, row.RetentionRate)
		}
	}
}

func TestAggregateCurves(t *testing.T) {
	curves := []Curve{
		{CohortMonth: "2025-01", CohortSize: 2, Retention: []float64{1, 0.5, 0.5}, RevenueRetention: []float64{1, 0.4, 0.4}},
		{CohortMonth: "2025-02", CohortSize: 4, Retention: []float64{1, 0.75}, RevenueRetention: []float64{1, 0.6}},
		{CohortMonth: "2025-03", CohortSize: 0, Retention: []float64{0}, RevenueRetention: []float64{0}},
	}

	agg := AggregateCurves(curves)
	assert.Equal(t, 2, agg.CohortCount)
	assert.Equal(t, []float64{1, 0.625, 0.5}, agg.Mean)
	assert.InDelta(t, 0.5, agg.RevenueMean[1], 1e-9)
	assert.Equal(t, 0.625, agg.Median[1])
}

func TestAnalyzeEmpty(t *testing.T) {
	result := Analyze(nil, now, DefaultConfig())
	assert.Empty(t, result.Rows)
	assert.Empty(t, result.Curves)
	assert.Empty(t, result.Aggregate.Mean)
}
