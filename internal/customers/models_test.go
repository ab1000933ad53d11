package customers

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestMonthsBetween(t *testing.T) {
	base := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, MonthsBetween(base, base))
	assert.Equal(t, 0, MonthsBetween(base, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1, MonthsBetween(base, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 12, MonthsBetween(base, time.Date(2025, 2, 28, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, MonthsBetween(base, base.AddDate(-1, 0, 0)))
}

func TestTenureMonths(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	created := now.AddDate(0, -13, 0)

	live := Customer{CreatedAt: created, Status: StatusActive}
	assert.Equal(t, 13, live.TenureMonths(now))

	churned := Customer{CreatedAt: created, Status: StatusChurned, ChurnedAt: ptr(now.AddDate(0, -2, 0))}
	assert.Equal(t, 11, churned.TenureMonths(now))

	stored := 4
	withStored := Customer{CreatedAt: created, StoredTenureMonths: &stored}
	assert.Equal(t, 4, withStored.TenureMonths(now))
}

func TestIsActiveAt(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	c := Customer{CreatedAt: now.AddDate(0, -6, 0), Status: StatusChurned, ChurnedAt: ptr(now.AddDate(0, -2, 0))}

	assert.False(t, c.IsActiveAt(now.AddDate(0, -7, 0)))
	assert.True(t, c.IsActiveAt(now.AddDate(0, -3, 0)))
	assert.False(t, c.IsActiveAt(now.AddDate(0, -2, 0)))

	// churned without a timestamp is never active
	legacy := Customer{CreatedAt: now.AddDate(-1, 0, 0), Status: StatusChurned}
	assert.False(t, legacy.IsActiveAt(now))

	atRisk := Customer{CreatedAt: now.AddDate(-1, 0, 0), Status: StatusAtRisk}
	assert.True(t, atRisk.IsActiveAt(now))
}

func TestCompanySizeOrdinalRoundTrip(t *testing.T) {
	for _, size := range []CompanySize{CompanySizeStartup, CompanySizeSMB, CompanySizeMidMarket, CompanySizeEnterprise} {
		assert.Equal(t, size, CompanySizeFromOrdinal(float64(size.Ordinal())))
	}
	assert.Equal(t, 1, CompanySize("unknown").Ordinal())
}

func TestMetricUsage(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	tierID := uuid.New()
	limit := 1000.0
	heavy := Customer{ID: uuid.New(), TierID: &tierID}
	fading := Customer{ID: uuid.New()}

	metrics := []UsageMetric{
		{CustomerID: heavy.ID, MetricName: PrimaryUsageMetric, Value: 700, RecordedAt: now.AddDate(0, 0, -10)},
		{CustomerID: heavy.ID, MetricName: PrimaryUsageMetric, Value: 900, RecordedAt: now.AddDate(0, 0, -1)},
		{CustomerID: fading.ID, MetricName: PrimaryUsageMetric, Value: 100, RecordedAt: now.AddDate(0, 0, -45)},
		{CustomerID: fading.ID, MetricName: PrimaryUsageMetric, Value: 20, RecordedAt: now.AddDate(0, 0, -5)},
		{CustomerID: fading.ID, MetricName: "logins", Value: 999, RecordedAt: now.AddDate(0, 0, -5)},
	}
	u := NewMetricUsage(metrics, []Customer{heavy, fading}, []PricingTier{{ID: tierID, UsageLimit: &limit}}, now, 0)

	ratio, ok := u.UsageRatio(heavy.ID)
	assert.True(t, ok)
	assert.InDelta(t, 0.9, ratio, 1e-9)

	_, ok = u.UsageRatio(fading.ID)
	assert.False(t, ok)

	decline, ok := u.UsageDecline(fading.ID)
	assert.True(t, ok)
	assert.InDelta(t, 0.8, decline, 1e-9)

	_, ok = u.UsageDecline(heavy.ID)
	assert.False(t, ok)
}

func ptr[T any](v T) *T { return &v }
