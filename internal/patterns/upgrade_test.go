package patterns

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ontology/internal/customers"
)

var now = time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

type fakeUsage struct {
	ratio   map[uuid.UUID]float64
	decline map[uuid.UUID]float64
}

func (f fakeUsage) UsageRatio(id uuid.UUID) (float64, bool) {
	v, ok := f.ratio[id]
	return v, ok
}

func (f fakeUsage) UsageDecline(id uuid.UUID) (float64, bool) {
	v, ok := f.decline[id]
	return v, ok
}

func customer(name string, mrr float64, created time.Time) customers.Customer {
	return customers.Customer{
		ID:              uuid.New(),
		Name:            name,
		MRR:             mrr,
		Status:          customers.StatusActive,
		CreatedAt:       created,
		BillingInterval: customers.BillingMonthly,
	}
}

func upgradeFixture() (UpgradeInput, map[string]customers.Customer) {
	starter := customers.PricingTier{ID: uuid.New(), Name: "Starter", Price: 100}
	growth := customers.PricingTier{ID: uuid.New(), Name: "Growth", Price: 500}
	scale := customers.PricingTier{ID: uuid.New(), Name: "Scale", Price: 2000}

	a := customer("a", 150, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC))
	a.TierID = &starter.ID
	b := customer("b", 600, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC))
	b.TierID = &growth.ID
	c := customer("c", 2000, time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC))
	c.TierID = &scale.ID
	e := customer("e", 100, time.Date(2024, 9, 15, 0, 0, 0, 0, time.UTC))
	e.TierID = &starter.ID
	churnedAt := now.AddDate(0, -1, 0)
	d := customer("d", 900, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	d.Status = customers.StatusChurned
	d.ChurnedAt = &churnedAt

	in := UpgradeInput{
		Customers: []customers.Customer{a, b, c, d, e},
		Events: []customers.ExpansionEvent{
			{CustomerID: a.ID, MRRDelta: 50, OccurredAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)},
			{CustomerID: c.ID, MRRDelta: 1000, OccurredAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
		Tiers: []customers.PricingTier{scale, starter, growth},
		Usage: fakeUsage{ratio: map[uuid.UUID]float64{a.ID: 0.95, e.ID: 0.5}},
		Now:   now,
	}
	return in, map[string]customers.Customer{"a": a, "b": b, "c": c, "d": d, "e": e}
}

func TestDetectUpgrades(t *testing.T) {
	in, byName := upgradeFixture()
	report := DetectUpgrades(in, DefaultUpgradeConfig())

	assert.Equal(t, 4, report.Analyzed)
	assert.Equal(t, 3, report.TotalCandidates)
	assert.InDelta(t, 2750, report.PotentialMRR, 1e-9)
	require.Len(t, report.Candidates, 3)

	top := report.Candidates[0]
	assert.Equal(t, byName["a"].ID, top.CustomerID)
	assert.Equal(t, 84, top.Score)
	assert.Equal(t, "Starter", top.CurrentTier)
	assert.Equal(t, "Growth", top.NextTier)
	assert.Equal(t, 350.0, top.PotentialMRRIncrease)
	kinds := []string{}
	for _, s := range top.Signals {
		kinds = append(kinds, s.Type)
	}
	assert.Equal(t, []string{SignalRapidGrowth, SignalTenureMilestone, SignalUsageLimitApproaching}, kinds)

	assert.Equal(t, byName["c"].ID, report.Candidates[1].CustomerID)
	assert.Equal(t, 52, report.Candidates[1].Score)
	assert.Equal(t, 1000.0, report.Candidates[1].PotentialMRRIncrease, "top tier falls back to half of MRR")

	assert.Equal(t, byName["b"].ID, report.Candidates[2].CustomerID)
	assert.Equal(t, 45, report.Candidates[2].Score)
	assert.Equal(t, 1400.0, report.Candidates[2].PotentialMRRIncrease)

	assert.Equal(t, map[string]int{
		SignalRapidGrowth:           1,
		SignalTenureMilestone:       2,
		SignalUsageLimitApproaching: 1,
		SignalFeatureExploration:    1,
	}, report.SignalCounts)
	assert.NotEmpty(t, report.Insights)
}

func TestDetectUpgradesTopN(t *testing.T) {
	in, _ := upgradeFixture()
	cfg := DefaultUpgradeConfig()
	cfg.TopN = 2
	report := DetectUpgrades(in, cfg)
	assert.Len(t, report.Candidates, 2)
	assert.Equal(t, 3, report.TotalCandidates)
	assert.InDelta(t, 2750, report.PotentialMRR, 1e-9)
}

func TestUpgradeScore(t *testing.T) {
	assert.Equal(t, 45, upgradeScore([]Signal{{Confidence: 0.5}}))
	// the count bonus stops at three signals
	four := []Signal{{Confidence: 1}, {Confidence: 1}, {Confidence: 1}, {Confidence: 1}}
	assert.Equal(t, 100, upgradeScore(four))
}

func TestTierIndexWithoutTierID(t *testing.T) {
	tiers := customers.SortTiers([]customers.PricingTier{
		{ID: uuid.New(), Name: "Starter", Price: 100},
		{ID: uuid.New(), Name: "Growth", Price: 500},
	})
	assert.Equal(t, 1, tierIndex(customers.Customer{MRR: 750}, tiers))
	assert.Equal(t, 0, tierIndex(customers.Customer{MRR: 20}, tiers))
	assert.Equal(t, -1, tierIndex(customers.Customer{MRR: 20}, nil))
}

func TestUpgradeReportToPatterns(t *testing.T) {
	in, _ := upgradeFixture()
	org := uuid.New()
	rows := DetectUpgrades(in, DefaultUpgradeConfig()).ToPatterns(org, now)

	require.Len(t, rows, 4)
	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = r.Name
		assert.Equal(t, TypeUpgrade, r.Type)
		assert.Equal(t, org, r.OrganizationID)
		assert.Equal(t, 4, r.SampleSize)
		assert.NotEmpty(t, r.RecommendedAction)
	}
	assert.Equal(t, []string{
		"Upgrade signal: feature_exploration",
		"Upgrade signal: rapid_growth",
		"Upgrade signal: tenure_milestone",
		"Upgrade signal: usage_limit_approaching",
	}, names)
	assert.Equal(t, 0.5, rows[2].Frequency)
	assert.InDelta(t, 0.6, rows[2].Confidence, 1e-12)
}
