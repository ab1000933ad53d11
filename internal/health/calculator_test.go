package health

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ontology/internal/customers"
	"ontology/internal/shared/testutil"
)

var now = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type fullUsage struct{ id uuid.UUID }

func (f fullUsage) UsageRatio(id uuid.UUID) (float64, bool) {
	if id == f.id {
		return 1, true
	}
	return 0, false
}

func (fullUsage) UsageDecline(uuid.UUID) (float64, bool) { return 0, false }

func fixture() (Input, customers.Customer, customers.Customer, customers.Customer) {
	champion := customers.Customer{ID: uuid.New(), MRR: 1500, Status: customers.StatusActive, CreatedAt: time.Date(2022, 12, 15, 0, 0, 0, 0, time.UTC)}
	newcomer := customers.Customer{ID: uuid.New(), MRR: 50, Status: customers.StatusAtRisk, CreatedAt: time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)}
	shrinking := customers.Customer{ID: uuid.New(), MRR: 400, Status: customers.StatusActive, CreatedAt: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)}
	churnedAt := now.AddDate(0, -1, 0)
	gone := customers.Customer{ID: uuid.New(), MRR: 900, Status: customers.StatusChurned, CreatedAt: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), ChurnedAt: &churnedAt}

	in := Input{
		Customers: []customers.Customer{champion, newcomer, shrinking, gone},
		Events: []customers.ExpansionEvent{
			{CustomerID: champion.ID, MRRDelta: 200, OccurredAt: now.AddDate(0, 0, -30)},
			{CustomerID: shrinking.ID, MRRDelta: -100, OccurredAt: now.AddDate(0, 0, -20)},
			{CustomerID: shrinking.ID, MRRDelta: 300, OccurredAt: now.AddDate(0, 0, -200)},
		},
		Prior: map[uuid.UUID]int{champion.ID: 70, newcomer.ID: 35},
		Usage: fullUsage{id: champion.ID},
	}
	return in, champion, newcomer, shrinking
}

func TestCalculate(t *testing.T) {
	in, champion, newcomer, shrinking := fixture()
	res := Calculate(in, now)
	require.Len(t, res.Scores, 3)

	byID := map[uuid.UUID]Score{}
	for _, s := range res.Scores {
		byID[s.CustomerID] = s
	}

	c := byID[champion.ID]
	assert.Equal(t, 85.0, c.Usage)
	assert.Equal(t, 80.0, c.Engagement)
	assert.Equal(t, 80.0, c.Financial)
	assert.Equal(t, 82, c.Overall)
	assert.Equal(t, TrendImproving, c.Trend)
	assert.Equal(t, 12, c.Velocity)
	assert.InDelta(t, 0.75, c.Probabilities.UpgradeReadiness, 1e-9)
	assert.Zero(t, c.Probabilities.ChurnRisk)
	assert.InDelta(t, 0.85, c.Probabilities.ExpansionPotential, 1e-9)
	assert.Equal(t, []string{TagExpansionReady, TagChampionCustomer}, c.Patterns)

	n := byID[newcomer.ID]
	assert.Equal(t, 35, n.Overall)
	assert.Equal(t, TrendStable, n.Trend)
	assert.Zero(t, n.Velocity)
	assert.InDelta(t, 0.85, n.Probabilities.ChurnRisk, 1e-9)
	assert.Equal(t, []string{TagChurnSignal, TagOnboardingRisk}, n.Patterns)

	s := byID[shrinking.ID]
	assert.Equal(t, 40, s.Overall)
	assert.Equal(t, TrendStable, s.Trend)
	assert.Contains(t, s.Patterns, TagDowngradeRecent)

	assert.Equal(t, Distribution{Healthy: 1, AtRisk: 1, Critical: 1}, res.Distribution)
	assert.InDelta(t, 157.0/3, res.Average, 1e-9)
	assert.Equal(t, 1, res.TagCounts[TagChampionCustomer])
	assert.Equal(t, 1, res.TagCounts[TagDowngradeRecent])
}

func TestSubScoresClamp(t *testing.T) {
	c := customers.Customer{ID: uuid.New(), MRR: 10, Status: customers.StatusAtRisk, CreatedAt: now.AddDate(0, 0, -5)}
	s := scoreCustomer(c, activity{contraction: 5}, customers.NoUsage{}, now)
	for _, v := range []float64{s.Usage, s.Engagement, s.Financial} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
	assert.Equal(t, 1.0, s.Probabilities.ChurnRisk)
}

func TestTrendFor(t *testing.T) {
	assert.Equal(t, TrendImproving, TrendFor(6))
	assert.Equal(t, TrendStable, TrendFor(5))
	assert.Equal(t, TrendStable, TrendFor(-5))
	assert.Equal(t, TrendDeclining, TrendFor(-6))
}

func TestRepositoryPriorScores(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testutil.NewDB(t, &Record{}))
	org := uuid.New()

	in, champion, _, _ := fixture()
	yesterday := now.AddDate(0, 0, -1)
	first := Calculate(in, yesterday)
	require.NoError(t, repo.Upsert(ctx, org, first.Scores, yesterday, 2))
	require.NoError(t, repo.Upsert(ctx, org, first.Scores, yesterday.Add(time.Hour), 2))

	rows, err := repo.ListForDay(ctx, org, yesterday)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, "2025-06-14", rows[0].ScoreDate)

	prior, err := repo.PriorScores(ctx, org, now)
	require.NoError(t, err)
	assert.Len(t, prior, 3)

	in.Prior = prior
	today := Calculate(in, now)
	for _, s := range today.Scores {
		if s.CustomerID == champion.ID {
			assert.Equal(t, s.Overall-prior[champion.ID], s.Velocity)
		}
	}

	empty, err := repo.PriorScores(ctx, uuid.New(), now)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
