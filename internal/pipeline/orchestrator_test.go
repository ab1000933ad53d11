package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"ontology/internal/customers"
	"ontology/internal/health"
	"ontology/internal/rfm"
	"ontology/internal/shared/testutil"
)

var now = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type fakePublisher struct {
	mu     sync.Mutex
	events []RunEvent
}

func (p *fakePublisher) PublishRunEvent(_ context.Context, e RunEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *fakePublisher) statuses() []RunStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]RunStatus, len(p.events))
	for i, e := range p.events {
		out[i] = e.Status
	}
	return out
}

type fakeCache struct {
	deleted []string
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.deleted = append(c.deleted, key)
	return errors.New("redis unavailable")
}

type failingHealth struct {
	health.Repository
}

func (failingHealth) Upsert(context.Context, uuid.UUID, []health.Score, time.Time, int) error {
	return errors.New("disk full")
}

// seed writes a small SaaS book of business: three tiers of live customers,
// a handful of churned ones, expansion history, payments and usage.
func seed(t *testing.T, db *gorm.DB, org uuid.UUID) float64 {
	t.Helper()
	ctx := context.Background()
	repo := customers.NewRepository(db)

	tiers := []customers.PricingTier{
		{OrganizationID: org, Name: "Starter", Price: 100, SortOrder: 1, UsageLimit: testutil.Ptr(1000.0)},
		{OrganizationID: org, Name: "Growth", Price: 500, SortOrder: 2, UsageLimit: testutil.Ptr(10000.0)},
		{OrganizationID: org, Name: "Scale", Price: 2000, SortOrder: 3},
	}
	require.NoError(t, repo.CreatePricingTiers(ctx, tiers))

	profiles := []struct {
		tier   int
		mrr    float64
		tenure int
		size   customers.CompanySize
	}{
		{0, 100, 4, customers.CompanySizeStartup},
		{1, 500, 14, customers.CompanySizeSMB},
		{2, 2000, 26, customers.CompanySizeEnterprise},
	}

	var live []customers.Customer
	var total float64
	for _, p := range profiles {
		for i := 0; i < 15; i++ {
			tierID := tiers[p.tier].ID
			live = append(live, customers.Customer{
				OrganizationID: org,
				MRR:            p.mrr,
				Status:         customers.StatusActive,
				CreatedAt:      now.AddDate(0, -(p.tenure + i%5), -i),
				TierID:         &tierID,
				CompanySize:    p.size,
			})
			total += p.mrr
		}
	}
	live[3].Status = customers.StatusAtRisk
	require.NoError(t, repo.CreateCustomers(ctx, live))

	var churned []customers.Customer
	for i := 0; i < 6; i++ {
		at := now.AddDate(0, -(i + 1), 0)
		churned = append(churned, customers.Customer{
			OrganizationID: org,
			MRR:            100,
			Status:         customers.StatusChurned,
			CreatedAt:      now.AddDate(-1, -i, 0),
			ChurnedAt:      &at,
			CompanySize:    customers.CompanySizeStartup,
		})
	}
	require.NoError(t, repo.CreateCustomers(ctx, churned))

	var events []customers.ExpansionEvent
	var payments []customers.Transaction
	var usage []customers.UsageMetric
	for i, c := range live {
		if i%4 == 0 {
			events = append(events, customers.ExpansionEvent{
				OrganizationID: org,
				CustomerID:     c.ID,
				MRRDelta:       c.MRR * 0.2,
				OccurredAt:     now.AddDate(0, -1, -i),
			})
		}
		for m := 1; m <= 3; m++ {
			payments = append(payments, customers.Transaction{
				OrganizationID: org,
				CustomerID:     c.ID,
				Amount:         c.MRR,
				OccurredAt:     now.AddDate(0, -m, 0),
			})
			usage = append(usage, customers.UsageMetric{
				OrganizationID: org,
				CustomerID:     c.ID,
				MetricName:     customers.PrimaryUsageMetric,
				Value:          c.MRR * float64(4-m),
				RecordedAt:     now.AddDate(0, 0, -10*m),
			})
		}
	}
	require.NoError(t, repo.CreateExpansionEvents(ctx, events))
	require.NoError(t, repo.CreateTransactions(ctx, payments))
	require.NoError(t, repo.CreateUsageMetrics(ctx, usage))
	return total
}

func newTestOrchestrator(t *testing.T, opts ...Option) (*Orchestrator, *gorm.DB, Repositories) {
	t.Helper()
	db := testutil.NewDB(t, Models()...)
	repos := NewRepositories(db)
	cfg := DefaultConfig()
	cfg.Seed = 42
	opts = append([]Option{WithClock(testutil.FixedClock(now))}, opts...)
	return NewOrchestrator(repos, cfg, opts...), db, repos
}

func TestRunFullAnalytics(t *testing.T) {
	ctx := context.Background()
	pub := &fakePublisher{}
	cache := &fakeCache{}
	o, db, repos := newTestOrchestrator(t, WithPublisher(pub), WithCache(cache))
	org := testutil.NewOrgID()
	total := seed(t, db, org)

	var progress []Progress
	res, err := o.RunFullAnalytics(ctx, org, RunOptions{OnProgress: func(p Progress) { progress = append(progress, p) }})
	require.NoError(t, err)

	require.Len(t, progress, TotalSteps)
	for i, p := range progress {
		assert.Equal(t, Steps[i], p.Step)
		assert.Equal(t, i+1, p.CompletedSteps)
		assert.Equal(t, TotalSteps, p.TotalSteps)
		assert.Equal(t, res.RunID, p.RunID)
	}

	s := res.Summary
	assert.Equal(t, 45, s.CustomerCount)
	assert.InDelta(t, total, s.TotalMRR, 1e-6)
	assert.Equal(t, now, s.GeneratedAt)
	assert.Equal(t, now.AddDate(0, -1, 0), res.Retention.Trailing.PeriodStart)
	assert.Equal(t, now, res.Retention.Trailing.PeriodEnd)
	assert.NotEmpty(t, s.KeyInsights)
	assert.LessOrEqual(t, len(s.KeyInsights), maxKeyInsights)
	assert.LessOrEqual(t, len(s.TopPatterns), maxTopPatterns)
	assert.Equal(t, len(res.Health.Scores), s.HealthDistribution.Healthy+s.HealthDistribution.AtRisk+s.HealthDistribution.Critical)

	active, err := repos.Segments.List(ctx, org, true)
	require.NoError(t, err)
	assert.Equal(t, len(active), s.SegmentCount)
	assert.Positive(t, s.SegmentCount)

	run, err := repos.Runs.Get(ctx, org, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, run.Status)
	assert.Equal(t, TotalSteps, run.CompletedSteps)
	assert.Equal(t, StepOntologySummary, run.CurrentStep)
	assert.Nil(t, run.ErrorMessage)
	require.NotNil(t, run.CompletedAt)
	require.NotNil(t, run.Summary)
	assert.Equal(t, s.CustomerCount, run.Summary.CustomerCount)
	assert.Equal(t, s.KeyInsights, run.Summary.KeyInsights)

	snap, err := repos.Economics.Latest(ctx, org)
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.NotNil(t, snap.RunID)
	assert.Equal(t, res.RunID, *snap.RunID)
	assert.InDelta(t, total*12, snap.ARR, 1e-6)

	retention, err := repos.Cohorts.ListRetention(ctx, org)
	require.NoError(t, err)
	assert.NotEmpty(t, retention)

	scores, err := repos.Health.ListForDay(ctx, org, now)
	require.NoError(t, err)
	assert.Len(t, scores, len(res.Health.Scores))

	assert.Equal(t, []RunStatus{RunStatusRunning, RunStatusCompleted}, pub.statuses())
	require.NotNil(t, pub.events[1].Summary)
	assert.Len(t, cache.deleted, 2)
}

func TestRerunReproducesResults(t *testing.T) {
	ctx := context.Background()
	o, db, repos := newTestOrchestrator(t)
	org := testutil.NewOrgID()
	seed(t, db, org)

	first, err := o.RunFullAnalytics(ctx, org, RunOptions{})
	require.NoError(t, err)
	firstRFM := rfmClasses(t, repos, org)

	second, err := o.RunFullAnalytics(ctx, org, RunOptions{})
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Summary.CustomerCount, second.Summary.CustomerCount)
	assert.Equal(t, first.Summary.SegmentCount, second.Summary.SegmentCount)
	assert.Equal(t, first.Summary.TotalMRR, second.Summary.TotalMRR)
	assert.Equal(t, firstRFM, rfmClasses(t, repos, org))

	runs, err := repos.Runs.List(ctx, org, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	snaps, err := repos.Economics.List(ctx, org, 0)
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
}

func rfmClasses(t *testing.T, repos Repositories, org uuid.UUID) map[uuid.UUID]rfm.Segment {
	t.Helper()
	rows, err := repos.RFM.List(context.Background(), org)
	require.NoError(t, err)
	out := make(map[uuid.UUID]rfm.Segment, len(rows))
	for _, r := range rows {
		out[r.CustomerID] = r.Segment
	}
	return out
}

func TestRunFailureIsRecorded(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t, Models()...)
	repos := NewRepositories(db)
	repos.Health = failingHealth{repos.Health}
	pub := &fakePublisher{}
	cfg := DefaultConfig()
	cfg.Seed = 7
	o := NewOrchestrator(repos, cfg, WithClock(testutil.FixedClock(now)), WithPublisher(pub))

	org := testutil.NewOrgID()
	seed(t, db, org)

	var progress int
	res, err := o.RunFullAnalytics(ctx, org, RunOptions{OnProgress: func(Progress) { progress++ }})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), StepHealthScoring)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 6, progress)

	latest, err := o.GetLatestAnalytics(ctx, org)
	require.NoError(t, err)
	assert.Equal(t, RunStatusFailed, latest.Status)
	assert.Equal(t, 6, latest.CompletedSteps)
	assert.Equal(t, StepValueMetrics, latest.CurrentStep)
	require.NotNil(t, latest.Error)
	assert.Contains(t, *latest.Error, "disk full")
	assert.Nil(t, latest.Summary)
	assert.NotNil(t, latest.CompletedAt)

	statuses := pub.statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, RunStatusFailed, statuses[1])
	require.NotNil(t, pub.events[1].Error)
	assert.Equal(t, 6, pub.events[1].CompletedSteps)
}

func TestRunWithoutCustomers(t *testing.T) {
	ctx := context.Background()
	o, _, _ := newTestOrchestrator(t)
	org := testutil.NewOrgID()

	res, err := o.RunFullAnalytics(ctx, org, RunOptions{})
	require.NoError(t, err)
	assert.Zero(t, res.Summary.CustomerCount)
	assert.Zero(t, res.Summary.SegmentCount)
	assert.Nil(t, res.Summary.PrimaryValueMetric)
	assert.NotNil(t, res.Summary.TopPatterns)
	require.NotNil(t, res.Economics)
}

func TestGetLatestAnalytics(t *testing.T) {
	ctx := context.Background()
	o, db, _ := newTestOrchestrator(t)
	org := testutil.NewOrgID()

	_, err := o.GetLatestAnalytics(ctx, org)
	assert.ErrorIs(t, err, ErrNoRuns)

	seed(t, db, org)
	res, err := o.RunFullAnalytics(ctx, org, RunOptions{})
	require.NoError(t, err)

	latest, err := o.GetLatestAnalytics(ctx, org)
	require.NoError(t, err)
	assert.Equal(t, res.RunID, latest.RunID)
	assert.Equal(t, RunStatusCompleted, latest.Status)
	require.NotNil(t, latest.Summary)
	assert.Equal(t, res.Summary.SegmentCount, latest.Summary.SegmentCount)

	_, err = o.GetRun(ctx, testutil.NewOrgID(), res.RunID)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestSeedFallsBackToOrganization(t *testing.T) {
	o := &Orchestrator{}
	org := uuid.New()

	assert.Equal(t, o.seed(&RunContext{OrgID: org}), o.seed(&RunContext{OrgID: org}))
	assert.NotEqual(t, o.seed(&RunContext{OrgID: org}), o.seed(&RunContext{OrgID: uuid.New()}))

	o.cfg.Seed = 42
	assert.Equal(t, uint64(42), o.seed(&RunContext{OrgID: org}))
}
