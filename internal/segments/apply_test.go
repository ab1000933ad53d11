package segments

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ontology/internal/clustering"
	"ontology/internal/customers"
	"ontology/internal/shared/testutil"
)

func TestApplyAssignsEveryCustomer(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t, &customers.Customer{}, &Segment{})
	customerRepo := customers.NewRepository(db)
	repo := NewRepository(db)
	org := uuid.New()

	require.NoError(t, repo.Upsert(ctx, org, []Segment{{Name: "Legacy Segment"}}, 10))

	pop := population(org)
	require.NoError(t, customerRepo.CreateCustomers(ctx, pop))

	res := Build(Input{Customers: pop, Now: now}, Options{Rand: clustering.NewRand(3)})
	require.NotEmpty(t, res.Definitions)

	// arrives after the build, looks like the mid tier
	arrivals := []customers.Customer{{
		OrganizationID: org,
		MRR:            500,
		Status:         customers.StatusActive,
		CreatedAt:      now.AddDate(0, -18, 0),
		CompanySize:    customers.CompanySizeSMB,
	}}
	require.NoError(t, customerRepo.CreateCustomers(ctx, arrivals))
	late := arrivals[0]
	require.NotEqual(t, uuid.Nil, late.ID)

	applied, err := Apply(ctx, repo, customerRepo, org, res, now, 7)
	require.NoError(t, err)
	assert.Equal(t, 60, applied.Clustered)
	assert.GreaterOrEqual(t, applied.Matched, 1)
	assert.Len(t, applied.SegmentIDs, len(res.Definitions))

	stored, err := customerRepo.ListCustomers(ctx, org, customers.CustomerFilter{Statuses: []customers.Status{customers.StatusActive}})
	require.NoError(t, err)
	require.Len(t, stored, 61)
	for _, c := range stored {
		require.NotNil(t, c.SegmentID, "customer %s has no segment", c.ID)
	}

	var lateSegment uuid.UUID
	for _, c := range stored {
		if c.ID == late.ID {
			lateSegment = *c.SegmentID
		}
	}
	var midTier uuid.UUID
	for _, d := range res.Definitions {
		if d.MinMRR <= 500 && d.MaxMRR >= 500 {
			midTier = applied.SegmentIDs[d.Name]
			break
		}
	}
	assert.Equal(t, midTier, lateSegment)

	all, err := repo.List(ctx, org, false)
	require.NoError(t, err)
	for _, s := range all {
		if s.Name == "Legacy Segment" {
			assert.False(t, s.IsActive)
		} else {
			assert.True(t, s.IsActive)
			assert.NotEmpty(t, s.Criteria)
			assert.Len(t, s.RetentionCurve, 12)
		}
	}
}

func TestApplyClearsStaleMembership(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t, &customers.Customer{}, &Segment{})
	customerRepo := customers.NewRepository(db)
	repo := NewRepository(db)
	org := uuid.New()

	require.NoError(t, repo.Upsert(ctx, org, []Segment{{Name: "Legacy Segment"}}, 10))
	legacy, err := repo.List(ctx, org, true)
	require.NoError(t, err)
	require.Len(t, legacy, 1)
	legacyID := legacy[0].ID

	pop := population(org)
	require.NoError(t, customerRepo.CreateCustomers(ctx, pop))
	churnedAt := now.AddDate(0, -2, 0)
	departed := []customers.Customer{{
		OrganizationID: org,
		MRR:            250000,
		Status:         customers.StatusChurned,
		CreatedAt:      now.AddDate(-3, 0, 0),
		ChurnedAt:      &churnedAt,
		CompanySize:    customers.CompanySizeEnterprise,
		SegmentID:      &legacyID,
	}}
	require.NoError(t, customerRepo.CreateCustomers(ctx, departed))

	res := Build(Input{Customers: pop, Now: now}, Options{Rand: clustering.NewRand(3)})
	require.NotEmpty(t, res.Definitions)
	applied, err := Apply(ctx, repo, customerRepo, org, res, now, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, applied.Cleared)

	stored, err := customerRepo.ListCustomers(ctx, org, customers.CustomerFilter{Statuses: []customers.Status{customers.StatusChurned}})
	require.NoError(t, err)
	for _, c := range stored {
		if c.ID == departed[0].ID {
			assert.Nil(t, c.SegmentID)
		}
		if c.SegmentID != nil {
			assert.NotEqual(t, legacyID, *c.SegmentID)
		}
	}

	active, err := repo.List(ctx, org, true)
	require.NoError(t, err)
	for _, s := range active {
		assert.NotEqual(t, legacyID, s.ID)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t, &customers.Customer{}, &Segment{})
	customerRepo := customers.NewRepository(db)
	repo := NewRepository(db)
	org := uuid.New()

	pop := population(org)
	require.NoError(t, customerRepo.CreateCustomers(ctx, pop))

	first := Build(Input{Customers: pop, Now: now}, Options{Rand: clustering.NewRand(8)})
	a, err := Apply(ctx, repo, customerRepo, org, first, now, 100)
	require.NoError(t, err)

	second := Build(Input{Customers: pop, Now: now}, Options{Rand: clustering.NewRand(8)})
	b, err := Apply(ctx, repo, customerRepo, org, second, now, 100)
	require.NoError(t, err)

	assert.Equal(t, a.SegmentIDs, b.SegmentIDs)
	active, err := repo.List(ctx, org, true)
	require.NoError(t, err)
	assert.Len(t, active, len(first.Definitions))
}

func TestApplyWithoutDefinitionsKeepsSegments(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t, &customers.Customer{}, &Segment{})
	repo := NewRepository(db)
	org := uuid.New()
	require.NoError(t, repo.Upsert(ctx, org, []Segment{{Name: "Existing"}}, 10))

	applied, err := Apply(ctx, repo, customers.NewRepository(db), org, Result{}, now, 10)
	require.NoError(t, err)
	assert.Empty(t, applied.SegmentIDs)

	active, err := repo.List(ctx, org, true)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}
