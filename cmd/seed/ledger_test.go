package main

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ontology/internal/customers"
	"ontology/internal/pipeline"
	"ontology/internal/shared/database"
	"ontology/internal/shared/testutil"
)

func readFixture(t *testing.T, org uuid.UUID) Dataset {
	t.Helper()
	f, err := os.Open("testdata/ledger.yaml")
	require.NoError(t, err)
	defer f.Close()

	ds, err := ReadLedger(f, org)
	require.NoError(t, err)
	return ds
}

func TestReadLedger(t *testing.T) {
	org := uuid.New()
	ds := readFixture(t, org)

	require.Len(t, ds.Tiers, 3)
	require.Len(t, ds.Customers, 3)
	assert.Len(t, ds.Events, 2)
	assert.Len(t, ds.Transactions, 3)
	assert.Len(t, ds.Usage, 2)

	tiers := map[uuid.UUID]string{}
	for _, tier := range ds.Tiers {
		assert.Equal(t, org, tier.OrganizationID)
		tiers[tier.ID] = tier.Name
	}
	assert.Nil(t, ds.Tiers[2].UsageLimit)

	acme := ds.Customers[0]
	assert.Equal(t, customers.StatusActive, acme.Status)
	assert.Equal(t, customers.BillingMonthly, acme.BillingInterval)
	assert.Equal(t, time.Date(2023, 2, 14, 0, 0, 0, 0, time.UTC), acme.CreatedAt)
	require.NotNil(t, acme.TierID)
	assert.Equal(t, "Growth", tiers[*acme.TierID])

	globex := ds.Customers[1]
	assert.Equal(t, customers.StatusAtRisk, globex.Status)
	assert.Equal(t, customers.BillingAnnual, globex.BillingInterval)

	initech := ds.Customers[2]
	require.NotNil(t, initech.ChurnedAt)
	assert.False(t, initech.IsLive())

	for _, e := range ds.Events {
		if e.CustomerID == initech.ID {
			assert.True(t, e.IsReactivation())
		} else {
			assert.Equal(t, acme.ID, e.CustomerID)
		}
	}
	metrics := map[string]bool{}
	for _, u := range ds.Usage {
		assert.Equal(t, acme.ID, u.CustomerID)
		metrics[u.MetricName] = true
	}
	assert.True(t, metrics[customers.PrimaryUsageMetric])
	assert.True(t, metrics["seats"])
}

func TestReadLedgerReportsEveryProblem(t *testing.T) {
	doc := `
tiers:
  - name: Starter
    price: 49
  - name: Starter
    price: 59
customers:
  - name: a
    mrr: -1
    created_at: 2023-01-01
  - name: b
    status: churned
    created_at: 2023-01-01
  - name: c
    created_at: 2023-01-01
    tier: Platinum
  - name: d
    created_at: yesterday
  - name: e
    created_at: 2023-01-01
    events:
      - mrr_delta: 10
        kind: upgrade
        occurred_at: 2023-02-01
`
	_, err := ReadLedger(strings.NewReader(doc), uuid.New())
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, `tier "Starter": duplicate name`)
	assert.Contains(t, msg, "customer a: mrr must not be negative")
	assert.Contains(t, msg, "customer b: churned customers need churned_at")
	assert.Contains(t, msg, `customer c: unknown tier "Platinum"`)
	assert.Contains(t, msg, `customer d: created_at: unrecognized date "yesterday"`)
	assert.Contains(t, msg, `customer e event: unknown kind "upgrade"`)
}

func TestReadLedgerRejectsUnknownFields(t *testing.T) {
	_, err := ReadLedger(strings.NewReader("customers:\n  - name: a\n    revenue: 10\n"), uuid.New())
	assert.Error(t, err)
}

func TestReadLedgerRejectsChurnBeforeCreation(t *testing.T) {
	doc := "customers:\n  - name: a\n    status: churned\n    created_at: 2023-05-01\n    churned_at: 2023-01-01\n"
	_, err := ReadLedger(strings.NewReader(doc), uuid.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "churned_at precedes created_at")
}

func TestSeedAllAndClean(t *testing.T) {
	ctx := context.Background()
	org := uuid.New()
	sqlDB := testutil.NewDB(t, pipeline.Models()...)
	seeder := &Seeder{db: &database.DB{SQL: sqlDB}, repo: customers.NewRepository(sqlDB), orgID: org}

	require.NoError(t, seeder.SeedAll(ctx, readFixture(t, org)))

	rows, err := seeder.repo.ListCustomers(ctx, org, customers.CustomerFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	usage, err := seeder.repo.ListUsageMetrics(ctx, org, time.Time{})
	require.NoError(t, err)
	assert.Len(t, usage, 2)

	other := uuid.New()
	require.NoError(t, seeder.repo.CreateCustomers(ctx, []customers.Customer{
		{OrganizationID: other, MRR: 10, Status: customers.StatusActive, CreatedAt: time.Now()},
	}))

	require.NoError(t, seeder.CleanOrganization(ctx))
	rows, err = seeder.repo.ListCustomers(ctx, org, customers.CustomerFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
	tiers, err := seeder.repo.ListPricingTiers(ctx, org)
	require.NoError(t, err)
	assert.Empty(t, tiers)

	kept, err := seeder.repo.ListCustomers(ctx, other, customers.CustomerFilter{})
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}
