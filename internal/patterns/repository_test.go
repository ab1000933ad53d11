package patterns

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ontology/internal/shared/testutil"
)

func TestRepositoryInsertRetiresPreviousRun(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testutil.NewDB(t, &Pattern{}))
	org := uuid.New()

	first := []Pattern{
		{Name: "Upgrade signal: rapid_growth", Confidence: 0.8, DetectedAt: now},
		{Name: "Upgrade signal: tenure_milestone", Confidence: 0.6, DetectedAt: now},
	}
	require.NoError(t, repo.Insert(ctx, org, TypeUpgrade, first, 1))
	require.NoError(t, repo.Insert(ctx, org, TypeChurn, []Pattern{
		{Name: "Churn signal: usage_decline", Confidence: 0.9, Details: map[string]any{"customers": 3}, DetectedAt: now},
	}, 10))

	second := []Pattern{{Name: "Upgrade signal: feature_exploration", Confidence: 0.5, DetectedAt: now}}
	require.NoError(t, repo.Insert(ctx, org, TypeUpgrade, second, 10))

	active, err := repo.ListActive(ctx, org, 0)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "Churn signal: usage_decline", active[0].Name)
	assert.Equal(t, float64(3), active[0].Details["customers"])
	assert.Equal(t, "Upgrade signal: feature_exploration", active[1].Name)

	limited, err := repo.ListActive(ctx, org, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	other, err := repo.ListActive(ctx, uuid.New(), 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestRepositoryListActiveNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testutil.NewDB(t, &Pattern{}))
	org := uuid.New()

	require.NoError(t, repo.Insert(ctx, org, TypeSeasonal, []Pattern{
		{Name: "Year-end effect", Confidence: 0.99, SampleSize: 500, DetectedAt: now.AddDate(0, 0, -30)},
	}, 10))
	require.NoError(t, repo.Insert(ctx, org, TypeUpgrade, []Pattern{
		{Name: "Upgrade signal: seat_growth", Confidence: 0.4, DetectedAt: now},
		{Name: "Upgrade signal: rapid_growth", Confidence: 0.7, DetectedAt: now},
	}, 10))

	active, err := repo.ListActive(ctx, org, 0)
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, "Upgrade signal: rapid_growth", active[0].Name)
	assert.Equal(t, "Upgrade signal: seat_growth", active[1].Name)
	assert.Equal(t, "Year-end effect", active[2].Name)

	top, err := repo.ListActive(ctx, org, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.NotEqual(t, "Year-end effect", top[1].Name)
}

func TestRepositoryInsertEmptyRetiresType(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testutil.NewDB(t, &Pattern{}))
	org := uuid.New()

	require.NoError(t, repo.Insert(ctx, org, TypeSeasonal, []Pattern{{Name: "Year-end effect", DetectedAt: now}}, 10))
	require.NoError(t, repo.Insert(ctx, org, TypeSeasonal, nil, 10))

	active, err := repo.ListActive(ctx, org, 0)
	require.NoError(t, err)
	assert.Empty(t, active)

	assert.Error(t, repo.Insert(ctx, org, Type("bogus"), nil, 10))
}
