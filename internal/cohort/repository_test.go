package cohort

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ontology/internal/shared/testutil"
)

func TestUpsertRetentionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(testutil.NewDB(t, &RetentionRecord{}))
	org := uuid.New()

	rows := []Row{
		{CohortMonth: "2025-01", MonthOffset: 0, CohortSize: 4, RetainedCount: 4, RetentionRate: 1},
		{CohortMonth: "2025-01", MonthOffset: 1, CohortSize: 4, RetainedCount: 3, RetentionRate: 0.75},
	}
	require.NoError(t, repo.UpsertRetention(ctx, org, rows, now, 1))

	rows[1].RetainedCount = 2
	rows[1].RetentionRate = 0.5
	require.NoError(t, repo.UpsertRetention(ctx, org, rows, now, 1))

	stored, err := repo.ListRetention(ctx, org)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, 0.5, stored[1].RetentionRate)
	assert.Equal(t, 2, stored[1].RetainedCount)

	other, err := repo.ListRetention(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, other)
}
