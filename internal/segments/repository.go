package segments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository defines the segment repository interface
type Repository interface {
	Upsert(ctx context.Context, orgID uuid.UUID, rows []Segment, batchSize int) error
	DeactivateExcept(ctx context.Context, orgID uuid.UUID, names []string) error
	List(ctx context.Context, orgID uuid.UUID, activeOnly bool) ([]Segment, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new segment repository instance
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Upsert matches segments by (organization, name) and reactivates them.
func (r *repository) Upsert(ctx context.Context, orgID uuid.UUID, rows []Segment, batchSize int) error {
	if len(rows) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	for i := range rows {
		rows[i].OrganizationID = orgID
		rows[i].IsActive = true
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "organization_id"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"description", "customer_count", "total_mrr", "avg_mrr", "min_mrr", "max_mrr",
				"avg_tenure_months", "revenue_share", "churn_rate", "ltv", "criteria",
				"retention_curve", "centroid", "silhouette_score", "is_active", "updated_at",
			}),
		}).
		CreateInBatches(&rows, batchSize).Error
	if err != nil {
		return fmt.Errorf("failed to upsert segments: %w", err)
	}
	return nil
}

func (r *repository) DeactivateExcept(ctx context.Context, orgID uuid.UUID, names []string) error {
	query := r.db.WithContext(ctx).
		Model(&Segment{}).
		Where("organization_id = ? AND is_active = ?", orgID, true)
	if len(names) > 0 {
		query = query.Where("name NOT IN ?", names)
	}
	if err := query.Update("is_active", false).Error; err != nil {
		return fmt.Errorf("failed to deactivate stale segments: %w", err)
	}
	return nil
}

func (r *repository) List(ctx context.Context, orgID uuid.UUID, activeOnly bool) ([]Segment, error) {
	var rows []Segment
	query := r.db.WithContext(ctx).Where("organization_id = ?", orgID)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Order("avg_mrr DESC, name ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list segments: %w", err)
	}
	return rows, nil
}
