package cohort

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RetentionRecord is the persisted form of a Row.
type RetentionRecord struct {
	ID                   uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID       uuid.UUID `json:"organization_id" gorm:"type:uuid;not null;uniqueIndex:idx_cohort_org_month_offset"`
	CohortMonth          string    `json:"cohort_month" gorm:"size:7;not null;uniqueIndex:idx_cohort_org_month_offset"`
	MonthOffset          int       `json:"month_offset" gorm:"not null;uniqueIndex:idx_cohort_org_month_offset"`
	CohortSize           int       `json:"cohort_size"`
	RetainedCount        int       `json:"retained_count"`
	RetentionRate        float64   `json:"retention_rate"`
	StartingMRR          float64   `json:"starting_mrr"`
	RetainedMRR          float64   `json:"retained_mrr"`
	RevenueRetentionRate float64   `json:"revenue_retention_rate"`
	ComputedAt           time.Time `json:"computed_at"`
}

func (RetentionRecord) TableName() string {
	return "cohort_retention"
}

func (r *RetentionRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Repository defines the cohort retention repository interface
type Repository interface {
	UpsertRetention(ctx context.Context, orgID uuid.UUID, rows []Row, computedAt time.Time, batchSize int) error
	ListRetention(ctx context.Context, orgID uuid.UUID) ([]RetentionRecord, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new cohort repository instance
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) UpsertRetention(ctx context.Context, orgID uuid.UUID, rows []Row, computedAt time.Time, batchSize int) error {
	if len(rows) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	records := make([]RetentionRecord, len(rows))
	for i, row := range rows {
		records[i] = RetentionRecord{
			OrganizationID:       orgID,
			CohortMonth:          row.CohortMonth,
			MonthOffset:          row.MonthOffset,
			CohortSize:           row.CohortSize,
			RetainedCount:        row.RetainedCount,
			RetentionRate:        row.RetentionRate,
			StartingMRR:          row.StartingMRR,
			RetainedMRR:          row.RetainedMRR,
			RevenueRetentionRate: row.RevenueRetentionRate,
			ComputedAt:           computedAt,
		}
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "organization_id"}, {Name: "cohort_month"}, {Name: "month_offset"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"cohort_size", "retained_count", "retention_rate",
				"starting_mrr", "retained_mrr", "revenue_retention_rate", "computed_at",
			}),
		}).
		CreateInBatches(&records, batchSize).Error
	if err != nil {
		return fmt.Errorf("failed to upsert cohort retention: %w", err)
	}
	return nil
}

func (r *repository) ListRetention(ctx context.Context, orgID uuid.UUID) ([]RetentionRecord, error) {
	var rows []RetentionRecord
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("cohort_month ASC, month_offset ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cohort retention: %w", err)
	}
	return rows, nil
}
