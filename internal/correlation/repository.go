package correlation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Record is one metric's latest correlation result.
type Record struct {
	ID             uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID     `json:"organization_id" gorm:"type:uuid;not null;uniqueIndex:idx_metric_corr_org_metric"`
	MetricName     string        `json:"metric_name" gorm:"size:128;not null;uniqueIndex:idx_metric_corr_org_metric"`
	SampleSize     int           `json:"sample_size"`
	RetentionR     float64       `json:"retention_r"`
	RetentionP     float64       `json:"retention_p"`
	ExpansionR     float64       `json:"expansion_r"`
	ExpansionP     float64       `json:"expansion_p"`
	ChurnR         float64       `json:"churn_r"`
	ChurnP         float64       `json:"churn_p"`
	IsSignificant  bool          `json:"is_significant"`
	Importance     float64       `json:"importance"`
	Confidence     Confidence    `json:"confidence" gorm:"type:varchar(10)"`
	Actionability  Actionability `json:"actionability" gorm:"type:varchar(10)"`
	Rank           int           `json:"rank" gorm:"column:importance_rank"`
	IsPrimary      bool          `json:"is_primary"`
	ComputedAt     time.Time     `json:"computed_at"`
}

func (Record) TableName() string {
	return "metric_correlations"
}

func (r *Record) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Repository defines the metric correlation repository interface
type Repository interface {
	Upsert(ctx context.Context, orgID uuid.UUID, report Report, computedAt time.Time) error
	List(ctx context.Context, orgID uuid.UUID) ([]Record, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new metric correlation repository instance
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Upsert replaces the organization's correlation rows with the report's
// metrics, removing rows for metrics the report no longer carries.
func (r *repository) Upsert(ctx context.Context, orgID uuid.UUID, report Report, computedAt time.Time) error {
	records := make([]Record, len(report.Metrics))
	names := make([]string, len(report.Metrics))
	for i, m := range report.Metrics {
		names[i] = m.Metric
		records[i] = Record{
			OrganizationID: orgID,
			MetricName:     m.Metric,
			SampleSize:     m.SampleSize,
			RetentionR:     m.Outcomes[OutcomeRetention].R,
			RetentionP:     m.Outcomes[OutcomeRetention].P,
			ExpansionR:     m.Outcomes[OutcomeExpansion].R,
			ExpansionP:     m.Outcomes[OutcomeExpansion].P,
			ChurnR:         m.Outcomes[OutcomeChurn].R,
			ChurnP:         m.Outcomes[OutcomeChurn].P,
			IsSignificant:  m.Significant,
			Importance:     m.Importance,
			Confidence:     m.Confidence,
			Actionability:  m.Actionability,
			Rank:           m.Rank,
			IsPrimary:      report.Primary != nil && report.Primary.Metric == m.Metric,
			ComputedAt:     computedAt,
		}
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stale := tx.Where("organization_id = ?", orgID)
		if len(names) > 0 {
			stale = stale.Where("metric_name NOT IN ?", names)
		}
		if err := stale.Delete(&Record{}).Error; err != nil {
			return fmt.Errorf("failed to remove stale metric correlations: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "organization_id"}, {Name: "metric_name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"sample_size", "retention_r", "retention_p", "expansion_r", "expansion_p",
				"churn_r", "churn_p", "is_significant", "importance", "confidence",
				"actionability", "importance_rank", "is_primary", "computed_at",
			}),
		}).Create(&records).Error
		if err != nil {
			return fmt.Errorf("failed to upsert metric correlations: %w", err)
		}
		return nil
	})
}

func (r *repository) List(ctx context.Context, orgID uuid.UUID) ([]Record, error) {
	var rows []Record
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("importance_rank ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list metric correlations: %w", err)
	}
	return rows, nil
}
