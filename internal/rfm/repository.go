package rfm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ScoreRecord struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID `json:"organization_id" gorm:"type:uuid;not null;uniqueIndex:idx_rfm_org_customer"`
	CustomerID     uuid.UUID `json:"customer_id" gorm:"type:uuid;not null;uniqueIndex:idx_rfm_org_customer"`
	RecencyDays    int       `json:"recency_days"`
	Frequency      float64   `json:"frequency"`
	Monetary       float64   `json:"monetary"`
	RecencyScore   int       `json:"recency_score"`
	FrequencyScore int       `json:"frequency_score"`
	MonetaryScore  int       `json:"monetary_score"`
	Segment        Segment   `json:"rfm_segment" gorm:"column:rfm_segment;type:varchar(32);index"`
	CalculatedAt   time.Time `json:"calculated_at"`
}

func (ScoreRecord) TableName() string {
	return "rfm_scores"
}

func (r *ScoreRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Repository defines the RFM score repository interface
type Repository interface {
	Upsert(ctx context.Context, orgID uuid.UUID, scores []Score, calculatedAt time.Time, batchSize int) error
	List(ctx context.Context, orgID uuid.UUID) ([]ScoreRecord, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new RFM repository instance
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Upsert(ctx context.Context, orgID uuid.UUID, scores []Score, calculatedAt time.Time, batchSize int) error {
	if len(scores) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	records := make([]ScoreRecord, len(scores))
	for i, s := range scores {
		records[i] = ScoreRecord{
			OrganizationID: orgID,
			CustomerID:     s.CustomerID,
			RecencyDays:    s.RecencyDays,
			Frequency:      s.Frequency,
			Monetary:       s.Monetary,
			RecencyScore:   s.RecencyScore,
			FrequencyScore: s.FrequencyScore,
			MonetaryScore:  s.MonetaryScore,
			Segment:        s.Segment,
			CalculatedAt:   calculatedAt,
		}
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "organization_id"}, {Name: "customer_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"recency_days", "frequency", "monetary",
				"recency_score", "frequency_score", "monetary_score",
				"rfm_segment", "calculated_at",
			}),
		}).
		CreateInBatches(&records, batchSize).Error
	if err != nil {
		return fmt.Errorf("failed to upsert rfm scores: %w", err)
	}
	return nil
}

func (r *repository) List(ctx context.Context, orgID uuid.UUID) ([]ScoreRecord, error) {
	var rows []ScoreRecord
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("customer_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rfm scores: %w", err)
	}
	return rows, nil
}
