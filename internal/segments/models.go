package segments

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Segment is the persisted, named customer group that customers.segment_id points at.
type Segment struct {
	ID              uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID  uuid.UUID `json:"organization_id" gorm:"type:uuid;not null;uniqueIndex:idx_segment_org_name"`
	Name            string    `json:"name" gorm:"size:255;not null;uniqueIndex:idx_segment_org_name"`
	Description     string    `json:"description" gorm:"type:text"`
	CustomerCount   int       `json:"customer_count"`
	TotalMRR        float64   `json:"total_mrr"`
	AvgMRR          float64   `json:"avg_mrr"`
	MinMRR          float64   `json:"min_mrr"`
	MaxMRR          float64   `json:"max_mrr"`
	AvgTenure       float64   `json:"avg_tenure_months" gorm:"column:avg_tenure_months"`
	RevenueShare    float64   `json:"revenue_share"`
	ChurnRate       float64   `json:"churn_rate"`
	LTV             float64   `json:"ltv"`
	Criteria        Criteria  `json:"criteria" gorm:"type:text;serializer:json"`
	RetentionCurve  []float64 `json:"retention_curve" gorm:"type:text;serializer:json"`
	Centroid        []float64 `json:"centroid" gorm:"type:text;serializer:json"`
	SilhouetteScore float64   `json:"silhouette_score"`
	IsActive        bool      `json:"is_active" gorm:"not null;default:true;index"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (s *Segment) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
