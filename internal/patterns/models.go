// Package patterns scans the customer ledger for upgrade, churn and seasonal
// patterns and stores what it finds as generic pattern rows.
package patterns

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Type string

const (
	TypeUpgrade  Type = "upgrade"
	TypeChurn    Type = "churn"
	TypeSeasonal Type = "seasonal"
)

func (t Type) IsValid() bool {
	switch t {
	case TypeUpgrade, TypeChurn, TypeSeasonal:
		return true
	}
	return false
}

// Signal is one piece of evidence behind a candidate.
type Signal struct {
	Type       string   `json:"type"`
	Confidence float64  `json:"confidence"`
	Severity   Severity `json:"severity,omitempty"`
	Detail     string   `json:"detail"`
}

// Pattern is an append-only finding. Only the rows of the latest detection
// run per type are active.
type Pattern struct {
	ID                uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID    uuid.UUID      `json:"organization_id" gorm:"type:uuid;not null;index:idx_pattern_org_type"`
	Type              Type           `json:"pattern_type" gorm:"column:pattern_type;type:varchar(20);not null;index:idx_pattern_org_type"`
	Name              string         `json:"name" gorm:"size:255;not null"`
	Description       string         `json:"description" gorm:"type:text"`
	Frequency         float64        `json:"frequency"`
	Confidence        float64        `json:"confidence"`
	SampleSize        int            `json:"sample_size"`
	RecommendedAction string         `json:"recommended_action" gorm:"type:text"`
	Details           map[string]any `json:"details" gorm:"type:text;serializer:json"`
	IsActive          bool           `json:"is_active" gorm:"not null;default:true;index"`
	DetectedAt        time.Time      `json:"detected_at"`
}

func (p *Pattern) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func share(count, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(count) / float64(total)
}
