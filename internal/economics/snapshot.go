// Package economics persists one unit-economics snapshot per analytics run.
package economics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Snapshot struct {
	ID               uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID   uuid.UUID  `json:"organization_id" gorm:"type:uuid;not null;index:idx_econ_org_date"`
	RunID            *uuid.UUID `json:"run_id" gorm:"type:uuid"`
	SnapshotDate     time.Time  `json:"snapshot_date" gorm:"not null;index:idx_econ_org_date"`
	CustomerCount    int        `json:"customer_count"`
	TotalMRR         float64    `json:"total_mrr"`
	ARR              float64    `json:"arr"`
	ARPU             float64    `json:"arpu"`
	AverageLTV       float64    `json:"average_ltv"`
	LTVMethod        string     `json:"ltv_method" gorm:"size:32"`
	NRR              float64    `json:"nrr"`
	GRR              float64    `json:"grr"`
	LogoChurnRate    float64    `json:"logo_churn_rate"`
	RevenueChurnRate float64    `json:"revenue_churn_rate"`
	NetNewMRR        float64    `json:"net_new_mrr"`
	GrowthRate       float64    `json:"growth_rate"`
	// QuickRatio is nil when there were gains and no losses.
	QuickRatio       *float64   `json:"quick_ratio"`
	Gini             float64    `json:"gini"`
	Top10Share       float64    `json:"top10_share"`
	CreatedAt        time.Time  `json:"created_at"`
}

func (Snapshot) TableName() string {
	return "economics_snapshots"
}

func (s *Snapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// MRRChange is the relative MRR change from prior to s; ok is false without
// a usable prior.
func (s Snapshot) MRRChange(prior *Snapshot) (float64, bool) {
	if prior == nil || prior.TotalMRR <= 0 {
		return 0, false
	}
	return (s.TotalMRR - prior.TotalMRR) / prior.TotalMRR, true
}

// Repository defines the economics snapshot repository interface
type Repository interface {
	Insert(ctx context.Context, snap *Snapshot) error
	// Latest returns nil when the organization has no snapshot yet.
	Latest(ctx context.Context, orgID uuid.UUID) (*Snapshot, error)
	List(ctx context.Context, orgID uuid.UUID, limit int) ([]Snapshot, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new economics snapshot repository instance
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, snap *Snapshot) error {
	if err := r.db.WithContext(ctx).Create(snap).Error; err != nil {
		return fmt.Errorf("failed to insert economics snapshot: %w", err)
	}
	return nil
}

func (r *repository) Latest(ctx context.Context, orgID uuid.UUID) (*Snapshot, error) {
	var snap Snapshot
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("snapshot_date DESC, created_at DESC").
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest economics snapshot: %w", err)
	}
	return &snap, nil
}

func (r *repository) List(ctx context.Context, orgID uuid.UUID, limit int) ([]Snapshot, error) {
	var rows []Snapshot
	query := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("snapshot_date DESC, created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list economics snapshots: %w", err)
	}
	return rows, nil
}
