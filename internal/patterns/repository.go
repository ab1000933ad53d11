package patterns

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the pattern repository interface
type Repository interface {
	// Insert appends rows of one type and retires the previously active rows of that type.
	Insert(ctx context.Context, orgID uuid.UUID, kind Type, rows []Pattern, batchSize int) error
	ListActive(ctx context.Context, orgID uuid.UUID, limit int) ([]Pattern, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new pattern repository instance
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, orgID uuid.UUID, kind Type, rows []Pattern, batchSize int) error {
	if !kind.IsValid() {
		return fmt.Errorf("invalid pattern type %q", kind)
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	for i := range rows {
		rows[i].OrganizationID = orgID
		rows[i].Type = kind
		rows[i].IsActive = true
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&Pattern{}).
			Where("organization_id = ? AND pattern_type = ? AND is_active = ?", orgID, kind, true).
			Update("is_active", false).Error
		if err != nil {
			return fmt.Errorf("failed to retire %s patterns: %w", kind, err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&rows, batchSize).Error; err != nil {
			return fmt.Errorf("failed to insert %s patterns: %w", kind, err)
		}
		return nil
	})
}

// ListActive returns active patterns, most recently detected first and most
// confident first within one detection.
func (r *repository) ListActive(ctx context.Context, orgID uuid.UUID, limit int) ([]Pattern, error) {
	var rows []Pattern
	query := r.db.WithContext(ctx).
		Where("organization_id = ? AND is_active = ?", orgID, true).
		Order("detected_at DESC, confidence DESC, sample_size DESC, name ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list patterns: %w", err)
	}
	return rows, nil
}
