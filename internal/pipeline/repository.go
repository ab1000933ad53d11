package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrRunNotFound = errors.New("analytics run not found")
	ErrNoRuns      = errors.New("no analytics runs for organization")
)

// Repository defines the analytics run log repository interface
type Repository interface {
	Create(ctx context.Context, run *AnalyticsRun) error
	UpdateProgress(ctx context.Context, runID uuid.UUID, completedSteps int, currentStep string) error
	Complete(ctx context.Context, runID uuid.UUID, summary OntologySummary, at time.Time) error
	Fail(ctx context.Context, runID uuid.UUID, message string, at time.Time) error
	Get(ctx context.Context, orgID, runID uuid.UUID) (*AnalyticsRun, error)
	Latest(ctx context.Context, orgID uuid.UUID) (*AnalyticsRun, error)
	List(ctx context.Context, orgID uuid.UUID, limit int) ([]AnalyticsRun, error)
}

// repository implements the Repository interface
type repository struct {
	db *gorm.DB
}

// NewRepository creates a new analytics run repository instance
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, run *AnalyticsRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to create analytics run: %w", err)
	}
	return nil
}

func (r *repository) UpdateProgress(ctx context.Context, runID uuid.UUID, completedSteps int, currentStep string) error {
	return r.update(ctx, runID, map[string]interface{}{
		"completed_steps": completedSteps,
		"current_step":    currentStep,
	})
}

func (r *repository) Complete(ctx context.Context, runID uuid.UUID, summary OntologySummary, at time.Time) error {
	// a map update would bypass the json serializer on summary
	result := r.db.WithContext(ctx).
		Model(&AnalyticsRun{ID: runID}).
		Select("status", "completed_steps", "completed_at", "summary").
		Updates(&AnalyticsRun{
			Status:         RunStatusCompleted,
			CompletedSteps: TotalSteps,
			CompletedAt:    &at,
			Summary:        &summary,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to complete analytics run: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (r *repository) Fail(ctx context.Context, runID uuid.UUID, message string, at time.Time) error {
	return r.update(ctx, runID, map[string]interface{}{
		"status":        RunStatusFailed,
		"error_message": message,
		"completed_at":  at,
	})
}

func (r *repository) update(ctx context.Context, runID uuid.UUID, fields map[string]interface{}) error {
	result := r.db.WithContext(ctx).
		Model(&AnalyticsRun{}).
		Where("id = ?", runID).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to update analytics run: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRunNotFound
	}
	return nil
}

func (r *repository) Get(ctx context.Context, orgID, runID uuid.UUID) (*AnalyticsRun, error) {
	var run AnalyticsRun
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND id = ?", orgID, runID).
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analytics run: %w", err)
	}
	return &run, nil
}

func (r *repository) Latest(ctx context.Context, orgID uuid.UUID) (*AnalyticsRun, error) {
	var run AnalyticsRun
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("started_at DESC, created_at DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest analytics run: %w", err)
	}
	return &run, nil
}

func (r *repository) List(ctx context.Context, orgID uuid.UUID, limit int) ([]AnalyticsRun, error) {
	var runs []AnalyticsRun
	query := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("started_at DESC, created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list analytics runs: %w", err)
	}
	return runs, nil
}
