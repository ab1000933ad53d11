package customers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the customer ledger repository interface
type Repository interface {
	// Reads
	ListCustomers(ctx context.Context, orgID uuid.UUID, filter CustomerFilter) ([]Customer, error)
	ListExpansionEvents(ctx context.Context, orgID uuid.UUID, since time.Time) ([]ExpansionEvent, error)
	ListTransactions(ctx context.Context, orgID uuid.UUID) ([]Transaction, error)
	ListPricingTiers(ctx context.Context, orgID uuid.UUID) ([]PricingTier, error)
	ListUsageMetrics(ctx context.Context, orgID uuid.UUID, since time.Time) ([]UsageMetric, error)

	// Segment membership is the only customer field the analytics engine writes
	AssignSegments(ctx context.Context, orgID uuid.UUID, assignments map[uuid.UUID]uuid.UUID, batchSize int) error
	ClearSegments(ctx context.Context, orgID uuid.UUID, customerIDs []uuid.UUID, batchSize int) error

	// Ledger writes used by imports and fixtures
	CreateCustomers(ctx context.Context, rows []Customer) error
	CreateExpansionEvents(ctx context.Context, rows []ExpansionEvent) error
	CreateTransactions(ctx context.Context, rows []Transaction) error
	CreatePricingTiers(ctx context.Context, rows []PricingTier) error
	CreateUsageMetrics(ctx context.Context, rows []UsageMetric) error
}

// repository implements the Repository interface
type repository struct {
	db *gorm.DB
}

// NewRepository creates a new customer repository instance
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) ListCustomers(ctx context.Context, orgID uuid.UUID, filter CustomerFilter) ([]Customer, error) {
	var rows []Customer
	query := r.db.WithContext(ctx).Where("organization_id = ?", orgID)
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if err := query.Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	return rows, nil
}

func (r *repository) ListExpansionEvents(ctx context.Context, orgID uuid.UUID, since time.Time) ([]ExpansionEvent, error) {
	var rows []ExpansionEvent
	query := r.db.WithContext(ctx).Where("organization_id = ?", orgID)
	if !since.IsZero() {
		query = query.Where("occurred_at >= ?", since)
	}
	if err := query.Order("occurred_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list expansion events: %w", err)
	}
	return rows, nil
}

func (r *repository) ListTransactions(ctx context.Context, orgID uuid.UUID) ([]Transaction, error) {
	var rows []Transaction
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("occurred_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return rows, nil
}

func (r *repository) ListPricingTiers(ctx context.Context, orgID uuid.UUID) ([]PricingTier, error) {
	var rows []PricingTier
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("price ASC, sort_order ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pricing tiers: %w", err)
	}
	return rows, nil
}

func (r *repository) ListUsageMetrics(ctx context.Context, orgID uuid.UUID, since time.Time) ([]UsageMetric, error) {
	var rows []UsageMetric
	query := r.db.WithContext(ctx).Where("organization_id = ?", orgID)
	if !since.IsZero() {
		query = query.Where("recorded_at >= ?", since)
	}
	if err := query.Order("recorded_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list usage metrics: %w", err)
	}
	return rows, nil
}

// AssignSegments rewrites segment_id for every customer in assignments,
// grouping by target segment and updating at most batchSize rows per statement.
func (r *repository) AssignSegments(ctx context.Context, orgID uuid.UUID, assignments map[uuid.UUID]uuid.UUID, batchSize int) error {
	if len(assignments) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	bySegment := make(map[uuid.UUID][]uuid.UUID)
	var order []uuid.UUID
	for customerID, segmentID := range assignments {
		if _, ok := bySegment[segmentID]; !ok {
			order = append(order, segmentID)
		}
		bySegment[segmentID] = append(bySegment[segmentID], customerID)
	}

	for _, segmentID := range order {
		ids := bySegment[segmentID]
		for start := 0; start < len(ids); start += batchSize {
			end := min(start+batchSize, len(ids))
			err := r.db.WithContext(ctx).
				Model(&Customer{}).
				Where("organization_id = ? AND id IN ?", orgID, ids[start:end]).
				Update("segment_id", segmentID).Error
			if err != nil {
				return fmt.Errorf("failed to assign segment %s: %w", segmentID, err)
			}
		}
	}
	return nil
}

// ClearSegments sets segment_id to NULL for the given customers in batches.
func (r *repository) ClearSegments(ctx context.Context, orgID uuid.UUID, customerIDs []uuid.UUID, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 100
	}
	for start := 0; start < len(customerIDs); start += batchSize {
		end := min(start+batchSize, len(customerIDs))
		err := r.db.WithContext(ctx).
			Model(&Customer{}).
			Where("organization_id = ? AND id IN ?", orgID, customerIDs[start:end]).
			Update("segment_id", nil).Error
		if err != nil {
			return fmt.Errorf("failed to clear customer segments: %w", err)
		}
	}
	return nil
}

func (r *repository) CreateCustomers(ctx context.Context, rows []Customer) error {
	if len(rows) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&rows, 100).Error; err != nil {
		return fmt.Errorf("failed to create customers: %w", err)
	}
	return nil
}

func (r *repository) CreateExpansionEvents(ctx context.Context, rows []ExpansionEvent) error {
	if len(rows) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&rows, 100).Error; err != nil {
		return fmt.Errorf("failed to create expansion events: %w", err)
	}
	return nil
}

func (r *repository) CreateTransactions(ctx context.Context, rows []Transaction) error {
	if len(rows) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&rows, 100).Error; err != nil {
		return fmt.Errorf("failed to create transactions: %w", err)
	}
	return nil
}

func (r *repository) CreatePricingTiers(ctx context.Context, rows []PricingTier) error {
	if len(rows) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&rows, 100).Error; err != nil {
		return fmt.Errorf("failed to create pricing tiers: %w", err)
	}
	return nil
}

func (r *repository) CreateUsageMetrics(ctx context.Context, rows []UsageMetric) error {
	if len(rows) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).CreateInBatches(&rows, 100).Error; err != nil {
		return fmt.Errorf("failed to create usage metrics: %w", err)
	}
	return nil
}
