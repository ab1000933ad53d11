package health

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const dateLayout = "2006-01-02"

// Record is one customer's score for one calendar day.
type Record struct {
	ID                 uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID     uuid.UUID `json:"organization_id" gorm:"type:uuid;not null;uniqueIndex:idx_health_org_customer_date"`
	CustomerID         uuid.UUID `json:"customer_id" gorm:"type:uuid;not null;uniqueIndex:idx_health_org_customer_date"`
	ScoreDate          string    `json:"score_date" gorm:"size:10;not null;uniqueIndex:idx_health_org_customer_date;index"`
	OverallScore       int       `json:"overall_score"`
	UsageScore         float64   `json:"usage_score"`
	EngagementScore    float64   `json:"engagement_score"`
	FinancialScore     float64   `json:"financial_score"`
	Trend              Trend     `json:"trend" gorm:"type:varchar(16)"`
	Velocity           int       `json:"velocity"`
	UpgradeReadiness   float64   `json:"upgrade_readiness"`
	ChurnRisk          float64   `json:"churn_risk"`
	ExpansionPotential float64   `json:"expansion_potential"`
	Patterns           []string  `json:"patterns" gorm:"type:text;serializer:json"`
	CalculatedAt       time.Time `json:"calculated_at"`
}

func (Record) TableName() string {
	return "health_scores"
}

func (r *Record) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// ScoreDate is the UTC calendar day a score belongs to.
func ScoreDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// Repository defines the health score repository interface
type Repository interface {
	// PriorScores returns the overall scores stored for the day before day.
	PriorScores(ctx context.Context, orgID uuid.UUID, day time.Time) (map[uuid.UUID]int, error)
	Upsert(ctx context.Context, orgID uuid.UUID, scores []Score, calculatedAt time.Time, batchSize int) error
	ListForDay(ctx context.Context, orgID uuid.UUID, day time.Time) ([]Record, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new health score repository instance
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) PriorScores(ctx context.Context, orgID uuid.UUID, day time.Time) (map[uuid.UUID]int, error) {
	rows, err := r.ListForDay(ctx, orgID, day.AddDate(0, 0, -1))
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		out[row.CustomerID] = row.OverallScore
	}
	return out, nil
}

func (r *repository) Upsert(ctx context.Context, orgID uuid.UUID, scores []Score, calculatedAt time.Time, batchSize int) error {
	if len(scores) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	day := ScoreDate(calculatedAt)
	records := make([]Record, len(scores))
	for i, s := range scores {
		records[i] = Record{
			OrganizationID:     orgID,
			CustomerID:         s.CustomerID,
			ScoreDate:          day,
			OverallScore:       s.Overall,
			UsageScore:         s.Usage,
			EngagementScore:    s.Engagement,
			FinancialScore:     s.Financial,
			Trend:              s.Trend,
			Velocity:           s.Velocity,
			UpgradeReadiness:   s.Probabilities.UpgradeReadiness,
			ChurnRisk:          s.Probabilities.ChurnRisk,
			ExpansionPotential: s.Probabilities.ExpansionPotential,
			Patterns:           s.Patterns,
			CalculatedAt:       calculatedAt,
		}
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "organization_id"}, {Name: "customer_id"}, {Name: "score_date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"overall_score", "usage_score", "engagement_score", "financial_score",
				"trend", "velocity", "upgrade_readiness", "churn_risk", "expansion_potential",
				"patterns", "calculated_at",
			}),
		}).
		CreateInBatches(&records, batchSize).Error
	if err != nil {
		return fmt.Errorf("failed to upsert health scores: %w", err)
	}
	return nil
}

func (r *repository) ListForDay(ctx context.Context, orgID uuid.UUID, day time.Time) ([]Record, error) {
	var rows []Record
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND score_date = ?", orgID, ScoreDate(day)).
		Order("overall_score DESC, customer_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list health scores: %w", err)
	}
	return rows, nil
}
