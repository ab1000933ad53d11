// Package pipeline runs the eight analytics steps for one organization and
// records each run's progress in the analytics run log.
package pipeline

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"ontology/internal/cohort"
	"ontology/internal/correlation"
	"ontology/internal/economics"
	"ontology/internal/health"
	"ontology/internal/ltv"
	"ontology/internal/patterns"
	"ontology/internal/retention"
	"ontology/internal/segments"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

func (s RunStatus) IsFinal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Step names in execution order.
const (
	StepCohortRetention  = "cohort_retention"
	StepLTV              = "ltv"
	StepRetentionMetrics = "retention_metrics"
	StepSegmentation     = "segmentation"
	StepPatternDetection = "pattern_detection"
	StepValueMetrics     = "value_metrics"
	StepHealthScoring    = "health_scoring"
	StepOntologySummary  = "ontology_summary"
)

var Steps = []string{
	StepCohortRetention,
	StepLTV,
	StepRetentionMetrics,
	StepSegmentation,
	StepPatternDetection,
	StepValueMetrics,
	StepHealthScoring,
	StepOntologySummary,
}

const TotalSteps = 8

// AnalyticsRun is the run log row. It is the only state shared across steps.
type AnalyticsRun struct {
	ID             uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	OrganizationID uuid.UUID        `json:"organization_id" gorm:"type:uuid;not null;index:idx_run_org_started"`
	Status         RunStatus        `json:"status" gorm:"type:varchar(16);not null;default:'running'"`
	TotalSteps     int              `json:"total_steps" gorm:"not null"`
	CompletedSteps int              `json:"completed_steps" gorm:"not null;default:0"`
	CurrentStep    string           `json:"current_step" gorm:"size:64"`
	StartedAt      time.Time        `json:"started_at" gorm:"not null;index:idx_run_org_started"`
	CompletedAt    *time.Time       `json:"completed_at"`
	ErrorMessage   *string          `json:"error_message" gorm:"type:text"`
	Summary        *OntologySummary `json:"summary" gorm:"type:text;serializer:json"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func (AnalyticsRun) TableName() string {
	return "analytics_runs"
}

func (r *AnalyticsRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Progress returns the completed fraction of the run.
func (r AnalyticsRun) Progress() float64 {
	if r.TotalSteps == 0 {
		return 0
	}
	return float64(r.CompletedSteps) / float64(r.TotalSteps)
}

type HealthDistribution struct {
	Healthy  int `json:"healthy"`
	AtRisk   int `json:"at_risk"`
	Critical int `json:"critical"`
}

// OntologySummary is the compact result a presentation layer renders.
type OntologySummary struct {
	GeneratedAt        time.Time          `json:"generated_at"`
	CustomerCount      int                `json:"customer_count"`
	TotalMRR           float64            `json:"total_mrr"`
	SegmentCount       int                `json:"segment_count"`
	KeyInsights        []string           `json:"key_insights"`
	HealthDistribution HealthDistribution `json:"health_distribution"`
	PrimaryValueMetric *string            `json:"primary_value_metric"`
	TopPatterns        []string           `json:"top_patterns"`
}

const (
	maxKeyInsights = 5
	maxTopPatterns = 5
)

type RetentionResult struct {
	Trailing  retention.Metrics          `json:"trailing"`
	Growth    retention.GrowthMetrics    `json:"growth"`
	Waterfall []retention.WaterfallMonth `json:"waterfall"`
}

type PatternResult struct {
	Upgrades    patterns.UpgradeReport     `json:"upgrades"`
	ChurnRisks  patterns.ChurnReport       `json:"churn_risks"`
	Seasonality *patterns.SeasonalReport   `json:"seasonality"`
	Snapshots   []patterns.MonthlySnapshot `json:"-"`
	Insights    []string                   `json:"insights"`
}

type ValueMetricResult struct {
	Report   *correlation.Report `json:"report"`
	Insights []string            `json:"insights"`
}

type SegmentationResult struct {
	segments.Result
	Applied segments.Applied `json:"applied"`
}

// Result is everything one run computed.
type Result struct {
	RunID        uuid.UUID           `json:"run_id"`
	Cohorts      cohort.Result       `json:"cohorts"`
	LTV          ltv.Result          `json:"ltv"`
	Retention    RetentionResult     `json:"retention"`
	Segmentation SegmentationResult  `json:"segmentation"`
	Patterns     PatternResult       `json:"patterns"`
	ValueMetrics ValueMetricResult   `json:"value_metrics"`
	Health       health.Result       `json:"health"`
	Economics    *economics.Snapshot `json:"economics"`
	Summary      OntologySummary     `json:"summary"`
}

// LatestAnalytics is what a poller sees for an organization.
type LatestAnalytics struct {
	RunID          uuid.UUID        `json:"run_id"`
	Status         RunStatus        `json:"status"`
	CompletedSteps int              `json:"completed_steps"`
	TotalSteps     int              `json:"total_steps"`
	CurrentStep    string           `json:"current_step"`
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    *time.Time       `json:"completed_at"`
	Error          *string          `json:"error,omitempty"`
	Summary        *OntologySummary `json:"summary"`
}

func latestFrom(run *AnalyticsRun) *LatestAnalytics {
	return &LatestAnalytics{
		RunID:          run.ID,
		Status:         run.Status,
		CompletedSteps: run.CompletedSteps,
		TotalSteps:     run.TotalSteps,
		CurrentStep:    run.CurrentStep,
		StartedAt:      run.StartedAt,
		CompletedAt:    run.CompletedAt,
		Error:          run.ErrorMessage,
		Summary:        run.Summary,
	}
}
