package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"ontology/internal/cohort"
	"ontology/internal/correlation"
	"ontology/internal/customers"
	"ontology/internal/economics"
	"ontology/internal/health"
	"ontology/internal/patterns"
	"ontology/internal/rfm"
	"ontology/internal/segments"
	"ontology/internal/shared/constants"
	"ontology/pkg/logger"
)

// Repositories groups every store the pipeline reads or writes.
type Repositories struct {
	Customers    customers.Repository
	Cohorts      cohort.Repository
	RFM          rfm.Repository
	Segments     segments.Repository
	Patterns     patterns.Repository
	Correlations correlation.Repository
	Health       health.Repository
	Economics    economics.Repository
	Runs         Repository
}

// NewRepositories wires the gorm-backed repositories onto one connection.
func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Customers:    customers.NewRepository(db),
		Cohorts:      cohort.NewRepository(db),
		RFM:          rfm.NewRepository(db),
		Segments:     segments.NewRepository(db),
		Patterns:     patterns.NewRepository(db),
		Correlations: correlation.NewRepository(db),
		Health:       health.NewRepository(db),
		Economics:    economics.NewRepository(db),
		Runs:         NewRepository(db),
	}
}

// Models lists the tables the pipeline needs migrated.
func Models() []interface{} {
	return []interface{}{
		&customers.Customer{},
		&customers.ExpansionEvent{},
		&customers.Transaction{},
		&customers.PricingTier{},
		&customers.UsageMetric{},
		&cohort.RetentionRecord{},
		&rfm.ScoreRecord{},
		&segments.Segment{},
		&patterns.Pattern{},
		&correlation.Record{},
		&health.Record{},
		&economics.Snapshot{},
		&AnalyticsRun{},
	}
}

// RunEvent is published when a run starts, completes or fails.
type RunEvent struct {
	RunID          uuid.UUID        `json:"run_id"`
	OrganizationID uuid.UUID        `json:"organization_id"`
	Status         RunStatus        `json:"status"`
	CompletedSteps int              `json:"completed_steps"`
	TotalSteps     int              `json:"total_steps"`
	Error          *string          `json:"error,omitempty"`
	Summary        *OntologySummary `json:"summary,omitempty"`
	OccurredAt     time.Time        `json:"occurred_at"`
}

type Publisher interface {
	PublishRunEvent(ctx context.Context, event RunEvent) error
}

// Invalidator drops cached reads of an organization's analytics.
type Invalidator interface {
	Delete(ctx context.Context, key string) error
}

type Recorder interface {
	RunStarted()
	ObserveStep(step string, duration time.Duration)
	ObserveRun(status string, duration time.Duration)
}

type RunOptions struct {
	OnProgress ProgressFunc
}

type Option func(*Orchestrator)

// WithClock replaces time.Now for run timestamps and analysis dates.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

func WithCache(c Invalidator) Option {
	return func(o *Orchestrator) { o.cache = c }
}

func WithMetrics(m Recorder) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

type Orchestrator struct {
	repos     Repositories
	cfg       Config
	clock     func() time.Time
	publisher Publisher
	cache     Invalidator
	metrics   Recorder
	logger    *logger.Logger
}

// NewOrchestrator creates a pipeline orchestrator. Publisher, cache and
// metrics are optional.
func NewOrchestrator(repos Repositories, cfg Config, opts ...Option) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	o := &Orchestrator{
		repos:  repos,
		cfg:    cfg,
		clock:  time.Now,
		logger: logger.GetDefault(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type step struct {
	name string
	run  func(context.Context, *RunContext, *runState) error
}

func (o *Orchestrator) steps() []step {
	return []step{
		{StepCohortRetention, o.cohortRetention},
		{StepLTV, o.lifetimeValue},
		{StepRetentionMetrics, o.retentionMetrics},
		{StepSegmentation, o.segmentation},
		{StepPatternDetection, o.patternDetection},
		{StepValueMetrics, o.valueMetrics},
		{StepHealthScoring, o.healthScoring},
		{StepOntologySummary, o.ontologySummary},
	}
}

// RunFullAnalytics executes the eight steps in order. Any step error marks
// the run failed and is returned; nothing is retried. Every step recomputes
// from the store, so a rerun on unchanged data reproduces the same results.
func (o *Orchestrator) RunFullAnalytics(ctx context.Context, orgID uuid.UUID, opts RunOptions) (*Result, error) {
	now := o.clock().UTC()
	run := &AnalyticsRun{
		OrganizationID: orgID,
		Status:         RunStatusRunning,
		TotalSteps:     TotalSteps,
		StartedAt:      now,
	}
	if err := o.repos.Runs.Create(ctx, run); err != nil {
		return nil, err
	}

	rc := newRunContext(run, now, o.repos.Runs, opts.OnProgress)
	started := time.Now()
	o.logger.LogRunStarted(ctx, run.ID.String(), orgID.String())
	if o.metrics != nil {
		o.metrics.RunStarted()
	}
	o.invalidate(ctx, orgID)
	o.publish(ctx, rc, RunStatusRunning, nil, nil)

	st := &runState{result: &Result{RunID: run.ID}}
	for _, s := range o.steps() {
		stepStarted := time.Now()
		if err := s.run(ctx, rc, st); err != nil {
			return nil, o.fail(ctx, rc, s.name, started, err)
		}
		if err := rc.advance(ctx, s.name); err != nil {
			return nil, o.fail(ctx, rc, s.name, started, err)
		}
		elapsed := time.Since(stepStarted)
		o.logger.LogStepCompleted(ctx, run.ID.String(), s.name, rc.Completed(), TotalSteps, elapsed)
		if o.metrics != nil {
			o.metrics.ObserveStep(s.name, elapsed)
		}
	}

	summary := st.result.Summary
	if err := o.repos.Runs.Complete(ctx, run.ID, summary, o.clock().UTC()); err != nil {
		return nil, o.fail(ctx, rc, StepOntologySummary, started, err)
	}

	elapsed := time.Since(started)
	o.logger.LogRunCompleted(ctx, run.ID.String(), orgID.String(), elapsed)
	if o.metrics != nil {
		o.metrics.ObserveRun(string(RunStatusCompleted), elapsed)
	}
	o.invalidate(ctx, orgID)
	o.publish(ctx, rc, RunStatusCompleted, nil, &summary)
	return st.result, nil
}

func (o *Orchestrator) fail(ctx context.Context, rc *RunContext, stepName string, started time.Time, cause error) error {
	err := fmt.Errorf("analytics step %s failed: %w", stepName, cause)
	msg := err.Error()

	// the run log is written even when the caller's context is already done
	logCtx := context.WithoutCancel(ctx)
	if failErr := o.repos.Runs.Fail(logCtx, rc.RunID, msg, o.clock().UTC()); failErr != nil {
		err = errors.Join(err, fmt.Errorf("failed to mark analytics run failed: %w", failErr))
	}

	o.logger.LogRunFailed(logCtx, rc.RunID.String(), rc.OrgID.String(), stepName, cause)
	if o.metrics != nil {
		o.metrics.ObserveRun(string(RunStatusFailed), time.Since(started))
	}
	o.invalidate(logCtx, rc.OrgID)
	o.publish(logCtx, rc, RunStatusFailed, &msg, nil)
	return err
}

func (o *Orchestrator) publish(ctx context.Context, rc *RunContext, status RunStatus, errMsg *string, summary *OntologySummary) {
	if o.publisher == nil {
		return
	}
	event := RunEvent{
		RunID:          rc.RunID,
		OrganizationID: rc.OrgID,
		Status:         status,
		CompletedSteps: rc.Completed(),
		TotalSteps:     TotalSteps,
		Error:          errMsg,
		Summary:        summary,
		OccurredAt:     o.clock().UTC(),
	}
	if err := o.publisher.PublishRunEvent(ctx, event); err != nil {
		o.logger.WarnContext(ctx, "failed to publish run event",
			slog.String("run_id", rc.RunID.String()),
			slog.String("status", string(status)),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) invalidate(ctx context.Context, orgID uuid.UUID) {
	if o.cache == nil {
		return
	}
	if err := o.cache.Delete(ctx, constants.BuildAnalyticsLatestKey(orgID.String())); err != nil {
		o.logger.WarnContext(ctx, "failed to invalidate latest analytics cache",
			slog.String("organization_id", orgID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// GetLatestAnalytics returns the newest run of the organization, whatever its
// status. ErrNoRuns when the organization was never analyzed.
func (o *Orchestrator) GetLatestAnalytics(ctx context.Context, orgID uuid.UUID) (*LatestAnalytics, error) {
	run, err := o.repos.Runs.Latest(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return latestFrom(run), nil
}

// GetRun returns one run of the organization or ErrRunNotFound.
func (o *Orchestrator) GetRun(ctx context.Context, orgID, runID uuid.UUID) (*AnalyticsRun, error) {
	return o.repos.Runs.Get(ctx, orgID, runID)
}
