package analytics

import (
	"time"

	"github.com/google/uuid"

	"ontology/internal/economics"
	"ontology/internal/pipeline"
	"ontology/internal/segments"
)

// RunResponse is returned by the run trigger once the pipeline finished.
type RunResponse struct {
	RunID     uuid.UUID                `json:"run_id"`
	Status    pipeline.RunStatus       `json:"status"`
	Summary   pipeline.OntologySummary `json:"summary"`
	Economics *economics.Snapshot      `json:"economics"`
	Segments  []segments.Definition    `json:"segments"`
	Insights  []string                 `json:"insights"`
	Duration  string                   `json:"duration"`
}

// RunView is the API rendering of one run log row.
type RunView struct {
	ID             uuid.UUID                 `json:"id"`
	OrganizationID uuid.UUID                 `json:"organization_id"`
	Status         pipeline.RunStatus        `json:"status"`
	CompletedSteps int                       `json:"completed_steps"`
	TotalSteps     int                       `json:"total_steps"`
	Progress       float64                   `json:"progress"`
	CurrentStep    string                    `json:"current_step"`
	StartedAt      time.Time                 `json:"started_at"`
	CompletedAt    *time.Time                `json:"completed_at"`
	Error          *string                   `json:"error,omitempty"`
	Summary        *pipeline.OntologySummary `json:"summary"`
}

func runViewFrom(run *pipeline.AnalyticsRun) *RunView {
	return &RunView{
		ID:             run.ID,
		OrganizationID: run.OrganizationID,
		Status:         run.Status,
		CompletedSteps: run.CompletedSteps,
		TotalSteps:     run.TotalSteps,
		Progress:       run.Progress(),
		CurrentStep:    run.CurrentStep,
		StartedAt:      run.StartedAt,
		CompletedAt:    run.CompletedAt,
		Error:          run.ErrorMessage,
		Summary:        run.Summary,
	}
}

func runResponseFrom(res *pipeline.Result, elapsed time.Duration) *RunResponse {
	insights := make([]string, 0)
	insights = append(insights, res.Segmentation.Insights...)
	insights = append(insights, res.Patterns.Insights...)
	insights = append(insights, res.ValueMetrics.Insights...)
	return &RunResponse{
		RunID:     res.RunID,
		Status:    pipeline.RunStatusCompleted,
		Summary:   res.Summary,
		Economics: res.Economics,
		Segments:  res.Segmentation.Definitions,
		Insights:  insights,
		Duration:  elapsed.Round(time.Millisecond).String(),
	}
}
