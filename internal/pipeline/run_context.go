package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Progress is reported after every completed step.
type Progress struct {
	RunID          uuid.UUID `json:"run_id"`
	Step           string    `json:"step"`
	CompletedSteps int       `json:"completed_steps"`
	TotalSteps     int       `json:"total_steps"`
}

type ProgressFunc func(Progress)

// RunContext carries the run-scoped state each step needs. Steps receive it
// explicitly so a step can be exercised with a hand-built context.
type RunContext struct {
	RunID uuid.UUID
	OrgID uuid.UUID
	// Now is fixed when the run starts so every step sees the same instant.
	Now time.Time

	completed  int
	onProgress ProgressFunc
	log        Repository
}

func newRunContext(run *AnalyticsRun, now time.Time, log Repository, onProgress ProgressFunc) *RunContext {
	return &RunContext{
		RunID:      run.ID,
		OrgID:      run.OrganizationID,
		Now:        now,
		onProgress: onProgress,
		log:        log,
	}
}

// Completed is the number of steps finished so far.
func (rc *RunContext) Completed() int {
	return rc.completed
}

// advance records step as done in the run log, then notifies the sink.
func (rc *RunContext) advance(ctx context.Context, step string) error {
	next := rc.completed + 1
	if rc.log != nil {
		if err := rc.log.UpdateProgress(ctx, rc.RunID, next, step); err != nil {
			return err
		}
	}
	rc.completed = next
	if rc.onProgress != nil {
		rc.onProgress(Progress{
			RunID:          rc.RunID,
			Step:           step,
			CompletedSteps: next,
			TotalSteps:     TotalSteps,
		})
	}
	return nil
}
