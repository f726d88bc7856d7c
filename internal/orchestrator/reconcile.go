package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"studio/internal/domain"
)

// ReconcileStale fails processing jobs whose last update is older than
// maxAge. Such jobs were abandoned by a crashed or timed-out pipeline. Jobs
// that finished in the meantime are skipped. It returns the number of jobs
// marked failed.
func (o *Orchestrator) ReconcileStale(ctx context.Context, maxAge time.Duration, limit int) (int, error) {
	if maxAge <= 0 {
		return 0, domain.Invalid("maxAge", "must be positive")
	}
	now := o.now()
	stale, err := o.jobs.ListStale(ctx, now.Add(-maxAge), limit)
	if err != nil {
		return 0, fmt.Errorf("list stale jobs: %w", err)
	}

	reconciled := 0
	for _, job := range stale {
		msg := fmt.Sprintf("stale: no terminal status since %s", job.UpdatedAt.UTC().Format(time.RFC3339))
		err := o.jobs.Update(ctx, job.ID, domain.Fail(msg, map[string]any{
			"error_code":    "stale",
			"reconciled_at": now.UTC().Format(time.RFC3339),
		}))
		switch {
		case errors.Is(err, domain.ErrConflict):
			continue
		case err != nil:
			return reconciled, fmt.Errorf("reconcile job %s: %w", job.ID, err)
		}
		reconciled++
		o.logger.Warn().Str("job_id", job.ID).Time("updated_at", job.UpdatedAt).Msg("orchestrator: stale job failed")
	}
	return reconciled, nil
}
