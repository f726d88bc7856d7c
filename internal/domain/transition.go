package domain

import (
	"context"
	"fmt"
	"maps"
	"time"
)

// JobUpdate is a partial update to a job. Nil fields are left untouched and
// Metadata is merged key by key into the stored provider metadata.
type JobUpdate struct {
	Status         *JobStatus
	ResultURL      *string
	ErrorMessage   *string
	Model          *string
	Metadata       map[string]any
	QualityScore   *float64
	CriticReport   *string
	CriticMetadata map[string]any
	// Heartbeat refreshes updated_at of a processing job so the stale sweep
	// leaves it alone.
	Heartbeat bool
}

// Touch builds a heartbeat-only update.
func Touch() JobUpdate {
	return JobUpdate{Heartbeat: true}
}

// Complete builds the terminal update for a successful job.
func Complete(resultURL string, metadata map[string]any) JobUpdate {
	status := JobStatusCompleted
	return JobUpdate{Status: &status, ResultURL: &resultURL, Metadata: metadata}
}

// Fail builds the terminal update for a failed job.
func Fail(message string, metadata map[string]any) JobUpdate {
	status := JobStatusFailed
	return JobUpdate{Status: &status, ErrorMessage: &message, Metadata: metadata}
}

func (u JobUpdate) touchesCritic() bool {
	return u.QualityScore != nil || u.CriticReport != nil || u.CriticMetadata != nil
}

func (u JobUpdate) empty() bool {
	return u.Status == nil && u.ResultURL == nil && u.ErrorMessage == nil && u.Model == nil &&
		len(u.Metadata) == 0 && !u.touchesCritic()
}

// ApplyUpdate validates u against the current job and returns the job as it
// should be stored. noop is true when nothing needs to be written, which is
// the case for a repeated identical terminal update.
func ApplyUpdate(current Job, u JobUpdate, now time.Time) (next Job, noop bool, err error) {
	if u.empty() {
		if !u.Heartbeat || current.Status.Terminal() {
			return current, true, nil
		}
		next = current
		next.UpdatedAt = now
		return next, false, nil
	}
	next = current

	if u.Status != nil {
		target := *u.Status
		switch target {
		case JobStatusProcessing:
			if current.Status != JobStatusProcessing {
				return current, false, fmt.Errorf("%w: job %s is %s and cannot return to processing", ErrConflict, current.ID, current.Status)
			}
		case JobStatusCompleted:
			if Deref(u.ResultURL) == "" {
				return current, false, Invalid("result_url", "required when completing a job")
			}
			if u.ErrorMessage != nil {
				return current, false, Invalid("error_message", "must be empty when completing a job")
			}
		case JobStatusFailed:
			if Deref(u.ErrorMessage) == "" {
				return current, false, Invalid("error_message", "required when failing a job")
			}
			if u.ResultURL != nil {
				return current, false, Invalid("result_url", "must be empty when failing a job")
			}
		default:
			return current, false, Invalid("status", fmt.Sprintf("unknown status %q", target))
		}

		if current.Status.Terminal() {
			if sameTerminal(current, target, u) {
				return current, true, nil
			}
			return current, false, fmt.Errorf("%w: job %s is already %s", ErrConflict, current.ID, current.Status)
		}

		if target.Terminal() {
			next.Status = target
			next.ResultURL = u.ResultURL
			next.ErrorMessage = u.ErrorMessage
		}
	} else if u.ResultURL != nil || u.ErrorMessage != nil {
		return current, false, Invalid("status", "result_url and error_message are only written with a terminal status")
	}

	if u.Model != nil {
		if current.Status != JobStatusProcessing {
			return current, false, fmt.Errorf("%w: model of %s job %s is fixed", ErrConflict, current.Status, current.ID)
		}
		next.Model = *u.Model
	}

	if u.touchesCritic() {
		if next.Type != JobTypeVideo || next.Status != JobStatusCompleted {
			return current, false, ErrCriticNotApplicable
		}
		if u.QualityScore != nil {
			score := *u.QualityScore
			next.QualityScore = &score
		}
		if u.CriticReport != nil {
			report := *u.CriticReport
			next.CriticReport = &report
		}
		if u.CriticMetadata != nil {
			next.CriticMetadata = maps.Clone(u.CriticMetadata)
		}
	}

	if len(u.Metadata) > 0 {
		merged := make(map[string]any, len(current.Metadata)+len(u.Metadata))
		maps.Copy(merged, current.Metadata)
		maps.Copy(merged, u.Metadata)
		next.Metadata = merged
	}

	next.UpdatedAt = now
	return next, false, nil
}

func sameTerminal(current Job, target JobStatus, u JobUpdate) bool {
	if current.Status != target {
		return false
	}
	switch target {
	case JobStatusCompleted:
		return Deref(current.ResultURL) == Deref(u.ResultURL)
	case JobStatusFailed:
		return Deref(current.ErrorMessage) == Deref(u.ErrorMessage)
	}
	return false
}

// JobLoader reads the current state of a job.
type JobLoader func(ctx context.Context, id string) (*Job, error)

// JobWriter persists next only if the stored status still equals prev. It
// reports whether a row was written.
type JobWriter func(ctx context.Context, prev JobStatus, next *Job) (bool, error)

// RunUpdate applies u with a compare-and-set on the job status so two
// concurrent finalizers cannot both win. A lost race is re-evaluated once,
// which turns an identical duplicate finalize into a no-op.
func RunUpdate(ctx context.Context, id string, u JobUpdate, now time.Time, load JobLoader, write JobWriter) error {
	for attempt := 0; attempt < 2; attempt++ {
		current, err := load(ctx, id)
		if err != nil {
			return err
		}
		next, noop, err := ApplyUpdate(*current, u, now)
		if err != nil || noop {
			return err
		}
		written, err := write(ctx, current.Status, &next)
		if err != nil {
			return err
		}
		if written {
			return nil
		}
	}
	return fmt.Errorf("%w: job %s changed concurrently", ErrConflict, id)
}
