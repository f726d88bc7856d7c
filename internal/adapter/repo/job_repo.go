package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
	now func() time.Time
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql, now: time.Now}
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.PrepareNew(r.now().UTC())
	params, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	meta, err := marshalJSON(job.Metadata)
	if err != nil {
		return err
	}
	_, err = r.sql.Exec(ctx, sqlinline.QInsertGenerationJob,
		job.ID,
		string(job.Type),
		job.Prompt,
		job.Model,
		job.Provider,
		string(job.Status),
		string(job.Mode),
		string(job.QualityTier),
		domain.Deref(job.ParentJobID),
		job.ReferenceMediaPath,
		job.VideoBriefID,
		job.DurationSeconds,
		params,
		meta,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	if !validID(jobID) {
		return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
	}
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectGenerationJob, jobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
		}
		return nil, err
	}
	return job, nil
}

// Update applies a partial update with a compare-and-set on status.
func (r *JobRepositoryPG) Update(ctx context.Context, jobID string, update domain.JobUpdate) error {
	return domain.RunUpdate(ctx, jobID, update, r.now().UTC(), r.GetByID, r.write)
}

func (r *JobRepositoryPG) write(ctx context.Context, prev domain.JobStatus, next *domain.Job) (bool, error) {
	meta, err := marshalJSON(next.Metadata)
	if err != nil {
		return false, err
	}
	var critic []byte
	if next.CriticMetadata != nil {
		if critic, err = marshalJSON(next.CriticMetadata); err != nil {
			return false, err
		}
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QCompareAndSetGenerationJob,
		next.ID,
		string(next.Status),
		next.Model,
		next.ResultURL,
		next.ErrorMessage,
		meta,
		next.QualityScore,
		next.CriticReport,
		critic,
		string(prev),
		next.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("update job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListStale returns processing jobs not updated since before, oldest first.
func (r *JobRepositoryPG) ListStale(ctx context.Context, before time.Time, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListStaleGenerationJobs, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job                         domain.Job
		jobType, status, mode, tier string
		params, meta, critic        []byte
	)
	err := row.Scan(
		&job.ID,
		&jobType,
		&job.Prompt,
		&job.Model,
		&job.Provider,
		&status,
		&mode,
		&tier,
		&job.ResultURL,
		&job.ErrorMessage,
		&job.ParentJobID,
		&job.ReferenceMediaPath,
		&job.VideoBriefID,
		&job.DurationSeconds,
		&params,
		&meta,
		&job.QualityScore,
		&job.CriticReport,
		&critic,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	job.Type = domain.JobType(jobType)
	job.Status = domain.JobStatus(status)
	job.Mode = domain.JobMode(mode)
	job.QualityTier = domain.QualityTier(tier)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &job.Params); err != nil {
			return nil, fmt.Errorf("decode params of job %s: %w", job.ID, err)
		}
	}
	job.Metadata = unmarshalJSON(meta)
	if critic != nil {
		job.CriticMetadata = unmarshalJSON(critic)
	}
	return &job, nil
}

func marshalJSON(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return b, nil
}

func unmarshalJSON(b []byte) map[string]any {
	m := map[string]any{}
	if len(b) > 0 {
		_ = json.Unmarshal(b, &m)
	}
	return m
}

// validID reports whether id can be a stored key. Anything else cannot match
// a row and would only produce a cast error from Postgres.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
