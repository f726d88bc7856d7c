// Package sqlite is the embedded job store used for local runs and tests.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"studio/internal/domain"
)

// Store implements the job, segment and avatar repositories on SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithClock replaces the clock used to stamp created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string, opts ...Option) (*Store, error) {
	// Busy timeout to avoid SQLITE_BUSY under concurrent slideshow writes.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS generation_jobs (
		id TEXT PRIMARY KEY,
		job_type TEXT NOT NULL,
		prompt TEXT NOT NULL,
		model TEXT NOT NULL,
		provider TEXT NOT NULL,
		status TEXT NOT NULL,
		mode TEXT NOT NULL DEFAULT '',
		quality_tier TEXT NOT NULL DEFAULT '',
		result_url TEXT,
		error_message TEXT,
		parent_job_id TEXT,
		reference_media_path TEXT NOT NULL DEFAULT '',
		video_brief_id TEXT NOT NULL DEFAULT '',
		duration_seconds INTEGER,
		params_json TEXT NOT NULL DEFAULT '{}',
		provider_metadata TEXT NOT NULL DEFAULT '{}',
		quality_score REAL,
		critic_report TEXT,
		critic_metadata TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_generation_jobs_status_updated ON generation_jobs (status, updated_at);
	CREATE TABLE IF NOT EXISTS job_segments (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL REFERENCES generation_jobs(id),
		segment_index INTEGER NOT NULL,
		segment_type TEXT NOT NULL,
		duration_seconds INTEGER NOT NULL,
		segment_job_id TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		UNIQUE (job_id, segment_index)
	);
	CREATE TABLE IF NOT EXISTS avatar_profiles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		face_reference_paths TEXT NOT NULL DEFAULT '[]',
		environment_reference_paths TEXT NOT NULL DEFAULT '[]',
		face_strength REAL,
		environment_strength REAL,
		physical_description TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS video_assets_library (
		id TEXT PRIMARY KEY,
		storage_path TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		shot_type TEXT NOT NULL DEFAULT '',
		duration_seconds INTEGER,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_video_assets_library_created ON video_assets_library (created_at);
	CREATE TABLE IF NOT EXISTS voice_profiles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		reference_media_path TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS voice_profile_samples (
		id TEXT PRIMARY KEY,
		voice_profile_id TEXT NOT NULL REFERENCES voice_profiles(id),
		position INTEGER NOT NULL DEFAULT 0,
		reference_media_path TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

const jobColumns = `id, job_type, prompt, model, provider, status, mode, quality_tier, result_url, error_message,
	parent_job_id, reference_media_path, video_brief_id, duration_seconds, params_json, provider_metadata,
	quality_score, critic_report, critic_metadata, created_at, updated_at`

// Create inserts a new processing job.
func (s *Store) Create(ctx context.Context, job *domain.Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.PrepareNew(s.now().UTC())
	params, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	meta, err := marshalMap(job.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO generation_jobs (`+jobColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Type), job.Prompt, job.Model, job.Provider, string(job.Status), string(job.Mode),
		string(job.QualityTier), job.ResultURL, job.ErrorMessage, job.ParentJobID, job.ReferenceMediaPath,
		job.VideoBriefID, job.DurationSeconds, string(params), meta, job.QualityScore, job.CriticReport,
		nil, formatTime(job.CreatedAt), formatTime(job.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetByID loads a job or returns domain.ErrNotFound.
func (s *Store) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM generation_jobs WHERE id = ?`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
		}
		return nil, err
	}
	return job, nil
}

// Update applies a partial update with a compare-and-set on status.
func (s *Store) Update(ctx context.Context, jobID string, update domain.JobUpdate) error {
	return domain.RunUpdate(ctx, jobID, update, s.now().UTC(), s.GetByID, s.write)
}

func (s *Store) write(ctx context.Context, prev domain.JobStatus, next *domain.Job) (bool, error) {
	meta, err := marshalMap(next.Metadata)
	if err != nil {
		return false, err
	}
	var critic *string
	if next.CriticMetadata != nil {
		c, err := marshalMap(next.CriticMetadata)
		if err != nil {
			return false, err
		}
		critic = &c
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE generation_jobs
		 SET status = ?, model = ?, result_url = ?, error_message = ?, provider_metadata = ?,
		     quality_score = ?, critic_report = ?, critic_metadata = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(next.Status), next.Model, next.ResultURL, next.ErrorMessage, meta,
		next.QualityScore, next.CriticReport, critic, formatTime(next.UpdatedAt),
		next.ID, string(prev),
	)
	if err != nil {
		return false, fmt.Errorf("update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update job: %w", err)
	}
	return n == 1, nil
}

// ListStale returns processing jobs not updated since before, oldest first.
func (s *Store) ListStale(ctx context.Context, before time.Time, limit int) ([]domain.Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM generation_jobs
		 WHERE status = ? AND updated_at < ?
		 ORDER BY updated_at ASC LIMIT ?`,
		string(domain.JobStatusProcessing), formatTime(before), limit,
	)
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

// Append inserts a segment. A duplicate index for the same job is a conflict.
func (s *Store) Append(ctx context.Context, segment *domain.Segment) error {
	return s.AppendAll(ctx, []*domain.Segment{segment})
}

// AppendAll inserts segments in one transaction.
func (s *Store) AppendAll(ctx context.Context, segments []*domain.Segment) error {
	for _, seg := range segments {
		if seg == nil {
			return errors.New("segment is nil")
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin segments: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, seg := range segments {
		if err := s.insertSegment(ctx, tx, seg); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit segments: %w", err)
	}
	return nil
}

func (s *Store) insertSegment(ctx context.Context, tx *sql.Tx, segment *domain.Segment) error {
	if segment.ID == "" {
		segment.ID = uuid.NewString()
	}
	if segment.CreatedAt.IsZero() {
		segment.CreatedAt = s.now().UTC()
	}
	meta, err := marshalMap(segment.Metadata)
	if err != nil {
		return err
	}

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM job_segments WHERE job_id = ? AND segment_index = ?`,
		segment.JobID, segment.Index,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check segment: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%w: segment %d of job %s already exists", domain.ErrConflict, segment.Index, segment.JobID)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO job_segments (id, job_id, segment_index, segment_type, duration_seconds, segment_job_id, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		segment.ID, segment.JobID, segment.Index, string(segment.Type), segment.DurationSeconds,
		segment.SegmentJobID, meta, formatTime(segment.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert segment: %w", err)
	}
	return nil
}

// ListByJob returns the segments of a job ordered by index.
func (s *Store) ListByJob(ctx context.Context, jobID string) ([]domain.Segment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, segment_index, segment_type, duration_seconds, segment_job_id, metadata, created_at
		 FROM job_segments WHERE job_id = ? ORDER BY segment_index ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	segments := []domain.Segment{}
	for rows.Next() {
		var (
			seg             domain.Segment
			segType         string
			segJob          sql.NullString
			meta, createdAt string
		)
		if err := rows.Scan(&seg.ID, &seg.JobID, &seg.Index, &segType, &seg.DurationSeconds, &segJob, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		seg.Type = domain.SegmentType(segType)
		if segJob.Valid {
			seg.SegmentJobID = domain.StringPtr(segJob.String)
		}
		seg.Metadata = unmarshalMap(meta)
		seg.CreatedAt = parseTime(createdAt)
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// SaveAvatar inserts or replaces an avatar profile.
func (s *Store) SaveAvatar(ctx context.Context, avatar *domain.AvatarProfile) error {
	if avatar.ID == "" {
		avatar.ID = uuid.NewString()
	}
	faces, err := json.Marshal(nonNil(avatar.FaceReferencePaths))
	if err != nil {
		return fmt.Errorf("marshal face references: %w", err)
	}
	envs, err := json.Marshal(nonNil(avatar.EnvironmentReferencePaths))
	if err != nil {
		return fmt.Errorf("marshal environment references: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO avatar_profiles
		 (id, name, face_reference_paths, environment_reference_paths, face_strength, environment_strength, physical_description)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		avatar.ID, avatar.Name, string(faces), string(envs), avatar.FaceStrength, avatar.EnvironmentStrength,
		avatar.PhysicalDescription,
	)
	if err != nil {
		return fmt.Errorf("save avatar: %w", err)
	}
	return nil
}

// Avatars exposes the avatar repository view of the store. Store cannot
// implement it directly since GetByID is taken by jobs.
func (s *Store) Avatars() domain.AvatarRepository {
	return avatarRepo{s}
}

type avatarRepo struct{ s *Store }

func (r avatarRepo) GetByID(ctx context.Context, id string) (*domain.AvatarProfile, error) {
	var (
		a            domain.AvatarProfile
		faces, envs  string
		face, envStr sql.NullFloat64
	)
	err := r.s.db.QueryRowContext(ctx,
		`SELECT id, name, face_reference_paths, environment_reference_paths, face_strength, environment_strength, physical_description
		 FROM avatar_profiles WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &faces, &envs, &face, &envStr, &a.PhysicalDescription)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("avatar %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("scan avatar: %w", err)
	}
	_ = json.Unmarshal([]byte(faces), &a.FaceReferencePaths)
	_ = json.Unmarshal([]byte(envs), &a.EnvironmentReferencePaths)
	if face.Valid {
		v := face.Float64
		a.FaceStrength = &v
	}
	if envStr.Valid {
		v := envStr.Float64
		a.EnvironmentStrength = &v
	}
	return &a, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*domain.Job, error) {
	var (
		job                                         domain.Job
		jobType, status, mode, tier                 string
		resultURL, errMsg, parentID, report, critic sql.NullString
		duration                                    sql.NullInt64
		score                                       sql.NullFloat64
		params, meta, createdAt, updatedAt          string
	)
	err := row.Scan(
		&job.ID, &jobType, &job.Prompt, &job.Model, &job.Provider, &status, &mode, &tier,
		&resultURL, &errMsg, &parentID, &job.ReferenceMediaPath, &job.VideoBriefID, &duration,
		&params, &meta, &score, &report, &critic, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	job.Type = domain.JobType(jobType)
	job.Status = domain.JobStatus(status)
	job.Mode = domain.JobMode(mode)
	job.QualityTier = domain.QualityTier(tier)
	if resultURL.Valid {
		job.ResultURL = domain.StringPtr(resultURL.String)
	}
	if errMsg.Valid {
		job.ErrorMessage = domain.StringPtr(errMsg.String)
	}
	if parentID.Valid {
		job.ParentJobID = domain.StringPtr(parentID.String)
	}
	if duration.Valid {
		d := int(duration.Int64)
		job.DurationSeconds = &d
	}
	if score.Valid {
		v := score.Float64
		job.QualityScore = &v
	}
	if report.Valid {
		job.CriticReport = domain.StringPtr(report.String)
	}
	if critic.Valid {
		job.CriticMetadata = unmarshalMap(critic.String)
	}
	if err := json.Unmarshal([]byte(params), &job.Params); err != nil {
		return nil, fmt.Errorf("decode params of job %s: %w", job.ID, err)
	}
	job.Metadata = unmarshalMap(meta)
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updatedAt)
	return &job, nil
}

func marshalMap(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(b), nil
}

func unmarshalMap(s string) map[string]any {
	m := map[string]any{}
	if s == "" {
		return m
	}
	// Leave the map empty on decode errors; do not fail retrieval.
	_ = json.Unmarshal([]byte(s), &m)
	return m
}

// Fixed-width UTC timestamps so lexical order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
