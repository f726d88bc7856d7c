package repo

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/sqlinline"
)

const jobID = "6f1c1c59-2d47-4a4c-9a59-0d8c8f1f2a11"

type execCall struct {
	query string
	args  []any
}

// stubExecutor serves queued rows and command tags in order. err is
// returned by every Exec, or only by the errAt-th one when errAt is set.
type stubExecutor struct {
	rows      [][]any
	queryRows [][]any
	tags      []string
	err       error
	errAt     int
	execs     []execCall
	reads     int
}

func (s *stubExecutor) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.execs = append(s.execs, execCall{query: query, args: args})
	if s.err != nil && (s.errAt == 0 || len(s.execs) == s.errAt) {
		return pgconn.CommandTag{}, s.err
	}
	tag := "INSERT 0 1"
	if len(s.tags) > 0 {
		tag, s.tags = s.tags[0], s.tags[1:]
	}
	return pgconn.NewCommandTag(tag), nil
}

func (s *stubExecutor) QueryRow(_ context.Context, _ string, _ ...any) pgx.Row {
	s.reads++
	if len(s.rows) == 0 {
		return stubRow{err: pgx.ErrNoRows}
	}
	row := s.rows[0]
	s.rows = s.rows[1:]
	return stubRow{values: row}
}

func (s *stubExecutor) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return &stubRows{rows: s.queryRows}, nil
}

// txExecutor runs InTx bodies against the embedded stub and counts outcomes.
type txExecutor struct {
	*stubExecutor
	commits, rollbacks int
}

func (t *txExecutor) InTx(_ context.Context, fn func(infra.SQLExecutor) error) error {
	if err := fn(t.stubExecutor); err != nil {
		t.rollbacks++
		return err
	}
	t.commits++
	return nil
}

type stubRows struct {
	rows [][]any
	cur  []any
}

func (r *stubRows) Close()                                       {}
func (r *stubRows) Err() error                                   { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Values() ([]any, error)                       { return r.cur, nil }
func (r *stubRows) RawValues() [][]byte                          { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }

func (r *stubRows) Next() bool {
	if len(r.rows) == 0 {
		return false
	}
	r.cur, r.rows = r.rows[0], r.rows[1:]
	return true
}

func (r *stubRows) Scan(dest ...any) error {
	return stubRow{values: r.cur}.Scan(dest...)
}

type stubRow struct {
	values []any
	err    error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if r.values[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(r.values[i]))
	}
	return nil
}

func jobRow(status domain.JobStatus, resultURL *string) []any {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := 10
	return []any{
		jobID, "video", "harbor", "video-default", "openrouter", string(status), "text2video", "",
		resultURL, (*string)(nil), (*string)(nil), "", "",
		&d, []byte(`{"shotDescriptions":["a","b"]}`), []byte(`{"attempts":[]}`), (*float64)(nil), (*string)(nil),
		[]byte(nil), now, now,
	}
}

func TestJobGetByID(t *testing.T) {
	exec := &stubExecutor{rows: [][]any{jobRow(domain.JobStatusProcessing, nil)}}
	repo := NewJobRepository(exec)

	job, err := repo.GetByID(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, job.Status)
	assert.Equal(t, []string{"a", "b"}, job.Params.ShotDescriptions)
	assert.Equal(t, 10, *job.DurationSeconds)
	assert.NotNil(t, job.Metadata["attempts"])
	assert.Nil(t, job.CriticMetadata)
}

func TestJobGetByIDNotFound(t *testing.T) {
	exec := &stubExecutor{}
	repo := NewJobRepository(exec)

	_, err := repo.GetByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, exec.reads)

	_, err = repo.GetByID(context.Background(), jobID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 1, exec.reads)
}

func TestJobCreateUsesMarkedQuery(t *testing.T) {
	exec := &stubExecutor{}
	repo := NewJobRepository(exec)

	job := &domain.Job{Type: domain.JobTypeImage, Prompt: "vase", Model: "m", Provider: "synthetic"}
	require.NoError(t, repo.Create(context.Background(), job))
	require.Len(t, exec.execs, 1)
	assert.Equal(t, sqlinline.QInsertGenerationJob, exec.execs[0].query)
	assert.True(t, strings.HasPrefix(exec.execs[0].query, "--sql "))
	assert.Len(t, exec.execs[0].args, 16)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, domain.JobStatusProcessing, job.Status)
}

func TestJobUpdateCompareAndSet(t *testing.T) {
	exec := &stubExecutor{
		rows: [][]any{jobRow(domain.JobStatusProcessing, nil)},
		tags: []string{"UPDATE 1"},
	}
	repo := NewJobRepository(exec)

	require.NoError(t, repo.Update(context.Background(), jobID, domain.Complete("http://cdn/v.mp4", map[string]any{"k": "v"})))
	require.Len(t, exec.execs, 1)
	args := exec.execs[0].args
	assert.Equal(t, "completed", args[1])
	assert.Equal(t, "processing", args[9])
	assert.Equal(t, "http://cdn/v.mp4", domain.Deref(args[3].(*string)))
	assert.JSONEq(t, `{"attempts":[],"k":"v"}`, string(args[5].([]byte)))
}

func TestJobUpdateLostRaceIdenticalIsNoop(t *testing.T) {
	url := "http://cdn/v.mp4"
	exec := &stubExecutor{
		rows: [][]any{jobRow(domain.JobStatusProcessing, nil), jobRow(domain.JobStatusCompleted, &url)},
		tags: []string{"UPDATE 0"},
	}
	repo := NewJobRepository(exec)

	require.NoError(t, repo.Update(context.Background(), jobID, domain.Complete(url, nil)))
	assert.Len(t, exec.execs, 1)
	assert.Equal(t, 2, exec.reads)
}

func TestJobUpdateLostRaceDifferentIsConflict(t *testing.T) {
	url := "http://cdn/v.mp4"
	exec := &stubExecutor{
		rows: [][]any{jobRow(domain.JobStatusProcessing, nil), jobRow(domain.JobStatusCompleted, &url)},
		tags: []string{"UPDATE 0"},
	}
	repo := NewJobRepository(exec)

	err := repo.Update(context.Background(), jobID, domain.Fail("timeout", nil))
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestSegmentAppendDuplicate(t *testing.T) {
	exec := &stubExecutor{err: &pgconn.PgError{Code: uniqueViolation}}
	repo := NewSegmentRepository(exec)

	err := repo.Append(context.Background(), &domain.Segment{JobID: jobID, Index: 0, Type: domain.SegmentAI, DurationSeconds: 3})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestSegmentAppend(t *testing.T) {
	exec := &stubExecutor{}
	repo := NewSegmentRepository(exec)

	child := "0b8f1f2a-7c1c-4a4c-9a59-6f1c1c592d47"
	seg := &domain.Segment{JobID: jobID, Index: 2, Type: domain.SegmentAI, DurationSeconds: 4, SegmentJobID: &child}
	require.NoError(t, repo.Append(context.Background(), seg))
	assert.NotEmpty(t, seg.ID)
	args := exec.execs[0].args
	assert.Equal(t, 2, args[2])
	assert.Equal(t, child, args[5])
	assert.Equal(t, []byte("{}"), args[6])
}

func TestAvatarNotFound(t *testing.T) {
	repo := NewAvatarRepository(&stubExecutor{})
	_, err := repo.GetByID(context.Background(), jobID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestJobCreateForcesProcessing(t *testing.T) {
	exec := &stubExecutor{}
	repo := NewJobRepository(exec)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job := &domain.Job{
		ID:           jobID,
		Type:         domain.JobTypeImage,
		Prompt:       "vase",
		Status:       domain.JobStatusFailed,
		ErrorMessage: domain.StringPtr("left over"),
		CreatedAt:    created,
	}
	require.NoError(t, repo.Create(context.Background(), job))
	args := exec.execs[0].args
	assert.Equal(t, "processing", args[5])
	assert.Equal(t, created, args[14])
	assert.Nil(t, job.ErrorMessage)
}

func TestSegmentAppendAllRollsBack(t *testing.T) {
	exec := &txExecutor{stubExecutor: &stubExecutor{err: errors.New("db hiccup"), errAt: 3}}
	repo := NewSegmentRepository(exec)

	batch := make([]*domain.Segment, 3)
	for i := range batch {
		batch[i] = &domain.Segment{JobID: jobID, Index: i, Type: domain.SegmentAI, DurationSeconds: 3}
	}
	err := repo.AppendAll(context.Background(), batch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db hiccup")
	assert.Equal(t, 1, exec.rollbacks)
	assert.Zero(t, exec.commits)

	exec.stubExecutor.err = nil
	require.NoError(t, repo.AppendAll(context.Background(), batch))
	assert.Equal(t, 1, exec.commits)
}

func TestLibraryLatest(t *testing.T) {
	d := 6
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	exec := &stubExecutor{rows: [][]any{{"7a1c1c59-2d47-4a4c-9a59-0d8c8f1f2a11", "library/port.mp4", "port", "wide", &d, created}}}
	repo := NewLibraryRepository(exec)

	asset, err := repo.Latest(context.Background(), domain.LibraryQuery{Location: "port"})
	require.NoError(t, err)
	assert.Equal(t, "library/port.mp4", asset.StoragePath)
	assert.Equal(t, 6, *asset.DurationSeconds)

	_, err = repo.Latest(context.Background(), domain.LibraryQuery{Location: "desert"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVoiceProfileWithSamples(t *testing.T) {
	exec := &stubExecutor{
		rows:      [][]any{{jobID, "Narrator", "voices/main.mp3"}},
		queryRows: [][]any{{"voices/a.mp3"}, {"voices/b.mp3"}},
	}
	repo := NewVoiceProfileRepository(exec)

	v, err := repo.GetByID(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, "voices/main.mp3", v.ReferenceMediaPath)
	assert.Equal(t, []string{"voices/a.mp3", "voices/b.mp3"}, v.SamplePaths)

	_, err = repo.GetByID(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
