package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/internal/domain"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "studio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newJob(t *testing.T, s *Store, jobType domain.JobType) *domain.Job {
	t.Helper()
	d := 12
	job := &domain.Job{
		Type:     jobType,
		Prompt:   "lighthouse at dusk",
		Model:    "model-a",
		Provider: "synthetic",
		Mode:     domain.ModeText2Video,
		Params: domain.GenerationParams{
			ShotDescriptions: []string{"wide", "close"},
			DurationSeconds:  &d,
		},
		DurationSeconds: &d,
	}
	job.PrepareNew(time.Now())
	require.NoError(t, s.Create(context.Background(), job))
	return job
}

func TestCreateAndGet(t *testing.T) {
	s := newStore(t)
	job := newJob(t, s, domain.JobTypeVideo)

	got, err := s.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, got.Status)
	assert.Equal(t, domain.JobTypeVideo, got.Type)
	assert.Equal(t, []string{"wide", "close"}, got.Params.ShotDescriptions)
	require.NotNil(t, got.DurationSeconds)
	assert.Equal(t, 12, *got.DurationSeconds)
	assert.Nil(t, got.ResultURL)
	assert.NotNil(t, got.Metadata)
}

func TestGetMissing(t *testing.T) {
	s := newStore(t)
	_, err := s.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateLifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	job := newJob(t, s, domain.JobTypeVideo)

	require.NoError(t, s.Update(ctx, job.ID, domain.JobUpdate{Metadata: map[string]any{"step": "render"}}))
	require.NoError(t, s.Update(ctx, job.ID, domain.Complete("http://cdn/x.mp4", map[string]any{"storage_key": "outputs/video/x.mp4"})))
	// duplicate finalize is a no-op
	require.NoError(t, s.Update(ctx, job.ID, domain.Complete("http://cdn/x.mp4", nil)))

	err := s.Update(ctx, job.ID, domain.Fail("boom", nil))
	assert.ErrorIs(t, err, domain.ErrConflict)

	got, err := s.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Equal(t, "http://cdn/x.mp4", domain.Deref(got.ResultURL))
	assert.Nil(t, got.ErrorMessage)
	assert.Equal(t, "render", got.Metadata["step"])
	assert.Equal(t, "outputs/video/x.mp4", got.Metadata["storage_key"])
}

func TestUpdateCritic(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	job := newJob(t, s, domain.JobTypeVideo)

	score := 0.85
	report := "Critic score: 85 / 100."
	critic := domain.JobUpdate{QualityScore: &score, CriticReport: &report, CriticMetadata: map[string]any{"method": "metadata_heuristic"}}
	assert.ErrorIs(t, s.Update(ctx, job.ID, critic), domain.ErrCriticNotApplicable)

	require.NoError(t, s.Update(ctx, job.ID, domain.Complete("http://cdn/x.mp4", nil)))
	require.NoError(t, s.Update(ctx, job.ID, critic))

	got, err := s.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, got.QualityScore)
	assert.InDelta(t, 0.85, *got.QualityScore, 1e-9)
	assert.Equal(t, report, domain.Deref(got.CriticReport))
	assert.Equal(t, "metadata_heuristic", got.CriticMetadata["method"])
}

func TestConcurrentFinalizersOneWins(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	job := newJob(t, s, domain.JobTypeImage)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	updates := []domain.JobUpdate{domain.Complete("http://cdn/a.png", nil), domain.Fail("provider down", nil)}
	for i := range updates {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.Update(ctx, job.ID, updates[i])
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, domain.ErrConflict)
		}
	}
	assert.Equal(t, 1, succeeded)

	got, err := s.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, got.Status.Terminal())
	assert.True(t, (got.ResultURL == nil) != (got.ErrorMessage == nil))
}

func TestListStale(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	old := newJob(t, s, domain.JobTypeImage)
	done := newJob(t, s, domain.JobTypeImage)
	require.NoError(t, s.Update(ctx, done.ID, domain.Complete("http://cdn/a.png", nil)))

	stale, err := s.ListStale(ctx, time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old.ID, stale[0].ID)

	stale, err = s.ListStale(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestSegments(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	job := newJob(t, s, domain.JobTypeVideo)

	for _, idx := range []int{1, 0} {
		require.NoError(t, s.Append(ctx, &domain.Segment{
			JobID:           job.ID,
			Index:           idx,
			Type:            domain.SegmentAI,
			DurationSeconds: 6,
			Metadata:        map[string]any{"scene_description": "shot"},
		}))
	}
	err := s.Append(ctx, &domain.Segment{JobID: job.ID, Index: 0, Type: domain.SegmentAI, DurationSeconds: 6})
	assert.ErrorIs(t, err, domain.ErrConflict)

	segments, err := s.ListByJob(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, segments, 2)
	assert.Equal(t, 0, segments[0].Index)
	assert.Equal(t, 1, segments[1].Index)
	assert.Equal(t, "shot", segments[0].Metadata["scene_description"])

	empty, err := s.ListByJob(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAvatars(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	strength := 0.7
	require.NoError(t, s.SaveAvatar(ctx, &domain.AvatarProfile{
		ID:                 "ava",
		Name:               "Ava",
		FaceReferencePaths: []string{"refs/ava.png"},
		FaceStrength:       &strength,
	}))

	got, err := s.Avatars().GetByID(ctx, "ava")
	require.NoError(t, err)
	assert.Equal(t, []string{"refs/ava.png"}, got.FaceReferencePaths)
	assert.Empty(t, got.EnvironmentReferencePaths)
	require.NotNil(t, got.FaceStrength)
	assert.InDelta(t, 0.7, *got.FaceStrength, 1e-9)
	assert.Nil(t, got.EnvironmentStrength)

	_, err = s.Avatars().GetByID(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateForcesProcessing(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	job := &domain.Job{
		ID:           "caller-built",
		Type:         domain.JobTypeImage,
		Prompt:       "vase",
		Model:        "model-a",
		Provider:     "synthetic",
		Status:       domain.JobStatusCompleted,
		ResultURL:    domain.StringPtr("http://cdn/forged.png"),
		ErrorMessage: domain.StringPtr("left over"),
		CreatedAt:    time.Now().Add(-time.Minute),
	}
	require.NoError(t, s.Create(ctx, job))

	got, err := s.GetByID(ctx, "caller-built")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, got.Status)
	assert.Nil(t, got.ResultURL)
	assert.Nil(t, got.ErrorMessage)
}

func TestAppendAllIsAtomic(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	job := newJob(t, s, domain.JobTypeVideo)

	batch := []*domain.Segment{
		{JobID: job.ID, Index: 0, Type: domain.SegmentAI, DurationSeconds: 4},
		{JobID: job.ID, Index: 1, Type: domain.SegmentAI, DurationSeconds: 4},
		{JobID: job.ID, Index: 1, Type: domain.SegmentAI, DurationSeconds: 4},
	}
	assert.ErrorIs(t, s.AppendAll(ctx, batch), domain.ErrConflict)

	segments, err := s.ListByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, segments)

	require.NoError(t, s.AppendAll(ctx, batch[:2]))
	segments, err = s.ListByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, segments, 2)
}

func TestLibraryLatest(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	d := 5
	require.NoError(t, s.SaveLibraryAsset(ctx, &domain.LibraryAsset{ID: "old-port", StoragePath: "library/port-old.mp4", Location: "port", ShotType: "wide", CreatedAt: base}))
	require.NoError(t, s.SaveLibraryAsset(ctx, &domain.LibraryAsset{ID: "new-port", StoragePath: "library/port-new.mp4", Location: "port", ShotType: "close", DurationSeconds: &d, CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, s.SaveLibraryAsset(ctx, &domain.LibraryAsset{ID: "market", StoragePath: "library/market.mp4", Location: "market", ShotType: "wide", CreatedAt: base.Add(2 * time.Minute)}))

	cases := []struct {
		q    domain.LibraryQuery
		want string
	}{
		{domain.LibraryQuery{}, "market"},
		{domain.LibraryQuery{Location: "port"}, "new-port"},
		{domain.LibraryQuery{Location: "port", ShotType: "wide"}, "old-port"},
		{domain.LibraryQuery{ShotType: "close"}, "new-port"},
	}
	for _, tc := range cases {
		got, err := s.Library().Latest(ctx, tc.q)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got.ID, "%+v", tc.q)
	}

	got, err := s.Library().Latest(ctx, domain.LibraryQuery{Location: "port", ShotType: "close"})
	require.NoError(t, err)
	require.NotNil(t, got.DurationSeconds)
	assert.Equal(t, 5, *got.DurationSeconds)

	_, err = s.Library().Latest(ctx, domain.LibraryQuery{Location: "desert"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVoiceProfiles(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveVoiceProfile(ctx, &domain.VoiceProfile{
		ID:                 "narrator",
		Name:               "Narrator",
		ReferenceMediaPath: "voices/main.mp3",
		SamplePaths:        []string{"voices/b.mp3", "voices/a.mp3"},
	}))

	got, err := s.Voices().GetByID(ctx, "narrator")
	require.NoError(t, err)
	assert.Equal(t, "voices/main.mp3", got.ReferenceMediaPath)
	assert.Equal(t, []string{"voices/b.mp3", "voices/a.mp3"}, got.SamplePaths)

	_, err = s.Voices().GetByID(ctx, "nobody")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
