package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for generation jobs. It is the single
// source of truth for job status.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	Update(ctx context.Context, jobID string, update JobUpdate) error
	ListStale(ctx context.Context, before time.Time, limit int) ([]Job, error)
}

// SegmentRepository stores the append-only scene list of a job. AppendAll
// writes every segment or none of them.
type SegmentRepository interface {
	Append(ctx context.Context, segment *Segment) error
	AppendAll(ctx context.Context, segments []*Segment) error
	ListByJob(ctx context.Context, jobID string) ([]Segment, error)
}

// AvatarRepository resolves avatar profiles referenced by requests.
type AvatarRepository interface {
	GetByID(ctx context.Context, id string) (*AvatarProfile, error)
}

// AssetLibraryRepository selects pre-recorded clips. Latest returns the most
// recent match or ErrNotFound.
type AssetLibraryRepository interface {
	Latest(ctx context.Context, q LibraryQuery) (*LibraryAsset, error)
}

// VoiceProfileRepository loads voice profiles with their samples.
type VoiceProfileRepository interface {
	GetByID(ctx context.Context, id string) (*VoiceProfile, error)
}
