package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/sqlinline"
)

const uniqueViolation = "23505"

// SegmentRepositoryPG implements domain.SegmentRepository.
type SegmentRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewSegmentRepository creates a segment repository backed by PostgreSQL.
func NewSegmentRepository(sql infra.SQLExecutor) *SegmentRepositoryPG {
	return &SegmentRepositoryPG{sql: sql}
}

// Append inserts a segment. A duplicate index for the same job is a conflict.
func (r *SegmentRepositoryPG) Append(ctx context.Context, segment *domain.Segment) error {
	return r.AppendAll(ctx, []*domain.Segment{segment})
}

// AppendAll inserts segments in one transaction when the executor supports
// it. A failure rolls back every row of the batch.
func (r *SegmentRepositoryPG) AppendAll(ctx context.Context, segments []*domain.Segment) error {
	for _, seg := range segments {
		if seg == nil {
			return errors.New("segment is nil")
		}
	}
	insertAll := func(exec infra.SQLExecutor) error {
		for _, seg := range segments {
			if err := insertSegment(ctx, exec, seg); err != nil {
				return err
			}
		}
		return nil
	}
	if tx, ok := r.sql.(infra.TxRunner); ok {
		return tx.InTx(ctx, insertAll)
	}
	return insertAll(r.sql)
}

func insertSegment(ctx context.Context, exec infra.SQLExecutor, segment *domain.Segment) error {
	if segment.ID == "" {
		segment.ID = uuid.NewString()
	}
	if segment.CreatedAt.IsZero() {
		segment.CreatedAt = time.Now().UTC()
	}
	meta, err := marshalJSON(segment.Metadata)
	if err != nil {
		return err
	}
	_, err = exec.Exec(ctx, sqlinline.QInsertJobSegment,
		segment.ID,
		segment.JobID,
		segment.Index,
		string(segment.Type),
		segment.DurationSeconds,
		domain.Deref(segment.SegmentJobID),
		meta,
		segment.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: segment %d of job %s already exists", domain.ErrConflict, segment.Index, segment.JobID)
		}
		return fmt.Errorf("insert segment: %w", err)
	}
	return nil
}

// ListByJob returns the segments of a job ordered by index.
func (r *SegmentRepositoryPG) ListByJob(ctx context.Context, jobID string) ([]domain.Segment, error) {
	if !validID(jobID) {
		return []domain.Segment{}, nil
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListJobSegments, jobID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	segments := []domain.Segment{}
	for rows.Next() {
		var (
			seg     domain.Segment
			segType string
			meta    []byte
		)
		if err := rows.Scan(&seg.ID, &seg.JobID, &seg.Index, &segType, &seg.DurationSeconds, &seg.SegmentJobID, &meta, &seg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		seg.Type = domain.SegmentType(segType)
		seg.Metadata = unmarshalJSON(meta)
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}
