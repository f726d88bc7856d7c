package repo

import (
	"context"
	"fmt"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/sqlinline"
)

// LibraryRepositoryPG implements domain.AssetLibraryRepository.
type LibraryRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewLibraryRepository(sql infra.SQLExecutor) *LibraryRepositoryPG {
	return &LibraryRepositoryPG{sql: sql}
}

// Latest returns the newest clip matching q.
func (r *LibraryRepositoryPG) Latest(ctx context.Context, q domain.LibraryQuery) (*domain.LibraryAsset, error) {
	var a domain.LibraryAsset
	err := r.sql.QueryRow(ctx, sqlinline.QSelectLatestLibraryAsset, q.Location, q.ShotType).Scan(
		&a.ID,
		&a.StoragePath,
		&a.Location,
		&a.ShotType,
		&a.DurationSeconds,
		&a.CreatedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, fmt.Errorf("library asset: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("scan library asset: %w", err)
	}
	return &a, nil
}

// VoiceProfileRepositoryPG implements domain.VoiceProfileRepository.
type VoiceProfileRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewVoiceProfileRepository(sql infra.SQLExecutor) *VoiceProfileRepositoryPG {
	return &VoiceProfileRepositoryPG{sql: sql}
}

// GetByID loads a profile and its samples in stored order.
func (r *VoiceProfileRepositoryPG) GetByID(ctx context.Context, id string) (*domain.VoiceProfile, error) {
	if !validID(id) {
		return nil, fmt.Errorf("voice profile %s: %w", id, domain.ErrNotFound)
	}
	var v domain.VoiceProfile
	err := r.sql.QueryRow(ctx, sqlinline.QSelectVoiceProfile, id).Scan(&v.ID, &v.Name, &v.ReferenceMediaPath)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, fmt.Errorf("voice profile %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("scan voice profile: %w", err)
	}

	rows, err := r.sql.Query(ctx, sqlinline.QListVoiceProfileSamples, id)
	if err != nil {
		return nil, fmt.Errorf("list voice samples: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, fmt.Errorf("scan voice sample: %w", err)
		}
		v.SamplePaths = append(v.SamplePaths, path)
	}
	return &v, rows.Err()
}
