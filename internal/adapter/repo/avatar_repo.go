package repo

import (
	"context"
	"fmt"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/sqlinline"
)

// AvatarRepositoryPG implements domain.AvatarRepository.
type AvatarRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewAvatarRepository creates an avatar repository backed by PostgreSQL.
func NewAvatarRepository(sql infra.SQLExecutor) *AvatarRepositoryPG {
	return &AvatarRepositoryPG{sql: sql}
}

// GetByID loads an avatar profile.
func (r *AvatarRepositoryPG) GetByID(ctx context.Context, id string) (*domain.AvatarProfile, error) {
	if !validID(id) {
		return nil, fmt.Errorf("avatar %s: %w", id, domain.ErrNotFound)
	}
	var a domain.AvatarProfile
	err := r.sql.QueryRow(ctx, sqlinline.QSelectAvatarProfile, id).Scan(
		&a.ID,
		&a.Name,
		&a.FaceReferencePaths,
		&a.EnvironmentReferencePaths,
		&a.FaceStrength,
		&a.EnvironmentStrength,
		&a.PhysicalDescription,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, fmt.Errorf("avatar %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("scan avatar: %w", err)
	}
	return &a, nil
}
