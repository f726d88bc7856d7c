package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"studio/internal/domain"
)

// SaveLibraryAsset inserts or replaces a library clip.
func (s *Store) SaveLibraryAsset(ctx context.Context, asset *domain.LibraryAsset) error {
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO video_assets_library (id, storage_path, location, shot_type, duration_seconds, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		asset.ID, asset.StoragePath, asset.Location, asset.ShotType, asset.DurationSeconds, formatTime(asset.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("save library asset: %w", err)
	}
	return nil
}

// Library exposes the clip library of the store.
func (s *Store) Library() domain.AssetLibraryRepository {
	return libraryRepo{s}
}

type libraryRepo struct{ s *Store }

func (r libraryRepo) Latest(ctx context.Context, q domain.LibraryQuery) (*domain.LibraryAsset, error) {
	var (
		a         domain.LibraryAsset
		duration  sql.NullInt64
		createdAt string
	)
	err := r.s.db.QueryRowContext(ctx,
		`SELECT id, storage_path, location, shot_type, duration_seconds, created_at
		 FROM video_assets_library
		 WHERE (? = '' OR location = ?) AND (? = '' OR shot_type = ?)
		 ORDER BY created_at DESC LIMIT 1`,
		q.Location, q.Location, q.ShotType, q.ShotType,
	).Scan(&a.ID, &a.StoragePath, &a.Location, &a.ShotType, &duration, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("library asset: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("select library asset: %w", err)
	}
	if duration.Valid {
		d := int(duration.Int64)
		a.DurationSeconds = &d
	}
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

// SaveVoiceProfile inserts or replaces a voice profile and its samples.
func (s *Store) SaveVoiceProfile(ctx context.Context, profile *domain.VoiceProfile) error {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin voice profile: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO voice_profiles (id, name, reference_media_path) VALUES (?, ?, ?)`,
		profile.ID, profile.Name, profile.ReferenceMediaPath,
	); err != nil {
		return fmt.Errorf("save voice profile: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM voice_profile_samples WHERE voice_profile_id = ?`, profile.ID); err != nil {
		return fmt.Errorf("reset voice samples: %w", err)
	}
	now := s.now().UTC()
	for i, path := range profile.SamplePaths {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO voice_profile_samples (id, voice_profile_id, position, reference_media_path, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			uuid.NewString(), profile.ID, i, path, formatTime(now),
		); err != nil {
			return fmt.Errorf("save voice sample: %w", err)
		}
	}
	return tx.Commit()
}

// Voices exposes the voice profiles of the store.
func (s *Store) Voices() domain.VoiceProfileRepository {
	return voiceRepo{s}
}

type voiceRepo struct{ s *Store }

func (r voiceRepo) GetByID(ctx context.Context, id string) (*domain.VoiceProfile, error) {
	var v domain.VoiceProfile
	err := r.s.db.QueryRowContext(ctx,
		`SELECT id, name, reference_media_path FROM voice_profiles WHERE id = ?`, id,
	).Scan(&v.ID, &v.Name, &v.ReferenceMediaPath)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("voice profile %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("scan voice profile: %w", err)
	}

	rows, err := r.s.db.QueryContext(ctx,
		`SELECT reference_media_path FROM voice_profile_samples
		 WHERE voice_profile_id = ? ORDER BY position ASC`, id)
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
