// Package settings reads operator overrides stored in the app_settings table.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"studio/internal/infra"
	"studio/internal/sqlinline"
)

const (
	KeyDefaultImageModel = "default_image_model"
	KeyDefaultAudioModel = "default_audio_model"
	KeyDefaultVideoModel = "default_video_model"
	KeyBrandLogoPath     = "brand_logo_path"
	KeyBrandLogoPosition = "brand_logo_position"
	KeyBrandLogoOpacity  = "brand_logo_opacity"
)

// Keys lists every setting the store understands.
var Keys = []string{
	KeyDefaultImageModel,
	KeyDefaultAudioModel,
	KeyDefaultVideoModel,
	KeyBrandLogoPath,
	KeyBrandLogoPosition,
	KeyBrandLogoOpacity,
}

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Load returns the non-empty stored values for the known keys.
func (s *Store) Load(ctx context.Context) (map[string]string, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QSelectAppSettings, Keys)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	defer rows.Close()

	values := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		if value = strings.TrimSpace(value); value != "" {
			values[key] = value
		}
	}
	return values, rows.Err()
}

// Apply overrides cfg with the stored values. Database settings win over
// environment and file configuration.
func (s *Store) Apply(ctx context.Context, cfg *infra.Config) error {
	values, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if v, ok := values[KeyDefaultImageModel]; ok {
		cfg.Models.Image = v
	}
	if v, ok := values[KeyDefaultAudioModel]; ok {
		cfg.Models.Audio = v
	}
	if v, ok := values[KeyDefaultVideoModel]; ok {
		cfg.Models.Video = v
	}
	if v, ok := values[KeyBrandLogoPath]; ok {
		cfg.Brand.LogoPath = v
	}
	if v, ok := values[KeyBrandLogoPosition]; ok {
		cfg.Brand.Position = v
	}
	if v, ok := values[KeyBrandLogoOpacity]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Brand.Opacity = f
		}
	}
	return nil
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("setting key is required")
	}
	_, err := s.sql.Exec(ctx, sqlinline.QUpsertAppSetting, key, strings.TrimSpace(value))
	return err
}
