// Package app wires the configured store, provider, storage and critic into
// an orchestrator. The API server, the sweeper and the CLI share it.
package app

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/rs/zerolog"

	"studio/internal/adapter/repo"
	"studio/internal/adapter/sqlite"
	"studio/internal/branding"
	"studio/internal/critic"
	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/infra/settings"
	"studio/internal/orchestrator"
	"studio/internal/providers"
	"studio/internal/providers/openrouter"
	"studio/internal/providers/synthetic"
	"studio/internal/storage"
)

type Container struct {
	Config       *infra.Config
	Jobs         domain.JobRepository
	Segments     domain.SegmentRepository
	Avatars      domain.AvatarRepository
	Library      domain.AssetLibraryRepository
	Voices       domain.VoiceProfileRepository
	Provider     providers.Provider
	Assets       *storage.FileStore
	Critic       *critic.Service
	Orchestrator *orchestrator.Orchestrator
	// Settings is nil unless the postgres driver is configured.
	Settings *settings.Store
	// Ping checks the database connection.
	Ping func(context.Context) error

	closers []func()
}

// Build opens the configured database and constructs the orchestrator. In
// postgres mode the app_settings table is applied on top of cfg before the
// default models are validated.
func Build(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*Container, error) {
	c := &Container{Config: cfg}

	switch cfg.DatabaseDriver {
	case infra.DriverPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, pool.Close)
		c.Ping = pool.Ping
		if err := repo.EnsureSchema(ctx, pool); err != nil {
			c.Close()
			return nil, err
		}
		runner := infra.NewSQLRunner(pool, logger)
		c.Settings = settings.NewStore(runner)
		if err := c.Settings.Apply(ctx, cfg); err != nil {
			logger.Warn().Err(err).Msg("app: stored settings not applied")
		}
		c.Jobs = repo.NewJobRepository(runner)
		c.Segments = repo.NewSegmentRepository(runner)
		c.Avatars = repo.NewAvatarRepository(runner)
		c.Library = repo.NewLibraryRepository(runner)
		c.Voices = repo.NewVoiceProfileRepository(runner)
	default:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() { _ = store.Close() })
		c.Ping = store.Ping
		c.Jobs = store
		c.Segments = store
		c.Avatars = store.Avatars()
		c.Library = store.Library()
		c.Voices = store.Voices()
	}

	if err := cfg.ValidateModels(); err != nil {
		c.Close()
		return nil, err
	}

	provider, err := newProvider(cfg, &logger)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Provider = provider

	storagePath := cfg.StoragePath
	if abs, err := filepath.Abs(storagePath); err == nil {
		storagePath = abs
	}
	assets, err := storage.NewFileStore(storagePath, cfg.StoragePublicBaseURL)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Assets = assets
	c.Critic = critic.NewService(c.Jobs, &logger)

	orch, err := orchestrator.New(orchestrator.Deps{
		Jobs:     c.Jobs,
		Segments: c.Segments,
		Avatars:  c.Avatars,
		Library:  c.Library,
		Voices:   c.Voices,
		Provider: provider,
		Assets:   assets,
		Fetcher:  storage.NewHTTPFetcher(&http.Client{Timeout: cfg.StorageTimeout}),
		Critic:   c.Critic,
		Logger:   &logger,
	}, Settings(cfg))
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Orchestrator = orch

	logger.Info().
		Str("driver", cfg.DatabaseDriver).
		Str("provider", provider.Name()).
		Str("storage", storagePath).
		Msg("app: container ready")
	return c, nil
}

// Settings maps the loaded configuration onto orchestrator settings.
func Settings(cfg *infra.Config) orchestrator.Settings {
	return orchestrator.Settings{
		DefaultImageModel:    cfg.Models.Image,
		DefaultAudioModel:    cfg.Models.Audio,
		DefaultVideoModel:    cfg.Models.Video,
		SlideshowConcurrency: cfg.SlideshowConcurrency,
		ProviderTimeout:      cfg.ProviderTimeout,
		StorageTimeout:       cfg.StorageTimeout,
		AutoCritic:           cfg.AutoCritic,
		Brand: orchestrator.BrandSettings{
			LogoPath: cfg.Brand.LogoPath,
			Position: branding.ParsePosition(cfg.Brand.Position),
			Size:     cfg.Brand.Size,
			Margin:   cfg.Brand.Margin,
			Opacity:  cfg.Brand.Opacity,
		},
	}
}

func newProvider(cfg *infra.Config, logger *zerolog.Logger) (providers.Provider, error) {
	switch cfg.Provider {
	case infra.ProviderOpenRouter:
		client, err := openrouter.NewClient(openrouter.Options{
			APIKey:     cfg.OpenRouterAPIKey,
			BaseURL:    cfg.OpenRouterBaseURL,
			Referer:    cfg.OpenRouterReferer,
			Title:      cfg.OpenRouterTitle,
			HTTPClient: &http.Client{Timeout: cfg.ProviderTimeout},
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
		}
		return client, nil
	case infra.ProviderSynthetic, "":
		return synthetic.New(logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", domain.ErrConfiguration, cfg.Provider)
	}
}

// Close releases the database handles in reverse order.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
