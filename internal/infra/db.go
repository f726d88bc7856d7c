package infra

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"studio/internal/domain"
)

const dbConnectTimeout = 10 * time.Second

// NewDBPool connects to DATABASE_URL and verifies the connection.
func NewDBPool(ctx context.Context, cfg *Config) (*pgxpool.Pool, error) {
	if cfg == nil || cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("%w: DATABASE_URL is required", domain.ErrConfiguration)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse database url: %v", domain.ErrConfiguration, err)
	}
	applyPoolLimits(poolCfg, cfg.DBMaxConns, cfg.SlideshowConcurrency)

	ctx, cancel := context.WithTimeout(ctx, dbConnectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// applyPoolLimits sizes the pool. A slideshow finalizes up to concurrency
// scene jobs at once, so the pool never drops below that plus one for the
// parent.
func applyPoolLimits(poolCfg *pgxpool.Config, maxConns, concurrency int) {
	if maxConns <= 0 {
		maxConns = 16
	}
	if floor := concurrency + 1; maxConns < floor {
		maxConns = floor
	}
	poolCfg.MaxConns = int32(maxConns)
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute
}
