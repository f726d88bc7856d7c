package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"studio/internal/domain"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	ProviderOpenRouter = "openrouter"
	ProviderSynthetic  = "synthetic"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv               string
	LogLevel             string
	Port                 string
	DatabaseDriver       string
	DatabaseURL          string
	DBMaxConns           int
	SQLitePath           string
	StoragePath          string
	StoragePublicBaseURL string
	Provider             string
	OpenRouterAPIKey     string
	OpenRouterBaseURL    string
	OpenRouterReferer    string
	OpenRouterTitle      string
	Models               ModelDefaults
	ProviderTimeout      time.Duration
	StorageTimeout       time.Duration
	SlideshowConcurrency int
	AutoCritic           bool
	StaleJobAge          time.Duration
	SweepInterval        time.Duration
	Brand                BrandConfig
	OrchestrationConfig  string
	HTTPReadTimeout      time.Duration
	HTTPWriteTimeout     time.Duration
	HTTPIdleTimeout      time.Duration
	RateLimitPerMin      int
	CORSAllowedOrigins   []string
}

// ModelDefaults are the per-type fallback models.
type ModelDefaults struct {
	Image string `yaml:"image"`
	Audio string `yaml:"audio"`
	Video string `yaml:"video"`
}

// BrandConfig locates and places the brand logo.
type BrandConfig struct {
	LogoPath string  `yaml:"logo_path"`
	Position string  `yaml:"position"`
	Size     float64 `yaml:"size"`
	Margin   int     `yaml:"margin"`
	Opacity  float64 `yaml:"opacity"`
}

// orchestrationFile is the YAML overlay read from ORCHESTRATION_CONFIG.
type orchestrationFile struct {
	Models               ModelDefaults `yaml:"models"`
	Brand                BrandConfig   `yaml:"brand"`
	SlideshowConcurrency int           `yaml:"slideshow_concurrency"`
	AutoCritic           *bool         `yaml:"auto_critic"`
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:               getEnv("APP_ENV", "development"),
		LogLevel:             os.Getenv("LOG_LEVEL"),
		Port:                 port,
		DatabaseDriver:       strings.ToLower(getEnv("DATABASE_DRIVER", DriverSQLite)),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		DBMaxConns:           getEnvInt("DB_MAX_CONNS", 16),
		SQLitePath:           getEnv("SQLITE_PATH", "studio.db"),
		StoragePath:          getEnv("STORAGE_PATH", "data/assets"),
		StoragePublicBaseURL: getEnv("STORAGE_PUBLIC_BASE_URL", "http://localhost:"+port+"/static"),
		Provider:             strings.ToLower(getEnv("PROVIDER", ProviderSynthetic)),
		OpenRouterAPIKey:     os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterBaseURL:    getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1/"),
		OpenRouterReferer:    os.Getenv("OPENROUTER_REFERER"),
		OpenRouterTitle:      getEnv("OPENROUTER_TITLE", "studio"),
		Models: ModelDefaults{
			Image: os.Getenv("DEFAULT_IMAGE_MODEL"),
			Audio: os.Getenv("DEFAULT_AUDIO_MODEL"),
			Video: os.Getenv("DEFAULT_VIDEO_MODEL"),
		},
		ProviderTimeout:      getEnvDuration("PROVIDER_TIMEOUT_SECONDS", 300*time.Second, time.Second),
		StorageTimeout:       getEnvDuration("STORAGE_TIMEOUT_SECONDS", 60*time.Second, time.Second),
		SlideshowConcurrency: getEnvInt("SLIDESHOW_CONCURRENCY", 4),
		AutoCritic:           getEnvBool("AUTO_CRITIC", true),
		StaleJobAge:          getEnvDuration("STALE_JOB_MINUTES", 30*time.Minute, time.Minute),
		SweepInterval:        getEnvDuration("SWEEP_INTERVAL_SECONDS", 5*time.Minute, time.Second),
		Brand: BrandConfig{
			LogoPath: os.Getenv("BRAND_LOGO_PATH"),
			Position: getEnv("BRAND_LOGO_POSITION", "bottom-right"),
			Size:     getEnvFloat("BRAND_LOGO_SIZE", 0.2),
			Margin:   getEnvInt("BRAND_LOGO_MARGIN", 20),
			Opacity:  getEnvFloat("BRAND_LOGO_OPACITY", 1),
		},
		OrchestrationConfig: os.Getenv("ORCHESTRATION_CONFIG"),
		HTTPReadTimeout:     time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT_SECONDS", 0, time.Second),
		HTTPIdleTimeout:     time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:     getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins:  splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	if cfg.OrchestrationConfig != "" {
		if err := cfg.applyOverlay(cfg.OrchestrationConfig); err != nil {
			return nil, err
		}
	}

	// Synchronous generation holds the response open for the whole pipeline.
	if cfg.HTTPWriteTimeout == 0 {
		cfg.HTTPWriteTimeout = cfg.PipelineBudget() + time.Minute
	}
	if step := cfg.StepBudget(); cfg.StaleJobAge < step {
		return nil, fmt.Errorf("%w: STALE_JOB_MINUTES must cover one provider step (%s), got %s",
			domain.ErrConfiguration, step, cfg.StaleJobAge)
	}

	switch cfg.DatabaseDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("%w: DATABASE_URL is required for the postgres driver", domain.ErrConfiguration)
		}
	case DriverSQLite:
	default:
		return nil, fmt.Errorf("%w: unknown DATABASE_DRIVER %q", domain.ErrConfiguration, cfg.DatabaseDriver)
	}

	switch cfg.Provider {
	case ProviderOpenRouter:
		if cfg.OpenRouterAPIKey == "" {
			return nil, fmt.Errorf("%w: OPENROUTER_API_KEY is required for the openrouter provider", domain.ErrConfiguration)
		}
	case ProviderSynthetic:
		cfg.Models = cfg.Models.withFallback(ModelDefaults{
			Image: "synthetic/image",
			Audio: "synthetic/audio",
			Video: "synthetic/video",
		})
	default:
		return nil, fmt.Errorf("%w: unknown PROVIDER %q", domain.ErrConfiguration, cfg.Provider)
	}

	return cfg, nil
}

const maxSlideshowScenes = 8

// StepBudget is the longest a running job can go without a heartbeat: one
// primary and one fallback provider call with their storage transfers.
func (c *Config) StepBudget() time.Duration {
	return 2 * (c.ProviderTimeout + c.StorageTimeout)
}

// PipelineBudget is the worst-case duration of a synchronous generation:
// every slideshow wave plus the narration, each taking a full step.
func (c *Config) PipelineBudget() time.Duration {
	workers := c.SlideshowConcurrency
	if workers <= 0 || workers > maxSlideshowScenes {
		workers = maxSlideshowScenes
	}
	waves := (maxSlideshowScenes + workers - 1) / workers
	return time.Duration(waves+1) * c.StepBudget()
}

// ValidateModels reports missing default models. It runs after every
// overlay had a chance to supply them.
func (c *Config) ValidateModels() error {
	var missing []string
	if c.Models.Image == "" {
		missing = append(missing, "DEFAULT_IMAGE_MODEL")
	}
	if c.Models.Audio == "" {
		missing = append(missing, "DEFAULT_AUDIO_MODEL")
	}
	if c.Models.Video == "" {
		missing = append(missing, "DEFAULT_VIDEO_MODEL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s not configured", domain.ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) applyOverlay(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read orchestration config: %v", domain.ErrConfiguration, err)
	}
	var file orchestrationFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("%w: parse orchestration config %s: %v", domain.ErrConfiguration, path, err)
	}
	c.Models = file.Models.withFallback(c.Models)
	if file.Brand.LogoPath != "" {
		c.Brand.LogoPath = file.Brand.LogoPath
	}
	if file.Brand.Position != "" {
		c.Brand.Position = file.Brand.Position
	}
	if file.Brand.Size > 0 {
		c.Brand.Size = file.Brand.Size
	}
	if file.Brand.Margin > 0 {
		c.Brand.Margin = file.Brand.Margin
	}
	if file.Brand.Opacity > 0 {
		c.Brand.Opacity = file.Brand.Opacity
	}
	if file.SlideshowConcurrency > 0 {
		c.SlideshowConcurrency = file.SlideshowConcurrency
	}
	if file.AutoCritic != nil {
		c.AutoCritic = *file.AutoCritic
	}
	return nil
}

// withFallback fills empty fields of m from other.
func (m ModelDefaults) withFallback(other ModelDefaults) ModelDefaults {
	if m.Image == "" {
		m.Image = other.Image
	}
	if m.Audio == "" {
		m.Audio = other.Audio
	}
	if m.Video == "" {
		m.Video = other.Video
	}
	return m
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration reads an integer count of unit.
func getEnvDuration(key string, fallback, unit time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			return time.Duration(i) * unit
		}
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
