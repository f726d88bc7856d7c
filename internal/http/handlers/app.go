package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/critic"
	"studio/internal/domain"
	"studio/internal/orchestrator"
)

// JobService is the orchestration surface used by the job handlers.
type JobService interface {
	Generate(ctx context.Context, req orchestrator.GenerateRequest) (*domain.Job, error)
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	ListSegments(ctx context.Context, jobID string) ([]domain.Segment, error)
	ReconcileStale(ctx context.Context, maxAge time.Duration, limit int) (int, error)
}

// Annotator runs the critic pass on a job.
type Annotator interface {
	Annotate(ctx context.Context, jobID string) (critic.Result, error)
}

// AssetReader resolves stored artifacts for the bundle export.
type AssetReader interface {
	Download(ctx context.Context, key string) ([]byte, error)
	KeyFromURL(u string) (string, bool)
}

type App struct {
	Jobs     JobService
	Critic   Annotator
	Assets   AssetReader
	Logger   zerolog.Logger
	StaleAge time.Duration
	// Ping is optional; when set, Health reports database reachability.
	Ping func(context.Context) error
}

func NewApp(jobs JobService, annotator Annotator, assets AssetReader, logger zerolog.Logger, staleAge time.Duration) *App {
	return &App{Jobs: jobs, Critic: annotator, Assets: assets, Logger: logger, StaleAge: staleAge}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
	JobID   string `json:"job_id,omitempty"`
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{"error": errorBody{Code: errCode, Message: message}})
}
