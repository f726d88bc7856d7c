// Package orchestrator drives generation jobs from creation to a terminal
// status: request building, provider calls with model fallback, artifact
// persistence, slideshow composition and the critic pass.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/branding"
	"studio/internal/critic"
	"studio/internal/domain"
	"studio/internal/planner"
	"studio/internal/providers"
)

const (
	// MaxReferenceImages bounds the conditioning images sent per request.
	MaxReferenceImages = 10
	// MaxSlideshowWorkers bounds parallel scene generation per job.
	MaxSlideshowWorkers = planner.MaxScenes

	finalizeTimeout = 15 * time.Second
)

// AssetStore is the blob storage used for references and outputs.
type AssetStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Download(ctx context.Context, key string) ([]byte, error)
	PublicURL(key string) string
}

// Fetcher downloads provider-hosted media.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// Critic annotates completed video jobs.
type Critic interface {
	Annotate(ctx context.Context, jobID string) (critic.Result, error)
}

// Deps are the collaborators of the orchestrator. Avatars, Library, Voices
// and Critic are optional.
type Deps struct {
	Jobs     domain.JobRepository
	Segments domain.SegmentRepository
	Avatars  domain.AvatarRepository
	Library  domain.AssetLibraryRepository
	Voices   domain.VoiceProfileRepository
	Provider providers.Provider
	Assets   AssetStore
	Fetcher  Fetcher
	Critic   Critic
	Logger   *zerolog.Logger
	Now      func() time.Time
}

// BrandSettings configures logo compositing.
type BrandSettings struct {
	LogoPath string
	Position branding.Position
	Size     float64
	Margin   int
	Opacity  float64
}

// Settings is the orchestration configuration, fixed at construction.
type Settings struct {
	DefaultImageModel    string
	DefaultAudioModel    string
	DefaultVideoModel    string
	OutputsPrefix        string
	SlideshowConcurrency int
	ProviderTimeout      time.Duration
	StorageTimeout       time.Duration
	AutoCritic           bool
	Brand                BrandSettings
}

// DefaultModel returns the orchestration default for a job type.
func (s Settings) DefaultModel(t domain.JobType) string {
	switch t {
	case domain.JobTypeAudio:
		return s.DefaultAudioModel
	case domain.JobTypeVideo:
		return s.DefaultVideoModel
	default:
		return s.DefaultImageModel
	}
}

func (s Settings) withDefaults() Settings {
	if s.OutputsPrefix == "" {
		s.OutputsPrefix = "outputs"
	}
	if s.SlideshowConcurrency <= 0 || s.SlideshowConcurrency > MaxSlideshowWorkers {
		s.SlideshowConcurrency = MaxSlideshowWorkers
	}
	if s.ProviderTimeout <= 0 {
		s.ProviderTimeout = 5 * time.Minute
	}
	if s.StorageTimeout <= 0 {
		s.StorageTimeout = time.Minute
	}
	return s
}

// Orchestrator runs generation jobs.
type Orchestrator struct {
	jobs     domain.JobRepository
	segments domain.SegmentRepository
	avatars  domain.AvatarRepository
	library  domain.AssetLibraryRepository
	voices   domain.VoiceProfileRepository
	provider providers.Provider
	assets   AssetStore
	fetcher  Fetcher
	critic   Critic
	settings Settings
	logger   zerolog.Logger
	now      func() time.Time
}

// New validates the configuration and builds an Orchestrator.
func New(deps Deps, settings Settings) (*Orchestrator, error) {
	var missing []string
	if deps.Jobs == nil {
		missing = append(missing, "job repository")
	}
	if deps.Segments == nil {
		missing = append(missing, "segment repository")
	}
	if deps.Provider == nil {
		missing = append(missing, "provider")
	}
	if deps.Assets == nil {
		missing = append(missing, "asset store")
	}
	if deps.Fetcher == nil {
		missing = append(missing, "fetcher")
	}
	for _, t := range []domain.JobType{domain.JobTypeImage, domain.JobTypeAudio, domain.JobTypeVideo} {
		if strings.TrimSpace(settings.DefaultModel(t)) == "" {
			missing = append(missing, fmt.Sprintf("default %s model", t))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: orchestrator requires %s", domain.ErrConfiguration, strings.Join(missing, ", "))
	}

	logger := zerolog.Nop()
	if deps.Logger != nil {
		logger = *deps.Logger
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		jobs:     deps.Jobs,
		segments: deps.Segments,
		avatars:  deps.Avatars,
		library:  deps.Library,
		voices:   deps.Voices,
		provider: deps.Provider,
		assets:   deps.Assets,
		fetcher:  deps.Fetcher,
		critic:   deps.Critic,
		settings: settings.withDefaults(),
		logger:   logger,
		now:      now,
	}, nil
}

// GenerateRequest is a caller's request for a new job.
type GenerateRequest struct {
	Type   domain.JobType
	Prompt string
	Params domain.GenerationParams
}

// Generate creates a job and runs it to a terminal status. The returned job
// is the final stored state; err describes the failure when the job failed.
func (o *Orchestrator) Generate(ctx context.Context, req GenerateRequest) (*domain.Job, error) {
	id, err := o.CreateJob(ctx, req)
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, id)
}

// CreateJob validates req and stores a processing job for it.
func (o *Orchestrator) CreateJob(ctx context.Context, req GenerateRequest) (string, error) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	req.Params = trimParams(req.Params)

	metadata := map[string]any{}
	if req.Params.AvatarProfileID != "" {
		if err := o.applyAvatar(ctx, &req.Params, metadata); err != nil {
			return "", err
		}
	}
	if err := o.validate(ctx, req); err != nil {
		return "", err
	}
	if req.Params.UseLibrary && req.Params.OrchestrationMode != "" {
		o.selectLibraryAsset(ctx, &req.Params, metadata)
	}

	job := o.newJob(req, metadata)
	if err := o.jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	o.logger.Info().
		Str("job_id", job.ID).
		Str("type", string(job.Type)).
		Str("mode", string(job.Mode)).
		Str("model", job.Model).
		Msg("orchestrator: job created")
	return job.ID, nil
}

// Run drives a processing job to completion or failure. Jobs that are
// already terminal are returned unchanged.
func (o *Orchestrator) Run(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return job, nil
	}

	var runErr error
	switch {
	case job.Type == domain.JobTypeVideo && job.Mode == domain.ModeScriptedSlideshow:
		runErr = o.runSlideshow(ctx, job)
	case job.Type == domain.JobTypeVideo && job.Mode == domain.ModeOrchestrated:
		runErr = o.runOrchestrated(ctx, job)
	default:
		runErr = o.runSingle(ctx, job)
	}

	final, err := o.jobs.GetByID(context.WithoutCancel(ctx), jobID)
	if err != nil {
		return nil, errors.Join(runErr, err)
	}
	return final, runErr
}

// GetJob returns the stored job.
func (o *Orchestrator) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	return o.jobs.GetByID(ctx, id)
}

// ListSegments returns the segments of a job in playback order.
func (o *Orchestrator) ListSegments(ctx context.Context, jobID string) ([]domain.Segment, error) {
	if _, err := o.jobs.GetByID(ctx, jobID); err != nil {
		return nil, err
	}
	return o.segments.ListByJob(ctx, jobID)
}

func (o *Orchestrator) newJob(req GenerateRequest, metadata map[string]any) *domain.Job {
	p := req.Params
	job := &domain.Job{
		Type:               req.Type,
		Prompt:             req.Prompt,
		Model:              p.Model,
		Provider:           o.provider.Name(),
		Mode:               resolveMode(req.Type, p),
		QualityTier:        p.QualityTier,
		ReferenceMediaPath: p.ReferenceMediaPath,
		VideoBriefID:       p.VideoBriefID,
		Params:             p,
		Metadata:           metadata,
	}
	if job.Model == "" {
		job.Model = o.settings.DefaultModel(req.Type)
	}
	if p.ParentJobID != "" {
		job.ParentJobID = domain.StringPtr(p.ParentJobID)
	}
	if req.Type == domain.JobTypeVideo {
		d := planner.NormalizeDuration(p.DurationSeconds)
		job.DurationSeconds = &d
	} else if p.DurationSeconds != nil {
		d := *p.DurationSeconds
		job.DurationSeconds = &d
	}
	job.PrepareNew(o.now())
	return job
}

func resolveMode(t domain.JobType, p domain.GenerationParams) domain.JobMode {
	switch t {
	case domain.JobTypeAudio:
		return domain.ModeTTS
	case domain.JobTypeVideo:
		switch {
		case p.OrchestrationMode != "":
			return p.OrchestrationMode
		case p.Mode != "":
			return p.Mode
		case p.HasStoryboard():
			return domain.ModeStoryboard
		default:
			return domain.ModeText2Video
		}
	}
	hasRefs := len(p.FaceReferencePaths) > 0 || len(p.EnvironmentReferencePaths) > 0
	switch {
	case p.Mode != "" && p.Mode != domain.ModeText2Img:
		return p.Mode
	case hasRefs:
		return domain.ModeFaceRef
	case p.ReferenceMediaPath != "":
		return domain.ModeImg2Img
	default:
		return domain.ModeText2Img
	}
}

var referenceModes = []domain.JobMode{
	domain.ModeImg2Img, domain.ModeInpaint, domain.ModeOutpaint, domain.ModeUpscale, domain.ModeBackgroundRemoval,
}

func (o *Orchestrator) validate(ctx context.Context, req GenerateRequest) error {
	p := req.Params
	if !req.Type.Valid() {
		return domain.Invalid("type", fmt.Sprintf("must be one of image, audio, video (got %q)", req.Type))
	}
	if req.Prompt == "" && !(req.Type == domain.JobTypeImage && p.ReferenceMediaPath != "") {
		return domain.Invalid("prompt", "is required")
	}
	if p.Mode != "" {
		switch req.Type {
		case domain.JobTypeImage:
			if !slices.Contains(domain.ImageModes, p.Mode) {
				return domain.Invalid("mode", fmt.Sprintf("unsupported image mode %q", p.Mode))
			}
			if slices.Contains(referenceModes, p.Mode) && p.ReferenceMediaPath == "" {
				return domain.Invalid("referenceMediaPath", fmt.Sprintf("is required for mode %s", p.Mode))
			}
		case domain.JobTypeVideo:
			if p.Mode != domain.ModeText2Video && p.Mode != domain.ModeStoryboard {
				return domain.Invalid("mode", fmt.Sprintf("unsupported video mode %q", p.Mode))
			}
		}
	}
	if p.OrchestrationMode != "" {
		if req.Type != domain.JobTypeVideo {
			return domain.Invalid("orchestrationMode", "only applies to video jobs")
		}
		if p.OrchestrationMode != domain.ModeOrchestrated && p.OrchestrationMode != domain.ModeScriptedSlideshow {
			return domain.Invalid("orchestrationMode", fmt.Sprintf("unsupported value %q", p.OrchestrationMode))
		}
	}
	if (p.Width == nil) != (p.Height == nil) {
		return domain.Invalid("width", "width and height must be given together")
	}
	if p.Width != nil && (*p.Width < 64 || *p.Width > 4096 || *p.Height < 64 || *p.Height > 4096) {
		return domain.Invalid("width", "width and height must be between 64 and 4096")
	}
	for field, v := range map[string]*float64{"faceStrength": p.FaceStrength, "environmentStrength": p.EnvironmentStrength} {
		if v != nil && (*v < 0 || *v > 1) {
			return domain.Invalid(field, "must be between 0 and 1")
		}
	}
	switch p.QualityTier {
	case "", domain.QualityStandard, domain.QualityCinematic, domain.QualityUltraRealistic:
	default:
		return domain.Invalid("qualityTier", fmt.Sprintf("unsupported value %q", p.QualityTier))
	}
	if p.ParentJobID != "" {
		if _, err := o.jobs.GetByID(ctx, p.ParentJobID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.Invalid("parentJobId", "parent job does not exist")
			}
			return err
		}
	}
	return nil
}

func (o *Orchestrator) applyAvatar(ctx context.Context, p *domain.GenerationParams, metadata map[string]any) error {
	if o.avatars == nil {
		return domain.Invalid("avatarProfileId", "avatar profiles are not available")
	}
	avatar, err := o.avatars.GetByID(ctx, p.AvatarProfileID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Invalid("avatarProfileId", "avatar profile does not exist")
		}
		return err
	}
	if len(p.FaceReferencePaths) == 0 {
		p.FaceReferencePaths = slices.Clone(avatar.FaceReferencePaths)
	}
	if len(p.EnvironmentReferencePaths) == 0 {
		p.EnvironmentReferencePaths = slices.Clone(avatar.EnvironmentReferencePaths)
	}
	if p.FaceStrength == nil {
		p.FaceStrength = avatar.FaceStrength
	}
	if p.EnvironmentStrength == nil {
		p.EnvironmentStrength = avatar.EnvironmentStrength
	}
	metadata["avatar_profile_id"] = avatar.ID
	if avatar.PhysicalDescription != "" {
		metadata["avatar_description"] = avatar.PhysicalDescription
	}
	return nil
}

func trimParams(p domain.GenerationParams) domain.GenerationParams {
	p.Model = strings.TrimSpace(p.Model)
	p.ReferenceMediaPath = strings.TrimSpace(p.ReferenceMediaPath)
	p.AspectRatio = strings.TrimSpace(p.AspectRatio)
	p.NegativePrompt = strings.TrimSpace(p.NegativePrompt)
	p.ParentJobID = strings.TrimSpace(p.ParentJobID)
	p.AvatarProfileID = strings.TrimSpace(p.AvatarProfileID)
	p.VideoBriefID = strings.TrimSpace(p.VideoBriefID)
	p.VoiceScript = strings.TrimSpace(p.VoiceScript)
	p.VoiceProfileID = strings.TrimSpace(p.VoiceProfileID)
	p.LibraryLocation = strings.TrimSpace(p.LibraryLocation)
	p.LibraryShotType = strings.TrimSpace(p.LibraryShotType)
	p.FaceReferencePaths = nonEmpty(p.FaceReferencePaths)
	p.EnvironmentReferencePaths = nonEmpty(p.EnvironmentReferencePaths)
	p.ReferenceVoicePaths = nonEmpty(p.ReferenceVoicePaths)
	return p
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
