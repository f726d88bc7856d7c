package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"studio/internal/branding"
	"studio/internal/domain"
	"studio/internal/instruction"
	"studio/internal/planner"
	"studio/internal/providers"
	"studio/internal/storage"
)

// runSingle handles the one-call paths: image, audio and direct video.
func (o *Orchestrator) runSingle(ctx context.Context, job *domain.Job) error {
	payload, err := o.buildPayload(ctx, job)
	if err != nil {
		return o.fail(ctx, job, err, nil)
	}

	policy := AttemptPolicy{Primary: job.Model, Fallback: o.settings.DefaultModel(job.Type)}
	outcome := policy.Run(ctx, func(ctx context.Context, model string) (*providers.MediaResult, error) {
		media, err := o.invoke(ctx, job, model, payload)
		o.touch(ctx, job.ID)
		return media, err
	})
	meta := attemptMetadata(outcome)
	if outcome.Media.Empty() {
		return o.fail(ctx, job, outcome.Err, meta)
	}

	url, persistMeta, err := o.persist(ctx, job, outcome.Media)
	for k, v := range persistMeta {
		meta[k] = v
	}
	if err != nil {
		return o.fail(ctx, job, err, meta)
	}

	update := domain.Complete(url, meta)
	if outcome.Model != job.Model {
		update.Model = &outcome.Model
	}
	if err := o.finalize(ctx, job, update); err != nil {
		return err
	}

	if job.Type == domain.JobTypeVideo && o.settings.AutoCritic {
		o.annotate(ctx, job.ID)
	}
	return nil
}

func (o *Orchestrator) invoke(ctx context.Context, job *domain.Job, model string, payload providers.Payload) (*providers.MediaResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.settings.ProviderTimeout)
	defer cancel()

	started := o.now()
	media, err := o.provider.Invoke(ctx, model, payload)
	event := o.logger.Info()
	if err != nil {
		event = o.logger.Warn().Err(err)
	}
	event.
		Str("job_id", job.ID).
		Str("model", model).
		Str("modality", string(payload.Modality)).
		Bool("media", err == nil && !media.Empty()).
		Dur("elapsed", o.now().Sub(started)).
		Msg("orchestrator: provider call finished")
	return media, err
}

func attemptMetadata(outcome Outcome) map[string]any {
	attempts := make([]map[string]any, len(outcome.Attempts))
	for i, a := range outcome.Attempts {
		entry := map[string]any{"model": a.Model, "media": !a.Media.Empty()}
		if a.Err != nil {
			entry["error"] = a.Err.Error()
		}
		attempts[i] = entry
	}
	meta := map[string]any{"attempts": attempts}
	if outcome.FellBack() {
		meta["fallback_model"] = outcome.Model
	}
	return meta
}

// buildPayload assembles the provider request of a job.
func (o *Orchestrator) buildPayload(ctx context.Context, job *domain.Job) (providers.Payload, error) {
	p := job.Params
	payload := providers.Payload{
		Modality:    providers.ModalityFor(job.Type),
		Seed:        p.Seed,
		AspectRatio: p.AspectRatio,
		Width:       p.Width,
		Height:      p.Height,
	}
	if job.DurationSeconds != nil {
		payload.Duration = *job.DurationSeconds
	}

	if job.Type != domain.JobTypeAudio {
		images, err := o.loadReferenceImages(ctx, job)
		if err != nil {
			return providers.Payload{}, err
		}
		payload.InputImages = images
	}
	payload.Text = o.requestText(job)
	return payload, nil
}

// loadReferenceImages reads face references first, then environment
// references, then the reference media, up to MaxReferenceImages.
func (o *Orchestrator) loadReferenceImages(ctx context.Context, job *domain.Job) ([]providers.InputImage, error) {
	p := job.Params
	paths := make([]string, 0, len(p.FaceReferencePaths)+len(p.EnvironmentReferencePaths)+1)
	paths = append(paths, p.FaceReferencePaths...)
	paths = append(paths, p.EnvironmentReferencePaths...)
	if job.ReferenceMediaPath != "" && job.Type == domain.JobTypeImage {
		paths = append(paths, job.ReferenceMediaPath)
	}
	if len(paths) > MaxReferenceImages {
		paths = paths[:MaxReferenceImages]
	}

	images := make([]providers.InputImage, 0, len(paths))
	for _, path := range paths {
		if isRemote(path) {
			images = append(images, providers.InputImage{URL: path})
			continue
		}
		data, err := o.download(ctx, path)
		if err != nil {
			return nil, err
		}
		images = append(images, providers.InputImage{Data: data, ContentType: http.DetectContentType(data)})
	}
	return images, nil
}

func (o *Orchestrator) requestText(job *domain.Job) string {
	p := job.Params
	avatar, _ := job.Metadata["avatar_description"].(string)
	faceLock := instruction.IdentityLock(p.FaceStrength, len(p.FaceReferencePaths))
	envLock := instruction.EnvironmentLock(p.EnvironmentStrength, len(p.EnvironmentReferencePaths))

	switch job.Type {
	case domain.JobTypeAudio:
		voices := append([]string{}, p.ReferenceVoicePaths...)
		if job.ReferenceMediaPath != "" {
			voices = append(voices, job.ReferenceMediaPath)
		}
		return instruction.Compose(job.Prompt,
			instruction.Voice(p.VoiceScript),
			instruction.References("Voice samples", "Match the timbre and pacing of these samples.", o.publicURLs(voices)),
		)
	case domain.JobTypeVideo:
		var shots []string
		if p.HasStoryboard() {
			shots = planner.Descriptions(planner.Input{ShotDescriptions: p.ShotDescriptions, Storyboard: p.Storyboard})
		}
		duration := 0
		if job.DurationSeconds != nil {
			duration = *job.DurationSeconds
		}
		return instruction.Compose(job.Prompt,
			instruction.Storyboard(shots),
			faceLock,
			envLock,
			instruction.Avatar(avatar),
			instruction.References("Reference media", "Use it as the visual anchor for style and subject.", o.publicURLs([]string{job.ReferenceMediaPath})),
			instruction.NegativePrompt(p.NegativePrompt),
			instruction.Quality(job.QualityTier),
			instruction.Coherence(p.EnableFaceLock),
			instruction.GenerationParams(p, duration),
			instruction.Brand(p.UseBrandLogo),
		)
	default:
		return instruction.Compose(job.Prompt,
			instruction.Mode(job.Mode),
			faceLock,
			envLock,
			instruction.Avatar(avatar),
			instruction.NegativePrompt(p.NegativePrompt),
			instruction.Quality(job.QualityTier),
			instruction.GenerationParams(p, 0),
			instruction.Brand(p.UseBrandLogo),
		)
	}
}

func (o *Orchestrator) publicURLs(paths []string) []string {
	var out []string
	for _, path := range paths {
		switch {
		case path == "":
		case isRemote(path):
			out = append(out, path)
		default:
			out = append(out, o.assets.PublicURL(path))
		}
	}
	return out
}

// persist normalizes the provider media to bytes, applies the brand logo when
// requested and uploads the artifact. The returned URL is always owned by the
// asset store.
func (o *Orchestrator) persist(ctx context.Context, job *domain.Job, media *providers.MediaResult) (string, map[string]any, error) {
	meta := map[string]any{}
	data, contentType := media.Data, media.ContentType
	if len(data) > 0 {
		meta["artifact_source"] = "inline"
	} else {
		fetchCtx, cancel := context.WithTimeout(ctx, o.settings.StorageTimeout)
		fetched, fetchedType, err := o.fetcher.Fetch(fetchCtx, media.URL)
		cancel()
		if err != nil {
			return "", meta, err
		}
		data = fetched
		if contentType == "" {
			contentType = fetchedType
		}
		meta["artifact_source"] = "remote"
		meta["provider_url"] = media.URL
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	if job.Type == domain.JobTypeImage && job.Params.UseBrandLogo {
		res := o.applyBrand(ctx, data, contentType)
		data, contentType = res.Data, res.ContentType
		meta["brand_logo_applied"] = res.Applied
		if res.Warning != "" {
			meta["brand_logo_warning"] = res.Warning
			o.logger.Warn().Str("job_id", job.ID).Str("warning", res.Warning).Msg("orchestrator: brand logo skipped")
		}
	}

	key := o.storageKey(job, contentType)
	uploadCtx, cancel := context.WithTimeout(ctx, o.settings.StorageTimeout)
	defer cancel()
	url, err := o.assets.Upload(uploadCtx, key, data, contentType)
	if err != nil {
		return "", meta, err
	}
	meta["storage_key"] = key
	meta["content_type"] = contentType
	return url, meta, nil
}

func (o *Orchestrator) applyBrand(ctx context.Context, data []byte, contentType string) branding.Result {
	b := o.settings.Brand
	if b.LogoPath == "" {
		return branding.Result{Data: data, ContentType: contentType, Warning: "no brand logo configured"}
	}
	logo, err := o.download(ctx, b.LogoPath)
	if err != nil {
		return branding.Result{Data: data, ContentType: contentType, Warning: err.Error()}
	}
	return branding.Composite(data, logo, contentType, branding.Options{
		Position: b.Position,
		Size:     b.Size,
		Margin:   b.Margin,
		Opacity:  b.Opacity,
	})
}

func (o *Orchestrator) download(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, o.settings.StorageTimeout)
	defer cancel()
	return o.assets.Download(ctx, key)
}

// storageKey is outputs/<kind>/<job id><ext>.
func (o *Orchestrator) storageKey(job *domain.Job, contentType string) string {
	return fmt.Sprintf("%s/%s/%s%s", o.settings.OutputsPrefix, job.Type, job.ID, extensionFor(job.Type, contentType))
}

func extensionFor(t domain.JobType, contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch mediaType {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	}
	switch t {
	case domain.JobTypeVideo:
		return ".mp4"
	case domain.JobTypeAudio:
		return ".mp3"
	default:
		return ".png"
	}
}

func isRemote(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// finalize writes a terminal update. It survives a cancelled caller so the
// job does not stay in processing because the client went away.
func (o *Orchestrator) finalize(ctx context.Context, job *domain.Job, update domain.JobUpdate) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	if err := o.jobs.Update(ctx, job.ID, update); err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("orchestrator: finalize failed")
		return fmt.Errorf("finalize job %s: %w", job.ID, err)
	}
	if update.Status != nil {
		o.logger.Info().
			Str("job_id", job.ID).
			Str("status", string(*update.Status)).
			Str("result_url", domain.Deref(update.ResultURL)).
			Msg("orchestrator: job finalized")
	}
	return nil
}

// touch refreshes updated_at of a running job so the stale sweep can tell
// it from an abandoned one. Failures are only logged.
func (o *Orchestrator) touch(ctx context.Context, jobID string) {
	if err := o.jobs.Update(ctx, jobID, domain.Touch()); err != nil {
		o.logger.Debug().Err(err).Str("job_id", jobID).Msg("orchestrator: heartbeat not written")
	}
}

// fail marks the job failed with a message derived from cause and returns
// cause so callers can classify it.
func (o *Orchestrator) fail(ctx context.Context, job *domain.Job, cause error, meta map[string]any) error {
	if meta == nil {
		meta = map[string]any{}
	}
	message := cause.Error()
	if perr, ok := providerError(cause); ok {
		message = perr.Message()
		meta["error_code"] = string(perr.Code)
		meta["provider_status"] = perr.Status
		if perr.Hint != "" {
			meta["error_hint"] = perr.Hint
		}
	} else if errors.Is(cause, ErrNoMedia) {
		meta["error_code"] = "no_media"
	} else if errors.Is(cause, domain.ErrStorage) {
		meta["error_code"] = "storage_error"
	}
	var serr *storage.Error
	if errors.As(cause, &serr) {
		meta["storage_key"] = serr.Key
	}

	if err := o.finalize(ctx, job, domain.Fail(message, meta)); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (o *Orchestrator) annotate(ctx context.Context, jobID string) {
	if o.critic == nil {
		return
	}
	if _, err := o.critic.Annotate(context.WithoutCancel(ctx), jobID); err != nil {
		o.logger.Warn().Err(err).Str("job_id", jobID).Msg("orchestrator: critic pass failed")
	}
}
