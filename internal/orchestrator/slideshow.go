package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"studio/internal/domain"
	"studio/internal/planner"
)

type sceneResult struct {
	scene  planner.Scene
	prompt string
	job    *domain.Job
	err    error
}

// runSlideshow generates one image job per planned scene, records all
// segments in one batch once every scene succeeded and completes the parent
// with the first scene as preview. Any failed scene or a failed batch write
// fails the parent with no segment stored.
func (o *Orchestrator) runSlideshow(ctx context.Context, parent *domain.Job) error {
	scenes := planner.Plan(planner.Input{
		ShotDescriptions: parent.Params.ShotDescriptions,
		Storyboard:       parent.Params.Storyboard,
		Prompt:           parent.Prompt,
		TotalSeconds:     *parent.DurationSeconds,
	})

	results := make([]sceneResult, len(scenes))
	var g errgroup.Group
	g.SetLimit(min(len(scenes), o.settings.SlideshowConcurrency))
	for i, scene := range scenes {
		g.Go(func() error {
			results[i] = o.generateScene(ctx, parent, scene, len(scenes))
			o.touch(ctx, parent.ID)
			return nil
		})
	}
	_ = g.Wait()

	meta := map[string]any{
		"orchestration_mode": string(domain.ModeScriptedSlideshow),
		"scene_count":        len(scenes),
	}
	for i, r := range results {
		if r.err == nil {
			continue
		}
		meta["failed_scene"] = i
		if r.job != nil {
			meta["failed_scene_job_id"] = r.job.ID
		}
		return o.fail(ctx, parent, fmt.Errorf("%w: scene %d/%d failed: %s", domain.ErrPartialFailure, i+1, len(scenes), r.err), meta)
	}

	summary := make([]map[string]any, len(results))
	segments := make([]*domain.Segment, len(results))
	for i, r := range results {
		url := domain.Deref(r.job.ResultURL)
		segMeta := map[string]any{
			"scene_description": r.scene.Description,
			"visual_prompt":     r.prompt,
			"image_url":         url,
			"image_job_id":      r.job.ID,
		}
		if script := parent.Params.VoiceScript; script != "" {
			segMeta["script_text"] = script
		}
		segments[i] = &domain.Segment{
			JobID:           parent.ID,
			Index:           i,
			Type:            domain.SegmentAI,
			DurationSeconds: r.scene.DurationSeconds,
			SegmentJobID:    domain.StringPtr(r.job.ID),
			Metadata:        segMeta,
		}
		summary[i] = map[string]any{
			"index":            i,
			"duration_seconds": r.scene.DurationSeconds,
			"image_url":        url,
			"image_job_id":     r.job.ID,
		}
	}
	if err := o.segments.AppendAll(ctx, segments); err != nil {
		return o.fail(ctx, parent, fmt.Errorf("record segments: %w", err), meta)
	}
	meta["segments"] = summary
	for k, v := range o.narrate(ctx, parent) {
		meta[k] = v
	}

	if err := o.finalize(ctx, parent, domain.Complete(domain.Deref(results[0].job.ResultURL), meta)); err != nil {
		return err
	}
	if o.settings.AutoCritic {
		o.annotate(ctx, parent.ID)
	}
	return nil
}

func (o *Orchestrator) generateScene(ctx context.Context, parent *domain.Job, scene planner.Scene, total int) sceneResult {
	p := parent.Params
	envRefs := append([]string{}, p.EnvironmentReferencePaths...)
	if parent.ReferenceMediaPath != "" {
		envRefs = append(envRefs, parent.ReferenceMediaPath)
	}
	prompt := fmt.Sprintf("Scene %d/%d: %s\nGlobal prompt: %s", scene.Index+1, total, scene.Description, parent.Prompt)

	job, err := o.Generate(ctx, GenerateRequest{
		Type:   domain.JobTypeImage,
		Prompt: prompt,
		Params: domain.GenerationParams{
			NegativePrompt:            p.NegativePrompt,
			Seed:                      p.Seed,
			Width:                     p.Width,
			Height:                    p.Height,
			AspectRatio:               p.AspectRatio,
			ParentJobID:               parent.ID,
			UseBrandLogo:              p.UseBrandLogo,
			AvatarProfileID:           p.AvatarProfileID,
			FaceReferencePaths:        p.FaceReferencePaths,
			EnvironmentReferencePaths: envRefs,
			FaceStrength:              p.FaceStrength,
			EnvironmentStrength:       p.EnvironmentStrength,
			QualityTier:               p.QualityTier,
		},
	})
	res := sceneResult{scene: scene, prompt: prompt, job: job, err: err}
	if err == nil && (job == nil || job.Status != domain.JobStatusCompleted) {
		res.err = errors.New("image job did not complete")
	}
	if res.err != nil && job != nil && job.ErrorMessage != nil {
		res.err = errors.New(*job.ErrorMessage)
	}
	return res
}
