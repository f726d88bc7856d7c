package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"studio/internal/domain"
)

// runOrchestrated delegates the render to a child video job and records it
// as the AI segment of the parent, after the library clip when one was
// selected at creation. Narration is added when a script is present.
func (o *Orchestrator) runOrchestrated(ctx context.Context, parent *domain.Job) error {
	params := parent.Params
	params.OrchestrationMode = ""
	params.Mode = ""
	params.Model = parent.Model
	params.ParentJobID = parent.ID
	params.AvatarProfileID = ""
	params.UseLibrary = false
	params.VoiceProfileID = ""
	params.ReferenceMediaPath = parent.ReferenceMediaPath
	params.DurationSeconds = parent.DurationSeconds

	child, err := o.Generate(ctx, GenerateRequest{Type: domain.JobTypeVideo, Prompt: parent.Prompt, Params: params})
	if child == nil {
		if err == nil {
			err = errors.New("child video job was not created")
		}
		return o.fail(ctx, parent, err, map[string]any{"orchestration_mode": string(domain.ModeOrchestrated)})
	}
	o.touch(ctx, parent.ID)
	meta := map[string]any{
		"orchestration_mode": string(domain.ModeOrchestrated),
		"child_job_id":       child.ID,
	}
	if child.Status != domain.JobStatusCompleted {
		if err == nil {
			err = fmt.Errorf("%w: child video job %s did not complete", domain.ErrProviderFailure, child.ID)
		}
		return o.fail(ctx, parent, err, meta)
	}

	var segments []*domain.Segment
	if clip := librarySegment(parent); clip != nil {
		segments = append(segments, clip)
	}
	segments = append(segments, &domain.Segment{
		JobID:           parent.ID,
		Index:           len(segments),
		Type:            domain.SegmentAI,
		DurationSeconds: *parent.DurationSeconds,
		SegmentJobID:    domain.StringPtr(child.ID),
		Metadata: map[string]any{
			"scene_description": parent.Prompt,
			"visual_prompt":     child.Prompt,
			"video_url":         domain.Deref(child.ResultURL),
			"video_job_id":      child.ID,
		},
	})
	if err := o.segments.AppendAll(ctx, segments); err != nil {
		return o.fail(ctx, parent, fmt.Errorf("record segments: %w", err), meta)
	}

	for k, v := range o.narrate(ctx, parent) {
		meta[k] = v
	}
	if err := o.finalize(ctx, parent, domain.Complete(domain.Deref(child.ResultURL), meta)); err != nil {
		return err
	}
	if o.settings.AutoCritic {
		o.annotate(ctx, parent.ID)
	}
	return nil
}

// selectLibraryAsset picks the newest library clip matching the request and
// records it on the job. The clip becomes the reference media when the
// caller gave none. Lookup errors only drop the clip.
func (o *Orchestrator) selectLibraryAsset(ctx context.Context, p *domain.GenerationParams, metadata map[string]any) {
	if o.library == nil {
		metadata["library_error"] = "asset library is not available"
		return
	}
	asset, err := o.library.Latest(ctx, domain.LibraryQuery{Location: p.LibraryLocation, ShotType: p.LibraryShotType})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			o.logger.Warn().Err(err).Msg("orchestrator: library lookup failed")
			metadata["library_error"] = err.Error()
		}
		return
	}
	metadata["library_asset_id"] = asset.ID
	metadata["library_asset_path"] = asset.StoragePath
	if asset.DurationSeconds != nil {
		metadata["library_asset_duration"] = *asset.DurationSeconds
	}
	if p.ReferenceMediaPath == "" {
		p.ReferenceMediaPath = asset.StoragePath
	}
}

// librarySegment builds the real-asset segment recorded at creation, or nil.
func librarySegment(parent *domain.Job) *domain.Segment {
	id, _ := parent.Metadata["library_asset_id"].(string)
	if id == "" {
		return nil
	}
	duration := *parent.DurationSeconds
	if d, ok := intValue(parent.Metadata["library_asset_duration"]); ok && d >= 1 {
		duration = d
	}
	path, _ := parent.Metadata["library_asset_path"].(string)
	return &domain.Segment{
		JobID:           parent.ID,
		Index:           0,
		Type:            domain.SegmentRealAsset,
		DurationSeconds: duration,
		Metadata: map[string]any{
			"asset_id":     id,
			"storage_path": path,
		},
	}
}

// intValue reads an integer that may have gone through a JSON round trip.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// narrate generates a voice-over child job when the parent carries a
// script. Narration is optional: its failure is recorded, not propagated.
func (o *Orchestrator) narrate(ctx context.Context, parent *domain.Job) map[string]any {
	script := parent.Params.VoiceScript
	if script == "" {
		return nil
	}
	meta := map[string]any{}
	voices := o.voiceReferences(ctx, parent, meta)

	audio, err := o.Generate(ctx, GenerateRequest{
		Type:   domain.JobTypeAudio,
		Prompt: "Voice-over narration for: " + parent.Prompt,
		Params: domain.GenerationParams{
			VoiceScript:         script,
			ReferenceVoicePaths: voices,
			ParentJobID:         parent.ID,
		},
	})
	o.touch(ctx, parent.ID)
	if audio != nil {
		meta["narration_job_id"] = audio.ID
	}
	if err != nil || audio == nil || audio.Status != domain.JobStatusCompleted {
		msg := "narration job did not complete"
		if err != nil {
			msg = err.Error()
		}
		meta["narration_error"] = msg
		o.logger.Warn().Str("job_id", parent.ID).Str("error", msg).Msg("orchestrator: narration skipped")
		return meta
	}
	meta["narration_url"] = domain.Deref(audio.ResultURL)
	return meta
}

// voiceReferences merges the explicit voice paths with the samples of the
// requested voice profile. A missing profile is recorded and narration goes
// ahead without it.
func (o *Orchestrator) voiceReferences(ctx context.Context, parent *domain.Job, meta map[string]any) []string {
	paths := append([]string{}, parent.Params.ReferenceVoicePaths...)
	id := parent.Params.VoiceProfileID
	if id == "" {
		return paths
	}
	if o.voices == nil {
		meta["voice_profile_error"] = "voice profiles are not available"
		return paths
	}
	profile, err := o.voices.GetByID(ctx, id)
	if err != nil {
		o.logger.Warn().Err(err).Str("job_id", parent.ID).Str("voice_profile_id", id).Msg("orchestrator: voice profile not loaded")
		meta["voice_profile_error"] = err.Error()
		return paths
	}
	meta["voice_profile_id"] = profile.ID
	merged := domain.VoiceProfile{SamplePaths: append(profile.ReferencePaths(), paths...)}
	return merged.ReferencePaths()
}
