// Package critic scores completed video jobs from their metadata.
//
// The score is a heuristic proxy: it rewards the presence of inputs that tend
// to produce better videos (references, briefs, storyboards, a higher quality
// tier) and never looks at the rendered media. It is meant for operator
// diagnosis, not for automated decisions.
package critic

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"studio/internal/domain"
)

const (
	WeightResult         = 0.5
	WeightUltraRealistic = 0.2
	WeightCinematic      = 0.1
	WeightReference      = 0.1
	WeightBrief          = 0.1
	WeightFaceReference  = 0.05
	WeightStoryboard     = 0.05
)

// Result is the critic outcome for one job.
type Result struct {
	Score   float64
	Report  string
	Details map[string]any
}

type bonus struct {
	key    string
	label  string
	weight float64
}

var titler = cases.Title(language.English)

// Score computes the critic result for job. It is a pure function.
func Score(job domain.Job) Result {
	var applied []bonus
	var hints, missing []string

	if domain.Deref(job.ResultURL) != "" {
		applied = append(applied, bonus{"result_url", "result available", WeightResult})
	} else {
		missing = append(missing, "result_url")
		hints = append(hints, "No result URL: the job produced no playable output.")
	}

	tierLabel := titler.String(strings.ReplaceAll(string(job.QualityTier), "_", " "))
	switch job.QualityTier {
	case domain.QualityUltraRealistic:
		applied = append(applied, bonus{"quality_tier", "quality tier " + tierLabel, WeightUltraRealistic})
	case domain.QualityCinematic:
		applied = append(applied, bonus{"quality_tier", "quality tier " + tierLabel, WeightCinematic})
	}

	if job.ReferenceMediaPath != "" {
		applied = append(applied, bonus{"reference_media", "reference media", WeightReference})
	} else {
		missing = append(missing, "reference_media")
		hints = append(hints, "No reference media: add referenceMediaPath to anchor the look.")
	}

	if job.VideoBriefID != "" {
		applied = append(applied, bonus{"video_brief", "video brief", WeightBrief})
	} else {
		missing = append(missing, "video_brief")
		hints = append(hints, "No video brief: link a videoBriefId to carry message and brand constraints.")
	}

	if len(job.Params.FaceReferencePaths) > 0 {
		applied = append(applied, bonus{"face_reference", "face reference", WeightFaceReference})
	}
	if job.Params.HasStoryboard() {
		applied = append(applied, bonus{"storyboard", "storyboard", WeightStoryboard})
	}

	total := 0.0
	weights := make(map[string]any, len(applied))
	for _, b := range applied {
		total += b.weight
		weights[b.key] = b.weight
	}
	score := clamp(math.Round(total*100) / 100)

	return Result{
		Score:  score,
		Report: report(score, applied, hints),
		Details: map[string]any{
			"method":  "metadata_heuristic",
			"bonuses": weights,
			"missing": missing,
		},
	}
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func report(score float64, applied []bonus, hints []string) string {
	lines := []string{
		fmt.Sprintf("Critic score: %d / 100.", int(math.Round(score*100))),
		"This score is a heuristic over job metadata only; no frames or audio were inspected.",
	}
	if len(applied) > 0 {
		parts := make([]string, len(applied))
		for i, b := range applied {
			parts[i] = fmt.Sprintf("%s (+%.2f)", b.label, b.weight)
		}
		lines = append(lines, "Applied: "+strings.Join(parts, ", ")+".")
	}
	if len(hints) > 0 {
		lines = append(lines, "Hints:")
		for _, h := range hints {
			lines = append(lines, "- "+h)
		}
	}
	return strings.Join(lines, "\n")
}

// Service annotates stored jobs with their critic result.
type Service struct {
	jobs   domain.JobRepository
	logger zerolog.Logger
}

// NewService creates a critic service over jobs.
func NewService(jobs domain.JobRepository, logger *zerolog.Logger) *Service {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &Service{jobs: jobs, logger: l}
}

// Annotate scores the job and writes quality_score, critic_report and
// critic_metadata. Only completed video jobs qualify.
func (s *Service) Annotate(ctx context.Context, jobID string) (Result, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return Result{}, err
	}
	if job.Type != domain.JobTypeVideo || job.Status != domain.JobStatusCompleted {
		return Result{}, fmt.Errorf("%w: job %s is a %s job in status %s", domain.ErrCriticNotApplicable, jobID, job.Type, job.Status)
	}

	res := Score(*job)
	update := domain.JobUpdate{
		QualityScore:   &res.Score,
		CriticReport:   &res.Report,
		CriticMetadata: res.Details,
	}
	if err := s.jobs.Update(ctx, jobID, update); err != nil {
		return Result{}, err
	}
	s.logger.Info().Str("job_id", jobID).Float64("score", res.Score).Msg("critic: job annotated")
	return res, nil
}
