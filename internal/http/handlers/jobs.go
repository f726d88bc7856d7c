package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/go-chi/chi/v5"

	"studio/internal/domain"
	"studio/internal/orchestrator"
	"studio/pkg/zip"
)

const maxRequestBytes = 1 << 20

type createJobRequest struct {
	Type   domain.JobType `json:"type"`
	Prompt string         `json:"prompt"`
	domain.GenerationParams
}

type jobResponse struct {
	ID              string                  `json:"id"`
	Type            domain.JobType          `json:"type"`
	Prompt          string                  `json:"prompt"`
	Model           string                  `json:"model"`
	Provider        string                  `json:"provider"`
	Status          domain.JobStatus        `json:"status"`
	Mode            domain.JobMode          `json:"mode,omitempty"`
	QualityTier     domain.QualityTier      `json:"quality_tier,omitempty"`
	ResultURL       *string                 `json:"result_url"`
	ErrorMessage    *string                 `json:"error_message"`
	ParentJobID     *string                 `json:"parent_job_id,omitempty"`
	DurationSeconds *int                    `json:"duration_seconds,omitempty"`
	Params          domain.GenerationParams `json:"params"`
	Metadata        map[string]any          `json:"provider_metadata"`
	QualityScore    *float64                `json:"quality_score,omitempty"`
	CriticReport    *string                 `json:"critic_report,omitempty"`
	CriticMetadata  map[string]any          `json:"critic_metadata,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

func toJobResponse(j *domain.Job) jobResponse {
	return jobResponse{
		ID:              j.ID,
		Type:            j.Type,
		Prompt:          j.Prompt,
		Model:           j.Model,
		Provider:        j.Provider,
		Status:          j.Status,
		Mode:            j.Mode,
		QualityTier:     j.QualityTier,
		ResultURL:       j.ResultURL,
		ErrorMessage:    j.ErrorMessage,
		ParentJobID:     j.ParentJobID,
		DurationSeconds: j.DurationSeconds,
		Params:          j.Params,
		Metadata:        j.Metadata,
		QualityScore:    j.QualityScore,
		CriticReport:    j.CriticReport,
		CriticMetadata:  j.CriticMetadata,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
	}
}

type segmentResponse struct {
	ID              string             `json:"id"`
	Index           int                `json:"segment_index"`
	Type            domain.SegmentType `json:"segment_type"`
	DurationSeconds int                `json:"duration_seconds"`
	SegmentJobID    *string            `json:"segment_job_id,omitempty"`
	Metadata        map[string]any     `json:"metadata"`
	CreatedAt       time.Time          `json:"created_at"`
}

// JobsCreate creates a job and runs it to a terminal status before replying.
func (a *App) JobsCreate(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload: "+err.Error())
		return
	}

	job, err := a.Jobs.Generate(r.Context(), orchestrator.GenerateRequest{
		Type:   req.Type,
		Prompt: req.Prompt,
		Params: req.GenerationParams,
	})
	if err != nil {
		a.fail(w, r, err, job)
		return
	}
	a.json(w, http.StatusCreated, toJobResponse(job))
}

func (a *App) JobGet(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.GetJob(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	a.json(w, http.StatusOK, toJobResponse(job))
}

func (a *App) JobSegments(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	segments, err := a.Jobs.ListSegments(r.Context(), jobID)
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	items := make([]segmentResponse, len(segments))
	for i, s := range segments {
		items[i] = segmentResponse{
			ID:              s.ID,
			Index:           s.Index,
			Type:            s.Type,
			DurationSeconds: s.DurationSeconds,
			SegmentJobID:    s.SegmentJobID,
			Metadata:        s.Metadata,
			CreatedAt:       s.CreatedAt,
		}
	}
	a.json(w, http.StatusOK, map[string]any{"job_id": jobID, "items": items})
}

// JobBundle streams a zip of the stored artifacts of every segment.
func (a *App) JobBundle(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	segments, err := a.Jobs.ListSegments(r.Context(), jobID)
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}

	var assets []zip.Asset
	for _, s := range segments {
		url := segmentURL(s)
		key, ok := a.Assets.KeyFromURL(url)
		if !ok {
			a.Logger.Warn().Str("job_id", jobID).Int("segment", s.Index).Str("url", url).Msg("http: segment artifact not in storage")
			continue
		}
		data, err := a.Assets.Download(r.Context(), key)
		if err != nil {
			a.fail(w, r, err, nil)
			return
		}
		assets = append(assets, zip.Asset{
			Filename: fmt.Sprintf("%02d-%s", s.Index, path.Base(key)),
			Modified: s.CreatedAt,
			Data:     data,
		})
	}
	if len(assets) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "job has no stored segments")
		return
	}

	archive, err := zip.ArchiveAssets(assets)
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=job-%s.zip", jobID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func segmentURL(s domain.Segment) string {
	for _, key := range []string{"image_url", "video_url"} {
		if v, ok := s.Metadata[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// JobCritic scores a completed video job and returns the refreshed job.
func (a *App) JobCritic(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if a.Critic == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "critic is not configured")
		return
	}
	if _, err := a.Critic.Annotate(r.Context(), jobID); err != nil {
		a.fail(w, r, err, nil)
		return
	}
	job, err := a.Jobs.GetJob(r.Context(), jobID)
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	a.json(w, http.StatusOK, toJobResponse(job))
}

type reconcileRequest struct {
	MaxAgeMinutes int `json:"max_age_minutes"`
	Limit         int `json:"limit"`
}

// JobsReconcile fails processing jobs older than the configured age.
func (a *App) JobsReconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
			return
		}
	}
	maxAge := a.StaleAge
	if req.MaxAgeMinutes > 0 {
		maxAge = time.Duration(req.MaxAgeMinutes) * time.Minute
	}
	n, err := a.Jobs.ReconcileStale(r.Context(), maxAge, req.Limit)
	if err != nil {
		a.fail(w, r, err, nil)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"reconciled":      n,
		"max_age_minutes": int(maxAge / time.Minute),
	})
}
