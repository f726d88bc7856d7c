package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobType enumerates supported generation job categories.
type JobType string

const (
	JobTypeImage JobType = "image"
	JobTypeAudio JobType = "audio"
	JobTypeVideo JobType = "video"
)

// Valid reports whether t is a known job type.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeImage, JobTypeAudio, JobTypeVideo:
		return true
	}
	return false
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobMode tags the orchestration path that produced a job.
type JobMode string

const (
	ModeText2Img          JobMode = "text2img"
	ModeImg2Img           JobMode = "img2img"
	ModeInpaint           JobMode = "inpaint"
	ModeOutpaint          JobMode = "outpaint"
	ModeUpscale           JobMode = "upscale"
	ModeBackgroundRemoval JobMode = "background_removal"
	ModeFaceRef           JobMode = "face_ref"
	ModeText2Video        JobMode = "text2video"
	ModeStoryboard        JobMode = "storyboard"
	ModeOrchestrated      JobMode = "orchestrated"
	ModeScriptedSlideshow JobMode = "scripted_slideshow"
	ModeTTS               JobMode = "tts"
)

// ImageModes lists the modes a caller may request for image jobs.
var ImageModes = []JobMode{ModeText2Img, ModeImg2Img, ModeInpaint, ModeOutpaint, ModeUpscale, ModeBackgroundRemoval, ModeFaceRef}

// QualityTier is a coarse rendering-quality hint carried into prompts and the critic.
type QualityTier string

const (
	QualityStandard       QualityTier = "standard"
	QualityCinematic      QualityTier = "cinematic"
	QualityUltraRealistic QualityTier = "ultra_realistic"
)

// GenerationParams holds the optional caller-supplied options of a job.
type GenerationParams struct {
	Model                     string      `json:"model,omitempty"`
	ReferenceMediaPath        string      `json:"referenceMediaPath,omitempty"`
	Mode                      JobMode     `json:"mode,omitempty"`
	NegativePrompt            string      `json:"negativePrompt,omitempty"`
	Seed                      *int64      `json:"seed,omitempty"`
	Width                     *int        `json:"width,omitempty"`
	Height                    *int        `json:"height,omitempty"`
	AspectRatio               string      `json:"aspectRatio,omitempty"`
	DurationSeconds           *int        `json:"durationSeconds,omitempty"`
	ParentJobID               string      `json:"parentJobId,omitempty"`
	Storyboard                string      `json:"storyboard,omitempty"`
	ShotDescriptions          []string    `json:"shotDescriptions,omitempty"`
	UseBrandLogo              bool        `json:"useBrandLogo,omitempty"`
	AvatarProfileID           string      `json:"avatarProfileId,omitempty"`
	FaceReferencePaths        []string    `json:"faceReferencePaths,omitempty"`
	EnvironmentReferencePaths []string    `json:"environmentReferencePaths,omitempty"`
	FaceStrength              *float64    `json:"faceStrength,omitempty"`
	EnvironmentStrength       *float64    `json:"environmentStrength,omitempty"`
	QualityTier               QualityTier `json:"qualityTier,omitempty"`
	VideoBriefID              string      `json:"videoBriefId,omitempty"`
	EnableFaceLock            bool        `json:"enableFaceLock,omitempty"`
	OrchestrationMode         JobMode     `json:"orchestrationMode,omitempty"`
	VoiceScript               string      `json:"voiceScript,omitempty"`
	ReferenceVoicePaths       []string    `json:"referenceVoicePaths,omitempty"`
	VoiceProfileID            string      `json:"voiceProfileId,omitempty"`
	UseLibrary                bool        `json:"useLibrary,omitempty"`
	LibraryLocation           string      `json:"libraryLocation,omitempty"`
	LibraryShotType           string      `json:"libraryShotType,omitempty"`
}

// HasStoryboard reports whether shot or storyboard data was supplied.
func (p GenerationParams) HasStoryboard() bool {
	return len(p.ShotDescriptions) > 0 || p.Storyboard != ""
}

// Job is a single tracked generation request.
type Job struct {
	ID                 string
	Type               JobType
	Prompt             string
	Model              string
	Provider           string
	Status             JobStatus
	Mode               JobMode
	QualityTier        QualityTier
	ResultURL          *string
	ErrorMessage       *string
	ParentJobID        *string
	ReferenceMediaPath string
	VideoBriefID       string
	DurationSeconds    *int
	Params             GenerationParams
	Metadata           map[string]any
	QualityScore       *float64
	CriticReport       *string
	CriticMetadata     map[string]any
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// PrepareNew stamps a job that is about to be inserted. Whatever the caller
// set, it starts in processing with no outcome; the id and creation time are
// filled only when missing.
func (j *Job) PrepareNew(now time.Time) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	j.Status = JobStatusProcessing
	j.ResultURL = nil
	j.ErrorMessage = nil
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = j.CreatedAt
	if j.Metadata == nil {
		j.Metadata = map[string]any{}
	}
}

// Segment is one scene of a decomposed multi-part video job.
type Segment struct {
	ID              string
	JobID           string
	Index           int
	Type            SegmentType
	DurationSeconds int
	SegmentJobID    *string
	Metadata        map[string]any
	CreatedAt       time.Time
}

// SegmentType distinguishes generated scenes from library footage.
type SegmentType string

const (
	SegmentAI        SegmentType = "ai_segment"
	SegmentRealAsset SegmentType = "real_asset"
)

// AvatarProfile stores reusable identity and environment references.
type AvatarProfile struct {
	ID                        string
	Name                      string
	FaceReferencePaths        []string
	EnvironmentReferencePaths []string
	FaceStrength              *float64
	EnvironmentStrength       *float64
	PhysicalDescription       string
}

// LibraryAsset is a pre-recorded clip that orchestrated videos can open with.
type LibraryAsset struct {
	ID              string
	StoragePath     string
	Location        string
	ShotType        string
	DurationSeconds *int
	CreatedAt       time.Time
}

// LibraryQuery filters library assets; empty fields match anything.
type LibraryQuery struct {
	Location string
	ShotType string
}

// VoiceProfile groups the voice samples used to condition narration.
type VoiceProfile struct {
	ID                 string
	Name               string
	ReferenceMediaPath string
	SamplePaths        []string
}

// ReferencePaths returns the main reference followed by the samples, trimmed
// and without duplicates.
func (v VoiceProfile) ReferencePaths() []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range append([]string{v.ReferenceMediaPath}, v.SamplePaths...) {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string { return &s }

// Deref returns the pointed string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
