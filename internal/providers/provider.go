// Package providers defines the contract between the orchestrator and the
// generative model backends.
package providers

import (
	"context"
	"fmt"
	"strings"

	"studio/internal/domain"
)

// Modality selects the kind of media a request asks for.
type Modality string

const (
	ModalityImage Modality = "image"
	ModalityAudio Modality = "audio"
	ModalityVideo Modality = "video"
)

// ModalityFor maps a job type to the requested output modality.
func ModalityFor(t domain.JobType) Modality {
	switch t {
	case domain.JobTypeAudio:
		return ModalityAudio
	case domain.JobTypeVideo:
		return ModalityVideo
	default:
		return ModalityImage
	}
}

// InputImage is a conditioning image sent alongside the text.
type InputImage struct {
	URL         string
	Data        []byte
	ContentType string
}

// Payload is the structured request for a single model invocation.
type Payload struct {
	Modality    Modality
	Text        string
	InputImages []InputImage
	Seed        *int64
	AspectRatio string
	Width       *int
	Height      *int
	Duration    int
}

// MediaResult is either a fetchable URL or inline bytes. A zero value means
// the provider answered without usable media.
type MediaResult struct {
	URL         string
	Data        []byte
	ContentType string
}

// Empty reports whether the result carries no media.
func (m *MediaResult) Empty() bool {
	return m == nil || (m.URL == "" && len(m.Data) == 0)
}

// Provider invokes a generative model. Implementations must not retry.
type Provider interface {
	Name() string
	Invoke(ctx context.Context, modelID string, payload Payload) (*MediaResult, error)
}

// ErrorCode classifies provider failures into actionable buckets.
type ErrorCode string

const (
	CodeProviderError       ErrorCode = "provider_error"
	CodeModelNotFound       ErrorCode = "model_not_found"
	CodeModalityUnsupported ErrorCode = "modality_unsupported"
)

// ProviderError is returned when the provider rejects or fails a request.
type ProviderError struct {
	Status   int
	Body     string
	Model    string
	Modality Modality
	Code     ErrorCode
	Hint     string
}

// NewProviderError builds a classified error from a raw provider response.
func NewProviderError(status int, body, model string, modality Modality) *ProviderError {
	e := &ProviderError{Status: status, Body: strings.TrimSpace(body), Model: model, Modality: modality}
	e.Code, e.Hint = Classify(e.Body, model, modality)
	return e
}

func (e *ProviderError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("provider status %d", e.Status)
	}
	return fmt.Sprintf("provider status %d: %s", e.Status, e.Body)
}

func (e *ProviderError) Unwrap() error { return domain.ErrProviderFailure }

// Message is the text persisted on the failed job.
func (e *ProviderError) Message() string {
	if e.Body != "" {
		return e.Body
	}
	return e.Error()
}

// Classify inspects a provider error body and returns its code and an
// operator hint.
func Classify(body, model string, modality Modality) (ErrorCode, string) {
	lower := strings.ToLower(body)
	switch {
	case strings.Contains(lower, "no endpoints found"),
		strings.Contains(lower, "model") && strings.Contains(lower, "not found"):
		return CodeModelNotFound, fmt.Sprintf("model %q is not available on the provider; set a valid default %s model", model, modality)
	case (strings.Contains(lower, "output") || strings.Contains(lower, "modalit")) && strings.Contains(lower, string(modality)):
		return CodeModalityUnsupported, fmt.Sprintf("model %q does not produce %s output; pick a model that supports it", model, modality)
	}
	return CodeProviderError, ""
}
