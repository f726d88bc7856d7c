package handlers

import (
	"errors"
	"net/http"

	"studio/internal/domain"
	"studio/internal/orchestrator"
	"studio/internal/providers"
)

// fail maps err to a status code and writes the error body. job is the
// stored job when the failure happened after creation.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error, job *domain.Job) {
	status, body := classify(err)
	if job != nil {
		body.JobID = job.ID
		if body.Hint == "" {
			if hint, ok := job.Metadata["error_hint"].(string); ok {
				body.Hint = hint
			}
		}
	}
	event := a.Logger.Warn()
	if status >= http.StatusInternalServerError {
		event = a.Logger.Error()
	}
	event.Err(err).
		Str("path", r.URL.Path).
		Int("status", status).
		Str("code", body.Code).
		Str("job_id", body.JobID).
		Msg("http: request failed")
	a.json(w, status, map[string]any{"error": body})
}

func classify(err error) (int, errorBody) {
	var verr *domain.ValidationError
	var perr *providers.ProviderError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, errorBody{Code: "validation_error", Message: verr.Error()}
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, errorBody{Code: "validation_error", Message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorBody{Code: "not_found", Message: err.Error()}
	case errors.Is(err, domain.ErrCriticNotApplicable):
		return http.StatusUnprocessableEntity, errorBody{Code: "critic_not_applicable", Message: err.Error()}
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, errorBody{Code: "conflict", Message: err.Error()}
	case errors.Is(err, domain.ErrPartialFailure):
		return http.StatusBadGateway, errorBody{Code: "partial_failure", Message: err.Error()}
	case errors.As(err, &perr):
		return http.StatusBadGateway, errorBody{Code: string(perr.Code), Message: perr.Message(), Hint: perr.Hint}
	case errors.Is(err, orchestrator.ErrNoMedia):
		return http.StatusBadGateway, errorBody{Code: "no_media", Message: err.Error()}
	case errors.Is(err, domain.ErrProviderFailure):
		return http.StatusBadGateway, errorBody{Code: string(providers.CodeProviderError), Message: err.Error()}
	case errors.Is(err, domain.ErrStorage):
		return http.StatusInternalServerError, errorBody{Code: "storage_error", Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorBody{Code: "internal", Message: "internal error"}
	}
}
