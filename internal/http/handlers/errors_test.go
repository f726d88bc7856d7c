package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"studio/internal/domain"
	"studio/internal/orchestrator"
	"studio/internal/providers"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", domain.Invalid("prompt", "is required"), http.StatusBadRequest, "validation_error"},
		{"not found", fmt.Errorf("job x: %w", domain.ErrNotFound), http.StatusNotFound, "not_found"},
		{"critic", domain.ErrCriticNotApplicable, http.StatusUnprocessableEntity, "critic_not_applicable"},
		{"conflict", domain.ErrConflict, http.StatusConflict, "conflict"},
		{"slideshow", fmt.Errorf("%w: scene 2 failed", domain.ErrPartialFailure), http.StatusBadGateway, "partial_failure"},
		{"provider", providers.NewProviderError(404, "No endpoints found for acme/x", "acme/x", providers.ModalityImage), http.StatusBadGateway, "model_not_found"},
		{"no media", orchestrator.ErrNoMedia, http.StatusBadGateway, "no_media"},
		{"storage", fmt.Errorf("upload: %w", domain.ErrStorage), http.StatusInternalServerError, "storage_error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := classify(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, body.Code)
		})
	}
}

func TestClassifyKeepsProviderBodyVerbatim(t *testing.T) {
	_, body := classify(providers.NewProviderError(400, `{"error":"bad output modality"}`, "acme/x", providers.ModalityVideo))
	assert.Equal(t, `{"error":"bad output modality"}`, body.Message)
}
