package providers

import (
	"errors"
	"testing"

	"studio/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		modality Modality
		want     ErrorCode
	}{
		{"model not found", `{"error":{"message":"Model foo/bar not found"}}`, ModalityVideo, CodeModelNotFound},
		{"no endpoints", `No endpoints found for foo/bar.`, ModalityImage, CodeModelNotFound},
		{"audio output", `This model does not support output modality audio`, ModalityAudio, CodeModalityUnsupported},
		{"other modality wording", `requested output image is not supported`, ModalityAudio, CodeProviderError},
		{"generic", `rate limited`, ModalityImage, CodeProviderError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, hint := Classify(tc.body, "foo/bar", tc.modality)
			if code != tc.want {
				t.Fatalf("code = %s, want %s", code, tc.want)
			}
			if code != CodeProviderError && hint == "" {
				t.Fatal("expected an operator hint")
			}
		})
	}
}

func TestProviderErrorMessageIsVerbatimBody(t *testing.T) {
	err := NewProviderError(400, "  bad request body \n", "m", ModalityImage)
	if err.Message() != "bad request body" {
		t.Fatalf("unexpected message %q", err.Message())
	}
	if !errors.Is(err, domain.ErrProviderFailure) {
		t.Fatal("provider errors must unwrap to ErrProviderFailure")
	}
	empty := NewProviderError(502, "", "m", ModalityImage)
	if empty.Message() != "provider status 502" {
		t.Fatalf("unexpected message %q", empty.Message())
	}
}

func TestMediaResultEmpty(t *testing.T) {
	var nilResult *MediaResult
	if !nilResult.Empty() || !(&MediaResult{}).Empty() {
		t.Fatal("expected empty results")
	}
	if (&MediaResult{URL: "https://x"}).Empty() || (&MediaResult{Data: []byte{1}}).Empty() {
		t.Fatal("expected non-empty results")
	}
}
