package openrouter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/internal/domain"
	"studio/internal/providers"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Options{APIKey: "test-key", BaseURL: srv.URL, Title: "studio"})
	require.NoError(t, err)
	return client
}

func TestInvokeImageInlineData(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	var captured map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "studio", r.Header.Get("X-Title"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"done","images":[{"type":"image_url","image_url":{"url":"data:image/png;base64,`+base64.StdEncoding.EncodeToString(png)+`"}}]}}]}`)
	})

	res, err := client.Invoke(context.Background(), "img-model", providers.Payload{
		Modality:    providers.ModalityImage,
		Text:        "studio portrait",
		AspectRatio: "1:1",
		InputImages: []providers.InputImage{{URL: "https://cdn.example.com/face.png"}},
	})
	require.NoError(t, err)
	assert.Equal(t, png, res.Data)
	assert.Equal(t, "image/png", res.ContentType)

	assert.Equal(t, "img-model", captured["model"])
	assert.Equal(t, []any{"image", "text"}, captured["modalities"])
	msgs := captured["messages"].([]any)
	content := msgs[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 2)
	assert.Equal(t, "image_url", content[1].(map[string]any)["type"])
}

func TestInvokeVideoURLPart(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":[{"type":"text","text":"ok"},{"type":"video","url":"https://provider.example.com/v.mp4"}]}}]}`)
	})
	res, err := client.Invoke(context.Background(), "video-model", providers.Payload{Modality: providers.ModalityVideo, Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, "https://provider.example.com/v.mp4", res.URL)
	assert.Equal(t, "video/mp4", res.ContentType)
}

func TestInvokeNoMedia(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"I cannot make videos"}}]}`)
	})
	res, err := client.Invoke(context.Background(), "m", providers.Payload{Modality: providers.ModalityVideo})
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestInvokeModelNotFoundIsClassifiedAndNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"message":"Model x/unknown not found","code":404}}`)
	})
	_, err := client.Invoke(context.Background(), "x/unknown", providers.Payload{Modality: providers.ModalityImage})
	require.Error(t, err)

	var perr *providers.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusNotFound, perr.Status)
	assert.Equal(t, providers.CodeModelNotFound, perr.Code)
	assert.Contains(t, perr.Body, "not found")
	assert.True(t, errors.Is(err, domain.ErrProviderFailure))
	assert.EqualValues(t, 1, calls.Load())
}

func TestInvokeServerErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"message":"upstream overloaded"}}`)
	})
	_, err := client.Invoke(context.Background(), "m", providers.Payload{Modality: providers.ModalityAudio})
	var perr *providers.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, providers.CodeProviderError, perr.Code)
	assert.EqualValues(t, 1, calls.Load())
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(Options{})
	require.Error(t, err)
}
