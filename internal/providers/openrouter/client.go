// Package openrouter implements providers.Provider over the OpenRouter
// chat-completions API.
package openrouter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"

	"studio/internal/providers"
)

const DefaultBaseURL = "https://openrouter.ai/api/v1/"

// Options controls how the OpenRouter client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Referer    string
	Title      string
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// Client sends one chat-completions request per Invoke and extracts the
// first media part of the answer.
type Client struct {
	api    openai.Client
	logger zerolog.Logger
}

// NewClient constructs an OpenRouter client. SDK-level retries are disabled;
// retry policy belongs to the caller.
func NewClient(opts Options) (*Client, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, errors.New("openrouter: api key is required")
	}
	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	if opts.Referer != "" {
		reqOpts = append(reqOpts, option.WithHeader("HTTP-Referer", opts.Referer))
	}
	if opts.Title != "" {
		reqOpts = append(reqOpts, option.WithHeader("X-Title", opts.Title))
	}

	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Client{api: openai.NewClient(reqOpts...), logger: logger}, nil
}

// Name identifies the provider on persisted jobs.
func (c *Client) Name() string { return "openrouter" }

// Invoke performs a single completion call for modelID.
func (c *Client) Invoke(ctx context.Context, modelID string, payload providers.Payload) (*providers.MediaResult, error) {
	req := buildRequest(modelID, payload)

	var resp chatResponse
	if err := c.api.Post(ctx, "chat/completions", req, &resp); err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			perr := providers.NewProviderError(apiErr.StatusCode, errorBody(apiErr), modelID, payload.Modality)
			c.logger.Warn().
				Int("status", perr.Status).
				Str("model", modelID).
				Str("code", string(perr.Code)).
				Msg("openrouter: request rejected")
			return nil, perr
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("openrouter: %w", err)
	}

	media, err := extractMedia(resp, payload.Modality)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().
		Str("model", modelID).
		Str("modality", string(payload.Modality)).
		Bool("media", !media.Empty()).
		Msg("openrouter: completion received")
	return media, nil
}

func errorBody(apiErr *openai.Error) string {
	if apiErr.Response != nil && apiErr.Response.Body != nil {
		if data, err := io.ReadAll(apiErr.Response.Body); err == nil && len(bytes.TrimSpace(data)) > 0 {
			return string(data)
		}
	}
	if raw := apiErr.RawJSON(); raw != "" {
		return raw
	}
	return apiErr.Error()
}

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []requestMessage `json:"messages"`
	Modalities  []string         `json:"modalities,omitempty"`
	Seed        *int64           `json:"seed,omitempty"`
	ImageConfig *imageConfig     `json:"image_config,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

type requestMessage struct {
	Role    string        `json:"role"`
	Content []requestPart `json:"content"`
}

type requestPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *urlField `json:"image_url,omitempty"`
}

type urlField struct {
	URL string `json:"url"`
}

func buildRequest(modelID string, payload providers.Payload) chatRequest {
	parts := []requestPart{{Type: "text", Text: payload.Text}}
	for _, img := range payload.InputImages {
		u := img.URL
		if len(img.Data) > 0 {
			u = dataURL(img.ContentType, img.Data)
		}
		if u == "" {
			continue
		}
		parts = append(parts, requestPart{Type: "image_url", ImageURL: &urlField{URL: u}})
	}

	req := chatRequest{
		Model:    modelID,
		Messages: []requestMessage{{Role: "user", Content: parts}},
		Seed:     payload.Seed,
	}
	switch payload.Modality {
	case providers.ModalityImage:
		req.Modalities = []string{"image", "text"}
		if payload.AspectRatio != "" {
			req.ImageConfig = &imageConfig{AspectRatio: payload.AspectRatio}
		}
	case providers.ModalityAudio:
		req.Modalities = []string{"audio"}
	}
	return req
}

type chatResponse struct {
	Choices []struct {
		Message responseMessage `json:"message"`
	} `json:"choices"`
}

type responseMessage struct {
	Content json.RawMessage `json:"content"`
	Images  []responsePart  `json:"images"`
	Audio   *struct {
		Data string `json:"data"`
		URL  string `json:"url"`
	} `json:"audio"`
}

type responsePart struct {
	Type     string    `json:"type"`
	URL      string    `json:"url"`
	Data     string    `json:"data"`
	MimeType string    `json:"mime_type"`
	ImageURL *urlField `json:"image_url"`
	VideoURL *urlField `json:"video_url"`
}

func extractMedia(resp chatResponse, modality providers.Modality) (*providers.MediaResult, error) {
	if len(resp.Choices) == 0 {
		return &providers.MediaResult{}, nil
	}
	msg := resp.Choices[0].Message

	var parts []responsePart
	if trimmed := bytes.TrimSpace(msg.Content); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return nil, fmt.Errorf("openrouter: decode content parts: %w", err)
		}
	}

	switch modality {
	case providers.ModalityImage:
		for _, img := range msg.Images {
			if img.ImageURL != nil && img.ImageURL.URL != "" {
				return fromLocator(img.ImageURL.URL, "image/png")
			}
		}
		return firstPart(parts, "image/png", "image", "image_url", "output_image")
	case providers.ModalityAudio:
		if msg.Audio != nil {
			if msg.Audio.URL != "" {
				return fromLocator(msg.Audio.URL, "audio/mpeg")
			}
			if msg.Audio.Data != "" {
				return fromBase64(msg.Audio.Data, "audio/mpeg")
			}
		}
		return firstPart(parts, "audio/mpeg", "audio", "output_audio")
	default:
		return firstPart(parts, "video/mp4", "video", "video_url", "output_video")
	}
}

func firstPart(parts []responsePart, fallbackType string, types ...string) (*providers.MediaResult, error) {
	for _, p := range parts {
		if !slices.Contains(types, p.Type) {
			continue
		}
		contentType := fallbackType
		if p.MimeType != "" {
			contentType = p.MimeType
		}
		switch {
		case p.URL != "":
			return fromLocator(p.URL, contentType)
		case p.ImageURL != nil && p.ImageURL.URL != "":
			return fromLocator(p.ImageURL.URL, contentType)
		case p.VideoURL != nil && p.VideoURL.URL != "":
			return fromLocator(p.VideoURL.URL, contentType)
		case p.Data != "":
			return fromLocator(p.Data, contentType)
		}
	}
	return &providers.MediaResult{}, nil
}

// fromLocator accepts a remote URL, a data URL or bare base64.
func fromLocator(v, contentType string) (*providers.MediaResult, error) {
	switch {
	case strings.HasPrefix(v, "http://"), strings.HasPrefix(v, "https://"):
		return &providers.MediaResult{URL: v, ContentType: contentType}, nil
	case strings.HasPrefix(v, "data:"):
		mime, data, err := decodeDataURL(v)
		if err != nil {
			return nil, err
		}
		if mime == "" {
			mime = contentType
		}
		return &providers.MediaResult{Data: data, ContentType: mime}, nil
	default:
		return fromBase64(v, contentType)
	}
}

func fromBase64(v, contentType string) (*providers.MediaResult, error) {
	data, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("openrouter: decode inline media: %w", err)
	}
	return &providers.MediaResult{Data: data, ContentType: contentType}, nil
}

func decodeDataURL(v string) (string, []byte, error) {
	header, encoded, ok := strings.Cut(strings.TrimPrefix(v, "data:"), ",")
	if !ok {
		return "", nil, errors.New("openrouter: malformed data url")
	}
	mime, _, _ := strings.Cut(header, ";")
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("openrouter: decode data url: %w", err)
	}
	return mime, data, nil
}

func dataURL(contentType string, data []byte) string {
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
