// Package synthetic renders deterministic placeholder media so the pipeline
// can run end to end without provider credentials.
package synthetic

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"studio/internal/providers"
)

// Provider implements providers.Provider without network access.
type Provider struct {
	logger zerolog.Logger
}

// New creates a synthetic provider.
func New(logger *zerolog.Logger) *Provider {
	l := zerolog.Nop()
	if logger != nil {
		l = *logger
	}
	return &Provider{logger: l}
}

func (p *Provider) Name() string { return "synthetic" }

// Invoke returns inline media derived from a hash of the model and text.
func (p *Provider) Invoke(ctx context.Context, modelID string, payload providers.Payload) (*providers.MediaResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seed := deterministicSeed(modelID, payload.Modality, payload.Text, payload.Seed)

	var res *providers.MediaResult
	switch payload.Modality {
	case providers.ModalityAudio:
		res = &providers.MediaResult{Data: placeholder("audio", seed, payload.Text), ContentType: "audio/mpeg"}
	case providers.ModalityVideo:
		res = &providers.MediaResult{Data: placeholder("video", seed, payload.Text), ContentType: "video/mp4"}
	default:
		width, height := dimensions(payload)
		data, err := renderImage(width, height, seed)
		if err != nil {
			return nil, err
		}
		res = &providers.MediaResult{Data: data, ContentType: "image/png"}
	}

	p.logger.Debug().
		Str("model", modelID).
		Str("modality", string(payload.Modality)).
		Str("seed", seed).
		Msg("synthetic: generated placeholder media")
	return res, nil
}

func dimensions(payload providers.Payload) (int, int) {
	if payload.Width != nil && payload.Height != nil && *payload.Width > 0 && *payload.Height > 0 {
		return min(*payload.Width, 2048), min(*payload.Height, 2048)
	}
	return normalizeAspect(payload.AspectRatio)
}

func renderImage(width, height int, seed string) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{colorFromSeed(seed, 0)}, image.Point{}, draw.Src)

	accent := colorFromSeed(seed, 1)
	stripe := max(16, height/12)
	for y := 0; y < height; y += stripe * 2 {
		draw.Draw(img, image.Rect(0, y, width, min(height, y+stripe)), &image.Uniform{accent}, image.Point{}, draw.Over)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("synthetic: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func placeholder(kind, seed, text string) []byte {
	lines := []string{
		"synthetic " + kind,
		"seed: " + seed,
		"prompt: " + strings.TrimSpace(firstLine(text)),
	}
	return []byte(strings.Join(lines, "\n"))
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

func colorFromSeed(seed string, shift int) color.RGBA {
	doubled := seed + seed
	start := (shift * 6) % len(seed)
	segment := doubled[start : start+6]
	return color.RGBA{R: hexByte(segment[0:2]), G: hexByte(segment[2:4]), B: hexByte(segment[4:6]), A: 255}
}

func hexByte(s string) uint8 {
	v, err := strconv.ParseUint(s, 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		if p, ok := part.(*int64); ok && p != nil {
			part = *p
		}
		fmt.Fprintf(hasher, "%v|", part)
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}

// normalizeAspect picks a small canvas for the requested ratio.
func normalizeAspect(aspect string) (int, int) {
	switch strings.TrimSpace(strings.ToLower(aspect)) {
	case "16:9":
		return 640, 360
	case "9:16":
		return 360, 640
	case "4:5":
		return 512, 640
	case "3:2":
		return 600, 400
	default:
		return 512, 512
	}
}
