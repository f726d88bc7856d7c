package synthetic

import (
	"bytes"
	"context"
	"image/png"
	"testing"

	"studio/internal/providers"
)

func TestInvokeImageIsDeterministicPNG(t *testing.T) {
	p := New(nil)
	payload := providers.Payload{Modality: providers.ModalityImage, Text: "studio portrait", AspectRatio: "16:9"}

	first, err := p.Invoke(context.Background(), "m", payload)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	second, _ := p.Invoke(context.Background(), "m", payload)
	if !bytes.Equal(first.Data, second.Data) {
		t.Fatal("expected identical output for identical input")
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(first.Data))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if cfg.Width != 640 || cfg.Height != 360 {
		t.Fatalf("unexpected size %dx%d", cfg.Width, cfg.Height)
	}
}

func TestInvokeVideoAndAudio(t *testing.T) {
	p := New(nil)
	for modality, contentType := range map[providers.Modality]string{
		providers.ModalityVideo: "video/mp4",
		providers.ModalityAudio: "audio/mpeg",
	} {
		res, err := p.Invoke(context.Background(), "m", providers.Payload{Modality: modality, Text: "hello\nworld"})
		if err != nil {
			t.Fatalf("%s: %v", modality, err)
		}
		if res.Empty() || res.ContentType != contentType {
			t.Fatalf("%s: unexpected result %+v", modality, res)
		}
	}
}

func TestInvokeHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(nil).Invoke(ctx, "m", providers.Payload{}); err == nil {
		t.Fatal("expected context error")
	}
}
