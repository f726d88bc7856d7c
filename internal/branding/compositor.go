// Package branding overlays a brand logo on generated images. Compositing is
// an enhancement: every failure yields the untouched base image plus a warning.
package branding

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"strings"

	"golang.org/x/image/draw"
)

// Position is the corner the logo is anchored to.
type Position string

const (
	TopLeft     Position = "top_left"
	TopRight    Position = "top_right"
	BottomLeft  Position = "bottom_left"
	BottomRight Position = "bottom_right"
)

// ParsePosition maps free-form config values to a Position, defaulting to
// bottom right.
func ParsePosition(v string) Position {
	switch Position(strings.ToLower(strings.TrimSpace(strings.ReplaceAll(v, "-", "_")))) {
	case TopLeft:
		return TopLeft
	case TopRight:
		return TopRight
	case BottomLeft:
		return BottomLeft
	default:
		return BottomRight
	}
}

const (
	DefaultSize   = 0.2
	DefaultMargin = 20
)

// Options controls placement. Size is the logo width relative to the base
// width; Opacity 0 means fully opaque.
type Options struct {
	Position Position
	Size     float64
	Margin   int
	Opacity  float64
}

func (o Options) normalized() Options {
	if o.Position == "" {
		o.Position = BottomRight
	}
	if o.Size <= 0 || o.Size > 1 {
		o.Size = DefaultSize
	}
	if o.Margin < 0 {
		o.Margin = DefaultMargin
	}
	if o.Opacity <= 0 || o.Opacity > 1 {
		o.Opacity = 1
	}
	return o
}

// Result is the output of Composite. Warning is non-empty when the base was
// returned unchanged because of a failure.
type Result struct {
	Data        []byte
	ContentType string
	Applied     bool
	Warning     string
}

// Composite draws logo onto base.
func Composite(base, logo []byte, baseContentType string, opts Options) Result {
	unchanged := func(format string, args ...any) Result {
		return Result{Data: base, ContentType: baseContentType, Warning: fmt.Sprintf(format, args...)}
	}
	if len(logo) == 0 {
		return unchanged("brand logo is empty")
	}
	baseImg, _, err := image.Decode(bytes.NewReader(base))
	if err != nil {
		return unchanged("decode base image: %v", err)
	}
	logoImg, _, err := image.Decode(bytes.NewReader(logo))
	if err != nil {
		return unchanged("decode brand logo: %v", err)
	}
	opts = opts.normalized()

	bounds := baseImg.Bounds()
	lb := logoImg.Bounds()
	targetW := int(float64(bounds.Dx()) * opts.Size)
	if targetW < 1 || lb.Dx() == 0 {
		return unchanged("base image too small for logo")
	}
	targetH := max(1, lb.Dy()*targetW/lb.Dx())
	if targetW+2*opts.Margin > bounds.Dx() || targetH+2*opts.Margin > bounds.Dy() {
		return unchanged("logo does not fit inside %dx%d base", bounds.Dx(), bounds.Dy())
	}

	scaled := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), logoImg, lb, draw.Src, nil)

	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, baseImg, bounds.Min, draw.Src)

	origin := anchor(bounds, targetW, targetH, opts)
	dst := image.Rectangle{Min: origin, Max: origin.Add(image.Pt(targetW, targetH))}
	mask := image.NewUniform(alpha(opts.Opacity))
	draw.DrawMask(out, dst, scaled, image.Point{}, mask, image.Point{}, draw.Over)

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return unchanged("encode composite: %v", err)
	}
	return Result{Data: buf.Bytes(), ContentType: "image/png", Applied: true}
}

func anchor(bounds image.Rectangle, w, h int, opts Options) image.Point {
	left := bounds.Min.X + opts.Margin
	right := bounds.Max.X - opts.Margin - w
	top := bounds.Min.Y + opts.Margin
	bottom := bounds.Max.Y - opts.Margin - h
	switch opts.Position {
	case TopLeft:
		return image.Pt(left, top)
	case TopRight:
		return image.Pt(right, top)
	case BottomLeft:
		return image.Pt(left, bottom)
	default:
		return image.Pt(right, bottom)
	}
}

func alpha(opacity float64) color.Alpha {
	return color.Alpha{A: uint8(opacity*255 + 0.5)}
}
