// Package instruction assembles provider request text from named constraint
// blocks. Each builder returns "" when it has nothing to add.
package instruction

import (
	"fmt"
	"strings"

	"studio/internal/domain"
)

// StrengthLabel turns a 0..1 lock strength into guidance wording.
func StrengthLabel(v float64) string {
	switch {
	case v >= 0.6:
		return "very strict"
	case v >= 0.3:
		return "strong"
	default:
		return "soft"
	}
}

// IdentityLock asks the model to preserve the face shown in the references.
func IdentityLock(strength *float64, refs int) string {
	if refs == 0 {
		return ""
	}
	label := "strong"
	if strength != nil {
		label = StrengthLabel(*strength)
	}
	return fmt.Sprintf("Identity lock (%s): the first %d reference image(s) show the same person. Keep face shape, skin tone, eyes and hairline consistent with them.", label, refs)
}

// EnvironmentLock asks the model to keep the setting of the references.
func EnvironmentLock(strength *float64, refs int) string {
	if refs == 0 {
		return ""
	}
	label := "strong"
	if strength != nil {
		label = StrengthLabel(*strength)
	}
	return fmt.Sprintf("Environment lock (%s): keep the location, lighting and key props of the %d environment reference image(s).", label, refs)
}

// Mode returns the instruction block for an image editing mode.
func Mode(mode domain.JobMode) string {
	switch mode {
	case domain.ModeBackgroundRemoval:
		return "Task: remove the background of the reference image. Keep the subject untouched and output it on a clean transparent or plain background."
	case domain.ModeImg2Img:
		return "Task: transform the reference image following the prompt while keeping its composition."
	case domain.ModeInpaint:
		return "Task: inpaint. Only modify the masked or described region of the reference image and blend it seamlessly with the rest."
	case domain.ModeOutpaint:
		return "Task: outpaint. Extend the reference image beyond its borders, continuing perspective, lighting and style."
	case domain.ModeUpscale:
		return "Task: upscale the reference image. Increase resolution and sharpness without changing content."
	}
	return ""
}

// NegativePrompt lists what the output must avoid.
func NegativePrompt(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return "Avoid: " + s
}

// GenerationParams renders resolution, aspect ratio, duration and seed.
func GenerationParams(p domain.GenerationParams, durationSeconds int) string {
	var parts []string
	switch {
	case p.Width != nil && p.Height != nil:
		parts = append(parts, fmt.Sprintf("resolution %dx%d", *p.Width, *p.Height))
	case p.AspectRatio != "":
		parts = append(parts, "aspect ratio "+p.AspectRatio)
	}
	if durationSeconds > 0 {
		parts = append(parts, fmt.Sprintf("duration %ds", durationSeconds))
	}
	if p.Seed != nil {
		parts = append(parts, fmt.Sprintf("seed %d", *p.Seed))
	}
	if len(parts) == 0 {
		return ""
	}
	return "Output: " + strings.Join(parts, ", ") + "."
}

// Quality maps a quality tier to rendering guidance.
func Quality(tier domain.QualityTier) string {
	switch tier {
	case domain.QualityUltraRealistic:
		return "Quality: ultra realistic, natural skin texture, physically plausible lighting, no artificial smoothing."
	case domain.QualityCinematic:
		return "Quality: cinematic grading, shallow depth of field, deliberate camera movement."
	}
	return ""
}

// Coherence keeps subjects stable across frames of a video.
func Coherence(faceLock bool) string {
	block := "Temporal coherence: keep subjects, clothing and lighting stable from frame to frame."
	if faceLock {
		block += " Face lock: the main character's face must not drift between frames."
	}
	return block
}

// Brand adds usage rules when the brand logo is applied after generation.
func Brand(useLogo bool) string {
	if !useLogo {
		return ""
	}
	return "Branding: leave a clear corner area free of important detail; a brand logo is added afterwards. Do not draw logos or text yourself."
}

// Storyboard numbers the planned shots.
func Storyboard(scenes []string) string {
	if len(scenes) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Storyboard:")
	for i, s := range scenes {
		fmt.Fprintf(&b, "\n%d. %s", i+1, s)
	}
	return b.String()
}

// References lists reference URLs under a label with a usage note.
func References(label, usage string, urls []string) string {
	var kept []string
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			kept = append(kept, u)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(label)
	b.WriteString(":")
	for _, u := range kept {
		b.WriteString("\n- ")
		b.WriteString(u)
	}
	if usage != "" {
		b.WriteString("\n")
		b.WriteString(usage)
	}
	return b.String()
}

// Avatar carries the avatar's physical description.
func Avatar(description string) string {
	description = strings.TrimSpace(description)
	if description == "" {
		return ""
	}
	return "Character: " + description
}

// Voice renders the narration script for audio jobs.
func Voice(script string) string {
	script = strings.TrimSpace(script)
	if script == "" {
		return ""
	}
	return "Script to speak exactly:\n" + script
}

// Compose joins the prompt and the non-empty blocks.
func Compose(prompt string, blocks ...string) string {
	parts := []string{strings.TrimSpace(prompt)}
	for _, b := range blocks {
		if b = strings.TrimSpace(b); b != "" {
			parts = append(parts, b)
		}
	}
	return strings.Join(parts, "\n\n")
}
