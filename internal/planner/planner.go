// Package planner decomposes a video request into an ordered list of scenes
// with allotted durations.
package planner

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	// MaxScenes caps the number of scenes per job; extra descriptions are dropped.
	MaxScenes = 8
	// DefaultDurationSeconds applies when the caller gives no usable duration.
	DefaultDurationSeconds = 10
	// MaxDurationSeconds is the longest total duration accepted.
	MaxDurationSeconds = 60
)

// Input carries the scene sources in priority order.
type Input struct {
	ShotDescriptions []string
	Storyboard       string
	Prompt           string
	TotalSeconds     int
}

// Scene is one planned segment.
type Scene struct {
	Index           int
	Description     string
	DurationSeconds int
}

// NormalizeDuration maps a missing or non-positive duration to the default
// and clamps long requests.
func NormalizeDuration(seconds *int) int {
	if seconds == nil || *seconds < 1 {
		return DefaultDurationSeconds
	}
	if *seconds > MaxDurationSeconds {
		return MaxDurationSeconds
	}
	return *seconds
}

// Descriptions returns the scene descriptions for in, before durations are
// assigned: the shot list when present, else storyboard lines, else the
// prompt as a single scene.
func Descriptions(in Input) []string {
	descs := clean(in.ShotDescriptions)
	if len(descs) == 0 {
		descs = clean(strings.Split(in.Storyboard, "\n"))
	}
	if len(descs) == 0 {
		descs = []string{normalize(in.Prompt)}
	}
	if len(descs) > MaxScenes {
		descs = descs[:MaxScenes]
	}
	return descs
}

// Plan returns the ordered scenes for in. Durations are allotted greedily so
// that they sum exactly to the total and none is shorter than one second.
func Plan(in Input) []Scene {
	total := in.TotalSeconds
	if total < 1 {
		total = DefaultDurationSeconds
	}
	descs := Descriptions(in)
	if len(descs) > total {
		descs = descs[:total]
	}

	scenes := make([]Scene, len(descs))
	remaining := total
	for i, desc := range descs {
		left := len(descs) - i
		d := remaining
		if left > 1 {
			d = max(1, remaining/left)
		}
		scenes[i] = Scene{Index: i, Description: desc, DurationSeconds: d}
		remaining -= d
	}
	return scenes
}

// TotalDuration sums the scene durations.
func TotalDuration(scenes []Scene) int {
	sum := 0
	for _, s := range scenes {
		sum += s.DurationSeconds
	}
	return sum
}

func clean(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if v := normalize(line); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func normalize(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
