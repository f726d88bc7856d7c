package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"studio/internal/domain"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func statusStyle(s domain.JobStatus) lipgloss.Style {
	switch s {
	case domain.JobStatusCompleted:
		return okStyle
	case domain.JobStatusFailed:
		return errorStyle
	default:
		return warnStyle
	}
}

func renderJob(job *domain.Job) string {
	rows := [][2]string{
		{"type", string(job.Type)},
		{"status", statusStyle(job.Status).Render(string(job.Status))},
		{"model", job.Model},
		{"provider", job.Provider},
	}
	if job.Mode != "" {
		rows = append(rows, [2]string{"mode", string(job.Mode)})
	}
	if job.ResultURL != nil {
		rows = append(rows, [2]string{"result", *job.ResultURL})
	}
	if job.ErrorMessage != nil {
		rows = append(rows, [2]string{"error", errorStyle.Render(*job.ErrorMessage)})
		if hint, ok := job.Metadata["error_hint"].(string); ok && hint != "" {
			rows = append(rows, [2]string{"hint", hint})
		}
	}
	if job.QualityScore != nil {
		rows = append(rows, [2]string{"score", fmt.Sprintf("%.0f / 100", *job.QualityScore*100)})
	}

	lines := []string{titleStyle.Render("job " + job.ID)}
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("%s %s", mutedStyle.Render(fmt.Sprintf("%-9s", r[0])), r[1]))
	}
	if job.CriticReport != nil {
		lines = append(lines, "", *job.CriticReport)
	}
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderSegments(segments []domain.Segment) string {
	if len(segments) == 0 {
		return mutedStyle.Render("no segments")
	}
	lines := []string{titleStyle.Render(fmt.Sprintf("%d segment(s)", len(segments)))}
	for _, s := range segments {
		url := ""
		for _, key := range []string{"image_url", "video_url"} {
			if v, ok := s.Metadata[key].(string); ok && v != "" {
				url = v
				break
			}
		}
		lines = append(lines, fmt.Sprintf("%s %-5s %3ds %s",
			mutedStyle.Render(fmt.Sprintf("#%02d", s.Index)),
			s.Type,
			s.DurationSeconds,
			url,
		))
	}
	return strings.Join(lines, "\n")
}
