package ui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/austinkregel/local-media/resonanced/internal/cli"
)

var (
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7B2FBE")).
			Padding(0, 1).
			Width(60)
)

// renderProcessingView renders the main processing view
func renderProcessingView(m Model) string {
	var b strings.Builder

	b.WriteString(renderHeader(m))
	b.WriteString("\n\n")

	for _, file := range m.Files {
		b.WriteString(renderFileEntry(file))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(boxStyle.Render(fmt.Sprintf("%s\n%d of %d complete (%d failed)",
		renderProgressBar(m.Progress(), 40), m.CompletedFiles, m.TotalFiles, m.FailedFiles)))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("q to quit"))

	return b.String()
}

func renderHeader(m Model) string {
	title := cli.TitleStyle.UnsetMarginBottom().Render("resonanced")
	subtitle := mutedStyle.Italic(true).Render(fmt.Sprintf("Analyzing %d file(s)", m.TotalFiles))
	return title + "\n" + subtitle
}

// renderFileEntry renders a single file entry in the queue
func renderFileEntry(file FileProgress) string {
	name := filepath.Base(file.Path)

	switch file.State {
	case StateAnalyzed, StateSkipped:
		icon := lipgloss.NewStyle().Foreground(lipgloss.Color("#00AA00")).Render("✓")
		summary := "cached"
		if file.Result != nil {
			summary = fmt.Sprintf("%s → %s  %s",
				cli.FormatHz(file.Result.DetectedHz), file.Result.Canonical.Name,
				cli.TierBadge(file.Result.Safety.Tier))
		}
		if file.State == StateSkipped {
			summary += mutedStyle.Render(" (cached)")
		}
		return fmt.Sprintf(" %s %s\n   %s", icon, name, summary)

	case StateAnalyzing:
		icon := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500")).Render("⚙")
		return fmt.Sprintf(" %s %s\n   Analyzing...", icon, name)

	case StateUnanalyzed:
		icon := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500")).Render("◌")
		return fmt.Sprintf(" %s %s\n   Unanalyzed: %v", icon, name, file.Error)

	case StateFailed:
		icon := lipgloss.NewStyle().Foreground(lipgloss.Color("#A40000")).Render("✗")
		return fmt.Sprintf(" %s %s\n   Error: %v", icon, name, file.Error)

	default:
		icon := mutedStyle.Render("○")
		return fmt.Sprintf(" %s %s\n   Queued...", icon, name)
	}
}

// renderProgressBar renders a progress bar
func renderProgressBar(progress float64, width int) string {
	filled := int(progress * float64(width))
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return fmt.Sprintf("%s %d%%", bar, int(progress*100))
}

// renderCompletionSummary renders the final summary
func renderCompletionSummary(m Model) string {
	var b strings.Builder

	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#00AA00")).
		Render("Analysis complete")
	b.WriteString(header)
	b.WriteString("\n\n")

	for _, file := range m.Files {
		b.WriteString(renderFileEntry(file))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", 60))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%d analyzed, %d cached, %d unanalyzed, %d failed\n",
		m.Final.Analyzed, m.Final.Skipped, m.Final.Unanalyzed, m.Final.Failed))

	return b.String()
}
