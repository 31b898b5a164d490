package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/austinkregel/local-media/resonanced/internal/analysis"
	"github.com/austinkregel/local-media/resonanced/internal/audio"
	"github.com/austinkregel/local-media/resonanced/internal/canon"
	"github.com/austinkregel/local-media/resonanced/internal/safety"
	"github.com/austinkregel/local-media/resonanced/internal/scanner"
)

// row is one labelled line of a report.
type row struct {
	label string
	value string
}

// renderRows aligns labels into a key column.
func renderRows(rows []row) string {
	width := 0
	for _, r := range rows {
		if len(r.label) > width {
			width = len(r.label)
		}
	}

	var b strings.Builder
	for _, r := range rows {
		b.WriteString("  ")
		b.WriteString(KeyStyle.Render(fmt.Sprintf("%-*s", width+1, r.label+":")))
		b.WriteString(" ")
		b.WriteString(r.value)
		b.WriteString("\n")
	}
	return b.String()
}

// TierBadge renders a tier name in its color.
func TierBadge(t safety.Tier) string {
	return TierStyle(t).Render(t.String())
}

// FormatHz formats a frequency for display.
func FormatHz(hz float64) string {
	if hz == 0 {
		return "none"
	}
	return fmt.Sprintf("%.2f Hz", hz)
}

// RenderResult renders a full analysis report for one file. meta may be nil.
func RenderResult(path string, status analysis.Status, r *analysis.Result, meta *audio.FileMetadata) string {
	var b strings.Builder
	title := filepath.Base(path)
	if meta != nil && meta.Title != "" {
		title = meta.Title
		if meta.Artist != "" {
			title = meta.Artist + " - " + title
		}
	}
	b.WriteString(TitleStyle.Render(title))
	b.WriteString("\n")

	var info []row
	if meta != nil && meta.Duration > 0 {
		info = append(info, row{"Duration", meta.Duration.Round(time.Second).String()})
	}

	if r == nil {
		b.WriteString(renderRows(append(info, row{"Status", string(status)})))
		return b.String()
	}

	series := make([]string, len(r.HarmonicSeries))
	for i, h := range r.HarmonicSeries {
		series[i] = fmt.Sprintf("%.0f", h)
	}

	rows := append(info, []row{
		{"Status", string(status)},
		{"Detected", ValueStyle.Render(FormatHz(r.DetectedHz))},
		{"Canonical", fmt.Sprintf("%s (%s, %.2f Hz away)", ValueStyle.Render(r.Canonical.Name), FormatHz(r.Canonical.Hz), r.CanonicalDistHz)},
		{"Harmonics", strings.Join(series, ", ")},
		{"Golden alignment", fmt.Sprintf("%.3f", r.GoldenAlignment)},
		{"Pattern presence", fmt.Sprintf("%.3f", r.PatternPresence)},
		{"Resonance", fmt.Sprintf("%.3f", r.Resonance)},
		{"Fractal dimension", fmt.Sprintf("%.3f", r.FractalDimension)},
		{"Safety", fmt.Sprintf("%s, volume %.0f%%", TierBadge(r.Safety.Tier), r.Safety.RecommendedVolume*100)},
	}...)
	b.WriteString(renderRows(rows))

	for _, note := range r.Notes {
		b.WriteString("  ")
		b.WriteString(NoteStyle.Render("• " + note))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderMatch renders a classification of a bare frequency.
func RenderMatch(hz float64, m canon.Match) string {
	rows := []row{
		{"Input", FormatHz(hz)},
		{"Canonical", fmt.Sprintf("%s (%s)", ValueStyle.Render(m.Frequency.Name), FormatHz(m.Frequency.Hz))},
	}
	if m.Fallback {
		rows = append(rows, row{"Match", "default entry"})
	} else {
		rows = append(rows,
			row{"Distance", fmt.Sprintf("%.2f Hz", m.DistanceHz)},
			row{"Octave factor", fmt.Sprintf("×%g", m.OctaveFactor)},
		)
	}
	if m.Frequency.Description != "" {
		rows = append(rows, row{"About", m.Frequency.Description})
	}
	return renderRows(rows)
}

// RenderAssessment renders a safety verdict.
func RenderAssessment(a safety.Assessment) string {
	return renderRows([]row{
		{"Frequency", FormatHz(a.Hz)},
		{"Tier", TierBadge(a.Tier)},
		{"Volume", fmt.Sprintf("%.0f%%", a.RecommendedVolume*100)},
	})
}

// RenderTable renders the canonical frequency table.
func RenderTable(entries []canon.Frequency, def canon.Frequency) string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("Canonical frequencies"))
	b.WriteString("\n")

	nameWidth := 0
	for _, f := range entries {
		if len(f.Name) > nameWidth {
			nameWidth = len(f.Name)
		}
	}

	for _, f := range entries {
		marker := " "
		if f.Hz == def.Hz {
			marker = "*"
		}
		b.WriteString(fmt.Sprintf(" %s %9.2f Hz  %-*s  %s\n",
			marker, f.Hz, nameWidth, f.Name, TierBadge(f.Tier)))
	}
	b.WriteString(NoteStyle.Render("* default when nothing is detected"))
	b.WriteString("\n")
	return b.String()
}

// RenderScan renders per-library scan counts.
func RenderScan(results []scanner.ScanResult) string {
	rows := make([]row, 0, len(results))
	total := 0
	for _, r := range results {
		value := fmt.Sprintf("%d files in %dms", r.TotalFiles, r.ScanTimeMs)
		if r.Error != "" {
			value = ErrorStyle.Render(r.Error)
		}
		rows = append(rows, row{r.LibraryPath, value})
		total += r.TotalFiles
	}
	rows = append(rows, row{"Total", ValueStyle.Render(fmt.Sprintf("%d files", total))})
	return renderRows(rows)
}
