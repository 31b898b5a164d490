package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/austinkregel/local-media/resonanced/internal/safety"
)

// Color palette
var (
	primaryColor = lipgloss.Color("#7B2FBE") // Resonance violet
	mutedColor   = lipgloss.Color("#888888") // Gray
	textColor    = lipgloss.Color("#FFFFFF") // White

	safeColor     = lipgloss.Color("#00AA00")
	cautionColor  = lipgloss.Color("#FFA500")
	expertColor   = lipgloss.Color("#FF5F00")
	researchColor = lipgloss.Color("#A40000")
)

// Styles
var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			MarginBottom(1)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(researchColor)

	KeyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	ValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor)

	NoteStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)
)

// TierStyle returns the badge style for a safety tier.
func TierStyle(t safety.Tier) lipgloss.Style {
	color := safeColor
	switch t {
	case safety.TierCaution:
		color = cautionColor
	case safety.TierExpert:
		color = expertColor
	case safety.TierResearch:
		color = researchColor
	}
	return lipgloss.NewStyle().Bold(true).Foreground(color)
}

// PrintVersion prints version information
func PrintVersion(version string) {
	fmt.Println(TitleStyle.Render("resonanced"))
	fmt.Printf("%s %s\n", KeyStyle.Render("Version:"), ValueStyle.Render(version))
	fmt.Println()
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("Error:"), message)
}
