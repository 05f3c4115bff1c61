package tui

import "github.com/charmbracelet/lipgloss"

// Static styles for content elements
var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Bold(true)

	RaceLogStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA"))

	TrackStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#96CEB4"))

	LaneInfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA"))

	FallenStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true)

	WinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700")).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#96CEB4")).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFEAA7")).
			Bold(true)

	InfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

// horseColors maps the colour names used in configuration to terminal colours.
var horseColors = map[string]lipgloss.Color{
	"red":    lipgloss.Color("#FF6B6B"),
	"yellow": lipgloss.Color("#FFEAA7"),
	"blue":   lipgloss.Color("#74B9FF"),
	"green":  lipgloss.Color("#55EFC4"),
	"purple": lipgloss.Color("#A29BFE"),
	"orange": lipgloss.Color("#FDCB6E"),
	"white":  lipgloss.Color("#FAFAFA"),
}

// HorseStyle returns the style for a horse's colour tag. Unknown names are
// passed to lipgloss as-is so hex and ANSI codes work too.
func HorseStyle(color string) lipgloss.Style {
	style := lipgloss.NewStyle().Bold(true)
	if color == "" {
		return style
	}
	if c, ok := horseColors[color]; ok {
		return style.Foreground(c)
	}
	return style.Foreground(lipgloss.Color(color))
}
