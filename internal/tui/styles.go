package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/papapumpkin/treasury/internal/action"
)

// Semantic color palette.
var (
	colorPrimary     = lipgloss.Color("#00BFFF") // Cyan: headings
	colorAccent      = lipgloss.Color("#FFD700") // Gold: approved
	colorSuccess     = lipgloss.Color("#00E676") // Green: submitted
	colorDanger      = lipgloss.Color("#FF5252") // Red: failed
	colorMuted       = lipgloss.Color("#636363") // Gray: de-emphasized
	colorMutedLight  = lipgloss.Color("#8C8C8C") // Lighter gray: normal text
	colorBrightWhite = lipgloss.Color("#FFFFFF") // Pure white: selection
	colorSurface     = lipgloss.Color("#1E1E2E") // Dark surface: status bar bg
	colorBlue        = lipgloss.Color("#5B8DEF") // Blue: created
)

// Selection indicator prepended to the active row.
const selectionIndicator = "▎"

var (
	styleStatusBar = lipgloss.NewStyle().
			Background(colorSurface).
			Foreground(colorBrightWhite).
			Bold(true).
			Padding(0, 1)

	styleHeading = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true)

	styleRowSelected = lipgloss.NewStyle().
				Foreground(colorBrightWhite).
				Bold(true)

	styleRowNormal = lipgloss.NewStyle().
			Foreground(colorMutedLight)

	styleFooter = lipgloss.NewStyle().
			Foreground(colorMuted)

	styleError = lipgloss.NewStyle().
			Foreground(colorDanger).
			Bold(true)
)

// statusStyles maps each lifecycle status to its display style.
var statusStyles = map[action.Status]lipgloss.Style{
	action.StatusCreated:   lipgloss.NewStyle().Foreground(colorBlue),
	action.StatusApproved:  lipgloss.NewStyle().Foreground(colorAccent),
	action.StatusSubmitted: lipgloss.NewStyle().Foreground(colorSuccess),
	action.StatusFailed:    lipgloss.NewStyle().Foreground(colorDanger).Bold(true),
}

func renderStatus(s action.Status) string {
	style, ok := statusStyles[s]
	if !ok {
		return string(s)
	}
	return style.Render(string(s))
}
