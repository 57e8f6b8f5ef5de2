package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#15202b")).
			Background(lipgloss.Color("#59b0ff")).
			Padding(0, 1)

	statusMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#2f7fd4", Dark: "#59b0ff"}).
				Render

	inactiveStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8a8f98")).
			Render

	completeMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#56FF4E")).
				Render
)

var docStyle = lipgloss.NewStyle().Margin(1, 2)
