package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorRed    = lipgloss.Color("#FF5F5F")
	colorGreen  = lipgloss.Color("#5FFF87")
	colorYellow = lipgloss.Color("#FFD75F")
	colorCyan   = lipgloss.Color("#5FD7FF")
	colorGray   = lipgloss.Color("#767676")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	idleStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	listeningStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	busyStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	doneStyle = lipgloss.NewStyle().
			Foreground(colorGreen)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorRed)

	documentStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(colorGray)
)
