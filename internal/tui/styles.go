package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorAccent = lipgloss.Color("#7C9CBF")
	colorDanger = lipgloss.Color("#E06C75")
	colorMuted  = lipgloss.Color("#6B7280")
	colorOK     = lipgloss.Color("#98C379")
	colorWarn   = lipgloss.Color("#E5C07B")

	titleStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true).MarginBottom(1)
	labelStyle = lipgloss.NewStyle().Foreground(colorMuted).Width(10)
	errorStyle = lipgloss.NewStyle().Foreground(colorDanger)
	warnStyle  = lipgloss.NewStyle().Foreground(colorWarn)
	okStyle    = lipgloss.NewStyle().Foreground(colorOK)
	helpStyle  = lipgloss.NewStyle().Foreground(colorMuted).MarginTop(1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorAccent).
			Padding(1, 3).
			Width(52)

	modalStyle = panelStyle.
			BorderForeground(colorWarn).
			Width(44)

	focusedPrompt = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	blurredPrompt = lipgloss.NewStyle().Foreground(colorMuted)
)
