package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

func (m Model) updateProfile(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.busy || m.profile == nil {
		return m, nil
	}

	switch msg.String() {
	case "t":
		m.busy = true
		m.notice = ""
		return m, tea.Batch(m.spinner.Tick, toggleCmd(m.ctx, m.session, !m.profile.TwoFactorEnabled))
	case "l":
		m.busy = true
		return m, logoutCmd(m.ctx, m.session)
	case "q":
		m.countdown.Stop()
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) viewProfile() string {
	p := m.profile
	if p == nil {
		return panelStyle.Render("Loading profile...")
	}

	twoFactor := warnStyle.Render("disabled")
	toggle := "t enable two-factor"
	if p.TwoFactorEnabled {
		twoFactor = okStyle.Render("enabled")
		toggle = "t disable two-factor"
	}

	row := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Welcome, " + p.Name))
	b.WriteString("\n")
	b.WriteString(row("Email", p.Email) + "\n")
	b.WriteString(row("Role", p.Role) + "\n")
	b.WriteString(row("2FA", twoFactor) + "\n")

	if m.notice != "" {
		b.WriteString("\n" + m.notice + "\n")
	}
	if m.busy {
		b.WriteString("\n" + m.spinner.View() + " Working...")
	} else {
		b.WriteString(helpStyle.Render(toggle + " • l log out • q quit"))
	}
	return panelStyle.Render(b.String())
}
