package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/BradenHooton/libgate/internal/gate"
)

func (m Model) updateChallenge(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.challenge.Cancel()
		m.challenge = nil
		m.code.Reset()
		m.codeErr = ""
		m.busy = false
		return m, nil

	case tea.KeyEnter:
		if !m.challenge.CanSubmit() {
			return m, nil
		}
		m.busy = true
		m.codeErr = ""
		return m, tea.Batch(m.spinner.Tick, verifyCmd(m.ctx, m.challenge))

	case tea.KeySpace:
		return m, nil

	case tea.KeyRunes:
		digits := onlyDigits(msg.Runes)
		if len(digits) == 0 {
			return m, nil
		}
		msg.Runes = digits
	}

	var cmd tea.Cmd
	m.code, cmd = m.code.Update(msg)
	m.challenge.SetCode(m.code.Value())
	return m, cmd
}

func onlyDigits(runes []rune) []rune {
	out := runes[:0:0]
	for _, r := range runes {
		if r >= '0' && r <= '9' {
			out = append(out, r)
		}
	}
	return out
}

func (m Model) handleVerify(msg verifyDoneMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil || m.challenge == nil {
		return m, nil
	}

	switch o := msg.outcome.(type) {
	case gate.InvalidCode:
		m.codeErr = o.Message
	case gate.TransientError:
		m.codeErr = "Could not reach the server. Please try again."
	case gate.Authenticated:
		m.challenge = nil
		m.code.Reset()
		m.password.Reset()
		if o.Profile != nil {
			m.profile = o.Profile
			m.screen = screenProfile
		}
	}
	return m, nil
}

func (m Model) viewChallenge() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Two-factor verification"))
	b.WriteString("\n")
	b.WriteString("Enter the 6-digit code sent to your email.\n\n")
	b.WriteString(m.field("Code", m.code, true))
	b.WriteString("\n")

	if m.codeErr != "" {
		b.WriteString("\n" + errorStyle.Render(m.codeErr) + "\n")
	}

	switch {
	case m.busy:
		b.WriteString("\n" + m.spinner.View() + " Verifying...")
	case m.challenge.CanSubmit():
		b.WriteString(helpStyle.Render("enter verify • esc cancel"))
	default:
		b.WriteString(helpStyle.Render("esc cancel"))
	}
	return modalStyle.Render(b.String())
}
