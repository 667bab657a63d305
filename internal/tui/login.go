package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/BradenHooton/libgate/internal/gate"
)

var accountScreens = map[tea.KeyType]screen{
	tea.KeyCtrlN: screenRegister,
	tea.KeyCtrlF: screenForgot,
	tea.KeyCtrlR: screenReset,
}

// canSubmit is false while a submission is in flight or the typed email is
// locked out.
func (m Model) canSubmit() bool {
	return !m.busy && !m.gate.InFlight() && !m.lock.Locked
}

// identifier is the email exactly as typed. It is what gets submitted and
// what the countdown is bound to.
func (m Model) identifier() string {
	return m.email.Value()
}

func (m Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab, tea.KeyShiftTab, tea.KeyUp, tea.KeyDown:
		m.setFocus(1 - m.focus)
		return m, nil

	case tea.KeyCtrlN, tea.KeyCtrlF, tea.KeyCtrlR:
		if m.busy {
			return m, nil
		}
		m.openAccount(accountScreens[msg.Type])
		return m, nil

	case tea.KeyEnter:
		if m.focus == fieldEmail {
			m.setFocus(fieldPassword)
			return m, nil
		}
		return m.submit()
	}

	var cmd tea.Cmd
	if m.focus == fieldEmail {
		before := m.identifier()
		m.email, cmd = m.email.Update(msg)
		if m.identifier() != before {
			m.countdown.Bind(m.identifier())
			m.lock = m.countdown.State()
			m.setStatus("", false)
		}
		return m, cmd
	}
	m.password, cmd = m.password.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if !m.canSubmit() {
		return m, nil
	}
	email := m.identifier()
	if email == "" || m.password.Value() == "" {
		m.setStatus("Email and password are required.", true)
		return m, nil
	}
	m.busy = true
	m.setStatus("", false)
	return m, tea.Batch(m.spinner.Tick, submitCmd(m.ctx, m.gate, email, m.password.Value()))
}

func (m Model) handleSubmit(msg submitDoneMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		return m, nil
	}

	switch o := msg.outcome.(type) {
	case gate.LockedOut:
		m.setStatus(fmt.Sprintf("Too many failed attempts. Try again in %d seconds.", o.RemainingSeconds), true)
		m.lock = m.countdown.State()
	case gate.Rejected:
		m.setStatus(o.Message, true)
		m.password.Reset()
		m.lock = m.countdown.State()
	case gate.SecondFactorRequired:
		m.challenge = o.Challenge
		m.codeErr = ""
		m.code.Reset()
		m.code.Focus()
	case gate.Authenticated:
		m.password.Reset()
		if o.Profile != nil {
			m.profile = o.Profile
			m.screen = screenProfile
		}
	case gate.TransientError:
		m.setStatus("Could not reach the server. Please try again.", true)
	}
	return m, nil
}

func (m Model) viewLogin() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Library sign in"))
	b.WriteString("\n")
	b.WriteString(m.field("Email", m.email, m.focus == fieldEmail))
	b.WriteString("\n")
	b.WriteString(m.field("Password", m.password, m.focus == fieldPassword))
	b.WriteString("\n\n")

	switch {
	case m.lock.Locked:
		b.WriteString(warnStyle.Render(fmt.Sprintf("locked, try again in %ds", m.lock.RemainingSeconds)))
		b.WriteString("\n")
	case m.lock.AttemptsRemaining > 0 && m.lock.AttemptsRemaining < m.gate.Throttle().MaxAttempts():
		b.WriteString(warnStyle.Render(fmt.Sprintf("attempts remaining: %d", m.lock.AttemptsRemaining)))
		b.WriteString("\n")
	}

	if m.status != "" {
		style := okStyle
		if m.statusErr {
			style = errorStyle
		}
		b.WriteString(style.Render(m.status))
		b.WriteString("\n")
	}

	if m.busy {
		b.WriteString(m.spinner.View() + " Signing in...")
	} else if m.canSubmit() {
		b.WriteString(helpStyle.Render("enter sign in • tab switch field • ctrl+c quit"))
	} else {
		b.WriteString(helpStyle.Render("tab switch field • ctrl+c quit"))
	}
	if !m.busy {
		b.WriteString(helpStyle.Render("ctrl+n register • ctrl+f forgot • ctrl+r reset"))
	}
	return panelStyle.Render(b.String())
}

func (m Model) field(label string, input interface{ View() string }, focused bool) string {
	marker := blurredPrompt.Render("  ")
	if focused {
		marker = focusedPrompt.Render("> ")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, marker, labelStyle.Render(label), input.View())
}
