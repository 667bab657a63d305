// Package tui is the terminal front end for the login gate.
package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/BradenHooton/libgate/internal/apiclient"
	"github.com/BradenHooton/libgate/internal/gate"
)

type screen int

const (
	screenLogin screen = iota
	screenProfile
	screenRegister
	screenForgot
	screenReset
)

const (
	fieldEmail = iota
	fieldPassword
)

type submitDoneMsg struct {
	outcome gate.Outcome
	err     error
}

type verifyDoneMsg struct {
	outcome gate.Outcome
	err     error
}

type toggleDoneMsg struct {
	message string
	err     error
}

type logoutDoneMsg struct{}

// Model is the bubbletea model for the whole program. The login form and
// profile are screens; the second-factor prompt is a modal over the login
// screen while a challenge is pending.
type Model struct {
	ctx       context.Context
	gate      *gate.Gate
	session   *gate.SessionManager
	countdown *gate.Countdown
	events    *Events
	accounts  Accounts

	screen   screen
	email    textinput.Model
	password textinput.Model
	code     textinput.Model
	focus    int
	spinner  spinner.Model
	busy     bool

	lock      gate.CountdownState
	status    string
	statusErr bool

	challenge *gate.Challenge
	codeErr   string

	profile *apiclient.Profile
	notice  string

	form form

	width  int
	height int
}

// New builds the model. The countdown must report to events, and events
// must be subscribed to the gate's session manager.
func New(ctx context.Context, g *gate.Gate, countdown *gate.Countdown, events *Events, accounts Accounts) Model {
	m := Model{
		ctx:       ctx,
		gate:      g,
		session:   g.Session(),
		countdown: countdown,
		events:    events,
		accounts:  accounts,
		email:     newInput("reader@example.com"),
		password:  newInput(""),
		code:      newInput("000000"),
	}
	m.password.EchoMode = textinput.EchoPassword
	m.password.EchoCharacter = '•'
	m.code.CharLimit = gate.CodeLength
	m.code.Width = gate.CodeLength + 1

	m.spinner = spinner.New()
	m.spinner.Spinner = spinner.Dot
	m.spinner.Style = lipgloss.NewStyle().Foreground(colorAccent)

	if p := m.session.Profile(); p != nil && m.session.Authenticated() {
		m.profile = p
		m.screen = screenProfile
	}
	m.setFocus(fieldEmail)
	m.lock = countdown.State()
	return m
}

func newInput(placeholder string) textinput.Model {
	ti := textinput.New()
	ti.Prompt = ""
	ti.Placeholder = placeholder
	ti.Width = 32
	ti.CharLimit = 254
	ti.Cursor.SetMode(cursor.CursorStatic)
	ti.PlaceholderStyle = lipgloss.NewStyle().Foreground(colorMuted)
	return ti
}

func (m Model) Init() tea.Cmd {
	m.countdown.Bind(m.identifier())
	return m.events.Wait()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.countdown.Stop()
			return m, tea.Quit
		}
		switch {
		case m.challenge != nil:
			return m.updateChallenge(msg)
		case m.screen == screenProfile:
			return m.updateProfile(msg)
		case isAccountScreen(m.screen):
			return m.updateAccount(msg)
		default:
			return m.updateLogin(msg)
		}

	case countdownMsg:
		if msg.Identifier == m.identifier() {
			m.lock = gate.CountdownState(msg)
		}
		return m, m.events.Wait()

	case sessionMsg:
		m.applySession(gate.SessionEvent(msg))
		return m, m.events.Wait()

	case submitDoneMsg:
		m.busy = false
		return m.handleSubmit(msg)

	case verifyDoneMsg:
		m.busy = false
		return m.handleVerify(msg)

	case toggleDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.notice = errorStyle.Render("Could not update two-factor authentication.")
			return m, nil
		}
		m.profile = m.session.Profile()
		m.notice = okStyle.Render(msg.message)
		return m, nil

	case accountDoneMsg:
		m.busy = false
		return m.handleAccount(msg)

	case logoutDoneMsg:
		m.busy = false
		if !m.session.Authenticated() && m.screen == screenProfile {
			m.toLogin()
		}
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) applySession(ev gate.SessionEvent) {
	switch ev.Kind {
	case gate.SessionSignedIn, gate.SessionProfileUpdated:
		m.profile = ev.Profile
		m.screen = screenProfile
		m.challenge = nil
		m.password.Reset()
	case gate.SessionExpired:
		m.toLogin()
		m.setStatus("Your session has expired. Please sign in again.", true)
	case gate.SessionSignedOut:
		m.toLogin()
		m.setStatus("Signed out.", false)
	case gate.SessionProfileUnavailable:
		m.setStatus("Signed in, but your profile could not be loaded. Try again shortly.", true)
	}
}

func (m *Model) toLogin() {
	m.screen = screenLogin
	m.profile = nil
	m.notice = ""
	m.password.Reset()
	m.setFocus(fieldEmail)
}

func (m *Model) setStatus(text string, isErr bool) {
	m.status = text
	m.statusErr = isErr
}

func (m *Model) setFocus(field int) {
	m.focus = field
	if field == fieldEmail {
		m.email.Focus()
		m.password.Blur()
		return
	}
	m.password.Focus()
	m.email.Blur()
}

func (m Model) View() string {
	var body string
	switch {
	case m.challenge != nil:
		body = m.viewChallenge()
	case m.screen == screenProfile:
		body = m.viewProfile()
	case isAccountScreen(m.screen):
		body = m.form.view(m.busy, m.spinner.View())
	default:
		body = m.viewLogin()
	}
	if m.width == 0 || m.height == 0 {
		return body
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, body)
}

func submitCmd(ctx context.Context, g *gate.Gate, email, password string) tea.Cmd {
	return func() tea.Msg {
		outcome, err := g.Submit(ctx, email, password)
		return submitDoneMsg{outcome: outcome, err: err}
	}
}

func verifyCmd(ctx context.Context, ch *gate.Challenge) tea.Cmd {
	return func() tea.Msg {
		outcome, err := ch.Verify(ctx)
		return verifyDoneMsg{outcome: outcome, err: err}
	}
}

func toggleCmd(ctx context.Context, s *gate.SessionManager, enable bool) tea.Cmd {
	return func() tea.Msg {
		msg, err := s.SetTwoFactor(ctx, enable)
		return toggleDoneMsg{message: msg, err: err}
	}
}

func logoutCmd(ctx context.Context, s *gate.SessionManager) tea.Cmd {
	return func() tea.Msg {
		s.Logout(ctx)
		return logoutDoneMsg{}
	}
}
