package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/BradenHooton/libgate/internal/apiclient"
)

// Accounts is the part of the API behind the register and password-reset
// screens.
type Accounts interface {
	Register(ctx context.Context, req apiclient.RegisterRequest) (*apiclient.MessageResult, error)
	ForgotPassword(ctx context.Context, email string) (*apiclient.MessageResult, error)
	ResetPassword(ctx context.Context, req apiclient.ResetPasswordRequest) (*apiclient.MessageResult, error)
}

type accountDoneMsg struct {
	screen screen
	email  string
	result *apiclient.MessageResult
	err    error
}

type formField struct {
	key   string // JSON name the API reports validation errors under
	label string
	input textinput.Model
}

func newFormField(key, label string, secret bool) formField {
	ti := newInput("")
	if secret {
		ti.EchoMode = textinput.EchoPassword
		ti.EchoCharacter = '•'
	}
	return formField{key: key, label: label, input: ti}
}

type form struct {
	title   string
	fields  []formField
	focus   int
	errors  map[string][]string
	message string
	failed  bool
}

func newForm(title string, fields ...formField) form {
	f := form{title: title, fields: fields}
	f.focusOn(0)
	return f
}

func (f *form) focusOn(i int) {
	f.focus = i
	for j := range f.fields {
		if j == i {
			f.fields[j].input.Focus()
		} else {
			f.fields[j].input.Blur()
		}
	}
}

func (f form) value(key string) string {
	for _, fld := range f.fields {
		if fld.key == key {
			return fld.input.Value()
		}
	}
	return ""
}

func (f *form) setValue(key, v string) {
	for i := range f.fields {
		if f.fields[i].key == key {
			f.fields[i].input.SetValue(v)
		}
	}
}

func (f form) lastFocused() bool {
	return f.focus == len(f.fields)-1
}

// update moves focus or edits the focused field.
func (f *form) update(msg tea.KeyMsg) tea.Cmd {
	n := len(f.fields)
	switch msg.Type {
	case tea.KeyTab, tea.KeyDown:
		f.focusOn((f.focus + 1) % n)
		return nil
	case tea.KeyShiftTab, tea.KeyUp:
		f.focusOn((f.focus + n - 1) % n)
		return nil
	}

	var cmd tea.Cmd
	f.fields[f.focus].input, cmd = f.fields[f.focus].input.Update(msg)
	return cmd
}

func (f *form) fail(err error) {
	f.failed = true
	f.errors = nil

	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) {
		f.message = "Could not reach the server. Please try again."
		return
	}
	f.errors = apiErr.Fields
	f.message = apiErr.Message
	if f.message == "" {
		f.message = "Please correct the errors below."
	}
}

func (f form) view(busy bool, spin string) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(f.title))
	b.WriteString("\n")

	for i, fld := range f.fields {
		marker := blurredPrompt.Render("  ")
		if i == f.focus {
			marker = focusedPrompt.Render("> ")
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, marker, labelStyle.Render(fld.label), fld.input.View()))
		b.WriteString("\n")
		if errs := f.errors[fld.key]; len(errs) > 0 {
			b.WriteString(errorStyle.Render("  "+fld.label+" "+strings.Join(errs, ", ")) + "\n")
		}
	}

	if f.message != "" {
		style := okStyle
		if f.failed {
			style = errorStyle
		}
		b.WriteString("\n" + style.Render(f.message) + "\n")
	}

	if busy {
		b.WriteString("\n" + spin + " Sending...")
	} else {
		b.WriteString(helpStyle.Render("enter next/submit • tab switch field • esc back"))
	}
	return panelStyle.Render(b.String())
}

func registerForm() form {
	return newForm("Create an account",
		newFormField("name", "Name", false),
		newFormField("email", "Email", false),
		newFormField("password", "Password", true),
		newFormField("password_confirmation", "Confirm", true),
	)
}

func forgotForm() form {
	return newForm("Forgot password",
		newFormField("email", "Email", false),
	)
}

func resetForm() form {
	return newForm("Reset password",
		newFormField("email", "Email", false),
		newFormField("token", "Token", false),
		newFormField("password", "Password", true),
		newFormField("password_confirmation", "Confirm", true),
	)
}

func isAccountScreen(s screen) bool {
	return s == screenRegister || s == screenForgot || s == screenReset
}

// openAccount switches to one of the account screens, carrying over the
// email typed on the login form.
func (m *Model) openAccount(s screen) {
	switch s {
	case screenRegister:
		m.form = registerForm()
	case screenForgot:
		m.form = forgotForm()
	case screenReset:
		m.form = resetForm()
	}
	m.form.setValue("email", m.email.Value())
	m.screen = s
	m.setStatus("", false)
}

func (m Model) updateAccount(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}

	switch msg.Type {
	case tea.KeyEsc:
		m.leaveAccount("", "", false)
		return m, nil
	case tea.KeyEnter:
		if !m.form.lastFocused() {
			m.form.focusOn(m.form.focus + 1)
			return m, nil
		}
		return m.submitAccount()
	}

	return m, m.form.update(msg)
}

func (m Model) submitAccount() (tea.Model, tea.Cmd) {
	ctx, accounts, f, s := m.ctx, m.accounts, m.form, m.screen
	email := f.value("email")

	var call func() (*apiclient.MessageResult, error)
	switch s {
	case screenRegister:
		call = func() (*apiclient.MessageResult, error) {
			return accounts.Register(ctx, apiclient.RegisterRequest{
				Name:                 f.value("name"),
				Email:                email,
				Password:             f.value("password"),
				PasswordConfirmation: f.value("password_confirmation"),
			})
		}
	case screenForgot:
		call = func() (*apiclient.MessageResult, error) {
			return accounts.ForgotPassword(ctx, email)
		}
	case screenReset:
		call = func() (*apiclient.MessageResult, error) {
			return accounts.ResetPassword(ctx, apiclient.ResetPasswordRequest{
				Email:                email,
				Token:                strings.TrimSpace(f.value("token")),
				Password:             f.value("password"),
				PasswordConfirmation: f.value("password_confirmation"),
			})
		}
	default:
		return m, nil
	}

	m.busy = true
	m.form.message = ""
	m.form.errors = nil
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		result, err := call()
		return accountDoneMsg{screen: s, email: email, result: result, err: err}
	})
}

func (m Model) handleAccount(msg accountDoneMsg) (tea.Model, tea.Cmd) {
	if msg.screen != m.screen {
		return m, nil
	}
	if msg.err != nil {
		m.form.fail(msg.err)
		return m, nil
	}

	message := ""
	if msg.result != nil {
		message = msg.result.Message
	}

	switch msg.screen {
	case screenForgot:
		m.form = resetForm()
		m.form.setValue("email", msg.email)
		m.form.focusOn(1)
		m.form.message = message
		m.screen = screenReset
	default:
		m.leaveAccount(msg.email, message, true)
	}
	return m, nil
}

// leaveAccount returns to the login form, optionally replacing the email
// and showing a confirmation.
func (m *Model) leaveAccount(email, message string, replaceEmail bool) {
	if replaceEmail && email != m.email.Value() {
		m.email.SetValue(email)
		m.countdown.Bind(m.identifier())
		m.lock = m.countdown.State()
	}
	m.form = form{}
	m.toLogin()
	m.setStatus(message, false)
}
