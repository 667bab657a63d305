package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/BradenHooton/libgate/internal/gate"
)

const eventBuffer = 64

type countdownMsg gate.CountdownState

type sessionMsg gate.SessionEvent

// Events carries countdown and session callbacks into the program loop.
// The callbacks never block; when the buffer is full an event is dropped
// and the next countdown tick or session change supersedes it.
type Events struct {
	ch chan tea.Msg
}

func NewEvents() *Events {
	return &Events{ch: make(chan tea.Msg, eventBuffer)}
}

// Countdown is a gate.Countdown listener.
func (e *Events) Countdown(state gate.CountdownState) {
	e.push(countdownMsg(state))
}

// Session is a gate.SessionManager subscriber.
func (e *Events) Session(ev gate.SessionEvent) {
	e.push(sessionMsg(ev))
}

func (e *Events) push(msg tea.Msg) {
	select {
	case e.ch <- msg:
	default:
	}
}

// Wait blocks for the next event. The model re-issues it after each one.
func (e *Events) Wait() tea.Cmd {
	return func() tea.Msg {
		return <-e.ch
	}
}
