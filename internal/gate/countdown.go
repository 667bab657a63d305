package gate

import (
	"sync"
	"time"

	"github.com/BradenHooton/libgate/internal/clock"
)

// CountdownState is what the login form shows for the bound identifier.
type CountdownState struct {
	Identifier        string
	Locked            bool
	RemainingSeconds  int
	AttemptsRemaining int
}

// Countdown follows the identifier currently being edited. While it is
// locked the state is re-evaluated once per second; when the remaining time
// reaches zero the lazy-expiry clear runs, a final unlocked state is
// reported, and ticking stops. Throttle mutations for the bound identifier
// trigger an immediate re-evaluation.
type Countdown struct {
	store    *ThrottleStore
	clock    clock.Clock
	listener func(CountdownState)

	mu          sync.Mutex
	identifier  string
	key         string // identifier as the store reports it
	bound       bool
	gen         uint64
	timer       clock.Timer
	stopped     bool
	unsubscribe func()

	emitMu  sync.Mutex
	last    CountdownState
	lastAt  time.Time
	emitted bool
}

// NewCountdown subscribes to store. listener receives every state change; it
// runs on the goroutine that caused the change and must neither block nor
// call back into the Countdown.
func NewCountdown(store *ThrottleStore, clk clock.Clock, listener func(CountdownState)) *Countdown {
	c := &Countdown{
		store:    store,
		clock:    clk,
		listener: listener,
	}
	c.unsubscribe = store.Subscribe(c.onChange)
	return c
}

// Bind switches to identifier, cancelling any schedule for the previous one,
// and evaluates it immediately.
func (c *Countdown) Bind(identifier string) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.gen++
	c.identifier = identifier
	c.key = normalizeIdentifier(identifier)
	c.bound = true
	gen := c.gen
	c.mu.Unlock()

	c.evaluate(gen)
}

// State returns the most recently reported state.
func (c *Countdown) State() CountdownState {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	return c.last
}

// Stop releases the timer and the store subscription. A stopped Countdown
// reports nothing further.
func (c *Countdown) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.gen++
	c.stopTimerLocked()
	unsubscribe := c.unsubscribe
	c.mu.Unlock()

	unsubscribe()
}

func (c *Countdown) onChange(identifier string) {
	c.mu.Lock()
	match := !c.stopped && c.bound && c.key == identifier
	gen := c.gen
	c.mu.Unlock()

	if match {
		c.evaluate(gen)
	}
}

func (c *Countdown) evaluate(gen uint64) {
	c.mu.Lock()
	if c.stopped || gen != c.gen {
		c.mu.Unlock()
		return
	}
	identifier := c.identifier
	c.mu.Unlock()

	now := c.clock.Now()
	status := c.store.Status(identifier, now)

	state := CountdownState{
		Identifier:        identifier,
		Locked:            status.Locked,
		RemainingSeconds:  status.RemainingSeconds,
		AttemptsRemaining: max(c.store.MaxAttempts()-status.Attempts, 0),
	}

	c.mu.Lock()
	if c.stopped || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	if status.Locked {
		c.timer = c.clock.AfterFunc(nextTick(status, now), func() { c.evaluate(gen) })
	}
	c.mu.Unlock()

	c.report(gen, state, now)
}

// report emits state unless it is stale, unchanged, or was computed before
// the last emitted state. Evaluations from the timer and from store
// notifications can finish in either order.
func (c *Countdown) report(gen uint64, state CountdownState, at time.Time) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	stale := c.stopped || gen != c.gen
	c.mu.Unlock()
	if stale || (c.emitted && (c.last == state || at.Before(c.lastAt))) {
		return
	}

	c.last = state
	c.lastAt = at
	c.emitted = true
	if c.listener != nil {
		c.listener(state)
	}
}

func (c *Countdown) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// nextTick is the delay until the displayed whole-second value drops by one,
// capped at one second.
func nextTick(status LockoutStatus, now time.Time) time.Duration {
	d := status.LockedUntil.Sub(now) - time.Duration(status.RemainingSeconds-1)*time.Second
	if d <= 0 || d > time.Second {
		return time.Second
	}
	return d
}
