package gate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	states []CountdownState
}

func (r *recorder) listen(s CountdownState) {
	r.states = append(r.states, s)
}

func (r *recorder) last() CountdownState {
	return r.states[len(r.states)-1]
}

func TestCountdown_TicksDownToZeroAndClears(t *testing.T) {
	f := newFixture(t)
	f.failTimes(t, "a@x.com", MaxAttempts)

	rec := &recorder{}
	cd := NewCountdown(f.throttle, f.clock, rec.listen)
	defer cd.Stop()

	cd.Bind("a@x.com")
	require.Equal(t, CountdownState{Identifier: "a@x.com", Locked: true, RemainingSeconds: 60}, rec.last())

	for elapsed := 1; elapsed < 60; elapsed++ {
		f.clock.Advance(time.Second)
		assert.Equal(t, 60-elapsed, rec.last().RemainingSeconds)
		assert.True(t, rec.last().Locked)
		assert.Equal(t, MaxAttempts, f.throttle.Attempts("a@x.com"), "entries kept before zero")
	}

	f.clock.Advance(time.Second)
	final := rec.last()
	assert.Equal(t, CountdownState{Identifier: "a@x.com", RemainingSeconds: 0, AttemptsRemaining: MaxAttempts}, final)
	assert.Equal(t, 0, f.throttle.Attempts("a@x.com"))
	assert.Equal(t, 0, f.clock.Pending(), "ticking stops at zero")

	// monotonically non-increasing from 60 to 0
	prev := 61
	for _, s := range rec.states {
		assert.LessOrEqual(t, s.RemainingSeconds, prev)
		prev = s.RemainingSeconds
	}
	assert.Len(t, rec.states, 61)

	f.clock.Advance(10 * time.Second)
	assert.Len(t, rec.states, 61)
}

func TestCountdown_StartsWhenSubmitLocks(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}
	cd := NewCountdown(f.throttle, f.clock, rec.listen)
	defer cd.Stop()

	cd.Bind("a@x.com")
	assert.Equal(t, CountdownState{Identifier: "a@x.com", AttemptsRemaining: 5}, rec.last())

	f.failTimes(t, "a@x.com", MaxAttempts-1)
	assert.Equal(t, 1, rec.last().AttemptsRemaining)
	assert.False(t, rec.last().Locked)
	assert.Equal(t, 0, f.clock.Pending())

	out, err := f.gate.Submit(context.Background(), "a@x.com", "wrong")
	require.NoError(t, err)
	assert.IsType(t, LockedOut{}, out)
	assert.Equal(t, CountdownState{Identifier: "a@x.com", Locked: true, RemainingSeconds: 60}, rec.last())
	assert.Equal(t, 1, f.clock.Pending())

	f.clock.Advance(5 * time.Second)
	assert.Equal(t, 55, rec.last().RemainingSeconds)
}

func TestCountdown_RebindSwitchesImmediately(t *testing.T) {
	f := newFixture(t)
	f.failTimes(t, "a@x.com", MaxAttempts)
	f.failTimes(t, "b@y.com", 2)

	rec := &recorder{}
	cd := NewCountdown(f.throttle, f.clock, rec.listen)
	defer cd.Stop()

	cd.Bind("a@x.com")
	f.clock.Advance(10 * time.Second)
	require.Equal(t, 50, rec.last().RemainingSeconds)

	cd.Bind("b@y.com")
	assert.Equal(t, CountdownState{Identifier: "b@y.com", AttemptsRemaining: 3}, rec.last())
	assert.Equal(t, 0, f.clock.Pending(), "old schedule cancelled")

	n := len(rec.states)
	f.clock.Advance(30 * time.Second)
	assert.Len(t, rec.states, n, "no residual ticks for the previous identifier")

	// a's lockout kept running in the store
	cd.Bind("a@x.com")
	assert.Equal(t, CountdownState{Identifier: "a@x.com", Locked: true, RemainingSeconds: 20}, rec.last())
}

func TestCountdown_IgnoresOtherIdentifiers(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}
	cd := NewCountdown(f.throttle, f.clock, rec.listen)
	defer cd.Stop()

	cd.Bind("a@x.com")
	n := len(rec.states)

	f.failTimes(t, "b@y.com", MaxAttempts)
	assert.Len(t, rec.states, n)
	assert.False(t, cd.State().Locked)
}

func TestCountdown_ClearedBySuccessElsewhere(t *testing.T) {
	f := newFixture(t)
	f.failTimes(t, "a@x.com", MaxAttempts)
	rec := &recorder{}
	cd := NewCountdown(f.throttle, f.clock, rec.listen)
	defer cd.Stop()

	cd.Bind("a@x.com")
	require.True(t, rec.last().Locked)

	f.throttle.RecordSuccess("a@x.com")
	assert.False(t, rec.last().Locked)
	assert.Equal(t, 0, f.clock.Pending())
}

func TestCountdown_StopReleasesTimerAndSubscription(t *testing.T) {
	f := newFixture(t)
	f.failTimes(t, "a@x.com", MaxAttempts)
	rec := &recorder{}
	cd := NewCountdown(f.throttle, f.clock, rec.listen)

	cd.Bind("a@x.com")
	n := len(rec.states)
	cd.Stop()

	assert.Equal(t, 0, f.clock.Pending())
	f.clock.Advance(time.Minute)
	f.throttle.RecordFailure("a@x.com")
	cd.Bind("a@x.com")
	assert.Len(t, rec.states, n)

	cd.Stop()
}

func TestCountdown_InvalidUTF8Identifier(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}
	cd := NewCountdown(f.throttle, f.clock, rec.listen)
	defer cd.Stop()

	id := "a\xffb@x.com"
	cd.Bind(id)
	for i := 0; i < MaxAttempts; i++ {
		f.throttle.RecordFailure(id)
	}

	assert.Equal(t, CountdownState{Identifier: id, Locked: true, RemainingSeconds: 60}, rec.last())
}

func TestCountdown_DropsStatesComputedBeforeLastReport(t *testing.T) {
	f := newFixture(t)
	rec := &recorder{}
	cd := NewCountdown(f.throttle, f.clock, rec.listen)
	defer cd.Stop()

	cd.Bind("a@x.com")
	cd.mu.Lock()
	gen := cd.gen
	cd.mu.Unlock()
	n := len(rec.states)

	unlocked := CountdownState{Identifier: "a@x.com", AttemptsRemaining: MaxAttempts - 1}
	late := CountdownState{Identifier: "a@x.com", Locked: true, RemainingSeconds: 1}

	// a timer evaluation computed at the earlier time finishes last
	cd.report(gen, unlocked, testStart.Add(2*time.Second))
	cd.report(gen, late, testStart.Add(time.Second))

	require.Len(t, rec.states, n+1)
	assert.Equal(t, unlocked, rec.last())
	assert.Equal(t, unlocked, cd.State())

	cd.report(gen, late, testStart.Add(3*time.Second))
	assert.Equal(t, late, rec.last())
}

func TestCountdown_SubSecondAlignment(t *testing.T) {
	f := newFixture(t)
	f.failTimes(t, "a@x.com", MaxAttempts)
	f.clock.Advance(300 * time.Millisecond)

	rec := &recorder{}
	cd := NewCountdown(f.throttle, f.clock, rec.listen)
	defer cd.Stop()

	cd.Bind("a@x.com")
	assert.Equal(t, 60, rec.last().RemainingSeconds)

	f.clock.Advance(700 * time.Millisecond)
	assert.Equal(t, 59, rec.last().RemainingSeconds)
}
