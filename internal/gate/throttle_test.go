package gate

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/libgate/internal/clock"
	"github.com/BradenHooton/libgate/internal/kv"
	"github.com/BradenHooton/libgate/pkg/logger"
)

func newThrottle(t *testing.T) (*ThrottleStore, *kv.Memory, *clock.Fake) {
	t.Helper()
	backend := kv.NewMemory()
	clk := clock.NewFake(testStart)
	return NewThrottleStore(backend, clk, logger.Discard()), backend, clk
}

func TestThrottleStore_LocksAtThreshold(t *testing.T) {
	store, _, clk := newThrottle(t)
	id := "a@x.com"

	for i := 1; i < MaxAttempts; i++ {
		res := store.RecordFailure(id)
		assert.Equal(t, i, res.Count)
		assert.False(t, res.Locked)
		assert.False(t, store.IsLocked(id, clk.Now()))
	}

	res := store.RecordFailure(id)
	require.True(t, res.Locked)
	assert.Equal(t, MaxAttempts, res.Count)
	assert.True(t, testStart.Add(Cooldown).Equal(res.LockedUntil), "locked until %s", res.LockedUntil)

	until := res.LockedUntil
	for _, offset := range []time.Duration{0, time.Millisecond, 30 * time.Second, Cooldown - time.Millisecond} {
		assert.True(t, store.IsLocked(id, testStart.Add(offset)), "locked at +%s", offset)
	}
	assert.False(t, store.IsLocked(id, until))
}

func TestThrottleStore_NotLockedAtOrAfterExpiry(t *testing.T) {
	for _, offset := range []time.Duration{0, time.Millisecond, time.Hour} {
		store, _, _ := newThrottle(t)
		for i := 0; i < MaxAttempts; i++ {
			store.RecordFailure("a@x.com")
		}
		assert.False(t, store.IsLocked("a@x.com", testStart.Add(Cooldown+offset)))
	}
}

func TestThrottleStore_LazyExpiryClearsBothEntries(t *testing.T) {
	store, backend, _ := newThrottle(t)
	id := "a@x.com"
	for i := 0; i < MaxAttempts; i++ {
		store.RecordFailure(id)
	}

	assert.Equal(t, MaxAttempts, store.Attempts(id))
	assert.False(t, store.IsLocked(id, testStart.Add(Cooldown)))
	assert.Equal(t, 0, store.Attempts(id))
	assert.Equal(t, 0, store.RemainingSeconds(id, testStart.Add(Cooldown)))

	raw, ok, err := backend.Get(attemptsKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{}`, string(raw))

	raw, _, _ = backend.Get(lockoutsKey)
	assert.JSONEq(t, `{}`, string(raw))
}

func TestThrottleStore_RecordSuccessClearsRegardlessOfCount(t *testing.T) {
	for prior := 0; prior <= MaxAttempts; prior++ {
		store, _, clk := newThrottle(t)
		for i := 0; i < prior; i++ {
			store.RecordFailure("a@x.com")
		}

		store.RecordSuccess("a@x.com")

		assert.Equal(t, 0, store.Attempts("a@x.com"), "prior=%d", prior)
		assert.False(t, store.IsLocked("a@x.com", clk.Now()), "prior=%d", prior)
		assert.Equal(t, 0, store.RemainingSeconds("a@x.com", clk.Now()), "prior=%d", prior)
	}
}

func TestThrottleStore_IdentifiersAreIsolated(t *testing.T) {
	store, _, clk := newThrottle(t)
	for i := 0; i < MaxAttempts; i++ {
		store.RecordFailure("a@x.com")
	}
	store.RecordFailure("b@y.com")

	assert.True(t, store.IsLocked("a@x.com", clk.Now()))
	assert.False(t, store.IsLocked("b@y.com", clk.Now()))
	assert.Equal(t, 1, store.Attempts("b@y.com"))

	store.RecordSuccess("b@y.com")
	assert.True(t, store.IsLocked("a@x.com", clk.Now()))
}

func TestThrottleStore_EmptyIdentifierIsThrottled(t *testing.T) {
	store, _, clk := newThrottle(t)
	for i := 0; i < MaxAttempts; i++ {
		store.RecordFailure("")
	}
	assert.True(t, store.IsLocked("", clk.Now()))
}

func TestThrottleStore_RemainingSecondsRoundsUp(t *testing.T) {
	store, _, _ := newThrottle(t)
	for i := 0; i < MaxAttempts; i++ {
		store.RecordFailure("a@x.com")
	}

	tests := []struct {
		elapsed time.Duration
		want    int
	}{
		{0, 60},
		{1, 60},
		{500 * time.Millisecond, 60},
		{time.Second, 59},
		{59*time.Second + 1, 1},
		{60 * time.Second, 0},
		{90 * time.Second, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, store.RemainingSeconds("a@x.com", testStart.Add(tt.elapsed)), "elapsed %s", tt.elapsed)
	}
}

func TestThrottleStore_PersistedFormat(t *testing.T) {
	store, backend, _ := newThrottle(t)
	for i := 0; i < MaxAttempts; i++ {
		store.RecordFailure("a@x.com")
	}
	store.RecordFailure("b@y.com")

	raw, ok, err := backend.Get("login_attempts")
	require.NoError(t, err)
	require.True(t, ok)
	var attempts map[string]int
	require.NoError(t, json.Unmarshal(raw, &attempts))
	assert.Equal(t, map[string]int{"a@x.com": 5, "b@y.com": 1}, attempts)

	raw, ok, err = backend.Get("login_lockouts")
	require.NoError(t, err)
	require.True(t, ok)
	var lockouts map[string]int64
	require.NoError(t, json.Unmarshal(raw, &lockouts))
	assert.Equal(t, map[string]int64{"a@x.com": testStart.Add(Cooldown).UnixMilli()}, lockouts)
}

func TestThrottleStore_ReloadMidLockout(t *testing.T) {
	store, backend, clk := newThrottle(t)
	for i := 0; i < MaxAttempts; i++ {
		store.RecordFailure("a@x.com")
	}
	store.RecordFailure("b@y.com")

	clk.Set(testStart.Add(20 * time.Second))
	reloaded := NewThrottleStore(backend, clk, logger.Discard())

	assert.True(t, reloaded.IsLocked("a@x.com", clk.Now()))
	assert.Equal(t, 40, reloaded.RemainingSeconds("a@x.com", clk.Now()))
	assert.Equal(t, 1, reloaded.Attempts("b@y.com"))
}

func TestThrottleStore_LockedUntilInClockLocation(t *testing.T) {
	zone := time.FixedZone("UTC-5", -5*60*60)
	start := testStart.In(zone)
	clk := clock.NewFake(start)
	store := NewThrottleStore(kv.NewMemory(), clk, logger.Discard())

	var res FailureResult
	for i := 0; i < MaxAttempts; i++ {
		res = store.RecordFailure("a@x.com")
	}
	require.True(t, res.Locked)
	assert.True(t, start.Add(Cooldown).Equal(res.LockedUntil))
	assert.Equal(t, zone, res.LockedUntil.Location())

	status := store.Status("a@x.com", clk.Now())
	assert.True(t, start.Add(Cooldown).Equal(status.LockedUntil))
	assert.Equal(t, zone, status.LockedUntil.Location())
}

func TestThrottleStore_InvalidUTF8IdentifierSurvivesReload(t *testing.T) {
	store, backend, clk := newThrottle(t)
	id := "a\xffb@x.com"
	for i := 0; i < MaxAttempts; i++ {
		store.RecordFailure(id)
	}
	require.True(t, store.IsLocked(id, clk.Now()))

	reloaded := NewThrottleStore(backend, clk, logger.Discard())
	assert.True(t, reloaded.IsLocked(id, clk.Now()))
	assert.Equal(t, MaxAttempts, reloaded.Attempts(id))
	assert.Equal(t, 60, reloaded.RemainingSeconds(id, clk.Now()))

	reloaded.RecordSuccess(id)
	assert.False(t, reloaded.IsLocked(id, clk.Now()))
	again := NewThrottleStore(backend, clk, logger.Discard())
	assert.False(t, again.IsLocked(id, clk.Now()))
}

func TestThrottleStore_NotifiesNormalizedIdentifier(t *testing.T) {
	store, _, _ := newThrottle(t)
	var seen []string
	store.Subscribe(func(id string) { seen = append(seen, id) })

	store.RecordFailure("a\xffb@x.com")
	store.RecordFailure("a@x.com")

	assert.Equal(t, []string{"a\uFFFDb@x.com", "a@x.com"}, seen)
}

func TestThrottleStore_MalformedRecordsLoadEmpty(t *testing.T) {
	backend := kv.NewMemory()
	require.NoError(t, backend.Set(attemptsKey, []byte("not json")))
	require.NoError(t, backend.Set(lockoutsKey, []byte(`{"a@x.com":"soon"}`)))
	clk := clock.NewFake(testStart)

	store := NewThrottleStore(backend, clk, logger.Discard())

	assert.Equal(t, 0, store.Attempts("a@x.com"))
	assert.False(t, store.IsLocked("a@x.com", clk.Now()))
}

func TestThrottleStore_SubscribeNotifiesAfterPersist(t *testing.T) {
	store, backend, clk := newThrottle(t)

	var seen []string
	var persisted []string
	unsubscribe := store.Subscribe(func(id string) {
		seen = append(seen, id)
		raw, _, _ := backend.Get(attemptsKey)
		persisted = append(persisted, string(raw))
	})

	store.RecordFailure("a@x.com")
	store.RecordSuccess("a@x.com")
	store.IsLocked("a@x.com", clk.Now())

	assert.Equal(t, []string{"a@x.com", "a@x.com"}, seen)
	assert.JSONEq(t, `{"a@x.com":1}`, persisted[0])
	assert.JSONEq(t, `{}`, persisted[1])

	unsubscribe()
	store.RecordFailure("a@x.com")
	assert.Len(t, seen, 2)
}

func TestThrottleStore_Options(t *testing.T) {
	clk := clock.NewFake(testStart)
	store := NewThrottleStore(kv.NewMemory(), clk, logger.Discard(), WithMaxAttempts(2), WithCooldown(10*time.Second), WithMaxAttempts(0))

	store.RecordFailure("a@x.com")
	res := store.RecordFailure("a@x.com")

	assert.True(t, res.Locked)
	assert.Equal(t, 10, store.RemainingSeconds("a@x.com", clk.Now()))
}
