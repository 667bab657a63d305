package gate

import (
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/libgate/internal/clock"
	"github.com/BradenHooton/libgate/internal/kv"
	"github.com/BradenHooton/libgate/pkg/logger"
)

const (
	MaxAttempts = 5
	Cooldown    = 60 * time.Second

	attemptsKey = "login_attempts"
	lockoutsKey = "login_lockouts"
)

// FailureResult is returned by RecordFailure.
type FailureResult struct {
	Count       int
	Locked      bool
	LockedUntil time.Time
}

// LockoutStatus is a consistent snapshot of one identifier's throttle entries.
type LockoutStatus struct {
	Attempts         int
	Locked           bool
	LockedUntil      time.Time
	RemainingSeconds int
}

// ThrottleStore counts failed credential checks per identifier and locks an
// identifier out for the cooldown once the threshold is reached. Both maps are
// written through to the backend after every mutation and loaded once at
// construction.
type ThrottleStore struct {
	mu       sync.Mutex
	backend  kv.Store
	clock    clock.Clock
	logger   *slog.Logger
	attempts map[string]int
	lockouts map[string]int64 // epoch milliseconds

	maxAttempts int
	cooldown    time.Duration

	subMu  sync.Mutex
	subs   map[int]func(identifier string)
	nextID int
}

type ThrottleOption func(*ThrottleStore)

// WithMaxAttempts overrides the failure threshold. Values below 1 are ignored.
func WithMaxAttempts(n int) ThrottleOption {
	return func(t *ThrottleStore) {
		if n > 0 {
			t.maxAttempts = n
		}
	}
}

// WithCooldown overrides the lockout duration. Non-positive values are ignored.
func WithCooldown(d time.Duration) ThrottleOption {
	return func(t *ThrottleStore) {
		if d > 0 {
			t.cooldown = d
		}
	}
}

func NewThrottleStore(backend kv.Store, clk clock.Clock, log *slog.Logger, opts ...ThrottleOption) *ThrottleStore {
	t := &ThrottleStore{
		backend:     backend,
		clock:       clk,
		logger:      log,
		attempts:    make(map[string]int),
		lockouts:    make(map[string]int64),
		maxAttempts: MaxAttempts,
		cooldown:    Cooldown,
		subs:        make(map[int]func(string)),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.load()
	return t
}

func (t *ThrottleStore) MaxAttempts() int {
	return t.maxAttempts
}

func (t *ThrottleStore) Cooldown() time.Duration {
	return t.cooldown
}

// RecordFailure counts a rejected credential check. Reaching the threshold
// sets the lockout to now plus the cooldown.
func (t *ThrottleStore) RecordFailure(identifier string) FailureResult {
	identifier = normalizeIdentifier(identifier)

	t.mu.Lock()
	t.attempts[identifier]++
	result := FailureResult{Count: t.attempts[identifier]}
	if result.Count >= t.maxAttempts {
		now := t.clock.Now()
		t.lockouts[identifier] = now.Add(t.cooldown).UnixMilli()
		result.Locked = true
		result.LockedUntil = fromMillis(t.lockouts[identifier], now)
	}
	t.saveLocked()
	t.mu.Unlock()

	t.notify(identifier)
	return result
}

// RecordSuccess removes both entries for identifier.
func (t *ThrottleStore) RecordSuccess(identifier string) {
	identifier = normalizeIdentifier(identifier)

	t.mu.Lock()
	t.clearLocked(identifier)
	t.saveLocked()
	t.mu.Unlock()

	t.notify(identifier)
}

// IsLocked reports whether identifier is locked at now. An expired lockout
// clears both entries before returning false.
func (t *ThrottleStore) IsLocked(identifier string, now time.Time) bool {
	return t.Status(identifier, now).Locked
}

// RemainingSeconds is the whole seconds left on the lockout, rounded up, or 0.
// It never clears entries.
func (t *ThrottleStore) RemainingSeconds(identifier string, now time.Time) int {
	identifier = normalizeIdentifier(identifier)

	t.mu.Lock()
	defer t.mu.Unlock()

	expiry, ok := t.lockouts[identifier]
	if !ok {
		return 0
	}
	return ceilSeconds(time.UnixMilli(expiry).Sub(now))
}

func (t *ThrottleStore) Attempts(identifier string) int {
	identifier = normalizeIdentifier(identifier)

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts[identifier]
}

// Status evaluates identifier at now with the same lazy expiry as IsLocked.
func (t *ThrottleStore) Status(identifier string, now time.Time) LockoutStatus {
	identifier = normalizeIdentifier(identifier)

	t.mu.Lock()

	expiry, ok := t.lockouts[identifier]
	if ok && !time.UnixMilli(expiry).After(now) {
		t.clearLocked(identifier)
		t.saveLocked()
		t.mu.Unlock()

		t.logger.Info("login lockout expired", slog.String("identifier", logger.SanitizedEmail(identifier)))
		t.notify(identifier)
		return LockoutStatus{}
	}

	status := LockoutStatus{Attempts: t.attempts[identifier]}
	if ok {
		status.Locked = true
		status.LockedUntil = fromMillis(expiry, now)
		status.RemainingSeconds = ceilSeconds(status.LockedUntil.Sub(now))
	}
	t.mu.Unlock()
	return status
}

// Subscribe registers f to be called with the identifier after every
// persisted mutation. The identifier is passed in its normalized form. f runs on the mutating goroutine and must not block.
func (t *ThrottleStore) Subscribe(f func(identifier string)) (unsubscribe func()) {
	t.subMu.Lock()
	defer t.subMu.Unlock()

	id := t.nextID
	t.nextID++
	t.subs[id] = f

	return func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		delete(t.subs, id)
	}
}

func (t *ThrottleStore) notify(identifier string) {
	t.subMu.Lock()
	ids := make([]int, 0, len(t.subs))
	for id := range t.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(string), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, t.subs[id])
	}
	t.subMu.Unlock()

	for _, f := range fns {
		f(identifier)
	}
}

func (t *ThrottleStore) clearLocked(identifier string) {
	delete(t.attempts, identifier)
	delete(t.lockouts, identifier)
}

func (t *ThrottleStore) load() {
	if raw, ok := t.read(attemptsKey); ok {
		var attempts map[string]int
		if err := json.Unmarshal(raw, &attempts); err != nil {
			t.logger.Warn("discarding malformed throttle record", slog.String("key", attemptsKey), slog.String("error", err.Error()))
			attempts = nil
		}
		for id, n := range attempts {
			if n > 0 {
				t.attempts[id] = n
			}
		}
	}

	if raw, ok := t.read(lockoutsKey); ok {
		var lockouts map[string]int64
		if err := json.Unmarshal(raw, &lockouts); err != nil {
			t.logger.Warn("discarding malformed throttle record", slog.String("key", lockoutsKey), slog.String("error", err.Error()))
			lockouts = nil
		}
		for id, expiry := range lockouts {
			t.lockouts[id] = expiry
		}
	}
}

func (t *ThrottleStore) read(key string) ([]byte, bool) {
	raw, ok, err := t.backend.Get(key)
	if err != nil {
		t.logger.Error("failed to load throttle record", slog.String("key", key), slog.String("error", err.Error()))
		return nil, false
	}
	return raw, ok
}

// saveLocked writes both records. A failed write is logged; the in-memory
// state stays authoritative for this process.
func (t *ThrottleStore) saveLocked() {
	t.write(attemptsKey, t.attempts)
	t.write(lockoutsKey, t.lockouts)
}

func (t *ThrottleStore) write(key string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		t.logger.Error("failed to encode throttle record", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	if err := t.backend.Set(key, payload); err != nil {
		t.logger.Error("failed to persist throttle record", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// normalizeIdentifier replaces invalid UTF-8 the way the JSON records would,
// so an identifier maps to the same key in memory and after a reload.
func normalizeIdentifier(identifier string) string {
	return strings.ToValidUTF8(identifier, "\uFFFD")
}

// fromMillis converts a persisted expiry into ref's location.
func fromMillis(ms int64, ref time.Time) time.Time {
	return time.UnixMilli(ms).In(ref.Location())
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
