package gate

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/BradenHooton/libgate/internal/apiclient"
	"github.com/BradenHooton/libgate/internal/kv"
	"github.com/BradenHooton/libgate/pkg/logger"
)

const tokenKey = "token"

// SessionAPI is the part of the API the SessionManager calls.
type SessionAPI interface {
	Me(ctx context.Context, token string) (*apiclient.Profile, error)
	Logout(ctx context.Context, token string) error
	SetTwoFactor(ctx context.Context, token string, enable bool) (*apiclient.MessageResult, error)
}

type SessionEventKind int

const (
	// SessionSignedIn: a token and its profile are both present.
	SessionSignedIn SessionEventKind = iota + 1
	// SessionProfileUnavailable: the profile fetch failed in transport; the
	// token is kept for a later Restore.
	SessionProfileUnavailable
	// SessionExpired: the API rejected the token and the session was cleared.
	SessionExpired
	SessionSignedOut
	SessionProfileUpdated
)

func (k SessionEventKind) String() string {
	switch k {
	case SessionSignedIn:
		return "signed_in"
	case SessionProfileUnavailable:
		return "profile_unavailable"
	case SessionExpired:
		return "expired"
	case SessionSignedOut:
		return "signed_out"
	case SessionProfileUpdated:
		return "profile_updated"
	default:
		return "unknown"
	}
}

type SessionEvent struct {
	Kind    SessionEventKind
	Profile *apiclient.Profile
}

// SessionManager owns the bearer token and the profile fetched with it. The
// token is persisted under "token" in the backend.
type SessionManager struct {
	api     SessionAPI
	backend kv.Store
	logger  *slog.Logger
	audit   *logger.AuditLogger

	mu      sync.Mutex
	token   string
	profile *apiclient.Profile

	subMu  sync.Mutex
	subs   map[int]func(SessionEvent)
	nextID int
}

// NewSessionManager loads the persisted token without contacting the API.
// Call Restore to validate it.
func NewSessionManager(api SessionAPI, backend kv.Store, log *slog.Logger) *SessionManager {
	s := &SessionManager{
		api:     api,
		backend: backend,
		logger:  log,
		audit:   logger.NewAuditLogger(log),
		subs:    make(map[int]func(SessionEvent)),
	}

	raw, ok, err := backend.Get(tokenKey)
	switch {
	case err != nil:
		log.Error("failed to load session token", slog.String("error", err.Error()))
	case ok:
		s.token = string(raw)
	}
	return s
}

// Restore fetches the profile for a persisted token. It is a no-op without one.
func (s *SessionManager) Restore(ctx context.Context) {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	if token == "" {
		return
	}
	s.fetchProfile(ctx, token)
}

// SetToken persists token and fetches its profile. A rejected fetch clears
// the session again.
func (s *SessionManager) SetToken(ctx context.Context, token string) *apiclient.Profile {
	s.mu.Lock()
	s.token = token
	s.profile = nil
	s.mu.Unlock()

	if err := s.backend.Set(tokenKey, []byte(token)); err != nil {
		s.logger.Error("failed to persist session token", slog.String("error", err.Error()))
	}
	return s.fetchProfile(ctx, token)
}

// Logout tells the API to revoke the token, then clears local state whether
// or not that call succeeded.
func (s *SessionManager) Logout(ctx context.Context) {
	s.mu.Lock()
	token := s.token
	userID := ""
	if s.profile != nil {
		userID = s.profile.ID
	}
	s.mu.Unlock()

	if token != "" {
		if err := s.api.Logout(ctx, token); err != nil {
			s.logger.Warn("logout request failed", slog.String("error", err.Error()))
		}
	}

	s.clear()
	s.audit.LogAccountAction(ctx, logger.EventLogout, userID, nil)
	s.emit(SessionEvent{Kind: SessionSignedOut})
}

// SetTwoFactor enables or disables the second factor for the signed-in user
// and returns the API's confirmation message.
func (s *SessionManager) SetTwoFactor(ctx context.Context, enable bool) (string, error) {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	if token == "" {
		return "", ErrNotAuthenticated
	}

	res, err := s.api.SetTwoFactor(ctx, token, enable)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	var updated *apiclient.Profile
	if s.token == token && s.profile != nil {
		p := *s.profile
		p.TwoFactorEnabled = enable
		s.profile = &p
		updated = copyProfile(s.profile)
	}
	s.mu.Unlock()

	if updated != nil {
		s.audit.LogAccountAction(ctx, logger.EventTwoFactorToggle, updated.ID, map[string]string{
			"enabled": strconv.FormatBool(enable),
		})
		s.emit(SessionEvent{Kind: SessionProfileUpdated, Profile: updated})
	}
	return res.Message, nil
}

func (s *SessionManager) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Profile returns a copy of the current profile, or nil.
func (s *SessionManager) Profile() *apiclient.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyProfile(s.profile)
}

// Authenticated reports whether both a token and its profile are present.
func (s *SessionManager) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != "" && s.profile != nil
}

// Subscribe registers f for session events. f must not block.
func (s *SessionManager) Subscribe(f func(SessionEvent)) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextID
	s.nextID++
	s.subs[id] = f

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *SessionManager) fetchProfile(ctx context.Context, token string) *apiclient.Profile {
	profile, err := s.api.Me(ctx, token)
	if err != nil {
		if apiclient.IsAPIError(err) {
			// the token may have been replaced while the call was pending
			if s.clearIfToken(token) {
				s.logger.Info("session expired")
				s.audit.LogAccountAction(ctx, logger.EventSessionExpired, "", nil)
				s.emit(SessionEvent{Kind: SessionExpired})
			}
			return nil
		}
		s.logger.Warn("failed to fetch profile", slog.String("error", err.Error()))
		s.emit(SessionEvent{Kind: SessionProfileUnavailable})
		return nil
	}

	s.mu.Lock()
	if s.token != token {
		s.mu.Unlock()
		return nil
	}
	s.profile = copyProfile(profile)
	s.mu.Unlock()

	s.emit(SessionEvent{Kind: SessionSignedIn, Profile: copyProfile(profile)})
	return copyProfile(profile)
}

func (s *SessionManager) clearIfToken(token string) bool {
	s.mu.Lock()
	if s.token != token {
		s.mu.Unlock()
		return false
	}
	s.token = ""
	s.profile = nil
	s.mu.Unlock()

	s.deleteToken()
	return true
}

func (s *SessionManager) clear() {
	s.mu.Lock()
	s.token = ""
	s.profile = nil
	s.mu.Unlock()

	s.deleteToken()
}

func (s *SessionManager) deleteToken() {
	if err := s.backend.Delete(tokenKey); err != nil {
		s.logger.Error("failed to remove session token", slog.String("error", err.Error()))
	}
}

func (s *SessionManager) emit(ev SessionEvent) {
	s.subMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(SessionEvent), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subMu.Unlock()

	for _, f := range fns {
		f(ev)
	}
}

func copyProfile(p *apiclient.Profile) *apiclient.Profile {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
