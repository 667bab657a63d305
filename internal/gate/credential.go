// Package gate implements the client-side authentication gate: a
// per-identifier login throttle composed with a second-factor challenge and
// the session lifecycle.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BradenHooton/libgate/internal/apiclient"
	"github.com/BradenHooton/libgate/internal/clock"
	"github.com/BradenHooton/libgate/pkg/logger"
)

// Authenticator is the part of the API the gate calls before a session exists.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*apiclient.LoginResult, error)
	VerifyTwoFactor(ctx context.Context, userID, code string) (*apiclient.TokenResult, error)
}

// State is the coarse position of the gate in the login flow. LockedOut and
// Rejected are outcomes within Anonymous, not states of their own.
type State int

const (
	StateAnonymous State = iota
	StateSubmitting
	StateSecondFactorRequired
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateSubmitting:
		return "submitting"
	case StateSecondFactorRequired:
		return "second_factor_required"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Gate runs credential submissions through the throttle and owns the single
// pending second-factor challenge.
type Gate struct {
	auth     Authenticator
	throttle *ThrottleStore
	session  *SessionManager
	clock    clock.Clock
	logger   *slog.Logger
	audit    *logger.AuditLogger

	mu        sync.Mutex
	inFlight  bool
	challenge *Challenge
}

func New(auth Authenticator, throttle *ThrottleStore, session *SessionManager, clk clock.Clock, log *slog.Logger) *Gate {
	return &Gate{
		auth:     auth,
		throttle: throttle,
		session:  session,
		clock:    clk,
		logger:   log,
		audit:    logger.NewAuditLogger(log),
	}
}

// Submit checks identifier and secret. A locked identifier is refused without
// a network call. A second concurrent call returns ErrSubmitInFlight and has
// no other effect.
func (g *Gate) Submit(ctx context.Context, identifier, secret string) (Outcome, error) {
	g.mu.Lock()
	if g.inFlight {
		g.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	g.inFlight = true
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.inFlight = false
		g.mu.Unlock()
	}()

	if status := g.throttle.Status(identifier, g.clock.Now()); status.Locked {
		return LockedOut{RemainingSeconds: status.RemainingSeconds}, nil
	}

	res, err := g.auth.Login(ctx, identifier, secret)
	if err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) {
			return g.rejected(ctx, identifier, apiErr), nil
		}
		g.logger.Warn("login request failed",
			slog.String("identifier", logger.SanitizedEmail(identifier)),
			slog.String("error", err.Error()),
		)
		return TransientError{Err: err}, nil
	}

	switch {
	case res.RequiresTwoFactor:
		if res.UserID == "" {
			return TransientError{Err: fmt.Errorf("%w: requires_2fa without user_id", apiclient.ErrMalformedResponse)}, nil
		}
		ch := g.openChallenge(res.UserID, identifier)
		g.audit.LogAuthAttempt(ctx, logger.AuditEvent{
			EventType:  logger.EventChallengeIssued,
			Identifier: identifier,
			UserID:     res.UserID,
			Success:    true,
		})
		return SecondFactorRequired{SubjectID: res.UserID, Challenge: ch}, nil

	case res.AccessToken != "":
		g.throttle.RecordSuccess(identifier)
		g.audit.LogAuthAttempt(ctx, logger.AuditEvent{
			EventType:  logger.EventLogin,
			Identifier: identifier,
			Success:    true,
		})
		profile := g.session.SetToken(ctx, res.AccessToken)
		return Authenticated{Profile: profile}, nil

	default:
		return TransientError{Err: fmt.Errorf("%w: no access_token", apiclient.ErrMalformedResponse)}, nil
	}
}

func (g *Gate) rejected(ctx context.Context, identifier string, apiErr *apiclient.APIError) Outcome {
	result := g.throttle.RecordFailure(identifier)

	g.audit.LogAuthAttempt(ctx, logger.AuditEvent{
		EventType:     logger.EventLogin,
		Identifier:    identifier,
		Success:       false,
		FailureReason: apiErr.Message,
		Metadata:      map[string]string{"attempts": fmt.Sprint(result.Count)},
	})

	if result.Locked {
		g.audit.LogAuthAttempt(ctx, logger.AuditEvent{
			EventType:     logger.EventLoginLocked,
			Identifier:    identifier,
			Success:       false,
			FailureReason: "too many failed attempts",
		})
		return LockedOut{RemainingSeconds: ceilSeconds(g.throttle.Cooldown())}
	}

	return Rejected{
		AttemptsRemaining: g.throttle.MaxAttempts() - result.Count,
		Message:           apiErr.Message,
	}
}

// InFlight reports whether a Submit call is pending.
func (g *Gate) InFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// Pending returns the open challenge, or nil.
func (g *Gate) Pending() *Challenge {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.challenge
}

func (g *Gate) State() State {
	if g.session.Authenticated() {
		return StateAuthenticated
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.inFlight:
		return StateSubmitting
	case g.challenge != nil:
		return StateSecondFactorRequired
	default:
		return StateAnonymous
	}
}

func (g *Gate) Throttle() *ThrottleStore {
	return g.throttle
}

func (g *Gate) Session() *SessionManager {
	return g.session
}

// openChallenge replaces any previous challenge.
func (g *Gate) openChallenge(subjectID, identifier string) *Challenge {
	ch := &Challenge{gate: g, subjectID: subjectID, identifier: identifier}

	g.mu.Lock()
	prev := g.challenge
	g.challenge = ch
	g.mu.Unlock()

	if prev != nil {
		prev.markClosed()
	}
	return ch
}

func (g *Gate) closeChallenge(ch *Challenge) {
	g.mu.Lock()
	if g.challenge == ch {
		g.challenge = nil
	}
	g.mu.Unlock()
	ch.markClosed()
}
