package gate

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/BradenHooton/libgate/internal/apiclient"
	"github.com/BradenHooton/libgate/pkg/logger"
)

const (
	CodeLength         = 6
	defaultCodeMessage = "Invalid code"
)

// Challenge is the pending second factor opened by a Submit that returned
// SecondFactorRequired. Verification is not throttled.
type Challenge struct {
	gate       *Gate
	subjectID  string
	identifier string

	mu       sync.Mutex
	code     string
	inFlight bool
	closed   bool
}

func (c *Challenge) SubjectID() string {
	return c.subjectID
}

// SetCode replaces the code buffer, keeping at most the first six characters.
func (c *Challenge) SetCode(code string) {
	r := []rune(code)
	if len(r) > CodeLength {
		r = r[:CodeLength]
	}

	c.mu.Lock()
	c.code = string(r)
	c.mu.Unlock()
}

func (c *Challenge) Code() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
}

// CanSubmit reports whether the buffer holds exactly six ASCII digits and no
// verification is pending.
func (c *Challenge) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed && !c.inFlight && validCode(c.code)
}

func (c *Challenge) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Closed reports whether the challenge was verified, cancelled, or replaced.
func (c *Challenge) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Verify posts the buffered code. An incomplete code returns
// ErrCodeIncomplete without a network call.
func (c *Challenge) Verify(ctx context.Context) (Outcome, error) {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return nil, ErrNoChallenge
	case c.inFlight:
		c.mu.Unlock()
		return nil, ErrSubmitInFlight
	case !validCode(c.code):
		c.mu.Unlock()
		return nil, ErrCodeIncomplete
	}
	c.inFlight = true
	code := c.code
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	g := c.gate
	res, err := g.auth.VerifyTwoFactor(ctx, c.subjectID, code)
	if err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) {
			msg := apiErr.Message
			if msg == "" {
				msg = defaultCodeMessage
			}
			g.audit.LogAuthAttempt(ctx, logger.AuditEvent{
				EventType:     logger.EventSecondFactor,
				Identifier:    c.identifier,
				UserID:        c.subjectID,
				Success:       false,
				FailureReason: msg,
			})
			return InvalidCode{Message: msg}, nil
		}
		g.logger.Warn("second-factor request failed",
			slog.String("user_id", c.subjectID),
			slog.String("error", err.Error()),
		)
		return TransientError{Err: err}, nil
	}

	// a response arriving after Cancel still establishes the session
	g.throttle.RecordSuccess(c.identifier)
	g.closeChallenge(c)
	g.audit.LogAuthAttempt(ctx, logger.AuditEvent{
		EventType:  logger.EventSecondFactor,
		Identifier: c.identifier,
		UserID:     c.subjectID,
		Success:    true,
	})
	profile := g.session.SetToken(ctx, res.AccessToken)
	return Authenticated{Profile: profile}, nil
}

// Cancel discards the challenge without establishing a session.
func (c *Challenge) Cancel() {
	c.gate.closeChallenge(c)
}

func (c *Challenge) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func validCode(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
