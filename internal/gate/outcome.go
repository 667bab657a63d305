package gate

import (
	"fmt"

	"github.com/BradenHooton/libgate/internal/apiclient"
)

// Outcome is the terminal result of a credential submission or a
// second-factor verification. The concrete types are LockedOut, Rejected,
// SecondFactorRequired, Authenticated, TransientError and InvalidCode.
type Outcome interface {
	outcome()
	String() string
}

// LockedOut means the identifier is in cooldown. When returned before the
// network call, no request was made.
type LockedOut struct {
	RemainingSeconds int
}

// Rejected means the API refused the credentials and the failure was counted.
type Rejected struct {
	AttemptsRemaining int
	Message           string
}

// SecondFactorRequired means the credentials were accepted but a code must
// be verified through the pending Challenge before a session exists.
type SecondFactorRequired struct {
	SubjectID string
	Challenge *Challenge
}

// Authenticated means a token was issued and handed to the SessionManager.
// Profile is nil when the profile fetch that followed did not succeed.
type Authenticated struct {
	Profile *apiclient.Profile
}

// TransientError means no usable response arrived. Nothing was counted.
type TransientError struct {
	Err error
}

// InvalidCode means the API rejected a second-factor code. The challenge
// stays open.
type InvalidCode struct {
	Message string
}

func (LockedOut) outcome()            {}
func (Rejected) outcome()             {}
func (SecondFactorRequired) outcome() {}
func (Authenticated) outcome()        {}
func (TransientError) outcome()       {}
func (InvalidCode) outcome()          {}

func (o LockedOut) String() string {
	return fmt.Sprintf("locked out, try again in %ds", o.RemainingSeconds)
}

func (o Rejected) String() string {
	return fmt.Sprintf("invalid credentials, %d attempts remaining", o.AttemptsRemaining)
}

func (o SecondFactorRequired) String() string {
	return "second factor required"
}

func (o Authenticated) String() string {
	return "authenticated"
}

func (o TransientError) String() string {
	return "an error occurred, please try again"
}

func (o InvalidCode) String() string {
	return o.Message
}
