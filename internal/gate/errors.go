package gate

import "errors"

// Misuse errors. Every other failure is reported as an Outcome.
var (
	ErrSubmitInFlight   = errors.New("a submission is already in flight")
	ErrCodeIncomplete   = errors.New("code must be exactly 6 digits")
	ErrNoChallenge      = errors.New("no pending second-factor challenge")
	ErrNotAuthenticated = errors.New("not authenticated")
)
