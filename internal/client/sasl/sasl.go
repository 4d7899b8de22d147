// Package sasl implements IRCv3 SASL authentication: mechanism state
// machines, AUTHENTICATE chunking, lazy credential sources, and the
// Negotiator that walks a preference list until one mechanism succeeds.
package sasl

import (
	"errors"
	"fmt"
)

var (
	ErrExhausted         = errors.New("sasl: all mechanisms exhausted")
	ErrRejected          = errors.New("sasl: server rejected authentication")
	ErrAborted           = errors.New("sasl: authentication aborted")
	ErrNickLocked        = errors.New("sasl: account unavailable")
	ErrMessageTooLong    = errors.New("sasl: response too long")
	ErrUnexpectedData    = errors.New("sasl: unexpected server data")
	ErrAlreadyDone       = errors.New("sasl: mechanism already finished")
	ErrServerSignature   = errors.New("sasl: server signature mismatch")
	ErrNoCredentials     = errors.New("sasl: credentials unavailable")
	ErrNotOffered        = errors.New("sasl: mechanism not offered by server")
	ErrChunkTooLong      = errors.New("sasl: chunk longer than 400 bytes")
	ErrChallengeTooLarge = errors.New("sasl: challenge exceeds size limit")
)

// State is a mechanism session's progress.
type State int

const (
	StateInitial State = iota
	StateContinue
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateContinue:
		return "continue"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is one authentication attempt. Step consumes a decoded server
// challenge and returns the raw response to send. Release zeroes any
// secret material the session still holds.
type Session interface {
	Step(challenge []byte) ([]byte, error)
	State() State
	Release()
}

// Mechanism names a SASL mechanism and starts sessions for it. Start is
// where credentials are loaded, so a failing source only surfaces when
// the mechanism is actually attempted.
type Mechanism interface {
	Name() string
	Start() (Session, error)
}

// AuthError records why one mechanism did not authenticate.
type AuthError struct {
	Mechanism string
	Reason    string
	Err       error
}

func (e *AuthError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("sasl %s: %v: %s", e.Mechanism, e.Err, e.Reason)
	}
	return fmt.Sprintf("sasl %s: %v", e.Mechanism, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }
