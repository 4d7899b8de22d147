package sasl

import (
	"github.com/danmuck/ircwire/internal/ircstr"
)

// Plain is RFC 4616 PLAIN. It sends the password in the clear; use it
// over TLS.
type Plain struct {
	Source Source
}

func (Plain) Name() string { return "PLAIN" }

func (p Plain) Start() (Session, error) {
	if p.Source == nil {
		return nil, ErrNoCredentials
	}
	creds, err := p.Source.Load()
	if err != nil {
		return nil, err
	}
	defer creds.Release()

	b := ircstr.NewBuilder(len(creds.Authzid) + len(creds.Authcid) + creds.Password.Len() + 2)
	b.AppendString(creds.Authzid)
	b.AppendByte(0)
	b.AppendString(creds.Authcid)
	b.AppendByte(0)
	b.Append(creds.Password)
	return &oneShot{payload: b.Build().Secret()}, nil
}

// External is RFC 4422 EXTERNAL, authenticating out of band (a TLS client
// certificate). Authzid may be empty.
type External struct {
	Authzid string
}

func (External) Name() string { return "EXTERNAL" }

func (e External) Start() (Session, error) {
	return &oneShot{payload: ircstr.New(e.Authzid)}, nil
}

// oneShot answers the initial empty challenge with a fixed payload.
type oneShot struct {
	payload ircstr.Bytes
	state   State
}

func (s *oneShot) Step(challenge []byte) ([]byte, error) {
	if s.state == StateDone {
		return nil, ErrAlreadyDone
	}
	if len(challenge) != 0 {
		return nil, ErrUnexpectedData
	}
	s.state = StateDone
	return s.payload.Raw(), nil
}

func (s *oneShot) State() State { return s.state }

func (s *oneShot) Release() { s.payload.Release() }
