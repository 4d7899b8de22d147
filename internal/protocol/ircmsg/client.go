package ircmsg

import (
	"fmt"

	"github.com/danmuck/ircwire/internal/ircstr"
)

// ClientMsg is a message sent by a client. It never carries a source.
type ClientMsg struct {
	Tags Tags
	Cmd  ircstr.Cmd
	Args Args
}

// NewClientMsg builds a message from a command name and string arguments.
// See NewArgs for how the final argument is placed.
func NewClientMsg(cmd string, args ...string) (*ClientMsg, error) {
	c, err := ircstr.NewCmd(cmd)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	a, err := NewArgs(args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArg, err)
	}
	return &ClientMsg{Cmd: c, Args: a}, nil
}

// MustClientMsg is NewClientMsg for constant input; it panics on error.
func MustClientMsg(cmd string, args ...string) *ClientMsg {
	m, err := NewClientMsg(cmd, args...)
	if err != nil {
		panic(err)
	}
	return m
}

// ParseClientMsg parses one line sent by a client. A source prefix is an
// error.
func ParseClientMsg(line []byte, max int) (*ClientMsg, error) {
	raw, err := parseLine(line, max, MaxClientTags)
	if err != nil {
		return nil, err
	}
	if raw.source != nil {
		return nil, parseErr(TokenSource, 0, ErrUnexpectedSource, nil)
	}
	kind, err := ParseKind(raw.kind)
	if err != nil {
		return nil, parseErr(TokenCommand, raw.kindAt, ErrInvalidCommand, err)
	}
	cmd, ok := kind.Cmd()
	if !ok {
		return nil, parseErr(TokenCommand, raw.kindAt, ErrInvalidCommand, nil)
	}
	return &ClientMsg{Tags: raw.tags, Cmd: cmd, Args: raw.args}, nil
}

// EncodedLen is the wire length without CRLF.
func (m *ClientMsg) EncodedLen() int {
	return m.Tags.encodedLen() + m.Cmd.Len() + m.Args.encodedLen()
}

// Encode returns the CRLF-terminated wire form. It fails with an
// *EncodeError wrapping ErrMissingCommand for a message without a command,
// or ErrLineTooLong when the tag section exceeds MaxClientTags or the rest
// exceeds max bytes (DefaultMaxLine if max <= 0).
func (m *ClientMsg) Encode(max int) ([]byte, error) {
	return m.AppendTo(nil, max)
}

func (m *ClientMsg) AppendTo(dst []byte, max int) ([]byte, error) {
	if m.Cmd.IsZero() {
		return dst, encodeErr(TokenCommand, ErrMissingCommand)
	}
	tags := m.Tags.encodedLen()
	n := m.EncodedLen()
	if err := checkLen(tags, n-tags, max, MaxClientTags); err != nil {
		return dst, err
	}
	if cap(dst)-len(dst) < n+2 {
		grown := make([]byte, len(dst), len(dst)+n+2)
		copy(grown, dst)
		dst = grown
	}
	return appendEOL(m.appendWire(dst, false)), nil
}

func (m *ClientMsg) appendWire(dst []byte, redact bool) []byte {
	dst = m.Tags.appendTo(dst, redact)
	dst = append(dst, m.Cmd.Raw()...)
	return m.Args.appendTo(dst, redact)
}

// String renders the message for diagnostics, redacting secret pieces.
func (m *ClientMsg) String() string {
	return string(m.appendWire(nil, true))
}

func (m *ClientMsg) Clone() *ClientMsg {
	return &ClientMsg{Tags: m.Tags.Clone(), Cmd: m.Cmd, Args: m.Args.Clone()}
}

func (m *ClientMsg) Equal(o *ClientMsg) bool {
	return m.Cmd.Equal(o.Cmd) && m.Tags.Equal(&o.Tags) && m.Args.Equal(&o.Args)
}

// IsSecret reports whether any argument is marked secret.
func (m *ClientMsg) IsSecret() bool {
	for _, a := range m.Args.All() {
		if a.IsSecret() {
			return true
		}
	}
	return false
}
