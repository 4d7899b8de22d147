package ircmsg

import (
	"bytes"
	"strings"

	"github.com/danmuck/ircwire/internal/ircstr"
)

const ctcpDelim = '\x01'

// CTCP is a client-to-client query or reply carried in the final argument
// of PRIVMSG (queries) or NOTICE (replies).
type CTCP struct {
	Command string
	Params  string
}

// ParseCTCP extracts a CTCP payload. The closing delimiter is optional, as
// many clients omit it.
func ParseCTCP(text ircstr.Line) (CTCP, bool) {
	raw := text.Raw()
	if len(raw) < 2 || raw[0] != ctcpDelim {
		return CTCP{}, false
	}
	raw = bytes.TrimSuffix(raw[1:], []byte{ctcpDelim})
	cmd, params, _ := strings.Cut(string(raw), " ")
	if cmd == "" {
		return CTCP{}, false
	}
	return CTCP{Command: strings.ToUpper(cmd), Params: params}, true
}

// Line renders the delimited payload.
func (c CTCP) Line() (ircstr.Line, error) {
	b := ircstr.NewBuilder(len(c.Command) + len(c.Params) + 3)
	b.AppendByte(ctcpDelim)
	b.AppendString(c.Command)
	if c.Params != "" {
		b.AppendByte(' ')
		b.AppendString(c.Params)
	}
	b.AppendByte(ctcpDelim)
	return ircstr.LineFrom(b.Build())
}

// CTCPMsg wraps c in a PRIVMSG (query) or NOTICE (reply) to target.
func CTCPMsg(cmd string, target ircstr.Arg, c CTCP) (*ClientMsg, error) {
	line, err := c.Line()
	if err != nil {
		return nil, err
	}
	out, err := NewClientMsg(cmd)
	if err != nil {
		return nil, err
	}
	if err := out.Args.Add(target); err != nil {
		return nil, err
	}
	if err := out.Args.AddLast(line); err != nil {
		return nil, err
	}
	return out, nil
}
