package ircmsg

// ServerMsg is a message received from a server.
type ServerMsg struct {
	Tags   Tags
	Source *Source
	Kind   Kind
	Args   Args
}

// ParseServerMsg parses one line received from a server. The returned
// message shares memory with line; the caller must not modify line
// afterwards. max is the active line ceiling (DefaultMaxLine if <= 0).
func ParseServerMsg(line []byte, max int) (*ServerMsg, error) {
	raw, err := parseLine(line, max, MaxServerTags)
	if err != nil {
		return nil, err
	}
	kind, err := ParseKind(raw.kind)
	if err != nil {
		return nil, parseErr(TokenCommand, raw.kindAt, ErrInvalidCommand, err)
	}
	return &ServerMsg{Tags: raw.tags, Source: raw.source, Kind: kind, Args: raw.args}, nil
}

func (m *ServerMsg) EncodedLen() int {
	n := m.Tags.encodedLen() + m.Kind.encodedLen() + m.Args.encodedLen()
	if m.Source != nil {
		n += 2 + m.Source.encodedLen()
	}
	return n
}

// Encode returns the CRLF-terminated wire form. Messages that would not
// parse back fail with an *EncodeError: a zero Kind, a source that does
// not validate, a tag section over MaxServerTags or a body over max bytes
// (DefaultMaxLine if max <= 0).
func (m *ServerMsg) Encode(max int) ([]byte, error) {
	if m.Kind.IsZero() {
		return nil, encodeErr(TokenCommand, ErrMissingCommand)
	}
	if m.Source != nil {
		if err := m.Source.Validate(); err != nil {
			return nil, encodeErr(TokenSource, err)
		}
	}
	tags := m.Tags.encodedLen()
	n := m.EncodedLen()
	if err := checkLen(tags, n-tags, max, MaxServerTags); err != nil {
		return nil, err
	}
	return appendEOL(m.appendWire(make([]byte, 0, n+2), false)), nil
}

func (m *ServerMsg) appendWire(dst []byte, redact bool) []byte {
	dst = m.Tags.appendTo(dst, redact)
	if m.Source != nil {
		dst = append(dst, ':')
		dst = m.Source.appendTo(dst)
		dst = append(dst, ' ')
	}
	dst = m.Kind.appendTo(dst)
	return m.Args.appendTo(dst, redact)
}

func (m *ServerMsg) String() string {
	return string(m.appendWire(nil, true))
}

func (m *ServerMsg) Equal(o *ServerMsg) bool {
	if (m.Source == nil) != (o.Source == nil) {
		return false
	}
	if m.Source != nil && !m.Source.Equal(*o.Source) {
		return false
	}
	return m.Kind.Equal(o.Kind) && m.Tags.Equal(&o.Tags) && m.Args.Equal(&o.Args)
}

// SourceNick returns the source nick text, or "" without a source.
func (m *ServerMsg) SourceNick() string {
	if m.Source == nil {
		return ""
	}
	return m.Source.Nick.Text()
}
