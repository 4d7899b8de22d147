package ircstr

import "unicode/utf8"

// Builder concatenates pieces into a new Bytes, tracking UTF-8 validity
// where it can be known without a rescan.
type Builder struct {
	buf    []byte
	state  utf8State
	secret bool
}

func NewBuilder(capacity int) *Builder {
	return &Builder{buf: make([]byte, 0, capacity), state: utf8Valid}
}

func (b *Builder) Len() int { return len(b.buf) }

func (b *Builder) Append(s Bytes) {
	b.buf = append(b.buf, s.b...)
	if s.IsSecret() {
		b.secret = true
	}
	if s.state() != utf8Valid {
		b.state = utf8Unknown
	}
}

func (b *Builder) AppendString(s string) {
	b.buf = append(b.buf, s...)
	if b.state == utf8Valid && !utf8.ValidString(s) {
		b.state = utf8Unknown
	}
}

func (b *Builder) AppendByte(c byte) {
	b.buf = append(b.buf, c)
	if c >= utf8.RuneSelf {
		b.state = utf8Unknown
	}
}

// Build hands the accumulated content to a new Bytes and resets b.
func (b *Builder) Build() Bytes {
	out := Bytes{b: b.buf, m: newMeta(b.state, b.secret)}
	b.buf = nil
	b.state = utf8Valid
	b.secret = false
	return out
}
