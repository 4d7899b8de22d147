package ircstr

import (
	"bytes"
	"sync/atomic"
	"unicode/utf8"
)

const redacted = "<secret>"

type utf8State uint32

const (
	utf8Unknown utf8State = iota
	utf8Valid
	utf8Invalid
)

type meta struct {
	utf8   atomic.Uint32
	secret bool
}

func newMeta(state utf8State, secret bool) *meta {
	m := &meta{secret: secret}
	m.utf8.Store(uint32(state))
	return m
}

// Bytes is an immutable byte sequence.
//
// Values are cheap to copy and share their backing array. Content must not
// be mutated after construction; the only exception is Release on a secret
// buffer. Equality and ordering use content only.
type Bytes struct {
	b []byte
	m *meta
}

// New copies s into a new Bytes.
func New(s string) Bytes {
	return Bytes{b: []byte(s), m: newMeta(utf8Unknown, false)}
}

// Copy copies b into a new Bytes.
func Copy(b []byte) Bytes {
	return Bytes{b: bytes.Clone(b), m: newMeta(utf8Unknown, false)}
}

// Wrap takes b without copying. The caller must not modify b afterwards.
func Wrap(b []byte) Bytes {
	return Bytes{b: b, m: newMeta(utf8Unknown, false)}
}

// NewSecret copies b into a new Bytes marked secret.
func NewSecret(b []byte) Bytes {
	return Bytes{b: bytes.Clone(b), m: newMeta(utf8Unknown, true)}
}

func (s Bytes) Len() int      { return len(s.b) }
func (s Bytes) IsEmpty() bool { return len(s.b) == 0 }

// Raw returns the shared content. Callers must not modify it.
func (s Bytes) Raw() []byte { return s.b }

// Text returns the content as a string, secret or not.
func (s Bytes) Text() string { return string(s.b) }

// String returns the content for diagnostics. Secret content is redacted.
func (s Bytes) String() string {
	if s.IsSecret() {
		return redacted
	}
	return string(s.b)
}

func (s Bytes) IsSecret() bool { return s.m != nil && s.m.secret }

// Secret returns s marked secret. The mark is sticky for every value
// derived from the result.
func (s Bytes) Secret() Bytes {
	if s.IsSecret() {
		return s
	}
	return Bytes{b: s.b, m: newMeta(s.state(), true)}
}

func (s Bytes) state() utf8State {
	if s.m == nil {
		return utf8Valid
	}
	return utf8State(s.m.utf8.Load())
}

// IsUTF8 reports whether the content is valid UTF-8, caching the answer.
func (s Bytes) IsUTF8() bool {
	switch s.state() {
	case utf8Valid:
		return true
	case utf8Invalid:
		return false
	}
	valid := utf8.Valid(s.b)
	if valid {
		s.m.utf8.Store(uint32(utf8Valid))
	} else {
		s.m.utf8.Store(uint32(utf8Invalid))
	}
	return valid
}

func (s Bytes) Equal(o Bytes) bool  { return bytes.Equal(s.b, o.b) }
func (s Bytes) Compare(o Bytes) int { return bytes.Compare(s.b, o.b) }

// Slice returns s[i:j] sharing the backing array. A known-valid UTF-8 flag
// carries over when both cut points fall on ASCII bytes.
func (s Bytes) Slice(i, j int) Bytes {
	state := utf8Unknown
	if s.state() == utf8Valid && asciiBoundary(s.b, i) && asciiBoundary(s.b, j) {
		state = utf8Valid
	}
	return Bytes{b: s.b[i:j:j], m: newMeta(state, s.IsSecret())}
}

func asciiBoundary(b []byte, i int) bool {
	if i <= 0 || i >= len(b) {
		return true
	}
	return b[i] < utf8.RuneSelf
}

// Release zeroes secret content. It does nothing for non-secret values.
// Other values sharing the same backing array observe the zeroed bytes.
func (s Bytes) Release() {
	if !s.IsSecret() {
		return
	}
	clear(s.b)
}

// derive wraps b with the secret flag of s and the given UTF-8 state.
func (s Bytes) derive(b []byte, state utf8State) Bytes {
	return Bytes{b: b, m: newMeta(state, s.IsSecret())}
}
