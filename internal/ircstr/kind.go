package ircstr

import (
	"errors"
	"fmt"
)

var (
	ErrEmpty        = errors.New("ircstr: empty")
	ErrLeadingColon = errors.New("ircstr: leading colon")
	ErrBadByte      = errors.New("ircstr: invalid byte")
	ErrNotASCII     = errors.New("ircstr: non-ascii byte")
)

// Kind names one level of the restricted string lattice.
type Kind uint8

const (
	KindBytes Kind = iota
	KindNoNul
	KindLine
	KindWord
	KindArg
	KindHost
	KindKey
	KindNick
	KindUser
	KindCmd
)

var kindNames = [...]string{
	KindBytes: "bytes",
	KindNoNul: "nonul",
	KindLine:  "line",
	KindWord:  "word",
	KindArg:   "arg",
	KindHost:  "host",
	KindKey:   "key",
	KindNick:  "nick",
	KindUser:  "user",
	KindCmd:   "cmd",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// InvalidError names the restriction a byte string failed.
type InvalidError struct {
	Kind   Kind // the lattice level whose rule was violated
	Want   Kind // the type being constructed
	Offset int
	Byte   byte
	Err    error
}

func (e *InvalidError) Error() string {
	switch {
	case errors.Is(e.Err, ErrBadByte), errors.Is(e.Err, ErrNotASCII):
		return fmt.Sprintf("ircstr: invalid %s: %s byte 0x%02x at offset %d (%s rule)", e.Want, e.Err, e.Byte, e.Offset, e.Kind)
	default:
		return fmt.Sprintf("ircstr: invalid %s: %v (%s rule)", e.Want, e.Err, e.Kind)
	}
}

func (e *InvalidError) Unwrap() error { return e.Err }

type rule struct {
	banned   [256]Kind
	nonEmpty Kind
	noColon  Kind
}

var rules [len(kindNames)]rule

func init() {
	inherit := func(k, parent Kind) {
		rules[k] = rules[parent]
	}
	ban := func(k Kind, bs ...byte) {
		for _, b := range bs {
			if rules[k].banned[b] == KindBytes {
				rules[k].banned[b] = k
			}
		}
	}

	inherit(KindNoNul, KindBytes)
	ban(KindNoNul, 0)

	inherit(KindLine, KindNoNul)
	ban(KindLine, '\r', '\n')

	inherit(KindWord, KindLine)
	ban(KindWord, ' ')

	inherit(KindArg, KindWord)
	rules[KindArg].nonEmpty = KindArg
	rules[KindArg].noColon = KindArg

	inherit(KindHost, KindWord)
	rules[KindHost].nonEmpty = KindHost
	for b := 0x80; b <= 0xff; b++ {
		ban(KindHost, byte(b))
	}

	inherit(KindKey, KindArg)
	ban(KindKey, '=', ';')

	inherit(KindNick, KindArg)
	ban(KindNick, '!', '@')

	inherit(KindUser, KindArg)
	ban(KindUser, '@', '%')

	inherit(KindCmd, KindArg)
	rules[KindCmd].nonEmpty = KindCmd
	for b := 0; b <= 0xff; b++ {
		if b < 'A' || b > 'Z' {
			ban(KindCmd, byte(b))
		}
	}
}

// Check validates b against every rule of k and its ancestors.
func (k Kind) Check(b []byte) error {
	r := &rules[k]
	if len(b) == 0 {
		if r.nonEmpty != KindBytes {
			return &InvalidError{Kind: r.nonEmpty, Want: k, Err: ErrEmpty}
		}
		return nil
	}
	if r.noColon != KindBytes && b[0] == ':' {
		return &InvalidError{Kind: r.noColon, Want: k, Byte: ':', Err: ErrLeadingColon}
	}
	for i, c := range b {
		origin := r.banned[c]
		if origin == KindBytes {
			continue
		}
		err := ErrBadByte
		if c >= 0x80 && (origin == KindHost || origin == KindCmd) {
			err = ErrNotASCII
		}
		return &InvalidError{Kind: origin, Want: k, Offset: i, Byte: c, Err: err}
	}
	return nil
}

// Allows reports whether c may appear anywhere in a value of kind k.
func (k Kind) Allows(c byte) bool {
	return rules[k].banned[c] == KindBytes
}
