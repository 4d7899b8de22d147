// Package nick produces nickname candidates for registration: the
// configured list first, then generated fallbacks.
package nick

import (
	"errors"

	"github.com/danmuck/ircwire/internal/ircstr"
)

var ErrNoNicks = errors.New("nick: no nicknames configured")

// Generator yields candidates in order. Reject is told about a nick the
// server refused as erroneous (432) so a generator can stop producing
// variants of it.
type Generator interface {
	Next() (ircstr.Nick, bool)
	Reject(nick ircstr.Nick)
}

// List yields a fixed set of nicks once each.
type List struct {
	nicks []ircstr.Nick
}

func NewList(nicks ...ircstr.Nick) *List {
	return &List{nicks: append([]ircstr.Nick(nil), nicks...)}
}

func (l *List) Next() (ircstr.Nick, bool) {
	if len(l.nicks) == 0 {
		return ircstr.Nick{}, false
	}
	n := l.nicks[0]
	l.nicks = l.nicks[1:]
	return n, true
}

func (l *List) Reject(ircstr.Nick) {}

func (l *List) Remaining() int { return len(l.nicks) }

// chain drains each generator in turn.
type chain struct {
	gens []Generator
}

// Chain concatenates generators. Nil entries are skipped.
func Chain(gens ...Generator) Generator {
	c := &chain{}
	for _, g := range gens {
		if g != nil {
			c.gens = append(c.gens, g)
		}
	}
	return c
}

func (c *chain) Next() (ircstr.Nick, bool) {
	for len(c.gens) > 0 {
		if n, ok := c.gens[0].Next(); ok {
			return n, true
		}
		c.gens = c.gens[1:]
	}
	return ircstr.Nick{}, false
}

func (c *chain) Reject(nick ircstr.Nick) {
	for _, g := range c.gens {
		g.Reject(nick)
	}
}

// Candidates builds the usual registration sequence from configured nicks.
// With skipFirst the first nick is only a seed for suffix: it is never
// tried bare. suffix may be nil, in which case only the list is tried.
func Candidates(nicks []ircstr.Nick, skipFirst bool, suffix *Suffix) (Generator, error) {
	if len(nicks) == 0 {
		return nil, ErrNoNicks
	}
	listed := nicks
	if skipFirst {
		listed = nicks[1:]
	}
	var fallback Generator
	if suffix != nil {
		fallback = suffix.From(nicks[0])
	}
	return Chain(NewList(listed...), fallback), nil
}
