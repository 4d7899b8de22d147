package ircmsg

import "github.com/danmuck/ircwire/internal/ircstr"

// MaxArgs is the most arguments one message may carry.
const MaxArgs = 15

// Args is the ordered argument list of a message. Every argument but the
// last is an Arg; the last may be any Line when set with AddLast.
type Args struct {
	words   []ircstr.Arg
	last    ircstr.Line
	hasLast bool
}

// NewArgs builds an argument list from strings. The final string becomes a
// trailing argument only when it could not be sent as a plain word.
func NewArgs(args ...string) (Args, error) {
	var a Args
	for i, s := range args {
		if i == len(args)-1 {
			if w, err := ircstr.NewArg(s); err == nil {
				if err := a.Add(w); err != nil {
					return Args{}, err
				}
				break
			}
			l, err := ircstr.NewLine(s)
			if err != nil {
				return Args{}, err
			}
			if err := a.AddLast(l); err != nil {
				return Args{}, err
			}
			break
		}
		w, err := ircstr.NewArg(s)
		if err != nil {
			return Args{}, err
		}
		if err := a.Add(w); err != nil {
			return Args{}, err
		}
	}
	return a, nil
}

func (a *Args) Len() int {
	if a.hasLast {
		return len(a.words) + 1
	}
	return len(a.words)
}

func (a *Args) IsEmpty() bool { return a.Len() == 0 }

// Add appends a word. If a trailing argument is already set it must itself
// be a valid word, since it stops being last.
func (a *Args) Add(w ircstr.Arg) error {
	if err := a.demoteLast(); err != nil {
		return err
	}
	a.words = append(a.words, w)
	return nil
}

// AddLast appends a trailing argument, which is always encoded with ':'.
func (a *Args) AddLast(l ircstr.Line) error {
	if err := a.demoteLast(); err != nil {
		return err
	}
	a.last = l
	a.hasLast = true
	return nil
}

func (a *Args) demoteLast() error {
	if a.Len() >= MaxArgs {
		return ErrTooManyArgs
	}
	if !a.hasLast {
		return nil
	}
	w, err := ircstr.ArgFrom(a.last.Bytes())
	if err != nil {
		return ErrArgAfterTrailing
	}
	a.words = append(a.words, w)
	a.last = ircstr.Line{}
	a.hasLast = false
	return nil
}

// At returns argument i, or false when out of range.
func (a *Args) At(i int) (ircstr.Line, bool) {
	switch {
	case i < 0:
		return ircstr.Line{}, false
	case i < len(a.words):
		return a.words[i].Line(), true
	case i == len(a.words) && a.hasLast:
		return a.last, true
	default:
		return ircstr.Line{}, false
	}
}

// Text returns argument i as a string, or "" when out of range.
func (a *Args) Text(i int) string {
	l, _ := a.At(i)
	return l.Text()
}

// Last returns the final argument, whether it was added as a word or a
// trailing argument.
func (a *Args) Last() (ircstr.Line, bool) {
	return a.At(a.Len() - 1)
}

func (a *Args) All() []ircstr.Line {
	out := make([]ircstr.Line, 0, a.Len())
	for _, w := range a.words {
		out = append(out, w.Line())
	}
	if a.hasLast {
		out = append(out, a.last)
	}
	return out
}

// HasTrailing reports whether the final argument was set with AddLast.
func (a *Args) HasTrailing() bool { return a.hasLast }

func (a *Args) Clone() Args {
	return Args{words: append([]ircstr.Arg(nil), a.words...), last: a.last, hasLast: a.hasLast}
}

// Equal compares the flat argument sequence.
func (a *Args) Equal(o *Args) bool {
	x, y := a.All(), o.All()
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if !x[i].Equal(y[i]) {
			return false
		}
	}
	return true
}

func (a *Args) encodedLen() int {
	n := 0
	for _, w := range a.words {
		n += 1 + w.Len()
	}
	if a.hasLast {
		n += 2 + a.last.Len()
	}
	return n
}

func (a *Args) appendTo(dst []byte, redact bool) []byte {
	for _, w := range a.words {
		dst = append(dst, ' ')
		dst = appendPiece(dst, w.Bytes(), redact)
	}
	if a.hasLast {
		dst = append(dst, ' ', ':')
		dst = appendPiece(dst, a.last.Bytes(), redact)
	}
	return dst
}

// parseArgs reads arguments from p until the end of the line.
func parseArgs(p *ircstr.Splitter) (Args, error) {
	var a Args
	for {
		if p.SkipSpaces() == 0 && !p.IsEmpty() {
			return Args{}, parseErr(TokenArgs, p.Offset(), ErrInvalidArg, nil)
		}
		if p.IsEmpty() {
			return a, nil
		}
		start := p.Offset()
		if a.Len() >= MaxArgs {
			return Args{}, parseErr(TokenArgs, start, ErrTooManyArgs, nil)
		}
		if p.Consume(':') {
			l, err := ircstr.LineFrom(p.TakeRest())
			if err != nil {
				return Args{}, parseErr(TokenArgs, start, ErrInvalidArg, err)
			}
			a.last, a.hasLast = l, true
			return a, nil
		}
		w, err := ircstr.ArgFrom(p.Word())
		if err != nil {
			return Args{}, parseErr(TokenArgs, start, ErrInvalidArg, err)
		}
		a.words = append(a.words, w)
	}
}

