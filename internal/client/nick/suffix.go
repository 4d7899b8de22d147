package nick

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/danmuck/ircwire/internal/ircstr"
)

// SuffixKind is one position of a generated suffix.
type SuffixKind uint8

const (
	SuffixLetter SuffixKind = iota
	SuffixBase8
	SuffixBase10
	SuffixBase16
	SuffixNonZeroBase8
	SuffixNonZeroBase10
	SuffixNonZeroBase16
	SuffixChoice
	SuffixChar
)

// SuffixType is one suffix position. Upper applies to letters and hex
// digits; Choices to SuffixChoice; Char to SuffixChar.
type SuffixType struct {
	Kind    SuffixKind
	Upper   bool
	Choices []string
	Char    byte
}

func Letter(upper bool) SuffixType        { return SuffixType{Kind: SuffixLetter, Upper: upper} }
func Base8() SuffixType                   { return SuffixType{Kind: SuffixBase8} }
func Base10() SuffixType                  { return SuffixType{Kind: SuffixBase10} }
func Base16(upper bool) SuffixType        { return SuffixType{Kind: SuffixBase16, Upper: upper} }
func NonZeroBase8() SuffixType            { return SuffixType{Kind: SuffixNonZeroBase8} }
func NonZeroBase10() SuffixType           { return SuffixType{Kind: SuffixNonZeroBase10} }
func NonZeroBase16(upper bool) SuffixType { return SuffixType{Kind: SuffixNonZeroBase16, Upper: upper} }
func Char(c byte) SuffixType              { return SuffixType{Kind: SuffixChar, Char: c} }
func Choice(opts ...string) SuffixType    { return SuffixType{Kind: SuffixChoice, Choices: opts} }

// ParseSuffixType reads the config spelling: letter, LETTER, base8, base10,
// base16, BASE16, nonzero8, nonzero10, nonzero16, NONZERO16, char:X or
// choice:a|b|c.
func ParseSuffixType(s string) (SuffixType, error) {
	if c, ok := strings.CutPrefix(s, "char:"); ok {
		if len(c) != 1 {
			return SuffixType{}, fmt.Errorf("nick: char suffix %q must be one byte", c)
		}
		return Char(c[0]), nil
	}
	if opts, ok := strings.CutPrefix(s, "choice:"); ok {
		return Choice(strings.Split(opts, "|")...), nil
	}
	switch s {
	case "letter":
		return Letter(false), nil
	case "LETTER":
		return Letter(true), nil
	case "base8":
		return Base8(), nil
	case "base10":
		return Base10(), nil
	case "base16":
		return Base16(false), nil
	case "BASE16":
		return Base16(true), nil
	case "nonzero8":
		return NonZeroBase8(), nil
	case "nonzero10":
		return NonZeroBase10(), nil
	case "nonzero16":
		return NonZeroBase16(false), nil
	case "NONZERO16":
		return NonZeroBase16(true), nil
	}
	return SuffixType{}, fmt.Errorf("nick: unknown suffix type %q", s)
}

func (t SuffixType) variance() uint8 {
	switch t.Kind {
	case SuffixLetter:
		return 26
	case SuffixBase8:
		return 8
	case SuffixBase10:
		return 10
	case SuffixBase16:
		return 16
	case SuffixNonZeroBase8:
		return 7
	case SuffixNonZeroBase10:
		return 9
	case SuffixNonZeroBase16:
		return 15
	case SuffixChoice:
		return uint8(min(255, len(t.Choices)))
	case SuffixChar:
		return 1
	}
	return 0
}

func (t SuffixType) append(dst []byte, num uint8) []byte {
	switch t.Kind {
	case SuffixLetter:
		return pushNick(dst, letterBase(t.Upper)+num%26)
	case SuffixBase8:
		return pushNick(dst, '0'+num&7)
	case SuffixBase10:
		return pushNick(dst, '0'+num%10)
	case SuffixBase16:
		return pushNick(dst, hexDigit(num&15, t.Upper))
	case SuffixNonZeroBase8:
		return pushNick(dst, '1'+num%7)
	case SuffixNonZeroBase10:
		return pushNick(dst, '1'+num%9)
	case SuffixNonZeroBase16:
		return pushNick(dst, hexDigit(num%15+1, t.Upper))
	case SuffixChoice:
		if len(t.Choices) == 0 {
			return dst
		}
		opt := t.Choices[int(num)%len(t.Choices)]
		if opt == "" || ircstr.KindNick.Check([]byte(opt)) != nil {
			return dst
		}
		return append(dst, opt...)
	case SuffixChar:
		return pushNick(dst, t.Char)
	}
	return dst
}

func letterBase(upper bool) uint8 {
	if upper {
		return 'A'
	}
	return 'a'
}

func hexDigit(n uint8, upper bool) byte {
	if n < 10 {
		return '0' + n
	}
	return letterBase(upper) + n - 10
}

// pushNick appends c unless a nick may not contain it.
func pushNick(dst []byte, c byte) []byte {
	if !ircstr.KindNick.Allows(c) {
		return dst
	}
	return append(dst, c)
}

// Strategy picks how suffix positions are filled.
type Strategy uint8

const (
	// StrategyRng fills positions from a linear congruential generator.
	StrategyRng Strategy = iota
	// StrategySeq enumerates suffixes shortest first.
	StrategySeq
)

func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(s) {
	case "", "rng", "random":
		return StrategyRng, nil
	case "seq", "sequential":
		return StrategySeq, nil
	}
	return StrategyRng, fmt.Errorf("nick: unknown suffix strategy %q", s)
}

// Suffix derives fallback nicks from a prefix.
type Suffix struct {
	Strategy Strategy
	Suffixes []SuffixType
	// Seed fixes the Rng sequence; zero derives one from the prefix and
	// the current time.
	Seed uint32
}

var (
	// Fallback appends a backtick then digits, sequentially.
	Fallback = Suffix{Strategy: StrategySeq, Suffixes: []SuffixType{Char('`'), Base10(), Base8()}}
	// Guest appends four random digits.
	Guest = Suffix{Strategy: StrategyRng, Suffixes: []SuffixType{Base10(), Base8(), Base10(), Base8()}}
	// Bot appends a digit and five random hex digits.
	Bot = Suffix{Strategy: StrategyRng, Suffixes: []SuffixType{
		Base10(), Base16(false), Base16(false), Base16(false), Base16(false), Base16(false),
	}}
)

// SuffixGen is the Generator returned by Suffix.From.
type SuffixGen struct {
	cfg    Suffix
	prefix ircstr.Nick
	state  uint32
	limit  uint8
	done   bool
}

// From starts generating variants of prefix. The generator is bounded:
// Rng yields 1 + sum(variance/2) nicks, Seq yields sum(variance).
func (s Suffix) From(prefix ircstr.Nick) *SuffixGen {
	g := &SuffixGen{cfg: s, prefix: prefix}
	if len(s.Suffixes) == 0 {
		g.limit = 1
		return g
	}
	switch s.Strategy {
	case StrategySeq:
		for _, t := range s.Suffixes {
			g.limit = addSat(g.limit, t.variance())
		}
	default:
		g.limit = 1
		for _, t := range s.Suffixes {
			g.limit = addSat(g.limit, t.variance()/2)
		}
		g.state = s.Seed
		if g.state == 0 {
			g.state = seedFor(prefix, time.Now())
		}
	}
	return g
}

func addSat(a, b uint8) uint8 {
	if a > 255-b {
		return 255
	}
	return a + b
}

func seedFor(prefix ircstr.Nick, now time.Time) uint32 {
	h := fnv.New32a()
	h.Write(prefix.Raw())
	seed := h.Sum32()
	seed ^= uint32(now.UnixMilli())
	seed ^= uint32(now.UnixNano())
	return seed
}

func (g *SuffixGen) Next() (ircstr.Nick, bool) {
	if g.done || g.limit == 0 {
		return ircstr.Nick{}, false
	}
	nick, state := g.calc()
	g.state = state
	g.limit--
	return nick, true
}

// Peek returns what Next would yield without advancing.
func (g *SuffixGen) Peek() (ircstr.Nick, bool) {
	if g.done || g.limit == 0 {
		return ircstr.Nick{}, false
	}
	nick, _ := g.calc()
	return nick, true
}

// Reject stops the generator when the refused nick is one of its own: every
// further variant shares the refused prefix.
func (g *SuffixGen) Reject(nick ircstr.Nick) {
	if bytes.HasPrefix(nick.Raw(), g.prefix.Raw()) {
		g.done = true
	}
}

func (g *SuffixGen) calc() (ircstr.Nick, uint32) {
	buf := make([]byte, 0, g.prefix.Len()+len(g.cfg.Suffixes))
	buf = append(buf, g.prefix.Raw()...)
	state := g.state
	switch g.cfg.Strategy {
	case StrategySeq:
		state++
		count := state
		for _, t := range g.cfg.Suffixes {
			v := t.variance()
			if v == 0 {
				continue
			}
			count--
			buf = t.append(buf, uint8(count%uint32(v)))
			count /= uint32(v)
			if count == 0 {
				break
			}
		}
	default:
		fresh := true
		for _, t := range g.cfg.Suffixes {
			if fresh {
				state = state*1664525 + 1013904223
				buf = t.append(buf, uint8(state>>16))
			} else {
				buf = t.append(buf, uint8(state>>24))
			}
			fresh = !fresh
		}
	}
	n, err := ircstr.NickFrom(ircstr.Wrap(buf))
	if err != nil {
		return g.prefix, state
	}
	return n, state
}
