package ircstr

import "bytes"

// Splitter is a forward cursor over a Bytes value. Every piece it returns
// shares the underlying buffer.
type Splitter struct {
	s   Bytes
	pos int
}

func NewSplitter(s Bytes) *Splitter {
	return &Splitter{s: s}
}

func (p *Splitter) Offset() int   { return p.pos }
func (p *Splitter) IsEmpty() bool { return p.pos >= len(p.s.b) }

// Rest returns the unconsumed remainder without advancing.
func (p *Splitter) Rest() Bytes {
	return p.s.Slice(p.pos, len(p.s.b))
}

// TakeRest returns the unconsumed remainder and advances to the end.
func (p *Splitter) TakeRest() Bytes {
	rest := p.Rest()
	p.pos = len(p.s.b)
	return rest
}

func (p *Splitter) Peek() (byte, bool) {
	if p.IsEmpty() {
		return 0, false
	}
	return p.s.b[p.pos], true
}

// Next returns the next byte and advances past it.
func (p *Splitter) Next() (byte, bool) {
	b, ok := p.Peek()
	if ok {
		p.pos++
	}
	return b, ok
}

// Consume advances past c if it is the next byte.
func (p *Splitter) Consume(c byte) bool {
	if b, ok := p.Peek(); ok && b == c {
		p.pos++
		return true
	}
	return false
}

// Until returns everything up to the next c (or the end) and leaves the
// cursor on c.
func (p *Splitter) Until(c byte) Bytes {
	start := p.pos
	end := len(p.s.b)
	if i := bytes.IndexByte(p.s.b[start:], c); i >= 0 {
		end = start + i
	}
	p.pos = end
	return p.s.Slice(start, end)
}

// Word returns the next space-delimited token and leaves the cursor on the
// following space.
func (p *Splitter) Word() Bytes {
	return p.Until(' ')
}

// SkipSpaces advances past any run of spaces and returns how many it skipped.
func (p *Splitter) SkipSpaces() int {
	start := p.pos
	for p.pos < len(p.s.b) && p.s.b[p.pos] == ' ' {
		p.pos++
	}
	return p.pos - start
}
