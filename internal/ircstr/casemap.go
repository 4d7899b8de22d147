package ircstr

import "strings"

// Casemapping is the nickname/channel case folding a server advertises in
// ISUPPORT CASEMAPPING.
type Casemapping uint8

const (
	CasemapRFC1459 Casemapping = iota
	CasemapASCII
	CasemapRFC1459Strict
)

func ParseCasemapping(s string) (Casemapping, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ascii":
		return CasemapASCII, true
	case "rfc1459":
		return CasemapRFC1459, true
	case "rfc1459-strict", "strict-rfc1459":
		return CasemapRFC1459Strict, true
	default:
		return CasemapRFC1459, false
	}
}

func (c Casemapping) String() string {
	switch c {
	case CasemapASCII:
		return "ascii"
	case CasemapRFC1459Strict:
		return "rfc1459-strict"
	default:
		return "rfc1459"
	}
}

// FoldByte lowercases one byte under c.
func (c Casemapping) FoldByte(b byte) byte {
	switch {
	case b >= 'A' && b <= 'Z':
		return b + ('a' - 'A')
	case c == CasemapASCII:
		return b
	case b == '[' || b == ']' || b == '\\':
		return b + ('{' - '[')
	case b == '^' && c == CasemapRFC1459:
		return '~'
	}
	return b
}

// Fold lowercases s under c, sharing s when it is already folded.
func (c Casemapping) Fold(s Bytes) Bytes {
	i := 0
	for i < len(s.b) && c.FoldByte(s.b[i]) == s.b[i] {
		i++
	}
	if i == len(s.b) {
		return s
	}
	out := make([]byte, len(s.b))
	copy(out, s.b[:i])
	for ; i < len(s.b); i++ {
		out[i] = c.FoldByte(s.b[i])
	}
	return s.derive(out, s.state())
}

// FoldNick folds a nickname. Folding never introduces a byte Nick forbids.
func (c Casemapping) FoldNick(n Nick) Nick {
	return Nick{str{c.Fold(n.s)}}
}

func (c Casemapping) EqualFold(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if c.FoldByte(a[i]) != c.FoldByte(b[i]) {
			return false
		}
	}
	return true
}

// TrimASCIISpace returns s without leading or trailing ASCII whitespace.
func TrimASCIISpace(s Bytes) Bytes {
	start, end := 0, len(s.b)
	for start < end && isSpace(s.b[start]) {
		start++
	}
	for end > start && isSpace(s.b[end-1]) {
		end--
	}
	if start == 0 && end == len(s.b) {
		return s
	}
	return s.Slice(start, end)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\v' || c == '\f'
}
