package ircstr

import (
	"bytes"
	"errors"
)

var ErrDanglingEscape = errors.New("ircstr: dangling escape")

// EscapeTagValue applies IRCv3 tag value escaping. It returns v unchanged
// when nothing needs escaping.
func EscapeTagValue(v Bytes) Bytes {
	n := escapeCount(v.b)
	if n == 0 {
		return v
	}
	out := make([]byte, 0, len(v.b)+n)
	for _, c := range v.b {
		switch c {
		case ';':
			out = append(out, '\\', ':')
		case ' ':
			out = append(out, '\\', 's')
		case '\\':
			out = append(out, '\\', '\\')
		case '\r':
			out = append(out, '\\', 'r')
		case '\n':
			out = append(out, '\\', 'n')
		default:
			out = append(out, c)
		}
	}
	return v.derive(out, v.state())
}

// EscapedTagLen is EscapeTagValue(v).Len() without building the escaped
// value.
func EscapedTagLen(v Bytes) int {
	return len(v.b) + escapeCount(v.b)
}

func escapeCount(b []byte) int {
	n := 0
	for _, c := range b {
		switch c {
		case ';', ' ', '\\', '\r', '\n':
			n++
		}
	}
	return n
}

// UnescapeTagValue reverses EscapeTagValue. Unknown escapes yield the
// escaped byte itself; a trailing lone backslash is an error. The input is
// returned unchanged when it contains no backslash.
func UnescapeTagValue(v Bytes) (Bytes, error) {
	i := bytes.IndexByte(v.b, '\\')
	if i < 0 {
		return v, nil
	}
	out := make([]byte, 0, len(v.b))
	out = append(out, v.b[:i]...)
	for ; i < len(v.b); i++ {
		c := v.b[i]
		if c != '\\' {
			out = append(out, c)
			continue
		}
		i++
		if i >= len(v.b) {
			return Bytes{}, ErrDanglingEscape
		}
		switch e := v.b[i]; e {
		case ':':
			out = append(out, ';')
		case 's':
			out = append(out, ' ')
		case 'r':
			out = append(out, '\r')
		case 'n':
			out = append(out, '\n')
		default:
			out = append(out, e)
		}
	}
	return v.derive(out, utf8Unknown), nil
}
