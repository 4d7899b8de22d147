package ircmsg

import (
	"bytes"
	"strings"

	"github.com/danmuck/ircwire/internal/ircstr"
)

const (
	// DefaultMaxLine is the RFC 1459 ceiling, CRLF included. It bounds
	// everything after the tag section.
	DefaultMaxLine = 512
	// MaxServerTags bounds the tag section of a server line, '@' and the
	// separating space included.
	MaxServerTags = 8191
	// MaxClientTags bounds the tag section a client may send: 4094 bytes
	// of tags plus '@' and the separating space.
	MaxClientTags = 4096
	// TaggedMaxLine is the longest complete line a reader must accept:
	// a full server tag section followed by a full body.
	TaggedMaxLine = MaxServerTags + DefaultMaxLine
)

func ceiling(max int) int {
	if max <= 0 {
		return DefaultMaxLine
	}
	return max
}

// rawMsg is the shared result of tokenizing one line.
type rawMsg struct {
	tags   Tags
	source *Source
	kind   ircstr.Bytes
	kindAt int
	args   Args
}

// tagSection is the length of line's leading tag section, '@' through the
// first space. It is 0 when line carries no tags.
func tagSection(line []byte) int {
	if len(line) == 0 || line[0] != '@' {
		return 0
	}
	if i := bytes.IndexByte(line, ' '); i >= 0 {
		return i + 1
	}
	return len(line)
}

// parseLine tokenizes line in strict order: tags, source, command, args.
// The tag section is measured against tagMax and the rest of the line
// against max. The result shares line's memory except for unescaped tag
// values.
func parseLine(line []byte, max, tagMax int) (rawMsg, error) {
	line = trimEOL(line)
	tagLen := tagSection(line)
	if tagLen > tagMax {
		return rawMsg{}, parseErr(TokenTags, tagMax, ErrLineTooLong, nil)
	}
	if len(line)-tagLen+2 > ceiling(max) {
		return rawMsg{}, parseErr(TokenLine, tagLen+ceiling(max)-2, ErrLineTooLong, nil)
	}
	if err := ircstr.KindLine.Check(line); err != nil {
		inv, _ := err.(*ircstr.InvalidError)
		off := 0
		if inv != nil {
			off = inv.Offset
		}
		return rawMsg{}, parseErr(TokenLine, off, ErrInvalidLine, err)
	}

	var msg rawMsg
	p := ircstr.NewSplitter(ircstr.Wrap(line))
	p.SkipSpaces()
	if p.IsEmpty() {
		return rawMsg{}, parseErr(TokenLine, 0, ErrEmptyLine, nil)
	}

	if p.Consume('@') {
		start := p.Offset()
		tags, err := parseTags(p.Word(), start)
		if err != nil {
			return rawMsg{}, err
		}
		msg.tags = tags
		p.SkipSpaces()
	}

	if p.Consume(':') {
		start := p.Offset()
		src, err := ParseSource(p.Word())
		if err != nil {
			return rawMsg{}, parseErr(TokenSource, start, ErrInvalidSource, err)
		}
		msg.source = &src
		p.SkipSpaces()
	}

	msg.kindAt = p.Offset()
	msg.kind = p.Word()
	if msg.kind.IsEmpty() {
		return rawMsg{}, parseErr(TokenCommand, msg.kindAt, ErrMissingCommand, nil)
	}

	args, err := parseArgs(p)
	if err != nil {
		return rawMsg{}, err
	}
	msg.args = args
	return msg, nil
}

func trimEOL(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\n' {
		line = line[:n-1]
	}
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line
}

// checkLen measures an encoded message the way parseLine does: tags bytes
// of tag section against tagMax, body bytes (without CRLF) against max.
func checkLen(tags, body, max, tagMax int) error {
	if tags > tagMax {
		return encodeErr(TokenTags, ErrLineTooLong)
	}
	if body+2 > ceiling(max) {
		return encodeErr(TokenLine, ErrLineTooLong)
	}
	return nil
}

func appendEOL(dst []byte) []byte {
	return append(dst, '\r', '\n')
}

// SplitCapList splits a space-separated capability list, skipping empty
// entries.
func SplitCapList(list string) []string {
	return strings.Fields(list)
}

// ParseCapValue splits "name=value" as sent in CAP LS 302.
func ParseCapValue(entry string) (name, value string) {
	name, value, _ = strings.Cut(entry, "=")
	return name, value
}
