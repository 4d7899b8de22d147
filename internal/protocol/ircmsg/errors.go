package ircmsg

import (
	"errors"
	"fmt"
)

var (
	ErrLineTooLong      = errors.New("ircmsg: line too long")
	ErrEmptyLine        = errors.New("ircmsg: empty line")
	ErrInvalidLine      = errors.New("ircmsg: invalid byte in line")
	ErrBadTagEscape     = errors.New("ircmsg: bad tag escape")
	ErrInvalidTag       = errors.New("ircmsg: invalid tag")
	ErrInvalidSource    = errors.New("ircmsg: invalid source")
	ErrUnexpectedSource = errors.New("ircmsg: source not allowed on client message")
	ErrMissingCommand   = errors.New("ircmsg: missing command")
	ErrInvalidCommand   = errors.New("ircmsg: invalid command")
	ErrInvalidArg       = errors.New("ircmsg: invalid argument")
	ErrTooManyArgs      = errors.New("ircmsg: too many arguments")
	ErrArgAfterTrailing = errors.New("ircmsg: argument after spaced trailing argument")
)

// Token names the part of a line a parse failure was found in.
type Token uint8

const (
	TokenLine Token = iota
	TokenTags
	TokenSource
	TokenCommand
	TokenArgs
)

func (t Token) String() string {
	switch t {
	case TokenTags:
		return "tags"
	case TokenSource:
		return "source"
	case TokenCommand:
		return "command"
	case TokenArgs:
		return "args"
	default:
		return "line"
	}
}

// ParseError reports a structurally invalid line. Err is one of the
// package sentinels; Cause, when set, is the underlying string violation.
type ParseError struct {
	Token  Token
	Offset int
	Err    error
	Cause  error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%v at %s offset %d: %v", e.Err, e.Token, e.Offset, e.Cause)
	}
	return fmt.Sprintf("%v at %s offset %d", e.Err, e.Token, e.Offset)
}

func (e *ParseError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func parseErr(tok Token, off int, err, cause error) *ParseError {
	return &ParseError{Token: tok, Offset: off, Err: err, Cause: cause}
}

// EncodeError reports a message that has no valid wire form. Err is one
// of the package sentinels.
type EncodeError struct {
	Token Token
	Err   error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode: %v in %s", e.Err, e.Token)
}

func (e *EncodeError) Unwrap() error { return e.Err }

func encodeErr(tok Token, err error) *EncodeError {
	return &EncodeError{Token: tok, Err: err}
}
