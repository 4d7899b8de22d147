package ircmsg

import (
	"bytes"

	"github.com/danmuck/ircwire/internal/ircstr"
)

// Source is the origin of a server message: a nick (or server name) with
// optional user and host parts. Zero User or Host means absent.
type Source struct {
	Nick ircstr.Nick
	User ircstr.User
	Host ircstr.Host
}

func (s Source) HasUser() bool { return !s.User.IsZero() }
func (s Source) HasHost() bool { return !s.Host.IsZero() }

func (s Source) Equal(o Source) bool {
	return s.Nick.Equal(o.Nick) && s.User.Equal(o.User) && s.Host.Equal(o.Host)
}

// Validate reports whether s has a wire form that parses back to s: a
// nick is required and a user needs a host.
func (s Source) Validate() error {
	if s.Nick.IsZero() || (s.HasUser() && !s.HasHost()) {
		return ErrInvalidSource
	}
	return nil
}

func (s Source) String() string {
	return string(s.appendTo(nil))
}

func (s Source) encodedLen() int {
	n := s.Nick.Len()
	if s.HasUser() {
		n += 1 + s.User.Len()
	}
	if s.HasHost() {
		n += 1 + s.Host.Len()
	}
	return n
}

func (s Source) appendTo(dst []byte) []byte {
	dst = append(dst, s.Nick.Raw()...)
	if s.HasUser() {
		dst = append(dst, '!')
		dst = append(dst, s.User.Raw()...)
	}
	if s.HasHost() {
		dst = append(dst, '@')
		dst = append(dst, s.Host.Raw()...)
	}
	return dst
}

// ParseSource parses "nick", "nick@host" or "nick!user@host". A user
// without a host is rejected.
func ParseSource(b ircstr.Bytes) (Source, error) {
	raw := b.Raw()
	var src Source
	prefix := b
	if at := bytes.IndexByte(raw, '@'); at >= 0 {
		host, err := ircstr.HostFrom(b.Slice(at+1, len(raw)))
		if err != nil {
			return Source{}, err
		}
		src.Host = host
		prefix = b.Slice(0, at)
		if bang := bytes.IndexByte(prefix.Raw(), '!'); bang >= 0 {
			user, err := ircstr.UserFrom(prefix.Slice(bang+1, prefix.Len()))
			if err != nil {
				return Source{}, err
			}
			src.User = user
			prefix = prefix.Slice(0, bang)
		}
	}
	nick, err := ircstr.NickFrom(prefix)
	if err != nil {
		return Source{}, err
	}
	src.Nick = nick
	return src, nil
}

// NewSource validates a source from strings; user and host may be empty.
func NewSource(nick, user, host string) (Source, error) {
	var src Source
	var err error
	if src.Nick, err = ircstr.NewNick(nick); err != nil {
		return Source{}, err
	}
	if host == "" {
		if user != "" {
			return Source{}, ErrInvalidSource
		}
		return src, nil
	}
	if src.Host, err = ircstr.NewHost(host); err != nil {
		return Source{}, err
	}
	if user != "" {
		if src.User, err = ircstr.NewUser(user); err != nil {
			return Source{}, err
		}
	}
	return src, nil
}
