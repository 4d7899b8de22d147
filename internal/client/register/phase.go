package register

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// Phase is one state of the registration handshake.
type Phase uint8

const (
	PhaseStart Phase = iota
	PhaseCapNegotiating
	PhaseAuthenticating
	PhaseNickUserSent
	PhaseNickCollision
	PhaseNickRetry
	PhaseRegistered
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseStart:          "start",
	PhaseCapNegotiating: "cap_negotiating",
	PhaseAuthenticating: "authenticating",
	PhaseNickUserSent:   "nick_user_sent",
	PhaseNickCollision:  "nick_collision",
	PhaseNickRetry:      "nick_retry",
	PhaseRegistered:     "registered",
	PhaseFailed:         "failed",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

func (p Phase) Terminal() bool { return p == PhaseRegistered || p == PhaseFailed }

var (
	ErrNoAccess     = errors.New("register: access denied")
	ErrServerError  = errors.New("register: server error")
	ErrSASLRequired = errors.New("register: authentication required")
	ErrNoNick       = errors.New("register: no nickname candidate")
	ErrBadIdentity  = errors.New("register: invalid username or realname")
	ErrTimeout      = errors.New("register: timed out")
)

// RedirectError ends the handshake when the server sends the client
// elsewhere, with RPL_BOUNCE (010) or an RFC 2812 style 005 before
// welcome.
type RedirectError struct {
	Host string
	Port int
	Info string
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("register: redirected to %s: %s", e.Address(), e.Info)
}

// Address is host:port, ready to dial.
func (e *RedirectError) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// CollisionError ends the handshake when nick candidates run out or the
// retry ceiling is hit.
type CollisionError struct {
	Nick      string
	Attempts  int
	Exhausted bool
}

func (e *CollisionError) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("register: nick %q unavailable and no candidates left after %d attempts", e.Nick, e.Attempts)
	}
	return fmt.Sprintf("register: nick %q unavailable, giving up after %d attempts", e.Nick, e.Attempts)
}
