package ircmsg

import (
	"fmt"
	"strconv"

	"github.com/danmuck/ircwire/internal/ircstr"
)

// Kind is the command position of a server message: a command word or a
// three-digit numeric reply.
type Kind struct {
	cmd   ircstr.Cmd
	num   int
	isNum bool
}

func CmdKind(cmd ircstr.Cmd) Kind { return Kind{cmd: cmd} }

// NumericKind panics outside 0..999.
func NumericKind(n int) Kind {
	if n < 0 || n > 999 {
		panic(fmt.Sprintf("ircmsg: numeric %d out of range", n))
	}
	return Kind{num: n, isNum: true}
}

func (k Kind) Numeric() (int, bool) { return k.num, k.isNum }

func (k Kind) Cmd() (ircstr.Cmd, bool) { return k.cmd, !k.isNum && !k.cmd.IsZero() }

func (k Kind) IsZero() bool { return !k.isNum && k.cmd.IsZero() }

func (k Kind) IsCmd(name string) bool { return !k.isNum && k.cmd.Text() == name }
func (k Kind) IsNumeric(n int) bool   { return k.isNum && k.num == n }

func (k Kind) Equal(o Kind) bool {
	if k.isNum != o.isNum {
		return false
	}
	if k.isNum {
		return k.num == o.num
	}
	return k.cmd.Equal(o.cmd)
}

func (k Kind) String() string {
	if k.isNum {
		return fmt.Sprintf("%03d", k.num)
	}
	return k.cmd.Text()
}

func (k Kind) encodedLen() int {
	if k.isNum {
		return 3
	}
	return k.cmd.Len()
}

func (k Kind) appendTo(dst []byte) []byte {
	if k.isNum {
		return append(dst, byte('0'+k.num/100), byte('0'+k.num/10%10), byte('0'+k.num%10))
	}
	return append(dst, k.cmd.Raw()...)
}

// ParseKind reads exactly three ASCII digits as a numeric; anything else
// must be a command word. Lowercase letters are uppercased.
func ParseKind(w ircstr.Bytes) (Kind, error) {
	raw := w.Raw()
	if len(raw) == 3 && isDigit(raw[0]) && isDigit(raw[1]) && isDigit(raw[2]) {
		n, _ := strconv.Atoi(string(raw))
		return NumericKind(n), nil
	}
	cmd, err := ircstr.CmdFromWord(w)
	if err != nil {
		return Kind{}, err
	}
	return CmdKind(cmd), nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
