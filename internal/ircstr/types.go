package ircstr

// str carries the accessors shared by every restricted type.
type str struct{ s Bytes }

func (v str) Bytes() Bytes    { return v.s }
func (v str) Raw() []byte     { return v.s.b }
func (v str) Text() string    { return v.s.Text() }
func (v str) String() string  { return v.s.String() }
func (v str) Len() int        { return len(v.s.b) }
func (v str) IsZero() bool    { return len(v.s.b) == 0 }
func (v str) IsSecret() bool  { return v.s.IsSecret() }
func (v str) IsUTF8() bool    { return v.s.IsUTF8() }
func (v str) NoNul() NoNul    { return NoNul{v} }
func (v str) lineView() Line  { return Line{v} }
func (v str) wordView() Word  { return Word{v} }
func (v str) argView() Arg    { return Arg{v} }
func (v str) same(o str) bool { return v.s.Equal(o.s) }

func checked(k Kind, b Bytes) (str, error) {
	if err := k.Check(b.b); err != nil {
		return str{}, err
	}
	return str{b}, nil
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// NoNul contains no NUL bytes.
type NoNul struct{ str }

func NoNulFrom(b Bytes) (NoNul, error) {
	v, err := checked(KindNoNul, b)
	return NoNul{v}, err
}
func NewNoNul(s string) (NoNul, error) { return NoNulFrom(New(s)) }
func MustNoNul(s string) NoNul         { return must(NewNoNul(s)) }
func (v NoNul) Equal(o NoNul) bool     { return v.same(o.str) }

// Line is a NoNul without CR or LF.
type Line struct{ str }

func LineFrom(b Bytes) (Line, error) {
	v, err := checked(KindLine, b)
	return Line{v}, err
}
func NewLine(s string) (Line, error) { return LineFrom(New(s)) }
func MustLine(s string) Line         { return must(NewLine(s)) }
func (v Line) Equal(o Line) bool     { return v.same(o.str) }

// Word is a Line without spaces.
type Word struct{ str }

func WordFrom(b Bytes) (Word, error) {
	v, err := checked(KindWord, b)
	return Word{v}, err
}
func NewWord(s string) (Word, error) { return WordFrom(New(s)) }
func MustWord(s string) Word         { return must(NewWord(s)) }
func (v Word) Line() Line            { return v.lineView() }
func (v Word) Equal(o Word) bool     { return v.same(o.str) }

// Arg is a non-empty Word not starting with ':', usable as any non-final
// message argument.
type Arg struct{ str }

func ArgFrom(b Bytes) (Arg, error) {
	v, err := checked(KindArg, b)
	return Arg{v}, err
}
func NewArg(s string) (Arg, error) { return ArgFrom(New(s)) }
func MustArg(s string) Arg         { return must(NewArg(s)) }
func (v Arg) Line() Line           { return v.lineView() }
func (v Arg) Word() Word           { return v.wordView() }
func (v Arg) Equal(o Arg) bool     { return v.same(o.str) }

// Host is a non-empty ASCII Word.
type Host struct{ str }

func HostFrom(b Bytes) (Host, error) {
	v, err := checked(KindHost, b)
	return Host{v}, err
}
func NewHost(s string) (Host, error) { return HostFrom(New(s)) }
func MustHost(s string) Host         { return must(NewHost(s)) }
func (v Host) Line() Line            { return v.lineView() }
func (v Host) Word() Word            { return v.wordView() }
func (v Host) Equal(o Host) bool     { return v.same(o.str) }

// Key is an Arg without '=' or ';', the shape of a tag key or ISUPPORT
// token name.
type Key struct{ str }

func KeyFrom(b Bytes) (Key, error) {
	v, err := checked(KindKey, b)
	return Key{v}, err
}
func NewKey(s string) (Key, error) { return KeyFrom(New(s)) }
func MustKey(s string) Key         { return must(NewKey(s)) }
func (v Key) Line() Line           { return v.lineView() }
func (v Key) Word() Word           { return v.wordView() }
func (v Key) Arg() Arg             { return v.argView() }
func (v Key) Equal(o Key) bool     { return v.same(o.str) }

// Nick is an Arg without '!' or '@'.
type Nick struct{ str }

func NickFrom(b Bytes) (Nick, error) {
	v, err := checked(KindNick, b)
	return Nick{v}, err
}
func NewNick(s string) (Nick, error) { return NickFrom(New(s)) }
func MustNick(s string) Nick         { return must(NewNick(s)) }
func (v Nick) Line() Line            { return v.lineView() }
func (v Nick) Word() Word            { return v.wordView() }
func (v Nick) Arg() Arg              { return v.argView() }
func (v Nick) Equal(o Nick) bool     { return v.same(o.str) }

// User is an Arg without '@' or '%'.
type User struct{ str }

func UserFrom(b Bytes) (User, error) {
	v, err := checked(KindUser, b)
	return User{v}, err
}
func NewUser(s string) (User, error) { return UserFrom(New(s)) }
func MustUser(s string) User         { return must(NewUser(s)) }
func (v User) Line() Line            { return v.lineView() }
func (v User) Word() Word            { return v.wordView() }
func (v User) Arg() Arg              { return v.argView() }
func (v User) Equal(o User) bool     { return v.same(o.str) }

// Cmd is a non-empty run of ASCII uppercase letters.
type Cmd struct{ str }

func CmdFrom(b Bytes) (Cmd, error) {
	v, err := checked(KindCmd, b)
	return Cmd{v}, err
}
func NewCmd(s string) (Cmd, error) { return CmdFrom(New(s)) }
func MustCmd(s string) Cmd         { return must(NewCmd(s)) }
func (v Cmd) Line() Line           { return v.lineView() }
func (v Cmd) Word() Word           { return v.wordView() }
func (v Cmd) Arg() Arg             { return v.argView() }
func (v Cmd) Equal(o Cmd) bool     { return v.same(o.str) }

// CmdFromWord uppercases ASCII letters in w before validating it as a Cmd.
func CmdFromWord(w Bytes) (Cmd, error) {
	return CmdFrom(upperASCII(w))
}

func upperASCII(b Bytes) Bytes {
	i := 0
	for i < len(b.b) && !(b.b[i] >= 'a' && b.b[i] <= 'z') {
		i++
	}
	if i == len(b.b) {
		return b
	}
	out := make([]byte, len(b.b))
	copy(out, b.b)
	for ; i < len(out); i++ {
		if out[i] >= 'a' && out[i] <= 'z' {
			out[i] -= 'a' - 'A'
		}
	}
	return b.derive(out, b.state())
}
