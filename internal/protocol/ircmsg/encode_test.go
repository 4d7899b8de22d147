package ircmsg

import (
	"errors"
	"strings"
	"testing"

	"github.com/danmuck/ircwire/internal/ircstr"
	"github.com/danmuck/ircwire/internal/testutil/testlog"
)

func TestSourceShapesRoundTrip(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		name    string
		src     Source
		wire    string
		wantErr error
	}{
		{name: "nick", src: Source{Nick: ircstr.MustNick("irc.example.net")}, wire: ":irc.example.net PING x\r\n"},
		{name: "nick host", src: Source{Nick: ircstr.MustNick("nick"), Host: ircstr.MustHost("h.example")}, wire: ":nick@h.example PING x\r\n"},
		{name: "full", src: Source{Nick: ircstr.MustNick("nick"), User: ircstr.MustUser("~u"), Host: ircstr.MustHost("h")}, wire: ":nick!~u@h PING x\r\n"},
		{name: "user without host", src: Source{Nick: ircstr.MustNick("nick"), User: ircstr.MustUser("u")}, wantErr: ErrInvalidSource},
		{name: "host only", src: Source{Host: ircstr.MustHost("h")}, wantErr: ErrInvalidSource},
		{name: "zero", src: Source{}, wantErr: ErrInvalidSource},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src := tc.src
			m := &ServerMsg{Source: &src, Kind: CmdKind(ircstr.MustCmd("PING")), Args: testArgs(t, "x")}
			wire, err := m.Encode(0)
			if tc.wantErr != nil {
				var ee *EncodeError
				if !errors.As(err, &ee) || !errors.Is(err, tc.wantErr) || ee.Token != TokenSource {
					t.Fatalf("expected source EncodeError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if string(wire) != tc.wire {
				t.Fatalf("wire got=%q want=%q", wire, tc.wire)
			}
			if len(wire)-2 != m.EncodedLen() {
				t.Fatalf("EncodedLen=%d wire=%d", m.EncodedLen(), len(wire)-2)
			}
			back, err := ParseServerMsg(wire, 0)
			if err != nil {
				t.Fatalf("reparse: %v", err)
			}
			if !back.Equal(m) {
				t.Fatalf("round trip mismatch: %s vs %s", back, m)
			}
		})
	}
}

func TestEncodeRejectsEmptyMessages(t *testing.T) {
	testlog.Start(t)
	var ee *EncodeError

	_, err := (&ClientMsg{}).Encode(0)
	if !errors.As(err, &ee) || ee.Token != TokenCommand || !errors.Is(err, ErrMissingCommand) {
		t.Fatalf("zero client message: %v", err)
	}
	withArgs := &ClientMsg{Args: testArgs(t, "x")}
	if _, err := withArgs.Encode(0); !errors.Is(err, ErrMissingCommand) {
		t.Fatalf("client message without command: %v", err)
	}

	_, err = (&ServerMsg{}).Encode(0)
	if !errors.As(err, &ee) || ee.Token != TokenCommand || !errors.Is(err, ErrMissingCommand) {
		t.Fatalf("zero server message: %v", err)
	}
}

func TestTagSectionHasOwnBudget(t *testing.T) {
	testlog.Start(t)

	// Registration numerics arrive tagged before any cap is known.
	tagged := "@a=" + strings.Repeat("x", 600) + " :srv 001 alice :Welcome"
	msg, err := ParseServerMsg([]byte(tagged), 0)
	if err != nil {
		t.Fatalf("tagged line at the base ceiling: %v", err)
	}
	if !msg.Kind.IsNumeric(RplWelcome) {
		t.Fatalf("kind=%s", msg.Kind)
	}

	// '@' + "a=" + value + ' ' is one byte over.
	_, err = ParseServerMsg([]byte("@a="+strings.Repeat("x", MaxServerTags-3)+" PING"), 0)
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Token != TokenTags || !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("oversized tag section: %v", err)
	}

	_, err = ParseServerMsg([]byte("@a=1 :srv 001 alice :"+strings.Repeat("x", 500)), 0)
	if !errors.As(err, &pe) || pe.Token != TokenLine || !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("oversized body: %v", err)
	}
}

func TestClientTagBudget(t *testing.T) {
	testlog.Start(t)
	tagged := func(n int) *ClientMsg {
		m := MustClientMsg("TAGMSG", "#c")
		m.Tags.Set(ircstr.MustKey("+a"), ircstr.MustNoNul(strings.Repeat("v", n)))
		return m
	}

	// '@' + "+a=" + value + ' ' is exactly MaxClientTags.
	fits := tagged(MaxClientTags - 5)
	wire, err := fits.Encode(0)
	if err != nil {
		t.Fatalf("tag section at budget: %v", err)
	}
	if len(wire) != MaxClientTags+len("TAGMSG #c\r\n") {
		t.Fatalf("wire length=%d", len(wire))
	}

	var ee *EncodeError
	_, err = tagged(MaxClientTags - 4).Encode(0)
	if !errors.As(err, &ee) || ee.Token != TokenTags || !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("tag section over budget: %v", err)
	}
}

func TestEncodedLenCountsEscapes(t *testing.T) {
	testlog.Start(t)
	m := MustClientMsg("TAGMSG", "#c")
	m.Tags.Set(ircstr.MustKey("+k"), ircstr.MustNoNul("a b;c\\d"))
	wire, err := m.Encode(0)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(wire) != "@+k=a\\sb\\:c\\\\d TAGMSG #c\r\n" {
		t.Fatalf("wire=%q", wire)
	}
	if m.EncodedLen() != len(wire)-2 {
		t.Fatalf("EncodedLen=%d wire=%d", m.EncodedLen(), len(wire)-2)
	}
}

func testArgs(t *testing.T, args ...string) Args {
	t.Helper()
	a, err := NewArgs(args...)
	if err != nil {
		t.Fatalf("args: %v", err)
	}
	return a
}
