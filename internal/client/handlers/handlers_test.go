package handlers

import (
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/danmuck/ircwire/internal/client"
	"github.com/danmuck/ircwire/internal/client/queue"
	"github.com/danmuck/ircwire/internal/ircstr"
	"github.com/danmuck/ircwire/internal/protocol/ircmsg"
	"github.com/danmuck/ircwire/internal/testutil/testlog"
)

func parse(t *testing.T, line string) *ircmsg.ServerMsg {
	t.Helper()
	msg, err := ircmsg.ParseServerMsg([]byte(line), ircmsg.TaggedMaxLine)
	if err != nil {
		t.Fatalf("parse %q: %v", line, err)
	}
	return msg
}

func sent(t *testing.T, q *queue.Queue) []string {
	t.Helper()
	var out []string
	_, err := q.Drain(time.Now(), func(e *queue.Entry) error {
		out = append(out, e.Msg.String())
		return nil
	})
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	return out
}

func TestAutoPongIsUrgent(t *testing.T) {
	testlog.Start(t)
	q := queue.New(queue.Unthrottled())
	q.Enqueue(ircmsg.MustClientMsg("PRIVMSG", "#a", "queued first"))
	var h AutoPong
	if _, done := h.Handle(parse(t, "PING :irc.test"), client.NewState(), q); done {
		t.Fatalf("AutoPong must stay registered")
	}
	got := sent(t, q)
	if len(got) != 2 || got[0] != "PONG :irc.test" {
		t.Fatalf("unexpected send order %v", got)
	}
}

func TestISupportTracker(t *testing.T) {
	testlog.Start(t)
	st := client.NewState()
	q := queue.New(queue.Unthrottled())
	var h ISupportTracker
	h.Handle(parse(t, ":irc.test 004 me irc.test ircd-9.1 iow bklmnost"), st, q)
	h.Handle(parse(t, `:irc.test 005 me CASEMAPPING=ascii NETWORK=Test\x20Net EXCEPTS CHANTYPES=# :are supported by this server`), st, q)
	h.Handle(parse(t, ":irc.test 005 me -EXCEPTS MODES=4 :are supported by this server"), st, q)

	info, ok := client.Get(st, client.KeyServerInfo)
	if !ok || info.Name != "irc.test" || info.Version != "ircd-9.1" || info.ChanModes != "bklmnost" {
		t.Fatalf("server info=%+v", info)
	}
	is, _ := client.Get(st, client.KeyISupport)
	if is["NETWORK"] != "Test Net" {
		t.Fatalf("NETWORK=%q", is["NETWORK"])
	}
	if _, ok := is["EXCEPTS"]; ok {
		t.Fatalf("-EXCEPTS not applied: %v", is)
	}
	if is["MODES"] != "4" || is["CHANTYPES"] != "#" {
		t.Fatalf("tokens=%v", is)
	}
	if _, ok := is["ARE"]; ok {
		t.Fatalf("trailing description parsed as a token")
	}
	if cm, _ := client.Get(st, client.KeyCasemapping); cm != ircstr.CasemapASCII {
		t.Fatalf("casemapping=%v", cm)
	}
}

func TestMyInfoVersionLandsOnRegistration(t *testing.T) {
	testlog.Start(t)
	st := client.NewState()
	client.Set(st, client.KeyRegistration, client.Registration{Nick: "me", Account: "acct"})
	var h ISupportTracker
	h.Handle(parse(t, ":irc.test 004 me irc.test ircd-9.1 iow bklmnost"), st, queue.New(queue.Unthrottled()))
	reg, _ := client.Get(st, client.KeyRegistration)
	if reg.Version != "ircd-9.1" || reg.Nick != "me" || reg.Account != "acct" {
		t.Fatalf("registration=%+v", reg)
	}
}

func TestUnescapeISupport(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"plain":       "plain",
		`a\x20b`:      "a b",
		`\x3D\x5c`:    `=\`,
		`bad\xZZ`:     `bad\xZZ`,
		`short\x2`:    `short\x2`,
		`\x41\x42end`: "ABend",
	}
	for in, want := range cases {
		if got := unescapeISupport(in); got != want {
			t.Fatalf("unescape %q = %q want %q", in, got, want)
		}
	}
}

func TestCapRequestsFitLine(t *testing.T) {
	testlog.Start(t)
	var names []string
	for i := 0; i < 60; i++ {
		names = append(names, "vendor.example/cap-"+strings.Repeat("x", i%7))
	}
	msgs := CapRequests(names, ircmsg.DefaultMaxLine)
	if len(msgs) < 2 {
		t.Fatalf("expected the list to be split, got %d lines", len(msgs))
	}
	var rejoined []string
	for _, m := range msgs {
		line, err := m.Encode(ircmsg.DefaultMaxLine)
		if err != nil {
			t.Fatalf("encode %s: %v", m, err)
		}
		if !strings.HasPrefix(string(line), "CAP REQ :") {
			t.Fatalf("unexpected line %q", line)
		}
		last, _ := m.Args.Last()
		rejoined = append(rejoined, strings.Fields(last.Text())...)
	}
	if strings.Join(rejoined, " ") != strings.Join(names, " ") {
		t.Fatalf("caps lost or reordered while splitting")
	}
	if got := CapRequests(nil, 0); len(got) != 0 {
		t.Fatalf("empty list produced %d lines", len(got))
	}
}

func TestCapTrackerNewAckDel(t *testing.T) {
	testlog.Start(t)
	st := client.NewState()
	client.Set(st, client.KeyCaps, client.Caps{"sasl": "PLAIN"})
	q := queue.New(queue.Unthrottled())
	var changes []client.Caps
	h := &CapTracker{Wanted: []string{"away-notify", "echo-message"}, OnChange: func(c client.Caps) {
		changes = append(changes, c)
	}}

	h.Handle(parse(t, ":irc.test CAP me NEW :away-notify chghost draft/x=1"), st, q)
	if got := sent(t, q); len(got) != 1 || got[0] != "CAP REQ :away-notify" {
		t.Fatalf("unexpected requests %v", got)
	}
	offered, _ := client.Get(st, client.KeyCapsOffered)
	if offered["draft/x"] != "1" {
		t.Fatalf("offered=%v", offered)
	}

	h.Handle(parse(t, ":irc.test CAP me ACK :away-notify"), st, q)
	caps, _ := client.Get(st, client.KeyCaps)
	if _, ok := caps["away-notify"]; !ok || caps["sasl"] != "PLAIN" {
		t.Fatalf("caps after ACK=%v", caps)
	}

	h.Handle(parse(t, ":irc.test CAP me DEL :sasl"), st, q)
	caps, _ = client.Get(st, client.KeyCaps)
	if _, ok := caps["sasl"]; ok {
		t.Fatalf("sasl survived DEL: %v", caps)
	}
	if len(changes) != 2 {
		t.Fatalf("expected 2 change callbacks, got %d", len(changes))
	}
}

func TestCTCPVersionReplies(t *testing.T) {
	testlog.Start(t)
	st := client.NewState()
	client.Set(st, client.KeyRegistration, client.Registration{Nick: "Bot[1]"})
	q := queue.New(queue.Unthrottled())
	h := CTCPVersion{Version: "ircwire 1.0"}

	h.Handle(parse(t, ":alice!a@host PRIVMSG Bot[1] :\x01VERSION\x01"), st, q)
	h.Handle(parse(t, ":alice!a@host PRIVMSG Bot[1] :\x01PING 12345\x01"), st, q)
	h.Handle(parse(t, ":alice!a@host PRIVMSG Bot[1] :\x01SOURCE\x01"), st, q)
	h.Handle(parse(t, ":alice!a@host PRIVMSG Bot[1] :plain text"), st, q)
	// rfc1459 folds [] to {}; this is our own echo.
	h.Handle(parse(t, ":bot{1}!b@host PRIVMSG #chan :\x01VERSION\x01"), st, q)

	got := sent(t, q)
	want := []string{
		"NOTICE alice :\x01VERSION ircwire 1.0\x01",
		"NOTICE alice :\x01PING 12345\x01",
	}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("replies=%q want %q", got, want)
	}
}

func TestLabeledResolves(t *testing.T) {
	testlog.Start(t)
	clk := clock.NewMock()
	labeler, err := queue.NewLabeler(8, clk)
	if err != nil {
		t.Fatalf("labeler: %v", err)
	}
	labeler.SetActive(true)
	q := queue.New(queue.Unthrottled(), queue.WithClock(clk), queue.WithAdjuster(labeler))
	label := queue.NewLabel()
	q.EnqueueLabeled(ircmsg.MustClientMsg("WHOIS", "alice"), label)
	if got := sent(t, q); len(got) != 1 || !strings.HasPrefix(got[0], "@label="+label) {
		t.Fatalf("label tag missing: %v", got)
	}

	var responses []Response
	h := NewLabeled(labeler, func(r Response) { responses = append(responses, r) })
	h.Handle(parse(t, "@label="+label+" :irc.test 311 me alice a host * :Alice"), client.NewState(), q)
	h.Handle(parse(t, "@label="+label+" :irc.test 318 me alice :End"), client.NewState(), q)
	if len(responses) != 1 || responses[0].Request.Cmd != "WHOIS" {
		t.Fatalf("responses=%+v", responses)
	}
	if labeler.Outstanding() != 0 {
		t.Fatalf("label still outstanding")
	}
}
