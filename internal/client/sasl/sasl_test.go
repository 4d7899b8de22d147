package sasl

import (
	"encoding/base64"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/ircwire/internal/client/queue"
	"github.com/danmuck/ircwire/internal/protocol/ircmsg"
	"github.com/danmuck/ircwire/internal/testutil/testlog"
)

func sent(t *testing.T, q *queue.Queue) []string {
	t.Helper()
	var out []string
	if _, err := q.Drain(time.Now(), func(e *queue.Entry) error {
		line, err := e.Msg.Encode(0)
		if err != nil {
			return err
		}
		out = append(out, strings.TrimSuffix(string(line), "\r\n"))
		return nil
	}); err != nil {
		t.Fatalf("drain: %v", err)
	}
	return out
}

func feed(t *testing.T, n *Negotiator, q queue.Sink, lines ...string) bool {
	t.Helper()
	done := false
	for _, l := range lines {
		msg, err := ircmsg.ParseServerMsg([]byte(l), 0)
		if err != nil {
			t.Fatalf("parse %q: %v", l, err)
		}
		done = n.Handle(msg, q)
	}
	return done
}

func TestEncodeChunksTerminator(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name   string
		rawLen int
		want   []int
	}{
		{"empty", 0, []int{1}},
		{"short", 10, []int{16}},
		{"exactly one chunk", 300, []int{400, 1}},
		{"one chunk plus", 301, []int{400, 4}},
		{"exactly two chunks", 600, []int{400, 400, 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chunks := EncodeChunks(make([]byte, tc.rawLen))
			if len(chunks) != len(tc.want) {
				t.Fatalf("expected %d chunks, got %d", len(tc.want), len(chunks))
			}
			for i, c := range chunks {
				if c.Len() != tc.want[i] {
					t.Fatalf("chunk %d: expected len %d, got %d", i, tc.want[i], c.Len())
				}
				if !c.IsSecret() {
					t.Fatalf("chunk %d not secret", i)
				}
			}
			if tc.want[len(tc.want)-1] == 1 && chunks[len(chunks)-1].Text() != "+" {
				t.Fatalf("expected + terminator, got %q", chunks[len(chunks)-1].Text())
			}
		})
	}
}

func TestChunkDecoderRoundTrip(t *testing.T) {
	testlog.Start(t)
	for _, size := range []int{0, 5, 300, 301, 600, 1000} {
		payload := []byte(strings.Repeat("x", size))
		d := NewChunkDecoder(0)
		var got []byte
		finished := false
		for _, c := range EncodeChunks(payload) {
			if finished {
				t.Fatalf("size %d: chunk after completion", size)
			}
			out, done, err := d.Add(c.Raw())
			if err != nil {
				t.Fatalf("size %d: %v", size, err)
			}
			got, finished = out, done
		}
		if !finished || string(got) != string(payload) {
			t.Fatalf("size %d: round trip mismatch (done=%v len=%d)", size, finished, len(got))
		}
	}
}

func TestChunkDecoderLimits(t *testing.T) {
	testlog.Start(t)
	d := NewChunkDecoder(0)
	if _, _, err := d.Add(make([]byte, ChunkSize+1)); !errors.Is(err, ErrChunkTooLong) {
		t.Fatalf("expected ErrChunkTooLong, got %v", err)
	}
	small := NewChunkDecoder(500)
	chunk := []byte(strings.Repeat("A", ChunkSize))
	if _, done, err := small.Add(chunk); err != nil || done {
		t.Fatalf("first chunk: done=%v err=%v", done, err)
	}
	if _, _, err := small.Add(chunk); !errors.Is(err, ErrChallengeTooLarge) {
		t.Fatalf("expected ErrChallengeTooLarge, got %v", err)
	}
	if _, _, err := d.Add([]byte("!!!!")); err == nil {
		t.Fatalf("expected base64 error")
	}
}

func TestPlainResponse(t *testing.T) {
	testlog.Start(t)
	sess, err := Plain{Source: Static{Authzid: "admin", Authcid: "bot", Password: "hunter2"}}.Start()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := sess.Step([]byte("junk")); !errors.Is(err, ErrUnexpectedData) {
		t.Fatalf("expected ErrUnexpectedData, got %v", err)
	}
	resp, err := sess.Step(nil)
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if string(resp) != "admin\x00bot\x00hunter2" {
		t.Fatalf("unexpected response %q", resp)
	}
	if sess.State() != StateDone {
		t.Fatalf("expected done, got %v", sess.State())
	}
	if _, err := sess.Step(nil); !errors.Is(err, ErrAlreadyDone) {
		t.Fatalf("expected ErrAlreadyDone, got %v", err)
	}
	sess.Release()
	if strings.Contains(string(resp), "hunter2") {
		t.Fatalf("release should zero the response buffer")
	}
}

func TestScramSHA256Vector(t *testing.T) {
	testlog.Start(t)
	// RFC 7677 section 3.
	mech := ScramSHA256{
		Source: Static{Authcid: "user", Password: "pencil"},
		nonce:  func() (string, error) { return "rOprNGfwEbeRWgbNEkqO", nil },
	}
	sess, err := mech.Start()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer sess.Release()

	first, err := sess.Step(nil)
	if err != nil {
		t.Fatalf("client first: %v", err)
	}
	if string(first) != "n,,n=user,r=rOprNGfwEbeRWgbNEkqO" {
		t.Fatalf("unexpected client first %q", first)
	}
	serverFirst := "r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,s=W22ZaJ0SNY7soEsUEjb6gQ==,i=4096"
	final, err := sess.Step([]byte(serverFirst))
	if err != nil {
		t.Fatalf("client final: %v", err)
	}
	want := "c=biws,r=rOprNGfwEbeRWgbNEkqO%hvYDpWUa2RaTCAfuxFIlj)hNlF$k0,p=dHzbZapWIk4jUhN+Ute9ytag9zjfMHgsqmmiz7AndVQ="
	if string(final) != want {
		t.Fatalf("unexpected client final\n got %q\nwant %q", final, want)
	}
	resp, err := sess.Step([]byte("v=6rriTRBi23WpRR/wtup+mMhUZUn/dB5nLTJRsjl95G4="))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(resp) != 0 || sess.State() != StateDone {
		t.Fatalf("expected empty final response and done state")
	}
}

func TestScramRejectsBadServerSignature(t *testing.T) {
	testlog.Start(t)
	mech := ScramSHA256{
		Source: Static{Authcid: "user", Password: "pencil"},
		nonce:  func() (string, error) { return "abc", nil },
	}
	sess, err := mech.Start()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := sess.Step(nil); err != nil {
		t.Fatalf("client first: %v", err)
	}
	if _, err := sess.Step([]byte("r=abcdef,s=c2FsdA==,i=16")); err != nil {
		t.Fatalf("client final: %v", err)
	}
	if _, err := sess.Step([]byte("v=" + base64.StdEncoding.EncodeToString([]byte("forged")))); !errors.Is(err, ErrServerSignature) {
		t.Fatalf("expected ErrServerSignature, got %v", err)
	}

	sess, _ = mech.Start()
	_, _ = sess.Step(nil)
	if _, err := sess.Step([]byte("r=zzz,s=c2FsdA==,i=16")); !errors.Is(err, ErrUnexpectedData) {
		t.Fatalf("expected nonce mismatch, got %v", err)
	}
}

func TestNegotiatorPlainSuccess(t *testing.T) {
	testlog.Start(t)
	q := queue.New(queue.Unthrottled())
	n := NewNegotiator(Plain{Source: Static{Authcid: "bot", Password: "pw"}})
	if !n.Begin(q) {
		t.Fatalf("begin should start PLAIN")
	}
	if got := sent(t, q); len(got) != 1 || got[0] != "AUTHENTICATE PLAIN" {
		t.Fatalf("unexpected opening %v", got)
	}
	if feed(t, n, q, "AUTHENTICATE +") {
		t.Fatalf("should not be done after challenge")
	}
	want := "AUTHENTICATE " + base64.StdEncoding.EncodeToString([]byte("\x00bot\x00pw"))
	if got := sent(t, q); len(got) != 1 || got[0] != want {
		t.Fatalf("unexpected response %v", got)
	}
	done := feed(t, n, q,
		":irc.test 900 bot bot!u@h botacct :You are now logged in as botacct",
		":irc.test 903 bot :SASL authentication successful",
	)
	if !done || !n.Succeeded() || n.Err() != nil {
		t.Fatalf("expected success, done=%v err=%v", done, n.Err())
	}
	if n.Account() != "botacct" || n.Mechanism() != "PLAIN" {
		t.Fatalf("unexpected account=%q mech=%q", n.Account(), n.Mechanism())
	}
}

func TestNegotiatorExactChunkSendsTerminator(t *testing.T) {
	testlog.Start(t)
	// "\0u\0" plus 297 bytes is 300 raw bytes, exactly 400 in base64.
	q := queue.New(queue.Unthrottled())
	n := NewNegotiator(Plain{Source: Static{Authcid: "u", Password: strings.Repeat("p", 297)}})
	n.Begin(q)
	sent(t, q)
	feed(t, n, q, "AUTHENTICATE +")
	got := sent(t, q)
	if len(got) != 2 {
		t.Fatalf("expected 2 AUTHENTICATE lines, got %d", len(got))
	}
	if len(got[0]) != len("AUTHENTICATE ")+ChunkSize || got[1] != "AUTHENTICATE +" {
		t.Fatalf("unexpected chunking %q / %q", got[0][:20], got[1])
	}
}

type countingSource struct {
	loads int
	err   error
}

func (c *countingSource) Load() (Credentials, error) {
	c.loads++
	if c.err != nil {
		return Credentials{}, c.err
	}
	return Static{Authcid: "bot", Password: "pw"}.Load()
}

func TestCredentialsLoadLazily(t *testing.T) {
	testlog.Start(t)
	broken := &countingSource{err: errors.New("vault down")}
	fine := &countingSource{}
	n := NewNegotiator(ScramSHA256{Source: broken}, Plain{Source: fine})
	if broken.loads != 0 || fine.loads != 0 {
		t.Fatalf("construction must not load credentials")
	}

	q := queue.New(queue.Unthrottled())
	n.Begin(q)
	if broken.loads != 1 || fine.loads != 1 {
		t.Fatalf("unexpected loads broken=%d fine=%d", broken.loads, fine.loads)
	}
	if got := sent(t, q); len(got) != 1 || got[0] != "AUTHENTICATE PLAIN" {
		t.Fatalf("failed source must not reach the server: %v", got)
	}
	var ae *AuthError
	if fails := n.Failures(); len(fails) != 1 || !errors.As(fails[0], &ae) || ae.Mechanism != "SCRAM-SHA-256" {
		t.Fatalf("unexpected failures %v", fails)
	}
}

func TestNegotiatorAdvancesAndExhausts(t *testing.T) {
	testlog.Start(t)
	q := queue.New(queue.Unthrottled())
	n := NewNegotiator(External{}, Plain{Source: Static{Authcid: "bot", Password: "pw"}})
	n.Begin(q)
	if got := sent(t, q); got[0] != "AUTHENTICATE EXTERNAL" {
		t.Fatalf("unexpected first mechanism %v", got)
	}
	feed(t, n, q, ":irc.test 904 * :SASL authentication failed")
	if got := sent(t, q); len(got) != 1 || got[0] != "AUTHENTICATE PLAIN" {
		t.Fatalf("expected PLAIN after 904, got %v", got)
	}
	done := feed(t, n, q, ":irc.test 904 * :SASL authentication failed")
	if !done || n.Succeeded() {
		t.Fatalf("expected exhaustion")
	}
	err := n.Err()
	if !errors.Is(err, ErrExhausted) || !errors.Is(err, ErrRejected) {
		t.Fatalf("expected exhausted+rejected, got %v", err)
	}
	if len(n.Failures()) != 2 {
		t.Fatalf("expected 2 failures, got %d", len(n.Failures()))
	}
}

func TestNegotiatorRestrictsToAdvertised(t *testing.T) {
	testlog.Start(t)
	n := NewNegotiator(ScramSHA256{Source: Static{Authcid: "a"}}, External{}, Plain{Source: Static{Authcid: "a"}})
	n.Restrict(ParseMechList("PLAIN,EXTERNAL"))
	if got := strings.Join(n.Names(), ","); got != "EXTERNAL,PLAIN" {
		t.Fatalf("unexpected remaining %q", got)
	}

	q := queue.New(queue.Unthrottled())
	n.Begin(q)
	sent(t, q)
	feed(t, n, q,
		":irc.test 908 bot PLAIN :are available SASL mechanisms",
		":irc.test 904 bot :SASL authentication failed",
	)
	if got := sent(t, q); len(got) != 1 || got[0] != "AUTHENTICATE PLAIN" {
		t.Fatalf("expected PLAIN after 908 filtering, got %v", got)
	}
}

type brokenMech struct{}

func (brokenMech) Name() string            { return "X-BROKEN" }
func (brokenMech) Start() (Session, error) { return &brokenSession{}, nil }

type brokenSession struct{}

func (*brokenSession) Step([]byte) ([]byte, error) { return nil, errors.New("cannot answer") }
func (*brokenSession) State() State                { return StateInitial }
func (*brokenSession) Release()                    {}

func TestNegotiatorAbortsOnStepError(t *testing.T) {
	testlog.Start(t)
	q := queue.New(queue.Unthrottled())
	n := NewNegotiator(brokenMech{}, External{Authzid: "bot"})
	n.Begin(q)
	sent(t, q)
	feed(t, n, q, "AUTHENTICATE +")
	if got := sent(t, q); len(got) != 1 || got[0] != "AUTHENTICATE *" {
		t.Fatalf("expected abort, got %v", got)
	}
	feed(t, n, q, ":irc.test 906 bot :SASL authentication aborted")
	if got := sent(t, q); len(got) != 1 || got[0] != "AUTHENTICATE EXTERNAL" {
		t.Fatalf("expected EXTERNAL after abort, got %v", got)
	}
	feed(t, n, q, "AUTHENTICATE +")
	if got := sent(t, q); len(got) != 1 || got[0] != "AUTHENTICATE "+base64.StdEncoding.EncodeToString([]byte("bot")) {
		t.Fatalf("unexpected EXTERNAL response %v", got)
	}
	if !feed(t, n, q, ":irc.test 903 bot :SASL authentication successful") {
		t.Fatalf("expected success")
	}
	if len(n.Failures()) != 1 {
		t.Fatalf("abort should be recorded once, got %v", n.Failures())
	}
}

func TestCredentialSources(t *testing.T) {
	testlog.Start(t)
	t.Setenv("IRCWIRE_TEST_SASL_PASS", "from-env")
	creds, err := EnvSource{Authcid: "bot", Var: "IRCWIRE_TEST_SASL_PASS"}.Load()
	if err != nil || creds.Password.Text() != "from-env" || !creds.Password.IsSecret() {
		t.Fatalf("env source: %+v err=%v", creds, err)
	}
	if _, err := (EnvSource{Var: "IRCWIRE_TEST_SASL_MISSING"}).Load(); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}

	path := t.TempDir() + "/pass"
	if err := writeFile(path, "from-file\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	creds, err = FileSource{Authcid: "bot", Path: path}.Load()
	if err != nil || creds.Password.Text() != "from-file" {
		t.Fatalf("file source: %q err=%v", creds.Password.Text(), err)
	}
	creds.Release()
	if creds.Password.Text() == "from-file" {
		t.Fatalf("release should zero the password")
	}

	static := Static{Authcid: "bot", Password: "kept"}
	c1, _ := static.Load()
	c1.Release()
	c2, _ := static.Load()
	if c2.Password.Text() != "kept" {
		t.Fatalf("static source must survive release of a loaded copy")
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
