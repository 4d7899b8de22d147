package client

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/ircwire/internal/client/queue"
	"github.com/danmuck/ircwire/internal/ircstr"
	"github.com/danmuck/ircwire/internal/protocol/ircmsg"
	"github.com/danmuck/ircwire/internal/testutil/ircscript"
	"github.com/danmuck/ircwire/internal/testutil/testlog"
)

// recorder logs every kind it sees into a shared journal and finishes on
// the kind named by until.
type recorder struct {
	name    string
	until   string
	journal *[]string
	send    []*ircmsg.ClientMsg
	failing error
}

func (r *recorder) Start(_ *State, q queue.Sink) error {
	if r.failing != nil {
		return r.failing
	}
	for _, m := range r.send {
		q.Enqueue(m)
	}
	return nil
}

func (r *recorder) Handle(msg *ircmsg.ServerMsg, _ *State, _ queue.Sink) (string, bool) {
	kind := msg.Kind.String()
	*r.journal = append(*r.journal, r.name+":"+kind)
	return kind, kind == r.until
}

func runAsync(ctx context.Context, c *Client) <-chan error {
	errs := make(chan error, 1)
	go func() { errs <- c.Run(ctx) }()
	return errs
}

func waitErr(t *testing.T, errs <-chan error) error {
	t.Helper()
	select {
	case err := <-errs:
		return err
	case <-time.After(3 * time.Second):
		t.Fatalf("run did not return")
	}
	return nil
}

func TestRunDispatchesInRegistrationOrder(t *testing.T) {
	testlog.Start(t)
	conn, srv := ircscript.New(t)
	c := New(conn, WithQueue(queue.New(queue.Unthrottled())))

	var journal []string
	first := &recorder{name: "a", until: "001", journal: &journal, send: []*ircmsg.ClientMsg{
		ircmsg.MustClientMsg("NICK", "tester"),
	}}
	second := &recorder{name: "b", until: "002", journal: &journal}
	doneA, err := Add[string](c, first)
	if err != nil {
		t.Fatalf("add a: %v", err)
	}
	doneB, err := Add[string](c, second)
	if err != nil {
		t.Fatalf("add b: %v", err)
	}

	errs := runAsync(context.Background(), c)
	srv.Expect("NICK tester")
	srv.Send(":irc.test 001 tester :Welcome", ":irc.test 002 tester :Your host")

	if err := waitErr(t, errs); err != nil {
		t.Fatalf("run: %v", err)
	}
	if v := <-doneA; v != "001" {
		t.Fatalf("handler a value=%q", v)
	}
	if v := <-doneB; v != "002" {
		t.Fatalf("handler b value=%q", v)
	}
	if _, open := <-doneA; open {
		t.Fatalf("finished handler channel should be closed")
	}
	want := []string{"a:001", "b:001", "b:002"}
	if len(journal) != len(want) {
		t.Fatalf("journal=%v want=%v", journal, want)
	}
	for i := range want {
		if journal[i] != want[i] {
			t.Fatalf("journal=%v want=%v", journal, want)
		}
	}
}

func TestRunSkipsInvalidLines(t *testing.T) {
	testlog.Start(t)
	conn, srv := ircscript.New(t)
	c := New(conn, WithQueue(queue.New(queue.Unthrottled())))
	var journal []string
	done, err := Add[string](c, &recorder{name: "r", until: "PING", journal: &journal})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	errs := runAsync(context.Background(), c)
	srv.Send("@only=tags", ":nick!user@host", "PING :still-here")
	if err := waitErr(t, errs); err != nil {
		t.Fatalf("run: %v", err)
	}
	if v := <-done; v != "PING" {
		t.Fatalf("value=%q", v)
	}
	if len(journal) != 1 {
		t.Fatalf("invalid lines reached handlers: %v", journal)
	}
}

func TestRunTransportErrorOnHangup(t *testing.T) {
	testlog.Start(t)
	conn, srv := ircscript.New(t)
	c := New(conn, WithQueue(queue.New(queue.Unthrottled())))
	var journal []string
	if _, err := Add[string](c, &recorder{name: "r", journal: &journal}); err != nil {
		t.Fatalf("add: %v", err)
	}
	errs := runAsync(context.Background(), c)
	srv.Close()
	err := waitErr(t, errs)
	var te *TransportError
	if !errors.As(err, &te) || te.Op != "read" {
		t.Fatalf("expected read TransportError, got %v", err)
	}
}

func TestRunStopsOnContextAndStop(t *testing.T) {
	testlog.Start(t)
	conn, _ := ircscript.New(t)
	c := New(conn, WithQueue(queue.New(queue.Unthrottled())))
	var journal []string
	if _, err := Add[string](c, &recorder{name: "r", journal: &journal}); err != nil {
		t.Fatalf("add: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errs := runAsync(ctx, c)
	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := waitErr(t, errs); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	errs = runAsync(context.Background(), c)
	time.Sleep(20 * time.Millisecond)
	c.Stop()
	if err := waitErr(t, errs); err != nil {
		t.Fatalf("expected nil after Stop, got %v", err)
	}
}

func TestRunReleasesThrottledLines(t *testing.T) {
	testlog.Start(t)
	conn, srv := ircscript.New(t)
	q := queue.New(queue.WithThrottle(queue.NewThrottle(queue.ThrottleConfig{Interval: 30 * time.Millisecond, Burst: 1})))
	c := New(conn, WithQueue(q))
	var journal []string
	rec := &recorder{name: "r", journal: &journal, send: []*ircmsg.ClientMsg{
		ircmsg.MustClientMsg("PRIVMSG", "#a", "one"),
		ircmsg.MustClientMsg("PRIVMSG", "#a", "two"),
		ircmsg.MustClientMsg("PRIVMSG", "#a", "three"),
	}}
	if _, err := Add[string](c, rec); err != nil {
		t.Fatalf("add: %v", err)
	}
	errs := runAsync(context.Background(), c)
	start := time.Now()
	srv.Expect("PRIVMSG #a one", "PRIVMSG #a two", "PRIVMSG #a three")
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("throttle not applied, elapsed=%s", elapsed)
	}
	c.Stop()
	if err := waitErr(t, errs); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestStopFlushesThrottledQueue(t *testing.T) {
	testlog.Start(t)
	conn, srv := ircscript.New(t)
	q := queue.New(queue.WithThrottle(queue.NewThrottle(queue.ThrottleConfig{Interval: 20 * time.Millisecond, Burst: 1})))
	c := New(conn, WithQueue(q))
	var journal []string
	rec := &recorder{name: "r", journal: &journal, send: []*ircmsg.ClientMsg{
		ircmsg.MustClientMsg("PRIVMSG", "#a", "one"),
		ircmsg.MustClientMsg("PRIVMSG", "#a", "two"),
		ircmsg.MustClientMsg("QUIT", "bye"),
	}}
	if _, err := Add[string](c, rec); err != nil {
		t.Fatalf("add: %v", err)
	}
	c.Stop()
	errs := runAsync(context.Background(), c)
	srv.Expect("PRIVMSG #a one", "PRIVMSG #a two", "QUIT bye")
	if err := waitErr(t, errs); err != nil {
		t.Fatalf("run: %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("stop left %d queued", q.Len())
	}
}

func TestStopFlushIsBoundedByContext(t *testing.T) {
	testlog.Start(t)
	conn, srv := ircscript.New(t)
	q := queue.New(queue.WithThrottle(queue.NewThrottle(queue.ThrottleConfig{Interval: time.Hour, Burst: 1})))
	c := New(conn, WithQueue(q))
	var journal []string
	rec := &recorder{name: "r", journal: &journal, send: []*ircmsg.ClientMsg{
		ircmsg.MustClientMsg("PRIVMSG", "#a", "one"),
		ircmsg.MustClientMsg("PRIVMSG", "#a", "two"),
	}}
	if _, err := Add[string](c, rec); err != nil {
		t.Fatalf("add: %v", err)
	}
	c.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	errs := runAsync(ctx, c)
	srv.Expect("PRIVMSG #a one")
	if err := waitErr(t, errs); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("expected the throttled line to stay queued, len=%d", q.Len())
	}
}

func TestLastHandlerFinishingFlushesQueue(t *testing.T) {
	testlog.Start(t)
	conn, srv := ircscript.New(t)
	q := queue.New(queue.WithThrottle(queue.NewThrottle(queue.ThrottleConfig{Interval: 200 * time.Millisecond, Burst: 1})))
	c := New(conn, WithQueue(q))
	var journal []string
	rec := &recorder{name: "r", until: "001", journal: &journal, send: []*ircmsg.ClientMsg{
		ircmsg.MustClientMsg("NICK", "a"),
		ircmsg.MustClientMsg("USER", "a", "0", "*", "a"),
	}}
	if _, err := Add[string](c, rec); err != nil {
		t.Fatalf("add: %v", err)
	}
	errs := runAsync(context.Background(), c)
	srv.Expect("NICK a")
	srv.Send(":irc.test 001 a :Welcome")
	srv.Expect("USER a 0 * a")
	if err := waitErr(t, errs); err != nil {
		t.Fatalf("run: %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("queue not flushed, len=%d", q.Len())
	}
}

// scheduled hands itself a deferred value, a spawned value or both, and
// reports each one it gets back as a PRIVMSG.
type scheduled struct {
	after   time.Duration
	spawn   func() any
	until   string
	missing bool
}

func (s *scheduled) Start(_ *State, q queue.Sink) error {
	sched, ok := SchedulerFor(q)
	if !ok {
		return errors.New("sink has no scheduler")
	}
	if s.after > 0 {
		sched.Defer(s.after, "deferred")
	}
	if s.spawn != nil {
		sched.Spawn(s.spawn)
	}
	return nil
}

func (s *scheduled) Handle(msg *ircmsg.ServerMsg, _ *State, _ queue.Sink) (string, bool) {
	kind := msg.Kind.String()
	return kind, kind == s.until
}

func (s *scheduled) HandleValue(v any, _ *State, q queue.Sink) (string, bool) {
	text, _ := v.(string)
	q.Enqueue(ircmsg.MustClientMsg("PRIVMSG", "#log", text))
	return text, true
}

func TestDeferredValueFiresOnTimer(t *testing.T) {
	testlog.Start(t)
	conn, srv := ircscript.New(t)
	c := New(conn, WithQueue(queue.New(queue.Unthrottled())))
	done, err := Add[string](c, &scheduled{after: 40 * time.Millisecond})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if c.Pending() != 1 {
		t.Fatalf("pending=%d", c.Pending())
	}
	start := time.Now()
	errs := runAsync(context.Background(), c)
	srv.Expect("PRIVMSG #log deferred")
	if elapsed := time.Since(start); elapsed < 35*time.Millisecond {
		t.Fatalf("deferred value delivered early: %s", elapsed)
	}
	if err := waitErr(t, errs); err != nil {
		t.Fatalf("run: %v", err)
	}
	if v := <-done; v != "deferred" {
		t.Fatalf("value=%q", v)
	}
}

func TestSpawnedValueWakesBlockedRead(t *testing.T) {
	testlog.Start(t)
	conn, srv := ircscript.New(t)
	c := New(conn, WithQueue(queue.New(queue.Unthrottled())))
	release := make(chan struct{})
	done, err := Add[string](c, &scheduled{spawn: func() any {
		<-release
		return "spawned"
	}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	errs := runAsync(context.Background(), c)
	srv.ExpectQuiet(30 * time.Millisecond)
	close(release)
	srv.Expect("PRIVMSG #log spawned")
	if err := waitErr(t, errs); err != nil {
		t.Fatalf("run: %v", err)
	}
	if v := <-done; v != "spawned" {
		t.Fatalf("value=%q", v)
	}
}

func TestDeferredValueDroppedWhenHandlerFinishes(t *testing.T) {
	testlog.Start(t)
	conn, srv := ircscript.New(t)
	c := New(conn, WithQueue(queue.New(queue.Unthrottled())))
	done, err := Add[string](c, &scheduled{after: 40 * time.Millisecond, until: "001"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	var journal []string
	if _, err := Add[string](c, &recorder{name: "keep", journal: &journal}); err != nil {
		t.Fatalf("add: %v", err)
	}
	errs := runAsync(context.Background(), c)
	srv.Send(":irc.test 001 a :Welcome")
	if v := <-done; v != "001" {
		t.Fatalf("value=%q", v)
	}
	srv.ExpectQuiet(80 * time.Millisecond)
	if c.Pending() != 0 {
		t.Fatalf("finished handler kept %d pending values", c.Pending())
	}
	c.Stop()
	if err := waitErr(t, errs); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestRunSurfacesEncodeErrors(t *testing.T) {
	testlog.Start(t)
	conn, srv := ircscript.New(t)
	q := queue.New(queue.Unthrottled())
	c := New(conn, WithQueue(q))
	var journal []string
	rec := &recorder{name: "r", journal: &journal, send: []*ircmsg.ClientMsg{
		ircmsg.MustClientMsg("PRIVMSG", "#a", strings.Repeat("x", 600)),
		ircmsg.MustClientMsg("NICK", "after"),
	}}
	if _, err := Add[string](c, rec); err != nil {
		t.Fatalf("add: %v", err)
	}
	err := waitErr(t, runAsync(context.Background(), c))
	var ee *EncodeError
	if !errors.As(err, &ee) || ee.Cmd != "PRIVMSG" || !errors.Is(err, ircmsg.ErrLineTooLong) {
		t.Fatalf("expected PRIVMSG EncodeError, got %v", err)
	}
	srv.ExpectQuiet(30 * time.Millisecond)
	if q.Len() != 1 {
		t.Fatalf("entries behind the failed one should stay queued, len=%d", q.Len())
	}
}

func TestRunSurfacesLabelOverTagBudget(t *testing.T) {
	testlog.Start(t)
	conn, _ := ircscript.New(t)
	lab, err := queue.NewLabeler(8, nil)
	if err != nil {
		t.Fatalf("labeler: %v", err)
	}
	lab.SetActive(true)
	q := queue.New(queue.Unthrottled(), queue.WithAdjuster(lab))
	c := New(conn, WithQueue(q))

	msg := ircmsg.MustClientMsg("TAGMSG", "#a")
	if err := msg.Tags.SetString("+a", strings.Repeat("v", ircmsg.MaxClientTags-5)); err != nil {
		t.Fatalf("tag: %v", err)
	}
	q.EnqueueLabeled(msg, "L1")
	var journal []string
	if _, err := Add[string](c, &recorder{name: "r", journal: &journal}); err != nil {
		t.Fatalf("add: %v", err)
	}
	err = waitErr(t, runAsync(context.Background(), c))
	var ee *EncodeError
	if !errors.As(err, &ee) || ee.Label != "L1" {
		t.Fatalf("expected labeled EncodeError, got %v", err)
	}
	var wire *ircmsg.EncodeError
	if !errors.As(err, &wire) || wire.Token != ircmsg.TokenTags {
		t.Fatalf("expected tag budget failure, got %v", err)
	}
}

func TestAddRejectsNilAndStartErrors(t *testing.T) {
	testlog.Start(t)
	conn, _ := ircscript.New(t)
	c := New(conn)
	if _, err := Add[string](c, nil); !errors.Is(err, ErrNilHandler) {
		t.Fatalf("expected ErrNilHandler, got %v", err)
	}
	boom := errors.New("boom")
	var journal []string
	if _, err := Add[string](c, &recorder{journal: &journal, failing: boom}); !errors.Is(err, boom) {
		t.Fatalf("expected start error, got %v", err)
	}
	if c.Handlers() != 0 {
		t.Fatalf("failed handler was registered")
	}
}

func TestStateTypedSlots(t *testing.T) {
	testlog.Start(t)
	st := NewState()
	Set(st, KeyAccount, "alice")
	Set(st, KeyCasemapping, ircstr.CasemapASCII)
	Update(st, KeyCaps, func(cur Caps, ok bool) Caps {
		if ok {
			t.Fatalf("caps should start empty")
		}
		return Caps{"sasl": "PLAIN"}
	})
	Update(st, KeyCaps, func(cur Caps, _ bool) Caps {
		next := Caps{"echo-message": ""}
		for k, v := range cur {
			next[k] = v
		}
		return next
	})

	if acct, ok := Get(st, KeyAccount); !ok || acct != "alice" {
		t.Fatalf("account=%q ok=%v", acct, ok)
	}
	caps, _ := Get(st, KeyCaps)
	if len(caps) != 2 || caps["sasl"] != "PLAIN" {
		t.Fatalf("caps=%v", caps)
	}

	snap := st.Snapshot()
	if snap["casemapping"] != "ascii" {
		t.Fatalf("snapshot casemapping=%v", snap["casemapping"])
	}
	snapCaps := snap["caps"].(Caps)
	snapCaps["injected"] = "x"
	if caps, _ := Get(st, KeyCaps); len(caps) != 2 {
		t.Fatalf("snapshot aliases state: %v", caps)
	}

	Delete(st, KeyAccount)
	if _, ok := Get(st, KeyAccount); ok {
		t.Fatalf("account survived delete")
	}
	st.Reset()
	if st.Len() != 0 {
		t.Fatalf("reset left %v", st.Keys())
	}
}
