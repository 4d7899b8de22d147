// Package register drives connection registration: CAP negotiation,
// optional SASL, NICK/USER and nickname collision recovery. The handshake
// is a client.Handler and never touches the socket itself.
package register

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/ircwire/internal/client"
	"github.com/danmuck/ircwire/internal/client/handlers"
	"github.com/danmuck/ircwire/internal/client/nick"
	"github.com/danmuck/ircwire/internal/client/queue"
	"github.com/danmuck/ircwire/internal/client/sasl"
	"github.com/danmuck/ircwire/internal/ircstr"
	"github.com/danmuck/ircwire/internal/logging"
	"github.com/danmuck/ircwire/internal/observability"
	"github.com/danmuck/ircwire/internal/protocol/ircmsg"
)

const (
	DefaultMaxNickRetries = 8
	DefaultTimeout        = 60 * time.Second
)

// Options configure one registration attempt. Build fresh Options (and a
// fresh nick generator) for every connection.
type Options struct {
	// Password is sent with PASS when set. It is marked secret.
	Password string
	Nicks    nick.Generator
	Username string
	Realname string
	// Caps are requested when the server offers them. sasl is added
	// automatically when Mechanisms is non-empty.
	Caps       []string
	Mechanisms []sasl.Mechanism
	// RequireSASL fails registration unless SASL succeeds.
	RequireSASL bool
	// MaxNickRetries bounds collision retries: 0 means
	// DefaultMaxNickRetries, negative means unlimited.
	MaxNickRetries int
	// Timeout fails the handshake with ErrTimeout if it has not finished
	// by then. Zero waits forever.
	Timeout time.Duration
}

// Result is the handshake outcome. Err is nil once registered.
type Result struct {
	Registration client.Registration
	Err          error
}

// Handshake is the registration state machine.
type Handshake struct {
	opts     Options
	username ircstr.User
	realname ircstr.Line
	password ircstr.Bytes

	phase   Phase
	history []Phase

	offered   client.Caps
	requested map[string]bool
	enabled   client.Caps
	capEnd    bool

	negotiator *sasl.Negotiator
	account    string
	userhost   string

	nick     ircstr.Nick
	attempts int
	maxTries int

	log zerolog.Logger
}

var (
	_ client.Handler[Result]      = (*Handshake)(nil)
	_ client.ValueHandler[Result] = (*Handshake)(nil)
)

// timedOut is the deferred value behind Options.Timeout.
type timedOut struct{}

func New(opts Options) *Handshake {
	h := &Handshake{
		opts:     opts,
		offered:  client.Caps{},
		enabled:  client.Caps{},
		maxTries: opts.MaxNickRetries,
		log:      logging.Logger("register"),
	}
	if h.maxTries == 0 {
		h.maxTries = DefaultMaxNickRetries
	}
	if len(opts.Mechanisms) > 0 {
		h.negotiator = sasl.NewNegotiator(opts.Mechanisms...)
	}
	return h
}

// History returns the phases visited so far, in order.
func (h *Handshake) History() []Phase { return slices.Clone(h.history) }

func (h *Handshake) Phase() Phase { return h.phase }

// Nick is the current candidate, or the registered nick once done.
func (h *Handshake) Nick() string { return h.nick.Text() }

func (h *Handshake) transition(p Phase) {
	h.phase = p
	h.history = append(h.history, p)
	observability.RecordHandshakePhase(p.String())
	h.log.Debug().Str("phase", p.String()).Msg("handshake")
}

func (h *Handshake) Start(st *client.State, q queue.Sink) error {
	if h.opts.Nicks == nil {
		return ErrNoNick
	}
	first, ok := h.opts.Nicks.Next()
	if !ok {
		return ErrNoNick
	}
	h.nick = first
	if err := h.identity(); err != nil {
		return err
	}
	h.transition(PhaseStart)

	if h.opts.Password != "" {
		pass, err := secretArgs("PASS", ircstr.NewSecret([]byte(h.opts.Password)))
		if err != nil {
			return fmt.Errorf("%w: password: %v", ErrBadIdentity, err)
		}
		q.Enqueue(pass)
	}
	q.Enqueue(ircmsg.MustClientMsg("CAP", "LS", "302"))
	h.transition(PhaseCapNegotiating)

	if h.opts.Timeout > 0 {
		sched, ok := client.SchedulerFor(q)
		if !ok {
			return fmt.Errorf("register: timeout set but sink cannot schedule")
		}
		sched.Defer(h.opts.Timeout, timedOut{})
	}
	return nil
}

// HandleValue fails the handshake when its timeout fires first.
func (h *Handshake) HandleValue(v any, st *client.State, _ queue.Sink) (Result, bool) {
	if _, ok := v.(timedOut); !ok || h.phase.Terminal() {
		return Result{}, false
	}
	return h.fail(st, fmt.Errorf("%w after %s in %s", ErrTimeout, h.opts.Timeout, h.phase)), true
}

func (h *Handshake) identity() error {
	username := h.opts.Username
	if username == "" {
		username = h.nick.Text()
	}
	u, err := ircstr.NewUser(username)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadIdentity, err)
	}
	realname := h.opts.Realname
	if realname == "" {
		realname = username
	}
	r, err := ircstr.NewLine(realname)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadIdentity, err)
	}
	h.username, h.realname = u, r
	return nil
}

// secretArgs builds cmd with one secret argument, trailing if it has to be.
func secretArgs(cmd string, v ircstr.Bytes) (*ircmsg.ClientMsg, error) {
	m, err := ircmsg.NewClientMsg(cmd)
	if err != nil {
		return nil, err
	}
	if a, err := ircstr.ArgFrom(v); err == nil {
		return m, m.Args.Add(a)
	}
	l, err := ircstr.LineFrom(v)
	if err != nil {
		return nil, err
	}
	return m, m.Args.AddLast(l)
}

func (h *Handshake) Handle(msg *ircmsg.ServerMsg, st *client.State, q queue.Sink) (Result, bool) {
	if h.phase.Terminal() {
		return Result{}, true
	}
	if msg.Source != nil {
		if _, ok := client.Get(st, client.KeyServerSource); !ok {
			client.Set(st, client.KeyServerSource, *msg.Source)
		}
	}
	if pong, ok := handlers.Pong(msg); ok {
		q.EnqueueUrgent(pong)
		return Result{}, false
	}
	if h.phase == PhaseAuthenticating && h.negotiator.Handle(msg, q) {
		if err := h.finishAuth(q); err != nil {
			return h.fail(st, err), true
		}
		return Result{}, false
	}

	switch {
	case msg.Kind.IsCmd("CAP"):
		if err := h.onCap(msg, q); err != nil {
			return h.fail(st, err), true
		}
	case msg.Kind.IsCmd("ERROR"):
		return h.fail(st, fmt.Errorf("%w: %s", ErrServerError, lastText(msg))), true
	case msg.Kind.IsNumeric(ircmsg.ErrUnknownCommandNumeric) && strings.EqualFold(msg.Args.Text(1), "CAP"):
		if h.phase == PhaseCapNegotiating {
			h.log.Debug().Msg("server has no CAP support")
			h.sendNickUser(q, false)
		}
	case msg.Kind.IsNumeric(ircmsg.ErrPasswdMismatch), msg.Kind.IsNumeric(ircmsg.ErrYoureBannedCreep):
		return h.fail(st, fmt.Errorf("%w: %s", ErrNoAccess, lastText(msg))), true
	case msg.Kind.IsNumeric(ircmsg.ErrErroneusNickname):
		h.opts.Nicks.Reject(h.nick)
		if err := h.collide(q); err != nil {
			return h.fail(st, err), true
		}
	case msg.Kind.IsNumeric(ircmsg.ErrNicknameInUse),
		msg.Kind.IsNumeric(ircmsg.ErrNickCollision),
		msg.Kind.IsNumeric(ircmsg.ErrUnavailResource),
		msg.Kind.IsNumeric(ircmsg.ErrNoNicknameGiven):
		if err := h.collide(q); err != nil {
			return h.fail(st, err), true
		}
	case msg.Kind.IsNumeric(ircmsg.RplBounce):
		return h.fail(st, redirect010(msg)), true
	case msg.Kind.IsNumeric(ircmsg.RplISupport):
		// Before welcome this is RFC 2812 RPL_BOUNCE.
		return h.fail(st, redirect005(msg)), true
	case msg.Kind.IsNumeric(ircmsg.RplLoggedIn):
		h.account = msg.Args.Text(2)
		h.whoami(msg.Args.Text(1))
	case msg.Kind.IsNumeric(ircmsg.RplLoggedOut):
		h.account = ""
		h.whoami(msg.Args.Text(1))
	case msg.Kind.IsNumeric(ircmsg.RplWelcome):
		return h.welcome(msg, st), true
	}
	return Result{}, false
}

// whoami takes nick and user@host from the "nick!user@host" argument of
// RPL_LOGGEDIN and RPL_LOGGEDOUT.
func (h *Handshake) whoami(mask string) {
	if mask == "" {
		return
	}
	src, err := ircmsg.ParseSource(ircstr.New(mask))
	if err != nil {
		h.log.Debug().Err(err).Str("mask", mask).Msg("ignoring malformed whoami")
		return
	}
	h.nick = src.Nick
	switch {
	case src.HasUser() && src.HasHost():
		h.userhost = src.User.Text() + "@" + src.Host.Text()
	case src.HasHost():
		h.userhost = src.Host.Text()
	default:
		h.userhost = ""
	}
}

// redirect010 reads "<client> <host> <port> :<info>".
func redirect010(msg *ircmsg.ServerMsg) error {
	if msg.Args.Len() < 4 {
		return fmt.Errorf("%w: malformed RPL_BOUNCE: %s", ErrServerError, lastText(msg))
	}
	port, err := strconv.Atoi(msg.Args.Text(2))
	if err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("%w: RPL_BOUNCE with bad port %q", ErrServerError, msg.Args.Text(2))
	}
	return &RedirectError{Host: msg.Args.Text(1), Port: port, Info: lastText(msg)}
}

// redirect005 reads the free-form "Try server <host>, port <port>".
func redirect005(msg *ircmsg.ServerMsg) error {
	text := lastText(msg)
	before, after, ok := strings.Cut(text, ",")
	fields := strings.Fields(before)
	if ok && len(fields) > 0 {
		digits := after[strings.LastIndexFunc(after, notDigit)+1:]
		if port, err := strconv.Atoi(digits); err == nil && port > 0 && port <= 65535 {
			return &RedirectError{Host: fields[len(fields)-1], Port: port, Info: text}
		}
	}
	return fmt.Errorf("%w: 005 before welcome: %s", ErrServerError, text)
}

func notDigit(r rune) bool { return r < '0' || r > '9' }

func lastText(msg *ircmsg.ServerMsg) string {
	if l, ok := msg.Args.Last(); ok {
		return l.Text()
	}
	return ""
}

func (h *Handshake) onCap(msg *ircmsg.ServerMsg, q queue.Sink) error {
	if h.phase != PhaseCapNegotiating {
		return nil
	}
	sub := strings.ToUpper(msg.Args.Text(1))
	list := lastText(msg)
	switch sub {
	case "LS":
		for _, e := range ircmsg.SplitCapList(list) {
			name, value := ircmsg.ParseCapValue(e)
			h.offered[name] = value
		}
		// "CAP * LS * :..." continues on the next line.
		if msg.Args.Len() > 3 && msg.Args.Text(2) == "*" {
			return nil
		}
		return h.request(q)
	case "ACK":
		for _, name := range ircmsg.SplitCapList(list) {
			if off, ok := strings.CutPrefix(name, "-"); ok {
				delete(h.enabled, off)
				delete(h.requested, off)
				continue
			}
			h.enabled[name] = h.offered[name]
			delete(h.requested, name)
		}
	case "NAK":
		for _, name := range ircmsg.SplitCapList(list) {
			delete(h.requested, name)
		}
	default:
		return nil
	}
	if len(h.requested) == 0 {
		return h.capsDone(q)
	}
	return nil
}

func (h *Handshake) request(q queue.Sink) error {
	var want []string
	seen := map[string]bool{}
	add := func(name string) {
		if _, ok := h.offered[name]; ok && !seen[name] {
			seen[name] = true
			want = append(want, name)
		}
	}
	for _, c := range h.opts.Caps {
		add(c)
	}
	if h.negotiator != nil {
		add("sasl")
		if mechs, ok := h.offered["sasl"]; ok {
			h.negotiator.Restrict(sasl.ParseMechList(mechs))
		}
	}
	if len(want) == 0 {
		return h.capsDone(q)
	}
	h.requested = seen
	for _, m := range handlers.CapRequests(want, ircmsg.DefaultMaxLine) {
		q.Enqueue(m)
	}
	return nil
}

func (h *Handshake) capsDone(q queue.Sink) error {
	if _, ok := h.enabled["sasl"]; ok && h.negotiator != nil {
		h.transition(PhaseAuthenticating)
		if h.negotiator.Begin(q) {
			return nil
		}
		return h.finishAuth(q)
	}
	if h.opts.RequireSASL {
		return fmt.Errorf("%w: server did not enable sasl", ErrSASLRequired)
	}
	h.sendNickUser(q, true)
	return nil
}

func (h *Handshake) finishAuth(q queue.Sink) error {
	if h.negotiator.Succeeded() {
		if acct := h.negotiator.Account(); acct != "" {
			h.account = acct
		}
	} else {
		err := h.negotiator.Err()
		if h.opts.RequireSASL {
			return fmt.Errorf("%w: %w", ErrSASLRequired, err)
		}
		h.log.Warn().Err(err).Msg("continuing unauthenticated")
	}
	h.sendNickUser(q, true)
	return nil
}

func (h *Handshake) sendNickUser(q queue.Sink, capEnd bool) {
	h.capEnd = capEnd
	if capEnd {
		q.Enqueue(ircmsg.MustClientMsg("CAP", "END"))
	}
	q.Enqueue(nickMsg(h.nick))
	user := ircmsg.MustClientMsg("USER")
	_ = user.Args.Add(h.username.Arg())
	_ = user.Args.Add(ircstr.MustArg("0"))
	_ = user.Args.Add(ircstr.MustArg("*"))
	_ = user.Args.AddLast(h.realname)
	q.Enqueue(user)
	h.transition(PhaseNickUserSent)
}

func nickMsg(n ircstr.Nick) *ircmsg.ClientMsg {
	m := ircmsg.MustClientMsg("NICK")
	_ = m.Args.Add(n.Arg())
	return m
}

func (h *Handshake) collide(q queue.Sink) error {
	if h.phase != PhaseNickUserSent && h.phase != PhaseNickRetry {
		return nil
	}
	h.transition(PhaseNickCollision)
	h.attempts++
	if h.maxTries > 0 && h.attempts > h.maxTries {
		return &CollisionError{Nick: h.nick.Text(), Attempts: h.attempts}
	}
	next, ok := h.opts.Nicks.Next()
	if !ok {
		return &CollisionError{Nick: h.nick.Text(), Attempts: h.attempts, Exhausted: true}
	}
	h.log.Debug().Str("taken", h.nick.Text()).Str("next", next.Text()).Msg("nick collision")
	h.nick = next
	q.Enqueue(nickMsg(next))
	h.transition(PhaseNickRetry)
	return nil
}

func (h *Handshake) welcome(msg *ircmsg.ServerMsg, st *client.State) Result {
	if n := msg.Args.Text(0); n != "" && n != "*" {
		if nn, err := ircstr.NewNick(n); err == nil {
			h.nick = nn
		}
	}
	if msg.Source != nil {
		client.Set(st, client.KeyServerSource, *msg.Source)
	}
	h.transition(PhaseRegistered)
	reg := h.snapshot(st)
	observability.RecordHandshakeOutcome("registered")
	h.log.Info().Str("nick", reg.Nick).Str("account", reg.Account).Strs("caps", reg.Caps).Msg("registered")
	return Result{Registration: reg}
}

func (h *Handshake) fail(st *client.State, err error) Result {
	h.transition(PhaseFailed)
	reg := h.snapshot(st)
	observability.RecordHandshakeOutcome("failed")
	h.log.Warn().Err(err).Strs("phases", reg.Phases).Msg("registration failed")
	return Result{Registration: reg, Err: err}
}

// snapshot writes the outcome into State and returns it.
func (h *Handshake) snapshot(st *client.State) client.Registration {
	caps := slices.Sorted(maps.Keys(h.enabled))
	phases := make([]string, len(h.history))
	for i, p := range h.history {
		phases[i] = p.String()
	}
	reg := client.Registration{
		Nick:     h.nick.Text(),
		Account:  h.account,
		Userhost: h.userhost,
		Caps:     caps,
		Phases:   phases,
	}
	client.Set(st, client.KeyRegistration, reg)
	client.Set(st, client.KeyCaps, maps.Clone(h.enabled))
	client.Set(st, client.KeyCapsOffered, maps.Clone(h.offered))
	if h.account != "" {
		client.Set(st, client.KeyAccount, h.account)
	} else {
		client.Delete(st, client.KeyAccount)
	}
	return reg
}
