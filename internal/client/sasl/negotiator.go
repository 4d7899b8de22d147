package sasl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/danmuck/ircwire/internal/client/queue"
	"github.com/danmuck/ircwire/internal/ircstr"
	"github.com/danmuck/ircwire/internal/logging"
	"github.com/danmuck/ircwire/internal/observability"
	"github.com/danmuck/ircwire/internal/protocol/ircmsg"
)

var cmdAuthenticate = ircstr.MustCmd("AUTHENTICATE")

// Negotiator drives SASL over AUTHENTICATE, trying mechanisms in caller
// order until one succeeds or none remain.
type Negotiator struct {
	pending []Mechanism
	current Mechanism
	session Session
	decoder *ChunkDecoder

	aborting bool
	finished bool
	success  bool

	account   string
	succeeded string
	failures  error
	log       zerolog.Logger
}

// NewNegotiator takes mechanisms in preference order. Duplicate names
// keep their first position.
func NewNegotiator(mechs ...Mechanism) *Negotiator {
	seen := make(map[string]bool, len(mechs))
	pending := make([]Mechanism, 0, len(mechs))
	for _, m := range mechs {
		if m == nil {
			continue
		}
		name := strings.ToUpper(m.Name())
		if seen[name] {
			continue
		}
		seen[name] = true
		pending = append(pending, m)
	}
	return &Negotiator{
		pending: pending,
		decoder: NewChunkDecoder(DefaultMaxChallenge),
		log:     logging.Logger("sasl"),
	}
}

// Names lists the mechanisms still to be tried, current first.
func (n *Negotiator) Names() []string {
	out := make([]string, 0, len(n.pending)+1)
	if n.current != nil {
		out = append(out, n.current.Name())
	}
	for _, m := range n.pending {
		out = append(out, m.Name())
	}
	return out
}

// Restrict drops pending mechanisms the server does not offer. An empty
// list means the server did not say, and nothing is dropped.
func (n *Negotiator) Restrict(available []string) {
	if len(available) == 0 {
		return
	}
	offered := make(map[string]bool, len(available))
	for _, a := range available {
		offered[strings.ToUpper(strings.TrimSpace(a))] = true
	}
	kept := n.pending[:0]
	for _, m := range n.pending {
		if offered[strings.ToUpper(m.Name())] {
			kept = append(kept, m)
			continue
		}
		n.record(m.Name(), "", ErrNotOffered)
	}
	n.pending = kept
}

// ParseMechList splits a sasl cap value or RPL_SASLMECHS list.
func ParseMechList(list string) []string {
	var out []string
	for _, m := range strings.Split(list, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

// Begin starts the first mechanism whose credentials load. It reports
// false when negotiation is already over (nothing could start).
func (n *Negotiator) Begin(q queue.Sink) bool {
	n.advance(q)
	return !n.finished
}

// Handle consumes one server message and reports whether negotiation has
// finished, successfully or not.
func (n *Negotiator) Handle(msg *ircmsg.ServerMsg, q queue.Sink) bool {
	if n.finished {
		return true
	}
	if msg.Kind.IsCmd("AUTHENTICATE") {
		n.challenge(msg, q)
		return n.finished
	}
	num, ok := msg.Kind.Numeric()
	if !ok {
		return false
	}
	reason := lastText(msg)
	switch num {
	case ircmsg.RplLoggedIn:
		n.account = msg.Args.Text(2)
	case ircmsg.RplSaslSuccess, ircmsg.ErrSaslAlready:
		n.succeed()
	case ircmsg.ErrNickLocked:
		n.fail(q, reason, ErrNickLocked)
	case ircmsg.ErrSaslFail:
		n.fail(q, reason, ErrRejected)
	case ircmsg.ErrSaslTooLong:
		n.fail(q, reason, ErrMessageTooLong)
	case ircmsg.ErrSaslAborted:
		n.fail(q, reason, ErrAborted)
	case ircmsg.RplSaslMechs:
		n.Restrict(ParseMechList(msg.Args.Text(1)))
	}
	return n.finished
}

func lastText(msg *ircmsg.ServerMsg) string {
	if l, ok := msg.Args.Last(); ok {
		return l.Text()
	}
	return ""
}

func (n *Negotiator) challenge(msg *ircmsg.ServerMsg, q queue.Sink) {
	if n.session == nil || n.aborting {
		return
	}
	chunk, _ := msg.Args.At(0)
	payload, done, err := n.decoder.Add(chunk.Raw())
	if err != nil {
		n.abort(q, err)
		return
	}
	if !done {
		return
	}
	resp, err := n.session.Step(payload)
	if err != nil {
		n.abort(q, err)
		return
	}
	for _, arg := range EncodeChunks(resp) {
		m := &ircmsg.ClientMsg{Cmd: cmdAuthenticate}
		_ = m.Args.Add(arg)
		q.Enqueue(m)
	}
}

// abort records a client-side failure, tells the server to stop and waits
// for its 906 (or 904) before moving on.
func (n *Negotiator) abort(q queue.Sink, err error) {
	n.record(n.current.Name(), "", err)
	n.aborting = true
	n.log.Debug().Str("mechanism", n.current.Name()).Err(err).Msg("aborting")
	q.EnqueueUrgent(ircmsg.MustClientMsg("AUTHENTICATE", "*"))
}

func (n *Negotiator) fail(q queue.Sink, reason string, err error) {
	if n.current == nil {
		return
	}
	if !n.aborting {
		n.record(n.current.Name(), reason, err)
	}
	n.advance(q)
}

func (n *Negotiator) succeed() {
	if n.current != nil {
		n.succeeded = n.current.Name()
		observability.RecordSASLAttempt(n.succeeded, "success")
		n.log.Info().Str("mechanism", n.succeeded).Str("account", n.account).Msg("authenticated")
	}
	n.closeSession()
	n.finished = true
	n.success = true
}

func (n *Negotiator) advance(q queue.Sink) {
	n.closeSession()
	for len(n.pending) > 0 {
		m := n.pending[0]
		n.pending = n.pending[1:]
		sess, err := m.Start()
		if err != nil {
			n.record(m.Name(), "", err)
			continue
		}
		n.current = m
		n.session = sess
		n.log.Debug().Str("mechanism", m.Name()).Msg("trying")
		q.Enqueue(ircmsg.MustClientMsg("AUTHENTICATE", m.Name()))
		return
	}
	n.finished = true
	n.log.Warn().Err(n.Err()).Msg("sasl exhausted")
}

func (n *Negotiator) closeSession() {
	if n.session != nil {
		n.session.Release()
	}
	n.session = nil
	n.current = nil
	n.aborting = false
	n.decoder.Reset()
}

func (n *Negotiator) record(mech, reason string, err error) {
	observability.RecordSASLAttempt(mech, resultLabel(err))
	n.failures = multierr.Append(n.failures, &AuthError{Mechanism: mech, Reason: reason, Err: err})
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrNotOffered):
		return "not_offered"
	case errors.Is(err, ErrNoCredentials):
		return "no_credentials"
	case errors.Is(err, ErrAborted):
		return "aborted"
	case errors.Is(err, ErrRejected), errors.Is(err, ErrNickLocked), errors.Is(err, ErrMessageTooLong):
		return "rejected"
	default:
		return "error"
	}
}

func (n *Negotiator) Done() bool      { return n.finished }
func (n *Negotiator) Succeeded() bool { return n.success }

// Account is the account name from RPL_LOGGEDIN, if any.
func (n *Negotiator) Account() string { return n.account }

// Mechanism is the mechanism that authenticated.
func (n *Negotiator) Mechanism() string { return n.succeeded }

// Failures lists every per-mechanism *AuthError so far.
func (n *Negotiator) Failures() []error { return multierr.Errors(n.failures) }

// Err is nil until negotiation fails; then it wraps ErrExhausted and every
// per-mechanism failure.
func (n *Negotiator) Err() error {
	if !n.finished || n.success {
		return nil
	}
	if n.failures == nil {
		return ErrExhausted
	}
	return fmt.Errorf("%w: %w", ErrExhausted, n.failures)
}
