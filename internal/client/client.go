package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/danmuck/ircwire/internal/client/queue"
	"github.com/danmuck/ircwire/internal/logging"
	"github.com/danmuck/ircwire/internal/observability"
	"github.com/danmuck/ircwire/internal/protocol/frame"
	"github.com/danmuck/ircwire/internal/protocol/ircmsg"
)

var (
	ErrNilHandler = errors.New("client: nil handler")
	ErrRunning    = errors.New("client: already running")
)

// EncodeError is a queued message that has no wire form once adjusted,
// e.g. a label tag pushed it over the line budget. Run returns it; the
// entry is gone and the entries behind it stay queued.
type EncodeError struct {
	Cmd   string
	Label string
	Err   error
}

func (e *EncodeError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("client: encode %s (label %s): %v", e.Cmd, e.Label, e.Err)
	}
	return fmt.Sprintf("client: encode %s: %v", e.Cmd, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// TransportError is a read or write failure on the connection. Run never
// retries one; reconnecting is up to the caller.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("client: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Handler reacts to server messages. Start runs once when the handler is
// added. Handle returning true finishes the handler and delivers its value.
// The sink passed to both also implements Scheduler; see SchedulerFor.
type Handler[T any] interface {
	Start(st *State, q queue.Sink) error
	Handle(msg *ircmsg.ServerMsg, st *State, q queue.Sink) (T, bool)
}

// ValueHandler is implemented by handlers that schedule work. HandleValue
// receives each deferred or spawned value and may finish the handler the
// same way Handle does.
type ValueHandler[T any] interface {
	HandleValue(v any, st *State, q queue.Sink) (T, bool)
}

// dispatcher erases the handler's result type.
type dispatcher struct {
	id     uint64
	name   string
	handle func(msg *ircmsg.ServerMsg) bool
	value  func(v any) bool
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Client runs handlers over one connection. It is not safe for concurrent
// use except for Stop, State snapshots and handler channels.
type Client struct {
	conn   io.ReadWriter
	reader *frame.Reader
	queue  *queue.Queue
	state  *State
	clock  clock.Clock
	log    zerolog.Logger

	writeTimeout time.Duration
	handlers     []dispatcher

	stopOnce sync.Once
	stop     chan struct{}
	running  bool

	nextID uint64
	tasks  taskQueue
	wakeCh chan struct{}

	// dlMu guards the read deadline between Run, the stop watcher and
	// spawned work.
	dlMu   sync.Mutex
	readDL readDeadliner
	halted bool
	woken  bool
}

type Option func(*Client)

func WithQueue(q *queue.Queue) Option {
	return func(c *Client) { c.queue = q }
}

func WithState(st *State) Option {
	return func(c *Client) { c.state = st }
}

func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

func WithLimits(l frame.Limits) Option {
	return func(c *Client) { c.reader.SetLimits(l) }
}

// WithWriteTimeout bounds each line write when conn supports deadlines.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) { c.writeTimeout = d }
}

func New(conn io.ReadWriter, opts ...Option) *Client {
	c := &Client{
		conn:   conn,
		reader: frame.NewReader(conn, frame.TaggedLimits()),
		clock:  clock.New(),
		stop:   make(chan struct{}),
		wakeCh: make(chan struct{}, 1),
		log:    logging.Logger("client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.queue == nil {
		c.queue = queue.New(queue.WithClock(c.clock))
	}
	if c.state == nil {
		c.state = NewState()
	}
	return c
}

func (c *Client) Queue() *queue.Queue { return c.queue }
func (c *Client) State() *State       { return c.state }

// Handlers is the number of unfinished handlers.
func (c *Client) Handlers() int { return len(c.handlers) }

// Add starts h and registers it after every handler added before. The
// returned channel receives h's value once and is then closed.
func Add[T any](c *Client, h Handler[T]) (<-chan T, error) {
	if h == nil {
		return nil, ErrNilHandler
	}
	c.nextID++
	sink := &handlerSink{Sink: c.queue, c: c, owner: c.nextID}
	if err := h.Start(c.state, sink); err != nil {
		c.tasks.forget(sink.owner)
		return nil, err
	}
	out := make(chan T, 1)
	finish := func(v T, done bool) bool {
		if done {
			out <- v
			close(out)
		}
		return done
	}
	d := dispatcher{
		id:   sink.owner,
		name: fmt.Sprintf("%T", h),
		handle: func(msg *ircmsg.ServerMsg) bool {
			return finish(h.Handle(msg, c.state, sink))
		},
	}
	if vh, ok := any(h).(ValueHandler[T]); ok {
		d.value = func(v any) bool {
			return finish(vh.HandleValue(v, c.state, sink))
		}
	}
	c.handlers = append(c.handlers, d)
	return out, nil
}

// Stop asks Run to return once the queue is flushed, waiting out the
// throttle as long as Run's context allows. With a connection that has no
// read deadline, Stop takes effect at the next line.
func (c *Client) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// Run reads, dispatches and writes until no handlers remain (nil), Stop is
// called (nil), ctx ends (ctx.Err()), a queued message cannot be encoded
// (*EncodeError) or the transport fails (*TransportError). On the first two
// it writes everything still queued before returning.
//
// Deferred and spawned values are delivered between lines. Without read
// deadlines on the connection they wait for the next inbound line.
func (c *Client) Run(ctx context.Context) error {
	if c.running {
		return ErrRunning
	}
	c.running = true
	defer func() { c.running = false }()

	dl, hasDeadline := c.conn.(readDeadliner)
	if hasDeadline {
		c.dlMu.Lock()
		c.halted = false
		c.readDL = dl
		c.dlMu.Unlock()
		watchCtx, cancel := context.WithCancel(ctx)
		watched := make(chan struct{})
		go func() {
			defer close(watched)
			select {
			case <-watchCtx.Done():
			case <-c.stop:
			}
			c.dlMu.Lock()
			c.halted = true
			_ = dl.SetReadDeadline(time.Unix(1, 0))
			c.dlMu.Unlock()
		}()
		defer func() {
			cancel()
			<-watched
			c.dlMu.Lock()
			c.readDL = nil
			c.dlMu.Unlock()
			_ = dl.SetReadDeadline(time.Time{})
		}()
	}

	for {
		c.runTasks()
		throttled, err := c.flush()
		if err != nil {
			return err
		}
		if len(c.handlers) == 0 {
			c.log.Debug().Msg("no handlers left")
			return c.finish(ctx)
		}
		if c.stopped() {
			return c.finish(ctx)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if !hasDeadline {
			if throttled > 0 {
				if err := c.sleep(ctx, throttled); err != nil {
					return err
				}
				continue
			}
		} else {
			wait := throttled
			if d, ok := c.tasks.next(c.clock.Now()); ok && (wait == 0 || d < wait) {
				wait = d
			}
			c.armReadDeadline(dl, wait)
		}

		line, err := c.reader.ReadLine()
		if err != nil {
			switch {
			case errors.Is(err, frame.ErrLineTooLong):
				observability.RecordParseError(ircmsg.TokenLine.String())
				c.log.Warn().Err(err).Msg("discarded overlong line")
				continue
			case hasDeadline && isTimeout(err):
				// Only Run and its helpers set the deadline: a timeout is a
				// wakeup for throttled lines, due tasks or shutdown.
				continue
			}
			observability.RecordTransportError("read")
			return &TransportError{Op: "read", Err: err}
		}
		c.dispatch(line)
	}
}

// finish writes everything still queued, waiting out the throttle, until
// the queue is empty or ctx ends.
func (c *Client) finish(ctx context.Context) error {
	for {
		wait, err := c.flush()
		if err != nil {
			return err
		}
		if wait == 0 {
			return nil
		}
		timer := c.clock.Timer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) armReadDeadline(dl readDeadliner, wait time.Duration) {
	c.dlMu.Lock()
	defer c.dlMu.Unlock()
	switch {
	case c.halted || c.woken:
		_ = dl.SetReadDeadline(time.Unix(1, 0))
	case wait > 0:
		_ = dl.SetReadDeadline(time.Now().Add(wait))
	default:
		_ = dl.SetReadDeadline(time.Time{})
	}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	timer := c.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stop:
		return nil
	case <-c.wakeCh:
		return nil
	case <-timer.C:
		return nil
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (c *Client) dispatch(line []byte) {
	msg, err := ircmsg.ParseServerMsg(line, ircmsg.DefaultMaxLine)
	if err != nil {
		token := ircmsg.TokenLine
		var pe *ircmsg.ParseError
		if errors.As(err, &pe) {
			token = pe.Token
		}
		observability.RecordParseError(token.String())
		c.log.Warn().Err(err).Msg("skipping invalid line")
		return
	}
	observability.RecordLineIn(msg.Kind.String())
	c.log.Trace().Stringer("msg", msg).Msg("recv")
	c.queue.Observe(msg)

	kept := c.handlers[:0]
	for _, h := range c.handlers {
		if h.handle(msg) {
			c.finished(h)
			continue
		}
		kept = append(kept, h)
	}
	clear(c.handlers[len(kept):])
	c.handlers = kept
}

func (c *Client) finished(h dispatcher) {
	c.tasks.forget(h.id)
	c.log.Debug().Str("handler", h.name).Msg("handler finished")
}

// flush writes every entry the throttle allows and returns the wait until
// the next one.
func (c *Client) flush() (time.Duration, error) {
	wait, err := c.queue.Drain(c.clock.Now(), c.write)
	observability.SetQueueDepth(c.queue.Len())
	if wait > 0 {
		observability.RecordThrottleWait(wait)
	}
	return wait, err
}

// write runs after the adjuster, so the length check covers any tags it
// added.
func (c *Client) write(e *queue.Entry) error {
	line, err := e.Msg.Encode(c.queue.Limit())
	if err != nil {
		c.log.Error().Err(err).Str("cmd", e.Msg.Cmd.Text()).Str("label", e.Label).Msg("unencodable message")
		return &EncodeError{Cmd: e.Msg.Cmd.Text(), Label: e.Label, Err: err}
	}
	if wd, ok := c.conn.(writeDeadliner); ok && c.writeTimeout > 0 {
		_ = wd.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := frame.WriteLine(c.conn, line); err != nil {
		observability.RecordTransportError("write")
		return &TransportError{Op: "write", Err: err}
	}
	observability.RecordLineOut(e.Msg.Cmd.Text())
	c.log.Trace().Stringer("msg", e.Msg).Msg("sent")
	return nil
}
