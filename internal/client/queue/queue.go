// Package queue holds outbound client messages until the throttle lets
// them go.
//
// Entries can be edited in place until they are popped. Edits work on a
// clone and are committed whole or not at all. Pop and Drain are the only
// operations that remove entries.
package queue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/danmuck/ircwire/internal/protocol/ircmsg"
)

var (
	ErrNotFound   = errors.New("queue: entry not found")
	ErrEntryGone  = errors.New("queue: entry popped before commit")
	ErrEditClosed = errors.New("queue: edit already committed or released")
	ErrNilMessage = errors.New("queue: nil message")
)

// Sink is the enqueue-only view handlers receive.
type Sink interface {
	Enqueue(msg *ircmsg.ClientMsg)
	EnqueueUrgent(msg *ircmsg.ClientMsg)
	EnqueueLabeled(msg *ircmsg.ClientMsg, label string)
}

// Entry is one queued message. The queue owns it until it is popped.
type Entry struct {
	Msg     *ircmsg.ClientMsg
	Label   string
	Urgent  bool
	QueueAt time.Time
}

// Queue is safe for concurrent use; the runtime is its only writer in
// practice.
type Queue struct {
	mu       sync.Mutex
	entries  []*Entry
	urgent   int
	limit    int
	clock    clock.Clock
	throttle *Throttle
	adjuster Adjuster
}

type Option func(*Queue)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.Clock) Option {
	return func(q *Queue) { q.clock = c }
}

func WithThrottle(t *Throttle) Option {
	return func(q *Queue) { q.throttle = t }
}

// Unthrottled disables rate limiting entirely.
func Unthrottled() Option {
	return func(q *Queue) { q.throttle = nil }
}

func WithAdjuster(a Adjuster) Option {
	return func(q *Queue) { q.adjuster = a }
}

// WithLimit sets the encoding ceiling edits are validated against.
func WithLimit(max int) Option {
	return func(q *Queue) { q.limit = max }
}

// New returns a FIFO queue with the RFC1459 throttle.
func New(opts ...Option) *Queue {
	q := &Queue{
		limit: ircmsg.DefaultMaxLine,
		clock: clock.New(),
	}
	q.throttle = NewThrottle(DefaultThrottleConfig())
	for _, opt := range opts {
		opt(q)
	}
	if q.throttle != nil {
		q.throttle.reset(q.clock.Now())
	}
	return q
}

// NewLabel returns a fresh label for labeled-response correlation.
func NewLabel() string {
	return uuid.NewString()
}

func (q *Queue) Clock() clock.Clock { return q.clock }

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *Queue) IsEmpty() bool { return q.Len() == 0 }

// Limit returns the active encoding ceiling.
func (q *Queue) Limit() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.limit
}

// SetLimit changes the encoding ceiling, e.g. once message-tags is acked.
func (q *Queue) SetLimit(max int) {
	q.mu.Lock()
	q.limit = max
	q.mu.Unlock()
}

func (q *Queue) SetAdjuster(a Adjuster) {
	q.mu.Lock()
	q.adjuster = a
	q.mu.Unlock()
}

func (q *Queue) Enqueue(msg *ircmsg.ClientMsg) {
	q.push(msg, "", false)
}

func (q *Queue) EnqueueLabeled(msg *ircmsg.ClientMsg, label string) {
	q.push(msg, label, false)
}

// EnqueueUrgent places msg after any other urgent entries and ahead of
// everything else.
func (q *Queue) EnqueueUrgent(msg *ircmsg.ClientMsg) {
	q.push(msg, "", true)
}

func (q *Queue) push(msg *ircmsg.ClientMsg, label string, urgent bool) {
	if msg == nil {
		return
	}
	e := &Entry{Msg: msg, Label: label, Urgent: urgent, QueueAt: q.clock.Now()}
	q.mu.Lock()
	defer q.mu.Unlock()
	if !urgent {
		q.entries = append(q.entries, e)
		return
	}
	q.entries = append(q.entries, nil)
	copy(q.entries[q.urgent+1:], q.entries[q.urgent:])
	q.entries[q.urgent] = e
	q.urgent++
}

// Peek returns a clone of the i-th entry's message.
func (q *Queue) Peek(i int) (*ircmsg.ClientMsg, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i < 0 || i >= len(q.entries) {
		return nil, false
	}
	return q.entries[i].Msg.Clone(), true
}

// Labels lists queued labels in queue order.
func (q *Queue) Labels() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.entries))
	for _, e := range q.entries {
		if e.Label != "" {
			out = append(out, e.Label)
		}
	}
	return out
}

// Pop removes the next sendable entry. When the throttle holds it back, ok
// is false and wait reports how long until it would be released. An empty
// queue returns ok false and a zero wait.
func (q *Queue) Pop(now time.Time) (entry *Entry, wait time.Duration, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.entries) > 0 {
		if q.throttle != nil {
			if d := q.throttle.delay(now); d > 0 {
				return nil, d, false
			}
		}
		e := q.entries[0]
		q.entries[0] = nil
		q.entries = q.entries[1:]
		if e.Urgent {
			q.urgent--
		}
		if q.adjuster != nil && !q.adjuster.Adjust(e) {
			continue
		}
		if q.throttle != nil {
			q.throttle.take(now)
		}
		return e, 0, true
	}
	return nil, 0, false
}

// Drain pops until the queue is empty or throttled, handing each entry to
// fn. An fn error stops the drain; the failed entry is not requeued.
func (q *Queue) Drain(now time.Time, fn func(*Entry) error) (time.Duration, error) {
	for {
		e, wait, ok := q.Pop(now)
		if !ok {
			return wait, nil
		}
		if err := fn(e); err != nil {
			return 0, err
		}
	}
}

// Observe lets inbound traffic rewrite or drop queued entries through an
// adjuster that implements Observer.
func (q *Queue) Observe(msg *ircmsg.ServerMsg) {
	q.mu.Lock()
	defer q.mu.Unlock()
	obs, ok := q.adjuster.(Observer)
	if !ok || !obs.Observe(msg) {
		return
	}
	kept := q.entries[:0]
	urgent := 0
	for _, e := range q.entries {
		if !obs.Update(e) {
			continue
		}
		if e.Urgent {
			urgent++
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = nil
	}
	q.entries = kept
	q.urgent = urgent
}

// Clear drops every queued entry.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.entries = nil
	q.urgent = 0
	q.mu.Unlock()
}

// Reset clears entries, refills the throttle and resets the adjuster. It
// is called on reconnect.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = nil
	q.urgent = 0
	q.limit = ircmsg.DefaultMaxLine
	if q.throttle != nil {
		q.throttle.reset(q.clock.Now())
	}
	if q.adjuster != nil {
		q.adjuster.Reset()
	}
}

// Edit applies fn to a clone of the first entry carrying label.
func (q *Queue) Edit(label string, fn func(*ircmsg.ClientMsg) error) error {
	g, err := q.Begin(label)
	if err != nil {
		return err
	}
	defer g.Release()
	if err := fn(g.Msg); err != nil {
		return err
	}
	return g.Commit()
}

// EditAt applies fn to a clone of the i-th entry.
func (q *Queue) EditAt(i int, fn func(*ircmsg.ClientMsg) error) error {
	g, err := q.BeginAt(i)
	if err != nil {
		return err
	}
	defer g.Release()
	if err := fn(g.Msg); err != nil {
		return err
	}
	return g.Commit()
}

// Begin opens a transactional edit of the first entry carrying label.
func (q *Queue) Begin(label string) (*EditGuard, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.Label == label && label != "" {
			return &EditGuard{q: q, target: e, Msg: e.Msg.Clone()}, nil
		}
	}
	return nil, fmt.Errorf("%w: label %q", ErrNotFound, label)
}

func (q *Queue) BeginAt(i int) (*EditGuard, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i < 0 || i >= len(q.entries) {
		return nil, fmt.Errorf("%w: index %d", ErrNotFound, i)
	}
	e := q.entries[i]
	return &EditGuard{q: q, target: e, Msg: e.Msg.Clone()}, nil
}

// EditGuard holds a private clone of a queued message. Nothing reaches
// the queue until Commit succeeds; Release abandons the edit and is safe
// to defer unconditionally.
type EditGuard struct {
	Msg *ircmsg.ClientMsg

	q      *Queue
	target *Entry
	done   bool
}

// Commit swaps the clone in after checking it still encodes under the
// queue's ceiling.
func (g *EditGuard) Commit() error {
	if g.done {
		return ErrEditClosed
	}
	if g.Msg == nil {
		return ErrNilMessage
	}
	g.q.mu.Lock()
	defer g.q.mu.Unlock()
	if _, err := g.Msg.Encode(g.q.limit); err != nil {
		return err
	}
	for _, e := range g.q.entries {
		if e == g.target {
			e.Msg = g.Msg
			g.done = true
			return nil
		}
	}
	g.done = true
	return ErrEntryGone
}

func (g *EditGuard) Release() {
	if g.done {
		return
	}
	g.done = true
	g.Msg = nil
}
