package queue

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/danmuck/ircwire/internal/protocol/ircmsg"
)

// Adjuster makes last-minute edits as entries leave the queue. Adjust
// returning false drops the entry.
type Adjuster interface {
	Adjust(e *Entry) bool
	Reset()
}

// Observer is implemented by adjusters that rewrite still-queued entries
// in response to inbound traffic (nick changes, parts). Observe reports
// whether Update should run over the queue for msg.
type Observer interface {
	Observe(msg *ircmsg.ServerMsg) bool
	Update(e *Entry) bool
}

// AdjustFunc adapts a stateless function.
type AdjustFunc func(e *Entry) bool

func (f AdjustFunc) Adjust(e *Entry) bool { return f(e) }
func (AdjustFunc) Reset()                 {}

// Multi chains adjusters; an entry survives only if every member keeps it.
type Multi []Adjuster

func (m Multi) Adjust(e *Entry) bool {
	for _, a := range m {
		if !a.Adjust(e) {
			return false
		}
	}
	return true
}

func (m Multi) Reset() {
	for _, a := range m {
		a.Reset()
	}
}

// Observe fans msg out to every Observer member.
func (m Multi) Observe(msg *ircmsg.ServerMsg) bool {
	hit := false
	for _, a := range m {
		if o, ok := a.(Observer); ok && o.Observe(msg) {
			hit = true
		}
	}
	return hit
}

func (m Multi) Update(e *Entry) bool {
	for _, a := range m {
		if o, ok := a.(Observer); ok && !o.Update(e) {
			return false
		}
	}
	return true
}

// DefaultLabelCacheSize bounds how many outstanding labels are remembered.
const DefaultLabelCacheSize = 256

// Outstanding describes a labeled message that has been sent and not yet
// answered.
type Outstanding struct {
	Label  string
	Cmd    string
	SentAt time.Time
}

// Labeler writes the label tag on labeled entries while labeled-response
// is active and remembers them for correlation. Inactive, it leaves
// entries untouched.
type Labeler struct {
	mu      sync.Mutex
	active  bool
	clock   clock.Clock
	pending *lru.Cache[string, Outstanding]
}

func NewLabeler(size int, clk clock.Clock) (*Labeler, error) {
	if size <= 0 {
		size = DefaultLabelCacheSize
	}
	if clk == nil {
		clk = clock.New()
	}
	cache, err := lru.New[string, Outstanding](size)
	if err != nil {
		return nil, err
	}
	return &Labeler{clock: clk, pending: cache}, nil
}

func (l *Labeler) SetActive(active bool) {
	l.mu.Lock()
	l.active = active
	l.mu.Unlock()
}

func (l *Labeler) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

func (l *Labeler) Adjust(e *Entry) bool {
	if e.Label == "" || !l.Active() {
		return true
	}
	if err := e.Msg.Tags.SetString("label", e.Label); err != nil {
		return true
	}
	l.pending.Add(e.Label, Outstanding{
		Label:  e.Label,
		Cmd:    e.Msg.Cmd.Text(),
		SentAt: l.clock.Now(),
	})
	return true
}

// Lookup reports an outstanding label without consuming it.
func (l *Labeler) Lookup(label string) (Outstanding, bool) {
	return l.pending.Peek(label)
}

// Resolve consumes an outstanding label once its response has arrived.
func (l *Labeler) Resolve(label string) (Outstanding, bool) {
	out, ok := l.pending.Peek(label)
	if ok {
		l.pending.Remove(label)
	}
	return out, ok
}

func (l *Labeler) Outstanding() int { return l.pending.Len() }

func (l *Labeler) Reset() {
	l.mu.Lock()
	l.active = false
	l.mu.Unlock()
	l.pending.Purge()
}
