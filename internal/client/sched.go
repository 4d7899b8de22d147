package client

import (
	"container/heap"
	"sync"
	"time"

	"github.com/danmuck/ircwire/internal/client/queue"
)

// Scheduler lets a handler hand itself work for later. Values come back
// through the handler's HandleValue on the Run goroutine; a handler
// without HandleValue never sees them. Values owned by a finished handler
// are dropped.
type Scheduler interface {
	// Defer delivers v once after has elapsed on the client's clock.
	Defer(after time.Duration, v any)
	// Spawn runs fn on its own goroutine and delivers its result.
	Spawn(fn func() any)
}

// SchedulerFor returns the Scheduler behind a sink passed to Start,
// Handle or HandleValue.
func SchedulerFor(q queue.Sink) (Scheduler, bool) {
	s, ok := q.(Scheduler)
	return s, ok
}

// handlerSink is the queue as one handler sees it, tagged with the owner
// its scheduled values go back to.
type handlerSink struct {
	queue.Sink
	c     *Client
	owner uint64
}

func (s *handlerSink) Defer(after time.Duration, v any) {
	s.c.tasks.push(s.owner, s.c.clock.Now().Add(after), v)
}

func (s *handlerSink) Spawn(fn func() any) {
	go func() {
		v := fn()
		s.c.tasks.ready(s.owner, v)
		s.c.wake()
	}()
}

type task struct {
	at    time.Time
	seq   uint64
	owner uint64
	value any
}

type taskHeap []task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(task)) }
func (h *taskHeap) Pop() any {
	old := *h
	t := old[len(old)-1]
	old[len(old)-1] = task{}
	*h = old[:len(old)-1]
	return t
}

// taskQueue holds timed values in deadline order and spawned results in
// arrival order.
type taskQueue struct {
	mu     sync.Mutex
	seq    uint64
	timers taskHeap
	done   []task
}

func (q *taskQueue) push(owner uint64, at time.Time, v any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	heap.Push(&q.timers, task{at: at, seq: q.seq, owner: owner, value: v})
}

func (q *taskQueue) ready(owner uint64, v any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.done = append(q.done, task{owner: owner, value: v})
}

// due removes and returns spawned results followed by timers due at now.
func (q *taskQueue) due(now time.Time) []task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.done
	q.done = nil
	for len(q.timers) > 0 && !q.timers[0].at.After(now) {
		out = append(out, heap.Pop(&q.timers).(task))
	}
	return out
}

// next is the delay until the earliest timer.
func (q *taskQueue) next(now time.Time) (time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.timers) == 0 {
		return 0, false
	}
	d := q.timers[0].at.Sub(now)
	if d <= 0 {
		d = time.Nanosecond
	}
	return d, true
}

func (q *taskQueue) forget(owner uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.timers[:0]
	for _, t := range q.timers {
		if t.owner != owner {
			kept = append(kept, t)
		}
	}
	clear(q.timers[len(kept):])
	q.timers = kept
	heap.Init(&q.timers)
	done := q.done[:0]
	for _, t := range q.done {
		if t.owner != owner {
			done = append(done, t)
		}
	}
	clear(q.done[len(done):])
	q.done = done
}

func (q *taskQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timers) + len(q.done)
}

// wake interrupts a blocked read or throttle sleep so Run picks up spawned
// results.
func (c *Client) wake() {
	c.dlMu.Lock()
	c.woken = true
	if c.readDL != nil {
		_ = c.readDL.SetReadDeadline(time.Unix(1, 0))
	}
	c.dlMu.Unlock()
	select {
	case c.wakeCh <- struct{}{}:
	default:
	}
}

// runTasks delivers every value that is ready to its owning handler.
func (c *Client) runTasks() {
	c.dlMu.Lock()
	c.woken = false
	c.dlMu.Unlock()
	for _, t := range c.tasks.due(c.clock.Now()) {
		c.deliver(t)
	}
}

func (c *Client) deliver(t task) {
	for i, h := range c.handlers {
		if h.id != t.owner {
			continue
		}
		if h.value == nil {
			c.log.Warn().Str("handler", h.name).Msg("scheduled value for handler without HandleValue")
			return
		}
		if h.value(t.value) {
			c.handlers = append(c.handlers[:i], c.handlers[i+1:]...)
			c.finished(h)
		}
		return
	}
}

// Pending is the number of deferred values and finished spawns waiting
// for delivery.
func (c *Client) Pending() int { return c.tasks.len() }
