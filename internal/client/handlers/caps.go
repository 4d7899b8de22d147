package handlers

import (
	"maps"
	"strings"

	"github.com/danmuck/ircwire/internal/client"
	"github.com/danmuck/ircwire/internal/client/queue"
	"github.com/danmuck/ircwire/internal/ircstr"
	"github.com/danmuck/ircwire/internal/protocol/ircmsg"
)

var (
	cmdCap = ircstr.MustCmd("CAP")
	argReq = ircstr.MustArg("REQ")
)

// CapRequests packs names into as few CAP REQ lines as fit max bytes each.
// A name too long for any line gets a line of its own, which will fail to
// encode; callers validate names beforehand.
func CapRequests(names []string, max int) []*ircmsg.ClientMsg {
	if max <= 0 {
		max = ircmsg.DefaultMaxLine
	}
	// "CAP REQ :" plus CRLF
	const overhead = len("CAP REQ :") + 2
	var out []*ircmsg.ClientMsg
	var cur []string
	size := overhead
	flush := func() {
		if len(cur) == 0 {
			return
		}
		out = append(out, capReq(strings.Join(cur, " ")))
		cur, size = nil, overhead
	}
	for _, n := range names {
		add := len(n)
		if len(cur) > 0 {
			add++
		}
		if size+add > max {
			flush()
			add = len(n)
		}
		cur = append(cur, n)
		size += add
	}
	flush()
	return out
}

func capReq(list string) *ircmsg.ClientMsg {
	m := &ircmsg.ClientMsg{Cmd: cmdCap}
	_ = m.Args.Add(argReq)
	_ = m.Args.AddLast(ircstr.MustLine(list))
	return m
}

// CapTracker follows CAP NEW, DEL, ACK and LS after registration. Newly
// offered caps named in Wanted are requested. OnChange, if set, sees the
// enabled set after every ACK or DEL.
type CapTracker struct {
	Wanted   []string
	OnChange func(enabled client.Caps)
}

var _ client.Handler[struct{}] = (*CapTracker)(nil)

func (t *CapTracker) Start(*client.State, queue.Sink) error { return nil }

func (t *CapTracker) Handle(msg *ircmsg.ServerMsg, st *client.State, q queue.Sink) (struct{}, bool) {
	if !msg.Kind.IsCmd("CAP") {
		return struct{}{}, false
	}
	list := ""
	if l, ok := msg.Args.Last(); ok {
		list = l.Text()
	}
	entries := ircmsg.SplitCapList(list)
	switch strings.ToUpper(msg.Args.Text(1)) {
	case "LS", "NEW":
		t.offer(st, q, entries)
	case "DEL":
		client.Update(st, client.KeyCapsOffered, func(cur client.Caps, _ bool) client.Caps {
			next := maps.Clone(cur)
			for _, e := range entries {
				delete(next, e)
			}
			return next
		})
		t.enable(st, func(next client.Caps) {
			for _, e := range entries {
				delete(next, e)
			}
		})
	case "ACK":
		offered, _ := client.Get(st, client.KeyCapsOffered)
		t.enable(st, func(next client.Caps) {
			for _, e := range entries {
				if name, off := strings.CutPrefix(e, "-"); off {
					delete(next, name)
					continue
				}
				next[e] = offered[e]
			}
		})
	}
	return struct{}{}, false
}

func (t *CapTracker) offer(st *client.State, q queue.Sink, entries []string) {
	enabled, _ := client.Get(st, client.KeyCaps)
	var want []string
	client.Update(st, client.KeyCapsOffered, func(cur client.Caps, _ bool) client.Caps {
		next := maps.Clone(cur)
		if next == nil {
			next = client.Caps{}
		}
		for _, e := range entries {
			name, value := ircmsg.ParseCapValue(e)
			next[name] = value
			if _, on := enabled[name]; !on && t.wants(name) {
				want = append(want, name)
			}
		}
		return next
	})
	for _, m := range CapRequests(want, ircmsg.DefaultMaxLine) {
		q.Enqueue(m)
	}
}

func (t *CapTracker) enable(st *client.State, edit func(client.Caps)) {
	var enabled client.Caps
	client.Update(st, client.KeyCaps, func(cur client.Caps, _ bool) client.Caps {
		enabled = maps.Clone(cur)
		if enabled == nil {
			enabled = client.Caps{}
		}
		edit(enabled)
		return enabled
	})
	if t.OnChange != nil {
		t.OnChange(maps.Clone(enabled))
	}
}

func (t *CapTracker) wants(name string) bool {
	for _, w := range t.Wanted {
		if strings.EqualFold(w, name) {
			return true
		}
	}
	return false
}
