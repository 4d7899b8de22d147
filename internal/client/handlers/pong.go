// Package handlers holds persistent client handlers that keep a
// connection healthy and its State current after registration.
package handlers

import (
	"github.com/danmuck/ircwire/internal/client"
	"github.com/danmuck/ircwire/internal/client/queue"
	"github.com/danmuck/ircwire/internal/ircstr"
	"github.com/danmuck/ircwire/internal/protocol/ircmsg"
)

var cmdPong = ircstr.MustCmd("PONG")

// Pong builds the reply to a PING, echoing its arguments. ok is false for
// anything else.
func Pong(msg *ircmsg.ServerMsg) (*ircmsg.ClientMsg, bool) {
	if !msg.Kind.IsCmd("PING") {
		return nil, false
	}
	return &ircmsg.ClientMsg{Cmd: cmdPong, Args: msg.Args.Clone()}, true
}

// AutoPong answers every PING ahead of queued traffic.
type AutoPong struct{}

var _ client.Handler[struct{}] = AutoPong{}

func (AutoPong) Start(*client.State, queue.Sink) error { return nil }

func (AutoPong) Handle(msg *ircmsg.ServerMsg, _ *client.State, q queue.Sink) (struct{}, bool) {
	if reply, ok := Pong(msg); ok {
		q.EnqueueUrgent(reply)
	}
	return struct{}{}, false
}
