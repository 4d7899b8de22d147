package handlers

import (
	"github.com/danmuck/ircwire/internal/client"
	"github.com/danmuck/ircwire/internal/client/queue"
	"github.com/danmuck/ircwire/internal/ircstr"
	"github.com/danmuck/ircwire/internal/protocol/ircmsg"
)

// CTCPVersion answers CTCP VERSION, SOURCE and PING queries with NOTICE.
// Empty Version or Source disables that reply. Queries from our own nick
// (echo-message) are ignored.
type CTCPVersion struct {
	Version string
	Source  string
}

var _ client.Handler[struct{}] = CTCPVersion{}

func (CTCPVersion) Start(*client.State, queue.Sink) error { return nil }

func (h CTCPVersion) Handle(msg *ircmsg.ServerMsg, st *client.State, q queue.Sink) (struct{}, bool) {
	if !msg.Kind.IsCmd("PRIVMSG") || msg.Source == nil {
		return struct{}{}, false
	}
	text, ok := msg.Args.Last()
	if !ok {
		return struct{}{}, false
	}
	query, ok := ircmsg.ParseCTCP(text)
	if !ok || isSelf(st, msg.Source.Nick) {
		return struct{}{}, false
	}
	reply := ircmsg.CTCP{Command: query.Command}
	switch query.Command {
	case "VERSION":
		reply.Params = h.Version
	case "SOURCE":
		reply.Params = h.Source
	case "PING":
		reply.Params = query.Params
	default:
		return struct{}{}, false
	}
	if reply.Params == "" && query.Command != "PING" {
		return struct{}{}, false
	}
	if out, err := ircmsg.CTCPMsg("NOTICE", msg.Source.Nick.Arg(), reply); err == nil {
		q.Enqueue(out)
	}
	return struct{}{}, false
}

func isSelf(st *client.State, nick ircstr.Nick) bool {
	reg, ok := client.Get(st, client.KeyRegistration)
	if !ok || reg.Nick == "" {
		return false
	}
	cm, _ := client.Get(st, client.KeyCasemapping)
	return cm.EqualFold(nick.Raw(), []byte(reg.Nick))
}
