package handlers

import (
	"maps"
	"strings"

	"github.com/danmuck/ircwire/internal/client"
	"github.com/danmuck/ircwire/internal/client/queue"
	"github.com/danmuck/ircwire/internal/ircstr"
	"github.com/danmuck/ircwire/internal/protocol/ircmsg"
)

// ISupportTracker records RPL_MYINFO and RPL_ISUPPORT into State, including
// CASEMAPPING. The RPL_MYINFO version is also copied onto the stored
// Registration.
type ISupportTracker struct{}

var _ client.Handler[struct{}] = ISupportTracker{}

func (ISupportTracker) Start(*client.State, queue.Sink) error { return nil }

func (ISupportTracker) Handle(msg *ircmsg.ServerMsg, st *client.State, _ queue.Sink) (struct{}, bool) {
	switch {
	case msg.Kind.IsNumeric(ircmsg.RplMyInfo):
		version := msg.Args.Text(2)
		client.Set(st, client.KeyServerInfo, client.ServerInfo{
			Name:      msg.Args.Text(1),
			Version:   version,
			UserModes: msg.Args.Text(3),
			ChanModes: msg.Args.Text(4),
		})
		client.Update(st, client.KeyRegistration, func(reg client.Registration, _ bool) client.Registration {
			reg.Version = version
			return reg
		})
	case msg.Kind.IsNumeric(ircmsg.RplISupport):
		ApplyISupport(st, msg)
	}
	return struct{}{}, false
}

// ApplyISupport merges the tokens of one 005 line into State. The first
// argument (our nick) and the trailing description are skipped.
func ApplyISupport(st *client.State, msg *ircmsg.ServerMsg) {
	args := msg.Args.All()
	if len(args) < 2 {
		return
	}
	tokens := args[1:]
	if msg.Args.HasTrailing() {
		tokens = tokens[:len(tokens)-1]
	}
	client.Update(st, client.KeyISupport, func(cur client.ISupport, _ bool) client.ISupport {
		next := maps.Clone(cur)
		if next == nil {
			next = client.ISupport{}
		}
		for _, tok := range tokens {
			applyToken(next, tok.Text())
		}
		return next
	})
	is, _ := client.Get(st, client.KeyISupport)
	if v, ok := is["CASEMAPPING"]; ok {
		if cm, ok := ircstr.ParseCasemapping(v); ok {
			client.Set(st, client.KeyCasemapping, cm)
		}
	}
}

func applyToken(into client.ISupport, tok string) {
	if name, ok := strings.CutPrefix(tok, "-"); ok {
		delete(into, strings.ToUpper(name))
		return
	}
	name, value, _ := strings.Cut(tok, "=")
	if name == "" {
		return
	}
	into[strings.ToUpper(name)] = unescapeISupport(value)
}

// unescapeISupport decodes \xHH sequences; malformed ones are kept as is.
func unescapeISupport(v string) string {
	if !strings.Contains(v, `\x`) {
		return v
	}
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		if v[i] == '\\' && i+3 < len(v) && v[i+1] == 'x' {
			hi, okHi := fromHex(v[i+2])
			lo, okLo := fromHex(v[i+3])
			if okHi && okLo {
				b.WriteByte(hi<<4 | lo)
				i += 3
				continue
			}
		}
		b.WriteByte(v[i])
	}
	return b.String()
}

func fromHex(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}
