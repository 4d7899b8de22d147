package handlers

import (
	"github.com/rs/zerolog"

	"github.com/danmuck/ircwire/internal/client"
	"github.com/danmuck/ircwire/internal/client/queue"
	"github.com/danmuck/ircwire/internal/logging"
	"github.com/danmuck/ircwire/internal/protocol/ircmsg"
)

// Response pairs a labeled reply with the request that carried the label.
type Response struct {
	Request queue.Outstanding
	Msg     *ircmsg.ServerMsg
}

// Labeled correlates replies carrying a label tag with outstanding
// requests recorded by the Labeler.
type Labeled struct {
	Labeler    *queue.Labeler
	OnResponse func(Response)

	log zerolog.Logger
}

func NewLabeled(l *queue.Labeler, onResponse func(Response)) *Labeled {
	return &Labeled{Labeler: l, OnResponse: onResponse, log: logging.Logger("labeled")}
}

var _ client.Handler[struct{}] = (*Labeled)(nil)

func (h *Labeled) Start(*client.State, queue.Sink) error { return nil }

func (h *Labeled) Handle(msg *ircmsg.ServerMsg, _ *client.State, _ queue.Sink) (struct{}, bool) {
	label, ok := msg.Tags.Get("label")
	if !ok || h.Labeler == nil {
		return struct{}{}, false
	}
	req, ok := h.Labeler.Resolve(label.Text())
	if !ok {
		h.log.Debug().Str("label", label.Text()).Msg("reply for unknown label")
		return struct{}{}, false
	}
	if h.OnResponse != nil {
		h.OnResponse(Response{Request: req, Msg: msg})
	}
	return struct{}{}, false
}
