package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/ircwire/internal/client"
	"github.com/danmuck/ircwire/internal/client/handlers"
	"github.com/danmuck/ircwire/internal/client/queue"
	"github.com/danmuck/ircwire/internal/client/register"
	"github.com/danmuck/ircwire/internal/client/sasl"
	"github.com/danmuck/ircwire/internal/config"
	"github.com/danmuck/ircwire/internal/logging"
	"github.com/danmuck/ircwire/internal/protocol/session"
)

const (
	botSource = "https://github.com/danmuck/ircwire"
	// maxRedirects bounds consecutive server redirects before giving up.
	maxRedirects = 5
)

type dialFunc func(ctx context.Context, cfg session.Config) (net.Conn, error)

// bot owns one logical IRC presence across reconnects. State and the
// outbound queue outlive each connection and are reset on redial.
type bot struct {
	cfg    config.ClientConfig
	sess   session.Config
	prompt sasl.Source
	dial   dialFunc

	state   *client.State
	queue   *queue.Queue
	labeler *queue.Labeler
	log     zerolog.Logger

	mu        sync.Mutex
	attempt   int
	connected bool
	lastErr   error
}

func newBot(cfg config.ClientConfig, sess session.Config, prompt sasl.Source) (*bot, error) {
	th, err := cfg.Queue.Throttle()
	if err != nil {
		return nil, err
	}
	labeler, err := queue.NewLabeler(cfg.Queue.LabelCache, nil)
	if err != nil {
		return nil, err
	}
	q := queue.New(
		queue.WithThrottle(queue.NewThrottle(th)),
		queue.WithAdjuster(labeler),
		queue.WithLimit(cfg.Queue.MaxLine),
	)
	return &bot{
		cfg:     cfg,
		sess:    sess,
		prompt:  prompt,
		dial:    session.Dial,
		state:   client.NewState(),
		queue:   q,
		labeler: labeler,
		log:     logging.Logger("ircbot"),
	}, nil
}

// Run connects, registers and serves until ctx ends. Transport failures
// and registration failures redial with backoff, a server redirect redials
// the new address at once, and a clean shutdown returns nil.
func (b *bot) Run(ctx context.Context) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	attempt := 0
	redirects := 0
	for {
		attempt++
		b.setStatus(attempt, false, nil)
		registered, err := b.connect(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, register.ErrBadIdentity) || errors.Is(err, register.ErrNoNick) {
			return err
		}
		var re *register.RedirectError
		if errors.As(err, &re) {
			redirects++
			if redirects > maxRedirects {
				return fmt.Errorf("too many redirects: %w", err)
			}
			b.log.Info().Str("from", b.sess.Address).Str("to", re.Address()).Str("info", re.Info).Msg("server redirect")
			b.mu.Lock()
			b.sess.Address = re.Address()
			b.mu.Unlock()
			attempt = 0
			continue
		}
		if registered {
			attempt = 1
			redirects = 0
		}
		b.setStatus(attempt, false, err)
		if !b.sess.ShouldRetry(attempt) {
			return fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}
		delay := session.NextBackoffDelay(b.sess.Backoff, attempt, rng)
		b.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("connection lost")
		if err := session.SleepBackoff(ctx, b.sess.Backoff, attempt, rng); err != nil {
			return nil
		}
	}
}

// connect runs one connection to completion. registered reports whether
// the handshake finished before the connection ended.
func (b *bot) connect(ctx context.Context) (registered bool, err error) {
	conn, err := b.dial(ctx, b.sess)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", b.sess.Address, err)
	}
	defer conn.Close()
	b.log.Info().Str("address", b.sess.Address).Str("transport", string(b.sess.Transport)).Msg("connected")

	b.state.Reset()
	b.queue.Reset()
	b.labeler.SetActive(false)
	b.queue.SetLimit(b.cfg.Queue.MaxLine)

	c := client.New(conn,
		client.WithQueue(b.queue),
		client.WithState(b.state),
		client.WithWriteTimeout(b.sess.WriteTimeout),
	)

	opts, err := b.cfg.RegisterOptions(b.prompt)
	if err != nil {
		return false, err
	}
	results, err := client.Add[register.Result](c, register.New(opts))
	if err != nil {
		return false, err
	}
	if err := b.serve(ctx, c); err != nil {
		return false, err
	}
	res, ok := <-results
	if !ok || res.Err != nil {
		if !ok {
			return false, errors.New("handshake ended without a result")
		}
		return false, res.Err
	}
	b.setStatus(0, true, nil)
	b.log.Info().
		Str("nick", res.Registration.Nick).
		Str("account", res.Registration.Account).
		Str("userhost", res.Registration.Userhost).
		Strs("caps", res.Registration.Caps).
		Msg("registered")

	caps, _ := client.Get(b.state, client.KeyCaps)
	b.applyCaps(caps)
	if err := b.addSessionHandlers(c); err != nil {
		return true, err
	}
	return true, b.serve(ctx, c)
}

// serve runs c, carrying on past messages that could not be encoded.
func (b *bot) serve(ctx context.Context, c *client.Client) error {
	for {
		err := c.Run(ctx)
		var ee *client.EncodeError
		if !errors.As(err, &ee) {
			return err
		}
		b.log.Error().Err(err).Msg("dropped unencodable message")
	}
}

func (b *bot) addSessionHandlers(c *client.Client) error {
	if _, err := client.Add[struct{}](c, handlers.AutoPong{}); err != nil {
		return err
	}
	if _, err := client.Add[struct{}](c, handlers.ISupportTracker{}); err != nil {
		return err
	}
	tracker := &handlers.CapTracker{
		Wanted:   b.cfg.Caps,
		OnChange: b.applyCaps,
	}
	if _, err := client.Add[struct{}](c, tracker); err != nil {
		return err
	}
	ctcp := handlers.CTCPVersion{Version: b.cfg.CTCP.Version, Source: b.cfg.CTCP.Source}
	if ctcp.Source == "" {
		ctcp.Source = botSource
	}
	if _, err := client.Add[struct{}](c, ctcp); err != nil {
		return err
	}
	labeled := handlers.NewLabeled(b.labeler, func(r handlers.Response) {
		b.log.Debug().
			Str("cmd", r.Request.Cmd).
			Str("label", r.Request.Label).
			Str("reply", r.Msg.Kind.String()).
			Msg("labeled response")
	})
	_, err := client.Add[struct{}](c, labeled)
	return err
}

// applyCaps follows the enabled capability set: labeled-response turns on
// request labeling once message-tags is also enabled. Tags are measured
// apart from the line, so no limit changes here.
func (b *bot) applyCaps(caps client.Caps) {
	_, tags := caps["message-tags"]
	_, labeled := caps["labeled-response"]
	b.labeler.SetActive(labeled && tags)
}

func (b *bot) setStatus(attempt int, connected bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if attempt > 0 {
		b.attempt = attempt
	}
	b.connected = connected
	b.lastErr = err
}

// Status feeds the admin /state endpoint.
func (b *bot) Status() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := map[string]any{
		"address":     b.sess.Address,
		"transport":   string(b.sess.Transport),
		"attempt":     b.attempt,
		"registered":  b.connected,
		"queue_depth": b.queue.Len(),
		"labels":      b.labeler.Outstanding(),
	}
	if b.lastErr != nil {
		out["last_error"] = b.lastErr.Error()
	}
	return out
}
