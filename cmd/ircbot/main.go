package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/danmuck/ircwire/internal/admin"
	"github.com/danmuck/ircwire/internal/client/sasl"
	"github.com/danmuck/ircwire/internal/config"
	"github.com/danmuck/ircwire/internal/observability"
	"github.com/danmuck/ircwire/internal/protocol/session"
)

type flags struct {
	clientPath string
	serverPath string
	address    string
	transport  string
	adminAddr  string
	noAdmin    bool
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := pflag.NewFlagSet("ircbot", pflag.ContinueOnError)
	fs.StringVarP(&f.clientPath, "config", "c", "cmd/ircbot/client.toml", "client config (.toml, .yaml)")
	fs.StringVarP(&f.serverPath, "server", "s", "cmd/ircbot/server.toml", "server connection config (.toml)")
	fs.StringVarP(&f.address, "address", "a", "", "override server address host:port")
	fs.StringVarP(&f.transport, "transport", "t", "", "override transport: tcp|tls|ws|wss")
	fs.StringVar(&f.adminAddr, "admin", "", "override admin listen address")
	fs.BoolVar(&f.noAdmin, "no-admin", false, "disable the admin HTTP listener")
	if err := fs.Parse(args); err != nil {
		return flags{}, err
	}
	return f, nil
}

func loadConfigs(f flags) (config.ClientConfig, session.Config, error) {
	clientCfg, err := config.LoadClientConfig(f.clientPath)
	if err != nil {
		return config.ClientConfig{}, session.Config{}, err
	}
	sessCfg := session.DefaultConfig()
	if _, statErr := os.Stat(f.serverPath); statErr == nil {
		if sessCfg, err = loadServerConfig(f.serverPath); err != nil {
			return config.ClientConfig{}, session.Config{}, err
		}
	}
	if f.address != "" {
		sessCfg.Address = strings.TrimSpace(f.address)
	}
	if f.transport != "" {
		sessCfg.Transport = session.Transport(f.transport)
	}
	sessCfg.Transport = session.NormalizeTransport(sessCfg.Transport)
	if err := sessCfg.Validate(); err != nil {
		return config.ClientConfig{}, session.Config{}, err
	}
	if f.adminAddr != "" {
		clientCfg.Admin.Addr = f.adminAddr
	}
	if f.noAdmin {
		clientCfg.Admin.Addr = ""
	}
	return clientCfg, sessCfg, nil
}

func run(ctx context.Context, f flags) error {
	clientCfg, sessCfg, err := loadConfigs(f)
	if err != nil {
		return err
	}
	var prompt sasl.Source
	if clientCfg.SASL.Prompt {
		prompt = promptSource(clientCfg.SASL.Authzid, clientCfg.SASL.Username)
	}
	b, err := newBot(clientCfg, sessCfg, prompt)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Run(gctx) })
	if clientCfg.Admin.Addr != "" {
		srv := admin.New(admin.Config{
			Name:        "ircbot",
			Addr:        clientCfg.Admin.Addr,
			CorsOrigins: clientCfg.Admin.CorsOrigins,
			Token:       clientCfg.Admin.Token,
		}, b.state, b.Status)
		g.Go(func() error { return srv.Serve(gctx) })
	}
	return g.Wait()
}

func main() {
	logger := observability.InitLogger("ircbot")

	f, err := parseFlags(os.Args[1:])
	if err != nil {
		if err == pflag.ErrHelp {
			return
		}
		fmt.Fprintf(os.Stderr, "ircbot: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, f); err != nil {
		logger.Error().Err(err).Msg("ircbot stopped")
		os.Exit(1)
	}
	logger.Info().Msg("ircbot stopped")
}
