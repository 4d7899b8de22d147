package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/danmuck/ircwire/internal/config"
	"github.com/danmuck/ircwire/internal/observability"
)

func defaultPath(kind string) (string, error) {
	switch kind {
	case "client":
		return "cmd/ircbot/client.toml", nil
	case "client-yaml":
		return "cmd/ircbot/client.yaml", nil
	case "server":
		return "cmd/ircbot/server.toml", nil
	}
	return "", fmt.Errorf("unknown kind: %s (want %s)", kind, strings.Join(config.Kinds, "|"))
}

func main() {
	logger := observability.InitLogger("configgen")

	kind := pflag.StringP("kind", "k", "client", "config kind: "+strings.Join(config.Kinds, "|"))
	output := pflag.StringP("output", "o", "", "output path for config template")
	validate := pflag.Bool("validate", false, "validate an existing client config file")
	input := pflag.StringP("input", "i", "", "config path for validation (defaults to per-kind cmd path)")
	force := pflag.BoolP("force", "f", false, "overwrite existing config file")
	pflag.Parse()

	if *validate {
		path := *input
		if path == "" {
			p, err := defaultPath(*kind)
			if err != nil {
				logger.Fatal().Err(err).Msg("validate")
			}
			path = p
		}
		if *kind == "server" {
			logger.Fatal().Msg("server configs are validated by ircbot at startup")
		}
		if _, err := config.LoadClientConfig(path); err != nil {
			logger.Fatal().Err(err).Msg("validate")
		}
		logger.Info().Str("kind", *kind).Str("path", path).Msg("validated config")
		return
	}

	target := *output
	if target == "" {
		p, err := defaultPath(*kind)
		if err != nil {
			logger.Fatal().Err(err).Msg("write")
		}
		target = p
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		logger.Error().Err(err).Msg("write")
		os.Exit(1)
	}
	logger.Info().Str("kind", *kind).Str("path", target).Msg("wrote config template")
}
