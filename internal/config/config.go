package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/danmuck/ircwire/internal/client/nick"
	"github.com/danmuck/ircwire/internal/client/queue"
	"github.com/danmuck/ircwire/internal/client/register"
	"github.com/danmuck/ircwire/internal/client/sasl"
	"github.com/danmuck/ircwire/internal/ircstr"
	"github.com/danmuck/ircwire/internal/protocol/ircmsg"
)

var (
	ErrNoNicks         = errors.New("config: identity.nicks is empty")
	ErrUnknownMech     = errors.New("config: unknown sasl mechanism")
	ErrUnknownFormat   = errors.New("config: unknown file format")
	ErrPasswordSources = errors.New("config: set at most one of sasl.password, sasl.password_file, sasl.password_env")
)

// ClientConfig is everything the bot needs besides how to reach the
// server.
type ClientConfig struct {
	Identity IdentityConfig `toml:"identity" yaml:"identity"`
	Caps     []string       `toml:"caps" yaml:"caps"`
	SASL     SASLConfig     `toml:"sasl" yaml:"sasl"`
	Queue    QueueConfig    `toml:"queue" yaml:"queue"`
	CTCP     CTCPConfig     `toml:"ctcp" yaml:"ctcp"`
	Admin    AdminConfig    `toml:"admin" yaml:"admin"`
}

type IdentityConfig struct {
	Nicks []string `toml:"nicks" yaml:"nicks"`
	// SkipFirst holds the first nick back for suffixing only.
	SkipFirst bool `toml:"skip_first" yaml:"skip_first"`
	// Suffix is a preset (fallback, guest, bot, none) or empty to build
	// one from SuffixStrategy and Suffixes.
	Suffix         string   `toml:"suffix" yaml:"suffix"`
	SuffixStrategy string   `toml:"suffix_strategy" yaml:"suffix_strategy"`
	Suffixes       []string `toml:"suffixes" yaml:"suffixes"`
	Seed           uint32   `toml:"seed" yaml:"seed"`
	Username       string   `toml:"username" yaml:"username"`
	Realname       string   `toml:"realname" yaml:"realname"`
	Password       string   `toml:"password" yaml:"password"`
	MaxNickRetries int      `toml:"max_nick_retries" yaml:"max_nick_retries"`
	// RegisterTimeout bounds the handshake; "0s" waits forever.
	RegisterTimeout string `toml:"register_timeout" yaml:"register_timeout"`
}

// Timeout parses RegisterTimeout.
func (id IdentityConfig) Timeout() (time.Duration, error) {
	d, err := time.ParseDuration(id.RegisterTimeout)
	if err != nil {
		return 0, fmt.Errorf("identity.register_timeout invalid: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("identity.register_timeout must not be negative")
	}
	return d, nil
}

type SASLConfig struct {
	Mechanisms   []string `toml:"mechanisms" yaml:"mechanisms"`
	Required     bool     `toml:"required" yaml:"required"`
	Authzid      string   `toml:"authzid" yaml:"authzid"`
	Username     string   `toml:"username" yaml:"username"`
	Password     string   `toml:"password" yaml:"password"`
	PasswordFile string   `toml:"password_file" yaml:"password_file"`
	PasswordEnv  string   `toml:"password_env" yaml:"password_env"`
	// Prompt asks on the terminal when no other source is set.
	Prompt bool `toml:"prompt" yaml:"prompt"`
}

type QueueConfig struct {
	Interval string `toml:"interval" yaml:"interval"`
	Burst    int    `toml:"burst" yaml:"burst"`
	MaxLine  int    `toml:"max_line" yaml:"max_line"`
	// LabelCache bounds outstanding labeled-response requests.
	LabelCache int `toml:"label_cache" yaml:"label_cache"`
}

type CTCPConfig struct {
	Version string `toml:"version" yaml:"version"`
	Source  string `toml:"source" yaml:"source"`
}

type AdminConfig struct {
	Addr        string   `toml:"addr" yaml:"addr"`
	Token       string   `toml:"token" yaml:"token"`
	CorsOrigins []string `toml:"cors_origins" yaml:"cors_origins"`
}

// LoadClientConfig reads a .toml, .yaml or .yml file, fills defaults and
// validates the result.
func LoadClientConfig(path string) (ClientConfig, error) {
	var cfg ClientConfig
	if err := load(path, &cfg); err != nil {
		return ClientConfig{}, err
	}
	ApplyDefaults(&cfg)
	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func load(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml", "":
		err = toml.Unmarshal(data, out)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, out)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	if err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ApplyDefaults(cfg *ClientConfig) {
	if cfg.Identity.Suffix == "" && cfg.Identity.SuffixStrategy == "" && len(cfg.Identity.Suffixes) == 0 {
		cfg.Identity.Suffix = "fallback"
	}
	if cfg.Identity.Realname == "" {
		cfg.Identity.Realname = "ircwire"
	}
	if cfg.Identity.RegisterTimeout == "" {
		cfg.Identity.RegisterTimeout = register.DefaultTimeout.String()
	}
	if cfg.Queue.Interval == "" {
		cfg.Queue.Interval = queue.DefaultThrottleConfig().Interval.String()
	}
	if cfg.Queue.Burst == 0 {
		cfg.Queue.Burst = queue.DefaultThrottleConfig().Burst
	}
	if cfg.Queue.MaxLine == 0 {
		cfg.Queue.MaxLine = ircmsg.DefaultMaxLine
	}
	if cfg.Queue.LabelCache == 0 {
		cfg.Queue.LabelCache = 256
	}
	if cfg.CTCP.Version == "" {
		cfg.CTCP.Version = "ircwire"
	}
	if len(cfg.SASL.Mechanisms) > 0 && cfg.SASL.Username == "" && len(cfg.Identity.Nicks) > 0 {
		cfg.SASL.Username = cfg.Identity.Nicks[0]
	}
}

func ValidateClientConfig(cfg ClientConfig) error {
	if len(cfg.Identity.Nicks) == 0 {
		return ErrNoNicks
	}
	for i, n := range cfg.Identity.Nicks {
		if _, err := ircstr.NewNick(n); err != nil {
			return fmt.Errorf("identity.nicks[%d] invalid: %w", i, err)
		}
	}
	if u := cfg.Identity.Username; u != "" {
		if _, err := ircstr.NewUser(u); err != nil {
			return fmt.Errorf("identity.username invalid: %w", err)
		}
	}
	if _, err := ircstr.NewLine(cfg.Identity.Realname); err != nil {
		return fmt.Errorf("identity.realname invalid: %w", err)
	}
	if _, err := suffixFor(cfg.Identity); err != nil {
		return fmt.Errorf("identity suffix invalid: %w", err)
	}
	if _, err := cfg.Identity.Timeout(); err != nil {
		return err
	}
	if _, err := cfg.Queue.Throttle(); err != nil {
		return err
	}
	if cfg.Queue.MaxLine < ircmsg.DefaultMaxLine {
		return fmt.Errorf("queue.max_line must be at least %d", ircmsg.DefaultMaxLine)
	}
	if cfg.Queue.LabelCache < 0 {
		return fmt.Errorf("queue.label_cache must not be negative")
	}
	set := 0
	for _, v := range []string{cfg.SASL.Password, cfg.SASL.PasswordFile, cfg.SASL.PasswordEnv} {
		if v != "" {
			set++
		}
	}
	if set > 1 {
		return ErrPasswordSources
	}
	for _, m := range cfg.SASL.Mechanisms {
		switch strings.ToUpper(strings.TrimSpace(m)) {
		case "PLAIN", "EXTERNAL", "SCRAM-SHA-256":
		default:
			return fmt.Errorf("%w: %q", ErrUnknownMech, m)
		}
	}
	if cfg.SASL.Required && len(cfg.SASL.Mechanisms) == 0 {
		return fmt.Errorf("sasl.required set without sasl.mechanisms")
	}
	return nil
}

// Throttle parses the queue settings into a throttle config.
func (q QueueConfig) Throttle() (queue.ThrottleConfig, error) {
	d, err := time.ParseDuration(q.Interval)
	if err != nil {
		return queue.ThrottleConfig{}, fmt.Errorf("queue.interval invalid: %w", err)
	}
	if d < 0 {
		return queue.ThrottleConfig{}, fmt.Errorf("queue.interval must not be negative")
	}
	if q.Burst < 1 {
		return queue.ThrottleConfig{}, fmt.Errorf("queue.burst must be at least 1")
	}
	return queue.ThrottleConfig{Interval: d, Burst: q.Burst}, nil
}

func suffixFor(id IdentityConfig) (*nick.Suffix, error) {
	switch strings.ToLower(strings.TrimSpace(id.Suffix)) {
	case "fallback":
		s := nick.Fallback
		return &s, nil
	case "guest":
		s := nick.Guest
		s.Seed = id.Seed
		return &s, nil
	case "bot":
		s := nick.Bot
		s.Seed = id.Seed
		return &s, nil
	case "none":
		return nil, nil
	case "":
	default:
		return nil, fmt.Errorf("unknown suffix preset %q", id.Suffix)
	}
	strategy, err := nick.ParseStrategy(id.SuffixStrategy)
	if err != nil {
		return nil, err
	}
	s := &nick.Suffix{Strategy: strategy, Seed: id.Seed}
	for _, raw := range id.Suffixes {
		t, err := nick.ParseSuffixType(raw)
		if err != nil {
			return nil, err
		}
		s.Suffixes = append(s.Suffixes, t)
	}
	return s, nil
}

// CredentialSource picks the configured password source. prompt is used
// when sasl.prompt is set and nothing else is; it may be nil.
func (c SASLConfig) CredentialSource(prompt sasl.Source) sasl.Source {
	switch {
	case c.PasswordFile != "":
		return sasl.FileSource{Authzid: c.Authzid, Authcid: c.Username, Path: c.PasswordFile}
	case c.PasswordEnv != "":
		return sasl.EnvSource{Authzid: c.Authzid, Authcid: c.Username, Var: c.PasswordEnv}
	case c.Password != "":
		return sasl.Static{Authzid: c.Authzid, Authcid: c.Username, Password: c.Password}
	case c.Prompt && prompt != nil:
		return prompt
	}
	return nil
}

// BuildMechanisms builds the SASL mechanisms in configured preference order.
func (c SASLConfig) BuildMechanisms(src sasl.Source) ([]sasl.Mechanism, error) {
	mechs := make([]sasl.Mechanism, 0, len(c.Mechanisms))
	for _, m := range c.Mechanisms {
		switch strings.ToUpper(strings.TrimSpace(m)) {
		case "PLAIN":
			mechs = append(mechs, sasl.Plain{Source: src})
		case "SCRAM-SHA-256":
			mechs = append(mechs, sasl.ScramSHA256{Source: src})
		case "EXTERNAL":
			mechs = append(mechs, sasl.External{Authzid: c.Authzid})
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownMech, m)
		}
	}
	return mechs, nil
}

// RegisterOptions builds fresh handshake options. Call it once per
// connection attempt: the nick generator is consumed by the handshake.
func (c ClientConfig) RegisterOptions(prompt sasl.Source) (register.Options, error) {
	nicks := make([]ircstr.Nick, 0, len(c.Identity.Nicks))
	for _, n := range c.Identity.Nicks {
		v, err := ircstr.NewNick(n)
		if err != nil {
			return register.Options{}, err
		}
		nicks = append(nicks, v)
	}
	suffix, err := suffixFor(c.Identity)
	if err != nil {
		return register.Options{}, err
	}
	gen, err := nick.Candidates(nicks, c.Identity.SkipFirst, suffix)
	if err != nil {
		return register.Options{}, err
	}
	mechs, err := c.SASL.BuildMechanisms(c.SASL.CredentialSource(prompt))
	if err != nil {
		return register.Options{}, err
	}
	var timeout time.Duration
	if c.Identity.RegisterTimeout != "" {
		if timeout, err = c.Identity.Timeout(); err != nil {
			return register.Options{}, err
		}
	}
	return register.Options{
		Password:       c.Identity.Password,
		Nicks:          gen,
		Username:       c.Identity.Username,
		Realname:       c.Identity.Realname,
		Caps:           c.Caps,
		Mechanisms:     mechs,
		RequireSASL:    c.SASL.Required,
		MaxNickRetries: c.Identity.MaxNickRetries,
		Timeout:        timeout,
	}, nil
}
