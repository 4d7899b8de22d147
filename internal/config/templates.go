package config

import (
	"fmt"
	"os"
	"strings"
)

// Kinds lists the template kinds Template accepts.
var Kinds = []string{"client", "client-yaml", "server"}

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "client", "client-toml":
		return clientTemplate, nil
	case "client-yaml":
		return clientYAMLTemplate, nil
	case "server":
		return serverTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const clientTemplate = `caps = ["multi-prefix", "away-notify", "message-tags", "labeled-response", "server-time"]

[identity]
nicks = ["ircwire"]
suffix = "fallback"
username = "ircwire"
realname = "ircwire bot"
max_nick_retries = 8
register_timeout = "60s"

[sasl]
mechanisms = ["SCRAM-SHA-256", "PLAIN"]
required = false
username = "ircwire"
password_env = "IRCWIRE_SASL_PASSWORD"

[queue]
interval = "2s"
burst = 5
max_line = 512
label_cache = 256

[ctcp]
version = "ircwire"

[admin]
addr = "127.0.0.1:9300"
token = ""
cors_origins = ["http://localhost:3000"]
`

const clientYAMLTemplate = `caps: [multi-prefix, away-notify, message-tags, labeled-response, server-time]
identity:
  nicks: [ircwire]
  suffix: fallback
  username: ircwire
  realname: ircwire bot
  max_nick_retries: 8
  register_timeout: 60s
sasl:
  mechanisms: [SCRAM-SHA-256, PLAIN]
  required: false
  username: ircwire
  password_env: IRCWIRE_SASL_PASSWORD
queue:
  interval: 2s
  burst: 5
  max_line: 512
  label_cache: 256
ctcp:
  version: ircwire
admin:
  addr: 127.0.0.1:9300
  token: ""
  cors_origins: ["http://localhost:3000"]
`

const serverTemplate = `address = "irc.libera.chat:6697"
transport = "tls"
security_mode = "production"
connect_timeout = "10s"
handshake_timeout = "10s"
write_timeout = "15s"
max_connect_attempts = 0

backoff_initial = "2s"
backoff_multiplier = 2.0
backoff_max = "5m"
backoff_jitter = true
`
