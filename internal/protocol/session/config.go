package session

import "time"

// Transport selects how the byte stream to the server is established.
type Transport string

const (
	TransportTCP             Transport = "tcp"
	TransportTLS             Transport = "tls"
	TransportWebSocket       Transport = "ws"
	TransportWebSocketSecure Transport = "wss"
)

// SecurityMode gates which transport shortcuts are acceptable.
type SecurityMode string

const (
	SecurityModeDevelopment SecurityMode = "development"
	SecurityModeProduction  SecurityMode = "production"
)

// TLSConfig holds client-side TLS material. CertFile/KeyFile present a
// client certificate, as used by SASL EXTERNAL.
type TLSConfig struct {
	CAFile             string
	CertFile           string
	KeyFile            string
	ServerName         string
	InsecureSkipVerify bool
}

// BackoffConfig defines reconnect backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines how to reach one IRC server.
type Config struct {
	Address            string
	Transport          Transport
	SecurityMode       SecurityMode
	TLS                TLSConfig
	WebSocketPath      string
	ConnectTimeout     time.Duration
	HandshakeTimeout   time.Duration
	WriteTimeout       time.Duration
	MaxConnectAttempts int
	Backoff            BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		Address:          "127.0.0.1:6667",
		Transport:        TransportTCP,
		SecurityMode:     SecurityModeDevelopment,
		WebSocketPath:    "/webirc",
		ConnectTimeout:   10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     15 * time.Second,
		Backoff: BackoffConfig{
			InitialDelay: 2 * time.Second,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Minute,
			Jitter:       true,
		},
	}
}

func (c Config) usesTLS() bool {
	return c.Transport == TransportTLS || c.Transport == TransportWebSocketSecure
}
