package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// WebSocketSubprotocol is the IRCv3 text framing subprotocol: one IRC line
// per message, no CRLF.
const WebSocketSubprotocol = "text.ircv3.net"

// Dial connects to the configured server and returns a byte stream that
// carries CRLF-terminated IRC lines regardless of transport.
func Dial(ctx context.Context, cfg Config) (net.Conn, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Transport = NormalizeTransport(cfg.Transport)
	switch cfg.Transport {
	case TransportWebSocket, TransportWebSocketSecure:
		return dialWebSocket(ctx, cfg)
	default:
		return dialStream(ctx, cfg)
	}
}

func dialStream(ctx context.Context, cfg Config) (net.Conn, error) {
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, err
	}
	if cfg.Transport != TransportTLS {
		return rawConn, nil
	}

	tlsCfg, err := cfg.clientTLSConfig()
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	conn := tls.Client(rawConn, tlsCfg)
	handshakeCtx := ctx
	if cfg.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		handshakeCtx, cancel = context.WithTimeout(ctx, cfg.HandshakeTimeout)
		defer cancel()
	}
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	return conn, nil
}

func dialWebSocket(ctx context.Context, cfg Config) (net.Conn, error) {
	scheme := "ws"
	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
		Subprotocols:     []string{WebSocketSubprotocol},
		NetDialContext:   (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
	}
	if cfg.Transport == TransportWebSocketSecure {
		scheme = "wss"
		tlsCfg, err := cfg.clientTLSConfig()
		if err != nil {
			return nil, err
		}
		dialer.TLSClientConfig = tlsCfg
	}
	path := cfg.WebSocketPath
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := url.URL{Scheme: scheme, Host: cfg.Address, Path: path}

	ws, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("session: websocket dial %s: %w", u.String(), err)
	}
	return newWSConn(ws), nil
}
