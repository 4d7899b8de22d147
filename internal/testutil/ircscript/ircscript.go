// Package ircscript is an in-memory IRC server end for tests. The client
// side is a net.Pipe conn; everything it writes is collected in the
// background so client writes never block on the script.
package ircscript

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/ircwire/internal/protocol/frame"
)

const DefaultTimeout = 2 * time.Second

type Server struct {
	t       *testing.T
	conn    net.Conn
	lines   chan string
	readErr chan error
	Timeout time.Duration
}

// New returns the client end of the pipe and the scripted server. Both ends
// are closed at test cleanup.
func New(t *testing.T) (net.Conn, *Server) {
	t.Helper()
	clientEnd, serverEnd := net.Pipe()
	s := &Server{
		t:       t,
		conn:    serverEnd,
		lines:   make(chan string, 256),
		readErr: make(chan error, 1),
		Timeout: DefaultTimeout,
	}
	go s.collect()
	t.Cleanup(func() {
		_ = clientEnd.Close()
		_ = serverEnd.Close()
	})
	return clientEnd, s
}

func (s *Server) collect() {
	r := frame.NewReader(s.conn, frame.TaggedLimits())
	for {
		line, err := r.ReadLine()
		if err != nil {
			s.readErr <- err
			close(s.lines)
			return
		}
		s.lines <- string(line)
	}
}

// Next returns the next line the client wrote, failing the test on timeout
// or when the client end closed.
func (s *Server) Next() string {
	s.t.Helper()
	select {
	case line, ok := <-s.lines:
		if !ok {
			s.t.Fatalf("ircscript: client closed: %v", <-s.readErr)
		}
		return line
	case <-time.After(s.Timeout):
		s.t.Fatalf("ircscript: timed out waiting for client line")
	}
	return ""
}

// Expect reads the next client lines and fails on the first mismatch.
func (s *Server) Expect(want ...string) {
	s.t.Helper()
	for _, w := range want {
		if got := s.Next(); got != w {
			s.t.Fatalf("ircscript: got %q want %q", got, w)
		}
	}
}

// ExpectPrefix reads one line and checks its start.
func (s *Server) ExpectPrefix(prefix string) string {
	s.t.Helper()
	got := s.Next()
	if !strings.HasPrefix(got, prefix) {
		s.t.Fatalf("ircscript: got %q want prefix %q", got, prefix)
	}
	return got
}

// ExpectQuiet fails if the client writes anything within d.
func (s *Server) ExpectQuiet(d time.Duration) {
	s.t.Helper()
	select {
	case line, ok := <-s.lines:
		if ok {
			s.t.Fatalf("ircscript: unexpected client line %q", line)
		}
	case <-time.After(d):
	}
}

// Send writes server lines, adding CRLF.
func (s *Server) Send(lines ...string) {
	s.t.Helper()
	for _, l := range lines {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.Timeout))
		if err := frame.WriteLine(s.conn, []byte(l+"\r\n")); err != nil {
			s.t.Fatalf("ircscript: send %q: %v", l, err)
		}
	}
}

// Close hangs up the server end.
func (s *Server) Close() {
	_ = s.conn.Close()
}

// Closed reports whether the client end has hung up, waiting up to d.
func (s *Server) Closed(d time.Duration) bool {
	select {
	case err := <-s.readErr:
		s.readErr <- err
		return true
	case <-time.After(d):
		return false
	}
}
