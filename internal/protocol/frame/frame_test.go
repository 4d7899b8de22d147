package frame

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/danmuck/ircwire/internal/testutil/testlog"
)

func TestReadLineStripsTerminators(t *testing.T) {
	testlog.Start(t)
	r := NewReader(strings.NewReader("PING :a\r\n\r\nPING :b\nPING :c\r\n"), DefaultLimits())
	for _, want := range []string{"PING :a", "PING :b", "PING :c"} {
		got, err := r.ReadLine()
		if err != nil {
			t.Fatalf("read line: %v", err)
		}
		if string(got) != want {
			t.Fatalf("got=%q want=%q", got, want)
		}
	}
	if _, err := r.ReadLine(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestReadLineTooLongIsRecoverable(t *testing.T) {
	testlog.Start(t)
	long := strings.Repeat("x", 600)
	r := NewReader(strings.NewReader(long+"\r\nPING :ok\r\n"), DefaultLimits())
	if _, err := r.ReadLine(); !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("expected ErrLineTooLong, got %v", err)
	}
	got, err := r.ReadLine()
	if err != nil {
		t.Fatalf("read after overlong: %v", err)
	}
	if string(got) != "PING :ok" {
		t.Fatalf("unexpected line after overlong: %q", got)
	}
}

func TestReadLineExactlyAtLimit(t *testing.T) {
	testlog.Start(t)
	line := strings.Repeat("y", 510) + "\r\n"
	r := NewReader(strings.NewReader(line), DefaultLimits())
	got, err := r.ReadLine()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 510 {
		t.Fatalf("unexpected len: %d", len(got))
	}

	r.SetLimits(Limits{MaxLineBytes: 16})
	if r.Limits().MaxLineBytes != 16 {
		t.Fatalf("limits not updated")
	}
}

func TestReadLineLargerThanBuffer(t *testing.T) {
	testlog.Start(t)
	body := strings.Repeat("z", 6000)
	r := NewReader(strings.NewReader(body+"\r\n"), TaggedLimits())
	got, err := r.ReadLine()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != len(body) {
		t.Fatalf("unexpected len: %d", len(got))
	}
}

func TestReadLineUnterminatedAtEOF(t *testing.T) {
	testlog.Start(t)
	r := NewReader(strings.NewReader("PING :half"), DefaultLimits())
	if _, err := r.ReadLine(); !errors.Is(err, ErrUnterminated) {
		t.Fatalf("expected ErrUnterminated, got %v", err)
	}
}

func TestWriteLine(t *testing.T) {
	testlog.Start(t)
	var buf bytes.Buffer
	if err := WriteLine(&buf, []byte("NICK a\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.String() != "NICK a\r\n" {
		t.Fatalf("unexpected output: %q", buf.String())
	}
	if err := WriteLine(&buf, []byte("NICK a")); !errors.Is(err, ErrUnterminated) {
		t.Fatalf("expected ErrUnterminated, got %v", err)
	}
	if err := WriteLine(&buf, []byte("NICK a\nQUIT\r\n")); !errors.Is(err, ErrEmbeddedBreak) {
		t.Fatalf("expected ErrEmbeddedBreak, got %v", err)
	}
}

var errTimeout = errors.New("i/o timeout")

// stutterReader returns one chunk per Read and errTimeout between chunks.
type stutterReader struct {
	chunks []string
	paused bool
}

func (s *stutterReader) Read(p []byte) (int, error) {
	if len(s.chunks) == 0 {
		return 0, io.EOF
	}
	if s.paused {
		s.paused = false
		return 0, errTimeout
	}
	s.paused = true
	n := copy(p, s.chunks[0])
	s.chunks = s.chunks[1:]
	return n, nil
}

func TestReadLineResumesAfterTimeout(t *testing.T) {
	testlog.Start(t)
	r := NewReader(&stutterReader{chunks: []string{"PRIVMSG #a ", ":hello\r\n"}}, DefaultLimits())
	if _, err := r.ReadLine(); !errors.Is(err, errTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	got, err := r.ReadLine()
	if err != nil {
		t.Fatalf("read after timeout: %v", err)
	}
	if string(got) != "PRIVMSG #a :hello" {
		t.Fatalf("partial line lost: %q", got)
	}
}
