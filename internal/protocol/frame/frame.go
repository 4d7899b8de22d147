package frame

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

var (
	ErrLineTooLong   = errors.New("frame: line too long")
	ErrUnterminated  = errors.New("frame: line not terminated")
	ErrEmbeddedBreak = errors.New("frame: line break inside line")
)

// Limits constrains line decode/encode memory use. MaxLineBytes counts the
// CRLF terminator.
type Limits struct {
	MaxLineBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxLineBytes: 512}
}

// TaggedLimits allows the IRCv3 message-tags budget on top of the base line.
func TaggedLimits() Limits {
	return Limits{MaxLineBytes: 8191 + 512}
}

// Reader yields complete lines from a byte stream. A read error such as a
// deadline timeout keeps any partial line, so the next ReadLine resumes it.
type Reader struct {
	br     *bufio.Reader
	limits Limits

	partial []byte
	tooLong bool
}

func NewReader(r io.Reader, limits Limits) *Reader {
	size := limits.MaxLineBytes
	if size < 4096 {
		size = 4096
	}
	return &Reader{br: bufio.NewReaderSize(r, size), limits: limits}
}

func (r *Reader) Limits() Limits { return r.limits }

// SetLimits changes the ceiling for subsequent lines.
func (r *Reader) SetLimits(limits Limits) { r.limits = limits }

// ReadLine returns the next non-empty line with its CRLF (or bare LF)
// stripped. The returned slice is freshly allocated and owned by the
// caller. An overlong line is discarded through its terminator and
// reported as ErrLineTooLong; the reader stays usable.
func (r *Reader) ReadLine() ([]byte, error) {
	for {
		line, err := r.readRaw()
		if err != nil {
			return nil, err
		}
		line = bytes.TrimSuffix(line, []byte{'\n'})
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(line) == 0 {
			continue
		}
		return line, nil
	}
}

func (r *Reader) readRaw() ([]byte, error) {
	for {
		chunk, err := r.br.ReadSlice('\n')
		if !r.tooLong {
			if r.limits.MaxLineBytes > 0 && len(r.partial)+len(chunk) > r.limits.MaxLineBytes {
				r.tooLong = true
				r.partial = nil
			} else {
				r.partial = append(r.partial, chunk...)
			}
		}
		switch {
		case err == nil:
			line, tooLong := r.partial, r.tooLong
			r.partial, r.tooLong = nil, false
			if tooLong {
				return nil, ErrLineTooLong
			}
			return line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && (len(r.partial) > 0 || r.tooLong):
			r.partial, r.tooLong = nil, false
			return nil, ErrUnterminated
		default:
			return nil, err
		}
	}
}

// WriteLine writes one CRLF-terminated line. line must already carry its
// terminator and no other line break.
func WriteLine(w io.Writer, line []byte) error {
	if !bytes.HasSuffix(line, []byte("\r\n")) {
		return ErrUnterminated
	}
	if bytes.IndexAny(line[:len(line)-2], "\r\n") >= 0 {
		return ErrEmbeddedBreak
	}
	_, err := w.Write(line)
	return err
}
