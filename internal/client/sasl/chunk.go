package sasl

import (
	"encoding/base64"

	"github.com/danmuck/ircwire/internal/ircstr"
)

// ChunkSize is the longest base64 payload one AUTHENTICATE line carries.
const ChunkSize = 400

// DefaultMaxChallenge bounds the decoded size of an accumulated challenge.
const DefaultMaxChallenge = 64 * 1024

// EncodeChunks base64-encodes resp into AUTHENTICATE arguments. An empty
// response is a lone "+". A final "+" follows whenever the encoded length
// is an exact multiple of ChunkSize, so the server knows the response
// ended. Every chunk is marked secret.
func EncodeChunks(resp []byte) []ircstr.Arg {
	if len(resp) == 0 {
		return []ircstr.Arg{terminator()}
	}
	enc := make([]byte, base64.StdEncoding.EncodedLen(len(resp)))
	base64.StdEncoding.Encode(enc, resp)
	whole := ircstr.Wrap(enc).Secret()

	out := make([]ircstr.Arg, 0, len(enc)/ChunkSize+1)
	for i := 0; i < len(enc); i += ChunkSize {
		j := min(i+ChunkSize, len(enc))
		out = append(out, secretArg(whole.Slice(i, j)))
	}
	if len(enc)%ChunkSize == 0 {
		out = append(out, terminator())
	}
	return out
}

// terminator returns an unshared secret "+".
func terminator() ircstr.Arg {
	return secretArg(ircstr.NewSecret([]byte{'+'}))
}

func secretArg(b ircstr.Bytes) ircstr.Arg {
	// base64 output and "+" are always valid args.
	a, _ := ircstr.ArgFrom(b.Secret())
	return a
}

// ChunkDecoder reassembles a server challenge split over AUTHENTICATE
// lines.
type ChunkDecoder struct {
	buf []byte
	max int
}

func NewChunkDecoder(max int) *ChunkDecoder {
	if max <= 0 {
		max = DefaultMaxChallenge
	}
	return &ChunkDecoder{max: max}
}

// Add appends one chunk. done is true once a chunk shorter than ChunkSize
// (or "+") closes the challenge; payload is then the decoded bytes and the
// decoder is ready for the next challenge.
func (d *ChunkDecoder) Add(chunk []byte) (payload []byte, done bool, err error) {
	if len(chunk) > ChunkSize {
		d.Reset()
		return nil, false, ErrChunkTooLong
	}
	if len(chunk) == 1 && chunk[0] == '+' {
		return d.finish()
	}
	if base64.StdEncoding.DecodedLen(len(d.buf)+len(chunk)) > d.max {
		d.Reset()
		return nil, false, ErrChallengeTooLarge
	}
	d.buf = append(d.buf, chunk...)
	if len(chunk) < ChunkSize {
		return d.finish()
	}
	return nil, false, nil
}

func (d *ChunkDecoder) finish() ([]byte, bool, error) {
	enc := d.buf
	d.buf = nil
	if len(enc) == 0 {
		return []byte{}, true, nil
	}
	out := make([]byte, base64.StdEncoding.DecodedLen(len(enc)))
	n, err := base64.StdEncoding.Decode(out, enc)
	if err != nil {
		return nil, true, err
	}
	return out[:n], true, nil
}

func (d *ChunkDecoder) Reset() { d.buf = nil }
