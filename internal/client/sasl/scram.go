package sasl

import (
	"bytes"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	scramMinIterations = 1
	scramMaxIterations = 1 << 20
	scramNonceBytes    = 24
)

// ScramSHA256 is SCRAM-SHA-256 (RFC 5802, RFC 7677) without channel
// binding.
type ScramSHA256 struct {
	Source Source

	// nonce overrides client nonce generation.
	nonce func() (string, error)
}

func (ScramSHA256) Name() string { return "SCRAM-SHA-256" }

func (m ScramSHA256) Start() (Session, error) {
	if m.Source == nil {
		return nil, ErrNoCredentials
	}
	creds, err := m.Source.Load()
	if err != nil {
		return nil, err
	}
	gen := m.nonce
	if gen == nil {
		gen = randomNonce
	}
	nonce, err := gen()
	if err != nil {
		creds.Release()
		return nil, err
	}
	return &scramSession{creds: creds, clientNonce: nonce}, nil
}

func randomNonce() (string, error) {
	raw := make([]byte, scramNonceBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawStdEncoding.EncodeToString(raw), nil
}

type scramSession struct {
	creds       Credentials
	clientNonce string
	state       State
	step        int

	gs2Header       string
	clientFirstBare string
	serverSignature []byte
	saltedPassword  []byte
}

func (s *scramSession) State() State { return s.state }

func (s *scramSession) Release() {
	s.creds.Release()
	clear(s.saltedPassword)
	clear(s.serverSignature)
}

func (s *scramSession) Step(challenge []byte) ([]byte, error) {
	switch s.step {
	case 0:
		if len(challenge) != 0 {
			return nil, ErrUnexpectedData
		}
		return s.clientFirst(), nil
	case 1:
		return s.clientFinal(challenge)
	case 2:
		return s.verify(challenge)
	default:
		return nil, ErrAlreadyDone
	}
}

func (s *scramSession) clientFirst() []byte {
	s.gs2Header = "n,,"
	if s.creds.Authzid != "" {
		s.gs2Header = "n,a=" + scramEscape(s.creds.Authzid) + ","
	}
	s.clientFirstBare = "n=" + scramEscape(s.creds.Authcid) + ",r=" + s.clientNonce
	s.step = 1
	s.state = StateContinue
	return []byte(s.gs2Header + s.clientFirstBare)
}

func (s *scramSession) clientFinal(serverFirst []byte) ([]byte, error) {
	attrs, err := parseScramAttrs(serverFirst)
	if err != nil {
		return nil, err
	}
	if msg, ok := attrs['e']; ok {
		return nil, fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	nonce := attrs['r']
	if !strings.HasPrefix(nonce, s.clientNonce) || len(nonce) == len(s.clientNonce) {
		return nil, fmt.Errorf("%w: server nonce does not extend client nonce", ErrUnexpectedData)
	}
	salt, err := base64.StdEncoding.DecodeString(attrs['s'])
	if err != nil || len(salt) == 0 {
		return nil, fmt.Errorf("%w: bad salt", ErrUnexpectedData)
	}
	iter, err := strconv.Atoi(attrs['i'])
	if err != nil || iter < scramMinIterations || iter > scramMaxIterations {
		return nil, fmt.Errorf("%w: bad iteration count %q", ErrUnexpectedData, attrs['i'])
	}

	s.saltedPassword = pbkdf2.Key(s.creds.Password.Raw(), salt, iter, sha256.Size, sha256.New)
	s.creds.Release()

	withoutProof := "c=" + base64.StdEncoding.EncodeToString([]byte(s.gs2Header)) + ",r=" + nonce
	authMessage := []byte(s.clientFirstBare + "," + string(serverFirst) + "," + withoutProof)

	clientKey := hmacSHA256(s.saltedPassword, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)
	clientSig := hmacSHA256(storedKey[:], authMessage)
	proof := make([]byte, len(clientKey))
	for i := range clientKey {
		proof[i] = clientKey[i] ^ clientSig[i]
	}
	serverKey := hmacSHA256(s.saltedPassword, []byte("Server Key"))
	s.serverSignature = hmacSHA256(serverKey, authMessage)

	s.step = 2
	out := []byte(withoutProof + ",p=" + base64.StdEncoding.EncodeToString(proof))
	clear(clientKey)
	clear(proof)
	return out, nil
}

func (s *scramSession) verify(serverFinal []byte) ([]byte, error) {
	attrs, err := parseScramAttrs(serverFinal)
	if err != nil {
		return nil, err
	}
	if msg, ok := attrs['e']; ok {
		return nil, fmt.Errorf("%w: %s", ErrRejected, msg)
	}
	sig, err := base64.StdEncoding.DecodeString(attrs['v'])
	if err != nil || !hmac.Equal(sig, s.serverSignature) {
		return nil, ErrServerSignature
	}
	s.step = 3
	s.state = StateDone
	return []byte{}, nil
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// scramEscape applies the saslname escaping for ',' and '='.
func scramEscape(s string) string {
	if !strings.ContainsAny(s, ",=") {
		return s
	}
	return strings.NewReplacer("=", "=3D", ",", "=2C").Replace(s)
}

func parseScramAttrs(msg []byte) (map[byte]string, error) {
	attrs := make(map[byte]string)
	for _, part := range bytes.Split(msg, []byte{','}) {
		if len(part) < 2 || part[1] != '=' {
			return nil, fmt.Errorf("%w: malformed attribute %q", ErrUnexpectedData, part)
		}
		attrs[part[0]] = string(part[2:])
	}
	return attrs, nil
}
