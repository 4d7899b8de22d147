package sasl

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/ircwire/internal/ircstr"
)

// Credentials are a loaded username and password. Password is secret;
// call Release once the mechanism no longer needs it.
type Credentials struct {
	Authzid  string
	Authcid  string
	Password ircstr.Bytes
}

func (c Credentials) Release() { c.Password.Release() }

// Source loads credentials on demand.
type Source interface {
	Load() (Credentials, error)
}

// Static holds credentials in memory. Load hands out a copy so releasing
// it leaves the source intact.
type Static struct {
	Authzid  string
	Authcid  string
	Password string
}

func (s Static) Load() (Credentials, error) {
	if s.Authcid == "" {
		return Credentials{}, fmt.Errorf("%w: empty username", ErrNoCredentials)
	}
	return Credentials{
		Authzid:  s.Authzid,
		Authcid:  s.Authcid,
		Password: ircstr.NewSecret([]byte(s.Password)),
	}, nil
}

// FileSource reads the password from a file; one trailing newline is
// stripped.
type FileSource struct {
	Authzid string
	Authcid string
	Path    string
}

func (s FileSource) Load() (Credentials, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrNoCredentials, err)
	}
	pass := bytes.TrimSuffix(bytes.TrimSuffix(raw, []byte("\n")), []byte("\r"))
	creds := Credentials{
		Authzid:  s.Authzid,
		Authcid:  s.Authcid,
		Password: ircstr.NewSecret(pass),
	}
	clear(raw)
	return creds, nil
}

// EnvSource reads the password from an environment variable.
type EnvSource struct {
	Authzid string
	Authcid string
	Var     string
}

func (s EnvSource) Load() (Credentials, error) {
	v, ok := os.LookupEnv(strings.TrimSpace(s.Var))
	if !ok {
		return Credentials{}, fmt.Errorf("%w: %s unset", ErrNoCredentials, s.Var)
	}
	return Credentials{
		Authzid:  s.Authzid,
		Authcid:  s.Authcid,
		Password: ircstr.NewSecret([]byte(v)),
	}, nil
}

// FuncSource adapts a function, e.g. an interactive prompt.
type FuncSource func() (Credentials, error)

func (f FuncSource) Load() (Credentials, error) { return f() }
