package main

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/term"

	"github.com/danmuck/ircwire/internal/client/sasl"
	"github.com/danmuck/ircwire/internal/ircstr"
)

// promptSource asks for the SASL password on the controlling terminal the
// first time it is needed and reuses it on reconnect.
func promptSource(authzid, authcid string) sasl.Source {
	var (
		mu     sync.Mutex
		cached ircstr.Bytes
		have   bool
	)
	return sasl.FuncSource(func() (sasl.Credentials, error) {
		mu.Lock()
		defer mu.Unlock()
		if !have {
			fd := int(os.Stdin.Fd())
			if !term.IsTerminal(fd) {
				return sasl.Credentials{}, fmt.Errorf("%w: stdin is not a terminal", sasl.ErrNoCredentials)
			}
			fmt.Fprintf(os.Stderr, "SASL password for %s: ", authcid)
			pw, err := term.ReadPassword(fd)
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return sasl.Credentials{}, fmt.Errorf("%w: %v", sasl.ErrNoCredentials, err)
			}
			cached = ircstr.NewSecret(pw)
			clear(pw)
			have = true
		}
		return sasl.Credentials{
			Authzid:  authzid,
			Authcid:  authcid,
			Password: ircstr.NewSecret(cached.Raw()),
		}, nil
	})
}
