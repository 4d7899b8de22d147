package client

import (
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/danmuck/ircwire/internal/ircstr"
	"github.com/danmuck/ircwire/internal/protocol/ircmsg"
)

// Key names a typed slot in State. Keys compare by name.
type Key[T any] struct {
	name string
}

func NewKey[T any](name string) Key[T] { return Key[T]{name: name} }

func (k Key[T]) Name() string { return k.name }

// Caps maps capability names to their values. KeyCaps holds the enabled
// set, KeyCapsOffered what the server advertised.
type Caps map[string]string

// ISupport maps RPL_ISUPPORT tokens to their unescaped values.
type ISupport map[string]string

// ServerInfo is what RPL_MYINFO reports.
type ServerInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	UserModes string `json:"user_modes"`
	ChanModes string `json:"chan_modes"`
}

// Registration summarises a finished handshake.
type Registration struct {
	Nick    string `json:"nick"`
	Account string `json:"account,omitempty"`
	// Userhost is "user@host" (or "host") as the server reported it with
	// RPL_LOGGEDIN or RPL_LOGGEDOUT.
	Userhost string `json:"userhost,omitempty"`
	// Version is the server version from RPL_MYINFO.
	Version string   `json:"version,omitempty"`
	Caps    []string `json:"caps"`
	Phases  []string `json:"phases"`
}

var (
	KeyCaps         = NewKey[Caps]("caps")
	KeyCapsOffered  = NewKey[Caps]("caps_offered")
	KeyISupport     = NewKey[ISupport]("isupport")
	KeyRegistration = NewKey[Registration]("registration")
	KeyServerSource = NewKey[ircmsg.Source]("server_source")
	KeyAccount      = NewKey[string]("account")
	KeyServerInfo   = NewKey[ServerInfo]("server_info")
	KeyCasemapping  = NewKey[ircstr.Casemapping]("casemapping")
)

// State is per-connection data shared between handlers. Values are
// replaced, never mutated in place, so Snapshot can hand them to other
// goroutines.
type State struct {
	mu     sync.RWMutex
	values map[string]any
}

func NewState() *State {
	return &State{values: make(map[string]any)}
}

func Get[T any](s *State, k Key[T]) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[k.name].(T)
	return v, ok
}

func Set[T any](s *State, k Key[T], v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[k.name] = v
}

// Update replaces the value under k with fn(current). fn must return a
// new value rather than modifying current.
func Update[T any](s *State, k Key[T], fn func(cur T, ok bool) T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.values[k.name].(T)
	s.values[k.name] = fn(cur, ok)
}

func Delete[T any](s *State, k Key[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, k.name)
}

// Reset drops everything; call it before reusing State on a new connection.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.values)
}

func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Keys lists the names of populated slots, sorted.
func (s *State) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Snapshot copies the state for display. Values that implement
// fmt.Stringer are rendered as strings.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		switch tv := v.(type) {
		case fmt.Stringer:
			out[k] = tv.String()
		case Caps:
			out[k] = maps.Clone(tv)
		case ISupport:
			out[k] = maps.Clone(tv)
		default:
			out[k] = v
		}
	}
	return out
}
