// Package session owns reaching an IRC server: the caller-side glue around
// the dispatch runtime.
//
// Ownership boundary:
// - server address, transport and TLS configuration
// - tcp / tls / IRCv3 websocket dialing
// - reconnect backoff
//
// Nothing here retries on its own; callers decide when to redial.
package session
