// Package ircmsg owns the IRC message model and its wire codec.
//
// Ownership boundary:
// - ClientMsg / ServerMsg, kept as distinct types
// - ordered tags, source, command or numeric, args
// - line parsing with per-token ParseError reporting
// - encoding with a hard line-length ceiling (no truncation)
// - CTCP and CAP value helpers
//
// Any message assembled from ircstr values encodes to a line that parses
// back to an equal message.
package ircmsg
