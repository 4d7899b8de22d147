// Package ircstr owns the byte-string primitive and the restricted string
// types every IRC message is assembled from.
//
// Ownership boundary:
// - Bytes: immutable shared buffer, lazy UTF-8 validity, secret marking
// - restricted types (NoNul, Line, Word, Arg, Host, Key, Nick, User, Cmd)
// - Splitter/Builder cursors and scan-first transforms
// - IRCv3 tag escaping and casemapping
//
// A value of a restricted type never holds content violating its
// restriction. Loosening is a method call; tightening goes through the
// same table-driven validator (Kind.Check) and fails closed.
package ircstr
