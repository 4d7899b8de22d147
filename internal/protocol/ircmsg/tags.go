package ircmsg

import (
	"bytes"

	"github.com/danmuck/ircwire/internal/ircstr"
)

// Namespace classifies a tag key.
type Namespace uint8

const (
	NamespaceServer Namespace = iota
	NamespaceClient
	NamespaceVendor
)

func (n Namespace) String() string {
	switch n {
	case NamespaceClient:
		return "client"
	case NamespaceVendor:
		return "vendor"
	default:
		return "server"
	}
}

// Tag is one message tag. An empty Value is equivalent to no value.
type Tag struct {
	Key   ircstr.Key
	Value ircstr.NoNul
}

// Namespace reports client-only for '+'-prefixed keys, vendor for keys
// carrying a vendor prefix, and server otherwise.
func (t Tag) Namespace() Namespace {
	raw := t.Key.Raw()
	switch {
	case len(raw) > 0 && raw[0] == '+':
		return NamespaceClient
	case bytes.IndexByte(raw, '/') >= 0:
		return NamespaceVendor
	default:
		return NamespaceServer
	}
}

// Vendor returns the vendor prefix of the key, if any.
func (t Tag) Vendor() (string, bool) {
	raw := bytes.TrimPrefix(t.Key.Raw(), []byte{'+'})
	i := bytes.IndexByte(raw, '/')
	if i < 0 {
		return "", false
	}
	return string(raw[:i]), true
}

// Tags is an insertion-ordered tag mapping with unique keys. Setting an
// existing key replaces its value in place.
type Tags struct {
	list []Tag
}

func (t *Tags) Len() int { return len(t.list) }

func (t *Tags) Set(key ircstr.Key, value ircstr.NoNul) {
	for i := range t.list {
		if t.list[i].Key.Equal(key) {
			t.list[i].Value = value
			return
		}
	}
	t.list = append(t.list, Tag{Key: key, Value: value})
}

// SetString validates key and value before setting them.
func (t *Tags) SetString(key, value string) error {
	k, err := ircstr.NewKey(key)
	if err != nil {
		return err
	}
	v, err := ircstr.NewNoNul(value)
	if err != nil {
		return err
	}
	t.Set(k, v)
	return nil
}

func (t *Tags) Get(key string) (ircstr.NoNul, bool) {
	for _, tag := range t.list {
		if tag.Key.Text() == key {
			return tag.Value, true
		}
	}
	return ircstr.NoNul{}, false
}

func (t *Tags) Delete(key string) bool {
	for i, tag := range t.list {
		if tag.Key.Text() == key {
			t.list = append(t.list[:i], t.list[i+1:]...)
			return true
		}
	}
	return false
}

// All returns a copy of the tags in insertion order.
func (t *Tags) All() []Tag {
	out := make([]Tag, len(t.list))
	copy(out, t.list)
	return out
}

func (t *Tags) Clone() Tags {
	return Tags{list: t.All()}
}

// Equal compares tags as a mapping; order is not significant.
func (t *Tags) Equal(o *Tags) bool {
	if len(t.list) != len(o.list) {
		return false
	}
	for _, tag := range t.list {
		v, ok := o.Get(tag.Key.Text())
		if !ok || !v.Equal(tag.Value) {
			return false
		}
	}
	return true
}

// encodedLen is the length of the tag block including '@' and the
// trailing space, or 0 without tags.
func (t *Tags) encodedLen() int {
	if len(t.list) == 0 {
		return 0
	}
	n := 1 + len(t.list)
	for _, tag := range t.list {
		n += tag.Key.Len()
		if !tag.Value.IsZero() {
			n += 1 + ircstr.EscapedTagLen(tag.Value.Bytes())
		}
	}
	return n
}

func (t *Tags) appendTo(dst []byte, redact bool) []byte {
	if len(t.list) == 0 {
		return dst
	}
	dst = append(dst, '@')
	for i, tag := range t.list {
		if i > 0 {
			dst = append(dst, ';')
		}
		dst = append(dst, tag.Key.Raw()...)
		if tag.Value.IsZero() {
			continue
		}
		dst = append(dst, '=')
		dst = appendPiece(dst, ircstr.EscapeTagValue(tag.Value.Bytes()), redact)
	}
	return append(dst, ' ')
}

// parseTags parses the tag block after '@'. base is the block's offset in
// the line, for error reporting.
func parseTags(block ircstr.Bytes, base int) (Tags, error) {
	var tags Tags
	p := ircstr.NewSplitter(block)
	for {
		start := p.Offset()
		item := p.Until(';')
		if item.IsEmpty() {
			return Tags{}, parseErr(TokenTags, base+start, ErrInvalidTag, nil)
		}
		ip := ircstr.NewSplitter(item)
		keyRaw := ip.Until('=')
		key, err := ircstr.KeyFrom(keyRaw)
		if err != nil {
			return Tags{}, parseErr(TokenTags, base+start, ErrInvalidTag, err)
		}
		var value ircstr.NoNul
		if ip.Consume('=') {
			unescaped, err := ircstr.UnescapeTagValue(ip.TakeRest())
			if err != nil {
				return Tags{}, parseErr(TokenTags, base+start+ip.Offset(), ErrBadTagEscape, err)
			}
			if value, err = ircstr.NoNulFrom(unescaped); err != nil {
				return Tags{}, parseErr(TokenTags, base+start, ErrInvalidTag, err)
			}
		}
		tags.Set(key, value)
		if !p.Consume(';') {
			return tags, nil
		}
	}
}

func appendPiece(dst []byte, s ircstr.Bytes, redact bool) []byte {
	if redact && s.IsSecret() {
		return append(dst, s.String()...)
	}
	return append(dst, s.Raw()...)
}
