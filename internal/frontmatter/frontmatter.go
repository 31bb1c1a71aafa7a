// Package frontmatter encodes and decodes the metadata header used by
// knowledge items and skill files.
//
// A document looks like:
//
//	---
//	id: "tech_notes-2025-01-15-1a2b3c4d"
//	tags: ["go","sqlite"]
//	---
//
//	Body text, verbatim.
//
// Header lines are "key: value". A value wrapped in square brackets is a
// list and is parsed as a JSON array; anything else is a scalar, with one
// matching pair of surrounding quotes removed.
package frontmatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/starford/ctxvault/internal/apperr"
)

// Delimiter opens and closes the header block.
const Delimiter = "---"

// ParseError reports a document whose header block is missing or unterminated.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("frontmatter: line %d: %s", e.Line, e.Reason)
	}
	return "frontmatter: " + e.Reason
}

// Unwrap lets callers match any ParseError with errors.Is(err, apperr.ErrParse).
func (e *ParseError) Unwrap() error { return apperr.ErrParse }

// Value is a header value: either a scalar string or a list of strings.
type Value struct {
	scalar string
	list   []string
	isList bool
}

// String returns a scalar value.
func String(s string) Value { return Value{scalar: s} }

// List returns a list value. A nil or empty input encodes as [].
func List(items ...string) Value {
	if items == nil {
		items = []string{}
	}
	return Value{list: items, isList: true}
}

// IsList reports whether v was written or parsed as a bracketed list.
func (v Value) IsList() bool { return v.isList }

// Scalar returns the scalar text, or "" for a list.
func (v Value) Scalar() string { return v.scalar }

// Items returns the list items, or nil for a scalar.
func (v Value) Items() []string { return v.list }

// Metadata is an ordered set of header fields. Field order is preserved on
// encode so files keep a stable, hand-chosen layout.
type Metadata struct {
	keys   []string
	values map[string]Value
}

// New returns empty metadata.
func New() *Metadata {
	return &Metadata{values: make(map[string]Value)}
}

// Set stores v under key. Re-setting a key keeps its original position.
func (m *Metadata) Set(key string, v Value) {
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Get returns the value stored under key.
func (m *Metadata) Get(key string) (Value, bool) {
	v, ok := m.values[key]
	return v, ok
}

// String returns the scalar under key, or "" when absent or a list.
func (m *Metadata) String(key string) string {
	return m.values[key].scalar
}

// List returns the items under key, or an empty slice when absent or scalar.
func (m *Metadata) List(key string) []string {
	v, ok := m.values[key]
	if !ok || !v.isList {
		return []string{}
	}
	out := make([]string, len(v.list))
	copy(out, v.list)
	return out
}

// Keys returns field names in insertion order.
func (m *Metadata) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of fields.
func (m *Metadata) Len() int { return len(m.keys) }

// Encode renders md and body as a single document.
func Encode(md *Metadata, body string) string {
	var b strings.Builder
	b.WriteString(Delimiter)
	b.WriteByte('\n')
	if md != nil {
		for _, k := range md.keys {
			v := md.values[k]
			b.WriteString(k)
			b.WriteString(": ")
			if v.isList {
				b.WriteString(marshal(v.list))
			} else {
				b.WriteByte('"')
				b.WriteString(singleLine(v.scalar))
				b.WriteByte('"')
			}
			b.WriteByte('\n')
		}
	}
	b.WriteString(Delimiter)
	b.WriteString("\n\n")
	b.WriteString(body)
	return b.String()
}

// singleLine replaces line breaks and other control characters with spaces.
// Scalars are quoted literally, so a header value cannot span lines.
func singleLine(s string) string {
	if !strings.ContainsFunc(s, unicode.IsControl) {
		return s
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
}

// marshal renders a list as compact JSON without HTML escaping.
func marshal(items []string) string {
	if items == nil {
		items = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(items); err != nil {
		// string slices always encode
		return "[]"
	}
	return strings.TrimRight(buf.String(), "\n")
}

type state int

const (
	stateStart state = iota
	stateHeader
)

// Decode splits text into its header fields and body.
//
// Only the first two delimiter lines bound the header; later delimiter lines
// belong to the body. One blank line after the closing delimiter is consumed,
// the rest of the body is returned verbatim.
func Decode(text string) (*Metadata, string, error) {
	md := New()
	st := stateStart
	pos := 0
	lineNo := 0

	for pos < len(text) {
		end := strings.IndexByte(text[pos:], '\n')
		var line string
		next := len(text)
		if end >= 0 {
			line = text[pos : pos+end]
			next = pos + end + 1
		} else {
			line = text[pos:]
		}
		lineNo++
		trimmed := strings.TrimRight(line, "\r")

		switch st {
		case stateStart:
			if strings.TrimSpace(trimmed) == "" {
				pos = next
				continue
			}
			if trimmed != Delimiter {
				return nil, "", &ParseError{Line: lineNo, Reason: "missing opening delimiter"}
			}
			st = stateHeader

		case stateHeader:
			if trimmed == Delimiter {
				return md, bodyAfter(text[next:]), nil
			}
			if key, v, ok := parseLine(trimmed); ok {
				md.Set(key, v)
			}
		}
		pos = next
	}

	if st == stateStart {
		return nil, "", &ParseError{Reason: "missing header block"}
	}
	return nil, "", &ParseError{Line: lineNo, Reason: "missing closing delimiter"}
}

// bodyAfter drops the single separator line written by Encode.
func bodyAfter(rest string) string {
	switch {
	case strings.HasPrefix(rest, "\r\n"):
		return rest[2:]
	case strings.HasPrefix(rest, "\n"):
		return rest[1:]
	}
	return rest
}

// parseLine splits a header line on its first colon. Lines without a colon
// or with an empty key are ignored.
func parseLine(line string) (string, Value, bool) {
	i := strings.IndexByte(line, ':')
	if i < 0 {
		return "", Value{}, false
	}
	key := strings.TrimSpace(line[:i])
	if key == "" {
		return "", Value{}, false
	}
	return key, parseValue(strings.TrimSpace(line[i+1:])), true
}

func parseValue(raw string) Value {
	if s, ok := unquote(raw); ok {
		return String(s)
	}
	if len(raw) >= 2 && raw[0] == '[' && raw[len(raw)-1] == ']' {
		if items, ok := parseList(raw); ok {
			return List(items...)
		}
	}
	return String(raw)
}

// unquote strips one matching pair of quotes. The content is taken
// literally: backslashes and inner quotes are not escapes.
func unquote(raw string) (string, bool) {
	if len(raw) < 2 {
		return "", false
	}
	q := raw[0]
	if (q != '"' && q != '\'') || raw[len(raw)-1] != q {
		return "", false
	}
	return raw[1 : len(raw)-1], true
}

// parseList decodes a bracketed value as a JSON array. Single-quoted
// arrays are accepted by normalising quotes when the strict parse fails.
func parseList(raw string) ([]string, bool) {
	var items []any
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		if err := json.Unmarshal([]byte(strings.ReplaceAll(raw, "'", `"`)), &items); err != nil {
			return nil, false
		}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		switch v := it.(type) {
		case string:
			out = append(out, v)
		case nil:
			out = append(out, "")
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out, true
}
