package kql

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// metaChars are the characters of the query grammar that need a backslash
// to be read literally. Whitespace is handled separately.
const metaChars = `+-=&|><!(){}[]^"~:\/`

// EscapeToken makes value safe to use as the value part of a clause.
// The wildcards * and ? are never escaped, so a value that contains them
// keeps its wildcard meaning. A literal * or ? cannot be expressed.
func EscapeToken(value string) string {
	var b strings.Builder
	b.Grow(len(value) + 4)
	for i := 0; i < len(value); {
		r, size := utf8.DecodeRuneInString(value[i:])
		if r != utf8.RuneError && (strings.ContainsRune(metaChars, r) || unicode.IsSpace(r)) {
			b.WriteByte('\\')
		}
		// invalid bytes are copied through as they are
		b.WriteString(value[i : i+size])
		i += size
	}
	return b.String()
}

// UnescapeToken removes the backslashes added by EscapeToken. A trailing
// lone backslash is kept.
func UnescapeToken(value string) string {
	if !strings.ContainsRune(value, '\\') {
		return value
	}
	var b strings.Builder
	b.Grow(len(value))
	escaped := false
	for i := 0; i < len(value); {
		_, size := utf8.DecodeRuneInString(value[i:])
		if !escaped && value[i] == '\\' {
			escaped = true
			i++
			continue
		}
		b.WriteString(value[i : i+size])
		escaped = false
		i += size
	}
	if escaped {
		b.WriteByte('\\')
	}
	return b.String()
}

const isoDate = "2006-01-02"

// dateLayouts are tried in order by NormalizeDate.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"2006/1/2",
	"2006-1-2",
	"02.01.2006",
	"2.1.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"20060102",
	time.RFC1123,
	time.RFC1123Z,
}

// NormalizeDate returns value as YYYY-MM-DD. Values that already have that
// shape, and values that cannot be read as a date, are returned unchanged.
func NormalizeDate(value string) string {
	v := strings.TrimSpace(value)
	if isISODate(v) {
		return v
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format(isoDate)
		}
	}
	return value
}

func isISODate(v string) bool {
	if len(v) != len(isoDate) {
		return false
	}
	for i := 0; i < len(v); i++ {
		switch i {
		case 4, 7:
			if v[i] != '-' {
				return false
			}
		default:
			if v[i] < '0' || v[i] > '9' {
				return false
			}
		}
	}
	return true
}

var embeddingReplacer = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// EscapeForEmbedding escapes the five predefined XML entities so a query
// string can be placed inside an XML request body.
func EscapeForEmbedding(value string) string {
	return embeddingReplacer.Replace(value)
}
