package serializer

import (
	"fmt"
	"strings"
	"unicode"
)

// Convention defines how Go field names map to element names.
//
// Explicit `bson` tags always take precedence.
type Convention int

const (
	// Lower lowercases the field name, like the official driver does.
	Lower Convention = iota
	// SnakeCase converts field name to snake_case.
	SnakeCase
	// CamelCase converts field name to lowerCamelCase.
	CamelCase
	// AsIs keeps the field name unchanged.
	AsIs
)

// String implements fmt.Stringer.
func (c Convention) String() string {
	switch c {
	case Lower:
		return "lower"
	case SnakeCase:
		return "snake_case"
	case CamelCase:
		return "camelCase"
	case AsIs:
		return "as_is"
	default:
		return fmt.Sprintf("<unknown convention %d>", int(c))
	}
}

// ElementName returns element name for given Go field name.
func (c Convention) ElementName(field string) string {
	switch c {
	case SnakeCase:
		return snakeCase(field)
	case CamelCase:
		return camelCase(field)
	case AsIs:
		return field
	default:
		return strings.ToLower(field)
	}
}

func snakeCase(s string) string {
	const delim = '_'
	s = strings.TrimSpace(s)
	for _, c := range s {
		if isUpper(c) {
			goto slow
		}
	}
	return s

slow:
	var sb strings.Builder
	sb.Grow(len(s) + 8)

	var prev, curr rune
	for i, next := range s {
		switch {
		case isDelim(curr):
			if !isDelim(prev) {
				sb.WriteByte(delim)
			}
		case isUpper(curr):
			if isLower(prev) ||
				(isUpper(prev) && isLower(next)) ||
				(isDigit(prev) && isAlpha(next)) {
				sb.WriteByte(delim)
			}
			sb.WriteRune(unicode.ToLower(curr))
		case i != 0:
			sb.WriteRune(unicode.ToLower(curr))
		}
		prev = curr
		curr = next
	}

	if s != "" {
		if isUpper(curr) && isLower(prev) {
			sb.WriteByte(delim)
		}
		sb.WriteRune(unicode.ToLower(curr))
	}

	return sb.String()
}

// camelCase lowercases the leading run of upper-case letters.
//
// The last letter of the run is kept upper-case if it starts a new word,
// so "HTTPServer" becomes "httpServer".
func camelCase(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	for i, c := range runes {
		if !isUpper(c) {
			break
		}
		if i > 0 && i+1 < len(runes) && isLower(runes[i+1]) {
			break
		}
		runes[i] = unicode.ToLower(c)
	}
	return string(runes)
}

func isDelim(ch rune) bool {
	return unicode.IsSpace(ch) || ch == '_' || ch == '-'
}

func isAlpha(ch rune) bool {
	return isUpper(ch) || isLower(ch)
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func isUpper(ch rune) bool {
	return ch >= 'A' && ch <= 'Z'
}

func isLower(ch rune) bool {
	return ch >= 'a' && ch <= 'z'
}
