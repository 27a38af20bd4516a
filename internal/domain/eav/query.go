package eav

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// writeKeywords are rejected anywhere in a read-only statement unless they
// name a function call, as REPLACE(...) and MySQL's INSERT(...) do.
var writeKeywords = map[string]bool{
	"INSERT":  true,
	"UPDATE":  true,
	"DELETE":  true,
	"REPLACE": true,
	"MERGE":   true,
	"UPSERT":  true,
	"INTO":    true,
	"ATTACH":  true,
	"DETACH":  true,
	"PRAGMA":  true,
}

var errStatementBreak = errors.New("multiple statements")

// lexMode selects how quoted text and comments are read. MySQL treats a
// backslash as an escape and "#" as a comment; SQLite does neither.
type lexMode struct {
	backslashEscapes bool
	hashComments     bool
}

var lexModes = []lexMode{
	{backslashEscapes: true, hashComments: true},
	{},
}

type sqlWord struct {
	text  string
	depth int
	call  bool
}

// CheckReadOnly accepts a single SELECT (or WITH ... SELECT) statement. A
// trailing semicolon is tolerated; anything after it is not. The statement
// must pass under both MySQL and SQLite lexing rules.
func CheckReadOnly(query string) (string, error) {
	trimmed := strings.TrimSpace(stripLeadingComments(query))
	trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	if trimmed == "" {
		return "", fmt.Errorf("%w: query is empty", ErrReadOnlyQuery)
	}

	words := strings.FieldsFunc(trimmed, func(r rune) bool {
		return unicode.IsSpace(r) || r == '('
	})
	if len(words) == 0 {
		return "", fmt.Errorf("%w: query has no statement", ErrReadOnlyQuery)
	}
	first := strings.ToUpper(words[0])
	if first != "SELECT" && first != "WITH" {
		return "", fmt.Errorf("%w: got %s", ErrReadOnlyQuery, first)
	}

	for _, mode := range lexModes {
		scanned, err := scanWords(trimmed, mode)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrReadOnlyQuery, err)
		}
		for _, word := range scanned {
			if writeKeywords[word.text] && !word.call {
				return "", fmt.Errorf("%w: %s is not allowed", ErrReadOnlyQuery, word.text)
			}
		}
	}
	return trimmed, nil
}

// LimitQuery appends LIMIT limit+1 to a statement without a top-level LIMIT
// so the server stops producing rows once truncation is known.
func LimitQuery(query string, limit int) string {
	if limit <= 0 {
		return query
	}
	words, err := scanWords(query, lexModes[0])
	if err != nil {
		return query
	}
	for _, word := range words {
		if word.depth == 0 && word.text == "LIMIT" {
			return query
		}
	}
	return query + "\nLIMIT " + strconv.Itoa(limit+1)
}

func stripLeadingComments(query string) string {
	rest := query
	for {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		switch {
		case strings.HasPrefix(rest, "--"), strings.HasPrefix(rest, "#"):
			idx := strings.IndexByte(rest, '\n')
			if idx < 0 {
				return ""
			}
			rest = rest[idx+1:]
		case strings.HasPrefix(rest, "/*"):
			idx := strings.Index(rest, "*/")
			if idx < 0 {
				return ""
			}
			rest = rest[idx+2:]
		default:
			return rest
		}
	}
}

// scanWords returns the bare words of query outside quoted text and
// comments, with their parenthesis depth. A semicolon, unterminated quote or
// comment, or unbalanced parenthesis is an error.
func scanWords(query string, mode lexMode) ([]sqlWord, error) {
	var words []sqlWord
	depth := 0
	for i := 0; i < len(query); {
		c := query[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			end, ok := skipQuoted(query, i, mode.backslashEscapes && c != '`')
			if !ok {
				return nil, errors.New("unterminated quoted text")
			}
			i = end
		case isLineComment(query[i:], mode):
			idx := strings.IndexByte(query[i:], '\n')
			if idx < 0 {
				i = len(query)
			} else {
				i += idx + 1
			}
		case strings.HasPrefix(query[i:], "/*"):
			idx := strings.Index(query[i+2:], "*/")
			if idx < 0 {
				return nil, errors.New("unterminated comment")
			}
			i += idx + 4
		case c == '(':
			depth++
			i++
		case c == ')':
			depth--
			if depth < 0 {
				return nil, errors.New("unbalanced parentheses")
			}
			i++
		case c == ';':
			return nil, errStatementBreak
		case isWordByte(c):
			start := i
			for i < len(query) && isWordByte(query[i]) {
				i++
			}
			next := i
			for next < len(query) && isSpaceByte(query[next]) {
				next++
			}
			words = append(words, sqlWord{
				text:  strings.ToUpper(query[start:i]),
				depth: depth,
				call:  next < len(query) && query[next] == '(',
			})
		default:
			i++
		}
	}
	if depth != 0 {
		return nil, errors.New("unbalanced parentheses")
	}
	return words, nil
}

// skipQuoted returns the index just past the quoted text opened at start.
// A doubled quote character stays inside the text.
func skipQuoted(query string, start int, backslashEscapes bool) (int, bool) {
	quote := query[start]
	for i := start + 1; i < len(query); i++ {
		switch query[i] {
		case '\\':
			if backslashEscapes {
				i++
			}
		case quote:
			if i+1 < len(query) && query[i+1] == quote {
				i++
				continue
			}
			return i + 1, true
		}
	}
	return 0, false
}

// isLineComment reports "--" comments for both dialects. MySQL only reads
// "--" as a comment when whitespace follows; the stricter reading is used
// for the MySQL pass so "1--1" keeps its trailing text visible.
func isLineComment(rest string, mode lexMode) bool {
	if mode.hashComments && strings.HasPrefix(rest, "#") {
		return true
	}
	if !strings.HasPrefix(rest, "--") {
		return false
	}
	if !mode.hashComments {
		return true
	}
	return len(rest) == 2 || isSpaceByte(rest[2])
}

func isWordByte(c byte) bool {
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}
