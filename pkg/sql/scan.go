package sql

import "strings"

// byteKind classifies one byte of query text.
type byteKind int

const (
	kindCode byteKind = iota
	kindLiteral
	kindComment
)

// scan calls visit for every byte of query with its parenthesis nesting depth and kind.
// The opening quote of a literal, quoted identifier or dollar-quoted string is code; its
// body and closing delimiter are literal. An opening parenthesis is reported at the depth
// it opens from. Returning false stops the scan.
//
// Literal rules are PostgreSQL's with standard_conforming_strings on:
//   - a doubled quote inside '...' or "..." is part of the literal;
//   - a backslash escapes the next byte only inside E'...' strings;
//   - $tag$...$tag$ bodies are opaque, tag being empty or an identifier;
//   - block comments nest.
func scan(query string, visit func(i, depth int, kind byteKind) bool) {
	depth := 0
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'' || c == '"':
			if !visit(i, depth, kindCode) {
				return
			}
			escapes := c == '\'' && isEscapeStringPrefix(query, i)
			end := closingQuote(query, i+1, c, escapes)
			for j := i + 1; j < end; j++ {
				if !visit(j, depth, kindLiteral) {
					return
				}
			}
			i = end - 1
		case c == '$' && (i == 0 || !isIdentByte(query[i-1])) && dollarTag(query, i) != "":
			tag := dollarTag(query, i)
			if !visit(i, depth, kindCode) {
				return
			}
			end := len(query)
			if k := strings.Index(query[i+len(tag):], tag); k >= 0 {
				end = i + len(tag) + k + len(tag)
			}
			for j := i + 1; j < end; j++ {
				if !visit(j, depth, kindLiteral) {
					return
				}
			}
			i = end - 1
		case c == '-' && i+1 < len(query) && query[i+1] == '-':
			end := strings.IndexByte(query[i:], '\n')
			if end < 0 {
				end = len(query)
			} else {
				end += i
			}
			for j := i; j < end; j++ {
				if !visit(j, depth, kindComment) {
					return
				}
			}
			i = end - 1
		case c == '/' && i+1 < len(query) && query[i+1] == '*':
			end := closingBlockComment(query, i)
			for j := i; j < end; j++ {
				if !visit(j, depth, kindComment) {
					return
				}
			}
			i = end - 1
		case c == '(':
			if !visit(i, depth, kindCode) {
				return
			}
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
			if !visit(i, depth, kindCode) {
				return
			}
		default:
			if !visit(i, depth, kindCode) {
				return
			}
		}
	}
}

// isEscapeStringPrefix reports whether the quote at i opens an E'...' string.
func isEscapeStringPrefix(query string, i int) bool {
	if i == 0 || (query[i-1] != 'E' && query[i-1] != 'e') {
		return false
	}
	return i == 1 || !isIdentByte(query[i-2])
}

// closingQuote returns the offset just past the quote closing a literal whose body starts
// at from, or len(query) when it is unterminated.
func closingQuote(query string, from int, quote byte, escapes bool) int {
	for j := from; j < len(query); j++ {
		switch {
		case escapes && query[j] == '\\':
			j++
		case query[j] == quote:
			if j+1 < len(query) && query[j+1] == quote {
				j++
				continue
			}
			return j + 1
		}
	}
	return len(query)
}

// dollarTag returns the $tag$ delimiter starting at i, or "".
func dollarTag(query string, i int) string {
	j := i + 1
	for j < len(query) && query[j] != '$' {
		c := query[j]
		if !isIdentByte(c) || (j == i+1 && c >= '0' && c <= '9') {
			return ""
		}
		j++
	}
	if j >= len(query) {
		return ""
	}
	return query[i : j+1]
}

// closingBlockComment returns the offset just past the */ closing the comment opened at
// i, honoring nesting, or len(query).
func closingBlockComment(query string, i int) int {
	nesting := 0
	for j := i; j+1 < len(query); j++ {
		switch {
		case query[j] == '/' && query[j+1] == '*':
			nesting++
			j++
		case query[j] == '*' && query[j+1] == '/':
			nesting--
			j++
			if nesting == 0 {
				return j + 1
			}
		}
	}
	return len(query)
}

// walkCode calls visit for every code byte of query; see scan.
func walkCode(query string, visit func(i, depth int) bool) {
	scan(query, func(i, depth int, kind byteKind) bool {
		if kind != kindCode {
			return true
		}
		return visit(i, depth)
	})
}

// CodeEnd returns the offset just past the last byte of query that is neither whitespace
// nor comment. Text from there on is trailing comments and whitespace.
func CodeEnd(query string) int {
	end := 0
	scan(query, func(i, _ int, kind byteKind) bool {
		if kind != kindComment && !isSpace(query[i]) {
			end = i + 1
		}
		return true
	})
	return end
}

// codeMask marks which bytes of query are code rather than literal or comment text.
func codeMask(query string) []bool {
	mask := make([]bool, len(query))
	walkCode(query, func(i, _ int) bool {
		mask[i] = true
		return true
	})
	return mask
}

// IsCode reports whether byte i of query is outside literals and comments. Opening
// quotes and the first $ of a dollar-quote delimiter count as code.
func IsCode(query string, i int) bool {
	if i < 0 || i >= len(query) {
		return false
	}
	found := false
	walkCode(query, func(j, _ int) bool {
		if j == i {
			found = true
		}
		return j < i
	})
	return found
}

// MatchingParen returns the index of the parenthesis closing the one at open, or -1.
func MatchingParen(query string, open int) int {
	if open < 0 || open >= len(query) || query[open] != '(' {
		return -1
	}
	closing := -1
	target := -1
	walkCode(query, func(i, depth int) bool {
		switch {
		case i == open:
			target = depth
		case target >= 0 && i > open && query[i] == ')' && depth == target:
			closing = i
			return false
		}
		return true
	})
	return closing
}

// FindTopLevelKeyword returns the byte offset of the first keyword at or after from that
// appears outside literals, comments and parentheses, and which keyword matched.
// Multi-word keywords such as "GROUP BY" match across any run of whitespace.
// It returns -1 and "" when none is found.
func FindTopLevelKeyword(query string, from int, keywords ...string) (int, string) {
	pos, found := -1, ""
	walkCode(query, func(i, depth int) bool {
		if i < from || depth != 0 || !isWordBoundary(query, i) {
			return true
		}
		for _, kw := range keywords {
			if matchKeyword(query, i, kw) > 0 {
				pos, found = i, kw
				return false
			}
		}
		return true
	})
	return pos, found
}

// matchKeyword returns the length of keyword's match at offset i, or 0.
func matchKeyword(query string, i int, keyword string) int {
	pos := i
	for wi, word := range strings.Fields(keyword) {
		if wi > 0 {
			start := pos
			for pos < len(query) && isSpace(query[pos]) {
				pos++
			}
			if pos == start {
				return 0
			}
		}
		if pos+len(word) > len(query) || !strings.EqualFold(query[pos:pos+len(word)], word) {
			return 0
		}
		pos += len(word)
	}
	if pos < len(query) && isIdentByte(query[pos]) {
		return 0
	}
	return pos - i
}

func isWordBoundary(query string, i int) bool {
	return i == 0 || !isIdentByte(query[i-1])
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}
