package kql

import "strings"

// Join keywords of the query grammar.
const (
	keywordAnd = "AND"
	keywordOr  = "OR"
)

// word is a run of input between unescaped whitespace. depth is the
// parenthesis depth at the first character of the word.
type word struct {
	Literal string
	Depth   int
}

// lexer splits a query string into words. Backslash escapes and double
// quoted sections never end a word and never change the depth.
type lexer struct {
	input        string
	position     int
	readPosition int
	ch           byte
	depth        int
	quoted       bool
}

func newLexer(input string) *lexer {
	l := &lexer{input: input}
	l.readChar()
	return l
}

func (l *lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
	} else {
		l.ch = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
}

func (l *lexer) atEnd() bool {
	return l.position >= len(l.input)
}

func (l *lexer) skipWhitespace() {
	for !l.atEnd() && isSpace(l.ch) {
		l.readChar()
	}
}

// nextWord returns the next word, or false at the end of input.
func (l *lexer) nextWord() (word, bool) {
	l.skipWhitespace()
	if l.atEnd() {
		return word{}, false
	}

	w := word{Depth: l.depth}
	start := l.position
	for !l.atEnd() {
		if !l.quoted && isSpace(l.ch) {
			break
		}
		switch l.ch {
		case '\\':
			// keep the backslash and the escaped byte together
			l.readChar()
			if l.atEnd() {
				continue
			}
		case '"':
			l.quoted = !l.quoted
		case '(':
			if !l.quoted {
				l.depth++
			}
		case ')':
			if !l.quoted && l.depth > 0 {
				l.depth--
			}
		}
		l.readChar()
	}
	w.Literal = l.input[start:l.position]
	return w, true
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

// splitClauses splits input on any of the given keywords where they stand
// alone at parenthesis depth zero. Words inside a clause are joined by a
// single space. Empty clauses are dropped.
func splitClauses(input string, keywords ...string) []string {
	var clauses []string
	var current []string

	flush := func() {
		if len(current) > 0 {
			clauses = append(clauses, strings.Join(current, " "))
			current = current[:0]
		}
	}

	l := newLexer(input)
	for {
		w, ok := l.nextWord()
		if !ok {
			break
		}
		if w.Depth == 0 && isKeyword(w.Literal, keywords) {
			flush()
			continue
		}
		current = append(current, w.Literal)
	}
	flush()
	return clauses
}

func isKeyword(literal string, keywords []string) bool {
	for _, k := range keywords {
		if literal == k {
			return true
		}
	}
	return false
}

// unwrap removes one pair of parentheses enclosing the whole clause. It
// reports false when the first opening parenthesis closes before the end.
func unwrap(clause string) (string, bool) {
	if len(clause) < 2 || clause[0] != '(' || clause[len(clause)-1] != ')' {
		return clause, false
	}

	depth := 0
	quoted := false
	for i := 0; i < len(clause); i++ {
		switch clause[i] {
		case '\\':
			i++
		case '"':
			quoted = !quoted
		case '(':
			if !quoted {
				depth++
			}
		case ')':
			if quoted {
				continue
			}
			depth--
			if depth == 0 {
				if i != len(clause)-1 {
					return clause, false
				}
				return strings.TrimSpace(clause[1 : len(clause)-1]), true
			}
		}
	}
	return clause, false
}

// cutField splits a clause at its first unescaped, unquoted colon.
func cutField(clause string) (field, value string, ok bool) {
	quoted := false
	for i := 0; i < len(clause); i++ {
		switch clause[i] {
		case '\\':
			i++
		case '"':
			quoted = !quoted
		case ':':
			if !quoted {
				return clause[:i], clause[i+1:], true
			}
		}
	}
	return clause, "", false
}
