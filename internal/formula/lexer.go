// Package formula tokenizes formula expressions, builds the per-table
// formula index from computed-metric definitions, and extracts the sibling
// columns a formula refers to.
package formula

import (
	"fmt"
	"strings"
)

// TokenType identifies the kind of a formula token.
type TokenType int

// Token types.
const (
	TokenIdent       TokenType = iota // column, function or keyword
	TokenNumber                       // 42, 0.5, 1e-9
	TokenString                       // 'BUY' or "BUY"
	TokenPlaceholder                  // {interval}
	TokenSymbol                       // operators and punctuation
	TokenEOF
)

func (t TokenType) String() string {
	switch t {
	case TokenIdent:
		return "IDENT"
	case TokenNumber:
		return "NUMBER"
	case TokenString:
		return "STRING"
	case TokenPlaceholder:
		return "PLACEHOLDER"
	case TokenSymbol:
		return "SYMBOL"
	case TokenEOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}

// Position is a 1-based location in a formula.
type Position struct {
	Line   int
	Column int
}

// Token is one lexical token.
type Token struct {
	Type  TokenType
	Value string
	Pos   Position
}

// LexError reports malformed formula text.
type LexError struct {
	Pos Position
	Msg string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("%d:%d: %s", e.Pos.Line, e.Pos.Column, e.Msg)
}

// Lexer splits formula text into tokens.
type Lexer struct {
	input     string
	pos       int
	line      int
	col       int
	startLine int
	startCol  int
}

// NewLexer creates a lexer over input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input, line: 1, col: 1}
}

// Tokenize returns every token up to EOF. On error the tokens read so far
// are returned with it.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.nextToken()
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}

func (l *Lexer) nextToken() (Token, error) {
	l.skipSpaceAndComments()
	l.markStart()

	if l.pos >= len(l.input) {
		return l.token(TokenEOF, ""), nil
	}

	c := l.input[l.pos]
	switch {
	case c == '\'' || c == '"':
		return l.scanString(c)
	case c == '`':
		return l.scanQuotedIdent()
	case c == '{':
		if tok, ok := l.scanPlaceholder(); ok {
			return tok, nil
		}
	case isWordByte(c):
		return l.scanWord(), nil
	}

	l.advance()
	return l.token(TokenSymbol, string(c)), nil
}

func (l *Lexer) scanString(quote byte) (Token, error) {
	l.advance()
	var b strings.Builder
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c == quote {
			// A doubled quote is an escaped quote.
			if l.pos+1 < len(l.input) && l.input[l.pos+1] == quote {
				b.WriteByte(quote)
				l.advance()
				l.advance()
				continue
			}
			l.advance()
			return l.token(TokenString, b.String()), nil
		}
		if c == '\\' && l.pos+1 < len(l.input) {
			l.advance()
			c = l.input[l.pos]
		}
		b.WriteByte(c)
		l.advance()
	}
	return Token{}, &LexError{Pos: l.startPosition(), Msg: "unterminated string literal"}
}

func (l *Lexer) scanQuotedIdent() (Token, error) {
	l.advance()
	start := l.pos
	for l.pos < len(l.input) {
		if l.input[l.pos] == '`' {
			val := l.input[start:l.pos]
			l.advance()
			return l.token(TokenIdent, val), nil
		}
		l.advance()
	}
	return Token{}, &LexError{Pos: l.startPosition(), Msg: "unterminated quoted identifier"}
}

// scanPlaceholder reads {name}. Anything else leaves the lexer untouched.
func (l *Lexer) scanPlaceholder() (Token, bool) {
	end := strings.IndexByte(l.input[l.pos:], '}')
	if end < 2 {
		return Token{}, false
	}
	name := strings.TrimSpace(l.input[l.pos+1 : l.pos+end])
	if name == "" || strings.IndexFunc(name, func(r rune) bool { return r > 127 || !isWordByte(byte(r)) }) >= 0 {
		return Token{}, false
	}
	for i := 0; i <= end; i++ {
		l.advance()
	}
	return l.token(TokenPlaceholder, name), true
}

// scanWord reads a run of identifier characters. Runs made only of digits,
// with an optional fraction and exponent, are numbers.
func (l *Lexer) scanWord() Token {
	start := l.pos
	for l.pos < len(l.input) && isWordByte(l.input[l.pos]) {
		l.advance()
	}
	word := l.input[start:l.pos]

	if isDigits(word) {
		if l.peekByte(0) == '.' && isDigit(l.peekByte(1)) {
			l.advance()
			for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
				l.advance()
			}
		}
		return l.token(TokenNumber, l.input[start:l.pos])
	}
	if isScientific(word) {
		return l.token(TokenNumber, word)
	}
	return l.token(TokenIdent, word)
}

func (l *Lexer) skipSpaceAndComments() {
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.advance()
		case c == '-' && l.peekByte(1) == '-':
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func (l *Lexer) peekByte(offset int) byte {
	if l.pos+offset >= len(l.input) {
		return 0
	}
	return l.input[l.pos+offset]
}

func (l *Lexer) advance() {
	if l.pos >= len(l.input) {
		return
	}
	if l.input[l.pos] == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	l.pos++
}

func (l *Lexer) markStart() {
	l.startLine = l.line
	l.startCol = l.col
}

func (l *Lexer) startPosition() Position {
	return Position{Line: l.startLine, Column: l.startCol}
}

func (l *Lexer) token(tt TokenType, value string) Token {
	return Token{Type: tt, Value: value, Pos: l.startPosition()}
}

func isWordByte(c byte) bool {
	return c == '_' || isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

// isScientific matches 1e9 or 2E10. Signed exponents lex as separate tokens.
func isScientific(s string) bool {
	i := strings.IndexAny(s, "eE")
	return i > 0 && i < len(s)-1 && isDigits(s[:i]) && isDigits(s[i+1:])
}
