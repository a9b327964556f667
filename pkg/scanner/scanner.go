// Package scanner implements the lexical analyzer for the language.
//
// The scanner is an external collaborator (spec §1): the compiler only
// depends on the token stream it produces, not on how it is produced. It
// scans one token at a time on demand, which lets the compiler interleave
// scanning and parsing in its single forward pass.
package scanner

import (
	"strings"

	"github.com/kristofer/tlox/pkg/token"
)

// Scanner turns source text into a stream of tokens.
type Scanner struct {
	src     string
	start   int // start of the token being scanned
	current int // current read position
	line    int
}

// New creates a Scanner over src.
func New(src string) *Scanner {
	return &Scanner{src: src, line: 1}
}

// Next returns the next token in the stream, or an EOF token once the
// source is exhausted.
func (s *Scanner) Next() token.Token {
	s.skipWhitespaceAndComments()
	s.start = s.current

	if s.atEnd() {
		return s.make(token.EOF)
	}

	c := s.advance()

	if isAlpha(c) {
		return s.identifier()
	}
	if isDigit(c) {
		return s.number()
	}

	switch c {
	case '(':
		return s.make(token.LPAREN)
	case ')':
		return s.make(token.RPAREN)
	case '{':
		return s.make(token.LBRACE)
	case '}':
		return s.make(token.RBRACE)
	case '[':
		return s.make(token.LBRACKET)
	case ']':
		return s.make(token.RBRACKET)
	case ',':
		return s.make(token.COMMA)
	case '.':
		return s.make(token.DOT)
	case ';':
		return s.make(token.SEMI)
	case '-':
		return s.make(token.MINUS)
	case '+':
		return s.make(token.PLUS)
	case '*':
		return s.make(token.STAR)
	case '/':
		return s.make(token.SLASH)
	case '%':
		return s.make(token.PERCENT)
	case '^':
		return s.make(token.CARET)
	case '~':
		return s.make(token.TILDE)
	case '!':
		if s.match('=') {
			return s.make(token.BANG_EQUAL)
		}
		return s.make(token.BANG)
	case '=':
		if s.match('=') {
			return s.make(token.EQUAL_EQUAL)
		}
		return s.make(token.EQUAL)
	case '<':
		if s.match('=') {
			return s.make(token.LESS_EQUAL)
		}
		if s.match('<') {
			return s.make(token.SHL)
		}
		return s.make(token.LESS)
	case '>':
		if s.match('=') {
			return s.make(token.GREATER_EQUAL)
		}
		if s.match('>') {
			return s.make(token.SHR)
		}
		return s.make(token.GREATER)
	case '"':
		return s.string()
	}

	return s.errorToken("Unexpected character.")
}

func (s *Scanner) atEnd() bool { return s.current >= len(s.src) }

func (s *Scanner) advance() byte {
	c := s.src[s.current]
	s.current++
	return c
}

func (s *Scanner) peek() byte {
	if s.atEnd() {
		return 0
	}
	return s.src[s.current]
}

func (s *Scanner) peekNext() byte {
	if s.current+1 >= len(s.src) {
		return 0
	}
	return s.src[s.current+1]
}

func (s *Scanner) match(expected byte) bool {
	if s.atEnd() || s.src[s.current] != expected {
		return false
	}
	s.current++
	return true
}

func (s *Scanner) skipWhitespaceAndComments() {
	for {
		switch s.peek() {
		case ' ', '\t', '\r':
			s.advance()
		case '\n':
			s.line++
			s.advance()
		case '/':
			if s.peekNext() == '/' {
				for s.peek() != '\n' && !s.atEnd() {
					s.advance()
				}
			} else if s.peekNext() == '*' {
				s.advance()
				s.advance()
				for !(s.peek() == '*' && s.peekNext() == '/') && !s.atEnd() {
					if s.peek() == '\n' {
						s.line++
					}
					s.advance()
				}
				if !s.atEnd() {
					s.advance()
					s.advance()
				}
			} else {
				return
			}
		default:
			return
		}
	}
}

func (s *Scanner) string() token.Token {
	for s.peek() != '"' && !s.atEnd() {
		if s.peek() == '\n' {
			s.line++
		}
		if s.peek() == '\\' && s.peekNext() != 0 {
			s.advance()
		}
		s.advance()
	}
	if s.atEnd() {
		return s.errorToken("Unterminated string.")
	}
	s.advance() // closing quote
	return s.make(token.STRING)
}

func (s *Scanner) number() token.Token {
	// Hex and binary literals: 0x... / 0b...
	if s.src[s.start] == '0' && (s.peek() == 'x' || s.peek() == 'X') {
		s.advance()
		for isHexDigit(s.peek()) {
			s.advance()
		}
		return s.make(token.NUMBER)
	}
	if s.src[s.start] == '0' && (s.peek() == 'b' || s.peek() == 'B') {
		s.advance()
		for s.peek() == '0' || s.peek() == '1' {
			s.advance()
		}
		return s.make(token.NUMBER)
	}

	for isDigit(s.peek()) {
		s.advance()
	}

	if s.peek() == '.' && isDigit(s.peekNext()) {
		s.advance()
		for isDigit(s.peek()) {
			s.advance()
		}
	}

	if s.peek() == 'e' || s.peek() == 'E' {
		save := s.current
		s.advance()
		if s.peek() == '+' || s.peek() == '-' {
			s.advance()
		}
		if isDigit(s.peek()) {
			for isDigit(s.peek()) {
				s.advance()
			}
		} else {
			s.current = save
		}
	}

	return s.make(token.NUMBER)
}

func (s *Scanner) identifier() token.Token {
	for isAlpha(s.peek()) || isDigit(s.peek()) {
		s.advance()
	}
	text := s.src[s.start:s.current]
	if kind, ok := token.Keyword(text); ok {
		return s.make(kind)
	}
	return s.make(token.IDENTIFIER)
}

func (s *Scanner) make(kind token.Kind) token.Token {
	return token.Token{Kind: kind, Lexeme: s.src[s.start:s.current], Line: s.line}
}

func (s *Scanner) errorToken(msg string) token.Token {
	return token.Token{Kind: token.ERROR, Lexeme: msg, Line: s.line}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isAlpha(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Unescape rewrites a scanned string lexeme's escape sequences at compile
// time (spec §4.3). lexeme includes the surrounding quotes.
func Unescape(lexeme string) string {
	body := lexeme
	if len(body) >= 2 {
		body = body[1 : len(body)-1]
	}
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' || i+1 >= len(body) {
			b.WriteByte(c)
			continue
		}
		i++
		switch body[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		case '"':
			b.WriteByte('"')
		case 'a':
			b.WriteByte('\a')
		case 'b':
			b.WriteByte('\b')
		case 'e':
			b.WriteByte(0x1b)
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		case 'x':
			if i+2 < len(body) && isHexDigit(body[i+1]) && isHexDigit(body[i+2]) {
				b.WriteByte(hexByte(body[i+1], body[i+2]))
				i += 2
			} else {
				b.WriteByte('\\')
				b.WriteByte('x')
			}
		default:
			// Unknown escape yields a literal backslash followed by the char.
			b.WriteByte('\\')
			b.WriteByte(body[i])
		}
	}
	return b.String()
}

func hexByte(hi, lo byte) byte {
	return hexNibble(hi)<<4 | hexNibble(lo)
}

func hexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}
