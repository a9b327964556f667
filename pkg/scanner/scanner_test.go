package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/tlox/pkg/token"
)

func tokenKinds(t *testing.T, src string) []token.Kind {
	t.Helper()
	s := New(src)
	var kinds []token.Kind
	for {
		tok := s.Next()
		kinds = append(kinds, tok.Kind)
		if tok.Kind == token.EOF {
			return kinds
		}
	}
}

func TestScansPunctuationAndOperators(t *testing.T) {
	kinds := tokenKinds(t, "( ) { } [ ] , . ; - + * / % ^ ~ ! != = == < <= << > >= >>")
	require.Equal(t, []token.Kind{
		token.LPAREN, token.RPAREN, token.LBRACE, token.RBRACE,
		token.LBRACKET, token.RBRACKET, token.COMMA, token.DOT, token.SEMI,
		token.MINUS, token.PLUS, token.STAR, token.SLASH, token.PERCENT,
		token.CARET, token.TILDE, token.BANG, token.BANG_EQUAL, token.EQUAL,
		token.EQUAL_EQUAL, token.LESS, token.LESS_EQUAL, token.SHL,
		token.GREATER, token.GREATER_EQUAL, token.SHR, token.EOF,
	}, kinds)
}

func TestScansKeywordsAndIdentifiers(t *testing.T) {
	kinds := tokenKinds(t, "class fun hello")
	assert.Equal(t, []token.Kind{token.CLASS, token.FUN, token.IDENTIFIER, token.EOF}, kinds)
}

func TestScansNumberAndString(t *testing.T) {
	s := New(`123 "hi"`)
	num := s.Next()
	assert.Equal(t, token.NUMBER, num.Kind)
	assert.Equal(t, "123", num.Lexeme)

	str := s.Next()
	assert.Equal(t, token.STRING, str.Kind)
	assert.Equal(t, `"hi"`, str.Lexeme)
}

func TestSkipsLineAndBlockComments(t *testing.T) {
	kinds := tokenKinds(t, "1 // a comment\n/* block\ncomment */ 2")
	assert.Equal(t, []token.Kind{token.NUMBER, token.NUMBER, token.EOF}, kinds)
}

func TestUnterminatedStringIsErrorToken(t *testing.T) {
	s := New(`"never closed`)
	tok := s.Next()
	assert.Equal(t, token.ERROR, tok.Kind)
}

func TestLineNumbersAdvanceAcrossNewlines(t *testing.T) {
	s := New("1\n2\n3")
	var lines []int
	for {
		tok := s.Next()
		if tok.Kind == token.EOF {
			break
		}
		lines = append(lines, tok.Line)
	}
	assert.Equal(t, []int{1, 2, 3}, lines)
}

func TestUnescapeHandlesCommonSequences(t *testing.T) {
	assert.Equal(t, "a\nb\tc", Unescape(`"a\nb\tc"`))
	assert.Equal(t, `"quoted"`, Unescape(`"\"quoted\""`))
}
