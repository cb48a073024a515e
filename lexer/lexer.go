package lexer

import "github.com/thiremani/tensorc/token"

type Lexer struct {
	input        []rune
	position     int  // current position in input (points to current rune)
	readPosition int  // current reading position in input (after current rune)
	curr         rune // current rune under examination
}

func New(input string) *Lexer {
	l := &Lexer{input: []rune(input)}
	l.readRune()
	return l
}

func (l *Lexer) NextToken() token.Token {
	var tok token.Token

	l.skipWhitespace()
	l.skipComment()

	switch l.curr {
	case '=':
		tok = newToken(token.ASSIGN, l.curr)
	case '+':
		tok = newToken(token.ADD, l.curr)
	case '-':
		tok = newToken(token.SUB, l.curr)
	case '*':
		tok = newToken(token.MUL, l.curr)
	case '/':
		tok = newToken(token.QUO, l.curr)
	case '%':
		tok = newToken(token.REM, l.curr)
	case '&':
		tok = newToken(token.AND, l.curr)
	case '^':
		tok = newToken(token.XOR, l.curr)
	case '<':
		if l.peekRune() == '<' {
			l.readRune()
			tok = token.Token{Type: token.SHL, Literal: "<<"}
		} else {
			tok = newToken(token.ILLEGAL, l.curr)
		}
	case '>':
		if l.peekRune() == '>' {
			l.readRune()
			tok = token.Token{Type: token.SHR, Literal: ">>"}
		} else {
			tok = newToken(token.ILLEGAL, l.curr)
		}
	case ',':
		tok = newToken(token.COMMA, l.curr)
	case '(':
		tok = newToken(token.LPAREN, l.curr)
	case ')':
		tok = newToken(token.RPAREN, l.curr)
	case '[':
		tok = newToken(token.LBRACK, l.curr)
	case ']':
		tok = newToken(token.RBRACK, l.curr)
	case '\n':
		tok = token.Token{Type: token.NEWLINE, Literal: "\n"}
	case 0:
		tok.Literal = ""
		tok.Type = token.EOF
	default:
		if isLetter(l.curr) {
			tok.Literal = l.readIdentifier()
			tok.Type = token.IDENT
			return tok
		} else if isDigit(l.curr) {
			tok.Type, tok.Literal = l.readNumber()
			return tok
		} else {
			tok = newToken(token.ILLEGAL, l.curr)
		}
	}

	l.readRune()
	return tok
}

func (l *Lexer) skipWhitespace() {
	for l.curr == ' ' || l.curr == '\t' || l.curr == '\r' {
		l.readRune()
	}
}

// skipComment consumes a '#' comment up to (not including) the newline, so
// the statement terminator still comes through.
func (l *Lexer) skipComment() {
	if l.curr != '#' {
		return
	}
	for l.curr != '\n' && l.curr != 0 {
		l.readRune()
	}
}

func (l *Lexer) readRune() {
	if l.readPosition >= len(l.input) {
		l.curr = 0
	} else {
		l.curr = l.input[l.readPosition]
	}
	l.position = l.readPosition
	l.readPosition++
}

func (l *Lexer) peekRune() rune {
	if l.readPosition >= len(l.input) {
		return 0
	}
	return l.input[l.readPosition]
}

func (l *Lexer) readIdentifier() string {
	position := l.position
	for isLetter(l.curr) || isDigit(l.curr) {
		l.readRune()
	}
	return string(l.input[position:l.position])
}

func (l *Lexer) readNumber() (token.TokenType, string) {
	position := l.position
	tokType := token.TokenType(token.INT)
	for isDigit(l.curr) {
		l.readRune()
	}
	if l.curr == '.' && isDigit(l.peekRune()) {
		tokType = token.FLOAT
		l.readRune()
		for isDigit(l.curr) {
			l.readRune()
		}
	}
	return tokType, string(l.input[position:l.position])
}

func isLetter(ch rune) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch rune) bool {
	return '0' <= ch && ch <= '9'
}

func newToken(tokenType token.TokenType, curr rune) token.Token {
	return token.Token{Type: tokenType, Literal: string(curr)}
}
