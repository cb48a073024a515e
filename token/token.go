package token

import "strconv"

type TokenType int

const (
	ILLEGAL = iota
	EOF
	COMMENT

	literal_beg
	// Identifiers + literals
	IDENT // x, out, sin, F32, ...
	INT   // 1343456
	FLOAT // 123.45
	literal_end

	operator_beg
	// Operators and delimiters
	ASSIGN // =

	ADD // +
	SUB // -
	MUL // *
	QUO // /
	REM // %

	AND // &
	XOR // ^
	SHL // <<
	SHR // >>

	LPAREN // (
	LBRACK // [
	COMMA  // ,

	RPAREN // )
	RBRACK // ]
	operator_end

	NEWLINE
)

var tokens = [...]string{
	ILLEGAL: "ILLEGAL",

	EOF:     "EOF",
	COMMENT: "COMMENT",

	IDENT: "IDENT",
	INT:   "INT",
	FLOAT: "FLOAT",

	ASSIGN: "=",

	ADD: "+",
	SUB: "-",
	MUL: "*",
	QUO: "/",
	REM: "%",

	AND: "&",
	XOR: "^",
	SHL: "<<",
	SHR: ">>",

	LPAREN: "(",
	LBRACK: "[",
	COMMA:  ",",

	RPAREN: ")",
	RBRACK: "]",

	NEWLINE: "\n",
}

type Token struct {
	Type    TokenType
	Literal string
}

func (t Token) IsOperator() bool {
	return operator_beg < t.Type && operator_end > t.Type
}

func (t Token) String() string {
	return t.Type.String()
}

func (tokenType TokenType) String() string {
	s := ""
	if 0 <= tokenType && tokenType < TokenType(len(tokens)) {
		s = tokens[tokenType]
	}

	if s == "" {
		s = "token(" + strconv.Itoa(int(tokenType)) + ")"
	}

	return s
}

// CompileError is a user-facing error attributed to a source token.
type CompileError struct {
	Token Token
	Msg   string
}

func (ce *CompileError) Error() string {
	return ce.Msg
}
