package parser

import (
	"fmt"
	"strconv"

	"github.com/thiremani/tensorc/ir"
	"github.com/thiremani/tensorc/lexer"
	"github.com/thiremani/tensorc/token"
	"github.com/thiremani/tensorc/types"
)

const (
	_ int = iota
	LOWEST
	SUM     // + - ^
	PRODUCT // * / % << >> &
	PREFIX  // -x
)

var precedences = map[token.TokenType]int{
	token.ADD: SUM,
	token.SUB: SUM,
	token.XOR: SUM,
	token.MUL: PRODUCT,
	token.QUO: PRODUCT,
	token.REM: PRODUCT,
	token.SHL: PRODUCT,
	token.SHR: PRODUCT,
	token.AND: PRODUCT,
}

var binaryOps = map[token.TokenType]ir.Op{
	token.ADD: ir.Add,
	token.SUB: ir.Sub,
	token.MUL: ir.Mul,
	token.QUO: ir.Div,
	token.REM: ir.Mod,
	token.AND: ir.And,
	token.XOR: ir.Xor,
	token.SHL: ir.Lshift,
	token.SHR: ir.Rshift,
}

// integer-only operators; on float operands they are a compile error
// (float remainder is the fmod intrinsic).
var intOnlyOps = map[ir.Op]bool{
	ir.Mod:    true,
	ir.And:    true,
	ir.Xor:    true,
	ir.Lshift: true,
	ir.Rshift: true,
}

var intrinsicOps = map[string]ir.IntrinsicOp{
	"sin":   ir.Sin,
	"cos":   ir.Cos,
	"tan":   ir.Tan,
	"asin":  ir.Asin,
	"acos":  ir.Acos,
	"atan":  ir.Atan,
	"atan2": ir.Atan2,
	"exp":   ir.Exp,
	"log":   ir.Log,
	"log2":  ir.Log2,
	"log10": ir.Log10,
	"sqrt":  ir.Sqrt,
	"fabs":  ir.Fabs,
	"floor": ir.Floor,
	"ceil":  ir.Ceil,
	"round": ir.Round,
	"trunc": ir.Trunc,
	"pow":   ir.Pow,
	"fmod":  ir.Fmod,
}

// Param is a kernel input: a scalar/vector value, or a buffer (a load base
// handle, addressed with name[index]).
type Param struct {
	Var    *ir.Var
	Buffer bool
}

// Output is one `name = expr` result of a kernel.
type Output struct {
	Name  string
	Token token.Token
	Expr  ir.Expr
}

// Kernel is one parsed kernel file: declared params plus named outputs.
type Kernel struct {
	Name    string
	Params  []*Param
	Outputs []*Output
}

type (
	prefixParseFn func() ir.Expr
	infixParseFn  func(ir.Expr) ir.Expr
)

type Parser struct {
	l      *lexer.Lexer
	errors []*token.CompileError

	curToken  token.Token
	peekToken token.Token

	prefixParseFns map[token.TokenType]prefixParseFn
	infixParseFns  map[token.TokenType]infixParseFn

	decls map[string]*Param
}

func New(l *lexer.Lexer) *Parser {
	p := &Parser{
		l:      l,
		errors: []*token.CompileError{},
		decls:  map[string]*Param{},
	}

	p.prefixParseFns = make(map[token.TokenType]prefixParseFn)
	p.registerPrefix(token.IDENT, p.parseIdentifier)
	p.registerPrefix(token.INT, p.parseIntegerLiteral)
	p.registerPrefix(token.FLOAT, p.parseFloatLiteral)
	p.registerPrefix(token.SUB, p.parsePrefixExpression)
	p.registerPrefix(token.LPAREN, p.parseGroupedExpression)

	p.infixParseFns = make(map[token.TokenType]infixParseFn)
	for tok := range binaryOps {
		p.registerInfix(tok, p.parseInfixExpression)
	}

	// Read two tokens, so curToken and peekToken are both set
	p.nextToken()
	p.nextToken()

	return p
}

func (p *Parser) Errors() []*token.CompileError {
	return p.errors
}

func (p *Parser) errorf(tok token.Token, format string, args ...any) {
	p.errors = append(p.errors, &token.CompileError{Token: tok, Msg: fmt.Sprintf(format, args...)})
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.l.NextToken()
}

func (p *Parser) curTokenIs(t token.TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t token.TokenType) bool {
	return p.peekToken.Type == t
}

func (p *Parser) expectPeek(t token.TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorf(p.peekToken, "expected next token to be %s, got %s instead", t, p.peekToken)
	return false
}

func (p *Parser) stmtEnded() bool {
	return p.peekTokenIs(token.NEWLINE) || p.peekTokenIs(token.EOF)
}

// ParseKernel parses a whole kernel file:
//
//	x F32          # scalar param
//	a F32[]        # buffer param (load base)
//	out = x * 2.0  # named output
func (p *Parser) ParseKernel(name string) *Kernel {
	k := &Kernel{Name: name}

	for !p.curTokenIs(token.EOF) {
		if p.curTokenIs(token.NEWLINE) {
			p.nextToken()
			continue
		}
		if !p.curTokenIs(token.IDENT) {
			p.errorf(p.curToken, "expected declaration or assignment, got %s", p.curToken)
			p.skipLine()
			continue
		}

		if p.peekTokenIs(token.ASSIGN) {
			if out := p.parseOutput(); out != nil {
				k.Outputs = append(k.Outputs, out)
			}
			continue
		}

		if param := p.parseDecl(); param != nil {
			k.Params = append(k.Params, param)
		}
	}

	return k
}

// skipLine advances past the current (broken) statement.
func (p *Parser) skipLine() {
	for !p.curTokenIs(token.NEWLINE) && !p.curTokenIs(token.EOF) {
		p.nextToken()
	}
}

// parseDecl parses `name Dtype` or `name Dtype[]`.
func (p *Parser) parseDecl() *Param {
	nameTok := p.curToken
	if _, ok := p.decls[nameTok.Literal]; ok {
		p.errorf(nameTok, "%q is already declared", nameTok.Literal)
		p.skipLine()
		return nil
	}

	if !p.expectPeek(token.IDENT) {
		p.skipLine()
		return nil
	}
	dt, ok := types.ParseDtype(p.curToken.Literal)
	if !ok {
		p.errorf(p.curToken, "unknown type %q", p.curToken.Literal)
		p.skipLine()
		return nil
	}

	buffer := false
	if p.peekTokenIs(token.LBRACK) {
		p.nextToken()
		if !p.expectPeek(token.RBRACK) {
			p.skipLine()
			return nil
		}
		if !dt.IsScalar() {
			p.errorf(nameTok, "buffer %q must have a scalar element type, got %s", nameTok.Literal, dt)
			p.skipLine()
			return nil
		}
		buffer = true
	}

	if !p.stmtEnded() {
		p.errorf(p.peekToken, "unexpected %s after declaration of %q", p.peekToken, nameTok.Literal)
		p.skipLine()
		return nil
	}
	p.nextToken()

	param := &Param{
		Var:    &ir.Var{Name: nameTok.Literal, T: dt},
		Buffer: buffer,
	}
	p.decls[nameTok.Literal] = param
	return param
}

// parseOutput parses `name = expr`.
func (p *Parser) parseOutput() *Output {
	nameTok := p.curToken
	if _, ok := p.decls[nameTok.Literal]; ok {
		p.errorf(nameTok, "cannot assign to parameter %q", nameTok.Literal)
	}

	p.nextToken() // onto =
	p.nextToken()
	expr := p.parseExpression(LOWEST)

	if !p.stmtEnded() {
		p.errorf(p.peekToken, "expected NEWLINE or EOF after expression, got %s", p.peekToken)
		p.skipLine()
		return nil
	}
	p.nextToken()

	if expr == nil {
		return nil
	}
	return &Output{Name: nameTok.Literal, Token: nameTok, Expr: expr}
}

func (p *Parser) parseExpression(precedence int) ir.Expr {
	prefix := p.prefixParseFns[p.curToken.Type]
	if prefix == nil {
		p.errorf(p.curToken, "unexpected token %s in expression", p.curToken)
		return nil
	}
	leftExp := prefix()

	for precedence < p.peekPrecedence() {
		infix := p.infixParseFns[p.peekToken.Type]
		if infix == nil {
			return leftExp
		}
		p.nextToken()
		leftExp = infix(leftExp)
	}

	return leftExp
}

func (p *Parser) peekPrecedence() int {
	if prec, ok := precedences[p.peekToken.Type]; ok {
		return prec
	}
	return LOWEST
}

func (p *Parser) curPrecedence() int {
	if prec, ok := precedences[p.curToken.Type]; ok {
		return prec
	}
	return LOWEST
}

// parseIdentifier resolves a name: a call for known function/cast names, a
// load for declared buffers, a Var reference for declared params. The same
// *ir.Var node is reused across references so rewrites can share it.
func (p *Parser) parseIdentifier() ir.Expr {
	nameTok := p.curToken

	if p.peekTokenIs(token.LPAREN) {
		return p.parseCall(nameTok)
	}

	param, ok := p.decls[nameTok.Literal]
	if !ok {
		p.errorf(nameTok, "undeclared identifier %q", nameTok.Literal)
		return nil
	}

	if p.peekTokenIs(token.LBRACK) {
		if !param.Buffer {
			p.errorf(nameTok, "%q is not a buffer", nameTok.Literal)
			return nil
		}
		return p.parseLoad(param)
	}

	if param.Buffer {
		p.errorf(nameTok, "buffer %q must be indexed", nameTok.Literal)
		return nil
	}
	return param.Var
}

func (p *Parser) parseIntegerLiteral() ir.Expr {
	value, err := strconv.ParseInt(p.curToken.Literal, 0, 64)
	if err != nil {
		p.errorf(p.curToken, "could not parse %q as integer", p.curToken.Literal)
		return nil
	}
	return &ir.IntImm{T: types.Int32, Value: value}
}

func (p *Parser) parseFloatLiteral() ir.Expr {
	value, err := strconv.ParseFloat(p.curToken.Literal, 64)
	if err != nil {
		p.errorf(p.curToken, "could not parse %q as float", p.curToken.Literal)
		return nil
	}
	return &ir.FloatImm{T: types.Float32, Value: float64(float32(value))}
}

func (p *Parser) parsePrefixExpression() ir.Expr {
	opTok := p.curToken
	p.nextToken()
	right := p.parseExpression(PREFIX)
	if right == nil {
		return nil
	}

	switch imm := right.(type) {
	case *ir.IntImm:
		return &ir.IntImm{T: imm.T, Value: -imm.Value}
	case *ir.FloatImm:
		return &ir.FloatImm{T: imm.T, Value: -imm.Value}
	}

	dt := right.Dtype()
	zero := p.zeroImm(opTok, dt.Scalar)
	if zero == nil {
		return nil
	}
	if !dt.IsScalar() {
		zero = &ir.Broadcast{Value: zero, Lanes: dt.Lanes}
	}
	return ir.NewBinaryOp(ir.Sub, zero, right, false)
}

func (p *Parser) zeroImm(tok token.Token, k types.Kind) ir.Expr {
	switch {
	case k.IsInt():
		return &ir.IntImm{T: k}
	case k.IsFloat():
		return &ir.FloatImm{T: k}
	default:
		p.errorf(tok, "cannot negate value of type %s", k)
		return nil
	}
}

func (p *Parser) parseInfixExpression(left ir.Expr) ir.Expr {
	opTok := p.curToken
	op := binaryOps[opTok.Type]

	precedence := p.curPrecedence()
	p.nextToken()
	right := p.parseExpression(precedence)
	if left == nil || right == nil {
		return nil
	}

	left, right, ok := p.coerce(left, right)
	if !ok {
		p.errorf(opTok, "operand type mismatch for %s: %s vs %s", opTok.Literal, left.Dtype(), right.Dtype())
		return nil
	}
	if intOnlyOps[op] && left.Dtype().Scalar.IsFloat() {
		p.errorf(opTok, "operator %s is not defined on %s", opTok.Literal, left.Dtype())
		return nil
	}
	return ir.NewBinaryOp(op, left, right, false)
}

func (p *Parser) parseGroupedExpression() ir.Expr {
	p.nextToken()
	exp := p.parseExpression(LOWEST)
	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	return exp
}

// coerce reconciles operand dtypes. Bare literals adapt to the other side's
// scalar kind (2.0 * x works for x F64); anything else must already match.
func (p *Parser) coerce(lhs, rhs ir.Expr) (ir.Expr, ir.Expr, bool) {
	if lhs.Dtype() == rhs.Dtype() {
		return lhs, rhs, true
	}
	if adapted, ok := retypeImm(lhs, rhs.Dtype()); ok {
		return adapted, rhs, true
	}
	if adapted, ok := retypeImm(rhs, lhs.Dtype()); ok {
		return lhs, adapted, true
	}
	return lhs, rhs, false
}

func retypeImm(e ir.Expr, want types.Dtype) (ir.Expr, bool) {
	if !want.IsScalar() {
		return nil, false
	}
	switch imm := e.(type) {
	case *ir.IntImm:
		if want.Scalar.IsInt() {
			return &ir.IntImm{T: want.Scalar, Value: imm.Value}, true
		}
		if want.Scalar.IsFloat() {
			return &ir.FloatImm{T: want.Scalar, Value: float64(imm.Value)}, true
		}
	case *ir.FloatImm:
		if want.Scalar.IsFloat() {
			return &ir.FloatImm{T: want.Scalar, Value: imm.Value}, true
		}
	}
	return nil, false
}

// parseCall resolves name(...) forms: dtype casts, bc/ramp vector builders,
// min/max (with the nan-propagating minnan/maxnan spellings), rand, and the
// math intrinsics.
func (p *Parser) parseCall(nameTok token.Token) ir.Expr {
	name := nameTok.Literal

	if name == "rand" {
		return p.parseRand(nameTok)
	}

	args := p.parseCallArguments()
	if args == nil {
		return nil
	}
	for _, a := range args {
		if a == nil {
			return nil
		}
	}

	if dt, ok := types.ParseDtype(name); ok {
		return p.makeCast(nameTok, dt, args)
	}

	switch name {
	case "bc":
		return p.makeBroadcast(nameTok, args)
	case "ramp":
		return p.makeRamp(nameTok, args)
	case "min":
		return p.makeMinMax(nameTok, ir.Min, false, args)
	case "max":
		return p.makeMinMax(nameTok, ir.Max, false, args)
	case "minnan":
		return p.makeMinMax(nameTok, ir.Min, true, args)
	case "maxnan":
		return p.makeMinMax(nameTok, ir.Max, true, args)
	}

	if op, ok := intrinsicOps[name]; ok {
		return p.makeIntrinsic(nameTok, op, args)
	}

	p.errorf(nameTok, "unknown function %q", name)
	return nil
}

func (p *Parser) parseRand(nameTok token.Token) ir.Expr {
	if !p.expectPeek(token.LPAREN) {
		return nil
	}
	if !p.expectPeek(token.IDENT) {
		return nil
	}
	dt, ok := types.ParseDtype(p.curToken.Literal)
	if !ok || !dt.Scalar.IsFloat() {
		p.errorf(p.curToken, "rand needs a float dtype, got %q", p.curToken.Literal)
		return nil
	}
	if !p.expectPeek(token.RPAREN) {
		return nil
	}
	return ir.NewRand(dt)
}

func (p *Parser) parseCallArguments() []ir.Expr {
	p.nextToken() // onto (
	args := []ir.Expr{}

	if p.peekTokenIs(token.RPAREN) {
		p.nextToken()
		return args
	}

	p.nextToken()
	args = append(args, p.parseExpression(LOWEST))

	for p.peekTokenIs(token.COMMA) {
		p.nextToken()
		p.nextToken()
		args = append(args, p.parseExpression(LOWEST))
	}

	if !p.expectPeek(token.RPAREN) {
		return nil
	}

	return args
}

func (p *Parser) makeCast(nameTok token.Token, dt types.Dtype, args []ir.Expr) ir.Expr {
	if len(args) != 1 {
		p.errorf(nameTok, "cast to %s takes 1 argument, got %d", dt, len(args))
		return nil
	}
	src := args[0]
	if !dt.IsScalar() {
		p.errorf(nameTok, "cast target must be a scalar type name, got %s", dt)
		return nil
	}
	return &ir.Cast{Src: src, To: dt.WithLanes(src.Dtype().Lanes)}
}

func (p *Parser) makeBroadcast(nameTok token.Token, args []ir.Expr) ir.Expr {
	if len(args) != 2 {
		p.errorf(nameTok, "bc takes (value, lanes), got %d arguments", len(args))
		return nil
	}
	if !args[0].Dtype().IsScalar() {
		p.errorf(nameTok, "bc value must be scalar, got %s", args[0].Dtype())
		return nil
	}
	lanes, ok := p.laneCount(nameTok, args[1])
	if !ok {
		return nil
	}
	return &ir.Broadcast{Value: args[0], Lanes: lanes}
}

func (p *Parser) makeRamp(nameTok token.Token, args []ir.Expr) ir.Expr {
	if len(args) != 3 {
		p.errorf(nameTok, "ramp takes (base, stride, lanes), got %d arguments", len(args))
		return nil
	}
	base, stride, ok := p.coerce(args[0], args[1])
	if !ok || !base.Dtype().IsScalar() {
		p.errorf(nameTok, "ramp base/stride must be scalars of one type: %s vs %s", args[0].Dtype(), args[1].Dtype())
		return nil
	}
	lanes, lok := p.laneCount(nameTok, args[2])
	if !lok {
		return nil
	}
	return &ir.Ramp{Base: base, Stride: stride, Lanes: lanes}
}

func (p *Parser) laneCount(nameTok token.Token, e ir.Expr) (int, bool) {
	imm, ok := e.(*ir.IntImm)
	if !ok || imm.Value < 2 {
		p.errorf(nameTok, "lane count must be an integer literal >= 2")
		return 0, false
	}
	return int(imm.Value), true
}

func (p *Parser) makeMinMax(nameTok token.Token, op ir.Op, propagateNaNs bool, args []ir.Expr) ir.Expr {
	if len(args) != 2 {
		p.errorf(nameTok, "%s takes 2 arguments, got %d", nameTok.Literal, len(args))
		return nil
	}
	lhs, rhs, ok := p.coerce(args[0], args[1])
	if !ok {
		p.errorf(nameTok, "operand type mismatch for %s: %s vs %s", nameTok.Literal, lhs.Dtype(), rhs.Dtype())
		return nil
	}
	return ir.NewBinaryOp(op, lhs, rhs, propagateNaNs)
}

func (p *Parser) makeIntrinsic(nameTok token.Token, op ir.IntrinsicOp, args []ir.Expr) ir.Expr {
	if len(args) != op.Arity() {
		p.errorf(nameTok, "%s takes %d arguments, got %d", op, op.Arity(), len(args))
		return nil
	}
	if len(args) == 2 {
		lhs, rhs, ok := p.coerce(args[0], args[1])
		if !ok {
			p.errorf(nameTok, "operand type mismatch for %s: %s vs %s", op, lhs.Dtype(), rhs.Dtype())
			return nil
		}
		args = []ir.Expr{lhs, rhs}
	}
	for _, a := range args {
		if !a.Dtype().Scalar.IsFloat() {
			p.errorf(nameTok, "%s is not defined on %s", op, a.Dtype())
			return nil
		}
	}
	return ir.NewIntrinsics(op, args...)
}

// parseLoad parses buffer[index] or buffer[index, mask].
func (p *Parser) parseLoad(param *Param) ir.Expr {
	nameTok := p.curToken
	p.nextToken() // onto [
	p.nextToken()
	index := p.parseExpression(LOWEST)

	var mask ir.Expr
	if p.peekTokenIs(token.COMMA) {
		p.nextToken()
		p.nextToken()
		mask = p.parseExpression(LOWEST)
	}

	if !p.expectPeek(token.RBRACK) {
		return nil
	}
	if index == nil {
		return nil
	}
	if !index.Dtype().Scalar.IsInt() {
		p.errorf(nameTok, "index into %q must be integral, got %s", param.Var.Name, index.Dtype())
		return nil
	}

	lanes := index.Dtype().Lanes
	if mask == nil {
		mask = defaultMask(lanes)
	}
	if mask.Dtype().Lanes != lanes || !mask.Dtype().Scalar.IsInt() {
		p.errorf(nameTok, "mask for %q must be integral with %d lanes, got %s", param.Var.Name, lanes, mask.Dtype())
		return nil
	}

	return &ir.Load{
		T:     param.Var.T.WithLanes(lanes),
		Base:  param.Var,
		Index: index,
		Mask:  mask,
	}
}

// defaultMask is the all-lanes-on mask used when the source omits one.
func defaultMask(lanes int) ir.Expr {
	one := &ir.IntImm{T: types.Int32, Value: 1}
	if lanes == 1 {
		return ir.Expr(one)
	}
	return &ir.Broadcast{Value: one, Lanes: lanes}
}

func (p *Parser) registerPrefix(tokenType token.TokenType, fn prefixParseFn) {
	p.prefixParseFns[tokenType] = fn
}

func (p *Parser) registerInfix(tokenType token.TokenType, fn infixParseFn) {
	p.infixParseFns[tokenType] = fn
}
