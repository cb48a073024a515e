package ir

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/thiremani/tensorc/types"
)

// Expr is an immutable node of the tensor-expression IR. Nodes are never
// mutated after construction; every rewrite builds a fresh node or returns
// an existing one unchanged, so subtrees may be shared freely.
type Expr interface {
	Dtype() types.Dtype
	// IsConstant reports whether the node evaluates to a compile-time-known
	// scalar: immediates, and pure operators/casts/intrinsics whose operands
	// are all constant. Vector nodes (Broadcast, Ramp) and Load are never
	// constant.
	IsConstant() bool
	String() string
	exprNode()
}

// Op identifies a binary operator node.
type Op int

const (
	Add Op = iota
	Sub
	Mul
	Div
	Mod
	And
	Xor
	Lshift
	Rshift
	Min
	Max
)

var opNames = [...]string{
	Add:    "+",
	Sub:    "-",
	Mul:    "*",
	Div:    "/",
	Mod:    "%",
	And:    "&",
	Xor:    "^",
	Lshift: "<<",
	Rshift: ">>",
	Min:    "min",
	Max:    "max",
}

func (op Op) String() string {
	if op < 0 || int(op) >= len(opNames) {
		return "op(" + strconv.Itoa(int(op)) + ")"
	}
	return opNames[op]
}

// IntImm is an integer immediate. Value is held widened to int64; the
// materialized width is T.
type IntImm struct {
	T     types.Kind
	Value int64
}

func (i *IntImm) exprNode()          {}
func (i *IntImm) Dtype() types.Dtype { return types.Scalar(i.T) }
func (i *IntImm) IsConstant() bool   { return true }
func (i *IntImm) String() string     { return strconv.FormatInt(i.Value, 10) }

// FloatImm is a floating-point immediate. Value is held widened to float64;
// for F16/F32 it has already been rounded to the narrow width.
type FloatImm struct {
	T     types.Kind
	Value float64
}

func (f *FloatImm) exprNode()          {}
func (f *FloatImm) Dtype() types.Dtype { return types.Scalar(f.T) }
func (f *FloatImm) IsConstant() bool   { return true }
func (f *FloatImm) String() string     { return strconv.FormatFloat(f.Value, 'g', -1, 64) }

// Var is a free scalar variable, or the opaque base handle of a Load.
type Var struct {
	Name string
	T    types.Dtype
}

func (v *Var) exprNode()          {}
func (v *Var) Dtype() types.Dtype { return v.T }
func (v *Var) IsConstant() bool   { return false }
func (v *Var) String() string     { return v.Name }

// Broadcast replicates a scalar value across Lanes vector lanes.
type Broadcast struct {
	Value Expr
	Lanes int
}

func (b *Broadcast) exprNode()          {}
func (b *Broadcast) Dtype() types.Dtype { return b.Value.Dtype().WithLanes(b.Lanes) }
func (b *Broadcast) IsConstant() bool   { return false }
func (b *Broadcast) String() string {
	return fmt.Sprintf("bc(%s, %d)", b.Value, b.Lanes)
}

// Ramp is a vector whose lane i equals Base + i*Stride.
type Ramp struct {
	Base   Expr
	Stride Expr
	Lanes  int
}

func (r *Ramp) exprNode()          {}
func (r *Ramp) Dtype() types.Dtype { return r.Base.Dtype().WithLanes(r.Lanes) }
func (r *Ramp) IsConstant() bool   { return false }
func (r *Ramp) String() string {
	return fmt.Sprintf("ramp(%s, %s, %d)", r.Base, r.Stride, r.Lanes)
}

// Binary is a binary operator node. PropagateNaNs is meaningful only for
// Min/Max: with it set a NaN operand makes the result NaN, without it the
// non-NaN operand wins.
type Binary struct {
	Op            Op
	LHS           Expr
	RHS           Expr
	PropagateNaNs bool
}

func (b *Binary) exprNode()          {}
func (b *Binary) Dtype() types.Dtype { return b.LHS.Dtype() }
func (b *Binary) IsConstant() bool   { return b.LHS.IsConstant() && b.RHS.IsConstant() }
func (b *Binary) String() string {
	var out bytes.Buffer
	if b.Op == Min || b.Op == Max {
		out.WriteString(b.Op.String())
		if b.PropagateNaNs {
			out.WriteString("nan")
		}
		out.WriteString("(")
		out.WriteString(b.LHS.String())
		out.WriteString(", ")
		out.WriteString(b.RHS.String())
		out.WriteString(")")
		return out.String()
	}
	out.WriteString("(")
	out.WriteString(b.LHS.String())
	out.WriteString(" " + b.Op.String() + " ")
	out.WriteString(b.RHS.String())
	out.WriteString(")")
	return out.String()
}

// NewBinaryOp constructs a binary operator node of the given kind. option is
// the NaN-propagation mode and is ignored for everything but Min/Max. The
// operand dtypes must already agree; the parser inserts no promotions.
func NewBinaryOp(op Op, lhs, rhs Expr, option bool) *Binary {
	if lhs.Dtype() != rhs.Dtype() {
		panic(fmt.Sprintf("NewBinaryOp: operand dtype mismatch: %s vs %s", lhs.Dtype(), rhs.Dtype()))
	}
	switch op {
	case Add, Sub, Mul, Div, Mod, And, Xor, Lshift, Rshift:
		return &Binary{Op: op, LHS: lhs, RHS: rhs}
	case Min, Max:
		return &Binary{Op: op, LHS: lhs, RHS: rhs, PropagateNaNs: option}
	default:
		panic(fmt.Sprintf("NewBinaryOp: unsupported operator %d", op))
	}
}

// Cast converts a value to another dtype with the same lane count.
type Cast struct {
	Src Expr
	To  types.Dtype
}

func (c *Cast) exprNode()          {}
func (c *Cast) Dtype() types.Dtype { return c.To }
func (c *Cast) IsConstant() bool   { return c.Src.IsConstant() }
func (c *Cast) String() string {
	return fmt.Sprintf("%s(%s)", c.To, c.Src)
}

// IntrinsicOp identifies a built-in math function.
type IntrinsicOp int

const (
	Sin IntrinsicOp = iota
	Cos
	Tan
	Asin
	Acos
	Atan
	Atan2
	Exp
	Log
	Log2
	Log10
	Sqrt
	Fabs
	Floor
	Ceil
	Round
	Trunc
	Pow
	Fmod
	Rand
)

var intrinsicNames = [...]string{
	Sin:   "sin",
	Cos:   "cos",
	Tan:   "tan",
	Asin:  "asin",
	Acos:  "acos",
	Atan:  "atan",
	Atan2: "atan2",
	Exp:   "exp",
	Log:   "log",
	Log2:  "log2",
	Log10: "log10",
	Sqrt:  "sqrt",
	Fabs:  "fabs",
	Floor: "floor",
	Ceil:  "ceil",
	Round: "round",
	Trunc: "trunc",
	Pow:   "pow",
	Fmod:  "fmod",
	Rand:  "rand",
}

func (op IntrinsicOp) String() string {
	if op < 0 || int(op) >= len(intrinsicNames) {
		return "intrinsic(" + strconv.Itoa(int(op)) + ")"
	}
	return intrinsicNames[op]
}

// IsPure reports whether the intrinsic is free of observable side effects.
// Rand is the only impure one; it must never be folded.
func (op IntrinsicOp) IsPure() bool {
	return op != Rand
}

// Arity returns the parameter count of the intrinsic.
func (op IntrinsicOp) Arity() int {
	switch op {
	case Rand:
		return 0
	case Atan2, Pow, Fmod:
		return 2
	default:
		return 1
	}
}

// Intrinsics is a call to a built-in math function.
type Intrinsics struct {
	Op     IntrinsicOp
	Params []Expr
	T      types.Dtype
}

// NewIntrinsics builds a call node; the result dtype is the first parameter's.
func NewIntrinsics(op IntrinsicOp, params ...Expr) *Intrinsics {
	if len(params) != op.Arity() {
		panic(fmt.Sprintf("NewIntrinsics: %s takes %d params, got %d", op, op.Arity(), len(params)))
	}
	return &Intrinsics{Op: op, Params: params, T: params[0].Dtype()}
}

// NewRand builds the impure rand() call; it has no parameters, so the result
// dtype must be given.
func NewRand(dt types.Dtype) *Intrinsics {
	return &Intrinsics{Op: Rand, T: dt}
}

func (in *Intrinsics) exprNode()          {}
func (in *Intrinsics) Dtype() types.Dtype { return in.T }
func (in *Intrinsics) IsConstant() bool {
	if !in.Op.IsPure() {
		return false
	}
	for _, p := range in.Params {
		if !p.IsConstant() {
			return false
		}
	}
	return true
}

func (in *Intrinsics) String() string {
	args := []string{}
	for _, p := range in.Params {
		args = append(args, p.String())
	}
	return fmt.Sprintf("%s(%s)", in.Op, strings.Join(args, ", "))
}

// Load reads T-typed elements from the buffer named by Base at Index, under
// Mask. Base is an opaque handle: it is never folded or inspected. A Load is
// never constant.
type Load struct {
	T     types.Dtype
	Base  *Var
	Index Expr
	Mask  Expr
}

func (l *Load) exprNode()          {}
func (l *Load) Dtype() types.Dtype { return l.T }
func (l *Load) IsConstant() bool   { return false }
func (l *Load) String() string {
	return fmt.Sprintf("%s[%s, %s]", l.Base, l.Index, l.Mask)
}
