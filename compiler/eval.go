package compiler

import (
	"fmt"
	"math"

	"github.com/thiremani/tensorc/ir"
	"github.com/thiremani/tensorc/types"
)

// Value is a scalar computed by the evaluator, held widened: integral kinds
// in I (already wrapped to their width), float kinds in F (already rounded
// to their width).
type Value struct {
	K types.Kind
	I int64
	F float64
}

// Env binds free variable names to values for Eval.
type Env map[string]Value

// Evaluate runs e through the typed interpreter and re-materializes the
// result as an immediate of e's dtype. Precondition: e.IsConstant().
// An unsupported scalar kind is an invariant violation (a kind was added
// without updating the evaluator) and panics.
func Evaluate(e ir.Expr) ir.Expr {
	if !e.IsConstant() {
		panic("evaluate: expression is not constant: " + e.String())
	}
	return makeImmediate(e.Dtype(), Eval(e, nil))
}

func makeImmediate(dt types.Dtype, v Value) ir.Expr {
	if !dt.IsScalar() {
		panic("evaluate: cannot materialize vector immediate " + dt.String())
	}
	switch dt.Scalar {
	case types.Bool, types.Int8, types.Int16, types.Int32, types.Int64, types.Uint8:
		return &ir.IntImm{T: dt.Scalar, Value: wrapInt(dt.Scalar, v.I)}
	case types.Float16, types.Float32, types.Float64:
		return &ir.FloatImm{T: dt.Scalar, Value: roundFloat(dt.Scalar, v.F)}
	default:
		panic("evaluate: unsupported dtype " + dt.String())
	}
}

// Eval interprets a scalar expression under env. Vector nodes and loads have
// no scalar value and panic; they never reach here from the folder because
// they are never constant.
func Eval(e ir.Expr, env Env) Value {
	switch n := e.(type) {
	case *ir.IntImm:
		return Value{K: n.T, I: wrapInt(n.T, n.Value)}
	case *ir.FloatImm:
		return Value{K: n.T, F: roundFloat(n.T, n.Value)}
	case *ir.Var:
		v, ok := env[n.Name]
		if !ok {
			panic("eval: unbound variable " + n.Name)
		}
		return v
	case *ir.Binary:
		lhs := Eval(n.LHS, env)
		rhs := Eval(n.RHS, env)
		return evalBinary(n, lhs, rhs)
	case *ir.Cast:
		return castValue(n.To.Scalar, Eval(n.Src, env))
	case *ir.Intrinsics:
		if !n.Op.IsPure() {
			panic("eval: cannot evaluate impure intrinsic " + n.Op.String())
		}
		args := make([]Value, len(n.Params))
		for i, p := range n.Params {
			args[i] = Eval(p, env)
		}
		return evalIntrinsic(n.Op, n.T.Scalar, args)
	case *ir.Broadcast, *ir.Ramp, *ir.Load:
		panic("eval: no scalar value for " + e.String())
	default:
		panic(fmt.Sprintf("eval: unknown expression node %T", e))
	}
}

// wrapInt truncates v to the storage width of k, so integer arithmetic done
// widened in int64 lands on the same bits the narrow type would produce.
func wrapInt(k types.Kind, v int64) int64 {
	switch k {
	case types.Bool:
		if v != 0 {
			return 1
		}
		return 0
	case types.Int8:
		return int64(int8(v))
	case types.Int16:
		return int64(int16(v))
	case types.Int32:
		return int64(int32(v))
	case types.Int64:
		return v
	case types.Uint8:
		return int64(uint8(v))
	default:
		panic("wrapInt: not an integral kind: " + k.String())
	}
}

// roundFloat rounds v to the precision of k. F16 is approximated at F32
// precision: Go has no native half type, and the folder only needs the value
// to survive a round trip through an immediate.
func roundFloat(k types.Kind, v float64) float64 {
	switch k {
	case types.Float16, types.Float32:
		return float64(float32(v))
	case types.Float64:
		return v
	default:
		panic("roundFloat: not a float kind: " + k.String())
	}
}

func evalBinary(n *ir.Binary, lhs, rhs Value) Value {
	k := n.Dtype().Scalar
	if k.IsFloat() {
		return Value{K: k, F: roundFloat(k, evalBinaryFloat(n, lhs.F, rhs.F))}
	}
	return Value{K: k, I: wrapInt(k, evalBinaryInt(n.Op, lhs.I, rhs.I))}
}

func evalBinaryInt(op ir.Op, a, b int64) int64 {
	switch op {
	case ir.Add:
		return a + b
	case ir.Sub:
		return a - b
	case ir.Mul:
		return a * b
	case ir.Div:
		if b == 0 {
			panic("eval: integer division by zero")
		}
		return a / b
	case ir.Mod:
		if b == 0 {
			panic("eval: integer modulo by zero")
		}
		return a % b
	case ir.And:
		return a & b
	case ir.Xor:
		return a ^ b
	case ir.Lshift:
		return a << uint64(b)
	case ir.Rshift:
		return a >> uint64(b)
	case ir.Min:
		return min(a, b)
	case ir.Max:
		return max(a, b)
	default:
		panic("eval: unsupported integer operator " + op.String())
	}
}

func evalBinaryFloat(n *ir.Binary, a, b float64) float64 {
	switch n.Op {
	case ir.Add:
		return a + b
	case ir.Sub:
		return a - b
	case ir.Mul:
		return a * b
	case ir.Div:
		return a / b
	case ir.Min:
		return evalMinMaxFloat(a, b, n.PropagateNaNs, math.Min)
	case ir.Max:
		return evalMinMaxFloat(a, b, n.PropagateNaNs, math.Max)
	default:
		panic("eval: unsupported float operator " + n.Op.String())
	}
}

// evalMinMaxFloat applies pick with the documented NaN tie-break: with
// propagation a NaN operand poisons the result, without it the non-NaN
// operand wins.
func evalMinMaxFloat(a, b float64, propagateNaNs bool, pick func(float64, float64) float64) float64 {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	if propagateNaNs {
		if aNaN || bNaN {
			return math.NaN()
		}
		return pick(a, b)
	}
	if aNaN {
		return b
	}
	if bNaN {
		return a
	}
	return pick(a, b)
}

// castValue converts v to kind to, preserving numeric value where
// representable and truncating like the hardware conversion otherwise.
func castValue(to types.Kind, v Value) Value {
	switch {
	case to.IsFloat() && v.K.IsFloat():
		return Value{K: to, F: roundFloat(to, v.F)}
	case to.IsFloat():
		return Value{K: to, F: roundFloat(to, float64(v.I))}
	case v.K.IsFloat():
		return Value{K: to, I: wrapInt(to, int64(v.F))}
	default:
		return Value{K: to, I: wrapInt(to, v.I)}
	}
}

var intrinsicFuncs1 = map[ir.IntrinsicOp]func(float64) float64{
	ir.Sin:   math.Sin,
	ir.Cos:   math.Cos,
	ir.Tan:   math.Tan,
	ir.Asin:  math.Asin,
	ir.Acos:  math.Acos,
	ir.Atan:  math.Atan,
	ir.Exp:   math.Exp,
	ir.Log:   math.Log,
	ir.Log2:  math.Log2,
	ir.Log10: math.Log10,
	ir.Sqrt:  math.Sqrt,
	ir.Fabs:  math.Abs,
	ir.Floor: math.Floor,
	ir.Ceil:  math.Ceil,
	ir.Round: math.Round,
	ir.Trunc: math.Trunc,
}

var intrinsicFuncs2 = map[ir.IntrinsicOp]func(float64, float64) float64{
	ir.Atan2: math.Atan2,
	ir.Pow:   math.Pow,
	ir.Fmod:  math.Mod,
}

func evalIntrinsic(op ir.IntrinsicOp, k types.Kind, args []Value) Value {
	if !k.IsFloat() {
		panic("eval: intrinsic " + op.String() + " on non-float dtype " + k.String())
	}
	if f, ok := intrinsicFuncs1[op]; ok {
		return Value{K: k, F: roundFloat(k, f(args[0].F))}
	}
	if f, ok := intrinsicFuncs2[op]; ok {
		return Value{K: k, F: roundFloat(k, f(args[0].F, args[1].F))}
	}
	panic("eval: unsupported intrinsic " + op.String())
}
