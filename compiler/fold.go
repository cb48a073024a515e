package compiler

import (
	"fmt"

	"github.com/thiremani/tensorc/ir"
)

// Fold rewrites e bottom-up, collapsing subtrees whose operands are all
// compile-time constants into a single immediate (via Evaluate) and applying
// the algebraic identity rules. The input tree is never mutated: Fold either
// returns e itself (when nothing changed) or a freshly built equivalent node
// of the same dtype and lane count.
func Fold(e ir.Expr) ir.Expr {
	switch n := e.(type) {
	case *ir.IntImm, *ir.FloatImm, *ir.Var:
		return e
	case *ir.Binary:
		return foldBinary(n)
	case *ir.Cast:
		return foldCast(n)
	case *ir.Broadcast:
		value := Fold(n.Value)
		if value == n.Value {
			return n
		}
		return &ir.Broadcast{Value: value, Lanes: n.Lanes}
	case *ir.Ramp:
		base := Fold(n.Base)
		stride := Fold(n.Stride)
		if base == n.Base && stride == n.Stride {
			return n
		}
		return &ir.Ramp{Base: base, Stride: stride, Lanes: n.Lanes}
	case *ir.Intrinsics:
		return foldIntrinsics(n)
	case *ir.Load:
		return foldLoad(n)
	default:
		panic(fmt.Sprintf("fold: unknown expression node %T", e))
	}
}

// identityRule inspects the already-folded operands of n and returns the
// simplified replacement, or ok=false when no identity applies. Replacements
// are already fully folded; the one exception (the Add Broadcast+Ramp rule)
// re-folds internally before returning.
type identityRule func(n *ir.Binary, lhs, rhs ir.Expr) (ir.Expr, bool)

// Operators absent from the table (Mod, And, Xor, shifts, Min, Max) have no
// identity shortcuts and take the generic path only. Populated in init:
// addIdentity re-folds through Fold, so a composite literal here would be an
// initialization cycle.
var identities map[ir.Op]identityRule

func init() {
	identities = map[ir.Op]identityRule{
		ir.Add: addIdentity,
		ir.Sub: subIdentity,
		ir.Mul: mulIdentity,
		ir.Div: divIdentity,
	}
}

// foldBinary is the shared rule for every binary operator: fold children
// left then right, try the per-operator identity table, rebuild only on
// child change, evaluate only when both sides ended up constant.
func foldBinary(n *ir.Binary) ir.Expr {
	lhs := Fold(n.LHS)
	rhs := Fold(n.RHS)

	if rule, ok := identities[n.Op]; ok {
		if ret, matched := rule(n, lhs, rhs); matched {
			return ret
		}
	}

	node := ir.Expr(n)
	if lhs != n.LHS || rhs != n.RHS {
		node = ir.NewBinaryOp(n.Op, lhs, rhs, n.PropagateNaNs)
	}

	// Can only fold if both sides are constant.
	if !lhs.IsConstant() || !rhs.IsConstant() {
		return node
	}
	// An integer zero divisor is left in place; the trap belongs to runtime,
	// not to the pass.
	if (n.Op == ir.Div || n.Op == ir.Mod) && isIntImm(rhs, 0) {
		return node
	}
	return Evaluate(node)
}

func addIdentity(n *ir.Binary, lhs, rhs ir.Expr) (ir.Expr, bool) {
	if isIntImm(lhs, 0) {
		return rhs, true
	}
	if isIntImm(rhs, 0) {
		return lhs, true
	}

	if b, ok := lhs.(*ir.Broadcast); ok {
		if isIntImm(b.Value, 0) {
			return rhs, true
		}
		if r, ok := rhs.(*ir.Ramp); ok {
			return foldRampOffset(b, r), true
		}
	}

	if b, ok := rhs.(*ir.Broadcast); ok {
		if isIntImm(b.Value, 0) {
			return lhs, true
		}
		if r, ok := lhs.(*ir.Ramp); ok {
			return foldRampOffset(b, r), true
		}
	}

	return nil, false
}

// foldRampOffset absorbs a broadcast scalar added to a ramp into the ramp's
// base, so vector addressing downstream sees a single affine pattern. The
// new base addition may itself be foldable, hence the re-fold.
func foldRampOffset(b *ir.Broadcast, r *ir.Ramp) ir.Expr {
	return Fold(&ir.Ramp{
		Base:   ir.NewBinaryOp(ir.Add, b.Value, r.Base, false),
		Stride: r.Stride,
		Lanes:  r.Lanes,
	})
}

func subIdentity(n *ir.Binary, lhs, rhs ir.Expr) (ir.Expr, bool) {
	if isIntImm(rhs, 0) {
		return lhs, true
	}
	return nil, false
}

func mulIdentity(n *ir.Binary, lhs, rhs ir.Expr) (ir.Expr, bool) {
	if isIntImm(lhs, 1) || isFloatImm(lhs, 1.0) || isBroadcastIntImm(lhs, 1) {
		return rhs, true
	}
	if isIntImm(rhs, 1) || isFloatImm(rhs, 1.0) || isBroadcastIntImm(rhs, 1) {
		return lhs, true
	}
	return nil, false
}

func divIdentity(n *ir.Binary, lhs, rhs ir.Expr) (ir.Expr, bool) {
	if isIntImm(rhs, 1) {
		return lhs, true
	}
	return nil, false
}

// foldCast folds the source, rebuilds on change, and evaluates only when the
// rewritten source is constant — the same shape as the binary rules.
func foldCast(n *ir.Cast) ir.Expr {
	src := Fold(n.Src)

	node := ir.Expr(n)
	if src != n.Src {
		node = &ir.Cast{Src: src, To: n.To}
	}

	if !src.IsConstant() {
		return node
	}
	return Evaluate(node)
}

func foldIntrinsics(n *ir.Intrinsics) ir.Expr {
	params := make([]ir.Expr, len(n.Params))
	changed := false
	allConstant := true
	for i, p := range n.Params {
		np := Fold(p)
		params[i] = np
		changed = changed || np != p
		allConstant = allConstant && np.IsConstant()
	}

	node := ir.Expr(n)
	if changed {
		node = &ir.Intrinsics{Op: n.Op, Params: params, T: n.T}
	}

	// An impure call is never folded, even over constant arguments.
	if !allConstant || !n.Op.IsPure() {
		return node
	}
	return Evaluate(node)
}

// foldLoad folds index and mask only. The base handle is opaque and a memory
// read is never constant, so a Load never reaches the evaluator.
func foldLoad(n *ir.Load) ir.Expr {
	index := Fold(n.Index)
	mask := Fold(n.Mask)
	if index == n.Index && mask == n.Mask {
		return n
	}
	return &ir.Load{T: n.T, Base: n.Base, Index: index, Mask: mask}
}

// isIntImm reports whether e is a scalar integer immediate holding v.
func isIntImm(e ir.Expr, v int64) bool {
	i, ok := e.(*ir.IntImm)
	return ok && i.Value == v
}

// isFloatImm reports whether e is a float immediate holding exactly v.
func isFloatImm(e ir.Expr, v float64) bool {
	f, ok := e.(*ir.FloatImm)
	return ok && f.Value == v
}

func isBroadcastIntImm(e ir.Expr, v int64) bool {
	b, ok := e.(*ir.Broadcast)
	return ok && isIntImm(b.Value, v)
}
