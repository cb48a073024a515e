package compiler

import (
	"github.com/thiremani/tensorc/ir"
	"github.com/thiremani/tensorc/types"
	"tinygo.org/x/go-llvm"
)

// opClass picks the instruction flavor for an operand kind.
type opClass int

const (
	clsInt  opClass = iota // signed integers (and Bool for add/sub/mul)
	clsUint                // U8, Bool for div/shift/compare purposes
	clsFloat
)

func classOf(k types.Kind) opClass {
	switch {
	case k.IsFloat():
		return clsFloat
	case k == types.Uint8 || k == types.Bool:
		return clsUint
	default:
		return clsInt
	}
}

// opKey is used as the key for operator lowering functions.
type opKey struct {
	Op    ir.Op
	Class opClass
}

// opFunc lowers one binary node whose operands are already compiled.
type opFunc func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value

// defaultOps maps operator and operand class to the lowering function.
var defaultOps = map[opKey]opFunc{
	// --- Arithmetic ---
	{Op: ir.Add, Class: clsInt}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		return c.builder.CreateAdd(left, right, "add_tmp")
	},
	{Op: ir.Add, Class: clsUint}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		return c.builder.CreateAdd(left, right, "add_tmp")
	},
	{Op: ir.Add, Class: clsFloat}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		return c.builder.CreateFAdd(left, right, "fadd_tmp")
	},

	{Op: ir.Sub, Class: clsInt}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		return c.builder.CreateSub(left, right, "sub_tmp")
	},
	{Op: ir.Sub, Class: clsUint}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		return c.builder.CreateSub(left, right, "sub_tmp")
	},
	{Op: ir.Sub, Class: clsFloat}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		return c.builder.CreateFSub(left, right, "fsub_tmp")
	},

	{Op: ir.Mul, Class: clsInt}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		return c.builder.CreateMul(left, right, "mul_tmp")
	},
	{Op: ir.Mul, Class: clsUint}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		return c.builder.CreateMul(left, right, "mul_tmp")
	},
	{Op: ir.Mul, Class: clsFloat}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		return c.builder.CreateFMul(left, right, "fmul_tmp")
	},

	{Op: ir.Div, Class: clsInt}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		return c.builder.CreateSDiv(left, right, "div_tmp")
	},
	{Op: ir.Div, Class: clsUint}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		return c.builder.CreateUDiv(left, right, "udiv_tmp")
	},
	{Op: ir.Div, Class: clsFloat}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		return c.builder.CreateFDiv(left, right, "fdiv_tmp")
	},

	{Op: ir.Mod, Class: clsInt}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		return c.builder.CreateSRem(left, right, "mod_tmp")
	},
	{Op: ir.Mod, Class: clsUint}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		return c.builder.CreateURem(left, right, "umod_tmp")
	},

	// --- Bitwise ---
	{Op: ir.And, Class: clsInt}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		return c.builder.CreateAnd(left, right, "and_tmp")
	},
	{Op: ir.And, Class: clsUint}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		return c.builder.CreateAnd(left, right, "and_tmp")
	},
	{Op: ir.Xor, Class: clsInt}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		return c.builder.CreateXor(left, right, "xor_tmp")
	},
	{Op: ir.Xor, Class: clsUint}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		return c.builder.CreateXor(left, right, "xor_tmp")
	},
	{Op: ir.Lshift, Class: clsInt}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		return c.builder.CreateShl(left, right, "shl_tmp")
	},
	{Op: ir.Lshift, Class: clsUint}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		return c.builder.CreateShl(left, right, "shl_tmp")
	},
	{Op: ir.Rshift, Class: clsInt}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		return c.builder.CreateAShr(left, right, "ashr_tmp")
	},
	{Op: ir.Rshift, Class: clsUint}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		return c.builder.CreateLShr(left, right, "lshr_tmp")
	},

	// --- Min/Max ---
	{Op: ir.Min, Class: clsInt}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		cmp := c.builder.CreateICmp(llvm.IntSLT, left, right, "min_cmp")
		return c.builder.CreateSelect(cmp, left, right, "min_tmp")
	},
	{Op: ir.Min, Class: clsUint}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		cmp := c.builder.CreateICmp(llvm.IntULT, left, right, "min_cmp")
		return c.builder.CreateSelect(cmp, left, right, "min_tmp")
	},
	{Op: ir.Min, Class: clsFloat}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		return c.callMinMaxIntrinsic(n, "minimum", "minnum", left, right)
	},
	{Op: ir.Max, Class: clsInt}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		cmp := c.builder.CreateICmp(llvm.IntSGT, left, right, "max_cmp")
		return c.builder.CreateSelect(cmp, left, right, "max_tmp")
	},
	{Op: ir.Max, Class: clsUint}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		cmp := c.builder.CreateICmp(llvm.IntUGT, left, right, "max_cmp")
		return c.builder.CreateSelect(cmp, left, right, "max_tmp")
	},
	{Op: ir.Max, Class: clsFloat}: func(c *Compiler, n *ir.Binary, left, right llvm.Value) llvm.Value {
		return c.callMinMaxIntrinsic(n, "maximum", "maxnum", left, right)
	},
}

// callMinMaxIntrinsic picks the NaN-propagating llvm.minimum/maximum or the
// NaN-suppressing llvm.minnum/maxnum family depending on the node's mode.
func (c *Compiler) callMinMaxIntrinsic(n *ir.Binary, propagating, suppressing string, left, right llvm.Value) llvm.Value {
	base := suppressing
	if n.PropagateNaNs {
		base = propagating
	}
	return c.callLLVMIntrinsic(base, n.Dtype(), left, right)
}
