package compiler

import (
	"fmt"

	"github.com/thiremani/tensorc/ir"
	"github.com/thiremani/tensorc/parser"
	"github.com/thiremani/tensorc/token"
	"github.com/thiremani/tensorc/types"
	"tinygo.org/x/go-llvm"
)

// Compiler lowers folded kernel expressions to LLVM IR. One Compiler owns
// one module; kernels append functions to it.
type Compiler struct {
	Context llvm.Context
	Module  llvm.Module
	builder llvm.Builder
	Errors  []*token.CompileError

	vals   map[string]llvm.Value // param name -> function argument
	curTok token.Token           // token of the output being compiled, for error attribution
}

func NewCompiler(ctx llvm.Context, name string) *Compiler {
	return &Compiler{
		Context: ctx,
		Module:  ctx.NewModule(name),
		builder: ctx.NewBuilder(),
		Errors:  []*token.CompileError{},
		vals:    make(map[string]llvm.Value),
	}
}

func (c *Compiler) errorf(format string, args ...any) {
	c.Errors = append(c.Errors, &token.CompileError{Token: c.curTok, Msg: fmt.Sprintf(format, args...)})
}

func (c *Compiler) scalarType(k types.Kind) llvm.Type {
	switch k {
	case types.Bool:
		return c.Context.Int1Type()
	case types.Int8, types.Uint8:
		return c.Context.Int8Type()
	case types.Int16:
		return c.Context.Int16Type()
	case types.Int32:
		return c.Context.Int32Type()
	case types.Int64:
		return c.Context.Int64Type()
	case types.Float16:
		return c.Context.HalfType()
	case types.Float32:
		return c.Context.FloatType()
	case types.Float64:
		return c.Context.DoubleType()
	default:
		panic("unknown kind in scalarType: " + k.String())
	}
}

func (c *Compiler) mapToLLVMType(dt types.Dtype) llvm.Type {
	elem := c.scalarType(dt.Scalar)
	if dt.IsScalar() {
		return elem
	}
	return llvm.VectorType(elem, dt.Lanes)
}

// CompileKernel emits one void function tk_<name>. Scalar/vector params are
// passed by value, buffers as element pointers; each output becomes a
// trailing out-pointer the result is stored through.
func (c *Compiler) CompileKernel(k *parser.Kernel) {
	paramTypes := []llvm.Type{}
	for _, p := range k.Params {
		if p.Buffer {
			paramTypes = append(paramTypes, llvm.PointerType(c.scalarType(p.Var.T.Scalar), 0))
		} else {
			paramTypes = append(paramTypes, c.mapToLLVMType(p.Var.T))
		}
	}
	for _, out := range k.Outputs {
		paramTypes = append(paramTypes, llvm.PointerType(c.mapToLLVMType(out.Expr.Dtype()), 0))
	}

	fnType := llvm.FunctionType(c.Context.VoidType(), paramTypes, false)
	fn := llvm.AddFunction(c.Module, "tk_"+k.Name, fnType)
	for i, p := range k.Params {
		arg := fn.Param(i)
		arg.SetName(p.Var.Name)
		c.vals[p.Var.Name] = arg
	}

	entry := c.Context.AddBasicBlock(fn, "entry")
	c.builder.SetInsertPointAtEnd(entry)

	for i, out := range k.Outputs {
		c.curTok = out.Token
		outParam := fn.Param(len(k.Params) + i)
		outParam.SetName("out_" + out.Name)
		c.builder.CreateStore(c.compileExpr(out.Expr), outParam)
	}
	c.builder.CreateRetVoid()
}

func (c *Compiler) compileExpr(e ir.Expr) llvm.Value {
	switch n := e.(type) {
	case *ir.IntImm:
		signed := n.T != types.Bool && n.T != types.Uint8
		return llvm.ConstInt(c.scalarType(n.T), uint64(n.Value), signed)
	case *ir.FloatImm:
		return llvm.ConstFloat(c.scalarType(n.T), n.Value)
	case *ir.Var:
		return c.vals[n.Name]
	case *ir.Binary:
		return c.compileBinary(n)
	case *ir.Cast:
		return c.compileCast(n)
	case *ir.Broadcast:
		return c.broadcast(c.compileExpr(n.Value), n.Value.Dtype(), n.Lanes)
	case *ir.Ramp:
		return c.compileRamp(n)
	case *ir.Intrinsics:
		return c.compileIntrinsics(n)
	case *ir.Load:
		return c.compileLoad(n)
	default:
		panic(fmt.Sprintf("compileExpr: unknown expression node %T", e))
	}
}

func (c *Compiler) compileBinary(n *ir.Binary) llvm.Value {
	left := c.compileExpr(n.LHS)
	right := c.compileExpr(n.RHS)

	fn, ok := defaultOps[opKey{Op: n.Op, Class: classOf(n.Dtype().Scalar)}]
	if !ok {
		c.errorf("operator %s is not supported for %s", n.Op, n.Dtype())
		return llvm.Undef(c.mapToLLVMType(n.Dtype()))
	}
	return fn(c, n, left, right)
}

func (c *Compiler) compileCast(n *ir.Cast) llvm.Value {
	src := c.compileExpr(n.Src)
	from := n.Src.Dtype().Scalar
	to := n.To.Scalar
	toTy := c.mapToLLVMType(n.To)
	fromUnsigned := from == types.Bool || from == types.Uint8

	switch {
	case from == to:
		return src
	case from.IsInt() && to.IsFloat():
		if fromUnsigned {
			return c.builder.CreateUIToFP(src, toTy, "uitofp_tmp")
		}
		return c.builder.CreateSIToFP(src, toTy, "sitofp_tmp")
	case from.IsFloat() && to.IsFloat():
		if to.Bits() < from.Bits() {
			return c.builder.CreateFPTrunc(src, toTy, "fptrunc_tmp")
		}
		return c.builder.CreateFPExt(src, toTy, "fpext_tmp")
	case from.IsFloat() && to == types.Bool:
		zero := llvm.ConstNull(c.mapToLLVMType(n.Src.Dtype()))
		return c.builder.CreateFCmp(llvm.FloatONE, src, zero, "fcmp_tmp")
	case from.IsFloat():
		if to == types.Uint8 {
			return c.builder.CreateFPToUI(src, toTy, "fptoui_tmp")
		}
		return c.builder.CreateFPToSI(src, toTy, "fptosi_tmp")
	case to == types.Bool:
		zero := llvm.ConstNull(c.mapToLLVMType(n.Src.Dtype()))
		return c.builder.CreateICmp(llvm.IntNE, src, zero, "icmp_tmp")
	case to.Bits() < from.Bits():
		return c.builder.CreateTrunc(src, toTy, "trunc_tmp")
	case to.Bits() > from.Bits():
		if fromUnsigned {
			return c.builder.CreateZExt(src, toTy, "zext_tmp")
		}
		return c.builder.CreateSExt(src, toTy, "sext_tmp")
	default:
		// Same width, different signedness (I8 <-> U8): same LLVM type.
		return src
	}
}

// broadcast splats a scalar value across lanes with the usual
// insertelement + shufflevector pair.
func (c *Compiler) broadcast(val llvm.Value, scalarDt types.Dtype, lanes int) llvm.Value {
	vecTy := c.mapToLLVMType(scalarDt.WithLanes(lanes))
	i32 := c.Context.Int32Type()
	seed := c.builder.CreateInsertElement(
		llvm.Undef(vecTy), val, llvm.ConstInt(i32, 0, false), "bc_insert")
	zeroMask := llvm.ConstNull(llvm.VectorType(i32, lanes))
	return c.builder.CreateShuffleVector(seed, llvm.Undef(vecTy), zeroMask, "bc_tmp")
}

// compileRamp lowers ramp(base, stride, n) as bc(base) + bc(stride) * iota.
func (c *Compiler) compileRamp(n *ir.Ramp) llvm.Value {
	dt := n.Base.Dtype()
	base := c.broadcast(c.compileExpr(n.Base), dt, n.Lanes)
	stride := c.broadcast(c.compileExpr(n.Stride), dt, n.Lanes)

	elemTy := c.scalarType(dt.Scalar)
	lanes := make([]llvm.Value, n.Lanes)
	for i := range lanes {
		if dt.Scalar.IsFloat() {
			lanes[i] = llvm.ConstFloat(elemTy, float64(i))
		} else {
			lanes[i] = llvm.ConstInt(elemTy, uint64(i), false)
		}
	}
	steps := llvm.ConstVector(lanes, false)

	if dt.Scalar.IsFloat() {
		scaled := c.builder.CreateFMul(stride, steps, "ramp_scale")
		return c.builder.CreateFAdd(base, scaled, "ramp_tmp")
	}
	scaled := c.builder.CreateMul(stride, steps, "ramp_scale")
	return c.builder.CreateAdd(base, scaled, "ramp_tmp")
}

// llvmIntrinsics are lowered to llvm.* overloaded intrinsics (vector-capable).
var llvmIntrinsics = map[ir.IntrinsicOp]string{
	ir.Sin:   "sin",
	ir.Cos:   "cos",
	ir.Exp:   "exp",
	ir.Log:   "log",
	ir.Log2:  "log2",
	ir.Log10: "log10",
	ir.Sqrt:  "sqrt",
	ir.Fabs:  "fabs",
	ir.Floor: "floor",
	ir.Ceil:  "ceil",
	ir.Round: "round",
	ir.Trunc: "trunc",
	ir.Pow:   "pow",
}

// libmIntrinsics have no llvm.* form and call into libm (scalar F32/F64 only).
var libmIntrinsics = map[ir.IntrinsicOp]string{
	ir.Tan:   "tan",
	ir.Asin:  "asin",
	ir.Acos:  "acos",
	ir.Atan:  "atan",
	ir.Atan2: "atan2",
	ir.Fmod:  "fmod",
}

func (c *Compiler) compileIntrinsics(n *ir.Intrinsics) llvm.Value {
	if n.Op == ir.Rand {
		return c.compileRand(n)
	}

	args := make([]llvm.Value, len(n.Params))
	for i, p := range n.Params {
		args[i] = c.compileExpr(p)
	}

	if base, ok := llvmIntrinsics[n.Op]; ok {
		return c.callLLVMIntrinsic(base, n.T, args...)
	}
	if name, ok := libmIntrinsics[n.Op]; ok {
		return c.callLibm(name, n.T, args...)
	}

	c.errorf("cannot lower intrinsic %s", n.Op)
	return llvm.Undef(c.mapToLLVMType(n.T))
}

// compileRand lowers the impure rand() as libc rand() scaled into [0, 1).
func (c *Compiler) compileRand(n *ir.Intrinsics) llvm.Value {
	if !n.T.IsScalar() || !n.T.Scalar.IsFloat() {
		c.errorf("rand is only lowered for scalar float dtypes, got %s", n.T)
		return llvm.Undef(c.mapToLLVMType(n.T))
	}
	i32 := c.Context.Int32Type()
	randTy := llvm.FunctionType(i32, nil, false)
	randFn := c.Module.NamedFunction("rand")
	if randFn.IsNil() {
		randFn = llvm.AddFunction(c.Module, "rand", randTy)
	}
	raw := c.builder.CreateCall(randTy, randFn, nil, "rand_raw")
	ty := c.mapToLLVMType(n.T)
	fp := c.builder.CreateSIToFP(raw, ty, "rand_fp")
	return c.builder.CreateFDiv(fp, llvm.ConstFloat(ty, 2147483647.0), "rand_tmp")
}

func llvmIntrinsicName(base string, dt types.Dtype) string {
	if dt.IsScalar() {
		return fmt.Sprintf("llvm.%s.f%d", base, dt.Scalar.Bits())
	}
	return fmt.Sprintf("llvm.%s.v%df%d", base, dt.Lanes, dt.Scalar.Bits())
}

func (c *Compiler) callLLVMIntrinsic(base string, dt types.Dtype, args ...llvm.Value) llvm.Value {
	ty := c.mapToLLVMType(dt)
	paramTys := make([]llvm.Type, len(args))
	for i := range paramTys {
		paramTys[i] = ty
	}
	fnType := llvm.FunctionType(ty, paramTys, false)

	name := llvmIntrinsicName(base, dt)
	fn := c.Module.NamedFunction(name)
	if fn.IsNil() {
		fn = llvm.AddFunction(c.Module, name, fnType)
	}
	return c.builder.CreateCall(fnType, fn, args, base+"_tmp")
}

func (c *Compiler) callLibm(name string, dt types.Dtype, args ...llvm.Value) llvm.Value {
	if !dt.IsScalar() || (dt.Scalar != types.Float32 && dt.Scalar != types.Float64) {
		c.errorf("%s is only lowered for scalar F32/F64, got %s", name, dt)
		return llvm.Undef(c.mapToLLVMType(dt))
	}
	if dt.Scalar == types.Float32 {
		name += "f"
	}

	ty := c.mapToLLVMType(dt)
	paramTys := make([]llvm.Type, len(args))
	for i := range paramTys {
		paramTys[i] = ty
	}
	fnType := llvm.FunctionType(ty, paramTys, false)

	fn := c.Module.NamedFunction(name)
	if fn.IsNil() {
		fn = llvm.AddFunction(c.Module, name, fnType)
	}
	return c.builder.CreateCall(fnType, fn, args, name+"_tmp")
}

// compileLoad lowers a buffer read. Only all-on constant masks are emitted;
// vector loads additionally need a unit-stride ramp index so they map to one
// contiguous wide load (the pattern the Add Broadcast+Ramp fold normalizes
// toward).
func (c *Compiler) compileLoad(n *ir.Load) llvm.Value {
	base := c.vals[n.Base.Name]
	elemTy := c.scalarType(n.T.Scalar)

	if !maskAllOn(n.Mask) {
		c.errorf("load from %q: only all-on constant masks are supported", n.Base.Name)
		return llvm.Undef(c.mapToLLVMType(n.T))
	}

	if n.T.IsScalar() {
		idx := c.compileExpr(n.Index)
		gep := c.builder.CreateInBoundsGEP(elemTy, base, []llvm.Value{idx}, n.Base.Name+"_addr")
		return c.builder.CreateLoad(elemTy, gep, n.Base.Name+"_load")
	}

	r, ok := n.Index.(*ir.Ramp)
	if !ok || !isIntImm(r.Stride, 1) {
		c.errorf("load from %q: vector load needs a unit-stride ramp index", n.Base.Name)
		return llvm.Undef(c.mapToLLVMType(n.T))
	}
	idx := c.compileExpr(r.Base)
	gep := c.builder.CreateInBoundsGEP(elemTy, base, []llvm.Value{idx}, n.Base.Name+"_addr")
	return c.builder.CreateLoad(c.mapToLLVMType(n.T), gep, n.Base.Name+"_load")
}

func maskAllOn(mask ir.Expr) bool {
	if b, ok := mask.(*ir.Broadcast); ok {
		mask = b.Value
	}
	imm, ok := mask.(*ir.IntImm)
	return ok && imm.Value != 0
}

func (c *Compiler) GenerateIR() string {
	return c.Module.String()
}
