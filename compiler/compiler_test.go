package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thiremani/tensorc/lexer"
	"github.com/thiremani/tensorc/parser"
	"tinygo.org/x/go-llvm"
)

// compileSrc runs the whole pipeline on one kernel source and returns the
// emitted LLVM IR text.
func compileSrc(t *testing.T, src string) string {
	t.Helper()
	p := parser.New(lexer.New(src))
	k := p.ParseKernel("test")
	require.Empty(t, p.Errors())

	for _, out := range k.Outputs {
		out.Expr = Fold(out.Expr)
	}

	ctx := llvm.NewContext()
	t.Cleanup(ctx.Dispose)
	c := NewCompiler(ctx, "test")
	c.CompileKernel(k)
	require.Empty(t, c.Errors)
	return c.GenerateIR()
}

func TestCompileScalarKernel(t *testing.T) {
	ir := compileSrc(t, `x F32
out = x * 2.0 + 1.0
`)

	assert.Contains(t, ir, "define void @tk_test(float %x, ptr %out_out)")
	assert.Contains(t, ir, "fmul float")
	assert.Contains(t, ir, "fadd float")
	assert.Contains(t, ir, "store float")
}

func TestCompileFoldsConstants(t *testing.T) {
	ir := compileSrc(t, "out = 2 + 3\n")

	assert.Contains(t, ir, "store i32 5")
	assert.NotContains(t, ir, "add_tmp")
}

func TestCompileIntOps(t *testing.T) {
	ir := compileSrc(t, `n I32
a = n << 2
b = n >> 2
c = n & 7
d = n ^ 7
e = n % 7
`)

	assert.Contains(t, ir, "shl i32")
	assert.Contains(t, ir, "ashr i32")
	assert.Contains(t, ir, "and i32")
	assert.Contains(t, ir, "xor i32")
	assert.Contains(t, ir, "srem i32")
}

func TestCompileUnsignedOps(t *testing.T) {
	ir := compileSrc(t, `n U8
a = n / 3
b = n >> 1
`)

	assert.Contains(t, ir, "udiv i8")
	assert.Contains(t, ir, "lshr i8")
}

func TestCompileVector(t *testing.T) {
	ir := compileSrc(t, `x F32
v = bc(x, 4) * bc(2.0, 4)
`)

	assert.Contains(t, ir, "<4 x float>")
	assert.Contains(t, ir, "shufflevector")
	assert.Contains(t, ir, "fmul <4 x float>")
}

func TestCompileRamp(t *testing.T) {
	ir := compileSrc(t, `i I32
v = ramp(i, 2, 4)
`)

	assert.Contains(t, ir, "<4 x i32>")
	assert.Contains(t, ir, "mul <4 x i32>")
	assert.Contains(t, ir, "<i32 0, i32 1, i32 2, i32 3>")
}

func TestCompileMinMaxIntrinsics(t *testing.T) {
	ir := compileSrc(t, `x F32
y F32
a = min(x, y)
b = minnan(x, y)
c = maxnan(x, y)
`)

	assert.Contains(t, ir, "llvm.minnum.f32")
	assert.Contains(t, ir, "llvm.minimum.f32")
	assert.Contains(t, ir, "llvm.maximum.f32")
}

func TestCompileIntMinMax(t *testing.T) {
	ir := compileSrc(t, `n I32
m I32
a = min(n, m)
`)

	assert.Contains(t, ir, "icmp slt i32")
	assert.Contains(t, ir, "select i1")
}

func TestCompileMathIntrinsics(t *testing.T) {
	ir := compileSrc(t, `x F32
a = sqrt(x)
b = pow(x, 2.0)
c = tan(x)
`)

	assert.Contains(t, ir, "llvm.sqrt.f32")
	assert.Contains(t, ir, "llvm.pow.f32")
	// tan has no llvm.* form; it calls libm, with the f suffix for F32.
	assert.Contains(t, ir, "call float @tanf")
}

func TestCompileVectorIntrinsic(t *testing.T) {
	ir := compileSrc(t, `x F32
v = sqrt(bc(x, 8))
`)

	assert.Contains(t, ir, "llvm.sqrt.v8f32")
}

func TestCompileCasts(t *testing.T) {
	ir := compileSrc(t, `n I32
x F32
a = F32(n)
b = I32(x)
c = F64(x)
d = I64(n)
`)

	assert.Contains(t, ir, "sitofp i32")
	assert.Contains(t, ir, "fptosi float")
	assert.Contains(t, ir, "fpext float")
	assert.Contains(t, ir, "sext i32")
}

func TestCompileLoad(t *testing.T) {
	ir := compileSrc(t, `i I32
a F32[]
s = a[i]
v = a[ramp(i, 1, 4)]
`)

	assert.Contains(t, ir, "define void @tk_test(i32 %i, ptr %a")
	assert.Contains(t, ir, "getelementptr inbounds float, ptr %a")
	assert.Contains(t, ir, "load float, ptr")
	assert.Contains(t, ir, "load <4 x float>, ptr")
}

func TestCompileRand(t *testing.T) {
	ir := compileSrc(t, "r = rand(F32)\n")

	assert.Contains(t, ir, "call i32 @rand()")
	assert.Contains(t, ir, "sitofp i32")
	assert.Contains(t, ir, "fdiv float")
}

func TestCompileStridedVectorLoadRejected(t *testing.T) {
	p := parser.New(lexer.New(`i I32
a F32[]
v = a[ramp(i, 2, 4)]
`))
	k := p.ParseKernel("test")
	require.Empty(t, p.Errors())

	ctx := llvm.NewContext()
	t.Cleanup(ctx.Dispose)
	c := NewCompiler(ctx, "test")
	c.CompileKernel(k)

	require.NotEmpty(t, c.Errors)
	assert.Contains(t, c.Errors[0].Msg, "unit-stride ramp index")
}
