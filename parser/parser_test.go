package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thiremani/tensorc/ir"
	"github.com/thiremani/tensorc/lexer"
	"github.com/thiremani/tensorc/types"
)

func parseKernel(t *testing.T, src string) *Kernel {
	t.Helper()
	p := New(lexer.New(src))
	k := p.ParseKernel("test")
	require.Empty(t, p.Errors())
	return k
}

func parseErrors(src string) []string {
	p := New(lexer.New(src))
	p.ParseKernel("test")
	msgs := []string{}
	for _, ce := range p.Errors() {
		msgs = append(msgs, ce.Msg)
	}
	return msgs
}

func TestParseKernel(t *testing.T) {
	k := parseKernel(t, `x F32
i I32
a F32[]
out = x * 2.0 + 1.0
v = a[ramp(i, 1, 4)] + bc(x, 4)
`)

	require.Len(t, k.Params, 3)
	assert.Equal(t, "x", k.Params[0].Var.Name)
	assert.Equal(t, types.Scalar(types.Float32), k.Params[0].Var.T)
	assert.False(t, k.Params[0].Buffer)
	assert.Equal(t, types.Scalar(types.Int32), k.Params[1].Var.T)
	assert.True(t, k.Params[2].Buffer)

	require.Len(t, k.Outputs, 2)
	assert.Equal(t, "out", k.Outputs[0].Name)
	assert.Equal(t, "((x * 2) + 1)", k.Outputs[0].Expr.String())
	assert.Equal(t, types.Scalar(types.Float32), k.Outputs[0].Expr.Dtype())
	assert.Equal(t, types.Scalar(types.Float32).WithLanes(4), k.Outputs[1].Expr.Dtype())
}

func TestParseVarNodesShared(t *testing.T) {
	k := parseKernel(t, `x F32
out = x * x
`)

	b := k.Outputs[0].Expr.(*ir.Binary)
	assert.Same(t, k.Params[0].Var, b.LHS)
	assert.Same(t, b.LHS, b.RHS)
}

func TestParsePrecedence(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"out = 1 + 2 * 3", "(1 + (2 * 3))"},
		{"out = 1 << 2 + 3", "((1 << 2) + 3)"},
		{"out = 1 ^ 2 & 3", "(1 ^ (2 & 3))"},
		{"out = (1 + 2) * 3", "((1 + 2) * 3)"},
		{"out = 8 / 4 / 2", "((8 / 4) / 2)"},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			k := parseKernel(t, tt.src+"\n")
			assert.Equal(t, tt.want, k.Outputs[0].Expr.String())
		})
	}
}

// Bare literals take the kind of the declared operand, so 2 and 1.0 work
// against an F64 (or I64) variable without explicit casts.
func TestParseLiteralCoercion(t *testing.T) {
	k := parseKernel(t, `x F64
n I64
out = x * 2
off = n + 1
`)

	mul := k.Outputs[0].Expr.(*ir.Binary)
	rhs := mul.RHS.(*ir.FloatImm)
	assert.Equal(t, types.Float64, rhs.T)
	assert.Equal(t, 2.0, rhs.Value)

	add := k.Outputs[1].Expr.(*ir.Binary)
	assert.Equal(t, types.Int64, add.RHS.(*ir.IntImm).T)
}

func TestParseMinMax(t *testing.T) {
	k := parseKernel(t, `x F32
a = min(x, 1.0)
b = maxnan(x, 1.0)
`)

	mn := k.Outputs[0].Expr.(*ir.Binary)
	assert.Equal(t, ir.Min, mn.Op)
	assert.False(t, mn.PropagateNaNs)

	mx := k.Outputs[1].Expr.(*ir.Binary)
	assert.Equal(t, ir.Max, mx.Op)
	assert.True(t, mx.PropagateNaNs)
}

func TestParseCast(t *testing.T) {
	k := parseKernel(t, `x F32
i I32
c = I32(x)
v = F64(bc(i, 4))
`)

	c := k.Outputs[0].Expr.(*ir.Cast)
	assert.Equal(t, types.Scalar(types.Int32), c.To)

	// Cast of a vector keeps the lane count.
	v := k.Outputs[1].Expr.(*ir.Cast)
	assert.Equal(t, types.Scalar(types.Float64).WithLanes(4), v.To)
}

func TestParseRand(t *testing.T) {
	k := parseKernel(t, "r = rand(F32)\n")

	r := k.Outputs[0].Expr.(*ir.Intrinsics)
	assert.Equal(t, ir.Rand, r.Op)
	assert.Empty(t, r.Params)
	assert.Equal(t, types.Scalar(types.Float32), r.Dtype())
}

func TestParseIntrinsics(t *testing.T) {
	k := parseKernel(t, `x F32
a = sin(x)
b = pow(x, 2.0)
`)

	s := k.Outputs[0].Expr.(*ir.Intrinsics)
	assert.Equal(t, ir.Sin, s.Op)

	pw := k.Outputs[1].Expr.(*ir.Intrinsics)
	assert.Equal(t, ir.Pow, pw.Op)
	require.Len(t, pw.Params, 2)
	assert.Equal(t, types.Float32, pw.Params[1].(*ir.FloatImm).T)
}

func TestParseLoad(t *testing.T) {
	k := parseKernel(t, `i I32
m I32x4
a F32[]
s = a[i]
v = a[ramp(i, 1, 4)]
w = a[ramp(i, 1, 4), m]
`)

	s := k.Outputs[0].Expr.(*ir.Load)
	assert.Equal(t, types.Scalar(types.Float32), s.Dtype())
	assert.Equal(t, int64(1), s.Mask.(*ir.IntImm).Value)

	v := k.Outputs[1].Expr.(*ir.Load)
	assert.Equal(t, types.Scalar(types.Float32).WithLanes(4), v.Dtype())
	bc, ok := v.Mask.(*ir.Broadcast)
	require.True(t, ok)
	assert.Equal(t, 4, bc.Lanes)

	w := k.Outputs[2].Expr.(*ir.Load)
	assert.Same(t, k.Params[1].Var, w.Mask)
}

func TestParseNegation(t *testing.T) {
	k := parseKernel(t, `x F32
a = -3.5
b = -2
c = -x
`)

	assert.Equal(t, -3.5, k.Outputs[0].Expr.(*ir.FloatImm).Value)
	assert.Equal(t, int64(-2), k.Outputs[1].Expr.(*ir.IntImm).Value)

	neg := k.Outputs[2].Expr.(*ir.Binary)
	assert.Equal(t, ir.Sub, neg.Op)
	assert.Equal(t, 0.0, neg.LHS.(*ir.FloatImm).Value)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"undeclared", "out = y + 1\n", `undeclared identifier "y"`},
		{"unknown function", "out = frob(1.0)\n", `unknown function "frob"`},
		{"unknown type", "x F99\n", `unknown type "F99"`},
		{"duplicate decl", "x F32\nx I32\n", `"x" is already declared`},
		{"assign to param", "x F32\nx = 1.0\n", `cannot assign to parameter "x"`},
		{"float mod", "x F32\nout = x % 2.0\n", "operator % is not defined on F32"},
		{"float shift", "x F32\nout = x << 1\n", "operator << is not defined on F32"},
		{"unindexed buffer", "a F32[]\nout = a + 1.0\n", `buffer "a" must be indexed`},
		{"index non-buffer", "x F32\nout = x[0]\n", `"x" is not a buffer`},
		{"float index", "a F32[]\nout = a[1.5]\n", `index into "a" must be integral, got F32`},
		{"rand dtype", "r = rand(I32)\n", `rand needs a float dtype, got "I32"`},
		{"lane count", "x F32\nout = bc(x, 1)\n", "lane count must be an integer literal >= 2"},
		{"vector buffer decl", "a F32x4[]\n", `buffer "a" must have a scalar element type, got F32x4`},
		{"type mismatch", "x F32\ny F64\nout = x + y\n", "operand type mismatch for +: F32 vs F64"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := parseErrors(tt.src)
			require.NotEmpty(t, msgs)
			assert.Contains(t, msgs[0], tt.want)
		})
	}
}

func TestParseRecoversAfterError(t *testing.T) {
	p := New(lexer.New(`x F32
out = frob(x)
ok = x + 1.0
`))
	k := p.ParseKernel("test")

	assert.NotEmpty(t, p.Errors())
	require.Len(t, k.Outputs, 1)
	assert.Equal(t, "ok", k.Outputs[0].Name)
}
