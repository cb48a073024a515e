package compiler

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thiremani/tensorc/ir"
	"github.com/thiremani/tensorc/types"
)

func imm(k types.Kind, v int64) *ir.IntImm {
	return &ir.IntImm{T: k, Value: v}
}

func TestEvaluateProducesImmediate(t *testing.T) {
	e := bin(ir.Mul, i32(6), i32(7))

	out, ok := Evaluate(e).(*ir.IntImm)
	require.True(t, ok)
	assert.Equal(t, int64(42), out.Value)
	assert.Equal(t, types.Int32, out.T)
}

func TestEvalIntegerWrapping(t *testing.T) {
	tests := []struct {
		name string
		expr ir.Expr
		want int64
	}{
		{"int8 overflow", bin(ir.Add, imm(types.Int8, 127), imm(types.Int8, 1)), -128},
		{"uint8 overflow", bin(ir.Add, imm(types.Uint8, 255), imm(types.Uint8, 1)), 0},
		{"int16 mul wrap", bin(ir.Mul, imm(types.Int16, 300), imm(types.Int16, 300)), 24464}, // 90000 wrapped to 16 bits
		{"int32 shl wrap", bin(ir.Lshift, imm(types.Int32, 1), imm(types.Int32, 33)), 0},
		{"int64 no wrap", bin(ir.Add, imm(types.Int64, math.MaxInt32), imm(types.Int64, 1)), math.MaxInt32 + 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Evaluate(tt.expr).(*ir.IntImm)
			assert.Equal(t, tt.want, out.Value)
		})
	}
}

func TestEvalFloatRounding(t *testing.T) {
	// F32 arithmetic must round to float32 at every step; the widened
	// result is not the float64 one.
	third := bin(ir.Div, f32(1.0), f32(3.0))
	out := Evaluate(third).(*ir.FloatImm)
	assert.Equal(t, float64(float32(1.0/3.0)), out.Value)
	assert.NotEqual(t, 1.0/3.0, out.Value)

	wide := bin(ir.Div, &ir.FloatImm{T: types.Float64, Value: 1.0}, &ir.FloatImm{T: types.Float64, Value: 3.0})
	assert.Equal(t, 1.0/3.0, Evaluate(wide).(*ir.FloatImm).Value)
}

func TestEvalCasts(t *testing.T) {
	tests := []struct {
		name string
		cast *ir.Cast
		want ir.Expr
	}{
		{
			"float to int truncates",
			&ir.Cast{Src: &ir.FloatImm{T: types.Float64, Value: 3.7}, To: types.Scalar(types.Int32)},
			imm(types.Int32, 3),
		},
		{
			"int to float",
			&ir.Cast{Src: i32(5), To: types.Scalar(types.Float64)},
			&ir.FloatImm{T: types.Float64, Value: 5.0},
		},
		{
			"narrowing int wraps",
			&ir.Cast{Src: imm(types.Int32, 300), To: types.Scalar(types.Int8)},
			imm(types.Int8, 44),
		},
		{
			"int to bool",
			&ir.Cast{Src: i32(42), To: types.Scalar(types.Bool)},
			imm(types.Bool, 1),
		},
		{
			"float to bool zero",
			&ir.Cast{Src: f32(0.0), To: types.Scalar(types.Bool)},
			imm(types.Bool, 0),
		},
		{
			"double to float rounds",
			&ir.Cast{Src: &ir.FloatImm{T: types.Float64, Value: 1.0 / 3.0}, To: types.Scalar(types.Float32)},
			&ir.FloatImm{T: types.Float32, Value: float64(float32(1.0 / 3.0))},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.cast))
		})
	}
}

func TestEvalMinMaxNaN(t *testing.T) {
	nan := math.NaN()

	assert.True(t, math.IsNaN(evalMinMaxFloat(nan, 2.0, true, math.Min)))
	assert.True(t, math.IsNaN(evalMinMaxFloat(2.0, nan, true, math.Max)))
	assert.Equal(t, 2.0, evalMinMaxFloat(nan, 2.0, false, math.Min))
	assert.Equal(t, 2.0, evalMinMaxFloat(2.0, nan, false, math.Max))
	assert.Equal(t, 1.0, evalMinMaxFloat(1.0, 2.0, true, math.Min))
	assert.Equal(t, 2.0, evalMinMaxFloat(1.0, 2.0, false, math.Max))
}

func TestEvalIntrinsics(t *testing.T) {
	tests := []struct {
		name string
		expr *ir.Intrinsics
		want float64
	}{
		{"pow", ir.NewIntrinsics(ir.Pow, f32(2.0), f32(10.0)), 1024.0},
		{"sqrt", ir.NewIntrinsics(ir.Sqrt, f32(16.0)), 4.0},
		{"floor", ir.NewIntrinsics(ir.Floor, f32(2.9)), 2.0},
		{"round half away", ir.NewIntrinsics(ir.Round, f32(-1.5)), -2.0},
		{"fmod", ir.NewIntrinsics(ir.Fmod, f32(7.5), f32(2.0)), 1.5},
		{"fabs", ir.NewIntrinsics(ir.Fabs, f32(-3.0)), 3.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Evaluate(tt.expr).(*ir.FloatImm)
			assert.Equal(t, tt.want, out.Value)
		})
	}
}

func TestEvalWithEnv(t *testing.T) {
	x := varF32("x")
	e := bin(ir.Mul, x, f32(4.0))

	got := Eval(e, Env{"x": {K: types.Float32, F: 2.5}})
	assert.Equal(t, 10.0, got.F)
}

func TestEvalPanics(t *testing.T) {
	assert.Panics(t, func() { Evaluate(varF32("x")) }, "non-constant")
	assert.Panics(t, func() { Eval(varF32("x"), nil) }, "unbound variable")
	assert.Panics(t, func() { Evaluate(bin(ir.Div, i32(1), i32(0))) }, "division by zero")
	assert.Panics(t, func() { Evaluate(bin(ir.Mod, i32(1), i32(0))) }, "modulo by zero")
	assert.Panics(t, func() {
		Eval(&ir.Broadcast{Value: i32(1), Lanes: 4}, nil)
	}, "vector has no scalar value")
	assert.Panics(t, func() {
		Eval(ir.NewRand(types.Scalar(types.Float32)), nil)
	}, "impure intrinsic")
}
