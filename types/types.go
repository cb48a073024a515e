package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies a scalar element type. The set is closed: the constant
// evaluator and the LLVM lowering both switch exhaustively over it.
type Kind int

const (
	Invalid Kind = iota
	Bool
	Int8
	Int16
	Int32
	Int64
	Uint8
	Float16
	Float32
	Float64
)

var kindNames = [...]string{
	Invalid: "?",
	Bool:    "Bool",
	Int8:    "I8",
	Int16:   "I16",
	Int32:   "I32",
	Int64:   "I64",
	Uint8:   "U8",
	Float16: "F16",
	Float32: "F32",
	Float64: "F64",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
	return kindNames[k]
}

// IsInt reports whether k is an integral kind. Bool counts: it is stored and
// computed as a 1-bit integer.
func (k Kind) IsInt() bool {
	switch k {
	case Bool, Int8, Int16, Int32, Int64, Uint8:
		return true
	}
	return false
}

func (k Kind) IsFloat() bool {
	switch k {
	case Float16, Float32, Float64:
		return true
	}
	return false
}

// Bits returns the storage width of k in bits.
func (k Kind) Bits() int {
	switch k {
	case Bool:
		return 1
	case Int8, Uint8:
		return 8
	case Int16, Float16:
		return 16
	case Int32, Float32:
		return 32
	case Int64, Float64:
		return 64
	default:
		panic("unknown kind in Bits: " + k.String())
	}
}

// Dtype is the type of an expression value: a scalar element kind plus a
// vector lane count. Scalars have Lanes == 1. Dtype is comparable, so it can
// be used directly as a map key or compared with ==.
type Dtype struct {
	Scalar Kind
	Lanes  int
}

// Scalar returns the single-lane dtype for k.
func Scalar(k Kind) Dtype {
	return Dtype{Scalar: k, Lanes: 1}
}

func (d Dtype) IsScalar() bool {
	return d.Lanes == 1
}

// WithLanes returns d widened (or narrowed) to n lanes.
func (d Dtype) WithLanes(n int) Dtype {
	return Dtype{Scalar: d.Scalar, Lanes: n}
}

func (d Dtype) String() string {
	if d.Lanes == 1 {
		return d.Scalar.String()
	}
	return fmt.Sprintf("%sx%d", d.Scalar, d.Lanes)
}

// ParseDtype parses a source-level dtype name such as "F32" or "I64x4".
// The bool result is false if name is not a dtype name.
func ParseDtype(name string) (Dtype, bool) {
	base := name
	lanes := 1
	if i := strings.IndexByte(name, 'x'); i > 0 {
		n, err := strconv.Atoi(name[i+1:])
		if err != nil || n < 2 {
			return Dtype{}, false
		}
		base = name[:i]
		lanes = n
	}
	k, ok := KindForName(base)
	if !ok {
		return Dtype{}, false
	}
	return Dtype{Scalar: k, Lanes: lanes}, true
}
