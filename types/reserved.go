package types

var reservedTypeNames = []string{
	"Bool",
	"I8",
	"I16",
	"I32",
	"I64",
	"U8",
	"F16",
	"F32",
	"F64",
}

var reservedKinds = map[string]Kind{
	"Bool": Bool,
	"I8":   Int8,
	"I16":  Int16,
	"I32":  Int32,
	"I64":  Int64,
	"U8":   Uint8,
	"F16":  Float16,
	"F32":  Float32,
	"F64":  Float64,
}

// ReservedTypeNames returns a copy of source-level reserved type names.
func ReservedTypeNames() []string {
	return append([]string(nil), reservedTypeNames...)
}

// IsReservedTypeName reports whether name is reserved for built-in scalar types.
func IsReservedTypeName(name string) bool {
	_, ok := reservedKinds[name]
	return ok
}

// KindForName maps a source-level type name to its Kind.
func KindForName(name string) (Kind, bool) {
	k, ok := reservedKinds[name]
	return k, ok
}
