// Package wasm holds the WebAssembly module model shared by the binary
// decoder and the function translator.
package wasm

// Index is the offset in an index namespace, not necessarily an absolute
// position in a Module section, as index namespaces begin with imports.
type Index = uint32

// ValueType describes a numeric or reference type as encoded in the binary
// format.
//
// See https://www.w3.org/TR/wasm-core-2/#binary-valtype
type ValueType = byte

const (
	ValueTypeI32       ValueType = 0x7f
	ValueTypeI64       ValueType = 0x7e
	ValueTypeF32       ValueType = 0x7d
	ValueTypeF64       ValueType = 0x7c
	ValueTypeFuncref   ValueType = 0x70
	ValueTypeExternref ValueType = 0x6f
)

// ValueTypeName returns a name for t, or "unknown" for an undefined value.
func ValueTypeName(t ValueType) string {
	switch t {
	case ValueTypeI32:
		return "i32"
	case ValueTypeI64:
		return "i64"
	case ValueTypeF32:
		return "f32"
	case ValueTypeF64:
		return "f64"
	case ValueTypeFuncref:
		return "funcref"
	case ValueTypeExternref:
		return "externref"
	}
	return "unknown"
}

// IsReferenceType returns true for funcref and externref.
func IsReferenceType(t ValueType) bool {
	return t == ValueTypeFuncref || t == ValueTypeExternref
}

// FunctionType is a possibly empty function signature.
type FunctionType struct {
	Params  []ValueType
	Results []ValueType

	// cachedKey is the cached result of Key(), used by the interner.
	cachedKey string
}

// Key returns a string unique per signature, so that equal signatures
// compare equal as strings.
func (t *FunctionType) Key() string {
	if t.cachedKey == "" {
		b := make([]byte, 0, len(t.Params)+len(t.Results)+1)
		b = append(b, t.Params...)
		b = append(b, 0)
		b = append(b, t.Results...)
		t.cachedKey = string(b)
	}
	return t.cachedKey
}

func (t *FunctionType) String() (ret string) {
	for _, b := range t.Params {
		ret += ValueTypeName(b)
	}
	if len(t.Params) == 0 {
		ret += "v"
	}
	ret += "_"
	for _, b := range t.Results {
		ret += ValueTypeName(b)
	}
	if len(t.Results) == 0 {
		ret += "v"
	}
	return
}
