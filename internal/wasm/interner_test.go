package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTypeInterner(t *testing.T) {
	in := NewTypeInterner()

	a := &FunctionType{Params: []ValueType{ValueTypeI32}, Results: []ValueType{ValueTypeI64}}
	b := &FunctionType{Params: []ValueType{ValueTypeI32}, Results: []ValueType{ValueTypeI64}}
	c := &FunctionType{Params: []ValueType{ValueTypeI32, ValueTypeI64}}
	// Params/results split must be part of the identity.
	d := &FunctionType{Results: []ValueType{ValueTypeI32, ValueTypeI64}}

	idA := in.Intern(a)
	require.Equal(t, idA, in.Intern(b))
	require.NotEqual(t, idA, in.Intern(c))
	require.NotEqual(t, in.Intern(c), in.Intern(d))
	require.Equal(t, 3, in.Count())

	require.Equal(t, a, in.Resolve(idA))
	require.Nil(t, in.Resolve(TypeID(99)))
}

func TestFunctionTypeString(t *testing.T) {
	require.Equal(t, "v_v", (&FunctionType{}).String())
	ft := &FunctionType{Params: []ValueType{ValueTypeI32, ValueTypeF64}, Results: []ValueType{ValueTypeFuncref}}
	require.Equal(t, "i32f64_funcref", ft.String())
}
