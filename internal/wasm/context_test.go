package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testModule() *Module {
	max := uint64(2)
	return &Module{
		TypeSection: []*FunctionType{
			{Params: []ValueType{ValueTypeI32}, Results: []ValueType{ValueTypeI32}},
			{},
		},
		ImportSection: []*Import{
			{Kind: ImportKindFunc, Module: "env", Name: "f", DescFunc: 1},
			{Kind: ImportKindMemory, Module: "env", Name: "m", DescMem: &Memory{Limits: &Limits{Min: 1}}},
			{Kind: ImportKindGlobal, Module: "env", Name: "g", DescGlobal: &GlobalType{ValType: ValueTypeF64}},
		},
		FunctionSection: []Index{0},
		TableSection: []*Table{
			{ElemType: ValueTypeFuncref, Limits: &Limits{Min: 1, Max: &max}},
			{ElemType: ValueTypeExternref, Limits: &Limits{Min: 0, Is64: true}},
		},
		MemorySection: []*Memory{{Limits: &Limits{Min: 0, Is64: true}}},
		GlobalSection: []*Global{{Type: &GlobalType{ValType: ValueTypeI64, Mutable: true}}},
		ElementSection: []*ElementSegment{
			{ElemType: ValueTypeFuncref, Passive: true},
		},
		DataSection: []*DataSegment{{Passive: true}},
	}
}

func TestModuleContext_functionNamespace(t *testing.T) {
	ctx := NewModuleContext(testModule(), NewTypeInterner(), false)

	// Function 0 is the import with type 1, function 1 is local with type 0.
	_, ft, err := ctx.FunctionType(0)
	require.NoError(t, err)
	require.Empty(t, ft.Params)

	_, ft, err = ctx.FunctionType(1)
	require.NoError(t, err)
	require.Len(t, ft.Params, 1)

	_, _, err = ctx.FunctionType(2)
	require.Error(t, err)

	h, ok, err := ctx.ResolveFunction(0)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, h.SameInstance)

	h, ok, err = ctx.ResolveFunction(1)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, h.SameInstance)

	// Equal signatures intern to equal ids.
	idA, _, err := ctx.FunctionType(1)
	require.NoError(t, err)
	idB, _, err := ctx.InternedType(0)
	require.NoError(t, err)
	require.Equal(t, idA, idB)
}

func TestModuleContext_blockType(t *testing.T) {
	ctx := NewModuleContext(testModule(), NewTypeInterner(), false)

	bt, err := ctx.BlockType(-64)
	require.NoError(t, err)
	require.Empty(t, bt.Params)
	require.Empty(t, bt.Results)

	bt, err = ctx.BlockType(-1)
	require.NoError(t, err)
	require.Equal(t, []ValueType{ValueTypeI32}, bt.Results)

	bt, err = ctx.BlockType(-16)
	require.NoError(t, err)
	require.Equal(t, []ValueType{ValueTypeFuncref}, bt.Results)

	bt, err = ctx.BlockType(0)
	require.NoError(t, err)
	require.Len(t, bt.Params, 1)

	_, err = ctx.BlockType(-5)
	require.Error(t, err)
	_, err = ctx.BlockType(99)
	require.Error(t, err)
}

func TestModuleContext_memoriesTablesGlobals(t *testing.T) {
	ctx := NewModuleContext(testModule(), NewTypeInterner(), false)

	// Memory 0 is the 32-bit import, memory 1 the 64-bit local one.
	is64, err := ctx.MemoryIs64(0)
	require.NoError(t, err)
	require.False(t, is64)
	is64, err = ctx.MemoryIs64(1)
	require.NoError(t, err)
	require.True(t, is64)
	_, err = ctx.MemoryIs64(2)
	require.Error(t, err)

	elem, err := ctx.TableElemType(1)
	require.NoError(t, err)
	require.Equal(t, ValueTypeExternref, elem)
	is64, err = ctx.TableIs64(1)
	require.NoError(t, err)
	require.True(t, is64)

	// Global 0 is the imported f64, global 1 the local i64.
	gt, err := ctx.GlobalType(0)
	require.NoError(t, err)
	require.Equal(t, ValueTypeF64, gt)
	gt, err = ctx.GlobalType(1)
	require.NoError(t, err)
	require.Equal(t, ValueTypeI64, gt)

	require.NoError(t, ctx.ValidateDataSegment(0))
	require.Error(t, ctx.ValidateDataSegment(1))
	et, err := ctx.ValidateElementSegment(0)
	require.NoError(t, err)
	require.Equal(t, ValueTypeFuncref, et)
	_, err = ctx.ValidateElementSegment(1)
	require.Error(t, err)
}

func TestModuleContext_validationOnly(t *testing.T) {
	ctx := NewModuleContext(testModule(), NewTypeInterner(), true)

	_, ok, err := ctx.ResolveFunction(0)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = ctx.ResolveGlobal(0)
	require.NoError(t, err)
	require.False(t, ok)

	// Bounds failures still surface.
	_, _, err = ctx.ResolveFunction(9)
	require.Error(t, err)
}

func TestModule_importCounts(t *testing.T) {
	m := testModule()
	funcs, tables, memories, globals := m.ImportCounts()
	require.Equal(t, uint32(1), funcs)
	require.Equal(t, uint32(0), tables)
	require.Equal(t, uint32(1), memories)
	require.Equal(t, uint32(1), globals)
	require.Equal(t, uint32(2), m.NumFunctions())
}
