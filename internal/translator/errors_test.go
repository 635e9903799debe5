package translator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stitchvm/stitch/internal/isa"
	"github.com/stitchvm/stitch/internal/wasm"
)

func requireKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	var te *TranslationError
	require.ErrorAs(t, err, &te)
	require.Equal(t, kind, te.Kind)
}

func TestTranslate_typeMismatch(t *testing.T) {
	tr, _ := newTestTranslator(t, newTestContext(), &wasm.FunctionType{}, nil, 8, Config{})
	require.NoError(t, tr.VisitConst(i64T, 1))
	require.NoError(t, tr.VisitConst(i64T, 2))
	requireKind(t, tr.VisitBinary(isa.OpI32Add, i32T, i32T), ErrTypeMismatch)
}

func TestTranslate_typeMismatchSuppressedWhenUnreachable(t *testing.T) {
	tr, _ := newTestTranslator(t, newTestContext(), &wasm.FunctionType{}, nil, 8, Config{})
	require.NoError(t, tr.VisitBlock(-64))
	require.NoError(t, tr.VisitConst(i64T, 1))
	require.NoError(t, tr.VisitBr(0))
	// The i64 on the stack and the phantom operands all pass silently.
	require.NoError(t, tr.VisitBinary(isa.OpI32Add, i32T, i32T))
	require.NoError(t, tr.VisitDrop())
	require.NoError(t, tr.VisitEnd())
	require.NoError(t, tr.VisitEnd())
	_, err := tr.Finalize()
	require.NoError(t, err)
}

func TestTranslate_stackUnderflow(t *testing.T) {
	tr, _ := newTestTranslator(t, newTestContext(), &wasm.FunctionType{}, nil, 8, Config{})
	requireKind(t, tr.VisitDrop(), ErrStackUnderflow)
}

func TestTranslate_underflowStopsAtFrameBoundary(t *testing.T) {
	tr, _ := newTestTranslator(t, newTestContext(), &wasm.FunctionType{}, nil, 8, Config{})
	require.NoError(t, tr.VisitConst(i32T, 1))
	require.NoError(t, tr.VisitBlock(-64))
	// The value below the block's entry height is not poppable inside it.
	requireKind(t, tr.VisitDrop(), ErrStackUnderflow)
}

func TestTranslate_elseWithoutIf(t *testing.T) {
	tr, _ := newTestTranslator(t, newTestContext(), &wasm.FunctionType{}, nil, 8, Config{})
	requireKind(t, tr.VisitElse(), ErrControlMismatch)

	tr2, _ := newTestTranslator(t, newTestContext(), &wasm.FunctionType{}, nil, 8, Config{})
	require.NoError(t, tr2.VisitBlock(-64))
	requireKind(t, tr2.VisitElse(), ErrControlMismatch)
}

func TestTranslate_instructionAfterRootEnd(t *testing.T) {
	tr, _ := newTestTranslator(t, newTestContext(), &wasm.FunctionType{}, nil, 8, Config{})
	require.NoError(t, tr.VisitEnd())
	requireKind(t, tr.VisitNop(), ErrControlMismatch)
	requireKind(t, tr.VisitEnd(), ErrControlMismatch)
}

func TestTranslate_branchDepthOutOfRange(t *testing.T) {
	tr, _ := newTestTranslator(t, newTestContext(), &wasm.FunctionType{}, nil, 8, Config{})
	requireKind(t, tr.VisitBr(1), ErrIndexOutOfRange)

	tr2, _ := newTestTranslator(t, newTestContext(), &wasm.FunctionType{}, nil, 8, Config{})
	require.NoError(t, tr2.VisitConst(i32T, 0))
	requireKind(t, tr2.VisitBrTable([]uint32{0, 7}, 0), ErrIndexOutOfRange)
}

func TestTranslate_localIndexOutOfRange(t *testing.T) {
	ft := &wasm.FunctionType{Params: []wasm.ValueType{i32T}}
	tr, _ := newTestTranslator(t, newTestContext(), ft, []wasm.ValueType{i64T}, 8, Config{})
	requireKind(t, tr.VisitLocalGet(2), ErrIndexOutOfRange)
	requireKind(t, tr.VisitLocalSet(2), ErrIndexOutOfRange)
}

func TestTranslate_moduleIndexesOutOfRange(t *testing.T) {
	tr, _ := newTestTranslator(t, newTestContext(), &wasm.FunctionType{}, nil, 8, Config{})
	requireKind(t, tr.VisitCall(0), ErrIndexOutOfRange)
	requireKind(t, tr.VisitGlobalGet(0), ErrIndexOutOfRange)
	requireKind(t, tr.VisitMemorySize(0), ErrIndexOutOfRange)
	requireKind(t, tr.VisitTableGet(0), ErrIndexOutOfRange)
	requireKind(t, tr.VisitDataDrop(0), ErrIndexOutOfRange)
	requireKind(t, tr.VisitElemDrop(0), ErrIndexOutOfRange)
	requireKind(t, tr.VisitRefFunc(0), ErrIndexOutOfRange)
}

func TestTranslate_invalidAlignment(t *testing.T) {
	ctx := newTestContext()
	ctx.memory64 = []bool{false, true}

	tr, _ := newTestTranslator(t, ctx, &wasm.FunctionType{}, nil, 8, Config{})
	require.NoError(t, tr.VisitConst(i32T, 0))
	requireKind(t, tr.VisitLoad(isa.OpI32Load, 0, 32, 0, i32T), ErrInvalidAlignment)

	// A 64-bit memory tolerates exponents up to 63.
	tr2, _ := newTestTranslator(t, ctx, &wasm.FunctionType{}, nil, 8, Config{})
	require.NoError(t, tr2.VisitConst(i64T, 0))
	require.NoError(t, tr2.VisitLoad(isa.OpI32Load, 1, 32, 0, i32T))
}

func TestTranslate_constSlotOverflow(t *testing.T) {
	ft := &wasm.FunctionType{}
	locals := make([]wasm.ValueType, 32766)
	_, err := New(newTestContext(), NewArena(), 0, ft, locals, 100, Config{})
	requireKind(t, err, ErrConstSlotOverflow)
}

func TestTranslate_missingEnd(t *testing.T) {
	tr, _ := newTestTranslator(t, newTestContext(), &wasm.FunctionType{}, nil, 8, Config{})
	require.NoError(t, tr.VisitBlock(-64))
	require.NoError(t, tr.VisitEnd())
	_, err := tr.Finalize()
	requireKind(t, err, ErrMissingEnd)
}

func TestTranslate_returnNeedsResults(t *testing.T) {
	ft := &wasm.FunctionType{Results: []wasm.ValueType{i32T}}
	tr, _ := newTestTranslator(t, newTestContext(), ft, nil, 8, Config{})
	requireKind(t, tr.VisitReturn(), ErrStackUnderflow)
}

func TestTranslate_selectOperandsMustAgree(t *testing.T) {
	tr, _ := newTestTranslator(t, newTestContext(), &wasm.FunctionType{}, nil, 8, Config{})
	require.NoError(t, tr.VisitConst(i32T, 1))
	require.NoError(t, tr.VisitConst(i64T, 2))
	require.NoError(t, tr.VisitConst(i32T, 0))
	requireKind(t, tr.VisitSelect(nil), ErrTypeMismatch)
}

func TestTranslate_untypedSelectRejectsReferences(t *testing.T) {
	tr, _ := newTestTranslator(t, newTestContext(), &wasm.FunctionType{}, nil, 8, Config{})
	require.NoError(t, tr.VisitRefNull(wasm.ValueTypeFuncref))
	require.NoError(t, tr.VisitRefNull(wasm.ValueTypeFuncref))
	require.NoError(t, tr.VisitConst(i32T, 0))
	requireKind(t, tr.VisitSelect(nil), ErrTypeMismatch)
}

func TestTranslate_refIsNullNeedsReference(t *testing.T) {
	tr, _ := newTestTranslator(t, newTestContext(), &wasm.FunctionType{}, nil, 8, Config{})
	require.NoError(t, tr.VisitConst(i32T, 1))
	requireKind(t, tr.VisitRefIsNull(), ErrTypeMismatch)
}

func TestTranslate_tableCopyElementTypesMustMatch(t *testing.T) {
	ctx := newTestContext()
	ctx.table64 = []bool{false, false}
	ctx.tableElems = []wasm.ValueType{wasm.ValueTypeFuncref, wasm.ValueTypeExternref}

	tr, _ := newTestTranslator(t, ctx, &wasm.FunctionType{}, nil, 8, Config{})
	require.NoError(t, tr.VisitConst(i32T, 0))
	require.NoError(t, tr.VisitConst(i32T, 0))
	require.NoError(t, tr.VisitConst(i32T, 0))
	requireKind(t, tr.VisitTableCopy(0, 1), ErrTypeMismatch)
}
