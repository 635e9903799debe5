package isa

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpcodeShapes(t *testing.T) {
	for _, tc := range []struct {
		op       Opcode
		expected Shape
	}{
		{OpUnreachable, ShapeNone},
		{OpReturn, ShapeNone},
		{OpBr, ShapeBr},
		{OpBrIf, ShapeCondBr},
		{OpBrIfNot, ShapeCondBr},
		{OpBrTable, ShapeBrTable},
		{OpCall, ShapeCall},
		{OpCompilingCall, ShapeCall},
		{OpCallIndirect, ShapeCallIndirect},
		{OpOnEnter, ShapeIndex},
		{OpCopy, ShapeReg2},
		{OpConst32, ShapeConst32},
		{OpConst64, ShapeConst64},
		{OpSelect, ShapeReg4},
		{OpGlobalGet, ShapeRegIndex},
		{OpRefFunc, ShapeRegIndex},
		{OpRefIsNull, ShapeReg2},
		{OpI32Load, ShapeMemAccess},
		{OpI64Store32, ShapeMemAccess},
		{OpMemorySize, ShapeRegIndex},
		{OpMemoryGrow, ShapeBulk},
		{OpMemoryCopy, ShapeBulk},
		{OpDataDrop, ShapeIndex},
		{OpTableGet, ShapeBulk},
		{OpElemDrop, ShapeIndex},
		{OpI32Eqz, ShapeReg2},
		{OpI64Eqz, ShapeReg2},
		{OpI32Eq, ShapeReg3},
		{OpF64Ge, ShapeReg3},
		{OpI32Clz, ShapeReg2},
		{OpI64Popcnt, ShapeReg2},
		{OpI32Add, ShapeReg3},
		{OpI64Rotr, ShapeReg3},
		{OpF32Sqrt, ShapeReg2},
		{OpF64Copysign, ShapeReg3},
		{OpI32WrapI64, ShapeReg2},
		{OpI64TruncSatF64U, ShapeReg2},
	} {
		require.Equal(t, tc.expected, tc.op.Shape(), "opcode %s", tc.op)
	}
}

// Every opcode must have a name and a shape whose slot count the disassembler
// can rely on.
func TestOpcodeTablesComplete(t *testing.T) {
	for op := Opcode(0); op < NumOpcodes; op++ {
		require.NotEqual(t, "invalid", op.String(), "opcode %d has no name", op)
		require.LessOrEqual(t, op.Shape().ImmediateSlots(), 2)
	}
}

func TestPackRoundTrip(t *testing.T) {
	slot := PackReg4(-5, 3, 0x7fff, -0x8000)
	require.Equal(t, VReg(-5), RegAt(slot, 0))
	require.Equal(t, VReg(3), RegAt(slot, 1))
	require.Equal(t, VReg(0x7fff), RegAt(slot, 2))
	require.Equal(t, VReg(-0x8000), RegAt(slot, 3))

	slot = WithRegAt(slot, 1, -9)
	require.Equal(t, VReg(-9), RegAt(slot, 1))
	require.Equal(t, VReg(-5), RegAt(slot, 0))

	slot = PackConst32(-4, 0xdeadbeef)
	require.Equal(t, VReg(-4), RegAt(slot, 0))
	require.Equal(t, uint32(0xdeadbeef), Const32Value(slot))

	require.Equal(t, int32(-7), BrOffset(PackBr(-7)))
	cond := PackCondBr(12, -100)
	require.Equal(t, VReg(12), RegAt(cond, 0))
	require.Equal(t, int32(-100), CondBrOffset(cond))

	bt := PackBrTable(-1, 4, 2)
	require.Equal(t, VReg(-1), RegAt(bt, 0))
	require.Equal(t, uint32(4), BrTableCount(bt))
	require.Equal(t, uint16(2), BrTableID(bt))

	a, b := UnpackBulkIndexes(PackBulkIndexes(7, 9))
	require.Equal(t, uint32(7), a)
	require.Equal(t, uint32(9), b)

	mem := PackMemOperands(1, -2, 3)
	require.Equal(t, VReg(1), RegAt(mem, 0))
	require.Equal(t, VReg(-2), RegAt(mem, 1))
	require.Equal(t, uint16(3), MemOperandsMemory(mem))
}

func TestHeadCoder_token(t *testing.T) {
	coder := TokenCoder()
	require.Equal(t, ThreadingToken, coder.Model())
	require.Equal(t, uint64(OpI32Add), coder.Encode(OpI32Add))

	op, err := coder.Decode(uint64(OpSelect))
	require.NoError(t, err)
	require.Equal(t, OpSelect, op)

	_, err = coder.Decode(uint64(NumOpcodes))
	require.Error(t, err)
}

func TestHeadCoder_direct(t *testing.T) {
	handlers := make([]uintptr, NumOpcodes)
	for i := range handlers {
		handlers[i] = uintptr(0x1000 + 8*i)
	}
	coder, err := DirectCoder(handlers)
	require.NoError(t, err)
	require.Equal(t, ThreadingDirect, coder.Model())

	head := coder.Encode(OpBrIf)
	require.Equal(t, uint64(0x1000+8*int(OpBrIf)), head)
	op, err := coder.Decode(head)
	require.NoError(t, err)
	require.Equal(t, OpBrIf, op)

	_, err = DirectCoder(handlers[:3])
	require.Error(t, err)

	handlers[4] = handlers[5]
	_, err = DirectCoder(handlers)
	require.Error(t, err)
}

func TestDisassemble(t *testing.T) {
	coder := TokenCoder()
	code := []uint64{
		coder.Encode(OpI32Add), PackReg3(4, 0, 1),
		coder.Encode(OpConst64), PackReg2(5, 0), 0xfeedface,
		coder.Encode(OpBr), PackBr(-3),
		coder.Encode(OpReturn),
	}
	out, err := Disassemble(code, coder)
	require.NoError(t, err)
	require.Len(t, out, 4)

	require.Equal(t, OpI32Add, out[0].Op)
	require.Equal(t, 0, out[0].PC)
	require.Equal(t, []VReg{4, 0, 1}, out[0].Regs)

	require.Equal(t, OpConst64, out[1].Op)
	require.Equal(t, 2, out[1].PC)
	require.Equal(t, []VReg{5}, out[1].Regs)
	require.Equal(t, []uint64{0xfeedface}, out[1].U64s)

	require.Equal(t, OpBr, out[2].Op)
	require.Equal(t, int32(-3), out[2].Offset)

	require.Equal(t, OpReturn, out[3].Op)
	require.Equal(t, 7, out[3].PC)
}

func TestDisassemble_truncated(t *testing.T) {
	coder := TokenCoder()
	_, err := Disassemble([]uint64{coder.Encode(OpConst64), 0}, coder)
	require.Error(t, err)
}
