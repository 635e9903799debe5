package isa

// Register operands are packed into 16-bit fields of an immediate slot,
// lowest field first. Offsets and 32-bit indices occupy 32-bit fields.

func regField(r VReg) uint64 {
	return uint64(uint16(r))
}

// RegAt extracts the i-th 16-bit register field of slot.
func RegAt(slot uint64, i int) VReg {
	return VReg(int16(uint16(slot >> (16 * i))))
}

// WithRegAt returns slot with its i-th register field replaced by r. This is
// the primitive behind result relinking.
func WithRegAt(slot uint64, i int, r VReg) uint64 {
	shift := 16 * i
	return slot&^(uint64(0xffff)<<shift) | regField(r)<<shift
}

func PackReg2(a, b VReg) uint64 {
	return regField(a) | regField(b)<<16
}

func PackReg3(a, b, c VReg) uint64 {
	return regField(a) | regField(b)<<16 | regField(c)<<32
}

func PackReg4(a, b, c, d VReg) uint64 {
	return regField(a) | regField(b)<<16 | regField(c)<<32 | regField(d)<<48
}

// PackConst32 packs a const32's result register and payload.
func PackConst32(result VReg, value uint32) uint64 {
	return regField(result) | uint64(value)<<16
}

// Const32Value extracts a const32 payload.
func Const32Value(slot uint64) uint32 {
	return uint32(slot >> 16)
}

// PackBr packs an unconditional branch offset, in slots, relative to the slot
// after the branch's head.
func PackBr(offset int32) uint64 {
	return uint64(uint32(offset))
}

// BrOffset extracts an unconditional branch offset.
func BrOffset(slot uint64) int32 {
	return int32(uint32(slot))
}

// PackCondBr packs a conditional branch's condition register and offset.
func PackCondBr(cond VReg, offset int32) uint64 {
	return regField(cond) | uint64(uint32(offset))<<16
}

// CondBrOffset extracts a conditional branch offset.
func CondBrOffset(slot uint64) int32 {
	return int32(uint32(slot >> 16))
}

// PackBrTable packs the index register, entry count and table id of a
// br_table head.
func PackBrTable(index VReg, count uint32, table uint16) uint64 {
	return regField(index) | uint64(count)<<16 | uint64(table)<<48
}

// BrTableCount extracts a br_table's entry count.
func BrTableCount(slot uint64) uint32 {
	return uint32(slot >> 16)
}

// BrTableID extracts a br_table's table id.
func BrTableID(slot uint64) uint16 {
	return uint16(slot >> 48)
}

// PackIndex packs a bare 32-bit index immediate.
func PackIndex(index uint32) uint64 {
	return uint64(index)
}

// PackRegIndex packs one register and a 32-bit index.
func PackRegIndex(reg VReg, index uint32) uint64 {
	return regField(reg) | uint64(index)<<16
}

// RegIndexValue extracts the index of a ShapeRegIndex slot.
func RegIndexValue(slot uint64) uint32 {
	return uint32(slot >> 16)
}

// PackMemOperands packs the two registers and memory index of a load/store's
// second immediate slot.
func PackMemOperands(a, b VReg, memory uint16) uint64 {
	return regField(a) | regField(b)<<16 | uint64(memory)<<32
}

// MemOperandsMemory extracts the memory index of a load/store slot.
func MemOperandsMemory(slot uint64) uint16 {
	return uint16(slot >> 32)
}

// PackBulkIndexes packs the two 32-bit indices of a bulk operation's second
// immediate slot.
func PackBulkIndexes(a, b uint32) uint64 {
	return uint64(a) | uint64(b)<<32
}

// UnpackBulkIndexes extracts both indices of a bulk operation slot.
func UnpackBulkIndexes(slot uint64) (a, b uint32) {
	return uint32(slot), uint32(slot >> 32)
}

// PackCallIndirectTarget packs the table index and interned type id of a
// call_indirect's first immediate slot.
func PackCallIndirectTarget(table, typeID uint32) uint64 {
	return uint64(table) | uint64(typeID)<<32
}

// PackCallIndirectFrame packs the address register and sp addend of a
// call_indirect's second immediate slot.
func PackCallIndirectFrame(addr VReg, spAddend uint32) uint64 {
	return regField(addr) | uint64(spAddend)<<16
}
