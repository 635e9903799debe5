package isa

import "fmt"

// Decoded is one instruction recovered from a slot sequence. Regs holds the
// register operands in shape order; the remaining immediates land in U64s,
// except branch offsets which are exposed signed via Offset.
//
// Per shape: Reg2/Reg3/Reg4 fill Regs only. Const32/Const64 fill Regs[0] and
// U64s[0] (payload). Br/CondBr fill Offset (and Regs[0] for the condition).
// BrTable fills Regs[0], U64s[0] (count) and U64s[1] (table id). Index fills
// U64s[0]. RegIndex fills Regs[0] and U64s[0]. MemAccess fills U64s[0]
// (static offset), Regs[0..1] and U64s[1] (memory index). Bulk fills
// Regs[0..2] and U64s[0..1]. Call fills U64s[0..1]. CallIndirect fills
// U64s[0] (table), U64s[1] (type id), Regs[0] (address) and U64s[2]
// (sp addend).
type Decoded struct {
	PC     int
	Op     Opcode
	Regs   []VReg
	U64s   []uint64
	Offset int32
}

// Disassemble decodes code, resolving head slots through coder. It fails on
// unknown heads or a truncated final instruction.
func Disassemble(code []uint64, coder HeadCoder) ([]Decoded, error) {
	var out []Decoded
	for pc := 0; pc < len(code); {
		op, err := coder.Decode(code[pc])
		if err != nil {
			return nil, fmt.Errorf("at pc %d: %w", pc, err)
		}
		shape := op.Shape()
		n := shape.ImmediateSlots()
		if pc+1+n > len(code) {
			return nil, fmt.Errorf("at pc %d: %s truncated (%d immediate slots)", pc, op, n)
		}
		d := Decoded{PC: pc, Op: op}
		imms := code[pc+1 : pc+1+n]
		switch shape {
		case ShapeNone:
		case ShapeReg2:
			d.Regs = []VReg{RegAt(imms[0], 0), RegAt(imms[0], 1)}
		case ShapeReg3:
			d.Regs = []VReg{RegAt(imms[0], 0), RegAt(imms[0], 1), RegAt(imms[0], 2)}
		case ShapeReg4:
			d.Regs = []VReg{RegAt(imms[0], 0), RegAt(imms[0], 1), RegAt(imms[0], 2), RegAt(imms[0], 3)}
		case ShapeConst32:
			d.Regs = []VReg{RegAt(imms[0], 0)}
			d.U64s = []uint64{uint64(Const32Value(imms[0]))}
		case ShapeConst64:
			d.Regs = []VReg{RegAt(imms[0], 0)}
			d.U64s = []uint64{imms[1]}
		case ShapeBr:
			d.Offset = BrOffset(imms[0])
		case ShapeCondBr:
			d.Regs = []VReg{RegAt(imms[0], 0)}
			d.Offset = CondBrOffset(imms[0])
		case ShapeBrTable:
			d.Regs = []VReg{RegAt(imms[0], 0)}
			d.U64s = []uint64{uint64(BrTableCount(imms[0])), uint64(BrTableID(imms[0]))}
		case ShapeIndex:
			d.U64s = []uint64{imms[0] & 0xffffffff}
		case ShapeRegIndex:
			d.Regs = []VReg{RegAt(imms[0], 0)}
			d.U64s = []uint64{uint64(RegIndexValue(imms[0]))}
		case ShapeMemAccess:
			d.Regs = []VReg{RegAt(imms[1], 0), RegAt(imms[1], 1)}
			d.U64s = []uint64{imms[0], uint64(MemOperandsMemory(imms[1]))}
		case ShapeBulk:
			a, b := UnpackBulkIndexes(imms[1])
			d.Regs = []VReg{RegAt(imms[0], 0), RegAt(imms[0], 1), RegAt(imms[0], 2)}
			d.U64s = []uint64{uint64(a), uint64(b)}
		case ShapeCall:
			d.U64s = []uint64{imms[0], imms[1]}
		case ShapeCallIndirect:
			d.Regs = []VReg{RegAt(imms[1], 0)}
			d.U64s = []uint64{imms[0] & 0xffffffff, imms[0] >> 32, uint64(uint32(imms[1] >> 16))}
		}
		out = append(out, d)
		pc += 1 + n
	}
	return out, nil
}
