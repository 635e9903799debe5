package binary

import (
	"fmt"

	"github.com/stitchvm/stitch/internal/isa"
	"github.com/stitchvm/stitch/internal/leb128"
	"github.com/stitchvm/stitch/internal/translator"
	"github.com/stitchvm/stitch/internal/wasm"
)

// bodyReader walks a function body, decoding immediates in place.
type bodyReader struct {
	body []byte
	pc   int
}

func (r *bodyReader) done() bool {
	return r.pc >= len(r.body)
}

func (r *bodyReader) readByte() (byte, error) {
	if r.pc >= len(r.body) {
		return 0, fmt.Errorf("truncated body at %#x", r.pc)
	}
	b := r.body[r.pc]
	r.pc++
	return b, nil
}

func (r *bodyReader) readU32() (uint32, error) {
	v, n, err := leb128.LoadUint32(r.body[r.pc:])
	if err != nil {
		return 0, fmt.Errorf("at %#x: %w", r.pc, err)
	}
	r.pc += int(n)
	return v, nil
}

func (r *bodyReader) readU64() (uint64, error) {
	v, n, err := leb128.LoadUint64(r.body[r.pc:])
	if err != nil {
		return 0, fmt.Errorf("at %#x: %w", r.pc, err)
	}
	r.pc += int(n)
	return v, nil
}

func (r *bodyReader) readI32() (int32, error) {
	v, n, err := leb128.LoadInt32(r.body[r.pc:])
	if err != nil {
		return 0, fmt.Errorf("at %#x: %w", r.pc, err)
	}
	r.pc += int(n)
	return v, nil
}

func (r *bodyReader) readI33() (int64, error) {
	v, n, err := leb128.LoadInt33(r.body[r.pc:])
	if err != nil {
		return 0, fmt.Errorf("at %#x: %w", r.pc, err)
	}
	r.pc += int(n)
	return v, nil
}

func (r *bodyReader) readI64() (int64, error) {
	v, n, err := leb128.LoadInt64(r.body[r.pc:])
	if err != nil {
		return 0, fmt.Errorf("at %#x: %w", r.pc, err)
	}
	r.pc += int(n)
	return v, nil
}

func (r *bodyReader) readF32Bits() (uint32, error) {
	if r.pc+4 > len(r.body) {
		return 0, fmt.Errorf("truncated f32 at %#x", r.pc)
	}
	v := uint32(r.body[r.pc]) | uint32(r.body[r.pc+1])<<8 | uint32(r.body[r.pc+2])<<16 | uint32(r.body[r.pc+3])<<24
	r.pc += 4
	return v, nil
}

func (r *bodyReader) readF64Bits() (uint64, error) {
	var v uint64
	if r.pc+8 > len(r.body) {
		return 0, fmt.Errorf("truncated f64 at %#x", r.pc)
	}
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(r.body[r.pc+i])
	}
	r.pc += 8
	return v, nil
}

// readMemArg decodes alignment, offset and the multi-memory index flagged in
// the alignment field's bit 6.
func (r *bodyReader) readMemArg() (align, memory uint32, offset uint64, err error) {
	align, err = r.readU32()
	if err != nil {
		return
	}
	if align&(1<<6) != 0 {
		align &^= 1 << 6
		if memory, err = r.readU32(); err != nil {
			return
		}
	}
	offset, err = r.readU64()
	return
}

// TranslateBody drives t with one visitor call per instruction of body. The
// final end of the body closes the translator's root frame; trailing bytes
// after it fail translation.
func TranslateBody(t *translator.Translator, body []byte) error {
	r := &bodyReader{body: body}
	for !r.done() {
		op, err := r.readByte()
		if err != nil {
			return err
		}
		if err := dispatch(t, r, op); err != nil {
			return fmt.Errorf("compiling %#x at %#x: %w", op, r.pc, err)
		}
	}
	return nil
}

func dispatch(t *translator.Translator, r *bodyReader, op wasm.Opcode) error {
	switch op {
	case wasm.OpcodeUnreachable:
		return t.VisitUnreachable()
	case wasm.OpcodeNop:
		return t.VisitNop()
	case wasm.OpcodeBlock:
		bt, err := r.readI33()
		if err != nil {
			return err
		}
		return t.VisitBlock(bt)
	case wasm.OpcodeLoop:
		bt, err := r.readI33()
		if err != nil {
			return err
		}
		return t.VisitLoop(bt)
	case wasm.OpcodeIf:
		bt, err := r.readI33()
		if err != nil {
			return err
		}
		return t.VisitIf(bt)
	case wasm.OpcodeElse:
		return t.VisitElse()
	case wasm.OpcodeEnd:
		return t.VisitEnd()
	case wasm.OpcodeBr:
		depth, err := r.readU32()
		if err != nil {
			return err
		}
		return t.VisitBr(depth)
	case wasm.OpcodeBrIf:
		depth, err := r.readU32()
		if err != nil {
			return err
		}
		return t.VisitBrIf(depth)
	case wasm.OpcodeBrTable:
		count, err := r.readU32()
		if err != nil {
			return err
		}
		targets := make([]uint32, count)
		for i := range targets {
			if targets[i], err = r.readU32(); err != nil {
				return err
			}
		}
		def, err := r.readU32()
		if err != nil {
			return err
		}
		return t.VisitBrTable(targets, def)
	case wasm.OpcodeReturn:
		return t.VisitReturn()
	case wasm.OpcodeCall:
		f, err := r.readU32()
		if err != nil {
			return err
		}
		return t.VisitCall(f)
	case wasm.OpcodeCallIndirect:
		typeIndex, err := r.readU32()
		if err != nil {
			return err
		}
		tableIndex, err := r.readU32()
		if err != nil {
			return err
		}
		return t.VisitCallIndirect(typeIndex, tableIndex)
	case wasm.OpcodeDrop:
		return t.VisitDrop()
	case wasm.OpcodeSelect:
		return t.VisitSelect(nil)
	case wasm.OpcodeTypedSelect:
		count, err := r.readU32()
		if err != nil {
			return err
		}
		if count != 1 {
			return fmt.Errorf("typed select with %d types", count)
		}
		vt, err := r.readByte()
		if err != nil {
			return err
		}
		return t.VisitSelect(&vt)
	case wasm.OpcodeLocalGet:
		i, err := r.readU32()
		if err != nil {
			return err
		}
		return t.VisitLocalGet(i)
	case wasm.OpcodeLocalSet:
		i, err := r.readU32()
		if err != nil {
			return err
		}
		return t.VisitLocalSet(i)
	case wasm.OpcodeLocalTee:
		i, err := r.readU32()
		if err != nil {
			return err
		}
		return t.VisitLocalTee(i)
	case wasm.OpcodeGlobalGet:
		i, err := r.readU32()
		if err != nil {
			return err
		}
		return t.VisitGlobalGet(i)
	case wasm.OpcodeGlobalSet:
		i, err := r.readU32()
		if err != nil {
			return err
		}
		return t.VisitGlobalSet(i)
	case wasm.OpcodeTableGet:
		i, err := r.readU32()
		if err != nil {
			return err
		}
		return t.VisitTableGet(i)
	case wasm.OpcodeTableSet:
		i, err := r.readU32()
		if err != nil {
			return err
		}
		return t.VisitTableSet(i)
	case wasm.OpcodeMemorySize:
		m, err := r.readU32()
		if err != nil {
			return err
		}
		return t.VisitMemorySize(m)
	case wasm.OpcodeMemoryGrow:
		m, err := r.readU32()
		if err != nil {
			return err
		}
		return t.VisitMemoryGrow(m)
	case wasm.OpcodeI32Const:
		v, err := r.readI32()
		if err != nil {
			return err
		}
		return t.VisitConst(wasm.ValueTypeI32, uint64(uint32(v)))
	case wasm.OpcodeI64Const:
		v, err := r.readI64()
		if err != nil {
			return err
		}
		return t.VisitConst(wasm.ValueTypeI64, uint64(v))
	case wasm.OpcodeF32Const:
		bits, err := r.readF32Bits()
		if err != nil {
			return err
		}
		return t.VisitConst(wasm.ValueTypeF32, uint64(bits))
	case wasm.OpcodeF64Const:
		bits, err := r.readF64Bits()
		if err != nil {
			return err
		}
		return t.VisitConst(wasm.ValueTypeF64, bits)
	case wasm.OpcodeRefNull:
		vt, err := r.readByte()
		if err != nil {
			return err
		}
		if !wasm.IsReferenceType(vt) {
			return fmt.Errorf("ref.null of non-reference type %#x", vt)
		}
		return t.VisitRefNull(vt)
	case wasm.OpcodeRefIsNull:
		return t.VisitRefIsNull()
	case wasm.OpcodeRefFunc:
		i, err := r.readU32()
		if err != nil {
			return err
		}
		return t.VisitRefFunc(i)
	case wasm.OpcodeMiscPrefix:
		sub, err := r.readU32()
		if err != nil {
			return err
		}
		return dispatchMisc(t, r, sub)
	}
	if op >= wasm.OpcodeI32Load && op <= wasm.OpcodeI64Store32 {
		return dispatchMemAccess(t, r, op)
	}
	if visit, ok := numericVisit(op); ok {
		return visit(t)
	}
	return fmt.Errorf("unsupported opcode %#x", op)
}

func dispatchMemAccess(t *translator.Translator, r *bodyReader, op wasm.Opcode) error {
	align, memory, offset, err := r.readMemArg()
	if err != nil {
		return err
	}
	type access struct {
		op    isa.Opcode
		vt    wasm.ValueType
		store bool
	}
	accesses := map[wasm.Opcode]access{
		wasm.OpcodeI32Load:    {isa.OpI32Load, wasm.ValueTypeI32, false},
		wasm.OpcodeI64Load:    {isa.OpI64Load, wasm.ValueTypeI64, false},
		wasm.OpcodeF32Load:    {isa.OpF32Load, wasm.ValueTypeF32, false},
		wasm.OpcodeF64Load:    {isa.OpF64Load, wasm.ValueTypeF64, false},
		wasm.OpcodeI32Load8S:  {isa.OpI32Load8S, wasm.ValueTypeI32, false},
		wasm.OpcodeI32Load8U:  {isa.OpI32Load8U, wasm.ValueTypeI32, false},
		wasm.OpcodeI32Load16S: {isa.OpI32Load16S, wasm.ValueTypeI32, false},
		wasm.OpcodeI32Load16U: {isa.OpI32Load16U, wasm.ValueTypeI32, false},
		wasm.OpcodeI64Load8S:  {isa.OpI64Load8S, wasm.ValueTypeI64, false},
		wasm.OpcodeI64Load8U:  {isa.OpI64Load8U, wasm.ValueTypeI64, false},
		wasm.OpcodeI64Load16S: {isa.OpI64Load16S, wasm.ValueTypeI64, false},
		wasm.OpcodeI64Load16U: {isa.OpI64Load16U, wasm.ValueTypeI64, false},
		wasm.OpcodeI64Load32S: {isa.OpI64Load32S, wasm.ValueTypeI64, false},
		wasm.OpcodeI64Load32U: {isa.OpI64Load32U, wasm.ValueTypeI64, false},
		wasm.OpcodeI32Store:   {isa.OpI32Store, wasm.ValueTypeI32, true},
		wasm.OpcodeI64Store:   {isa.OpI64Store, wasm.ValueTypeI64, true},
		wasm.OpcodeF32Store:   {isa.OpF32Store, wasm.ValueTypeF32, true},
		wasm.OpcodeF64Store:   {isa.OpF64Store, wasm.ValueTypeF64, true},
		wasm.OpcodeI32Store8:  {isa.OpI32Store8, wasm.ValueTypeI32, true},
		wasm.OpcodeI32Store16: {isa.OpI32Store16, wasm.ValueTypeI32, true},
		wasm.OpcodeI64Store8:  {isa.OpI64Store8, wasm.ValueTypeI64, true},
		wasm.OpcodeI64Store16: {isa.OpI64Store16, wasm.ValueTypeI64, true},
		wasm.OpcodeI64Store32: {isa.OpI64Store32, wasm.ValueTypeI64, true},
	}
	a, ok := accesses[op]
	if !ok {
		return fmt.Errorf("unsupported memory opcode %#x", op)
	}
	if a.store {
		return t.VisitStore(a.op, memory, align, offset, a.vt)
	}
	return t.VisitLoad(a.op, memory, align, offset, a.vt)
}

func dispatchMisc(t *translator.Translator, r *bodyReader, sub wasm.MiscOpcode) error {
	switch sub {
	case wasm.MiscI32TruncSatF32S:
		return t.VisitConversion(isa.OpI32TruncSatF32S, wasm.ValueTypeF32, wasm.ValueTypeI32)
	case wasm.MiscI32TruncSatF32U:
		return t.VisitConversion(isa.OpI32TruncSatF32U, wasm.ValueTypeF32, wasm.ValueTypeI32)
	case wasm.MiscI32TruncSatF64S:
		return t.VisitConversion(isa.OpI32TruncSatF64S, wasm.ValueTypeF64, wasm.ValueTypeI32)
	case wasm.MiscI32TruncSatF64U:
		return t.VisitConversion(isa.OpI32TruncSatF64U, wasm.ValueTypeF64, wasm.ValueTypeI32)
	case wasm.MiscI64TruncSatF32S:
		return t.VisitConversion(isa.OpI64TruncSatF32S, wasm.ValueTypeF32, wasm.ValueTypeI64)
	case wasm.MiscI64TruncSatF32U:
		return t.VisitConversion(isa.OpI64TruncSatF32U, wasm.ValueTypeF32, wasm.ValueTypeI64)
	case wasm.MiscI64TruncSatF64S:
		return t.VisitConversion(isa.OpI64TruncSatF64S, wasm.ValueTypeF64, wasm.ValueTypeI64)
	case wasm.MiscI64TruncSatF64U:
		return t.VisitConversion(isa.OpI64TruncSatF64U, wasm.ValueTypeF64, wasm.ValueTypeI64)
	case wasm.MiscMemoryInit:
		data, err := r.readU32()
		if err != nil {
			return err
		}
		memory, err := r.readU32()
		if err != nil {
			return err
		}
		return t.VisitMemoryInit(data, memory)
	case wasm.MiscDataDrop:
		data, err := r.readU32()
		if err != nil {
			return err
		}
		return t.VisitDataDrop(data)
	case wasm.MiscMemoryCopy:
		dst, err := r.readU32()
		if err != nil {
			return err
		}
		src, err := r.readU32()
		if err != nil {
			return err
		}
		return t.VisitMemoryCopy(dst, src)
	case wasm.MiscMemoryFill:
		memory, err := r.readU32()
		if err != nil {
			return err
		}
		return t.VisitMemoryFill(memory)
	case wasm.MiscTableInit:
		elem, err := r.readU32()
		if err != nil {
			return err
		}
		table, err := r.readU32()
		if err != nil {
			return err
		}
		return t.VisitTableInit(elem, table)
	case wasm.MiscElemDrop:
		elem, err := r.readU32()
		if err != nil {
			return err
		}
		return t.VisitElemDrop(elem)
	case wasm.MiscTableCopy:
		dst, err := r.readU32()
		if err != nil {
			return err
		}
		src, err := r.readU32()
		if err != nil {
			return err
		}
		return t.VisitTableCopy(dst, src)
	case wasm.MiscTableGrow:
		table, err := r.readU32()
		if err != nil {
			return err
		}
		return t.VisitTableGrow(table)
	case wasm.MiscTableSize:
		table, err := r.readU32()
		if err != nil {
			return err
		}
		return t.VisitTableSize(table)
	case wasm.MiscTableFill:
		table, err := r.readU32()
		if err != nil {
			return err
		}
		return t.VisitTableFill(table)
	}
	return fmt.Errorf("unsupported misc opcode %d", sub)
}
