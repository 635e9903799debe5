package translator

import (
	"fortio.org/safecast"

	"github.com/stitchvm/stitch/internal/isa"
	"github.com/stitchvm/stitch/internal/wasm"
)

// checkAlignment enforces the memarg rule: the alignment exponent must be
// below the address-type width of the accessed memory.
func checkAlignment(alignLog2 uint32, mem64 bool) error {
	limit := uint32(32)
	if mem64 {
		limit = 64
	}
	if alignLog2 >= limit {
		return errf(ErrInvalidAlignment, "alignment 2^%d exceeds the %d-bit address space", alignLog2, limit)
	}
	return nil
}

func memIndex16(i uint32) (uint16, error) {
	m, err := safecast.Conv[uint16](i)
	if err != nil {
		return 0, errf(ErrInternalConsistency, "memory or table index %d does not fit the immediate field", i)
	}
	return m, nil
}

// VisitLoad translates one of the load family; vt is the pushed result type.
func (t *Translator) VisitLoad(op isa.Opcode, memoryIndex, alignLog2 uint32, offset uint64, vt wasm.ValueType) error {
	if _, err := t.ctrl.top(); err != nil {
		return err
	}
	mem64, err := t.module.MemoryIs64(memoryIndex)
	if err != nil {
		return indexErr(err)
	}
	if err := checkAlignment(alignLog2, mem64); err != nil {
		return err
	}
	m, err := memIndex16(memoryIndex)
	if err != nil {
		return err
	}
	ptr, err := t.popChecked(addressType(mem64), op.String())
	if err != nil {
		return err
	}
	dest := t.vstack.push(vt)
	t.emitProducer(op, dest, 1, 0, offset, isa.PackMemOperands(dest, ptr.reg, m))
	return nil
}

// VisitStore translates one of the store family; vt is the stored value
// type.
func (t *Translator) VisitStore(op isa.Opcode, memoryIndex, alignLog2 uint32, offset uint64, vt wasm.ValueType) error {
	if _, err := t.ctrl.top(); err != nil {
		return err
	}
	mem64, err := t.module.MemoryIs64(memoryIndex)
	if err != nil {
		return indexErr(err)
	}
	if err := checkAlignment(alignLog2, mem64); err != nil {
		return err
	}
	m, err := memIndex16(memoryIndex)
	if err != nil {
		return err
	}
	value, err := t.popChecked(vt, op.String())
	if err != nil {
		return err
	}
	ptr, err := t.popChecked(addressType(mem64), op.String())
	if err != nil {
		return err
	}
	t.emit(op, offset, isa.PackMemOperands(ptr.reg, value.reg, m))
	return nil
}

// VisitMemorySize pushes the current size of the memory in pages.
func (t *Translator) VisitMemorySize(memoryIndex uint32) error {
	if _, err := t.ctrl.top(); err != nil {
		return err
	}
	mem64, err := t.module.MemoryIs64(memoryIndex)
	if err != nil {
		return indexErr(err)
	}
	dest := t.vstack.push(addressType(mem64))
	t.emitProducer(isa.OpMemorySize, dest, 0, 0, isa.PackRegIndex(dest, memoryIndex))
	return nil
}

// VisitMemoryGrow grows the memory by the popped page delta.
func (t *Translator) VisitMemoryGrow(memoryIndex uint32) error {
	if _, err := t.ctrl.top(); err != nil {
		return err
	}
	mem64, err := t.module.MemoryIs64(memoryIndex)
	if err != nil {
		return indexErr(err)
	}
	delta, err := t.popChecked(addressType(mem64), "memory.grow")
	if err != nil {
		return err
	}
	dest := t.vstack.push(addressType(mem64))
	t.emitProducer(isa.OpMemoryGrow, dest, 0, 0,
		isa.PackReg3(dest, delta.reg, 0), isa.PackBulkIndexes(memoryIndex, 0))
	return nil
}

// VisitMemoryInit copies from a passive data segment into memory.
func (t *Translator) VisitMemoryInit(dataIndex, memoryIndex uint32) error {
	if _, err := t.ctrl.top(); err != nil {
		return err
	}
	if err := t.module.ValidateDataSegment(dataIndex); err != nil {
		return indexErr(err)
	}
	mem64, err := t.module.MemoryIs64(memoryIndex)
	if err != nil {
		return indexErr(err)
	}
	length, err := t.popChecked(wasm.ValueTypeI32, "memory.init")
	if err != nil {
		return err
	}
	src, err := t.popChecked(wasm.ValueTypeI32, "memory.init")
	if err != nil {
		return err
	}
	dst, err := t.popChecked(addressType(mem64), "memory.init")
	if err != nil {
		return err
	}
	t.emit(isa.OpMemoryInit,
		isa.PackReg3(dst.reg, src.reg, length.reg), isa.PackBulkIndexes(dataIndex, memoryIndex))
	return nil
}

// VisitMemoryCopy copies between two memories. When their widths differ the
// length operand uses the wider address type.
func (t *Translator) VisitMemoryCopy(dstMemory, srcMemory uint32) error {
	if _, err := t.ctrl.top(); err != nil {
		return err
	}
	dst64, err := t.module.MemoryIs64(dstMemory)
	if err != nil {
		return indexErr(err)
	}
	src64, err := t.module.MemoryIs64(srcMemory)
	if err != nil {
		return indexErr(err)
	}
	length, err := t.popChecked(addressType(dst64 || src64), "memory.copy")
	if err != nil {
		return err
	}
	src, err := t.popChecked(addressType(src64), "memory.copy")
	if err != nil {
		return err
	}
	dst, err := t.popChecked(addressType(dst64), "memory.copy")
	if err != nil {
		return err
	}
	t.emit(isa.OpMemoryCopy,
		isa.PackReg3(dst.reg, src.reg, length.reg), isa.PackBulkIndexes(dstMemory, srcMemory))
	return nil
}

// VisitMemoryFill stores a byte value over a popped range.
func (t *Translator) VisitMemoryFill(memoryIndex uint32) error {
	if _, err := t.ctrl.top(); err != nil {
		return err
	}
	mem64, err := t.module.MemoryIs64(memoryIndex)
	if err != nil {
		return indexErr(err)
	}
	count, err := t.popChecked(addressType(mem64), "memory.fill")
	if err != nil {
		return err
	}
	value, err := t.popChecked(wasm.ValueTypeI32, "memory.fill")
	if err != nil {
		return err
	}
	dst, err := t.popChecked(addressType(mem64), "memory.fill")
	if err != nil {
		return err
	}
	t.emit(isa.OpMemoryFill,
		isa.PackReg3(dst.reg, value.reg, count.reg), isa.PackBulkIndexes(memoryIndex, 0))
	return nil
}

// VisitDataDrop discards a passive data segment.
func (t *Translator) VisitDataDrop(dataIndex uint32) error {
	if _, err := t.ctrl.top(); err != nil {
		return err
	}
	if err := t.module.ValidateDataSegment(dataIndex); err != nil {
		return indexErr(err)
	}
	t.emit(isa.OpDataDrop, isa.PackIndex(dataIndex))
	return nil
}

// VisitTableGet reads an element reference.
func (t *Translator) VisitTableGet(tableIndex uint32) error {
	if _, err := t.ctrl.top(); err != nil {
		return err
	}
	elem, table64, err := t.tableInfo(tableIndex)
	if err != nil {
		return err
	}
	index, err := t.popChecked(addressType(table64), "table.get")
	if err != nil {
		return err
	}
	dest := t.vstack.push(elem)
	t.emitProducer(isa.OpTableGet, dest, 0, 0,
		isa.PackReg3(dest, index.reg, 0), isa.PackBulkIndexes(tableIndex, 0))
	return nil
}

// VisitTableSet writes an element reference.
func (t *Translator) VisitTableSet(tableIndex uint32) error {
	if _, err := t.ctrl.top(); err != nil {
		return err
	}
	elem, table64, err := t.tableInfo(tableIndex)
	if err != nil {
		return err
	}
	value, err := t.popChecked(elem, "table.set")
	if err != nil {
		return err
	}
	index, err := t.popChecked(addressType(table64), "table.set")
	if err != nil {
		return err
	}
	t.emit(isa.OpTableSet,
		isa.PackReg3(index.reg, value.reg, 0), isa.PackBulkIndexes(tableIndex, 0))
	return nil
}

// VisitTableSize pushes the table's current element count.
func (t *Translator) VisitTableSize(tableIndex uint32) error {
	if _, err := t.ctrl.top(); err != nil {
		return err
	}
	_, table64, err := t.tableInfo(tableIndex)
	if err != nil {
		return err
	}
	dest := t.vstack.push(addressType(table64))
	t.emitProducer(isa.OpTableSize, dest, 0, 0,
		isa.PackReg3(dest, 0, 0), isa.PackBulkIndexes(tableIndex, 0))
	return nil
}

// VisitTableGrow grows the table with a popped initial value and delta.
func (t *Translator) VisitTableGrow(tableIndex uint32) error {
	if _, err := t.ctrl.top(); err != nil {
		return err
	}
	elem, table64, err := t.tableInfo(tableIndex)
	if err != nil {
		return err
	}
	delta, err := t.popChecked(addressType(table64), "table.grow")
	if err != nil {
		return err
	}
	init, err := t.popChecked(elem, "table.grow")
	if err != nil {
		return err
	}
	dest := t.vstack.push(addressType(table64))
	t.emitProducer(isa.OpTableGrow, dest, 0, 0,
		isa.PackReg3(dest, init.reg, delta.reg), isa.PackBulkIndexes(tableIndex, 0))
	return nil
}

// VisitTableFill writes a reference value over a popped range.
func (t *Translator) VisitTableFill(tableIndex uint32) error {
	if _, err := t.ctrl.top(); err != nil {
		return err
	}
	elem, table64, err := t.tableInfo(tableIndex)
	if err != nil {
		return err
	}
	count, err := t.popChecked(addressType(table64), "table.fill")
	if err != nil {
		return err
	}
	value, err := t.popChecked(elem, "table.fill")
	if err != nil {
		return err
	}
	start, err := t.popChecked(addressType(table64), "table.fill")
	if err != nil {
		return err
	}
	t.emit(isa.OpTableFill,
		isa.PackReg3(start.reg, value.reg, count.reg), isa.PackBulkIndexes(tableIndex, 0))
	return nil
}

// VisitTableCopy copies between two tables of the same element type. The
// length operand uses the wider of the two index types.
func (t *Translator) VisitTableCopy(dstTable, srcTable uint32) error {
	f, err := t.ctrl.top()
	if err != nil {
		return err
	}
	dstElem, dst64, err := t.tableInfo(dstTable)
	if err != nil {
		return err
	}
	srcElem, src64, err := t.tableInfo(srcTable)
	if err != nil {
		return err
	}
	if f.reachable && dstElem != srcElem {
		return errf(ErrTypeMismatch, "table.copy between %s and %s tables",
			wasm.ValueTypeName(dstElem), wasm.ValueTypeName(srcElem))
	}
	length, err := t.popChecked(addressType(dst64 || src64), "table.copy")
	if err != nil {
		return err
	}
	src, err := t.popChecked(addressType(src64), "table.copy")
	if err != nil {
		return err
	}
	dst, err := t.popChecked(addressType(dst64), "table.copy")
	if err != nil {
		return err
	}
	t.emit(isa.OpTableCopy,
		isa.PackReg3(dst.reg, src.reg, length.reg), isa.PackBulkIndexes(dstTable, srcTable))
	return nil
}

// VisitTableInit copies from a passive element segment into a table.
func (t *Translator) VisitTableInit(elemIndex, tableIndex uint32) error {
	f, err := t.ctrl.top()
	if err != nil {
		return err
	}
	segElem, err := t.module.ValidateElementSegment(elemIndex)
	if err != nil {
		return indexErr(err)
	}
	tableElem, table64, err := t.tableInfo(tableIndex)
	if err != nil {
		return err
	}
	if f.reachable && segElem != tableElem {
		return errf(ErrTypeMismatch, "table.init of a %s segment into a %s table",
			wasm.ValueTypeName(segElem), wasm.ValueTypeName(tableElem))
	}
	length, err := t.popChecked(wasm.ValueTypeI32, "table.init")
	if err != nil {
		return err
	}
	src, err := t.popChecked(wasm.ValueTypeI32, "table.init")
	if err != nil {
		return err
	}
	dst, err := t.popChecked(addressType(table64), "table.init")
	if err != nil {
		return err
	}
	t.emit(isa.OpTableInit,
		isa.PackReg3(dst.reg, src.reg, length.reg), isa.PackBulkIndexes(elemIndex, tableIndex))
	return nil
}

// VisitElemDrop discards a passive element segment.
func (t *Translator) VisitElemDrop(elemIndex uint32) error {
	if _, err := t.ctrl.top(); err != nil {
		return err
	}
	if _, err := t.module.ValidateElementSegment(elemIndex); err != nil {
		return indexErr(err)
	}
	t.emit(isa.OpElemDrop, isa.PackIndex(elemIndex))
	return nil
}

func (t *Translator) tableInfo(tableIndex uint32) (wasm.ValueType, bool, error) {
	elem, err := t.module.TableElemType(tableIndex)
	if err != nil {
		return 0, false, indexErr(err)
	}
	is64, err := t.module.TableIs64(tableIndex)
	if err != nil {
		return 0, false, indexErr(err)
	}
	return elem, is64, nil
}
