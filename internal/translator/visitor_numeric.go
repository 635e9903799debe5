package translator

import (
	"github.com/stitchvm/stitch/internal/isa"
	"github.com/stitchvm/stitch/internal/wasm"
)

// VisitUnary translates a same-type unary operator such as i32.clz.
func (t *Translator) VisitUnary(op isa.Opcode, vt wasm.ValueType) error {
	return t.VisitConversion(op, vt, vt)
}

// VisitConversion translates a unary operator with distinct input and output
// types, covering the wrap/extend/trunc/convert/reinterpret family.
func (t *Translator) VisitConversion(op isa.Opcode, in, out wasm.ValueType) error {
	src, err := t.popChecked(in, op.String())
	if err != nil {
		return err
	}
	dest := t.vstack.push(out)
	t.emitProducer(op, dest, 0, 0, isa.PackReg2(dest, src.reg))
	return nil
}

// VisitBinary translates a two-operand operator. in is the operand type and
// out the result type; comparisons produce i32 from wider operands.
func (t *Translator) VisitBinary(op isa.Opcode, in, out wasm.ValueType) error {
	rhs, err := t.popChecked(in, op.String())
	if err != nil {
		return err
	}
	lhs, err := t.popChecked(in, op.String())
	if err != nil {
		return err
	}
	dest := t.vstack.push(out)
	t.emitProducer(op, dest, 0, 0, isa.PackReg3(dest, lhs.reg, rhs.reg))
	return nil
}

// VisitConst translates a constant of type vt with the given 64-bit payload.
// Constants are pooled and deduplicated by bit pattern across types; a
// saturated pool falls back to an inline const instruction.
func (t *Translator) VisitConst(vt wasm.ValueType, bits uint64) error {
	f, err := t.ctrl.top()
	if err != nil {
		return err
	}
	if !f.reachable {
		t.vstack.push(vt)
		return nil
	}
	if slot, ok := t.pool.allocate(bits); ok {
		t.vstack.pushConst(slot, vt)
		// A pool hit emits nothing, so the previous producer's result can no
		// longer be rewritten safely.
		t.b.resetLastEmission()
		return nil
	}
	dest := t.vstack.push(vt)
	if vt == wasm.ValueTypeI32 || vt == wasm.ValueTypeF32 {
		t.emitProducer(isa.OpConst32, dest, 0, 0, isa.PackConst32(dest, uint32(bits)))
	} else {
		t.emitProducer(isa.OpConst64, dest, 0, 0, isa.PackReg2(dest, 0), bits)
	}
	return nil
}

// VisitRefNull pushes a null reference of type vt. Null is the all-zero
// payload, so it shares pool slot bits with numeric zeros.
func (t *Translator) VisitRefNull(vt wasm.ValueType) error {
	return t.VisitConst(vt, 0)
}

// VisitRefIsNull tests the top reference for null.
func (t *Translator) VisitRefIsNull() error {
	_, src, err := t.popRef("ref.is_null")
	if err != nil {
		return err
	}
	dest := t.vstack.push(wasm.ValueTypeI32)
	t.emitProducer(isa.OpRefIsNull, dest, 0, 0, isa.PackReg2(dest, src.reg))
	return nil
}

// VisitRefFunc pushes a reference to the given function.
func (t *Translator) VisitRefFunc(funcIndex uint32) error {
	if _, err := t.ctrl.top(); err != nil {
		return err
	}
	if err := t.module.ValidateFunction(funcIndex); err != nil {
		return indexErr(err)
	}
	dest := t.vstack.push(wasm.ValueTypeFuncref)
	t.emitProducer(isa.OpRefFunc, dest, 0, 0, isa.PackRegIndex(dest, funcIndex))
	return nil
}
