package translator

import (
	"fortio.org/safecast"

	"github.com/stitchvm/stitch/internal/isa"
	"github.com/stitchvm/stitch/internal/wasm"
)

// The Visit methods are the translator's opcode surface: the code reader
// invokes exactly one per Wasm instruction, passing decoded immediates.
// Each follows the same discipline: type-check and update the symbolic
// stack, materialize what the target instruction needs in registers, then
// emit.

// VisitUnreachable translates the unreachable opcode.
func (t *Translator) VisitUnreachable() error {
	if _, err := t.ctrl.top(); err != nil {
		return err
	}
	t.emit(isa.OpUnreachable)
	return t.ctrl.markUnreachable()
}

// VisitNop translates nop, which emits nothing.
func (t *Translator) VisitNop() error {
	_, err := t.ctrl.top()
	return err
}

// VisitBlock enters a block with the given raw block type.
func (t *Translator) VisitBlock(rawBlockType int64) error {
	f, err := t.ctrl.top()
	if err != nil {
		return err
	}
	bt, err := t.module.BlockType(rawBlockType)
	if err != nil {
		return indexErr(err)
	}
	n, err := t.checkBlockParams(f, bt, "block")
	if err != nil {
		return err
	}
	// Parameters stay on the stack with their provenance intact; the block
	// body sees them exactly as its caller left them.
	t.ctrl.push(controlFrame{
		kind:         frameBlock,
		blockType:    bt,
		stackHeight:  t.vstack.height() - n,
		continuation: t.b.allocLabel(),
		elseLabel:    noLabel,
		reachable:    f.reachable,
	})
	return nil
}

// VisitLoop enters a loop. Its parameters are materialized before the header
// label so every branch to the header meets one calling convention.
func (t *Translator) VisitLoop(rawBlockType int64) error {
	f, err := t.ctrl.top()
	if err != nil {
		return err
	}
	bt, err := t.module.BlockType(rawBlockType)
	if err != nil {
		return indexErr(err)
	}
	n, err := t.checkBlockParams(f, bt, "loop")
	if err != nil {
		return err
	}
	t.emitPlans(t.vstack.preserveUpper(n))
	t.ctrl.push(controlFrame{
		kind:         frameLoop,
		blockType:    bt,
		stackHeight:  t.vstack.height() - n,
		continuation: t.b.putLabel(),
		elseLabel:    noLabel,
		reachable:    f.reachable,
	})
	return nil
}

// VisitIf enters an if arm. The conditional branch is emitted against the
// else label; when no else arm appears, that label is pinned at the end, so
// the branch resolves to whichever exists.
func (t *Translator) VisitIf(rawBlockType int64) error {
	f, err := t.ctrl.top()
	if err != nil {
		return err
	}
	cond, err := t.popChecked(wasm.ValueTypeI32, "if")
	if err != nil {
		return err
	}
	bt, err := t.module.BlockType(rawBlockType)
	if err != nil {
		return indexErr(err)
	}
	n, err := t.checkBlockParams(f, bt, "if")
	if err != nil {
		return err
	}
	t.emitPlans(t.vstack.preserveUpper(n))
	elseLabel := t.b.allocLabel()
	endLabel := t.b.allocLabel()
	t.emitCondBr(isa.OpBrIfNot, elseLabel, cond.reg)
	t.ctrl.push(controlFrame{
		kind:         frameIf,
		blockType:    bt,
		stackHeight:  t.vstack.height() - n,
		continuation: endLabel,
		elseLabel:    elseLabel,
		reachable:    f.reachable,
	})
	return nil
}

// VisitElse switches from the then arm to the else arm of the innermost if.
func (t *Translator) VisitElse() error {
	f, err := t.ctrl.top()
	if err != nil {
		return err
	}
	if f.kind != frameIf || f.elseSeen {
		return errf(ErrControlMismatch, "else without a matching if")
	}
	if f.reachable {
		results := len(f.blockType.Results)
		if t.vstack.height()-f.stackHeight < results {
			return errf(ErrStackUnderflow, "if arm yields %d results but the stack holds %d",
				results, t.vstack.height()-f.stackHeight)
		}
		t.emitPlans(t.vstack.preserveUpper(results))
		t.emitBr(f.continuation)
	}
	t.vstack.truncate(f.stackHeight)
	for _, pt := range f.blockType.Params {
		// The parameters were materialized at these positions before the
		// brIfNot, so the else arm re-reads them in place.
		t.vstack.push(pt)
	}
	if err := t.b.pinLabelHere(f.elseLabel); err != nil {
		return err
	}
	f.elseSeen = true
	f.reachable = t.ctrl.parentReachable()
	return nil
}

// VisitEnd closes the innermost frame. For the root frame this translates
// the function epilogue; for inner frames it materializes the fallthrough
// results and pins the continuation.
func (t *Translator) VisitEnd() error {
	f, err := t.ctrl.top()
	if err != nil {
		return err
	}
	defer t.b.resetLastEmission()

	if f.root {
		if f.reachable {
			if err := t.translateReturn(); err != nil {
				return err
			}
		}
		landing := t.b.hasPendingUsers(f.continuation)
		if err := t.b.pinLabelHere(f.continuation); err != nil {
			return err
		}
		if landing {
			// Branches to the root frame copied into the return registers
			// themselves; their landing only needs the epilogue.
			if t.cfg.Interception {
				t.b.emit(isa.OpOnExit, isa.PackIndex(t.funcIndex))
			}
			t.b.emit(isa.OpReturn)
		}
		_, err = t.ctrl.pop()
		return err
	}

	results := len(f.blockType.Results)
	if f.reachable {
		if t.vstack.height()-f.stackHeight < results {
			return errf(ErrStackUnderflow, "block yields %d results but the stack holds %d",
				results, t.vstack.height()-f.stackHeight)
		}
		t.emitPlans(t.vstack.preserveUpper(results))
	}
	switch f.kind {
	case frameBlock:
		if err := t.b.pinLabelHere(f.continuation); err != nil {
			return err
		}
	case frameIf:
		if !f.elseSeen {
			// No else arm: the brIfNot resolves to the end.
			if err := t.b.pinLabelHere(f.elseLabel); err != nil {
				return err
			}
		}
		if err := t.b.pinLabelHere(f.continuation); err != nil {
			return err
		}
	case frameLoop:
		// The loop's continuation pinned at its header.
	}
	t.vstack.truncate(f.stackHeight)
	for _, rt := range f.blockType.Results {
		t.vstack.push(rt)
	}
	_, err = t.ctrl.pop()
	return err
}

// VisitBr translates an unconditional branch to the frame at relativeDepth.
func (t *Translator) VisitBr(relativeDepth uint32) error {
	if _, err := t.ctrl.top(); err != nil {
		return err
	}
	target, err := t.ctrl.branchTarget(relativeDepth)
	if err != nil {
		return err
	}
	if !t.reachableNow() {
		return nil
	}
	if err := t.emitBranchCopies(target, true); err != nil {
		return err
	}
	t.emitBr(target.continuation)
	return t.ctrl.markUnreachable()
}

// VisitBrIf translates a conditional branch. When the target needs values
// delivered, the branch inverts over a local fallthrough label so the copies
// only run on the taken path.
func (t *Translator) VisitBrIf(relativeDepth uint32) error {
	if _, err := t.ctrl.top(); err != nil {
		return err
	}
	cond, err := t.popChecked(wasm.ValueTypeI32, "br_if")
	if err != nil {
		return err
	}
	target, err := t.ctrl.branchTarget(relativeDepth)
	if err != nil {
		return err
	}
	if !t.reachableNow() {
		return nil
	}
	if target.copyCount() == 0 {
		t.emitCondBr(isa.OpBrIf, target.continuation, cond.reg)
		return nil
	}
	fallthroughLabel := t.b.allocLabel()
	t.emitCondBr(isa.OpBrIfNot, fallthroughLabel, cond.reg)
	if err := t.emitBranchCopies(target, false); err != nil {
		return err
	}
	t.emitBr(target.continuation)
	return t.b.pinLabelHere(fallthroughLabel)
}

// VisitBrTable translates br_table. Targets needing no value delivery point
// straight at their continuation; the rest branch through a copy trampoline
// emitted after the head.
func (t *Translator) VisitBrTable(targets []uint32, defaultTarget uint32) error {
	if _, err := t.ctrl.top(); err != nil {
		return err
	}
	index, err := t.popChecked(wasm.ValueTypeI32, "br_table")
	if err != nil {
		return err
	}
	all := make([]*controlFrame, 0, len(targets)+1)
	for _, depth := range append(append([]uint32{}, targets...), defaultTarget) {
		frame, err := t.ctrl.branchTarget(depth)
		if err != nil {
			return err
		}
		all = append(all, frame)
	}
	if !t.reachableNow() {
		return nil
	}
	tableID, err := safecast.Conv[uint16](len(t.brTables))
	if err != nil {
		return errf(ErrInternalConsistency, "too many br_tables in one function")
	}
	entries := t.arena.BrTableEntries(len(all))
	t.brTables = append(t.brTables, entries)
	t.b.emit(isa.OpBrTable, isa.PackBrTable(index.reg, uint32(len(all)), tableID))
	for i, frame := range all {
		if frame.copyCount() == 0 {
			t.b.fillBrTableEntry(frame.continuation, entries, i, func(target int) uint64 {
				return uint64(target)
			})
			continue
		}
		entries[i] = uint64(t.b.pc())
		if err := t.emitBranchCopies(frame, false); err != nil {
			return err
		}
		t.emitBr(frame.continuation)
	}
	return t.ctrl.markUnreachable()
}

// VisitReturn translates return.
func (t *Translator) VisitReturn() error {
	if _, err := t.ctrl.top(); err != nil {
		return err
	}
	if !t.reachableNow() {
		return nil
	}
	if err := t.translateReturn(); err != nil {
		return err
	}
	return t.ctrl.markUnreachable()
}

// VisitCall translates a direct call. Arguments are materialized at the top
// of the operand stack, which doubles as the callee's parameter region.
func (t *Translator) VisitCall(funcIndex uint32) error {
	if _, err := t.ctrl.top(); err != nil {
		return err
	}
	_, calleeType, err := t.module.FunctionType(funcIndex)
	if err != nil {
		return indexErr(err)
	}
	handle, resolved, err := t.module.ResolveFunction(funcIndex)
	if err != nil {
		return indexErr(err)
	}
	spAddend, err := t.setUpCallFrame(calleeType, "call")
	if err != nil {
		return err
	}
	if resolved {
		op := isa.OpCall
		if handle.SameInstance {
			op = isa.OpCompilingCall
		}
		t.emit(op, uint64(handle.Index), uint64(spAddend))
	}
	for _, rt := range calleeType.Results {
		t.vstack.push(rt)
	}
	return nil
}

// VisitCallIndirect translates call_indirect through the given table.
func (t *Translator) VisitCallIndirect(typeIndex, tableIndex uint32) error {
	if _, err := t.ctrl.top(); err != nil {
		return err
	}
	typeID, calleeType, err := t.module.InternedType(typeIndex)
	if err != nil {
		return indexErr(err)
	}
	table64, err := t.module.TableIs64(tableIndex)
	if err != nil {
		return indexErr(err)
	}
	addr, err := t.popChecked(addressType(table64), "call_indirect")
	if err != nil {
		return err
	}
	spAddend, err := t.setUpCallFrame(calleeType, "call_indirect")
	if err != nil {
		return err
	}
	t.emit(isa.OpCallIndirect,
		isa.PackCallIndirectTarget(tableIndex, uint32(typeID)),
		isa.PackCallIndirectFrame(addr.reg, uint32(spAddend)))
	for _, rt := range calleeType.Results {
		t.vstack.push(rt)
	}
	return nil
}

// setUpCallFrame materializes and pops the callee's arguments and returns
// the callee frame's SP addend. The callee's parameter region begins right
// at the caller's operand-stack top, so materialized arguments are already
// in place.
func (t *Translator) setUpCallFrame(calleeType *wasm.FunctionType, what string) (int, error) {
	f, err := t.ctrl.top()
	if err != nil {
		return 0, err
	}
	nparams := len(calleeType.Params)
	avail := t.vstack.height() - f.stackHeight
	if avail > nparams {
		avail = nparams
	}
	t.emitPlans(t.vstack.preserveUpper(avail))
	for i := nparams - 1; i >= 0; i-- {
		if _, err := t.popChecked(calleeType.Params[i], what); err != nil {
			return 0, err
		}
	}
	return int(t.layout.StackRegBase) + t.vstack.height() + int(NewFrameHeaderLayout(calleeType).Size()), nil
}

// VisitDrop discards the top operand. Dropping is a pure stack operation,
// but it still invalidates the relink peephole: the dropped producer's
// result must not be rewritten later.
func (t *Translator) VisitDrop() error {
	if _, _, err := t.popAnyOperand("drop"); err != nil {
		return err
	}
	t.b.resetLastEmission()
	return nil
}

// VisitSelect translates select; expectedType is nil for the untyped form,
// which excludes reference types.
func (t *Translator) VisitSelect(expectedType *wasm.ValueType) error {
	f, err := t.ctrl.top()
	if err != nil {
		return err
	}
	cond, err := t.popChecked(wasm.ValueTypeI32, "select")
	if err != nil {
		return err
	}
	mvFalse, onFalse, err := t.popAnyOperand("select")
	if err != nil {
		return err
	}
	mvTrue, onTrue, err := t.popAnyOperand("select")
	if err != nil {
		return err
	}
	if f.reachable {
		if mvFalse.known && mvTrue.known && mvFalse.typ != mvTrue.typ {
			return errf(ErrTypeMismatch, "select operands disagree: %s versus %s",
				wasm.ValueTypeName(mvTrue.typ), wasm.ValueTypeName(mvFalse.typ))
		}
		for _, mv := range []metaValue{mvFalse, mvTrue} {
			if !mv.known {
				continue
			}
			if expectedType != nil && mv.typ != *expectedType {
				return errf(ErrTypeMismatch, "select expects %s but the stack holds %s",
					wasm.ValueTypeName(*expectedType), wasm.ValueTypeName(mv.typ))
			}
			if expectedType == nil && wasm.IsReferenceType(mv.typ) {
				return errf(ErrTypeMismatch, "untyped select cannot choose between %s values",
					wasm.ValueTypeName(mv.typ))
			}
		}
	}
	resultType, known := metaValue{}, false
	switch {
	case mvFalse.known:
		resultType, known = mvFalse, true
	case mvTrue.known:
		resultType, known = mvTrue, true
	case expectedType != nil:
		resultType, known = knownValue(*expectedType), true
	}
	var dest isa.VReg
	if known {
		dest = t.vstack.push(resultType.typ)
	} else {
		t.vstack.pushUnknown()
		dest = t.layout.StackReg(t.vstack.height() - 1)
	}
	t.emitProducer(isa.OpSelect, dest, 0, 0, isa.PackReg4(dest, cond.reg, onTrue.reg, onFalse.reg))
	return nil
}

// VisitLocalGet pushes a slot mirroring the local; no instruction is
// emitted, and the peephole is cleared because the previous producer's
// result is now observable through the alias.
func (t *Translator) VisitLocalGet(localIndex uint32) error {
	if _, err := t.ctrl.top(); err != nil {
		return err
	}
	lt, err := t.localType(localIndex)
	if err != nil {
		return err
	}
	t.vstack.pushLocal(localIndex, lt)
	t.b.resetLastEmission()
	return nil
}

// VisitLocalSet assigns the top operand to a local. Stack slots aliasing the
// local are materialized first; pooled constants store directly; otherwise
// the previous producer is relinked to write the local, or a copy is
// emitted.
func (t *Translator) VisitLocalSet(localIndex uint32) error {
	return t.translateLocalWrite(localIndex, false)
}

// VisitLocalTee is local.set that leaves the value on the stack, re-pushed
// as an alias of the local.
func (t *Translator) VisitLocalTee(localIndex uint32) error {
	return t.translateLocalWrite(localIndex, true)
}

func (t *Translator) translateLocalWrite(localIndex uint32, tee bool) error {
	if _, err := t.ctrl.top(); err != nil {
		return err
	}
	lt, err := t.localType(localIndex)
	if err != nil {
		return err
	}
	t.emitPlans(t.vstack.preserveLocal(localIndex))
	src, err := t.popChecked(lt, "local.set")
	if err != nil {
		return err
	}
	dst := t.layout.LocalReg(localIndex)
	if t.reachableNow() && src.kind != srcPhantom {
		switch {
		case src.kind == srcConst:
			// Store the pooled payload straight into the local, bypassing
			// the pool register.
			t.emitConstInto(dst, lt, t.pool.values[src.index])
		case !tee && t.b.relinkLastResult(dst, src.reg):
			// The producer now writes the local directly.
		default:
			t.emitCopy(dst, src.reg, false)
		}
	}
	if tee {
		t.vstack.pushLocal(localIndex, lt)
	}
	return nil
}

// emitConstInto emits an inline constant targeting an arbitrary register.
func (t *Translator) emitConstInto(dst isa.VReg, vt wasm.ValueType, bits uint64) {
	if vt == wasm.ValueTypeI32 || vt == wasm.ValueTypeF32 {
		t.emit(isa.OpConst32, isa.PackConst32(dst, uint32(bits)))
	} else {
		t.emit(isa.OpConst64, isa.PackReg2(dst, 0), bits)
	}
}

// VisitGlobalGet reads a global into a fresh stack register.
func (t *Translator) VisitGlobalGet(globalIndex uint32) error {
	if _, err := t.ctrl.top(); err != nil {
		return err
	}
	gt, err := t.module.GlobalType(globalIndex)
	if err != nil {
		return indexErr(err)
	}
	handle, resolved, err := t.module.ResolveGlobal(globalIndex)
	if err != nil {
		return indexErr(err)
	}
	dest := t.vstack.push(gt)
	if resolved {
		t.emitProducer(isa.OpGlobalGet, dest, 0, 0, isa.PackRegIndex(dest, uint32(handle)))
	}
	return nil
}

// VisitGlobalSet writes the top operand to a global.
func (t *Translator) VisitGlobalSet(globalIndex uint32) error {
	if _, err := t.ctrl.top(); err != nil {
		return err
	}
	gt, err := t.module.GlobalType(globalIndex)
	if err != nil {
		return indexErr(err)
	}
	handle, resolved, err := t.module.ResolveGlobal(globalIndex)
	if err != nil {
		return indexErr(err)
	}
	src, err := t.popChecked(gt, "global.set")
	if err != nil {
		return err
	}
	if resolved && src.kind != srcPhantom {
		t.emit(isa.OpGlobalSet, isa.PackRegIndex(src.reg, uint32(handle)))
	}
	return nil
}

// addressType returns the operand type indexing a memory or table.
func addressType(is64 bool) wasm.ValueType {
	if is64 {
		return wasm.ValueTypeI64
	}
	return wasm.ValueTypeI32
}
