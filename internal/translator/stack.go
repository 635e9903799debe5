package translator

import (
	"github.com/stitchvm/stitch/internal/isa"
	"github.com/stitchvm/stitch/internal/wasm"
)

// metaValue is a statically known value type, or Unknown for operands popped
// in unreachable code. Type checks against Unknown are suppressed.
type metaValue struct {
	known bool
	typ   wasm.ValueType
}

func knownValue(t wasm.ValueType) metaValue {
	return metaValue{known: true, typ: t}
}

var unknownValue = metaValue{}

type entryKind uint8

const (
	// entryStack is a value materialized at its operand-stack register.
	entryStack entryKind = iota
	// entryLocal mirrors a local; its producer has not been emitted.
	entryLocal
	// entryConst references a constant-pool slot.
	entryConst
)

// stackEntry is one slot of the symbolic operand stack, carrying the slot's
// provenance so emission of locals and constants can be deferred.
type stackEntry struct {
	kind entryKind
	val  metaValue
	// index is the local index for entryLocal, or the pool slot for
	// entryConst.
	index uint32
}

type sourceKind uint8

const (
	srcStack sourceKind = iota
	srcLocal
	srcConst
	// srcPhantom marks an operand popped past the stack bottom in
	// unreachable code; nothing may be emitted against it.
	srcPhantom
)

// valueSource is the resolved physical location of a popped or peeked
// operand.
type valueSource struct {
	kind sourceKind
	reg  isa.VReg
	// index is the pool slot for srcConst, or the local index for srcLocal.
	index uint32
}

// valueStack is the compile-time shadow of the Wasm operand stack. Entry i
// occupies operand-stack position i; materialized entries live at
// StackReg(i).
type valueStack struct {
	layout    *StackLayout
	entries   []stackEntry
	maxHeight int
}

func newValueStack(layout *StackLayout) valueStack {
	return valueStack{layout: layout}
}

func (s *valueStack) height() int {
	return len(s.entries)
}

func (s *valueStack) pushEntry(e stackEntry) {
	s.entries = append(s.entries, e)
	if len(s.entries) > s.maxHeight {
		s.maxHeight = len(s.entries)
	}
}

// push reserves the next operand-stack register for a value of type t and
// returns it.
func (s *valueStack) push(t wasm.ValueType) isa.VReg {
	s.pushEntry(stackEntry{kind: entryStack, val: knownValue(t)})
	return s.layout.StackReg(len(s.entries) - 1)
}

// pushUnknown reserves a slot for a value of unknowable type, as produced in
// unreachable code.
func (s *valueStack) pushUnknown() {
	s.pushEntry(stackEntry{kind: entryStack})
}

// pushLocal pushes a slot mirroring local i without emitting anything.
func (s *valueStack) pushLocal(i uint32, t wasm.ValueType) {
	s.pushEntry(stackEntry{kind: entryLocal, val: knownValue(t), index: i})
}

// pushConst pushes a slot referencing constant-pool slot i.
func (s *valueStack) pushConst(i uint32, t wasm.ValueType) {
	s.pushEntry(stackEntry{kind: entryConst, val: knownValue(t), index: i})
}

func (s *valueStack) sourceOf(pos int) valueSource {
	e := s.entries[pos]
	switch e.kind {
	case entryLocal:
		return valueSource{kind: srcLocal, reg: s.layout.LocalReg(e.index), index: e.index}
	case entryConst:
		return valueSource{kind: srcConst, reg: s.layout.ConstReg(e.index), index: e.index}
	default:
		return valueSource{kind: srcStack, reg: s.layout.StackReg(pos)}
	}
}

// peek resolves the operand depth slots below the top without popping it.
func (s *valueStack) peek(depth int) valueSource {
	return s.sourceOf(len(s.entries) - 1 - depth)
}

// popAny pops the top slot. The caller is responsible for underflow
// handling; popping an empty stack is a bug at this layer.
func (s *valueStack) popAny() (metaValue, valueSource) {
	src := s.sourceOf(len(s.entries) - 1)
	e := s.entries[len(s.entries)-1]
	s.entries = s.entries[:len(s.entries)-1]
	return e.val, src
}

// truncate drops entries above height.
func (s *valueStack) truncate(height int) {
	s.entries = s.entries[:height]
}

// copyPlan is one register copy the caller must emit to complete a
// preservation.
type copyPlan struct {
	src isa.VReg
	dst isa.VReg
}

// preserveLocal rewrites every slot mirroring local i to a materialized
// entry and returns the copies delivering the local's current value into the
// reserved operand-stack registers. After this, local i's register can be
// overwritten without destroying live operands.
func (s *valueStack) preserveLocal(i uint32) []copyPlan {
	var plans []copyPlan
	for pos, e := range s.entries {
		if e.kind == entryLocal && e.index == i {
			s.entries[pos] = stackEntry{kind: entryStack, val: e.val}
			plans = append(plans, copyPlan{src: s.layout.LocalReg(i), dst: s.layout.StackReg(pos)})
		}
	}
	return plans
}

// preserveUpper materializes every local- or constant-backed slot among the
// top depth entries, returning the copies to emit in order. Branch and block
// boundaries use this so landing areas hold real values.
func (s *valueStack) preserveUpper(depth int) []copyPlan {
	var plans []copyPlan
	for pos := len(s.entries) - depth; pos < len(s.entries); pos++ {
		e := s.entries[pos]
		if e.kind == entryStack {
			continue
		}
		src := s.sourceOf(pos)
		s.entries[pos] = stackEntry{kind: entryStack, val: e.val}
		plans = append(plans, copyPlan{src: src.reg, dst: s.layout.StackReg(pos)})
	}
	return plans
}
