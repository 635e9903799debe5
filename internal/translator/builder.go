package translator

import "github.com/stitchvm/stitch/internal/isa"

// labelRef identifies a label within one builder. Labels are plain integer
// ids; pending patches are closures captured by value, so no ownership cycle
// ever forms between an instruction slot and its target.
type labelRef int32

const noLabel labelRef = -1

// slotFactory computes a patched immediate slot from the branch's source PC
// and the label's pinned PC. The source PC is the slot immediately after the
// branch's head slot; offsets are always encoded as target - source.
type slotFactory func(source, target int) uint64

// entryFactory computes a br_table entry from the label's pinned PC alone.
type entryFactory func(target int) uint64

// labelUser is one pending back-patch: either an instruction slot to
// overwrite, or a br_table entry to fill.
type labelUser struct {
	// insertAt and sourcePC, with make, patch an instruction slot.
	insertAt int
	sourcePC int
	make     slotFactory
	// table, tableIndex and fill patch a br_table entry instead.
	table      []uint64
	tableIndex int
	fill       entryFactory
}

type labelEntry struct {
	pinned bool
	pc     int
	users  []labelUser
}

// lastEmission is the single-slot peephole state: the most recent emission
// that may still have its result register rewritten.
type lastEmission struct {
	valid  bool
	result isa.VReg
	relink func(dst isa.VReg)
}

// builder accumulates the 64-bit instruction slots of one function and
// resolves labels over them.
type builder struct {
	code   []uint64
	labels []labelEntry
	coder  isa.HeadCoder
	last   lastEmission
}

func newBuilder(coder isa.HeadCoder) builder {
	return builder{coder: coder}
}

// pc returns the current insertion point.
func (b *builder) pc() int {
	return len(b.code)
}

// allocLabel creates an unpinned label.
func (b *builder) allocLabel() labelRef {
	b.labels = append(b.labels, labelEntry{})
	return labelRef(len(b.labels) - 1)
}

// putLabel allocates a label already pinned to the current insertion point.
// Pinning a label is a basic-block boundary, so the peephole state is
// cleared.
func (b *builder) putLabel() labelRef {
	b.resetLastEmission()
	b.labels = append(b.labels, labelEntry{pinned: true, pc: len(b.code)})
	return labelRef(len(b.labels) - 1)
}

// pinLabelHere pins a previously allocated label to the current insertion
// point and runs its pending back-patches.
func (b *builder) pinLabelHere(ref labelRef) error {
	b.resetLastEmission()
	l := &b.labels[ref]
	if l.pinned {
		return errf(ErrInternalConsistency, "label %d pinned twice", ref)
	}
	l.pinned = true
	l.pc = len(b.code)
	for _, u := range l.users {
		if u.fill != nil {
			u.table[u.tableIndex] = u.fill(l.pc)
		} else {
			b.code[u.insertAt] = u.make(u.sourcePC, l.pc)
		}
	}
	l.users = nil
	return nil
}

// hasPendingUsers reports whether ref has back-patches waiting on a pin.
func (b *builder) hasPendingUsers(ref labelRef) bool {
	return len(b.labels[ref].users) > 0
}

// pinned reports whether ref has been pinned.
func (b *builder) pinned(ref labelRef) bool {
	return b.labels[ref].pinned
}

// checkNoDanglingLabels is the finalization assert: every label with users
// must have been pinned.
func (b *builder) checkNoDanglingLabels() error {
	for i, l := range b.labels {
		if !l.pinned && len(l.users) > 0 {
			return errf(ErrDanglingLabel, "label %d has %d unpatched users", i, len(l.users))
		}
	}
	return nil
}

// emit appends one instruction. Any previous relink opportunity dies here;
// producers re-arm it via setLastEmission immediately after emitting.
func (b *builder) emit(op isa.Opcode, imms ...uint64) int {
	b.resetLastEmission()
	head := len(b.code)
	b.code = append(b.code, b.coder.Encode(op))
	b.code = append(b.code, imms...)
	return head
}

// emitWithLabel appends an instruction whose single immediate slot depends
// on ref's pinned PC. If ref is already pinned the slot is written
// immediately; otherwise it is reserved as zero and patched when ref pins.
func (b *builder) emitWithLabel(op isa.Opcode, ref labelRef, factory slotFactory) {
	b.resetLastEmission()
	b.code = append(b.code, b.coder.Encode(op))
	source := len(b.code) // the slot after the head
	l := &b.labels[ref]
	if l.pinned {
		b.code = append(b.code, factory(source, l.pc))
		return
	}
	b.code = append(b.code, 0)
	l.users = append(l.users, labelUser{insertAt: source, sourcePC: source, make: factory})
}

// fillBrTableEntry fills table[index] from ref's pinned PC, immediately or
// on pinning.
func (b *builder) fillBrTableEntry(ref labelRef, table []uint64, index int, factory entryFactory) {
	l := &b.labels[ref]
	if l.pinned {
		table[index] = factory(l.pc)
		return
	}
	l.users = append(l.users, labelUser{table: table, tableIndex: index, fill: factory})
}

// setLastEmission arms the relink peephole for the instruction just emitted.
// result is the register the instruction currently writes; relink must
// rewrite the already-emitted slots so it writes dst instead.
func (b *builder) setLastEmission(result isa.VReg, relink func(dst isa.VReg)) {
	b.last = lastEmission{valid: true, result: result, relink: relink}
}

// resetLastEmission forbids relinking across whatever the caller is about to
// do. Every control-flow event, label pin, and non-producer emission runs
// through this.
func (b *builder) resetLastEmission() {
	b.last = lastEmission{}
}

// relinkLastResult attempts the peephole: if the previous emission produced
// src, rewrite it to produce dst directly and report success. The caller
// then suppresses its copy.
func (b *builder) relinkLastResult(dst, src isa.VReg) bool {
	if !b.last.valid || b.last.result != src {
		return false
	}
	relink := b.last.relink
	b.last = lastEmission{}
	relink(dst)
	return true
}
