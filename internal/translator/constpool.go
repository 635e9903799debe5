package translator

import "fortio.org/safecast"

// constantPool deduplicates the 64-bit payloads of const instructions into
// the frame's constant-slot region. Slots are untyped: the same bit pattern
// is shared across value types.
type constantPool struct {
	values   []uint64
	index    map[uint64]uint32
	capacity int
}

func newConstantPool(capacity int) constantPool {
	return constantPool{index: make(map[uint64]uint32), capacity: capacity}
}

// allocate returns the pool slot holding bits, reusing an existing slot for
// a repeated pattern. ok is false once the pool is saturated; the caller
// falls back to an inline const instruction.
func (p *constantPool) allocate(bits uint64) (slot uint32, ok bool) {
	if slot, ok = p.index[bits]; ok {
		return slot, true
	}
	if len(p.values) >= p.capacity {
		return 0, false
	}
	slot, err := safecast.Conv[uint32](len(p.values))
	if err != nil {
		return 0, false
	}
	p.values = append(p.values, bits)
	p.index[bits] = slot
	return slot, true
}

// size returns the number of occupied slots.
func (p *constantPool) size() int {
	return len(p.values)
}
