package isa

import "fmt"

// ThreadingModel selects how an instruction's head slot is encoded for the
// interpreter's dispatch loop.
type ThreadingModel uint8

const (
	// ThreadingToken encodes the opcode number itself; the dispatch loop
	// switches on it.
	ThreadingToken ThreadingModel = iota
	// ThreadingDirect encodes the handler's address; the dispatch loop jumps
	// through it without a table lookup.
	ThreadingDirect
)

func (m ThreadingModel) String() string {
	switch m {
	case ThreadingToken:
		return "token"
	case ThreadingDirect:
		return "direct"
	}
	return "invalid"
}

// HeadCoder translates between opcodes and head-slot values under one
// threading model. The zero value is the token coder.
type HeadCoder struct {
	model    ThreadingModel
	handlers []uintptr
	reverse  map[uintptr]Opcode
}

// TokenCoder returns the coder for token-threaded dispatch.
func TokenCoder() HeadCoder {
	return HeadCoder{model: ThreadingToken}
}

// DirectCoder returns a coder mapping each opcode to its handler address.
// handlers must hold one distinct address per opcode.
func DirectCoder(handlers []uintptr) (HeadCoder, error) {
	if len(handlers) != int(NumOpcodes) {
		return HeadCoder{}, fmt.Errorf("handler table has %d entries, want %d", len(handlers), NumOpcodes)
	}
	reverse := make(map[uintptr]Opcode, len(handlers))
	for op, h := range handlers {
		if _, dup := reverse[h]; dup {
			return HeadCoder{}, fmt.Errorf("handler address %#x is shared by %s and %s", h, reverse[h], Opcode(op))
		}
		reverse[h] = Opcode(op)
	}
	return HeadCoder{model: ThreadingDirect, handlers: handlers, reverse: reverse}, nil
}

// Model returns the coder's threading model.
func (c HeadCoder) Model() ThreadingModel {
	return c.model
}

// Encode returns the head-slot value for op.
func (c HeadCoder) Encode(op Opcode) uint64 {
	if c.model == ThreadingDirect {
		return uint64(c.handlers[op])
	}
	return uint64(op)
}

// Decode recovers the opcode from a head slot.
func (c HeadCoder) Decode(slot uint64) (Opcode, error) {
	if c.model == ThreadingDirect {
		op, ok := c.reverse[uintptr(slot)]
		if !ok {
			return 0, fmt.Errorf("head slot %#x is not a known handler address", slot)
		}
		return op, nil
	}
	if slot >= uint64(NumOpcodes) {
		return 0, fmt.Errorf("head slot %#x is not a valid opcode", slot)
	}
	return Opcode(slot), nil
}
