package translator

import (
	"fmt"

	"fortio.org/safecast"

	"github.com/stitchvm/stitch/internal/isa"
	"github.com/stitchvm/stitch/internal/wasm"
)

// Saved-slot offsets within the frame header. The three slots trail the
// header immediately below SP.
const (
	savedInstanceReg isa.VReg = -3
	savedPCReg       isa.VReg = -2
	savedSPReg       isa.VReg = -1
	numSavedSlots             = 3
)

// FrameHeaderLayout places a function's parameters and results in the frame
// header below SP. Parameters and results alias the same region, so the
// header is sized by whichever is larger, plus the three saved slots.
type FrameHeaderLayout struct {
	paramResultBase int16
}

func NewFrameHeaderLayout(ft *wasm.FunctionType) FrameHeaderLayout {
	n := len(ft.Params)
	if len(ft.Results) > n {
		n = len(ft.Results)
	}
	return FrameHeaderLayout{paramResultBase: int16(n) + numSavedSlots}
}

// Size returns the number of header slots below SP.
func (l FrameHeaderLayout) Size() int16 {
	return l.paramResultBase
}

// ParamReg returns the register holding parameter i.
func (l FrameHeaderLayout) ParamReg(i int) isa.VReg {
	return isa.VReg(int16(i) - l.paramResultBase)
}

// ReturnReg returns the register receiving result i. Results alias the
// parameter region.
func (l FrameHeaderLayout) ReturnReg(i int) isa.VReg {
	return isa.VReg(int16(i) - l.paramResultBase)
}

// StackLayout assigns the non-negative register file of one function:
// locals first, then the constant pool, then the operand-stack region.
type StackLayout struct {
	Header FrameHeaderLayout

	// NumParams is the parameter count; parameters live in the header.
	NumParams int
	// NumLocals counts the declared (non-parameter) locals.
	NumLocals int
	// ConstantSlots is the constant-pool capacity.
	ConstantSlots int
	// StackRegBase is the first operand-stack register.
	StackRegBase int16
}

// constantSlotBudget is the per-function pool size heuristic: one slot per
// twenty body bytes, with a floor of four.
func constantSlotBudget(codeSize int) int {
	n := codeSize / 20
	if n < 4 {
		n = 4
	}
	return n
}

// NewStackLayout computes the register plan for a function. It fails with
// ErrConstSlotOverflow when locals plus the constant budget exceed the VReg
// range.
func NewStackLayout(ft *wasm.FunctionType, numLocals, codeSize int) (StackLayout, error) {
	slots := constantSlotBudget(codeSize)
	base, err := safecast.Conv[int16](numLocals + slots)
	if err != nil {
		return StackLayout{}, errf(ErrConstSlotOverflow,
			"%d locals plus %d constant slots exceed the register file", numLocals, slots)
	}
	return StackLayout{
		Header:        NewFrameHeaderLayout(ft),
		NumParams:     len(ft.Params),
		NumLocals:     numLocals,
		ConstantSlots: slots,
		StackRegBase:  base,
	}, nil
}

// LocalReg returns the register holding local i, counting parameters first.
func (l StackLayout) LocalReg(i uint32) isa.VReg {
	if int(i) < l.NumParams {
		return l.Header.ParamReg(int(i))
	}
	return isa.VReg(int(i) - l.NumParams)
}

// ConstReg returns the register backing constant-pool slot i.
func (l StackLayout) ConstReg(i uint32) isa.VReg {
	return isa.VReg(l.NumLocals + int(i))
}

// StackReg returns the register backing operand-stack position pos.
func (l StackLayout) StackReg(pos int) isa.VReg {
	return isa.VReg(int(l.StackRegBase) + pos)
}

// DescribeReg renders a register's role within this frame, as used by the
// instruction dumper.
func (l StackLayout) DescribeReg(r isa.VReg) string {
	switch {
	case r == savedInstanceReg:
		return "saved.instance"
	case r == savedPCReg:
		return "saved.pc"
	case r == savedSPReg:
		return "saved.sp"
	case r < 0:
		i := int(r + isa.VReg(l.Header.paramResultBase))
		if i < l.NumParams {
			return fmt.Sprintf("p%d", i)
		}
		return fmt.Sprintf("r%d", i)
	case int(r) < l.NumLocals:
		return fmt.Sprintf("l%d", int(r)+l.NumParams)
	case int(r) < l.NumLocals+l.ConstantSlots:
		return fmt.Sprintf("c%d", int(r)-l.NumLocals)
	default:
		return fmt.Sprintf("s%d", int(r)-int(l.StackRegBase))
	}
}
