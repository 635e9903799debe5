package translator

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/stitchvm/stitch/internal/isa"
)

var (
	dumpOpcode = color.New(color.FgCyan).SprintFunc()
	dumpTarget = color.New(color.FgYellow).SprintFunc()
)

// Dump writes a line-per-instruction disassembly of seq, rendering every
// register operand with its frame-relative role (parameter, result, saved
// slot, local, constant or stack position). Colorization follows the global
// color profile; set color.NoColor to disable it.
func Dump(w io.Writer, seq *InstructionSequence) error {
	decoded, err := isa.Disassemble(seq.Instructions, seq.Coder)
	if err != nil {
		return err
	}
	for _, d := range decoded {
		if err := dumpOne(w, seq, d); err != nil {
			return err
		}
	}
	if len(seq.Constants) > 0 {
		fmt.Fprintf(w, "constants:")
		for i, c := range seq.Constants {
			fmt.Fprintf(w, " %s=%#x", seq.Layout.DescribeReg(seq.Layout.ConstReg(uint32(i))), c)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func dumpOne(w io.Writer, seq *InstructionSequence, d isa.Decoded) error {
	reg := seq.Layout.DescribeReg
	var operands []string
	switch d.Op.Shape() {
	case isa.ShapeNone:
	case isa.ShapeReg2:
		operands = []string{reg(d.Regs[0]), reg(d.Regs[1])}
	case isa.ShapeReg3:
		operands = []string{reg(d.Regs[0]), reg(d.Regs[1]), reg(d.Regs[2])}
	case isa.ShapeReg4:
		operands = []string{reg(d.Regs[0]), reg(d.Regs[1]), reg(d.Regs[2]), reg(d.Regs[3])}
	case isa.ShapeConst32, isa.ShapeConst64:
		operands = []string{reg(d.Regs[0]), fmt.Sprintf("%#x", d.U64s[0])}
	case isa.ShapeBr:
		operands = []string{dumpTarget(fmt.Sprintf("@%d", d.PC+1+int(d.Offset)))}
	case isa.ShapeCondBr:
		operands = []string{reg(d.Regs[0]), dumpTarget(fmt.Sprintf("@%d", d.PC+1+int(d.Offset)))}
	case isa.ShapeBrTable:
		operands = []string{reg(d.Regs[0])}
		if table := int(d.U64s[1]); table < len(seq.BrTables) {
			for _, entry := range seq.BrTables[table] {
				operands = append(operands, dumpTarget(fmt.Sprintf("@%d", entry)))
			}
		}
	case isa.ShapeIndex:
		operands = []string{fmt.Sprintf("%d", d.U64s[0])}
	case isa.ShapeRegIndex:
		operands = []string{reg(d.Regs[0]), fmt.Sprintf("%d", d.U64s[0])}
	case isa.ShapeMemAccess:
		operands = []string{reg(d.Regs[0]), reg(d.Regs[1]),
			fmt.Sprintf("offset=%d", d.U64s[0]), fmt.Sprintf("memory=%d", d.U64s[1])}
	case isa.ShapeBulk:
		operands = []string{reg(d.Regs[0]), reg(d.Regs[1]), reg(d.Regs[2]),
			fmt.Sprintf("%d", d.U64s[0]), fmt.Sprintf("%d", d.U64s[1])}
	case isa.ShapeCall:
		operands = []string{fmt.Sprintf("func=%d", d.U64s[0]), fmt.Sprintf("sp+=%d", d.U64s[1])}
	case isa.ShapeCallIndirect:
		operands = []string{fmt.Sprintf("table=%d", d.U64s[0]), fmt.Sprintf("type=%d", d.U64s[1]),
			reg(d.Regs[0]), fmt.Sprintf("sp+=%d", d.U64s[2])}
	}
	_, err := fmt.Fprintf(w, "%04d %-20s %s\n", d.PC, dumpOpcode(d.Op.String()), strings.Join(operands, ", "))
	return err
}
