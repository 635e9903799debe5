package binary

import (
	"github.com/stitchvm/stitch/internal/isa"
	"github.com/stitchvm/stitch/internal/translator"
	"github.com/stitchvm/stitch/internal/wasm"
)

type visitFunc func(*translator.Translator) error

func unary(op isa.Opcode, vt wasm.ValueType) visitFunc {
	return func(t *translator.Translator) error { return t.VisitUnary(op, vt) }
}

func binop(op isa.Opcode, in, out wasm.ValueType) visitFunc {
	return func(t *translator.Translator) error { return t.VisitBinary(op, in, out) }
}

func conv(op isa.Opcode, in, out wasm.ValueType) visitFunc {
	return func(t *translator.Translator) error { return t.VisitConversion(op, in, out) }
}

const (
	i32 = wasm.ValueTypeI32
	i64 = wasm.ValueTypeI64
	f32 = wasm.ValueTypeF32
	f64 = wasm.ValueTypeF64
)

// numericVisits binds each plain numeric and conversion opcode to its
// translator call. Memory, control and variable opcodes are dispatched
// separately since they carry immediates.
var numericVisits = map[wasm.Opcode]visitFunc{
	wasm.OpcodeI32Eqz: conv(isa.OpI32Eqz, i32, i32),
	wasm.OpcodeI32Eq:  binop(isa.OpI32Eq, i32, i32),
	wasm.OpcodeI32Ne:  binop(isa.OpI32Ne, i32, i32),
	wasm.OpcodeI32LtS: binop(isa.OpI32LtS, i32, i32),
	wasm.OpcodeI32LtU: binop(isa.OpI32LtU, i32, i32),
	wasm.OpcodeI32GtS: binop(isa.OpI32GtS, i32, i32),
	wasm.OpcodeI32GtU: binop(isa.OpI32GtU, i32, i32),
	wasm.OpcodeI32LeS: binop(isa.OpI32LeS, i32, i32),
	wasm.OpcodeI32LeU: binop(isa.OpI32LeU, i32, i32),
	wasm.OpcodeI32GeS: binop(isa.OpI32GeS, i32, i32),
	wasm.OpcodeI32GeU: binop(isa.OpI32GeU, i32, i32),

	wasm.OpcodeI64Eqz: conv(isa.OpI64Eqz, i64, i32),
	wasm.OpcodeI64Eq:  binop(isa.OpI64Eq, i64, i32),
	wasm.OpcodeI64Ne:  binop(isa.OpI64Ne, i64, i32),
	wasm.OpcodeI64LtS: binop(isa.OpI64LtS, i64, i32),
	wasm.OpcodeI64LtU: binop(isa.OpI64LtU, i64, i32),
	wasm.OpcodeI64GtS: binop(isa.OpI64GtS, i64, i32),
	wasm.OpcodeI64GtU: binop(isa.OpI64GtU, i64, i32),
	wasm.OpcodeI64LeS: binop(isa.OpI64LeS, i64, i32),
	wasm.OpcodeI64LeU: binop(isa.OpI64LeU, i64, i32),
	wasm.OpcodeI64GeS: binop(isa.OpI64GeS, i64, i32),
	wasm.OpcodeI64GeU: binop(isa.OpI64GeU, i64, i32),

	wasm.OpcodeF32Eq: binop(isa.OpF32Eq, f32, i32),
	wasm.OpcodeF32Ne: binop(isa.OpF32Ne, f32, i32),
	wasm.OpcodeF32Lt: binop(isa.OpF32Lt, f32, i32),
	wasm.OpcodeF32Gt: binop(isa.OpF32Gt, f32, i32),
	wasm.OpcodeF32Le: binop(isa.OpF32Le, f32, i32),
	wasm.OpcodeF32Ge: binop(isa.OpF32Ge, f32, i32),
	wasm.OpcodeF64Eq: binop(isa.OpF64Eq, f64, i32),
	wasm.OpcodeF64Ne: binop(isa.OpF64Ne, f64, i32),
	wasm.OpcodeF64Lt: binop(isa.OpF64Lt, f64, i32),
	wasm.OpcodeF64Gt: binop(isa.OpF64Gt, f64, i32),
	wasm.OpcodeF64Le: binop(isa.OpF64Le, f64, i32),
	wasm.OpcodeF64Ge: binop(isa.OpF64Ge, f64, i32),

	wasm.OpcodeI32Clz:    unary(isa.OpI32Clz, i32),
	wasm.OpcodeI32Ctz:    unary(isa.OpI32Ctz, i32),
	wasm.OpcodeI32Popcnt: unary(isa.OpI32Popcnt, i32),
	wasm.OpcodeI32Add:    binop(isa.OpI32Add, i32, i32),
	wasm.OpcodeI32Sub:    binop(isa.OpI32Sub, i32, i32),
	wasm.OpcodeI32Mul:    binop(isa.OpI32Mul, i32, i32),
	wasm.OpcodeI32DivS:   binop(isa.OpI32DivS, i32, i32),
	wasm.OpcodeI32DivU:   binop(isa.OpI32DivU, i32, i32),
	wasm.OpcodeI32RemS:   binop(isa.OpI32RemS, i32, i32),
	wasm.OpcodeI32RemU:   binop(isa.OpI32RemU, i32, i32),
	wasm.OpcodeI32And:    binop(isa.OpI32And, i32, i32),
	wasm.OpcodeI32Or:     binop(isa.OpI32Or, i32, i32),
	wasm.OpcodeI32Xor:    binop(isa.OpI32Xor, i32, i32),
	wasm.OpcodeI32Shl:    binop(isa.OpI32Shl, i32, i32),
	wasm.OpcodeI32ShrS:   binop(isa.OpI32ShrS, i32, i32),
	wasm.OpcodeI32ShrU:   binop(isa.OpI32ShrU, i32, i32),
	wasm.OpcodeI32Rotl:   binop(isa.OpI32Rotl, i32, i32),
	wasm.OpcodeI32Rotr:   binop(isa.OpI32Rotr, i32, i32),

	wasm.OpcodeI64Clz:    unary(isa.OpI64Clz, i64),
	wasm.OpcodeI64Ctz:    unary(isa.OpI64Ctz, i64),
	wasm.OpcodeI64Popcnt: unary(isa.OpI64Popcnt, i64),
	wasm.OpcodeI64Add:    binop(isa.OpI64Add, i64, i64),
	wasm.OpcodeI64Sub:    binop(isa.OpI64Sub, i64, i64),
	wasm.OpcodeI64Mul:    binop(isa.OpI64Mul, i64, i64),
	wasm.OpcodeI64DivS:   binop(isa.OpI64DivS, i64, i64),
	wasm.OpcodeI64DivU:   binop(isa.OpI64DivU, i64, i64),
	wasm.OpcodeI64RemS:   binop(isa.OpI64RemS, i64, i64),
	wasm.OpcodeI64RemU:   binop(isa.OpI64RemU, i64, i64),
	wasm.OpcodeI64And:    binop(isa.OpI64And, i64, i64),
	wasm.OpcodeI64Or:     binop(isa.OpI64Or, i64, i64),
	wasm.OpcodeI64Xor:    binop(isa.OpI64Xor, i64, i64),
	wasm.OpcodeI64Shl:    binop(isa.OpI64Shl, i64, i64),
	wasm.OpcodeI64ShrS:   binop(isa.OpI64ShrS, i64, i64),
	wasm.OpcodeI64ShrU:   binop(isa.OpI64ShrU, i64, i64),
	wasm.OpcodeI64Rotl:   binop(isa.OpI64Rotl, i64, i64),
	wasm.OpcodeI64Rotr:   binop(isa.OpI64Rotr, i64, i64),

	wasm.OpcodeF32Abs:      unary(isa.OpF32Abs, f32),
	wasm.OpcodeF32Neg:      unary(isa.OpF32Neg, f32),
	wasm.OpcodeF32Ceil:     unary(isa.OpF32Ceil, f32),
	wasm.OpcodeF32Floor:    unary(isa.OpF32Floor, f32),
	wasm.OpcodeF32Trunc:    unary(isa.OpF32Trunc, f32),
	wasm.OpcodeF32Nearest:  unary(isa.OpF32Nearest, f32),
	wasm.OpcodeF32Sqrt:     unary(isa.OpF32Sqrt, f32),
	wasm.OpcodeF32Add:      binop(isa.OpF32Add, f32, f32),
	wasm.OpcodeF32Sub:      binop(isa.OpF32Sub, f32, f32),
	wasm.OpcodeF32Mul:      binop(isa.OpF32Mul, f32, f32),
	wasm.OpcodeF32Div:      binop(isa.OpF32Div, f32, f32),
	wasm.OpcodeF32Min:      binop(isa.OpF32Min, f32, f32),
	wasm.OpcodeF32Max:      binop(isa.OpF32Max, f32, f32),
	wasm.OpcodeF32Copysign: binop(isa.OpF32Copysign, f32, f32),

	wasm.OpcodeF64Abs:      unary(isa.OpF64Abs, f64),
	wasm.OpcodeF64Neg:      unary(isa.OpF64Neg, f64),
	wasm.OpcodeF64Ceil:     unary(isa.OpF64Ceil, f64),
	wasm.OpcodeF64Floor:    unary(isa.OpF64Floor, f64),
	wasm.OpcodeF64Trunc:    unary(isa.OpF64Trunc, f64),
	wasm.OpcodeF64Nearest:  unary(isa.OpF64Nearest, f64),
	wasm.OpcodeF64Sqrt:     unary(isa.OpF64Sqrt, f64),
	wasm.OpcodeF64Add:      binop(isa.OpF64Add, f64, f64),
	wasm.OpcodeF64Sub:      binop(isa.OpF64Sub, f64, f64),
	wasm.OpcodeF64Mul:      binop(isa.OpF64Mul, f64, f64),
	wasm.OpcodeF64Div:      binop(isa.OpF64Div, f64, f64),
	wasm.OpcodeF64Min:      binop(isa.OpF64Min, f64, f64),
	wasm.OpcodeF64Max:      binop(isa.OpF64Max, f64, f64),
	wasm.OpcodeF64Copysign: binop(isa.OpF64Copysign, f64, f64),

	wasm.OpcodeI32WrapI64:    conv(isa.OpI32WrapI64, i64, i32),
	wasm.OpcodeI32TruncF32S:  conv(isa.OpI32TruncF32S, f32, i32),
	wasm.OpcodeI32TruncF32U:  conv(isa.OpI32TruncF32U, f32, i32),
	wasm.OpcodeI32TruncF64S:  conv(isa.OpI32TruncF64S, f64, i32),
	wasm.OpcodeI32TruncF64U:  conv(isa.OpI32TruncF64U, f64, i32),
	wasm.OpcodeI64ExtendI32S: conv(isa.OpI64ExtendI32S, i32, i64),
	wasm.OpcodeI64ExtendI32U: conv(isa.OpI64ExtendI32U, i32, i64),
	wasm.OpcodeI64TruncF32S:  conv(isa.OpI64TruncF32S, f32, i64),
	wasm.OpcodeI64TruncF32U:  conv(isa.OpI64TruncF32U, f32, i64),
	wasm.OpcodeI64TruncF64S:  conv(isa.OpI64TruncF64S, f64, i64),
	wasm.OpcodeI64TruncF64U:  conv(isa.OpI64TruncF64U, f64, i64),

	wasm.OpcodeF32ConvertI32S: conv(isa.OpF32ConvertI32S, i32, f32),
	wasm.OpcodeF32ConvertI32U: conv(isa.OpF32ConvertI32U, i32, f32),
	wasm.OpcodeF32ConvertI64S: conv(isa.OpF32ConvertI64S, i64, f32),
	wasm.OpcodeF32ConvertI64U: conv(isa.OpF32ConvertI64U, i64, f32),
	wasm.OpcodeF32DemoteF64:   conv(isa.OpF32DemoteF64, f64, f32),
	wasm.OpcodeF64ConvertI32S: conv(isa.OpF64ConvertI32S, i32, f64),
	wasm.OpcodeF64ConvertI32U: conv(isa.OpF64ConvertI32U, i32, f64),
	wasm.OpcodeF64ConvertI64S: conv(isa.OpF64ConvertI64S, i64, f64),
	wasm.OpcodeF64ConvertI64U: conv(isa.OpF64ConvertI64U, i64, f64),
	wasm.OpcodeF64PromoteF32:  conv(isa.OpF64PromoteF32, f32, f64),

	wasm.OpcodeI32ReinterpretF32: conv(isa.OpI32ReinterpretF32, f32, i32),
	wasm.OpcodeI64ReinterpretF64: conv(isa.OpI64ReinterpretF64, f64, i64),
	wasm.OpcodeF32ReinterpretI32: conv(isa.OpF32ReinterpretI32, i32, f32),
	wasm.OpcodeF64ReinterpretI64: conv(isa.OpF64ReinterpretI64, i64, f64),

	wasm.OpcodeI32Extend8S:  unary(isa.OpI32Extend8S, i32),
	wasm.OpcodeI32Extend16S: unary(isa.OpI32Extend16S, i32),
	wasm.OpcodeI64Extend8S:  unary(isa.OpI64Extend8S, i64),
	wasm.OpcodeI64Extend16S: unary(isa.OpI64Extend16S, i64),
	wasm.OpcodeI64Extend32S: unary(isa.OpI64Extend32S, i64),
}

func numericVisit(op wasm.Opcode) (visitFunc, bool) {
	v, ok := numericVisits[op]
	return v, ok
}
