// Package translator compiles one validated WebAssembly function body into
// the register-based internal instruction set in a single linear pass,
// fusing validation, register allocation, constant pooling, label resolution
// and a small peephole over the previously emitted instruction.
package translator

import (
	"go.uber.org/zap"

	"github.com/stitchvm/stitch/internal/isa"
	"github.com/stitchvm/stitch/internal/wasm"
)

// ModuleContext resolves everything the translator needs to know about the
// surrounding module. Implementations answering ok=false from ResolveGlobal
// and ResolveFunction put the translator in validation-only mode: emission of
// the affected instructions is skipped while all bookkeeping still runs.
type ModuleContext interface {
	Type(i wasm.Index) (*wasm.FunctionType, error)
	BlockType(raw int64) (*wasm.FunctionType, error)
	FunctionType(i wasm.Index) (wasm.TypeID, *wasm.FunctionType, error)
	InternedType(i wasm.Index) (wasm.TypeID, *wasm.FunctionType, error)
	GlobalType(i wasm.Index) (wasm.ValueType, error)
	ResolveGlobal(i wasm.Index) (uint64, bool, error)
	ResolveFunction(i wasm.Index) (wasm.FunctionHandle, bool, error)
	MemoryIs64(i wasm.Index) (bool, error)
	TableIs64(i wasm.Index) (bool, error)
	TableElemType(i wasm.Index) (wasm.ValueType, error)
	ValidateFunction(i wasm.Index) error
	ValidateDataSegment(i wasm.Index) error
	ValidateElementSegment(i wasm.Index) (wasm.ValueType, error)
}

// Config carries the engine-level knobs one translation runs under.
type Config struct {
	// Coder encodes head slots for the engine's threading model. The zero
	// value is token threading.
	Coder isa.HeadCoder
	// Interception emits on_enter/on_exit hooks around the function body.
	Interception bool
	// Logger receives one debug record per translated function. Nil means
	// no logging.
	Logger *zap.Logger
}

// InstructionSequence is the finished artifact of one translation. Its
// buffers are views into the arena the translator was constructed with and
// share the arena's lifetime.
type InstructionSequence struct {
	Instructions []uint64
	Constants    []uint64
	// BrTables holds each br_table's entry buffer, indexed by the table id
	// packed into the br_table head.
	BrTables [][]uint64
	// MaxStackHeight is the frame size in registers: the operand-stack base
	// plus the deepest observed operand-stack height.
	MaxStackHeight int

	// Layout and Coder describe the frame and head encoding for dumping.
	Layout StackLayout
	Coder  isa.HeadCoder
}

// Translator compiles a single function body. It is single-threaded and
// processes one body start to finish; translators for distinct functions may
// run in parallel only with distinct arenas and contexts.
type Translator struct {
	module ModuleContext
	cfg    Config
	log    *zap.Logger

	funcIndex  wasm.Index
	funcType   *wasm.FunctionType
	localTypes []wasm.ValueType // declared locals, excluding parameters
	codeSize   int

	layout   StackLayout
	vstack   valueStack
	ctrl     controlStack
	b        builder
	pool     constantPool
	arena    *Arena
	brTables [][]uint64
}

// New prepares a translator for one function body. declaredLocals excludes
// parameters; codeSize is the body's byte length and drives the constant
// pool budget.
func New(module ModuleContext, arena *Arena, funcIndex wasm.Index,
	funcType *wasm.FunctionType, declaredLocals []wasm.ValueType, codeSize int, cfg Config) (*Translator, error) {
	layout, err := NewStackLayout(funcType, len(declaredLocals), codeSize)
	if err != nil {
		return nil, err
	}
	t := &Translator{
		module:     module,
		cfg:        cfg,
		log:        cfg.Logger,
		funcIndex:  funcIndex,
		funcType:   funcType,
		localTypes: declaredLocals,
		codeSize:   codeSize,
		layout:     layout,
		ctrl:       controlStack{},
		b:          newBuilder(cfg.Coder),
		pool:       newConstantPool(layout.ConstantSlots),
		arena:      arena,
	}
	if t.log == nil {
		t.log = zap.NewNop()
	}
	t.vstack = newValueStack(&t.layout)

	// The root frame models the function body; branches to it deliver into
	// the return registers and jump to the function's end label.
	t.ctrl.push(controlFrame{
		kind:         frameBlock,
		root:         true,
		blockType:    funcType,
		stackHeight:  0,
		continuation: t.b.allocLabel(),
		elseLabel:    noLabel,
		reachable:    true,
	})
	if cfg.Interception {
		t.b.emit(isa.OpOnEnter, isa.PackIndex(funcIndex))
	}
	return t, nil
}

// Finalize checks that the body closed every frame, asserts label
// consistency, appends a defensive return, and hands the finished buffers to
// the arena.
func (t *Translator) Finalize() (*InstructionSequence, error) {
	if n := t.ctrl.numberOfFrames(); n > 0 {
		return nil, errf(ErrMissingEnd, "function body left %d control frames open", n)
	}
	if err := t.b.checkNoDanglingLabels(); err != nil {
		return nil, err
	}
	t.b.emit(isa.OpReturn)

	instructions := t.arena.Instructions(len(t.b.code))
	copy(instructions, t.b.code)
	constants := t.arena.Constants(t.pool.size())
	copy(constants, t.pool.values)

	seq := &InstructionSequence{
		Instructions:   instructions,
		Constants:      constants,
		BrTables:       t.brTables,
		MaxStackHeight: int(t.layout.StackRegBase) + t.vstack.maxHeight,
		Layout:         t.layout,
		Coder:          t.b.coder,
	}
	t.log.Debug("translated function",
		zap.Uint32("index", t.funcIndex),
		zap.Int("bodySize", t.codeSize),
		zap.Int("instructionSlots", len(seq.Instructions)),
		zap.Int("constants", len(seq.Constants)),
		zap.Int("maxStackHeight", seq.MaxStackHeight),
	)
	return seq, nil
}

// localType returns the type of local i, parameters first.
func (t *Translator) localType(i uint32) (wasm.ValueType, error) {
	if int(i) < len(t.funcType.Params) {
		return t.funcType.Params[i], nil
	}
	if j := int(i) - len(t.funcType.Params); j < len(t.localTypes) {
		return t.localTypes[j], nil
	}
	return 0, errf(ErrIndexOutOfRange, "local index %d out of range (%d locals)",
		i, len(t.funcType.Params)+len(t.localTypes))
}

// indexErr normalizes a module-context resolution failure.
func indexErr(err error) error {
	if err == nil {
		return nil
	}
	if te, ok := err.(*TranslationError); ok {
		return te
	}
	return errf(ErrIndexOutOfRange, "%v", err)
}

func (t *Translator) reachableNow() bool {
	if len(t.ctrl.frames) == 0 {
		return false
	}
	return t.ctrl.frames[len(t.ctrl.frames)-1].reachable
}

// emit appends an instruction unless the current frame is unreachable.
func (t *Translator) emit(op isa.Opcode, imms ...uint64) {
	if !t.reachableNow() {
		return
	}
	t.b.emit(op, imms...)
}

// emitProducer appends a value-producing instruction and arms the relink
// peephole: immIndex/field locate the result register within the emitted
// immediates.
func (t *Translator) emitProducer(op isa.Opcode, result isa.VReg, immIndex, field int, imms ...uint64) {
	if !t.reachableNow() {
		return
	}
	pos := t.b.emit(op, imms...)
	slot := pos + 1 + immIndex
	t.b.setLastEmission(result, func(dst isa.VReg) {
		t.b.code[slot] = isa.WithRegAt(t.b.code[slot], field, dst)
	})
}

// emitCopy moves src into dst, eliding the copy entirely when the registers
// coincide or, if allowRelink, when the previous producer can be rewritten
// to target dst directly.
func (t *Translator) emitCopy(dst, src isa.VReg, allowRelink bool) {
	if !t.reachableNow() || dst == src {
		return
	}
	if allowRelink && t.b.relinkLastResult(dst, src) {
		return
	}
	t.b.emit(isa.OpCopy, isa.PackReg2(dst, src))
}

// emitPlans emits the copies a preservation returned.
func (t *Translator) emitPlans(plans []copyPlan) {
	for _, p := range plans {
		t.emitCopy(p.dst, p.src, false)
	}
}

// emitBr emits an unconditional branch to ref.
func (t *Translator) emitBr(ref labelRef) {
	if !t.reachableNow() {
		return
	}
	t.b.emitWithLabel(isa.OpBr, ref, func(source, target int) uint64 {
		return isa.PackBr(int32(target - source))
	})
}

// emitCondBr emits op (br_if or br_if_not) on cond to ref.
func (t *Translator) emitCondBr(op isa.Opcode, ref labelRef, cond isa.VReg) {
	if !t.reachableNow() {
		return
	}
	t.b.emitWithLabel(op, ref, func(source, target int) uint64 {
		return isa.PackCondBr(cond, int32(target-source))
	})
}

// popAnyOperand pops the top operand. Underflow is an error in reachable
// code; in unreachable code it yields an Unknown phantom instead.
func (t *Translator) popAnyOperand(what string) (metaValue, valueSource, error) {
	f, err := t.ctrl.top()
	if err != nil {
		return metaValue{}, valueSource{}, err
	}
	if t.vstack.height() <= f.stackHeight {
		if f.reachable {
			return metaValue{}, valueSource{}, errf(ErrStackUnderflow, "%s pops an empty operand stack", what)
		}
		return unknownValue, valueSource{kind: srcPhantom}, nil
	}
	mv, src := t.vstack.popAny()
	return mv, src, nil
}

// popChecked pops the top operand expecting the given type. The check is
// suppressed against Unknown operands and in unreachable code.
func (t *Translator) popChecked(expect wasm.ValueType, what string) (valueSource, error) {
	f, err := t.ctrl.top()
	if err != nil {
		return valueSource{}, err
	}
	mv, src, err := t.popAnyOperand(what)
	if err != nil {
		return valueSource{}, err
	}
	if f.reachable && mv.known && mv.typ != expect {
		return valueSource{}, errf(ErrTypeMismatch, "%s expects %s but the stack holds %s",
			what, wasm.ValueTypeName(expect), wasm.ValueTypeName(mv.typ))
	}
	return src, nil
}

// popRef pops the top operand requiring a reference type, returning the
// observed type (funcref when unknowable).
func (t *Translator) popRef(what string) (wasm.ValueType, valueSource, error) {
	f, err := t.ctrl.top()
	if err != nil {
		return 0, valueSource{}, err
	}
	mv, src, err := t.popAnyOperand(what)
	if err != nil {
		return 0, valueSource{}, err
	}
	if mv.known {
		if f.reachable && !wasm.IsReferenceType(mv.typ) {
			return 0, valueSource{}, errf(ErrTypeMismatch, "%s expects a reference type but the stack holds %s",
				what, wasm.ValueTypeName(mv.typ))
		}
		return mv.typ, src, nil
	}
	return wasm.ValueTypeFuncref, src, nil
}

// checkBlockParams verifies the top of the stack satisfies bt's parameters
// without disturbing provenance, and returns how many of them are actually
// present (short only in unreachable code).
func (t *Translator) checkBlockParams(f *controlFrame, bt *wasm.FunctionType, what string) (int, error) {
	n := len(bt.Params)
	avail := t.vstack.height() - f.stackHeight
	if avail < n {
		if f.reachable {
			return 0, errf(ErrStackUnderflow, "%s needs %d parameters but the stack holds %d", what, n, avail)
		}
		return avail, nil
	}
	if f.reachable {
		for i := 0; i < n; i++ {
			e := t.vstack.entries[t.vstack.height()-n+i]
			if e.val.known && e.val.typ != bt.Params[i] {
				return 0, errf(ErrTypeMismatch, "%s parameter %d expects %s but the stack holds %s",
					what, i, wasm.ValueTypeName(bt.Params[i]), wasm.ValueTypeName(e.val.typ))
			}
		}
	}
	return n, nil
}

// emitBranchCopies delivers the target frame's copyCount values from the top
// of the operand stack into its landing area: the return registers when the
// target is the root frame, the registers above its entry height otherwise.
// Copies run lowest slot first so no still-needed source is clobbered.
func (t *Translator) emitBranchCopies(f *controlFrame, allowRelink bool) error {
	cc := f.copyCount()
	if cc == 0 {
		return nil
	}
	if cur, err := t.ctrl.top(); err != nil {
		return err
	} else if t.vstack.height()-cur.stackHeight < cc {
		if !cur.reachable {
			return nil
		}
		return errf(ErrStackUnderflow, "branch needs %d values but the stack holds %d",
			cc, t.vstack.height()-cur.stackHeight)
	}
	for k := 0; k < cc; k++ {
		src := t.vstack.peek(cc - 1 - k)
		var dst isa.VReg
		if f.root {
			dst = t.layout.Header.ReturnReg(k)
		} else {
			dst = t.layout.StackReg(f.stackHeight + k)
		}
		t.emitCopy(dst, src.reg, allowRelink)
	}
	return nil
}

// translateReturn copies the function results into the return registers and
// emits the return, preceded by the on_exit hook when interception is on.
func (t *Translator) translateReturn() error {
	results := len(t.funcType.Results)
	if t.reachableNow() && t.vstack.height() < results {
		return errf(ErrStackUnderflow, "return needs %d results but the stack holds %d",
			results, t.vstack.height())
	}
	for k := 0; k < results; k++ {
		src := t.vstack.peek(results - 1 - k)
		t.emitCopy(t.layout.Header.ReturnReg(k), src.reg, true)
	}
	if t.cfg.Interception {
		t.emit(isa.OpOnExit, isa.PackIndex(t.funcIndex))
	}
	t.emit(isa.OpReturn)
	return nil
}
