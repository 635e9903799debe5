// Package stitch compiles WebAssembly modules into register-based internal
// code for a threaded interpreter. The public surface is intentionally
// small: decode and translate a module, inspect or dump the result.
package stitch

import (
	"fmt"
	"io"

	"github.com/stitchvm/stitch/internal/translator"
	"github.com/stitchvm/stitch/internal/wasm"
	"github.com/stitchvm/stitch/internal/wasm/binary"
)

// CompiledFunction is one translated function body.
type CompiledFunction struct {
	// Index is the function's position in the module's function index
	// namespace, imports included.
	Index uint32

	seq *translator.InstructionSequence
}

// Instructions returns the function's instruction slots. The slice is owned
// by the CompiledModule's arena and dies with it.
func (f *CompiledFunction) Instructions() []uint64 {
	return f.seq.Instructions
}

// Constants returns the function's interned constant pool.
func (f *CompiledFunction) Constants() []uint64 {
	return f.seq.Constants
}

// MaxStackHeight returns the frame size in registers.
func (f *CompiledFunction) MaxStackHeight() int {
	return f.seq.MaxStackHeight
}

// Dump writes a role-annotated disassembly of the function to w.
func (f *CompiledFunction) Dump(w io.Writer) error {
	return translator.Dump(w, f.seq)
}

// CompiledModule owns the translation results of every local function of one
// module.
type CompiledModule struct {
	funcs []*CompiledFunction
	arena *translator.Arena
}

// Functions returns the module's translated functions in index order,
// starting after imports.
func (m *CompiledModule) Functions() []*CompiledFunction {
	return m.funcs
}

// Close releases the arena backing every CompiledFunction. The functions
// must not be used afterwards.
func (m *CompiledModule) Close() {
	m.arena.Release()
}

// CompileModule decodes input and translates every local function under cfg.
// On any failure all partial output is discarded with the arena.
func CompileModule(input []byte, cfg *Config) (*CompiledModule, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	coder, err := cfg.coder()
	if err != nil {
		return nil, err
	}
	mod, err := binary.DecodeModule(input)
	if err != nil {
		return nil, fmt.Errorf("decoding module: %w", err)
	}
	ctx := wasm.NewModuleContext(mod, wasm.NewTypeInterner(), cfg.ValidationOnly)
	tcfg := translator.Config{
		Coder:        coder,
		Interception: cfg.Intercept,
		Logger:       cfg.Logger,
	}

	importedFuncs, _, _, _ := mod.ImportCounts()
	arena := translator.NewArena()
	m := &CompiledModule{arena: arena}
	for i, code := range mod.CodeSection {
		funcIndex := importedFuncs + uint32(i)
		_, funcType, err := ctx.FunctionType(funcIndex)
		if err != nil {
			arena.Release()
			return nil, fmt.Errorf("function %d: %w", funcIndex, err)
		}
		tr, err := translator.New(ctx, arena, funcIndex, funcType, code.LocalTypes, len(code.Body), tcfg)
		if err != nil {
			arena.Release()
			return nil, fmt.Errorf("function %d: %w", funcIndex, err)
		}
		if err := binary.TranslateBody(tr, code.Body); err != nil {
			arena.Release()
			return nil, fmt.Errorf("function %d: %w", funcIndex, err)
		}
		seq, err := tr.Finalize()
		if err != nil {
			arena.Release()
			return nil, fmt.Errorf("function %d: %w", funcIndex, err)
		}
		m.funcs = append(m.funcs, &CompiledFunction{Index: funcIndex, seq: seq})
	}
	return m, nil
}
