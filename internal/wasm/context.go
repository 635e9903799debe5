package wasm

import "fmt"

// FunctionHandle is what a call site resolves its callee to. SameInstance
// marks functions defined in the module being compiled: those are emitted as
// lazily-compiling calls rather than fully resolved ones.
type FunctionHandle struct {
	Index        Index
	TypeID       TypeID
	SameInstance bool
}

// ModuleContext answers the translator's resolution queries against a decoded
// Module. In validation-only mode the callee and global handles are withheld,
// which suppresses the corresponding emissions while keeping all bookkeeping
// and bounds checks active.
type ModuleContext struct {
	module         *Module
	interner       *TypeInterner
	validationOnly bool

	importedFuncs uint32

	// Flattened index namespaces (imports first).
	funcTypeIndexes []Index
	tables          []*Table
	memories        []*Memory
	globals         []*GlobalType
}

// NewModuleContext flattens m's index namespaces for constant-time lookups.
func NewModuleContext(m *Module, interner *TypeInterner, validationOnly bool) *ModuleContext {
	c := &ModuleContext{module: m, interner: interner, validationOnly: validationOnly}
	for _, imp := range m.ImportSection {
		switch imp.Kind {
		case ImportKindFunc:
			c.funcTypeIndexes = append(c.funcTypeIndexes, imp.DescFunc)
			c.importedFuncs++
		case ImportKindTable:
			c.tables = append(c.tables, imp.DescTable)
		case ImportKindMemory:
			c.memories = append(c.memories, imp.DescMem)
		case ImportKindGlobal:
			c.globals = append(c.globals, imp.DescGlobal)
		}
	}
	c.funcTypeIndexes = append(c.funcTypeIndexes, m.FunctionSection...)
	c.tables = append(c.tables, m.TableSection...)
	c.memories = append(c.memories, m.MemorySection...)
	for _, g := range m.GlobalSection {
		c.globals = append(c.globals, g.Type)
	}
	return c
}

// Type returns the signature at index i of the type section.
func (c *ModuleContext) Type(i Index) (*FunctionType, error) {
	if int(i) >= len(c.module.TypeSection) {
		return nil, fmt.Errorf("type index %d out of range (%d types)", i, len(c.module.TypeSection))
	}
	return c.module.TypeSection[i], nil
}

// BlockType resolves the 33-bit block-type field: non-negative values index
// the type section, negative values are single-result (or empty) sentinels.
func (c *ModuleContext) BlockType(raw int64) (*FunctionType, error) {
	if raw >= 0 {
		return c.Type(Index(raw))
	}
	if raw == -64 { // 0x40: no params, no results
		return &FunctionType{}, nil
	}
	if raw >= -17 {
		if vt := ValueType(0x80 + raw); ValueTypeName(vt) != "unknown" {
			return &FunctionType{Results: []ValueType{vt}}, nil
		}
	}
	return nil, fmt.Errorf("invalid block type %d", raw)
}

// FunctionType returns the interned id and signature of function i, counting
// imports first.
func (c *ModuleContext) FunctionType(i Index) (TypeID, *FunctionType, error) {
	if int(i) >= len(c.funcTypeIndexes) {
		return 0, nil, fmt.Errorf("function index %d out of range (%d functions)", i, len(c.funcTypeIndexes))
	}
	ft, err := c.Type(c.funcTypeIndexes[i])
	if err != nil {
		return 0, nil, err
	}
	return c.interner.Intern(ft), ft, nil
}

// InternedType returns the interned id and signature of type-section entry i,
// as needed by call_indirect.
func (c *ModuleContext) InternedType(i Index) (TypeID, *FunctionType, error) {
	ft, err := c.Type(i)
	if err != nil {
		return 0, nil, err
	}
	return c.interner.Intern(ft), ft, nil
}

// GlobalType returns the value type of global i.
func (c *ModuleContext) GlobalType(i Index) (ValueType, error) {
	if int(i) >= len(c.globals) {
		return 0, fmt.Errorf("global index %d out of range (%d globals)", i, len(c.globals))
	}
	return c.globals[i].ValType, nil
}

// ResolveGlobal returns an opaque runtime handle for global i, or ok=false in
// validation-only mode.
func (c *ModuleContext) ResolveGlobal(i Index) (uint64, bool, error) {
	if _, err := c.GlobalType(i); err != nil {
		return 0, false, err
	}
	if c.validationOnly {
		return 0, false, nil
	}
	return uint64(i), true, nil
}

// ResolveFunction returns the callee handle for function i, or ok=false in
// validation-only mode.
func (c *ModuleContext) ResolveFunction(i Index) (FunctionHandle, bool, error) {
	typeID, _, err := c.FunctionType(i)
	if err != nil {
		return FunctionHandle{}, false, err
	}
	if c.validationOnly {
		return FunctionHandle{}, false, nil
	}
	return FunctionHandle{Index: i, TypeID: typeID, SameInstance: i >= c.importedFuncs}, true, nil
}

// MemoryIs64 reports whether memory i uses 64-bit addresses.
func (c *ModuleContext) MemoryIs64(i Index) (bool, error) {
	if int(i) >= len(c.memories) {
		return false, fmt.Errorf("memory index %d out of range (%d memories)", i, len(c.memories))
	}
	return c.memories[i].Limits.Is64, nil
}

// TableIs64 reports whether table i uses 64-bit indices.
func (c *ModuleContext) TableIs64(i Index) (bool, error) {
	if int(i) >= len(c.tables) {
		return false, fmt.Errorf("table index %d out of range (%d tables)", i, len(c.tables))
	}
	return c.tables[i].Limits.Is64, nil
}

// TableElemType returns the element type of table i.
func (c *ModuleContext) TableElemType(i Index) (ValueType, error) {
	if int(i) >= len(c.tables) {
		return 0, fmt.Errorf("table index %d out of range (%d tables)", i, len(c.tables))
	}
	return c.tables[i].ElemType, nil
}

// ValidateFunction confirms function index i exists, as needed by ref.func.
func (c *ModuleContext) ValidateFunction(i Index) error {
	if int(i) >= len(c.funcTypeIndexes) {
		return fmt.Errorf("function index %d out of range (%d functions)", i, len(c.funcTypeIndexes))
	}
	return nil
}

// ValidateDataSegment confirms data segment i exists.
func (c *ModuleContext) ValidateDataSegment(i Index) error {
	n := len(c.module.DataSection)
	if c.module.DataCountSection != nil {
		n = int(*c.module.DataCountSection)
	}
	if int(i) >= n {
		return fmt.Errorf("data segment index %d out of range (%d segments)", i, n)
	}
	return nil
}

// ValidateElementSegment confirms element segment i exists and returns its
// element type.
func (c *ModuleContext) ValidateElementSegment(i Index) (ValueType, error) {
	if int(i) >= len(c.module.ElementSection) {
		return 0, fmt.Errorf("element segment index %d out of range (%d segments)", i, len(c.module.ElementSection))
	}
	return c.module.ElementSection[i].ElemType, nil
}
