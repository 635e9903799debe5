package wasm

// Module is the decoded representation of the sections the translator needs.
// Custom, start and name sections are skipped by the decoder.
type Module struct {
	// TypeSection contains the unique function signatures of this module.
	TypeSection []*FunctionType

	// ImportSection is in decode order; each import prepends its kind's index
	// namespace.
	ImportSection []*Import

	// FunctionSection maps each locally defined function to its type index.
	FunctionSection []Index

	// TableSection contains tables defined in this module, after imports.
	TableSection []*Table

	// MemorySection contains memories defined in this module, after imports.
	MemorySection []*Memory

	// GlobalSection contains globals defined in this module, after imports.
	GlobalSection []*Global

	// ExportSection is keyed by export name.
	ExportSection map[string]*Export

	// ElementSection declares element segments; only their presence and
	// element type matter to the translator.
	ElementSection []*ElementSegment

	// CodeSection is index-correlated with FunctionSection.
	CodeSection []*Code

	// DataSection declares data segments; only their presence matters to the
	// translator.
	DataSection []*DataSegment

	// DataCountSection mirrors the data-count section when present.
	DataCountSection *uint32
}

type ImportKind byte

const (
	ImportKindFunc ImportKind = iota
	ImportKindTable
	ImportKindMemory
	ImportKindGlobal
)

type Import struct {
	Kind   ImportKind
	Module string
	Name   string
	// DescFunc is the type index when Kind is ImportKindFunc.
	DescFunc Index
	// DescTable is the inlined table type when Kind is ImportKindTable.
	DescTable *Table
	// DescMem is the inlined memory type when Kind is ImportKindMemory.
	DescMem *Memory
	// DescGlobal is the inlined global type when Kind is ImportKindGlobal.
	DescGlobal *GlobalType
}

// Limits hold a range plus the 64-bit flag from the memory64 proposal.
type Limits struct {
	Min   uint64
	Max   *uint64
	Is64  bool
	Share bool
}

type Table struct {
	ElemType ValueType
	Limits   *Limits
}

type Memory struct {
	Limits *Limits
}

type GlobalType struct {
	ValType ValueType
	Mutable bool
}

type Global struct {
	Type *GlobalType
	// Init is the raw constant expression initializing this global.
	Init []byte
}

type ExportKind byte

const (
	ExportKindFunc ExportKind = iota
	ExportKindTable
	ExportKindMemory
	ExportKindGlobal
)

type Export struct {
	Kind  ExportKind
	Name  string
	Index Index
}

type ElementSegment struct {
	TableIndex Index
	ElemType   ValueType
	// Passive marks segments usable only via table.init.
	Passive bool
}

type DataSegment struct {
	MemoryIndex Index
	Passive     bool
	Init        []byte
}

// Code is one entry of the code section: the declared locals followed by the
// body bytes, terminated by the end opcode.
type Code struct {
	LocalTypes []ValueType
	Body       []byte
}

// ImportCounts returns how many imports of each kind precede the module's own
// definitions in the respective index namespaces.
func (m *Module) ImportCounts() (funcs, tables, memories, globals uint32) {
	for _, imp := range m.ImportSection {
		switch imp.Kind {
		case ImportKindFunc:
			funcs++
		case ImportKindTable:
			tables++
		case ImportKindMemory:
			memories++
		case ImportKindGlobal:
			globals++
		}
	}
	return
}

// NumFunctions returns the size of the function index namespace.
func (m *Module) NumFunctions() uint32 {
	funcs, _, _, _ := m.ImportCounts()
	return funcs + uint32(len(m.FunctionSection))
}
