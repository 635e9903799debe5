package translator

import (
	"fmt"

	"github.com/stitchvm/stitch/internal/wasm"
)

// testContext is a hand-wired ModuleContext for translator tests.
type testContext struct {
	types          []*wasm.FunctionType
	funcTypes      []wasm.Index // type index per function
	globals        []wasm.ValueType
	memory64       []bool
	table64        []bool
	tableElems     []wasm.ValueType
	dataSegments   int
	elemSegments   []wasm.ValueType
	importedFuncs  uint32
	validationOnly bool

	interner *wasm.TypeInterner
}

func newTestContext() *testContext {
	return &testContext{interner: wasm.NewTypeInterner()}
}

func (c *testContext) Type(i wasm.Index) (*wasm.FunctionType, error) {
	if int(i) >= len(c.types) {
		return nil, fmt.Errorf("type index %d out of range", i)
	}
	return c.types[i], nil
}

func (c *testContext) BlockType(raw int64) (*wasm.FunctionType, error) {
	if raw >= 0 {
		return c.Type(wasm.Index(raw))
	}
	if raw == -64 {
		return &wasm.FunctionType{}, nil
	}
	vt := wasm.ValueType(0x80 + raw)
	if wasm.ValueTypeName(vt) == "unknown" {
		return nil, fmt.Errorf("invalid block type %d", raw)
	}
	return &wasm.FunctionType{Results: []wasm.ValueType{vt}}, nil
}

func (c *testContext) FunctionType(i wasm.Index) (wasm.TypeID, *wasm.FunctionType, error) {
	if int(i) >= len(c.funcTypes) {
		return 0, nil, fmt.Errorf("function index %d out of range", i)
	}
	ft, err := c.Type(c.funcTypes[i])
	if err != nil {
		return 0, nil, err
	}
	return c.interner.Intern(ft), ft, nil
}

func (c *testContext) InternedType(i wasm.Index) (wasm.TypeID, *wasm.FunctionType, error) {
	ft, err := c.Type(i)
	if err != nil {
		return 0, nil, err
	}
	return c.interner.Intern(ft), ft, nil
}

func (c *testContext) GlobalType(i wasm.Index) (wasm.ValueType, error) {
	if int(i) >= len(c.globals) {
		return 0, fmt.Errorf("global index %d out of range", i)
	}
	return c.globals[i], nil
}

func (c *testContext) ResolveGlobal(i wasm.Index) (uint64, bool, error) {
	if _, err := c.GlobalType(i); err != nil {
		return 0, false, err
	}
	if c.validationOnly {
		return 0, false, nil
	}
	return uint64(i), true, nil
}

func (c *testContext) ResolveFunction(i wasm.Index) (wasm.FunctionHandle, bool, error) {
	typeID, _, err := c.FunctionType(i)
	if err != nil {
		return wasm.FunctionHandle{}, false, err
	}
	if c.validationOnly {
		return wasm.FunctionHandle{}, false, nil
	}
	return wasm.FunctionHandle{Index: i, TypeID: typeID, SameInstance: i >= c.importedFuncs}, true, nil
}

func (c *testContext) MemoryIs64(i wasm.Index) (bool, error) {
	if int(i) >= len(c.memory64) {
		return false, fmt.Errorf("memory index %d out of range", i)
	}
	return c.memory64[i], nil
}

func (c *testContext) TableIs64(i wasm.Index) (bool, error) {
	if int(i) >= len(c.table64) {
		return false, fmt.Errorf("table index %d out of range", i)
	}
	return c.table64[i], nil
}

func (c *testContext) TableElemType(i wasm.Index) (wasm.ValueType, error) {
	if int(i) >= len(c.tableElems) {
		return 0, fmt.Errorf("table index %d out of range", i)
	}
	return c.tableElems[i], nil
}

func (c *testContext) ValidateFunction(i wasm.Index) error {
	if int(i) >= len(c.funcTypes) {
		return fmt.Errorf("function index %d out of range", i)
	}
	return nil
}

func (c *testContext) ValidateDataSegment(i wasm.Index) error {
	if int(i) >= c.dataSegments {
		return fmt.Errorf("data segment index %d out of range", i)
	}
	return nil
}

func (c *testContext) ValidateElementSegment(i wasm.Index) (wasm.ValueType, error) {
	if int(i) >= len(c.elemSegments) {
		return 0, fmt.Errorf("element segment index %d out of range", i)
	}
	return c.elemSegments[i], nil
}
