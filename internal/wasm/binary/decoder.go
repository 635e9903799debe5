// Package binary decodes the WebAssembly binary format into the wasm module
// model, and drives the translator over decoded function bodies.
package binary

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/stitchvm/stitch/internal/leb128"
	"github.com/stitchvm/stitch/internal/wasm"
)

var (
	magic   = []byte{0x00, 0x61, 0x73, 0x6d}
	version = []byte{0x01, 0x00, 0x00, 0x00}

	ErrInvalidMagicNumber = errors.New("invalid magic number")
	ErrInvalidVersion     = errors.New("invalid version header")
)

const (
	sectionIDCustom    = 0
	sectionIDType      = 1
	sectionIDImport    = 2
	sectionIDFunction  = 3
	sectionIDTable     = 4
	sectionIDMemory    = 5
	sectionIDGlobal    = 6
	sectionIDExport    = 7
	sectionIDStart     = 8
	sectionIDElement   = 9
	sectionIDCode      = 10
	sectionIDData      = 11
	sectionIDDataCount = 12
)

// reader wraps a byte slice with LEB128-aware cursor helpers.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *reader) readByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, fmt.Errorf("unexpected end of input at %#x", r.pos)
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) readBytes(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, fmt.Errorf("unexpected end of input at %#x: need %d bytes", r.pos, n)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) readU32() (uint32, error) {
	v, n, err := leb128.LoadUint32(r.buf[r.pos:])
	if err != nil {
		return 0, fmt.Errorf("at %#x: %w", r.pos, err)
	}
	r.pos += int(n)
	return v, nil
}

func (r *reader) readU64() (uint64, error) {
	v, n, err := leb128.LoadUint64(r.buf[r.pos:])
	if err != nil {
		return 0, fmt.Errorf("at %#x: %w", r.pos, err)
	}
	r.pos += int(n)
	return v, nil
}

// skipVarint steps over one LEB128 integer of either signedness.
func (r *reader) skipVarint() error {
	for i := 0; i < 10; i++ {
		b, err := r.readByte()
		if err != nil {
			return err
		}
		if b&0x80 == 0 {
			return nil
		}
	}
	return fmt.Errorf("varint at %#x exceeds 10 bytes", r.pos)
}

func (r *reader) readName() (string, error) {
	n, err := r.readU32()
	if err != nil {
		return "", err
	}
	b, err := r.readBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeModule decodes the sections the engine consumes; custom, start and
// name data are skipped.
func DecodeModule(input []byte) (*wasm.Module, error) {
	r := &reader{buf: input}
	head, err := r.readBytes(8)
	if err != nil {
		return nil, ErrInvalidMagicNumber
	}
	if !bytes.Equal(head[:4], magic) {
		return nil, ErrInvalidMagicNumber
	}
	if !bytes.Equal(head[4:], version) {
		return nil, ErrInvalidVersion
	}

	m := &wasm.Module{ExportSection: map[string]*wasm.Export{}}
	for r.remaining() > 0 {
		id, err := r.readByte()
		if err != nil {
			return nil, err
		}
		size, err := r.readU32()
		if err != nil {
			return nil, fmt.Errorf("size of section %d: %w", id, err)
		}
		raw, err := r.readBytes(int(size))
		if err != nil {
			return nil, fmt.Errorf("content of section %d: %w", id, err)
		}
		sr := &reader{buf: raw}
		switch id {
		case sectionIDCustom, sectionIDStart:
			// Skipped.
			continue
		case sectionIDType:
			err = decodeTypeSection(sr, m)
		case sectionIDImport:
			err = decodeImportSection(sr, m)
		case sectionIDFunction:
			err = decodeVector(sr, func() error {
				i, err := sr.readU32()
				m.FunctionSection = append(m.FunctionSection, i)
				return err
			})
		case sectionIDTable:
			err = decodeVector(sr, func() error {
				t, err := decodeTable(sr)
				m.TableSection = append(m.TableSection, t)
				return err
			})
		case sectionIDMemory:
			err = decodeVector(sr, func() error {
				limits, lerr := decodeLimits(sr)
				m.MemorySection = append(m.MemorySection, &wasm.Memory{Limits: limits})
				return lerr
			})
		case sectionIDGlobal:
			err = decodeVector(sr, func() error {
				g, gerr := decodeGlobal(sr)
				m.GlobalSection = append(m.GlobalSection, g)
				return gerr
			})
		case sectionIDExport:
			err = decodeExportSection(sr, m)
		case sectionIDElement:
			err = decodeVector(sr, func() error {
				s, serr := decodeElementSegment(sr)
				m.ElementSection = append(m.ElementSection, s)
				return serr
			})
		case sectionIDCode:
			err = decodeVector(sr, func() error {
				c, cerr := decodeCode(sr)
				m.CodeSection = append(m.CodeSection, c)
				return cerr
			})
		case sectionIDData:
			err = decodeVector(sr, func() error {
				s, serr := decodeDataSegment(sr)
				m.DataSection = append(m.DataSection, s)
				return serr
			})
		case sectionIDDataCount:
			var count uint32
			count, err = sr.readU32()
			m.DataCountSection = &count
		default:
			return nil, fmt.Errorf("unknown section id %d", id)
		}
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", id, err)
		}
		if sr.remaining() != 0 {
			return nil, fmt.Errorf("section %d has %d trailing bytes", id, sr.remaining())
		}
	}
	if len(m.FunctionSection) != len(m.CodeSection) {
		return nil, fmt.Errorf("%d function declarations but %d code entries",
			len(m.FunctionSection), len(m.CodeSection))
	}
	return m, nil
}

func decodeVector(r *reader, each func() error) error {
	n, err := r.readU32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		if err := each(); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return nil
}

func decodeTypeSection(r *reader, m *wasm.Module) error {
	return decodeVector(r, func() error {
		tag, err := r.readByte()
		if err != nil {
			return err
		}
		if tag != 0x60 {
			return fmt.Errorf("invalid function type tag %#x", tag)
		}
		ft := &wasm.FunctionType{}
		if ft.Params, err = decodeValueTypes(r); err != nil {
			return err
		}
		if ft.Results, err = decodeValueTypes(r); err != nil {
			return err
		}
		m.TypeSection = append(m.TypeSection, ft)
		return nil
	})
}

func decodeValueTypes(r *reader) ([]wasm.ValueType, error) {
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	types := make([]wasm.ValueType, n)
	for i := range types {
		b, err := r.readByte()
		if err != nil {
			return nil, err
		}
		if wasm.ValueTypeName(b) == "unknown" {
			return nil, fmt.Errorf("invalid value type %#x", b)
		}
		types[i] = b
	}
	return types, nil
}

func decodeImportSection(r *reader, m *wasm.Module) error {
	return decodeVector(r, func() error {
		imp := &wasm.Import{}
		var err error
		if imp.Module, err = r.readName(); err != nil {
			return err
		}
		if imp.Name, err = r.readName(); err != nil {
			return err
		}
		kind, err := r.readByte()
		if err != nil {
			return err
		}
		switch wasm.ImportKind(kind) {
		case wasm.ImportKindFunc:
			imp.Kind = wasm.ImportKindFunc
			imp.DescFunc, err = r.readU32()
		case wasm.ImportKindTable:
			imp.Kind = wasm.ImportKindTable
			imp.DescTable, err = decodeTable(r)
		case wasm.ImportKindMemory:
			imp.Kind = wasm.ImportKindMemory
			var limits *wasm.Limits
			limits, err = decodeLimits(r)
			imp.DescMem = &wasm.Memory{Limits: limits}
		case wasm.ImportKindGlobal:
			imp.Kind = wasm.ImportKindGlobal
			imp.DescGlobal, err = decodeGlobalType(r)
		default:
			return fmt.Errorf("invalid import kind %#x", kind)
		}
		if err != nil {
			return err
		}
		m.ImportSection = append(m.ImportSection, imp)
		return nil
	})
}

func decodeLimits(r *reader) (*wasm.Limits, error) {
	flag, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if flag > 0x07 {
		return nil, fmt.Errorf("invalid limits flag %#x", flag)
	}
	l := &wasm.Limits{
		Share: flag&0x02 != 0,
		Is64:  flag&0x04 != 0,
	}
	if l.Is64 {
		if l.Min, err = r.readU64(); err != nil {
			return nil, err
		}
		if flag&0x01 != 0 {
			max, err := r.readU64()
			if err != nil {
				return nil, err
			}
			l.Max = &max
		}
		return l, nil
	}
	min32, err := r.readU32()
	if err != nil {
		return nil, err
	}
	l.Min = uint64(min32)
	if flag&0x01 != 0 {
		max32, err := r.readU32()
		if err != nil {
			return nil, err
		}
		max := uint64(max32)
		l.Max = &max
	}
	return l, nil
}

func decodeTable(r *reader) (*wasm.Table, error) {
	elemType, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if !wasm.IsReferenceType(elemType) {
		return nil, fmt.Errorf("invalid table element type %#x", elemType)
	}
	limits, err := decodeLimits(r)
	if err != nil {
		return nil, err
	}
	return &wasm.Table{ElemType: elemType, Limits: limits}, nil
}

func decodeGlobalType(r *reader) (*wasm.GlobalType, error) {
	vt, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if wasm.ValueTypeName(vt) == "unknown" {
		return nil, fmt.Errorf("invalid global value type %#x", vt)
	}
	mut, err := r.readByte()
	if err != nil {
		return nil, err
	}
	if mut > 1 {
		return nil, fmt.Errorf("invalid mutability flag %#x", mut)
	}
	return &wasm.GlobalType{ValType: vt, Mutable: mut == 1}, nil
}

func decodeGlobal(r *reader) (*wasm.Global, error) {
	gt, err := decodeGlobalType(r)
	if err != nil {
		return nil, err
	}
	init, err := readConstExpr(r)
	if err != nil {
		return nil, err
	}
	return &wasm.Global{Type: gt, Init: init}, nil
}

// readConstExpr skips over one constant expression, returning its raw bytes
// including the terminating end.
func readConstExpr(r *reader) ([]byte, error) {
	start := r.pos
	for {
		op, err := r.readByte()
		if err != nil {
			return nil, err
		}
		switch op {
		case wasm.OpcodeEnd:
			return r.buf[start:r.pos], nil
		case wasm.OpcodeI32Const, wasm.OpcodeI64Const, wasm.OpcodeGlobalGet, wasm.OpcodeRefFunc:
			if err := r.skipVarint(); err != nil {
				return nil, err
			}
		case wasm.OpcodeF32Const:
			if _, err := r.readBytes(4); err != nil {
				return nil, err
			}
		case wasm.OpcodeF64Const:
			if _, err := r.readBytes(8); err != nil {
				return nil, err
			}
		case wasm.OpcodeRefNull:
			if _, err := r.readByte(); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("invalid constant expression opcode %#x", op)
		}
	}
}

func decodeExportSection(r *reader, m *wasm.Module) error {
	return decodeVector(r, func() error {
		name, err := r.readName()
		if err != nil {
			return err
		}
		kind, err := r.readByte()
		if err != nil {
			return err
		}
		if kind > byte(wasm.ExportKindGlobal) {
			return fmt.Errorf("invalid export kind %#x", kind)
		}
		index, err := r.readU32()
		if err != nil {
			return err
		}
		if _, dup := m.ExportSection[name]; dup {
			return fmt.Errorf("duplicate export name %q", name)
		}
		m.ExportSection[name] = &wasm.Export{Kind: wasm.ExportKind(kind), Name: name, Index: index}
		return nil
	})
}

func decodeElementSegment(r *reader) (*wasm.ElementSegment, error) {
	flag, err := r.readU32()
	if err != nil {
		return nil, err
	}
	if flag > 7 {
		return nil, fmt.Errorf("invalid element segment flag %d", flag)
	}
	s := &wasm.ElementSegment{ElemType: wasm.ValueTypeFuncref}
	usesExprs := flag&0x04 != 0
	if flag&0x01 == 0 { // active
		if flag&0x02 != 0 {
			if s.TableIndex, err = r.readU32(); err != nil {
				return nil, err
			}
		}
		if _, err = readConstExpr(r); err != nil {
			return nil, err
		}
	} else {
		s.Passive = flag&0x02 == 0 // flag 3/7 declare without being table.init sources
	}
	if flag != 0 && flag != 4 {
		// elemkind for index vectors, reftype for expression vectors.
		tag, err := r.readByte()
		if err != nil {
			return nil, err
		}
		if usesExprs {
			if !wasm.IsReferenceType(tag) {
				return nil, fmt.Errorf("invalid element reference type %#x", tag)
			}
			s.ElemType = tag
		} else if tag != 0x00 {
			return nil, fmt.Errorf("invalid element kind %#x", tag)
		}
	}
	return s, decodeVector(r, func() error {
		if usesExprs {
			_, err := readConstExpr(r)
			return err
		}
		_, err := r.readU32()
		return err
	})
}

func decodeCode(r *reader) (*wasm.Code, error) {
	size, err := r.readU32()
	if err != nil {
		return nil, err
	}
	raw, err := r.readBytes(int(size))
	if err != nil {
		return nil, err
	}
	cr := &reader{buf: raw}
	c := &wasm.Code{}
	err = decodeVector(cr, func() error {
		count, err := cr.readU32()
		if err != nil {
			return err
		}
		vt, err := cr.readByte()
		if err != nil {
			return err
		}
		if wasm.ValueTypeName(vt) == "unknown" {
			return fmt.Errorf("invalid local type %#x", vt)
		}
		if uint64(len(c.LocalTypes))+uint64(count) > 1<<16 {
			return fmt.Errorf("too many locals")
		}
		for i := uint32(0); i < count; i++ {
			c.LocalTypes = append(c.LocalTypes, vt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.Body = cr.buf[cr.pos:]
	if len(c.Body) == 0 || c.Body[len(c.Body)-1] != wasm.OpcodeEnd {
		return nil, errors.New("function body must end with the end opcode")
	}
	return c, nil
}

func decodeDataSegment(r *reader) (*wasm.DataSegment, error) {
	flag, err := r.readU32()
	if err != nil {
		return nil, err
	}
	s := &wasm.DataSegment{}
	switch flag {
	case 0:
		if _, err = readConstExpr(r); err != nil {
			return nil, err
		}
	case 1:
		s.Passive = true
	case 2:
		if s.MemoryIndex, err = r.readU32(); err != nil {
			return nil, err
		}
		if _, err = readConstExpr(r); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("invalid data segment flag %d", flag)
	}
	n, err := r.readU32()
	if err != nil {
		return nil, err
	}
	s.Init, err = r.readBytes(int(n))
	return s, err
}
