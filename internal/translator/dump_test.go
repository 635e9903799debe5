package translator

import (
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/stitchvm/stitch/internal/isa"
	"github.com/stitchvm/stitch/internal/wasm"
)

func TestDump_rolesAndTargets(t *testing.T) {
	color.NoColor = true

	ft := &wasm.FunctionType{Params: []wasm.ValueType{i32T}, Results: []wasm.ValueType{i32T}}
	tr, _ := newTestTranslator(t, newTestContext(), ft, []wasm.ValueType{i32T}, 40, Config{})

	require.NoError(t, tr.VisitLocalGet(0))
	require.NoError(t, tr.VisitConst(i32T, 41))
	require.NoError(t, tr.VisitBinary(isa.OpI32Add, i32T, i32T))
	require.NoError(t, tr.VisitLocalSet(1))
	require.NoError(t, tr.VisitLocalGet(1))
	require.NoError(t, tr.VisitEnd())

	seq, err := tr.Finalize()
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, Dump(&sb, seq))
	out := sb.String()

	require.Contains(t, out, "i32.add")
	require.Contains(t, out, "p0") // the parameter operand
	require.Contains(t, out, "l1") // the relinked destination local
	require.Contains(t, out, "c0") // the pooled constant operand
	require.Contains(t, out, "return")
	require.Contains(t, out, "constants: c0=0x29")
}

func TestDump_branchTargets(t *testing.T) {
	color.NoColor = true

	tr, _ := newTestTranslator(t, newTestContext(), &wasm.FunctionType{}, nil, 8, Config{})
	require.NoError(t, tr.VisitLoop(-64))
	require.NoError(t, tr.VisitBr(0))
	require.NoError(t, tr.VisitEnd())
	require.NoError(t, tr.VisitEnd())

	seq, err := tr.Finalize()
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, Dump(&sb, seq))
	require.Contains(t, sb.String(), "br")
	require.Contains(t, sb.String(), "@0") // backward to the loop header
}
