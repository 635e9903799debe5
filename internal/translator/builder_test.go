package translator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stitchvm/stitch/internal/isa"
)

func brFactory() slotFactory {
	return func(source, target int) uint64 {
		return isa.PackBr(int32(target - source))
	}
}

func TestBuilder_forwardReferencePatching(t *testing.T) {
	b := newBuilder(isa.TokenCoder())
	ref := b.allocLabel()
	require.False(t, b.pinned(ref))

	b.emitWithLabel(isa.OpBr, ref, brFactory())
	require.Equal(t, uint64(0), b.code[1]) // reserved, unpatched
	require.True(t, b.hasPendingUsers(ref))

	b.emit(isa.OpReturn)
	require.NoError(t, b.pinLabelHere(ref))
	require.True(t, b.pinned(ref))
	require.False(t, b.hasPendingUsers(ref))

	// source = 1 (the slot after the head), target = 3.
	require.Equal(t, int32(2), isa.BrOffset(b.code[1]))
	require.NoError(t, b.checkNoDanglingLabels())
}

func TestBuilder_backwardReferenceResolvesImmediately(t *testing.T) {
	b := newBuilder(isa.TokenCoder())
	b.emit(isa.OpReturn)
	ref := b.putLabel() // pinned at pc 1
	b.emit(isa.OpReturn)
	b.emitWithLabel(isa.OpBr, ref, brFactory())
	// head at 2, source 3, target 1.
	require.Equal(t, int32(-2), isa.BrOffset(b.code[3]))
}

func TestBuilder_pinTwiceFails(t *testing.T) {
	b := newBuilder(isa.TokenCoder())
	ref := b.allocLabel()
	require.NoError(t, b.pinLabelHere(ref))
	requireKind(t, b.pinLabelHere(ref), ErrInternalConsistency)
}

func TestBuilder_danglingLabelDetected(t *testing.T) {
	b := newBuilder(isa.TokenCoder())
	ref := b.allocLabel()
	b.emitWithLabel(isa.OpBr, ref, brFactory())
	requireKind(t, b.checkNoDanglingLabels(), ErrDanglingLabel)

	// An unpinned label nobody uses is fine.
	b2 := newBuilder(isa.TokenCoder())
	b2.allocLabel()
	require.NoError(t, b2.checkNoDanglingLabels())
}

func TestBuilder_brTableEntryFilling(t *testing.T) {
	b := newBuilder(isa.TokenCoder())
	table := make([]uint64, 2)

	pinned := b.putLabel()
	b.fillBrTableEntry(pinned, table, 0, func(target int) uint64 { return uint64(target + 100) })
	require.Equal(t, uint64(100), table[0])

	forward := b.allocLabel()
	b.fillBrTableEntry(forward, table, 1, func(target int) uint64 { return uint64(target) })
	require.Equal(t, uint64(0), table[1])
	b.emit(isa.OpReturn)
	require.NoError(t, b.pinLabelHere(forward))
	require.Equal(t, uint64(1), table[1])
}

func TestBuilder_relinkRewritesResult(t *testing.T) {
	b := newBuilder(isa.TokenCoder())
	pos := b.emit(isa.OpI32Add, isa.PackReg3(4, 0, 1))
	b.setLastEmission(4, func(dst isa.VReg) {
		b.code[pos+1] = isa.WithRegAt(b.code[pos+1], 0, dst)
	})

	// A mismatched source leaves the emission intact and armed.
	require.False(t, b.relinkLastResult(-4, 5))
	require.True(t, b.relinkLastResult(-4, 4))
	require.Equal(t, isa.VReg(-4), isa.RegAt(b.code[pos+1], 0))

	// One shot: the slot is cleared after a successful relink.
	require.False(t, b.relinkLastResult(-5, -4))
}

func TestBuilder_relinkInvalidation(t *testing.T) {
	arm := func(b *builder) {
		pos := b.emit(isa.OpI32Add, isa.PackReg3(4, 0, 1))
		b.setLastEmission(4, func(dst isa.VReg) {
			b.code[pos+1] = isa.WithRegAt(b.code[pos+1], 0, dst)
		})
	}

	// Any plain emission kills the window.
	b := newBuilder(isa.TokenCoder())
	arm(&b)
	b.emit(isa.OpReturn)
	require.False(t, b.relinkLastResult(-4, 4))

	// So does pinning a label.
	b = newBuilder(isa.TokenCoder())
	arm(&b)
	ref := b.allocLabel()
	require.NoError(t, b.pinLabelHere(ref))
	require.False(t, b.relinkLastResult(-4, 4))

	// And putLabel.
	b = newBuilder(isa.TokenCoder())
	arm(&b)
	b.putLabel()
	require.False(t, b.relinkLastResult(-4, 4))

	// And an explicit reset.
	b = newBuilder(isa.TokenCoder())
	arm(&b)
	b.resetLastEmission()
	require.False(t, b.relinkLastResult(-4, 4))
}

func TestArena_lifecycle(t *testing.T) {
	a := NewArena()
	buf := a.Instructions(8)
	require.Len(t, buf, 8)
	a.Constants(2)
	a.BrTableEntries(3)
	require.Equal(t, 3, a.NumBuffers())
	require.False(t, a.Released())

	a.Release()
	require.True(t, a.Released())
	require.Equal(t, 0, a.NumBuffers())

	require.Panics(t, func() { a.Release() })
	require.Panics(t, func() { a.Instructions(1) })
}

func TestConstantPool_dedupAndSaturation(t *testing.T) {
	p := newConstantPool(2)

	s0, ok := p.allocate(7)
	require.True(t, ok)
	s1, ok := p.allocate(9)
	require.True(t, ok)
	require.NotEqual(t, s0, s1)

	// The same bit pattern resolves to the same slot, full pool or not.
	again, ok := p.allocate(7)
	require.True(t, ok)
	require.Equal(t, s0, again)

	_, ok = p.allocate(11)
	require.False(t, ok)
	require.Equal(t, 2, p.size())
}
