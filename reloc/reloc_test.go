package reloc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gopherhook/reloc/analyzer"
	"github.com/gopherhook/reloc/reloc"
)

func analyze(t *testing.T, buf []byte, sourceAddr uint64, minBytes int) ([]*analyzer.AnalyzedInstruction, int) {
	t.Helper()
	instructions, bytesRead, err := analyzer.Analyze(buf, sourceAddr, minBytes, len(buf), nil)
	require.NoError(t, err)
	return instructions, bytesRead
}

func TestRelocateNoRelativeInstructions(t *testing.T) {
	buf := []byte{0x90, 0x90, 0x90, 0x90, 0x90}
	instructions, bytesRead := analyze(t, buf, 0, 5)

	dest := make([]byte, 16)
	ctx := reloc.NewContext(buf[:bytesRead], 0, dest, 0x1000, instructions, nil)
	require.NoError(t, reloc.BuildTrampoline(ctx))

	require.Equal(t, 5, ctx.BytesRead)
	require.Equal(t, 5, ctx.BytesWritten)
	require.Equal(t, buf, ctx.Dest[:5])
	require.Len(t, ctx.TranslationMap, 5)
	for i, item := range ctx.TranslationMap {
		require.Equal(t, i, item.SourceOffset)
		require.Equal(t, i, item.DestinationOffset)
	}
}

func TestRelocateForwardShortJumpInternalTargetUnchanged(t *testing.T) {
	buf := []byte{0xEB, 0x01, 0x90, 0xC3}
	instructions, bytesRead := analyze(t, buf, 0, 4)

	dest := make([]byte, 16)
	ctx := reloc.NewContext(buf[:bytesRead], 0, dest, 0x2000, instructions, nil)
	require.NoError(t, reloc.BuildTrampoline(ctx))

	require.Equal(t, buf, ctx.Dest[:4])
}

func TestRelocateShortJumpEnlargedWhenTargetOutOfReach(t *testing.T) {
	// JMP +80, landing far outside an 8-bit displacement once relocated.
	buf := []byte{0xEB, 0x50}
	instructions, bytesRead := analyze(t, buf, 0, 2)

	dest := make([]byte, 16)
	ctx := reloc.NewContext(buf[:bytesRead], 0, dest, 0x10000, instructions, nil)
	require.NoError(t, reloc.BuildTrampoline(ctx))

	require.Equal(t, 5, ctx.BytesWritten)
	require.Equal(t, byte(0xE9), ctx.Dest[0])

	target := instructions[0].AbsoluteTargetAddress
	wantRel := int32(int64(target) - int64(0x10000) - 5)
	gotRel := int32(uint32(ctx.Dest[1]) | uint32(ctx.Dest[2])<<8 | uint32(ctx.Dest[3])<<16 | uint32(ctx.Dest[4])<<24)
	require.Equal(t, wantRel, gotRel)
}

func TestRelocateJecxzExternalTargetSynthesizesTrampoline(t *testing.T) {
	// JECXZ +100, an unenlargeable branch, needs the trampoline form.
	buf := []byte{0xE3, 0x64}
	instructions, bytesRead := analyze(t, buf, 0, 2)

	dest := make([]byte, 16)
	ctx := reloc.NewContext(buf[:bytesRead], 0, dest, 0x10000, instructions, nil)
	require.NoError(t, reloc.BuildTrampoline(ctx))

	require.Equal(t, 9, ctx.BytesWritten)
	require.Equal(t, byte(0xE3), ctx.Dest[0])
	require.Equal(t, byte(0x02), ctx.Dest[1])
	require.Equal(t, []byte{0xEB, 0x05}, ctx.Dest[2:4])
	require.Equal(t, byte(0xE9), ctx.Dest[4])

	require.Len(t, ctx.TranslationMap, 3)
	for _, item := range ctx.TranslationMap {
		require.Equal(t, 0, item.SourceOffset)
	}
}

func TestRelocateRipRelativeMemoryOperandRewritesDisplacement(t *testing.T) {
	// MOV RAX, [RIP+0x10].
	buf := []byte{0x48, 0x8B, 0x05, 0x10, 0x00, 0x00, 0x00}
	instructions, bytesRead := analyze(t, buf, 0, len(buf))

	dest := make([]byte, 16)
	ctx := reloc.NewContext(buf[:bytesRead], 0, dest, 0x40, instructions, nil)
	require.NoError(t, reloc.BuildTrampoline(ctx))

	require.Equal(t, []byte{0x48, 0x8B, 0x05}, ctx.Dest[0:3])
	require.Equal(t, []byte{0xD0, 0xFF, 0xFF, 0xFF}, ctx.Dest[3:7])
}

func TestRelocateConditionalBranchEnlargedToNearForm(t *testing.T) {
	// JZ +127 relocated far enough away to force the 0F 84 near encoding.
	buf := []byte{0x74, 0x7F}
	instructions, bytesRead := analyze(t, buf, 0, 2)

	dest := make([]byte, 16)
	ctx := reloc.NewContext(buf[:bytesRead], 0, dest, 0x100000, instructions, nil)
	require.NoError(t, reloc.BuildTrampoline(ctx))

	require.Equal(t, 6, ctx.BytesWritten)
	require.Equal(t, []byte{0x0F, 0x84}, ctx.Dest[0:2])
}

func TestRelocateConditionalBranchNotRewrittenAtBoundary(t *testing.T) {
	// JZ with a target exactly INT8_MAX away after relocation must not be
	// rewritten.
	buf := []byte{0x74, 0x7F}
	instructions, bytesRead := analyze(t, buf, 0x1000, 2)

	dest := make([]byte, 16)
	// destAddr chosen so that target - (destAddr+2) == 127 exactly.
	target := instructions[0].AbsoluteTargetAddress
	destAddr := target - 127 - 2
	ctx := reloc.NewContext(buf[:bytesRead], 0x1000, dest, destAddr, instructions, nil)
	require.NoError(t, reloc.BuildTrampoline(ctx))

	require.Equal(t, 2, ctx.BytesWritten)
	require.Equal(t, buf, ctx.Dest[:2])
}

func TestRelocateDestinationOverflowReturnsError(t *testing.T) {
	buf := []byte{0x90, 0x90}
	instructions, bytesRead := analyze(t, buf, 0, 2)

	dest := make([]byte, 1)
	ctx := reloc.NewContext(buf[:bytesRead], 0, dest, 0x1000, instructions, nil)
	err := reloc.BuildTrampoline(ctx)
	require.Error(t, err)
}
