package analyzer_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gopherhook/reloc/analyzer"
)

func TestAnalyzeNoRelativeInstructions(t *testing.T) {
	// Five NOPs in a row, none of them relative.
	buf := []byte{0x90, 0x90, 0x90, 0x90, 0x90}
	instructions, bytesRead, err := analyzer.Analyze(buf, 0, 5, 8, nil)
	require.NoError(t, err)
	require.Equal(t, 5, bytesRead)
	require.Len(t, instructions, 5)
	for i, inst := range instructions {
		require.Equal(t, i, inst.AddressOffset)
		require.False(t, inst.HasRelativeTarget)
		require.False(t, inst.IsInternalTarget)
		require.False(t, inst.HasOutgoing())
	}
}

func TestAnalyzeForwardShortJumpInternalTarget(t *testing.T) {
	// JMP +1 (over a NOP), NOP, RET.
	buf := []byte{0xEB, 0x01, 0x90, 0xC3}
	instructions, bytesRead, err := analyzer.Analyze(buf, 0, 4, 8, nil)
	require.NoError(t, err)
	require.Equal(t, 4, bytesRead)
	require.Len(t, instructions, 3)

	jmp, nop, ret := instructions[0], instructions[1], instructions[2]
	require.True(t, jmp.HasRelativeTarget)
	require.False(t, jmp.HasExternalTarget)
	require.Equal(t, 2, jmp.Outgoing)
	require.True(t, ret.IsInternalTarget)
	require.Equal(t, []int{0}, ret.Incoming)
	require.False(t, nop.IsInternalTarget)
}

func TestAnalyzeExternalTargetDoesNotMatchAnyInstruction(t *testing.T) {
	// JMP +80 whose target lands outside the one-instruction chunk.
	buf := []byte{0xEB, 0x50, 0x90}
	instructions, bytesRead, err := analyzer.Analyze(buf, 0, 2, 4, nil)
	require.NoError(t, err)
	require.Equal(t, 2, bytesRead)
	require.Len(t, instructions, 1)

	jmp := instructions[0]
	require.True(t, jmp.HasRelativeTarget)
	require.True(t, jmp.HasExternalTarget)
	require.False(t, jmp.HasOutgoing())
	require.Equal(t, uint64(82), jmp.AbsoluteTargetAddress)
}

func TestAnalyzeMidInstructionTargetIsExternal(t *testing.T) {
	// JMP +1 lands on offset 3, the immediate byte of MOV AL, 0x90 (B0 90),
	// not on an instruction start; RET follows.
	buf := []byte{0xEB, 0x01, 0xB0, 0x90, 0xC3}
	instructions, bytesRead, err := analyzer.Analyze(buf, 0, 5, 4, nil)
	require.NoError(t, err)
	require.Equal(t, 5, bytesRead)
	require.Len(t, instructions, 3)

	jmp := instructions[0]
	require.Equal(t, uint64(3), jmp.AbsoluteTargetAddress)
	require.True(t, jmp.HasExternalTarget)
	require.False(t, jmp.HasOutgoing())
	require.False(t, instructions[1].IsInternalTarget)
}

func TestAnalyzeRejectsTruncatedBuffer(t *testing.T) {
	buf := []byte{0x0F} // incomplete two-byte opcode
	_, _, err := analyzer.Analyze(buf, 0, 8, 4, nil)
	require.Error(t, err)
}
