package decoder

import "golang.org/x/arch/x86/x86asm"

// locateRelativeField re-derives the byte offset and width of the
// instruction's relative operand from its raw encoding. x86asm resolves
// relative operands semantically (a signed addend) but does not report
// where those bytes sit within the instruction, and the relocator must
// patch them in place, so this package walks the same prefix/opcode
// structure a decoder would to find them.
func locateRelativeField(raw []byte, inst x86asm.Inst, isBranch bool) (Field, bool) {
	if isBranch {
		return locateBranchField(raw)
	}
	return locateMemoryField(raw)
}

// locateBranchField finds the displacement/immediate field of a relative
// branch. Every relative branch form encodes its displacement as the final
// bytes of the instruction, so the field offset is simply length-minus-width;
// width is read off the opcode itself rather than guessed from length so an
// operand-size prefix (0x66, producing a rel16 near Jcc) is still handled.
func locateBranchField(raw []byte) (Field, bool) {
	i := skipLegacyAndRexPrefixes(raw)
	if i >= len(raw) {
		return Field{}, false
	}

	switch {
	case raw[i] == 0x0F && i+1 < len(raw) && raw[i+1] >= 0x80 && raw[i+1] <= 0x8F:
		// Near Jcc: 0F 8x + rel32 (rel16 if a preceding 0x66 operand-size
		// prefix was consumed above).
		size := 4
		if has66Prefix(raw[:i]) {
			size = 2
		}
		return Field{Offset: i + 2, Size: size}, true
	case raw[i] == 0xE9:
		// Near JMP: E9 + rel32.
		size := 4
		if has66Prefix(raw[:i]) {
			size = 2
		}
		return Field{Offset: i + 1, Size: size}, true
	case raw[i] == 0xEB:
		// Short JMP: EB + rel8.
		return Field{Offset: i + 1, Size: 1}, true
	case raw[i] >= 0x70 && raw[i] <= 0x7F:
		// Short Jcc: 7x + rel8.
		return Field{Offset: i + 1, Size: 1}, true
	case raw[i] == 0xE3:
		// JCXZ/JECXZ/JRCXZ: E3 + rel8.
		return Field{Offset: i + 1, Size: 1}, true
	case raw[i] == 0xE2 || raw[i] == 0xE1 || raw[i] == 0xE0:
		// LOOP/LOOPE/LOOPNE: Ex + rel8.
		return Field{Offset: i + 1, Size: 1}, true
	}
	return Field{}, false
}

// locateMemoryField finds the disp32 field of a RIP-relative memory
// operand. ModR/M mod=00,rm=101 never carries a SIB byte (that encoding is
// reserved exactly for RIP-relative addressing), so the displacement
// immediately follows the ModR/M byte, which immediately follows the
// opcode.
func locateMemoryField(raw []byte) (Field, bool) {
	i := skipLegacyAndRexPrefixes(raw)
	if i >= len(raw) {
		return Field{}, false
	}

	opcodeLen := 1
	if raw[i] == 0x0F {
		opcodeLen = 2
		if i+1 < len(raw) && (raw[i+1] == 0x38 || raw[i+1] == 0x3A) {
			opcodeLen = 3
		}
	}

	modrmIdx := i + opcodeLen
	if modrmIdx >= len(raw) {
		return Field{}, false
	}
	return Field{Offset: modrmIdx + 1, Size: 4}, true
}

// skipLegacyAndRexPrefixes advances past legacy prefix bytes (operand-size,
// address-size, segment overrides, LOCK, REP/REPNE) and a single REX
// prefix, returning the index of the first opcode byte.
func skipLegacyAndRexPrefixes(raw []byte) int {
	i := 0
	for i < len(raw) {
		switch raw[i] {
		case 0x66, 0x67, 0xF0, 0xF2, 0xF3, 0x2E, 0x36, 0x3E, 0x26, 0x64, 0x65:
			i++
			continue
		}
		break
	}
	if i < len(raw) && raw[i] >= 0x40 && raw[i] <= 0x4F {
		i++
	}
	return i
}

func has66Prefix(prefix []byte) bool {
	for _, b := range prefix {
		if b == 0x66 {
			return true
		}
	}
	return false
}
