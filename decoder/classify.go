package decoder

import "golang.org/x/arch/x86/x86asm"

// branchMnemonics is every mnemonic whose first operand is a PC-relative
// branch target: JMP, all Jcc, JCXZ/JECXZ/JRCXZ and the LOOP family.
var branchMnemonics = map[string]bool{
	"JMP":    true,
	"JA":     true,
	"JAE":    true,
	"JB":     true,
	"JBE":    true,
	"JE":     true,
	"JG":     true,
	"JGE":    true,
	"JL":     true,
	"JLE":    true,
	"JNE":    true,
	"JNO":    true,
	"JNP":    true,
	"JNS":    true,
	"JO":     true,
	"JP":     true,
	"JS":     true,
	"JCXZ":   true,
	"JECXZ":  true,
	"JRCXZ":  true,
	"LOOP":   true,
	"LOOPE":  true,
	"LOOPNE": true,
}

// unenlargeableMnemonics have no 32-bit-displacement encoding; an external
// target out of 8-bit reach requires the three-instruction synthesis path.
var unenlargeableMnemonics = map[string]bool{
	"JCXZ":   true,
	"JECXZ":  true,
	"JRCXZ":  true,
	"LOOP":   true,
	"LOOPE":  true,
	"LOOPNE": true,
}

// ccFromMnemonic maps a Jcc mnemonic to its 4-bit condition code, used to
// build the 0F 8x near-branch opcode (0x80 + cc).
var ccFromMnemonic = map[string]byte{
	"JO":  0x0,
	"JNO": 0x1,
	"JB":  0x2,
	"JAE": 0x3,
	"JE":  0x4,
	"JNE": 0x5,
	"JBE": 0x6,
	"JA":  0x7,
	"JS":  0x8,
	"JNS": 0x9,
	"JP":  0xA,
	"JNP": 0xB,
	"JL":  0xC,
	"JGE": 0xD,
	"JLE": 0xE,
	"JG":  0xF,
}

// IsRelativeBranch reports whether mnemonic names a PC-relative branch.
func IsRelativeBranch(mnemonic string) bool {
	return branchMnemonics[mnemonic]
}

// IsUnenlargeable reports whether mnemonic has no 32-bit-displacement form.
func IsUnenlargeable(mnemonic string) bool {
	return unenlargeableMnemonics[mnemonic]
}

// ConditionCode returns the 4-bit condition code for a Jcc mnemonic and
// whether the mnemonic is a conditional branch at all (JMP is not).
func ConditionCode(mnemonic string) (byte, bool) {
	cc, ok := ccFromMnemonic[mnemonic]
	return cc, ok
}

func isRelativeBranch(inst x86asm.Inst) bool {
	return IsRelativeBranch(inst.Op.String())
}

// IsRelativeMemory reports whether inst addresses memory through a
// RIP-relative operand: x86asm.RIP as the Mem base, the decoder's encoding
// of ModR/M mod=00, rm=101.
func IsRelativeMemory(inst x86asm.Inst) bool {
	for _, arg := range inst.Args {
		if arg == nil {
			continue
		}
		if mem, ok := arg.(x86asm.Mem); ok {
			if mem.Base == x86asm.RIP {
				return true
			}
		}
	}
	return false
}

// relativeAddend extracts the raw signed relative value x86asm resolved,
// whether it came from a branch Rel operand or a RIP-relative Mem.Disp.
func relativeAddend(inst x86asm.Inst) (int64, bool) {
	for _, arg := range inst.Args {
		if arg == nil {
			continue
		}
		switch a := arg.(type) {
		case x86asm.Rel:
			return int64(a), true
		case x86asm.Mem:
			if a.Base == x86asm.RIP {
				return a.Disp, true
			}
		}
	}
	return 0, false
}
