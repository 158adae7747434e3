// Package decoder is a thin shim over golang.org/x/arch/x86/x86asm, the
// external instruction decoder the relocation core is built against. It
// exposes the collaborators the core needs: decode-one,
// classify-as-relative-branch, classify-as-RIP-relative-memory and
// compute-absolute-target-of-relative-operand, plus the near-jump and
// relative-offset encoders (encode.go) and the unenlargeable-branch and
// condition-code lookups (classify.go).
package decoder

import (
	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"
)

// Mode is the processor execution mode instructions are decoded against.
// The core only targets x64 hooking, so this is fixed at 64, but kept as a
// named constant rather than a magic number at call sites.
const Mode = 64

// ErrDecode wraps every error this package returns; callers that need the
// underlying x86asm failure can still errors.Cause() through it.
var ErrDecode = errors.New("decoder: decode failed")

// Field describes where a relative operand's encoded bytes live within the
// instruction's own byte sequence. x86asm resolves relative operands to
// semantic values (a signed addend, a memory base/disp pair) but does not
// expose the raw byte offsets needed to patch an instruction in place, so
// this package re-derives them from the instruction's opcode structure.
type Field struct {
	Offset int
	Size   int
}

// Decoded is the decoder bridge's output: everything the analyzer and
// relocator need about one instruction, independent of x86asm's types.
type Decoded struct {
	Inst   x86asm.Inst
	Length int

	HasRelativeTarget bool
	IsBranch          bool
	IsMemory          bool

	// Addend is the raw signed value encoded in the relative field: for a
	// branch this is the displacement added to the address of the next
	// instruction; for RIP-relative memory it is the displacement added to
	// the address of the next instruction as well (x86-64 RIP-relative
	// addressing is always relative to the end of the instruction).
	Addend int64

	// Rel is valid when HasRelativeTarget is true: the offset and width of
	// the encoded displacement/immediate field within the instruction.
	Rel Field
}

// Decode decodes exactly one instruction starting at buf[0]. buf may
// contain trailing bytes belonging to later instructions; only the decoded
// instruction's own bytes are consumed.
func Decode(buf []byte) (Decoded, error) {
	inst, err := x86asm.Decode(buf, Mode)
	if err != nil {
		return Decoded{}, errors.Wrapf(ErrDecode, "%v", err)
	}

	d := Decoded{Inst: inst, Length: inst.Len}
	d.IsBranch = isRelativeBranch(inst)
	d.IsMemory = IsRelativeMemory(inst)
	d.HasRelativeTarget = d.IsBranch || d.IsMemory

	if !d.HasRelativeTarget {
		return d, nil
	}

	addend, ok := relativeAddend(inst)
	if !ok {
		// The classifier said this instruction carries a relative operand
		// but we couldn't read it back out; treat as a decoder defect
		// rather than silently dropping the relocation hint.
		return Decoded{}, errors.Wrapf(ErrDecode, "relative operand not found in decoded args for %v", inst.Op)
	}
	d.Addend = addend

	field, ok := locateRelativeField(buf[:inst.Len], inst, d.IsBranch)
	if !ok {
		return Decoded{}, errors.Wrapf(ErrDecode, "could not locate relative field for %v", inst.Op)
	}
	d.Rel = field

	return d, nil
}

// AbsoluteTarget resolves a decoded instruction's relative operand to an
// absolute runtime address, given the address the instruction itself was
// decoded at.
func AbsoluteTarget(d Decoded, instructionAddress uint64) uint64 {
	return instructionAddress + uint64(d.Length) + uint64(d.Addend)
}
