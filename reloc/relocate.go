package reloc

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gopherhook/reloc/analyzer"
	"github.com/gopherhook/reloc/decoder"
)

// Relocate emits one analyzed instruction into ctx's destination buffer,
// dispatching to the common copy, branch-relocation, or memory-relocation
// strategy depending on what the instruction references, then advances
// BytesRead and InstructionsRead.
func Relocate(ctx *Context, inst *analyzer.AnalyzedInstruction) error {
	var err error
	switch {
	case !inst.HasRelativeTarget:
		err = relocateCommon(ctx, inst)
	case inst.Decoded.IsBranch:
		err = relocateBranch(ctx, inst)
	case inst.Decoded.IsMemory:
		err = relocateMemory(ctx, inst)
	default:
		err = errors.Wrapf(ErrUnreachable, "instruction at offset %d has a relative operand that is neither a branch nor RIP-relative memory", inst.AddressOffset)
	}
	if err != nil {
		return err
	}

	ctx.BytesRead += inst.Decoded.Length
	ctx.InstructionsRead++
	return nil
}

// relocateCommon copies an instruction with no relative operand verbatim.
func relocateCommon(ctx *Context, inst *analyzer.AnalyzedInstruction) error {
	raw := ctx.Source[ctx.BytesRead : ctx.BytesRead+inst.Decoded.Length]
	return ctx.emit(raw, inst.AddressOffset)
}

// relocateBranch rewrites a relative branch for its new address: internal
// targets are left as a placeholder for FixUp, external targets are
// re-encoded in place if the new displacement still fits, otherwise
// synthesized or enlarged into a longer encoding.
func relocateBranch(ctx *Context, inst *analyzer.AnalyzedInstruction) error {
	raw := ctx.Source[ctx.BytesRead : ctx.BytesRead+inst.Decoded.Length]

	// Internal target: emit a verbatim placeholder; FixUp patches it once
	// every destination offset is known.
	if !inst.HasExternalTarget {
		return ctx.emit(raw, inst.AddressOffset)
	}

	destAddr := ctx.DestInstructionAddress()
	distance := int64(inst.AbsoluteTargetAddress) - int64(destAddr) - int64(inst.Decoded.Length)

	if fitsSigned(distance, inst.Decoded.Rel.Size) {
		patched := append([]byte(nil), raw...)
		writeSigned(patched, inst.Decoded.Rel.Offset, inst.Decoded.Rel.Size, distance)
		return ctx.emit(patched, inst.AddressOffset)
	}

	mnemonic := inst.Decoded.Inst.Op.String()
	ctx.Log.WithFields(logrus.Fields{
		"offset":   inst.AddressOffset,
		"mnemonic": mnemonic,
		"distance": distance,
	}).Warn("reloc: branch target out of reach at new address, rewriting encoding")

	if decoder.IsUnenlargeable(mnemonic) {
		return synthesizeShortBranch(ctx, inst, raw)
	}
	return enlargeBranch(ctx, inst, mnemonic)
}

// synthesizeShortBranch handles a short branch that cannot be enlarged
// (JCXZ/JECXZ/JRCXZ, LOOP family) by building a three-instruction
// trampoline: `<original>+2 | EB 05 | E9 <near JMP>`, three separately
// tracked emissions sharing the original instruction's source offset.
func synthesizeShortBranch(ctx *Context, inst *analyzer.AnalyzedInstruction, raw []byte) error {
	if inst.Decoded.Rel.Size != 1 {
		return errors.Wrapf(ErrUnreachable, "unenlargeable mnemonic %s has non-byte immediate", inst.Decoded.Inst.Op.String())
	}

	original := append([]byte(nil), raw...)
	original[inst.Decoded.Rel.Offset] = 0x02
	if err := ctx.emit(original, inst.AddressOffset); err != nil {
		return err
	}

	shortJump := []byte{0xEB, 0x05}
	if err := ctx.emit(shortJump, inst.AddressOffset); err != nil {
		return err
	}

	nearJump := make([]byte, decoder.JumpSize)
	decoder.WriteRelativeJump(nearJump, ctx.DestInstructionAddress(), inst.AbsoluteTargetAddress)
	return ctx.emit(nearJump, inst.AddressOffset)
}

// enlargeBranch rewrites a short branch that can grow into a near form:
// JMP becomes a 5-byte E9 near jump, Jcc becomes a 6-byte 0F 8x near jump.
func enlargeBranch(ctx *Context, inst *analyzer.AnalyzedInstruction, mnemonic string) error {
	if mnemonic == "JMP" {
		buf := make([]byte, decoder.JumpSize)
		decoder.WriteRelativeJump(buf, ctx.DestInstructionAddress(), inst.AbsoluteTargetAddress)
		return ctx.emit(buf, inst.AddressOffset)
	}

	cc, ok := decoder.ConditionCode(mnemonic)
	if !ok {
		return errors.Wrapf(ErrUnreachable, "mnemonic %s has no near-branch encoding", mnemonic)
	}

	buf := make([]byte, 6)
	buf[0] = 0x0F
	buf[1] = 0x80 + cc
	rel := decoder.RelativeOffset(4, ctx.DestInstructionAddress()+2, inst.AbsoluteTargetAddress)
	writeSigned(buf, 2, 4, int64(rel))
	return ctx.emit(buf, inst.AddressOffset)
}

// relocateMemory rewrites a RIP-relative memory operand's displacement
// for the instruction's new address, failing if the recomputed
// displacement no longer fits the operand's field width.
func relocateMemory(ctx *Context, inst *analyzer.AnalyzedInstruction) error {
	raw := ctx.Source[ctx.BytesRead : ctx.BytesRead+inst.Decoded.Length]

	if !inst.HasExternalTarget {
		return ctx.emit(raw, inst.AddressOffset)
	}

	patched := append([]byte(nil), raw...)
	rel := decoder.RelativeOffset(inst.Decoded.Length, ctx.DestInstructionAddress(), inst.AbsoluteTargetAddress)
	if !fitsSigned(int64(rel), inst.Decoded.Rel.Size) {
		return errors.Wrapf(ErrUnreachable, "RIP-relative operand at offset %d does not fit its %d-byte field after relocation", inst.AddressOffset, inst.Decoded.Rel.Size)
	}
	writeSigned(patched, inst.Decoded.Rel.Offset, inst.Decoded.Rel.Size, int64(rel))
	return ctx.emit(patched, inst.AddressOffset)
}
