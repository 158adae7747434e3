package reloc

import (
	"github.com/pkg/errors"

	"github.com/gopherhook/reloc/decoder"
)

// FixUp runs after every instruction has been emitted: it walks
// instructions whose relative target was internal to the analyzed chunk
// and rewrites their displacement field to point at the (possibly
// shifted) destination address of that target. This has to happen as a
// separate pass because an internal target's destination offset isn't
// known until the whole chunk has been relocated — branch enlargement and
// short-branch synthesis can change how many bytes precede it.
func FixUp(ctx *Context) error {
	for _, inst := range ctx.Instructions {
		if !inst.HasRelativeTarget || inst.HasExternalTarget {
			continue
		}

		target := ctx.Instructions[inst.Outgoing]

		sourceDestOffset, err := ctx.firstDestinationOffset(inst.AddressOffset)
		if err != nil {
			return err
		}
		targetDestOffset, err := ctx.firstDestinationOffset(target.AddressOffset)
		if err != nil {
			return err
		}

		field := inst.Decoded.Rel
		if field.Size != 1 && field.Size != 2 && field.Size != 4 {
			return errors.Wrapf(ErrUnreachable, "internal-target instruction at offset %d has a %d-byte relative field", inst.AddressOffset, field.Size)
		}

		sourceIP := ctx.DestBase + uint64(sourceDestOffset)
		targetIP := ctx.DestBase + uint64(targetDestOffset)
		rel := int64(decoder.RelativeOffset(inst.Decoded.Length, sourceIP, targetIP))

		if !fitsSigned(rel, field.Size) {
			return errors.Wrapf(ErrUnreachable, "internal branch/memory operand at offset %d no longer reaches its target after relocation", inst.AddressOffset)
		}

		writeSigned(ctx.Dest[sourceDestOffset:], field.Offset, field.Size, rel)
	}
	return nil
}
