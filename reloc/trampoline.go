package reloc

// BuildTrampoline relocates one analyzed chunk in full: Relocate every
// instruction in order, then FixUp internal-target displacements once
// every destination offset is known.
func BuildTrampoline(ctx *Context) error {
	for _, inst := range ctx.Instructions {
		if err := Relocate(ctx, inst); err != nil {
			return err
		}
	}
	return FixUp(ctx)
}
