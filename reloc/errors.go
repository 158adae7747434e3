package reloc

import "github.com/pkg/errors"

// Sentinel error kinds. Every error this package returns wraps exactly
// one of these, so callers can classify failures with errors.Is /
// github.com/pkg/errors.Cause without parsing message text.
var (
	// ErrDecodeFailed mirrors the analyzer's decode failure so the
	// package's sentinel set covers every error kind of the core.
	// Relocate, FixUp and BuildTrampoline do not return it.
	ErrDecodeFailed = errors.New("reloc: decode failed")

	// ErrOutOfMemory covers allocation failure of the instruction list, an
	// Incoming sub-list, or the translation map. Go's allocator reports
	// this as a runtime panic rather than an error value in practice, but
	// the sentinel exists so callers have a corresponding Go value to
	// check for.
	ErrOutOfMemory = errors.New("reloc: out of memory")

	// ErrNotFound means a translation-map lookup during fix-up found no
	// entry for a source offset: a contract violation by the caller, or a
	// bug in the relocator.
	ErrNotFound = errors.New("reloc: translation map entry not found")

	// ErrUnreachable marks a dispatch path that should never execute for a
	// well-formed x86/x64 instruction, such as a relative operand width
	// other than 8/16/32 bits.
	ErrUnreachable = errors.New("reloc: unreachable state")

	// ErrDestinationOverflow reports that an emission would exceed the
	// destination buffer's capacity.
	ErrDestinationOverflow = errors.New("reloc: destination buffer overflow")
)
