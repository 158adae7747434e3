// Package reloc is the second relocation-core phase: the translation
// context, the per-instruction relocator, and the offset fix-up pass.
package reloc

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gopherhook/reloc/analyzer"
)

// TranslationMapItem records where one emitted instruction (or partial
// emission, for a synthesized short-branch sequence) landed in the
// destination buffer, keyed by the source offset it came from. A source
// instruction that expands into several destination instructions
// contributes multiple items sharing the same SourceOffset.
type TranslationMapItem struct {
	SourceOffset      int
	DestinationOffset int
}

// Context is the mutable state threaded through one relocation call. A
// Context must not be shared across goroutines or reused across
// relocation calls.
type Context struct {
	Source     []byte
	Dest       []byte
	SourceBase uint64
	DestBase   uint64

	BytesRead        int
	BytesWritten     int
	InstructionsRead int

	Instructions   []*analyzer.AnalyzedInstruction
	TranslationMap []TranslationMapItem

	Log logrus.FieldLogger
}

// NewContext builds a Context ready for a sequence of Relocate calls
// followed by one FixUp call. dest is caller-owned and must outlive the
// Context; its capacity bounds how much can be emitted. log may be a
// *logrus.Logger or a *logrus.Entry carrying caller-supplied fields
// (a per-run correlation ID, for example) that should appear on every
// line this package logs.
func NewContext(source []byte, sourceBase uint64, dest []byte, destBase uint64, instructions []*analyzer.AnalyzedInstruction, log logrus.FieldLogger) *Context {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Context{
		Source:       source,
		Dest:         dest,
		SourceBase:   sourceBase,
		DestBase:     destBase,
		Instructions: instructions,
		Log:          log,
	}
}

// DestInstructionAddress returns the runtime address the next emitted byte
// will occupy once the destination buffer is loaded at DestBase.
func (ctx *Context) DestInstructionAddress() uint64 {
	return ctx.DestBase + uint64(ctx.BytesWritten)
}

// emit appends data to the destination buffer and records one translation-
// map entry for it. Every emission — a plain copy or one part of a
// three-part short-branch synthesis — must go through this so the map
// stays exhaustive.
func (ctx *Context) emit(data []byte, sourceOffset int) error {
	if ctx.BytesWritten+len(data) > len(ctx.Dest) {
		return errors.Wrapf(ErrDestinationOverflow, "need %d bytes at offset %d, have %d", len(data), ctx.BytesWritten, len(ctx.Dest))
	}
	destOffset := ctx.BytesWritten
	copy(ctx.Dest[destOffset:], data)
	ctx.TranslationMap = append(ctx.TranslationMap, TranslationMapItem{
		SourceOffset:      sourceOffset,
		DestinationOffset: destOffset,
	})
	ctx.BytesWritten += len(data)
	return nil
}

// firstDestinationOffset scans the translation map for the first entry
// whose SourceOffset matches: the first of potentially several emitted
// instructions for a rewritten branch.
func (ctx *Context) firstDestinationOffset(sourceOffset int) (int, error) {
	for _, item := range ctx.TranslationMap {
		if item.SourceOffset == sourceOffset {
			return item.DestinationOffset, nil
		}
	}
	return 0, errors.Wrapf(ErrNotFound, "no translation map entry for source offset %d", sourceOffset)
}
