// Package analyzer consumes a raw source byte buffer and produces an
// ordered list of AnalyzedInstruction records plus the cross-reference
// graph between them: decode every instruction in order, then resolve
// which relative operands target another instruction in the same chunk.
package analyzer

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gopherhook/reloc/decoder"
)

// ErrDecodeFailed is returned when the decoder rejects a byte sequence —
// malformed or truncated at the buffer end.
var ErrDecodeFailed = errors.New("analyzer: decode failed")

// noTarget marks an AnalyzedInstruction with no internal Outgoing edge.
const noTarget = -1

// AnalyzedInstruction is one decoded source instruction and what is known
// about its relative operand, if it has one.
type AnalyzedInstruction struct {
	AddressOffset int
	Address       uint64
	Decoded       decoder.Decoded

	HasRelativeTarget     bool
	HasExternalTarget     bool
	IsInternalTarget      bool
	AbsoluteTargetAddress uint64

	// Incoming holds indices (into the analyzer's result slice) of
	// instructions that target this one. Allocated only once
	// IsInternalTarget becomes true.
	Incoming []int
	// Outgoing is the index this instruction targets via a relative
	// operand, or noTarget if it has none.
	Outgoing int
}

// HasOutgoing reports whether this instruction targets another analyzed
// instruction.
func (a *AnalyzedInstruction) HasOutgoing() bool {
	return a.Outgoing != noTarget
}

// Analyze decodes instructions sequentially from buf[0] until the
// cumulative decoded length reaches or exceeds bytesToAnalyze, then builds
// the cross-reference graph between them. bytesToAnalyze is a minimum: the
// analyzer reads further so no instruction is split.
//
// sourceAddress is the runtime address buf[0] will occupy in the hooked
// process; the analyzer never dereferences real memory, so this is passed
// in explicitly rather than derived from the slice header.
func Analyze(buf []byte, sourceAddress uint64, bytesToAnalyze int, initialCapacity int, log logrus.FieldLogger) ([]*AnalyzedInstruction, int, error) {
	if log == nil {
		log = discardLogger()
	}

	instructions := make([]*AnalyzedInstruction, 0, initialCapacity)
	offset := 0

	for {
		if offset >= len(buf) {
			return nil, 0, errors.Wrapf(ErrDecodeFailed, "source buffer exhausted at offset %d before reaching %d bytes", offset, bytesToAnalyze)
		}

		d, err := decoder.Decode(buf[offset:])
		if err != nil {
			return nil, 0, errors.Wrapf(ErrDecodeFailed, "offset %d: %v", offset, err)
		}

		addr := sourceAddress + uint64(offset)
		inst := &AnalyzedInstruction{
			AddressOffset:     offset,
			Address:           addr,
			Decoded:           d,
			HasRelativeTarget: d.HasRelativeTarget,
			HasExternalTarget: d.HasRelativeTarget,
			Outgoing:          noTarget,
		}
		if d.HasRelativeTarget {
			inst.AbsoluteTargetAddress = decoder.AbsoluteTarget(d, addr)
		}
		instructions = append(instructions, inst)

		log.WithFields(logrus.Fields{
			"offset": offset,
			"mnem":   d.Inst.Op.String(),
			"length": d.Length,
		}).Debug("analyzer: decoded instruction")

		offset += d.Length
		if offset >= bytesToAnalyze {
			break
		}
	}

	crossReference(instructions)
	return instructions, offset, nil
}

// crossReference is the second analysis pass: for every ordered pair
// (i, j), if j's relative target equals i's address, wire the edge and
// clear j's HasExternalTarget. Quadratic, but chunks are a handful of
// instructions. A target that lands mid-instruction — not exactly on any
// decoded instruction's address — is treated as external; this function
// never matches on anything but an exact address.
func crossReference(instructions []*AnalyzedInstruction) {
	for j, to := range instructions {
		if !to.HasRelativeTarget {
			continue
		}
		for i, from := range instructions {
			if from.Address != to.AbsoluteTargetAddress {
				continue
			}
			to.Outgoing = i
			to.HasExternalTarget = false
			from.Incoming = append(from.Incoming, j)
			from.IsInternalTarget = true
			break
		}
	}
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
