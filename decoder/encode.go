package decoder

import "encoding/binary"

// JumpSize is the fixed length of a near unconditional jump: E9 + rel32.
const JumpSize = 5

// WriteRelativeJump emits the 5-byte near jump `E9 dd dd dd dd` at dst[0:5],
// with the displacement computed relative to dst's own runtime address plus
// 5 (the address of the instruction following the jump). dst must have at
// least JumpSize bytes available.
func WriteRelativeJump(dst []byte, dstAddr uint64, target uint64) {
	dst[0] = 0xE9
	rel := RelativeOffset(JumpSize, dstAddr, target)
	binary.LittleEndian.PutUint32(dst[1:JumpSize], uint32(rel))
}

// RelativeOffset computes the signed displacement that, when placed after
// an instruction occupying instructionLengthAfterOperand bytes measured
// from sourceIP, resolves to targetIP: target - source - length.
func RelativeOffset(instructionLengthAfterOperand int, sourceIP uint64, targetIP uint64) int32 {
	return int32(int64(targetIP) - int64(sourceIP) - int64(instructionLengthAfterOperand))
}
