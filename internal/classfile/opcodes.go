package classfile

import "fmt"

// Opcodes the core inspects by name. Everything else is handled purely
// through the size table.
const (
	opAconstNull   = 0x01
	opIinc         = 0x84
	opGoto         = 0xa7
	opJsr          = 0xa8
	opRet          = 0xa9
	opTableswitch  = 0xaa
	opLookupswitch = 0xab
	opWide         = 0xc4
	opGotoW        = 0xc8
	opJsrW         = 0xc9
)

// opcodeSizes maps opcode to fixed instruction length in bytes; 0 marks an
// opcode the scanner rejects and -1 a variable-length instruction.
var opcodeSizes = func() [256]int {
	var s [256]int
	fill := func(lo, hi int, n int) {
		for op := lo; op <= hi; op++ {
			s[op] = n
		}
	}
	fill(0x00, 0x0f, 1) // nop .. dconst_1
	s[0x10] = 2         // bipush
	s[0x11] = 3         // sipush
	s[0x12] = 2         // ldc
	s[0x13] = 3         // ldc_w
	s[0x14] = 3         // ldc2_w
	fill(0x15, 0x19, 2) // iload .. aload
	fill(0x1a, 0x35, 1) // iload_0 .. saload
	fill(0x36, 0x3a, 2) // istore .. astore
	fill(0x3b, 0x83, 1) // istore_0 .. lxor
	s[opIinc] = 3
	fill(0x85, 0x98, 1) // i2l .. dcmpg
	fill(0x99, 0xa8, 3) // ifeq .. jsr
	s[opRet] = 2
	s[opTableswitch] = -1
	s[opLookupswitch] = -1
	fill(0xac, 0xb1, 1) // ireturn .. return
	fill(0xb2, 0xb8, 3) // getstatic .. invokestatic
	s[0xb9] = 5         // invokeinterface
	s[0xba] = 5         // invokedynamic
	s[0xbb] = 3         // new
	s[0xbc] = 2         // newarray
	s[0xbd] = 3         // anewarray
	s[0xbe] = 1         // arraylength
	s[0xbf] = 1         // athrow
	s[0xc0] = 3         // checkcast
	s[0xc1] = 3         // instanceof
	s[0xc2] = 1         // monitorenter
	s[0xc3] = 1         // monitorexit
	s[opWide] = -1
	s[0xc5] = 4 // multianewarray
	s[0xc6] = 3 // ifnull
	s[0xc7] = 3 // ifnonnull
	s[opGotoW] = 5
	s[opJsrW] = 5
	return s
}()

// isBranch16 reports a branch instruction with a signed 16-bit offset.
func isBranch16(op byte) bool {
	return (op >= 0x99 && op <= opJsr) || op == 0xc6 || op == 0xc7
}

// isBranch32 reports a branch instruction with a signed 32-bit offset.
func isBranch32(op byte) bool {
	return op == opGotoW || op == opJsrW
}

// instruction is one decoded bytecode position: opcode, original offset and
// the original raw bytes.
type instruction struct {
	op  byte
	off int
	raw []byte
}

func (in instruction) size() int {
	return len(in.raw)
}

// scanInstructions splits a code array into instructions, validating that
// every opcode is known and every length stays inside the array.
func scanInstructions(code []byte) ([]instruction, error) {
	var insns []instruction
	for off := 0; off < len(code); {
		op := code[off]
		size := opcodeSizes[op]
		switch {
		case size == 0:
			return nil, fmt.Errorf("unknown opcode 0x%02x at offset %d", op, off)
		case size == -1:
			var err error
			if size, err = variableSize(code, off); err != nil {
				return nil, err
			}
		}
		if off+size > len(code) {
			return nil, fmt.Errorf("instruction 0x%02x at offset %d runs past end of code", op, off)
		}
		insns = append(insns, instruction{op: op, off: off, raw: code[off : off+size]})
		off += size
	}
	return insns, nil
}

func variableSize(code []byte, off int) (int, error) {
	switch code[off] {
	case opWide:
		if off+1 >= len(code) {
			return 0, fmt.Errorf("truncated wide instruction at offset %d", off)
		}
		if code[off+1] == opIinc {
			return 6, nil
		}
		return 4, nil
	case opTableswitch:
		pad := switchPadding(off)
		base := off + 1 + pad
		if base+12 > len(code) {
			return 0, fmt.Errorf("truncated tableswitch at offset %d", off)
		}
		low := int32(u32(code[base+4:]))
		high := int32(u32(code[base+8:]))
		if high < low {
			return 0, fmt.Errorf("tableswitch at offset %d has high %d < low %d", off, high, low)
		}
		return 1 + pad + 12 + 4*int(high-low+1), nil
	case opLookupswitch:
		pad := switchPadding(off)
		base := off + 1 + pad
		if base+8 > len(code) {
			return 0, fmt.Errorf("truncated lookupswitch at offset %d", off)
		}
		npairs := int(int32(u32(code[base+4:])))
		if npairs < 0 {
			return 0, fmt.Errorf("lookupswitch at offset %d has negative pair count", off)
		}
		return 1 + pad + 8 + 8*npairs, nil
	default:
		return 0, fmt.Errorf("opcode 0x%02x is not variable-length", code[off])
	}
}

// switchPadding returns the alignment padding following a switch opcode at
// the given offset.
func switchPadding(off int) int {
	return (4 - (off+1)%4) % 4
}

// branchTargets returns the absolute jump targets of an instruction: one for
// plain branches, default-then-cases for switches, nil otherwise.
func branchTargets(in instruction) []int {
	switch {
	case isBranch16(in.op):
		return []int{in.off + int(int16(u16(in.raw[1:])))}
	case isBranch32(in.op):
		return []int{in.off + int(int32(u32(in.raw[1:])))}
	case in.op == opTableswitch:
		pad := switchPadding(in.off)
		base := 1 + pad
		low := int32(u32(in.raw[base+4:]))
		high := int32(u32(in.raw[base+8:]))
		targets := []int{in.off + int(int32(u32(in.raw[base:])))}
		for i := 0; i < int(high-low+1); i++ {
			targets = append(targets, in.off+int(int32(u32(in.raw[base+12+4*i:]))))
		}
		return targets
	case in.op == opLookupswitch:
		pad := switchPadding(in.off)
		base := 1 + pad
		npairs := int(int32(u32(in.raw[base+4:])))
		targets := []int{in.off + int(int32(u32(in.raw[base:])))}
		for i := 0; i < npairs; i++ {
			targets = append(targets, in.off+int(int32(u32(in.raw[base+8+8*i+4:]))))
		}
		return targets
	default:
		return nil
	}
}

func u32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
