package asm

import "fmt"

// OpCode is the 8-bit operation code shared by every instruction variant
// (spec.md §3 "Instruction"). Every instruction is exactly 32 bits: the
// opcode plus a 24-bit payload whose interpretation depends on the opcode's
// variant (listed in each constant's doc comment).
type OpCode uint8

const (
	// OpNop: none. Does nothing.
	OpNop OpCode = iota
	// OpReturn: none. Pops the current frame, resumes at its return_ip.
	OpReturn
	// OpJump: offset. Unconditional relative jump, in instruction strides.
	OpJump
	// OpBranchFalse: offset. Pops the top value; jumps if it is zero.
	OpBranchFalse
	// OpBranchEq: offset. Pops the top value; jumps if it equals zero.
	OpBranchEq
	// OpBranchNe: offset. Pops the top value; jumps if it is non-zero.
	OpBranchNe
	// OpBranchLt: offset. Pops the top value; jumps if signed < 0.
	OpBranchLt
	// OpBranchLe: offset. Pops the top value; jumps if signed <= 0.
	OpBranchLe
	// OpBranchGe: offset. Pops the top value; jumps if signed >= 0.
	OpBranchGe
	// OpBranchGt: offset. Pops the top value; jumps if signed > 0.
	OpBranchGt
	// OpPanic: none. Pops a message address; aborts the process.
	OpPanic
	// OpExit: none. Leaves the trampoline successfully. Illegal outside it.
	OpExit

	// OpCall: offset. Relative offset (in function-table strides) to the
	// target function.
	OpCall
	// OpCallIndirect: signature. Pops a function address; verifies it and
	// that arities match the embedded signature, else panics.
	OpCallIndirect
	// OpCallBuiltin: offset. Index of the builtin in the VM's abi.Table;
	// the payload is not relative to the instruction or to the
	// implementation. Followed by one OpCallBuiltinSig trailer word.
	OpCallBuiltin
	// OpCallBuiltinNoProcess: offset. Same as OpCallBuiltin; the dispatcher
	// runs both the same way.
	OpCallBuiltinNoProcess
	// OpCallBuiltinSig: signature. Trailing word after a call_builtin,
	// carrying the builtin's declared input/output arity and flags. The
	// dispatcher reads the arity from it; the dumper skips it.
	OpCallBuiltinSig

	// OpPush: value. Pushes the 24-bit immediate, zero-extended.
	OpPush
	// OpPushN: value. Pushes the 24-bit immediate, zero-extended then bit-
	// flipped (i.e. ~value) — the compact encoding for small negatives.
	OpPushN
	// OpPush2: value. ORs imm<<24 into the current top. Must follow push
	// or pushn.
	OpPush2
	// OpPush3: value. ORs imm<<48 into the current top. Must follow push2.
	OpPush3

	// OpGlobalAddr: value. Pushes a memory address for global #value, with
	// generation 0 and offset 0.
	OpGlobalAddr
	// OpFunctionAddr: offset. Pushes the function address of the function
	// reached by the relative offset.
	OpFunctionAddr
	// OpLocalAddr: local_addr. Pushes (first_local_alloc+slot, local_gen, offset).
	OpLocalAddr

	// OpPop: stack_idx. Removes the value at depth idx (0 = top).
	OpPop
	// OpPopTop: none. The common idx==0 specialization of OpPop.
	OpPopTop
	// OpPick: stack_idx. Duplicates the value at depth idx to the top.
	OpPick
	// OpDup: none. The idx==0 specialization of OpPick.
	OpDup
	// OpRoll: stack_idx. Rotates depth idx to top, preserving the relative
	// order of the rest.
	OpRoll
	// OpSwap: none. The idx==1 specialization of OpRoll.
	OpSwap

	// OpLocalAlloc: layout. Reserves size bytes at the frame's (already
	// word-aligned) next_offset; pushes a new allocation record.
	OpLocalAlloc
	// OpLocalAllocAligned: layout. Same, but aligns next_offset first.
	OpLocalAllocAligned
	// OpLocalFree: value. Marks the next `value` local allocations freed.
	OpLocalFree

	// OpDerefConst: layout. Consumes an address, pushes a native pointer
	// after checked_offset validates size/alignment.
	OpDerefConst
	// OpDerefMut: layout. Same, but also requires a non-const source.
	OpDerefMut

	opCodeCount
)

var opNames = [...]string{
	OpNop: "nop", OpReturn: "return_", OpJump: "jump",
	OpBranchFalse: "branch_false", OpBranchEq: "branch_eq", OpBranchNe: "branch_ne",
	OpBranchLt: "branch_lt", OpBranchLe: "branch_le", OpBranchGe: "branch_ge", OpBranchGt: "branch_gt",
	OpPanic: "panic", OpExit: "exit",
	OpCall: "call", OpCallIndirect: "call_indirect",
	OpCallBuiltin: "call_builtin", OpCallBuiltinNoProcess: "call_builtin_no_process",
	OpCallBuiltinSig: "call_builtin_sig",
	OpPush: "push", OpPushN: "pushn", OpPush2: "push2", OpPush3: "push3",
	OpGlobalAddr: "global_addr", OpFunctionAddr: "function_addr", OpLocalAddr: "local_addr",
	OpPop: "pop", OpPopTop: "pop_top", OpPick: "pick", OpDup: "dup", OpRoll: "roll", OpSwap: "swap",
	OpLocalAlloc: "local_alloc", OpLocalAllocAligned: "local_alloc_aligned", OpLocalFree: "local_free",
	OpDerefConst: "deref_const", OpDerefMut: "deref_mut",
}

func (op OpCode) String() string {
	if int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", op)
}

// Valid reports whether op is a recognized opcode.
func (op OpCode) Valid() bool { return op < opCodeCount }

// IsTerminator reports whether op unconditionally ends control flow through
// the current instruction stream (spec.md §4.1): nothing after one of these
// ever executes by falling through. Conditional branches are deliberately
// excluded — they have a taken target but otherwise fall through to the
// next instruction, so they don't end a block by themselves.
func (op OpCode) IsTerminator() bool {
	switch op {
	case OpReturn, OpJump, OpPanic, OpExit:
		return true
	default:
		return false
	}
}

// IsConditionalBranch reports whether op is a branch that also falls
// through (everything except the unconditional jump).
func (op OpCode) IsConditionalBranch() bool {
	switch op {
	case OpBranchFalse, OpBranchEq, OpBranchNe, OpBranchLt, OpBranchLe, OpBranchGe, OpBranchGt:
		return true
	default:
		return false
	}
}

const (
	payload24Bits = 24
	payload24Max  = 1<<payload24Bits - 1
)

// Inst is one 32-bit instruction: an opcode plus a 24-bit payload whose
// bit layout is chosen by the opcode's variant (spec.md §3). A second
// instruction word follows call_builtin as its call_builtin_sig trailer;
// Inst models that as two consecutive Insts, matching the original's
// "two 32-bit slots" framing (spec.md §6).
type Inst struct {
	Op      OpCode
	Payload uint32 // low 24 bits significant
}

// Offset reads Payload as a sign-extended 24-bit displacement, in
// instruction strides (asm_inst_offset).
func (i Inst) Offset() int32 {
	v := i.Payload & payload24Max
	if v&(1<<23) != 0 {
		return int32(v) - (1 << 24)
	}
	return int32(v)
}

// InstOffset builds an instruction using the offset variant.
func InstOffset(op OpCode, offset int32) Inst {
	return Inst{Op: op, Payload: uint32(offset) & payload24Max}
}

// ImmValue reads Payload as an unsigned 24-bit immediate (asm_inst_value).
func (i Inst) ImmValue() uint32 { return i.Payload & payload24Max }

// InstValue builds an instruction using the value variant.
func InstValue(op OpCode, value uint32) Inst {
	return Inst{Op: op, Payload: value & payload24Max}
}

// Signature reads Payload as in_count:8, out_count:8, flags:8
// (asm_inst_signature).
func (i Inst) Signature() (in, out, flags uint8) {
	return uint8(i.Payload), uint8(i.Payload >> 8), uint8(i.Payload >> 16)
}

// InstSignature builds an instruction using the signature variant.
func InstSignature(op OpCode, in, out, flags uint8) Inst {
	return Inst{Op: op, Payload: uint32(in) | uint32(out)<<8 | uint32(flags)<<16}
}

// Layout reads Payload as alignment_log2:8, size:16 (asm_inst_layout).
func (i Inst) Layout() (alignLog2 uint8, size uint16) {
	return uint8(i.Payload), uint16(i.Payload >> 8)
}

// InstLayout builds an instruction using the layout variant.
func InstLayout(op OpCode, alignLog2 uint8, size uint16) Inst {
	return Inst{Op: op, Payload: uint32(alignLog2) | uint32(size)<<8}
}

// StackIdx reads Payload as idx:16 (asm_inst_stack_idx).
func (i Inst) StackIdx() uint16 { return uint16(i.Payload) }

// InstStackIdx builds an instruction using the stack_idx variant.
func InstStackIdx(op OpCode, idx uint16) Inst {
	return Inst{Op: op, Payload: uint32(idx)}
}

// LocalAddr reads Payload as slot:8, offset:16 (asm_inst_local_addr).
func (i Inst) LocalAddr() (slot uint8, offset uint16) {
	return uint8(i.Payload), uint16(i.Payload >> 8)
}

// InstLocalAddr builds an instruction using the local_addr variant.
func InstLocalAddr(op OpCode, slot uint8, offset uint16) Inst {
	return Inst{Op: op, Payload: uint32(slot) | uint32(offset)<<8}
}

// InstNone builds an opcode-only instruction.
func InstNone(op OpCode) Inst { return Inst{Op: op} }

// Encode packs i into its 32-bit little-endian wire form: the opcode in
// the low byte, the 24-bit payload in the remaining three bytes.
func Encode(i Inst) uint32 {
	return uint32(i.Op) | (i.Payload&payload24Max)<<8
}

// Decode unpacks a 32-bit wire word into an Inst.
func Decode(word uint32) Inst {
	return Inst{Op: OpCode(word & 0xFF), Payload: (word >> 8) & payload24Max}
}

func (i Inst) String() string {
	switch i.Op {
	case OpJump, OpBranchFalse, OpBranchEq, OpBranchNe, OpBranchLt, OpBranchLe, OpBranchGe,
		OpBranchGt, OpCall, OpFunctionAddr, OpCallBuiltin, OpCallBuiltinNoProcess:
		return fmt.Sprintf("%-20s %d", i.Op, i.Offset())
	case OpPush, OpPushN, OpPush2, OpPush3, OpGlobalAddr, OpLocalFree:
		return fmt.Sprintf("%-20s %d", i.Op, i.ImmValue())
	case OpCallIndirect, OpCallBuiltinSig:
		in, out, flags := i.Signature()
		return fmt.Sprintf("%-20s in=%d out=%d flags=0x%x", i.Op, in, out, flags)
	case OpLocalAlloc, OpLocalAllocAligned, OpDerefConst, OpDerefMut:
		align, size := i.Layout()
		return fmt.Sprintf("%-20s align=1<<%d size=%d", i.Op, align, size)
	case OpPop, OpPick, OpRoll:
		return fmt.Sprintf("%-20s %d", i.Op, i.StackIdx())
	case OpLocalAddr:
		slot, offset := i.LocalAddr()
		return fmt.Sprintf("%-20s slot=%d offset=%d", i.Op, slot, offset)
	default:
		return i.Op.String()
	}
}
