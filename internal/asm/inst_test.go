package asm

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Inst{
		InstNone(OpNop),
		InstNone(OpReturn),
		InstOffset(OpJump, 12345),
		InstOffset(OpJump, -12345),
		InstValue(OpPush, 0xABCDEF),
		InstSignature(OpCallIndirect, 3, 2, 0x7),
		InstStackIdx(OpPick, 0xFFFF),
		InstLocalAddr(OpLocalAddr, 7, 0x1234),
		InstLayout(OpLocalAlloc, 4, 0x0F0F),
	}

	for _, want := range cases {
		word := Encode(want)
		got := Decode(word)
		if got != want {
			t.Errorf("round trip mismatch: encoded %v as 0x%08x, decoded back to %v", want, word, got)
		}
	}
}

func TestOffsetSignExtension(t *testing.T) {
	inst := InstOffset(OpJump, -1)
	if got := inst.Offset(); got != -1 {
		t.Errorf("Offset() = %d, want -1", got)
	}

	inst = InstOffset(OpJump, payload24Max>>1)
	if got := inst.Offset(); got != payload24Max>>1 {
		t.Errorf("Offset() = %d, want %d", got, payload24Max>>1)
	}
}

func TestIsTerminator(t *testing.T) {
	terminators := []OpCode{OpReturn, OpJump, OpPanic, OpExit}
	for _, op := range terminators {
		if !op.IsTerminator() {
			t.Errorf("%s.IsTerminator() = false, want true", op)
		}
	}

	// Conditional branches fall through to the next instruction when not
	// taken, so unlike an unconditional jump they never end a block.
	fallthroughs := []OpCode{
		OpBranchFalse, OpBranchEq, OpBranchNe, OpBranchLt, OpBranchLe, OpBranchGe, OpBranchGt,
		OpNop, OpPush, OpCall, OpCallBuiltin,
	}
	for _, op := range fallthroughs {
		if op.IsTerminator() {
			t.Errorf("%s.IsTerminator() = true, want false", op)
		}
	}
}

func TestIsConditionalBranch(t *testing.T) {
	if OpJump.IsConditionalBranch() {
		t.Error("OpJump.IsConditionalBranch() = true, want false (it's unconditional)")
	}
	if !OpBranchEq.IsConditionalBranch() {
		t.Error("OpBranchEq.IsConditionalBranch() = false, want true")
	}
}

func TestOpCodeValid(t *testing.T) {
	if !OpNop.Valid() {
		t.Error("OpNop.Valid() = false")
	}
	if opCodeCount.Valid() {
		t.Error("sentinel opCodeCount.Valid() = true, want false")
	}
}
